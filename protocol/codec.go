package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrEmptyType    = errors.New("protocol: empty envelope type")
	ErrNilPayload   = errors.New("protocol: nil payload")
	ErrEmptyFrame   = errors.New("protocol: empty frame")
	ErrEmptyPayload = errors.New("protocol: empty payload")
	ErrUnknownCodec = errors.New("protocol: unknown codec")
)

// Codec turns envelopes into frames and back. Binary reports whether frames must travel as
// binary websocket messages.
type Codec interface {
	Name() string
	Binary() bool
	Encode(t string, payload any) ([]byte, error)
	DecodeEnvelope(b []byte) (Envelope, error)
	Unmarshal(p []byte, out any) error
}

func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "msgpack", "messagepack":
		return MsgPack, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// DecodePayload decodes the payload of env into a fresh T.
func DecodePayload[T any](c Codec, env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("%w for type %q", ErrEmptyPayload, env.T)
	}
	err := c.Unmarshal(env.P, &out)
	return out, err
}

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

type jsonCodec struct{}

type jsonEnvelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(t string, payload any) ([]byte, error) {
	if err := checkEncode(t, payload); err != nil {
		return nil, err
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonEnvelope{T: t, P: pb})
}

func (jsonCodec) DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var e jsonEnvelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	if e.T == "" {
		return Envelope{}, ErrEmptyType
	}
	return Envelope{T: e.T, P: e.P}, nil
}

func (jsonCodec) Unmarshal(p []byte, out any) error {
	return json.Unmarshal(p, out)
}

// msgpackCodec reuses the json struct tags so both codecs share one set of field names.
type msgpackCodec struct{}

type msgpackEnvelope struct {
	T string             `json:"t"`
	P msgpack.RawMessage `json:"p"`
}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Binary() bool { return true }

func (c msgpackCodec) Encode(t string, payload any) ([]byte, error) {
	if err := checkEncode(t, payload); err != nil {
		return nil, err
	}
	pb, err := c.marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.marshal(msgpackEnvelope{T: t, P: pb})
}

func (c msgpackCodec) DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var e msgpackEnvelope
	if err := c.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	if e.T == "" {
		return Envelope{}, ErrEmptyType
	}
	return Envelope{T: e.T, P: e.P}, nil
}

func (msgpackCodec) marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(p []byte, out any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(p))
	dec.SetCustomStructTag("json")
	return dec.Decode(out)
}

func checkEncode(t string, payload any) error {
	if t == "" {
		return ErrEmptyType
	}
	if payload == nil {
		return ErrNilPayload
	}
	return nil
}
