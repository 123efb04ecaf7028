package puckroom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type SocketMessageType int

const (
	Disconnect SocketMessageType = iota - 1
	_
	Message
)

type SocketMessage[PlayerId comparable] struct {
	ReferenceID PlayerId
	Type        SocketMessageType
	Message     []byte

	// Session is the sender, when known. The room ignores messages from a session it no
	// longer holds for that identity.
	Session SocketSessioner[PlayerId]
}

type SessionOptions struct {
	// Binary selects binary frames for outbound messages, text otherwise.
	Binary       bool
	WriteTimeout time.Duration
	PingPeriod   time.Duration
	QueueSize    int

	Slogger *slog.Logger
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		WriteTimeout: 5 * time.Second,
		PingPeriod:   10 * time.Second,
		QueueSize:    255,
	}
}

type SocketSession[PlayerId comparable] struct {
	// The key bit - the web-socket connection
	conn net.Conn
	rw   *lockedConn
	// The reference bit
	referenceID PlayerId
	opts        SessionOptions

	// The message bit
	send     chan []byte
	Messages chan<- SocketMessage[PlayerId]
	stop     <-chan struct{}
	dropped  atomic.Int64

	// The concurrency bit
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	Slogger *slog.Logger
}

// NewSocketSession starts the read and write loops. Inbound frames go to messages until stop is
// closed; stop is normally the owning room's Done channel.
func NewSocketSession[PlayerId comparable](conn net.Conn, referenceID PlayerId, messages chan<- SocketMessage[PlayerId], stop <-chan struct{}, opts SessionOptions) *SocketSession[PlayerId] {
	d := DefaultSessionOptions()
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = d.WriteTimeout
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = d.PingPeriod
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = d.QueueSize
	}
	sl := opts.Slogger
	if sl == nil {
		sl = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SocketSession[PlayerId]{
		conn:        conn,
		rw:          &lockedConn{Conn: conn},
		referenceID: referenceID,
		opts:        opts,
		send:        make(chan []byte, opts.QueueSize),
		Messages:    messages,
		stop:        stop,
		ctx:         ctx,
		cancel:      cancel,
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
		Slogger:     sl.With("player", referenceID),
	}

	// START
	s.wg.Add(2)
	go func() {
		s.ReadLoop()
		s.wg.Done()
	}()
	go func() {
		s.WriteLoop()
		s.wg.Done()
	}()
	go func() {
		s.wg.Wait()
		close(s.done)
	}()
	return s
}

func (s *SocketSession[PlayerId]) ReferenceID() PlayerId {
	return s.referenceID
}

// Close asks the write loop to flush what is queued, send a close frame and drop the
// connection. It does not wait; use Done for that.
func (s *SocketSession[PlayerId]) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
}

func (s *SocketSession[PlayerId]) Done() <-chan struct{} {
	return s.done
}

// Dropped counts messages discarded because the queue was full.
func (s *SocketSession[PlayerId]) Dropped() int64 {
	return s.dropped.Load()
}

func (s *SocketSession[PlayerId]) ReadLoop() {
	sl := s.Slogger.With("func", "socket.ReadLoop")
	sl.Debug("starting")
	defer func() {
		s.conn.Close()
		s.cancel()
		sl.Debug("ReadLoop exited")
	}()
	for {
		msg, _, err := wsutil.ReadClientData(s.rw)
		if err != nil {
			var er wsutil.ClosedError
			if errors.As(err, &er) {
				sl.Debug("ReadLoop closing", "reason", er.Reason)
			} else if s.isClosing() {
				sl.Debug("ReadLoop closing", "reason", "closed by room")
			} else {
				sl.Error("ReadLoop error", "err", err)
			}
			// send the disconnect message for ANY error that terminates the loop.
			s.forward(s.unregisterMessage())
			return
		}
		sl.Debug("ReadLoop message", "message", fmt.Sprintf("%v", msg))

		if !s.forward(SocketMessage[PlayerId]{
			ReferenceID: s.referenceID,
			Type:        Message,
			Message:     msg,
			Session:     s,
		}) {
			return
		}
	}
}

func (s *SocketSession[PlayerId]) forward(sm SocketMessage[PlayerId]) bool {
	select {
	case s.Messages <- sm:
		return true
	case <-s.stop:
		return false
	}
}

func (s *SocketSession[PlayerId]) WriteLoop() {
	sl := s.Slogger.With("func", "socket.WriteLoop")
	sl.Debug("starting")
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		s.cancel()
		sl.Debug("WriteLoop exited")
	}()
	op := ws.OpText
	if s.opts.Binary {
		op = ws.OpBinary
	}
	for {
		select {
		case msg := <-s.send:
			if err := s.write(ws.NewFrame(op, true, msg)); err != nil {
				sl.Info("write failed, dropping connection", "err", err)
				return
			}
		case <-ticker.C:
			sl.Log(context.Background(), slog.Level(-8), "ping")
			if err := s.write(ws.NewPingFrame([]byte("ping"))); err != nil {
				sl.Info("ping failed, dropping connection", "err", err)
				return
			}
		case <-s.closing:
			s.flush(op)
			_ = s.write(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *SocketSession[PlayerId]) flush(op ws.OpCode) {
	for {
		select {
		case msg := <-s.send:
			if err := s.write(ws.NewFrame(op, true, msg)); err != nil {
				return
			}
		default:
			return
		}
	}
}

// write puts a whole frame on the wire in one call so it cannot interleave with control replies
// written by the read loop.
func (s *SocketSession[PlayerId]) write(f ws.Frame) error {
	var buf bytes.Buffer
	if err := ws.WriteFrame(&buf, f); err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return err
	}
	_, err := s.rw.Write(buf.Bytes())
	return err
}

func (s *SocketSession[PlayerId]) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

func (s *SocketSession[PlayerId]) unregisterMessage() SocketMessage[PlayerId] {
	return SocketMessage[PlayerId]{
		ReferenceID: s.referenceID,
		Type:        Disconnect,
		Message:     nil,
		Session:     s,
	}
}

// Send queues a message without blocking. A full queue drops the message.
func (s *SocketSession[PlayerId]) Send(message []byte) {
	select {
	case <-s.closing:
		return
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.send <- message:
	default:
		s.dropped.Add(1)
		s.Slogger.Debug("send queue full, dropping message", "func", "socket.Send")
	}
}

type lockedConn struct {
	net.Conn
	mu sync.Mutex
}

func (c *lockedConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.Write(p)
}
