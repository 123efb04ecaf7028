package protocol

import "math"

// server -> client

type Field struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Body[ID comparable] struct {
	ID   ID      `json:"id"`
	Name string  `json:"name,omitempty"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

type SharedBody struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

type Setup[ID comparable] struct {
	Self     Body[ID]    `json:"self"`
	Opponent *Body[ID]   `json:"opponent,omitempty"`
	Shared   *SharedBody `json:"shared,omitempty"`
	Field    Field       `json:"field"`
	TickHz   int         `json:"tickHz"`
}

type OpponentJoined[ID comparable] struct {
	Opponent Body[ID] `json:"opponent"`
}

type Position[ID comparable] struct {
	ID ID      `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type State[ID comparable] struct {
	Tick    uint64         `json:"tick"`
	Players []Position[ID] `json:"players"`
	Shared  *Point         `json:"shared,omitempty"`
}

type ClientLeft[ID comparable] struct {
	ID ID `json:"id"`
}

type Rejected struct {
	Reason string `json:"reason"`
}

type RoomClosed struct {
	Reason string `json:"reason"`
}

type Idle struct {
	After string `json:"after,omitempty"`
}

type Pong struct {
	Tick uint64 `json:"tick"`
}

// client -> server

// Input is a movement intent. Each axis is a direction in [-1, 1].
type Input struct {
	Dx float64 `json:"dx"`
	Dy float64 `json:"dy"`
}

// Normalize clamps both axes into [-1, 1]; NaN and infinities become 0.
func (in Input) Normalize() Input {
	return Input{Dx: clampAxis(in.Dx), Dy: clampAxis(in.Dy)}
}

func (in Input) IsZero() bool {
	return in.Dx == 0 && in.Dy == 0
}

func clampAxis(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

type Ping struct {
	Tick uint64 `json:"tick,omitempty"`
}
