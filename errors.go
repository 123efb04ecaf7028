package puckroom

import (
	"errors"
	"fmt"
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrRoomClosed    = errors.New("room is closed")
	ErrAlreadyJoined = errors.New("participant already joined")
	ErrNilPlayerID   = errors.New("playerID is nil")

	errUnknownParticipant = errors.New("unknown participant")
)

// RoomFullError is returned by Join when the room already holds its capacity.
type RoomFullError struct {
	RoomID   any
	Capacity int
}

func (e *RoomFullError) Error() string {
	return fmt.Sprintf("room %v is full (capacity %d)", e.RoomID, e.Capacity)
}

func (e *RoomFullError) Is(target error) bool {
	return target == ErrRoomFull
}

// InvariantViolation reports a mismatch between the world's dynamic bodies and the
// bodies the room expects to own.
type InvariantViolation struct {
	Expected      int
	Observed      int
	StaticWalls   int
	ExpectedWalls int
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("simulation invariant violated: %d dynamic bodies (want %d), %d walls (want %d)",
		e.Observed, e.Expected, e.StaticWalls, e.ExpectedWalls)
}
