package puckroom

import "time"

type PlayerPresence[PlayerID comparable] struct {
	ID          PlayerID
	Name        string
	IsConnected bool
	LastSeen    time.Time
}
