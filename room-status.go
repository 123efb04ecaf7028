package puckroom

type RoomStatus int8

const (
	Lobby RoomStatus = iota
	WaitingForOpponent
	Active
	Disposing
)

func (r RoomStatus) String() string {
	switch r {
	case Lobby:
		return "Lobby"
	case WaitingForOpponent:
		return "WaitingForOpponent"
	case Active:
		return "Active"
	case Disposing:
		return "Disposing"
	default:
		return "Unknown"
	}
}

// statusFor maps a participant count onto the non-terminal states.
func statusFor(participants int) RoomStatus {
	switch participants {
	case 0:
		return Lobby
	case 1:
		return WaitingForOpponent
	default:
		return Active
	}
}
