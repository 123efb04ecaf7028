package protocol

const (
	MsgSetup          = "setup"
	MsgOpponentJoined = "opponent_joined"
	MsgInput          = "input"
	MsgState          = "state"
	MsgClientLeft     = "client_left"
	MsgPing           = "ping"
	MsgPong           = "pong"
	MsgIdle           = "idle"
	MsgRejected       = "rejected"
	MsgRoomClosed     = "room_closed"
)

// Envelope is the outer frame of every message. P stays encoded until the receiver knows T.
type Envelope struct {
	T string
	P []byte
}
