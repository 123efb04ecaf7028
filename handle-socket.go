package puckroom

import (
	"errors"
	"net/http"

	"github.com/gobwas/ws"

	"github.com/chilledoj/puckroom/protocol"
)

type GetPlayerIDFromRequester[PlayerId comparable] interface {
	GetPlayerIdFromRequest(w http.ResponseWriter, r *http.Request) PlayerId
}
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// HandleSocketWithPlayer upgrades the request and joins playerID to the room. Requests the
// room cannot accept are refused before the upgrade; a join that fails after the upgrade gets a
// rejected message and the connection is closed.
func (room *Room[RoomId, PlayerID]) HandleSocketWithPlayer(playerID PlayerID, sessionOpts SessionOptions, onError ErrorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var zero PlayerID
		if playerID == zero {
			onError(w, r, ErrNilPlayerID)
			return
		}
		if !room.CanJoin(playerID) {
			onError(w, r, room.joinRefusal())
			return
		}

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			onError(w, r, err)
			return
		}
		room.Slogger.Info("new socket connection", "player", playerID)

		opts := sessionOpts
		opts.Binary = room.codec.Binary()
		if opts.Slogger == nil {
			opts.Slogger = room.Slogger
		}
		ss := NewSocketSession[PlayerID](conn, playerID, room.messages, room.done, opts)

		if err := room.Join(r.Context(), ss); err != nil {
			room.Slogger.Info("rejecting socket", "player", playerID, "err", err)
			if b, encErr := room.codec.Encode(protocol.MsgRejected, protocol.Rejected{Reason: err.Error()}); encErr == nil {
				ss.Send(b)
			}
			ss.Close()
		}
	}
}

func (room *Room[RoomId, PlayerID]) HandleSocket(playerStore GetPlayerIDFromRequester[PlayerID], sessionOpts SessionOptions, onError ErrorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := playerStore.GetPlayerIdFromRequest(w, r)
		room.HandleSocketWithPlayer(playerID, sessionOpts, onError)(w, r)
	}
}

func (room *Room[RoomId, PlayerID]) joinRefusal() error {
	switch room.GetStatus() {
	case Disposing:
		return ErrRoomClosed
	case Active:
		return &RoomFullError{RoomID: room.ID, Capacity: Capacity}
	}
	return ErrAlreadyJoined
}

// StatusForError maps join errors onto HTTP status codes for onError implementations.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrRoomFull), errors.Is(err, ErrAlreadyJoined):
		return http.StatusConflict
	case errors.Is(err, ErrRoomClosed):
		return http.StatusGone
	case errors.Is(err, ErrNilPlayerID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
