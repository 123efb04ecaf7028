package puckroom

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chilledoj/puckroom/physics"
	"github.com/chilledoj/puckroom/protocol"
)

type SocketSessioner[PlayerID comparable] interface {
	ReferenceID() PlayerID
	Send(message []byte)
	Close()
}

type Room[RoomId comparable, PlayerID comparable] struct {
	ID       RoomId
	opts     Options[PlayerID]
	settings Settings
	codec    protocol.Codec

	mu         sync.RWMutex
	Status     RoomStatus
	sessions   map[PlayerID]SocketSessioner[PlayerID]
	world      *physics.World
	registry   *Registry[PlayerID]
	shared     *SharedObject
	tick       uint64
	lastTick   time.Time
	emptySince time.Time

	// MessageProcessing
	messages chan SocketMessage[PlayerID]
	joins    chan joinRequest[PlayerID]

	// Concurrency
	ctx         context.Context
	cancel      context.CancelFunc
	started     atomic.Bool
	done        chan struct{}
	disposeOnce sync.Once

	// Logging
	Slogger    *slog.Logger
	baseLogger *slog.Logger
}

type Options[PlayerID comparable] struct {
	Settings Settings
	Codec    protocol.Codec

	OnJoin    func(player PlayerID)
	OnLeave   func(player PlayerID)
	OnDispose func(reason string)

	Slogger *slog.Logger
}

type joinRequest[PlayerID comparable] struct {
	session SocketSessioner[PlayerID]
	reply   chan error
}

func NewRoom[RoomId comparable, PlayerID comparable](parentCtx context.Context, id RoomId, options Options[PlayerID]) *Room[RoomId, PlayerID] {
	ctx, cancel := context.WithCancel(parentCtx)
	settings := options.Settings.withDefaults()
	codec := options.Codec
	if codec == nil {
		codec = protocol.JSON
	}
	world := physics.New(settings.worldConfig())

	room := &Room[RoomId, PlayerID]{
		ID:         id,
		opts:       options,
		settings:   settings,
		codec:      codec,
		Status:     Lobby,
		sessions:   make(map[PlayerID]SocketSessioner[PlayerID]),
		world:      world,
		registry:   NewRegistry[PlayerID](world, settings, Capacity),
		emptySince: time.Now(),
		messages:   make(chan SocketMessage[PlayerID], 255),
		joins:      make(chan joinRequest[PlayerID]),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	if settings.SharedObject {
		room.shared = newSharedObject(world, settings)
	}

	if options.Slogger != nil {
		room.baseLogger = options.Slogger
	} else {
		room.baseLogger = slog.Default()
	}
	room.Slogger = room.baseLogger.With("room", room.ID)

	return room
}

// SetRoomID renames a room that has not been started yet.
func (room *Room[RoomId, PlayerID]) SetRoomID(id RoomId) {
	if room.started.Load() {
		return
	}
	room.ID = id
	room.Slogger = room.baseLogger.With("room", id)
}

func (room *Room[RoomId, PlayerID]) Settings() Settings {
	return room.settings
}

func (room *Room[RoomId, PlayerID]) Done() <-chan struct{} {
	return room.done
}

func (room *Room[RoomId, PlayerID]) GetStatus() RoomStatus {
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.Status
}

func (room *Room[RoomId, PlayerID]) NumPlayers() int {
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.registry.Len()
}

func (room *Room[RoomId, PlayerID]) GetPlayerPresences() []PlayerPresence[PlayerID] {
	room.mu.RLock()
	defer room.mu.RUnlock()
	playerPresences := make([]PlayerPresence[PlayerID], 0, room.registry.Len())
	for _, p := range room.registry.Participants() {
		playerPresences = append(playerPresences, PlayerPresence[PlayerID]{
			ID:          p.ID,
			Name:        p.Name,
			IsConnected: room.sessions[p.ID] != nil,
			LastSeen:    p.LastSeen,
		})
	}
	return playerPresences
}

func (room *Room[RoomId, PlayerID]) GetPlayerPresence(playerID PlayerID) PlayerPresence[PlayerID] {
	room.mu.RLock()
	defer room.mu.RUnlock()
	p, ok := room.registry.Get(playerID)
	if !ok {
		return PlayerPresence[PlayerID]{ID: playerID}
	}
	return PlayerPresence[PlayerID]{
		ID:          p.ID,
		Name:        p.Name,
		IsConnected: room.sessions[p.ID] != nil,
		LastSeen:    p.LastSeen,
	}
}

// Start runs the room until it is disposed. Join, leave, inbound messages and ticks are all
// handled on this goroutine, so none of them interleave.
func (room *Room[RoomId, PlayerID]) Start() {
	if !room.started.CompareAndSwap(false, true) {
		return
	}
	sl := room.Slogger.With("func", "room.Start")
	sl.Debug("starting", "tickRate", room.settings.TickRate)
	ticker := time.NewTicker(room.settings.tickInterval())
	cleanup := time.NewTicker(room.settings.CleanupPeriod)
	defer func() {
		ticker.Stop()
		cleanup.Stop()
		sl.Info("stopped")
	}()

	room.lastTick = time.Now()
	for {
		select {
		case <-room.ctx.Done():
			sl.Debug("stopping")
			room.dispose("stopped")
			return
		case req := <-room.joins:
			room.handleJoin(req)
		case msg := <-room.messages:
			room.handleSocketMessage(msg)
		case now := <-ticker.C:
			elapsed := now.Sub(room.lastTick)
			room.lastTick = now
			room.step(elapsed)
		case now := <-cleanup.C:
			room.CleanUp(now)
		}
		if room.isDisposed() {
			return
		}
	}
}

// Stop disposes the room. It is safe to call more than once and from any goroutine; a tick in
// progress finishes before disposal.
func (room *Room[RoomId, PlayerID]) Stop() {
	sl := room.Slogger.With("func", "room.Stop")
	sl.Debug("closing", "status", "started")
	room.cancel()
	if room.started.Load() {
		<-room.done
	} else {
		room.dispose("stopped")
	}
	sl.Debug("room closed", "status", "completed")
}

// Join adds the session's identity to the room. It returns a *RoomFullError when the room is at
// capacity and ErrRoomClosed once the room is disposing.
func (room *Room[RoomId, PlayerID]) Join(ctx context.Context, session SocketSessioner[PlayerID]) error {
	req := joinRequest[PlayerID]{session: session, reply: make(chan error, 1)}
	select {
	case room.joins <- req:
	case <-room.ctx.Done():
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-room.done:
		return ErrRoomClosed
	}
}

// Leave reports a disconnect. Unknown identities are ignored.
func (room *Room[RoomId, PlayerID]) Leave(playerID PlayerID) {
	room.enqueue(SocketMessage[PlayerID]{ReferenceID: playerID, Type: Disconnect})
}

// HandleMessage queues an inbound frame for the room loop.
func (room *Room[RoomId, PlayerID]) HandleMessage(playerID PlayerID, payload []byte) {
	room.enqueue(SocketMessage[PlayerID]{ReferenceID: playerID, Type: Message, Message: payload})
}

func (room *Room[RoomId, PlayerID]) enqueue(msg SocketMessage[PlayerID]) {
	select {
	case room.messages <- msg:
	case <-room.ctx.Done():
	}
}

func (room *Room[RoomId, PlayerID]) CanJoin(playerID PlayerID) bool {
	var zero PlayerID
	if playerID == zero {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	if room.Status == Disposing || room.registry.Len() >= Capacity {
		return false
	}
	_, ok := room.registry.Get(playerID)
	return !ok
}

func (room *Room[RoomId, PlayerID]) handleJoin(req joinRequest[PlayerID]) {
	sl := room.Slogger.With("func", "room.handleJoin")
	playerID := req.session.ReferenceID()

	room.mu.Lock()
	if room.Status == Disposing {
		room.mu.Unlock()
		req.reply <- ErrRoomClosed
		return
	}
	p, err := room.registry.Join(playerID, time.Now())
	if err != nil {
		room.mu.Unlock()
		if errors.Is(err, ErrRoomFull) {
			err = &RoomFullError{RoomID: room.ID, Capacity: Capacity}
		}
		sl.Info("join rejected", "player", playerID, "err", err)
		req.reply <- err
		return
	}
	room.sessions[playerID] = req.session
	room.Status = statusFor(room.registry.Len())
	room.emptySince = time.Time{}
	status := room.Status

	setup := protocol.Setup[PlayerID]{
		Self:   p.body(),
		Field:  protocol.Field{Width: room.settings.FieldWidth, Height: room.settings.FieldHeight},
		TickHz: room.settings.TickRate,
	}
	opponent, hasOpponent := room.registry.Opponent(playerID)
	if hasOpponent {
		ob := opponent.body()
		setup.Opponent = &ob
	}
	if room.shared != nil {
		setup.Shared = room.shared.body()
	}
	room.mu.Unlock()

	sl.Info("joined", "player", playerID, "name", p.Name, "role", p.Role, "status", status)
	room.sendTo(playerID, protocol.MsgSetup, setup)
	if hasOpponent {
		room.sendTo(opponent.ID, protocol.MsgOpponentJoined, protocol.OpponentJoined[PlayerID]{Opponent: p.body()})
	}
	req.reply <- nil

	if room.opts.OnJoin != nil {
		go room.opts.OnJoin(playerID)
	}
}

func (room *Room[RoomId, PlayerID]) handleSocketMessage(msg SocketMessage[PlayerID]) {
	if msg.Session != nil && !room.isCurrentSession(msg.ReferenceID, msg.Session) {
		room.Slogger.Debug("message from stale session", "func", "room.handleSocketMessage", "player", msg.ReferenceID)
		return
	}
	switch msg.Type {
	case Disconnect:
		room.handleLeave(msg.ReferenceID)
	case Message:
		room.handleInbound(msg.ReferenceID, msg.Message)
	}
}

func (room *Room[RoomId, PlayerID]) isCurrentSession(playerID PlayerID, session SocketSessioner[PlayerID]) bool {
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.sessions[playerID] == session
}

func (room *Room[RoomId, PlayerID]) handleInbound(playerID PlayerID, payload []byte) {
	sl := room.Slogger.With("func", "room.handleInbound", "player", playerID)
	env, err := room.codec.DecodeEnvelope(payload)
	if err != nil {
		sl.Debug("dropping malformed message", "err", err)
		return
	}

	room.mu.Lock()
	p, ok := room.registry.Get(playerID)
	if !ok {
		room.mu.Unlock()
		sl.Debug("dropping message", "type", env.T, "err", errUnknownParticipant)
		return
	}
	p.LastSeen = time.Now()
	tick := room.tick
	room.mu.Unlock()

	switch env.T {
	case protocol.MsgInput:
		in, err := protocol.DecodePayload[protocol.Input](room.codec, env)
		if err != nil {
			sl.Debug("dropping malformed input", "err", err)
			return
		}
		room.mu.Lock()
		_ = room.registry.QueueIntent(playerID, in)
		room.mu.Unlock()
	case protocol.MsgPing:
		room.sendTo(playerID, protocol.MsgPong, protocol.Pong{Tick: tick})
	default:
		sl.Debug("dropping unrecognised message", "type", env.T)
	}
}

// handleLeave removes the participant. Leaving an Active room ends the match: the other
// participant gets client_left and is then disconnected.
func (room *Room[RoomId, PlayerID]) handleLeave(playerID PlayerID) {
	sl := room.Slogger.With("func", "room.handleLeave", "player", playerID)

	room.mu.Lock()
	_, ok := room.registry.Leave(playerID)
	session := room.sessions[playerID]
	delete(room.sessions, playerID)
	if !ok {
		room.mu.Unlock()
		sl.Debug("ignoring leave", "err", errUnknownParticipant)
		return
	}
	wasActive := room.Status == Active
	remaining := room.registry.Participants()
	room.Status = statusFor(len(remaining))
	if len(remaining) == 0 {
		room.emptySince = time.Now()
	}
	status := room.Status
	room.mu.Unlock()

	sl.Info("left", "status", status)
	if session != nil {
		session.Close()
	}
	if room.opts.OnLeave != nil {
		go room.opts.OnLeave(playerID)
	}

	if wasActive {
		notice := protocol.ClientLeft[PlayerID]{ID: playerID}
		for _, other := range remaining {
			room.sendTo(other.ID, protocol.MsgClientLeft, notice)
		}
		room.dispose("participant left")
	}
}

// step runs one tick: queued intents, fixed-step simulation, read-back and broadcast. A tick that
// fires before a whole fixed step has elapsed broadcasts nothing, so State.Tick only advances with
// the simulation.
func (room *Room[RoomId, PlayerID]) step(elapsed time.Duration) {
	room.mu.Lock()
	if room.Status == Disposing {
		room.mu.Unlock()
		return
	}
	room.registry.ApplyIntents()
	if room.world.Advance(elapsed) == 0 {
		room.mu.Unlock()
		return
	}
	room.tick++
	room.registry.Sync()

	state := protocol.State[PlayerID]{
		Tick:    room.tick,
		Players: room.registry.Snapshot(),
	}
	if room.shared != nil {
		if room.shared.sync(room.world) {
			room.Slogger.Debug("shared object reset", "func", "room.step", "tick", room.tick)
		}
		state.Shared = room.shared.point()
	}
	empty := room.registry.Len() == 0
	room.mu.Unlock()

	if empty {
		return
	}
	room.broadcast(protocol.MsgState, state)
}

// CleanUp checks the simulation invariants, disconnects idle participants and disposes a room
// that has been empty for longer than the idle timeout.
func (room *Room[RoomId, PlayerID]) CleanUp(now time.Time) {
	sl := room.Slogger.With("func", "room.CleanUp")

	room.mu.RLock()
	if room.Status == Disposing {
		room.mu.RUnlock()
		return
	}
	violation := room.checkInvariants()
	var idle []PlayerID
	if timeout := room.settings.ParticipantIdleTimeout; timeout > 0 {
		for _, p := range room.registry.Participants() {
			if now.Sub(p.LastSeen) > timeout {
				idle = append(idle, p.ID)
			}
		}
	}
	expired := room.registry.Len() == 0 && !room.emptySince.IsZero() &&
		now.Sub(room.emptySince) >= room.settings.IdleTimeout
	room.mu.RUnlock()

	if violation != nil {
		room.fail(violation)
		return
	}
	if expired {
		sl.Info("empty room timed out", "idleTimeout", room.settings.IdleTimeout)
		room.dispose("idle timeout")
		return
	}
	for _, playerID := range idle {
		sl.Info("participant idle", "player", playerID, "timeout", room.settings.ParticipantIdleTimeout)
		room.sendTo(playerID, protocol.MsgIdle, protocol.Idle{After: room.settings.ParticipantIdleTimeout.String()})
		room.handleLeave(playerID)
		if room.isDisposed() {
			return
		}
	}
}

func (room *Room[RoomId, PlayerID]) checkInvariants() error {
	expected := room.registry.Len()
	if room.shared != nil {
		expected++
	}
	if room.world.DynamicCount() != expected || room.world.StaticCount() != 4 {
		return &InvariantViolation{
			Expected:      expected,
			Observed:      room.world.DynamicCount(),
			StaticWalls:   room.world.StaticCount(),
			ExpectedWalls: 4,
		}
	}
	return nil
}

// fail disposes this room after a best-effort notice to everyone still in it.
func (room *Room[RoomId, PlayerID]) fail(err error) {
	room.Slogger.Error("room failed", "func", "room.fail", "err", err)
	room.broadcast(protocol.MsgRoomClosed, protocol.RoomClosed{Reason: err.Error()})
	room.dispose("failure")
}

func (room *Room[RoomId, PlayerID]) dispose(reason string) {
	room.disposeOnce.Do(func() {
		sl := room.Slogger.With("func", "room.dispose")

		room.mu.Lock()
		room.Status = Disposing
		sessions := make([]SocketSessioner[PlayerID], 0, len(room.sessions))
		for _, s := range room.sessions {
			sessions = append(sessions, s)
		}
		room.sessions = make(map[PlayerID]SocketSessioner[PlayerID])
		for _, p := range room.registry.Participants() {
			room.registry.Leave(p.ID)
		}
		if room.shared != nil {
			room.world.RemoveBody(room.shared.Body)
		}
		room.world.Destroy()
		room.mu.Unlock()

		for _, s := range sessions {
			s.Close()
		}
		room.cancel()
		close(room.done)
		sl.Info("disposed", "reason", reason)

		if room.opts.OnDispose != nil {
			go room.opts.OnDispose(reason)
		}
	})
}

func (room *Room[RoomId, PlayerID]) isDisposed() bool {
	select {
	case <-room.done:
		return true
	default:
		return false
	}
}

func (room *Room[RoomId, PlayerID]) sendTo(playerID PlayerID, t string, payload any) {
	b, err := room.codec.Encode(t, payload)
	if err != nil {
		room.Slogger.Error("encode failed", "func", "room.sendTo", "type", t, "err", err)
		return
	}
	room.SendMessageToPlayer(playerID, b)
}

func (room *Room[RoomId, PlayerID]) broadcast(t string, payload any) {
	b, err := room.codec.Encode(t, payload)
	if err != nil {
		room.Slogger.Error("encode failed", "func", "room.broadcast", "type", t, "err", err)
		return
	}
	room.SendMessageToAllPlayers(b)
}

func (room *Room[RoomId, PlayerID]) SendMessageToPlayer(player PlayerID, message []byte) {
	sl := room.Slogger.With("func", "room.SendMessageToPlayer")
	room.mu.RLock()
	defer room.mu.RUnlock()

	ps, ok := room.sessions[player]
	if !ok || ps == nil {
		sl.Debug("player not found", "player", player)
		return
	}
	ps.Send(message)
}

func (room *Room[RoomId, PlayerID]) SendMessageToAllPlayers(message []byte) {
	room.mu.RLock()
	for _, p := range room.sessions {
		if p == nil {
			continue
		}
		p.Send(message)
	}
	room.mu.RUnlock()
}
