package puckroom

import (
	"time"

	"github.com/chilledoj/puckroom/physics"
	"github.com/chilledoj/puckroom/protocol"
)

// Role records arrival order. It only picks the spawn side.
type Role int8

const (
	FirstArrival Role = iota
	SecondArrival
)

func (r Role) String() string {
	if r == FirstArrival {
		return "first"
	}
	return "second"
}

type Participant[PlayerID comparable] struct {
	ID     PlayerID
	Name   string
	Role   Role
	Body   physics.BodyHandle
	X, Y   float64
	Radius float64

	JoinedAt time.Time
	LastSeen time.Time

	pending    protocol.Input
	hasPending bool
}

func (p *Participant[PlayerID]) body() protocol.Body[PlayerID] {
	return protocol.Body[PlayerID]{ID: p.ID, Name: p.Name, X: p.X, Y: p.Y, Size: p.Radius}
}

// Registry maps identities to participants and their bodies. It is not safe for concurrent
// use; the owning Room serialises access.
type Registry[PlayerID comparable] struct {
	world    *physics.World
	settings Settings
	capacity int
	order    []*Participant[PlayerID]
}

func NewRegistry[PlayerID comparable](world *physics.World, settings Settings, capacity int) *Registry[PlayerID] {
	return &Registry[PlayerID]{
		world:    world,
		settings: settings,
		capacity: capacity,
		order:    make([]*Participant[PlayerID], 0, capacity),
	}
}

// Join creates the participant and its body. The spawn side comes from the first free role so a
// participant arriving after a departure takes the vacated side.
func (reg *Registry[PlayerID]) Join(id PlayerID, now time.Time) (*Participant[PlayerID], error) {
	if _, ok := reg.Get(id); ok {
		return nil, ErrAlreadyJoined
	}
	if len(reg.order) >= reg.capacity {
		return nil, ErrRoomFull
	}

	role := FirstArrival
	for _, p := range reg.order {
		if p.Role == FirstArrival {
			role = SecondArrival
			break
		}
	}
	x, y := reg.spawn(role)

	p := &Participant[PlayerID]{
		ID:       id,
		Name:     randomName(),
		Role:     role,
		X:        x,
		Y:        y,
		Radius:   reg.settings.PlayerRadius,
		JoinedAt: now,
		LastSeen: now,
	}
	p.Body = reg.world.AddCircle(physics.CircleSpec{
		X:          x,
		Y:          y,
		Radius:     reg.settings.PlayerRadius,
		Mass:       reg.settings.PlayerMass,
		Elasticity: reg.settings.Elasticity,
		Friction:   reg.settings.Friction,
	})
	reg.order = append(reg.order, p)
	return p, nil
}

func (reg *Registry[PlayerID]) spawn(role Role) (float64, float64) {
	y := reg.settings.FieldHeight / 2
	if role == FirstArrival {
		return reg.settings.SpawnOffset, y
	}
	return reg.settings.FieldWidth - reg.settings.SpawnOffset, y
}

// Leave removes the participant and its body. Unknown identities are ignored.
func (reg *Registry[PlayerID]) Leave(id PlayerID) (*Participant[PlayerID], bool) {
	for i, p := range reg.order {
		if p.ID != id {
			continue
		}
		reg.world.RemoveBody(p.Body)
		reg.order = append(reg.order[:i], reg.order[i+1:]...)
		return p, true
	}
	return nil, false
}

func (reg *Registry[PlayerID]) Get(id PlayerID) (*Participant[PlayerID], bool) {
	for _, p := range reg.order {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Opponent returns any participant other than id.
func (reg *Registry[PlayerID]) Opponent(id PlayerID) (*Participant[PlayerID], bool) {
	for _, p := range reg.order {
		if p.ID != id {
			return p, true
		}
	}
	return nil, false
}

func (reg *Registry[PlayerID]) Len() int {
	return len(reg.order)
}

func (reg *Registry[PlayerID]) Participants() []*Participant[PlayerID] {
	out := make([]*Participant[PlayerID], len(reg.order))
	copy(out, reg.order)
	return out
}

// QueueIntent stores a movement intent for the next tick. Additive intents accumulate, an
// absolute intent replaces the previous one.
func (reg *Registry[PlayerID]) QueueIntent(id PlayerID, in protocol.Input) error {
	p, ok := reg.Get(id)
	if !ok {
		return errUnknownParticipant
	}
	in = in.Normalize()
	if reg.settings.VelocityMode == Absolute || !p.hasPending {
		p.pending = in
	} else {
		p.pending.Dx += in.Dx
		p.pending.Dy += in.Dy
	}
	p.hasPending = true
	return nil
}

// ApplyIntents pushes queued intents into the world in join order.
func (reg *Registry[PlayerID]) ApplyIntents() {
	speed := reg.settings.IntentSpeed
	for _, p := range reg.order {
		if !p.hasPending {
			continue
		}
		dx, dy := p.pending.Dx*speed, p.pending.Dy*speed
		if reg.settings.VelocityMode == Absolute {
			reg.world.SetVelocity(p.Body, dx, dy)
		} else {
			reg.world.AddVelocity(p.Body, dx, dy)
		}
		p.pending = protocol.Input{}
		p.hasPending = false
	}
}

// Sync copies body positions from the world into the participant records.
func (reg *Registry[PlayerID]) Sync() {
	for _, p := range reg.order {
		if pos, ok := reg.world.Position(p.Body); ok {
			p.X, p.Y = pos.X, pos.Y
		}
	}
}

// Snapshot lists positions in join order.
func (reg *Registry[PlayerID]) Snapshot() []protocol.Position[PlayerID] {
	out := make([]protocol.Position[PlayerID], 0, len(reg.order))
	for _, p := range reg.order {
		out = append(out, protocol.Position[PlayerID]{ID: p.ID, X: p.X, Y: p.Y})
	}
	return out
}
