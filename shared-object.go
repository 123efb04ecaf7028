package puckroom

import (
	"github.com/chilledoj/puckroom/physics"
	"github.com/chilledoj/puckroom/protocol"
)

// SharedObject is the puck: one body that no participant owns.
type SharedObject struct {
	Body   physics.BodyHandle
	X, Y   float64
	Radius float64
}

func newSharedObject(world *physics.World, s Settings) *SharedObject {
	x, y := s.FieldWidth/2, s.FieldHeight/2
	return &SharedObject{
		Body: world.AddCircle(physics.CircleSpec{
			X:          x,
			Y:          y,
			Radius:     s.SharedObjectRadius,
			Mass:       s.SharedObjectMass,
			Elasticity: s.Elasticity,
			Friction:   s.Friction,
		}),
		X:      x,
		Y:      y,
		Radius: s.SharedObjectRadius,
	}
}

// sync reads the body position and puts the puck back at the centre, at rest, when it has left
// the walled field. It reports whether a reset happened. Participants are left alone.
func (so *SharedObject) sync(world *physics.World) bool {
	pos, ok := world.Position(so.Body)
	if !ok {
		return false
	}
	cfg := world.Config()
	if !world.InBounds(pos, 0) {
		world.Teleport(so.Body, cfg.Width/2, cfg.Height/2)
		so.X, so.Y = cfg.Width/2, cfg.Height/2
		return true
	}
	so.X, so.Y = pos.X, pos.Y
	return false
}

func (so *SharedObject) point() *protocol.Point {
	return &protocol.Point{X: so.X, Y: so.Y}
}

func (so *SharedObject) body() *protocol.SharedBody {
	return &protocol.SharedBody{X: so.X, Y: so.Y, Size: so.Radius}
}
