// Package physics adapts a Chipmunk2D space into the small surface a Room needs:
// circles that move, four static walls that never do, and a fixed-step clock.
package physics

import (
	"math"
	"time"

	"github.com/jakecoffman/cp"
)

// BodyHandle identifies a dynamic body inside a World. The zero handle is never issued.
type BodyHandle uint64

const (
	DefaultStep     = time.Second / 60
	MaxCatchUpSteps = 5
)

type Config struct {
	Width, Height float64
	WallThickness float64

	// Step is the fixed simulation increment.
	Step time.Duration
	// Damping is the fraction of velocity a body keeps after one second. 1 means no damping.
	Damping float64
	// MaxSpeed clamps every dynamic body, in units per second. 0 disables the clamp.
	MaxSpeed float64
}

type CircleSpec struct {
	X, Y       float64
	Radius     float64
	Mass       float64
	Elasticity float64
	Friction   float64
}

type Vec struct {
	X, Y float64
}

type entry struct {
	body  *cp.Body
	shape *cp.Shape
}

type World struct {
	cfg   Config
	space *cp.Space

	bodies map[BodyHandle]entry
	next   BodyHandle
	walls  []*cp.Shape

	acc       time.Duration
	steps     uint64
	destroyed bool
}

func New(cfg Config) *World {
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.Damping <= 0 || cfg.Damping > 1 {
		cfg.Damping = 1
	}

	space := cp.NewSpace()
	space.SetGravity(cp.Vector{})
	space.SetDamping(cfg.Damping)

	w := &World{
		cfg:    cfg,
		space:  space,
		bodies: make(map[BodyHandle]entry),
	}
	w.buildWalls()
	return w
}

// buildWalls surrounds [0,Width]x[0,Height] with four boxes lying entirely outside of it,
// in the order top, bottom, left, right.
func (w *World) buildWalls() {
	t := w.cfg.WallThickness
	width, height := w.cfg.Width, w.cfg.Height
	boxes := []cp.BB{
		{L: -t, B: -t, R: width + t, T: 0},
		{L: -t, B: height, R: width + t, T: height + t},
		{L: -t, B: 0, R: 0, T: height},
		{L: width, B: 0, R: width + t, T: height},
	}
	for _, bb := range boxes {
		shape := cp.NewBox2(w.space.StaticBody, bb, 0)
		shape.SetElasticity(1)
		shape.SetFriction(0)
		w.walls = append(w.walls, w.space.AddShape(shape))
	}
}

func (w *World) Config() Config {
	return w.cfg
}

// AddCircle creates a dynamic, non-rotating circle and returns its handle.
func (w *World) AddCircle(spec CircleSpec) BodyHandle {
	if w.destroyed {
		return 0
	}
	mass := spec.Mass
	if mass <= 0 {
		mass = 1
	}
	b := cp.NewBody(mass, cp.INFINITY)
	b.SetPosition(cp.Vector{X: spec.X, Y: spec.Y})
	if w.cfg.MaxSpeed > 0 {
		maxSpeed := w.cfg.MaxSpeed
		b.SetVelocityUpdateFunc(func(body *cp.Body, gravity cp.Vector, damping float64, dt float64) {
			cp.BodyUpdateVelocity(body, gravity, damping, dt)
			body.SetVelocityVector(body.Velocity().Clamp(maxSpeed))
		})
	}
	w.space.AddBody(b)

	shape := cp.NewCircle(b, spec.Radius, cp.Vector{})
	shape.SetElasticity(spec.Elasticity)
	shape.SetFriction(spec.Friction)
	w.space.AddShape(shape)

	w.next++
	w.bodies[w.next] = entry{body: b, shape: shape}
	return w.next
}

// RemoveBody is a no-op for handles that are unknown or already removed.
func (w *World) RemoveBody(h BodyHandle) {
	b, ok := w.bodies[h]
	if !ok {
		return
	}
	delete(w.bodies, h)
	if w.destroyed {
		return
	}
	w.space.RemoveShape(b.shape)
	w.space.RemoveBody(b.body)
}

func (w *World) Contains(h BodyHandle) bool {
	_, ok := w.bodies[h]
	return ok
}

func (w *World) SetVelocity(h BodyHandle, vx, vy float64) {
	b, ok := w.bodies[h]
	if !ok {
		return
	}
	b.body.SetVelocityVector(w.clamp(cp.Vector{X: vx, Y: vy}))
}

func (w *World) AddVelocity(h BodyHandle, dvx, dvy float64) {
	b, ok := w.bodies[h]
	if !ok {
		return
	}
	v := b.body.Velocity().Add(cp.Vector{X: dvx, Y: dvy})
	b.body.SetVelocityVector(w.clamp(v))
}

func (w *World) clamp(v cp.Vector) cp.Vector {
	if w.cfg.MaxSpeed > 0 {
		return v.Clamp(w.cfg.MaxSpeed)
	}
	return v
}

func (w *World) Velocity(h BodyHandle) (Vec, bool) {
	b, ok := w.bodies[h]
	if !ok {
		return Vec{}, false
	}
	v := b.body.Velocity()
	return Vec{X: v.X, Y: v.Y}, true
}

func (w *World) Position(h BodyHandle) (Vec, bool) {
	b, ok := w.bodies[h]
	if !ok {
		return Vec{}, false
	}
	p := b.body.Position()
	return Vec{X: p.X, Y: p.Y}, true
}

// Teleport moves a body and zeroes its velocity.
func (w *World) Teleport(h BodyHandle, x, y float64) {
	b, ok := w.bodies[h]
	if !ok || w.destroyed {
		return
	}
	b.body.SetPosition(cp.Vector{X: x, Y: y})
	b.body.SetVelocity(0, 0)
}

// InBounds reports whether the point lies inside the wall-enclosed field, widened by margin.
func (w *World) InBounds(p Vec, margin float64) bool {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return false
	}
	return p.X >= -margin && p.X <= w.cfg.Width+margin &&
		p.Y >= -margin && p.Y <= w.cfg.Height+margin
}

// Step advances every dynamic body by exactly one fixed increment.
func (w *World) Step() {
	if w.destroyed {
		return
	}
	w.space.Step(w.cfg.Step.Seconds())
	w.steps++
}

// Advance adds elapsed wall time to the accumulator and runs as many fixed steps as fit,
// at most MaxCatchUpSteps. Time beyond the cap is dropped rather than replayed.
func (w *World) Advance(elapsed time.Duration) int {
	if w.destroyed || elapsed <= 0 {
		return 0
	}
	w.acc += elapsed
	n := 0
	for w.acc >= w.cfg.Step && n < MaxCatchUpSteps {
		w.Step()
		w.acc -= w.cfg.Step
		n++
	}
	if w.acc >= w.cfg.Step {
		w.acc = 0
	}
	return n
}

func (w *World) Steps() uint64 {
	return w.steps
}

func (w *World) DynamicCount() int {
	return len(w.bodies)
}

func (w *World) StaticCount() int {
	return len(w.walls)
}

// Destroy releases the space. Every handle reads as unknown afterwards and mutations are no-ops.
func (w *World) Destroy() {
	if w.destroyed {
		return
	}
	w.destroyed = true
	w.bodies = make(map[BodyHandle]entry)
	w.walls = nil
	w.space = nil
}
