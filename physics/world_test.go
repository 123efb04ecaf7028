package physics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Width:         800,
		Height:        600,
		WallThickness: 100,
		Step:          DefaultStep,
		Damping:       1,
		MaxSpeed:      600,
	}
}

func puck(x, y float64) CircleSpec {
	return CircleSpec{X: x, Y: y, Radius: 25, Mass: 1, Elasticity: 0.9, Friction: 0.2}
}

func TestNew(t *testing.T) {
	t.Run("should build four static walls and no dynamic bodies", func(t *testing.T) {
		w := New(testConfig())
		assert.Equal(t, 4, w.StaticCount())
		assert.Equal(t, 0, w.DynamicCount())
	})
	t.Run("should fall back to the default step", func(t *testing.T) {
		w := New(Config{Width: 10, Height: 10, WallThickness: 5})
		assert.Equal(t, DefaultStep, w.Config().Step)
		assert.Equal(t, 1.0, w.Config().Damping)
	})
}

func TestWorld_AddRemove(t *testing.T) {
	t.Run("should place the body exactly where it was asked for", func(t *testing.T) {
		w := New(testConfig())
		h := w.AddCircle(puck(100, 300))
		require.NotZero(t, h)

		p, ok := w.Position(h)
		require.True(t, ok)
		assert.Equal(t, Vec{X: 100, Y: 300}, p)
		assert.Equal(t, 1, w.DynamicCount())
	})
	t.Run("should treat a repeated remove as a no-op", func(t *testing.T) {
		w := New(testConfig())
		a := w.AddCircle(puck(100, 300))
		b := w.AddCircle(puck(700, 300))

		w.RemoveBody(a)
		w.RemoveBody(a)
		w.RemoveBody(BodyHandle(999))

		assert.Equal(t, 1, w.DynamicCount())
		assert.False(t, w.Contains(a))
		assert.True(t, w.Contains(b))
		_, ok := w.Position(a)
		assert.False(t, ok)
	})
	t.Run("should ignore velocity changes on unknown handles", func(t *testing.T) {
		w := New(testConfig())
		w.SetVelocity(BodyHandle(42), 1, 1)
		w.AddVelocity(BodyHandle(42), 1, 1)
		_, ok := w.Velocity(BodyHandle(42))
		assert.False(t, ok)
	})
}

func TestWorld_Step(t *testing.T) {
	t.Run("should move a body along its velocity without gravity", func(t *testing.T) {
		w := New(testConfig())
		h := w.AddCircle(puck(100, 300))
		w.SetVelocity(h, 300, 0)

		w.Step()

		p, _ := w.Position(h)
		assert.Greater(t, p.X, 100.0)
		assert.InDelta(t, 300.0, p.Y, 1e-9)
		assert.Equal(t, uint64(1), w.Steps())
	})
	t.Run("should keep a fast body inside the walls", func(t *testing.T) {
		w := New(testConfig())
		h := w.AddCircle(puck(400, 300))
		w.SetVelocity(h, 600, 450)

		for i := 0; i < 600; i++ {
			w.Step()
			p, _ := w.Position(h)
			require.True(t, w.InBounds(p, 1), "step %d escaped to %+v", i, p)
		}
	})
	t.Run("should clamp velocity to the configured maximum", func(t *testing.T) {
		w := New(testConfig())
		h := w.AddCircle(puck(400, 300))
		for i := 0; i < 10; i++ {
			w.AddVelocity(h, 300, 0)
		}
		v, _ := w.Velocity(h)
		assert.LessOrEqual(t, math.Hypot(v.X, v.Y), 600.0+1e-9)

		w.Step()
		v, _ = w.Velocity(h)
		assert.LessOrEqual(t, math.Hypot(v.X, v.Y), 600.0+1e-9)
	})
	t.Run("should slow bodies down when damping is configured", func(t *testing.T) {
		cfg := testConfig()
		cfg.Damping = 0.3
		w := New(cfg)
		h := w.AddCircle(puck(400, 300))
		w.SetVelocity(h, 200, 0)

		w.Step()

		v, _ := w.Velocity(h)
		assert.Less(t, v.X, 200.0)
		assert.Greater(t, v.X, 0.0)
	})
}

func TestWorld_Determinism(t *testing.T) {
	run := func() []Vec {
		w := New(testConfig())
		a := w.AddCircle(puck(100, 300))
		b := w.AddCircle(puck(700, 300))
		c := w.AddCircle(CircleSpec{X: 400, Y: 300, Radius: 15, Mass: 0.5, Elasticity: 0.9, Friction: 0.2})

		out := make([]Vec, 0, 3*120)
		for i := 0; i < 120; i++ {
			if i%10 == 0 {
				w.AddVelocity(a, 300, 20)
				w.AddVelocity(b, -300, -20)
			}
			w.Step()
			for _, h := range []BodyHandle{a, b, c} {
				p, _ := w.Position(h)
				out = append(out, p)
			}
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestWorld_Advance(t *testing.T) {
	cfg := testConfig()
	cfg.Step = 10 * time.Millisecond

	t.Run("should run whole steps and carry the remainder", func(t *testing.T) {
		w := New(cfg)
		assert.Equal(t, 2, w.Advance(25*time.Millisecond))
		assert.Equal(t, 1, w.Advance(5*time.Millisecond))
		assert.Equal(t, 0, w.Advance(0))
		assert.Equal(t, uint64(3), w.Steps())
	})
	t.Run("should cap catch-up and drop the surplus", func(t *testing.T) {
		w := New(cfg)
		assert.Equal(t, MaxCatchUpSteps, w.Advance(time.Second))
		assert.Equal(t, 0, w.Advance(5*time.Millisecond))
	})
}

func TestWorld_Teleport(t *testing.T) {
	w := New(testConfig())
	h := w.AddCircle(puck(100, 100))
	w.SetVelocity(h, 200, 200)

	w.Teleport(h, 400, 300)

	p, _ := w.Position(h)
	v, _ := w.Velocity(h)
	assert.Equal(t, Vec{X: 400, Y: 300}, p)
	assert.Equal(t, Vec{}, v)

	w.Step()
	p, _ = w.Position(h)
	assert.Equal(t, Vec{X: 400, Y: 300}, p)
}

func TestWorld_InBounds(t *testing.T) {
	w := New(testConfig())
	assert.True(t, w.InBounds(Vec{X: 0, Y: 0}, 0))
	assert.True(t, w.InBounds(Vec{X: 800, Y: 600}, 0))
	assert.False(t, w.InBounds(Vec{X: -1, Y: 300}, 0))
	assert.True(t, w.InBounds(Vec{X: -1, Y: 300}, 5))
	assert.False(t, w.InBounds(Vec{X: math.NaN(), Y: 300}, 5))
}

func TestWorld_Destroy(t *testing.T) {
	w := New(testConfig())
	h := w.AddCircle(puck(100, 100))

	w.Destroy()
	w.Destroy()

	assert.Equal(t, 0, w.DynamicCount())
	assert.Equal(t, 0, w.StaticCount())
	assert.Zero(t, w.AddCircle(puck(1, 1)))
	w.RemoveBody(h)
	w.Teleport(h, 1, 1)
	w.Step()
	assert.Equal(t, uint64(0), w.Steps())
}
