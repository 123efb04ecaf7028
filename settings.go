package puckroom

import (
	"time"

	"github.com/chilledoj/puckroom/physics"
)

const Capacity = 2

type VelocityMode string

const (
	// Additive adds direction*IntentSpeed to the current velocity on every intent.
	Additive VelocityMode = "additive"
	// Absolute replaces the velocity with direction*IntentSpeed.
	Absolute VelocityMode = "absolute"
)

// Settings are the per-room simulation and lifecycle constants. They are fixed when the room
// is created.
type Settings struct {
	TickRate int

	FieldWidth    float64
	FieldHeight   float64
	WallThickness float64

	PlayerRadius float64
	PlayerMass   float64
	SpawnOffset  float64

	SharedObject       bool
	SharedObjectRadius float64
	SharedObjectMass   float64

	IntentSpeed  float64
	MaxSpeed     float64
	VelocityMode VelocityMode
	Damping      float64
	Elasticity   float64
	Friction     float64

	IdleTimeout            time.Duration
	ParticipantIdleTimeout time.Duration
	CleanupPeriod          time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		TickRate:               60,
		FieldWidth:             800,
		FieldHeight:            600,
		WallThickness:          100,
		PlayerRadius:           25,
		PlayerMass:             1,
		SpawnOffset:            100,
		SharedObject:           true,
		SharedObjectRadius:     15,
		SharedObjectMass:       0.5,
		IntentSpeed:            300,
		MaxSpeed:               600,
		VelocityMode:           Additive,
		Damping:                0.3,
		Elasticity:             0.9,
		Friction:               0.2,
		IdleTimeout:            30 * time.Second,
		ParticipantIdleTimeout: 60 * time.Second,
		CleanupPeriod:          5 * time.Second,
	}
}

// withDefaults fills zero values from DefaultSettings. Booleans and ParticipantIdleTimeout are
// taken as given.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.TickRate <= 0 {
		s.TickRate = d.TickRate
	}
	if s.FieldWidth <= 0 {
		s.FieldWidth = d.FieldWidth
	}
	if s.FieldHeight <= 0 {
		s.FieldHeight = d.FieldHeight
	}
	if s.WallThickness <= 0 {
		s.WallThickness = d.WallThickness
	}
	if s.PlayerRadius <= 0 {
		s.PlayerRadius = d.PlayerRadius
	}
	if s.PlayerMass <= 0 {
		s.PlayerMass = d.PlayerMass
	}
	if s.SpawnOffset <= 0 {
		s.SpawnOffset = d.SpawnOffset
	}
	if s.SharedObjectRadius <= 0 {
		s.SharedObjectRadius = d.SharedObjectRadius
	}
	if s.SharedObjectMass <= 0 {
		s.SharedObjectMass = d.SharedObjectMass
	}
	if s.IntentSpeed <= 0 {
		s.IntentSpeed = d.IntentSpeed
	}
	if s.MaxSpeed < 0 {
		s.MaxSpeed = 0
	}
	if s.VelocityMode != Absolute {
		s.VelocityMode = Additive
	}
	if s.Damping <= 0 || s.Damping > 1 {
		s.Damping = d.Damping
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = d.IdleTimeout
	}
	if s.CleanupPeriod <= 0 {
		s.CleanupPeriod = d.CleanupPeriod
	}
	return s
}

func (s Settings) tickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}

func (s Settings) worldConfig() physics.Config {
	return physics.Config{
		Width:         s.FieldWidth,
		Height:        s.FieldHeight,
		WallThickness: s.WallThickness,
		Step:          s.tickInterval(),
		Damping:       s.Damping,
		MaxSpeed:      s.MaxSpeed,
	}
}
