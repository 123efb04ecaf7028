// Package config loads server settings from defaults, an optional .env file, an optional config
// file and PUCKROOM_ environment variables, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/chilledoj/puckroom"
	"github.com/chilledoj/puckroom/protocol"
)

const EnvPrefix = "PUCKROOM"

type Config struct {
	Addr    string        `mapstructure:"addr"`
	Codec   string        `mapstructure:"codec"`
	Log     LogConfig     `mapstructure:"log"`
	Room    RoomConfig    `mapstructure:"room"`
	Session SessionConfig `mapstructure:"session"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type RoomConfig struct {
	TickRate               int           `mapstructure:"tick_rate"`
	FieldWidth             float64       `mapstructure:"field_width"`
	FieldHeight            float64       `mapstructure:"field_height"`
	WallThickness          float64       `mapstructure:"wall_thickness"`
	PlayerRadius           float64       `mapstructure:"player_radius"`
	PlayerMass             float64       `mapstructure:"player_mass"`
	SpawnOffset            float64       `mapstructure:"spawn_offset"`
	SharedObject           bool          `mapstructure:"shared_object"`
	SharedObjectRadius     float64       `mapstructure:"shared_object_radius"`
	SharedObjectMass       float64       `mapstructure:"shared_object_mass"`
	IntentSpeed            float64       `mapstructure:"intent_speed"`
	MaxSpeed               float64       `mapstructure:"max_speed"`
	VelocityMode           string        `mapstructure:"velocity_mode"`
	Damping                float64       `mapstructure:"damping"`
	Elasticity             float64       `mapstructure:"elasticity"`
	Friction               float64       `mapstructure:"friction"`
	IdleTimeout            time.Duration `mapstructure:"idle_timeout"`
	ParticipantIdleTimeout time.Duration `mapstructure:"participant_idle_timeout"`
	CleanupPeriod          time.Duration `mapstructure:"cleanup_period"`
}

type SessionConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	QueueSize    int           `mapstructure:"queue_size"`
}

func setDefaults(v *viper.Viper) {
	rs := puckroom.DefaultSettings()
	so := puckroom.DefaultSessionOptions()

	v.SetDefault("addr", ":10101")
	v.SetDefault("codec", "json")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("room.tick_rate", rs.TickRate)
	v.SetDefault("room.field_width", rs.FieldWidth)
	v.SetDefault("room.field_height", rs.FieldHeight)
	v.SetDefault("room.wall_thickness", rs.WallThickness)
	v.SetDefault("room.player_radius", rs.PlayerRadius)
	v.SetDefault("room.player_mass", rs.PlayerMass)
	v.SetDefault("room.spawn_offset", rs.SpawnOffset)
	v.SetDefault("room.shared_object", rs.SharedObject)
	v.SetDefault("room.shared_object_radius", rs.SharedObjectRadius)
	v.SetDefault("room.shared_object_mass", rs.SharedObjectMass)
	v.SetDefault("room.intent_speed", rs.IntentSpeed)
	v.SetDefault("room.max_speed", rs.MaxSpeed)
	v.SetDefault("room.velocity_mode", string(rs.VelocityMode))
	v.SetDefault("room.damping", rs.Damping)
	v.SetDefault("room.elasticity", rs.Elasticity)
	v.SetDefault("room.friction", rs.Friction)
	v.SetDefault("room.idle_timeout", rs.IdleTimeout)
	v.SetDefault("room.participant_idle_timeout", rs.ParticipantIdleTimeout)
	v.SetDefault("room.cleanup_period", rs.CleanupPeriod)

	v.SetDefault("session.write_timeout", so.WriteTimeout)
	v.SetDefault("session.ping_period", so.PingPeriod)
	v.SetDefault("session.queue_size", so.QueueSize)
}

// Load reads the configuration. A missing .env file is not an error; a missing config file at an
// explicit path is. Pass an empty path to skip the config file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if _, err := cfg.ProtocolCodec(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) RoomSettings() puckroom.Settings {
	r := c.Room
	return puckroom.Settings{
		TickRate:               r.TickRate,
		FieldWidth:             r.FieldWidth,
		FieldHeight:            r.FieldHeight,
		WallThickness:          r.WallThickness,
		PlayerRadius:           r.PlayerRadius,
		PlayerMass:             r.PlayerMass,
		SpawnOffset:            r.SpawnOffset,
		SharedObject:           r.SharedObject,
		SharedObjectRadius:     r.SharedObjectRadius,
		SharedObjectMass:       r.SharedObjectMass,
		IntentSpeed:            r.IntentSpeed,
		MaxSpeed:               r.MaxSpeed,
		VelocityMode:           puckroom.VelocityMode(strings.ToLower(r.VelocityMode)),
		Damping:                r.Damping,
		Elasticity:             r.Elasticity,
		Friction:               r.Friction,
		IdleTimeout:            r.IdleTimeout,
		ParticipantIdleTimeout: r.ParticipantIdleTimeout,
		CleanupPeriod:          r.CleanupPeriod,
	}
}

func (c Config) SessionOptions() puckroom.SessionOptions {
	return puckroom.SessionOptions{
		WriteTimeout: c.Session.WriteTimeout,
		PingPeriod:   c.Session.PingPeriod,
		QueueSize:    c.Session.QueueSize,
	}
}

func (c Config) ProtocolCodec() (protocol.Codec, error) {
	return protocol.CodecByName(c.Codec)
}
