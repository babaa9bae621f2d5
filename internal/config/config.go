// Package config loads the controller configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full controller configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	Broker         string `env:"MQTT_BROKER" envDefault:"tcp://localhost:1883"`
	ClientIDPrefix string `env:"MQTT_CLIENT_PREFIX" envDefault:"GameServer"`
	TopicRoot      string `env:"TOPIC_ROOT" envDefault:"gambit"`
	DryRun         bool   `env:"DRY_RUN" envDefault:"false"`

	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":5180"`
	ClientOrigin   string `env:"CLIENT_ORIGIN" envDefault:"http://localhost:5173"`
	DBPath         string `env:"DB_PATH" envDefault:"./data/gambit.db"`
	BoardFile      string `env:"BOARD_FILE"`
	AdminSecret    string `env:"ADMIN_JWT_SECRET"`
	AdminTokenDays int    `env:"ADMIN_TOKEN_DAYS" envDefault:"14"`

	Timing Timing
}

// Timing holds every wall-clock threshold used by the phase machine.
type Timing struct {
	Tick              time.Duration `env:"TICK" envDefault:"100ms"`
	AckTimeout        time.Duration `env:"ACK_TIMEOUT" envDefault:"500ms"`
	Debounce          time.Duration `env:"DEBOUNCE" envDefault:"1s"`
	Announce          time.Duration `env:"ANNOUNCE" envDefault:"3s"`
	Countdown         time.Duration `env:"COUNTDOWN" envDefault:"3s"`
	InitiativeHold    time.Duration `env:"INITIATIVE_HOLD" envDefault:"3s"`
	TurnResultHold    time.Duration `env:"TURN_RESULT_HOLD" envDefault:"3s"`
	ResultHold        time.Duration `env:"RESULT_HOLD" envDefault:"3s"`
	GameOverHold      time.Duration `env:"GAME_OVER_HOLD" envDefault:"10s"`
	MashLimit         time.Duration `env:"MASH_LIMIT" envDefault:"10s"`
	ReactionLimit     time.Duration `env:"REACTION_LIMIT" envDefault:"3s"`
	TimeSlack         time.Duration `env:"TIME_SLACK" envDefault:"3s"`
	SignalMinDelay    time.Duration `env:"SIGNAL_MIN_DELAY" envDefault:"2s"`
	SignalMaxDelay    time.Duration `env:"SIGNAL_MAX_DELAY" envDefault:"4s"`
	RefreshGrace      time.Duration `env:"REFRESH_GRACE" envDefault:"2s"`
	ReconnectWindow   time.Duration `env:"RECONNECT_WINDOW" envDefault:"30s"`
	LowPlayersTimeout time.Duration `env:"LOW_PLAYERS_TIMEOUT" envDefault:"30s"`
	MinConnected      int           `env:"MIN_CONNECTED" envDefault:"2"`
	TimeTargetMin     int           `env:"TIME_TARGET_MIN" envDefault:"3"`
	TimeTargetMax     int           `env:"TIME_TARGET_MAX" envDefault:"8"`
}

// Load reads an optional .env file, then parses the environment.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Timing.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultTiming returns the stock thresholds (the envDefault values).
func DefaultTiming() Timing {
	var t Timing
	// Parsing an empty environment only applies defaults.
	_ = env.ParseWithOptions(&t, env.Options{Environment: map[string]string{}})
	return t
}

// Validate rejects thresholds the phase machine cannot run with.
func (t Timing) Validate() error {
	if t.Tick <= 0 {
		return fmt.Errorf("TICK must be positive, got %v", t.Tick)
	}
	if t.SignalMaxDelay < t.SignalMinDelay {
		return fmt.Errorf("SIGNAL_MAX_DELAY %v below SIGNAL_MIN_DELAY %v", t.SignalMaxDelay, t.SignalMinDelay)
	}
	if t.TimeTargetMin < 1 || t.TimeTargetMax < t.TimeTargetMin {
		return fmt.Errorf("invalid TIME target range %d..%d", t.TimeTargetMin, t.TimeTargetMax)
	}
	if t.MinConnected < 0 {
		return fmt.Errorf("MIN_CONNECTED must not be negative, got %d", t.MinConnected)
	}
	return nil
}
