package monitor

import (
	"errors"
	"time"

	"github.com/fitsync/billing/internal/config"
)

var ErrInvalidConfig = errors.New("invalid_monitor_config")

// Config controls the reconciliation monitor. Enabled is the master-instance
// flag: exactly one deployment replica should run with it set, otherwise
// instances duplicate gateway calls and race on the same rows.
type Config struct {
	Enabled            bool
	Interval           time.Duration
	MaxAPICallsPerTick int
	APICallDelay       time.Duration
	Window             time.Duration
	StaleAfter         time.Duration
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:            cfg.Monitor.Enabled,
		Interval:           cfg.Monitor.Interval,
		MaxAPICallsPerTick: cfg.Monitor.MaxAPICallsPerTick,
		APICallDelay:       cfg.Monitor.APICallDelay,
		Window:             cfg.Monitor.Window,
		StaleAfter:         cfg.Monitor.StaleAfter,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.MaxAPICallsPerTick <= 0 {
		c.MaxAPICallsPerTick = 15
	}
	if c.APICallDelay < 0 {
		c.APICallDelay = 0
	}
	if c.Window <= 0 {
		c.Window = 10 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 48 * time.Hour
	}
	return c
}
