package resync

import (
	"time"

	appconfig "github.com/lilasstudio/crmlink/internal/config"
)

// Config controls the bulk resync runner.
type Config struct {
	RunInterval       time.Duration
	BatchSize         int
	MaxInFlight       int
	ProfileTimeout    time.Duration
	LockTTL           time.Duration
	EnableTimerLoop   bool
	OnlyUnresolved    bool
	MaxProfilesPerRun int
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Hour,
		BatchSize:      20,
		MaxInFlight:    4,
		ProfileTimeout: 30 * time.Second,
		LockTTL:        30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = defaults.MaxInFlight
	}
	if c.ProfileTimeout <= 0 {
		c.ProfileTimeout = defaults.ProfileTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

// FromAppConfig maps the env-driven application config onto the runner
// config.
func FromAppConfig(cfg appconfig.Config) Config {
	return Config{
		RunInterval:       time.Duration(cfg.Resync.IntervalSeconds) * time.Second,
		BatchSize:         cfg.Resync.BatchSize,
		MaxInFlight:       cfg.Resync.MaxInFlight,
		LockTTL:           time.Duration(cfg.Resync.LockTTLSeconds) * time.Second,
		EnableTimerLoop:   cfg.Resync.EnableTimerLoop,
		OnlyUnresolved:    cfg.Resync.OnlyUnresolved,
		MaxProfilesPerRun: cfg.Resync.MaxProfilesPerRun,
	}.withDefaults()
}
