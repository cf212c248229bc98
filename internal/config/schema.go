package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the top-level YAML structure.
type Config struct {
	Version     string      `yaml:"version" validate:"required"`
	Engine      EngineConf  `yaml:"engine"`
	Storage     StorageConf `yaml:"storage"`
	Preferences Preferences `yaml:"preferences"`
	HTTP        HTTPConf    `yaml:"http"`
	Log         LogConf     `yaml:"log"`
}

// EngineConf holds scheduler pacing and queue settings.
type EngineConf struct {
	Interval       time.Duration `yaml:"interval" validate:"gte=1ms"`
	SettleDelay    time.Duration `yaml:"settle_delay" validate:"gte=0"`
	PostRunDelay   time.Duration `yaml:"post_run_delay" validate:"gte=0"`
	PassQueueDepth int           `yaml:"pass_queue_depth" validate:"gte=1,lte=64"`
	BusBuffer      int           `yaml:"bus_buffer" validate:"gte=1"`
	LogKeep        int           `yaml:"log_keep" validate:"gte=0"`
}

// StorageConf selects where the rule document is kept.
type StorageConf struct {
	Backend string `yaml:"backend" validate:"oneof=memory sqlite badger"`
	Path    string `yaml:"path"`
	Key     string `yaml:"key" validate:"required"`
}

// Preferences are the user settings the engine reacts to. A change to
// Location restarts the location service.
type Preferences struct {
	Location string `yaml:"location" validate:"oneof=passive network gps"`
	Units    string `yaml:"units" validate:"oneof=mg/dl mmol"`
}

type HTTPConf struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
}

type LogConf struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// SlogLevel maps Level onto slog.
func (c LogConf) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	e := &cfg.Engine
	if e.Interval == 0 {
		e.Interval = time.Minute
	}
	if e.SettleDelay == 0 {
		e.SettleDelay = 3 * time.Second
	}
	if e.PostRunDelay == 0 {
		e.PostRunDelay = 1100 * time.Millisecond
	}
	if e.PassQueueDepth == 0 {
		e.PassQueueDepth = 1
	}
	if e.BusBuffer == 0 {
		e.BusBuffer = 64
	}
	if e.LogKeep == 0 {
		e.LogKeep = 500
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.Key == "" {
		cfg.Storage.Key = "AUTOMATION_EVENTS"
	}
	if cfg.Preferences.Location == "" {
		cfg.Preferences.Location = "passive"
	}
	if cfg.Preferences.Units == "" {
		cfg.Preferences.Units = "mg/dl"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
