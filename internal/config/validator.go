package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct-tag constraints, then the rules that span fields:
//   - sqlite and badger backends need a path
//   - the settle delay must be shorter than the pass interval
func Validate(cfg *Config) error {
	var errs []string

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s: failed %q (value %v)", fieldPath(fe.Namespace()), fe.Tag(), fe.Value()))
		}
	}
	if cfg.Storage.Backend != "memory" && cfg.Storage.Path == "" {
		errs = append(errs, fmt.Sprintf("storage.path: required for backend %q", cfg.Storage.Backend))
	}
	if cfg.Engine.Interval > 0 && cfg.Engine.SettleDelay >= cfg.Engine.Interval {
		errs = append(errs, fmt.Sprintf("engine.settle_delay (%v) must be shorter than engine.interval (%v)", cfg.Engine.SettleDelay, cfg.Engine.Interval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// fieldPath turns "Config.Engine.PassQueueDepth" into "Engine.PassQueueDepth".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// ChangedPreferences lists the preference keys that differ between two
// configs, in a fixed order.
func ChangedPreferences(old, cur *Config) []string {
	if old == nil || cur == nil {
		return nil
	}
	var keys []string
	if old.Preferences.Location != cur.Preferences.Location {
		keys = append(keys, "location")
	}
	if old.Preferences.Units != cur.Preferences.Units {
		keys = append(keys, "units")
	}
	return keys
}
