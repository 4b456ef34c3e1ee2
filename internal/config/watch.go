package config

import (
	"fmt"
	"time"
)

// WatchConfig contains watch mode settings
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"` // Quiet period after the last file event before a batch runs
	DryRun   bool          `mapstructure:"dry_run"`  // Report results without writing files
}

// Validate validates watch configuration
func (wc *WatchConfig) Validate() error {
	if wc.Debounce < 0 {
		return fmt.Errorf("watch debounce must not be negative, got: %s", wc.Debounce)
	}
	if wc.Debounce > time.Minute {
		return fmt.Errorf("watch debounce must be at most 1m, got: %s", wc.Debounce)
	}
	return nil
}
