package config

import "fmt"

// CacheConfig contains asset cache settings
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"` // Remember results across batches (watch mode)
	Size    int  `mapstructure:"size"`    // Maximum number of cached filenames
}

// Validate validates cache configuration
func (cc *CacheConfig) Validate() error {
	if !cc.Enabled {
		return nil
	}

	if cc.Size < 1 {
		return fmt.Errorf("cache size must be at least 1, got: %d", cc.Size)
	}

	return nil
}
