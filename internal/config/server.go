package config

import (
	"fmt"
	"time"
)

// ServerConfig contains settings of the watch mode status server
type ServerConfig struct {
	Address      string        `mapstructure:"address"`       // Listen address; empty disables the server
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // Request read timeout
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // Response write timeout
}

// Enabled reports whether the status server should be started
func (sc *ServerConfig) Enabled() bool {
	return sc.Address != ""
}

// Validate validates status server configuration
func (sc *ServerConfig) Validate() error {
	if !sc.Enabled() {
		return nil
	}

	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	return nil
}
