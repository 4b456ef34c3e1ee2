package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/jsonpns/internal/asset"
	"github.com/fluxbase-eu/jsonpns/internal/nspath"
	"github.com/fluxbase-eu/jsonpns/internal/observability"
	"github.com/fluxbase-eu/jsonpns/internal/template"
)

// ChunkLoadingJSONP is the only chunk loading strategy the rewrite runs for
const ChunkLoadingJSONP = "jsonp"

// Config represents the application configuration
type Config struct {
	Rewrite RewriteConfig              `mapstructure:"rewrite"`
	Cache   CacheConfig                `mapstructure:"cache"`
	Watch   WatchConfig                `mapstructure:"watch"`
	Server  ServerConfig               `mapstructure:"server"`
	Tracing observability.TracerConfig `mapstructure:"tracing"`
	Debug   bool                       `mapstructure:"debug"`
}

// RewriteConfig contains the namespace rewrite settings
type RewriteConfig struct {
	Global       string           `mapstructure:"global"`        // Chunk-loading global, e.g. "my.app"
	ChunkLoading string           `mapstructure:"chunk_loading"` // Chunk loading strategy of the build; only "jsonp" is rewritten
	Engine       string           `mapstructure:"engine"`        // template, ast or auto
	Roots        []string         `mapstructure:"roots"`         // Global objects the runtime addresses
	Marker       string           `mapstructure:"marker"`        // Substring identifying a dynamic-loading runtime
	LoaderNames  []string         `mapstructure:"loader_names"`  // Variables the previous loader is read into
	Include      []string         `mapstructure:"include"`       // Glob patterns of assets to process
	Concurrency  int              `mapstructure:"concurrency"`   // Parallel rewrites (0 = number of CPUs)
	Verify       bool             `mapstructure:"verify"`        // Re-parse rewritten output before accepting it
	Shapes       []template.Shape `mapstructure:"shapes"`        // Extra literal shapes appended to the built-in table
}

// Load loads configuration from file and environment variables. An empty
// configFile searches the default locations.
func Load(configFile string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("jsonpns")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("JSONPNS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults() {
	// Rewrite defaults
	viper.SetDefault("rewrite.global", "")
	viper.SetDefault("rewrite.chunk_loading", ChunkLoadingJSONP)
	viper.SetDefault("rewrite.engine", string(asset.EngineAuto))
	viper.SetDefault("rewrite.roots", nspath.DefaultRoots)
	viper.SetDefault("rewrite.marker", template.DefaultMarker)
	viper.SetDefault("rewrite.loader_names", []string{"parentJsonpFunction"})
	viper.SetDefault("rewrite.include", []string{"*.js", "*.mjs", "*.cjs"})
	viper.SetDefault("rewrite.concurrency", 0)
	viper.SetDefault("rewrite.verify", true)

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.size", 4096)

	// Watch defaults
	viper.SetDefault("watch.debounce", "250ms")
	viper.SetDefault("watch.dry_run", false)

	// Status server defaults
	viper.SetDefault("server.address", "")
	viper.SetDefault("server.read_timeout", "5s")
	viper.SetDefault("server.write_timeout", "5s")

	// Tracing defaults
	tracing := observability.DefaultTracerConfig()
	viper.SetDefault("tracing.enabled", tracing.Enabled)
	viper.SetDefault("tracing.endpoint", tracing.Endpoint)
	viper.SetDefault("tracing.service_name", tracing.ServiceName)
	viper.SetDefault("tracing.environment", tracing.Environment)
	viper.SetDefault("tracing.sample_rate", tracing.SampleRate)
	viper.SetDefault("tracing.insecure", tracing.Insecure)

	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Rewrite.Validate(); err != nil {
		return fmt.Errorf("rewrite configuration error: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache configuration error: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch configuration error: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample_rate must be between 0 and 1, got: %v", c.Tracing.SampleRate)
	}
	return nil
}

// Validate validates rewrite configuration
func (rc *RewriteConfig) Validate() error {
	if rc.Global == "" {
		return fmt.Errorf("global is required")
	}
	if _, err := nspath.Parse(rc.Global); err != nil {
		return fmt.Errorf("invalid global %q: %w", rc.Global, err)
	}

	if _, err := asset.ParseEngine(rc.Engine); err != nil {
		return err
	}

	if rc.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got: %d", rc.Concurrency)
	}

	for _, root := range rc.Roots {
		if root != "this" {
			if _, err := nspath.Parse(root); err != nil || strings.Contains(root, ".") {
				return fmt.Errorf("invalid root %q: must be an identifier or \"this\"", root)
			}
		}
	}

	if len(rc.Include) == 0 {
		return fmt.Errorf("at least one include pattern is required")
	}
	for _, pattern := range rc.Include {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
	}

	for _, s := range rc.Shapes {
		if err := template.ValidateShape(s); err != nil {
			return err
		}
	}

	return nil
}

// Enabled reports whether the build's chunk loading strategy is the one
// the rewrite targets
func (rc *RewriteConfig) Enabled() bool {
	return strings.EqualFold(rc.ChunkLoading, ChunkLoadingJSONP)
}
