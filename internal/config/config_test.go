package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/jsonpns/internal/template"
)

func validRewrite() RewriteConfig {
	return RewriteConfig{
		Global:       "my.app",
		ChunkLoading: "jsonp",
		Engine:       "auto",
		Roots:        []string{"window", "self", "this"},
		Include:      []string{"*.js", "**/*.mjs"},
	}
}

func TestRewriteConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*RewriteConfig)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			modify: func(rc *RewriteConfig) {},
		},
		{
			name:   "single segment global",
			modify: func(rc *RewriteConfig) { rc.Global = "webpackJsonp" },
		},
		{
			name:    "missing global",
			modify:  func(rc *RewriteConfig) { rc.Global = "" },
			wantErr: true,
			errMsg:  "global is required",
		},
		{
			name:    "empty segment",
			modify:  func(rc *RewriteConfig) { rc.Global = "my..app" },
			wantErr: true,
			errMsg:  "invalid global",
		},
		{
			name:    "unknown engine",
			modify:  func(rc *RewriteConfig) { rc.Engine = "regex" },
			wantErr: true,
			errMsg:  "invalid engine",
		},
		{
			name:    "negative concurrency",
			modify:  func(rc *RewriteConfig) { rc.Concurrency = -1 },
			wantErr: true,
			errMsg:  "concurrency must not be negative",
		},
		{
			name:    "dotted root",
			modify:  func(rc *RewriteConfig) { rc.Roots = []string{"window.top"} },
			wantErr: true,
			errMsg:  "invalid root",
		},
		{
			name:    "no include patterns",
			modify:  func(rc *RewriteConfig) { rc.Include = nil },
			wantErr: true,
			errMsg:  "at least one include pattern",
		},
		{
			name:    "broken include pattern",
			modify:  func(rc *RewriteConfig) { rc.Include = []string{"[*.js"} },
			wantErr: true,
			errMsg:  "invalid include pattern",
		},
		{
			name: "extra shape",
			modify: func(rc *RewriteConfig) {
				rc.Shapes = []template.Shape{{Bundler: "rspack", Name: "push-array", Kind: template.KindChunk, Pattern: "(%[1]s ||= []).push("}}
			},
		},
		{
			name: "invalid extra shape",
			modify: func(rc *RewriteConfig) {
				rc.Shapes = []template.Shape{{Bundler: "rspack", Name: "push-array", Kind: template.KindChunk, Pattern: "%s"}}
			},
			wantErr: true,
			errMsg:  "pattern must reference the access",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := validRewrite()
			tt.modify(&rc)
			err := rc.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRewriteConfig_Enabled(t *testing.T) {
	rc := validRewrite()
	assert.True(t, rc.Enabled())

	rc.ChunkLoading = "JSONP"
	assert.True(t, rc.Enabled())

	for _, strategy := range []string{"import-scripts", "require", "import", ""} {
		rc.ChunkLoading = strategy
		assert.False(t, rc.Enabled(), strategy)
	}
}

func TestCacheConfig_Validate(t *testing.T) {
	assert.NoError(t, (&CacheConfig{Enabled: false, Size: 0}).Validate())
	assert.NoError(t, (&CacheConfig{Enabled: true, Size: 10}).Validate())
	assert.Error(t, (&CacheConfig{Enabled: true, Size: 0}).Validate())
}

func TestWatchConfig_Validate(t *testing.T) {
	assert.NoError(t, (&WatchConfig{Debounce: 250 * time.Millisecond}).Validate())
	assert.NoError(t, (&WatchConfig{}).Validate())
	assert.Error(t, (&WatchConfig{Debounce: -time.Second}).Validate())
	assert.Error(t, (&WatchConfig{Debounce: time.Hour}).Validate())
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:   "disabled server needs no timeouts",
			config: ServerConfig{},
		},
		{
			name:   "valid config",
			config: ServerConfig{Address: ":9464", ReadTimeout: time.Second, WriteTimeout: time.Second},
		},
		{
			name:    "zero read timeout",
			config:  ServerConfig{Address: ":9464", WriteTimeout: time.Second},
			wantErr: true,
			errMsg:  "read_timeout must be positive",
		},
		{
			name:    "negative write timeout",
			config:  ServerConfig{Address: ":9464", ReadTimeout: time.Second, WriteTimeout: -time.Second},
			wantErr: true,
			errMsg:  "write_timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("file and environment", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		dir := t.TempDir()
		file := filepath.Join(dir, "jsonpns.yaml")
		require.NoError(t, os.WriteFile(file, []byte(`
rewrite:
  global: my.app
  engine: ast
  include: ["*.js"]
cache:
  size: 16
`), 0o644))
		t.Setenv("JSONPNS_REWRITE_CONCURRENCY", "3")
		t.Setenv("JSONPNS_WATCH_DEBOUNCE", "1s")

		cfg, err := Load(file)
		require.NoError(t, err)

		assert.Equal(t, "my.app", cfg.Rewrite.Global)
		assert.Equal(t, "ast", cfg.Rewrite.Engine)
		assert.Equal(t, 3, cfg.Rewrite.Concurrency)
		assert.Equal(t, "jsonp", cfg.Rewrite.ChunkLoading)
		assert.Equal(t, template.DefaultMarker, cfg.Rewrite.Marker)
		assert.Equal(t, []string{"parentJsonpFunction"}, cfg.Rewrite.LoaderNames)
		assert.True(t, cfg.Rewrite.Verify)
		assert.True(t, cfg.Cache.Enabled)
		assert.Equal(t, 16, cfg.Cache.Size)
		assert.Equal(t, time.Second, cfg.Watch.Debounce)
		assert.False(t, cfg.Server.Enabled())
		assert.Equal(t, "jsonpns", cfg.Tracing.ServiceName)
	})

	t.Run("missing global is invalid", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		file := filepath.Join(t.TempDir(), "jsonpns.yaml")
		require.NoError(t, os.WriteFile(file, []byte("debug: true\n"), 0o644))

		_, err := Load(file)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "global is required")
	})

	t.Run("unreadable file", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		file := filepath.Join(t.TempDir(), "jsonpns.yaml")
		require.NoError(t, os.WriteFile(file, []byte("rewrite: [unclosed\n"), 0o644))

		_, err := Load(file)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})
}
