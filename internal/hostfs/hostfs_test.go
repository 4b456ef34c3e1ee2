package hostfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/jsonpns/internal/asset"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func onlyJS(name string) bool {
	return strings.HasSuffix(name, ".js")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.js", "main")
	writeFile(t, dir, "main.js.map", `{"version":3}`)
	writeFile(t, dir, "js/1.chunk.js", "chunk")
	writeFile(t, dir, "index.html", "<html>")
	writeFile(t, dir, ".jsonpns-123.tmp", "partial")

	t.Run("with include", func(t *testing.T) {
		assets, err := Load(dir, onlyJS)
		require.NoError(t, err)
		require.Len(t, assets, 2)

		assert.Equal(t, "js/1.chunk.js", assets[0].Name)
		assert.Equal(t, "chunk", assets[0].Source)
		assert.False(t, assets[0].HasSourceMap())

		assert.Equal(t, "main.js", assets[1].Name)
		assert.Equal(t, `{"version":3}`, string(assets[1].SourceMap))
	})

	t.Run("without include skips sidecars", func(t *testing.T) {
		assets, err := Load(dir, nil)
		require.NoError(t, err)

		var names []string
		for _, a := range assets {
			names = append(names, a.Name)
		}
		assert.Equal(t, []string{"index.html", "js/1.chunk.js", "main.js"}, names)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing"), onlyJS)
		assert.Error(t, err)
	})
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.js", "old")
	writeFile(t, dir, "vendor.js", "vendor")
	require.NoError(t, os.Chmod(filepath.Join(dir, "main.js"), 0o600))

	results := []asset.Result{
		{Asset: asset.Asset{Name: "main.js", Source: "new", SourceMap: []byte(`{"version":3}`)}, Changed: true},
		{Asset: asset.Asset{Name: "vendor.js", Source: "ignored"}, Changed: false},
		{Asset: asset.Asset{Name: "js/2.chunk.js", Source: "chunk"}, Changed: true},
	}

	n, err := Write(dir, results)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dir, "main.js"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(filepath.Join(dir, "main.js"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err = os.ReadFile(filepath.Join(dir, "main.js.map"))
	require.NoError(t, err)
	assert.Equal(t, `{"version":3}`, string(data))

	data, err = os.ReadFile(filepath.Join(dir, "vendor.js"))
	require.NoError(t, err)
	assert.Equal(t, "vendor", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "js", "2.chunk.js"))
	require.NoError(t, err)
	assert.Equal(t, "chunk", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), tempPrefix), "temporary file left behind: %s", e.Name())
	}
}

func TestWrite_MapFailureKeepsCode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.js", "old")
	// a non-empty directory where the map belongs makes its rename fail
	writeFile(t, dir, "main.js.map/keep", "")

	results := []asset.Result{
		{Asset: asset.Asset{Name: "main.js", Source: "new", SourceMap: []byte(`{"version":3}`)}, Changed: true},
	}

	n, err := Write(dir, results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source map of main.js")
	assert.Zero(t, n)

	data, err := os.ReadFile(filepath.Join(dir, "main.js"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), tempPrefix), "temporary file left behind: %s", e.Name())
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	called := make(chan struct{}, 10)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Watch(ctx, dir, 50*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			called <- struct{}{}
			return nil
		})
	}()

	// the watcher registers asynchronously; keep touching until it reacts
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case <-called:
			cancel()
			require.NoError(t, <-errCh)
			assert.GreaterOrEqual(t, calls.Load(), int32(1))
			return
		case <-tick.C:
			writeFile(t, dir, "main.js", strings.Repeat("x", i+1))
		case <-deadline:
			t.Fatal("watch callback was not called")
		}
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), time.Millisecond, func(context.Context) error {
		return nil
	})
	assert.Error(t, err)
}
