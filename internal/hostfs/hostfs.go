// Package hostfs loads the assets of a bundler output directory and writes
// rewritten assets back.
package hostfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/jsonpns/internal/asset"
)

// MapSuffix is appended to an asset name to find its source map sidecar
const MapSuffix = ".map"

// tempPrefix marks our own temporary files so the watcher can ignore them
const tempPrefix = ".jsonpns-"

// Load walks dir and returns every file selected by include, with its
// source map sidecar when present. Asset names are slash-separated and
// relative to dir. A nil include selects every file except sidecars.
func Load(dir string, include func(name string) bool) ([]asset.Asset, error) {
	var assets []asset.Asset

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if include != nil && !include(name) {
			return nil
		}
		if include == nil && strings.HasSuffix(name, MapSuffix) {
			return nil
		}

		src, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		a := asset.Asset{Name: name, Source: string(src)}

		sm, err := os.ReadFile(p + MapSuffix)
		switch {
		case err == nil:
			a.SourceMap = sm
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("failed to read source map of %s: %w", name, err)
		}

		assets = append(assets, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load assets from %s: %w", dir, err)
	}

	log.Debug().Str("dir", dir).Int("assets", len(assets)).Msg("Assets loaded")
	return assets, nil
}

// Write writes every changed result below dir, together with its source map.
// Code and map are both staged in temporary files before either replaces
// its target; the map is renamed first. It returns the number of assets
// written.
func Write(dir string, results []asset.Result) (int, error) {
	written := 0
	for _, r := range results {
		if !r.Changed {
			continue
		}
		if err := writeResult(dir, r.Asset); err != nil {
			return written, err
		}
		written++
		log.Debug().Str("file", r.Asset.Name).Msg("Asset written")
	}
	return written, nil
}

func writeResult(dir string, a asset.Asset) error {
	p := filepath.Join(dir, filepath.FromSlash(a.Name))

	code, err := stage(p, []byte(a.Source))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", a.Name, err)
	}
	defer code.discard()

	if a.HasSourceMap() {
		sm, err := stage(p+MapSuffix, a.SourceMap)
		if err != nil {
			return fmt.Errorf("failed to write source map of %s: %w", a.Name, err)
		}
		defer sm.discard()
		if err := sm.commit(); err != nil {
			return fmt.Errorf("failed to write source map of %s: %w", a.Name, err)
		}
	}

	if err := code.commit(); err != nil {
		return fmt.Errorf("failed to write %s: %w", a.Name, err)
	}
	return nil
}

// staged is a fully written temporary file waiting to replace target
type staged struct {
	tmp    string
	target string
}

// stage writes data to a temporary file next to path, carrying the mode of
// an existing file at path
func stage(path string, data []byte) (*staged, error) {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*.tmp")
	if err != nil {
		return nil, err
	}
	st := &staged{tmp: tmp.Name(), target: path}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		st.discard()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		st.discard()
		return nil, err
	}
	if err := os.Chmod(st.tmp, mode); err != nil {
		st.discard()
		return nil, err
	}
	return st, nil
}

func (s *staged) commit() error {
	if err := os.Rename(s.tmp, s.target); err != nil {
		return err
	}
	s.tmp = ""
	return nil
}

// discard removes the temporary file unless it was committed
func (s *staged) discard() {
	if s.tmp != "" {
		_ = os.Remove(s.tmp)
		s.tmp = ""
	}
}
