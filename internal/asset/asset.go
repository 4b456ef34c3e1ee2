// Package asset holds the unit of work passed between the rewriters, the
// cache and the pipeline.
package asset

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/fluxbase-eu/jsonpns/internal/sourcemap"
	"github.com/fluxbase-eu/jsonpns/internal/textedit"
)

var (
	// ErrParse marks an asset whose source could not be parsed
	ErrParse = errors.New("parse failure")
	// ErrTransform marks any other failure while rewriting an asset
	ErrTransform = errors.New("transform exception")
)

// Engine names the rewriter that produced a result
type Engine string

const (
	EngineTemplate Engine = "template"
	EngineAST      Engine = "ast"
	EngineAuto     Engine = "auto"
	EngineNone     Engine = "none"
)

// ParseEngine validates an engine name
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(s); e {
	case EngineTemplate, EngineAST, EngineAuto:
		return e, nil
	case "":
		return EngineAuto, nil
	default:
		return "", fmt.Errorf("invalid engine: %s (valid: template, ast, auto)", s)
	}
}

// Asset is one generated output file
type Asset struct {
	Name      string `json:"name" yaml:"name"`
	Source    string `json:"-" yaml:"-"`
	SourceMap []byte `json:"-" yaml:"-"`
}

// HasSourceMap reports whether a map accompanies the asset
func (a Asset) HasSourceMap() bool {
	return len(a.SourceMap) > 0
}

// Fingerprint hashes salt, source and map. The salt carries everything
// besides the content that influences the rewrite.
func (a Asset) Fingerprint(salt string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(salt)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(a.Source)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(a.SourceMap)
	return d.Sum64()
}

// Result is the outcome of rewriting one asset
type Result struct {
	Asset   Asset    `json:"asset" yaml:"asset"`
	Changed bool     `json:"changed" yaml:"changed"`
	Cached  bool     `json:"cached" yaml:"cached"`
	Matched []string `json:"matched,omitempty" yaml:"matched,omitempty"`
	Engine  Engine   `json:"engine" yaml:"engine"`
}

// Unchanged returns a result that passes a through untouched
func Unchanged(a Asset, engine Engine) Result {
	return Result{Asset: a, Engine: engine}
}

// ApplyEdits applies edits to the asset source and moves its source map
// through the same edits. Any failure is reported as ErrTransform and the
// input asset is returned unchanged.
func ApplyEdits(a Asset, edits []textedit.Edit) (Asset, error) {
	if len(edits) == 0 {
		return a, nil
	}

	code, err := textedit.Apply(a.Source, edits)
	if err != nil {
		return a, fmt.Errorf("%w: %s: %w", ErrTransform, a.Name, err)
	}

	out := Asset{Name: a.Name, Source: code}
	if a.HasSourceMap() {
		m, err := sourcemap.Adjust(a.SourceMap, a.Source, code, edits)
		if err != nil {
			return a, fmt.Errorf("%w: %s: source map: %w", ErrTransform, a.Name, err)
		}
		out.SourceMap = m
	}
	return out, nil
}
