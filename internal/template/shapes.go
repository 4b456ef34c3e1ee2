package template

import (
	"fmt"
	"strings"
)

// Kind tells whether a shape belongs to the runtime bootstrap or to a chunk
type Kind string

const (
	KindBootstrap Kind = "bootstrap"
	KindChunk     Kind = "chunk"
)

// Shape is one literal fragment a bundler version emits around the
// chunk-loading global. Pattern has a single %[1]s verb for the access.
type Shape struct {
	Bundler string `json:"bundler" yaml:"bundler"`
	Name    string `json:"name" yaml:"name"`
	Kind    Kind   `json:"kind" yaml:"kind"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

// ID is the name reported in results
func (s Shape) ID() string {
	return s.Bundler + "/" + s.Name
}

// Render substitutes access into the pattern
func (s Shape) Render(access string) string {
	return fmt.Sprintf(s.Pattern, access)
}

var table = []Shape{
	{Bundler: "webpack3", Name: "loader-read", Kind: KindBootstrap, Pattern: "var parentJsonpFunction = %[1]s;"},
	{Bundler: "webpack3", Name: "callback-install", Kind: KindBootstrap, Pattern: "%[1]s = function webpackJsonpCallback("},
	{Bundler: "webpack4", Name: "bootstrap-array", Kind: KindBootstrap, Pattern: "var jsonpArray = %[1]s = %[1]s || [];"},
	{Bundler: "webpack5", Name: "bootstrap-array", Kind: KindBootstrap, Pattern: "var chunkLoadingGlobal = %[1]s = %[1]s || [];"},
	{Bundler: "minified", Name: "bootstrap-array", Kind: KindBootstrap, Pattern: "=%[1]s=%[1]s||[]"},
	{Bundler: "webpack4", Name: "push-array", Kind: KindChunk, Pattern: "(%[1]s = %[1]s || []).push("},
	{Bundler: "minified", Name: "push-array", Kind: KindChunk, Pattern: "(%[1]s=%[1]s||[]).push("},
}

// Table returns a copy of the built-in shape table
func Table() []Shape {
	out := make([]Shape, len(table))
	copy(out, table)
	return out
}

// ValidateShape checks that a user supplied shape can be rendered
func ValidateShape(s Shape) error {
	if s.Kind != KindBootstrap && s.Kind != KindChunk {
		return fmt.Errorf("shape %s: invalid kind %q", s.ID(), s.Kind)
	}
	if !strings.Contains(s.Pattern, "%[1]s") || strings.Count(s.Pattern, "%") != strings.Count(s.Pattern, "%[1]s") {
		return fmt.Errorf("shape %s: pattern must reference the access only as %%[1]s", s.ID())
	}
	return nil
}
