// Package diagnostics collects per-asset failures without stopping a batch.
package diagnostics

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/fluxbase-eu/jsonpns/internal/asset"
)

// Kind classifies a Diagnostic
type Kind string

const (
	KindParseFailure       Kind = "parse_failure"
	KindTransformException Kind = "transform_exception"
)

// Classify returns the kind for err. Anything that is not a parse failure
// is a transform exception.
func Classify(err error) Kind {
	if errors.Is(err, asset.ErrParse) {
		return KindParseFailure
	}
	return KindTransformException
}

// Diagnostic is one recorded failure
type Diagnostic struct {
	File string `json:"file" yaml:"file"`
	Kind Kind   `json:"kind" yaml:"kind"`
	Err  error  `json:"-" yaml:"-"`
	// Message mirrors Err for serialisation
	Message string `json:"message" yaml:"message"`
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %v", d.File, d.Kind, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Collector accumulates diagnostics. The zero value is ready to use.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Add records err against file. Nil errors are ignored.
func (c *Collector) Add(file string, err error) {
	if err == nil {
		return
	}
	d := Diagnostic{File: file, Kind: Classify(err), Err: err, Message: err.Error()}

	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
}

// Diagnostics returns a copy sorted by file
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

// Len returns the number of diagnostics
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Err combines every diagnostic into one error, or nil
func (c *Collector) Err() error {
	var err error
	for _, d := range c.Diagnostics() {
		err = multierr.Append(err, d)
	}
	return err
}

// Reset drops all diagnostics
func (c *Collector) Reset() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}
