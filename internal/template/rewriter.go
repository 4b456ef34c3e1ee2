// Package template rewrites the literal runtime fragments bundlers emit
// around the chunk-loading global, by exact offsets.
package template

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fluxbase-eu/jsonpns/internal/asset"
	"github.com/fluxbase-eu/jsonpns/internal/nspath"
	"github.com/fluxbase-eu/jsonpns/internal/textedit"
)

// DefaultMarker identifies a runtime that loads chunks dynamically
const DefaultMarker = "webpackJsonpCallback"

// Options configures a Rewriter
type Options struct {
	// Name is the configured chunk-loading global, e.g. "my.app"
	Name   string
	Roots  []string
	Marker string
	// Shapes defaults to Table()
	Shapes []Shape
}

// Rewriter is safe for concurrent use
type Rewriter struct {
	path   nspath.Path
	roots  []string
	marker string
	shapes []Shape
}

// New validates opts and returns a Rewriter
func New(opts Options) (*Rewriter, error) {
	p, err := nspath.Parse(opts.Name)
	if err != nil {
		return nil, err
	}

	r := &Rewriter{
		path:   p,
		roots:  opts.Roots,
		marker: opts.Marker,
		shapes: opts.Shapes,
	}
	if len(r.roots) == 0 {
		r.roots = nspath.DefaultRoots
	}
	if r.marker == "" {
		r.marker = DefaultMarker
	}
	if len(r.shapes) == 0 {
		r.shapes = Table()
	}
	for _, s := range r.shapes {
		if err := ValidateShape(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Rewrite rewrites one asset. A source without any known fragment is
// returned unchanged without error.
func (r *Rewriter) Rewrite(a asset.Asset) (asset.Result, error) {
	if !r.path.IsNamespaced() {
		return asset.Unchanged(a, asset.EngineTemplate), nil
	}

	var edits []textedit.Edit
	var matched []string
	if strings.Contains(a.Source, r.marker) {
		edits, matched = r.bootstrapEdits(a.Source)
	} else {
		edits, matched = r.chunkEdits(a.Source)
	}
	if len(edits) == 0 {
		return asset.Unchanged(a, asset.EngineTemplate), nil
	}

	out, err := asset.ApplyEdits(a, edits)
	if err != nil {
		return asset.Unchanged(a, asset.EngineTemplate), err
	}
	return asset.Result{Asset: out, Changed: true, Matched: matched, Engine: asset.EngineTemplate}, nil
}

// access is one located bracket access of the global
type access struct {
	start, end int
	root       string
}

// bootstrapEdits prepends the initializers and dots every bracket access
func (r *Rewriter) bootstrapEdits(src string) ([]textedit.Edit, []string) {
	found := r.findAccesses(src, 0, len(src))
	if len(found) == 0 {
		return nil, nil
	}

	var matched []string
	for _, s := range r.shapes {
		if s.Kind != KindBootstrap {
			continue
		}
		for _, root := range r.roots {
			if strings.Contains(src, s.Render(r.path.Bracket(root))) {
				matched = append(matched, s.ID())
				break
			}
		}
	}
	if len(matched) == 0 {
		matched = []string{"bracket-access"}
	}

	seen := make(map[string]bool)
	var init []string
	for _, acc := range found {
		if seen[acc.root] {
			continue
		}
		seen[acc.root] = true
		init = append(init, r.path.Initializers(acc.root)...)
	}

	edits := make([]textedit.Edit, 0, len(found)+1)
	edits = append(edits, textedit.Insert(prologueEnd(src), strings.Join(init, "\n")+"\n"))
	for _, acc := range found {
		edits = append(edits, textedit.Replace(acc.start, acc.end, r.path.Dotted(acc.root)))
	}
	return edits, matched
}

// chunkEdits dots the bracket accesses inside located push-array fragments
func (r *Rewriter) chunkEdits(src string) ([]textedit.Edit, []string) {
	var edits []textedit.Edit
	var matched []string
	done := make(map[int]bool)

	for _, s := range r.shapes {
		if s.Kind != KindChunk {
			continue
		}
		hit := false
		for _, root := range r.roots {
			literal := s.Render(r.path.Bracket(root))
			for _, start := range indexAll(src, literal) {
				if !boundaryBefore(src, start, literal) {
					continue
				}
				for _, acc := range r.findAccesses(src, start, start+len(literal)) {
					if done[acc.start] {
						continue
					}
					done[acc.start] = true
					edits = append(edits, textedit.Replace(acc.start, acc.end, r.path.Dotted(acc.root)))
					hit = true
				}
			}
		}
		if hit {
			matched = append(matched, s.ID())
		}
	}
	textedit.Sort(edits)
	return edits, matched
}

// findAccesses returns every bracket access of the global in src[from:to]
func (r *Rewriter) findAccesses(src string, from, to int) []access {
	var out []access
	span := src[from:to]
	for _, root := range r.roots {
		bracket := r.path.Bracket(root)
		for _, i := range indexAll(span, bracket) {
			start := from + i
			if !boundaryBefore(src, start, bracket) {
				continue
			}
			out = append(out, access{start: start, end: start + len(bracket), root: root})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func indexAll(s, sub string) []int {
	var out []int
	for off := 0; ; {
		i := strings.Index(s[off:], sub)
		if i < 0 {
			return out
		}
		out = append(out, off+i)
		off += i + len(sub)
	}
}

// boundaryBefore rejects matches such as myself["a.b"] or obj.window["a.b"]
func boundaryBefore(src string, start int, literal string) bool {
	if start == 0 || literal == "" || !isIdentByte(literal[0]) {
		return true
	}
	prev := src[start-1]
	return !isIdentByte(prev) && prev != '.'
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

var prologueRegex = regexp.MustCompile(`^(?:#![^\n]*\n)?\s*(?:"use strict"|'use strict');?[ \t]*(?:\r?\n)?`)

// prologueEnd is the offset after a leading hashbang and "use strict"
// directive, where initializers can be inserted
func prologueEnd(src string) int {
	if loc := prologueRegex.FindStringIndex(src); loc != nil {
		return loc[1]
	}
	if strings.HasPrefix(src, "#!") {
		if i := strings.IndexByte(src, '\n'); i >= 0 {
			return i + 1
		}
	}
	return 0
}
