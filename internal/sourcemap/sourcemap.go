// Package sourcemap reads and writes version 3 source maps and moves their
// generated positions through a set of text edits.
package sourcemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/fluxbase-eu/jsonpns/internal/textedit"
)

var (
	// ErrVersion is returned for maps that are not version 3
	ErrVersion = errors.New("unsupported source map version")
	// ErrIndexMap is returned for sectioned (index) maps, which are not adjusted
	ErrIndexMap = errors.New("index source maps are not supported")
)

// Map is a decoded version 3 source map. Top-level keys it does not model,
// such as debugId, are kept verbatim and written back by Marshal.
type Map struct {
	Version        int             `json:"version"`
	File           string          `json:"file,omitempty"`
	SourceRoot     string          `json:"sourceRoot,omitempty"`
	Sources        []string        `json:"sources"`
	SourcesContent []*string       `json:"sourcesContent,omitempty"`
	Names          []string        `json:"names"`
	Mappings       string          `json:"mappings"`
	IgnoreList     []int           `json:"x_google_ignoreList,omitempty"`
	Sections       json.RawMessage `json:"sections,omitempty"`

	extra map[string]json.RawMessage
}

var knownKeys = []string{
	"version", "file", "sourceRoot", "sources", "sourcesContent",
	"names", "mappings", "x_google_ignoreList", "sections",
}

// Parse decodes a raw source map
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode source map: %w", err)
	}
	if len(m.Sections) > 0 {
		return nil, ErrIndexMap
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("%w: %d", ErrVersion, m.Version)
	}
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if m.Names == nil {
		m.Names = []string{}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode source map: %w", err)
	}
	for _, k := range knownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		m.extra = raw
	}
	return &m, nil
}

// Marshal encodes the map as JSON
func (m *Map) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil || len(m.extra) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range m.extra {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

// Adjust rewrites the generated positions of a raw source map so that it
// describes newCode, which was produced from oldCode by applying edits.
// Segments that fall strictly inside a replaced range are dropped; every
// other segment keeps its original position information.
func Adjust(data []byte, oldCode, newCode string, edits []textedit.Edit) ([]byte, error) {
	if len(edits) == 0 {
		return data, nil
	}

	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	lines, err := DecodeMappings(m.Mappings)
	if err != nil {
		return nil, err
	}

	sorted := make([]textedit.Edit, len(edits))
	copy(sorted, edits)
	textedit.Sort(sorted)
	if err := textedit.Validate(len(oldCode), sorted); err != nil {
		return nil, err
	}

	oldIdx := newLineIndex(oldCode)
	newIdx := newLineIndex(newCode)
	out := make([][]Segment, newIdx.lines())

	for line, segs := range lines {
		if line >= oldIdx.lines() {
			break
		}
		for _, seg := range segs {
			offset := oldIdx.offset(line, seg.GenColumn)
			mapped, ok := textedit.Map(offset, sorted)
			if !ok {
				continue
			}
			newLine, newCol := newIdx.position(mapped)
			seg.GenColumn = newCol
			out[newLine] = append(out[newLine], seg)
		}
	}

	for i := range out {
		sort.SliceStable(out[i], func(a, b int) bool {
			return out[i][a].GenColumn < out[i][b].GenColumn
		})
	}

	m.Mappings = EncodeMappings(trimTrailing(out))
	return m.Marshal()
}

func trimTrailing(lines [][]Segment) [][]Segment {
	n := len(lines)
	for n > 1 && len(lines[n-1]) == 0 {
		n--
	}
	return lines[:n]
}

// lineIndex converts between byte offsets and (line, UTF-16 column) pairs.
// Sequential lookups in increasing order are linear over the source.
type lineIndex struct {
	src    string
	starts []int

	// forward cursor
	line  int
	pos   int
	units int
}

func newLineIndex(src string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{src: src, starts: starts, line: -1}
}

func (x *lineIndex) lines() int {
	return len(x.starts)
}

func (x *lineIndex) lineEnd(line int) int {
	if line+1 < len(x.starts) {
		return x.starts[line+1] - 1
	}
	return len(x.src)
}

func (x *lineIndex) reset(line int) {
	x.line = line
	x.pos = x.starts[line]
	x.units = 0
}

// offset returns the byte offset of a UTF-16 column, clamped to the line end.
// The cursor only rewinds when col lies behind it.
func (x *lineIndex) offset(line, col int) int {
	if line != x.line || col < x.units {
		x.reset(line)
	}
	end := x.lineEnd(line)
	for x.units < col && x.pos < end {
		r, size := utf8.DecodeRuneInString(x.src[x.pos:end])
		x.pos += size
		x.units += utf16Len(r)
	}
	return x.pos
}

// position returns the line and UTF-16 column of a byte offset
func (x *lineIndex) position(offset int) (int, int) {
	line := sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > offset }) - 1
	if line != x.line || offset < x.pos {
		x.reset(line)
	}
	for x.pos < offset {
		r, size := utf8.DecodeRuneInString(x.src[x.pos:])
		x.pos += size
		x.units += utf16Len(r)
	}
	return line, x.units
}

func utf16Len(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
