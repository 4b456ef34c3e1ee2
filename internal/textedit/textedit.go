// Package textedit applies range substitutions to source text without
// touching anything outside the substituted ranges.
package textedit

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrOverlap is returned when two edits cover the same bytes
var ErrOverlap = errors.New("overlapping edits")

// ErrOutOfRange is returned when an edit lies outside the source
var ErrOutOfRange = errors.New("edit out of range")

// Edit replaces the byte range [Start, End) of the original source with Text.
// Start == End is an insertion.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Delta is the change in length the edit causes
func (e Edit) Delta() int {
	return len(e.Text) - (e.End - e.Start)
}

// Insert returns an insertion edit at offset
func Insert(offset int, text string) Edit {
	return Edit{Start: offset, End: offset, Text: text}
}

// Replace returns an edit replacing [start, end)
func Replace(start, end int, text string) Edit {
	return Edit{Start: start, End: end, Text: text}
}

// Sort orders edits by start offset, insertions before replacements that
// begin at the same offset.
func Sort(edits []Edit) {
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].Start != edits[j].Start {
			return edits[i].Start < edits[j].Start
		}
		return edits[i].End < edits[j].End
	})
}

// Validate checks that edits are sorted, in range and non-overlapping
func Validate(size int, edits []Edit) error {
	prevEnd := 0
	for i, e := range edits {
		if e.Start < 0 || e.End < e.Start || e.End > size {
			return fmt.Errorf("%w: edit %d [%d,%d) in source of %d bytes", ErrOutOfRange, i, e.Start, e.End, size)
		}
		if e.Start < prevEnd {
			return fmt.Errorf("%w: edit %d starts at %d before previous end %d", ErrOverlap, i, e.Start, prevEnd)
		}
		prevEnd = e.End
	}
	return nil
}

// Apply sorts, validates and applies edits to src. On error src is not
// modified and the empty string is returned.
func Apply(src string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return src, nil
	}

	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	Sort(sorted)
	if err := Validate(len(src), sorted); err != nil {
		return "", err
	}

	size := len(src)
	for _, e := range sorted {
		size += e.Delta()
	}

	var b strings.Builder
	b.Grow(size)
	pos := 0
	for _, e := range sorted {
		b.WriteString(src[pos:e.Start])
		b.WriteString(e.Text)
		pos = e.End
	}
	b.WriteString(src[pos:])
	return b.String(), nil
}

// Map translates an offset in the original source to the edited source.
// ok is false for offsets strictly inside a replaced range; the start of a
// replaced range maps to the start of its replacement. edits must be sorted.
func Map(offset int, edits []Edit) (mapped int, ok bool) {
	shift := 0
	for _, e := range edits {
		switch {
		case offset < e.Start:
			return offset + shift, true
		case offset == e.Start && e.Start != e.End:
			return offset + shift, true
		case offset < e.End:
			return 0, false
		}
		shift += e.Delta()
	}
	return offset + shift, true
}
