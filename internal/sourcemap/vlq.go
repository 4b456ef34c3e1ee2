package sourcemap

import (
	"errors"
	"fmt"
	"strings"
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	vlqBaseShift       = 5
	vlqBase            = 1 << vlqBaseShift
	vlqBaseMask        = vlqBase - 1
	vlqContinuationBit = vlqBase
)

var base64Values = func() [256]int {
	var table [256]int
	for i := range table {
		table[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		table[base64Chars[i]] = i
	}
	return table
}()

// ErrInvalidMappings is returned for a malformed "mappings" string
var ErrInvalidMappings = errors.New("invalid source map mappings")

// Segment is one decoded mapping with absolute values.
// Fields is 1, 4 or 5 depending on how many values the segment carried.
type Segment struct {
	GenColumn  int
	Source     int
	OrigLine   int
	OrigColumn int
	Name       int
	Fields     int
}

func appendVLQ(b *strings.Builder, value int) {
	vlq := value << 1
	if value < 0 {
		vlq = (-value << 1) | 1
	}
	for {
		digit := vlq & vlqBaseMask
		vlq >>= vlqBaseShift
		if vlq > 0 {
			digit |= vlqContinuationBit
		}
		b.WriteByte(base64Chars[digit])
		if vlq == 0 {
			return
		}
	}
}

func readVLQ(s string, pos int) (value, next int, err error) {
	shift := 0
	result := 0
	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("%w: truncated value", ErrInvalidMappings)
		}
		digit := base64Values[s[pos]]
		if digit < 0 {
			return 0, pos, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidMappings, s[pos], pos)
		}
		pos++
		result += (digit & vlqBaseMask) << shift
		shift += vlqBaseShift
		if digit&vlqContinuationBit == 0 {
			break
		}
		if shift > 60 {
			return 0, pos, fmt.Errorf("%w: value overflow", ErrInvalidMappings)
		}
	}
	if result&1 == 1 {
		return -(result >> 1), pos, nil
	}
	return result >> 1, pos, nil
}

// DecodeMappings decodes a "mappings" string into one slice of segments per
// generated line.
func DecodeMappings(mappings string) ([][]Segment, error) {
	lines := [][]Segment{nil}
	var source, origLine, origColumn, name int
	genColumn := 0
	pos := 0

	for pos < len(mappings) {
		switch mappings[pos] {
		case ';':
			lines = append(lines, nil)
			genColumn = 0
			pos++
			continue
		case ',':
			pos++
			continue
		}

		var values [5]int
		n := 0
		for pos < len(mappings) && mappings[pos] != ',' && mappings[pos] != ';' {
			if n == len(values) {
				return nil, fmt.Errorf("%w: segment with more than 5 fields", ErrInvalidMappings)
			}
			v, next, err := readVLQ(mappings, pos)
			if err != nil {
				return nil, err
			}
			values[n] = v
			n++
			pos = next
		}
		if n != 1 && n != 4 && n != 5 {
			return nil, fmt.Errorf("%w: segment with %d fields", ErrInvalidMappings, n)
		}

		genColumn += values[0]
		seg := Segment{GenColumn: genColumn, Fields: n}
		if n >= 4 {
			source += values[1]
			origLine += values[2]
			origColumn += values[3]
			seg.Source, seg.OrigLine, seg.OrigColumn = source, origLine, origColumn
		}
		if n == 5 {
			name += values[4]
			seg.Name = name
		}
		last := len(lines) - 1
		lines[last] = append(lines[last], seg)
	}
	return lines, nil
}

// EncodeMappings is the inverse of DecodeMappings
func EncodeMappings(lines [][]Segment) string {
	var b strings.Builder
	var source, origLine, origColumn, name int

	for i, line := range lines {
		if i > 0 {
			b.WriteByte(';')
		}
		genColumn := 0
		for j, seg := range line {
			if j > 0 {
				b.WriteByte(',')
			}
			appendVLQ(&b, seg.GenColumn-genColumn)
			genColumn = seg.GenColumn
			if seg.Fields < 4 {
				continue
			}
			appendVLQ(&b, seg.Source-source)
			appendVLQ(&b, seg.OrigLine-origLine)
			appendVLQ(&b, seg.OrigColumn-origColumn)
			source, origLine, origColumn = seg.Source, seg.OrigLine, seg.OrigColumn
			if seg.Fields == 5 {
				appendVLQ(&b, seg.Name-name)
				name = seg.Name
			}
		}
	}
	return b.String()
}
