package sourcemap

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	gosourcemap "github.com/go-sourcemap/sourcemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/jsonpns/internal/textedit"
)

func seg(genCol, origLine, origCol int) Segment {
	return Segment{GenColumn: genCol, OrigLine: origLine, OrigColumn: origCol, Fields: 4}
}

func buildMap(t *testing.T, lines [][]Segment) []byte {
	t.Helper()
	data, err := json.Marshal(&Map{
		Version:  3,
		File:     "chunk.js",
		Sources:  []string{"src/chunk.js"},
		Names:    []string{"x"},
		Mappings: EncodeMappings(lines),
	})
	require.NoError(t, err)
	return data
}

func TestMappingsRoundTrip(t *testing.T) {
	lines := [][]Segment{
		{seg(0, 0, 0), seg(7, 0, 4), {GenColumn: 12, Fields: 1}},
		nil,
		{seg(2, 3, 1), {GenColumn: 9, Source: 0, OrigLine: 3, OrigColumn: 8, Name: 0, Fields: 5}},
	}

	decoded, err := DecodeMappings(EncodeMappings(lines))
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	assert.Equal(t, lines[0], decoded[0])
	assert.Empty(t, decoded[1])
	assert.Equal(t, lines[2], decoded[2])
}

func TestDecodeMappings_Invalid(t *testing.T) {
	for _, mappings := range []string{"AA", "A!", "g", "AAAAAA"} {
		_, err := DecodeMappings(mappings)
		assert.ErrorIs(t, err, ErrInvalidMappings, mappings)
	}
}

func TestParse(t *testing.T) {
	_, err := Parse([]byte(`{"version":2,"sources":[],"mappings":""}`))
	assert.ErrorIs(t, err, ErrVersion)

	_, err = Parse([]byte(`{"version":3,"sections":[{"offset":{"line":0,"column":0},"map":{}}]}`))
	assert.ErrorIs(t, err, ErrIndexMap)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)

	m, err := Parse([]byte(`{"version":3,"mappings":"AAAA"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{}, m.Sources)
}

func TestMarshal_KeepsUnknownKeys(t *testing.T) {
	raw := []byte(`{"version":3,"sources":["a.js"],"names":[],"mappings":"AAAA",` +
		`"debugId":"85314830-023f-4cf1-a267-535f4e37bb17","x_facebook_sources":[null]}`)

	m, err := Parse(raw)
	require.NoError(t, err)
	m.Mappings = "CAAA"

	data, err := m.Marshal()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.JSONEq(t, `"85314830-023f-4cf1-a267-535f4e37bb17"`, string(fields["debugId"]))
	assert.JSONEq(t, `[null]`, string(fields["x_facebook_sources"]))
	assert.JSONEq(t, `"CAAA"`, string(fields["mappings"]))
	assert.JSONEq(t, `["a.js"]`, string(fields["sources"]))
}

func TestAdjust_PushArrayReplacement(t *testing.T) {
	oldCode := `(window["a.b"] = window["a.b"] || []).push(x);` + "\n" + `foo();`
	edits := []textedit.Edit{
		textedit.Replace(1, 14, "window.a.b"),
		textedit.Replace(17, 30, "window.a.b"),
	}
	newCode, err := textedit.Apply(oldCode, edits)
	require.NoError(t, err)
	require.Equal(t, `(window.a.b = window.a.b || []).push(x);`+"\n"+`foo();`, newCode)

	raw := buildMap(t, [][]Segment{
		{
			seg(0, 0, 0),
			seg(1, 0, 1),
			seg(9, 0, 9),
			seg(17, 0, 17),
			{GenColumn: 43, OrigLine: 2, OrigColumn: 5, Name: 0, Fields: 5},
		},
		{seg(0, 3, 0)},
	})

	adjusted, err := Adjust(raw, oldCode, newCode, edits)
	require.NoError(t, err)

	consumer, err := gosourcemap.Parse("", adjusted)
	require.NoError(t, err)

	tests := []struct {
		name     string
		genLine  int
		genCol   int
		wantLine int
		wantCol  int
	}{
		{name: "open paren", genLine: 1, genCol: 0, wantLine: 1, wantCol: 0},
		{name: "first access", genLine: 1, genCol: 1, wantLine: 1, wantCol: 1},
		{name: "second access", genLine: 1, genCol: 14, wantLine: 1, wantCol: 17},
		{name: "push argument", genLine: 1, genCol: 37, wantLine: 3, wantCol: 5},
		{name: "untouched line", genLine: 2, genCol: 0, wantLine: 4, wantCol: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, _, line, col, ok := consumer.Source(tt.genLine, tt.genCol)
			require.True(t, ok)
			assert.Equal(t, "src/chunk.js", source)
			assert.Equal(t, tt.wantLine, line)
			assert.Equal(t, tt.wantCol, col)
		})
	}

	m, err := Parse(adjusted)
	require.NoError(t, err)
	lines, err := DecodeMappings(m.Mappings)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], 4, "segment inside the replaced key is dropped")
	assert.Equal(t, []Segment{seg(0, 3, 0)}, lines[1])
}

func TestAdjust_LongMinifiedLine(t *testing.T) {
	const modules = 40000
	prefix := `(window["a.b"] = window["a.b"] || []).push([`

	var b strings.Builder
	b.WriteString(prefix)
	segs := []Segment{seg(0, 0, 0)}
	for i := 0; i < modules; i++ {
		segs = append(segs, seg(b.Len(), 0, b.Len()))
		b.WriteString(`"0123456",`)
	}
	b.WriteString(`]);`)
	oldCode := b.String()

	edits := []textedit.Edit{
		textedit.Replace(1, 14, "window.a.b"),
		textedit.Replace(17, 30, "window.a.b"),
	}
	newCode, err := textedit.Apply(oldCode, edits)
	require.NoError(t, err)

	start := time.Now()
	adjusted, err := Adjust(buildMap(t, [][]Segment{segs}), oldCode, newCode, edits)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	m, err := Parse(adjusted)
	require.NoError(t, err)
	lines, err := DecodeMappings(m.Mappings)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Len(t, lines[0], modules+1)
	for _, s := range lines[0][1:] {
		require.Equal(t, s.OrigColumn-6, s.GenColumn)
	}
}

func TestAdjust_InsertedLinesShiftMappings(t *testing.T) {
	oldCode := "foo();\nbar();"
	edits := []textedit.Edit{textedit.Insert(0, "window.a = window.a || {};\n")}
	newCode, err := textedit.Apply(oldCode, edits)
	require.NoError(t, err)

	raw := buildMap(t, [][]Segment{{seg(0, 0, 0)}, {seg(0, 1, 0)}})
	adjusted, err := Adjust(raw, oldCode, newCode, edits)
	require.NoError(t, err)

	m, err := Parse(adjusted)
	require.NoError(t, err)
	assert.Equal(t, ";AAAA;AACA", m.Mappings)
}

func TestAdjust_UTF16Columns(t *testing.T) {
	oldCode := `s="😀";window["a.b"]=1;`
	edits := []textedit.Edit{textedit.Replace(9, 22, "window.a.b")}
	newCode, err := textedit.Apply(oldCode, edits)
	require.NoError(t, err)
	require.Equal(t, `s="😀";window.a.b=1;`, newCode)

	raw := buildMap(t, [][]Segment{{seg(0, 0, 0), seg(7, 0, 7), seg(21, 0, 21)}})
	adjusted, err := Adjust(raw, oldCode, newCode, edits)
	require.NoError(t, err)

	m, err := Parse(adjusted)
	require.NoError(t, err)
	lines, err := DecodeMappings(m.Mappings)
	require.NoError(t, err)
	assert.Equal(t, [][]Segment{{seg(0, 0, 0), seg(7, 0, 7), seg(18, 0, 21)}}, lines)
}

func TestAdjust_NoEditsReturnsInput(t *testing.T) {
	raw := []byte(`{"version":3,"sources":["a.js"],"names":[],"mappings":"AAAA","x_custom":1}`)
	out, err := Adjust(raw, "a", "a", nil)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestAdjust_RejectsOverlappingEdits(t *testing.T) {
	raw := []byte(`{"version":3,"sources":[],"names":[],"mappings":"AAAA"}`)
	_, err := Adjust(raw, "0123456789", "", []textedit.Edit{
		textedit.Replace(1, 5, "a"),
		textedit.Replace(3, 6, "b"),
	})
	assert.ErrorIs(t, err, textedit.ErrOverlap)
}
