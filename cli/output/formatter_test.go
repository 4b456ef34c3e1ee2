package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestFormatter(format Format) (*Formatter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &Formatter{Format: format, Writer: &out, ErrWriter: &errOut}, &out, &errOut
}

var results = TableData{
	Headers: []string{"FILE", "STATUS"},
	Rows: [][]string{
		{"main.js", "changed"},
		{"vendor.js"},
	},
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "TABLE", want: FormatTable},
		{in: "json", want: FormatJSON},
		{in: "yml", want: FormatYAML},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTableData_Records(t *testing.T) {
	assert.Equal(t, []map[string]string{
		{"file": "main.js", "status": "changed"},
		{"file": "vendor.js"},
	}, results.Records())
}

func TestPrintTable(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatTable)
		f.PrintTable(results)
		assert.Contains(t, out.String(), "FILE")
		assert.Contains(t, out.String(), "main.js")
	})

	t.Run("no headers", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatTable)
		f.NoHeaders = true
		f.PrintTable(results)
		assert.NotContains(t, out.String(), "FILE")
		assert.Contains(t, out.String(), "changed")
	})

	t.Run("json", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatJSON)
		f.PrintTable(results)

		var got []map[string]string
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, results.Records(), got)
	})

	t.Run("yaml", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatYAML)
		f.PrintTable(results)

		var got []map[string]string
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, results.Records(), got)
	})

	t.Run("quiet", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatTable)
		f.Quiet = true
		f.PrintTable(results)
		assert.Empty(t, out.String())
	})
}

func TestPrintMessages(t *testing.T) {
	f, out, errOut := newTestFormatter(FormatTable)
	f.PrintSuccess("done")
	f.PrintWarning("careful")
	assert.Equal(t, "done\n", out.String())
	assert.Equal(t, "Warning: careful\n", errOut.String())

	f, out, _ = newTestFormatter(FormatJSON)
	f.PrintSuccess("done")
	assert.Empty(t, out.String())
}

func TestPrintList(t *testing.T) {
	f, out, _ := newTestFormatter(FormatTable)
	f.PrintList([]string{"a", "b"})
	assert.Equal(t, "a\nb\n", out.String())

	f, out, _ = newTestFormatter(FormatJSON)
	f.PrintList([]string{"a", "b"})
	assert.JSONEq(t, `["a","b"]`, out.String())
}
