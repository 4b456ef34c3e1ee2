package nspath

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Path
		wantErr error
	}{
		{name: "single segment", input: "webpackJsonp", want: Path{"webpackJsonp"}},
		{name: "dotted", input: "a.b.c", want: Path{"a", "b", "c"}},
		{name: "dollar and underscore", input: "$app._chunks", want: Path{"$app", "_chunks"}},
		{name: "empty", input: "", wantErr: ErrEmptyName},
		{name: "double dot", input: "a..b", wantErr: ErrEmptySegment},
		{name: "leading dot", input: ".a", wantErr: ErrEmptySegment},
		{name: "trailing dot", input: "a.", wantErr: ErrEmptySegment},
		{name: "dash", input: "my-app.chunks", wantErr: ErrInvalidSegment},
		{name: "starts with digit", input: "a.1b", wantErr: ErrInvalidSegment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestResolve_MutatingInit(t *testing.T) {
	t.Run("window root", func(t *testing.T) {
		res, err := Resolve("a.b.c", "window", MutatingInit)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"window.a = window.a || {};",
			"window.a.b = window.a.b || {};",
		}, res.Initializers)
		assert.Equal(t, "window.a.b.c", res.Access)
	})

	t.Run("self root", func(t *testing.T) {
		res, err := Resolve("a.b.c", "self", MutatingInit)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"self.a = self.a || {};",
			"self.a.b = self.a.b || {};",
		}, res.Initializers)
		assert.Equal(t, "self.a.b.c", res.Access)
	})

	t.Run("single segment is a no-op", func(t *testing.T) {
		res, err := Resolve("webpackJsonp", "window", MutatingInit)
		require.NoError(t, err)
		assert.Empty(t, res.Initializers)
		assert.Equal(t, "webpackJsonp", res.Access)
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := Resolve("a..b", "window", MutatingInit)
		assert.ErrorIs(t, err, ErrEmptySegment)
	})
}

func TestResolve_SafeRead(t *testing.T) {
	res, err := Resolve("a.b.c.d", "", SafeRead)
	require.NoError(t, err)
	assert.Empty(t, res.Initializers)
	assert.Equal(t, "a && a.b && a.b.c && a.b.c.d", res.Access)

	res, err = Resolve("a.b", "window", SafeRead)
	require.NoError(t, err)
	assert.Equal(t, "window.a && window.a.b", res.Access)

	res, err = Resolve("solo", "window", SafeRead)
	require.NoError(t, err)
	assert.Equal(t, "solo", res.Access)
}

func TestSafeRead_EvaluatesWithoutThrowing(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(`var a = {b: undefined};`)
	require.NoError(t, err)

	v, err := vm.RunString(MustParse("a.b.c.d").SafeRead(""))
	require.NoError(t, err)
	assert.True(t, goja.IsUndefined(v))

	_, err = vm.RunString(`a.b = {c: {d: 42}};`)
	require.NoError(t, err)
	v, err = vm.RunString(MustParse("a.b.c.d").SafeRead(""))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.ToInteger())
}

func TestInitializers_PreserveExistingValues(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(`var window = {a: {keep: true}};`)
	require.NoError(t, err)

	for _, stmt := range MustParse("a.b.c").Initializers("window") {
		_, err := vm.RunString(stmt)
		require.NoError(t, err, stmt)
	}

	v, err := vm.RunString(`window.a.keep === true && typeof window.a.b === "object"`)
	require.NoError(t, err)
	assert.True(t, v.ToBoolean())
}

func TestPathForms(t *testing.T) {
	p := MustParse("my.app")

	assert.Equal(t, `window["my.app"]`, p.Bracket("window"))
	assert.Equal(t, `this["my.app"]`, p.Bracket("this"))
	assert.Equal(t, "self.my.app", p.Dotted("self"))
	assert.Equal(t, []string{"window.my = window.my || {}"}, p.Guards("window"))
	assert.Nil(t, MustParse("flat").Guards("window"))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("safe-read")
	require.NoError(t, err)
	assert.Equal(t, SafeRead, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, MutatingInit, m)

	_, err = ParseMode("write")
	assert.Error(t, err)
}
