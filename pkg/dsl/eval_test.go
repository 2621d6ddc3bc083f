package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docVars(doc map[string]any, efi map[string]string) map[string]any {
	if efi == nil {
		efi = map[string]string{}
	}
	return map[string]any{"doc": doc, "efi": efi}
}

func TestProgram_EvalFloat(t *testing.T) {
	env, err := DocEnv()
	require.NoError(t, err)

	tests := []struct {
		name    string
		expr    string
		doc     map[string]any
		efi     map[string]string
		want    float64
		wantErr bool
	}{
		{name: "field", expr: "doc.ctr", doc: map[string]any{"ctr": 0.25}, want: 0.25},
		{name: "arithmetic", expr: "doc.ctr * 2.0 + 1.0", doc: map[string]any{"ctr": 0.5}, want: 2},
		{name: "bool true", expr: "doc.online", doc: map[string]any{"online": true}, want: 1},
		{name: "bool false", expr: "doc.price > 10.0", doc: map[string]any{"price": 5.0}, want: 0},
		{name: "efi param", expr: "doc.city == efi.city", doc: map[string]any{"city": "sh"}, efi: map[string]string{"city": "sh"}, want: 1},
		{name: "missing field", expr: "doc.missing", doc: map[string]any{}, wantErr: true},
		{name: "string result", expr: "doc.title", doc: map[string]any{"title": "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prg, err := Compile(env, tt.expr)
			require.NoError(t, err)
			got, err := prg.EvalFloat(docVars(tt.doc, tt.efi))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestProgram_EvalBoolAndString(t *testing.T) {
	env, err := DocEnv()
	require.NoError(t, err)

	prg, err := Compile(env, `doc.category == "a"`)
	require.NoError(t, err)
	ok, err := prg.EvalBool(docVars(map[string]any{"category": "a"}, nil))
	require.NoError(t, err)
	assert.True(t, ok)

	prg, err = Compile(env, "doc.stats")
	require.NoError(t, err)
	s, err := prg.EvalString(docVars(map[string]any{"stats": "1,2,3"}, nil))
	require.NoError(t, err)
	assert.Equal(t, "1,2,3", s)
	assert.Equal(t, "doc.stats", prg.String())

	prg, err = Compile(env, "doc.price")
	require.NoError(t, err)
	s, err = prg.EvalString(docVars(map[string]any{"price": 2.5}, nil))
	require.NoError(t, err)
	assert.Equal(t, "2.5", s)

	_, err = prg.EvalBool(docVars(map[string]any{"price": 2.5}, nil))
	assert.Error(t, err)
}

func TestCompile_Errors(t *testing.T) {
	env, err := DocEnv()
	require.NoError(t, err)

	_, err = Compile(env, "  ")
	assert.Error(t, err)
	_, err = Compile(env, "doc.ctr +")
	assert.Error(t, err)
	_, err = Compile(env, "unknown_var > 1")
	assert.Error(t, err)
}

func TestNumberEnv(t *testing.T) {
	env, err := NumberEnv([]string{"a", "b", "a"})
	require.NoError(t, err)
	prg, err := Compile(env, "a * 2.0 + b")
	require.NoError(t, err)
	got, err := prg.EvalFloat(map[string]any{"a": 1.5, "b": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 3.5, got)
}
