package filter

import (
	"errors"
	"testing"

	"github.com/google/cel-go/cel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beacon/internal/ir"
)

func newCELOperators(t *testing.T) *CELOperators {
	t.Helper()
	ops, err := NewCELOperators()
	require.NoError(t, err)
	return ops
}

func TestCELOperators(t *testing.T) {
	ops := newCELOperators(t)

	tests := []struct {
		name  string
		src   string
		value ir.Value
		want  bool
	}{
		{"beginswith", `{"p":{"beginswith":"iPh"}}`, ir.String("iPhone"), true},
		{"beginswith miss", `{"p":{"beginswith":"Pho"}}`, ir.String("iPhone"), false},
		{"uppercase token", `{"p":{"BEGINSWITH":"iPh"}}`, ir.String("iPhone"), true},
		{"endswith", `{"p":{"endswith":"one"}}`, ir.String("iPhone"), true},
		{"not_endswith", `{"p":{"not_endswith":"one"}}`, ir.String("iPhone"), false},
		{"matches whole value", `{"p":{"matches":"i[A-Z][a-z]+"}}`, ir.String("iPhone"), true},
		{"matches is anchored", `{"p":{"matches":"Phone"}}`, ir.String("iPhone"), false},
		{"like star", `{"p":{"like":"i*e"}}`, ir.String("iPhone"), true},
		{"like question mark", `{"p":{"like":"iPa?"}}`, ir.String("iPad"), true},
		{"like quotes metacharacters", `{"p":{"like":"a.c"}}`, ir.String("abc"), false},
		{"number value", `{"p":{"beginswith":"1"}}`, ir.Int(10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile([]byte(tt.src), WithOperators(ops))
			require.NoError(t, err)
			assert.Equal(t, tt.want, Evaluate(f.Root, Projection{"p": tt.value}))
		})
	}
}

func TestCELOperators_BuiltinsTakePrecedence(t *testing.T) {
	ops := newCELOperators(t)

	f, err := Compile([]byte(`{"p":{"eq":"x"}}`), WithOperators(ops))
	require.NoError(t, err)
	assert.True(t, Evaluate(f.Root, Projection{"p": ir.String("x")}))
}

func TestCELOperators_InvalidOperands(t *testing.T) {
	ops := newCELOperators(t)

	for _, src := range []string{
		`{"p":{"beginswith":1}}`,
		`{"p":{"endswith":["a"]}}`,
		`{"p":{"matches":"("}}`,
		`{"p":{"soundslike":"a"}}`,
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Compile([]byte(src), WithOperators(ops))
			require.Error(t, err)
			assert.True(t, IsInvalidFilter(err))
		})
	}
}

func TestNewCELOperators_EnvFailure(t *testing.T) {
	orig := celNewEnv
	t.Cleanup(func() { celNewEnv = orig })
	celNewEnv = func(...cel.EnvOption) (*cel.Env, error) {
		return nil, errors.New("boom")
	}

	_, err := NewCELOperators()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
