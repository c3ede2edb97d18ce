package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beacon/internal/ir"
)

func TestValidate_ValidSelect(t *testing.T) {
	q := Select{
		From:    "events",
		Columns: []string{"id", "name"},
		Filter: And{Predicates: []Predicate{
			In{Field: "status", Values: []ir.Value{ir.Int(0), ir.Int(3)}},
			AtMost{Field: "next_try_at", Value: ir.Int(100)},
		}},
		Limit: 10,
	}

	result := Validate(q)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_PointerQueries(t *testing.T) {
	assert.True(t, Validate(&Select{From: "data", Columns: []string{"id"}}).Valid)
	assert.True(t, Validate(&Delete{From: "data", Filter: IDs([]int64{1})}).Valid)
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"nil query", nil, "nil query"},
		{"bad table", Select{From: "events; DROP", Columns: []string{"id"}}, `table "events; DROP"`},
		{"no columns", Select{From: "events"}, "has no columns"},
		{"bad column", Select{From: "events", Columns: []string{"id", "a b"}}, `column "a b"`},
		{"negative limit", Select{From: "events", Columns: []string{"id"}, Limit: -1}, "negative limit"},
		{"unfiltered delete", Delete{From: "events"}, "has no filter"},
		{"empty in", Delete{From: "events", Filter: In{Field: "id"}}, "IN empty list"},
		{"nil equals", Delete{From: "events", Filter: Equals{Field: "id"}}, "compared to nil"},
		{"nil in and", Delete{From: "events", Filter: And{Predicates: []Predicate{nil}}}, "nil predicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)
			require.False(t, result.Valid)
			require.Error(t, result.Err())
			assert.Contains(t, result.Err().Error(), tt.want)
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	result := Validate(Select{From: "", Limit: -5})
	assert.Len(t, result.Problems, 3)
}

func TestIDs(t *testing.T) {
	pred := IDs([]int64{3, 1})
	assert.Equal(t, []Predicate{
		Equals{Field: "id", Value: ir.Int(3)},
		Equals{Field: "id", Value: ir.Int(1)},
	}, pred.Predicates)
	assert.Empty(t, IDs(nil).Predicates)
}

func TestValidate_InsertUpdate(t *testing.T) {
	ins := Insert{Into: "data", Values: []Assignment{
		{Column: "event_name", Value: "purchase"},
		{Column: "data", Value: []byte("x")},
		{Column: "expires_at", Value: int64(0)},
	}}
	assert.True(t, Validate(ins).Valid)

	upd := Update{
		Table:  "events",
		Set:    []Assignment{{Column: "status", Value: int64(3)}},
		Filter: Equals{Field: "id", Value: ir.Int(1)},
	}
	assert.True(t, Validate(&upd).Valid)
}

func TestValidate_AssignmentProblems(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"empty insert", Insert{Into: "data"}, "has no values"},
		{"int not int64", Insert{Into: "data", Values: []Assignment{{Column: "a", Value: 1}}}, "unsupported value type int"},
		{"nil value", Insert{Into: "data", Values: []Assignment{{Column: "a"}}}, "unsupported value type <nil>"},
		{"duplicate column", Insert{Into: "data", Values: []Assignment{{Column: "a", Value: "x"}, {Column: "a", Value: "y"}}}, "assigned twice"},
		{"unfiltered update", Update{Table: "events", Set: []Assignment{{Column: "a", Value: "x"}}}, "has no filter"},
		{"empty set", Update{Table: "events", Filter: IDs([]int64{1})}, "sets no columns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query).Err()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_OrRecurses(t *testing.T) {
	q := Delete{From: "data", Filter: Or{Predicates: []Predicate{
		Equals{Field: "id", Value: ir.Int(1)},
		In{Field: "id"},
	}}}
	result := Validate(q)
	assert.False(t, result.Valid)
	assert.Len(t, result.Problems, 1)
}
