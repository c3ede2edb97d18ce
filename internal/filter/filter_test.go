package filter

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beacon/internal/ir"
)

func event(props ir.Properties) ir.Event {
	return ir.NewEvent("purchase", props)
}

func TestCompile_ItemNameEquality(t *testing.T) {
	f, err := Compile([]byte(`{"event.properties.item_name":{"eq":"iPhone"}}`))
	require.NoError(t, err)

	assert.True(t, f.Matches(event(ir.Properties{"item_name": ir.String("iPhone")})))
	assert.False(t, f.Matches(event(ir.Properties{"item_name": ir.String("iPhone ")})))
	assert.False(t, f.Matches(event(ir.Properties{"item_name": ir.Int(10)})))
	assert.False(t, f.Matches(event(nil)))
}

func TestCompile_LogicalComposition(t *testing.T) {
	and := MustCompile(`{"AND":[{"event.properties.a":{"eq":1}},{"event.properties.b":{"eq":2}}]}`)
	or := MustCompile(`{"OR":[{"event.properties.a":{"eq":1}},{"event.properties.b":{"eq":2}}]}`)

	tests := []struct {
		name  string
		props ir.Properties
		and   bool
		or    bool
	}{
		{"both", ir.Properties{"a": ir.Int(1), "b": ir.Int(2)}, true, true},
		{"only a", ir.Properties{"a": ir.Int(1), "b": ir.Int(3)}, false, true},
		{"only b", ir.Properties{"b": ir.Int(2)}, false, true},
		{"neither", ir.Properties{"a": ir.String("1"), "b": ir.String("2")}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.and, and.Matches(event(tt.props)))
			assert.Equal(t, tt.or, or.Matches(event(tt.props)))
		})
	}
}

func TestCompile_LogicalKeywordIsCaseInsensitive(t *testing.T) {
	f, err := Compile([]byte(`{"or":[{"event.properties.a":{"eq":1}},{"event.properties.a":{"eq":2}}]}`))
	require.NoError(t, err)

	_, ok := f.Root.(*Or)
	require.True(t, ok)
	assert.True(t, f.Matches(event(ir.Properties{"a": ir.Int(2)})))
}

func TestCompile_ListsAreFlattened(t *testing.T) {
	f, err := Compile([]byte(`{"AND":[[{"event.properties.a":{"eq":1}},null],[[{"event.properties.b":{"eq":2}}]]]}`))
	require.NoError(t, err)

	and, ok := f.Root.(*And)
	require.True(t, ok)
	assert.Len(t, and.Children, 2)
}

func TestCompile_TopLevelListIsConjunction(t *testing.T) {
	f, err := Compile([]byte(`[{"event.properties.a":{"gt":1}},{"event.properties.a":{"lt":5}}]`))
	require.NoError(t, err)

	assert.True(t, f.Matches(event(ir.Properties{"a": ir.Int(3)})))
	assert.False(t, f.Matches(event(ir.Properties{"a": ir.Int(5)})))
}

func TestCompile_InvalidFilters(t *testing.T) {
	tests := []struct {
		name string
		src  string
		path string
	}{
		{"malformed json", `{"a":`, "$"},
		{"trailing data", `{"a":{"eq":1}} {}`, "$"},
		{"null", `null`, "$"},
		{"empty list", `[]`, "$"},
		{"scalar", `"x"`, "$"},
		{"two top-level keys", `{"a":{"eq":1},"b":{"eq":2}}`, "$"},
		{"missing operator", `{"a":{}}`, "$.a"},
		{"two operators", `{"a":{"eq":1,"gt":0}}`, "$.a"},
		{"operator not an object", `{"a":"eq"}`, "$.a"},
		{"AND child not a list", `{"AND":{"a":{"eq":1}}}`, "$.AND"},
		{"OR without children", `{"OR":[]}`, "$.OR"},
		{"AND of nulls", `{"AND":[null,null]}`, "$.AND"},
		{"unknown logical keyword", `{"NOT":[{"a":{"eq":1}}]}`, "$.NOT"},
		{"unknown operator", `{"a":{"beginswith":"x"}}`, "$.a.beginswith"},
		{"bare not_ prefix", `{"a":{"not_":1}}`, "$.a.not_"},
		{"null operand", `{"a":{"eq":null}}`, "$.a.eq"},
		{"object operand", `{"a":{"eq":{"b":1}}}`, "$.a.eq"},
		{"nested list operand", `{"a":{"in":[[1]]}}`, "$.a.in[0]"},
		{"bad nested leaf", `{"AND":[{"a":{"eq":1}},{"b":{}}]}`, "$.AND[1].b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]byte(tt.src))
			require.Error(t, err)
			assert.True(t, IsInvalidFilter(err))

			var fe *FilterError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, ErrCodeInvalidFilter, fe.Code)
			assert.Equal(t, tt.path, fe.Path)
		})
	}
}

func TestOperators(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		value ir.Value
		want  bool
	}{
		{"eq string", `{"p":{"eq":"a"}}`, ir.String("a"), true},
		{"eq number vs string", `{"p":{"eq":"10"}}`, ir.Int(10), false},
		{"eq int vs double", `{"p":{"eq":10}}`, ir.Double(10), true},
		{"eq large int exact", `{"p":{"eq":9007199254740993}}`, ir.Int(9007199254740993), true},
		{"eq large int neighbour", `{"p":{"eq":9007199254740993}}`, ir.Int(9007199254740992), false},
		{"in large int neighbour", `{"p":{"in":[9007199254740993]}}`, ir.Int(9007199254740992), false},
		{"eq bool", `{"p":{"eq":true}}`, ir.Bool(true), true},
		{"eq list operand", `{"p":{"eq":["a"]}}`, ir.String("a"), false},
		{"gt", `{"p":{"gt":1}}`, ir.Double(1.5), true},
		{"gt equal", `{"p":{"gt":1}}`, ir.Int(1), false},
		{"gte equal", `{"p":{"gte":1}}`, ir.Int(1), true},
		{"lt", `{"p":{"lt":0}}`, ir.Int(-1), true},
		{"lte", `{"p":{"lte":2.5}}`, ir.Int(3), false},
		{"gt on string value", `{"p":{"gt":1}}`, ir.String("2"), false},
		{"gt with string operand", `{"p":{"gt":"1"}}`, ir.Int(2), false},
		{"contains", `{"p":{"contains":"Pho"}}`, ir.String("iPhone"), true},
		{"contains case-sensitive", `{"p":{"contains":"pho"}}`, ir.String("iPhone"), false},
		{"contains on number", `{"p":{"contains":"1"}}`, ir.Int(10), false},
		{"in list", `{"p":{"in":["iPhone","iPad"]}}`, ir.String("iPad"), true},
		{"in list miss", `{"p":{"in":["iPhone","iPad"]}}`, ir.String("Mac"), false},
		{"in list numeric", `{"p":{"in":[1,2]}}`, ir.Int(2), true},
		{"in empty list", `{"p":{"in":[]}}`, ir.Int(2), false},
		{"in string", `{"p":{"in":"iPhone iPad"}}`, ir.String("iPad"), true},
		{"not_eq", `{"p":{"not_eq":"a"}}`, ir.String("b"), true},
		{"not_in", `{"p":{"not_in":["a","b"]}}`, ir.String("a"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile([]byte(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, Evaluate(f.Root, Projection{"p": tt.value}))
		})
	}
}

func TestEvaluate_MissingPath(t *testing.T) {
	f := MustCompile(`{"event.properties.missing":{"eq":1}}`)
	assert.False(t, f.Matches(event(ir.Properties{"other": ir.Int(1)})))

	negated := MustCompile(`{"event.properties.missing":{"not_eq":1}}`)
	assert.True(t, negated.Matches(event(ir.Properties{"other": ir.Int(1)})))
}

func TestProject_HidesContext(t *testing.T) {
	ev := event(ir.Properties{"a": ir.Int(1)})
	ev.Context = ir.Properties{"secret": ir.String("x")}

	p := Project(ev)
	assert.Equal(t, Projection{"event.properties.a": ir.Int(1)}, p)

	f := MustCompile(`{"event.context.secret":{"eq":"x"}}`)
	assert.False(t, f.Matches(ev))
}

func TestFilter_GoldenTrees(t *testing.T) {
	sources := []string{
		`{"event.properties.item_name":{"eq":"iPhone"}}`,
		`{"AND":[{"a":{"eq":1}},{"b":{"not_eq":2}}]}`,
		`{"or":[{"x":{"in":["iPhone","iPad"]}},[{"y":{"gte":1.5}},null]]}`,
		`[{"a":{"lt":10}},{"b":{"contains":"pro"}}]`,
		`{"AND":[{"OR":[{"a":{"eq":true}},{"b":{"eq":false}}]},{"c":{"lte":-3}}]}`,
	}

	var b strings.Builder
	for _, src := range sources {
		f, err := Compile([]byte(src))
		require.NoError(t, err)
		b.WriteString(f.String())
		b.WriteString("\n")
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "filter_trees", []byte(b.String()))
}
