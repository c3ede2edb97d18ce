package filter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beacon/internal/ir"
)

func TestCache_SharesIdenticalSources(t *testing.T) {
	c := NewCache(0)

	a, err := c.Get([]byte(`{"p":{"eq":1}}`))
	require.NoError(t, err)
	b, err := c.Get([]byte(`{"p":{"eq":1}}`))
	require.NoError(t, err)
	assert.Same(t, a, b)

	spaced, err := c.Get([]byte("{ \"p\" : { \"eq\" : 1 } }"))
	require.NoError(t, err)
	assert.NotSame(t, a, spaced)
	assert.Equal(t, a.String(), spaced.String())
	assert.Equal(t, 2, c.Len())
}

func TestCache_CompilesSourceUnnormalized(t *testing.T) {
	decomposed := "Cafe\u0301"
	src := []byte(`{"event.properties.name":{"eq":"` + decomposed + `"}}`)

	direct, err := Compile(src)
	require.NoError(t, err)
	cached, err := NewCache(0).Get(src)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"decomposed", decomposed, true},
		{"composed", "Caf\u00e9", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ir.NewEvent("visit", ir.Properties{"name": ir.String(tt.value)})
			assert.Equal(t, tt.want, direct.Matches(ev))
			assert.Equal(t, tt.want, cached.Matches(ev))
		})
	}
}

func TestCache_CachesFailures(t *testing.T) {
	c := NewCache(10)

	_, err1 := c.Get([]byte(`{"p":{}}`))
	_, err2 := c.Get([]byte(`{"p":{}}`))
	require.Error(t, err1)
	assert.Same(t, err1, err2)
	assert.True(t, IsInvalidFilter(err2))
}

func TestCache_EvictsOldestFirst(t *testing.T) {
	c := NewCache(2)

	first, err := c.Get([]byte(`{"p":{"eq":1}}`))
	require.NoError(t, err)
	_, err = c.Get([]byte(`{"p":{"eq":2}}`))
	require.NoError(t, err)
	_, err = c.Get([]byte(`{"p":{"eq":3}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	again, err := c.Get([]byte(`{"p":{"eq":1}}`))
	require.NoError(t, err)
	assert.NotSame(t, first, again)
}

func TestCache_ConcurrentGet(t *testing.T) {
	c := NewCache(8)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := fmt.Sprintf(`{"p":{"eq":%d}}`, i%4)
			_, err := c.Get([]byte(src))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, c.Len())
}
