package stepcache

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/briefing/internal/store"
)

func TestHash_Canonical(t *testing.T) {
	a := map[string]any{"step_number": 2, "input_context": map[string]any{"b": 1, "a": []any{"x"}}, "prompt_text": "hi"}
	b := map[string]any{"prompt_text": "hi", "input_context": map[string]any{"a": []any{"x"}, "b": 1}, "step_number": 2}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)

	type payload struct {
		Z string `json:"z"`
		A string `json:"a"`
	}
	hs, err := Hash(payload{Z: "1", A: "2"})
	require.NoError(t, err)
	hm, err := Hash(map[string]string{"a": "2", "z": "1"})
	require.NoError(t, err)
	assert.Equal(t, hm, hs, "struct field order must not matter")
}

func TestHash_SensitiveToContent(t *testing.T) {
	h1, err := Hash(map[string]any{"prompt_text": "Summarize"})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"prompt_text": "Summarise"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHash_Unencodable(t *testing.T) {
	_, err := Hash(map[string]any{"fn": func() {}})
	assert.Error(t, err)
}

func runCache(t *testing.T, c Cache) {
	ctx := context.Background()
	k := Key{UserID: "u1", Step: 3, Hash: "h"}

	_, ok, err := c.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, k, []byte(`"first"`)))
	require.NoError(t, c.Put(ctx, k, []byte(`"second"`)))

	got, ok, err := c.Get(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"second"`, string(got))

	_, ok, err = c.Get(ctx, Key{UserID: "u2", Step: 3, Hash: "h"})
	require.NoError(t, err)
	assert.False(t, ok, "keys are scoped per user")
}

func TestMemory(t *testing.T) {
	runCache(t, NewMemory())
}

func TestStoreCache(t *testing.T) {
	runCache(t, NewStoreCache(store.NewMemStore()))
}

func TestMemory_ConcurrentPuts(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Put(ctx, Key{UserID: "u", Step: i % 5, Hash: "h"}, []byte{byte(i)})
			_, _, _ = c.Get(ctx, Key{UserID: "u", Step: i % 5, Hash: "h"})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, c.Len())
}

func TestMemory_ReturnsCopy(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	k := Key{UserID: "u", Step: 1, Hash: "h"}
	buf := []byte("abc")
	require.NoError(t, c.Put(ctx, k, buf))
	buf[0] = 'x'

	got, _, _ := c.Get(ctx, k)
	assert.Equal(t, "abc", string(got))
}
