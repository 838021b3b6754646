package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemStore() })
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Driver: "postgres"})
	assert.ErrorContains(t, err, "unknown driver")
}

func TestReadCorpus(t *testing.T) {
	doc := `
sources:
  - id: s1
    user_id: u1
    name: Wire
articles:
  - id: a1
    source_id: s1
    title: Hello
    url: https://example.com/a1
    published_at: 2025-03-10T08:00:00Z
    tags: [One, Two]
`
	c, err := ReadCorpus(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, c.Articles, 1)
	assert.Equal(t, 2025, c.Articles[0].PublishedAt.Year())

	s := NewMemStore()
	require.NoError(t, c.Load(context.Background(), s))
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Articles)

	_, err = ReadCorpus(strings.NewReader("sources:\n  - id: s1\n    bogus: 1\n"))
	assert.Error(t, err)
}

func TestListText(t *testing.T) {
	assert.Equal(t, "[]", ListText(nil))
	assert.Equal(t, `["a","b"]`, ListText([]string{"a", "b"}))
}
