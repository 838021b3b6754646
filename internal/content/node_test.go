package content

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsEntryOrder(t *testing.T) {
	doc := `{"zeta":"z","alpha":{"b":[1,"two",true,null],"a":2.50},"mid":""}`

	n, err := ParseString(doc)
	require.NoError(t, err)
	require.Equal(t, KindMap, n.Kind())

	var keys []string
	for _, f := range n.Fields() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, keys)

	out, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, doc, string(out))
}

func TestParseRejectsBrokenDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":     "  ",
		"truncated": `{"a": 1`,
		"trailing":  `{"a": 1} extra`,
		"comma":     `{"a": 1,}`,
		"escape":    `{"a": "\u12"}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseString(doc)
			assert.Error(t, err)
		})
	}
}

func TestParseReportsTrailingGarbage(t *testing.T) {
	for _, doc := range []string{`{"a": 1} extra`, `[1] }`, `"s" x`, `42 x`, `{"a": 1} {"b": 2}`} {
		_, err := ParseString(doc)
		assert.ErrorIs(t, err, ErrTrailingData, doc)
	}

	n, err := ParseString("{\"a\": 1}  \n")
	require.NoError(t, err)
	assert.Equal(t, KindMap, n.Kind())
}

func TestParseTopLevelNumber(t *testing.T) {
	n, err := ParseString("42")
	require.NoError(t, err)
	assert.Equal(t, "42", n.Literal())
}

func TestRewriteVisitsLeavesInOrder(t *testing.T) {
	tree := Map(
		F("title", String("t")),
		F("sections", List(
			Map(F("heading", String("h1")), F("body", String("b1"))),
			String("loose"),
		)),
		F("count", Number("3")),
	)

	var seen []string
	out := tree.Rewrite(func(s string) string {
		seen = append(seen, s)
		return strings.ToUpper(s)
	})

	assert.Equal(t, []string{"t", "h1", "b1", "loose"}, seen)
	assert.Equal(t, "T", out.GetString("title"))
	count, _ := out.Get("count")
	assert.Equal(t, "3", count.Literal())
	// The input tree is left untouched.
	assert.Equal(t, "t", tree.GetString("title"))
}

func TestSetKeepsPosition(t *testing.T) {
	tree := Map(F("a", String("1")), F("b", String("2")))

	updated := tree.Set("a", String("x")).Set("c", String("3"))

	assert.Equal(t, `{"a":"x","b":"2","c":"3"}`, mustJSON(t, updated))
	assert.Equal(t, `{"a":"1","b":"2"}`, mustJSON(t, tree))
}

func TestEmpty(t *testing.T) {
	assert.True(t, Null().Empty())
	assert.True(t, Map().Empty())
	assert.True(t, String("  ").Empty())
	assert.False(t, Map(F("a", Null())).Empty())
	assert.False(t, Bool(false).Empty())
}

func TestFromValueAndInterface(t *testing.T) {
	n := FromValue(map[string]any{"b": []any{"x", 1}, "a": true})

	assert.Equal(t, `{"a":true,"b":["x",1]}`, mustJSON(t, n))

	plain, ok := n.Interface().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, plain["a"])
	assert.Equal(t, []any{"x", json.Number("1")}, plain["b"])
}

func TestEqual(t *testing.T) {
	a := Map(F("k", List(String("v"))))
	b := Map(F("k", List(String("v"))))
	c := Map(F("k", List(String("w"))))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, Map(F("x", Null()), F("y", Null())).Equal(Map(F("y", Null()), F("x", Null()))))
}

func mustJSON(t *testing.T, n Node) string {
	t.Helper()
	out, err := json.Marshal(n)
	require.NoError(t, err)
	return string(out)
}
