package layout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/ident"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

const sampleLayout = `{
  "type": "Div",
  "props": {
    "id": "root",
    "children": [
      {"type": "Input", "props": {"id": "in", "value": 1}},
      {"type": "Div", "props": {"id": "out", "children": "text"}},
      {"type": "Div", "props": {"id": "list", "children": [
        {"type": "Button", "props": {"id": {"type": "btn", "index": 1}}},
        {"type": "Button", "props": {"id": {"type": "btn", "index": 2}}}
      ]}}
    ]
  }
}`

func TestCompute_FullTree(t *testing.T) {
	ix := Compute(decode(t, sampleLayout), nil, nil)

	p, ok := ix.Lookup(ident.NewPlain("root"))
	require.True(t, ok)
	assert.Equal(t, Path{}, p)

	p, ok = ix.Lookup(ident.NewPlain("out"))
	require.True(t, ok)
	assert.Equal(t, Path{"props", "children", 1}, p)

	p, ok = ix.Lookup(ident.W("type", "btn", "index", 2))
	require.True(t, ok)
	assert.Equal(t, Path{"props", "children", 2, "props", "children", 1}, p)

	_, ok = ix.Lookup(ident.W("type", "btn", "index", 3))
	assert.False(t, ok)

	assert.Equal(t, 5, ix.Len())
	assert.Len(t, ix.Entries("index,type"), 2)
	assert.Empty(t, ix.Duplicates())
}

func TestCompute_IncrementalReplacesSubtree(t *testing.T) {
	tree := decode(t, sampleLayout)
	ix := Compute(tree, nil, nil)

	start := Path{"props", "children", 2, "props", "children"}
	replacement := decode(t, `[{"type": "Button", "props": {"id": {"type": "btn", "index": 9}}}]`)

	next := Compute(replacement, start, ix)

	_, ok := next.Lookup(ident.W("type", "btn", "index", 1))
	assert.False(t, ok, "old entries under the starting path are dropped")

	p, ok := next.Lookup(ident.W("type", "btn", "index", 9))
	require.True(t, ok)
	assert.Equal(t, start.Append(0), p)

	_, ok = next.Lookup(ident.NewPlain("in"))
	assert.True(t, ok, "entries outside the starting path survive")

	_, ok = ix.Lookup(ident.W("type", "btn", "index", 1))
	assert.True(t, ok, "previous index is not modified")
}

func TestCompute_Duplicates(t *testing.T) {
	tree := decode(t, `[{"props": {"id": "a"}}, {"props": {"id": "a"}}]`)
	ix := Compute(tree, nil, nil)
	assert.Equal(t, []string{"a"}, ix.Duplicates())
}

func TestCompute_DuplicatesLastOccurrenceWins(t *testing.T) {
	tree := decode(t, `[
	  {"props": {"id": "dup"}},
	  {"props": {"id": {"i": 1}}},
	  {"props": {"id": "dup"}},
	  {"props": {"id": {"i": 1}}}
	]`)
	ix := Compute(tree, nil, nil)

	p, ok := ix.Lookup(ident.NewPlain("dup"))
	require.True(t, ok)
	assert.Equal(t, Path{2}, p)

	p, ok = ix.Lookup(ident.W("i", 1))
	require.True(t, ok)
	assert.Equal(t, Path{3}, p)

	entries := ix.Entries("i")
	require.Len(t, entries, 1, "a duplicate wildcard id keeps one entry")
	assert.Equal(t, Path{3}, entries[0].Path)
	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, []string{"dup", `{"i":1}`}, ix.Duplicates())
}

func TestCompute_IncrementalDuplicateReplacesCarriedEntry(t *testing.T) {
	tree := decode(t, `[{"props": {"id": {"i": 1}}}, {"props": {"children": []}}]`)
	ix := Compute(tree, nil, nil)

	start := Path{1, "props", "children"}
	next := Compute(decode(t, `[{"props": {"id": {"i": 1}}}]`), start, ix)

	p, ok := next.Lookup(ident.W("i", 1))
	require.True(t, ok)
	assert.Equal(t, start.Append(0), p)
	assert.Len(t, next.Entries("i"), 1)
	assert.Len(t, ix.Entries("i"), 1, "previous index is not modified")
}

func TestCrawl_Order(t *testing.T) {
	var seen []string
	Crawl(decode(t, sampleLayout), func(node map[string]any, p Path) {
		if id, ok := NodeID(node); ok {
			seen = append(seen, id.String())
		}
	})
	assert.Equal(t, []string{
		"root", "in", "out", "list",
		`{"index":1,"type":"btn"}`, `{"index":2,"type":"btn"}`,
	}, seen)
}

func TestIndex_IDs(t *testing.T) {
	ix := Compute(decode(t, sampleLayout), nil, nil)
	var got []string
	for _, id := range ix.IDs() {
		got = append(got, id.String())
	}
	assert.Equal(t, []string{
		"in", "list", "out", "root",
		`{"index":1,"type":"btn"}`, `{"index":2,"type":"btn"}`,
	}, got)
}
