package layout

import (
	"log/slog"
	"sort"

	"github.com/roach88/reflow/internal/ident"
)

// Entry is one wildcard id found in the tree: its sorted keys, their values
// and its location.
type Entry struct {
	Keys   []string
	Values []ident.Value
	Path   Path
}

// ID rebuilds the wildcard id of the entry.
func (e Entry) ID() ident.ID {
	return ident.Zip(e.Keys, e.Values)
}

// Index maps live ids to paths.
//
// Plain ids are keyed by their string. Wildcard ids are bucketed by key
// signature (sorted, comma-joined keys) and scanned linearly within a bucket.
type Index struct {
	strs map[string]Path
	objs map[string][]Entry
	dups []string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		strs: make(map[string]Path),
		objs: make(map[string][]Entry),
	}
}

// Crawl visits every component in tree in document order. Arrays recurse
// per element; objects are visited, then their props.children is crawled.
func Crawl(tree any, fn func(node map[string]any, p Path)) {
	crawl(tree, fn, Path{})
}

func crawl(node any, fn func(map[string]any, Path), p Path) {
	switch v := node.(type) {
	case []any:
		for i, child := range v {
			crawl(child, fn, p.Append(i))
		}
	case map[string]any:
		fn(v, p)
		if children, ok := childrenOf(v); ok {
			crawl(children, fn, p.Append("props", "children"))
		}
	}
}

func childrenOf(node map[string]any) (any, bool) {
	props, ok := node["props"].(map[string]any)
	if !ok {
		return nil, false
	}
	children, ok := props["children"]
	if !ok || children == nil {
		return nil, false
	}
	return children, true
}

// NodeID returns the id of a component node, if it carries a usable one.
func NodeID(node map[string]any) (ident.ID, bool) {
	props, ok := node["props"].(map[string]any)
	if !ok {
		return ident.ID{}, false
	}
	raw, ok := props["id"]
	if !ok || raw == nil || raw == "" {
		return ident.ID{}, false
	}
	id, err := ident.FromAny(raw)
	if err != nil {
		slog.Warn("ignoring component with unusable id", "id", raw, "error", err)
		return ident.ID{}, false
	}
	return id, true
}

// Compute indexes subtree, which lives at startingPath in the full tree.
//
// An id seen twice is owned by its last occurrence, plain or wildcard; the
// earlier path is dropped and the id is listed in Duplicates.
//
// With a non-empty startingPath the previous index is carried over, minus
// every entry located under startingPath. With an empty one (or a nil
// previous index) the result covers subtree alone. previous is not modified.
func Compute(subtree any, startingPath Path, previous *Index) *Index {
	ix := NewIndex()
	if previous != nil && len(startingPath) > 0 {
		for id, p := range previous.strs {
			if !p.HasPrefix(startingPath) {
				ix.strs[id] = p
			}
		}
		for sig, entries := range previous.objs {
			var kept []Entry
			for _, e := range entries {
				if !e.Path.HasPrefix(startingPath) {
					kept = append(kept, e)
				}
			}
			if len(kept) > 0 {
				ix.objs[sig] = kept
			}
		}
	}

	Crawl(subtree, func(node map[string]any, local Path) {
		id, ok := NodeID(node)
		if !ok {
			return
		}
		full := startingPath.Append(local...)
		if !id.IsWildcard() {
			key := id.String()
			if _, seen := ix.strs[key]; seen {
				ix.dups = append(ix.dups, key)
			}
			ix.strs[key] = full
			return
		}
		sig := id.KeySignature()
		keys := id.Keys()
		values := id.Values(keys)
		entries := ix.objs[sig]
		if i := entryIndex(entries, values); i >= 0 {
			ix.dups = append(ix.dups, id.String())
			entries = append(entries[:i:i], entries[i+1:]...)
		}
		ix.objs[sig] = append(entries, Entry{Keys: keys, Values: values, Path: full})
	})

	if len(ix.dups) > 0 {
		slog.Warn("duplicate component ids in layout", "ids", ix.dups)
	}
	return ix
}

// Lookup returns the path of id.
func (ix *Index) Lookup(id ident.ID) (Path, bool) {
	if !id.IsWildcard() {
		p, ok := ix.strs[id.String()]
		return p, ok
	}
	entries := ix.objs[id.KeySignature()]
	i := entryIndex(entries, id.Values(id.Keys()))
	if i < 0 {
		return nil, false
	}
	return entries[i].Path, true
}

func entryIndex(entries []Entry, values []ident.Value) int {
	for i, e := range entries {
		if valuesEqual(e.Values, values) {
			return i
		}
	}
	return -1
}

func valuesEqual(a, b []ident.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Entries returns the wildcard ids sharing a key signature, in tree order.
func (ix *Index) Entries(signature string) []Entry {
	return ix.objs[signature]
}

// Has reports whether id is present.
func (ix *Index) Has(id ident.ID) bool {
	_, ok := ix.Lookup(id)
	return ok
}

// Duplicates lists ids seen more than once during the Compute that built
// this index.
func (ix *Index) Duplicates() []string {
	return ix.dups
}

// Len returns the number of indexed ids.
func (ix *Index) Len() int {
	n := len(ix.strs)
	for _, entries := range ix.objs {
		n += len(entries)
	}
	return n
}

// IDs returns every indexed id in canonical string order.
func (ix *Index) IDs() []ident.ID {
	ids := make([]ident.ID, 0, ix.Len())
	for s := range ix.strs {
		ids = append(ids, ident.NewPlain(s))
	}
	for _, entries := range ix.objs {
		for _, e := range entries {
			ids = append(ids, e.ID())
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
