// Package citation reconciles inline citation markers in generated content
// against the articles a report was built from.
//
// Reconcile rewrites every string leaf of a content tree so that markers such
// as [[REF:x]] or [CITATION:2] become normalized [[CITE_GROUP:id,...]] tokens,
// and returns the ordered reference list those tokens point at. It is pure:
// the numbering table lives for the duration of one call.
package citation

import (
	"strconv"
	"strings"

	"github.com/dusk-indust/briefing/internal/content"
)

// Candidate is an article that citations may resolve to.
type Candidate struct {
	ID         string
	Title      string
	URL        string
	SourceName string
	ShortName  string
}

// LabelStyle selects what a reference's citation label shows.
type LabelStyle int

const (
	// LabelNumber labels a reference with its sequence number.
	LabelNumber LabelStyle = iota
	// LabelSource labels a reference with its source's short name.
	LabelSource
)

// Options controls how marker runs are normalized.
type Options struct {
	Group      bool
	LeaveSpace bool
	Labels     LabelStyle
}

// DefaultOptions groups adjacent citations, strips leading space and labels
// references by number.
func DefaultOptions() Options {
	return Options{Group: true}
}

// Reference is one numbered bibliography entry.
type Reference struct {
	ID         string `json:"id"`
	Number     int    `json:"number"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	SourceName string `json:"source_name"`
	Label      string `json:"citation"`
}

// Result is the output of Reconcile.
type Result struct {
	Tree       content.Node
	References []Reference
	// Labels maps article id to citation label.
	Labels map[string]string
	// Numbers maps article id to sequence number.
	Numbers map[string]int
}

// SourceGroup is the set of references that share a source name.
type SourceGroup struct {
	Source     string      `json:"source"`
	References []Reference `json:"references"`
}

// BySource groups references by source name, in first-seen order.
func (r Result) BySource() []SourceGroup {
	var groups []SourceGroup
	index := make(map[string]int)
	for _, ref := range r.References {
		i, ok := index[ref.SourceName]
		if !ok {
			i = len(groups)
			index[ref.SourceName] = i
			groups = append(groups, SourceGroup{Source: ref.SourceName})
		}
		groups[i].References = append(groups[i].References, ref)
	}
	return groups
}

// URL returns the url of a cited article, or "#" when it was never cited.
func (r Result) URL(id string) string {
	for _, ref := range r.References {
		if ref.ID == id {
			return ref.URL
		}
	}
	return "#"
}

// Reconcile normalizes every citation in tree against candidates.
// Citations that resolve to no candidate are removed.
func Reconcile(tree content.Node, candidates []Candidate, opts Options) Result {
	tbl := newTable(candidates, opts.Labels)
	out := tree.Rewrite(func(s string) string {
		return rewriteLeaf(s, tbl, opts)
	})
	return Result{
		Tree:       out,
		References: tbl.refs,
		Labels:     tbl.labels(),
		Numbers:    tbl.numbers,
	}
}

// ExtractIDs returns the distinct raw ids referenced by markers and group
// markers anywhere in tree, in first-seen order.
func ExtractIDs(tree content.Node) []string {
	var ids []string
	seen := make(map[string]bool)
	tree.Walk(func(s string) {
		s = flattenGroups(s)
		for pos := 0; ; {
			r, ok := nextRun(s, pos)
			if !ok {
				return
			}
			for _, id := range r.ids {
				if id != "" && !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
			pos = r.end
		}
	})
	return ids
}

func rewriteLeaf(s string, tbl *table, opts Options) string {
	s = flattenGroups(s)

	var b strings.Builder
	last := 0
	for {
		r, ok := nextRun(s, last)
		if !ok {
			break
		}
		ws := r.start
		for ws > last && (s[ws-1] == ' ' || s[ws-1] == '\t') {
			ws--
		}
		b.WriteString(s[last:ws])
		leading := s[ws:r.start]

		marker := tbl.markers(r.ids, opts.Group)
		switch {
		case marker == "" && opts.LeaveSpace:
			b.WriteString(leading)
		case marker == "":
		case opts.LeaveSpace && (leading != "" || ws > 0):
			b.WriteString(" " + marker)
		default:
			b.WriteString(marker)
		}
		last = r.end
	}
	b.WriteString(s[last:])
	return b.String()
}

// table is the resolution state threaded through one Reconcile call.
type table struct {
	byID     map[string]Candidate
	byIndex  []string
	bySource map[string]string
	style    LabelStyle

	numbers map[string]int
	refs    []Reference
}

func newTable(candidates []Candidate, style LabelStyle) *table {
	t := &table{
		byID:     make(map[string]Candidate, len(candidates)),
		byIndex:  make([]string, len(candidates)),
		bySource: make(map[string]string),
		style:    style,
		numbers:  make(map[string]int),
	}
	for i, c := range candidates {
		if _, dup := t.byID[c.ID]; !dup {
			t.byID[c.ID] = c
		}
		t.byIndex[i] = c.ID
		for _, name := range []string{c.SourceName, c.ShortName} {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" {
				continue
			}
			if _, taken := t.bySource[key]; !taken {
				t.bySource[key] = c.ID
			}
		}
	}
	return t
}

// resolve maps a raw marker id to a candidate id: literal id first, then
// 1-based position, then source name.
func (t *table) resolve(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if _, ok := t.byID[raw]; ok {
		return raw, true
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= len(t.byIndex) && strconv.Itoa(n) == raw {
		return t.byIndex[n-1], true
	}
	if id, ok := t.bySource[strings.ToLower(raw)]; ok {
		return id, true
	}
	return "", false
}

// cite resolves raw and assigns the next number on first use.
func (t *table) cite(raw string) (string, bool) {
	id, ok := t.resolve(raw)
	if !ok {
		return "", false
	}
	if _, numbered := t.numbers[id]; numbered {
		return id, true
	}
	num := len(t.refs) + 1
	t.numbers[id] = num
	c := t.byID[id]

	source := c.SourceName
	if source == "" {
		source = "Unknown Source"
	}
	label := strconv.Itoa(num)
	if t.style == LabelSource {
		label = source
		if c.ShortName != "" {
			label = c.ShortName
		}
	}
	t.refs = append(t.refs, Reference{
		ID:         id,
		Number:     num,
		Title:      c.Title,
		URL:        c.URL,
		SourceName: source,
		Label:      label,
	})
	return id, true
}

// markers resolves the ids of one run and formats its replacement text.
func (t *table) markers(raw []string, group bool) string {
	var resolved []string
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		id, ok := t.cite(r)
		if !ok {
			continue
		}
		if group && seen[id] {
			continue
		}
		seen[id] = true
		resolved = append(resolved, id)
	}
	if len(resolved) == 0 {
		return ""
	}
	if group {
		return GroupMarker(resolved...)
	}
	var b strings.Builder
	for _, id := range resolved {
		b.WriteString(GroupMarker(id))
	}
	return b.String()
}

func (t *table) labels() map[string]string {
	out := make(map[string]string, len(t.refs))
	for _, ref := range t.refs {
		out[ref.ID] = ref.Label
	}
	return out
}
