package citation

import "strings"

// Marker keywords, in the order they are attempted at a given position.
var keywords = [...]string{"REF", "CITATION", "CITE", "CIT"}

const (
	groupOpen  = "[[CITE_GROUP:"
	groupClose = "]]"
)

// GroupMarker formats the normalized marker for a set of resolved ids.
func GroupMarker(ids ...string) string {
	return groupOpen + strings.Join(ids, ",") + groupClose
}

func isIDChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_':
		return true
	}
	return isSpace(c)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

// isSeparator reports whether c may sit between two markers of one run.
func isSeparator(c byte) bool {
	return c == ' ' || c == '\t' || c == ',' || c == ';'
}

// matchMarker tries to read a citation marker starting exactly at s[i].
// It returns the trimmed id and the index just past the marker.
func matchMarker(s string, i int) (id string, end int, ok bool) {
	if i >= len(s) || s[i] != '[' {
		return "", 0, false
	}
	for _, open := range [...]int{2, 1} {
		if i+open > len(s) || strings.Count(s[i:i+open], "[") != open {
			continue
		}
		for _, kw := range keywords {
			if id, end, ok := matchBody(s, i+open, kw); ok {
				return id, end, true
			}
		}
	}
	return "", 0, false
}

func matchBody(s string, j int, kw string) (string, int, bool) {
	if !strings.HasPrefix(s[j:], kw) {
		return "", 0, false
	}
	k := j + len(kw)
	if k < len(s) && s[k] == ':' {
		k++
	}
	start := k
	for k < len(s) && isIDChar(s[k]) {
		k++
	}
	if k == start || k >= len(s) || s[k] != ']' {
		return "", 0, false
	}
	id := strings.TrimSpace(s[start:k])
	k++
	if k < len(s) && s[k] == ']' {
		k++
	}
	return id, k, true
}

// matchGroup tries to read a [[CITE_GROUP:...]] marker at s[i] and returns
// its non-empty ids.
func matchGroup(s string, i int) (ids []string, end int, ok bool) {
	if !strings.HasPrefix(s[i:], groupOpen) {
		return nil, 0, false
	}
	bodyStart := i + len(groupOpen)
	rel := strings.IndexByte(s[bodyStart:], ']')
	if rel <= 0 || !strings.HasPrefix(s[bodyStart+rel:], groupClose) {
		return nil, 0, false
	}
	for _, id := range strings.Split(s[bodyStart:bodyStart+rel], ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, bodyStart + rel + len(groupClose), true
}

// flattenGroups rewrites every group marker into individual REF markers so
// that already-normalized text can be scanned again.
func flattenGroups(s string) string {
	if !strings.Contains(s, groupOpen) {
		return s
	}
	var b strings.Builder
	last := 0
	for i := 0; i < len(s); i++ {
		ids, end, ok := matchGroup(s, i)
		if !ok {
			continue
		}
		b.WriteString(s[last:i])
		for _, id := range ids {
			b.WriteString("[[REF:" + id + "]]")
		}
		last = end
		i = end - 1
	}
	b.WriteString(s[last:])
	return b.String()
}

// run is a maximal sequence of markers separated only by separator bytes.
type run struct {
	start, end int // byte span of the markers, separators between them included
	ids        []string
}

// nextRun finds the first run at or after from.
func nextRun(s string, from int) (run, bool) {
	for i := from; i < len(s); i++ {
		if s[i] != '[' {
			continue
		}
		id, end, ok := matchMarker(s, i)
		if !ok {
			continue
		}
		r := run{start: i, end: end, ids: []string{id}}
		for {
			j := r.end
			for j < len(s) && isSeparator(s[j]) {
				j++
			}
			id, end, ok := matchMarker(s, j)
			if !ok {
				break
			}
			r.ids = append(r.ids, id)
			r.end = end
		}
		return r, true
	}
	return run{}, false
}

// GroupIDs returns the ids of every group marker in s, in order.
func GroupIDs(s string) [][]string {
	var out [][]string
	for i := 0; i < len(s); i++ {
		ids, end, ok := matchGroup(s, i)
		if !ok {
			continue
		}
		out = append(out, ids)
		i = end - 1
	}
	return out
}

// ReplaceGroups calls fn for every group marker in s and substitutes its
// return value.
func ReplaceGroups(s string, fn func(ids []string) string) string {
	if !strings.Contains(s, groupOpen) {
		return s
	}
	var b strings.Builder
	last := 0
	for i := 0; i < len(s); i++ {
		ids, end, ok := matchGroup(s, i)
		if !ok {
			continue
		}
		b.WriteString(s[last:i])
		b.WriteString(fn(ids))
		last = end
		i = end - 1
	}
	b.WriteString(s[last:])
	return b.String()
}
