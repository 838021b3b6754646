package render

import (
	"html"
	"strings"

	"github.com/dusk-indust/briefing/internal/citation"
)

const (
	anchorStyle      = "text-decoration: none; color: #2563eb;"
	superscriptStyle = "vertical-align: super; font-size: 0.75rem; font-weight: 600; color: #2563eb;"
	regularStyle     = "font-size: 0.9em; font-weight: 600; margin-left: 2px; color: #2563eb;"
)

// renderCitations replaces every [[CITE_GROUP:...]] token in body.
func renderCitations(body string, refs citation.Result, style Style) string {
	return citation.ReplaceGroups(body, func(ids []string) string {
		switch style.Kind {
		case KindNone:
			return ""
		case KindUserDefined:
			return userDefined(ids, refs, style)
		default:
			return anchors(ids, refs, style)
		}
	})
}

func href(id string, refs citation.Result, style Style) string {
	if style.LinkTarget == LinkInternal {
		return "#ref-" + html.EscapeString(id)
	}
	return html.EscapeString(refs.URL(id))
}

func userDefined(ids []string, refs citation.Result, style Style) string {
	target := ""
	if style.LinkTarget == LinkExternal {
		target = `target="_blank"`
	}
	var parts []string
	for _, id := range ids {
		label, ok := refs.Labels[id]
		if !ok {
			continue
		}
		frag := strings.ReplaceAll(style.CustomTemplate, "{{ label }}", html.EscapeString(label))
		frag = strings.ReplaceAll(frag, "{{ url }}", href(id, refs, style))
		frag = strings.ReplaceAll(frag, "{{ target }}", target)
		parts = append(parts, frag)
	}
	return strings.Join(parts, ", ")
}

func anchors(ids []string, refs citation.Result, style Style) string {
	target := ""
	if style.LinkTarget == LinkExternal {
		target = ` target="_blank"`
	}
	var links []string
	for _, id := range ids {
		label, ok := refs.Labels[id]
		if !ok {
			continue
		}
		links = append(links, `<a href="`+href(id, refs, style)+`"`+target+` style="`+anchorStyle+`">`+html.EscapeString(label)+`</a>`)
	}
	if len(links) == 0 {
		return ""
	}
	spanStyle := superscriptStyle
	if style.Display == DisplayRegular {
		spanStyle = regularStyle
	}
	enc := enclosures[style.Enclosure]
	return `<span style="` + spanStyle + `">` + enc[0] + strings.Join(links, ", ") + enc[1] + `</span>`
}
