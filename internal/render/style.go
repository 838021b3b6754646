package render

import (
	"github.com/spf13/cast"

	"github.com/dusk-indust/briefing/internal/citation"
)

// Kind is the citation rendering style of a formatting config.
type Kind string

const (
	KindNone               Kind = "none"
	KindUserDefined        Kind = "user_defined"
	KindNumericSuperscript Kind = "numeric_superscript"
	KindInlineSourceLink   Kind = "inline_source_link"
	KindSourceBracket      Kind = "source_bracket"
)

// Enclosure values.
const (
	EnclosureNone        = "none"
	EnclosureParenthesis = "parenthesis"
	EnclosureSquare      = "square_brackets"
	EnclosureCurly       = "curly_braces"
)

// Display and link target values.
const (
	DisplaySuperscript = "superscript"
	DisplayRegular     = "regular"
	LinkExternal       = "external"
	LinkInternal       = "internal"
)

// DefaultCitationTemplate is used by user_defined styles without a template.
const DefaultCitationTemplate = `<span class="cite"><a href="{{ url }}" {{ target }}>{{ label }}</a></span>`

// Style is the resolved citation style of a formatting config.
type Style struct {
	Kind           Kind
	Enclosure      string
	Display        string
	LinkTarget     string
	CustomTemplate string
	Group          bool
	LeaveSpace     bool
}

// DefaultStyle is numeric superscript in square brackets linking out.
func DefaultStyle() Style {
	return ParseStyle("", nil)
}

// ParseStyle resolves a citation type and its loosely typed parameters.
// Unknown or missing values fall back to defaults.
func ParseStyle(citationType string, params map[string]any) Style {
	s := Style{
		Kind:           Kind(citationType),
		Enclosure:      cast.ToString(params["enclosure"]),
		Display:        cast.ToString(params["display_style"]),
		LinkTarget:     cast.ToString(params["link_target"]),
		CustomTemplate: cast.ToString(params["citation_template"]),
		Group:          true,
		LeaveSpace:     cast.ToBool(params["leave_space"]),
	}
	if s.Kind == "" {
		s.Kind = KindNumericSuperscript
	}
	if v, ok := params["group_citations"]; ok && v != nil {
		s.Group = cast.ToBool(v)
	}
	if s.Kind == KindUserDefined {
		s.Group = false
	}
	if _, ok := enclosures[s.Enclosure]; !ok {
		s.Enclosure = EnclosureSquare
	}
	if s.Display != DisplayRegular {
		s.Display = DisplaySuperscript
	}
	if s.LinkTarget != LinkInternal {
		s.LinkTarget = LinkExternal
	}
	if s.CustomTemplate == "" {
		s.CustomTemplate = DefaultCitationTemplate
	}
	return s
}

// ReconcileOptions returns the reconciliation options this style implies.
func (s Style) ReconcileOptions() citation.Options {
	opts := citation.Options{Group: s.Group, LeaveSpace: s.LeaveSpace}
	if s.Kind == KindInlineSourceLink || s.Kind == KindSourceBracket {
		opts.Labels = citation.LabelSource
	}
	return opts
}

var enclosures = map[string][2]string{
	EnclosureNone:        {"", ""},
	EnclosureParenthesis: {"(", ")"},
	EnclosureSquare:      {"[", "]"},
	EnclosureCurly:       {"{", "}"},
}
