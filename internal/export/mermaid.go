package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// GenerateMermaid produces a Mermaid flowchart of a bundle: one node per
// configured stage, in execution order. Stages without a config are drawn
// dashed as skipped.
func GenerateMermaid(b *Bundle) string {
	type node struct {
		id, label string
		skipped   bool
	}
	nodes := []node{{id: "S1", label: "Select: " + filterSummary(b.SourceConfig, b.SourceTemplate)}}

	add := func(id, stage, name, detail string, present bool) {
		if !present {
			nodes = append(nodes, node{id: id, label: stage + ": skipped", skipped: true})
			return
		}
		label := stage + ": " + name
		if detail != "" {
			label += " (" + detail + ")"
		}
		nodes = append(nodes, node{id: id, label: label})
	}
	s := b.Steps
	add("S2", "Generate", nameOf(s.Prompt != nil, func() string { return s.Prompt.Name }), modelOf(s.Prompt), s.Prompt != nil)
	nodes = append(nodes, node{id: "S3", label: "Reconcile citations", skipped: s.Prompt == nil})
	add("S4", "Render", nameOf(s.Formatting != nil, func() string { return s.Formatting.Name }), citationOf(s.Formatting), s.Formatting != nil)
	add("S5", "Output", nameOf(s.Output != nil, func() string { return s.Output.Name }), converterOf(s.Output), s.Output != nil)
	add("S6", "Deliver", nameOf(s.Delivery != nil, func() string { return s.Delivery.Name }), channelOf(s.Delivery), s.Delivery != nil)

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString(fmt.Sprintf("  subgraph P[\"%.40s\"]\n", escape(b.Name)))
	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", n.id, escape(n.label)))
	}
	sb.WriteString("  end\n")
	for i := 1; i < len(nodes); i++ {
		arrow := "-->"
		if nodes[i].skipped {
			arrow = "-.->"
		}
		sb.WriteString(fmt.Sprintf("  %s %s %s\n", nodes[i-1].id, arrow, nodes[i].id))
	}
	return sb.String()
}

// filterSummary lists the filter keys in a stable order.
func filterSummary(cfg map[string]any, tmpl *TemplateSpec) string {
	merged := make(map[string]any)
	if tmpl != nil {
		for k, v := range tmpl.Config {
			merged[k] = v
		}
	}
	for k, v := range cfg {
		merged[k] = v
	}
	if len(merged) == 0 {
		return "all articles"
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + cast.ToString(merged[k])
	}
	return strings.Join(parts, ", ")
}

func nameOf(ok bool, name func() string) string {
	if !ok {
		return ""
	}
	return name()
}

func modelOf(p *PromptSpec) string {
	if p == nil {
		return ""
	}
	return p.Model
}

func citationOf(f *FormattingSpec) string {
	if f == nil {
		return ""
	}
	return f.CitationType
}

func converterOf(o *OutputSpec) string {
	if o == nil {
		return ""
	}
	return o.ConverterType
}

func channelOf(d *DeliverySpec) string {
	if d == nil {
		return ""
	}
	return d.DeliveryType
}

// escape keeps labels inside their quotes.
func escape(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "\n", " ").Replace(s)
}
