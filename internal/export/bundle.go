// Package export moves pipeline configurations between users and
// installations as self-contained bundles.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dusk-indust/briefing/internal/orchestrator"
	"github.com/dusk-indust/briefing/internal/store"
)

// Version is written into every exported bundle.
const Version = "1.0"

// importedSuffix is appended to the name of everything Import creates.
const importedSuffix = " (Imported)"

// Bundle is a pipeline with its library records inlined. It never carries
// record ids, source ids or schedules.
type Bundle struct {
	Version        string         `json:"version" yaml:"version"`
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description,omitempty" yaml:"description,omitempty"`
	SourceConfig   map[string]any `json:"source_config" yaml:"source_config"`
	SourceTemplate *TemplateSpec  `json:"source_template,omitempty" yaml:"source_template,omitempty"`
	Steps          Steps          `json:"steps" yaml:"steps"`
}

// TemplateSpec is an exported source template.
type TemplateSpec struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Config      map[string]any `json:"config" yaml:"config"`
}

// Steps holds the library records a pipeline references.
type Steps struct {
	Prompt     *PromptSpec     `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Formatting *FormattingSpec `json:"formatting,omitempty" yaml:"formatting,omitempty"`
	Output     *OutputSpec     `json:"output,omitempty" yaml:"output,omitempty"`
	Delivery   *DeliverySpec   `json:"delivery,omitempty" yaml:"delivery,omitempty"`
}

type PromptSpec struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	PromptText  string `json:"prompt_text" yaml:"prompt_text"`
	Model       string `json:"model,omitempty" yaml:"model,omitempty"`
}

type FormattingSpec struct {
	Name                string         `json:"name" yaml:"name"`
	Description         string         `json:"description,omitempty" yaml:"description,omitempty"`
	StructureDefinition string         `json:"structure_definition" yaml:"structure_definition"`
	CSS                 string         `json:"css,omitempty" yaml:"css,omitempty"`
	CitationType        string         `json:"citation_type,omitempty" yaml:"citation_type,omitempty"`
	Parameters          map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

type OutputSpec struct {
	Name          string         `json:"name" yaml:"name"`
	ConverterType string         `json:"converter_type" yaml:"converter_type"`
	Parameters    map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

type DeliverySpec struct {
	Name         string         `json:"name" yaml:"name"`
	DeliveryType string         `json:"delivery_type" yaml:"delivery_type"`
	Parameters   map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Export builds the bundle of one of userID's pipelines. References that no
// longer resolve are left out.
func Export(ctx context.Context, s store.Store, userID, pipelineID string) (*Bundle, error) {
	p, err := s.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("export: get pipeline: %w", err)
	}
	if p == nil || (userID != "" && p.UserID != userID) {
		return nil, &orchestrator.ValidationError{Msg: "pipeline " + pipelineID + " not found"}
	}
	owner := p.UserID

	b := &Bundle{
		Version:      Version,
		Name:         p.Name,
		Description:  p.Description,
		SourceConfig: portable(p.SourceConfig),
	}
	delete(b.SourceConfig, "template_id")

	templateID := p.SourceTemplateID
	if templateID == "" {
		templateID, _ = p.SourceConfig["template_id"].(string)
	}
	if templateID != "" {
		t, err := store.LoadSourceTemplate(ctx, s, owner, templateID)
		if err := skipMissing(err); err != nil {
			return nil, fmt.Errorf("export: source template: %w", err)
		}
		if t != nil {
			b.SourceTemplate = &TemplateSpec{Name: t.Name, Description: t.Description, Config: portable(t.Config)}
		}
	}

	if p.PromptID != "" {
		c, err := store.LoadPrompt(ctx, s, owner, p.PromptID)
		if err := skipMissing(err); err != nil {
			return nil, fmt.Errorf("export: prompt: %w", err)
		}
		if c != nil {
			b.Steps.Prompt = &PromptSpec{Name: c.Name, Description: c.Description, PromptText: c.PromptText, Model: c.Model}
		}
	}
	if p.FormattingID != "" {
		c, err := store.LoadFormatting(ctx, s, owner, p.FormattingID)
		if err := skipMissing(err); err != nil {
			return nil, fmt.Errorf("export: formatting: %w", err)
		}
		if c != nil {
			b.Steps.Formatting = &FormattingSpec{
				Name:                c.Name,
				Description:         c.Description,
				StructureDefinition: c.StructureDefinition,
				CSS:                 c.CSS,
				CitationType:        c.CitationType,
				Parameters:          c.Parameters,
			}
		}
	}
	if p.OutputID != "" {
		c, err := store.LoadOutput(ctx, s, owner, p.OutputID)
		if err := skipMissing(err); err != nil {
			return nil, fmt.Errorf("export: output: %w", err)
		}
		if c != nil {
			b.Steps.Output = &OutputSpec{Name: c.Name, ConverterType: c.ConverterType, Parameters: c.Parameters}
		}
	}
	if p.DeliveryID != "" {
		c, err := store.LoadDelivery(ctx, s, owner, p.DeliveryID)
		if err := skipMissing(err); err != nil {
			return nil, fmt.Errorf("export: delivery: %w", err)
		}
		if c != nil {
			b.Steps.Delivery = &DeliverySpec{Name: c.Name, DeliveryType: c.DeliveryType, Parameters: c.Parameters}
		}
	}
	return b, nil
}

// Import recreates b for userID. Every library record is created fresh and
// the pipeline's schedule starts disabled.
func Import(ctx context.Context, s store.Store, userID string, b *Bundle) (*store.Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	p := store.Pipeline{
		ID:           store.NewID(),
		UserID:       userID,
		Name:         b.Name + importedSuffix,
		Description:  b.Description,
		SourceConfig: portable(b.SourceConfig),
	}
	delete(p.SourceConfig, "template_id")

	if t := b.SourceTemplate; t != nil {
		rec := store.SourceTemplate{
			ID: store.NewID(), UserID: userID, Name: t.Name + importedSuffix,
			Description: t.Description, Config: portable(t.Config),
		}
		if err := store.SaveSourceTemplate(ctx, s, rec); err != nil {
			return nil, fmt.Errorf("export: save source template: %w", err)
		}
		p.SourceTemplateID = rec.ID
	}
	if c := b.Steps.Prompt; c != nil {
		rec := store.PromptConfig{
			ID: store.NewID(), UserID: userID, Name: c.Name + importedSuffix,
			Description: c.Description, PromptText: c.PromptText, Model: c.Model,
		}
		if err := store.SavePrompt(ctx, s, rec); err != nil {
			return nil, fmt.Errorf("export: save prompt: %w", err)
		}
		p.PromptID = rec.ID
	}
	if c := b.Steps.Formatting; c != nil {
		rec := store.FormattingConfig{
			ID: store.NewID(), UserID: userID, Name: c.Name + importedSuffix, Description: c.Description,
			StructureDefinition: c.StructureDefinition, CSS: c.CSS, CitationType: c.CitationType, Parameters: c.Parameters,
		}
		if err := store.SaveFormatting(ctx, s, rec); err != nil {
			return nil, fmt.Errorf("export: save formatting: %w", err)
		}
		p.FormattingID = rec.ID
	}
	if c := b.Steps.Output; c != nil {
		rec := store.OutputConfig{
			ID: store.NewID(), UserID: userID, Name: c.Name + importedSuffix,
			ConverterType: c.ConverterType, Parameters: c.Parameters,
		}
		if err := store.SaveOutput(ctx, s, rec); err != nil {
			return nil, fmt.Errorf("export: save output: %w", err)
		}
		p.OutputID = rec.ID
	}
	if c := b.Steps.Delivery; c != nil {
		rec := store.DeliveryConfig{
			ID: store.NewID(), UserID: userID, Name: c.Name + importedSuffix,
			DeliveryType: c.DeliveryType, Parameters: c.Parameters,
		}
		if err := store.SaveDelivery(ctx, s, rec); err != nil {
			return nil, fmt.Errorf("export: save delivery: %w", err)
		}
		p.DeliveryID = rec.ID
	}

	if err := s.PutPipeline(ctx, p); err != nil {
		return nil, fmt.Errorf("export: save pipeline: %w", err)
	}
	return &p, nil
}

// Validate checks that b can be imported.
func (b *Bundle) Validate() error {
	if b == nil {
		return &orchestrator.ValidationError{Msg: "empty bundle"}
	}
	if b.Version == "" {
		return &orchestrator.ValidationError{Msg: "bundle has no version"}
	}
	if b.Version != "1" && !strings.HasPrefix(b.Version, "1.") {
		return &orchestrator.ValidationError{Msg: fmt.Sprintf("unsupported bundle version %q", b.Version)}
	}
	if strings.TrimSpace(b.Name) == "" {
		return &orchestrator.ValidationError{Msg: "bundle has no name"}
	}
	switch {
	case b.Steps.Prompt != nil && b.Steps.Prompt.PromptText == "":
		return &orchestrator.ValidationError{Msg: "prompt step has no prompt_text"}
	case b.Steps.Formatting != nil && b.Steps.Formatting.StructureDefinition == "":
		return &orchestrator.ValidationError{Msg: "formatting step has no structure_definition"}
	case b.Steps.Output != nil && b.Steps.Output.ConverterType == "":
		return &orchestrator.ValidationError{Msg: "output step has no converter_type"}
	case b.Steps.Delivery != nil && b.Steps.Delivery.DeliveryType == "":
		return &orchestrator.ValidationError{Msg: "delivery step has no delivery_type"}
	}
	return nil
}

// portable copies a filter set without its source ids.
func portable(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	delete(out, "source_ids")
	return out
}

func skipMissing(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
