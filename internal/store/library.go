package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by the typed library loaders when a referenced
// record does not exist or belongs to another user.
var ErrNotFound = errors.New("store: not found")

// PromptConfig is the generation stage configuration.
type PromptConfig struct {
	ID          string `json:"-"`
	UserID      string `json:"-"`
	Name        string `json:"-"`
	Description string `json:"-"`
	PromptText  string `json:"prompt_text"`
	Model       string `json:"model,omitempty"`
}

// FormattingConfig is the render stage configuration.
type FormattingConfig struct {
	ID                  string         `json:"-"`
	UserID              string         `json:"-"`
	Name                string         `json:"-"`
	Description         string         `json:"-"`
	StructureDefinition string         `json:"structure_definition"`
	CSS                 string         `json:"css,omitempty"`
	CitationType        string         `json:"citation_type,omitempty"`
	Parameters          map[string]any `json:"parameters,omitempty"`
}

// OutputConfig is the output conversion stage configuration.
type OutputConfig struct {
	ID            string         `json:"-"`
	UserID        string         `json:"-"`
	Name          string         `json:"-"`
	Description   string         `json:"-"`
	ConverterType string         `json:"converter_type"`
	Parameters    map[string]any `json:"parameters,omitempty"`
}

// DeliveryConfig is the delivery stage configuration.
type DeliveryConfig struct {
	ID           string         `json:"-"`
	UserID       string         `json:"-"`
	Name         string         `json:"-"`
	Description  string         `json:"-"`
	DeliveryType string         `json:"delivery_type"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

// SourceTemplate is a reusable filter set.
type SourceTemplate struct {
	ID          string         `json:"-"`
	UserID      string         `json:"-"`
	Name        string         `json:"-"`
	Description string         `json:"-"`
	Config      map[string]any `json:"config"`
}

// --- Saving ---

func putTyped(ctx context.Context, s Store, kind RecordKind, id, userID, name, desc string, body any) error {
	data, err := jsonAPI.Marshal(body)
	if err != nil {
		return fmt.Errorf("store: encode %s %s: %w", kind, id, err)
	}
	now := time.Now().UTC()
	rec := Record{ID: id, UserID: userID, Kind: kind, Name: name, Description: desc, Data: data, CreatedAt: now, UpdatedAt: now}
	if old, err := s.GetRecord(ctx, kind, id); err == nil && old != nil {
		rec.CreatedAt = old.CreatedAt
	}
	return s.PutRecord(ctx, rec)
}

func SavePrompt(ctx context.Context, s Store, c PromptConfig) error {
	return putTyped(ctx, s, KindPrompt, c.ID, c.UserID, c.Name, c.Description, c)
}

func SaveFormatting(ctx context.Context, s Store, c FormattingConfig) error {
	return putTyped(ctx, s, KindFormatting, c.ID, c.UserID, c.Name, c.Description, c)
}

func SaveOutput(ctx context.Context, s Store, c OutputConfig) error {
	return putTyped(ctx, s, KindOutput, c.ID, c.UserID, c.Name, c.Description, c)
}

func SaveDelivery(ctx context.Context, s Store, c DeliveryConfig) error {
	return putTyped(ctx, s, KindDelivery, c.ID, c.UserID, c.Name, c.Description, c)
}

func SaveSourceTemplate(ctx context.Context, s Store, c SourceTemplate) error {
	return putTyped(ctx, s, KindSourceTemplate, c.ID, c.UserID, c.Name, c.Description, c)
}

// --- Loading ---

// loadTyped fetches a record and decodes its body into dst. An empty userID
// skips the ownership check.
func loadTyped(ctx context.Context, s Store, kind RecordKind, userID, id string, dst any) (*Record, error) {
	rec, err := s.GetRecord(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || (userID != "" && rec.UserID != userID) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if len(rec.Data) > 0 {
		if err := jsonAPI.Unmarshal(rec.Data, dst); err != nil {
			return nil, fmt.Errorf("store: decode %s %s: %w", kind, id, err)
		}
	}
	return rec, nil
}

func LoadPrompt(ctx context.Context, s Store, userID, id string) (*PromptConfig, error) {
	var c PromptConfig
	rec, err := loadTyped(ctx, s, KindPrompt, userID, id, &c)
	if err != nil {
		return nil, err
	}
	c.ID, c.UserID, c.Name, c.Description = rec.ID, rec.UserID, rec.Name, rec.Description
	return &c, nil
}

func LoadFormatting(ctx context.Context, s Store, userID, id string) (*FormattingConfig, error) {
	var c FormattingConfig
	rec, err := loadTyped(ctx, s, KindFormatting, userID, id, &c)
	if err != nil {
		return nil, err
	}
	c.ID, c.UserID, c.Name, c.Description = rec.ID, rec.UserID, rec.Name, rec.Description
	return &c, nil
}

func LoadOutput(ctx context.Context, s Store, userID, id string) (*OutputConfig, error) {
	var c OutputConfig
	rec, err := loadTyped(ctx, s, KindOutput, userID, id, &c)
	if err != nil {
		return nil, err
	}
	c.ID, c.UserID, c.Name, c.Description = rec.ID, rec.UserID, rec.Name, rec.Description
	return &c, nil
}

func LoadDelivery(ctx context.Context, s Store, userID, id string) (*DeliveryConfig, error) {
	var c DeliveryConfig
	rec, err := loadTyped(ctx, s, KindDelivery, userID, id, &c)
	if err != nil {
		return nil, err
	}
	c.ID, c.UserID, c.Name, c.Description = rec.ID, rec.UserID, rec.Name, rec.Description
	return &c, nil
}

func LoadSourceTemplate(ctx context.Context, s Store, userID, id string) (*SourceTemplate, error) {
	var c SourceTemplate
	rec, err := loadTyped(ctx, s, KindSourceTemplate, userID, id, &c)
	if err != nil {
		return nil, err
	}
	c.ID, c.UserID, c.Name, c.Description = rec.ID, rec.UserID, rec.Name, rec.Description
	return &c, nil
}
