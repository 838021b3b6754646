package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/briefing/internal/orchestrator"
)

// Bundle encodings.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode writes b to w as indented JSON or YAML.
func Encode(w io.Writer, b *Bundle, format string) error {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		data, err := jsonAPI.MarshalIndent(b, "", "  ")
		if err != nil {
			return fmt.Errorf("export: encode json: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("export: encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("export: unknown format %q", format)
	}
}

// Decode reads a bundle. An empty format sniffs JSON by its leading brace.
func Decode(data []byte, format string) (*Bundle, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = FormatYAML
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
			format = FormatJSON
		}
	}

	var b Bundle
	switch format {
	case FormatJSON:
		if err := jsonAPI.Unmarshal(data, &b); err != nil {
			return nil, &orchestrator.ValidationError{Msg: "bundle is not valid JSON", Err: err}
		}
	case FormatYAML, "yml":
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, &orchestrator.ValidationError{Msg: "bundle is not valid YAML", Err: err}
		}
	default:
		return nil, fmt.Errorf("export: unknown format %q", format)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
