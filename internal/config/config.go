// Package config loads briefing.yml and BRIEFING_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/dusk-indust/briefing/internal/delivery"
	"github.com/dusk-indust/briefing/internal/generate"
	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/dusk-indust/briefing/internal/orchestrator"
	"github.com/dusk-indust/briefing/internal/store"
)

// EnvPrefix marks environment variables that override the file.
const EnvPrefix = "BRIEFING_"

// FileNames are tried in order by Load.
var FileNames = []string{"briefing.yml", "briefing.yaml"}

const maxConfigFileSize = 1024 * 1024

// Config is the full runtime configuration.
type Config struct {
	Store      store.Config             `koanf:"store" yaml:"store"`
	Generation generate.Config          `koanf:"generation" yaml:"generation"`
	Output     OutputConfig             `koanf:"output" yaml:"output"`
	Delivery   DeliveryConfig           `koanf:"delivery" yaml:"delivery"`
	Server     ServerConfig             `koanf:"server" yaml:"server"`
	Logging    logging.Config           `koanf:"logging" yaml:"logging"`
	Debug      orchestrator.DebugConfig `koanf:"debug" yaml:"debug"`
	Status     StatusConfig             `koanf:"status" yaml:"status"`
}

// OutputConfig locates written artifacts.
type OutputConfig struct {
	Dir string `koanf:"dir" yaml:"dir"`
}

// DeliveryConfig is the provider setup plus the system settings merged
// under every delivery config's parameters.
type DeliveryConfig struct {
	delivery.Config `koanf:",squash" yaml:",inline"`
	Settings        map[string]any `koanf:"settings" yaml:"settings,omitempty"`
}

// ServerConfig configures `briefing serve`.
type ServerConfig struct {
	Addr    string `koanf:"addr" yaml:"addr"`
	MCPPath string `koanf:"mcp_path" yaml:"mcp_path"`
	// BatchLimit caps concurrent runs of a batch request.
	BatchLimit int `koanf:"batch_limit" yaml:"batch_limit"`
}

// StatusConfig tunes report status summaries.
type StatusConfig struct {
	// StuckAfter is how long a report may stay in processing before it is
	// reported as stuck.
	StuckAfter time.Duration `koanf:"stuck_after" yaml:"stuck_after"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Store:      store.Config{Driver: store.DriverMemory},
		Generation: generate.Config{Provider: generate.ProviderMock, DefaultModel: generate.DefaultModel},
		Output:     OutputConfig{Dir: "/tmp/reports"},
		Delivery:   DeliveryConfig{Config: delivery.Config{EmailProvider: delivery.EmailLog}},
		Server:     ServerConfig{Addr: ":8080", MCPPath: "/mcp", BatchLimit: 4},
		Logging:    logging.NewDefaultConfig(),
		Debug:      orchestrator.DebugConfig{Dir: filepath.Join(os.TempDir(), "briefing-debug")},
		Status:     StatusConfig{StuckAfter: 30 * time.Minute},
	}
}

// Load reads briefing.yml or briefing.yaml from dir, then applies BRIEFING_*
// environment overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return LoadFile("")
}

// LoadFile loads the given file (skipped when path is empty) and the
// environment.
//
// Precedence, highest first:
//  1. BRIEFING_SECTION_FIELD environment variables
//  2. the YAML file
//  3. Default()
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := readLimited(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", EnvKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config: %s is larger than %d bytes", path, maxConfigFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return data, nil
}

// subsections are nested blocks whose names contain no underscore, so
// BRIEFING_DELIVERY_SMTP_HOST can become delivery.smtp.host.
var subsections = map[string][]string{
	"delivery": {"smtp", "resend", "telegram", "settings"},
	"logging":  {"file"},
}

// EnvKey maps BRIEFING_SECTION_FIELD_NAME to section.field_name.
func EnvKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	for _, sub := range subsections[section] {
		if rest, found := strings.CutPrefix(field, sub+"_"); found {
			return section + "." + sub + "." + rest
		}
	}
	return section + "." + field
}

// applyDefaults fills values a file may have blanked out.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = def.Store.Driver
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = def.Generation.Provider
	}
	if cfg.Generation.DefaultModel == "" {
		cfg.Generation.DefaultModel = def.Generation.DefaultModel
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = def.Output.Dir
	}
	if cfg.Delivery.EmailProvider == "" {
		cfg.Delivery.EmailProvider = def.Delivery.EmailProvider
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.MCPPath == "" {
		cfg.Server.MCPPath = def.Server.MCPPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Debug.Dir == "" {
		cfg.Debug.Dir = def.Debug.Dir
	}
	if cfg.Status.StuckAfter == 0 {
		cfg.Status.StuckAfter = def.Status.StuckAfter
	}
}

// Validate checks config for errors.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case store.DriverMemory:
	case store.DriverKuzu:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the kuzu driver")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", store.DriverMemory, store.DriverKuzu, c.Store.Driver)
	}

	switch c.Generation.Provider {
	case generate.ProviderMock, generate.ProviderOpenAI, generate.ProviderOllama, generate.ProviderLangchainOpenAI:
	default:
		return fmt.Errorf("generation.provider %q is not supported", c.Generation.Provider)
	}

	switch strings.ToLower(c.Delivery.EmailProvider) {
	case delivery.EmailLog, delivery.EmailSMTP, delivery.EmailResend:
	default:
		return fmt.Errorf("delivery.email_provider %q is not supported", c.Delivery.EmailProvider)
	}
	if strings.EqualFold(c.Delivery.EmailProvider, delivery.EmailSMTP) && c.Delivery.SMTP.Host == "" {
		return fmt.Errorf("delivery.smtp.host is required for the smtp provider")
	}

	if c.Server.BatchLimit < 0 {
		return fmt.Errorf("server.batch_limit must not be negative")
	}
	if c.Status.StuckAfter < 0 {
		return fmt.Errorf("status.stuck_after must not be negative")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// WriteStarter writes Default() as YAML to path. An existing file is left
// alone unless force is set.
func WriteStarter(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s already exists", path)
		}
	}
	data, err := yamlv3.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: encode starter: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
