package orchestrator

import (
	"context"

	"github.com/dusk-indust/briefing/internal/delivery"
	"github.com/dusk-indust/briefing/internal/generate"
	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/dusk-indust/briefing/internal/metrics"
	"github.com/dusk-indust/briefing/internal/output"
	"github.com/dusk-indust/briefing/internal/render"
	"github.com/dusk-indust/briefing/internal/stepcache"
	"github.com/dusk-indust/briefing/internal/store"
)

// DebugConfig controls per-run stage dumps.
type DebugConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Dir     string `koanf:"dir" yaml:"dir"`
}

// SettingsFunc returns a user's account-wide sender settings. Delivery
// config parameters override them key by key.
type SettingsFunc func(ctx context.Context, userID string) (map[string]any, error)

// StaticSettings returns a SettingsFunc that hands every user the same map.
func StaticSettings(settings map[string]any) SettingsFunc {
	return func(context.Context, string) (map[string]any, error) {
		return settings, nil
	}
}

// Deps are the collaborators of an Executor. Only Store is required; the
// rest fall back to local defaults.
type Deps struct {
	Store      store.Store
	Generator  *generate.Generator
	Renderer   *render.Renderer
	Writer     *output.Writer
	Dispatcher *delivery.Dispatcher
	Cache      stepcache.Cache
	Settings   SettingsFunc
	Metrics    *metrics.Metrics
	Log        *logging.Logger
	Debug      DebugConfig
}
