package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/config"
	"github.com/dusk-indust/briefing/internal/delivery"
	"github.com/dusk-indust/briefing/internal/generate"
	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/dusk-indust/briefing/internal/metrics"
	"github.com/dusk-indust/briefing/internal/orchestrator"
	"github.com/dusk-indust/briefing/internal/output"
	"github.com/dusk-indust/briefing/internal/store"
)

// app holds the wired collaborators of one CLI invocation.
type app struct {
	cfg   *config.Config
	log   *logging.Logger
	store store.Store
	exec  *orchestrator.Executor
}

// newApp loads configuration and wires the store, model, senders and
// executor.
func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: s}

	if flags.Corpus != "" {
		if err := loadCorpus(ctx, s, flags.Corpus); err != nil {
			a.close()
			return nil, err
		}
	}

	llm, err := generate.NewLLM(cfg.Generation)
	if err != nil {
		a.close()
		return nil, err
	}
	senders, err := delivery.NewSenders(cfg.Delivery.Config, log)
	if err != nil {
		a.close()
		return nil, err
	}

	a.exec = orchestrator.NewExecutor(orchestrator.Deps{
		Store:      s,
		Generator:  generate.New(llm, log, cfg.Generation.DefaultModel),
		Writer:     output.NewWriter(output.FileSink{}, cfg.Output.Dir, log),
		Dispatcher: delivery.NewDispatcher(senders, log),
		Settings:   orchestrator.StaticSettings(cfg.Delivery.Settings),
		Metrics:    metrics.New(),
		Log:        log,
		Debug:      cfg.Debug,
	})
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn(context.Background(), "closing store", zap.Error(err))
	}
	_ = a.log.Sync()
}

func loadCorpus(ctx context.Context, s store.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	c, err := store.ReadCorpus(f)
	if err != nil {
		return err
	}
	return c.Load(ctx, s)
}
