package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vk/fmriflow/internal/config"
	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/executor"
	"github.com/vk/fmriflow/internal/inventory"
	"github.com/vk/fmriflow/internal/registry"
	"github.com/vk/fmriflow/internal/report"
	"github.com/vk/fmriflow/internal/tracing"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	config    *Config
	model     *config.Model
	registry  *registry.Registry
	runners   executor.RunnerSource
	collector inventory.Collector
	reports   report.Config
	tracing   *tracing.Provider
	runID     string
}

// Option customises an App, mainly for tests.
type Option func(*App)

// WithRunners replaces the registered stage runners.
func WithRunners(r executor.RunnerSource) Option {
	return func(a *App) { a.runners = r }
}

// WithCollector replaces the BIDS collector.
func WithCollector(c inventory.Collector) Option {
	return func(a *App) { a.collector = c }
}

// NewApp is the constructor for the main application. It loads the
// configuration files, registers every stage and sets up tracing.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, opts ...Option) (*App, error) {
	runID := uuid.NewString()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW).With("run_id", runID)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loadModel(ctx, loader, cfg)
	if err != nil {
		return nil, err
	}
	reports := reportConfig(model)
	if err := reports.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	catalog, err := newCatalog(model)
	if err != nil {
		return nil, err
	}
	reg := registry.New(coreModules(catalog)...)
	if err := reg.ValidateRegistry(ctx); err != nil {
		// Every built-in stage has a runner, so this is a programmer error.
		panic(err)
	}
	logger.Debug("Stage registry ready.", "stages", len(reg.Names()))

	traceCfg := tracing.DefaultConfig()
	if cfg.TraceFile != "" {
		traceCfg.Enabled = true
		traceCfg.FilePath = cfg.TraceFile
	}
	tp, err := tracing.NewProvider(traceCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	a := &App{
		outW:      outW,
		logger:    logger,
		config:    cfg,
		model:     model,
		registry:  reg,
		runners:   reg,
		collector: inventory.NewBIDSCollector(cfg.BIDSDir),
		reports:   reports,
		tracing:   tp,
		runID:     runID,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// RunID identifies this invocation in logs, the work directory and the summary.
func (a *App) RunID() string {
	return a.runID
}
