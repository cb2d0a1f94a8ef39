package app

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/vk/fmriflow/internal/config"
	"github.com/vk/fmriflow/internal/confounds"
	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/report"
	"github.com/vk/fmriflow/internal/stage"
	"github.com/vk/fmriflow/internal/stages"
	"github.com/vk/fmriflow/internal/topology"
)

// loadModel reads the pipeline files and the plugin file. Files give
// defaults; explicit values in cfg win.
func loadModel(ctx context.Context, loader config.Loader, cfg *Config) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	model := config.NewModel()
	if len(cfg.ConfigPaths) > 0 {
		m, err := loader.Load(ctx, cfg.ConfigPaths...)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		model = m
		logger.Debug("Pipeline configuration loaded.", "paths", cfg.ConfigPaths, "tools", len(model.Tools))
	}

	if cfg.PluginFile != "" {
		plugin, err := config.LoadPlugin(cfg.PluginFile)
		if err != nil {
			return nil, err
		}
		model.Budget = model.Budget.Merge(plugin.Budget())
		logger.Debug("Plugin file loaded.", "plugin", plugin.Plugin, "budget", model.Budget)
	}

	model.Budget = model.Budget.Merge(config.Budget{
		Threads:     cfg.Threads,
		MemoryMB:    cfg.MemoryMB,
		ToolThreads: cfg.ToolThreads,
		Subjects:    cfg.Subjects,
	})
	if err := model.Budget.Validate(); err != nil {
		return nil, err
	}

	s := model.Settings
	if cfg.WorkflowType == "" && s.WorkflowType != nil {
		if _, err := topology.ParseOverride(*s.WorkflowType); err != nil {
			return nil, err
		}
		cfg.WorkflowType = *s.WorkflowType
	}
	if !cfg.SkipNative && s.SkipNative != nil {
		cfg.SkipNative = *s.SkipNative
	}
	if cfg.WorkDir == "" && s.WorkDir != nil {
		cfg.WorkDir = *s.WorkDir
	}
	return model, nil
}

// stageBudget is the envelope handed to every stage of a subject.
func stageBudget(b config.Budget) stage.Budget {
	return stage.Budget{Threads: b.Threads, MemoryMB: b.MemoryMB, ToolThreads: b.ToolThreads}
}

// pipelineSettings combines flags and file settings into stage configs.
func pipelineSettings(cfg *Config, model *config.Model) topology.Settings {
	s := topology.DefaultSettings()
	s.SkipNative = cfg.SkipNative
	s.CheckImages = !cfg.SkipImageChecks
	s.Anat = stages.AnatConfig{Template: cfg.Template, TemplateMask: cfg.TemplateMask}
	s.Normalize.Template = cfg.Template

	fs := model.Settings
	if fs.IncludeDVARS != nil {
		s.Confounds.IncludeDVARS = *fs.IncludeDVARS
	}
	if fs.HeadRadius != nil {
		s.Confounds.HeadRadius = *fs.HeadRadius
	}
	if fs.ROIAttempts != nil {
		s.Confounds.ROIAttempts = *fs.ROIAttempts
	}
	if fs.MovparFormat != nil {
		s.HMC.MovparFormat = confounds.MovparFormat(*fs.MovparFormat)
	}
	return s
}

// newCatalog applies the tool overrides of the model to the default commands.
func newCatalog(model *config.Model) (*stages.Catalog, error) {
	catalog := stages.NewCatalog()
	for _, name := range model.ToolNames() {
		t := model.Tools[name]
		cmd := stage.Command{Path: t.Path, Args: t.Args}
		for _, k := range slices.Sorted(maps.Keys(t.Env)) {
			cmd.Env = append(cmd.Env, k+"="+t.Env[k])
		}
		if err := catalog.Override(name, cmd); err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
	}
	return catalog, nil
}

// reportConfig is the configured layout or the built-in one.
func reportConfig(model *config.Model) report.Config {
	if model.Report != nil {
		return *model.Report
	}
	return report.DefaultConfig()
}
