package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/fmriflow/internal/topology"
)

// Config holds everything an App instance needs to run. Zero values mean
// "not given" so configuration files can fill them in.
type Config struct {
	BIDSDir       string
	OutputDir     string
	AnalysisLevel string
	// Participants are subject labels with or without the "sub-" prefix.
	// Empty means every subject in BIDSDir.
	Participants []string

	WorkflowType string
	SkipNative   bool
	WorkDir      string
	// Resume reuses outputs of stage instances completed by an earlier
	// invocation with the same work directory.
	Resume bool

	SessionID string
	RunID     string
	TaskID    string

	Threads     int
	MemoryMB    int
	ToolThreads int
	// Subjects is how many subjects are processed at once.
	Subjects int

	// Template and TemplateMask are the standard-space target images.
	Template     string
	TemplateMask string

	// PluginFile is a YAML execution plugin file.
	PluginFile string
	// ConfigPaths are HCL pipeline files or directories.
	ConfigPaths []string

	// SkipImageChecks turns off the NIfTI header check on stage inputs;
	// existence is still checked.
	SkipImageChecks bool

	WriteGraph bool
	// TraceFile enables tracing into the given file.
	TraceFile string

	LogFormat string
	LogLevel  string
}

// NewConfig validates a configuration and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.BIDSDir == "" {
		return nil, errors.New("BIDSDir is a required configuration field and cannot be empty")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OutputDir is a required configuration field and cannot be empty")
	}
	if cfg.AnalysisLevel == "" {
		cfg.AnalysisLevel = "participant"
	}
	if cfg.AnalysisLevel != "participant" {
		return nil, fmt.Errorf("unsupported analysis level %q: only 'participant' is available", cfg.AnalysisLevel)
	}
	if _, err := topology.ParseOverride(cfg.WorkflowType); err != nil {
		return nil, err
	}
	if cfg.Threads < 0 || cfg.MemoryMB < 0 || cfg.ToolThreads < 0 || cfg.Subjects < 0 {
		return nil, errors.New("resource limits must not be negative")
	}
	for i, p := range cfg.Participants {
		cfg.Participants[i] = strings.TrimPrefix(p, "sub-")
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}
