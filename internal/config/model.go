package config

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/fmriflow/internal/report"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads every configuration file found under paths and merges
	// them into one Model. Later files win for scalar settings.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// Model is the merged configuration. Nil pointers and zero values mean
// "not set" so callers can layer flags on top.
type Model struct {
	Settings Settings
	Budget   Budget
	// Tools replaces the command of a stage, keyed by stage name.
	Tools map[string]*Tool
	// Report is nil when no sub_report block was given.
	Report *report.Config
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{Tools: map[string]*Tool{}}
}

// Settings are run options that may also come from flags.
type Settings struct {
	WorkflowType *string
	SkipNative   *bool
	WorkDir      *string
	IncludeDVARS *bool
	HeadRadius   *float64
	MovparFormat *string
	// ROIAttempts bounds the aCompCor ROI search.
	ROIAttempts *int
}

// Budget is the resource ceiling handed to the executor.
type Budget struct {
	Threads     int
	MemoryMB    int
	ToolThreads int
	// Subjects is how many subjects run at once.
	Subjects int
}

// Merge overlays the non-zero fields of o.
func (b Budget) Merge(o Budget) Budget {
	if o.Threads > 0 {
		b.Threads = o.Threads
	}
	if o.MemoryMB > 0 {
		b.MemoryMB = o.MemoryMB
	}
	if o.ToolThreads > 0 {
		b.ToolThreads = o.ToolThreads
	}
	if o.Subjects > 0 {
		b.Subjects = o.Subjects
	}
	return b
}

// Validate rejects negative values.
func (b Budget) Validate() error {
	if b.Threads < 0 || b.MemoryMB < 0 || b.ToolThreads < 0 || b.Subjects < 0 {
		return fmt.Errorf("budget values must not be negative: %+v", b)
	}
	return nil
}

// Tool overrides the external command a stage runs.
type Tool struct {
	Stage string
	Path  string
	Args  []string
	Env   map[string]string
}

// ToolNames returns the overridden stage names in order.
func (m *Model) ToolNames() []string {
	names := make([]string, 0, len(m.Tools))
	for n := range m.Tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
