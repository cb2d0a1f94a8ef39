// This file translates decoded HCL blocks into the format-agnostic
// configuration model.

package hcl_adapter

import (
	"context"
	"fmt"
	"maps"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/fmriflow/internal/config"
	"github.com/vk/fmriflow/internal/report"
)

// translateSettings overlays every attribute defined in s onto dst.
func (l *Loader) translateSettings(ctx context.Context, s *Settings, evalCtx *hcl.EvalContext, dst *config.Settings) error {
	var err error
	set := func(apply func() error) {
		if err == nil {
			err = apply()
		}
	}

	set(func() error { return overlay(ctx, s.WorkflowType, "workflow_type", evalCtx, &dst.WorkflowType) })
	set(func() error { return overlay(ctx, s.SkipNative, "skip_native", evalCtx, &dst.SkipNative) })
	set(func() error { return overlay(ctx, s.WorkDir, "work_dir", evalCtx, &dst.WorkDir) })
	set(func() error { return overlay(ctx, s.IncludeDVARS, "include_dvars", evalCtx, &dst.IncludeDVARS) })
	set(func() error { return overlay(ctx, s.HeadRadius, "head_radius", evalCtx, &dst.HeadRadius) })
	set(func() error { return overlay(ctx, s.MovparFormat, "movpar_format", evalCtx, &dst.MovparFormat) })
	set(func() error { return overlay(ctx, s.ROIAttempts, "roi_attempts", evalCtx, &dst.ROIAttempts) })
	return err
}

func overlay[T any](ctx context.Context, expr hcl.Expression, name string, evalCtx *hcl.EvalContext, dst **T) error {
	v, err := decodeOptional[T](ctx, expr, name, evalCtx)
	if err != nil {
		return err
	}
	if v != nil {
		*dst = v
	}
	return nil
}

func translateBudget(b *Budget) config.Budget {
	val := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	return config.Budget{
		Threads:     val(b.Threads),
		MemoryMB:    val(b.MemoryMB),
		ToolThreads: val(b.ToolThreads),
		Subjects:    val(b.Subjects),
	}
}

func translateTool(t *Tool) *config.Tool {
	return &config.Tool{
		Stage: t.Stage,
		Path:  t.Path,
		Args:  append([]string(nil), t.Args...),
		Env:   maps.Clone(t.Env),
	}
}

// reportMerger keeps sub-reports in the order they were first declared.
type reportMerger struct {
	subReports []report.SubReportConfig
	seen       map[string]bool
}

func newReportMerger() *reportMerger {
	return &reportMerger{seen: map[string]bool{}}
}

func (m *reportMerger) add(sr *SubReport) error {
	if m.seen[sr.Name] {
		return fmt.Errorf("sub_report %q is declared twice", sr.Name)
	}
	m.seen[sr.Name] = true

	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	out := report.SubReportConfig{Name: sr.Name, Title: str(sr.Title)}
	if out.Title == "" {
		out.Title = sr.Name
	}
	for _, e := range sr.Elements {
		out.Elements = append(out.Elements, report.ElementConfig{
			Name:        e.Name,
			FilePattern: e.FilePattern,
			Title:       str(e.Title),
			Description: str(e.Description),
		})
	}
	m.subReports = append(m.subReports, out)
	return nil
}

func (m *reportMerger) config() *report.Config {
	if len(m.subReports) == 0 {
		return nil
	}
	return &report.Config{SubReports: m.subReports}
}
