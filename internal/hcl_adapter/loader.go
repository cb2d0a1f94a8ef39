package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/fmriflow/internal/config"
	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file found under paths, in lexical order per
// directory, and merges their blocks into one model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := config.NewModel()

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	evalCtx := newEvalContext()
	reports := newReportMerger()

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, s := range root.Settings {
			if err := l.translateSettings(ctx, s, evalCtx, &model.Settings); err != nil {
				return nil, fmt.Errorf("%s: settings: %w", file, err)
			}
		}
		for _, b := range root.Budgets {
			// Merge ignores non-positive values, so reject them per block.
			budget := translateBudget(b)
			if err := budget.Validate(); err != nil {
				return nil, fmt.Errorf("%s: budget: %w", file, err)
			}
			model.Budget = model.Budget.Merge(budget)
		}
		for _, t := range root.Tools {
			model.Tools[t.Stage] = translateTool(t)
		}
		for _, sr := range root.SubReports {
			if err := reports.add(sr); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
	}

	model.Report = reports.config()
	if model.Report != nil {
		if err := model.Report.Validate(); err != nil {
			return nil, fmt.Errorf("report configuration: %w", err)
		}
	}

	logger.Debug("HCL loading complete.", "files", len(hclFiles), "tools", len(model.Tools), "custom_report", model.Report != nil)
	return model, nil
}

// findAllHCLFiles expands directories into their .hcl files. Missing paths
// are skipped.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
			sort.Strings(found)
			for _, f := range found {
				add(f)
			}
		} else if filepath.Ext(path) == ".hcl" {
			add(path)
		}
	}
	return allFiles, nil
}
