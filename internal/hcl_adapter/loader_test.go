package hcl_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/fmriflow/internal/config"
)

func writeHCL(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AllBlocks(t *testing.T) {
	t.Setenv("FMRIFLOW_TEST_WORK", "/scratch/work")
	dir := t.TempDir()
	writeHCL(t, dir, "10-settings.hcl", `
settings {
  workflow_type = "minimal"
  skip_native   = true
  work_dir      = env("FMRIFLOW_TEST_WORK")
  head_radius   = 45
}

budget {
  threads   = 8
  memory_mb = 4096
}
`)
	writeHCL(t, dir, "nested/20-tools.hcl", `
settings {
  include_dvars = true
  movpar_format = env("FMRIFLOW_TEST_UNSET", "movpar_file")
}

budget {
  memory_mb    = 8192
  tool_threads = 2
}

tool "func_hmc" {
  path = "/opt/fsl/bin/mcflirt"
  args = ["-in", "{bold}"]
  env  = { FSLOUTPUTTYPE = "NIFTI_GZ" }
}

sub_report "functional" {
  title = "Functional"
  element "epi_mask" {
    file_pattern = "func/.*_bold_mask"
    title        = "Mask"
  }
}
`)
	writeHCL(t, dir, "ignored.txt", `not hcl`)

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	s := model.Settings
	require.NotNil(t, s.WorkflowType)
	assert.Equal(t, "minimal", *s.WorkflowType)
	assert.True(t, *s.SkipNative)
	assert.Equal(t, "/scratch/work", *s.WorkDir)
	assert.Equal(t, 45.0, *s.HeadRadius)
	assert.True(t, *s.IncludeDVARS)
	assert.Equal(t, "movpar_file", *s.MovparFormat)
	assert.Nil(t, s.ROIAttempts)

	assert.Equal(t, config.Budget{Threads: 8, MemoryMB: 8192, ToolThreads: 2}, model.Budget)

	require.Contains(t, model.Tools, "func_hmc")
	tool := model.Tools["func_hmc"]
	assert.Equal(t, "/opt/fsl/bin/mcflirt", tool.Path)
	assert.Equal(t, []string{"-in", "{bold}"}, tool.Args)
	assert.Equal(t, map[string]string{"FSLOUTPUTTYPE": "NIFTI_GZ"}, tool.Env)

	require.NotNil(t, model.Report)
	require.Len(t, model.Report.SubReports, 1)
	sr := model.Report.SubReports[0]
	assert.Equal(t, "Functional", sr.Title)
	require.Len(t, sr.Elements, 1)
	assert.Equal(t, "func/.*_bold_mask", sr.Elements[0].FilePattern)
}

func TestLoad_NoFiles(t *testing.T) {
	model, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Nil(t, model.Report)
	assert.Empty(t, model.Tools)
	assert.Nil(t, model.Settings.WorkflowType)
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "syntax", content: `settings {`, wantErr: "failed to parse"},
		{name: "unknown block", content: `pipeline "x" {}`, wantErr: "failed to decode"},
		{name: "wrong type", content: `settings { skip_native = "maybe" }`, wantErr: "skip_native"},
		{name: "negative budget", content: `budget { threads = -2 }`, wantErr: "must not be negative"},
		{name: "negative budget after valid block", content: `
budget { threads = 4 }
budget { memory_mb = -512 }`, wantErr: "budget: budget values must not be negative"},
		{name: "bad pattern", content: `
sub_report "x" {
  element "y" { file_pattern = "(" }
}`, wantErr: "report configuration"},
		{name: "duplicate sub report", content: `
sub_report "x" {}
sub_report "x" {}`, wantErr: "declared twice"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeHCL(t, t.TempDir(), "config.hcl", tc.content)
			_, err := NewLoader().Load(context.Background(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
