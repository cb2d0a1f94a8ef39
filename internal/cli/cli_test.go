package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Positionals(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{"/data/bids", "/data/out", "participant"}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)

	assert.Equal(t, "/data/bids", cfg.BIDSDir)
	assert.Equal(t, "/data/out", cfg.OutputDir)
	assert.Equal(t, "participant", cfg.AnalysisLevel)
	assert.Empty(t, cfg.WorkflowType, "auto leaves the choice to the inventory")
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParse_Flags(t *testing.T) {
	args := []string{
		"bids", "out", "participant",
		"--participant-label", "sub-01,02",
		"--workflow-type", "DS054",
		"--nthreads", "8",
		"--mem-mb", "16000",
		"--ants-nthreads", "4",
		"--skip-native",
		"--work-dir", "/scratch",
		"--resume",
		"--session-id", "1",
		"--template", "/tpl/MNI.nii.gz",
		"-c", "a.hcl", "-c", "conf.d",
		"--write-graph",
		"--log-format", "JSON",
	}
	cfg, _, err := Parse(args, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, []string{"01", "02"}, cfg.Participants)
	assert.Equal(t, "ds054", cfg.WorkflowType)
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, 16000, cfg.MemoryMB)
	assert.Equal(t, 4, cfg.ToolThreads)
	assert.True(t, cfg.SkipNative)
	assert.Equal(t, "/scratch", cfg.WorkDir)
	assert.True(t, cfg.Resume)
	assert.Equal(t, "1", cfg.SessionID)
	assert.Equal(t, "/tpl/MNI.nii.gz", cfg.Template)
	assert.Equal(t, []string{"a.hcl", "conf.d"}, cfg.ConfigPaths)
	assert.True(t, cfg.WriteGraph)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestParse_Environment(t *testing.T) {
	t.Setenv("FMRIFLOW_NTHREADS", "3")
	t.Setenv("FMRIFLOW_SKIP_NATIVE", "true")

	cfg, _, err := Parse([]string{"bids", "out", "participant"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Threads)
	assert.True(t, cfg.SkipNative)

	cfg, _, err = Parse([]string{"bids", "out", "participant", "--nthreads", "5"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Threads, "flags win over the environment")
}

func TestParse_Help(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{"--help"}, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "--workflow-type")
}

func TestParse_UsageErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"missing positionals", []string{"bids"}, "accepts 3 arg(s)"},
		{"unknown flag", []string{"bids", "out", "participant", "--bogus"}, "unknown flag: --bogus"},
		{"group level", []string{"bids", "out", "group"}, "analysis level"},
		{"bad workflow", []string{"bids", "out", "participant", "--workflow-type", "ds999"}, "unknown workflow type"},
		{"bad log format", []string{"bids", "out", "participant", "--log-format", "xml"}, "invalid log-format"},
		{"bad log level", []string{"bids", "out", "participant", "--log-level", "trace"}, "invalid log-level"},
		{"negative threads", []string{"bids", "out", "participant", "--nthreads", "-2"}, "negative"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, shouldExit, err := Parse(tc.args, &bytes.Buffer{})
			require.Error(t, err)
			assert.False(t, shouldExit)

			exitErr, ok := err.(*ExitError)
			require.True(t, ok, "expected *ExitError, got %T", err)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}
