package stage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/fmriflow/internal/nodeid"
)

type thresholdConfig struct {
	Threshold float64
}

func (thresholdConfig) Validate() error { return nil }

func TestInvocationFingerprint(t *testing.T) {
	dir := t.TempDir()
	bold := filepath.Join(dir, "bold.nii.gz")
	require.NoError(t, os.WriteFile(bold, []byte("bold"), 0o644))

	spec := &Spec{Name: "func_hmc"}
	base := func() *Invocation {
		return &Invocation{
			Address:   nodeid.ForStage("sub-01", "func_hmc", 0),
			Spec:      spec,
			Config:    thresholdConfig{Threshold: 0.5},
			Inputs:    map[string][]string{"bold": {bold}, "label": {"rest"}},
			OutputDir: filepath.Join(dir, "a"),
		}
	}
	fp := func(inv *Invocation) string {
		s, err := inv.Fingerprint()
		require.NoError(t, err)
		return s
	}
	want := fp(base())

	moved := base()
	moved.OutputDir = filepath.Join(dir, "b")
	assert.Equal(t, want, fp(moved), "output dir does not matter")

	otherRun := base()
	otherRun.Address = nodeid.ForStage("sub-01", "func_hmc", 1)
	assert.NotEqual(t, want, fp(otherRun))

	otherCfg := base()
	otherCfg.Config = thresholdConfig{Threshold: 0.6}
	assert.NotEqual(t, want, fp(otherCfg))

	otherText := base()
	otherText.Inputs["label"] = []string{"task"}
	assert.NotEqual(t, want, fp(otherText))

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(bold, later, later))
	assert.NotEqual(t, want, fp(base()), "touched input invalidates")
}
