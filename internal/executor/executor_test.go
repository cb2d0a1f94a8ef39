package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/fmriflow/internal/dag"
	"github.com/vk/fmriflow/internal/nodestore"
	"github.com/vk/fmriflow/internal/pipelineerr"
	"github.com/vk/fmriflow/internal/runcache"
	"github.com/vk/fmriflow/internal/stage"
	"github.com/vk/fmriflow/internal/testutil"
)

var (
	anatSpec = &stage.Spec{
		Name:     "anat",
		Inputs:   []stage.Port{stage.In("t1w", stage.Volume)},
		Outputs:  []stage.Port{stage.Out("brain", stage.Volume)},
		MemoryMB: 100,
	}
	fmapSpec = &stage.Spec{
		Name:     "fmap",
		Inputs:   []stage.Port{stage.In("fmap", stage.Volume)},
		Outputs:  []stage.Port{stage.Out("field", stage.FieldmapMap)},
		MemoryMB: 100,
	}
	hmcSpec = &stage.Spec{
		Name:     "hmc",
		Inputs:   []stage.Port{stage.In("bold", stage.Series)},
		Outputs:  []stage.Port{stage.Out("mean", stage.Volume)},
		MemoryMB: 100,
	}
	regSpec = &stage.Spec{
		Name:     "reg",
		Inputs:   []stage.Port{stage.In("moving", stage.Volume), stage.In("fixed", stage.Volume)},
		Outputs:  []stage.Port{stage.Out("xfm", stage.Transform), stage.Out("label", stage.Text)},
		MemoryMB: 100,
	}
)

func buildGraph(t *testing.T, runs int) *dag.Graph {
	t.Helper()
	bolds := make([]string, runs)
	for i := range bolds {
		bolds[i] = "bold.nii.gz"
	}
	g, err := dag.NewBuilder("sub-01", t.TempDir()).
		Add("anat", anatSpec, nil).
		Bind("anat", "t1w", "T1w.nii.gz").
		Add("hmc", hmcSpec, nil).
		Iterate("hmc", "bold", bolds).
		Add("reg", regSpec, nil).
		Connect("hmc", "mean", "reg", "moving").
		Connect("anat", "brain", "reg", "fixed").
		Build(context.Background())
	require.NoError(t, err)
	return g
}

func TestRun_AllSucceed(t *testing.T) {
	g := buildGraph(t, 3)
	fake := testutil.NewFakeStages()

	res, err := New(g, fake, WithWorkers(4)).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Failures())
	assert.Len(t, fake.Calls(), 7)
	for i := 0; i < 3; i++ {
		assert.True(t, res.RunCompleted(i))
	}

	inputs := fake.Inputs("sub-01.reg[2]")
	require.Len(t, inputs["moving"], 1)
	assert.Contains(t, inputs["moving"][0], "hmc_2")
	assert.Contains(t, inputs["fixed"][0], "anat")

	reg, ok := res.Node("sub-01.reg[2]")
	require.True(t, ok)
	assert.Equal(t, "label", reg.Outputs["label"])
}

func TestRun_RunBranchFailureIsIsolated(t *testing.T) {
	g := buildGraph(t, 2)
	fake := testutil.NewFakeStages()
	fake.FailOn("sub-01.hmc[0]", &pipelineerr.StageExecutionError{Stage: "sub-01.hmc[0]", ExitCode: 1})

	res, err := New(g, fake, WithWorkers(2)).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerr.ErrStageExecution)
	assert.Contains(t, err.Error(), "sub-01.hmc[0]")

	failures := res.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "sub-01.hmc[0]", failures[0].ID)

	reg0, _ := res.Node("sub-01.reg[0]")
	assert.Equal(t, nodestore.StatusSkipped, reg0.Status)
	assert.ErrorIs(t, reg0.Err, ErrSkipped)
	assert.False(t, fake.Called("sub-01.reg[0]"))

	assert.False(t, res.RunCompleted(0))
	assert.True(t, res.RunCompleted(1))
	assert.True(t, fake.Called("sub-01.reg[1]"))
}

func TestRun_SharedFailureStopsNewStages(t *testing.T) {
	g, err := dag.NewBuilder("sub-01", t.TempDir()).
		Add("anat", anatSpec, nil).
		Bind("anat", "t1w", "T1w.nii.gz").
		Add("fmap", fmapSpec, nil).
		Bind("fmap", "fmap", "phasediff.nii.gz").
		Build(context.Background())
	require.NoError(t, err)

	fake := testutil.NewFakeStages()
	fake.FailOn("sub-01.anat", errors.New("bet crashed"))

	res, err := New(g, fake, WithWorkers(1)).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerr.ErrStageExecution)

	fmapRes, _ := res.Node("sub-01.fmap")
	assert.Equal(t, nodestore.StatusSkipped, fmapRes.Status)
	assert.False(t, fake.Called("sub-01.fmap"))
	require.Len(t, res.Failures(), 1)
}

func TestRun_MemoryBudgetSerializesStages(t *testing.T) {
	g := buildGraph(t, 4)
	fake := testutil.NewFakeStages()
	fake.Delay = 10 * time.Millisecond

	_, err := New(g, fake, WithWorkers(4), WithBudget(stage.Budget{Threads: 4, MemoryMB: 150})).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.MaxConcurrent())
}

func TestRun_MissingOutputFailsStage(t *testing.T) {
	g := buildGraph(t, 1)
	fake := testutil.NewFakeStages()
	fake.Use("hmc", stage.RunnerFunc(func(context.Context, *stage.Invocation) (stage.Outputs, error) {
		return stage.Outputs{}, nil
	}))

	res, err := New(g, fake).Run(context.Background())
	require.Error(t, err)
	hmc, _ := res.Node("sub-01.hmc[0]")
	assert.Equal(t, nodestore.StatusFailed, hmc.Status)
	assert.Contains(t, hmc.Err.Error(), "missing output 'mean'")
}

func TestRun_ParentCancellation(t *testing.T) {
	g := buildGraph(t, 2)
	fake := testutil.NewFakeStages()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(g, fake, WithWorkers(2)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Failures(), "skips are not root causes")
	assert.Empty(t, fake.Calls())
	for _, n := range res.Nodes {
		assert.Equal(t, nodestore.StatusSkipped, n.Status, n.ID)
	}
}

func TestRun_CacheSkipsUnchangedStages(t *testing.T) {
	ctx := context.Background()
	cache, err := runcache.Open(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer cache.Close()

	g := buildGraph(t, 2)
	first := testutil.NewFakeStages()
	_, err = New(g, first, WithCache(cache)).Run(ctx)
	require.NoError(t, err)
	require.Len(t, first.Calls(), 5)

	second := testutil.NewFakeStages()
	res, err := New(g, second, WithCache(cache)).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Calls(), "everything reused")
	reg, ok := res.Node("sub-01.reg[1]")
	require.True(t, ok)
	assert.Equal(t, nodestore.StatusCompleted, reg.Status)
	assert.Equal(t, "label", reg.Outputs["label"])

	// A vanished output reruns the producer and, through the new
	// fingerprint of its consumer, the consumer too.
	hmc, _ := res.Node("sub-01.hmc[0]")
	require.NoError(t, os.Remove(hmc.Outputs["mean"]))
	third := testutil.NewFakeStages()
	_, err = New(g, third, WithCache(cache)).Run(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sub-01.hmc[0]", "sub-01.reg[0]"}, third.Calls())
}
