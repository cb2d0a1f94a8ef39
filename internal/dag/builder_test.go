package dag

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/fmriflow/internal/pipelineerr"
	"github.com/vk/fmriflow/internal/stage"
)

var (
	anatSpec = &stage.Spec{
		Name:    "anat",
		Inputs:  []stage.Port{stage.In("t1w", stage.Volume)},
		Outputs: []stage.Port{stage.Out("brain", stage.Volume), stage.Out("mask", stage.Mask)},
	}
	hmcSpec = &stage.Spec{
		Name:    "hmc",
		Inputs:  []stage.Port{stage.In("bold", stage.Series)},
		Outputs: []stage.Port{stage.Out("mean", stage.Volume), stage.Out("movpar", stage.Table)},
	}
	regSpec = &stage.Spec{
		Name:    "reg",
		Inputs:  []stage.Port{stage.In("moving", stage.Volume), stage.In("fixed", stage.Volume)},
		Outputs: []stage.Port{stage.Out("xfm", stage.Transform)},
	}
	concatSpec = &stage.Spec{
		Name:    "concat",
		Inputs:  []stage.Port{stage.Gather("in_mats", stage.Transform)},
		Outputs: []stage.Port{stage.Out("out", stage.Transform)},
	}
)

func subjectBuilder(runs []string) *Builder {
	return NewBuilder("sub-01", "/work").
		Add("anat", anatSpec, nil).
		Bind("anat", "t1w", "/data/T1w.nii.gz").
		Add("hmc", hmcSpec, nil).
		Iterate("hmc", "bold", runs).
		Add("reg", regSpec, nil).
		Connect("hmc", "mean", "reg", "moving").
		Connect("anat", "brain", "reg", "fixed")
}

func requireConfigErr(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerr.ErrConfiguration)
	assert.Contains(t, err.Error(), contains)
}

func TestBuild_FanOutPreservesOrder(t *testing.T) {
	runs := []string{"/data/run-1_bold.nii.gz", "/data/run-2_bold.nii.gz", "/data/run-3_bold.nii.gz"}
	g, err := subjectBuilder(runs).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, g.Runs)
	assert.Len(t, g.Instances("anat"), 1)
	assert.True(t, g.Instances("anat")[0].Shared())

	hmcs := g.Instances("hmc")
	require.Len(t, hmcs, 3)
	for i, n := range hmcs {
		assert.Equal(t, i, n.Run)
		assert.Equal(t, []string{runs[i]}, n.Constants["bold"])
	}
	assert.Equal(t, "sub-01.hmc[1]", hmcs[1].ID())
	assert.Equal(t, "/work/sub-01/hmc_1", hmcs[1].OutputDir)

	regs := g.Instances("reg")
	require.Len(t, regs, 3)
	for i, n := range regs {
		deps := n.Deps()
		require.Len(t, deps, 2)
		assert.Equal(t, "sub-01.anat", deps[0].ID())
		assert.Equal(t, hmcs[i].ID(), deps[1].ID())
	}
	assert.Equal(t, 7, g.Len())
}

func TestBuild_GatherOrdersBySlotThenRun(t *testing.T) {
	b := subjectBuilder([]string{"a", "b"}).
		Add("concat", concatSpec, nil).
		Gather("concat").
		Connect("reg", "xfm", "concat", "in_mats", WithSlot(1)).
		Add("anatreg", regSpec, nil).
		Connect("anat", "brain", "anatreg", "moving").
		Bind("anatreg", "fixed", "/tpl/MNI.nii.gz").
		Connect("anatreg", "xfm", "concat", "in_mats", WithSlot(0))

	g, err := b.Build(context.Background())
	require.NoError(t, err)

	concat := g.Instances("concat")
	require.Len(t, concat, 1)
	require.True(t, concat[0].Shared())

	var froms []string
	for _, bind := range concat[0].Bindings {
		froms = append(froms, bind.From)
	}
	assert.Equal(t, []string{"sub-01.anatreg", "sub-01.reg[0]", "sub-01.reg[1]"}, froms)
}

func TestBuild_ValidationErrors(t *testing.T) {
	testCases := []struct {
		name     string
		build    func() *Builder
		contains string
	}{
		{
			name: "unbound input",
			build: func() *Builder {
				return NewBuilder("sub-01", "/w").Add("anat", anatSpec, nil)
			},
			contains: "unbound input port 'anat.t1w'",
		},
		{
			name: "second producer on single port",
			build: func() *Builder {
				return subjectBuilder([]string{"a"}).Connect("anat", "brain", "reg", "moving")
			},
			contains: "bound 2 times",
		},
		{
			name: "type mismatch",
			build: func() *Builder {
				return subjectBuilder([]string{"a"}).
					Add("concat", concatSpec, nil).
					Connect("anat", "brain", "concat", "in_mats")
			},
			contains: "type mismatch",
		},
		{
			name: "unknown output port",
			build: func() *Builder {
				return subjectBuilder([]string{"a"}).
					Add("concat", concatSpec, nil).
					Connect("reg", "nope", "concat", "in_mats")
			},
			contains: "no output port 'nope'",
		},
		{
			name: "bind to unknown port",
			build: func() *Builder {
				return subjectBuilder([]string{"a"}).Bind("anat", "t2w", "x")
			},
			contains: "no input port 't2w'",
		},
		{
			name: "duplicate stage",
			build: func() *Builder {
				return subjectBuilder([]string{"a"}).Add("anat", anatSpec, nil)
			},
			contains: "declared twice",
		},
		{
			name: "cycle",
			build: func() *Builder {
				loop := &stage.Spec{
					Name:    "loop",
					Inputs:  []stage.Port{stage.In("in", stage.Volume)},
					Outputs: []stage.Port{stage.Out("out", stage.Volume)},
				}
				return NewBuilder("sub-01", "/w").
					Add("a", loop, nil).
					Add("b", loop, nil).
					Connect("a", "out", "b", "in").
					Connect("b", "out", "a", "in")
			},
			contains: "cycle detected",
		},
		{
			name: "per-run output into single port of gather",
			build: func() *Builder {
				return subjectBuilder([]string{"a", "b"}).
					Add("sink", regSpec, nil).
					Gather("sink").
					Connect("hmc", "mean", "sink", "moving").
					Bind("sink", "fixed", "x")
			},
			contains: "gathered into single-value port",
		},
		{
			name: "invalid config",
			build: func() *Builder {
				return NewBuilder("sub-01", "/w").
					Add("anat", anatSpec, badConfig{}).
					Bind("anat", "t1w", "x")
			},
			contains: "invalid config",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build().Build(context.Background())
			requireConfigErr(t, err, tc.contains)
		})
	}
}

type badConfig struct{}

func (badConfig) Validate() error { return errors.New("threads must be positive") }

func TestBuild_EmptyIterableDropsRunBranches(t *testing.T) {
	g, err := subjectBuilder(nil).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, g.Runs)
	assert.Equal(t, 1, g.Len())
	_, ok := g.Node("sub-01.anat")
	assert.True(t, ok)
}

func TestResolveInputs(t *testing.T) {
	g, err := subjectBuilder([]string{"run-1"}).Build(context.Background())
	require.NoError(t, err)
	reg, ok := g.Node("sub-01.reg[0]")
	require.True(t, ok)

	outputs := map[string]stage.Outputs{
		"sub-01.anat":   {"brain": "/w/brain.nii.gz", "mask": "/w/mask.nii.gz"},
		"sub-01.hmc[0]": {"mean": "/w/mean.nii.gz", "movpar": "/w/movpar.tsv"},
	}
	lookup := func(id string) (stage.Outputs, bool) {
		o, ok := outputs[id]
		return o, ok
	}

	inputs, err := reg.ResolveInputs(lookup)
	require.NoError(t, err)
	assert.Equal(t, []string{"/w/mean.nii.gz"}, inputs["moving"])
	assert.Equal(t, []string{"/w/brain.nii.gz"}, inputs["fixed"])

	delete(outputs, "sub-01.hmc[0]")
	_, err = reg.ResolveInputs(lookup)
	assert.Error(t, err)
}

func TestResolveInputs_ValidatorRejects(t *testing.T) {
	b := subjectBuilder([]string{"run-1"})
	b.conns[0].validator = func(string) error { return errors.New("not 3D") }
	g, err := b.Build(context.Background())
	require.NoError(t, err)
	reg, _ := g.Node("sub-01.reg[0]")

	_, err = reg.ResolveInputs(func(string) (stage.Outputs, bool) {
		return stage.Outputs{"mean": "m", "brain": "b"}, true
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not 3D")
}

func TestGraph_TopologicalOrderAndDOT(t *testing.T) {
	g, err := subjectBuilder([]string{"a", "b"}).Build(context.Background())
	require.NoError(t, err)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, g.Len())
	seen := map[string]bool{}
	for _, n := range order {
		for _, d := range n.Deps() {
			assert.True(t, seen[d.ID()], "%s scheduled before %s", n.ID(), d.ID())
		}
		seen[n.ID()] = true
	}

	var buf bytes.Buffer
	require.NoError(t, g.WriteDOT(&buf))
	assert.Contains(t, buf.String(), `"sub-01.hmc[1]" -> "sub-01.reg[1]" [label="mean->moving"]`)
}
