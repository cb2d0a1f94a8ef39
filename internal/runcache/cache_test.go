package runcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/fmriflow/internal/nodeid"
	"github.com/vk/fmriflow/internal/stage"
)

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "sub-01.db")

	c, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer c.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, path, c.Path())
}

func TestRememberAndLookup(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer c.Close()

	addr := nodeid.ForStage("sub-01", "func_hmc", 0)
	_, ok, err := c.Lookup(ctx, addr, "abc")
	require.NoError(t, err)
	assert.False(t, ok, "empty cache")

	outs := stage.Outputs{"bold_hmc": "/w/func_hmc_0/bold_mcf.nii.gz", "movpar": "/w/func_hmc_0/movpar.tsv"}
	require.NoError(t, c.Remember(ctx, addr, "abc", outs))

	got, ok, err := c.Lookup(ctx, addr, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, outs, got)

	_, ok, err = c.Lookup(ctx, addr, "changed")
	require.NoError(t, err)
	assert.False(t, ok, "fingerprint mismatch is a miss")

	_, ok, err = c.Lookup(ctx, nodeid.ForStage("sub-01", "func_hmc", 1), "abc")
	require.NoError(t, err)
	assert.False(t, ok, "other run")
}

func TestRemember_ReplacesAndPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	addr := nodeid.ForStage("sub-01", "anat_preproc", -1)

	c, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, c.Remember(ctx, addr, "v1", stage.Outputs{"t1_brain": "/old"}))
	require.NoError(t, c.Remember(ctx, addr, "v2", stage.Outputs{"t1_brain": "/new"}))
	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, c.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Lookup(ctx, addr, "v2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/new", got["t1_brain"])
}
