package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFilesByExtension(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"b.hcl", "a/z.hcl", "a/notes.txt", "c/d/e.hcl"} {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	files, err := FindFilesByExtension(root, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a/z.hcl"),
		filepath.Join(root, "b.hcl"),
		filepath.Join(root, "c/d/e.hcl"),
	}, files)

	assert.Panics(t, func() { _, _ = FindFilesByExtension(root, "") })
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tsv")
	require.NoError(t, os.WriteFile(src, []byte("a\tb\n1\t2\n"), 0o640))

	dst := filepath.Join(dir, "out", "deep", "dst.tsv")
	require.NoError(t, CopyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a\tb\n1\t2\n", string(got))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Error(t, CopyFile(filepath.Join(dir, "missing"), dst))
	assert.Error(t, CopyFile(dir, filepath.Join(dir, "x")))
}

func TestStripExtensions(t *testing.T) {
	assert.Equal(t, "sub-01_bold", StripExtensions("/data/sub-01_bold.nii.gz"))
	assert.Equal(t, "movpar", StripExtensions("movpar.txt"))
	assert.Equal(t, ".hidden", StripExtensions(".hidden"))
}
