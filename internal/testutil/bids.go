package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFiles creates each relative path under root with the given content.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// MinimalDataset lays out a subject with one T1w and the given number of
// functional runs and no sbref.
func MinimalDataset(t *testing.T, root, subject string, runs int) {
	t.Helper()
	files := map[string]string{
		filepath.Join("sub-"+subject, "anat", "sub-"+subject+"_T1w.nii.gz"): "t1",
	}
	for i := 1; i <= runs; i++ {
		name := filepath.Join("sub-"+subject, "func", "sub-"+subject+"_task-rest_run-"+strconv.Itoa(i)+"_bold.nii.gz")
		files[name] = "bold"
	}
	WriteFiles(t, root, files)
}

// RichDataset is MinimalDataset plus an sbref and a phasediff fieldmap.
func RichDataset(t *testing.T, root, subject string, runs int) {
	t.Helper()
	MinimalDataset(t, root, subject, runs)
	WriteFiles(t, root, map[string]string{
		filepath.Join("sub-"+subject, "func", "sub-"+subject+"_task-rest_sbref.nii.gz"): "sbref",
		filepath.Join("sub-"+subject, "fmap", "sub-"+subject+"_phasediff.nii.gz"):       "pd",
		filepath.Join("sub-"+subject, "fmap", "sub-"+subject+"_magnitude1.nii.gz"):      "mag",
	})
}
