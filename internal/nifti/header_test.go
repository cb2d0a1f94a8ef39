package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeHeader writes a minimal NIfTI-1 header with the given dimensionality.
func writeHeader(t *testing.T, path string, dims int16, gz bool) {
	t.Helper()
	hdr := make([]byte, nifti1HeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], nifti1HeaderSize)
	binary.LittleEndian.PutUint16(hdr[40:42], uint16(dims))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	if gz {
		w := gzip.NewWriter(f)
		_, err = w.Write(hdr)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return
	}
	_, err = f.Write(hdr)
	require.NoError(t, err)
}

func TestDims(t *testing.T) {
	dir := t.TempDir()
	bold := filepath.Join(dir, "bold.nii.gz")
	t1 := filepath.Join(dir, "t1.nii")
	writeHeader(t, bold, 4, true)
	writeHeader(t, t1, 3, false)

	d, err := Dims(bold)
	require.NoError(t, err)
	assert.Equal(t, 4, d)

	d, err = Dims(t1)
	require.NoError(t, err)
	assert.Equal(t, 3, d)
}

func TestDims_NotNifti(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.nii")
	require.NoError(t, os.WriteFile(p, make([]byte, 64), 0o644))
	_, err := Dims(p)
	assert.Error(t, err)

	_, err = Dims(filepath.Join(t.TempDir(), "missing.nii"))
	assert.Error(t, err)
}

func TestParseDims_BigEndian(t *testing.T) {
	hdr := make([]byte, 48)
	binary.BigEndian.PutUint32(hdr[0:4], nifti1HeaderSize)
	binary.BigEndian.PutUint16(hdr[40:42], 4)
	d, err := parseDims(hdr)
	require.NoError(t, err)
	assert.Equal(t, 4, d)
}
