// Package nifti reads the few header fields the pipeline needs to validate
// images flowing between stages. Voxel data is never read.
package nifti

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	nifti1HeaderSize = 348
	nifti2HeaderSize = 540
)

// Dims returns dim[0], the number of dimensions, of a .nii or .nii.gz file.
func Dims(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	hdr := make([]byte, 48)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, fmt.Errorf("%s: short header: %w", path, err)
	}
	return parseDims(hdr)
}

// parseDims decodes sizeof_hdr in either byte order and picks dim[0].
func parseDims(hdr []byte) (int, error) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch order.Uint32(hdr[0:4]) {
		case nifti1HeaderSize:
			return int(int16(order.Uint16(hdr[40:42]))), nil
		case nifti2HeaderSize:
			return int(int64(order.Uint64(hdr[16:24]))), nil
		}
	}
	return 0, fmt.Errorf("not a NIfTI header")
}
