package confounds

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/roi"
	"golang.org/x/sync/errgroup"
)

// Tools runs the external sub-computations. Each method writes a TSV
// table into outDir and returns its path.
type Tools interface {
	Signals(ctx context.Context, bold, seg, outDir string) (string, error)
	DVARS(ctx context.Context, bold, mask, outDir string) (string, error)
	TCompCor(ctx context.Context, bold, mask, outDir string) (string, error)
	BinarizeROI(ctx context.Context, seg string, falseValues []int, outDir string) (string, error)
	ACompCor(ctx context.Context, bold, roi, outDir string) (string, error)
}

// Input is everything one run contributes.
type Input struct {
	Bold   string
	Mask   string
	Seg    string
	Movpar string
	OutDir string
}

// Options tune aggregation.
type Options struct {
	// IncludeDVARS adds the DVARS table after the signals table.
	IncludeDVARS bool
	// HeadRadius in mm for framewise displacement; 0 means DefaultHeadRadius.
	HeadRadius float64
	// ROIFalseValues are segmentation labels excluded from the aCompCor ROI.
	ROIFalseValues []int
	// ROIAccept checks a binarized ROI; nil accepts the first one.
	ROIAccept roi.AcceptFunc[string]
	// ROIAdjust derives new false values after a rejected ROI; nil keeps them.
	ROIAdjust roi.AdjustFunc[[]int]
	// ROIAttempts bounds the ROI search; 0 means roi.DefaultMaxAttempts.
	ROIAttempts int
}

// DefaultROIFalseValues drops grey matter (label 1) and background (0).
var DefaultROIFalseValues = []int{1, 0}

// Aggregator computes the confound table of a run.
type Aggregator struct {
	Tools   Tools
	Options Options
}

// OutputName is the file name of the aggregated table.
const OutputName = "confounds.tsv"

// Aggregate runs the sub-computations concurrently, concatenates their
// tables and writes the result into in.OutDir.
func (a *Aggregator) Aggregate(ctx context.Context, in Input) (string, error) {
	logger := ctxlog.FromContext(ctx)

	subdir := func(name string) (string, error) {
		d := filepath.Join(in.OutDir, name)
		return d, os.MkdirAll(d, 0o755)
	}

	radius := a.Options.HeadRadius
	if radius <= 0 {
		radius = DefaultHeadRadius
	}
	falseValues := a.Options.ROIFalseValues
	if falseValues == nil {
		falseValues = DefaultROIFalseValues
	}

	var signals, dvars, fd, tcompcor, acompcor *Table
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dir, err := subdir("signals")
		if err != nil {
			return err
		}
		path, err := a.Tools.Signals(gctx, in.Bold, in.Seg, dir)
		if err != nil {
			return err
		}
		signals, err = ReadFile(path)
		return err
	})
	if a.Options.IncludeDVARS {
		g.Go(func() error {
			dir, err := subdir("dvars")
			if err != nil {
				return err
			}
			path, err := a.Tools.DVARS(gctx, in.Bold, in.Mask, dir)
			if err != nil {
				return err
			}
			dvars, err = ReadFile(path)
			return err
		})
	}
	g.Go(func() error {
		motion, err := ReadMovpar(in.Movpar)
		if err != nil {
			return fmt.Errorf("motion parameters: %w", err)
		}
		fd, err = FramewiseDisplacement(motion, radius)
		return err
	})
	g.Go(func() error {
		dir, err := subdir("tcompcor")
		if err != nil {
			return err
		}
		path, err := a.Tools.TCompCor(gctx, in.Bold, in.Mask, dir)
		if err != nil {
			return err
		}
		tcompcor, err = ReadFile(path)
		return err
	})
	g.Go(func() error {
		dir, err := subdir("acompcor")
		if err != nil {
			return err
		}
		mask, err := a.binarize(gctx, in.Seg, falseValues, dir)
		if err != nil {
			return err
		}
		path, err := a.Tools.ACompCor(gctx, in.Bold, mask, dir)
		if err != nil {
			return err
		}
		acompcor, err = ReadFile(path)
		return err
	})

	if err := g.Wait(); err != nil {
		return "", err
	}

	parts := []NamedTable{{Name: "signals", Table: signals}}
	if dvars != nil {
		parts = append(parts, NamedTable{Name: "dvars", Table: dvars})
	}
	parts = append(parts,
		NamedTable{Name: "fd", Table: fd},
		NamedTable{Name: "tcompcor", Table: tcompcor},
		NamedTable{Name: "acompcor", Table: acompcor},
	)

	combined, err := Concat(parts...)
	if err != nil {
		return "", err
	}

	out := filepath.Join(in.OutDir, OutputName)
	if err := WriteFile(out, combined); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", out, err)
	}
	logger.Debug("Confounds aggregated.", "rows", combined.Rows(), "columns", len(combined.Columns()), "path", out)
	return out, nil
}

func (a *Aggregator) binarize(ctx context.Context, seg string, falseValues []int, dir string) (string, error) {
	accept := a.Options.ROIAccept
	if accept == nil {
		accept = func(string) bool { return true }
	}
	evaluate := func(ctx context.Context, fv []int) (string, error) {
		return a.Tools.BinarizeROI(ctx, seg, fv, dir)
	}
	_, path, err := roi.Search(ctx, falseValues, a.Options.ROIAdjust, accept, evaluate, a.Options.ROIAttempts)
	if err != nil {
		return "", fmt.Errorf("aCompCor ROI: %w", err)
	}
	return path, nil
}
