// Package confounds computes and aggregates per-timepoint nuisance signals
// for one functional run.
//
// Four independent sub-computations run concurrently: tissue and global
// mean signals, framewise displacement from the head-motion parameters,
// temporal CompCor, and anatomical CompCor restricted to a non-grey-matter
// ROI. Their tables are concatenated column-wise, in that fixed order, into
// a single tab-separated file with one header row and one row per
// timepoint. Shared column names and differing row counts are errors.
package confounds
