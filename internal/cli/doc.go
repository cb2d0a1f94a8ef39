// Package cli parses the command line, validates user input and maps
// failures to process exit codes. Every flag can also be set through an
// FMRIFLOW_* environment variable, e.g. FMRIFLOW_NTHREADS=8.
package cli
