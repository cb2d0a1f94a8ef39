// Package pipelineerr defines the error taxonomy shared by pipeline assembly,
// execution, confound aggregation and the ROI retry loop.
//
// Every typed error unwraps to a sentinel so callers can branch with
// errors.Is without depending on the concrete struct.
package pipelineerr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic error checking via errors.Is().
var (
	// ErrConfiguration indicates an invalid inventory, override or wiring.
	ErrConfiguration = errors.New("configuration error")

	// ErrStageExecution indicates an external or native stage failed.
	ErrStageExecution = errors.New("stage execution error")

	// ErrAggregationConflict indicates two confound tables share a column name.
	ErrAggregationConflict = errors.New("aggregation conflict")

	// ErrShapeMismatch indicates confound tables with differing row counts.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrRetryExhausted indicates a bounded retry hit its attempt ceiling.
	ErrRetryExhausted = errors.New("retry exhausted")
)

// ConfigurationError is raised before any stage runs.
type ConfigurationError struct {
	Subject string // May be empty when the error is not subject specific.
	Msg     string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s: %s", ErrConfiguration.Error(), e.Subject, e.Msg)
	}
	return fmt.Sprintf("%s: %s", ErrConfiguration.Error(), e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Configf is a shorthand for building a ConfigurationError.
func Configf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// StageExecutionError carries the failing stage instance address. ExitCode is
// -1 when the failure did not come from a process exit.
type StageExecutionError struct {
	Stage    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *StageExecutionError) Error() string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(ErrStageExecution.Error())
	sb.WriteString(": ")
	sb.WriteString(e.Stage)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&sb, ": exit status %d", e.ExitCode)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		sb.WriteString(": ")
		sb.WriteString(tail)
	}
	return sb.String()
}

func (e *StageExecutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrStageExecution, e.Err}
	}
	return []error{ErrStageExecution}
}

// AggregationConflict names the column and both tables that define it.
type AggregationConflict struct {
	Column string
	First  string
	Second string
}

func (e *AggregationConflict) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: column %q defined by both %q and %q", ErrAggregationConflict.Error(), e.Column, e.First, e.Second)
}

func (e *AggregationConflict) Unwrap() error { return ErrAggregationConflict }

// ShapeMismatch reports the first table whose row count disagrees.
type ShapeMismatch struct {
	Table    string
	Rows     int
	Expected int
	Against  string
}

func (e *ShapeMismatch) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: table %q has %d rows, %q has %d", ErrShapeMismatch.Error(), e.Table, e.Rows, e.Against, e.Expected)
}

func (e *ShapeMismatch) Unwrap() error { return ErrShapeMismatch }

// RetryExhausted records how many attempts ran and the last parameters tried.
type RetryExhausted struct {
	Attempts int
	Last     any
}

func (e *RetryExhausted) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s after %d attempts (last parameters: %+v)", ErrRetryExhausted.Error(), e.Attempts, e.Last)
}

func (e *RetryExhausted) Unwrap() error { return ErrRetryExhausted }
