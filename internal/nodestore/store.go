// Package nodestore defines the interface for storing and retrieving the
// mutable execution state of stage instances while a subject pipeline runs.
//
// The store keeps execution state (status, outputs, errors) apart from the
// immutable instance graph built by package dag. The executor writes to it
// as instances run, and reads producer outputs from it to resolve the
// inputs of downstream instances. The driver reads it afterwards to decide
// which run branches completed.
//
// # State Transitions
//
// Instances follow this lifecycle:
//
//	Pending → Running → Completed (with output) OR Failed (with error)
//	Pending → Skipped (an upstream instance failed or the subject was cancelled)
package nodestore

import (
	"context"

	"github.com/vk/fmriflow/internal/nodeid"
	"github.com/vk/fmriflow/internal/stage"
)

// Status is the execution state of a stage instance.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// Store is the interface for managing the mutable execution state of stage instances.
//
// Implementations MUST be safe for concurrent reads and writes, as several
// workers run instances in parallel and simultaneously update and query state.
type Store interface {
	// SetStatus updates the execution status of an instance.
	SetStatus(ctx context.Context, id nodeid.Address, status Status) error

	// GetStatus returns StatusPending if no status has been set yet.
	GetStatus(ctx context.Context, id nodeid.Address) (Status, error)

	// SetOutput records the successful outputs of an instance.
	SetOutput(ctx context.Context, id nodeid.Address, outputs stage.Outputs) error

	// GetOutput returns nil if the instance hasn't completed yet.
	GetOutput(ctx context.Context, id nodeid.Address) (stage.Outputs, error)

	// SetError records why an instance failed or was skipped.
	SetError(ctx context.Context, id nodeid.Address, nodeErr error) error

	// GetError returns nil if the instance succeeded or hasn't executed yet.
	GetError(ctx context.Context, id nodeid.Address) (error, error)

	// Counts tallies instances per status. Instances never touched are not counted.
	Counts(ctx context.Context) (map[Status]int, error)
}

// Cache remembers completed instances across invocations. A remembered
// result is only returned for an equal fingerprint.
type Cache interface {
	Lookup(ctx context.Context, id nodeid.Address, fingerprint string) (stage.Outputs, bool, error)
	Remember(ctx context.Context, id nodeid.Address, fingerprint string, outputs stage.Outputs) error
}
