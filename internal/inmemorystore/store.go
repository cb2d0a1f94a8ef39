package inmemorystore

import (
	"context"
	"maps"
	"sync"

	"github.com/vk/fmriflow/internal/nodeid"
	"github.com/vk/fmriflow/internal/nodestore"
	"github.com/vk/fmriflow/internal/stage"
)

// record is the state of one stage instance.
type record struct {
	status  nodestore.Status
	outputs stage.Outputs
	err     error
}

// Store keeps instance state in a map keyed by the canonical address.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
}

// New creates a new, empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]*record)}
}

var _ nodestore.Store = (*Store)(nil)

// update runs fn on the record of id, creating it on first use.
func (s *Store) update(id nodeid.Address, fn func(r *record)) {
	key := id.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		r = &record{}
		s.records[key] = r
	}
	fn(r)
}

func (s *Store) get(id nodeid.Address) (record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id.String()]
	if !ok {
		return record{}, false
	}
	return *r, true
}

// SetStatus implements nodestore.Store.
func (s *Store) SetStatus(_ context.Context, id nodeid.Address, status nodestore.Status) error {
	s.update(id, func(r *record) { r.status = status })
	return nil
}

// GetStatus implements nodestore.Store.
func (s *Store) GetStatus(_ context.Context, id nodeid.Address) (nodestore.Status, error) {
	r, _ := s.get(id)
	return r.status, nil
}

// SetOutput stores a copy of outputs so later mutation by the stage does
// not leak into downstream inputs.
func (s *Store) SetOutput(_ context.Context, id nodeid.Address, outputs stage.Outputs) error {
	cp := maps.Clone(outputs)
	s.update(id, func(r *record) { r.outputs = cp })
	return nil
}

// GetOutput implements nodestore.Store.
func (s *Store) GetOutput(_ context.Context, id nodeid.Address) (stage.Outputs, error) {
	r, _ := s.get(id)
	return r.outputs, nil
}

// SetError implements nodestore.Store.
func (s *Store) SetError(_ context.Context, id nodeid.Address, nodeErr error) error {
	s.update(id, func(r *record) { r.err = nodeErr })
	return nil
}

// GetError implements nodestore.Store.
func (s *Store) GetError(_ context.Context, id nodeid.Address) (error, error) {
	r, _ := s.get(id)
	return r.err, nil
}

// Counts implements nodestore.Store.
func (s *Store) Counts(_ context.Context) (map[nodestore.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[nodestore.Status]int{}
	for _, r := range s.records {
		out[r.status]++
	}
	return out, nil
}
