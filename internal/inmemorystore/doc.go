// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the nodestore.Store interface.
//
// A fresh store is created for every subject pipeline run. Each instance
// has one record behind a single RWMutex; reads dominate once workers
// start resolving inputs.
package inmemorystore
