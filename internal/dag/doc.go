// Package dag is the wiring layer of the pipeline. A Builder collects stage
// templates, typed connections between their ports, literal bindings from the
// inventory and at most one iterable port. Build validates the wiring and
// expands it into a Graph of concrete stage instances, replicating every
// template reachable from the iterable port once per element.
//
// Validation happens entirely at build time: an unknown port, a type
// mismatch between connected ports, an input bound zero or several times, a
// cycle or two instances sharing an output directory are all reported as a
// ConfigurationError before any stage runs.
package dag
