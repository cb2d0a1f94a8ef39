// Package report gathers the visual fragments written by pipeline stages
// into per-run groups and renders one HTML page per subject.
//
// Fragments are .svg or .html files whose path matches an element pattern
// from the report Config. Each fragment is grouped by the session, task,
// acquisition, reconstruction and run entities found in its file name.
// Files without those entities are ignored.
package report
