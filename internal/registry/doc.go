// Package registry holds the stage specs and runners available to the
// pipeline assembler and executor for one application instance.
package registry
