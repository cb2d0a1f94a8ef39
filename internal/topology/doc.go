// Package topology chooses a pipeline variant for a subject's inventory and
// wires the stage graph of that variant.
//
// Two variants exist. The rich topology corrects susceptibility distortion
// with a field map and registers each run through a single-band reference.
// The minimal topology registers each run directly to the anatomical image.
// Both fan out over the functional runs of the inventory.
package topology
