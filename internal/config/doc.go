// Package config defines the format-agnostic configuration model of a
// pipeline run, along with the Loader interface for reading it from files.
//
// The HCL implementation lives in hcl_adapter. Execution plugin files
// (YAML, as written by other preprocessing front ends) are read here.
package config
