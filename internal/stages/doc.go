// Package stages is the catalog of preprocessing stages: their port
// contracts, typed configurations and default runners.
//
// Most stages wrap external neuroimaging tools through Tool, whose command
// templates can be replaced per stage from configuration. Motion
// correction, confound aggregation and the derivative sinks add native
// post-processing around or instead of external commands.
package stages
