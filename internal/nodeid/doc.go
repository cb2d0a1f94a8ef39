/*
Package nodeid provides a structured representation for stage instance
identifiers within a subject pipeline.

The canonical format is a dot-separated sequence of segments where any
segment may carry an index, e.g. `sub-01.func_hmc[1]`. The first segment
names the subject, the second the stage; an index on the stage segment is
the position of the functional run the instance was fanned out for.
*/
package nodeid
