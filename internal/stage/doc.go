/*
Package stage defines the uniform contract every pipeline stage satisfies.

A Spec declares a stage's named, typed input and output ports plus its
resource estimate. At run time the executor hands a Runner an Invocation
carrying the resolved input values, the stage's typed Config, a private
output directory and the resource budget. Runners return the values of
their output ports.

Most neuroimaging stages are external programs; CommandRunner turns a
CommandBuilder into a Runner that executes the program, maps a non-zero
exit to a StageExecutionError and checks that every declared output file
was produced.
*/
package stage
