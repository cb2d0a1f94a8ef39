package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/pipelineerr"
)

// stderrTail bounds how much of a failing tool's stderr is kept.
const stderrTail = 2048

// Command is a fully resolved external program invocation.
type Command struct {
	Path string
	Args []string
	Env  []string
}

// CommandBuilder turns an invocation into the commands to run, in order,
// and the output values they are expected to produce.
type CommandBuilder func(inv *Invocation) ([]Command, Outputs, error)

// CommandRunner runs an external neuroimaging tool for a stage.
type CommandRunner struct {
	Build CommandBuilder
}

// NewCommandRunner wraps a builder.
func NewCommandRunner(build CommandBuilder) *CommandRunner {
	return &CommandRunner{Build: build}
}

// Run implements Runner.
func (r *CommandRunner) Run(ctx context.Context, inv *Invocation) (Outputs, error) {
	addr := inv.Address.String()

	cmds, outputs, err := r.Build(inv)
	if err != nil {
		return nil, &pipelineerr.StageExecutionError{Stage: addr, ExitCode: -1, Err: err}
	}
	threads := inv.Budget.ThreadsFor(inv.Spec)
	for _, c := range cmds {
		if err := Exec(ctx, addr, c, inv.OutputDir, threads); err != nil {
			return nil, err
		}
	}
	if err := CheckOutputs(inv.Spec, outputs); err != nil {
		return nil, &pipelineerr.StageExecutionError{Stage: addr, ExitCode: -1, Err: err}
	}
	return outputs, nil
}

// Exec runs a command in dir with thread-limiting environment variables set.
// Any failure is returned as a StageExecutionError attributed to addr.
func Exec(ctx context.Context, addr string, c Command, dir string, threads int) error {
	logger := ctxlog.FromContext(ctx)
	if threads <= 0 {
		threads = 1
	}
	n := strconv.Itoa(threads)

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"OMP_NUM_THREADS="+n,
		"ITK_GLOBAL_DEFAULT_NUMBER_OF_THREADS="+n,
	)
	cmd.Env = append(cmd.Env, c.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Running external tool.", "node_id", addr, "cmd", c.Path, "args", c.Args)
	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			err = nil
		}
		return &pipelineerr.StageExecutionError{
			Stage:    addr,
			ExitCode: exitCode,
			Stderr:   tail(stderr.Bytes(), stderrTail),
			Err:      err,
		}
	}
	return nil
}

// CheckOutputs verifies every declared output is present and, for file
// ports, exists on disk.
func CheckOutputs(spec *Spec, outputs Outputs) error {
	for _, p := range spec.Outputs {
		v, ok := outputs[p.Name]
		if !ok || v == "" {
			return fmt.Errorf("missing output '%s'", p.Name)
		}
		if p.Type.IsFile() {
			if _, err := os.Stat(v); err != nil {
				return fmt.Errorf("output '%s' not produced: %w", p.Name, err)
			}
		}
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}

// Expand substitutes `{name}` placeholders in a command's arguments.
func (c Command) Expand(vars map[string]string) Command {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	out := Command{Path: c.Path, Env: c.Env, Args: make([]string, len(c.Args))}
	for i, a := range c.Args {
		out.Args[i] = r.Replace(a)
	}
	return out
}
