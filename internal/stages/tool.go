package stages

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/vk/fmriflow/internal/stage"
)

// Tool describes external commands run in sequence for one stage.
// Arguments may use these placeholders:
//
//	{out}        the instance output directory
//	{threads}    the thread count granted by the budget
//	{port}       the first value bound to an input port
//	{port.i}     the i-th value of an aggregation port
//	{port...}    as a whole argument, every value of the port spliced in
//	{name...}    as a whole argument, the result of Splices[name]
//	{name}       any variable exposed by the stage config
//
// Outputs maps output ports to file names relative to {out}, expanded with
// the same variables.
type Tool struct {
	Commands []stage.Command
	Outputs  map[string]string
	Splices  map[string]func(inv *stage.Invocation) []string
}

var (
	spliceArg  = regexp.MustCompile(`^\{([a-zA-Z0-9_]+)\.\.\.\}$`)
	unresolved = regexp.MustCompile(`\{[a-zA-Z0-9_.]+\}`)
)

// Vars collects the placeholder values of an invocation.
func Vars(inv *stage.Invocation) map[string]string {
	vars := map[string]string{
		"out":     inv.OutputDir,
		"threads": strconv.Itoa(inv.Budget.ThreadsFor(inv.Spec)),
	}
	if p, ok := inv.Config.(varsProvider); ok {
		maps.Copy(vars, p.Vars())
	}
	for port, vals := range inv.Inputs {
		if len(vals) > 0 {
			vars[port] = vals[0]
		}
		for i, v := range vals {
			vars[port+"."+strconv.Itoa(i)] = v
		}
	}
	return vars
}

func (t *Tool) expand(c stage.Command, inv *stage.Invocation, vars map[string]string) (stage.Command, error) {
	var args []string
	for _, a := range c.Args {
		if m := spliceArg.FindStringSubmatch(a); m != nil {
			if gen, ok := t.Splices[m[1]]; ok {
				args = append(args, gen(inv)...)
			} else {
				args = append(args, inv.InputList(m[1])...)
			}
			continue
		}
		args = append(args, a)
	}
	cmd := stage.Command{Path: c.Path, Args: args, Env: c.Env}.Expand(vars)
	if left := unresolved.FindString(strings.Join(cmd.Args, " ")); left != "" {
		return stage.Command{}, fmt.Errorf("%s: unresolved placeholder %s", cmd.Path, left)
	}
	return cmd, nil
}

// Build implements stage.CommandBuilder.
func (t *Tool) Build(inv *stage.Invocation) ([]stage.Command, stage.Outputs, error) {
	if len(t.Commands) == 0 {
		return nil, nil, fmt.Errorf("no command configured")
	}
	vars := Vars(inv)

	cmds := make([]stage.Command, 0, len(t.Commands))
	for _, c := range t.Commands {
		cmd, err := t.expand(c, inv, vars)
		if err != nil {
			return nil, nil, err
		}
		cmds = append(cmds, cmd)
	}

	outs := stage.Outputs{}
	for port, name := range t.Outputs {
		p, ok := inv.Spec.Output(port)
		if !ok {
			return nil, nil, fmt.Errorf("tool declares unknown output '%s'", port)
		}
		v := stage.Command{Args: []string{name}}.Expand(vars).Args[0]
		if p.Type.IsFile() && !filepath.IsAbs(v) {
			v = filepath.Join(inv.OutputDir, v)
		}
		outs[port] = v
	}
	return cmds, outs, nil
}

// Runner wraps the tool in a stage.CommandRunner.
func (t *Tool) Runner() *stage.CommandRunner {
	return stage.NewCommandRunner(t.Build)
}

// WithCommand returns a copy of t whose commands are replaced by c.
func (t *Tool) WithCommand(c stage.Command) *Tool {
	return &Tool{Commands: []stage.Command{c}, Outputs: maps.Clone(t.Outputs), Splices: t.Splices}
}
