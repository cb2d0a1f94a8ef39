package dag

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/nodeid"
	"github.com/vk/fmriflow/internal/pipelineerr"
	"github.com/vk/fmriflow/internal/stage"
)

// template is a stage before fan-out.
type template struct {
	name      string
	spec      *stage.Spec
	config    stage.Config
	constants map[string][]string
	gather    bool
}

// connection is an edge between two template ports.
type connection struct {
	from, fromPort string
	to, toPort     string
	slot           int
	validator      Validator
}

type iterable struct {
	template string
	port     string
	values   []string
}

// Builder accumulates the wiring of one subject pipeline. Errors are
// deferred until Build so call sites can wire fluently.
type Builder struct {
	subject   string
	workDir   string
	templates map[string]*template
	order     []string
	conns     []connection
	iter      *iterable
	errs      []string
}

// NewBuilder creates a builder for a subject. Instance output directories
// are placed under workDir/subject.
func NewBuilder(subject, workDir string) *Builder {
	return &Builder{
		subject:   subject,
		workDir:   workDir,
		templates: make(map[string]*template),
	}
}

func (b *Builder) fail(format string, args ...any) {
	b.errs = append(b.errs, fmt.Sprintf(format, args...))
}

// Add declares a stage template.
func (b *Builder) Add(name string, spec *stage.Spec, cfg stage.Config) *Builder {
	if _, ok := b.templates[name]; ok {
		b.fail("stage '%s' declared twice", name)
		return b
	}
	if spec == nil {
		b.fail("stage '%s' has no spec", name)
		return b
	}
	if cfg == nil {
		cfg = stage.NoConfig{}
	}
	b.templates[name] = &template{name: name, spec: spec, config: cfg, constants: map[string][]string{}}
	b.order = append(b.order, name)
	return b
}

// Bind sets literal values on an input port.
func (b *Builder) Bind(name, port string, values ...string) *Builder {
	t, ok := b.templates[name]
	if !ok {
		b.fail("bind to unknown stage '%s'", name)
		return b
	}
	if _, ok := t.spec.Input(port); !ok {
		b.fail("stage '%s' has no input port '%s'", name, port)
		return b
	}
	t.constants[port] = append(t.constants[port], values...)
	return b
}

// EdgeOption customises a connection.
type EdgeOption func(*connection)

// WithSlot positions the connection within an aggregation port.
func WithSlot(slot int) EdgeOption {
	return func(c *connection) { c.slot = slot }
}

// WithValidator checks the value when it flows at run time.
func WithValidator(v Validator) EdgeOption {
	return func(c *connection) { c.validator = v }
}

// Connect wires an output port to an input port.
func (b *Builder) Connect(from, fromPort, to, toPort string, opts ...EdgeOption) *Builder {
	c := connection{from: from, fromPort: fromPort, to: to, toPort: toPort}
	for _, opt := range opts {
		opt(&c)
	}
	b.conns = append(b.conns, c)
	return b
}

// Iterate binds an input port to an ordered sequence. Every template
// reachable downstream from it, up to gathering templates, is replicated
// once per element.
func (b *Builder) Iterate(name, port string, values []string) *Builder {
	if b.iter != nil {
		b.fail("only one iterable port is supported (already '%s.%s')", b.iter.template, b.iter.port)
		return b
	}
	b.iter = &iterable{template: name, port: port, values: append([]string(nil), values...)}
	return b
}

// Gather marks a template that consumes outputs of every run. It stays
// shared and stops fan-out propagation.
func (b *Builder) Gather(name string) *Builder {
	t, ok := b.templates[name]
	if !ok {
		b.fail("gather on unknown stage '%s'", name)
		return b
	}
	t.gather = true
	return b
}

func (b *Builder) configErr(msg string) error {
	return &pipelineerr.ConfigurationError{Subject: b.subject, Msg: msg}
}

// Build validates the wiring and expands it into a Graph.
func (b *Builder) Build(ctx context.Context) (*Graph, error) {
	logger := ctxlog.FromContext(ctx).With("subject", b.subject)
	logger.Debug("Build: validating wiring.", "templates", len(b.order), "connections", len(b.conns))

	if len(b.errs) > 0 {
		return nil, b.configErr(b.errs[0])
	}
	if err := b.validateIterable(); err != nil {
		return nil, err
	}
	if err := b.validateConfigs(); err != nil {
		return nil, err
	}
	if err := b.validateConnections(); err != nil {
		return nil, err
	}
	if err := b.validateBindings(); err != nil {
		return nil, err
	}
	if err := b.detectTemplateCycles(); err != nil {
		return nil, err
	}

	perRun := b.perRunTemplates()
	if err := b.validateGatherPorts(perRun); err != nil {
		return nil, err
	}
	runs := 0
	if b.iter != nil {
		runs = len(b.iter.values)
	}
	dropped := map[string]bool{}
	if b.iter != nil && runs == 0 {
		dropped = b.downstreamOf(perRun)
		logger.Warn("Build: iterable port is empty, dropping per-run stages.", "dropped", len(dropped))
	}
	logger.Debug("Build: expanding instances.", "runs", runs, "per_run_templates", len(perRun))

	g := newGraph(b.subject)
	g.Runs = runs
	if err := b.expandNodes(g, perRun, dropped, runs); err != nil {
		return nil, err
	}
	if err := b.expandEdges(g, perRun, dropped, runs); err != nil {
		return nil, err
	}
	if err := g.DetectCycles(); err != nil {
		return nil, b.configErr(err.Error())
	}

	logger.Debug("Build: graph ready.", "instances", g.Len())
	return g, nil
}

func (b *Builder) validateIterable() error {
	if b.iter == nil {
		return nil
	}
	t, ok := b.templates[b.iter.template]
	if !ok {
		return b.configErr(fmt.Sprintf("iterable on unknown stage '%s'", b.iter.template))
	}
	p, ok := t.spec.Input(b.iter.port)
	if !ok {
		return b.configErr(fmt.Sprintf("stage '%s' has no input port '%s'", t.name, b.iter.port))
	}
	if p.Multi {
		return b.configErr(fmt.Sprintf("aggregation port '%s.%s' cannot be iterable", t.name, p.Name))
	}
	return nil
}

func (b *Builder) validateConfigs() error {
	for _, name := range b.order {
		t := b.templates[name]
		if err := t.config.Validate(); err != nil {
			return b.configErr(fmt.Sprintf("stage '%s': invalid config: %v", name, err))
		}
	}
	return nil
}

func (b *Builder) validateConnections() error {
	for _, c := range b.conns {
		from, ok := b.templates[c.from]
		if !ok {
			return b.configErr(fmt.Sprintf("connection from unknown stage '%s'", c.from))
		}
		to, ok := b.templates[c.to]
		if !ok {
			return b.configErr(fmt.Sprintf("connection to unknown stage '%s'", c.to))
		}
		out, ok := from.spec.Output(c.fromPort)
		if !ok {
			return b.configErr(fmt.Sprintf("stage '%s' has no output port '%s'", c.from, c.fromPort))
		}
		in, ok := to.spec.Input(c.toPort)
		if !ok {
			return b.configErr(fmt.Sprintf("stage '%s' has no input port '%s'", c.to, c.toPort))
		}
		if out.Type != in.Type {
			return b.configErr(fmt.Sprintf("type mismatch: %s.%s (%s) -> %s.%s (%s)",
				c.from, c.fromPort, out.Type, c.to, c.toPort, in.Type))
		}
	}
	return nil
}

// validateBindings checks that every input port is bound exactly once, or
// at least once for aggregation ports.
func (b *Builder) validateBindings() error {
	for _, name := range b.order {
		t := b.templates[name]
		for _, p := range t.spec.Inputs {
			count := len(t.constants[p.Name])
			for _, c := range b.conns {
				if c.to == name && c.toPort == p.Name {
					count++
				}
			}
			if b.iter != nil && b.iter.template == name && b.iter.port == p.Name {
				count++
			}
			switch {
			case count == 0:
				return b.configErr(fmt.Sprintf("unbound input port '%s.%s'", name, p.Name))
			case count > 1 && !p.Multi:
				return b.configErr(fmt.Sprintf("input port '%s.%s' bound %d times", name, p.Name, count))
			}
		}
	}
	return nil
}

func (b *Builder) detectTemplateCycles() error {
	dependents := map[string][]string{}
	for _, c := range b.conns {
		dependents[c.from] = append(dependents[c.from], c.to)
	}
	visiting := map[string]bool{}
	visited := map[string]bool{}

	var visit func(name string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		if visiting[name] {
			return b.configErr(fmt.Sprintf("cycle detected involving stage '%s'", name))
		}
		visiting[name] = true
		for _, d := range dependents[name] {
			if err := visit(d); err != nil {
				return err
			}
		}
		delete(visiting, name)
		visited[name] = true
		return nil
	}
	for _, name := range b.order {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// perRunTemplates returns the templates reachable from the iterable port
// without crossing a gathering template.
func (b *Builder) perRunTemplates() map[string]bool {
	out := map[string]bool{}
	if b.iter == nil {
		return out
	}
	queue := []string{b.iter.template}
	out[b.iter.template] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range b.conns {
			if c.from != cur || out[c.to] || b.templates[c.to].gather {
				continue
			}
			out[c.to] = true
			queue = append(queue, c.to)
		}
	}
	return out
}

// validateGatherPorts requires that a per-run producer feeding a shared
// consumer lands on an aggregation port.
func (b *Builder) validateGatherPorts(perRun map[string]bool) error {
	for _, c := range b.conns {
		if !perRun[c.from] || perRun[c.to] {
			continue
		}
		in, _ := b.templates[c.to].spec.Input(c.toPort)
		if !in.Multi {
			return b.configErr(fmt.Sprintf("per-run output '%s.%s' gathered into single-value port '%s.%s'",
				c.from, c.fromPort, c.to, c.toPort))
		}
	}
	return nil
}

// downstreamOf returns the given templates plus everything depending on them.
func (b *Builder) downstreamOf(seed map[string]bool) map[string]bool {
	out := map[string]bool{}
	var queue []string
	for name := range seed {
		out[name] = true
		queue = append(queue, name)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range b.conns {
			if c.from == cur && !out[c.to] {
				out[c.to] = true
				queue = append(queue, c.to)
			}
		}
	}
	return out
}

func (b *Builder) newNode(t *template, run int) *Node {
	addr := nodeid.ForStage(b.subject, t.name, run)
	n := &Node{
		Address:   addr,
		Template:  t.name,
		Spec:      t.spec,
		Config:    t.config,
		Run:       run,
		OutputDir: filepath.Join(b.workDir, b.subject, addr.DirName()),
		Constants: map[string][]string{},
	}
	for port, vals := range t.constants {
		n.Constants[port] = append([]string(nil), vals...)
	}
	if b.iter != nil && b.iter.template == t.name && run >= 0 {
		n.Constants[b.iter.port] = []string{b.iter.values[run]}
	}
	return n
}

func (b *Builder) expandNodes(g *Graph, perRun, dropped map[string]bool, runs int) error {
	dirs := map[string]string{}
	add := func(n *Node) error {
		if other, ok := dirs[n.OutputDir]; ok {
			return b.configErr(fmt.Sprintf("instances '%s' and '%s' share output directory %s", other, n.ID(), n.OutputDir))
		}
		dirs[n.OutputDir] = n.ID()
		if err := g.addNode(n); err != nil {
			return b.configErr(err.Error())
		}
		return nil
	}

	for _, name := range b.order {
		if dropped[name] {
			continue
		}
		t := b.templates[name]
		if !perRun[name] {
			if err := add(b.newNode(t, -1)); err != nil {
				return err
			}
			continue
		}
		for i := 0; i < runs; i++ {
			if err := add(b.newNode(t, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) expandEdges(g *Graph, perRun, dropped map[string]bool, runs int) error {
	for _, c := range b.conns {
		if dropped[c.from] || dropped[c.to] {
			continue
		}
		fromPerRun, toPerRun := perRun[c.from], perRun[c.to]
		link := func(fromRun, toRun, slot int) error {
			from := nodeid.ForStage(b.subject, c.from, fromRun)
			to := nodeid.ForStage(b.subject, c.to, toRun)
			toNode, _ := g.Node(to.String())
			toNode.Bindings = append(toNode.Bindings, Binding{
				Port:      c.toPort,
				From:      from.String(),
				FromPort:  c.fromPort,
				Slot:      slot,
				Validator: c.validator,
			})
			if err := g.addEdge(from.String(), to.String()); err != nil {
				return b.configErr(err.Error())
			}
			return nil
		}

		switch {
		case fromPerRun && toPerRun:
			for i := 0; i < runs; i++ {
				if err := link(i, i, c.slot); err != nil {
					return err
				}
			}
		case !fromPerRun && toPerRun:
			for i := 0; i < runs; i++ {
				if err := link(-1, i, c.slot); err != nil {
					return err
				}
			}
		case fromPerRun && !toPerRun:
			// Gathering: one binding per run, ordered by slot then run.
			for i := 0; i < runs; i++ {
				if err := link(i, -1, c.slot*runs+i); err != nil {
					return err
				}
			}
		default:
			if err := link(-1, -1, c.slot); err != nil {
				return err
			}
		}
	}

	for _, n := range g.Nodes() {
		sort.SliceStable(n.Bindings, func(i, j int) bool { return n.Bindings[i].Slot < n.Bindings[j].Slot })
	}
	return nil
}
