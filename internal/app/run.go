package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/executor"
	"github.com/vk/fmriflow/internal/inventory"
	"github.com/vk/fmriflow/internal/pipelineerr"
	"github.com/vk/fmriflow/internal/report"
	"github.com/vk/fmriflow/internal/runcache"
	"github.com/vk/fmriflow/internal/topology"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// ErrSubjectsFailed is returned by Run when at least one subject failed.
var ErrSubjectsFailed = errors.New("one or more subjects failed")

// RunResult is the outcome of one functional run branch.
type RunResult struct {
	Index     int    `yaml:"index"`
	Source    string `yaml:"source"`
	Completed bool   `yaml:"completed"`
}

// SubjectResult is the outcome of one subject session. Err is set when
// anything in it failed.
type SubjectResult struct {
	Subject  string        `yaml:"subject"`
	Session  string        `yaml:"session,omitempty"`
	Topology topology.Kind `yaml:"topology,omitempty"`
	Runs     []RunResult   `yaml:"runs,omitempty"`
	Failed   []string      `yaml:"failed,omitempty"`
	Err      error         `yaml:"-"`
	Error    string        `yaml:"error,omitempty"`
}

// Summary is written next to the derivatives after every invocation.
type Summary struct {
	RunID    string          `yaml:"run_id"`
	Started  time.Time       `yaml:"started"`
	Finished time.Time       `yaml:"finished"`
	Subjects []SubjectResult `yaml:"subjects"`
	Reports  []string        `yaml:"reports,omitempty"`
}

// Failed lists the subjects with an error.
func (s *Summary) Failed() []SubjectResult {
	var out []SubjectResult
	for _, r := range s.Subjects {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Run processes every selected subject concurrently. Failures are isolated
// per subject: the others keep going and Run reports ErrSubjectsFailed at
// the end.
func (a *App) Run(ctx context.Context) (*Summary, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := a.logger
	logger.Debug("App.Run method started.")
	defer func() {
		if err := a.tracing.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Tracing shutdown failed.", "error", err)
		}
	}()

	subjects := a.config.Participants
	if len(subjects) == 0 {
		found, err := inventory.Subjects(a.config.BIDSDir)
		if err != nil {
			return nil, err
		}
		subjects = found
	}
	if len(subjects) == 0 {
		return nil, pipelineerr.Configf("no subjects found in %s", a.config.BIDSDir)
	}

	summary := &Summary{RunID: a.runID, Started: time.Now().UTC()}
	results := make([][]SubjectResult, len(subjects))

	limit := a.model.Budget.Subjects
	if limit <= 0 {
		limit = 1
	}
	logger.Info("🚀 Starting subjects.", "count", len(subjects), "concurrent", limit)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, subject := range subjects {
		g.Go(func() error {
			results[i] = a.runSubject(gctx, subject)
			return nil
		})
	}
	_ = g.Wait()

	for _, rs := range results {
		summary.Subjects = append(summary.Subjects, rs...)
	}

	written, err := report.RunReports(ctx, a.config.OutputDir, a.reports)
	if err != nil {
		logger.Error("Report generation failed.", "error", err)
	}
	summary.Reports = written
	summary.Finished = time.Now().UTC()

	if err := a.writeSummary(summary); err != nil {
		logger.Error("Failed to write run summary.", "error", err)
	}

	failed := summary.Failed()
	for _, r := range failed {
		logger.Error("Subject failed.", "subject", r.Subject, "session", r.Session, "error", r.Err)
	}
	logger.Info("🏁 Execution finished.", "subjects", len(summary.Subjects), "failed", len(failed))
	if len(failed) > 0 {
		return summary, fmt.Errorf("%w: %d of %d", ErrSubjectsFailed, len(failed), len(summary.Subjects))
	}
	return summary, nil
}

// runSubject builds and executes the pipeline of every session of a subject.
func (a *App) runSubject(ctx context.Context, subject string) []SubjectResult {
	label := inventory.SubjectLabel(subject)
	ctx = ctxlog.With(ctx, "subject", label)
	logger := ctxlog.FromContext(ctx)

	ctx, span := a.tracing.Tracer().Start(ctx, "subject "+label, trace.WithAttributes(attribute.String("subject", label)))
	defer span.End()

	filter := inventory.Filter{Session: a.config.SessionID, Run: a.config.RunID, Task: a.config.TaskID}
	sessions, err := a.collector.Collect(ctx, subject, filter)
	if err == nil && len(sessions) == 0 {
		err = &pipelineerr.ConfigurationError{Subject: label, Msg: "no matching sessions"}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return []SubjectResult{failedResult(SubjectResult{Subject: label}, err)}
	}

	out := make([]SubjectResult, 0, len(sessions))
	for _, sess := range sessions {
		res := a.runSession(ctx, label, sess)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		out = append(out, res)
	}
	logger.Info("Subject finished.", "sessions", len(out))
	return out
}

func (a *App) runSession(ctx context.Context, label string, sess inventory.Session) SubjectResult {
	res := SubjectResult{Subject: label, Session: sess.ID}
	if sess.ID != "" {
		ctx = ctxlog.With(ctx, "session", sess.ID)
	}
	logger := ctxlog.FromContext(ctx)

	kind, err := topology.Select(sess.Inventory, a.config.WorkflowType)
	if err != nil {
		return failedResult(res, err)
	}
	res.Topology = kind

	pctx := topology.PipelineContext{
		Subject:   label,
		Session:   sess.ID,
		WorkDir:   filepath.Join(a.workRoot(), a.runID),
		OutputDir: a.config.OutputDir,
		Budget:    stageBudget(a.model.Budget),
		Specs:     a.registry,
		Settings:  pipelineSettings(a.config, a.model),
	}
	p, err := topology.Build(ctx, kind, sess.Inventory, pctx)
	if err != nil {
		return failedResult(res, err)
	}
	logger.Info("Pipeline assembled.", "topology", kind, "runs", len(p.Runs), "instances", p.Graph.Len())

	if a.config.WriteGraph {
		if err := a.writeGraph(p); err != nil {
			logger.Warn("Failed to write graph.", "error", err)
		}
	}

	opts := []executor.Option{
		executor.WithBudget(pctx.Budget),
		executor.WithTracer(a.tracing.Tracer()),
	}
	if a.config.Resume {
		cache, err := runcache.Open(ctx, a.cachePath(label, sess.ID))
		if err != nil {
			return failedResult(res, err)
		}
		defer cache.Close()
		opts = append(opts, executor.WithCache(cache))
	}

	result, err := executor.New(p.Graph, a.runners, opts...).Run(ctx)
	if result != nil {
		for i, src := range p.Runs {
			res.Runs = append(res.Runs, RunResult{Index: i, Source: src, Completed: result.RunCompleted(i)})
		}
		for _, f := range result.Failures() {
			res.Failed = append(res.Failed, f.ID)
		}
	}
	if err != nil {
		return failedResult(res, err)
	}
	return res
}

func failedResult(res SubjectResult, err error) SubjectResult {
	res.Err = err
	res.Error = err.Error()
	return res
}

// workRoot holds the work directories of every invocation.
func (a *App) workRoot() string {
	if a.config.WorkDir != "" {
		return a.config.WorkDir
	}
	return filepath.Join(a.config.OutputDir, "work")
}

// cachePath is the run cache of one subject session. It lives outside the
// per-invocation work directory so later invocations find it.
func (a *App) cachePath(label, session string) string {
	name := label
	if session != "" {
		name += "_ses-" + session
	}
	return filepath.Join(a.workRoot(), "cache", name+".db")
}

// logsDir holds the summary and graph files of every invocation.
func (a *App) logsDir() string {
	return filepath.Join(a.config.OutputDir, "logs")
}

func (a *App) writeGraph(p *topology.Pipeline) error {
	name := p.Subject
	if p.Session != "" {
		name += "_ses-" + p.Session
	}
	path := filepath.Join(a.logsDir(), name+"_"+string(p.Kind)+".dot")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Graph.WriteDOT(f); err != nil {
		f.Close()
		return err
	}
	a.logger.Info("Graph written.", "path", path)
	return f.Close()
}

func (a *App) writeSummary(s *Summary) error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.logsDir(), 0o755); err != nil {
		return err
	}
	path := filepath.Join(a.logsDir(), "fmriflow-"+strings.ToLower(a.runID)+".yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}
	a.logger.Debug("Run summary written.", "path", path)
	return nil
}
