// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator turns a free-text request into a job, runs the
// requested collectors in parallel, and writes the report from the
// shared state once they finish.
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-agents/internal/classify"
	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/llm"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/internal/metrics"
	"github.com/pdiddy/research-agents/internal/report"
	"github.com/pdiddy/research-agents/internal/state"
	"github.com/pdiddy/research-agents/pkg/types"
)

// Agent names that are not capabilities.
const (
	AgentOrchestrator = "orchestrator"
	AgentClassifier   = "domain_classifier"
	AgentReport       = "report_agent"
)

// DefaultBuffer is the update channel capacity.
const DefaultBuffer = 32

// Reporter writes the final report.
type Reporter interface {
	Write(ctx context.Context, req report.Request) (*types.ReportArtifact, error)
}

// Classifier labels a research query's domain.
type Classifier interface {
	Classify(ctx context.Context, query string) (classify.Result, error)
}

// Options configures an Orchestrator.
type Options struct {
	// StateDir receives master state documents; empty disables persistence.
	StateDir string
	Quality  types.QualityLevel

	// Classifier is optional.
	Classifier Classifier
	// IntentClient, when set, confirms the keyword rules with a model.
	IntentClient llm.Client

	Buffer int
}

// Orchestrator runs jobs. Safe for concurrent use.
type Orchestrator struct {
	registry *Registry
	reporter Reporter
	opts     Options
	logger   *zap.Logger

	mu      sync.Mutex
	results map[string]any
}

// New returns an Orchestrator over the capabilities in reg.
func New(reg *Registry, reporter Reporter, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &Orchestrator{
		registry: reg,
		reporter: reporter,
		opts:     opts,
		logger:   logging.OrNop(logger),
		results:  map[string]any{},
	}
}

// Execution is one running job. The caller must drain Updates until it
// is closed, then call Wait.
type Execution struct {
	updates chan types.StreamingUpdate
	done    chan struct{}
	state   types.MasterState
	err     error
}

// Updates streams progress. It is closed when the job ends.
func (e *Execution) Updates() <-chan types.StreamingUpdate { return e.updates }

// Wait blocks until the job ends and returns the terminal state. The
// error is non-nil only for invalid requests, state setup failures, and
// cancellation; collector failures are recorded in the state instead.
func (e *Execution) Wait() (types.MasterState, error) {
	<-e.done
	return e.state, e.err
}

// Run parses text and starts the job.
func (o *Orchestrator) Run(ctx context.Context, text string) *Execution {
	return o.start(ctx, func(ctx context.Context, e *Execution) (types.JobRequest, error) {
		return o.plan(ctx, e, text)
	})
}

// RunJob starts an already parsed job.
func (o *Orchestrator) RunJob(ctx context.Context, job types.JobRequest) *Execution {
	return o.start(ctx, func(context.Context, *Execution) (types.JobRequest, error) { return job, nil })
}

func (o *Orchestrator) start(ctx context.Context, plan func(context.Context, *Execution) (types.JobRequest, error)) *Execution {
	e := &Execution{updates: make(chan types.StreamingUpdate, o.opts.Buffer), done: make(chan struct{})}
	go func() {
		defer close(e.done)
		defer close(e.updates)
		job, err := plan(ctx, e)
		if err != nil {
			e.err = err
			o.emit(ctx, e, types.UpdateError, AgentOrchestrator, err.Error(), nil)
			return
		}
		e.state, e.err = o.execute(ctx, e, job)
	}()
	return e
}

func (o *Orchestrator) emit(ctx context.Context, e *Execution, typ types.UpdateType, agent, msg string, data any) {
	u := types.StreamingUpdate{Type: typ, AgentName: agent, Message: msg, Data: data, Timestamp: time.Now().UTC()}
	select {
	case e.updates <- u:
	case <-ctx.Done():
	}
}

// plan parses text and, when configured, lets the model adjust the job.
func (o *Orchestrator) plan(ctx context.Context, e *Execution, text string) (types.JobRequest, error) {
	job := ParseRequest(text)
	if job.Query == "" {
		return job, fault.Errorf(fault.Validation, "orchestrator", "empty request")
	}
	if o.opts.IntentClient == nil {
		return job, nil
	}
	confirmed, err := confirmIntent(ctx, o.opts.IntentClient, o.registry, job)
	if err != nil {
		if ctx.Err() != nil {
			return job, fault.New(fault.Cancelled, "orchestrator", ctx.Err())
		}
		o.logger.Warn("intent confirmation failed, keeping rules", zap.Error(err))
		return job, nil
	}
	if !slices.Equal(confirmed.Capabilities, job.Capabilities) {
		o.emit(ctx, e, types.UpdateStatus, AgentOrchestrator,
			fmt.Sprintf("Intent adjusted: %s -> %s", strings.Join(job.Capabilities, ","), strings.Join(confirmed.Capabilities, ",")), nil)
	}
	return confirmed, nil
}

func (o *Orchestrator) execute(ctx context.Context, e *Execution, job types.JobRequest) (types.MasterState, error) {
	start := time.Now()
	if strings.TrimSpace(job.Query) == "" {
		return types.MasterState{}, fault.Errorf(fault.Validation, "orchestrator", "empty request")
	}
	if job.ReportStyle == "" {
		job.ReportStyle = types.StyleSummary
	}
	var caps []string
	for _, c := range job.Capabilities {
		if !slices.Contains(caps, c) {
			caps = append(caps, c)
		}
	}
	job.Capabilities = caps
	if job.JobType == "" {
		job.JobType = jobType(job.Capabilities)
	}

	id := uuid.NewString()
	log := o.logger.With(zap.String("orchestrator_id", id), zap.String("job_type", string(job.JobType)))
	st, err := state.New(o.opts.StateDir, id, job, log)
	if err != nil {
		return types.MasterState{}, fault.New(fault.Config, "orchestrator", err)
	}
	log.Info("job started", zap.String("query", job.Query), zap.Strings("capabilities", job.Capabilities))
	o.emit(ctx, e, types.UpdateStatus, AgentOrchestrator,
		fmt.Sprintf("Job %s: running %s", job.JobType, strings.Join(job.Capabilities, ", ")), job)

	var domain string
	if o.opts.Classifier != nil && slices.Contains(job.Capabilities, CapResearch) {
		r, err := o.opts.Classifier.Classify(ctx, researchQuery(job))
		if err != nil {
			return o.cancelled(ctx, st, start, err)
		}
		domain = r.Context()
		o.emit(ctx, e, types.UpdatePartialResult, AgentClassifier, "Domain: "+string(r.Domain), r)
	}

	// Phase 1. Collector failures are recorded, never returned.
	responses := make([]types.AgentResponse, len(job.Capabilities))
	var g errgroup.Group
	for i, name := range job.Capabilities {
		g.Go(func() error {
			responses[i] = o.runAgent(ctx, e, st, job, name)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return o.cancelled(ctx, st, start, ctx.Err())
	}

	// Phase 2.
	var failed []string
	for i, name := range job.Capabilities {
		if !responses[i].Success {
			failed = append(failed, name)
		}
	}
	o.writeReport(ctx, e, st, job, domain, failed)
	if ctx.Err() != nil {
		return o.cancelled(ctx, st, start, ctx.Err())
	}

	st.Finish(time.Since(start))
	snap := st.Snapshot()
	log.Info("job finished",
		zap.Bool("success", snap.Success),
		zap.Int("errors", len(snap.Errors)),
		zap.Duration("elapsed", time.Since(start)))
	msg := "Job complete"
	if !snap.Success {
		msg = fmt.Sprintf("Job finished with %d error(s)", len(snap.Errors))
	}
	o.emit(ctx, e, types.UpdateFinalResult, AgentOrchestrator, msg, snap.ReportData)
	return snap, nil
}

func (o *Orchestrator) cancelled(ctx context.Context, st *state.Store, start time.Time, err error) (types.MasterState, error) {
	if ctx.Err() != nil {
		st.AddError(AgentOrchestrator, "cancelled")
		err = fault.New(fault.Cancelled, "orchestrator", ctx.Err())
	}
	st.Finish(time.Since(start))
	return st.Snapshot(), err
}

// runAgent runs one capability, reusing a completed or cached result.
func (o *Orchestrator) runAgent(ctx context.Context, e *Execution, st *state.Store, job types.JobRequest, name string) types.AgentResponse {
	c, ok := o.registry.Get(name)
	if !ok {
		msg := fmt.Sprintf("capability %q not registered", name)
		st.AddError(AgentOrchestrator, msg)
		o.emit(ctx, e, types.UpdateError, AgentOrchestrator, msg, nil)
		return types.AgentResponse{AgentName: name, Error: msg}
	}
	if st.IsComplete(c.Agent) {
		return types.AgentResponse{AgentName: c.Agent, Success: true}
	}

	start := time.Now()
	key := c.Agent + "|" + c.Key(job)
	v, cached := o.cached(key)
	if cached {
		o.emit(ctx, e, types.UpdateStatus, c.Agent, "Reusing cached result", nil)
	} else {
		o.emit(ctx, e, types.UpdateStatus, c.Agent, "Starting "+c.Description, nil)
		var err error
		v, err = o.call(ctx, c, job)
		if err != nil {
			metrics.CollectorRuns.WithLabelValues(c.Agent, "error").Inc()
			st.AddError(c.Agent, err.Error())
			o.emit(ctx, e, types.UpdateError, c.Agent, err.Error(), nil)
			o.logger.Warn("agent failed", zap.String("agent", c.Agent), zap.Error(err))
			return types.AgentResponse{AgentName: c.Agent, Error: err.Error(), ProcessingTime: time.Since(start).Seconds()}
		}
	}

	// Save records its own errors in the store.
	if err := c.Save(st, c.Agent, v); err != nil {
		metrics.CollectorRuns.WithLabelValues(c.Agent, "error").Inc()
		o.emit(ctx, e, types.UpdateError, c.Agent, err.Error(), nil)
		return types.AgentResponse{AgentName: c.Agent, Error: err.Error(), ProcessingTime: time.Since(start).Seconds()}
	}
	st.MarkAgentComplete(c.Agent)
	o.remember(key, v)
	metrics.CollectorRuns.WithLabelValues(c.Agent, "success").Inc()

	resp := types.AgentResponse{AgentName: c.Agent, Success: true, Data: v, ProcessingTime: time.Since(start).Seconds()}
	o.emit(ctx, e, types.UpdatePartialResult, c.Agent, "Completed", resp)
	return resp
}

// call runs c, turning a panic into an error.
func (o *Orchestrator) call(ctx context.Context, c Capability, job types.JobRequest) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", c.Agent, r)
		}
	}()
	return c.Run(ctx, job)
}

func (o *Orchestrator) cached(key string) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.results[key]
	return v, ok
}

func (o *Orchestrator) remember(key string, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results[key] = v
}

// ResetCache forgets every cached agent result.
func (o *Orchestrator) ResetCache() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.results)
}

func (o *Orchestrator) writeReport(ctx context.Context, e *Execution, st *state.Store, job types.JobRequest, domain string, failed []string) {
	req := report.Request{
		Query:         job.Query,
		Style:         job.ReportStyle,
		Quality:       o.opts.Quality,
		DomainContext: domain,
		Research:      st.Research(),
		YouTube:       st.YouTube(),
		Weather:       st.Weather(),
		Failed:        failed,
	}
	if req.Research == nil && req.YouTube == nil && req.Weather == nil {
		msg := "no data collected; report skipped"
		st.AddError(AgentReport, msg)
		o.emit(ctx, e, types.UpdateError, AgentReport, msg, nil)
		return
	}
	if o.reporter == nil {
		st.AddError(AgentReport, "no report writer configured")
		return
	}

	start := time.Now()
	o.emit(ctx, e, types.UpdateStatus, AgentReport, fmt.Sprintf("Writing %s report", job.ReportStyle), nil)
	art, err := o.reporter.Write(ctx, req)
	if err == nil {
		err = st.UpdateReport(AgentReport, art)
	} else {
		st.AddError(AgentReport, err.Error())
	}
	metrics.CollectorRuns.WithLabelValues(AgentReport, metrics.Status(err)).Inc()
	if err != nil {
		o.emit(ctx, e, types.UpdateError, AgentReport, err.Error(), nil)
		return
	}
	st.MarkAgentComplete(AgentReport)
	o.emit(ctx, e, types.UpdatePartialResult, AgentReport, "Report written", types.AgentResponse{
		AgentName:      AgentReport,
		Success:        true,
		Data:           map[string]any{"word_count": art.WordCount, "processing_approach": art.ProcessingApproach},
		ProcessingTime: time.Since(start).Seconds(),
	})
}
