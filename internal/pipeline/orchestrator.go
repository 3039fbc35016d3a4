// Package pipeline sequences a remediation run: collect the snapshot,
// analyze each language, recommend tools, caption images and correct the
// assets, persisting every stage's output before the next one starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/testforge/a11yforge/internal/correction"
	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/llm"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/internal/storage"
	"github.com/testforge/a11yforge/internal/tools"
)

// Run status values published to the report store
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusPartial   = "completed_with_errors"
	StatusFailed    = "failed"
)

// IssueAnalyzer finds the issues of one language's content
type IssueAnalyzer interface {
	Analyze(ctx context.Context, content string) domain.Issues
}

// Mirror copies a finished run somewhere durable
type Mirror interface {
	MirrorRun(ctx context.Context, runID uuid.UUID, ws *storage.Workspace) ([]string, error)
}

// ReportStore publishes run reports for lookup by id
type ReportStore interface {
	SaveReport(ctx context.Context, report *domain.RunReport) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Components are the model-backed parts of the pipeline
type Components struct {
	Analyzers   map[domain.Language]IssueAnalyzer
	Recommender tools.Recommender
	Describer   llm.Describer
	Correctors  map[domain.Language]correction.Corrector
}

// Hooks observe stage progress. Correction stages run concurrently, so the
// hooks may be called from several goroutines.
type Hooks struct {
	StageStarted  func(stage domain.Stage)
	StageFinished func(result domain.StageResult)
}

// Options configures an Orchestrator
type Options struct {
	// Resume loads existing artifacts instead of recomputing them
	Resume bool

	// KeepOriginal copies inputs without a correction into the output tree
	KeepOriginal bool

	Concurrency int
	Mirror      Mirror
	Reports     ReportStore
	Hooks       Hooks
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Orchestrator runs the pipeline stages in order
type Orchestrator struct {
	components Components
	opts       Options
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an orchestrator
func New(components Components, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if components.Analyzers == nil {
		components.Analyzers = map[domain.Language]IssueAnalyzer{}
	}
	if components.Correctors == nil {
		components.Correctors = map[domain.Language]correction.Corrector{}
	}

	return &Orchestrator{
		components: components,
		opts:       opts,
		metrics:    opts.Metrics,
		logger:     logger.Named("pipeline"),
		now:        time.Now,
	}
}

// WithOptions returns a copy of the orchestrator with fn applied to its
// options. The components are shared.
func (o *Orchestrator) WithOptions(fn func(*Options)) *Orchestrator {
	clone := *o
	fn(&clone.opts)
	if clone.opts.Concurrency < 1 {
		clone.opts.Concurrency = 1
	}
	clone.metrics = clone.opts.Metrics
	return &clone
}

// Run executes a new run over ws
func (o *Orchestrator) Run(ctx context.Context, ws *storage.Workspace) (*domain.RunReport, error) {
	return o.Execute(ctx, NewRun(uuid.New(), ws, o.now()))
}

// Execute drives run through every stage. The only error is a COLLECT
// failure; any other stage failure is recorded in the report and the run
// continues.
func (o *Orchestrator) Execute(ctx context.Context, run *Run) (*domain.RunReport, error) {
	logger := o.logger.With(zap.String("run_id", run.ID.String()))
	logger.Info("starting remediation run",
		zap.String("input", run.Workspace.Layout.InputDir),
		zap.Bool("resume", o.opts.Resume),
	)
	o.publishStatus(ctx, run, StatusRunning)

	if res := o.Collect(ctx, run); res.Status == domain.StageStatusFailed {
		o.finish(ctx, run, StatusFailed)
		o.metrics.RecordPipelineRun(StatusFailed)
		return run.Report, domain.ErrStage(domain.StageCollect, errors.New(res.Error))
	}

	o.Analyze(ctx, run)
	o.RecommendTools(ctx, run)
	o.Caption(ctx, run)

	for _, res := range o.correctAll(ctx, run) {
		run.record(res)
	}

	o.auditImages(run)

	status := StatusSucceeded
	if !run.Report.Succeeded() {
		status = StatusPartial
	}
	o.finish(ctx, run, status)
	o.metrics.RecordPipelineRun(status)

	logger.Info("remediation run finished",
		zap.String("status", status),
		zap.Int("issues", run.Issues.Total()),
		zap.Int("captions", len(run.Captions)),
		zap.Int("written", len(run.Report.Written)),
		zap.Duration("duration", run.Report.FinishedAt.Sub(run.Report.StartedAt)),
	)
	return run.Report, nil
}

// correctAll runs the three correction stages concurrently and returns
// their results in stage order
func (o *Orchestrator) correctAll(ctx context.Context, run *Run) []domain.StageResult {
	results := make([]domain.StageResult, len(domain.CorrectionStages))

	var g errgroup.Group
	for i, stage := range domain.CorrectionStages {
		g.Go(func() error {
			results[i] = o.exec(ctx, run, stage, o.correctFor(stage))
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// stageOutcome is what a stage body reports besides its error
type stageOutcome struct {
	status domain.StageStatus
	count  int
	detail string
}

func succeeded(count int, detail string) stageOutcome {
	return stageOutcome{status: domain.StageStatusSucceeded, count: count, detail: detail}
}

func skipped(detail string) stageOutcome {
	return stageOutcome{status: domain.StageStatusSkipped, detail: detail}
}

func resumed(count int) stageOutcome {
	return stageOutcome{status: domain.StageStatusResumed, count: count, detail: "loaded from artifacts"}
}

type stageFunc func(ctx context.Context, run *Run) (stageOutcome, error)

// exec runs one stage body, turning errors and panics into a failed result
func (o *Orchestrator) exec(ctx context.Context, run *Run, stage domain.Stage, fn stageFunc) (result domain.StageResult) {
	start := o.now()
	result = domain.StageResult{Stage: stage, StartedAt: start}

	if o.opts.Hooks.StageStarted != nil {
		o.opts.Hooks.StageStarted(stage)
	}

	logger := o.logger.With(zap.String("run_id", run.ID.String()), zap.String("stage", string(stage)))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("stage panicked", zap.Any("panic", r), zap.Stack("stack"))
			result.Status = domain.StageStatusFailed
			result.Error = fmt.Sprintf("panic: %v", r)
		}
		result.Duration = o.now().Sub(start)

		o.metrics.RecordStage(string(stage), string(result.Status), result.Duration)
		if o.opts.Hooks.StageFinished != nil {
			o.opts.Hooks.StageFinished(result)
		}
	}()

	outcome, err := fn(ctx, run)
	result.Count = outcome.count
	result.Detail = outcome.detail
	if err != nil {
		result.Status = domain.StageStatusFailed
		result.Error = err.Error()
		logger.Error("stage failed", zap.Error(domain.ErrStage(stage, err)))
		return result
	}

	result.Status = outcome.status
	logger.Info("stage complete",
		zap.String("status", string(result.Status)),
		zap.Int("count", result.Count),
		zap.String("detail", result.Detail),
	)
	return result
}

func (o *Orchestrator) finish(ctx context.Context, run *Run, status string) {
	run.Report.FinishedAt = o.now()
	run.Report.Written = run.Written()

	if err := run.Workspace.Artifacts.SaveReport(run.Report); err != nil {
		o.logger.Error("failed to save run report", zap.Error(err))
	}

	if o.opts.Mirror != nil {
		uploaded, err := o.opts.Mirror.MirrorRun(ctx, run.ID, run.Workspace)
		if err != nil {
			o.logger.Warn("mirroring run failed", zap.Error(err))
		} else {
			o.logger.Info("run mirrored", zap.Int("objects", len(uploaded)))
		}
	}

	if o.opts.Reports != nil {
		if err := o.opts.Reports.SaveReport(ctx, run.Report); err != nil {
			o.logger.Warn("publishing run report failed", zap.Error(err))
		}
	}
	o.publishStatus(ctx, run, status)
}

func (o *Orchestrator) publishStatus(ctx context.Context, run *Run, status string) {
	if o.opts.Reports == nil {
		return
	}
	if err := o.opts.Reports.SetStatus(ctx, run.ID, status); err != nil {
		o.logger.Warn("publishing run status failed", zap.String("status", status), zap.Error(err))
	}
}
