// Package remediation exposes the remediation pipeline as Temporal
// activities.
package remediation

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/internal/pipeline"
	"github.com/testforge/a11yforge/internal/storage"
	"github.com/testforge/a11yforge/internal/workflows"
)

// Activity runs pipeline work on behalf of the remediation workflow
type Activity struct {
	orchestrator *pipeline.Orchestrator
	layout       storage.Layout
	mirror       pipeline.Mirror
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewActivity creates a new remediation activity. mirror may be nil when
// object storage is disabled.
func NewActivity(orchestrator *pipeline.Orchestrator, layout storage.Layout, mirror pipeline.Mirror, metrics *observability.Metrics, logger *zap.Logger) *Activity {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activity{
		orchestrator: orchestrator,
		layout:       layout,
		mirror:       mirror,
		metrics:      metrics,
		logger:       logger,
	}
}

// RunPipeline executes every stage for one run. Attempts after the first
// resume from the artifacts already on disk.
func (a *Activity) RunPipeline(ctx context.Context, input workflows.RemediationInput) (*workflows.PipelineResult, error) {
	logger := activity.GetLogger(ctx)
	info := activity.GetInfo(ctx)
	resume := input.Resume || info.Attempt > 1

	logger.Info("Running remediation pipeline",
		"run_id", input.RunID.String(),
		"attempt", info.Attempt,
		"resume", resume,
	)

	ws := storage.NewWorkspace(a.layout.Under(input.WorkDir), a.logger)
	orch := a.orchestrator.WithOptions(func(o *pipeline.Options) {
		o.Resume = resume
		// The workflow mirrors in its own activity
		o.Mirror = nil
		o.Hooks.StageFinished = func(result domain.StageResult) {
			activity.RecordHeartbeat(ctx, string(result.Stage))
		}
	})

	report, err := orch.Execute(ctx, pipeline.NewRun(input.RunID, ws, time.Now()))
	if err != nil {
		a.metrics.RecordActivityExecution(workflows.RunPipelineActivityName, "failed")
		var appErr *domain.AppError
		if errors.As(err, &appErr) && appErr.Stage == domain.StageCollect {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), workflows.NoInputErrorType, err)
		}
		return nil, err
	}

	status := pipeline.StatusSucceeded
	if !report.Succeeded() {
		status = pipeline.StatusPartial
	}
	a.metrics.RecordActivityExecution(workflows.RunPipelineActivityName, status)
	return &workflows.PipelineResult{Status: status, Report: report}, nil
}

// MirrorRun uploads the run's inputs, outputs and artifacts
func (a *Activity) MirrorRun(ctx context.Context, input workflows.MirrorInput) (*workflows.MirrorOutput, error) {
	logger := activity.GetLogger(ctx)

	if a.mirror == nil {
		return nil, temporal.NewNonRetryableApplicationError("object storage mirror is not configured", "MirrorDisabled", nil)
	}

	ws := storage.NewWorkspace(a.layout.Under(input.WorkDir), a.logger)
	keys, err := a.mirror.MirrorRun(ctx, input.RunID, ws)
	if err != nil {
		a.metrics.RecordActivityExecution(workflows.MirrorRunActivityName, "failed")
		return nil, err
	}
	a.metrics.RecordActivityExecution(workflows.MirrorRunActivityName, "succeeded")

	logger.Info("Run mirrored", "run_id", input.RunID.String(), "objects", len(keys))
	return &workflows.MirrorOutput{Keys: keys}, nil
}
