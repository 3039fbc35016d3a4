package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow and activity names - must match registered names
const (
	RemediationWorkflowName = "RemediationWorkflow"

	RunPipelineActivityName = "RunPipelineActivity"
	MirrorRunActivityName   = "MirrorRunActivity"
)

// StatusFailed is reported when the pipeline activity gives up
const StatusFailed = "failed"

// NoInputErrorType marks pipeline failures that a retry cannot fix
const NoInputErrorType = "NoInput"

// RemediationWorkflow runs the remediation pipeline over a snapshot and
// optionally mirrors the run to object storage
func RemediationWorkflow(ctx workflow.Context, input RemediationInput) (*RemediationOutput, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)

	logger.Info("Starting remediation workflow",
		"run_id", input.RunID.String(),
		"work_dir", input.WorkDir,
		"resume", input.Resume,
	)

	output := &RemediationOutput{
		RunID:  input.RunID,
		Status: "running",
	}

	result, err := executePipeline(ctx, input)
	if err != nil {
		output.Status = StatusFailed
		output.Error = fmt.Sprintf("pipeline failed: %v", err)
		output.CompletedAt = workflow.Now(ctx)
		output.TotalDuration = output.CompletedAt.Sub(startTime)
		return output, nil // Return output even on failure for visibility
	}
	output.Status = result.Status
	output.Report = result.Report

	if input.Mirror {
		mirrored, err := executeMirror(ctx, input)
		if err != nil {
			logger.Warn("Mirroring failed, keeping local results", "error", err)
		} else {
			output.Mirrored = len(mirrored.Keys)
		}
	}

	output.CompletedAt = workflow.Now(ctx)
	output.TotalDuration = output.CompletedAt.Sub(startTime)

	logger.Info("Remediation workflow completed",
		"run_id", input.RunID.String(),
		"status", output.Status,
		"mirrored", output.Mirrored,
		"duration", output.TotalDuration,
	)
	return output, nil
}

func executePipeline(ctx workflow.Context, input RemediationInput) (*PipelineResult, error) {
	// Retried attempts resume from the artifacts of the previous one
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        10 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        5 * time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{NoInputErrorType},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, opts)

	var result PipelineResult
	err := workflow.ExecuteActivity(ctx, RunPipelineActivityName, input).Get(ctx, &result)
	return &result, err
}

func executeMirror(ctx workflow.Context, input RemediationInput) (*MirrorOutput, error) {
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, opts)

	var result MirrorOutput
	err := workflow.ExecuteActivity(ctx, MirrorRunActivityName, MirrorInput{
		RunID:   input.RunID,
		WorkDir: input.WorkDir,
	}).Get(ctx, &result)
	return &result, err
}
