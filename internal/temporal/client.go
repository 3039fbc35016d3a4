package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/config"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/internal/workflows"
)

// Client wraps the Temporal SDK client for submitting remediation runs
type Client struct {
	client.Client
	logger    *zap.Logger
	metrics   *observability.Metrics
	namespace string
	taskQueue string
}

// NewClient creates a new Temporal client
func NewClient(cfg config.TemporalConfig, logger *zap.Logger) (*Client, error) {
	options := client.Options{
		HostPort:  cfg.Address(),
		Namespace: cfg.Namespace,
		Logger:    NewZapAdapter(logger),
	}

	c, err := client.Dial(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}

	return &Client{
		Client:    c,
		logger:    logger,
		namespace: cfg.Namespace,
		taskQueue: cfg.TaskQueue,
	}, nil
}

// WithMetrics records workflow submissions on m
func (c *Client) WithMetrics(m *observability.Metrics) *Client {
	c.metrics = m
	return c
}

// TaskQueue returns the configured task queue name
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Namespace returns the configured namespace
func (c *Client) Namespace() string {
	return c.namespace
}

// GetWorkflowStatus returns the current status of a workflow
func (c *Client) GetWorkflowStatus(ctx context.Context, workflowID, runID string) (*WorkflowStatus, error) {
	desc, err := c.DescribeWorkflowExecution(ctx, workflowID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to describe workflow: %w", err)
	}

	info := desc.WorkflowExecutionInfo
	status := &WorkflowStatus{
		WorkflowID: info.Execution.WorkflowId,
		RunID:      info.Execution.RunId,
		Status:     info.Status.String(),
		StartTime:  info.StartTime.AsTime(),
	}

	if info.CloseTime != nil {
		closeTime := info.CloseTime.AsTime()
		status.CloseTime = &closeTime
	}

	return status, nil
}

// RemediationWorkflowID is the workflow id of a remediation run
func RemediationWorkflowID(runID uuid.UUID) string {
	return "remediation-" + runID.String()
}

// StartRemediation submits a remediation run. Resubmitting a run id that
// already finished starts it again; a running one is rejected.
func (c *Client) StartRemediation(ctx context.Context, input workflows.RemediationInput) (client.WorkflowRun, error) {
	if input.RunID == uuid.Nil {
		input.RunID = uuid.New()
	}
	options := client.StartWorkflowOptions{
		ID:                    RemediationWorkflowID(input.RunID),
		TaskQueue:             c.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}

	c.logger.Info("submitting remediation run",
		zap.String("run_id", input.RunID.String()),
		zap.String("task_queue", c.taskQueue),
	)
	run, err := c.ExecuteWorkflow(ctx, options, workflows.RemediationWorkflowName, input)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordWorkflowStart(workflows.RemediationWorkflowName)
	return run, nil
}

// SubmitRemediation starts a remediation run and returns its workflow id
func (c *Client) SubmitRemediation(ctx context.Context, input workflows.RemediationInput) (string, error) {
	run, err := c.StartRemediation(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to start remediation workflow: %w", err)
	}
	return run.GetID(), nil
}

// RemediationStatus describes the workflow of a remediation run
func (c *Client) RemediationStatus(ctx context.Context, runID uuid.UUID) (*WorkflowStatus, error) {
	return c.GetWorkflowStatus(ctx, RemediationWorkflowID(runID), "")
}

// WorkflowStatus represents the status of a workflow execution
type WorkflowStatus struct {
	WorkflowID string
	RunID      string
	Status     string
	StartTime  time.Time
	CloseTime  *time.Time
}

// IsRunning returns true if the workflow is still running
func (s *WorkflowStatus) IsRunning() bool {
	return s.Status == "Running" || s.Status == "WORKFLOW_EXECUTION_STATUS_RUNNING"
}

// IsCompleted returns true if the workflow completed successfully
func (s *WorkflowStatus) IsCompleted() bool {
	return s.Status == "Completed" || s.Status == "WORKFLOW_EXECUTION_STATUS_COMPLETED"
}

// IsFailed returns true if the workflow failed
func (s *WorkflowStatus) IsFailed() bool {
	return s.Status == "Failed" || s.Status == "WORKFLOW_EXECUTION_STATUS_FAILED"
}

// IsCanceled returns true if the workflow was canceled
func (s *WorkflowStatus) IsCanceled() bool {
	return s.Status == "Canceled" || s.Status == "WORKFLOW_EXECUTION_STATUS_CANCELED"
}

// ZapAdapter adapts zap.Logger to Temporal's log interface
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter creates a new Temporal logger adapter
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger: logger.Named("temporal")}
}

func (z *ZapAdapter) Debug(msg string, keyvals ...any) {
	z.logger.Debug(msg, toZapFields(keyvals)...)
}

func (z *ZapAdapter) Info(msg string, keyvals ...any) {
	z.logger.Info(msg, toZapFields(keyvals)...)
}

func (z *ZapAdapter) Warn(msg string, keyvals ...any) {
	z.logger.Warn(msg, toZapFields(keyvals)...)
}

func (z *ZapAdapter) Error(msg string, keyvals ...any) {
	z.logger.Error(msg, toZapFields(keyvals)...)
}

func toZapFields(keyvals []any) []zap.Field {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals)-1; i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	return fields
}
