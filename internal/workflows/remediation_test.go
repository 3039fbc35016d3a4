package workflows

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/testforge/a11yforge/internal/domain"
)

type stubActivities struct {
	pipelineErr error
	mirrorErr   error
	mirrored    atomic.Int32
}

func (s *stubActivities) runPipeline(_ context.Context, input RemediationInput) (*PipelineResult, error) {
	if s.pipelineErr != nil {
		return nil, s.pipelineErr
	}
	report := &domain.RunReport{RunID: input.RunID}
	return &PipelineResult{Status: "succeeded", Report: report}, nil
}

func (s *stubActivities) mirrorRun(_ context.Context, input MirrorInput) (*MirrorOutput, error) {
	s.mirrored.Add(1)
	if s.mirrorErr != nil {
		return nil, s.mirrorErr
	}
	return &MirrorOutput{Keys: []string{"a", "b"}}, nil
}

func runWorkflow(t *testing.T, stubs *stubActivities, input RemediationInput) *RemediationOutput {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(RemediationWorkflow)
	env.RegisterActivityWithOptions(stubs.runPipeline, activity.RegisterOptions{Name: RunPipelineActivityName})
	env.RegisterActivityWithOptions(stubs.mirrorRun, activity.RegisterOptions{Name: MirrorRunActivityName})

	env.ExecuteWorkflow(RemediationWorkflow, input)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out RemediationOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	return &out
}

func TestRemediationWorkflow(t *testing.T) {
	runID := uuid.New()

	tests := []struct {
		name         string
		stubs        *stubActivities
		mirror       bool
		wantStatus   string
		wantMirrored int
		wantCalls    int32
		wantError    string
	}{
		{
			name:       "pipeline only",
			stubs:      &stubActivities{},
			wantStatus: "succeeded",
		},
		{
			name:         "mirrored",
			stubs:        &stubActivities{},
			mirror:       true,
			wantStatus:   "succeeded",
			wantMirrored: 2,
			wantCalls:    1,
		},
		{
			name: "mirror failure keeps the result",
			stubs: &stubActivities{
				mirrorErr: temporal.NewNonRetryableApplicationError("bucket gone", "Mirror", nil),
			},
			mirror:     true,
			wantStatus: "succeeded",
			wantCalls:  1,
		},
		{
			name: "pipeline failure",
			stubs: &stubActivities{
				pipelineErr: temporal.NewNonRetryableApplicationError("missing input", NoInputErrorType, nil),
			},
			mirror:     true,
			wantStatus: StatusFailed,
			wantError:  "missing input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runWorkflow(t, tt.stubs, RemediationInput{RunID: runID, Mirror: tt.mirror})

			assert.Equal(t, runID, out.RunID)
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.wantMirrored, out.Mirrored)
			assert.Equal(t, tt.wantCalls, tt.stubs.mirrored.Load())
			if tt.wantError != "" {
				assert.Contains(t, out.Error, tt.wantError)
				assert.Nil(t, out.Report)
			} else {
				assert.Empty(t, out.Error)
				require.NotNil(t, out.Report)
				assert.Equal(t, runID, out.Report.RunID)
			}
		})
	}
}
