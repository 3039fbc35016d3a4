package remediation

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/testforge/a11yforge/internal/workflows"
)

// RegisterActivities registers the remediation workflow and its activities
// with the Temporal worker
func RegisterActivities(w worker.Registry, a *Activity) {
	w.RegisterWorkflowWithOptions(workflows.RemediationWorkflow, workflow.RegisterOptions{
		Name: workflows.RemediationWorkflowName,
	})

	w.RegisterActivityWithOptions(a.RunPipeline, activity.RegisterOptions{
		Name: workflows.RunPipelineActivityName,
	})

	w.RegisterActivityWithOptions(a.MirrorRun, activity.RegisterOptions{
		Name: workflows.MirrorRunActivityName,
	})
}
