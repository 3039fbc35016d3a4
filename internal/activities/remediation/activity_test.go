package remediation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zaptest"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/pipeline"
	"github.com/testforge/a11yforge/internal/storage"
	"github.com/testforge/a11yforge/internal/workflows"
)

type fakeMirror struct {
	runID uuid.UUID
	root  string
	err   error
}

func (m *fakeMirror) MirrorRun(_ context.Context, runID uuid.UUID, ws *storage.Workspace) ([]string, error) {
	m.runID = runID
	m.root = ws.Layout.InputDir
	if m.err != nil {
		return nil, m.err
	}
	return []string{"runs/" + runID.String() + "/report.json"}, nil
}

func newEnv(t *testing.T, a *Activity) *testsuite.TestActivityEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(a.RunPipeline, activity.RegisterOptions{Name: workflows.RunPipelineActivityName})
	env.RegisterActivityWithOptions(a.MirrorRun, activity.RegisterOptions{Name: workflows.MirrorRunActivityName})
	return env
}

func newActivity(t *testing.T, mirror pipeline.Mirror) *Activity {
	t.Helper()
	logger := zaptest.NewLogger(t)
	orch := pipeline.New(pipeline.Components{}, pipeline.Options{KeepOriginal: true, Logger: logger})
	return NewActivity(orch, storage.DefaultLayout("/unused"), mirror, nil, logger)
}

func TestActivity_RunPipeline(t *testing.T) {
	dir := t.TempDir()
	css := filepath.Join(dir, "before", "css", "site.css")
	require.NoError(t, os.MkdirAll(filepath.Dir(css), 0o755))
	require.NoError(t, os.WriteFile(css, []byte("a{color:#fff}"), 0o644))

	env := newEnv(t, newActivity(t, nil))
	runID := uuid.New()

	val, err := env.ExecuteActivity(workflows.RunPipelineActivityName, workflows.RemediationInput{
		RunID:   runID,
		WorkDir: dir,
	})
	require.NoError(t, err)

	var result workflows.PipelineResult
	require.NoError(t, val.Get(&result))
	assert.Equal(t, pipeline.StatusSucceeded, result.Status)
	require.NotNil(t, result.Report)
	assert.Equal(t, runID, result.Report.RunID)

	res, ok := result.Report.Result(domain.StageCorrectCSS)
	require.True(t, ok)
	assert.Equal(t, domain.StageStatusSucceeded, res.Status)

	out, err := os.ReadFile(filepath.Join(dir, "after", "css", "site.css"))
	require.NoError(t, err)
	assert.Equal(t, "a{color:#fff}", string(out))
	assert.FileExists(t, filepath.Join(dir, "outputs", storage.ReportArtifact))
}

func TestActivity_RunPipelineWithoutInputIsNonRetryable(t *testing.T) {
	env := newEnv(t, newActivity(t, nil))

	_, err := env.ExecuteActivity(workflows.RunPipelineActivityName, workflows.RemediationInput{
		RunID:   uuid.New(),
		WorkDir: t.TempDir(),
	})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, workflows.NoInputErrorType, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestActivity_MirrorRun(t *testing.T) {
	mirror := &fakeMirror{}
	env := newEnv(t, newActivity(t, mirror))
	runID := uuid.New()

	val, err := env.ExecuteActivity(workflows.MirrorRunActivityName, workflows.MirrorInput{
		RunID:   runID,
		WorkDir: "/data/run",
	})
	require.NoError(t, err)

	var out workflows.MirrorOutput
	require.NoError(t, val.Get(&out))
	assert.Len(t, out.Keys, 1)
	assert.Equal(t, runID, mirror.runID)
	assert.Equal(t, filepath.Join("/data/run", "before"), mirror.root)
}

func TestActivity_MirrorRunErrors(t *testing.T) {
	env := newEnv(t, newActivity(t, nil))
	_, err := env.ExecuteActivity(workflows.MirrorRunActivityName, workflows.MirrorInput{RunID: uuid.New()})
	assert.ErrorContains(t, err, "not configured")

	env = newEnv(t, newActivity(t, &fakeMirror{err: errors.New("bucket gone")}))
	_, err = env.ExecuteActivity(workflows.MirrorRunActivityName, workflows.MirrorInput{RunID: uuid.New()})
	assert.ErrorContains(t, err, "bucket gone")
}
