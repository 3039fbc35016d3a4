package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/a11yforge/internal/domain"
)

func TestArtifacts_Issues(t *testing.T) {
	a := NewArtifacts(t.TempDir(), nil)

	_, ok, err := a.LoadIssues(domain.LanguageHTML)
	require.NoError(t, err)
	assert.False(t, ok)

	issues := domain.Issues{"Image <img src=\"a.png\"> missing alt", "Émoji ✓ kept"}
	require.NoError(t, a.SaveIssues(domain.LanguageHTML, issues))

	got, ok, err := a.LoadIssues(domain.LanguageHTML)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, issues, got)

	raw, err := os.ReadFile(filepath.Join(a.Dir(), "issues", "issues_html.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `<img src=\"a.png\">`, "HTML is not escaped")
	assert.Contains(t, string(raw), "Émoji ✓", "UTF-8 is written as is")
	assert.Contains(t, string(raw), "\n  \"", "indented")
}

func TestArtifacts_NilIssuesPersistAsEmptyList(t *testing.T) {
	a := NewArtifacts(t.TempDir(), nil)

	require.NoError(t, a.SaveIssues(domain.LanguageJS, nil))
	got, ok, err := a.LoadIssues(domain.LanguageJS)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestArtifacts_ToolTasksAndCaptions(t *testing.T) {
	a := NewArtifacts(t.TempDir(), nil)

	tasks := domain.ToolTasks{domain.ToolImageCaptioning: {"logo.png"}}
	require.NoError(t, a.SaveToolTasks(tasks))

	gotTasks, ok, err := a.LoadToolTasks()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"logo.png"}, gotTasks[domain.ToolImageCaptioning])
	assert.Equal(t, []string{}, gotTasks[domain.ToolVideoTranscription])

	captions := domain.Captions{"logo.png": "The company logo."}
	require.NoError(t, a.SaveCaptions(captions))

	gotCaptions, ok, err := a.LoadCaptions()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, captions, gotCaptions)

	files, err := a.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{CaptionsArtifact, ToolTasksArtifact}, files)
}

func TestArtifacts_Report(t *testing.T) {
	a := NewArtifacts(t.TempDir(), nil)

	report := domain.NewRunReport(uuid.New(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	report.Record(domain.StageResult{Stage: domain.StageCollect, Status: domain.StageStatusSucceeded, Count: 3})
	report.Images = domain.ImageAudit{Images: 2, MissingBefore: 2, MissingAfter: 0}
	require.NoError(t, a.SaveReport(report))

	got, ok, err := a.LoadReport()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.RunID, got.RunID)
	assert.True(t, report.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, report.Stages, got.Stages)
	assert.Equal(t, report.Images, got.Images)
}

func TestArtifacts_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	a := NewArtifacts(dir, nil)
	writeFile(t, filepath.Join(dir, "captions", "image_captions.json"), "{not json")

	_, ok, err := a.LoadCaptions()
	assert.True(t, ok)
	assert.ErrorIs(t, err, domain.ErrArtifactIO)
}

func TestArtifacts_FilesOnMissingDir(t *testing.T) {
	a := NewArtifacts(filepath.Join(t.TempDir(), "nope"), nil)

	files, err := a.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}
