package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStage_Order(t *testing.T) {
	assert.Equal(t, 0, StageCollect.Index())
	assert.Equal(t, -1, Stage("BOGUS").Index())

	stage := StageCollect
	var visited []Stage
	for stage != StageDone {
		visited = append(visited, stage)
		stage = stage.Next()
	}
	assert.Equal(t, Stages[:len(Stages)-1], visited)
	assert.Equal(t, StageDone, StageDone.Next())
	assert.Equal(t, StageDone, Stage("BOGUS").Next())
}

func TestCorrectionStageFor(t *testing.T) {
	for i, lang := range Languages {
		assert.Equal(t, CorrectionStages[i], CorrectionStageFor(lang))
	}
}

func TestRunReport(t *testing.T) {
	report := NewRunReport(uuid.New(), time.Now())
	assert.True(t, report.Succeeded())

	report.Record(StageResult{Stage: StageCollect, Status: StageStatusSucceeded})
	report.Record(StageResult{Stage: StageCorrectCSS, Status: StageStatusFailed, Error: "boom"})
	report.Record(StageResult{Stage: StageCorrectJS, Status: StageStatusSkipped})

	res, ok := report.Result(StageCorrectCSS)
	assert.True(t, ok)
	assert.Equal(t, "boom", res.Error)

	_, ok = report.Result(StageCaption)
	assert.False(t, ok)

	assert.Equal(t, []Stage{StageCorrectCSS}, report.Failed())
	assert.False(t, report.Succeeded())
}
