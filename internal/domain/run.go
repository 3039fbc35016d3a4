package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage is one state of the remediation pipeline. Stages advance strictly
// forward; there is no transition back to an earlier stage.
type Stage string

const (
	StageCollect        Stage = "COLLECT"
	StageAnalyze        Stage = "ANALYZE"
	StageRecommendTools Stage = "RECOMMEND_TOOLS"
	StageCaption        Stage = "CAPTION"
	StageCorrectHTML    Stage = "CORRECT_HTML"
	StageCorrectCSS     Stage = "CORRECT_CSS"
	StageCorrectJS      Stage = "CORRECT_JS"
	StageDone           Stage = "DONE"
)

// Stages lists the pipeline states in execution order
var Stages = []Stage{
	StageCollect,
	StageAnalyze,
	StageRecommendTools,
	StageCaption,
	StageCorrectHTML,
	StageCorrectCSS,
	StageCorrectJS,
	StageDone,
}

// CorrectionStages lists the independent correction stages
var CorrectionStages = []Stage{StageCorrectHTML, StageCorrectCSS, StageCorrectJS}

// Index returns the position of the stage in the pipeline, or -1
func (s Stage) Index() int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s
func (s Stage) Next() Stage {
	i := s.Index()
	if i < 0 || i+1 >= len(Stages) {
		return StageDone
	}
	return Stages[i+1]
}

// CorrectionStageFor maps a language to its correction stage
func CorrectionStageFor(lang Language) Stage {
	switch lang {
	case LanguageHTML:
		return StageCorrectHTML
	case LanguageCSS:
		return StageCorrectCSS
	default:
		return StageCorrectJS
	}
}

// StageStatus is the outcome of one stage
type StageStatus string

const (
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusResumed   StageStatus = "resumed"
)

// StageResult records what happened in one stage
type StageResult struct {
	Stage     Stage         `json:"stage"`
	Status    StageStatus   `json:"status"`
	Error     string        `json:"error,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Count     int           `json:"count"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ImageAudit counts images missing alt text before and after correction
type ImageAudit struct {
	Images        int `json:"images"`
	MissingBefore int `json:"missing_alt_before"`
	MissingAfter  int `json:"missing_alt_after"`
}

// RunReport summarizes one pipeline run
type RunReport struct {
	RunID      uuid.UUID     `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageResult `json:"stages"`
	Issues     IssueCounts   `json:"issues"`
	Tools      ToolTasks     `json:"tool_tasks,omitempty"`
	Captions   int           `json:"captions"`
	Written    []string      `json:"written,omitempty"`
	Images     ImageAudit    `json:"images"`
}

// IssueCounts holds per-language issue totals
type IssueCounts struct {
	HTML int `json:"html"`
	CSS  int `json:"css"`
	JS   int `json:"js"`
}

// NewRunReport starts a report for a new run
func NewRunReport(runID uuid.UUID, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:     runID,
		StartedAt: startedAt,
		Stages:    []StageResult{},
	}
}

// Record appends a stage result
func (r *RunReport) Record(result StageResult) {
	r.Stages = append(r.Stages, result)
}

// Result returns the recorded result for a stage
func (r *RunReport) Result(stage Stage) (StageResult, bool) {
	for _, res := range r.Stages {
		if res.Stage == stage {
			return res, true
		}
	}
	return StageResult{}, false
}

// Failed returns the stages that failed
func (r *RunReport) Failed() []Stage {
	var failed []Stage
	for _, res := range r.Stages {
		if res.Status == StageStatusFailed {
			failed = append(failed, res.Stage)
		}
	}
	return failed
}

// Succeeded reports whether no stage failed
func (r *RunReport) Succeeded() bool {
	return len(r.Failed()) == 0
}
