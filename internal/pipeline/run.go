package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/storage"
)

// Run is the state of one pipeline execution. Stages read what earlier
// stages left here and add their own output.
type Run struct {
	ID        uuid.UUID
	Workspace *storage.Workspace

	Snapshot    *domain.Snapshot
	Issues      domain.IssueSet
	Tasks       domain.ToolTasks
	Captions    domain.Captions
	Corrections map[domain.Language]domain.CorrectionResult
	Report      *domain.RunReport

	mu      sync.Mutex
	written []string
}

// NewRun prepares a run over ws
func NewRun(id uuid.UUID, ws *storage.Workspace, startedAt time.Time) *Run {
	return &Run{
		ID:          id,
		Workspace:   ws,
		Tasks:       domain.NewToolTasks(),
		Captions:    domain.Captions{},
		Corrections: make(map[domain.Language]domain.CorrectionResult, len(domain.Languages)),
		Report:      domain.NewRunReport(id, startedAt),
	}
}

func (r *Run) record(result domain.StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Report.Record(result)
}

func (r *Run) addWritten(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written = append(r.written, path)
}

func (r *Run) setCorrection(lang domain.Language, result domain.CorrectionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Corrections[lang] = result
}

func (r *Run) correction(lang domain.Language) domain.CorrectionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Corrections[lang]
}

// Written returns the output files written so far in path order
func (r *Run) Written() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.written))
	copy(out, r.written)
	sort.Strings(out)
	return out
}
