package handlers

import (
	"context"
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/workflows"
	"github.com/testforge/a11yforge/pkg/httputil"
)

// ReportStore reads published run reports
type ReportStore interface {
	GetReport(ctx context.Context, id uuid.UUID) (*domain.RunReport, error)
	GetStatus(ctx context.Context, id uuid.UUID) (string, error)
}

// Submitter starts remediation runs on the workflow engine
type Submitter interface {
	SubmitRemediation(ctx context.Context, input workflows.RemediationInput) (string, error)
}

// RunHandler handles remediation run HTTP requests
type RunHandler struct {
	reports   ReportStore
	submitter Submitter
	workRoot  string
	maxBody   int64
	logger    *zap.Logger
}

// NewRunHandler creates a new run handler. Either dependency may be nil,
// which disables the endpoints that need it. Requested work directories are
// resolved under workRoot; an empty workRoot refuses them.
func NewRunHandler(reports ReportStore, submitter Submitter, workRoot string, maxBody int64, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &RunHandler{
		reports:   reports,
		submitter: submitter,
		workRoot:  workRoot,
		maxBody:   maxBody,
		logger:    logger,
	}
}

// CreateRunRequest is the body of POST /runs
type CreateRunRequest struct {
	WorkDir string `json:"work_dir,omitempty"`
	Resume  bool   `json:"resume"`
	Mirror  bool   `json:"mirror"`
}

// CreateRunResponse acknowledges a submitted run
type CreateRunResponse struct {
	RunID      uuid.UUID `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
}

// RunView is a run's latest known state
type RunView struct {
	RunID  uuid.UUID         `json:"run_id"`
	Status string            `json:"status"`
	Report *domain.RunReport `json:"report,omitempty"`
}

// Create handles POST /runs
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.submitter == nil {
		httputil.JSONError(w, http.StatusServiceUnavailable, httputil.CodeUnavailable, "workflow engine not configured", nil)
		return
	}

	var req CreateRunRequest
	if err := httputil.DecodeJSON(r, &req, h.maxBody); err != nil {
		httputil.JSONError(w, http.StatusBadRequest, httputil.CodeBadRequest, err.Error(), nil)
		return
	}

	workDir, err := h.resolveWorkDir(req.WorkDir)
	if err != nil {
		httputil.JSONError(w, http.StatusBadRequest, httputil.CodeBadRequest, err.Error(), nil)
		return
	}

	input := workflows.RemediationInput{
		RunID:   uuid.New(),
		WorkDir: workDir,
		Resume:  req.Resume,
		Mirror:  req.Mirror,
	}

	workflowID, err := h.submitter.SubmitRemediation(r.Context(), input)
	if err != nil {
		h.logger.Error("failed to submit run", zap.Error(err))
		httputil.JSONError(w, http.StatusBadGateway, httputil.CodeUnavailable, "failed to submit run", nil)
		return
	}

	h.logger.Info("run submitted",
		zap.String("run_id", input.RunID.String()),
		zap.String("workflow_id", workflowID),
	)
	httputil.JSON(w, http.StatusAccepted, CreateRunResponse{RunID: input.RunID, WorkflowID: workflowID})
}

// resolveWorkDir maps a requested work directory onto the configured root.
// Only relative paths without ".." segments are accepted.
func (h *RunHandler) resolveWorkDir(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if h.workRoot == "" {
		return "", errors.New("work_dir is not accepted by this server")
	}

	slashed := filepath.ToSlash(dir)
	if path.IsAbs(slashed) || filepath.IsAbs(dir) || filepath.VolumeName(dir) != "" {
		return "", errors.New("work_dir must be a relative path")
	}
	for _, segment := range strings.Split(slashed, "/") {
		if segment == ".." {
			return "", errors.New("work_dir must not contain '..'")
		}
	}
	clean := path.Clean(slashed)
	if clean == "." {
		return "", errors.New("work_dir must name a directory under the work root")
	}
	return filepath.Join(h.workRoot, filepath.FromSlash(clean)), nil
}

// Get handles GET /runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, true)
}

// Status handles GET /runs/{id}/status
func (h *RunHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, false)
}

func (h *RunHandler) view(w http.ResponseWriter, r *http.Request, withReport bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.JSONError(w, http.StatusBadRequest, httputil.CodeBadRequest, "invalid run ID", nil)
		return
	}
	if h.reports == nil {
		httputil.JSONError(w, http.StatusServiceUnavailable, httputil.CodeUnavailable, "report store not configured", nil)
		return
	}

	status, err := h.reports.GetStatus(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to read run status", zap.String("run_id", id.String()), zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}

	view := RunView{RunID: id, Status: status}
	if withReport {
		view.Report, err = h.reports.GetReport(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to read run report", zap.String("run_id", id.String()), zap.Error(err))
			httputil.ErrorFromDomain(w, err)
			return
		}
	}

	if view.Status == "" && view.Report == nil {
		httputil.JSONError(w, http.StatusNotFound, httputil.CodeNotFound, "run not found", nil)
		return
	}
	httputil.JSON(w, http.StatusOK, view)
}
