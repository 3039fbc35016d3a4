package workflows

import (
	"time"

	"github.com/google/uuid"

	"github.com/testforge/a11yforge/internal/domain"
)

// RemediationInput is the input for the remediation workflow
type RemediationInput struct {
	RunID uuid.UUID `json:"run_id"`

	// WorkDir relocates the configured input, output and artifact roots.
	// Empty keeps the worker's configured layout.
	WorkDir string `json:"work_dir,omitempty"`

	Resume bool `json:"resume"`
	Mirror bool `json:"mirror"`
}

// RemediationOutput is the output of the remediation workflow
type RemediationOutput struct {
	RunID         uuid.UUID         `json:"run_id"`
	Status        string            `json:"status"`
	Report        *domain.RunReport `json:"report,omitempty"`
	Mirrored      int               `json:"mirrored"`
	Error         string            `json:"error,omitempty"`
	CompletedAt   time.Time         `json:"completed_at"`
	TotalDuration time.Duration     `json:"total_duration"`
}

// PipelineResult is the output of the pipeline activity
type PipelineResult struct {
	Status string            `json:"status"`
	Report *domain.RunReport `json:"report"`
}

// MirrorInput is the input for the mirror activity
type MirrorInput struct {
	RunID   uuid.UUID `json:"run_id"`
	WorkDir string    `json:"work_dir,omitempty"`
}

// MirrorOutput lists the uploaded object keys
type MirrorOutput struct {
	Keys []string `json:"keys"`
}
