package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Error codes for categorization
const (
	// Recovered locally, never fatal
	ErrCodeModelCall     = "MODEL_CALL_FAILED"
	ErrCodeParseFallback = "PARSE_FALLBACK"
	ErrCodeMissingInput  = "MISSING_INPUT"
	ErrCodeImage         = "IMAGE_ERROR"

	// Stage level
	ErrCodeStageFailed = "STAGE_FAILED"
	ErrCodeArtifactIO  = "ARTIFACT_IO"

	// Startup
	ErrCodeConfig = "CONFIG_INVALID"
)

// AppError is the base error type for categorized pipeline errors
type AppError struct {
	// Error code for programmatic handling
	Code string `json:"code"`

	// Human-readable message
	Message string `json:"message"`

	// Stage the error belongs to, if any
	Stage Stage `json:"stage,omitempty"`

	// Original error (for error wrapping)
	Cause error `json:"-"`

	// Metadata for additional context
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Timestamp when error occurred
	Timestamp time.Time `json:"timestamp"`

	// Retry information
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// WithStage tags the error with a pipeline stage
func (e *AppError) WithStage(stage Stage) *AppError {
	e.Stage = stage
	return e
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithRetry marks the error as retryable
func (e *AppError) WithRetry(after time.Duration) *AppError {
	e.Retryable = true
	e.RetryAfter = after
	return e
}

// ToJSON serializes the error to JSON
func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// NewError creates a new AppError
func NewError(code, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Sentinels for errors.Is comparisons
var (
	ErrModelCall     = &AppError{Code: ErrCodeModelCall}
	ErrParseFallback = &AppError{Code: ErrCodeParseFallback}
	ErrMissingInput  = &AppError{Code: ErrCodeMissingInput}
	ErrImage         = &AppError{Code: ErrCodeImage}
	ErrStageFailed   = &AppError{Code: ErrCodeStageFailed}
	ErrArtifactIO    = &AppError{Code: ErrCodeArtifactIO}
	ErrConfig        = &AppError{Code: ErrCodeConfig}
)

func ErrModelCallFailed(purpose string, err error) *AppError {
	return NewError(ErrCodeModelCall, fmt.Sprintf("model call failed: %s", purpose)).
		WithCause(err).
		WithMetadata("purpose", purpose).
		WithRetry(5 * time.Second)
}

func ErrParse(shape string, err error) *AppError {
	return NewError(ErrCodeParseFallback, fmt.Sprintf("response is not a %s", shape)).
		WithCause(err).
		WithMetadata("shape", shape)
}

func ErrInputMissing(what string) *AppError {
	return NewError(ErrCodeMissingInput, fmt.Sprintf("missing input: %s", what)).
		WithMetadata("input", what)
}

func ErrImageUnreadable(ref string, err error) *AppError {
	return NewError(ErrCodeImage, fmt.Sprintf("image unreadable: %s", ref)).
		WithCause(err).
		WithMetadata("ref", ref)
}

func ErrStage(stage Stage, err error) *AppError {
	return NewError(ErrCodeStageFailed, fmt.Sprintf("stage %s failed", stage)).
		WithCause(err).
		WithStage(stage)
}

func ErrArtifact(name string, err error) *AppError {
	return NewError(ErrCodeArtifactIO, fmt.Sprintf("artifact %s", name)).
		WithCause(err).
		WithMetadata("artifact", name)
}

func ErrInvalidConfig(message string) *AppError {
	return NewError(ErrCodeConfig, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsRetryable reports whether the error chain marks itself as retryable
func IsRetryable(err error) bool {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Retryable
	}
	return false
}
