package handler

import (
	"context"

	"github.com/vietddude/ocrguard/internal/core/domain"
	"github.com/vietddude/ocrguard/internal/extraction/breaker"
	"github.com/vietddude/ocrguard/internal/infra/engine"
)

// Error codes that do not come from the domain taxonomy.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeForbidden    = "FORBIDDEN"
)

// Service is what the handlers need from the running extraction service.
type Service interface {
	// Extract runs one request. Zero Engine and Policy fields are filled
	// from the service configuration.
	Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResult, error)
	Status() Status
	// ResetEngine drops the pooled engine handle for the default
	// configuration and reports whether one existed.
	ResetEngine() bool
}

// Status is a point-in-time view of the extraction service.
type Status struct {
	Circuit        breaker.Snapshot     `json:"circuit"`
	Pool           []engine.HandleStats `json:"pool"`
	RunningWorkers int                  `json:"running_workers"`
}

// PathRequest is the JSON body for extracting a file on the server's disk.
type PathRequest struct {
	Path string `json:"path" binding:"required"`
}

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// TimingInfo reports where the request spent its time.
type TimingInfo struct {
	TotalMs  int64 `json:"total_ms"`
	EngineMs int64 `json:"engine_ms"`
}

// ImageInfo describes the validated image.
type ImageInfo struct {
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// ExtractResponse is the body of POST /api/v1/extract.
type ExtractResponse struct {
	Success   bool         `json:"success"`
	RequestID string       `json:"request_id"`
	Text      string       `json:"text,omitempty"`
	Attempts  int          `json:"attempts,omitempty"`
	Timing    *TimingInfo  `json:"timing,omitempty"`
	Image     *ImageInfo   `json:"image,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Circuit  string `json:"circuit"`
	PoolSize int    `json:"pool_size"`
}

// DetailedHealthResponse is the body of GET /api/v1/health/detailed.
type DetailedHealthResponse struct {
	Status         string               `json:"status"`
	Uptime         string               `json:"uptime"`
	Circuit        breaker.Snapshot     `json:"circuit"`
	Pool           []engine.HandleStats `json:"pool"`
	RunningWorkers int                  `json:"running_workers"`
}

// ResetResponse is the body of POST /api/v1/engine/reset.
type ResetResponse struct {
	Removed bool `json:"removed"`
}
