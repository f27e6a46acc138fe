// Package metrics is the observability collaborator for extraction: it
// exports Prometheus series and logs every terminal request outcome.
package metrics

import (
	"log/slog"

	"github.com/vietddude/ocrguard/internal/extraction/breaker"
	"github.com/vietddude/ocrguard/internal/extraction/orchestrator"
)

// Recorder implements orchestrator.Observer on top of the package-level
// Prometheus vectors.
type Recorder struct {
	log *slog.Logger
}

var _ orchestrator.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder. A nil logger means slog.Default().
func NewRecorder(log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{log: log}
}

// ObserveExtraction records one terminal outcome.
func (r *Recorder) ObserveExtraction(ev orchestrator.Event) {
	ExtractionsTotal.WithLabelValues(ev.Outcome).Inc()
	ExtractionDuration.WithLabelValues(ev.Outcome).Observe(ev.TotalDuration.Seconds())
	if ev.Attempts > 0 {
		ExtractionAttempts.Observe(float64(ev.Attempts))
		EngineDuration.WithLabelValues(ev.Key.String()).Observe(ev.EngineDuration.Seconds())
	}
	if ev.ImageSize > 0 {
		ImageSizeBytes.Observe(float64(ev.ImageSize))
	}
	if ev.EstimatedMemoryMB > 0 {
		EstimatedMemoryMB.Observe(ev.EstimatedMemoryMB)
	}

	attrs := []any{
		"request_id", ev.RequestID,
		"image", ev.Image,
		"outcome", ev.Outcome,
		"attempts", ev.Attempts,
		"total", ev.TotalDuration,
		"engine", ev.EngineDuration,
		"size", ev.ImageSize,
		"est_memory_mb", ev.EstimatedMemoryMB,
	}
	if ev.Err != nil {
		r.log.Warn("Extraction failed", append(attrs, "error", ev.Err)...)
		return
	}
	r.log.Info("Extraction succeeded", append(attrs, "format", ev.Format, "key", ev.Key.String())...)
}

// ObserveCircuit updates the circuit gauge.
func (r *Recorder) ObserveCircuit(state breaker.State) {
	if state == breaker.StateOpen {
		CircuitOpen.Set(1)
		return
	}
	CircuitOpen.Set(0)
}

// CircuitTransition is a breaker.Listener.
func (r *Recorder) CircuitTransition(from, to breaker.State) {
	CircuitTransitions.WithLabelValues(to.String()).Inc()
	r.ObserveCircuit(to)
	if to == breaker.StateOpen {
		r.log.Error("Engine circuit opened", "from", from.String())
		return
	}
	r.log.Info("Engine circuit closed", "from", from.String())
}

// PoolSize is an engine pool size observer.
func (r *Recorder) PoolSize(n int) {
	PoolHandles.Set(float64(n))
}
