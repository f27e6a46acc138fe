package metrics

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/vietddude/ocrguard/internal/core/domain"
	"github.com/vietddude/ocrguard/internal/extraction/breaker"
	"github.com/vietddude/ocrguard/internal/extraction/orchestrator"
)

func quietRecorder() *Recorder {
	return NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRecorder_ObserveExtraction(t *testing.T) {
	r := quietRecorder()
	before := testutil.ToFloat64(ExtractionsTotal.WithLabelValues(orchestrator.OutcomeSuccess))
	timeoutsBefore := testutil.ToFloat64(ExtractionsTotal.WithLabelValues("timeout"))

	r.ObserveExtraction(orchestrator.Event{
		RequestID:         "req-1",
		Key:               domain.PoolKey{LanguageSet: "eng", Accuracy: domain.AccuracyBest},
		Outcome:           orchestrator.OutcomeSuccess,
		TotalDuration:     1500 * time.Millisecond,
		EngineDuration:    400 * time.Millisecond,
		Attempts:          2,
		ImageSize:         1 << 20,
		EstimatedMemoryMB: 3,
	})
	timeoutErr := domain.NewError(domain.KindTimeout, "slow", nil)
	r.ObserveExtraction(orchestrator.Event{
		RequestID: "req-2",
		Outcome:   orchestrator.Outcome(timeoutErr),
		Err:       timeoutErr,
		Attempts:  3,
	})

	assert.Equal(t, before+1, testutil.ToFloat64(ExtractionsTotal.WithLabelValues(orchestrator.OutcomeSuccess)))
	assert.Equal(t, timeoutsBefore+1, testutil.ToFloat64(ExtractionsTotal.WithLabelValues("timeout")))
}

func TestRecorder_Circuit(t *testing.T) {
	r := quietRecorder()
	opened := testutil.ToFloat64(CircuitTransitions.WithLabelValues("open"))

	r.CircuitTransition(breaker.StateClosed, breaker.StateOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(CircuitOpen))
	assert.Equal(t, opened+1, testutil.ToFloat64(CircuitTransitions.WithLabelValues("open")))

	r.CircuitTransition(breaker.StateOpen, breaker.StateClosed)
	assert.Equal(t, 0.0, testutil.ToFloat64(CircuitOpen))

	r.ObserveCircuit(breaker.StateOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(CircuitOpen))
	r.ObserveCircuit(breaker.StateClosed)
	assert.Equal(t, 0.0, testutil.ToFloat64(CircuitOpen))
}

func TestRecorder_PoolSize(t *testing.T) {
	r := quietRecorder()
	r.PoolSize(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(PoolHandles))
	r.PoolSize(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(PoolHandles))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", orchestrator.Outcome(nil))
	assert.Equal(t, "validation_error", orchestrator.Outcome(domain.NewValidationError(domain.ReasonEmpty, "empty")))
	assert.Equal(t, "extraction_error", orchestrator.Outcome(errors.New("foreign")))
}
