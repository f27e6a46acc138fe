package orchestrator

import (
	"strings"
	"time"

	"github.com/vietddude/ocrguard/internal/core/domain"
	"github.com/vietddude/ocrguard/internal/extraction/breaker"
)

// OutcomeSuccess is the outcome label for successful requests. Failures use
// the lower-cased error kind, e.g. "timeout".
const OutcomeSuccess = "success"

// Outcome returns the outcome label for err.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return strings.ToLower(string(domain.KindOf(err)))
}

// Event is emitted once per request at its terminal outcome.
type Event struct {
	RequestID         string
	Image             string
	Key               domain.PoolKey
	Outcome           string
	Err               error
	Format            domain.ImageFormat
	TotalDuration     time.Duration
	EngineDuration    time.Duration
	Attempts          int
	ImageSize         int64
	EstimatedMemoryMB float64
}

// Observer receives per-request outcomes and the breaker state.
type Observer interface {
	ObserveExtraction(ev Event)
	ObserveCircuit(state breaker.State)
}

type nopObserver struct{}

func (nopObserver) ObserveExtraction(Event)      {}
func (nopObserver) ObserveCircuit(breaker.State) {}
