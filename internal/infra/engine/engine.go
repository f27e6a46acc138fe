// Package engine implements the recognition engine abstraction and the
// instance pool that amortizes engine initialization.
//
// This package contains:
//   - Engine interface: core abstraction for a recognition backend
//   - Factory: builds an initialized Engine for an EngineConfig
//   - Handle: a pooled, mutex-serialized Engine shared by one pool key
//   - Pool: one Handle per (language set, accuracy tier)
package engine

import (
	"context"

	"github.com/vietddude/ocrguard/internal/core/domain"
)

// Engine is an initialized recognition engine. Implementations are not
// required to be safe for concurrent use; Handle serializes access.
type Engine interface {
	// Recognize returns the raw text found in img. Implementations should
	// return *domain.Error values of kind KindImageLoad or KindExtraction.
	Recognize(ctx context.Context, img domain.ImageRef) (string, error)

	// Close releases engine resources.
	Close() error
}

// Factory constructs and initializes an Engine. Construction is expected to
// be expensive.
type Factory func(cfg domain.EngineConfig) (Engine, error)
