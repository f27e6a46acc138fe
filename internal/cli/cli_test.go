package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/ocrguard/internal/api/handler"
	"github.com/vietddude/ocrguard/internal/core/domain"
	"github.com/vietddude/ocrguard/internal/extraction/breaker"
	"github.com/vietddude/ocrguard/internal/infra/engine"
)

type fakeExtractor struct {
	mu       sync.Mutex
	running  atomic.Int32
	maxSeen  int32
	failPath string
}

func (f *fakeExtractor) Extract(_ context.Context, req domain.ExtractionRequest) (domain.ExtractionResult, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	f.mu.Lock()
	if n > f.maxSeen {
		f.maxSeen = n
	}
	f.mu.Unlock()
	time.Sleep(10 * time.Millisecond)

	if req.Image.Path == f.failPath {
		return domain.ExtractionResult{}, domain.NewValidationError(domain.ReasonUnsupportedFormat, "text/plain is not a supported image format")
	}
	return domain.ExtractionResult{
		Text:      "text of " + req.Image.Name,
		Attempts:  1,
		Format:    domain.FormatPNG,
		ImageSize: 2048,
	}, nil
}

func TestExtractFiles_KeepsOrderAndLimit(t *testing.T) {
	fx := &fakeExtractor{failPath: "/in/notes.txt"}
	paths := []string{"/in/a.png", "/in/notes.txt", "/in/b.png", "/in/c.png"}

	results := extractFiles(context.Background(), fx, paths, 2)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, paths[i], r.path)
	}
	assert.Equal(t, "text of a.png", results[0].res.Text)
	assert.ErrorIs(t, results[1].err, domain.ErrValidation)
	assert.LessOrEqual(t, fx.maxSeen, int32(2))

	var out bytes.Buffer
	failed := printResults(&out, results)
	assert.Equal(t, 1, failed)
	assert.Contains(t, out.String(), "==> /in/notes.txt: FAILED (VALIDATION_ERROR)")
	assert.Contains(t, out.String(), "==> /in/c.png (png, 2.0 kB, 1 attempt(s)")
}

func TestFetchStatus(t *testing.T) {
	last := time.Now().Add(-30 * time.Second)
	body := handler.DetailedHealthResponse{
		Status: handler.StatusUnavailable,
		Uptime: "5m0s",
		Circuit: breaker.Snapshot{
			StateName:     "open",
			FailureCount:  5,
			Threshold:     5,
			LastFailureAt: &last,
			RetryAfter:    30 * time.Second,
		},
		Pool: []engine.HandleStats{
			{ID: 7, Key: "eng+fra/best", CreatedAt: time.Now().Add(-time.Hour), Uses: 42, Busy: true},
		},
		RunningWorkers: 1,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health/detailed", r.URL.Path)
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	st, err := fetchStatus(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "open", st.Circuit.StateName)
	assert.Equal(t, 30*time.Second, st.Circuit.RetryAfter)
	require.Len(t, st.Pool, 1)

	var out bytes.Buffer
	printStatus(&out, st)
	s := out.String()
	assert.Contains(t, s, "Circuit:  open, 5/5 failures, retry in 30s")
	assert.Contains(t, s, "eng+fra/best")
	assert.Contains(t, s, "Workers:  1 running")
}

func TestFetchStatus_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := fetchStatus(context.Background(), srv.Client(), srv.URL)
	assert.Error(t, err)
}
