package control

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/ocrguard/internal/api/handler"
	"github.com/vietddude/ocrguard/internal/core/config"
	"github.com/vietddude/ocrguard/internal/core/domain"
	"github.com/vietddude/ocrguard/internal/infra/engine"
	"github.com/vietddude/ocrguard/internal/infra/engine/mock"
)

var testPolicy = domain.RecoveryPolicy{
	MaxRetries:              1,
	BaseDelay:               time.Millisecond,
	MaxDelay:                2 * time.Millisecond,
	OperationTimeout:        time.Second,
	CircuitFailureThreshold: 2,
	CircuitResetTimeout:     time.Minute,
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	return Config{
		Server:  config.ServerConfig{Port: 0, Mode: "test"},
		Engine:  domain.DefaultEngineConfig(),
		Policy:  testPolicy,
		Workers: 4,
	}
}

func newTestService(t *testing.T, factory engine.Factory, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	svc, err := NewService(testConfig(), factory, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return svc
}

func pngUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 8, 8))))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "recipe.png")
	require.NoError(t, err)
	_, err = part.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func postImage(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := pngUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewService_Rejects(t *testing.T) {
	_, err := NewService(testConfig(), nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Policy.MaxDelay = 0
	_, err = NewService(cfg, mock.NewFactory().Build)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Engine.Languages = nil
	_, err = NewService(cfg, mock.NewFactory().Build)
	assert.Error(t, err)
}

func TestConfigFrom(t *testing.T) {
	app, err := config.Parse([]byte(`
server:
  port: 9090
engine:
  languages: [fra, eng]
  accuracy: fast
recovery:
  max_retries: 3
  base_delay: 500ms
  max_delay: 5s
  operation_timeout: 10s
  circuit_failure_threshold: 4
  circuit_reset_timeout: 30s
workers:
  size: 8
`))
	require.NoError(t, err)

	cfg, err := ConfigFrom(app)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "eng+fra/fast", cfg.Engine.Key().String())
	assert.Equal(t, 3, cfg.Policy.MaxRetries)
	assert.Equal(t, uint32(4), cfg.Policy.CircuitFailureThreshold)
	assert.Equal(t, 8, cfg.Workers)
}

func TestService_ExtractOverHTTP(t *testing.T) {
	factory := mock.NewFactory()
	svc := newTestService(t, factory.Build)

	rec := postImage(t, svc.Handler())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handler.ExtractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "mock text", resp.Text)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.RequestID)

	st := svc.Status()
	require.Len(t, st.Pool, 1)
	assert.Equal(t, "eng/best", st.Pool[0].Key)
	assert.Equal(t, int64(1), st.Pool[0].Uses)
	assert.Equal(t, 1, factory.Builds())
}

func TestService_CircuitOpensAndHealthReflectsIt(t *testing.T) {
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	var mu sync.Mutex
	failing := true
	eng := mock.NewEngine().WithRecognizeFunc(func(context.Context, int, domain.ImageRef) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return "", domain.NewError(domain.KindExtraction, "engine down", nil)
		}
		return "recovered", nil
	})
	svc := newTestService(t, mock.FactoryFor(eng).Build, WithBreakerClock(clk.Now))
	h := svc.Handler()

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusBadGateway, postImage(t, h).Code)
	}

	rec := postImage(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, 4, eng.CallCount())

	health := httptest.NewRecorder()
	h.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, health.Code)

	clk.Advance(testPolicy.CircuitResetTimeout)
	mu.Lock()
	failing = false
	mu.Unlock()

	assert.Equal(t, http.StatusOK, postImage(t, h).Code)
	health = httptest.NewRecorder()
	h.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestService_ResetEngine(t *testing.T) {
	factory := mock.NewFactory()
	svc := newTestService(t, factory.Build)

	assert.False(t, svc.ResetEngine())

	_, err := svc.Extract(context.Background(), domain.ExtractionRequest{
		Image: domain.BytesRef("x.png", encodePNG(t)),
	})
	require.NoError(t, err)
	assert.Len(t, svc.Status().Pool, 1)

	assert.True(t, svc.ResetEngine())
	assert.Empty(t, svc.Status().Pool)

	_, err = svc.Extract(context.Background(), domain.ExtractionRequest{
		Image: domain.BytesRef("x.png", encodePNG(t)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, factory.Builds())
}

func TestService_StartStop(t *testing.T) {
	svc := newTestService(t, mock.NewFactory().Build)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	assert.NoError(t, svc.Stop(stopCtx))
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}
