package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vietddude/ocrguard/internal/extraction/breaker"
)

const (
	StatusHealthy     = "healthy"
	StatusUnavailable = "unavailable"
)

// Health returns a handler for GET /api/v1/health. It answers 503 while the
// engine circuit is open so load balancers route around the instance.
func Health(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := svc.Status()
		resp := HealthResponse{
			Status:   StatusHealthy,
			Circuit:  st.Circuit.StateName,
			PoolSize: len(st.Pool),
		}
		if st.Circuit.State == breaker.StateOpen {
			resp.Status = StatusUnavailable
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HealthDetailed returns a handler for GET /api/v1/health/detailed.
func HealthDetailed(svc Service, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := svc.Status()
		status := StatusHealthy
		if st.Circuit.State == breaker.StateOpen {
			status = StatusUnavailable
		}
		c.JSON(http.StatusOK, DetailedHealthResponse{
			Status:         status,
			Uptime:         time.Since(startTime).Round(time.Second).String(),
			Circuit:        st.Circuit,
			Pool:           st.Pool,
			RunningWorkers: st.RunningWorkers,
		})
	}
}

// ResetEngine returns a handler for POST /api/v1/engine/reset, the operator
// path for abandoning an engine stuck in a hung call.
func ResetEngine(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ResetResponse{Removed: svc.ResetEngine()})
	}
}
