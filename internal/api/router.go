// Package api exposes the extraction service over HTTP.
package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/ocrguard/internal/api/handler"
	"github.com/vietddude/ocrguard/internal/api/middleware"
	"github.com/vietddude/ocrguard/internal/core/config"
)

// multipartOverhead is allowed on top of the image ceiling for form framing.
const multipartOverhead = 64 << 10

// NewRouter creates a configured Gin engine with all routes and middleware.
//
//	Global: Recovery → RequestID → Logger
//
// maxImageSize is the absolute image ceiling; upload bodies may exceed it by
// the multipart framing overhead only.
func NewRouter(svc handler.Service, cfg config.ServerConfig, maxImageSize int64, log *slog.Logger, startTime time.Time) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(svc))
	v1.GET("/health/detailed", handler.HealthDetailed(svc, startTime))
	v1.POST("/extract", handler.Extract(svc, maxImageSize+multipartOverhead, cfg.AllowPaths))
	v1.POST("/engine/reset", handler.ResetEngine(svc))

	return r
}
