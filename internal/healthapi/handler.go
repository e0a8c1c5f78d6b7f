// Package healthapi exposes the aggregated health/metrics HTTP surface
// (C9, spec §6): a single GET endpoint reporting consumer connectivity,
// KV reachability, memory usage, and cumulative processed/errored
// counters, plus a Prometheus /metrics endpoint. Grounded on the
// teacher's api/internal/delivery/http/health_handler.go and router.go.
package healthapi

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/domain"
	"github.com/sentinel-synth/synthcore/internal/healthapi/middleware"
	"github.com/sentinel-synth/synthcore/internal/kv"
)

// StatusReporter is satisfied by both the Event and Interaction Consumers.
type StatusReporter interface {
	Status() domain.ConsumerStatus
}

// Handler serves the aggregated health endpoint.
type Handler struct {
	logger            *zap.Logger
	kv                kv.Store
	consumers         map[string]StatusReporter
	memoryThresholdMb int
	startedAt         time.Time
}

// New constructs a Handler. consumers maps a human-readable name (e.g.
// "event", "interaction") to its status reporter.
func New(logger *zap.Logger, kvStore kv.Store, consumers map[string]StatusReporter, memoryThresholdMb int) *Handler {
	return &Handler{
		logger:            logger,
		kv:                kvStore,
		consumers:         consumers,
		memoryThresholdMb: memoryThresholdMb,
		startedAt:         time.Now(),
	}
}

type consumerReport struct {
	Connected         bool  `json:"connected"`
	Consuming         bool  `json:"consuming"`
	MessagesProcessed int64 `json:"messagesProcessed"`
	MessagesErrored   int64 `json:"messagesErrored"`
}

// Health handles GET /health. It is healthy (200) when at least one
// consumer is connected and consuming, the KV store answers within
// budget, and allocated heap memory (runtime MemStats.Alloc) is below
// the configured threshold;
// otherwise it reports 503.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	consumerReports := make(map[string]consumerReport, len(h.consumers))
	anyConsuming := false
	for name, reporter := range h.consumers {
		st := reporter.Status()
		consumerReports[name] = consumerReport{
			Connected:         st.Connected,
			Consuming:         st.Consuming,
			MessagesProcessed: st.MessagesProcessed,
			MessagesErrored:   st.MessagesErrored,
		}
		if st.Connected && st.Consuming {
			anyConsuming = true
		}
	}

	kvHealthy, kvLatency := h.checkKV(ctx)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	memMb := mem.Alloc / (1024 * 1024)
	memHealthy := int(memMb) < h.memoryThresholdMb

	status := "ok"
	statusCode := http.StatusOK
	if !anyConsuming || !kvHealthy || !memHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
		h.logger.Warn("health check degraded",
			zap.Bool("anyConsuming", anyConsuming),
			zap.Bool("kvHealthy", kvHealthy),
			zap.Bool("memHealthy", memHealthy),
		)
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"consumers": consumerReports,
		"kv": gin.H{
			"healthy":   kvHealthy,
			"latencyMs": kvLatency.Milliseconds(),
		},
		"memory": gin.H{
			"allocMb":   memMb,
			"thresholdMb": h.memoryThresholdMb,
		},
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

func (h *Handler) checkKV(ctx context.Context) (bool, time.Duration) {
	start := time.Now()
	_, err := h.kv.Exists(ctx, "healthcheck:ping")
	latency := time.Since(start)
	if err != nil {
		h.logger.Warn("KV health check failed", zap.Error(err))
		return false, latency
	}
	return true, latency
}

// NewRouter builds the Gin engine serving /health and /metrics, with the
// teacher's recovery and request-ID middleware.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", h.Health)
	router.GET("/", h.Health)

	return router
}
