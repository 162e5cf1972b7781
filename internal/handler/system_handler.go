package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/config"
	"github.com/stemsi/diagnostic-gateway/internal/response"
)

const (
	metricsInterval = 7 * time.Second
	pingTimeout     = 2 * time.Second
)

// Counter reports a live gauge, such as open survey sessions.
type Counter func() int

// SystemHandler serves liveness and gateway metrics.
type SystemHandler struct {
	rdb       *redis.Client
	sessions  Counter
	pollers   Counter
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. rdb may be nil when the
// gateway runs on in-memory stores.
func NewSystemHandler(rdb *redis.Client, sessions, pollers Counter, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		sessions:  sessions,
		pollers:   pollers,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Gateway
	ActiveSessions  int   `json:"active_sessions"`
	ActivePollers   int   `json:"active_pollers"`
	QueueOutbox     int64 `json:"queue_outbox"`
	RedisReachable  bool  `json:"redis_reachable"`
	RedisConfigured bool  `json:"redis_configured"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`
}

// Health godoc
// GET /health
// Reports liveness. Redis trouble degrades the status but never fails it.
func (h *SystemHandler) Health(c *gin.Context) {
	status := "ok"
	redisStatus := "disabled"
	if h.rdb != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			h.log.Warn().Err(err).Msg("Redis ping failed")
			status = "degraded"
			redisStatus = "unreachable"
		} else {
			redisStatus = "ok"
		}
	}

	response.Success(c, http.StatusOK, gin.H{
		"status": status,
		"redis":  redisStatus,
		"uptime": formatDuration(time.Since(h.startTime)),
	})
}

// SystemMetricsSSE godoc
// GET /api/v1/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Client connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Client disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    formatDuration(time.Since(h.startTime)),
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
	}
	if h.sessions != nil {
		m.ActiveSessions = h.sessions()
	}
	if h.pollers != nil {
		m.ActivePollers = h.pollers()
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.Sys
	m.NumGC = ms.NumGC

	if h.rdb != nil {
		m.RedisConfigured = true
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if n, err := h.rdb.LLen(ctx, config.WorkerKey.NotificationOutboxQueue).Result(); err == nil {
			m.QueueOutbox = n
			m.RedisReachable = true
		}
	}

	return m
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
