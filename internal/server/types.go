// Package server exposes the decoder over HTTP and a WebSocket capture
// session.
package server

import (
	"context"
	"image"
	"net/http"
	"time"

	"github.com/MeKo-Tech/slscan/internal/common"
	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// pipelineInterface defines the methods needed by the server from a pipeline.
type pipelineInterface interface {
	ProcessImages(ctx context.Context, positives, inverses []*image.Gray, mask *image.Gray) (*pipeline.Result, error)
	Info() map[string]interface{}
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipelines   *pipelineCache
	rateLimiter *RateLimiter
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	started     time.Time
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	TimeoutSec     int
	PipelineConfig pipeline.Config
	RateLimit      RateLimitConfig
}

// RateLimitConfig bounds requests per client. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string                            `json:"status"`
	Version   string                            `json:"version,omitempty"`
	Time      string                            `json:"time"`
	Uptime    string                            `json:"uptime"`
	Memory    common.MemStats                   `json:"memory"`
	Pipelines map[string]map[string]interface{} `json:"pipelines,omitempty"`
}

// DecodeResponse wraps a decode result or an error message.
type DecodeResponse struct {
	Success bool             `json:"success"`
	Result  *pipeline.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// NewServer creates a server and builds its default pipeline.
func NewServer(config Config) (*Server, error) {
	return newServer(config, buildPipeline)
}

func newServer(config Config, factory pipelineFactory) (*Server, error) {
	cache := newPipelineCache(config.PipelineConfig, factory)
	// Fail fast on an invalid pipeline configuration.
	if _, err := cache.Get(config.PipelineConfig.Decode.GrayCode); err != nil {
		return nil, err
	}

	s := &Server{
		pipelines:   cache,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeout:     time.Duration(config.TimeoutSec) * time.Second,
		started:     time.Now(),
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 100
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipelines != nil {
		return s.pipelines.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/decode", s.corsMiddleware(s.rateLimitMiddleware(s.decodeHandler)))
	mux.Handle("/metrics", promhttp.Handler())
	// The upgrade needs the raw ResponseWriter, so no status-capturing wrapper.
	mux.HandleFunc("/ws/capture", s.rateLimitMiddleware(s.captureWebSocketHandler))
}

func (s *Server) uploadLimit() int64 {
	return s.maxUploadMB * 1024 * 1024
}
