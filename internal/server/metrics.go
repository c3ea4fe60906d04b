package server

import (
	"time"

	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decode request sources.
const (
	sourceHTTP      = "http"
	sourceWebSocket = "websocket"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slscan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slscan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Decode metrics
	decodeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slscan_decode_requests_total",
			Help: "Total number of decode requests",
		},
		[]string{"source", "status"},
	)

	decodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slscan_decode_duration_seconds",
			Help:    "Decode and fringe extraction duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	decodedPixels = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slscan_decoded_pixels",
			Help:    "Number of pixels assigned a codeword per capture",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"source"},
	)

	fringePoints = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slscan_fringe_points",
			Help:    "Number of fringe points extracted per capture",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8),
		},
		[]string{"source"},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slscan_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // minute, hour, requests, data
	)

	// Upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slscan_upload_size_bytes",
			Help:    "Size of uploaded pattern images in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slscan_websocket_active_connections",
			Help: "Number of active WebSocket capture sessions",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slscan_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // sent, received
	)
)

// recordDecode records a successful decode.
func recordDecode(source string, res *pipeline.Result, d time.Duration) {
	decodeRequestsTotal.WithLabelValues(source, "success").Inc()
	decodeDuration.WithLabelValues(source).Observe(d.Seconds())
	decodedPixels.WithLabelValues(source).Observe(float64(res.Decode.DecodedPixels))
	if res.Fringe != nil {
		fringePoints.WithLabelValues(source).Observe(float64(res.Fringe.Points))
	}
}
