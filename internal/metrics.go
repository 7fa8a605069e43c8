package internal

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each server gets its own
// registry so several can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploads         prometheus.Counter
	uploadBytes     prometheus.Counter
	rejections      *prometheus.CounterVec
	downloads       prometheus.Counter
	deletes         prometheus.Counter
	payloadMissing  prometheus.Counter
	activeConns     prometheus.Gauge
	chatMessages    prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sharehub_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sharehub_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		uploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "sharehub_uploads_total",
			Help: "Files accepted by the upload endpoint.",
		}),
		uploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "sharehub_upload_bytes_total",
			Help: "Payload bytes accepted by the upload endpoint.",
		}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sharehub_upload_rejections_total",
			Help: "Files rejected by the upload endpoint, by reason code.",
		}, []string{"code"}),
		downloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "sharehub_downloads_total",
			Help: "Successful downloads.",
		}),
		deletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "sharehub_deletes_total",
			Help: "Files deleted through the API.",
		}),
		payloadMissing: factory.NewCounter(prometheus.CounterOpts{
			Name: "sharehub_payload_missing_total",
			Help: "Registered files whose payload could not be found.",
		}),
		activeConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sharehub_ws_connections",
			Help: "Open websocket connections.",
		}),
		chatMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "sharehub_chat_messages_total",
			Help: "Chat messages appended to room history.",
		}),
	}
}

// RegisterFileGauge exposes the registry size as a gauge.
func (m *Metrics) RegisterFileGauge(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sharehub_files",
		Help: "Files currently registered.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) IncUpload(size int64) {
	m.uploads.Inc()
	m.uploadBytes.Add(float64(size))
}

func (m *Metrics) IncRejection(code string) {
	m.rejections.WithLabelValues(code).Inc()
}

func (m *Metrics) IncDownload() {
	m.downloads.Inc()
}

func (m *Metrics) IncDelete() {
	m.deletes.Inc()
}

func (m *Metrics) IncPayloadMissing() {
	m.payloadMissing.Inc()
}

func (m *Metrics) IncChatMessage() {
	m.chatMessages.Inc()
}

func (m *Metrics) IncConn() {
	m.activeConns.Inc()
}

func (m *Metrics) DecConn() {
	m.activeConns.Dec()
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests and observes their latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newStatusRecorder(w)
		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds file ids into {id} to keep label cardinality bounded.
func normalizePath(path string) string {
	for _, prefix := range []string{"/api/file/", "/api/download/"} {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return prefix + "{id}" + rest[i:]
		}
		return prefix + "{id}"
	}
	if strings.HasPrefix(path, "/api") {
		return path
	}
	switch path {
	case "/", "/metrics":
		return path
	}
	return "/static"
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the original writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack passes through to the wrapped writer so websocket upgrades work
// behind the middleware chain.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
