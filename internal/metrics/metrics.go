package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contentmirror/contentmirror/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	errorsTotal            *prometheus.CounterVec
	profilingActive        prometheus.Gauge

	// engine metrics
	identityComputedTotal   prometheus.Counter
	identityFallbackTotal   prometheus.Counter
	conditionalOutcomeTotal *prometheus.CounterVec
	catalogEntries          prometheus.Gauge
	catalogOpsTotal         *prometheus.CounterVec
	storageErrorsTotal      prometheus.Counter
	storageBackendInfo      *prometheus.GaugeVec
	profileInfo             *prometheus.GaugeVec
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		identityComputedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_identity_computed_total",
			Help: "Total content identities computed",
		}),
		identityFallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_identity_fallback_total",
			Help: "Total identity computations that degraded to string coercion",
		}),
		conditionalOutcomeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_conditional_outcomes_total",
			Help: "Conditional request outcomes by status (304, 412, 428)",
		}, []string{"status"}),
		catalogEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mirror_catalog_entries",
			Help: "Current number of catalog entries",
		}),
		catalogOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_catalog_operations_total",
			Help: "Catalog mutations by operation (upsert, remove, purge)",
		}, []string{"op"}),
		storageErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_storage_errors_total",
			Help: "Total catalog persistence failures",
		}),
		storageBackendInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mirror_storage_backend_info",
			Help: "Active catalog storage backend (label carries value, gauge is always 1)",
		}, []string{"backend"}),
		profileInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mirror_profile_info",
			Help: "Active exclusion profile (label carries value, gauge is always 1)",
		}, []string{"profile"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.errorsTotal,
		m.profilingActive,
		m.identityComputedTotal,
		m.identityFallbackTotal,
		m.conditionalOutcomeTotal,
		m.catalogEntries,
		m.catalogOpsTotal,
		m.storageErrorsTotal,
		m.storageBackendInfo,
		m.profileInfo,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncIdentityComputed() {
	m.identityComputedTotal.Inc()
}

func (m *ServerMetrics) IncIdentityFallback() {
	m.identityFallbackTotal.Inc()
}

func (m *ServerMetrics) IncConditionalOutcome(status int) {
	m.conditionalOutcomeTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *ServerMetrics) SetCatalogEntries(n int) {
	m.catalogEntries.Set(float64(n))
}

func (m *ServerMetrics) IncCatalogOp(op string) {
	m.catalogOpsTotal.WithLabelValues(op).Inc()
}

func (m *ServerMetrics) IncStorageError() {
	m.storageErrorsTotal.Inc()
}

func (m *ServerMetrics) SetStorageBackend(backend string) {
	m.storageBackendInfo.Reset() // clear previous label value
	m.storageBackendInfo.WithLabelValues(backend).Set(1)
}

func (m *ServerMetrics) SetProfile(name string) {
	m.profileInfo.Reset()
	m.profileInfo.WithLabelValues(name).Set(1)
}
