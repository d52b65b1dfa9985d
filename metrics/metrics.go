// Package metrics exposes Prometheus instrumentation for the grant engine
// and its HTTP surface. It lives in a standalone package to avoid import
// cycles between the engine and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registerErr  error

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	// Grant metrics
	grantsTotal   *prometheus.CounterVec
	grantDuration *prometheus.HistogramVec
)

// Config groups the dependencies needed to expose /metrics.
type Config struct {
	Registry prometheus.Registerer
	// Pool, when set, adds connection pool gauges for the backing database.
	Pool func() *pgxpool.Pool
}

// Register initialises the HTTP and grant metrics and, optionally, a
// collector for the database pool. It returns the handler for /metrics.
func Register(cfg Config) (http.Handler, error) {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "In-flight requests by method and path",
		}, []string{"method", "path"})

		grantsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_grants_total",
			Help: "Token grant attempts by grant type and result",
		}, []string{"grant_type", "result"}) // result: ok or the OAuth error code

		grantDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oauth_grant_duration_seconds",
			Help:    "Token grant processing time",
			Buckets: prometheus.DefBuckets,
		}, []string{"grant_type"})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			grantsTotal, grantDuration,
		} {
			if err := registerCollector(registry, c); err != nil {
				registerErr = err
				return
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}

	if cfg.Pool != nil {
		if err := registerCollector(registry, newPoolCollector(cfg.Pool)); err != nil {
			return nil, err
		}
	}

	// The global gatherer is used because the metrics register there.
	return promhttp.Handler(), nil
}

// RecordGrant records the outcome of one token grant. errorCode is empty
// on success. The signature matches what the engine expects from its
// metrics hook.
func RecordGrant(grantType, errorCode string, d time.Duration) {
	if grantType == "" {
		grantType = "unknown"
	}
	result := errorCode
	if result == "" {
		result = "ok"
	}
	if grantsTotal != nil {
		grantsTotal.WithLabelValues(grantType, result).Inc()
	}
	if grantDuration != nil {
		grantDuration.WithLabelValues(grantType).Observe(d.Seconds())
	}
}

// WithHTTP instruments requests with counters, latency and inflight gauges.
func WithHTTP(next http.Handler) http.Handler {
	if next == nil {
		return nil
	}
	if httpRequestsTotal == nil || httpRequestDuration == nil || httpInflight == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		pathLabel := normalizePath(r.URL.Path)

		httpInflight.WithLabelValues(method, pathLabel).Inc()
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			httpInflight.WithLabelValues(method, pathLabel).Dec()
			httpRequestDuration.WithLabelValues(method, pathLabel).Observe(time.Since(start).Seconds())

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(method, pathLabel, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// poolCollector exposes gauges for the pgx connection pool.
type poolCollector struct {
	pool func() *pgxpool.Pool

	acquiredDesc *prometheus.Desc
	idleDesc     *prometheus.Desc
	totalDesc    *prometheus.Desc
}

func newPoolCollector(pool func() *pgxpool.Pool) *poolCollector {
	return &poolCollector{
		pool:         pool,
		acquiredDesc: prometheus.NewDesc("pg_pool_acquired", "Acquired database connections", nil, nil),
		idleDesc:     prometheus.NewDesc("pg_pool_idle", "Idle database connections", nil, nil),
		totalDesc:    prometheus.NewDesc("pg_pool_total", "Total database connections", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.idleDesc
	ch <- c.totalDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	pool := c.pool()
	if pool == nil {
		return
	}
	stat := pool.Stat()
	if stat == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
}

// normalizePath keeps label cardinality bounded: anything that looks like
// an id, token or numeric segment collapses to :param.
func normalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	if clean == "" {
		return "/"
	}
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}

	segments := strings.Split(clean, "/")
	var out []string
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if _, err := strconv.Atoi(seg); err == nil {
		return true
	}
	hyphens := strings.Count(seg, "-")
	if hyphens >= 4 && len(seg) >= 32 {
		return true
	}
	alnum := true
	for _, r := range seg {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			alnum = false
			break
		}
	}
	return alnum && len(seg) >= 24
}
