package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Passport business counters, mirrored on the credential lifecycle.
var (
	loginSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passport_login_success_total",
		Help: "Number of successful logins.",
	})
	loginFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passport_login_failure_total",
		Help: "Number of failed logins.",
	})
	sendCodeFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passport_send_code_failure_total",
		Help: "Number of failed verification code sends.",
	})
	refreshFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passport_refresh_failure_total",
		Help: "Number of failed token refresh attempts.",
	})
	logoutSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passport_logout_success_total",
		Help: "Number of successful logouts.",
	})
	rateLimitExceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passport_rate_limit_exceeded_total",
		Help: "Number of requests blocked by rate limit.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginSuccess, loginFailure, sendCodeFailure,
		refreshFailure, logoutSuccess, rateLimitExceeded,
	)
}

func IncLoginSuccess()      { loginSuccess.Inc() }
func IncLoginFailure()      { loginFailure.Inc() }
func IncSendCodeFailure()   { sendCodeFailure.Inc() }
func IncRefreshFailure()    { refreshFailure.Inc() }
func IncLogoutSuccess()     { logoutSuccess.Inc() }
func IncRateLimitExceeded() { rateLimitExceeded.Inc() }

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CanonicalPath collapses per-identity path segments so the path label stays
// low-cardinality.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	// /passport/{guid}/refresh-token
	if len(parts) == 4 && parts[1] == "passport" && parts[3] == "refresh-token" && parts[2] != "" {
		return "/passport/:guid/refresh-token"
	}
	// /admin/users/{guid}/ban|unban
	if len(parts) == 5 && parts[1] == "admin" && parts[2] == "users" && parts[3] != "" {
		return "/admin/users/:guid/" + parts[4]
	}
	return path
}

// Instrument wraps a handler with RPS, latency and in-flight accounting.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for the metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
