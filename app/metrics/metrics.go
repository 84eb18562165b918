package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	authRegistrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Total number of user registrations",
		},
	)

	authLoginsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of successful logins",
		},
	)

	authLoginsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_logins_failed_total",
			Help: "Total number of failed login attempts",
		},
	)

	authVerificationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_email_verifications_total",
			Help: "Total number of confirmed email verifications",
		},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, endpoint, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, statusStr).Observe(duration.Seconds())
}

func RecordRegistration() { authRegistrationsTotal.Inc() }
func RecordLogin()        { authLoginsTotal.Inc() }
func RecordLoginFailure() { authLoginsFailed.Inc() }
func RecordVerification() { authVerificationsTotal.Inc() }

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
