package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_backend_requests_total",
			Help: "Backend API requests sent by the portal, by method and status class",
		},
		[]string{"method", "status"},
	)

	backendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_backend_request_duration_seconds",
			Help:    "Backend API request duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	refreshAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_token_refresh_total",
			Help: "Access token refresh attempts, by result",
		},
		[]string{"result"},
	)

	forcedLogouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_forced_logouts_total",
			Help: "Sessions cleared because the access token could not be refreshed",
		},
	)
)

// statusClass buckets a status code as "2xx", "4xx" and so on; 0 means the
// request never got a response.
func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return string(rune('0'+status/100)) + "xx"
}
