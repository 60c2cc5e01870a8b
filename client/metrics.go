package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uniboard_client_requests_total",
		Help: "API requests issued by the client, by method and outcome.",
	}, []string{"method", "outcome"})

	tokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uniboard_client_token_refresh_total",
		Help: "Access token refresh attempts, by result.",
	}, []string{"result"})

	sessionExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uniboard_client_session_expired_total",
		Help: "Times the stored session was cleared after an unrecoverable 401.",
	})
)

func outcomeLabel(err *APIError) string {
	if err == nil {
		return "ok"
	}
	return string(err.Kind)
}
