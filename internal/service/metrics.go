package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счётчики инцидентов безопасности; сами инциденты клиенту не видны
// (ответ неотличим от обычного невалидного токена), поэтому метрики —
// единственный оперативный сигнал наружу вместе с логами.
var (
	reuseDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "helpdesk_auth",
		Name:      "refresh_reuse_detected_total",
		Help:      "Number of refresh token reuse incidents (all user sessions revoked).",
	})

	forcedInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "helpdesk_auth",
		Name:      "forced_invalidations_total",
		Help:      "Number of administrative force-invalidate operations.",
	})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helpdesk_auth",
		Name:      "rate_limited_total",
		Help:      "Number of attempts rejected by the rate limiter.",
	}, []string{"bucket"})
)
