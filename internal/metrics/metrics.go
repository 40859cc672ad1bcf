package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so handlers built in tests do not collide
// on the global one.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal     *prometheus.CounterVec
	ResponseTimeHistogram *prometheus.HistogramVec
	ReferralRedemptions   *prometheus.CounterVec
	ReferrerRewards       *prometheus.CounterVec
	BillingEvents         *prometheus.CounterVec
	RedeemRateLimited     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		ResponseTimeHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_time_seconds",
				Help:    "Histogram of response times",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ReferralRedemptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierly_referral_redemptions_total",
				Help: "Referral code redemptions by result",
			},
			[]string{"result"},
		),
		ReferrerRewards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierly_referrer_rewards_total",
				Help: "Referrer reward grants by resulting tier",
			},
			[]string{"tier"},
		),
		BillingEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierly_billing_events_total",
				Help: "Billing webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		RedeemRateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tierly_redeem_rate_limited_total",
				Help: "Redemption attempts rejected by the attempt limiter",
			},
		),
	}
}

func (metrics *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{Registry: metrics.registry})
}
