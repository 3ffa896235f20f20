// Package metrics defines and registers all custom Prometheus metrics for the
// entitlement service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default registry on package init via promauto
// and exposed on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "entitlement"

// ── HTTP metrics ──────────────────────────────────────────────────────────────

// HTTPRequestDuration measures request latency.
// Labels:
//   - method: HTTP method
//   - route: the registered route pattern (e.g. "/check_subscription")
//   - status: response status code
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by route and status.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// RateLimitedTotal counts requests rejected with 429.
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter.",
	},
	[]string{"route"},
)

// ── License metrics ───────────────────────────────────────────────────────────

// ActivationsTotal counts key redemptions and verifications.
// Labels:
//   - flow: "redeem" (literal activation key) or "verify" (client key)
//   - result: "ok" or a short failure reason (e.g. "device_mismatch", "device_limit")
var ActivationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activations_total",
		Help:      "Total number of activation attempts by flow and result.",
	},
	[]string{"flow", "result"},
)

// PurchasesCreatedTotal counts pending purchases, by plan.
var PurchasesCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purchases_created_total",
		Help:      "Total number of pending purchases created, by plan.",
	},
	[]string{"plan"},
)

// WebhooksTotal counts gateway notifications.
// Labels:
//   - gateway: "quickpay" or "stripe"
//   - result: "ok", "ignored" or a short failure reason
var WebhooksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_total",
		Help:      "Total number of payment gateway notifications by result.",
	},
	[]string{"gateway", "result"},
)

// EntitlementChecksTotal counts check_subscription answers by result ("valid", "denied").
var EntitlementChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entitlement_checks_total",
		Help:      "Total number of subscription checks by result.",
	},
	[]string{"result"},
)

// SubscriptionsExpiredTotal counts rows deactivated by the expiry sweep.
var SubscriptionsExpiredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscriptions_expired_total",
		Help:      "Total number of subscriptions deactivated by the expiry sweep.",
	},
)

// ── Mail metrics ──────────────────────────────────────────────────────────────

// MailQueueDepth tracks the number of mails waiting in each dispatcher worker.
var MailQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mail_queue_depth",
		Help:      "Current number of activation mails pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// MailDeliveriesTotal counts activation mails by result: "sent", "failed", "dropped".
var MailDeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mail_deliveries_total",
		Help:      "Total number of activation mails by delivery result.",
	},
	[]string{"result"},
)

// MailSendDuration measures one SMTP send from dequeue to completion.
var MailSendDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "mail_send_duration_seconds",
		Help:      "Duration of activation mail sends.",
		Buckets:   prometheus.DefBuckets,
	},
)
