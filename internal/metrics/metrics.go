// internal/metrics/metrics.go
// Prometheus 指標

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_messages_sent_total",
			Help: "Total messages delivered successfully",
		},
	)

	MessagesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_messages_failed_total",
			Help: "Total messages permanently failed",
		},
	)

	MessagesRetried = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_messages_retried_total",
			Help: "Total delivery attempts returned to pending for retry",
		},
	)

	AbandonmentsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_abandonments_detected_total",
			Help: "Total carts newly tracked as abandoned",
		},
	)

	EmailsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_emails_scheduled_total",
			Help: "Total recovery emails scheduled by automation rules",
		},
	)

	CartsRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_carts_recovered_total",
			Help: "Total abandoned carts marked as recovered",
		},
	)
)

// Init 註冊所有指標
func Init() {
	prometheus.MustRegister(
		MessagesSent,
		MessagesFailed,
		MessagesRetried,
		AbandonmentsDetected,
		EmailsScheduled,
		CartsRecovered,
	)
}
