package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	smsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_sent_total",
		Help: "Outbound SMS accepted by the carrier.",
	}, []string{"provider", "type"})

	smsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_failed_total",
		Help: "Outbound SMS rejected by the carrier or never sent.",
	}, []string{"provider", "type", "error_code"})

	inboundCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_inbound_commands_total",
		Help: "Inbound SMS by parsed command.",
	}, []string{"command"})

	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_webhook_events_total",
		Help: "Carrier webhook requests by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// RecordSend counts one outbound send attempt.
func RecordSend(provider, messageType string, success bool, errorCode string) {
	if provider == "" {
		provider = "none"
	}
	if success {
		smsSent.WithLabelValues(provider, messageType).Inc()
		return
	}
	smsFailed.WithLabelValues(provider, messageType, errorCode).Inc()
}

func RecordCommand(command string) {
	inboundCommands.WithLabelValues(command).Inc()
}

func RecordWebhook(kind, outcome string) {
	webhookEvents.WithLabelValues(kind, outcome).Inc()
}
