package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSend(t *testing.T) {
	assert := assert.New(t)

	before := testutil.ToFloat64(smsSent.WithLabelValues("twilio", "general"))
	RecordSend("twilio", "general", true, "")
	assert.Equal(before+1, testutil.ToFloat64(smsSent.WithLabelValues("twilio", "general")))

	RecordSend("", "bulk", false, "NO_PROVIDER")
	assert.Equal(float64(1), testutil.ToFloat64(smsFailed.WithLabelValues("none", "bulk", "NO_PROVIDER")))
}

func TestRecordCommandAndWebhook(t *testing.T) {
	RecordCommand("stop")
	RecordWebhook("inbound", "processed")
	assert.Equal(t, float64(1), testutil.ToFloat64(inboundCommands.WithLabelValues("stop")))
	assert.Equal(t, float64(1), testutil.ToFloat64(webhookEvents.WithLabelValues("inbound", "processed")))
}
