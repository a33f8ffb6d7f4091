package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/message"
	"shift_sms_gateway/internal/domain/shift"
	"shift_sms_gateway/internal/domain/sms"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentMessage(providerID string) *message.Message {
	return &message.Message{
		EmployeeID:        1,
		Direction:         message.DirectionOutbound,
		Content:           "hello",
		Status:            message.StatusSent,
		ProviderMessageID: sql.NullString{String: providerID, Valid: true},
		DeliveryStatus:    sql.NullString{String: "queued", Valid: true},
		MessageType:       message.TypeGeneral,
	}
}

func TestHandleStatus_Delivered(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	m := env.messages.seed(sentMessage("SM1"))

	env.gateway.status = &sms.DeliveryStatusUpdate{MessageID: "SM1", Status: sms.StatusDelivered}
	require.NoError(t, env.delivery.HandleStatus(ctx, []byte("payload")))

	got, err := env.messages.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(message.StatusDelivered, got.Status)
	assert.Equal("delivered", got.DeliveryStatus.String)
	assert.True(got.DeliveryTimestamp.Valid)
	assert.True(testNow.Equal(got.DeliveryTimestamp.Time))
}

func TestHandleStatus_TerminalGuard(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	m := env.messages.seed(sentMessage("SM1"))
	deliveredAt := testNow.Add(-time.Minute)

	env.gateway.status = &sms.DeliveryStatusUpdate{MessageID: "SM1", Status: sms.StatusDelivered, Timestamp: deliveredAt}
	require.NoError(t, env.delivery.HandleStatus(ctx, nil))

	// Late callback without a timestamp.
	env.gateway.status = &sms.DeliveryStatusUpdate{MessageID: "SM1", Status: sms.StatusSent}
	require.NoError(t, env.delivery.HandleStatus(ctx, nil))
	got, _ := env.messages.GetByID(ctx, m.ID)
	assert.Equal(message.StatusDelivered, got.Status)

	// Older than the stored receipt.
	env.gateway.status = &sms.DeliveryStatusUpdate{MessageID: "SM1", Status: sms.StatusUndelivered, Timestamp: deliveredAt.Add(-time.Second)}
	require.NoError(t, env.delivery.HandleStatus(ctx, nil))
	got, _ = env.messages.GetByID(ctx, m.ID)
	assert.Equal(message.StatusDelivered, got.Status)

	// Newer terminal receipt wins.
	env.gateway.status = &sms.DeliveryStatusUpdate{MessageID: "SM1", Status: sms.StatusUndelivered, ErrorCode: "30003", Timestamp: deliveredAt.Add(time.Second)}
	require.NoError(t, env.delivery.HandleStatus(ctx, nil))
	got, _ = env.messages.GetByID(ctx, m.ID)
	assert.Equal(message.StatusFailed, got.Status)
	assert.Equal("30003", got.ErrorCode.String)
}

func TestHandleStatus_UnknownMessageAndParseError(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.gateway.status = &sms.DeliveryStatusUpdate{MessageID: "nope", Status: sms.StatusDelivered}
	assert.NoError(t, env.delivery.HandleStatus(context.Background(), nil))

	env.gateway.parseErr = errors.New("bad payload")
	assert.Error(t, env.delivery.HandleStatus(context.Background(), nil))
}

func TestHandleInbound_RepliesAndDeduplicates(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, []*employee.Employee{newEmployee(1, "Ana", "+15550000001")},
		[]*shift.Shift{newShift(10, "ABC123", day(1), 1)})
	ctx := context.Background()
	env.gateway.inbound = &sms.InboundMessage{MessageID: "IN1", From: "(555) 000-0001", Body: "YES ABC123"}

	handled, err := env.delivery.HandleInbound(ctx, nil)
	require.NoError(t, err)
	assert.True(handled)
	sent := env.gateway.sentTo("+15550000001")
	require.Len(t, sent, 1)
	assert.Contains(sent[0].Body, "recorded your interest")

	msgs := env.messages.all()
	require.Len(t, msgs, 1)
	assert.Equal(message.DirectionOutbound, msgs[0].Direction)
	assert.Equal(message.StatusSent, msgs[0].Status)

	handled, err = env.delivery.HandleInbound(ctx, nil)
	require.NoError(t, err)
	assert.False(handled)
	assert.Equal(1, env.gateway.sentCount())
	assert.Equal(1, env.shifts.interestCount())
}

func TestHandleInbound_DedupOutageStillProcesses(t *testing.T) {
	env := newTestEnv(t, []*employee.Employee{newEmployee(1, "Ana", "+15550000001")}, nil)
	env.dedup.err = errors.New("redis down")
	env.gateway.inbound = &sms.InboundMessage{MessageID: "IN1", From: "+15550000001", Body: "HELP"}

	handled, err := env.delivery.HandleInbound(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, helpText, env.gateway.sentTo("+15550000001")[0].Body)
}

func TestHandleInbound_UnknownSender(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.gateway.inbound = &sms.InboundMessage{MessageID: "IN1", From: "+15557777777", Body: "YES"}

	handled, err := env.delivery.HandleInbound(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Zero(t, env.gateway.sentCount())
}

func TestHandleInbound_StopReply(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv(t, []*employee.Employee{newEmployee(1, "Ana", "+15550000001")}, nil)
	env.gateway.inbound = &sms.InboundMessage{MessageID: "IN1", From: "+15550000001", Body: "STOP"}
	_, err := env.delivery.HandleInbound(ctx, nil)
	require.NoError(t, err)
	e, _ := env.employees.GetByID(ctx, 1)
	assert.False(t, e.SmsOptIn)
	assert.Equal(t, replyStopped, env.gateway.sentTo("+15550000001")[0].Body)

	env = newTestEnv(t, []*employee.Employee{newEmployee(1, "Ana", "+15550000001")}, nil)
	env.gateway.provider = sms.ProviderTwilio
	env.gateway.inbound = &sms.InboundMessage{MessageID: "IN2", From: "+15550000001", Body: "STOP"}
	_, err = env.delivery.HandleInbound(ctx, nil)
	require.NoError(t, err)
	e, _ = env.employees.GetByID(ctx, 1)
	assert.False(t, e.SmsOptIn)
	assert.Zero(t, env.gateway.sentCount())
}

func TestPollPendingStatuses(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	a := env.messages.seed(sentMessage("SM1"))
	env.messages.seed(sentMessage("SM2"))
	env.gateway.polled["SM1"] = sms.StatusDelivered
	env.gateway.polled["SM2"] = sms.StatusQueued

	updated, err := env.delivery.PollPendingStatuses(ctx, 10)
	require.NoError(t, err)
	assert.Equal(1, updated)

	got, _ := env.messages.GetByID(ctx, a.ID)
	assert.Equal(message.StatusDelivered, got.Status)
}
