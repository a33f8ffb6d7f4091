package app

import (
	"context"
	"testing"
	"time"

	"shift_sms_gateway/internal/domain/audit"
	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/message"
	"shift_sms_gateway/internal/domain/settings"
	"shift_sms_gateway/internal/domain/shift"
	"shift_sms_gateway/internal/domain/sms"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func broadcastFixture(t *testing.T) *testEnv {
	inArea := newEmployee(1, "Ana", "+15550000001", 1)
	otherArea := newEmployee(2, "Ben", "+15550000002", 2)
	optedOut := newEmployee(3, "Cal", "+15550000003", 1)
	optedOut.SmsOptIn = false
	cook := newEmployee(4, "Dee", "+15550000004")
	cook.Position = "Cook"
	anywhere := newEmployee(5, "Eve", "+15550000005")

	return newTestEnv(t,
		[]*employee.Employee{inArea, otherArea, optedOut, cook, anywhere},
		[]*shift.Shift{newShift(10, "ABC123", day(1), 1)})
}

func TestNotifyNewShift(t *testing.T) {
	assert := assert.New(t)
	env := broadcastFixture(t)

	summary, err := env.notifications.NotifyNewShift(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(SendSummary{Sent: 2}, summary)
	assert.Equal(2, env.limiter.calls)

	sent := env.gateway.sentTo("+15550000001")
	require.Len(t, sent, 1)
	assert.Contains(sent[0].Body, "Tomorrow")
	assert.Contains(sent[0].Body, "YES ABC123")
	assert.Equal("https://hooks.example.com/status", sent[0].Callback)
	assert.False(sent[0].Retry)
	assert.Len(env.gateway.sentTo("+15550000005"), 1)

	msgs := env.messages.all()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(message.StatusSent, m.Status)
		assert.Equal(message.TypeShiftNotification, m.MessageType)
		assert.Equal(int64(10), m.RelatedShiftID.Int64)
		assert.True(m.ProviderMessageID.Valid)
		assert.Equal("ringcentral", m.SmsProvider.String)
		assert.NotEmpty(m.ThreadID)
	}
	assert.Equal([]string{audit.ActionSmsSent, audit.ActionSmsSent}, env.audit.actions())
}

func TestNotifyNewShift_DisabledOrQuiet(t *testing.T) {
	ctx := context.Background()

	env := broadcastFixture(t)
	env.settings.values[settings.KeyNewShiftNotifications] = "false"
	summary, err := env.notifications.NotifyNewShift(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)

	env = broadcastFixture(t)
	env.settings.values[settings.KeyQuietHoursEnabled] = "true"
	env.settings.values[settings.KeyQuietHoursStart] = "11:00"
	env.settings.values[settings.KeyQuietHoursEnd] = "13:00"
	summary, err = env.notifications.NotifyNewShift(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Zero(t, env.gateway.sentCount())
}

func TestNotifyNewShift_RecordsFailures(t *testing.T) {
	assert := assert.New(t)
	env := broadcastFixture(t)
	env.gateway.failFor["+15550000001"] = sms.Failed("21614", "not a mobile number")

	summary, err := env.notifications.NotifyNewShift(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(SendSummary{Sent: 1, Failed: 1}, summary)

	var failed *message.Message
	for _, m := range env.messages.all() {
		if m.Status == message.StatusFailed {
			failed = m
		}
	}
	require.NotNil(t, failed)
	assert.Equal("21614", failed.ErrorCode.String)
	assert.Contains(env.audit.actions(), audit.ActionSmsFailed)
}

func TestNotifyNewShift_LimiterCancelled(t *testing.T) {
	env := broadcastFixture(t)
	env.limiter.err = context.Canceled
	_, err := env.notifications.NotifyNewShift(context.Background(), 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, env.gateway.sentCount())
}

func TestNotifyNewShift_SkipsUnavailableShift(t *testing.T) {
	env := newTestEnv(t, []*employee.Employee{newEmployee(1, "Ana", "+15550000001")},
		[]*shift.Shift{claimed(newShift(10, "ABC123", day(1), 1), 1)})
	summary, err := env.notifications.NotifyNewShift(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
}

func TestSendAssignmentConfirmation(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, []*employee.Employee{newEmployee(1, "Ana", "+15550000001")},
		[]*shift.Shift{claimed(newShift(10, "ABC123", day(1), 1), 1), newShift(11, "OPEN11", day(1), 1)})
	ctx := context.Background()

	summary, err := env.notifications.SendAssignmentConfirmation(ctx, 10)
	require.NoError(t, err)
	assert.Equal(1, summary.Sent)
	sent := env.gateway.sentTo("+15550000001")
	require.Len(t, sent, 1)
	assert.True(sent[0].Retry)
	assert.Contains(sent[0].Body, "Hi Ana")

	_, err = env.notifications.SendAssignmentConfirmation(ctx, 11)
	assert.ErrorIs(err, ErrShiftNotAssigned)
}

func TestSendShiftReminder_UrgentIgnoresQuietHours(t *testing.T) {
	env := newTestEnv(t, []*employee.Employee{newEmployee(1, "Ana", "+15550000001")},
		[]*shift.Shift{claimed(newShift(10, "ABC123", day(0), 1), 1)})
	env.settings.values[settings.KeyQuietHoursEnabled] = "true"
	env.settings.values[settings.KeyQuietHoursStart] = "11:00"
	env.settings.values[settings.KeyQuietHoursEnd] = "13:00"
	ctx := context.Background()

	summary, err := env.notifications.SendShiftReminder(ctx, 10, false)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)

	summary, err = env.notifications.SendShiftReminder(ctx, 10, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Contains(t, env.gateway.sentTo("+15550000001")[0].Body, "Reminder: your shift is Today")
}

func TestNotifyShiftFilled(t *testing.T) {
	env := newTestEnv(t,
		[]*employee.Employee{newEmployee(1, "Ana", "+15550000001"), newEmployee(2, "Ben", "+15550000002")},
		[]*shift.Shift{claimed(newShift(10, "ABC123", day(1), 1), 1)})
	ctx := context.Background()
	require.NoError(t, env.shifts.CreateInterest(ctx, &shift.Interest{EmployeeID: 1, ShiftID: 10}))
	require.NoError(t, env.shifts.CreateInterest(ctx, &shift.Interest{EmployeeID: 2, ShiftID: 10}))

	summary, err := env.notifications.NotifyShiftFilled(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, SendSummary{Sent: 1}, summary)
	assert.Empty(t, env.gateway.sentTo("+15550000001"))
	assert.Contains(t, env.gateway.sentTo("+15550000002")[0].Body, "has been filled")
}

func TestReprocessReminders_SendsOnce(t *testing.T) {
	env := newTestEnv(t, []*employee.Employee{newEmployee(1, "Ana", "+15550000001")},
		[]*shift.Shift{claimed(newShift(10, "ABC123", day(1), 1), 1), claimed(newShift(11, "LATER1", day(5), 1), 1)})
	ctx := context.Background()

	summary, err := env.notifications.ReprocessReminders(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, SendSummary{Sent: 1}, summary)

	summary, err = env.notifications.ReprocessReminders(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Len(t, env.gateway.sentTo("+15550000001"), 1)
}

func TestReprocessReminders_SkipsStartedAndLaterShifts(t *testing.T) {
	started := claimed(newShift(10, "EARLY1", day(0), 1), 1)
	started.StartTime, started.EndTime = "08:00", "11:00"
	upcoming := claimed(newShift(11, "LATE01", day(0), 1), 1)
	upcoming.StartTime, upcoming.EndTime = "18:00", "22:00"
	beyondWindow := claimed(newShift(12, "NEXT01", day(1), 1), 1)
	beyondWindow.StartTime, beyondWindow.EndTime = "20:00", "23:00"

	env := newTestEnv(t, []*employee.Employee{newEmployee(1, "Ana", "+15550000001")},
		[]*shift.Shift{started, upcoming, beyondWindow})

	summary, err := env.notifications.ReprocessReminders(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, SendSummary{Sent: 1}, summary)

	sent := env.gateway.sentTo("+15550000001")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "6:00 PM")
}

func TestSendOneAndBulk(t *testing.T) {
	assert := assert.New(t)
	optedOut := newEmployee(2, "Ben", "+15550000002")
	optedOut.SmsOptIn = false
	env := newTestEnv(t, []*employee.Employee{newEmployee(1, "Ana", "+15550000001"), optedOut}, nil)
	ctx := context.Background()

	msg, err := env.notifications.SendOne(ctx, 1, "Parking lot closed today")
	require.NoError(t, err)
	assert.Equal(message.StatusSent, msg.Status)
	assert.Equal("Parking lot closed today", env.gateway.sentTo("+15550000001")[0].Body)

	_, err = env.notifications.SendOne(ctx, 2, "hi")
	assert.ErrorIs(err, ErrEmployeeUnreachable)
	_, err = env.notifications.SendOne(ctx, 1, "  ")
	assert.ErrorIs(err, ErrEmptyMessage)

	summary, err := env.notifications.SendBulk(ctx, nil, "All hands at 3")
	require.NoError(t, err)
	assert.Equal(SendSummary{Sent: 1}, summary)

	summary, err = env.notifications.SendBulk(ctx, []int64{1, 99}, "Targeted")
	require.NoError(t, err)
	assert.Equal(SendSummary{Sent: 1, Failed: 1}, summary)
}

func TestTestCredentials(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.gateway.failFor["+15559999999"] = sms.Failed("20003", "authentication failed")

	result := env.notifications.TestCredentials(context.Background(), "+15559999999")
	assert.False(t, result.Success)
	assert.Empty(t, env.messages.all())
	assert.Equal(t, []string{audit.ActionSmsFailed}, env.audit.actions())
}
