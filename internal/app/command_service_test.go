package app

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"shift_sms_gateway/internal/domain/audit"
	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/message"
	"shift_sms_gateway/internal/domain/shift"
	"shift_sms_gateway/internal/domain/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandFixture(t *testing.T, shifts ...*shift.Shift) (*testEnv, *employee.Employee) {
	e := newEmployee(1, "Ana", "+15550000001", 1)
	env := newTestEnv(t, []*employee.Employee{e}, shifts)
	return env, e
}

func process(t *testing.T, env *testEnv, body string) string {
	t.Helper()
	e, err := env.employees.GetByID(context.Background(), 1)
	require.NoError(t, err)
	_, reply := env.commands.Process(context.Background(), e, body)
	return reply
}

func TestCommand_InterestWithCode(t *testing.T) {
	assert := assert.New(t)
	env, _ := commandFixture(t, newShift(10, "ABC123", day(1), 1))

	reply := process(t, env, "YES ABC123")
	assert.Contains(reply, "Tomorrow")
	assert.Contains(reply, "9:00 AM - 5:00 PM")
	assert.Contains(reply, "Main Campus")
	assert.Equal(1, env.shifts.interestCount())
	assert.Equal([]string{audit.ActionShiftInterestViaSMS}, env.audit.actions())

	reply = process(t, env, "yes abc123")
	assert.Contains(reply, "already expressed interest")
	assert.Equal(1, env.shifts.interestCount())
}

func TestCommand_RepliesUseActiveTemplates(t *testing.T) {
	assert := assert.New(t)
	env, _ := commandFixture(t, newShift(10, "ABC123", day(1), 1))
	ctx := context.Background()
	require.NoError(t, env.templates.Create(ctx, &template.Template{
		Category: template.CategoryShiftInterest, Content: "Got it {{firstName}}, {{date}} at {{location}} is noted.", IsActive: true,
	}))
	require.NoError(t, env.templates.Create(ctx, &template.Template{
		Category: template.CategoryWelcome, Content: "Welcome back {{firstName}}!", IsActive: true,
	}))

	assert.Equal("Got it Ana, Tomorrow at Main Campus is noted.", process(t, env, "YES ABC123"))
	assert.Equal(replyStopped, process(t, env, "STOP"))
	assert.Equal("Welcome back Ana!", process(t, env, "START"))
}

func TestCommand_InterestUnknownCode(t *testing.T) {
	env, _ := commandFixture(t, newShift(10, "ABC123", day(1), 1))
	reply := process(t, env, "YES ZZZ999")
	assert.Contains(t, reply, "couldn't find shift ZZZ999")
	assert.Zero(t, env.shifts.interestCount())
}

func TestCommand_InterestFallsBackToLastOffer(t *testing.T) {
	env, _ := commandFixture(t, newShift(10, "ABC123", day(1), 1), newShift(11, "DEF456", day(2), 1))
	env.messages.seed(&message.Message{
		EmployeeID:     1,
		Direction:      message.DirectionOutbound,
		Status:         message.StatusSent,
		MessageType:    message.TypeShiftNotification,
		RelatedShiftID: sql.NullInt64{Int64: 11, Valid: true},
	})

	reply := process(t, env, "Yes please")
	assert.Contains(t, reply, "Wed, Mar 12")
	interests, err := env.shifts.ListEmployeeInterests(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, interests, 1)
	assert.Equal(t, int64(11), interests[0].ShiftID)
}

func TestCommand_InterestWithoutReference(t *testing.T) {
	env, _ := commandFixture(t)
	assert.Equal(t, replyNoShiftRef, process(t, env, "YES"))
}

func TestCommand_InterestInTakenShift(t *testing.T) {
	env, _ := commandFixture(t, claimed(newShift(10, "ABC123", day(1), 1), 2))
	reply := process(t, env, "YES ABC123")
	assert.Contains(t, reply, "no longer available")
	assert.Zero(t, env.shifts.interestCount())
}

func TestCommand_Decline(t *testing.T) {
	env, _ := commandFixture(t, newShift(10, "ABC123", day(1), 1))
	env.messages.seed(&message.Message{EmployeeID: 1, Direction: message.DirectionOutbound, MessageType: message.TypeShiftNotification,
		RelatedShiftID: sql.NullInt64{Int64: 10, Valid: true}})

	assert.Equal(t, replyDeclined, process(t, env, "no thanks"))
	assert.Equal(t, []string{audit.ActionShiftDeclineViaSMS}, env.audit.actions())
}

func TestCommand_StopAndStartAreIdempotent(t *testing.T) {
	assert := assert.New(t)
	env, _ := commandFixture(t)
	ctx := context.Background()

	assert.Equal(replyStopped, process(t, env, "STOP"))
	e, _ := env.employees.GetByID(ctx, 1)
	assert.False(e.SmsOptIn)

	assert.Equal(replyStopped, process(t, env, "stop"))
	e, _ = env.employees.GetByID(ctx, 1)
	assert.False(e.SmsOptIn)

	assert.Equal(replyStarted, process(t, env, "START"))
	e, _ = env.employees.GetByID(ctx, 1)
	assert.True(e.SmsOptIn)

	assert.Equal([]string{audit.ActionSmsOptOut, audit.ActionSmsOptOut, audit.ActionSmsOptIn}, env.audit.actions())
}

func TestCommand_CancelWithdrawsPendingInterestFirst(t *testing.T) {
	assert := assert.New(t)
	mine := claimed(newShift(20, "MINE01", day(2), 1), 1)
	env, _ := commandFixture(t, newShift(10, "ABC123", day(1), 1), mine)

	process(t, env, "YES ABC123")
	reply := process(t, env, "CANCEL")
	assert.Contains(reply, "has been withdrawn")
	assert.Zero(env.shifts.interestCount())

	reply = process(t, env, "CANCEL")
	assert.Contains(reply, "removed from the shift")
	sh, err := env.shifts.GetByID(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(shift.StatusAvailable, sh.Status)
	assert.False(sh.AssignedEmployeeID.Valid)
	assert.Len(env.supervisor.texts, 1)
	assert.Contains(env.audit.actions(), audit.ActionShiftUnassignedViaSMS)

	reply = process(t, env, "CANCEL")
	assert.Contains(reply, "don't have any pending requests")
}

func TestCommand_ConfirmPicksMostRecentAssignment(t *testing.T) {
	older := claimed(newShift(20, "OLD001", day(1), 1), 1)
	older.UpdatedAt = testNow.Add(-2 * time.Hour)
	newer := claimed(newShift(21, "NEW001", day(3), 1), 1)
	newer.UpdatedAt = testNow.Add(-time.Hour)
	env, _ := commandFixture(t, older, newer)

	reply := process(t, env, "CONFIRM")
	assert.Contains(t, reply, "Thu, Mar 13")
	assert.Equal(t, "21", env.audit.events[0].TargetID)

	env2, _ := commandFixture(t)
	assert.Contains(t, process(t, env2, "ok"), "don't have any upcoming shifts")
}

func TestCommand_StatusAndShifts(t *testing.T) {
	assert := assert.New(t)
	otherArea := newShift(12, "FAR001", day(1), 9)
	env, _ := commandFixture(t,
		claimed(newShift(20, "MINE01", day(2), 1), 1),
		newShift(10, "ABC123", day(1), 1),
		otherArea)

	status := process(t, env, "STATUS")
	assert.Contains(status, "Your upcoming shifts:\n- Wed, Mar 12")
	assert.NotContains(status, "Waiting to hear back")

	process(t, env, "YES ABC123")
	status = process(t, env, "my shifts")
	assert.Contains(status, "Waiting to hear back:\n- Tomorrow")

	open := process(t, env, "SHIFTS")
	assert.Contains(open, "(ABC123)")
	assert.NotContains(open, "FAR001")
	assert.Contains(open, "Reply YES <code>")

	empty, _ := commandFixture(t)
	assert.Contains(process(t, empty, "status"), "no upcoming shifts")
	assert.Equal(replyNothingOpen, process(t, empty, "shifts"))
}

func TestCommand_HelpAndUnknown(t *testing.T) {
	assert := assert.New(t)
	env, _ := commandFixture(t)

	assert.Equal(helpText, process(t, env, "help"))

	assert.Equal(replyUnknown, process(t, env, "Running 10 min late"))
	msgs := env.messages.all()
	require.Len(t, msgs, 1)
	assert.Equal(message.DirectionInbound, msgs[0].Direction)
	assert.Equal("Running 10 min late", msgs[0].Content)
	require.Len(t, env.supervisor.texts, 1)
	assert.Contains(env.supervisor.texts[0], "Running 10 min late")
	assert.Equal([]string{audit.ActionSmsUnknownCommand}, env.audit.actions())
}
