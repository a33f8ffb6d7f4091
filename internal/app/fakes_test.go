package app

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"shift_sms_gateway/internal/domain/audit"
	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/message"
	"shift_sms_gateway/internal/domain/settings"
	"shift_sms_gateway/internal/domain/shift"
	"shift_sms_gateway/internal/domain/sms"
	"shift_sms_gateway/internal/domain/template"
	idb "shift_sms_gateway/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// testNow is a Monday at noon.
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return time.Date(2025, 3, 10+offset, 0, 0, 0, 0, time.UTC)
}

type fakeEmployees struct {
	mu   sync.Mutex
	byID map[int64]*employee.Employee
}

var _ employee.Repository = (*fakeEmployees)(nil)

func newFakeEmployees(list ...*employee.Employee) *fakeEmployees {
	f := &fakeEmployees{byID: map[int64]*employee.Employee{}}
	for _, e := range list {
		cp := *e
		f.byID[e.ID] = &cp
	}
	return f
}

func (f *fakeEmployees) GetByID(_ context.Context, id int64) (*employee.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, idb.ErrEmployeeNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEmployees) GetByPhone(_ context.Context, phone string) (*employee.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.byID {
		if e.Phone == phone {
			cp := *e
			return &cp, nil
		}
	}
	return nil, idb.ErrEmployeeNotFound
}

func (f *fakeEmployees) Update(_ context.Context, e *employee.Employee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[e.ID]; !ok {
		return idb.ErrEmployeeNotFound
	}
	cp := *e
	f.byID[e.ID] = &cp
	return nil
}

func (f *fakeEmployees) ListActive(_ context.Context) ([]*employee.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*employee.Employee
	for _, e := range f.byID {
		if e.IsActive {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeShifts struct {
	mu        sync.Mutex
	shifts    map[int64]*shift.Shift
	interests []*shift.Interest
	nextID    int64
}

var _ shift.Repository = (*fakeShifts)(nil)

func newFakeShifts(list ...*shift.Shift) *fakeShifts {
	f := &fakeShifts{shifts: map[int64]*shift.Shift{}}
	for _, s := range list {
		cp := *s
		f.shifts[s.ID] = &cp
	}
	return f
}

func (f *fakeShifts) get(id int64) (*shift.Shift, error) {
	s, ok := f.shifts[id]
	if !ok {
		return nil, idb.ErrShiftNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeShifts) GetByID(_ context.Context, id int64) (*shift.Shift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(id)
}

func (f *fakeShifts) GetBySmsCode(_ context.Context, code string) (*shift.Shift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.shifts {
		if strings.EqualFold(s.SmsCode, code) {
			return f.get(id)
		}
	}
	return nil, idb.ErrShiftNotFound
}

func (f *fakeShifts) Update(_ context.Context, s *shift.Shift) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.shifts[s.ID]; !ok {
		return idb.ErrShiftNotFound
	}
	cp := *s
	f.shifts[s.ID] = &cp
	return nil
}

func (f *fakeShifts) filter(keep func(*shift.Shift) bool) []*shift.Shift {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*shift.Shift
	for _, s := range f.shifts {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func (f *fakeShifts) ListAvailable(_ context.Context, from time.Time) ([]*shift.Shift, error) {
	return f.filter(func(s *shift.Shift) bool {
		return s.Status == shift.StatusAvailable && !s.Date.Before(from)
	}), nil
}

func (f *fakeShifts) ListAssignedTo(_ context.Context, employeeID int64, from time.Time) ([]*shift.Shift, error) {
	return f.filter(func(s *shift.Shift) bool {
		return s.Status == shift.StatusClaimed && s.AssignedEmployeeID.Int64 == employeeID && !s.Date.Before(from)
	}), nil
}

func (f *fakeShifts) ListUpcomingAssigned(_ context.Context, from, to time.Time) ([]*shift.Shift, error) {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return f.filter(func(s *shift.Shift) bool {
		return s.Status == shift.StatusClaimed && s.AssignedEmployeeID.Valid && !s.Date.Before(fromDay) && !s.Date.After(toDay)
	}), nil
}

func (f *fakeShifts) CreateInterest(_ context.Context, in *shift.Interest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.interests {
		if existing.EmployeeID == in.EmployeeID && existing.ShiftID == in.ShiftID {
			return idb.ErrDuplicateInterest
		}
	}
	f.nextID++
	in.ID = f.nextID
	in.CreatedAt = testNow.Add(time.Duration(f.nextID) * time.Second)
	cp := *in
	f.interests = append(f.interests, &cp)
	return nil
}

func (f *fakeShifts) DeleteInterest(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, in := range f.interests {
		if in.ID == id {
			f.interests = append(f.interests[:i], f.interests[i+1:]...)
			return nil
		}
	}
	return idb.ErrInterestNotFound
}

func (f *fakeShifts) ListInterests(_ context.Context, shiftID int64) ([]*shift.Interest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*shift.Interest
	for _, in := range f.interests {
		if in.ShiftID == shiftID {
			cp := *in
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeShifts) ListEmployeeInterests(_ context.Context, employeeID int64) ([]*shift.Interest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*shift.Interest
	for i := len(f.interests) - 1; i >= 0; i-- {
		if f.interests[i].EmployeeID == employeeID {
			cp := *f.interests[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeShifts) interestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.interests)
}

type fakeMessages struct {
	mu     sync.Mutex
	msgs   []*message.Message
	nextID int64
}

var _ message.Repository = (*fakeMessages)(nil)

func (f *fakeMessages) Create(_ context.Context, m *message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	m.CreatedAt = testNow.Add(time.Duration(f.nextID) * time.Second)
	m.UpdatedAt = m.CreatedAt
	cp := *m
	f.msgs = append(f.msgs, &cp)
	return nil
}

func (f *fakeMessages) Update(_ context.Context, m *message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.msgs {
		if existing.ID == m.ID {
			cp := *m
			f.msgs[i] = &cp
			return nil
		}
	}
	return idb.ErrMessageNotFound
}

func (f *fakeMessages) GetByID(_ context.Context, id int64) (*message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, idb.ErrMessageNotFound
}

func (f *fakeMessages) GetByProviderMessageID(_ context.Context, providerMessageID string) (*message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].ProviderMessageID.String == providerMessageID {
			cp := *f.msgs[i]
			return &cp, nil
		}
	}
	return nil, idb.ErrMessageNotFound
}

func (f *fakeMessages) ListByEmployee(_ context.Context, employeeID int64) ([]*message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*message.Message
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].EmployeeID == employeeID {
			cp := *f.msgs[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMessages) ListPendingDelivery(_ context.Context, limit int) ([]*message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*message.Message
	for _, m := range f.msgs {
		if m.Direction == message.DirectionOutbound && m.Status == message.StatusSent && m.ProviderMessageID.Valid && len(out) < limit {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMessages) all() []*message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*message.Message, len(f.msgs))
	for i, m := range f.msgs {
		cp := *m
		out[i] = &cp
	}
	return out
}

// seed stores m as already sent through the carrier.
func (f *fakeMessages) seed(m *message.Message) *message.Message {
	_ = f.Create(context.Background(), m)
	return m
}

type fakeTemplates struct {
	byCategory map[template.Category]*template.Template
	err        error
}

var _ template.Repository = (*fakeTemplates)(nil)

func (f *fakeTemplates) GetActiveByCategory(_ context.Context, category template.Category) (*template.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.byCategory[category]
	if !ok {
		return nil, idb.ErrTemplateNotFound
	}
	return t, nil
}

func (f *fakeTemplates) Create(_ context.Context, t *template.Template) error {
	if f.byCategory == nil {
		f.byCategory = map[template.Category]*template.Template{}
	}
	f.byCategory[t.Category] = t
	return nil
}

func (f *fakeTemplates) ListByCategory(_ context.Context, category template.Category) ([]*template.Template, error) {
	if t, ok := f.byCategory[category]; ok {
		return []*template.Template{t}, nil
	}
	return nil, nil
}

type fakeSettings struct {
	values map[string]string
}

var _ settings.Repository = (*fakeSettings)(nil)

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: map[string]string{}}
}

func (f *fakeSettings) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeSettings) Set(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

var _ audit.Sink = (*fakeAudit)(nil)

func (f *fakeAudit) LogAuditEvent(_ context.Context, e audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Action)
	}
	return out
}

type sentSMS struct {
	To       string
	Body     string
	Callback string
	Retry    bool
}

type fakeGateway struct {
	mu       sync.Mutex
	provider sms.ProviderType
	sent     []sentSMS
	failFor  map[string]sms.SendResult
	inbound  *sms.InboundMessage
	status   *sms.DeliveryStatusUpdate
	parseErr error
	polled   map[string]sms.DeliveryStatus
	nextID   int
}

var _ SMSGateway = (*fakeGateway)(nil)

func (g *fakeGateway) ProviderType() sms.ProviderType { return g.provider }

func (g *fakeGateway) send(to, body, cb string, retry bool) sms.SendResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentSMS{To: to, Body: body, Callback: cb, Retry: retry})
	if r, ok := g.failFor[to]; ok {
		return r
	}
	g.nextID++
	return sms.SendResult{Success: true, ProviderMessageID: fmt.Sprintf("SM%d", g.nextID), Status: sms.StatusQueued, Segments: 1}
}

func (g *fakeGateway) SendSMS(_ context.Context, to, body, cb string) sms.SendResult {
	return g.send(to, body, cb, false)
}

func (g *fakeGateway) SendSMSWithRetry(_ context.Context, to, body, cb string, _ sms.RetryOptions) sms.SendResult {
	return g.send(to, body, cb, true)
}

func (g *fakeGateway) ParseInboundMessage([]byte) (*sms.InboundMessage, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	cp := *g.inbound
	return &cp, nil
}

func (g *fakeGateway) ParseDeliveryStatus([]byte) (*sms.DeliveryStatusUpdate, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	cp := *g.status
	return &cp, nil
}

func (g *fakeGateway) GetMessageStatus(_ context.Context, id string) (sms.DeliveryStatus, bool) {
	s, ok := g.polled[id]
	return s, ok
}

func (g *fakeGateway) sentTo(phone string) []sentSMS {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentSMS
	for _, s := range g.sent {
		if s.To == phone {
			out = append(out, s)
		}
	}
	return out
}

func (g *fakeGateway) sentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type fakeLimiter struct {
	calls int
	err   error
}

func (l *fakeLimiter) Wait(context.Context) error {
	l.calls++
	return l.err
}

type fakeDedup struct {
	seen map[string]bool
	err  error
}

func (d *fakeDedup) FirstSeen(_ context.Context, id string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

type fakeSupervisor struct {
	texts []string
}

func (s *fakeSupervisor) NotifySupervisor(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	return nil
}

func newEmployee(id int64, first, phone string, areas ...int64) *employee.Employee {
	return &employee.Employee{
		ID:        id,
		FirstName: first,
		LastName:  sql.NullString{String: "Test", Valid: true},
		Phone:     phone,
		Position:  "Server",
		AreaIDs:   areas,
		IsActive:  true,
		SmsOptIn:  true,
	}
}

func newShift(id int64, code string, date time.Time, areaID int64) *shift.Shift {
	return &shift.Shift{
		ID:        id,
		Date:      date,
		StartTime: "09:00",
		EndTime:   "17:00",
		AreaID:    areaID,
		AreaName:  "North",
		Location:  "Main Campus",
		Position:  "Server",
		SmsCode:   code,
		Status:    shift.StatusAvailable,
		UpdatedAt: testNow,
	}
}

func claimed(s *shift.Shift, employeeID int64) *shift.Shift {
	s.Status = shift.StatusClaimed
	s.AssignedEmployeeID = sql.NullInt64{Int64: employeeID, Valid: true}
	return s
}

// testEnv wires every service against in-memory fakes.
type testEnv struct {
	employees  *fakeEmployees
	shifts     *fakeShifts
	messages   *fakeMessages
	templates  *fakeTemplates
	settings   *fakeSettings
	audit      *fakeAudit
	gateway    *fakeGateway
	limiter    *fakeLimiter
	dedup      *fakeDedup
	supervisor *fakeSupervisor

	templateService *TemplateService
	notifications   *NotificationServiceImpl
	commands        *CommandService
	delivery        *DeliveryService
}

func newTestEnv(t *testing.T, employees []*employee.Employee, shifts []*shift.Shift) *testEnv {
	t.Helper()
	logger := logrus.NewEntry(logrus.New())
	env := &testEnv{
		employees:  newFakeEmployees(employees...),
		shifts:     newFakeShifts(shifts...),
		messages:   &fakeMessages{},
		templates:  &fakeTemplates{},
		settings:   newFakeSettings(),
		audit:      &fakeAudit{},
		gateway:    &fakeGateway{provider: sms.ProviderRingCentral, failFor: map[string]sms.SendResult{}, polled: map[string]sms.DeliveryStatus{}},
		limiter:    &fakeLimiter{},
		dedup:      &fakeDedup{seen: map[string]bool{}},
		supervisor: &fakeSupervisor{},
	}
	clock := func() time.Time { return testNow }

	env.templateService = NewTemplateService(env.templates, "https://shifts.example.com", logger)
	env.templateService.now = clock

	env.notifications = NewNotificationServiceImpl(env.employees, env.shifts, env.messages, env.settings,
		env.templateService, env.gateway, env.limiter, env.audit, "https://hooks.example.com/status", logger)
	env.notifications.now = clock

	env.commands = NewCommandService(env.shifts, env.employees, env.messages, env.templateService, env.audit, env.supervisor, logger)
	env.commands.now = clock

	env.delivery = NewDeliveryService(env.gateway, env.employees, env.messages, env.commands, env.dedup, env.audit,
		"https://hooks.example.com/status", logger)
	env.delivery.now = clock
	return env
}
