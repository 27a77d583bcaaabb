package reconcile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webklar/booking-platform/internal/auth"
	"github.com/webklar/booking-platform/internal/booking"
	"github.com/webklar/booking-platform/internal/customers"
	"github.com/webklar/booking-platform/internal/verification"
	"github.com/webklar/booking-platform/pkg/logging"
)

type faultyStore struct {
	*customers.InMemoryRepository
	findErr   error
	insertErr error
	upsertErr error
	getErr    error
	finds     []string
	writes    int
}

func (f *faultyStore) FindByEmail(ctx context.Context, email string) ([]*customers.Project, error) {
	f.finds = append(f.finds, email)
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.InMemoryRepository.FindByEmail(ctx, email)
}

func (f *faultyStore) Insert(ctx context.Context, p *customers.Project) (*customers.Project, error) {
	f.writes++
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return f.InMemoryRepository.Insert(ctx, p)
}

func (f *faultyStore) UpsertByID(ctx context.Context, p *customers.Project) (*customers.Project, error) {
	f.writes++
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return f.InMemoryRepository.UpsertByID(ctx, p)
}

func (f *faultyStore) GetByID(ctx context.Context, id string) (*customers.Project, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.InMemoryRepository.GetByID(ctx, id)
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []string
	err      error
}

func (r *recordingNotifier) NotifyBooking(_ context.Context, p *customers.Project, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome+":"+p.ID)
	return r.err
}

type fixture struct {
	store  *faultyStore
	engine *Engine
	now    time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: &faultyStore{InMemoryRepository: customers.NewInMemoryRepository()},
		now:   time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time {
		f.now = f.now.Add(time.Minute)
		return f.now
	}
	opts = append([]Option{WithClock(clock)}, opts...)
	f.engine = NewEngine(f.store, logging.NewWithWriter("error", io.Discard), opts...)
	return f
}

func intentFor(t *testing.T, email, date, clock, description string) booking.Intent {
	t.Helper()
	intent, err := booking.Form{
		Name:        "Anna Schmidt",
		Phone:       "0151 2345678",
		Company:     "Bäckerei Nord",
		Email:       email,
		Description: description,
		Slot:        &booking.SlotChoice{Date: date, Time: clock},
	}.Validate()
	require.NoError(t, err)
	return intent
}

func sessionFor(email string) *auth.Session {
	return &auth.Session{UserID: "user-1", Email: email}
}

func TestReconcileNewCustomer(t *testing.T) {
	f := newFixture(t)
	intent := intentFor(t, "anna@example.com", "2025-12-03", "13:00", "New website")

	res, err := f.engine.Reconcile(context.Background(), sessionFor("anna@example.com"), intent)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Zero(t, res.DuplicateCount)
	rec := res.Record
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, "2025-12-03T13:00:00", rec.Appointment.String())
	assert.Equal(t, customers.StatusPending, rec.AppointmentStatus)
	assert.Equal(t, DefaultAdvisor, rec.Advisor)
	assert.Equal(t, DefaultSegment, rec.Segment)
	assert.Equal(t, "New website\n\nAppointment: Wednesday, 03.12.2025 at 13:00\n\nContact: Anna Schmidt (0151 2345678)\nCompany: Bäckerei Nord", rec.Description)
	assert.NotContains(t, rec.Description, "NEW APPOINTMENT")
}

func TestReconcileReturningCustomerCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing, err := f.store.InMemoryRepository.Insert(ctx, &customers.Project{
		Email:       "anna@example.com",
		ContactName: "Anna",
		Description: "Initial project",
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	actor := "admin@webklar.com"
	require.NoError(t, f.store.UpdateStatus(ctx, existing.ID, customers.StatusUpdate{Status: customers.StatusRunning, StartedBy: &actor}))

	intent := intentFor(t, "  ANNA@example.com ", "2025-12-04", "09:00", "Add a shop")
	res, err := f.engine.Reconcile(ctx, sessionFor("anna@example.com"), intent)
	require.NoError(t, err)

	assert.Equal(t, OutcomeUpdated, res.Outcome)
	assert.Equal(t, existing.ID, res.Record.ID)
	assert.Equal(t, []string{"ANNA@example.com", "anna@example.com"}, f.store.finds)
	assert.True(t, strings.HasPrefix(res.Record.Description, "Initial project"+Separator+"Add a shop"))
	assert.Equal(t, "2025-12-04T09:00:00", res.Record.Appointment.String())
	assert.Equal(t, customers.StatusRunning, res.Record.AppointmentStatus)
	assert.Equal(t, actor, res.Record.StartedBy)
	assert.True(t, res.Record.CreatedAt.After(existing.CreatedAt), "created_at refreshed on update")

	all, err := f.store.List(ctx, customers.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReconcileIdempotentCreateThenUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	intent := intentFor(t, "ben@example.com", "2025-12-05", "11:00", "Logo")
	session := sessionFor("ben@example.com")

	first, err := f.engine.Reconcile(ctx, session, intent)
	require.NoError(t, err)
	second, err := f.engine.Reconcile(ctx, session, intent)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, first.Outcome)
	assert.Equal(t, OutcomeUpdated, second.Outcome)
	assert.Equal(t, first.Record.ID, second.Record.ID)

	rows, err := f.store.FindByEmail(ctx, "ben@example.com")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReconcileHistoryIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := sessionFor("anna@example.com")
	dates := []string{"2025-12-03", "2025-12-04", "2025-12-05", "2025-12-08"}

	var previous string
	for i, date := range dates {
		res, err := f.engine.Reconcile(ctx, session, intentFor(t, "anna@example.com", date, "15:00", "Booking "+date))
		require.NoError(t, err)
		desc := res.Record.Description
		assert.True(t, strings.HasPrefix(desc, previous), "booking %d must keep earlier history", i)
		assert.Equal(t, i, strings.Count(desc, Separator))
		assert.Equal(t, date+"T15:00:00", res.Record.Appointment.String())
		previous = desc
	}
	assert.True(t, strings.HasPrefix(previous, "Booking 2025-12-03"))
}

func TestReconcileWriteFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.store.insertErr = errors.New("connection reset")
	ctx := context.Background()

	_, err := f.engine.Reconcile(ctx, sessionFor("anna@example.com"), intentFor(t, "anna@example.com", "2025-12-03", "09:00", "x"))
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "create customer", storageErr.Op)
	assert.Equal(t, "We could not save your appointment. Please try again.", storageErr.UserMessage())
	assert.Equal(t, 1, f.store.writes, "no retry")

	rows, err := f.store.List(ctx, customers.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	f.store.insertErr = nil
	res, err := f.engine.Reconcile(ctx, sessionFor("anna@example.com"), intentFor(t, "anna@example.com", "2025-12-03", "09:00", "x"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
}

func TestReconcileUpdateFailureKeepsExistingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing, _ := f.store.InMemoryRepository.Insert(ctx, &customers.Project{Email: "anna@example.com", Description: "keep"})
	f.store.upsertErr = errors.New("deadlock detected")

	_, err := f.engine.Reconcile(ctx, sessionFor("anna@example.com"), intentFor(t, "anna@example.com", "2025-12-03", "09:00", "x"))
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "update customer", storageErr.Op)

	got, err := f.store.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep", got.Description)
	assert.Nil(t, got.Appointment)
}

func TestReconcileLookupErrorAborts(t *testing.T) {
	f := newFixture(t)
	f.store.findErr = errors.New("timeout")

	_, err := f.engine.Reconcile(context.Background(), sessionFor("anna@example.com"), intentFor(t, "Anna@example.com", "2025-12-03", "09:00", "x"))
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "lookup customer", storageErr.Op)
	assert.Len(t, f.store.finds, 1, "first failing variant stops the lookup")
	assert.Zero(t, f.store.writes)
}

func TestReconcileStorageErrorsLogOnce(t *testing.T) {
	var buf bytes.Buffer
	store := &faultyStore{InMemoryRepository: customers.NewInMemoryRepository(), findErr: errors.New("timeout")}
	engine := NewEngine(store, logging.NewWithWriter("error", &buf))

	_, err := engine.Reconcile(context.Background(), sessionFor("anna@example.com"), intentFor(t, "anna@example.com", "2025-12-03", "09:00", "x"))
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(buf.String(), `"level":"ERROR"`))
	assert.Contains(t, buf.String(), "failed to look up customer")
}

func TestReconcileDuplicatesUseNewest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older, _ := f.store.InMemoryRepository.Insert(ctx, &customers.Project{Email: "anna@example.com", Description: "old", CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)})
	newer, _ := f.store.InMemoryRepository.Insert(ctx, &customers.Project{Email: "anna@example.com", Description: "new", CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)})

	res, err := f.engine.Reconcile(ctx, sessionFor("anna@example.com"), intentFor(t, "anna@example.com", "2025-12-03", "11:00", "x"))
	require.NoError(t, err)
	assert.Equal(t, newer.ID, res.Record.ID)
	assert.Equal(t, 2, res.DuplicateCount)

	untouched, err := f.store.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "old", untouched.Description)
}

func TestReconcileRequiresSession(t *testing.T) {
	f := newFixture(t)
	intent := intentFor(t, "anna@example.com", "2025-12-03", "09:00", "x")

	_, err := f.engine.Reconcile(context.Background(), nil, intent)
	assert.ErrorIs(t, err, verification.ErrSessionRequired)
	_, err = f.engine.Reconcile(context.Background(), sessionFor("mallory@example.com"), intent)
	assert.ErrorIs(t, err, verification.ErrSessionMismatch)
	assert.Empty(t, f.store.finds)
	assert.Zero(t, f.store.writes)
}

func TestReconcileSameSlotLastWriterWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.engine.Reconcile(ctx, sessionFor("anna@example.com"), intentFor(t, "anna@example.com", "2025-12-03", "09:00", "a"))
	require.NoError(t, err)
	b, err := f.engine.Reconcile(ctx, sessionFor("ben@example.com"), intentFor(t, "ben@example.com", "2025-12-03", "09:00", "b"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Record.ID, b.Record.ID)

	booked, err := f.store.ListBookedAppointments(ctx)
	require.NoError(t, err)
	assert.Len(t, booked, 2, "both bookings are kept; no write-time slot check")
}

func TestReconcileVerificationIsAdvisory(t *testing.T) {
	f := newFixture(t)
	f.store.getErr = errors.New("replica lag")

	res, err := f.engine.Reconcile(context.Background(), sessionFor("anna@example.com"), intentFor(t, "anna@example.com", "2025-12-03", "09:00", "x"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
}

func TestReconcileNotifiesAsynchronously(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("mail down")}
	f := newFixture(t, WithNotifier(notifier))
	ctx, cancel := context.WithCancel(context.Background())

	res, err := f.engine.Reconcile(ctx, sessionFor("anna@example.com"), intentFor(t, "anna@example.com", "2025-12-03", "09:00", "x"))
	require.NoError(t, err)
	cancel()
	f.engine.Wait()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{"created:" + res.Record.ID}, notifier.outcomes)
}

func TestVariants(t *testing.T) {
	assert.Equal(t, []string{"Anna@Example.com", "anna@example.com", "ANNA@EXAMPLE.COM"}, Variants(" Anna@Example.com "))
	assert.Equal(t, []string{"anna@example.com", "ANNA@EXAMPLE.COM"}, Variants("anna@example.com"))
	assert.Equal(t, []string{"123@456.78"}, Variants("123@456.78"))
}
