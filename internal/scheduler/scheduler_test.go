package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/goal"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecalculator struct {
	mu       sync.Mutex
	ids      []uuid.UUID
	scanErr  error
	errs     map[uuid.UUID][]error
	calls    map[uuid.UUID]int
	byUser   []uuid.UUID
	inFlight atomic.Int32
	peak     atomic.Int32
	block    chan struct{}
	delay    time.Duration

	overdue    []uuid.UUID
	overdueErr error
	expireErrs map[uuid.UUID]error
	expired    []uuid.UUID
}

func newFake(ids ...uuid.UUID) *fakeRecalculator {
	return &fakeRecalculator{
		ids:   ids,
		errs:       map[uuid.UUID][]error{},
		calls:      map[uuid.UUID]int{},
		expireErrs: map[uuid.UUID]error{},
	}
}

func (f *fakeRecalculator) ListOverdue(ctx context.Context) ([]uuid.UUID, error) {
	return f.overdue, f.overdueErr
}

func (f *fakeRecalculator) ExpireGoal(ctx context.Context, id uuid.UUID, byUser uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expireErrs[id]; err != nil {
		return false, err
	}
	f.expired = append(f.expired, id)
	f.byUser = append(f.byUser, byUser)
	return true, nil
}

func (f *fakeRecalculator) ListRecalculable(ctx context.Context) ([]uuid.UUID, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.ids, nil
}

func (f *fakeRecalculator) RecalculateProgress(ctx context.Context, id uuid.UUID, byUser uuid.UUID) (*goal.Goal, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.block != nil {
		<-f.block
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls[id]
	f.calls[id]++
	f.byUser = append(f.byUser, byUser)
	if errs := f.errs[id]; call < len(errs) && errs[call] != nil {
		return nil, errs[call]
	}
	return &goal.Goal{ID: id}, nil
}

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestRunOnce_IsolatesFailures(t *testing.T) {
	goals := ids(5)
	fake := newFake(goals...)
	fake.errs[goals[1]] = []error{metric.NewPermanentError(errors.New("unknown scope"), 404)}
	fake.errs[goals[3]] = []error{errors.New("database is locked")}
	fake.errs[goals[4]] = []error{goal.ErrInvalidOperation}

	s := New(fake, Options{Concurrency: 2})
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	assert.ElementsMatch(t, []uuid.UUID{goals[1], goals[3]}, report.FailedGoals)
	for _, id := range goals {
		assert.Equal(t, 1, fake.calls[id])
	}
	for _, by := range fake.byUser {
		assert.Equal(t, goal.SystemUser, by)
	}
	assert.Equal(t, StateIdle, s.State())
}

func TestRunOnce_BoundedConcurrency(t *testing.T) {
	fake := newFake(ids(20)...)
	fake.delay = 5 * time.Millisecond

	s := New(fake, Options{Concurrency: 3})
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, report.Succeeded)
	assert.LessOrEqual(t, fake.peak.Load(), int32(3))
}

func TestRunOnce_RetriesTransientFailuresOnce(t *testing.T) {
	goals := ids(3)
	fake := newFake(goals...)
	busy := metric.NewTransientError(errors.New("busy"), 503)
	fake.errs[goals[0]] = []error{busy}
	fake.errs[goals[1]] = []error{busy, busy}

	s := New(fake, Options{Concurrency: 2, RetryTransient: true})
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Retried)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []uuid.UUID{goals[1]}, report.FailedGoals)
	assert.Equal(t, 2, fake.calls[goals[0]])
	assert.Equal(t, 2, fake.calls[goals[1]])
	assert.Equal(t, 1, fake.calls[goals[2]])
}

func TestRunOnce_ScanFailure(t *testing.T) {
	fake := newFake()
	fake.scanErr = errors.New("connection refused")

	s := New(fake, Options{})
	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, s.LastSuccessfulScan().IsZero())
	assert.Equal(t, StateIdle, s.State())
}

func TestRunOnce_RecordsLastSuccessfulScan(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s := New(newFake(ids(1)...), Options{Now: func() time.Time { return now }})

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now, s.LastSuccessfulScan())
}

func TestRunOnce_RejectsOverlappingRuns(t *testing.T) {
	fake := newFake(ids(1)...)
	fake.block = make(chan struct{})
	s := New(fake, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return s.State() == StateRecalculating }, time.Second, time.Millisecond)

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(fake.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, s.State())
}

func TestStartAndStop(t *testing.T) {
	fake := newFake(ids(2)...)
	s := New(fake, Options{Spec: "@every 1s"})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return !s.LastSuccessfulScan().IsZero() }, 3*time.Second, 20*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestStart_InvalidSpec(t *testing.T) {
	s := New(newFake(), Options{Spec: "not a schedule"})
	assert.Error(t, s.Start(context.Background()))
}

func TestRunOnce_ExpiresOverdueGoals(t *testing.T) {
	fake := newFake(ids(2)...)
	fake.overdue = ids(3)
	fake.expireErrs[fake.overdue[2]] = errors.New("database is locked")

	s := New(fake, Options{Concurrency: 2})
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Expired)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []uuid.UUID{fake.overdue[2]}, report.FailedGoals)
	assert.ElementsMatch(t, fake.overdue[:2], fake.expired)
	for _, by := range fake.byUser {
		assert.Equal(t, goal.SystemUser, by)
	}
}

func TestRunOnce_OverdueScanFailure(t *testing.T) {
	fake := newFake(ids(1)...)
	fake.overdueErr = errors.New("connection reset")

	s := New(fake, Options{})
	report, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, StateIdle, s.State())
}
