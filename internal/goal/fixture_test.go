package goal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/dbtest"
	"github.com/saulo-duarte/chronos-goals/internal/event"
	"github.com/saulo-duarte/chronos-goals/internal/history"
	"github.com/saulo-duarte/chronos-goals/internal/lock"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.GoalStatusChanged
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e event.GoalStatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) snapshot() []event.GoalStatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.GoalStatusChanged(nil), p.events...)
}

type fixture struct {
	t         *testing.T
	db        *gorm.DB
	svc       Service
	provider  *metric.StaticProvider
	publisher *recordingPublisher
	teams     TeamRepository
	locker    lock.Locker
	user      uuid.UUID

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t, AutoMigrate, history.AutoMigrate)
	f := &fixture{
		t:         t,
		db:        db,
		provider:  metric.NewStaticProvider(),
		publisher: &recordingPublisher{},
		teams:     NewTeamRepository(db),
		locker:    lock.NewLocalLocker(),
		user:      uuid.New(),
		now:       time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	f.svc = f.peer()
	return f
}

// peer builds another service instance over the same database and locker,
// the way a second process shares them through Redis.
func (f *fixture) peer() Service {
	return NewService(Dependencies{
		DB:         f.db,
		Repo:       NewRepository(f.db),
		History:    history.NewRepository(f.db),
		Metrics:    f.provider,
		Authorizer: NewScopeAuthorizer(f.teams),
		Locker:     f.locker,
		Publisher:  f.publisher,
		Now:        f.clock,
	})
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) createDTO() CreateGoalDTO {
	owner := f.user
	now := f.clock()
	return CreateGoalDTO{
		Name:         "Q3 closed revenue",
		OwnerID:      &owner,
		MetricType:   metric.RevenueClosed,
		TargetValue:  decimal.NewFromInt(100),
		TrackingMode: TrackingAuto,
		StartDate:    now.AddDate(0, 0, -30),
		EndDate:      now.AddDate(0, 0, 60),
	}
}

func (f *fixture) create(opts ...func(*CreateGoalDTO)) uuid.UUID {
	f.t.Helper()
	dto := f.createDTO()
	for _, opt := range opts {
		opt(&dto)
	}
	id, err := f.svc.CreateGoal(context.Background(), dto, f.user)
	require.NoError(f.t, err)
	return id
}

// team creates a team the fixture user belongs to.
func (f *fixture) team() uuid.UUID {
	f.t.Helper()
	teamID := uuid.New()
	require.NoError(f.t, f.teams.AddMember(context.Background(), teamID, f.user))
	return teamID
}

func (f *fixture) setMetric(g *Goal, value int64) {
	f.provider.Set(g.MetricType, g.Scope(), decimal.NewFromInt(value))
}

func (f *fixture) get(id uuid.UUID) *Goal {
	f.t.Helper()
	g, err := f.svc.GetGoal(context.Background(), id)
	require.NoError(f.t, err)
	return g
}

func (f *fixture) history(id uuid.UUID) []history.Entry {
	f.t.Helper()
	entries, err := f.svc.GetProgressHistory(context.Background(), id, nil, nil)
	require.NoError(f.t, err)
	return entries
}

func withTarget(v int64) func(*CreateGoalDTO) {
	return func(d *CreateGoalDTO) { d.TargetValue = decimal.NewFromInt(v) }
}

func withTeam(teamID uuid.UUID) func(*CreateGoalDTO) {
	return func(d *CreateGoalDTO) {
		d.OwnerID = nil
		d.TeamID = &teamID
	}
}

func withParent(parentID uuid.UUID) func(*CreateGoalDTO) {
	return func(d *CreateGoalDTO) { d.ParentGoalID = &parentID }
}

func withMode(mode TrackingMode) func(*CreateGoalDTO) {
	return func(d *CreateGoalDTO) { d.TrackingMode = mode }
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
