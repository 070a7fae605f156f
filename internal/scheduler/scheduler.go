// Package scheduler recalculates every running auto-tracked goal on a fixed
// interval and expires goals whose end date has passed. It keeps no state
// between runs beyond the last successful scan.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"
	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/saulo-duarte/chronos-goals/internal/goal"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StateIdle          State = "IDLE"
	StateScanning      State = "SCANNING"
	StateRecalculating State = "RECALCULATING"
)

var ErrRunInProgress = errors.New("scheduler run already in progress")

// Recalculator is the slice of goal.Service the scheduler drives.
type Recalculator interface {
	ListRecalculable(ctx context.Context) ([]uuid.UUID, error)
	RecalculateProgress(ctx context.Context, id uuid.UUID, byUser uuid.UUID) (*goal.Goal, error)
	ListOverdue(ctx context.Context) ([]uuid.UUID, error)
	ExpireGoal(ctx context.Context, id uuid.UUID, byUser uuid.UUID) (bool, error)
}

type Options struct {
	// Spec is a cron spec such as "@every 1h".
	Spec        string
	Concurrency int
	// RetryTransient re-runs goals that failed with a transient metric error
	// once more at the end of the run.
	RetryTransient bool
	Now            func() time.Time
}

type RunReport struct {
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Scanned     int           `json:"scanned"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Retried     int           `json:"retried"`
	Expired     int           `json:"expired"`
	FailedGoals []uuid.UUID   `json:"failed_goals,omitempty"`
}

type Scheduler struct {
	recalc Recalculator
	opts   Options

	mu       sync.Mutex
	state    State
	lastScan time.Time
	cron     *cron.Cron
}

func New(recalc Recalculator, opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Spec == "" {
		opts.Spec = "@every 1h"
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{recalc: recalc, opts: opts, state: StateIdle}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSuccessfulScan is zero until a scan completes.
func (s *Scheduler) LastSuccessfulScan() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

func (s *Scheduler) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Scheduler) setState(to State) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()
}

// RunOnce scans for recalculable goals and recalculates each of them.
// A failing goal never fails the run; only a failed scan does.
func (s *Scheduler) RunOnce(ctx context.Context) (RunReport, error) {
	log := config.WithContext(ctx)

	if !s.transition(StateIdle, StateScanning) {
		return RunReport{}, ErrRunInProgress
	}
	defer s.setState(StateIdle)

	started := s.opts.Now()
	report := RunReport{StartedAt: started}
	defer func() {
		report.Duration = s.opts.Now().Sub(started)
		runDuration.Observe(report.Duration.Seconds())
	}()

	ids, err := s.recalc.ListRecalculable(ctx)
	if err != nil {
		runsTotal.WithLabelValues("scan_failed").Inc()
		log.WithError(err).Error("Goal scan failed")
		return report, err
	}
	report.Scanned = len(ids)

	s.mu.Lock()
	s.lastScan = started
	s.mu.Unlock()
	lastScanTimestamp.Set(float64(started.Unix()))

	s.setState(StateRecalculating)
	log.WithField("goals", len(ids)).Info("Recalculating goals")

	outcome := s.recalculate(ctx, ids)
	if s.opts.RetryTransient && len(outcome.transient) > 0 {
		report.Retried = len(outcome.transient)
		log.WithField("goals", report.Retried).Info("Retrying goals after transient metric failures")
		retry := s.recalculate(ctx, outcome.transient)
		outcome.succeeded += retry.succeeded
		outcome.failed = append(outcome.failed, retry.failed...)
		outcome.failed = append(outcome.failed, retry.transient...)
		outcome.skipped += retry.skipped
	} else {
		outcome.failed = append(outcome.failed, outcome.transient...)
	}

	report.Succeeded = outcome.succeeded
	report.Skipped = outcome.skipped

	overdue, err := s.recalc.ListOverdue(ctx)
	if err != nil {
		runsTotal.WithLabelValues("scan_failed").Inc()
		log.WithError(err).Error("Overdue goal scan failed")
		report.Failed = len(outcome.failed)
		report.FailedGoals = outcome.failed
		return report, err
	}
	expired, expireFailed := s.expire(ctx, overdue)
	report.Expired = expired
	outcome.failed = append(outcome.failed, expireFailed...)

	report.Failed = len(outcome.failed)
	report.FailedGoals = outcome.failed

	runsTotal.WithLabelValues("completed").Inc()
	log.WithFields(logrus.Fields{
		"scanned":   report.Scanned,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
		"expired":   report.Expired,
	}).Info("Scheduler run complete")
	return report, ctx.Err()
}

type passOutcome struct {
	succeeded int
	skipped   int
	failed    []uuid.UUID
	transient []uuid.UUID
}

// recalculate runs one pass over ids with at most Concurrency goals in flight.
// Each id appears once per pass, so a goal is never recalculated twice at once.
func (s *Scheduler) recalculate(ctx context.Context, ids []uuid.UUID) passOutcome {
	var (
		g         errgroup.Group
		succeeded atomic.Int64
		skipped   atomic.Int64
		mu        sync.Mutex
		out       passOutcome
	)
	g.SetLimit(s.opts.Concurrency)

	for _, id := range ids {
		id := id
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			log := config.WithContext(ctx).WithField("goal_id", id)

			_, err := s.recalc.RecalculateProgress(ctx, id, goal.SystemUser)
			switch {
			case err == nil:
				succeeded.Add(1)
				recalculationsTotal.WithLabelValues("success").Inc()
			case errors.Is(err, goal.ErrInvalidOperation), errors.Is(err, goal.ErrNotFound):
				// The goal changed between scan and recalculation.
				skipped.Add(1)
				recalculationsTotal.WithLabelValues("skipped").Inc()
				log.WithError(err).Info("Goal no longer recalculable, skipping")
			case metric.IsTransient(err):
				recalculationsTotal.WithLabelValues("transient").Inc()
				log.WithError(err).Warn("Transient metric failure")
				mu.Lock()
				out.transient = append(out.transient, id)
				mu.Unlock()
			default:
				recalculationsTotal.WithLabelValues("failed").Inc()
				log.WithError(err).Error("Goal recalculation failed")
				mu.Lock()
				out.failed = append(out.failed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	out.succeeded = int(succeeded.Load())
	out.skipped = int(skipped.Load())
	return out
}

// expire moves overdue goals to their end-of-window status. It runs after the
// recalculation pass so a goal's last value is in place before it closes.
func (s *Scheduler) expire(ctx context.Context, ids []uuid.UUID) (int, []uuid.UUID) {
	var (
		g       errgroup.Group
		expired atomic.Int64
		mu      sync.Mutex
		failed  []uuid.UUID
	)
	g.SetLimit(s.opts.Concurrency)

	for _, id := range ids {
		id := id
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			changed, err := s.recalc.ExpireGoal(ctx, id, goal.SystemUser)
			switch {
			case err == nil:
				if changed {
					expired.Add(1)
					expirationsTotal.WithLabelValues("expired").Inc()
				}
			case errors.Is(err, goal.ErrNotFound):
				expirationsTotal.WithLabelValues("skipped").Inc()
			default:
				expirationsTotal.WithLabelValues("failed").Inc()
				config.WithContext(ctx).WithError(err).WithField("goal_id", id).Error("Goal expiry failed")
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(expired.Load()), failed
}

// Start runs RunOnce on the cron spec until Stop. Ticks that arrive while a
// run is still going are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	err := c.AddFunc(s.opts.Spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				runsTotal.WithLabelValues("skipped").Inc()
				config.WithContext(ctx).Warn("Previous scheduler run still in progress, skipping tick")
				return
			}
			config.WithContext(ctx).WithError(err).Error("Scheduler run failed")
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	config.WithContext(ctx).WithField("spec", s.opts.Spec).Info("Goal scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}
}
