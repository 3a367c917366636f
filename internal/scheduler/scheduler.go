package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ranikadev/baas-bot/internal/metrics"
	"github.com/ranikadev/baas-bot/internal/model"
	"github.com/ranikadev/baas-bot/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// UserLister returns the users the scheduler should cycle.
type UserLister interface {
	ListActiveUsers(ctx context.Context) ([]model.User, error)
}

// Cycler runs the scheduled path for one user.
type Cycler interface {
	GenerateAndStore(ctx context.Context, userID int64) (service.CycleResult, error)
}

// TickResult summarizes one scheduler fire.
type TickResult struct {
	Users     int
	Published int
	Failed    int
}

// Scheduler fires the posting cycle for every active user on a cron cadence.
// Users are processed one after another; a failing or panicking user never
// stops the rest of the tick.
type Scheduler struct {
	users   UserLister
	cycles  Cycler
	spec    string
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu     sync.Mutex
	state  State
	cron   *cron.Cron
	entry  cron.EntryID
	cancel context.CancelFunc
}

// New validates spec (standard five-field cron, evaluated in UTC) and returns
// a stopped scheduler.
func New(users UserLister, cycles Cycler, spec string, m *metrics.Metrics, logger zerolog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid scheduler cron %q: %w", spec, err)
	}
	return &Scheduler{
		users:   users,
		cycles:  cycles,
		spec:    spec,
		metrics: m,
		logger:  logger.With().Str("service", "Scheduler").Logger(),
		state:   StateStopped,
	}, nil
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Next returns the next planned fire time, or zero when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Start begins firing ticks. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return nil
	}

	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	entry, err := c.AddFunc(s.spec, func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Scheduler tick failed")
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule tick: %w", err)
	}
	c.Start()

	s.cron, s.entry, s.cancel = c, entry, cancel
	s.state = StateRunning
	s.logger.Info().Str("cron", s.spec).Time("next", c.Entry(entry).Next).Msg("Scheduler started")
	return nil
}

// Stop prevents new ticks and waits for a running tick to finish or for ctx
// to expire, whichever comes first. The running tick is cancelled on expiry.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.state = StateStopped
	s.mu.Unlock()

	defer cancel()
	select {
	case <-c.Stop().Done():
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Scheduler stop timed out, cancelling running tick")
		return ctx.Err()
	}
}

// Tick runs GenerateAndStore for every active user, sequentially.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	users, err := s.users.ListActiveUsers(ctx)
	if err != nil {
		return res, fmt.Errorf("list active users: %w", err)
	}
	res.Users = len(users)
	s.metrics.SetTickUsers(len(users))
	s.logger.Info().Int("active_users", len(users)).Msg("Scheduler tick")

	for _, u := range users {
		if ctx.Err() != nil {
			s.logger.Warn().Msg("Tick cancelled, remaining users skipped")
			return res, ctx.Err()
		}
		cycle, err := s.runUser(ctx, u.ID)
		switch {
		case errors.Is(err, service.ErrCycleInProgress):
			s.logger.Info().Int64("user_id", u.ID).Msg("Cycle already running, skipping user")
		case err != nil:
			res.Failed++
			s.metrics.IncTickFailure()
			s.logger.Error().Err(err).Int64("user_id", u.ID).Msg("Cycle failed")
		case cycle.Published():
			res.Published++
		}
	}
	return res, nil
}

func (s *Scheduler) runUser(ctx context.Context, userID int64) (res service.CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in cycle for user %d: %v", userID, r)
		}
	}()
	return s.cycles.GenerateAndStore(ctx, userID)
}

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
