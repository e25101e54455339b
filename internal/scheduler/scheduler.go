package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/sogretobot/internal/clock"
	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/internal/database"
	"github.com/example/sogretobot/pkg/models"
)

// DefaultInterval is how often active users are scanned
const DefaultInterval = time.Hour

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	notifier  Notifier
	users     UserStore
	content   TreeSource
	clock     clock.Clock
	logger    *zap.Logger
	interval  time.Duration

	// one tick at a time, including manual ones
	mu sync.Mutex
}

// Notifier interface for sending notifications
type Notifier interface {
	SendReminder(ctx context.Context, userID int64, r models.Render) error
}

// UserStore is the part of the user repository the scheduler needs
type UserStore interface {
	ListActive(ctx context.Context) ([]models.User, error)
	WithUser(ctx context.Context, id int64, fn func(models.User) (database.Mutation, error)) (models.User, error)
}

// TreeSource hands out the current content snapshot
type TreeSource interface {
	Tree() *content.Tree
}

// Config holds the optional scheduler settings
type Config struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Report summarizes one scan over the active users
type Report struct {
	TickID  string
	Scanned int
	Sent    int
	Skipped int
	Failed  int
}

// New creates a new scheduler instance
func New(users UserStore, src TreeSource, notifier Notifier, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		notifier:  notifier,
		users:     users,
		content:   src,
		clock:     cfg.Clock,
		logger:    cfg.Logger.Named("scheduler"),
		interval:  cfg.Interval,
	}
}

// Start begins running all scheduled tasks. The job stops picking up
// new work once ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	job := func() { s.Tick(ctx) }

	var err error
	if s.interval == time.Hour {
		// top of the hour keeps every tick inside the reminder window
		_, err = s.scheduler.Cron("0 * * * *").Do(job)
	} else {
		_, err = s.scheduler.Every(s.interval).Do(job)
	}
	if err != nil {
		return fmt.Errorf("failed to schedule reminder check: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("reminder scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop terminates all scheduled tasks and waits for a running tick
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("reminder scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Tick checks every active user once. A failure for one user is logged
// and the scan goes on with the next one.
func (s *Scheduler) Tick(ctx context.Context) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{TickID: uuid.NewString()}
	logger := s.logger.With(zap.String("tick_id", report.TickID))
	now := s.clock.Now()

	users, err := s.users.ListActive(ctx)
	if err != nil {
		logger.Error("failed to list active users", zap.Error(err))
		return report
	}

	tree := s.content.Tree()
	for _, u := range users {
		if ctx.Err() != nil {
			logger.Warn("reminder check interrupted", zap.Error(ctx.Err()))
			break
		}
		report.Scanned++

		d, err := s.check(ctx, logger, u.ID, tree, now, Options{})
		switch {
		case err != nil:
			report.Failed++
			logger.Error("reminder check failed", zap.Int64("user_id", u.ID), zap.Error(err))
		case d.Sends():
			report.Sent++
		default:
			report.Skipped++
		}
	}

	logger.Info("reminder check finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report
}

// RunManualCheck forces a check for a specific user, ignoring the
// preferred-time window
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.With(zap.String("tick_id", uuid.NewString()))
	return s.check(ctx, logger, userID, s.content.Tree(), s.clock.Now(), Options{IgnoreWindow: true})
}

// check stores the decision for one user and sends its push once the
// transaction has committed
func (s *Scheduler) check(ctx context.Context, logger *zap.Logger, userID int64, tree *content.Tree, now time.Time, opts Options) (Decision, error) {
	var d Decision
	_, err := s.users.WithUser(ctx, userID, func(cur models.User) (database.Mutation, error) {
		d = Decide(cur, tree, now, opts)
		return database.Mutation{User: d.User}, nil
	})
	if err != nil {
		return d, fmt.Errorf("failed to evaluate user %d: %w", userID, err)
	}

	fields := []zap.Field{
		zap.Int64("user_id", userID),
		zap.String("pathway", string(d.Pathway)),
		zap.String("rule", d.Rule),
	}
	if !d.Sends() {
		if d.Skip != "" {
			logger.Debug("reminder skipped", append(fields, zap.String("reason", d.Skip))...)
		}
		return d, nil
	}

	if err := s.notifier.SendReminder(ctx, userID, *d.Push); err != nil {
		return d, fmt.Errorf("failed to send reminder to user %d: %w", userID, err)
	}
	logger.Info("reminder sent", fields...)
	return d, nil
}
