// Package practice dispatches user actions to the progression logic and
// stores the outcome. Every action is load, compute, persist for one
// user; rendering is left to the transport.
package practice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/sogretobot/internal/clock"
	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/internal/database"
	"github.com/example/sogretobot/internal/flow"
	"github.com/example/sogretobot/internal/progress"
	"github.com/example/sogretobot/pkg/models"
)

// DefaultPostponeFor is how long "remind me later" waits
const DefaultPostponeFor = 2 * time.Hour

// ErrUnknownAction is returned for tokens no handler recognizes
var ErrUnknownAction = errors.New("unknown action")

// Users is the part of the user repository the service needs
type Users interface {
	Ensure(ctx context.Context, profile models.User) (*models.User, bool, error)
	GetByTelegramID(ctx context.Context, id int64) (*models.User, error)
	WithUser(ctx context.Context, id int64, fn func(models.User) (database.Mutation, error)) (models.User, error)
}

// TreeSource hands out the current content snapshot
type TreeSource interface {
	Tree() *content.Tree
}

// Sink delivers renders produced outside of a user request, such as an
// auto-proceeding sub-step
type Sink interface {
	Deliver(ctx context.Context, userID int64, r models.Render) error
}

// Config holds the optional service settings
type Config struct {
	AutoProceedDelay time.Duration
	PostponeFor      time.Duration
	Clock            clock.Clock
	Logger           *zap.Logger
}

// Service runs user actions against the stored progress
type Service struct {
	users       Users
	content     TreeSource
	sink        Sink
	clock       clock.Clock
	logger      *zap.Logger
	autoDelay   time.Duration
	postponeFor time.Duration

	mu       sync.Mutex
	pending  map[int64]*pending
	closed   bool
	inflight sync.WaitGroup
}

// New creates the service. sink may be nil until SetSink is called.
func New(users Users, src TreeSource, sink Sink, cfg Config) *Service {
	if cfg.PostponeFor <= 0 {
		cfg.PostponeFor = DefaultPostponeFor
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		users:       users,
		content:     src,
		sink:        sink,
		clock:       cfg.Clock,
		logger:      cfg.Logger.Named("practice"),
		autoDelay:   cfg.AutoProceedDelay,
		postponeFor: cfg.PostponeFor,
		pending:     make(map[int64]*pending),
	}
}

// SetSink sets where continuation renders go
func (s *Service) SetSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Handle runs one action token for the user and returns what to show.
// Unknown tokens yield ErrUnknownAction together with a visible reply.
func (s *Service) Handle(ctx context.Context, userID int64, action string) (models.Render, error) {
	op, ok := s.resolve(action)
	if !ok {
		s.logger.Warn("unknown action", zap.Int64("user_id", userID), zap.String("action", action))
		return models.Render{Message: "🚧 Эта функция пока не реализована.", Alert: true},
			fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	r, _, err := s.apply(ctx, userID, action, op)
	return r, err
}

// apply loads the user, computes the result and persists it in one
// transaction. Continuations are scheduled after the commit.
func (s *Service) apply(ctx context.Context, userID int64, action string, op operation) (models.Render, flow.Result, error) {
	tree := s.content.Tree()
	now := s.clock.Now()

	var res flow.Result
	_, err := s.users.WithUser(ctx, userID, func(cur models.User) (database.Mutation, error) {
		res = op(cur, tree, now)
		var m database.Mutation
		if res.Changed {
			u := res.User
			m.User = &u
		}
		if res.Entry != nil {
			m.History = []models.HistoryEntry{*res.Entry}
		}
		return m, nil
	})
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return models.Render{Message: "Сначала запустите бота командой /start."}, res, err
		}
		s.logger.Error("action failed",
			zap.Int64("user_id", userID), zap.String("action", action), zap.Error(err))
		return models.Render{Message: "😞 Произошла ошибка. Попробуйте ещё раз чуть позже."}, res, err
	}

	s.logger.Debug("action handled",
		zap.Int64("user_id", userID),
		zap.String("action", action),
		zap.Stringer("outcome", res.Outcome),
		zap.Bool("changed", res.Changed))

	if res.Outcome == progress.OutcomeNotFound {
		return res.Render, res, fmt.Errorf("%w: action %q at stage %d step %d",
			content.ErrNotFound, action, res.User.CurrentStage, res.User.CurrentStep)
	}
	if res.Continuation != nil {
		s.schedule(userID, *res.Continuation)
	}
	return res.Render, res, nil
}

// Register creates the user on first contact and refreshes the profile
// names afterwards
func (s *Service) Register(ctx context.Context, profile models.User) (models.User, bool, error) {
	u, created, err := s.users.Ensure(ctx, profile)
	if err != nil {
		return models.User{}, false, err
	}
	if created {
		s.logger.Info("new user", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	}
	return *u, created, nil
}

// StartPractice begins the program, or shows the current step to a user
// who already started
func (s *Service) StartPractice(ctx context.Context, profile models.User) (models.Render, error) {
	if _, _, err := s.Register(ctx, profile); err != nil {
		return models.Render{Message: "😞 Произошла ошибка. Попробуйте ещё раз чуть позже."}, err
	}
	return s.Handle(ctx, profile.ID, actionStartPractice)
}

// Status describes where the user is
func (s *Service) Status(ctx context.Context, userID int64) (models.Render, error) {
	u, err := s.users.GetByTelegramID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return models.Render{Message: "Сначала запустите бота командой /start."}, err
		}
		return models.Render{Message: "😞 Не удалось получить статус."}, err
	}
	return status(*u, s.content.Tree(), s.clock.Now()), nil
}

// SetPaused stops or resumes reminders for the user
func (s *Service) SetPaused(ctx context.Context, userID int64, paused bool) (models.Render, error) {
	action := actionPause
	if !paused {
		action = actionResume
	}
	r, _, err := s.apply(ctx, userID, action, func(u models.User, _ *content.Tree, _ time.Time) flow.Result {
		return setPaused(u, paused)
	})
	return r, err
}

// RequestReset asks the user to confirm a reset
func (s *Service) RequestReset() models.Render {
	return resetPrompt()
}

// Settings offers the reminder settings pickers
func (s *Service) Settings(ctx context.Context, userID int64) (models.Render, error) {
	u, err := s.users.GetByTelegramID(ctx, userID)
	if err != nil {
		return models.Render{Message: "Сначала запустите бота командой /start."}, err
	}
	return settingsPrompt(*u), nil
}
