package practice

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/sogretobot/internal/clock"
	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/internal/flow"
	"github.com/example/sogretobot/pkg/models"
)

const continuationTimeout = 30 * time.Second

// pending is the one scheduled continuation of a user
type pending struct {
	timer clock.Timer
}

// schedule arms c for the user. A newer continuation replaces an older
// one that has not fired yet.
func (s *Service) schedule(userID int64, c flow.Continuation) {
	delay := c.Delay
	if s.autoDelay > 0 {
		delay = s.autoDelay
	}
	if delay <= 0 {
		delay = flow.DefaultAutoProceedDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.pending[userID]; ok {
		old.timer.Stop()
	}
	p := &pending{}
	s.pending[userID] = p
	p.timer = s.clock.AfterFunc(delay, func() { s.fire(userID, p, c) })
}

func (s *Service) fire(userID int64, p *pending, c flow.Continuation) {
	s.mu.Lock()
	if s.pending[userID] == p {
		delete(s.pending, userID)
	}
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	sink := s.sink
	s.mu.Unlock()
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), continuationTimeout)
	defer cancel()

	r, ran, err := s.runContinuation(ctx, userID, c)
	logger := s.logger.With(zap.Int64("user_id", userID), zap.String("action", c.Action))
	switch {
	case err != nil:
		logger.Error("continuation failed", zap.Error(err))
		return
	case !ran:
		logger.Debug("continuation no longer applies", zap.String("from", c.From))
		return
	case sink == nil:
		logger.Warn("continuation has nowhere to go")
		return
	}
	if err := sink.Deliver(ctx, userID, r); err != nil {
		logger.Error("failed to deliver continuation", zap.Error(err))
	}
}

// runContinuation advances the user only while they still sit on the
// sub-step the continuation was scheduled from
func (s *Service) runContinuation(ctx context.Context, userID int64, c flow.Continuation) (models.Render, bool, error) {
	cycle, ok := flow.ForAction(c.Action)
	if !ok {
		return models.Render{}, false, nil
	}

	ran := false
	r, _, err := s.apply(ctx, userID, c.Action, func(u models.User, tree *content.Tree, now time.Time) flow.Result {
		if !c.Due(u) {
			return shown(u, models.Render{})
		}
		ran = true
		return flow.Next(cycle, u, tree, now)
	})
	return r, ran, err
}

// Shutdown cancels pending continuations and waits for running ones
func (s *Service) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()
	s.inflight.Wait()
}

// Pending returns the number of armed continuations
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
