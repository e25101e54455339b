package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/example/sogretobot/internal/clock"
	"github.com/example/sogretobot/internal/content/contenttest"
	"github.com/example/sogretobot/internal/database"
	"github.com/example/sogretobot/pkg/models"
)

type sent struct {
	userID int64
	render models.Render
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sent
	fails map[int64]error
}

func (n *fakeNotifier) SendReminder(_ context.Context, userID int64, r models.Render) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fails[userID]; err != nil {
		return err
	}
	n.sent = append(n.sent, sent{userID: userID, render: r})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func newTestScheduler(t *testing.T, users UserStore, notifier Notifier, now time.Time) *Scheduler {
	t.Helper()
	return New(users, contenttest.Store(t), notifier, Config{
		Clock:  clock.Fake(now),
		Logger: zaptest.NewLogger(t),
	})
}

func seed(t *testing.T, repo *database.UserRepository, users ...models.User) {
	t.Helper()
	for i := range users {
		require.NoError(t, repo.Create(context.Background(), &users[i]))
	}
}

func TestTickSendsOncePerDay(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := database.NewUserRepository(db)

	stalled := activeUser(2, 7, 5)
	stalled.ID = 1
	fresh := activeUser(2, 7, 1)
	fresh.ID = 2
	paused := activeUser(2, 7, 5)
	paused.ID = 3
	paused.IsPaused = true
	seed(t, repo, stalled, fresh, paused)

	notifier := &fakeNotifier{}
	s := newTestScheduler(t, repo, notifier, inWindow)

	report := s.Tick(ctx)
	assert.NotEmpty(t, report.TickID)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(1), notifier.sent[0].userID)

	stored, err := repo.GetByTelegramID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stored.LastReminderSent)
	assert.True(t, inWindow.Equal(*stored.LastReminderSent))

	again := s.Tick(ctx)
	assert.NotEqual(t, report.TickID, again.TickID)
	assert.Zero(t, again.Sent)
	assert.Len(t, notifier.sent, 1)
}

func TestTickContinuesAfterSendFailure(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := database.NewUserRepository(db)

	var users []models.User
	for id := int64(1); id <= 3; id++ {
		u := activeUser(2, 7, 6)
		u.ID = id
		users = append(users, u)
	}
	seed(t, repo, users...)

	notifier := &fakeNotifier{fails: map[int64]error{2: errors.New("Forbidden: bot was blocked by the user")}}
	s := newTestScheduler(t, repo, notifier, inWindow)

	report := s.Tick(ctx)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, notifier.sent, 2)
}

func TestTickMilestoneClearsDate(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := database.NewUserRepository(db)

	u := activeUser(4, 12, 7)
	u.ID = 5
	u.Stage4ReminderDate = u.LocalDate(inWindow)
	seed(t, repo, u)

	notifier := &fakeNotifier{}
	report := newTestScheduler(t, repo, notifier, inWindow).Tick(ctx)
	assert.Equal(t, 1, report.Sent)

	stored, err := repo.GetByTelegramID(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, stored.Stage4ReminderDate)
	assert.Nil(t, stored.LastReminderSent)
}

func TestRunManualCheckIgnoresWindow(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := database.NewUserRepository(db)

	u := activeUser(3, 0, 6)
	u.ID = 9
	u.DailyPracticeDay = 1
	seed(t, repo, u)

	notifier := &fakeNotifier{}
	s := newTestScheduler(t, repo, notifier, inWindow.Add(10*time.Hour))

	assert.Zero(t, s.Tick(ctx).Sent)

	d, err := s.RunManualCheck(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, PathwayCycleDay, d.Pathway)
	assert.Equal(t, 1, notifier.count())

	_, err = s.RunManualCheck(ctx, 404)
	assert.ErrorIs(t, err, database.ErrUserNotFound)
}

// memStore keeps users in memory so the scheduler goroutines can be
// checked without a database pool running
type memStore struct {
	mu    sync.Mutex
	users map[int64]models.User
}

func (m *memStore) ListActive(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if u.Active() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) WithUser(_ context.Context, id int64, fn func(models.User) (database.Mutation, error)) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[id]
	if !ok {
		return models.User{}, database.ErrUserNotFound
	}
	mut, err := fn(cur)
	if err != nil {
		return cur, err
	}
	if mut.User != nil {
		cur = *mut.User
		cur.Normalize()
		m.users[id] = cur
	}
	return cur, nil
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	u := activeUser(2, 7, 5)
	store := &memStore{users: map[int64]models.User{u.ID: u}}
	notifier := &fakeNotifier{}
	s := New(store, contenttest.Store(t), notifier, Config{
		Interval: 20 * time.Millisecond,
		Clock:    clock.Fake(inWindow),
		Logger:   zaptest.NewLogger(t),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return notifier.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	// later ticks found the user already reminded
	assert.Equal(t, 1, notifier.count())
}
