package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sogretobot/pkg/models"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDriverFor(t *testing.T) {
	assert.Equal(t, DriverPostgres, DriverFor("postgres://u:p@localhost/db"))
	assert.Equal(t, DriverPostgres, DriverFor("postgresql://localhost/db"))
	assert.Equal(t, DriverSQLite, DriverFor("data/bot.db"))
	assert.Equal(t, DriverSQLite, DriverFor(":memory:"))
}

func TestEnsureCreatesAndRefreshes(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))

	u, created, err := repo.Ensure(ctx, models.User{ID: 100, Username: "anna", FirstName: "Anna"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, u.CurrentStage)
	assert.Equal(t, models.DefaultTimezone, u.Timezone)

	u, created, err = repo.Ensure(ctx, models.User{ID: 100, Username: "anna_k", FirstName: "Anna"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "anna_k", u.Username)

	stored, err := repo.GetByTelegramID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "anna_k", stored.Username)

	_, err = repo.GetByTelegramID(ctx, 404)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRoundTripKeepsEveryField(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))

	started := time.Date(2026, 1, 5, 7, 30, 0, 0, time.UTC)
	until := started.Add(2 * time.Hour)
	u := models.NewUser(7)
	u.CurrentStage, u.CurrentStep = 3, 0
	u.DailyPracticeDay = 2
	u.DailyPracticeSubstep = "checkin"
	u.LastPracticeDate = "2026-01-06"
	u.ReminderPostponed = true
	u.PostponedUntil = &until
	u.Stage4ReminderDate = "2026-01-09"
	u.StartedAt = &started
	u.Timezone = "Asia/Novosibirsk"
	u.PreferredTime = "20:00"
	require.NoError(t, repo.Create(ctx, &u))

	got, err := repo.GetByTelegramID(ctx, 7)
	require.NoError(t, err)

	opts := cmp.Options{
		cmpopts.EquateApproxTime(time.Second),
		cmpopts.IgnoreFields(models.User{}, "CreatedAt", "UpdatedAt"),
	}
	if diff := cmp.Diff(u, *got, opts); diff != "" {
		t.Errorf("stored user differs (-want +got):\n%s", diff)
	}
}

func TestWithUserPersistsMutationAndHistory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewUserRepository(db)
	history := NewUserProgressRepository(db)

	u := models.NewUser(1)
	require.NoError(t, repo.Create(ctx, &u))

	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	out, err := repo.WithUser(ctx, 1, func(cur models.User) (Mutation, error) {
		cur.CurrentStep = 2
		// outside stage 1 the flag is dropped on save
		cur.CurrentStage = 2
		cur.AwaitingSprouts = true
		return Mutation{User: &cur, History: []models.HistoryEntry{models.NewHistoryEntry(cur, "next_step", at)}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.CurrentStep)
	assert.False(t, out.AwaitingSprouts)

	stored, err := repo.GetByTelegramID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentStep)
	assert.False(t, stored.AwaitingSprouts)

	entries, err := history.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "next_step", entries[0].Action)
	assert.Equal(t, 2, entries[0].StepID)
	assert.NotZero(t, entries[0].ID)
	assert.True(t, at.Equal(entries[0].CompletedAt))
}

func TestWithUserRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewUserRepository(db)

	u := models.NewUser(1)
	require.NoError(t, repo.Create(ctx, &u))

	boom := errors.New("boom")
	_, err := repo.WithUser(ctx, 1, func(cur models.User) (Mutation, error) {
		cur.CurrentStep = 4
		return Mutation{User: &cur}, boom
	})
	assert.ErrorIs(t, err, boom)

	// a failing history insert undoes the user update as well
	_, err = db.Exec("DROP TABLE user_progress")
	require.NoError(t, err)
	_, err = repo.WithUser(ctx, 1, func(cur models.User) (Mutation, error) {
		cur.CurrentStep = 6
		return Mutation{User: &cur, History: []models.HistoryEntry{models.NewHistoryEntry(cur, "next_step", time.Now())}}, nil
	})
	require.Error(t, err)

	stored, err := repo.GetByTelegramID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentStep)
}

func TestWithUserUnknownUser(t *testing.T) {
	repo := NewUserRepository(openTestDB(t))

	called := false
	_, err := repo.WithUser(context.Background(), 9, func(models.User) (Mutation, error) {
		called = true
		return Mutation{}, nil
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.False(t, called)
}

func TestWithUserSerializesSameUser(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	u := models.NewUser(1)
	require.NoError(t, repo.Create(ctx, &u))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.WithUser(ctx, 1, func(cur models.User) (Mutation, error) {
				cur.CurrentDay++
				return Mutation{User: &cur}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.GetByTelegramID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1+n, stored.CurrentDay)
	assert.Zero(t, repo.locks.size())
}

func TestListActiveAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	started := time.Now().UTC()

	active := models.NewUser(1)
	active.StartedAt = &started
	paused := models.NewUser(2)
	paused.StartedAt = &started
	paused.IsPaused = true
	fresh := models.NewUser(3)
	done := models.NewUser(4)
	done.StartedAt = &started
	done.CompletedAt = &started

	for _, u := range []*models.User{&active, &paused, &fresh, &done} {
		require.NoError(t, repo.Create(ctx, u))
	}

	users, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(1), users[0].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	total, activeCount, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 1, activeCount)
}

func TestHistoryListAll(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewUserRepository(db)
	history := NewUserProgressRepository(db)

	for _, id := range []int64{1, 2} {
		u := models.NewUser(id)
		require.NoError(t, repo.Create(ctx, &u))
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, e := range []models.HistoryEntry{
		{UserID: 2, StageID: 1, StepID: 2, Action: "next_step", CompletedAt: base.Add(time.Hour)},
		{UserID: 1, StageID: 1, StepID: 2, Action: "next_step", CompletedAt: base.Add(2 * time.Hour)},
		{UserID: 1, StageID: 3, StepID: 0, Day: 1, Action: "daily_choice_A", Response: "A", CompletedAt: base.Add(-time.Hour)},
	} {
		e := e
		require.NoError(t, history.Append(ctx, &e), i)
	}

	all, err := history.ListAll(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].UserID)
	assert.Equal(t, "A", all[0].Response)

	recent, err := history.ListAll(ctx, base)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	counts, err := history.CountByAction(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"next_step": 2, "daily_choice_A": 1}, counts)
}
