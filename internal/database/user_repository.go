package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/sogretobot/pkg/models"
)

// ErrUserNotFound is returned when no record exists for a Telegram ID
var ErrUserNotFound = errors.New("user not found")

const userColumns = `telegram_id, username, first_name, last_name,
	current_stage, current_step, current_day, is_paused, awaiting_sprouts,
	daily_practice_day, daily_practice_substep, last_practice_date,
	reminder_postponed, postponed_until, stage4_reminder_date, stage6_reminder_date,
	started_at, last_reminder_sent, completed_at, timezone, preferred_time,
	created_at, updated_at`

// Mutation is what a WithUser callback wants persisted. A nil User leaves
// the record untouched.
type Mutation struct {
	User    *models.User
	History []models.HistoryEntry
}

// UserRepository handles database operations for users
type UserRepository struct {
	db    *sqlx.DB
	locks *userLocks
	now   func() time.Time
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db, locks: newUserLocks(), now: time.Now}
}

// GetByTelegramID returns a user by Telegram ID
func (r *UserRepository) GetByTelegramID(ctx context.Context, id int64) (*models.User, error) {
	return r.get(ctx, r.db, id, false)
}

func (r *UserRepository) get(ctx context.Context, q sqlx.QueryerContext, id int64, forUpdate bool) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE telegram_id = ?"
	if forUpdate && r.db.DriverName() == DriverPostgres {
		query += " FOR UPDATE"
	}

	var user models.User
	if err := sqlx.GetContext(ctx, q, &user, r.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := r.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	if err := insertUser(ctx, r.db, user); err != nil {
		return fmt.Errorf("failed to create user %d: %w", user.ID, err)
	}
	return nil
}

func insertUser(ctx context.Context, e sqlx.ExtContext, user *models.User) error {
	_, err := sqlx.NamedExecContext(ctx, e, `
		INSERT INTO users (
			telegram_id, username, first_name, last_name,
			current_stage, current_step, current_day, is_paused, awaiting_sprouts,
			daily_practice_day, daily_practice_substep, last_practice_date,
			reminder_postponed, postponed_until, stage4_reminder_date, stage6_reminder_date,
			started_at, last_reminder_sent, completed_at, timezone, preferred_time,
			created_at, updated_at
		) VALUES (
			:telegram_id, :username, :first_name, :last_name,
			:current_stage, :current_step, :current_day, :is_paused, :awaiting_sprouts,
			:daily_practice_day, :daily_practice_substep, :last_practice_date,
			:reminder_postponed, :postponed_until, :stage4_reminder_date, :stage6_reminder_date,
			:started_at, :last_reminder_sent, :completed_at, :timezone, :preferred_time,
			:created_at, :updated_at
		)`, user)
	return err
}

// Ensure returns the user with the given profile, creating it when it
// does not exist yet. Profile names are refreshed on every call.
func (r *UserRepository) Ensure(ctx context.Context, profile models.User) (*models.User, bool, error) {
	unlock := r.locks.lock(profile.ID)
	defer unlock()

	existing, err := r.get(ctx, r.db, profile.ID, false)
	switch {
	case errors.Is(err, ErrUserNotFound):
		user := models.NewUser(profile.ID)
		user.Username, user.FirstName, user.LastName = profile.Username, profile.FirstName, profile.LastName
		if err := r.Create(ctx, &user); err != nil {
			return nil, false, err
		}
		return &user, true, nil
	case err != nil:
		return nil, false, err
	}

	if existing.Username == profile.Username && existing.FirstName == profile.FirstName && existing.LastName == profile.LastName {
		return existing, false, nil
	}
	existing.Username, existing.FirstName, existing.LastName = profile.Username, profile.FirstName, profile.LastName
	if err := r.Update(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Update writes every progress field of the user
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = r.now().UTC()
	if err := updateUser(ctx, r.db, user); err != nil {
		return err
	}
	return nil
}

func updateUser(ctx context.Context, e sqlx.ExtContext, user *models.User) error {
	res, err := sqlx.NamedExecContext(ctx, e, `
		UPDATE users SET
			username = :username,
			first_name = :first_name,
			last_name = :last_name,
			current_stage = :current_stage,
			current_step = :current_step,
			current_day = :current_day,
			is_paused = :is_paused,
			awaiting_sprouts = :awaiting_sprouts,
			daily_practice_day = :daily_practice_day,
			daily_practice_substep = :daily_practice_substep,
			last_practice_date = :last_practice_date,
			reminder_postponed = :reminder_postponed,
			postponed_until = :postponed_until,
			stage4_reminder_date = :stage4_reminder_date,
			stage6_reminder_date = :stage6_reminder_date,
			started_at = :started_at,
			last_reminder_sent = :last_reminder_sent,
			completed_at = :completed_at,
			timezone = :timezone,
			preferred_time = :preferred_time,
			updated_at = :updated_at
		WHERE telegram_id = :telegram_id`, user)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", user.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// WithUser runs fn on the current record of the user and persists the
// returned mutation. Calls for the same user are serialized and the
// read, the update and the history rows share one transaction; when fn
// or any write fails nothing is stored.
func (r *UserRepository) WithUser(ctx context.Context, id int64, fn func(models.User) (Mutation, error)) (models.User, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := r.get(ctx, tx, id, true)
	if err != nil {
		return models.User{}, err
	}

	m, err := fn(*current)
	if err != nil {
		return *current, err
	}

	result := *current
	if m.User != nil {
		next := *m.User
		next.ID = id
		next.Normalize()
		next.UpdatedAt = r.now().UTC()
		if err := updateUser(ctx, tx, &next); err != nil {
			return *current, err
		}
		result = next
	}
	for i := range m.History {
		m.History[i].UserID = id
		if err := insertHistory(ctx, tx, &m.History[i]); err != nil {
			return *current, err
		}
	}

	if err := tx.Commit(); err != nil {
		return *current, fmt.Errorf("failed to commit user %d: %w", id, err)
	}
	return result, nil
}

// ListActive returns users the scheduler should look at: started, not
// paused and not finished
func (r *UserRepository) ListActive(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, "SELECT "+userColumns+` FROM users
		WHERE is_paused = FALSE AND started_at IS NOT NULL AND completed_at IS NULL
		ORDER BY telegram_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return users, nil
}

// List returns all users
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY telegram_id"); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Count returns the number of users and how many of them are active
func (r *UserRepository) Count(ctx context.Context) (total, active int, err error) {
	if err = r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, 0, fmt.Errorf("failed to count users: %w", err)
	}
	err = r.db.GetContext(ctx, &active, `SELECT COUNT(*) FROM users
		WHERE is_paused = FALSE AND started_at IS NOT NULL AND completed_at IS NULL`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return total, active, nil
}
