package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/sogretobot/pkg/models"
)

// UserProgressRepository reads and appends the practice history log
type UserProgressRepository struct {
	db *sqlx.DB
}

// NewUserProgressRepository creates a new repository instance
func NewUserProgressRepository(db *sqlx.DB) *UserProgressRepository {
	return &UserProgressRepository{db: db}
}

// Append writes one history entry outside of any user transaction
func (r *UserProgressRepository) Append(ctx context.Context, entry *models.HistoryEntry) error {
	return insertHistory(ctx, r.db, entry)
}

func insertHistory(ctx context.Context, e sqlx.ExtContext, entry *models.HistoryEntry) error {
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now().UTC()
	}
	query := `INSERT INTO user_progress (user_id, stage_id, step_id, day, action, user_response, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{entry.UserID, entry.StageID, entry.StepID, entry.Day, entry.Action, entry.Response, entry.CompletedAt}

	if e.DriverName() == DriverPostgres {
		// lib/pq has no LastInsertId
		if err := sqlx.GetContext(ctx, e, &entry.ID, e.Rebind(query+" RETURNING id"), args...); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
		return nil
	}

	res, err := e.ExecContext(ctx, e.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// ListByUser returns the history of one user, oldest first
func (r *UserProgressRepository) ListByUser(ctx context.Context, userID int64) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := r.db.SelectContext(ctx, &entries, r.db.Rebind(`
		SELECT id, user_id, stage_id, step_id, day, action, user_response, completed_at
		FROM user_progress WHERE user_id = ? ORDER BY completed_at, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history of user %d: %w", userID, err)
	}
	return entries, nil
}

// ListAll returns the whole log, optionally limited to entries at or
// after since
func (r *UserProgressRepository) ListAll(ctx context.Context, since time.Time) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := r.db.SelectContext(ctx, &entries, r.db.Rebind(`
		SELECT id, user_id, stage_id, step_id, day, action, user_response, completed_at
		FROM user_progress WHERE completed_at >= ? ORDER BY user_id, completed_at, id`), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return entries, nil
}

// CountByAction returns how many times each action was recorded
func (r *UserProgressRepository) CountByAction(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT action, COUNT(*) FROM user_progress GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("failed to scan history count: %w", err)
		}
		counts[action] = n
	}
	return counts, rows.Err()
}
