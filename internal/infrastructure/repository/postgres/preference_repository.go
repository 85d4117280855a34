package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PreferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// AIEnabled reports the user's opt-in. Unknown users have not opted in.
func (r *PreferenceRepository) AIEnabled(ctx context.Context, userID string) (bool, error) {
	var enabled bool
	err := r.db.QueryRowContext(ctx, `SELECT ai_enabled FROM users WHERE id = $1`, userID).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read ai preference: %w", err)
	}
	return enabled, nil
}
