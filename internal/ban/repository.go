package ban

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

type repository struct {
	db *sql.DB
}

// NewRepository returns a Store backed by the banned table.
func NewRepository(db *sql.DB) Store {
	return &repository{db: db}
}

func (r *repository) IsBanned(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, ErrEmptyUserID
	}
	const query = `SELECT 1 FROM banned WHERE user_id = $1 LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select ban: %w", err)
	}
	return true, nil
}

func (r *repository) BannedAmong(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(userIDs) == 0 {
		return out, nil
	}
	const query = `SELECT user_id FROM banned WHERE user_id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("select bans: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bans: %w", err)
	}
	return out, nil
}

func (r *repository) Ban(ctx context.Context, userID, reason string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUserID
	}
	const query = `
		INSERT INTO banned (user_id, banned_chat_reason, banned_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			banned_chat_reason = EXCLUDED.banned_chat_reason`
	if _, err := r.db.ExecContext(ctx, query, userID, reason); err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

func (r *repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
