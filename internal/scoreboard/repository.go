package scoreboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/park285/focus-party/internal/domain"
)

// Repository is the relational scoreboard, unique on (user_id, month).
type Repository interface {
	// Month returns every row of the month sorted by score descending.
	Month(ctx context.Context, month string) ([]domain.ScoreboardEntry, error)
	UserScore(ctx context.Context, userID, month string) (int64, bool, error)
	// UpsertBatch writes all entries in one statement.
	UpsertBatch(ctx context.Context, entries []domain.ScoreboardEntry) error
	ClearMonth(ctx context.Context, month string) error
	Ping(ctx context.Context) error
}

type pgRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &pgRepository{db: db}
}

func (r *pgRepository) Month(ctx context.Context, month string) ([]domain.ScoreboardEntry, error) {
	const query = `
		SELECT user_id, user_name, score, month, region
		FROM scoreboard
		WHERE month = $1
		ORDER BY score DESC, user_id ASC`
	rows, err := r.db.QueryContext(ctx, query, month)
	if err != nil {
		return nil, fmt.Errorf("select scoreboard: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoreboardEntry
	for rows.Next() {
		var e domain.ScoreboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Score, &e.Month, &e.Region); err != nil {
			return nil, fmt.Errorf("scan scoreboard: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scoreboard: %w", err)
	}
	return out, nil
}

func (r *pgRepository) UserScore(ctx context.Context, userID, month string) (int64, bool, error) {
	const query = `SELECT score FROM scoreboard WHERE user_id = $1 AND month = $2`
	var score int64
	err := r.db.QueryRowContext(ctx, query, userID, month).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select user score: %w", err)
	}
	return score, true, nil
}

func (r *pgRepository) UpsertBatch(ctx context.Context, entries []domain.ScoreboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	names := make([]string, len(entries))
	scores := make([]int64, len(entries))
	months := make([]string, len(entries))
	regions := make([]string, len(entries))
	for i, e := range entries {
		ids[i], names[i], scores[i], months[i], regions[i] = e.UserID, e.Username, e.Score, e.Month, e.Region
	}

	const query = `
		INSERT INTO scoreboard (user_id, user_name, score, month, region, updated_at)
		SELECT u.user_id, u.user_name, u.score, u.month, u.region, NOW()
		FROM unnest($1::text[], $2::text[], $3::bigint[], $4::text[], $5::text[])
			AS u(user_id, user_name, score, month, region)
		ON CONFLICT (user_id, month) DO UPDATE SET
			user_name  = EXCLUDED.user_name,
			score      = EXCLUDED.score,
			region     = EXCLUDED.region,
			updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query,
		pq.Array(ids), pq.Array(names), pq.Array(scores), pq.Array(months), pq.Array(regions))
	if err != nil {
		return fmt.Errorf("upsert scoreboard: %w", err)
	}
	return nil
}

func (r *pgRepository) ClearMonth(ctx context.Context, month string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM scoreboard WHERE month = $1`, month); err != nil {
		return fmt.Errorf("clear scoreboard: %w", err)
	}
	return nil
}

func (r *pgRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
