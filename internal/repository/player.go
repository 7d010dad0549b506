package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scrims-bot/internal/constants"
	"scrims-bot/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const playerColumns = `id, username, points, matches_played, matches_won, mvp_count, timeout_until, created_at, updated_at`

func scanPlayer(row interface{ Scan(...any) error }) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.Username, &p.Points, &p.MatchesPlayed,
		&p.MatchesWon, &p.MVPCount, &p.TimeoutUntil, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlayerRepository) Get(ctx context.Context, id string) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = ?`, id)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

// GetOrCreate registers a player on first contact with the starting
// rating, and refreshes the stored username on every call.
func (r *PlayerRepository) GetOrCreate(ctx context.Context, id, username string) (*domain.Player, error) {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO players (id, username, points, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			updated_at = excluded.updated_at`,
		id, username, constants.StartingPoints, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert player: %w", err)
	}
	return r.Get(ctx, id)
}

// AdjustPoints applies a signed delta and returns the new total.
// Deltas may push a rating negative; the ladder shows what happened.
func (r *PlayerRepository) AdjustPoints(ctx context.Context, id string, delta int) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE players
		SET points = points + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING points`, delta, id)

	var points int
	if err := row.Scan(&points); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrPlayerNotFound
		}
		return 0, fmt.Errorf("failed to adjust points: %w", err)
	}
	return points, nil
}

func (r *PlayerRepository) SetTimeout(ctx context.Context, id string, until time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE players SET timeout_until = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, until, id)
	if err != nil {
		return fmt.Errorf("failed to set timeout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (r *PlayerRepository) ClearTimeout(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE players SET timeout_until = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to clear timeout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// IsTimedOut implements the queue admission gate. Unknown players are
// not banned.
func (r *PlayerRepository) IsTimedOut(ctx context.Context, id string) (bool, error) {
	var until sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT timeout_until FROM players WHERE id = ?`, id).Scan(&until)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check timeout: %w", err)
	}
	return until.Valid && time.Now().Before(until.Time), nil
}

// Leaderboard returns one page of players ordered by points, with wins
// and MVP count as tiebreakers.
func (r *PlayerRepository) Leaderboard(ctx context.Context, limit, offset int) ([]domain.Player, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+playerColumns+` FROM players
		ORDER BY points DESC, matches_won DESC, mvp_count DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

// RankPosition returns the 1-based ladder position for a player under
// the leaderboard ordering.
func (r *PlayerRepository) RankPosition(ctx context.Context, id string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT pos FROM (
			SELECT id, ROW_NUMBER() OVER (
				ORDER BY points DESC, matches_won DESC, mvp_count DESC
			) AS pos
			FROM players
		) WHERE id = ?`, id)

	var pos int
	if err := row.Scan(&pos); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrPlayerNotFound
		}
		return 0, fmt.Errorf("failed to rank player: %w", err)
	}
	return pos, nil
}

func (r *PlayerRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return n, nil
}
