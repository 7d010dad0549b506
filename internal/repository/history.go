package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"scrims-bot/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// HistoryRepository stores the immutable per-match records shown by the
// history views.
type HistoryRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewHistoryRepository(sqlDB *sql.DB, logger zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *HistoryRepository) Record(ctx context.Context, rec domain.MatchRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertHistoryTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// insertHistoryTx is shared with the settlement transaction.
func insertHistoryTx(ctx context.Context, tx *sql.Tx, rec domain.MatchRecord) error {
	id := rec.ID
	if id == "" {
		var err error
		id, err = gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
	}

	roster, err := marshalJSON(rec.Roster)
	if err != nil {
		return fmt.Errorf("failed to encode roster: %w", err)
	}
	teams, err := marshalJSON(rec.Teams)
	if err != nil {
		return fmt.Errorf("failed to encode teams: %w", err)
	}
	deltas, err := marshalJSON(rec.Deltas)
	if err != nil {
		return fmt.Errorf("failed to encode deltas: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO match_history (
			id, guild_id, match_seq, roster, teams, winner, mvp_id,
			deltas, proof_ref, cancelled, reason, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, rec.GuildID, rec.MatchSeq, roster, teams, string(rec.Winner),
		rec.MVPID, deltas, rec.ProofRef, rec.Cancelled, rec.Reason,
		rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match history: %w", err)
	}
	return nil
}

// List returns one page of a guild's history, newest first.
func (r *HistoryRepository) List(ctx context.Context, guildID string, limit, offset int) ([]domain.MatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, guild_id, match_seq, roster, teams, winner, mvp_id,
			deltas, proof_ref, cancelled, reason, completed_at
		FROM match_history
		WHERE guild_id = ?
		ORDER BY completed_at DESC
		LIMIT ? OFFSET ?`, guildID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query match history: %w", err)
	}
	defer rows.Close()

	var out []domain.MatchRecord
	for rows.Next() {
		var rec domain.MatchRecord
		var roster, teams, deltas, winner string
		err := rows.Scan(&rec.ID, &rec.GuildID, &rec.MatchSeq, &roster,
			&teams, &winner, &rec.MVPID, &deltas, &rec.ProofRef,
			&rec.Cancelled, &rec.Reason, &rec.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match history: %w", err)
		}
		rec.Winner = domain.Team(winner)
		if err := json.Unmarshal([]byte(roster), &rec.Roster); err != nil {
			return nil, fmt.Errorf("failed to decode roster: %w", err)
		}
		if err := json.Unmarshal([]byte(teams), &rec.Teams); err != nil {
			return nil, fmt.Errorf("failed to decode teams: %w", err)
		}
		if err := json.Unmarshal([]byte(deltas), &rec.Deltas); err != nil {
			return nil, fmt.Errorf("failed to decode deltas: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
