package repository

import (
	"context"
	"database/sql"
	"fmt"

	"scrims-bot/internal/constants"
	"scrims-bot/internal/domain"

	"github.com/rs/zerolog"
)

// SettlementRepository applies a match outcome in one transaction:
// every rostered player's points and stats, the history record, and the
// match row flip to settled. Either everything lands or nothing does,
// so a retry never double-applies deltas.
type SettlementRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSettlementRepository(sqlDB *sql.DB, logger zerolog.Logger) *SettlementRepository {
	return &SettlementRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *SettlementRepository) Settle(ctx context.Context, m domain.Match, rec domain.MatchRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// idempotency guard: a previous attempt may have committed before
	// its ack was lost
	var state string
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM matches WHERE guild_id = ? AND seq = ?`,
		m.GuildID, m.Seq).Scan(&state)
	if err != nil {
		return fmt.Errorf("failed to read match state: %w", err)
	}
	if state == string(domain.StateSettled) {
		return tx.Commit()
	}

	for _, id := range m.Roster {
		delta := m.Deltas[id]
		won := 0
		if m.Teams[id] == m.Winner {
			won = 1
		}
		mvp := 0
		if id == m.MVPID {
			mvp = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO players (id, username, points)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			id, id, constants.StartingPoints)
		if err != nil {
			return fmt.Errorf("failed to ensure player %s: %w", id, err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE players SET
				points = points + ?,
				matches_played = matches_played + 1,
				matches_won = matches_won + ?,
				mvp_count = mvp_count + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, delta, won, mvp, id)
		if err != nil {
			return fmt.Errorf("failed to apply delta for %s: %w", id, err)
		}
	}

	if err := insertHistoryTx(ctx, tx, rec); err != nil {
		return err
	}

	deltas, err := marshalJSON(m.Deltas)
	if err != nil {
		return fmt.Errorf("failed to encode deltas: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE matches SET
			state = ?,
			winner = ?,
			mvp_id = ?,
			proof_ref = ?,
			proof_penalty = ?,
			deltas = ?,
			last_activity_at = CURRENT_TIMESTAMP
		WHERE guild_id = ? AND seq = ?`,
		string(domain.StateSettled), string(m.Winner), m.MVPID, m.ProofRef,
		m.ProofPenalty, deltas, m.GuildID, m.Seq)
	if err != nil {
		return fmt.Errorf("failed to finalize match row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}

	r.logger.Info().
		Str("guild_id", m.GuildID).
		Int64("seq", m.Seq).
		Str("winner", string(m.Winner)).
		Str("mvp_id", m.MVPID).
		Msg("match settled")
	return nil
}
