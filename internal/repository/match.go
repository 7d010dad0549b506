package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"scrims-bot/internal/domain"

	"github.com/rs/zerolog"
)

// MatchRepository persists active match rows. Rows stay in the table
// after settlement or cancellation so sequence numbers never repeat.
type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type matchRow struct {
	roster, teams, scores, config, winnerVotes, mvpVotes, deltas string
}

func encodeMatch(m *domain.Match) (matchRow, error) {
	var row matchRow
	var err error
	encode := func(dst *string, v any) {
		if err != nil {
			return
		}
		*dst, err = marshalJSON(v)
	}
	encode(&row.roster, m.Roster)
	encode(&row.teams, m.Teams)
	encode(&row.scores, m.Scores)
	encode(&row.config, m.Config)
	encode(&row.winnerVotes, m.WinnerVotes)
	encode(&row.mvpVotes, m.MVPVotes)
	encode(&row.deltas, m.Deltas)
	if err != nil {
		return matchRow{}, fmt.Errorf("failed to encode match: %w", err)
	}
	return row, nil
}

func (r *MatchRepository) Save(ctx context.Context, m *domain.Match) error {
	row, err := encodeMatch(m)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO matches (
			guild_id, seq, roster, leader1, leader2, teams, scores, config,
			state, lobby_id, winner_votes, mvp_votes, winner, mvp_id,
			proof_ref, proof_penalty, cancel_reason, deltas,
			created_at, last_activity_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, seq) DO UPDATE SET
			teams = excluded.teams,
			scores = excluded.scores,
			state = excluded.state,
			lobby_id = excluded.lobby_id,
			winner_votes = excluded.winner_votes,
			mvp_votes = excluded.mvp_votes,
			winner = excluded.winner,
			mvp_id = excluded.mvp_id,
			proof_ref = excluded.proof_ref,
			proof_penalty = excluded.proof_penalty,
			cancel_reason = excluded.cancel_reason,
			deltas = excluded.deltas,
			last_activity_at = excluded.last_activity_at`,
		m.GuildID, m.Seq, row.roster, m.Leader1, m.Leader2, row.teams,
		row.scores, row.config, string(m.State), m.LobbyID, row.winnerVotes,
		row.mvpVotes, string(m.Winner), m.MVPID, m.ProofRef, m.ProofPenalty,
		m.CancelReason, row.deltas, m.CreatedAt, m.LastActivityAt)
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}

// NextSeq allocates the next per-guild match number. Terminal rows are
// kept, so numbers stay monotonic across restarts.
func (r *MatchRepository) NextSeq(ctx context.Context, guildID string) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM matches WHERE guild_id = ?`,
		guildID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return seq, nil
}

// Active loads every non-terminal match for crash recovery.
func (r *MatchRepository) Active(ctx context.Context) ([]domain.Match, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT guild_id, seq, roster, leader1, leader2, teams, scores, config,
			state, lobby_id, winner_votes, mvp_votes, winner, mvp_id,
			proof_ref, proof_penalty, cancel_reason, deltas,
			created_at, last_activity_at
		FROM matches
		WHERE state NOT IN ('settled', 'cancelled')`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active matches: %w", err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		var m domain.Match
		var row matchRow
		var state, winner string
		err := rows.Scan(&m.GuildID, &m.Seq, &row.roster, &m.Leader1,
			&m.Leader2, &row.teams, &row.scores, &row.config, &state,
			&m.LobbyID, &row.winnerVotes, &row.mvpVotes, &winner, &m.MVPID,
			&m.ProofRef, &m.ProofPenalty, &m.CancelReason, &row.deltas,
			&m.CreatedAt, &m.LastActivityAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.State = domain.MatchState(state)
		m.Winner = domain.Team(winner)

		var derr error
		decode := func(dst any, src string) {
			if derr == nil {
				derr = json.Unmarshal([]byte(src), dst)
			}
		}
		decode(&m.Roster, row.roster)
		decode(&m.Teams, row.teams)
		decode(&m.Scores, row.scores)
		decode(&m.Config, row.config)
		decode(&m.WinnerVotes, row.winnerVotes)
		decode(&m.MVPVotes, row.mvpVotes)
		decode(&m.Deltas, row.deltas)
		if derr != nil {
			return nil, fmt.Errorf("failed to decode match %s#%d: %w", m.GuildID, m.Seq, derr)
		}
		if m.WinnerVotes == nil {
			m.WinnerVotes = make(map[string]domain.Team)
		}
		if m.MVPVotes == nil {
			m.MVPVotes = make(map[string]string)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
