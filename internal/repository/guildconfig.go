package repository

import (
	"context"
	"database/sql"
	"fmt"

	"scrims-bot/internal/domain"

	"github.com/rs/zerolog"
)

type GuildConfigRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewGuildConfigRepository(sqlDB *sql.DB, logger zerolog.Logger) *GuildConfigRepository {
	return &GuildConfigRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Get returns a guild's config, inserting the schema defaults on first
// contact so every guild always has a row.
func (r *GuildConfigRepository) Get(ctx context.Context, guildID string) (domain.GuildConfig, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guild_config (guild_id) VALUES (?)
		ON CONFLICT(guild_id) DO NOTHING`, guildID)
	if err != nil {
		return domain.GuildConfig{}, fmt.Errorf("failed to seed guild config: %w", err)
	}

	var cfg domain.GuildConfig
	err = r.db.QueryRowContext(ctx, `
		SELECT guild_id, queue_size, points_win, points_loss, points_mvp,
			timeout_minutes, no_proof_penalty, proof_timeout_minutes,
			proof_required, rank_roles_enabled, updated_at
		FROM guild_config WHERE guild_id = ?`, guildID).Scan(
		&cfg.GuildID, &cfg.QueueSize, &cfg.PointsWin, &cfg.PointsLoss,
		&cfg.PointsMVP, &cfg.TimeoutMinutes, &cfg.NoProofPenalty,
		&cfg.ProofTimeoutMinutes, &cfg.ProofRequired, &cfg.RankRolesEnabled,
		&cfg.UpdatedAt)
	if err != nil {
		return domain.GuildConfig{}, fmt.Errorf("failed to get guild config: %w", err)
	}
	return cfg, nil
}

func (r *GuildConfigRepository) Update(ctx context.Context, cfg domain.GuildConfig) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guild_config (
			guild_id, queue_size, points_win, points_loss, points_mvp,
			timeout_minutes, no_proof_penalty, proof_timeout_minutes,
			proof_required, rank_roles_enabled, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(guild_id) DO UPDATE SET
			queue_size = excluded.queue_size,
			points_win = excluded.points_win,
			points_loss = excluded.points_loss,
			points_mvp = excluded.points_mvp,
			timeout_minutes = excluded.timeout_minutes,
			no_proof_penalty = excluded.no_proof_penalty,
			proof_timeout_minutes = excluded.proof_timeout_minutes,
			proof_required = excluded.proof_required,
			rank_roles_enabled = excluded.rank_roles_enabled,
			updated_at = CURRENT_TIMESTAMP`,
		cfg.GuildID, cfg.QueueSize, cfg.PointsWin, cfg.PointsLoss,
		cfg.PointsMVP, cfg.TimeoutMinutes, cfg.NoProofPenalty,
		cfg.ProofTimeoutMinutes, cfg.ProofRequired, cfg.RankRolesEnabled)
	if err != nil {
		return fmt.Errorf("failed to update guild config: %w", err)
	}
	return nil
}
