package service

import (
	"context"
	"fmt"

	"scrims-bot/internal/constants"
	"scrims-bot/internal/domain"
	"scrims-bot/internal/repository"

	"github.com/rs/zerolog"
)

// AdminService carries the operator surface: manual point adjustments,
// queue bans, config changes, and lifecycle overrides.
type AdminService struct {
	players *repository.PlayerRepository
	configs *repository.GuildConfigRepository
	scrims  *ScrimsService
	logger  zerolog.Logger
}

func NewAdminService(players *repository.PlayerRepository, configs *repository.GuildConfigRepository, scrims *ScrimsService, logger zerolog.Logger) *AdminService {
	return &AdminService{
		players: players,
		configs: configs,
		scrims:  scrims,
		logger:  logger,
	}
}

// AdjustPoints applies a manual signed delta and returns the new total.
func (a *AdminService) AdjustPoints(ctx context.Context, playerID string, delta int) (int, error) {
	if delta < constants.MinPoints || delta > constants.MaxPoints {
		return 0, fmt.Errorf("%w: delta %d out of range", domain.ErrInvalidTarget, delta)
	}
	total, err := a.players.AdjustPoints(ctx, playerID, delta)
	if err != nil {
		return 0, err
	}
	a.logger.Info().
		Str("player_id", playerID).
		Int("delta", delta).
		Int("total", total).
		Msg("points adjusted by admin")
	return total, nil
}

// SetPoints pins a player's rating to an absolute value.
func (a *AdminService) SetPoints(ctx context.Context, playerID string, points int) (int, error) {
	if points < constants.MinPoints || points > constants.MaxPoints {
		return 0, fmt.Errorf("%w: points %d out of range", domain.ErrInvalidTarget, points)
	}
	current, err := a.players.Get(ctx, playerID)
	if err != nil {
		return 0, err
	}
	return a.players.AdjustPoints(ctx, playerID, points-current.Points)
}

func (a *AdminService) Timeout(ctx context.Context, guildID, playerID string, minutes int, reason string) error {
	if minutes < constants.MinTimeoutMinutes || minutes > constants.MaxTimeoutMinutes {
		return fmt.Errorf("%w: timeout %d minutes out of range", domain.ErrInvalidTarget, minutes)
	}
	if _, err := a.players.Get(ctx, playerID); err != nil {
		return err
	}
	a.scrims.ApplyTimeout(ctx, guildID, playerID, minutes, reason)
	return nil
}

func (a *AdminService) ClearTimeout(ctx context.Context, playerID string) error {
	return a.players.ClearTimeout(ctx, playerID)
}

func (a *AdminService) Config(ctx context.Context, guildID string) (domain.GuildConfig, error) {
	return a.configs.Get(ctx, guildID)
}

// UpdateConfig validates and stores a guild config. A running match
// keeps its snapshot; changes apply from the next match on.
func (a *AdminService) UpdateConfig(ctx context.Context, cfg domain.GuildConfig) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if err := a.configs.Update(ctx, cfg); err != nil {
		return err
	}
	a.logger.Info().
		Str("guild_id", cfg.GuildID).
		Int("queue_size", cfg.QueueSize).
		Msg("guild config updated")
	return nil
}

func validateConfig(cfg domain.GuildConfig) error {
	if cfg.GuildID == "" {
		return fmt.Errorf("%w: missing guild id", domain.ErrInvalidTarget)
	}
	if cfg.QueueSize < constants.MinQueueSize || cfg.QueueSize > constants.MaxQueueSize || cfg.QueueSize%2 != 0 {
		return fmt.Errorf("%w: queue size %d must be even and within %d..%d",
			domain.ErrInvalidTarget, cfg.QueueSize, constants.MinQueueSize, constants.MaxQueueSize)
	}
	for _, p := range []int{cfg.PointsWin, cfg.PointsLoss, cfg.PointsMVP, cfg.NoProofPenalty} {
		if p < constants.MinPoints || p > constants.MaxPoints {
			return fmt.Errorf("%w: point value %d out of range", domain.ErrInvalidTarget, p)
		}
	}
	for _, m := range []int{cfg.TimeoutMinutes, cfg.ProofTimeoutMinutes} {
		if m < constants.MinTimeoutMinutes || m > constants.MaxTimeoutMinutes {
			return fmt.Errorf("%w: timeout %d minutes out of range", domain.ErrInvalidTarget, m)
		}
	}
	return nil
}

func (a *AdminService) ForceWinner(ctx context.Context, guildID string, seq int64, team domain.Team) error {
	mc, err := a.scrims.matchFor(guildID, seq)
	if err != nil {
		return err
	}
	return mc.ForceWinner(ctx, team)
}

func (a *AdminService) ForceMVP(ctx context.Context, guildID string, seq int64, playerID string) error {
	mc, err := a.scrims.matchFor(guildID, seq)
	if err != nil {
		return err
	}
	return mc.ForceMVP(ctx, playerID)
}

func (a *AdminService) ForceCancel(ctx context.Context, guildID string, seq int64, reason string) error {
	mc, err := a.scrims.matchFor(guildID, seq)
	if err != nil {
		return err
	}
	return mc.ForceCancel(ctx, reason)
}

func (a *AdminService) RetrySettlement(ctx context.Context, guildID string, seq int64) error {
	mc, err := a.scrims.matchFor(guildID, seq)
	if err != nil {
		return err
	}
	return mc.RetrySettlement(ctx)
}
