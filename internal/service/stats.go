package service

import (
	"context"

	"scrims-bot/internal/constants"
	"scrims-bot/internal/domain"
	"scrims-bot/internal/rank"
	"scrims-bot/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// StatsService serves the read side: ladder pages, player cards, match
// history.
type StatsService struct {
	players *repository.PlayerRepository
	history *repository.HistoryRepository
	logger  zerolog.Logger
}

func NewStatsService(players *repository.PlayerRepository, history *repository.HistoryRepository, logger zerolog.Logger) *StatsService {
	return &StatsService{
		players: players,
		history: history,
		logger:  logger,
	}
}

// LeaderboardEntry is one ladder row with the tier resolved from both
// points and position, so the top players show as Radiant.
type LeaderboardEntry struct {
	Position int
	Player   domain.Player
	Tier     rank.Tier
}

func (s *StatsService) Leaderboard(ctx context.Context, page int) ([]LeaderboardEntry, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * constants.LeaderboardPerPage
	players, err := s.players.Leaderboard(ctx, constants.LeaderboardPerPage, offset)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		pos := offset + i + 1
		entries[i] = LeaderboardEntry{
			Position: pos,
			Player:   p,
			Tier:     rank.Resolve(p.Points, pos),
		}
	}
	return entries, nil
}

// PlayerCard is the aggregate view for one player.
type PlayerCard struct {
	Player   domain.Player
	Position int
	Tier     rank.Tier
	WinRate  float64
	NextTier rank.Tier
	ToNext   int
	AtTop    bool
}

// PlayerStats fans the independent reads out concurrently.
func (s *StatsService) PlayerStats(ctx context.Context, playerID string) (*PlayerCard, error) {
	var (
		player   *domain.Player
		position int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		player, err = s.players.Get(gctx, playerID)
		return err
	})
	g.Go(func() error {
		var err error
		position, err = s.players.RankPosition(gctx, playerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	next, toNext, hasNext := rank.Next(player.Points)
	return &PlayerCard{
		Player:   *player,
		Position: position,
		Tier:     rank.Resolve(player.Points, position),
		WinRate:  player.WinRate(),
		NextTier: next,
		ToNext:   toNext,
		AtTop:    !hasNext,
	}, nil
}

func (s *StatsService) History(ctx context.Context, guildID string, page int) ([]domain.MatchRecord, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * constants.HistoryPerPage
	return s.history.List(ctx, guildID, constants.HistoryPerPage, offset)
}
