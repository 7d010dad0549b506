// Package service wires the queue pool, the match registry and the
// repositories into the operations the transport layer exposes.
package service

import (
	"context"
	"time"

	"scrims-bot/internal/constants"
	"scrims-bot/internal/domain"
	"scrims-bot/internal/events"
	"scrims-bot/internal/match"
	"scrims-bot/internal/queue"
	"scrims-bot/internal/repository"

	"github.com/rs/zerolog"
)

// ScrimsService is the orchestrator: queue membership, match creation
// on a full queue, lifecycle actions, and the background AFK sweeper.
type ScrimsService struct {
	pool     *queue.Pool
	registry *match.Registry
	players  *repository.PlayerRepository
	configs  *repository.GuildConfigRepository
	queues   *repository.QueueRepository
	bus      *events.Bus
	logger   zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

func NewScrimsService(
	pool *queue.Pool,
	registry *match.Registry,
	players *repository.PlayerRepository,
	configs *repository.GuildConfigRepository,
	queues *repository.QueueRepository,
	bus *events.Bus,
	logger zerolog.Logger,
) *ScrimsService {
	s := &ScrimsService{
		pool:     pool,
		registry: registry,
		players:  players,
		configs:  configs,
		queues:   queues,
		bus:      bus,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	pool.SetActiveIndex(registry)
	pool.SetRosterHandler(s.onRosterReady)
	registry.SetPenalizer(s)
	return s
}

// Start restores persisted queues, resumes in-flight matches, and
// launches the AFK sweeper.
func (s *ScrimsService) Start(ctx context.Context) error {
	queues, err := s.queues.LoadAll(ctx)
	if err != nil {
		return err
	}
	for guildID, members := range queues {
		s.pool.Restore(guildID, members)
		s.logger.Info().
			Str("guild_id", guildID).
			Int("members", len(members)).
			Msg("queue restored")
	}

	if err := s.registry.Resume(ctx); err != nil {
		return err
	}

	go s.sweepLoop()
	return nil
}

func (s *ScrimsService) StopSweeper(ctx context.Context) error {
	close(s.stop)
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *ScrimsService) sweepLoop() {
	defer close(s.done)
	ticker := time.NewTicker(constants.AFKSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
			s.sweepIdle(ctx, constants.QueueAFKTimeout)
			cancel()
		}
	}
}

// sweepIdle prunes members queued past the AFK window and records a
// queue ban for each removed player.
func (s *ScrimsService) sweepIdle(ctx context.Context, maxAge time.Duration) {
	removed := s.pool.PruneIdle(ctx, maxAge)
	for guildID, players := range removed {
		for _, playerID := range players {
			s.ApplyTimeout(ctx, guildID, playerID, constants.DefaultTimeoutMinutes, "AFK in queue")
		}
		s.logger.Info().
			Str("guild_id", guildID).
			Strs("players", players).
			Msg("removed idle players from queue")
	}
}

// JoinQueue registers the player if needed, checks the ban gate, and
// queues them at the guild's configured size.
func (s *ScrimsService) JoinQueue(ctx context.Context, guildID, playerID, username string) error {
	if _, err := s.players.GetOrCreate(ctx, playerID, username); err != nil {
		return err
	}
	cfg, err := s.configs.Get(ctx, guildID)
	if err != nil {
		return err
	}
	return s.pool.Join(ctx, guildID, playerID, cfg.QueueSize)
}

func (s *ScrimsService) LeaveQueue(ctx context.Context, guildID, playerID string) error {
	return s.pool.Leave(ctx, guildID, playerID)
}

func (s *ScrimsService) QueueMembers(guildID string) []string {
	return s.pool.Members(guildID)
}

// onRosterReady runs under the guild queue lock, so nobody can join or
// leave that guild's queue until the match exists and its roster is
// indexed.
func (s *ScrimsService) onRosterReady(guildID string, roster []string) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	cfg, err := s.configs.Get(ctx, guildID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("guild_id", guildID).
			Msg("failed to load config for full queue, dropping roster")
		return
	}

	// current ratings seed the draft board's display order
	scores := make(map[string]int, len(roster))
	for _, id := range roster {
		p, err := s.players.Get(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("player_id", id).
				Msg("failed to load rating for draft board")
			continue
		}
		scores[id] = p.Points
	}

	if _, err := s.registry.Create(ctx, guildID, roster, scores, cfg); err != nil {
		s.logger.Error().Err(err).
			Str("guild_id", guildID).
			Strs("roster", roster).
			Msg("failed to create match from full queue")
	}
}

// ApplyTimeout bans a player from queueing and publishes the event.
func (s *ScrimsService) ApplyTimeout(ctx context.Context, guildID, playerID string, minutes int, reason string) {
	until := time.Now().Add(time.Duration(minutes) * time.Minute)
	if err := s.players.SetTimeout(ctx, playerID, until); err != nil {
		s.logger.Error().Err(err).
			Str("player_id", playerID).
			Msg("failed to apply timeout")
		return
	}
	events.Publish(s.bus, events.PlayerTimedOut{
		GuildID:  guildID,
		PlayerID: playerID,
		Until:    until.Format(time.RFC3339),
		Reason:   reason,
	})
	s.logger.Info().
		Str("player_id", playerID).
		Int("minutes", minutes).
		Str("reason", reason).
		Msg("player timed out")
}

// matchFor resolves lifecycle actions to the player's active match.
func (s *ScrimsService) matchFor(guildID string, seq int64) (*match.Machine, error) {
	return s.registry.Get(guildID, seq)
}

func (s *ScrimsService) Pick(ctx context.Context, guildID string, seq int64, leaderID, targetID string) error {
	mc, err := s.matchFor(guildID, seq)
	if err != nil {
		return err
	}
	return mc.Pick(ctx, leaderID, targetID)
}

func (s *ScrimsService) SubmitLobby(ctx context.Context, guildID string, seq int64, leaderID, lobbyID string) error {
	mc, err := s.matchFor(guildID, seq)
	if err != nil {
		return err
	}
	return mc.SubmitLobby(ctx, leaderID, lobbyID)
}

func (s *ScrimsService) CancelMatch(ctx context.Context, guildID string, seq int64, leaderID, reason string) error {
	mc, err := s.matchFor(guildID, seq)
	if err != nil {
		return err
	}
	return mc.Cancel(ctx, leaderID, reason)
}

func (s *ScrimsService) VoteWinner(ctx context.Context, guildID string, seq int64, leaderID string, team domain.Team) error {
	mc, err := s.matchFor(guildID, seq)
	if err != nil {
		return err
	}
	return mc.VoteWinner(ctx, leaderID, team)
}

func (s *ScrimsService) VoteMVP(ctx context.Context, guildID string, seq int64, leaderID, playerID string) error {
	mc, err := s.matchFor(guildID, seq)
	if err != nil {
		return err
	}
	return mc.VoteMVP(ctx, leaderID, playerID)
}

func (s *ScrimsService) SubmitProof(ctx context.Context, guildID string, seq int64, leaderID, artifactRef string) error {
	mc, err := s.matchFor(guildID, seq)
	if err != nil {
		return err
	}
	return mc.SubmitProof(ctx, leaderID, artifactRef)
}

// Match returns a snapshot of an active match.
func (s *ScrimsService) Match(guildID string, seq int64) (domain.Match, error) {
	mc, err := s.matchFor(guildID, seq)
	if err != nil {
		return domain.Match{}, err
	}
	return mc.Snapshot(), nil
}

// MatchForPlayer returns the active match a player is rostered in.
func (s *ScrimsService) MatchForPlayer(playerID string) (domain.Match, error) {
	mc, err := s.registry.ForPlayer(playerID)
	if err != nil {
		return domain.Match{}, err
	}
	return mc.Snapshot(), nil
}

func (s *ScrimsService) ActiveMatches() []domain.Match {
	return s.registry.Active()
}
