package match

import (
	"context"
	"sync"
	"time"

	"scrims-bot/internal/constants"
	"scrims-bot/internal/domain"
	"scrims-bot/internal/draft"
	"scrims-bot/internal/events"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Store persists match rows and hands out per-guild sequence numbers.
type Store interface {
	Save(ctx context.Context, m *domain.Match) error
	NextSeq(ctx context.Context, guildID string) (int64, error)
	Active(ctx context.Context) ([]domain.Match, error)
}

// Settler applies a settled match atomically: point deltas, per-player
// stats, the history record, and the match row flip to settled must
// land in one transaction or not at all.
type Settler interface {
	Settle(ctx context.Context, m domain.Match, rec domain.MatchRecord) error
}

// Historian records terminal matches that never reach the settler,
// i.e. cancellations.
type Historian interface {
	Record(ctx context.Context, rec domain.MatchRecord) error
}

// Penalizer applies queue bans to players who stall the lifecycle.
type Penalizer interface {
	ApplyTimeout(ctx context.Context, guildID, playerID string, minutes int, reason string)
}

// Machine drives a single match through its lifecycle.
type Machine struct {
	mu sync.Mutex
	m  *domain.Match

	store    Store
	settler  Settler
	hist     Historian
	penalize Penalizer
	bus      *events.Bus
	logger   zerolog.Logger
	registry *Registry

	timer    *time.Timer
	timerGen uint64
	frozen   bool
	settling bool
	now      func() time.Time
}

func (mc *Machine) draftTimeout() time.Duration { return constants.DraftPickTimeout }
func (mc *Machine) lobbyTimeout() time.Duration { return constants.LobbySetupTimeout }

func (mc *Machine) proofTimeout() time.Duration {
	return time.Duration(mc.m.Config.ProofTimeoutMinutes) * time.Minute
}

// armTimerLocked schedules the deadline for the current state. The
// generation counter plus the state guard make a late fire from a
// superseded timer a no-op.
func (mc *Machine) armTimerLocked(guard domain.MatchState, d time.Duration) {
	mc.timerGen++
	gen := mc.timerGen
	if mc.timer != nil {
		mc.timer.Stop()
	}
	if d <= 0 {
		d = time.Millisecond
	}
	mc.timer = time.AfterFunc(d, func() { mc.expire(gen, guard) })
}

func (mc *Machine) cancelTimerLocked() {
	mc.timerGen++
	if mc.timer != nil {
		mc.timer.Stop()
		mc.timer = nil
	}
}

func (mc *Machine) expire(gen uint64, guard domain.MatchState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if gen != mc.timerGen || mc.m.State != guard || mc.frozen {
		// a user action raced the deadline and won
		return
	}

	ctx := context.Background()
	switch guard {
	case domain.StateDrafting:
		stalled := mc.stallingLeaderLocked()
		mc.logger.Warn().
			Str("guild_id", mc.m.GuildID).
			Int64("seq", mc.m.Seq).
			Str("leader_id", stalled).
			Msg("draft pick deadline expired")
		if mc.penalize != nil && stalled != "" {
			mc.penalize.ApplyTimeout(ctx, mc.m.GuildID, stalled,
				mc.m.Config.TimeoutMinutes, "stalled the draft")
		}
		mc.cancelLocked(ctx, "draft timed out")

	case domain.StateLobbySetup:
		mc.logger.Warn().
			Str("guild_id", mc.m.GuildID).
			Int64("seq", mc.m.Seq).
			Msg("lobby setup deadline expired")
		mc.cancelLocked(ctx, "lobby setup timed out")

	case domain.StateProofPending:
		// the result stands, the winning leader eats the penalty
		mc.m.ProofPenalty = true
		mc.logger.Warn().
			Str("guild_id", mc.m.GuildID).
			Int64("seq", mc.m.Seq).
			Str("leader_id", mc.m.WinningLeader()).
			Msg("proof deadline expired, settling with penalty")
		mc.beginSettlementLocked(ctx, "proof-timeout")
	}
}

// stallingLeaderLocked names the leader whose pick the draft is waiting
// on.
func (mc *Machine) stallingLeaderLocked() string {
	return draft.NextPicker(mc.m)
}

// runSettlement retries the atomic settlement batch with exponential
// backoff. Exhausted retries leave the match held in settling for an
// operator retry; nothing is partially applied.
func (mc *Machine) runSettlement() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.SettleTimeout)
	defer cancel()

	snap := mc.Snapshot()
	rec := domain.MatchRecord{
		ID:          newRecordID(),
		GuildID:     snap.GuildID,
		MatchSeq:    snap.Seq,
		Roster:      snap.Roster,
		Teams:       snap.Teams,
		Winner:      snap.Winner,
		MVPID:       snap.MVPID,
		Deltas:      snap.Deltas,
		ProofRef:    snap.ProofRef,
		CompletedAt: mc.now(),
	}

	b := retry.WithMaxRetries(constants.SettleMaxRetries,
		retry.NewExponential(constants.SettleBaseBackoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := mc.settler.Settle(ctx, snap, rec); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.settling = false
	if err != nil {
		mc.logger.Error().Err(err).
			Str("guild_id", mc.m.GuildID).
			Int64("seq", mc.m.Seq).
			Msg("settlement failed, match held in settling")
		return
	}

	mc.m.State = domain.StateSettled
	mc.touchLocked()
	mc.publishLocked("settled")
	mc.registry.release(mc)
}
