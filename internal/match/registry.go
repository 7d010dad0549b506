package match

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"scrims-bot/internal/domain"
	"scrims-bot/internal/draft"
	"scrims-bot/internal/events"

	"github.com/rs/zerolog"
)

// Registry tracks every active machine, keyed by guild and sequence
// number, plus a player index so queue admission and consistency checks
// can ask "is this player already in a match" cheaply.
type Registry struct {
	mu       sync.Mutex
	machines map[string]*Machine
	byPlayer map[string]*Machine

	store    Store
	settler  Settler
	hist     Historian
	penalize Penalizer
	bus      *events.Bus
	logger   zerolog.Logger

	rng *rand.Rand
	now func() time.Time
}

func NewRegistry(store Store, settler Settler, hist Historian, bus *events.Bus, logger zerolog.Logger, rng *rand.Rand) *Registry {
	return &Registry{
		machines: make(map[string]*Machine),
		byPlayer: make(map[string]*Machine),
		store:    store,
		settler:  settler,
		hist:     hist,
		bus:      bus,
		logger:   logger,
		rng:      rng,
		now:      time.Now,
	}
}

// SetPenalizer wires the queue-ban applicator; nil disables stall
// penalties.
func (r *Registry) SetPenalizer(p Penalizer) {
	r.penalize = p
}

func key(guildID string, seq int64) string {
	return fmt.Sprintf("%s#%d", guildID, seq)
}

// Create builds a match from a full roster, picks the two leaders at
// random, persists the drafting state, and starts the pick clock. The
// guild config is snapshotted into the match so later config changes
// never touch it; scores seed the draft board's display order.
func (r *Registry) Create(ctx context.Context, guildID string, roster []string, scores map[string]int, cfg domain.GuildConfig) (*Machine, error) {
	r.mu.Lock()

	var stale []*Machine
	for _, id := range roster {
		if prev, ok := r.byPlayer[id]; ok {
			stale = append(stale, prev)
		}
	}
	if len(stale) > 0 {
		r.mu.Unlock()
		for _, prev := range stale {
			prev.freeze()
		}
		r.logger.Error().
			Str("guild_id", guildID).
			Int("conflicts", len(stale)).
			Msg("roster member already in an active match, freezing")
		return nil, domain.ErrConsistency
	}

	seq, err := r.store.NextSeq(ctx, guildID)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to allocate match number: %w", err)
	}

	leader1, leader2 := draft.ChooseLeaders(roster, r.rng)
	now := r.now()
	m := &domain.Match{
		GuildID:        guildID,
		Seq:            seq,
		Roster:         append([]string(nil), roster...),
		Leader1:        leader1,
		Leader2:        leader2,
		Teams:          draft.InitTeams(leader1, leader2),
		Scores:         copyScores(scores),
		Config:         cfg,
		State:          domain.StateDrafting,
		WinnerVotes:    make(map[string]domain.Team),
		MVPVotes:       make(map[string]string),
		CreatedAt:      now,
		LastActivityAt: now,
	}

	mc := r.attachLocked(m)
	r.mu.Unlock()

	mc.mu.Lock()
	mc.armTimerLocked(domain.StateDrafting, mc.draftTimeout())
	mc.saveLocked(ctx)
	mc.publishLocked("created")
	mc.mu.Unlock()

	r.logger.Info().
		Str("guild_id", guildID).
		Int64("seq", seq).
		Str("leader1", leader1).
		Str("leader2", leader2).
		Msg("match created")
	return mc, nil
}

// attachLocked registers a machine for a match, indexing its roster.
func (r *Registry) attachLocked(m *domain.Match) *Machine {
	mc := &Machine{
		m:        m,
		store:    r.store,
		settler:  r.settler,
		hist:     r.hist,
		penalize: r.penalize,
		bus:      r.bus,
		logger:   r.logger,
		registry: r,
		now:      r.now,
	}
	r.machines[key(m.GuildID, m.Seq)] = mc
	for _, id := range m.Roster {
		r.byPlayer[id] = mc
	}
	return mc
}

// Get returns the machine for an active match.
func (r *Registry) Get(guildID string, seq int64) (*Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.machines[key(guildID, seq)]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return mc, nil
}

// ForPlayer returns the active match a player is rostered in.
func (r *Registry) ForPlayer(playerID string) (*Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.byPlayer[playerID]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return mc, nil
}

// InActiveMatch implements the queue admission check.
func (r *Registry) InActiveMatch(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byPlayer[playerID]
	return ok
}

// Active returns snapshots of every tracked match.
func (r *Registry) Active() []domain.Match {
	r.mu.Lock()
	machines := make([]*Machine, 0, len(r.machines))
	for _, mc := range r.machines {
		machines = append(machines, mc)
	}
	r.mu.Unlock()

	out := make([]domain.Match, 0, len(machines))
	for _, mc := range machines {
		out = append(out, mc.Snapshot())
	}
	return out
}

// release drops a terminal match from the indexes. Called by the
// machine with its own lock held, so the registry lock always nests
// inside the machine lock, never the other way.
func (r *Registry) release(mc *Machine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.machines, key(mc.m.GuildID, mc.m.Seq))
	for _, id := range mc.m.Roster {
		if r.byPlayer[id] == mc {
			delete(r.byPlayer, id)
		}
	}
}

// freeze marks a machine inconsistent. Every subsequent call on it
// returns ErrConsistency until an operator intervenes.
func (mc *Machine) freeze() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.frozen = true
	mc.cancelTimerLocked()
	mc.logger.Error().
		Str("guild_id", mc.m.GuildID).
		Int64("seq", mc.m.Seq).
		Msg("match frozen pending operator review")
}

// Resume reloads non-terminal matches after a restart and re-arms their
// deadlines from the persisted last activity time. Deadlines that
// passed while the process was down fire immediately.
func (r *Registry) Resume(ctx context.Context) error {
	active, err := r.store.Active(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active matches: %w", err)
	}

	for i := range active {
		m := active[i]
		if m.State.Terminal() {
			continue
		}

		r.mu.Lock()
		mc := r.attachLocked(&m)
		r.mu.Unlock()

		mc.mu.Lock()
		switch m.State {
		case domain.StateDrafting:
			mc.armTimerLocked(m.State, remaining(m.LastActivityAt, mc.draftTimeout(), r.now()))
		case domain.StateLobbySetup:
			mc.armTimerLocked(m.State, remaining(m.LastActivityAt, mc.lobbyTimeout(), r.now()))
		case domain.StateProofPending:
			mc.armTimerLocked(m.State, remaining(m.LastActivityAt, mc.proofTimeout(), r.now()))
		case domain.StateSettling:
			mc.settling = true
			go mc.runSettlement()
		}
		mc.mu.Unlock()

		r.logger.Info().
			Str("guild_id", m.GuildID).
			Int64("seq", m.Seq).
			Str("state", string(m.State)).
			Msg("resumed match")
	}
	return nil
}

func remaining(since time.Time, d time.Duration, now time.Time) time.Duration {
	return since.Add(d).Sub(now)
}

func copyScores(scores map[string]int) map[string]int {
	out := make(map[string]int, len(scores))
	for id, pts := range scores {
		out[id] = pts
	}
	return out
}
