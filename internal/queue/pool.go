// Package queue holds the per-guild waiting pools. Each guild's queue
// is serialized by its own mutex; the pool-level mutex only guards the
// guild map and the cross-guild membership index, so queues in
// different guilds never contend.
package queue

import (
	"context"
	"sync"
	"time"

	"scrims-bot/internal/domain"
	"scrims-bot/internal/events"

	"github.com/rs/zerolog"
)

// Store persists queue contents so a restart can rebuild them.
type Store interface {
	Save(ctx context.Context, guildID string, members []string) error
}

// Gate answers whether a player is currently banned from queueing.
type Gate interface {
	IsTimedOut(ctx context.Context, playerID string) (bool, error)
}

// ActiveIndex answers whether a player is in an active match. Players
// in a live match may not re-queue.
type ActiveIndex interface {
	InActiveMatch(playerID string) bool
}

type member struct {
	id       string
	joinedAt time.Time
}

type guildQueue struct {
	mu      sync.Mutex
	members []member
}

type Pool struct {
	mu     sync.Mutex
	guilds map[string]*guildQueue
	index  map[string]string // playerID -> guildID

	store  Store
	gate   Gate
	active ActiveIndex
	bus    *events.Bus
	logger zerolog.Logger

	onRoster func(guildID string, roster []string)
	now      func() time.Time
}

func NewPool(store Store, gate Gate, bus *events.Bus, logger zerolog.Logger) *Pool {
	return &Pool{
		guilds: make(map[string]*guildQueue),
		index:  make(map[string]string),
		store:  store,
		gate:   gate,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// SetRosterHandler registers the exactly-once callback fired when a
// queue fills. The handler runs under the guild's queue lock, so no
// join or leave for that guild can interleave with match creation.
func (p *Pool) SetRosterHandler(fn func(guildID string, roster []string)) {
	p.onRoster = fn
}

// SetActiveIndex wires the active-match lookup; nil disables the check.
func (p *Pool) SetActiveIndex(a ActiveIndex) {
	p.active = a
}

func (p *Pool) guild(guildID string) *guildQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	gq, ok := p.guilds[guildID]
	if !ok {
		gq = &guildQueue{}
		p.guilds[guildID] = gq
	}
	return gq
}

// Join appends the player to the guild queue. When the queue reaches
// target, the full roster is detached atomically, the queue is left
// empty, and the roster handler fires exactly once.
func (p *Pool) Join(ctx context.Context, guildID, playerID string, target int) error {
	if p.gate != nil {
		timedOut, err := p.gate.IsTimedOut(ctx, playerID)
		if err != nil {
			return err
		}
		if timedOut {
			return domain.ErrTimedOut
		}
	}

	gq := p.guild(guildID)
	gq.mu.Lock()
	defer gq.mu.Unlock()

	p.mu.Lock()
	if _, queued := p.index[playerID]; queued {
		p.mu.Unlock()
		return domain.ErrAlreadyQueued
	}
	if p.active != nil && p.active.InActiveMatch(playerID) {
		p.mu.Unlock()
		return domain.ErrAlreadyQueued
	}
	p.index[playerID] = guildID
	p.mu.Unlock()

	gq.members = append(gq.members, member{id: playerID, joinedAt: p.now()})

	if len(gq.members) >= target {
		roster := p.detachLocked(ctx, guildID, gq)
		p.publishLocked(guildID, gq, true)
		if p.bus != nil {
			events.Publish(p.bus, events.RosterReady{GuildID: guildID, Roster: roster})
		}
		if p.onRoster != nil {
			p.onRoster(guildID, roster)
		}
		return nil
	}

	p.persistLocked(ctx, guildID, gq)
	p.publishLocked(guildID, gq, false)
	return nil
}

// Leave removes the player if present.
func (p *Pool) Leave(ctx context.Context, guildID, playerID string) error {
	gq := p.guild(guildID)
	gq.mu.Lock()
	defer gq.mu.Unlock()

	for i, m := range gq.members {
		if m.id == playerID {
			gq.members = append(gq.members[:i], gq.members[i+1:]...)
			p.dropIndex(playerID)
			p.persistLocked(ctx, guildID, gq)
			p.publishLocked(guildID, gq, false)
			return nil
		}
	}
	return domain.ErrNotInQueue
}

// Members returns a copy of the guild queue in join order.
func (p *Pool) Members(guildID string) []string {
	gq := p.guild(guildID)
	gq.mu.Lock()
	defer gq.mu.Unlock()
	return memberIDs(gq.members)
}

// PruneIdle removes members queued longer than maxAge and returns the
// removed players per guild so the caller can record AFK penalties.
func (p *Pool) PruneIdle(ctx context.Context, maxAge time.Duration) map[string][]string {
	p.mu.Lock()
	guilds := make(map[string]*guildQueue, len(p.guilds))
	for id, gq := range p.guilds {
		guilds[id] = gq
	}
	p.mu.Unlock()

	cutoff := p.now().Add(-maxAge)
	removed := make(map[string][]string)

	for guildID, gq := range guilds {
		gq.mu.Lock()
		kept := gq.members[:0]
		for _, m := range gq.members {
			if m.joinedAt.Before(cutoff) {
				removed[guildID] = append(removed[guildID], m.id)
				p.dropIndex(m.id)
			} else {
				kept = append(kept, m)
			}
		}
		if len(removed[guildID]) > 0 {
			gq.members = kept
			p.persistLocked(ctx, guildID, gq)
			p.publishLocked(guildID, gq, false)
		}
		gq.mu.Unlock()
	}
	return removed
}

// Restore rebuilds a guild queue from persisted state. Stored join
// order is kept; join timestamps restart from now, which only delays
// AFK pruning by at most one window after a restart.
func (p *Pool) Restore(guildID string, members []string) {
	gq := p.guild(guildID)
	gq.mu.Lock()
	defer gq.mu.Unlock()

	now := p.now()
	p.mu.Lock()
	for _, id := range members {
		if _, queued := p.index[id]; queued {
			continue
		}
		p.index[id] = guildID
		gq.members = append(gq.members, member{id: id, joinedAt: now})
	}
	p.mu.Unlock()
}

// detachLocked empties the queue and returns the frozen roster. Caller
// holds gq.mu.
func (p *Pool) detachLocked(ctx context.Context, guildID string, gq *guildQueue) []string {
	roster := memberIDs(gq.members)
	gq.members = nil

	p.mu.Lock()
	for _, id := range roster {
		delete(p.index, id)
	}
	p.mu.Unlock()

	p.persistLocked(ctx, guildID, gq)
	return roster
}

func (p *Pool) dropIndex(playerID string) {
	p.mu.Lock()
	delete(p.index, playerID)
	p.mu.Unlock()
}

func (p *Pool) persistLocked(ctx context.Context, guildID string, gq *guildQueue) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(ctx, guildID, memberIDs(gq.members)); err != nil {
		p.logger.Error().Err(err).Str("guild_id", guildID).Msg("failed to persist queue")
	}
}

func (p *Pool) publishLocked(guildID string, gq *guildQueue, full bool) {
	if p.bus == nil {
		return
	}
	events.Publish(p.bus, events.QueueChanged{
		GuildID: guildID,
		Members: memberIDs(gq.members),
		IsFull:  full,
	})
}

func memberIDs(ms []member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.id
	}
	return out
}
