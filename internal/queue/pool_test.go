package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"scrims-bot/internal/domain"
	"scrims-bot/internal/events"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

type fakeGate struct {
	mu     sync.Mutex
	banned map[string]bool
}

func (g *fakeGate) IsTimedOut(_ context.Context, playerID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.banned[playerID], nil
}

func newTestPool() *Pool {
	return NewPool(nil, nil, events.NewBus(testLogger()), testLogger())
}

func TestJoinLeaveBasic(t *testing.T) {
	p := newTestPool()
	ctx := context.Background()

	if err := p.Join(ctx, "g1", "p1", 10); err != nil {
		t.Fatal(err)
	}
	if err := p.Join(ctx, "g1", "p1", 10); !errors.Is(err, domain.ErrAlreadyQueued) {
		t.Fatalf("duplicate join: got %v", err)
	}
	// queued in one guild means queued everywhere
	if err := p.Join(ctx, "g2", "p1", 10); !errors.Is(err, domain.ErrAlreadyQueued) {
		t.Fatalf("cross-guild join: got %v", err)
	}

	if err := p.Leave(ctx, "g1", "p1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Leave(ctx, "g1", "p1"); !errors.Is(err, domain.ErrNotInQueue) {
		t.Fatalf("double leave: got %v", err)
	}

	// after leaving, the player may queue elsewhere
	if err := p.Join(ctx, "g2", "p1", 10); err != nil {
		t.Fatal(err)
	}
}

func TestTimedOutPlayerRejected(t *testing.T) {
	gate := &fakeGate{banned: map[string]bool{"bad": true}}
	p := NewPool(nil, gate, events.NewBus(testLogger()), testLogger())

	if err := p.Join(context.Background(), "g1", "bad", 10); !errors.Is(err, domain.ErrTimedOut) {
		t.Fatalf("got %v, want ErrTimedOut", err)
	}
}

func TestRosterFiresOnceWithExactMembers(t *testing.T) {
	p := newTestPool()
	ctx := context.Background()

	var mu sync.Mutex
	var rosters [][]string
	p.SetRosterHandler(func(guildID string, roster []string) {
		mu.Lock()
		rosters = append(rosters, roster)
		mu.Unlock()
	})

	// p0 joins and leaves before the fill instant
	if err := p.Join(ctx, "g1", "leaver", 10); err != nil {
		t.Fatal(err)
	}
	if err := p.Leave(ctx, "g1", "leaver"); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 10; i++ {
		if err := p.Join(ctx, "g1", fmt.Sprintf("P%d", i), 10); err != nil {
			t.Fatal(err)
		}
	}

	if len(rosters) != 1 {
		t.Fatalf("roster event fired %d times, want 1", len(rosters))
	}
	roster := rosters[0]
	if len(roster) != 10 {
		t.Fatalf("roster size = %d, want 10", len(roster))
	}
	seen := map[string]bool{}
	for i, id := range roster {
		if id == "leaver" {
			t.Fatal("player who left before fill must not be in the roster")
		}
		if seen[id] {
			t.Fatalf("duplicate %s in roster", id)
		}
		seen[id] = true
		if want := fmt.Sprintf("P%d", i+1); id != want {
			t.Fatalf("roster[%d] = %s, want %s (join order)", i, id, want)
		}
	}

	// the queue is empty again, not destroyed
	if got := p.Members("g1"); len(got) != 0 {
		t.Fatalf("queue should be empty after detach, has %d", len(got))
	}
	if err := p.Join(ctx, "g1", "P1", 10); err != nil {
		t.Fatalf("detached players can re-queue: %v", err)
	}
}

func TestRosterReadyEventPublishedOnFill(t *testing.T) {
	bus := events.NewBus(testLogger())
	p := NewPool(nil, nil, bus, testLogger())
	ctx := context.Background()

	var mu sync.Mutex
	var got []events.RosterReady
	unsub := events.Subscribe(bus, func(ev events.RosterReady) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	defer unsub()

	for i := 1; i <= 4; i++ {
		if err := p.Join(ctx, "g1", fmt.Sprintf("P%d", i), 4); err != nil {
			t.Fatal(err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("roster ready published %d times, want 1", len(got))
	}
	if got[0].GuildID != "g1" || len(got[0].Roster) != 4 {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestConcurrentJoinsNoDuplicateAcrossRosters(t *testing.T) {
	p := newTestPool()
	ctx := context.Background()

	var mu sync.Mutex
	counts := map[string]int{}
	p.SetRosterHandler(func(_ string, roster []string) {
		mu.Lock()
		for _, id := range roster {
			counts[id]++
		}
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = p.Join(ctx, "g1", fmt.Sprintf("P%d", i), 4)
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	total := 0
	for id, n := range counts {
		if n > 1 {
			t.Fatalf("player %s appeared in %d rosters", id, n)
		}
		total++
	}
	// 40 joins at target 4 fill exactly 10 rosters
	if total != 40 {
		t.Fatalf("expected all 40 players rostered exactly once, got %d", total)
	}
}

func TestConcurrentRandomOpsKeepInvariants(t *testing.T) {
	p := newTestPool()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("P%d", (w*200+i)%30)
				guild := fmt.Sprintf("g%d", i%3)
				if i%3 == 0 {
					_ = p.Leave(ctx, guild, id)
				} else {
					_ = p.Join(ctx, guild, id, 100)
				}
			}
		}(w)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, guild := range []string{"g0", "g1", "g2"} {
		for _, id := range p.Members(guild) {
			if seen[id] {
				t.Fatalf("player %s queued in two guilds", id)
			}
			seen[id] = true
		}
	}
}

func TestPruneIdleRemovesOnlyStaleMembers(t *testing.T) {
	p := newTestPool()
	ctx := context.Background()

	base := time.Now()
	p.now = func() time.Time { return base }
	if err := p.Join(ctx, "g1", "stale", 10); err != nil {
		t.Fatal(err)
	}

	p.now = func() time.Time { return base.Add(29 * time.Minute) }
	if err := p.Join(ctx, "g1", "fresh", 10); err != nil {
		t.Fatal(err)
	}

	p.now = func() time.Time { return base.Add(31 * time.Minute) }
	removed := p.PruneIdle(ctx, 30*time.Minute)

	if got := removed["g1"]; len(got) != 1 || got[0] != "stale" {
		t.Fatalf("removed = %v, want [stale]", got)
	}
	members := p.Members("g1")
	if len(members) != 1 || members[0] != "fresh" {
		t.Fatalf("members = %v, want [fresh]", members)
	}
	// pruned player can rejoin
	if err := p.Join(ctx, "g1", "stale", 10); err != nil {
		t.Fatalf("pruned player rejoin: %v", err)
	}
}

func TestRestoreRebuildsQueue(t *testing.T) {
	p := newTestPool()
	p.Restore("g1", []string{"a", "b", "c"})

	if got := p.Members("g1"); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("members = %v", got)
	}
	if err := p.Join(context.Background(), "g2", "b", 10); !errors.Is(err, domain.ErrAlreadyQueued) {
		t.Fatalf("restored member should be indexed, got %v", err)
	}
}
