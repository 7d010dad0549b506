package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"scrims-bot/internal/config"
	"scrims-bot/internal/database"
	"scrims-bot/internal/domain"

	"github.com/rs/zerolog"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(&config.Config{DBPath: filepath.Join(t.TempDir(), "test.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPlayerLifecycle(t *testing.T) {
	db := testDB(t)
	repo := NewPlayerRepository(db, zerolog.Nop())
	ctx := context.Background()

	p, err := repo.GetOrCreate(ctx, "u1", "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if p.Points != 1000 || p.Username != "alice" {
		t.Fatalf("new player = %+v", p)
	}

	// repeat contact refreshes the username but keeps the rating
	if _, err := repo.AdjustPoints(ctx, "u1", 30); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	p, err = repo.GetOrCreate(ctx, "u1", "alice2")
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if p.Points != 1030 || p.Username != "alice2" {
		t.Fatalf("after rename = %+v", p)
	}

	// deltas may go negative
	total, err := repo.AdjustPoints(ctx, "u1", -1100)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if total != -70 {
		t.Fatalf("total = %d, want -70", total)
	}

	if _, err := repo.Get(ctx, "ghost"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("err = %v, want ErrPlayerNotFound", err)
	}
	if _, err := repo.AdjustPoints(ctx, "ghost", 1); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("adjust ghost err = %v, want ErrPlayerNotFound", err)
	}
}

func TestPlayerTimeouts(t *testing.T) {
	db := testDB(t)
	repo := NewPlayerRepository(db, zerolog.Nop())
	ctx := context.Background()

	if _, err := repo.GetOrCreate(ctx, "u1", "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}

	banned, err := repo.IsTimedOut(ctx, "u1")
	if err != nil || banned {
		t.Fatalf("fresh player banned=%v err=%v", banned, err)
	}
	if banned, _ := repo.IsTimedOut(ctx, "stranger"); banned {
		t.Fatal("unknown player reported banned")
	}

	if err := repo.SetTimeout(ctx, "u1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("set timeout: %v", err)
	}
	if banned, _ := repo.IsTimedOut(ctx, "u1"); !banned {
		t.Fatal("active ban not reported")
	}

	// expired bans lift on their own
	if err := repo.SetTimeout(ctx, "u1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("set expired timeout: %v", err)
	}
	if banned, _ := repo.IsTimedOut(ctx, "u1"); banned {
		t.Fatal("expired ban still reported")
	}

	if err := repo.ClearTimeout(ctx, "u1"); err != nil {
		t.Fatalf("clear timeout: %v", err)
	}
	if err := repo.SetTimeout(ctx, "ghost", time.Now()); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("err = %v, want ErrPlayerNotFound", err)
	}
}

func TestLeaderboardOrderingAndRank(t *testing.T) {
	db := testDB(t)
	repo := NewPlayerRepository(db, zerolog.Nop())
	ctx := context.Background()

	seed := []struct {
		id           string
		points, wins int
	}{
		{"a", 1500, 10},
		{"b", 1500, 12},
		{"c", 900, 3},
		{"d", 2000, 20},
	}
	for _, s := range seed {
		if _, err := repo.GetOrCreate(ctx, s.id, s.id); err != nil {
			t.Fatalf("create %s: %v", s.id, err)
		}
		if _, err := db.Exec(`UPDATE players SET points = ?, matches_won = ? WHERE id = ?`,
			s.points, s.wins, s.id); err != nil {
			t.Fatalf("seed %s: %v", s.id, err)
		}
	}

	players, err := repo.Leaderboard(ctx, 10, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	var order []string
	for _, p := range players {
		order = append(order, p.ID)
	}
	want := []string{"d", "b", "a", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	page, err := repo.Leaderboard(ctx, 2, 2)
	if err != nil || len(page) != 2 || page[0].ID != "a" {
		t.Fatalf("page 2 = %v, %v", page, err)
	}

	pos, err := repo.RankPosition(ctx, "b")
	if err != nil || pos != 2 {
		t.Fatalf("rank b = %d, %v, want 2", pos, err)
	}
	if _, err := repo.RankPosition(ctx, "ghost"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("err = %v, want ErrPlayerNotFound", err)
	}
	if n, _ := repo.Count(ctx); n != 4 {
		t.Fatalf("count = %d, want 4", n)
	}
}

func sampleMatch(seq int64) *domain.Match {
	now := time.Now().Truncate(time.Second)
	return &domain.Match{
		GuildID: "g1",
		Seq:     seq,
		Roster:  []string{"p1", "p2", "p3", "p4"},
		Leader1: "p1",
		Leader2: "p2",
		Teams: map[string]domain.Team{
			"p1": domain.TeamA, "p2": domain.TeamB,
		},
		Scores:         map[string]int{},
		Config:         domain.GuildConfig{GuildID: "g1", QueueSize: 4, PointsWin: 30, PointsLoss: -30, PointsMVP: 10, NoProofPenalty: 100, ProofTimeoutMinutes: 30, ProofRequired: true},
		State:          domain.StateDrafting,
		WinnerVotes:    map[string]domain.Team{},
		MVPVotes:       map[string]string{},
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func TestMatchSaveAndActiveRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	seq, err := repo.NextSeq(ctx, "g1")
	if err != nil || seq != 1 {
		t.Fatalf("first seq = %d, %v", seq, err)
	}

	m := sampleMatch(seq)
	if err := repo.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	if seq, _ := repo.NextSeq(ctx, "g1"); seq != 2 {
		t.Fatalf("next seq = %d, want 2", seq)
	}
	if seq, _ := repo.NextSeq(ctx, "g2"); seq != 1 {
		t.Fatalf("other guild seq = %d, want 1", seq)
	}

	// state advances are upserts on the same row
	m.Teams["p3"] = domain.TeamA
	m.Teams["p4"] = domain.TeamB
	m.State = domain.StateProofPending
	m.LobbyID = "LOB123"
	m.WinnerVotes["p1"] = domain.TeamA
	m.WinnerVotes["p2"] = domain.TeamA
	m.Winner = domain.TeamA
	m.MVPID = "p3"
	if err := repo.Save(ctx, m); err != nil {
		t.Fatalf("second save: %v", err)
	}

	active, err := repo.Active(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active = %d rows, want 1", len(active))
	}
	got := active[0]
	if got.State != domain.StateProofPending || got.LobbyID != "LOB123" ||
		got.Winner != domain.TeamA || got.MVPID != "p3" {
		t.Fatalf("round trip = %+v", got)
	}
	if got.Teams["p4"] != domain.TeamB || len(got.Roster) != 4 {
		t.Fatalf("nested fields lost: %+v", got)
	}
	if !got.Config.ProofRequired || got.Config.NoProofPenalty != 100 {
		t.Fatalf("config snapshot lost: %+v", got.Config)
	}

	// terminal rows drop out of recovery but keep the sequence
	m.State = domain.StateCancelled
	if err := repo.Save(ctx, m); err != nil {
		t.Fatalf("terminal save: %v", err)
	}
	if active, _ := repo.Active(ctx); len(active) != 0 {
		t.Fatalf("terminal match still active: %v", active)
	}
	if seq, _ := repo.NextSeq(ctx, "g1"); seq != 2 {
		t.Fatalf("seq after terminal = %d, want 2", seq)
	}
}

func TestGuildConfigDefaultsAndUpdate(t *testing.T) {
	db := testDB(t)
	repo := NewGuildConfigRepository(db, zerolog.Nop())
	ctx := context.Background()

	cfg, err := repo.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.QueueSize != 10 || cfg.PointsWin != 30 || cfg.PointsLoss != -30 ||
		cfg.PointsMVP != 10 || cfg.NoProofPenalty != 100 || !cfg.ProofRequired {
		t.Fatalf("defaults = %+v", cfg)
	}

	cfg.QueueSize = 6
	cfg.ProofRequired = false
	if err := repo.Update(ctx, cfg); err != nil {
		t.Fatalf("update: %v", err)
	}
	cfg, err = repo.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("reget: %v", err)
	}
	if cfg.QueueSize != 6 || cfg.ProofRequired {
		t.Fatalf("update lost: %+v", cfg)
	}

	// other guilds keep their own rows
	other, err := repo.Get(ctx, "g2")
	if err != nil || other.QueueSize != 10 {
		t.Fatalf("other guild = %+v, %v", other, err)
	}
}

func TestQueuePersistence(t *testing.T) {
	db := testDB(t)
	repo := NewQueueRepository(db, zerolog.Nop())
	ctx := context.Background()

	if err := repo.Save(ctx, "g1", []string{"p1", "p2"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, "g2", nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}

	queues, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(queues) != 1 || queues["g1"][0] != "p1" || queues["g1"][1] != "p2" {
		t.Fatalf("queues = %v", queues)
	}
}

func TestSettlementAtomicAndIdempotent(t *testing.T) {
	db := testDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	matches := NewMatchRepository(db, zerolog.Nop())
	history := NewHistoryRepository(db, zerolog.Nop())
	settler := NewSettlementRepository(db, zerolog.Nop())
	ctx := context.Background()

	if _, err := players.GetOrCreate(ctx, "p1", "p1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	m := sampleMatch(1)
	m.Teams["p3"] = domain.TeamA
	m.Teams["p4"] = domain.TeamB
	m.State = domain.StateSettling
	m.Winner = domain.TeamA
	m.MVPID = "p3"
	m.Deltas = map[string]int{"p1": 30, "p3": 40, "p2": -30, "p4": -30}
	if err := matches.Save(ctx, m); err != nil {
		t.Fatalf("save match: %v", err)
	}

	rec := domain.MatchRecord{
		ID:          "rec-1",
		GuildID:     "g1",
		MatchSeq:    1,
		Roster:      m.Roster,
		Teams:       m.Teams,
		Winner:      m.Winner,
		MVPID:       m.MVPID,
		Deltas:      m.Deltas,
		CompletedAt: time.Now(),
	}
	if err := settler.Settle(ctx, m.Snapshot(), rec); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// existing player got the delta, missing players were registered
	p1, _ := players.Get(ctx, "p1")
	if p1.Points != 1030 || p1.MatchesPlayed != 1 || p1.MatchesWon != 1 {
		t.Fatalf("p1 = %+v", p1)
	}
	p3, err := players.Get(ctx, "p3")
	if err != nil {
		t.Fatalf("p3 missing: %v", err)
	}
	if p3.Points != 1040 || p3.MVPCount != 1 {
		t.Fatalf("p3 = %+v", p3)
	}
	p2, _ := players.Get(ctx, "p2")
	if p2.Points != 970 || p2.MatchesWon != 0 {
		t.Fatalf("p2 = %+v", p2)
	}

	recs, err := history.List(ctx, "g1", 10, 0)
	if err != nil || len(recs) != 1 {
		t.Fatalf("history = %v, %v", recs, err)
	}
	if recs[0].MVPID != "p3" || recs[0].Cancelled {
		t.Fatalf("record = %+v", recs[0])
	}

	// a retried settlement must not double-apply
	if err := settler.Settle(ctx, m.Snapshot(), rec); err != nil {
		t.Fatalf("retried settle: %v", err)
	}
	p1, _ = players.Get(ctx, "p1")
	if p1.Points != 1030 || p1.MatchesPlayed != 1 {
		t.Fatalf("retry double-applied: %+v", p1)
	}
	if recs, _ := history.List(ctx, "g1", 10, 0); len(recs) != 1 {
		t.Fatalf("retry duplicated history: %d rows", len(recs))
	}

	if active, _ := matches.Active(ctx); len(active) != 0 {
		t.Fatal("settled match still listed active")
	}
}
