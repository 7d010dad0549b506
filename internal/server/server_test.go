package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"scrims-bot/internal/config"
	"scrims-bot/internal/database"
	"scrims-bot/internal/events"
	"scrims-bot/internal/match"
	"scrims-bot/internal/queue"
	"scrims-bot/internal/repository"
	"scrims-bot/internal/service"

	"github.com/rs/zerolog"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.New(&config.Config{DBPath: filepath.Join(t.TempDir(), "test.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	bus := events.NewBus(zerolog.Nop())
	players := repository.NewPlayerRepository(db, log)
	matches := repository.NewMatchRepository(db, log)
	history := repository.NewHistoryRepository(db, log)
	configs := repository.NewGuildConfigRepository(db, log)
	queues := repository.NewQueueRepository(db, log)
	settler := repository.NewSettlementRepository(db, log)
	registry := match.NewRegistry(matches, settler, history, bus, log,
		rand.New(rand.NewSource(3)))
	pool := queue.NewPool(queues, players, bus, log)
	scrims := service.NewScrimsService(pool, registry, players, configs, queues, bus, log)
	admin := service.NewAdminService(players, configs, scrims, log)
	stats := service.NewStatsService(players, history, log)

	ts := httptest.NewServer(New(scrims, stats, admin, bus, log).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestQueueEndpoints(t *testing.T) {
	ts := testServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/guilds/g1/queue/join",
		map[string]string{"player_id": "p1", "username": "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status = %d body = %v", resp.StatusCode, body)
	}
	members, ok := body["queue"].([]any)
	if !ok || len(members) != 1 || members[0] != "p1" {
		t.Fatalf("queue = %v", body["queue"])
	}

	// duplicate join maps to conflict
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/guilds/g1/queue/join",
		map[string]string{"player_id": "p1"})
	if resp.StatusCode != http.StatusConflict || body["code"] != "conflict" {
		t.Fatalf("duplicate join = %d %v", resp.StatusCode, body)
	}

	// missing player id maps to bad request
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/guilds/g1/queue/join",
		map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty join status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/guilds/g1/queue/leave",
		map[string]string{"player_id": "p1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leave status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/guilds/g1/queue/leave",
		map[string]string{"player_id": "p1"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double leave status = %d", resp.StatusCode)
	}
}

func TestMatchEndpointsDriveLifecycle(t *testing.T) {
	ts := testServer(t)

	// shrink the queue and skip proof so the match can settle
	resp, _ := doJSON(t, http.MethodPut, ts.URL+"/admin/guilds/g1/config",
		map[string]any{"queue_size": 4, "proof_required": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config status = %d", resp.StatusCode)
	}

	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/guilds/g1/queue/join",
			map[string]string{"player_id": id})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("join %s = %d %v", id, resp.StatusCode, body)
		}
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/guilds/g1/matches/1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get match = %d %v", resp.StatusCode, body)
	}
	if body["state"] != "drafting" {
		t.Fatalf("state = %v", body["state"])
	}
	leader1 := body["leader1"].(string)
	undrafted := body["undrafted"].([]any)

	// a pick by the wrong leader is forbidden, not a server error
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/guilds/g1/matches/1/pick",
		map[string]string{"leader_id": body["leader2"].(string), "target_id": undrafted[0].(string)})
	if resp.StatusCode != http.StatusForbidden || body["code"] != "not_allowed" {
		t.Fatalf("wrong-turn pick = %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/guilds/g1/matches/1/pick",
		map[string]string{"leader_id": leader1, "target_id": undrafted[0].(string)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pick = %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/guilds/g1/matches/99", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing match status = %d", resp.StatusCode)
	}
}

func TestStatsEndpoints(t *testing.T) {
	ts := testServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/guilds/g1/queue/join",
		map[string]string{"player_id": "p1", "username": "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join = %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/admin/players/p1/points",
		map[string]int{"delta": 250})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("adjust = %d", resp.StatusCode)
	}

	resp, card := doJSON(t, http.MethodGet, ts.URL+"/players/p1/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats = %d %v", resp.StatusCode, card)
	}
	player := card["Player"].(map[string]any)
	if player["Points"].(float64) != 1250 {
		t.Fatalf("points = %v", player["Points"])
	}

	resp, board := doJSON(t, http.MethodGet, ts.URL+"/leaderboard", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard = %d", resp.StatusCode)
	}
	entries := board["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %v", entries)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/players/ghost/stats", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("ghost stats = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
}
