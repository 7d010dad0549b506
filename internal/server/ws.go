package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"scrims-bot/internal/events"

	"github.com/coder/websocket"
)

type streamEvent struct {
	Type    string `json:"type"`
	GuildID string `json:"guild_id"`
	Payload any    `json:"payload"`
}

// handleEvents streams bus events to a websocket client. An optional
// ?guild_id= filter narrows the stream to one guild. Slow clients drop
// events rather than stalling publishers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	guildFilter := r.URL.Query().Get("guild_id")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	out := make(chan streamEvent, 32)
	send := func(ev streamEvent) {
		if guildFilter != "" && ev.GuildID != guildFilter {
			return
		}
		select {
		case out <- ev:
		default:
		}
	}

	unsubMatch := events.Subscribe(s.bus, func(ev events.MatchStateChanged) {
		send(streamEvent{Type: "match_state_changed", GuildID: ev.GuildID, Payload: toMatchView(ev.Snapshot)})
	})
	defer unsubMatch()
	unsubQueue := events.Subscribe(s.bus, func(ev events.QueueChanged) {
		send(streamEvent{Type: "queue_changed", GuildID: ev.GuildID, Payload: ev})
	})
	defer unsubQueue()
	unsubRoster := events.Subscribe(s.bus, func(ev events.RosterReady) {
		send(streamEvent{Type: "roster_ready", GuildID: ev.GuildID, Payload: ev})
	})
	defer unsubRoster()
	unsubTimeout := events.Subscribe(s.bus, func(ev events.PlayerTimedOut) {
		send(streamEvent{Type: "player_timed_out", GuildID: ev.GuildID, Payload: ev})
	})
	defer unsubTimeout()

	ctx := r.Context()

	// reader only watches for close
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-out:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
