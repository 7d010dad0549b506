// Package notify pushes bus events to an external webhook so a chat
// frontend can render them. The core never waits on the webhook: events
// are queued to a single sender goroutine and dropped when the queue is
// full.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"scrims-bot/internal/constants"
	"scrims-bot/internal/events"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

type payload struct {
	Type    string    `json:"type"`
	GuildID string    `json:"guild_id"`
	SentAt  time.Time `json:"sent_at"`
	Data    any       `json:"data"`
}

type WebhookPublisher struct {
	url    string
	client *fasthttp.Client
	bus    *events.Bus
	logger zerolog.Logger

	queue  chan payload
	unsubs []func()
	done   chan struct{}
}

// NewWebhookPublisher returns a disabled publisher when url is empty.
func NewWebhookPublisher(url string, bus *events.Bus, logger zerolog.Logger) *WebhookPublisher {
	return &WebhookPublisher{
		url: url,
		client: &fasthttp.Client{
			ReadTimeout:  constants.WebhookTimeout,
			WriteTimeout: constants.WebhookTimeout,
		},
		bus:    bus,
		logger: logger,
		queue:  make(chan payload, 128),
		done:   make(chan struct{}),
	}
}

func (p *WebhookPublisher) Start(_ context.Context) error {
	if p.url == "" {
		p.logger.Info().Msg("webhook publisher disabled")
		close(p.done)
		return nil
	}

	p.unsubs = append(p.unsubs,
		events.Subscribe(p.bus, func(ev events.MatchStateChanged) {
			p.enqueue(payload{Type: "match_state_changed", GuildID: ev.GuildID, Data: ev})
		}),
		events.Subscribe(p.bus, func(ev events.QueueChanged) {
			p.enqueue(payload{Type: "queue_changed", GuildID: ev.GuildID, Data: ev})
		}),
		events.Subscribe(p.bus, func(ev events.RosterReady) {
			p.enqueue(payload{Type: "roster_ready", GuildID: ev.GuildID, Data: ev})
		}),
		events.Subscribe(p.bus, func(ev events.PlayerTimedOut) {
			p.enqueue(payload{Type: "player_timed_out", GuildID: ev.GuildID, Data: ev})
		}),
	)

	go p.sendLoop()
	p.logger.Info().Str("url", p.url).Msg("webhook publisher started")
	return nil
}

func (p *WebhookPublisher) Stop(ctx context.Context) error {
	for _, unsub := range p.unsubs {
		unsub()
	}
	if p.url == "" {
		return nil
	}
	close(p.queue)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WebhookPublisher) enqueue(ev payload) {
	ev.SentAt = time.Now()
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn().Str("type", ev.Type).Msg("webhook queue full, dropping event")
	}
}

func (p *WebhookPublisher) sendLoop() {
	defer close(p.done)
	for ev := range p.queue {
		if err := p.post(ev); err != nil {
			p.logger.Warn().Err(err).Str("type", ev.Type).Msg("webhook delivery failed")
		}
	}
}

func (p *WebhookPublisher) post(ev payload) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := p.client.DoTimeout(req, resp, constants.WebhookTimeout); err != nil {
		return fmt.Errorf("failed to POST webhook: %w", err)
	}
	if code := resp.StatusCode(); code >= 300 {
		return fmt.Errorf("webhook returned status %d", code)
	}
	return nil
}
