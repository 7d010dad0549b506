package events

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"scrims-bot/internal/domain"

	"github.com/rs/zerolog"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := NewBus(zerolog.Nop())

	var got []QueueChanged
	unsub := Subscribe(b, func(ev QueueChanged) {
		got = append(got, ev)
	})
	defer unsub()

	Publish(b, QueueChanged{GuildID: "g1", Members: []string{"p1"}})
	Publish(b, QueueChanged{GuildID: "g1", Members: []string{"p1", "p2"}})

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[1].Members[1] != "p2" {
		t.Fatalf("unexpected payload: %+v", got[1])
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(zerolog.Nop())

	count := 0
	unsub := Subscribe(b, func(QueueChanged) { count++ })

	Publish(b, QueueChanged{GuildID: "g"})
	unsub()
	Publish(b, QueueChanged{GuildID: "g"})

	if count != 1 {
		t.Fatalf("expected 1 delivery, got %d", count)
	}
}

func TestTypesAreIsolated(t *testing.T) {
	b := NewBus(zerolog.Nop())

	queueEvents := 0
	matchEvents := 0
	Subscribe(b, func(QueueChanged) { queueEvents++ })
	Subscribe(b, func(MatchStateChanged) { matchEvents++ })

	Publish(b, QueueChanged{GuildID: "g"})
	Publish(b, MatchStateChanged{GuildID: "g", State: domain.StateDrafting})
	Publish(b, MatchStateChanged{GuildID: "g", State: domain.StateLobbySetup})

	if queueEvents != 1 || matchEvents != 2 {
		t.Fatalf("queue=%d match=%d", queueEvents, matchEvents)
	}
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	var logs bytes.Buffer
	b := NewBus(zerolog.New(&logs))

	delivered := false
	Subscribe(b, func(QueueChanged) { panic("boom") })
	Subscribe(b, func(QueueChanged) { delivered = true })

	Publish(b, QueueChanged{GuildID: "g"})

	if !delivered {
		t.Fatal("second subscriber not reached after panic")
	}
	if !strings.Contains(logs.String(), "boom") {
		t.Fatalf("recovered panic value not logged: %s", logs.String())
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := NewBus(zerolog.Nop())

	var mu sync.Mutex
	total := 0
	Subscribe(b, func(QueueChanged) {
		mu.Lock()
		total++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Publish(b, QueueChanged{GuildID: "g"})
			}
		}()
	}
	wg.Wait()

	if total != 20*50 {
		t.Fatalf("expected %d deliveries, got %d", 20*50, total)
	}
}
