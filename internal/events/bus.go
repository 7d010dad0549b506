// Package events is a small in-process pub/sub bus decoupling the match
// core from whatever renders its notifications.
package events

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

type subscriber struct {
	id int
	fn func(any)
}

type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscriber // type name -> subscribers
	logger zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{subs: make(map[string][]subscriber), logger: logger}
}

func typeNameOf[T any]() string {
	var zero *T
	rt := reflect.TypeOf(zero).Elem()
	return rt.PkgPath() + "." + rt.Name()
}

// Subscribe registers fn for events of type T and returns an unsubscribe
// function. Callbacks run synchronously on the publishing goroutine;
// a panicking subscriber never takes the publisher down.
func Subscribe[T any](b *Bus, fn func(T)) func() {
	name := typeNameOf[T]()
	wrapped := func(v any) {
		if ev, ok := v.(T); ok {
			fn(ev)
		}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscriber{id: id, fn: wrapped})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		ss := b.subs[name]
		for i, s := range ss {
			if s.id == id {
				b.subs[name] = append(ss[:i], ss[i+1:]...)
				return
			}
		}
	}
}

func Publish[T any](b *Bus, ev T) {
	name := typeNameOf[T]()
	b.mu.RLock()
	ss := append([]subscriber(nil), b.subs[name]...)
	b.mu.RUnlock()
	for _, s := range ss {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error().
						Str("event", name).
						Interface("panic", r).
						Msg("event subscriber panicked")
				}
			}()
			s.fn(ev)
		}()
	}
}
