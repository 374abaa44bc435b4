package player

import "sync"

// Emitter keeps an ordered set of subscriptions and fans events out to them.
// Handlers run on the emitting goroutine and without the emitter lock held,
// so a handler may unsubscribe itself or others.
type Emitter struct {
	mu     sync.Mutex
	nextID SubscriptionID
	subs   []subscription
}

type subscription struct {
	id      SubscriptionID
	kind    EventKind
	handler Handler
}

func (e *Emitter) Subscribe(kind EventKind, h Handler) SubscriptionID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.subs = append(e.subs, subscription{id: e.nextID, kind: kind, handler: h})
	return e.nextID
}

func (e *Emitter) Unsubscribe(id SubscriptionID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscriptions.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Clear drops every subscription.
func (e *Emitter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = nil
}

// Emit delivers ev to every handler subscribed to its kind.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	var handlers []Handler
	for _, s := range e.subs {
		if s.kind == ev.Kind {
			handlers = append(handlers, s.handler)
		}
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
