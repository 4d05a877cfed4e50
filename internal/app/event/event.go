// Package event carries competition lifecycle events from competitions to their listeners.
package event

import "battlearena/internal/domain"

// Kind identifies a lifecycle event.
type Kind string

const (
	KindJoin          Kind = "join"
	KindSpectate      Kind = "spectate"
	KindLeave         Kind = "leave"
	KindVictory       Kind = "victory"
	KindLoss          Kind = "loss"
	KindDraw          Kind = "draw"
	KindPhaseStart    Kind = "phase_start"
	KindPhaseComplete Kind = "phase_complete"
)

// Event is published by a competition. Players holds the user ids the event is about.
type Event struct {
	Kind          Kind
	Arena         string
	CompetitionID string
	Players       []string
	Team          string
	Cause         domain.LeaveCause
	Phase         domain.PhaseType
}

// Handler reacts to a published event.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to handlers registered per kind.
// It is not safe for concurrent use; publish and subscribe from the control loop.
type Bus struct {
	nextID   uint64
	handlers map[Kind][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]subscription)}
}

// Subscribe registers handler for the given kinds, or every kind when none are given.
func (b *Bus) Subscribe(handler Handler, kinds ...Kind) (unsubscribe func()) {
	if len(kinds) == 0 {
		kinds = AllKinds()
	}
	b.nextID++
	id := b.nextID
	for _, k := range kinds {
		b.handlers[k] = append(b.handlers[k], subscription{id: id, handler: handler})
	}
	return func() {
		for _, k := range kinds {
			subs := b.handlers[k]
			kept := make([]subscription, 0, len(subs))
			for _, s := range subs {
				if s.id != id {
					kept = append(kept, s)
				}
			}
			b.handlers[k] = kept
		}
	}
}

// Publish calls the handlers of e.Kind in subscription order.
func (b *Bus) Publish(e Event) {
	subs := b.handlers[e.Kind]
	if len(subs) == 0 {
		return
	}
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	for _, s := range snapshot {
		s.handler(e)
	}
}

// AllKinds lists every event kind.
func AllKinds() []Kind {
	return []Kind{KindJoin, KindSpectate, KindLeave, KindVictory, KindLoss, KindDraw, KindPhaseStart, KindPhaseComplete}
}
