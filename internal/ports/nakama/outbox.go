package nakama

import (
	"sync"

	"battlearena/internal/app"
	"battlearena/internal/app/competition"
	"battlearena/internal/app/event"
)

// outbox buffers what each competition match must send on its next tick. The control loop
// writes, match goroutines drain.
type outbox struct {
	mu      sync.Mutex
	manager *competition.Manager
	events  map[string][]app.Event
	labels  map[string]matchLabel
}

func newOutbox(manager *competition.Manager) *outbox {
	o := &outbox{
		manager: manager,
		events:  make(map[string][]app.Event),
		labels:  make(map[string]matchLabel),
	}
	manager.Bus().Subscribe(o.record)
	return o
}

// record runs on the control loop for every bus event.
func (o *outbox) record(e event.Event) {
	ev, ok := app.ClientEvent(e)
	if !ok || e.CompetitionID == "" {
		return
	}
	c, live := o.manager.Competition(e.CompetitionID)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.events[e.CompetitionID] = append(o.events[e.CompetitionID], ev)
	if live {
		o.labels[e.CompetitionID] = labelOf(c)
	}
}

func (o *outbox) drain(competitionID string) ([]app.Event, matchLabel, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	evs := o.events[competitionID]
	delete(o.events, competitionID)
	label, ok := o.labels[competitionID]
	return evs, label, ok
}

func (o *outbox) drop(competitionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.events, competitionID)
	delete(o.labels, competitionID)
}
