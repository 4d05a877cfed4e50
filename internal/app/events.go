package app

import "battlearena/internal/app/event"

// EventKind identifies competition events sent to match clients.
type EventKind string

const (
	EventPlayerJoined     EventKind = "player_joined"
	EventPlayerSpectating EventKind = "player_spectating"
	EventPlayerLeft       EventKind = "player_left"
	EventVictory          EventKind = "victory"
	EventLoss             EventKind = "loss"
	EventDraw             EventKind = "draw"
	EventPhaseStarted     EventKind = "phase_started"
	EventPhaseCompleted   EventKind = "phase_completed"
)

// Event is a client-facing event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    map[string]any
	Recipients []string // user IDs; empty means broadcast
}

var clientKinds = map[event.Kind]EventKind{
	event.KindJoin:          EventPlayerJoined,
	event.KindSpectate:      EventPlayerSpectating,
	event.KindLeave:         EventPlayerLeft,
	event.KindVictory:       EventVictory,
	event.KindLoss:          EventLoss,
	event.KindDraw:          EventDraw,
	event.KindPhaseStart:    EventPhaseStarted,
	event.KindPhaseComplete: EventPhaseCompleted,
}

// ClientEvent converts a bus event into the payload broadcast to match clients.
// Payload values are limited to the types structpb accepts.
func ClientEvent(e event.Event) (Event, bool) {
	kind, ok := clientKinds[e.Kind]
	if !ok {
		return Event{}, false
	}
	players := make([]any, len(e.Players))
	for i, p := range e.Players {
		players[i] = p
	}
	payload := map[string]any{
		"competition": e.CompetitionID,
		"arena":       e.Arena,
		"players":     players,
	}
	if e.Team != "" {
		payload["team"] = e.Team
	}
	if e.Cause != "" {
		payload["cause"] = string(e.Cause)
	}
	if e.Phase != "" {
		payload["phase"] = string(e.Phase)
	}
	out := Event{Kind: kind, Payload: payload}
	// Outcomes go to the players they concern, the rest of the match learns from phase changes.
	if kind == EventVictory || kind == EventLoss {
		out.Recipients = append([]string(nil), e.Players...)
	}
	return out, true
}
