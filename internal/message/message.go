// Package message resolves stable message ids into user-facing text.
package message

import (
	"sort"
	"strings"

	"battlearena/internal/domain"
)

// Message is a message id plus the named arguments substituted into its template.
type Message struct {
	ID   string
	Args map[string]string
}

// New builds a message from an id and alternating key/value pairs.
func New(id string, kv ...string) Message {
	m := Message{ID: id}
	if len(kv) > 1 {
		m.Args = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			m.Args[kv[i]] = kv[i+1]
		}
	}
	return m
}

// Arg returns the named argument or an empty string.
func (m Message) Arg(key string) string {
	return m.Args[key]
}

var defaults = map[string]string{
	domain.MsgArenaNotFound:               "Arena {arena} does not exist.",
	domain.MsgArenaNotJoinable:            "You cannot join {arena} right now.",
	domain.MsgArenaNotSpectatable:         "You cannot spectate {arena} right now.",
	domain.MsgArenaFull:                   "{arena} is full.",
	domain.MsgArenaTeamFull:               "Every team in {arena} is full.",
	domain.MsgArenaNoOpenCompetition:      "No open game found for {arena}.",
	domain.MsgArenaNoMap:                  "No map named {map} in {arena}.",
	domain.MsgArenaDynamicCapReached:      "All game slots are in use, try again later.",
	domain.MsgArenaProvisionFailed:        "Could not prepare a map for {arena}.",
	domain.MsgArenaAlreadyJoined:          "You are already in a game.",
	domain.MsgArenaNotInCompetition:       "You are not in a game.",
	domain.MsgArenaJoined:                 "You joined {arena}.",
	domain.MsgArenaSpectating:             "You are spectating {arena}.",
	domain.MsgArenaLeft:                   "You left {arena}.",
	domain.MsgTournamentAlreadyExists:     "A tournament for {arena} already exists.",
	domain.MsgTournamentNotFound:          "There is no tournament for {arena}.",
	domain.MsgTournamentAlreadyStarted:    "The tournament for {arena} has already started.",
	domain.MsgTournamentNotEnoughPlayers:  "Not enough players: {players}/{required}.",
	domain.MsgTournamentNotEnoughArenas:   "Not enough maps available for the next round of {arena}.",
	domain.MsgTournamentTeamSizeTooSmall:  "Teams in {arena} must allow at least one player.",
	domain.MsgTournamentTeamAmountInvalid: "Tournaments need exactly two teams, {arena} has {teams}.",
	domain.MsgTournamentPlayersInGame:     "Games of {arena} are still being played.",
	domain.MsgTournamentInProgress:        "A tournament is running in {arena}.",
	domain.MsgTournamentCreated:           "A tournament for {arena} was created.",
	domain.MsgTournamentJoined:            "You joined the tournament for {arena}.",
	domain.MsgTournamentLeft:              "You left the tournament for {arena}.",
	domain.MsgTournamentNotJoined:         "You are not in the tournament for {arena}.",
	domain.MsgTournamentStarted:           "The tournament for {arena} has started with {contestants} contestants.",
	domain.MsgTournamentEnded:             "The tournament for {arena} was ended.",
	domain.MsgTournamentFirstRound:        "Round {round} is starting.",
	domain.MsgTournamentNextRound:         "Round {round} is starting, {contestants} contestants remain.",
	domain.MsgTournamentAdvanceDelay:      "The next round starts in {seconds} seconds.",
	domain.MsgTournamentBye:               "You have no opponent this round and advance automatically.",
	domain.MsgTournamentRoundWon:          "You won this round.",
	domain.MsgTournamentRoundLost:         "You lost this round.",
	domain.MsgTournamentRoundDraw:         "This round ended in a draw.",
	domain.MsgTournamentWinner:            "{winner} won the tournament for {arena}!",
	domain.MsgTournamentDraw:              "The tournament for {arena} ended without a winner.",
	domain.MsgTournamentNotSeated:         "You could not be placed in your tournament game.",
	domain.MsgDuelNoTarget:                "Player {player} was not found.",
	domain.MsgDuelSelf:                    "You cannot duel yourself.",
	domain.MsgDuelAlreadyRequested:        "{player} already has a pending duel request.",
	domain.MsgDuelNoRequest:               "You have no pending duel request.",
	domain.MsgDuelInCompetition:           "{player} is already in a game.",
	domain.MsgDuelRequested:               "Duel request sent to {player}.",
	domain.MsgDuelReceived:                "{player} challenged you to a duel in {arena}.",
	domain.MsgDuelAccepted:                "{player} accepted your duel.",
	domain.MsgDuelDenied:                  "{player} denied your duel.",
	domain.MsgDuelCancelled:               "{player} cancelled the duel request.",
	domain.MsgDuelExpired:                 "The duel request with {player} expired.",
	domain.MsgDuelReserved:                "This game is reserved for a duel.",
	domain.MsgDuelClosed:                  "The duel request with {player} was closed.",
	domain.MsgVoiceUnavailable:            "Voice chat is not available.",
	domain.MsgNotice:                      "{text}",
}

// Catalog renders messages from the built-in templates, optionally overridden by configuration.
type Catalog struct {
	templates map[string]string
}

// NewCatalog returns a catalog with the built-in templates and the given overrides applied.
func NewCatalog(overrides map[string]string) *Catalog {
	templates := make(map[string]string, len(defaults)+len(overrides))
	for id, tpl := range defaults {
		templates[id] = tpl
	}
	for id, tpl := range overrides {
		if tpl != "" {
			templates[id] = tpl
		}
	}
	return &Catalog{templates: templates}
}

// Render substitutes {name} placeholders. Unknown ids render as the id itself.
func (c *Catalog) Render(m Message) string {
	tpl, ok := c.templates[m.ID]
	if !ok {
		tpl = m.ID
	}
	if len(m.Args) == 0 {
		return tpl
	}
	keys := make([]string, 0, len(m.Args))
	for k := range m.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", m.Args[k])
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
