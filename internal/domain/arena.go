package domain

import (
	"strconv"
	"time"
)

// PhaseType names a stage of a competition lifecycle.
type PhaseType string

const (
	PhaseWaiting   PhaseType = "waiting"
	PhaseCountdown PhaseType = "countdown"
	PhaseInGame    PhaseType = "ingame"
	PhaseVictory   PhaseType = "victory"
)

// MapType tells whether a map is always present or provisioned on demand.
type MapType string

const (
	MapStatic  MapType = "static"
	MapDynamic MapType = "dynamic"
)

// TeamSelection controls how players without an explicit team are placed.
type TeamSelection string

const (
	// TeamSelectionNone puts everyone in the first team; the game has no real team distinction.
	TeamSelectionNone TeamSelection = "none"
	// TeamSelectionRandom picks a random team among the least populated ones.
	TeamSelectionRandom TeamSelection = "random"
)

// TeamOptions bounds the number and size of teams in a competition.
type TeamOptions struct {
	Selection   TeamSelection
	Names       []string
	MinTeams    int
	MaxTeams    int
	MinTeamSize int
	MaxTeamSize int
}

// IsNonTeamGame reports whether every player is a side of their own.
func (t TeamOptions) IsNonTeamGame() bool {
	return t.MaxTeamSize <= 1
}

// TeamNames returns MaxTeams names, generating "team-N" for the ones not configured.
func (t TeamOptions) TeamNames() []string {
	names := make([]string, 0, t.MaxTeams)
	for i := 0; i < t.MaxTeams; i++ {
		if i < len(t.Names) && t.Names[i] != "" {
			names = append(names, t.Names[i])
			continue
		}
		names = append(names, "team-"+strconv.Itoa(i+1))
	}
	return names
}

// PhaseDef configures one phase of the arena's phase graph.
type PhaseDef struct {
	Type PhaseType
	// Next is empty for a terminal phase.
	Next          PhaseType
	AllowJoin     *bool
	AllowSpectate *bool
	Duration      time.Duration
}

// MapDef describes one map an arena can be played on.
type MapDef struct {
	Name string
	Type MapType
}

// Arena is an immutable game-mode definition produced by the configuration loader.
type Arena struct {
	Name         string
	Teams        TeamOptions
	Phases       []PhaseDef
	InitialPhase PhaseType
	Maps         []MapDef
	// MaxPlayers caps the aggregate player count. Zero means MaxTeams * MaxTeamSize.
	MaxPlayers int
	// OnDemand allows creating dynamic competitions when no existing one can be joined.
	OnDemand bool
}

// Phase returns the definition registered for the given type.
func (a *Arena) Phase(t PhaseType) (PhaseDef, bool) {
	for _, p := range a.Phases {
		if p.Type == t {
			return p, true
		}
	}
	return PhaseDef{}, false
}

// HasVictoryPhase reports whether the phase graph contains a victory phase.
func (a *Arena) HasVictoryPhase() bool {
	_, ok := a.Phase(PhaseVictory)
	return ok
}

// PlayerCap returns the maximum number of playing participants.
func (a *Arena) PlayerCap() int {
	if a.MaxPlayers > 0 {
		return a.MaxPlayers
	}
	return a.Teams.MaxTeams * a.Teams.MaxTeamSize
}

// MinPlayers returns how many players must be present before a countdown can begin.
func (a *Arena) MinPlayers() int {
	n := a.Teams.MinTeams * a.Teams.MinTeamSize
	if n < 1 {
		return 1
	}
	return n
}

// Map returns the map definition with the given name.
func (a *Arena) Map(name string) (MapDef, bool) {
	for _, m := range a.Maps {
		if m.Name == name {
			return m, true
		}
	}
	return MapDef{}, false
}

// DynamicMaps returns the maps that can be provisioned on demand, in configuration order.
func (a *Arena) DynamicMaps() []MapDef {
	var out []MapDef
	for _, m := range a.Maps {
		if m.Type == MapDynamic {
			out = append(out, m)
		}
	}
	return out
}
