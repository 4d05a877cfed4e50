package apptest

import (
	"time"

	"battlearena/internal/domain"
)

// DuelArena is a two-team arena with one player per team, a full phase graph and dynamic maps.
func DuelArena(name string) *domain.Arena {
	return &domain.Arena{
		Name: name,
		Teams: domain.TeamOptions{
			Selection:   domain.TeamSelectionRandom,
			Names:       []string{"red", "blue"},
			MinTeams:    2,
			MaxTeams:    2,
			MinTeamSize: 1,
			MaxTeamSize: 1,
		},
		Phases:       StandardPhases(),
		InitialPhase: domain.PhaseWaiting,
		Maps: []domain.MapDef{
			{Name: "pit", Type: domain.MapDynamic},
			{Name: "bridge", Type: domain.MapDynamic},
		},
		OnDemand: true,
	}
}

// TeamArena is a two-team arena with teams of one to three players.
func TeamArena(name string) *domain.Arena {
	a := DuelArena(name)
	a.Teams.MaxTeamSize = 3
	return a
}

// StandardPhases is waiting, a 10s countdown, the game and a 5s victory phase.
func StandardPhases() []domain.PhaseDef {
	return []domain.PhaseDef{
		{Type: domain.PhaseWaiting, Next: domain.PhaseCountdown},
		{Type: domain.PhaseCountdown, Next: domain.PhaseInGame, Duration: 10 * time.Second},
		{Type: domain.PhaseInGame, Next: domain.PhaseVictory},
		{Type: domain.PhaseVictory, Duration: 5 * time.Second},
	}
}
