package competition

import (
	"math/rand"

	"github.com/rotisserie/eris"

	"battlearena/internal/domain"
)

var (
	ErrUnknownTeam = eris.New("unknown team")
	ErrTeamFull    = eris.New("team is full")
)

// Team is a named group of members inside one competition.
type Team struct {
	Name    string
	members []string
}

// Members returns a copy of the team's user ids in join order.
func (t *Team) Members() []string {
	out := make([]string, len(t.members))
	copy(out, t.members)
	return out
}

// Size returns the number of members.
func (t *Team) Size() int {
	return len(t.members)
}

func (t *Team) remove(userID string) bool {
	for i, id := range t.members {
		if id == userID {
			t.members = append(t.members[:i], t.members[i+1:]...)
			return true
		}
	}
	return false
}

// TeamManager tracks team membership and capacity for one competition.
type TeamManager struct {
	options domain.TeamOptions
	teams   []*Team
	rng     *rand.Rand
}

// NewTeamManager creates the arena's teams, all empty.
func NewTeamManager(options domain.TeamOptions, rng *rand.Rand) *TeamManager {
	tm := &TeamManager{options: options, rng: rng}
	for _, name := range options.TeamNames() {
		tm.teams = append(tm.teams, &Team{Name: name})
	}
	if len(tm.teams) == 0 {
		tm.teams = append(tm.teams, &Team{Name: "team-1"})
	}
	return tm
}

// Teams returns the teams in configuration order.
func (tm *TeamManager) Teams() []*Team {
	return tm.teams
}

// Team looks a team up by name.
func (tm *TeamManager) Team(name string) *Team {
	for _, t := range tm.teams {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// TeamOf returns the name of the team holding userID, or "".
func (tm *TeamManager) TeamOf(userID string) string {
	for _, t := range tm.teams {
		for _, id := range t.members {
			if id == userID {
				return t.Name
			}
		}
	}
	return ""
}

func (tm *TeamManager) isFull(t *Team) bool {
	return tm.options.MaxTeamSize > 0 && len(t.members) >= tm.options.MaxTeamSize
}

// AllFull reports whether no team can take another member.
func (tm *TeamManager) AllFull() bool {
	for _, t := range tm.teams {
		if !tm.isFull(t) {
			return false
		}
	}
	return true
}

// Join places userID on the named team.
func (tm *TeamManager) Join(userID, name string) error {
	t := tm.Team(name)
	if t == nil {
		return eris.Wrapf(ErrUnknownTeam, "team %q", name)
	}
	if tm.isFull(t) {
		return eris.Wrapf(ErrTeamFull, "team %q", name)
	}
	t.members = append(t.members, userID)
	return nil
}

// Place puts userID on the named team without checking its capacity.
func (tm *TeamManager) Place(userID, name string) error {
	t := tm.Team(name)
	if t == nil {
		return eris.Wrapf(ErrUnknownTeam, "team %q", name)
	}
	t.members = append(t.members, userID)
	return nil
}

// AssignDefault places userID on the first team regardless of its size.
// Arenas without team selection keep everyone there.
func (tm *TeamManager) AssignDefault(userID string) string {
	t := tm.teams[0]
	t.members = append(t.members, userID)
	return t.Name
}

// AssignRandom places userID on a random team among the least populated ones that still have room.
func (tm *TeamManager) AssignRandom(userID string) (string, error) {
	var candidates []*Team
	smallest := -1
	for _, t := range tm.teams {
		if tm.isFull(t) {
			continue
		}
		switch {
		case smallest < 0 || len(t.members) < smallest:
			smallest = len(t.members)
			candidates = []*Team{t}
		case len(t.members) == smallest:
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return "", ErrTeamFull
	}
	t := candidates[0]
	if len(candidates) > 1 && tm.rng != nil {
		t = candidates[tm.rng.Intn(len(candidates))]
	}
	t.members = append(t.members, userID)
	return t.Name, nil
}

// Leave removes userID from whichever team holds them.
func (tm *TeamManager) Leave(userID string) {
	for _, t := range tm.teams {
		if t.remove(userID) {
			return
		}
	}
}

// Reset empties every team.
func (tm *TeamManager) Reset() {
	for _, t := range tm.teams {
		t.members = nil
	}
}
