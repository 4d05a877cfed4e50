package competition

import "battlearena/internal/domain"

// ArenaPlayer is a user's membership record inside one competition.
type ArenaPlayer struct {
	UserID        string
	CompetitionID string
	Role          domain.PlayerRole
	Team          string
	// Eliminated players keep spectating until the game resolves and count as losers.
	Eliminated bool
	Metadata   map[string]string
	Stats      map[string]int
}

func newArenaPlayer(userID, competitionID string, role domain.PlayerRole) *ArenaPlayer {
	return &ArenaPlayer{
		UserID:        userID,
		CompetitionID: competitionID,
		Role:          role,
		Metadata:      make(map[string]string),
		Stats:         make(map[string]int),
	}
}

// Increment bumps a named stat counter and returns the new value.
func (p *ArenaPlayer) Increment(stat string) int {
	p.Stats[stat]++
	return p.Stats[stat]
}

// IsPlaying reports whether the player is an active, non-eliminated participant.
func (p *ArenaPlayer) IsPlaying() bool {
	return p.Role == domain.RolePlaying && !p.Eliminated
}
