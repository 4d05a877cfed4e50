package competition

// Roster maps every participating user to the competition that holds them.
// A user appears at most once, which is what keeps them out of two competitions at the same time.
type Roster struct {
	members map[string]string
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{members: make(map[string]string)}
}

// CompetitionOf returns the id of the competition holding userID.
func (r *Roster) CompetitionOf(userID string) (string, bool) {
	id, ok := r.members[userID]
	return id, ok
}

// Has reports whether userID is in any competition.
func (r *Roster) Has(userID string) bool {
	_, ok := r.members[userID]
	return ok
}

func (r *Roster) add(userID, competitionID string) bool {
	if _, ok := r.members[userID]; ok {
		return false
	}
	r.members[userID] = competitionID
	return true
}

func (r *Roster) remove(userID, competitionID string) {
	if r.members[userID] == competitionID {
		delete(r.members, userID)
	}
}

// Len returns the number of users in competitions.
func (r *Roster) Len() int {
	return len(r.members)
}
