package tournament

// Presence answers whether a user is currently inside a live competition.
type Presence interface {
	Has(userID string) bool
}

// Contestant is one bracket slot shared by one or more players.
type Contestant struct {
	Name    string
	members []string
	Wins    int
	Losses  int
	Byes    int
}

// NewContestant creates a contestant with the given members.
func NewContestant(name string, members []string) *Contestant {
	return &Contestant{Name: name, members: append([]string(nil), members...)}
}

// Members returns the member user ids.
func (c *Contestant) Members() []string {
	return append([]string(nil), c.members...)
}

// Has reports whether userID belongs to the contestant.
func (c *Contestant) Has(userID string) bool {
	for _, id := range c.members {
		if id == userID {
			return true
		}
	}
	return false
}

// Remove drops userID and reports whether they were a member.
func (c *Contestant) Remove(userID string) bool {
	for i, id := range c.members {
		if id == userID {
			c.members = append(c.members[:i], c.members[i+1:]...)
			return true
		}
	}
	return false
}

// Empty reports whether every member has left.
func (c *Contestant) Empty() bool {
	return len(c.members) == 0
}

// IsDone reports whether none of the members is inside a competition.
func (c *Contestant) IsDone(p Presence) bool {
	for _, id := range c.members {
		if p.Has(id) {
			return false
		}
	}
	return true
}

// ContestantPair matches two contestants for a round. A nil C2 is a bye.
type ContestantPair struct {
	C1 *Contestant
	C2 *Contestant
	// CompetitionID is the competition the pair plays in, empty for byes.
	CompetitionID string
}

// IsBye reports whether C1 advances without playing.
func (p *ContestantPair) IsBye() bool {
	return p.C2 == nil
}

// IsDone reports whether every side has finished its game.
func (p *ContestantPair) IsDone(presence Presence) bool {
	if !p.C1.IsDone(presence) {
		return false
	}
	return p.C2 == nil || p.C2.IsDone(presence)
}

// Empty reports whether both sides lost all their members.
func (p *ContestantPair) Empty() bool {
	return p.C1.Empty() && (p.C2 == nil || p.C2.Empty())
}

// Opponent returns the other side of the pair, nil for byes or strangers.
func (p *ContestantPair) Opponent(c *Contestant) *Contestant {
	switch c {
	case p.C1:
		return p.C2
	case p.C2:
		return p.C1
	}
	return nil
}

// Has reports whether c plays in this pair.
func (p *ContestantPair) Has(c *Contestant) bool {
	return p.C1 == c || (p.C2 != nil && p.C2 == c)
}
