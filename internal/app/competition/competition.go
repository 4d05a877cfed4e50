package competition

import (
	"math/rand"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"battlearena/internal/app/event"
	"battlearena/internal/domain"
	"battlearena/internal/ports"
	"battlearena/internal/scheduler"
)

// JoinHook can veto a join. Returning a failed result blocks the join with its message.
type JoinHook func(c *Competition, userID string, role domain.PlayerRole) domain.JoinResult

// env is shared by every competition of a Manager.
type env struct {
	bus       *event.Bus
	scheduler scheduler.Scheduler
	logger    runtime.Logger
	rng       *rand.Rand
	roster    *Roster
	providers map[domain.PhaseType]PhaseProvider
	hooks     []JoinHook
	completed func(c *Competition)
}

// Competition is one live instance of an arena on a map.
type Competition struct {
	id       string
	arena    *domain.Arena
	instance ports.MapInstance
	dynamic  bool
	phases   *PhaseManager
	teams    *TeamManager
	members  map[string]*ArenaPlayer
	order    []string
	env      *env
	resolved bool
	closing  bool
}

func newCompetition(id string, arena *domain.Arena, instance ports.MapInstance, dynamic bool, e *env) *Competition {
	return &Competition{
		id:       id,
		arena:    arena,
		instance: instance,
		dynamic:  dynamic,
		phases:   NewPhaseManager(arena, e.providers, e.logger),
		teams:    NewTeamManager(arena.Teams, e.rng),
		members:  make(map[string]*ArenaPlayer),
		env:      e,
	}
}

func (c *Competition) ID() string { return c.id }
func (c *Competition) Arena() *domain.Arena { return c.arena }
func (c *Competition) Map() domain.MapDef { return c.instance.Map }
func (c *Competition) Instance() ports.MapInstance { return c.instance }
func (c *Competition) Dynamic() bool { return c.dynamic }
func (c *Competition) Phases() *PhaseManager { return c.phases }
func (c *Competition) Teams() *TeamManager { return c.teams }

// Closing reports whether the competition is being destroyed.
func (c *Competition) Closing() bool {
	return c.closing
}

// Member returns the membership record of userID.
func (c *Competition) Member(userID string) (*ArenaPlayer, bool) {
	p, ok := c.members[userID]
	return p, ok
}

// Players returns the ids of active players in join order.
func (c *Competition) Players() []string {
	var out []string
	for _, id := range c.order {
		if c.members[id].IsPlaying() {
			out = append(out, id)
		}
	}
	return out
}

// Spectators returns the ids of spectating members, eliminated players included, in join order.
func (c *Competition) Spectators() []string {
	var out []string
	for _, id := range c.order {
		if !c.members[id].IsPlaying() {
			out = append(out, id)
		}
	}
	return out
}

// Size returns the number of members of any role.
func (c *Competition) Size() int {
	return len(c.order)
}

// CanJoin reports whether a join with the given role would succeed. It has no side effects.
func (c *Competition) CanJoin(userID string, role domain.PlayerRole) domain.JoinResult {
	return c.canJoin(userID, role, false)
}

func (c *Competition) canJoin(userID string, role domain.PlayerRole, seated bool) domain.JoinResult {
	phase := c.phases.Current()
	if c.closing || phase == nil {
		return domain.JoinFailure(domain.MsgArenaNotJoinable)
	}
	switch role {
	case domain.RoleSpectating:
		if !phase.AllowsSpectate() {
			return domain.JoinFailure(domain.MsgArenaNotSpectatable)
		}
	default:
		if !phase.AllowsJoin() {
			return domain.JoinFailure(domain.MsgArenaNotJoinable)
		}
		if seated {
			break
		}
		if len(c.Players()) >= c.arena.PlayerCap() {
			return domain.JoinFailure(domain.MsgArenaFull)
		}
		if c.teams.AllFull() && c.arena.Teams.Selection != domain.TeamSelectionNone {
			return domain.JoinFailure(domain.MsgArenaTeamFull)
		}
	}
	for _, hook := range c.env.hooks {
		if res := hook(c, userID, role); !res.Success {
			return res
		}
	}
	return domain.JoinSuccess
}

// Join adds userID with the given role. team places a player explicitly; empty lets the arena decide.
func (c *Competition) Join(userID string, role domain.PlayerRole, team string) domain.JoinResult {
	return c.join(userID, role, team, false)
}

// Seat joins userID as a player on team even when the team or the arena is already full.
// Tournaments use it to keep every member of a contestant on the same side.
func (c *Competition) Seat(userID, team string) domain.JoinResult {
	return c.join(userID, domain.RolePlaying, team, true)
}

func (c *Competition) join(userID string, role domain.PlayerRole, team string, seated bool) domain.JoinResult {
	if c.env.roster.Has(userID) {
		return domain.JoinFailure(domain.MsgArenaAlreadyJoined)
	}
	if res := c.canJoin(userID, role, seated); !res.Success {
		return res
	}

	p := newArenaPlayer(userID, c.id, role)
	if role == domain.RolePlaying {
		switch {
		case team != "" && seated:
			if err := c.teams.Place(userID, team); err != nil {
				return domain.JoinFailure(domain.MsgArenaTeamFull)
			}
			p.Team = team
		case team != "":
			if err := c.teams.Join(userID, team); err != nil {
				return domain.JoinFailure(domain.MsgArenaTeamFull)
			}
			p.Team = team
		case c.arena.Teams.Selection == domain.TeamSelectionNone:
			p.Team = c.teams.AssignDefault(userID)
		default:
			name, err := c.teams.AssignRandom(userID)
			switch {
			case err == nil:
				p.Team = name
			case seated:
				p.Team = c.teams.AssignDefault(userID)
			default:
				return domain.JoinFailure(domain.MsgArenaTeamFull)
			}
		}
	}
	c.env.roster.add(userID, c.id)
	c.members[userID] = p
	c.order = append(c.order, userID)

	kind := event.KindJoin
	if role == domain.RoleSpectating {
		kind = event.KindSpectate
	}
	c.publish(event.Event{Kind: kind, Players: []string{userID}, Team: p.Team})
	c.membershipChanged()
	return domain.JoinSuccess
}

// Leave removes userID from the competition. It reports false when userID is not a member.
func (c *Competition) Leave(userID string, cause domain.LeaveCause) bool {
	p, ok := c.members[userID]
	if !ok {
		return false
	}
	delete(c.members, userID)
	for i, id := range c.order {
		if id == userID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.teams.Leave(userID)
	c.env.roster.remove(userID, c.id)
	p.Metadata = nil

	c.publish(event.Event{Kind: event.KindLeave, Players: []string{userID}, Team: p.Team, Cause: cause})
	c.membershipChanged()
	return true
}

// Eliminate turns an active player into a spectator that still counts as a loser of this game.
func (c *Competition) Eliminate(userID string) bool {
	p, ok := c.members[userID]
	if !ok || !p.IsPlaying() {
		return false
	}
	p.Eliminated = true
	p.Role = domain.RoleSpectating
	p.Increment("deaths")
	c.membershipChanged()
	return true
}

// Victory resolves the game in favor of victors. Every other participant of the game loses.
func (c *Competition) Victory(victors []string) {
	if c.resolved {
		return
	}
	c.resolved = true
	won := make(map[string]bool, len(victors))
	for _, id := range victors {
		won[id] = true
		if p, ok := c.members[id]; ok {
			p.Increment("wins")
		}
	}
	var losers []string
	for _, id := range c.order {
		p := c.members[id]
		if won[id] || p.Role == domain.RoleSpectating && !p.Eliminated {
			continue
		}
		p.Increment("losses")
		losers = append(losers, id)
	}
	team := ""
	if len(victors) > 0 {
		team = c.teams.TeamOf(victors[0])
	}
	c.publish(event.Event{Kind: event.KindVictory, Players: victors, Team: team})
	if len(losers) > 0 {
		c.publish(event.Event{Kind: event.KindLoss, Players: losers})
	}
	c.enterVictory()
}

// Draw resolves the game without a winner.
func (c *Competition) Draw() {
	if c.resolved {
		return
	}
	c.resolved = true
	var players []string
	for _, id := range c.order {
		p := c.members[id]
		if p.Role == domain.RolePlaying || p.Eliminated {
			players = append(players, id)
		}
	}
	c.publish(event.Event{Kind: event.KindDraw, Players: players})
	c.enterVictory()
}

func (c *Competition) enterVictory() {
	if c.arena.HasVictoryPhase() {
		if err := c.phases.SetPhase(c, domain.PhaseVictory); err == nil {
			return
		}
	}
	if !c.closing {
		c.complete()
	}
}

// complete hands a finished game back to the manager, which empties and recycles it.
func (c *Competition) complete() {
	if c.env.completed != nil {
		c.env.completed(c)
	}
}

// reset prepares a static competition for the next game.
func (c *Competition) reset() error {
	c.resolved = false
	c.teams.Reset()
	return c.phases.SetPhase(c, c.arena.InitialPhase)
}

// standingSides groups active players by side. Without team selection every player is a side.
func (c *Competition) standingSides() [][]string {
	players := c.Players()
	if c.arena.Teams.Selection == domain.TeamSelectionNone {
		sides := make([][]string, 0, len(players))
		for _, id := range players {
			sides = append(sides, []string{id})
		}
		return sides
	}
	var sides [][]string
	for _, t := range c.teams.Teams() {
		var standing []string
		for _, id := range t.members {
			if p, ok := c.members[id]; ok && p.IsPlaying() {
				standing = append(standing, id)
			}
		}
		if len(standing) > 0 {
			sides = append(sides, standing)
		}
	}
	return sides
}

func (c *Competition) membershipChanged() {
	if c.closing {
		return
	}
	if phase := c.phases.Current(); phase != nil {
		phase.MembershipChanged(c)
	}
}

func (c *Competition) publish(e event.Event) {
	e.Arena = c.arena.Name
	e.CompetitionID = c.id
	if e.Phase == "" {
		e.Phase = c.phases.CurrentType()
	}
	c.env.bus.Publish(e)
}

func (c *Competition) after(d time.Duration, fn func()) func() {
	return c.env.scheduler.After(d, func() {
		if c.closing {
			return
		}
		fn()
	})
}
