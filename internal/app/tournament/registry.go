package tournament

import (
	"context"
	"sort"
	"strconv"

	"battlearena/internal/app/competition"
	"battlearena/internal/domain"
)

// Registry holds the active tournament of each arena.
type Registry struct {
	cfg         Config
	deps        Deps
	tournaments map[string]*Tournament
}

// NewRegistry creates an empty registry and installs the join hook that keeps outsiders out of
// arenas with a running tournament.
func NewRegistry(cfg Config, deps Deps) *Registry {
	r := &Registry{cfg: cfg, deps: deps, tournaments: make(map[string]*Tournament)}
	deps.Manager.AddJoinHook(r.joinHook)
	return r
}

// Get returns the tournament of an arena.
func (r *Registry) Get(arena string) (*Tournament, bool) {
	t, ok := r.tournaments[arena]
	return t, ok
}

// List returns the active tournaments sorted by arena name.
func (r *Registry) List() []*Tournament {
	out := make([]*Tournament, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].arena.Name < out[j].arena.Name })
	return out
}

// Create validates the arena and registers a waiting tournament on it.
func (r *Registry) Create(arenaName string) (*Tournament, error) {
	arena, ok := r.deps.Manager.Arena(arenaName)
	if !ok {
		return nil, newError(domain.MsgArenaNotFound, "arena", arenaName)
	}
	if _, exists := r.tournaments[arenaName]; exists {
		return nil, newError(domain.MsgTournamentAlreadyExists, "arena", arenaName)
	}
	if arena.Teams.MinTeamSize < 1 {
		return nil, newError(domain.MsgTournamentTeamSizeTooSmall, "arena", arenaName)
	}
	if arena.Teams.MaxTeams != 2 {
		return nil, newError(domain.MsgTournamentTeamAmountInvalid,
			"arena", arenaName,
			"teams", strconv.Itoa(arena.Teams.MaxTeams))
	}
	for _, c := range r.deps.Manager.Competitions(arenaName) {
		if len(c.Players()) > 0 {
			return nil, newError(domain.MsgTournamentPlayersInGame, "arena", arenaName)
		}
	}
	t := newTournament(arena, r.cfg, r.deps, r.remove)
	r.tournaments[arenaName] = t
	r.deps.Logger.WithField("arena", arenaName).Info("tournament created")
	return t, nil
}

// Start starts the arena's tournament.
func (r *Registry) Start(ctx context.Context, arenaName string) error {
	t, ok := r.tournaments[arenaName]
	if !ok {
		return newError(domain.MsgTournamentNotFound, "arena", arenaName)
	}
	return t.Start(ctx)
}

// End finishes the arena's tournament without a winner.
func (r *Registry) End(arenaName string) error {
	t, ok := r.tournaments[arenaName]
	if !ok {
		return newError(domain.MsgTournamentNotFound, "arena", arenaName)
	}
	t.End()
	return nil
}

// EndAll finishes every tournament. Used at shutdown.
func (r *Registry) EndAll() {
	for _, t := range r.List() {
		t.End()
	}
}

// Of returns the tournament userID is queued in or plays for.
func (r *Registry) Of(userID string) (*Tournament, bool) {
	for _, t := range r.List() {
		if contains(t.queue, userID) || contains(t.watching, userID) || t.InBracket(userID) {
			return t, true
		}
	}
	return nil, false
}

func (r *Registry) remove(t *Tournament) {
	if r.tournaments[t.arena.Name] == t {
		delete(r.tournaments, t.arena.Name)
	}
}

func (r *Registry) joinHook(c *competition.Competition, userID string, role domain.PlayerRole) domain.JoinResult {
	if role != domain.RolePlaying {
		return domain.JoinSuccess
	}
	t, ok := r.tournaments[c.Arena().Name]
	if !ok || !t.Started() || t.InBracket(userID) {
		return domain.JoinSuccess
	}
	return domain.JoinFailure(domain.MsgTournamentInProgress)
}
