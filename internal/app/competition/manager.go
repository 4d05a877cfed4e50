package competition

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/rotisserie/eris"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"battlearena/internal/app/event"
	"battlearena/internal/domain"
	"battlearena/internal/ports"
	"battlearena/internal/scheduler"
)

var (
	ErrUnknownArena        = eris.New("unknown arena")
	ErrUnknownCompetition  = eris.New("unknown competition")
	ErrProvisioningFailed  = eris.New("map provisioning failed")
	ErrCompetitionNotReady = eris.New("competition could not enter its initial phase")
)

// Options configures a Manager.
type Options struct {
	Bus         *event.Bus
	Scheduler   scheduler.Scheduler
	Logger      runtime.Logger
	Provisioner ports.MapProvisioner
	// MaxDynamicMaps caps concurrently provisioned dynamic maps across all arenas. Zero means no cap.
	MaxDynamicMaps int
	Rand           *rand.Rand
	Tracer         trace.Tracer
}

// Manager owns every live competition and the arenas they belong to.
type Manager struct {
	env          *env
	provisioner  ports.MapProvisioner
	logger       runtime.Logger
	tracer       trace.Tracer
	arenas       map[string]*domain.Arena
	competitions map[string]*Competition
	byArena      map[string][]string
	maxDynamic   int
	dynamic      int
}

// NewManager creates a manager with the built-in phase providers registered.
func NewManager(opts Options) *Manager {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("battlearena/competition")
	}
	m := &Manager{
		provisioner:  opts.Provisioner,
		logger:       opts.Logger,
		tracer:       tracer,
		arenas:       make(map[string]*domain.Arena),
		competitions: make(map[string]*Competition),
		byArena:      make(map[string][]string),
		maxDynamic:   opts.MaxDynamicMaps,
	}
	m.env = &env{
		bus:       opts.Bus,
		scheduler: opts.Scheduler,
		logger:    opts.Logger,
		rng:       rng,
		roster:    NewRoster(),
		providers: DefaultProviders(),
		completed: m.completed,
	}
	return m
}

// Bus returns the event bus competitions publish on.
func (m *Manager) Bus() *event.Bus {
	return m.env.bus
}

// Roster returns the user to competition index.
func (m *Manager) Roster() *Roster {
	return m.env.roster
}

// Rand returns the manager's random source.
func (m *Manager) Rand() *rand.Rand {
	return m.env.rng
}

// RegisterPhase installs or replaces the provider for a phase type.
func (m *Manager) RegisterPhase(t domain.PhaseType, provider PhaseProvider) {
	m.env.providers[t] = provider
}

// AddJoinHook registers a hook consulted by every CanJoin.
func (m *Manager) AddJoinHook(hook JoinHook) {
	m.env.hooks = append(m.env.hooks, hook)
}

// RegisterArena makes an arena available for competitions.
func (m *Manager) RegisterArena(a *domain.Arena) {
	m.arenas[a.Name] = a
}

// Arena looks up a registered arena.
func (m *Manager) Arena(name string) (*domain.Arena, bool) {
	a, ok := m.arenas[name]
	return a, ok
}

// Arenas returns registered arenas sorted by name.
func (m *Manager) Arenas() []*domain.Arena {
	out := make([]*domain.Arena, 0, len(m.arenas))
	for _, a := range m.arenas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DynamicInUse returns how many dynamic maps are currently provisioned.
func (m *Manager) DynamicInUse() int {
	return m.dynamic
}

// Competition returns a live competition by id.
func (m *Manager) Competition(id string) (*Competition, bool) {
	c, ok := m.competitions[id]
	return c, ok
}

// CompetitionOf returns the competition holding userID.
func (m *Manager) CompetitionOf(userID string) (*Competition, bool) {
	id, ok := m.env.roster.CompetitionOf(userID)
	if !ok {
		return nil, false
	}
	return m.Competition(id)
}

// Competitions returns the arena's competitions in creation order.
func (m *Manager) Competitions(arena string) []*Competition {
	ids := m.byArena[arena]
	out := make([]*Competition, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.competitions[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// OpenCompetitions returns the arena's competitions that are not being torn down,
// optionally restricted to one map.
func (m *Manager) OpenCompetitions(arena, mapName string) []*Competition {
	var out []*Competition
	for _, c := range m.Competitions(arena) {
		if c.closing {
			continue
		}
		if mapName != "" && c.Map().Name != mapName {
			continue
		}
		out = append(out, c)
	}
	return out
}

// IdleCompetitions returns open competitions without members whose phase accepts players.
func (m *Manager) IdleCompetitions(arena string) []*Competition {
	var out []*Competition
	for _, c := range m.OpenCompetitions(arena, "") {
		phase := c.phases.Current()
		if c.Size() == 0 && phase != nil && phase.AllowsJoin() {
			out = append(out, c)
		}
	}
	return out
}

// CreateStatic brings up a competition on a static map.
func (m *Manager) CreateStatic(ctx context.Context, arenaName, mapName string) (*Competition, error) {
	arena, ok := m.arenas[arenaName]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownArena, "arena %q", arenaName)
	}
	def, ok := arena.Map(mapName)
	if !ok {
		return nil, eris.Errorf("arena %q has no map %q", arenaName, mapName)
	}
	id := xid.New().String()
	instance, err := m.provision(ctx, arena, def, id)
	if err != nil {
		return nil, err
	}
	return m.register(ctx, id, arena, instance, false)
}

// CreateDynamic provisions a dynamic map and a competition on it. The cap check and the
// counter increment happen in the same step so two callers cannot take the same slot.
// mapName picks a specific dynamic map; empty picks one at random.
func (m *Manager) CreateDynamic(ctx context.Context, arenaName, mapName string) (*Competition, domain.JoinResult) {
	arena, ok := m.arenas[arenaName]
	if !ok {
		return nil, domain.JoinFailure(domain.MsgArenaNotFound)
	}
	candidates := arena.DynamicMaps()
	if mapName != "" {
		def, ok := arena.Map(mapName)
		if !ok || def.Type != domain.MapDynamic {
			return nil, domain.JoinFailure(domain.MsgArenaNoMap)
		}
		candidates = []domain.MapDef{def}
	}
	if len(candidates) == 0 {
		return nil, domain.JoinFailure(domain.MsgArenaNoMap)
	}
	def := candidates[0]
	if mapName == "" && len(candidates) > 1 {
		def = candidates[m.env.rng.Intn(len(candidates))]
	}
	return m.createDynamic(ctx, arena, def)
}

// CreateDynamicOn provisions a specific dynamic map, used by tournaments spreading rounds over maps.
func (m *Manager) CreateDynamicOn(ctx context.Context, arena *domain.Arena, def domain.MapDef) (*Competition, domain.JoinResult) {
	return m.createDynamic(ctx, arena, def)
}

func (m *Manager) createDynamic(ctx context.Context, arena *domain.Arena, def domain.MapDef) (*Competition, domain.JoinResult) {
	if m.maxDynamic > 0 && m.dynamic >= m.maxDynamic {
		return nil, domain.JoinFailure(domain.MsgArenaDynamicCapReached)
	}
	m.dynamic++

	id := xid.New().String()
	instance, err := m.provision(ctx, arena, def, id)
	if err != nil {
		m.dynamic--
		m.logger.WithFields(map[string]interface{}{
			"arena": arena.Name,
			"map":   def.Name,
		}).Warn("dynamic map provisioning failed: %v", err)
		return nil, domain.JoinFailure(domain.MsgArenaProvisionFailed)
	}
	c, err := m.register(ctx, id, arena, instance, true)
	if err != nil {
		return nil, domain.JoinFailure(domain.MsgArenaProvisionFailed)
	}
	return c, domain.JoinSuccess
}

func (m *Manager) provision(ctx context.Context, arena *domain.Arena, def domain.MapDef, id string) (ports.MapInstance, error) {
	ctx, span := m.tracer.Start(ctx, "competition.provision", trace.WithAttributes(
		attribute.String("arena", arena.Name),
		attribute.String("map", def.Name),
		attribute.String("map.type", string(def.Type)),
	))
	defer span.End()

	if m.provisioner == nil {
		return ports.MapInstance{ID: id, Map: def}, nil
	}
	instance, err := m.provisioner.Provision(ctx, arena, def, id)
	if err != nil {
		span.RecordError(err)
		return ports.MapInstance{}, eris.Wrapf(ErrProvisioningFailed, "arena %q map %q: %v", arena.Name, def.Name, err)
	}
	instance.Map = def
	return instance, nil
}

func (m *Manager) register(ctx context.Context, id string, arena *domain.Arena, instance ports.MapInstance, dynamic bool) (*Competition, error) {
	c := newCompetition(id, arena, instance, dynamic, m.env)
	m.competitions[id] = c
	m.byArena[arena.Name] = append(m.byArena[arena.Name], id)
	if err := c.phases.SetPhase(c, arena.InitialPhase); err != nil {
		c.closing = true
		m.unregister(c)
		m.release(ctx, c)
		return nil, eris.Wrapf(ErrCompetitionNotReady, "arena %q: %v", arena.Name, err)
	}
	m.logger.WithFields(map[string]interface{}{
		"arena":       arena.Name,
		"competition": id,
		"map":         instance.Map.Name,
		"dynamic":     dynamic,
	}).Info("competition created")
	return c, nil
}

// GetOrCreate finds a competition userID can join with role, trying open competitions in
// order and then, for players of on-demand arenas, provisioning a dynamic one. The last
// failure reason is returned when nothing works out.
func (m *Manager) GetOrCreate(ctx context.Context, arenaName, userID string, role domain.PlayerRole, mapName string) (*Competition, domain.JoinResult) {
	arena, ok := m.arenas[arenaName]
	if !ok {
		return nil, domain.JoinFailure(domain.MsgArenaNotFound)
	}
	if m.env.roster.Has(userID) {
		return nil, domain.JoinFailure(domain.MsgArenaAlreadyJoined)
	}
	if mapName != "" {
		if _, ok := arena.Map(mapName); !ok {
			return nil, domain.JoinFailure(domain.MsgArenaNoMap)
		}
	}

	last := domain.JoinFailure(domain.MsgArenaNoOpenCompetition)
	for _, c := range m.OpenCompetitions(arenaName, mapName) {
		res := c.CanJoin(userID, role)
		if res.Success {
			return c, res
		}
		last = res
	}

	if role != domain.RolePlaying || !arena.OnDemand || len(arena.DynamicMaps()) == 0 {
		return nil, last
	}
	if mapName != "" {
		if def, _ := arena.Map(mapName); def.Type != domain.MapDynamic {
			return nil, last
		}
	}
	c, res := m.CreateDynamic(ctx, arenaName, mapName)
	if !res.Success {
		return nil, res
	}
	if res := c.CanJoin(userID, role); !res.Success {
		m.Remove(ctx, c)
		return nil, res
	}
	return c, domain.JoinSuccess
}

// Join finds or creates a competition and joins userID into it.
func (m *Manager) Join(ctx context.Context, arenaName, userID string, role domain.PlayerRole, mapName string) (*Competition, domain.JoinResult) {
	c, res := m.GetOrCreate(ctx, arenaName, userID, role, mapName)
	if !res.Success {
		return nil, res
	}
	if res := c.Join(userID, role, ""); !res.Success {
		return nil, res
	}
	return c, domain.JoinSuccess
}

// Leave removes userID from whatever competition holds them.
func (m *Manager) Leave(userID string, cause domain.LeaveCause) bool {
	c, ok := m.CompetitionOf(userID)
	if !ok {
		return false
	}
	return c.Leave(userID, cause)
}

// Remove tears a competition down. When the arena has a victory phase the game is first
// resolved as a draw and remaining players leave because the map went away; otherwise
// players are ejected for shutdown. Spectators are always ejected for shutdown.
func (m *Manager) Remove(ctx context.Context, c *Competition) {
	if c.closing {
		return
	}
	c.closing = true

	cause := domain.CauseShutdown
	if c.arena.HasVictoryPhase() && c.phases.CurrentType() != domain.PhaseVictory {
		c.Draw()
		cause = domain.CauseMapRemoved
	}
	for _, id := range c.Players() {
		c.Leave(id, cause)
	}
	for _, id := range c.Spectators() {
		c.Leave(id, domain.CauseShutdown)
	}
	c.phases.End(c, true)
	m.unregister(c)
	m.release(ctx, c)
	m.logger.WithFields(map[string]interface{}{
		"arena":       c.arena.Name,
		"competition": c.id,
	}).Info("competition removed")
}

// CompleteAll removes every competition. Used at shutdown.
func (m *Manager) CompleteAll(ctx context.Context) {
	snapshot := make([]*Competition, 0, len(m.competitions))
	for _, a := range m.Arenas() {
		snapshot = append(snapshot, m.Competitions(a.Name)...)
	}
	for _, c := range snapshot {
		m.Remove(ctx, c)
	}
}

// completed runs when a game's victory phase is over.
func (m *Manager) completed(c *Competition) {
	if c.closing {
		return
	}
	for _, id := range append(c.Players(), c.Spectators()...) {
		c.Leave(id, domain.CauseGame)
	}
	if c.dynamic {
		m.Remove(context.Background(), c)
		return
	}
	if err := c.reset(); err != nil {
		m.Remove(context.Background(), c)
	}
}

func (m *Manager) unregister(c *Competition) {
	delete(m.competitions, c.id)
	ids := m.byArena[c.arena.Name]
	for i, id := range ids {
		if id == c.id {
			m.byArena[c.arena.Name] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

// release frees the map instance. Only dynamic maps count against the cap.
func (m *Manager) release(ctx context.Context, c *Competition) {
	if c.dynamic {
		m.dynamic--
	}
	if m.provisioner == nil {
		return
	}
	if err := m.provisioner.Release(ctx, c.instance); err != nil {
		m.logger.WithField("competition", c.id).Warn("map release failed: %v", err)
	}
}
