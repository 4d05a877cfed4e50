package tournament

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"battlearena/internal/app/competition"
	"battlearena/internal/app/event"
	"battlearena/internal/domain"
	"battlearena/internal/message"
	"battlearena/internal/ports"
	"battlearena/internal/scheduler"
)

// State is the lifecycle state of a tournament.
type State string

const (
	StateWaiting    State = "waiting"
	StateStarting   State = "starting"
	StateInProgress State = "in_progress"
	StateFinished   State = "finished"
)

// Config holds tournament settings shared by every arena.
type Config struct {
	// AdvanceDelay is the pause between a finished round and the next one.
	AdvanceDelay time.Duration
	// WinCommands run once per winning player. %player% and %player_id% are substituted.
	WinCommands []string
	// QuietStart skips the tournament-started announcement to watchers.
	QuietStart bool
}

// Deps are the collaborators a tournament works with.
type Deps struct {
	Manager   *competition.Manager
	Scheduler scheduler.Scheduler
	Messenger ports.Messenger
	Directory ports.PlayerDirectory
	Commands  ports.CommandRunner
	Archive   ports.ResultArchive
	Logger    runtime.Logger
	Tracer    trace.Tracer
	Now       func() time.Time
}

// Tournament runs a single-elimination bracket on one arena.
type Tournament struct {
	id    string
	arena *domain.Arena
	cfg   Config
	deps  Deps

	state       State
	queue       []string
	watching    []string
	contestants []*Contestant
	pairs       []*ContestantPair
	winners     []*Contestant
	names       map[string]string
	advancing   bool
	round       int
	ended       bool
	startedAt   time.Time

	requiredPlayers   int
	maxContestantSize int
	minContestantSize int

	cancelAdvance func()
	unsubscribe   func()
	onFinish      func(*Tournament)
}

func newTournament(arena *domain.Arena, cfg Config, deps Deps, onFinish func(*Tournament)) *Tournament {
	t := &Tournament{
		id:       uuid.NewString(),
		arena:    arena,
		cfg:      cfg,
		deps:     deps,
		state:    StateWaiting,
		names:    make(map[string]string),
		onFinish: onFinish,
	}
	teams := arena.Teams
	if teams.IsNonTeamGame() {
		t.requiredPlayers = teams.MaxTeams
		t.maxContestantSize = 1
		t.minContestantSize = 1
	} else {
		t.requiredPlayers = teams.MaxTeams * teams.MinTeamSize
		t.maxContestantSize = teams.MaxTeamSize
		t.minContestantSize = teams.MinTeamSize
	}
	t.unsubscribe = deps.Manager.Bus().Subscribe(t.handle,
		event.KindVictory, event.KindLoss, event.KindDraw, event.KindLeave, event.KindPhaseComplete)
	return t
}

func (t *Tournament) ID() string { return t.id }
func (t *Tournament) Arena() *domain.Arena { return t.arena }
func (t *Tournament) State() State { return t.state }
func (t *Tournament) Round() int { return t.round }
func (t *Tournament) RequiredPlayers() int { return t.requiredPlayers }
func (t *Tournament) Pairs() []*ContestantPair { return append([]*ContestantPair(nil), t.pairs...) }
func (t *Tournament) Winners() []*Contestant { return append([]*Contestant(nil), t.winners...) }
func (t *Tournament) Contestants() []*Contestant { return append([]*Contestant(nil), t.contestants...) }
func (t *Tournament) Queue() []string { return append([]string(nil), t.queue...) }
func (t *Tournament) Watching() []string { return append([]string(nil), t.watching...) }

// Started reports whether the bracket has been formed.
func (t *Tournament) Started() bool {
	return t.state == StateStarting || t.state == StateInProgress
}

// InBracket reports whether userID plays for a contestant.
func (t *Tournament) InBracket(userID string) bool {
	return t.contestantOf(userID) != nil
}

// Join adds userID to the watchers and, before the start, to the queue.
func (t *Tournament) Join(userID string) bool {
	if t.state == StateFinished {
		return false
	}
	t.watching = addUnique(t.watching, userID)
	if t.state == StateWaiting {
		t.queue = addUnique(t.queue, userID)
	}
	return true
}

// Leave removes userID from the tournament. Once started, the player also leaves the game of
// their pair, their contestant shrinks and the round may be able to advance without them.
func (t *Tournament) Leave(userID string) bool {
	if t.state == StateFinished {
		return false
	}
	wasWatching := contains(t.watching, userID)
	t.watching = removeValue(t.watching, userID)
	if t.state == StateWaiting {
		queued := contains(t.queue, userID)
		t.queue = removeValue(t.queue, userID)
		return wasWatching || queued
	}
	c := t.contestantOf(userID)
	if c == nil {
		return wasWatching
	}
	t.eject(userID)
	if t.state == StateFinished {
		return true
	}
	c.Remove(userID)
	if c.Empty() {
		t.winners = removeContestant(t.winners, c)
		t.dropEmptyPairs()
		t.walkover(c)
	}
	t.checkAdvance()
	return true
}

// CanStart reports whether enough players are queued.
func (t *Tournament) CanStart() bool {
	return len(t.queue) >= t.requiredPlayers
}

// Start forms the contestants and plays the first round.
func (t *Tournament) Start(ctx context.Context) error {
	if t.state != StateWaiting {
		return newError(domain.MsgTournamentAlreadyStarted, "arena", t.arena.Name)
	}
	if !t.CanStart() {
		return newError(domain.MsgTournamentNotEnoughPlayers,
			"arena", t.arena.Name,
			"players", strconv.Itoa(len(t.queue)),
			"required", strconv.Itoa(t.requiredPlayers))
	}
	t.state = StateStarting
	players := t.queue
	t.queue = nil
	t.startedAt = t.now()
	t.resolveNames(ctx, players)

	for _, group := range CalculateContestants(players, t.maxContestantSize, t.minContestantSize, t.arena.Teams.MaxTeams) {
		t.contestants = append(t.contestants, NewContestant(t.contestantName(group), group))
	}
	if !t.cfg.QuietStart {
		t.broadcast(ctx, message.New(domain.MsgTournamentStarted,
			"arena", t.arena.Name,
			"contestants", strconv.Itoa(len(t.contestants))))
	}
	t.deps.Logger.WithFields(map[string]interface{}{
		"tournament":  t.id,
		"arena":       t.arena.Name,
		"players":     len(players),
		"contestants": len(t.contestants),
	}).Info("tournament started")
	return t.advance(ctx, t.Contestants())
}

// CanAdvance reports whether the round is over: every pair has a winner recorded and
// nobody of any pair is still inside a competition.
func (t *Tournament) CanAdvance() bool {
	if len(t.winners) < len(t.pairs) {
		return false
	}
	roster := t.deps.Manager.Roster()
	for _, p := range t.pairs {
		if !p.IsDone(roster) {
			return false
		}
	}
	return true
}

// OnAdvance moves to the next round with the given contestants, immediately or after the
// configured delay. A call while an advance is already pending is ignored.
func (t *Tournament) OnAdvance(contestants []*Contestant) {
	if t.advancing {
		t.deps.Logger.WithField("tournament", t.id).Warn("advance requested while already advancing, ignoring")
		return
	}
	if len(contestants) <= 1 {
		t.finish(first(contestants))
		return
	}
	if t.cfg.AdvanceDelay <= 0 {
		_ = t.advance(context.Background(), contestants)
		return
	}
	t.advancing = true
	next := append([]*Contestant(nil), contestants...)
	t.broadcast(context.Background(), message.New(domain.MsgTournamentAdvanceDelay,
		"seconds", strconv.Itoa(int(t.cfg.AdvanceDelay/time.Second))))
	t.cancelAdvance = t.deps.Scheduler.After(t.cfg.AdvanceDelay, func() {
		t.cancelAdvance = nil
		t.advancing = false
		if t.state == StateFinished {
			return
		}
		_ = t.advance(context.Background(), remaining(next))
	})
}

// advance plays the next round. The contestant count is checked again because players may
// have left while the advance was delayed.
func (t *Tournament) advance(ctx context.Context, contestants []*Contestant) error {
	t.advancing = true
	defer func() { t.advancing = false }()

	t.pairs = nil
	if len(contestants) <= 1 {
		t.finish(first(contestants))
		return nil
	}

	ctx, span := t.tracer().Start(ctx, "tournament.advance", trace.WithAttributes(
		attribute.String("arena", t.arena.Name),
		attribute.Int("round", t.round+1),
		attribute.Int("contestants", len(contestants)),
	))
	defer span.End()

	result := AdvanceRound(contestants)
	matches := 0
	for _, p := range result.Pairs {
		if !p.IsBye() {
			matches++
		}
	}
	comps, ok := t.allocate(ctx, matches)
	if !ok {
		err := newError(domain.MsgTournamentNotEnoughArenas, "arena", t.arena.Name)
		span.RecordError(err)
		t.broadcast(ctx, err.Msg)
		t.finish(nil)
		return err
	}

	t.round++
	if t.round == 1 {
		t.broadcast(ctx, message.New(domain.MsgTournamentFirstRound, "round", "1"))
	} else {
		t.broadcast(ctx, message.New(domain.MsgTournamentNextRound,
			"round", strconv.Itoa(t.round),
			"contestants", strconv.Itoa(len(contestants))))
	}

	t.winners = nil
	next := 0
	for _, p := range result.Pairs {
		if p.IsBye() {
			p.C1.Byes++
			t.winners = append(t.winners, p.C1)
			t.pairs = append(t.pairs, p)
			t.sendAll(ctx, p.C1.Members(), message.New(domain.MsgTournamentBye))
			continue
		}
		c := comps[next]
		next++
		p.CompetitionID = c.ID()
		t.pairs = append(t.pairs, p)
		t.seat(ctx, c, p)
	}
	t.state = StateInProgress
	return nil
}

// allocate takes idle competitions first and provisions dynamic ones round-robin over the
// arena's dynamic maps for the rest. On shortage the fresh ones are released again.
func (t *Tournament) allocate(ctx context.Context, n int) ([]*competition.Competition, bool) {
	m := t.deps.Manager
	comps := make([]*competition.Competition, 0, n)
	for _, c := range m.IdleCompetitions(t.arena.Name) {
		if len(comps) == n {
			return comps, true
		}
		comps = append(comps, c)
	}
	var fresh []*competition.Competition
	maps := t.arena.DynamicMaps()
	for i := 0; len(comps) < n; i++ {
		if len(maps) == 0 {
			break
		}
		c, res := m.CreateDynamicOn(ctx, t.arena, maps[i%len(maps)])
		if !res.Success {
			t.deps.Logger.WithFields(map[string]interface{}{
				"tournament": t.id,
				"reason":     res.Message,
			}).Warn("could not provision a competition for the round")
			break
		}
		fresh = append(fresh, c)
		comps = append(comps, c)
	}
	if len(comps) < n {
		for _, c := range fresh {
			m.Remove(ctx, c)
		}
		return nil, false
	}
	return comps, true
}

// seat joins both sides of a pair into c, on opposing teams for team games. A side keeps all
// of its members even when that exceeds the configured team size.
func (t *Tournament) seat(ctx context.Context, c *competition.Competition, p *ContestantPair) {
	teams := c.Teams().Teams()
	sides := []*Contestant{p.C1, p.C2}
	for i, side := range sides {
		team := ""
		if !t.arena.Teams.IsNonTeamGame() && i < len(teams) {
			team = teams[i].Name
		}
		for _, id := range side.Members() {
			if res := c.Seat(id, team); !res.Success {
				t.deps.Logger.WithFields(map[string]interface{}{
					"tournament":  t.id,
					"competition": c.ID(),
					"user":        id,
					"reason":      res.Message,
				}).Warn("could not seat tournament player")
				t.sendAll(ctx, []string{id}, message.New(domain.MsgTournamentNotSeated))
			}
		}
	}
}

// eject takes userID out of the game their pair is playing.
func (t *Tournament) eject(userID string) {
	c, ok := t.deps.Manager.CompetitionOf(userID)
	if !ok {
		return
	}
	for _, p := range t.pairs {
		if p.CompetitionID == c.ID() {
			c.Leave(userID, domain.CauseCommand)
			return
		}
	}
}

// OnVictory credits the contestants of victors with a round win.
func (t *Tournament) OnVictory(ctx context.Context, victors []string) {
	groups := t.contestantsOf(victors, "victor")
	if len(groups) > 1 {
		t.deps.Logger.WithField("tournament", t.id).Warn("%d contestants won the same game", len(groups))
	}
	for _, c := range groups {
		if containsContestant(t.winners, c) {
			continue
		}
		c.Wins++
		t.winners = append(t.winners, c)
	}
	t.sendAll(ctx, t.known(victors), message.New(domain.MsgTournamentRoundWon))
}

// OnLoss records a round loss for the contestants of losers.
func (t *Tournament) OnLoss(ctx context.Context, losers []string) {
	for _, c := range t.contestantsOf(losers, "loser") {
		c.Losses++
	}
	t.sendAll(ctx, t.known(losers), message.New(domain.MsgTournamentRoundLost))
}

// OnDraw lets every contestant of a drawn game advance.
func (t *Tournament) OnDraw(ctx context.Context, players []string) {
	for _, c := range t.contestantsOf(players, "drawn player") {
		if !containsContestant(t.winners, c) {
			t.winners = append(t.winners, c)
		}
	}
	t.sendAll(ctx, t.known(players), message.New(domain.MsgTournamentRoundDraw))
}

// End stops the tournament without a winner.
func (t *Tournament) End() {
	t.ended = true
	t.finish(nil)
}

func (t *Tournament) finish(winner *Contestant) {
	if t.state == StateFinished {
		return
	}
	ctx := context.Background()
	if t.cancelAdvance != nil {
		t.cancelAdvance()
		t.cancelAdvance = nil
	}
	t.state = StateFinished
	if t.onFinish != nil {
		t.onFinish(t)
	}

	var winners []string
	switch {
	case t.ended:
		t.broadcast(ctx, message.New(domain.MsgTournamentEnded, "arena", t.arena.Name))
	case winner == nil:
		t.broadcast(ctx, message.New(domain.MsgTournamentDraw, "arena", t.arena.Name))
	default:
		winners = winner.Members()
		t.broadcast(ctx, message.New(domain.MsgTournamentWinner,
			"arena", t.arena.Name,
			"winner", winner.Name))
		t.runWinCommands(ctx, winners)
	}
	t.archive(ctx, winners)

	t.deps.Logger.WithFields(map[string]interface{}{
		"tournament": t.id,
		"arena":      t.arena.Name,
		"rounds":     t.round,
		"winners":    strings.Join(winners, ","),
	}).Info("tournament finished")

	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
	t.pairs = nil
	t.winners = nil
	t.watching = nil
	t.queue = nil
	t.advancing = false
}

func (t *Tournament) runWinCommands(ctx context.Context, winners []string) {
	if t.deps.Commands == nil {
		return
	}
	for _, id := range winners {
		for _, tpl := range t.cfg.WinCommands {
			cmd := strings.NewReplacer("%player%", t.name(id), "%player_id%", id).Replace(tpl)
			if err := t.deps.Commands.Run(ctx, cmd); err != nil {
				t.deps.Logger.WithFields(map[string]interface{}{
					"tournament": t.id,
					"command":    cmd,
				}).Warn("win command failed: %v", err)
			}
		}
	}
}

func (t *Tournament) archive(ctx context.Context, winners []string) {
	if t.deps.Archive == nil || t.startedAt.IsZero() {
		return
	}
	record := ports.TournamentRecord{
		ID:         t.id,
		Arena:      t.arena.Name,
		Winners:    winners,
		Rounds:     t.round,
		StartedAt:  t.startedAt,
		FinishedAt: t.now(),
		Ended:      t.ended,
	}
	for _, c := range t.contestants {
		record.Contestants = append(record.Contestants, ports.ContestantRecord{
			Name:    c.Name,
			Members: c.Members(),
			Wins:    c.Wins,
			Losses:  c.Losses,
			Byes:    c.Byes,
		})
	}
	if err := t.deps.Archive.Save(ctx, record); err != nil {
		t.deps.Logger.WithField("tournament", t.id).Warn("archive failed: %v", err)
	}
}

// handle reacts to competition events of this tournament's arena.
func (t *Tournament) handle(e event.Event) {
	if e.Arena != t.arena.Name || !t.Started() {
		return
	}
	ctx := context.Background()
	switch e.Kind {
	case event.KindVictory:
		t.OnVictory(ctx, e.Players)
	case event.KindLoss:
		t.OnLoss(ctx, e.Players)
	case event.KindDraw:
		t.OnDraw(ctx, e.Players)
	case event.KindLeave:
		if e.Cause == domain.CauseDisconnect {
			for _, id := range e.Players {
				t.Leave(id)
			}
			return
		}
	}
	t.checkAdvance()
}

func (t *Tournament) checkAdvance() {
	if t.state != StateInProgress || t.advancing {
		return
	}
	if t.CanAdvance() {
		t.OnAdvance(t.Winners())
	}
}

// walkover hands the round to the opponent of an emptied contestant when their game has not
// started yet, and frees the opponent's players so the pair can finish.
func (t *Tournament) walkover(gone *Contestant) {
	if t.state != StateInProgress {
		return
	}
	for _, p := range t.pairs {
		if !p.Has(gone) || p.IsBye() {
			continue
		}
		opp := p.Opponent(gone)
		if opp == nil || opp.Empty() || containsContestant(t.winners, opp) {
			return
		}
		c, ok := t.deps.Manager.Competition(p.CompetitionID)
		if !ok {
			return
		}
		if phase := c.Phases().CurrentType(); phase != domain.PhaseWaiting && phase != domain.PhaseCountdown {
			return
		}
		opp.Wins++
		t.winners = append(t.winners, opp)
		t.sendAll(context.Background(), opp.Members(), message.New(domain.MsgTournamentRoundWon))
		for _, id := range opp.Members() {
			c.Leave(id, domain.CausePlugin)
		}
		return
	}
}

func (t *Tournament) dropEmptyPairs() {
	kept := t.pairs[:0]
	for _, p := range t.pairs {
		if !p.Empty() {
			kept = append(kept, p)
		}
	}
	t.pairs = kept
}

func (t *Tournament) contestantOf(userID string) *Contestant {
	for _, c := range t.contestants {
		if c.Has(userID) {
			return c
		}
	}
	return nil
}

// contestantsOf maps players to their distinct contestants, warning about strangers.
func (t *Tournament) contestantsOf(players []string, role string) []*Contestant {
	var out []*Contestant
	for _, id := range players {
		c := t.contestantOf(id)
		if c == nil {
			t.deps.Logger.WithFields(map[string]interface{}{
				"tournament": t.id,
				"user":       id,
			}).Warn("%s is not part of the running tournament", role)
			continue
		}
		if !containsContestant(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func (t *Tournament) known(players []string) []string {
	var out []string
	for _, id := range players {
		if t.contestantOf(id) != nil {
			out = append(out, id)
		}
	}
	return out
}

func (t *Tournament) resolveNames(ctx context.Context, players []string) {
	if t.deps.Directory == nil {
		return
	}
	names, err := t.deps.Directory.DisplayNames(ctx, players)
	if err != nil {
		t.deps.Logger.WithField("tournament", t.id).Warn("display name lookup failed: %v", err)
		return
	}
	for id, name := range names {
		t.names[id] = name
	}
}

func (t *Tournament) name(userID string) string {
	if n, ok := t.names[userID]; ok && n != "" {
		return n
	}
	return userID
}

func (t *Tournament) contestantName(members []string) string {
	names := make([]string, 0, len(members))
	for _, id := range members {
		names = append(names, t.name(id))
	}
	return strings.Join(names, " & ")
}

func (t *Tournament) broadcast(ctx context.Context, m message.Message) {
	t.sendAll(ctx, t.watching, m)
}

func (t *Tournament) sendAll(ctx context.Context, users []string, m message.Message) {
	if t.deps.Messenger == nil {
		return
	}
	for _, id := range users {
		if err := t.deps.Messenger.Send(ctx, id, m); err != nil {
			t.deps.Logger.WithField("user", id).Warn("message %s not delivered: %v", m.ID, err)
		}
	}
}

func (t *Tournament) tracer() trace.Tracer {
	if t.deps.Tracer != nil {
		return t.deps.Tracer
	}
	return otel.Tracer("battlearena/tournament")
}

func (t *Tournament) now() time.Time {
	if t.deps.Now != nil {
		return t.deps.Now()
	}
	return time.Now()
}

func first(cs []*Contestant) *Contestant {
	if len(cs) == 0 {
		return nil
	}
	return cs[0]
}

func remaining(cs []*Contestant) []*Contestant {
	var out []*Contestant
	for _, c := range cs {
		if !c.Empty() {
			out = append(out, c)
		}
	}
	return out
}

func containsContestant(cs []*Contestant, c *Contestant) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

func removeContestant(cs []*Contestant, c *Contestant) []*Contestant {
	out := cs[:0]
	for _, x := range cs {
		if x != c {
			out = append(out, x)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func addUnique(ids []string, id string) []string {
	if contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func removeValue(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
