// Package duel handles one-on-one challenges between players outside of any competition.
package duel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"

	"battlearena/internal/app/competition"
	"battlearena/internal/app/event"
	"battlearena/internal/domain"
	"battlearena/internal/message"
	"battlearena/internal/ports"
	"battlearena/internal/scheduler"
)

// Error is an expected, user-facing duel failure.
type Error struct {
	Msg message.Message
}

func (e *Error) Error() string {
	return e.Msg.ID
}

func fail(id string, kv ...string) *Error {
	return &Error{Msg: message.New(id, kv...)}
}

// Request is a pending challenge from Requester to Target.
type Request struct {
	ID        string
	Requester string
	Target    string
	Arena     string
	CreatedAt time.Time
	cancel    func()
}

// Config holds duel settings.
type Config struct {
	RequestTimeout time.Duration
}

// Deps are the collaborators of the duel service.
type Deps struct {
	Manager   *competition.Manager
	Scheduler scheduler.Scheduler
	Messenger ports.Messenger
	Directory ports.PlayerDirectory
	Logger    runtime.Logger
}

// Service tracks pending requests and the competitions reserved for accepted duels.
type Service struct {
	cfg      Config
	deps     Deps
	requests map[string]*Request
	reserved map[string][2]string
}

// New creates the service and wires its reservation hook and leave listener.
func New(cfg Config, deps Deps) *Service {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Service{
		cfg:      cfg,
		deps:     deps,
		requests: make(map[string]*Request),
		reserved: make(map[string][2]string),
	}
	deps.Manager.AddJoinHook(s.joinHook)
	deps.Manager.Bus().Subscribe(s.onLeave, event.KindLeave)
	return s
}

// Pending returns the request waiting on target.
func (s *Service) Pending(target string) (*Request, bool) {
	r, ok := s.requests[target]
	return r, ok
}

// Reserved reports whether a competition is held for a duel.
func (s *Service) Reserved(competitionID string) bool {
	_, ok := s.reserved[competitionID]
	return ok
}

// Request challenges target to a duel in arena.
func (s *Service) Request(ctx context.Context, requester, target, arena string) (*Request, error) {
	if target == "" {
		return nil, fail(domain.MsgDuelNoTarget, "player", target)
	}
	if target == requester {
		return nil, fail(domain.MsgDuelSelf)
	}
	if _, ok := s.deps.Manager.Arena(arena); !ok {
		return nil, fail(domain.MsgArenaNotFound, "arena", arena)
	}
	names := s.names(ctx, requester, target)
	for _, id := range []string{requester, target} {
		if s.deps.Manager.Roster().Has(id) {
			return nil, fail(domain.MsgDuelInCompetition, "player", names[id])
		}
	}
	if _, ok := s.requests[target]; ok {
		return nil, fail(domain.MsgDuelAlreadyRequested, "player", names[target])
	}
	if s.outgoing(requester) != nil {
		return nil, fail(domain.MsgDuelAlreadyRequested, "player", names[requester])
	}

	req := &Request{
		ID:        "duel-" + uuid.NewString(),
		Requester: requester,
		Target:    target,
		Arena:     arena,
		CreatedAt: time.Now(),
	}
	req.cancel = s.deps.Scheduler.After(s.cfg.RequestTimeout, func() { s.expire(req) })
	s.requests[target] = req
	s.send(ctx, target, message.New(domain.MsgDuelReceived, "player", names[requester], "arena", arena))
	return req, nil
}

// Accept starts the duel waiting on target and returns the competition both players joined.
func (s *Service) Accept(ctx context.Context, target string) (*competition.Competition, error) {
	req, ok := s.requests[target]
	if !ok {
		return nil, fail(domain.MsgDuelNoRequest)
	}
	names := s.names(ctx, req.Requester, req.Target)
	for _, id := range []string{req.Requester, req.Target} {
		if s.deps.Manager.Roster().Has(id) {
			s.drop(req)
			return nil, fail(domain.MsgDuelInCompetition, "player", names[id])
		}
	}

	c, err := s.venue(ctx, req.Arena)
	if err != nil {
		return nil, err
	}
	s.reserved[c.ID()] = [2]string{req.Requester, req.Target}

	teams := c.Teams().Teams()
	for i, id := range []string{req.Requester, req.Target} {
		team := ""
		if c.Arena().Teams.Selection != domain.TeamSelectionNone && i < len(teams) {
			team = teams[i].Name
		}
		if res := c.Join(id, domain.RolePlaying, team); !res.Success {
			for _, joined := range []string{req.Requester, req.Target} {
				c.Leave(joined, domain.CausePlugin)
			}
			delete(s.reserved, c.ID())
			return nil, fail(res.Message, "arena", req.Arena)
		}
	}
	s.drop(req)
	s.send(ctx, req.Requester, message.New(domain.MsgDuelAccepted, "player", names[req.Target]))
	return c, nil
}

// Deny rejects the request waiting on target.
func (s *Service) Deny(ctx context.Context, target string) (*Request, error) {
	req, ok := s.requests[target]
	if !ok {
		return nil, fail(domain.MsgDuelNoRequest)
	}
	s.drop(req)
	names := s.names(ctx, target)
	s.send(ctx, req.Requester, message.New(domain.MsgDuelDenied, "player", names[target]))
	return req, nil
}

// Cancel withdraws the request made by requester.
func (s *Service) Cancel(ctx context.Context, requester string) (*Request, error) {
	req := s.outgoing(requester)
	if req == nil {
		return nil, fail(domain.MsgDuelNoRequest)
	}
	s.drop(req)
	names := s.names(ctx, requester)
	s.send(ctx, req.Target, message.New(domain.MsgDuelCancelled, "player", names[requester]))
	return req, nil
}

// venue picks an idle, unreserved competition of the arena or provisions one.
func (s *Service) venue(ctx context.Context, arena string) (*competition.Competition, error) {
	for _, c := range s.deps.Manager.IdleCompetitions(arena) {
		if !s.Reserved(c.ID()) {
			return c, nil
		}
	}
	c, res := s.deps.Manager.CreateDynamic(ctx, arena, "")
	if !res.Success {
		return nil, fail(res.Message, "arena", arena)
	}
	return c, nil
}

func (s *Service) expire(req *Request) {
	if s.requests[req.Target] != req {
		return
	}
	delete(s.requests, req.Target)
	ctx := context.Background()
	names := s.names(ctx, req.Requester, req.Target)
	s.send(ctx, req.Requester, message.New(domain.MsgDuelExpired, "player", names[req.Target]))
	s.send(ctx, req.Target, message.New(domain.MsgDuelExpired, "player", names[req.Requester]))
}

func (s *Service) drop(req *Request) {
	if req.cancel != nil {
		req.cancel()
	}
	if s.requests[req.Target] == req {
		delete(s.requests, req.Target)
	}
}

func (s *Service) outgoing(requester string) *Request {
	for _, r := range s.requests {
		if r.Requester == requester {
			return r
		}
	}
	return nil
}

func (s *Service) joinHook(c *competition.Competition, userID string, role domain.PlayerRole) domain.JoinResult {
	duelists, ok := s.reserved[c.ID()]
	if !ok || role != domain.RolePlaying || userID == duelists[0] || userID == duelists[1] {
		return domain.JoinSuccess
	}
	return domain.JoinFailure(domain.MsgDuelReserved)
}

// onLeave frees a reservation once its competition has emptied.
func (s *Service) onLeave(e event.Event) {
	if _, ok := s.reserved[e.CompetitionID]; !ok {
		return
	}
	c, ok := s.deps.Manager.Competition(e.CompetitionID)
	if !ok || c.Size() == 0 {
		delete(s.reserved, e.CompetitionID)
	}
}

func (s *Service) names(ctx context.Context, ids ...string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = id
	}
	if s.deps.Directory == nil {
		return out
	}
	resolved, err := s.deps.Directory.DisplayNames(ctx, ids)
	if err != nil {
		s.deps.Logger.Warn("display name lookup failed: %v", err)
		return out
	}
	for id, name := range resolved {
		out[id] = name
	}
	return out
}

func (s *Service) send(ctx context.Context, userID string, m message.Message) {
	if s.deps.Messenger == nil {
		return
	}
	if err := s.deps.Messenger.Send(ctx, userID, m); err != nil {
		s.deps.Logger.WithField("user", userID).Warn("message %s not delivered: %v", m.ID, err)
	}
}
