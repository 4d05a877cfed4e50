package app

import (
	"context"
	"errors"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/rotisserie/eris"

	"battlearena/internal/app/competition"
	"battlearena/internal/app/duel"
	"battlearena/internal/app/tournament"
	"battlearena/internal/domain"
	"battlearena/internal/message"
	"battlearena/internal/ports"
)

// UserError is an expected failure reported to the player who issued a command.
type UserError struct {
	Msg message.Message
}

func (e *UserError) Error() string {
	return e.Msg.ID
}

func userError(id string, kv ...string) *UserError {
	return &UserError{Msg: message.New(id, kv...)}
}

// Executor runs a function on the control loop and waits for it.
type Executor interface {
	Call(ctx context.Context, fn func()) error
}

// Result is the reply to a successful command.
type Result struct {
	Message message.Message
	MatchID string
}

// TournamentSummary describes an active tournament.
type TournamentSummary struct {
	ID          string `json:"id"`
	Arena       string `json:"arena"`
	State       string `json:"state"`
	Round       int    `json:"round"`
	Queued      int    `json:"queued"`
	Required    int    `json:"required"`
	Contestants int    `json:"contestants"`
}

// VoiceGrant is a signed Vivox token and the channel it was issued for.
type VoiceGrant struct {
	Token   string `json:"token"`
	Channel string `json:"channel,omitempty"`
}

// Deps are the components the command boundary drives.
type Deps struct {
	Loop        Executor
	Manager     *competition.Manager
	Tournaments *tournament.Registry
	Duels       *duel.Service
	Archive     ports.ResultArchive
	Directory   ports.PlayerDirectory
	Voice       *VivoxService
	Logger      runtime.Logger
}

// Service is the command boundary: every command runs on the control loop and expected
// failures come back as *UserError.
type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	return &Service{deps: deps}
}

// exec runs fn on the loop and normalizes the user-facing errors of the layers below.
func (s *Service) exec(ctx context.Context, fn func() (Result, error)) (Result, error) {
	var (
		res Result
		err error
	)
	if callErr := s.deps.Loop.Call(ctx, func() { res, err = fn() }); callErr != nil {
		return Result{}, eris.Wrap(callErr, "control loop did not run the command")
	}
	err = translate(err)
	var ue *UserError
	if err != nil && !errors.As(err, &ue) {
		s.deps.Logger.Error("command failed: %s", eris.ToString(err, true))
	}
	return res, err
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var te *tournament.Error
	if errors.As(err, &te) {
		return &UserError{Msg: te.Msg}
	}
	var de *duel.Error
	if errors.As(err, &de) {
		return &UserError{Msg: de.Msg}
	}
	return err
}

// Join places userID into a competition of arena as a player. mapName may be empty.
func (s *Service) Join(ctx context.Context, userID, arena, mapName string) (Result, error) {
	return s.join(ctx, userID, arena, mapName, domain.RolePlaying, domain.MsgArenaJoined)
}

// Spectate places userID into a competition of arena as a spectator.
func (s *Service) Spectate(ctx context.Context, userID, arena, mapName string) (Result, error) {
	return s.join(ctx, userID, arena, mapName, domain.RoleSpectating, domain.MsgArenaSpectating)
}

func (s *Service) join(ctx context.Context, userID, arena, mapName string, role domain.PlayerRole, okID string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		c, res := s.deps.Manager.Join(ctx, arena, userID, role, mapName)
		if !res.Success {
			return Result{}, userError(res.Message, "arena", arena, "map", mapName)
		}
		return Result{
			Message: message.New(okID, "arena", arena),
			MatchID: c.Instance().MatchID,
		}, nil
	})
}

// Leave removes userID from their competition.
func (s *Service) Leave(ctx context.Context, userID string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		c, ok := s.deps.Manager.CompetitionOf(userID)
		if !ok {
			return Result{}, userError(domain.MsgArenaNotInCompetition)
		}
		arena := c.Arena().Name
		s.deps.Manager.Leave(userID, domain.CauseCommand)
		return Result{Message: message.New(domain.MsgArenaLeft, "arena", arena)}, nil
	})
}

func (s *Service) TournamentCreate(ctx context.Context, arena string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		if _, err := s.deps.Tournaments.Create(arena); err != nil {
			return Result{}, err
		}
		return Result{Message: message.New(domain.MsgTournamentCreated, "arena", arena)}, nil
	})
}

func (s *Service) TournamentStart(ctx context.Context, arena string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		if err := s.deps.Tournaments.Start(ctx, arena); err != nil {
			return Result{}, err
		}
		return Result{Message: message.New(domain.MsgTournamentStarted, "arena", arena)}, nil
	})
}

func (s *Service) TournamentEnd(ctx context.Context, arena string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		if err := s.deps.Tournaments.End(arena); err != nil {
			return Result{}, err
		}
		return Result{Message: message.New(domain.MsgTournamentEnded, "arena", arena)}, nil
	})
}

// TournamentJoin queues userID for the arena's tournament, or makes them a watcher once it runs.
func (s *Service) TournamentJoin(ctx context.Context, userID, arena string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		t, ok := s.deps.Tournaments.Get(arena)
		if !ok || !t.Join(userID) {
			return Result{}, userError(domain.MsgTournamentNotFound, "arena", arena)
		}
		return Result{Message: message.New(domain.MsgTournamentJoined, "arena", arena)}, nil
	})
}

func (s *Service) TournamentLeave(ctx context.Context, userID, arena string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		t, ok := s.deps.Tournaments.Get(arena)
		if !ok {
			return Result{}, userError(domain.MsgTournamentNotFound, "arena", arena)
		}
		if !t.Leave(userID) {
			return Result{}, userError(domain.MsgTournamentNotJoined, "arena", arena)
		}
		return Result{Message: message.New(domain.MsgTournamentLeft, "arena", arena)}, nil
	})
}

func (s *Service) TournamentList(ctx context.Context) ([]TournamentSummary, error) {
	var out []TournamentSummary
	_, err := s.exec(ctx, func() (Result, error) {
		for _, t := range s.deps.Tournaments.List() {
			out = append(out, TournamentSummary{
				ID:          t.ID(),
				Arena:       t.Arena().Name,
				State:       string(t.State()),
				Round:       t.Round(),
				Queued:      len(t.Queue()),
				Required:    t.RequiredPlayers(),
				Contestants: len(t.Contestants()),
			})
		}
		return Result{}, nil
	})
	return out, err
}

// TournamentHistory reads archived tournaments of arena, newest first. The archive is safe for
// concurrent use so it is read off the loop.
func (s *Service) TournamentHistory(ctx context.Context, arena string, limit int) ([]ports.TournamentRecord, error) {
	if limit <= 0 || limit > MaxHistoryRecords {
		limit = MaxHistoryRecords
	}
	if s.deps.Archive == nil {
		return nil, nil
	}
	records, err := s.deps.Archive.Recent(ctx, arena, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read history of %s", arena)
	}
	return records, nil
}

func (s *Service) DuelRequest(ctx context.Context, requester, target, arena string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		if _, err := s.deps.Duels.Request(ctx, requester, target, arena); err != nil {
			return Result{}, err
		}
		return Result{Message: message.New(domain.MsgDuelRequested, "player", s.name(ctx, target))}, nil
	})
}

// DuelAccept starts the duel waiting on target. The result carries the match to join.
func (s *Service) DuelAccept(ctx context.Context, target string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		c, err := s.deps.Duels.Accept(ctx, target)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Message: message.New(domain.MsgArenaJoined, "arena", c.Arena().Name),
			MatchID: c.Instance().MatchID,
		}, nil
	})
}

func (s *Service) DuelDeny(ctx context.Context, target string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		req, err := s.deps.Duels.Deny(ctx, target)
		if err != nil {
			return Result{}, err
		}
		return Result{Message: message.New(domain.MsgDuelClosed, "player", s.name(ctx, req.Requester))}, nil
	})
}

func (s *Service) DuelCancel(ctx context.Context, requester string) (Result, error) {
	return s.exec(ctx, func() (Result, error) {
		req, err := s.deps.Duels.Cancel(ctx, requester)
		if err != nil {
			return Result{}, err
		}
		return Result{Message: message.New(domain.MsgDuelClosed, "player", s.name(ctx, req.Target))}, nil
	})
}

// VoiceToken signs a Vivox token. Join tokens are scoped to the caller's competition, and to
// their team when team is true and they have one.
func (s *Service) VoiceToken(ctx context.Context, userID, action string, team bool) (VoiceGrant, error) {
	if !s.deps.Voice.Enabled() {
		return VoiceGrant{}, userError(domain.MsgVoiceUnavailable)
	}
	var channel string
	if action == VivoxTokenActionJoin {
		_, err := s.exec(ctx, func() (Result, error) {
			c, ok := s.deps.Manager.CompetitionOf(userID)
			if !ok {
				return Result{}, userError(domain.MsgArenaNotInCompetition)
			}
			name := ""
			if team {
				name = c.Teams().TeamOf(userID)
			}
			channel = CompetitionChannel(c.ID(), name)
			return Result{}, nil
		})
		if err != nil {
			return VoiceGrant{}, err
		}
	}
	token, err := s.deps.Voice.GenerateToken(userID, action, channel)
	if err != nil {
		return VoiceGrant{}, err
	}
	return VoiceGrant{Token: token, Channel: channel}, nil
}

// Disconnect drops every trace of a player whose session ended: their competition seat, their
// place in waiting tournament queues and their pending duel requests.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	_, err := s.exec(ctx, func() (Result, error) {
		s.deps.Manager.Leave(userID, domain.CauseDisconnect)
		for _, t := range s.deps.Tournaments.List() {
			if !t.Started() {
				t.Leave(userID)
			}
		}
		if req, ok := s.deps.Duels.Pending(userID); ok {
			_, _ = s.deps.Duels.Deny(ctx, req.Target)
		}
		_, _ = s.deps.Duels.Cancel(ctx, userID)
		return Result{}, nil
	})
	return err
}

// Shutdown ends every tournament and removes every competition.
func (s *Service) Shutdown(ctx context.Context) error {
	_, err := s.exec(ctx, func() (Result, error) {
		s.deps.Tournaments.EndAll()
		s.deps.Manager.CompleteAll(ctx)
		return Result{}, nil
	})
	return err
}

func (s *Service) name(ctx context.Context, userID string) string {
	if s.deps.Directory == nil {
		return userID
	}
	names, err := s.deps.Directory.DisplayNames(ctx, []string{userID})
	if err != nil || names[userID] == "" {
		return userID
	}
	return names[userID]
}
