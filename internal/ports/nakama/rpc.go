package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/rotisserie/eris"

	"battlearena/internal/app"
)

// debugErrors exposes wrapped error chains to clients. Set from the arena_debug_errors env key.
var debugErrors bool

// rpcResponse is the reply of every arena RPC. Expected failures come back with ok=false and the
// rendered message; anything else is a runtime error.
type rpcResponse struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
	MatchID   string `json:"match_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type rpcHandler func(ctx context.Context, userID, payload string) (app.Result, any, error)

type rpcRoute struct {
	handler rpcHandler
	// anonymous routes may be called server to server without a user session.
	anonymous bool
}

type payloadError struct {
	err error
}

func (e *payloadError) Error() string { return "invalid payload: " + e.err.Error() }
func (e *payloadError) Unwrap() error { return e.err }

type arenaRequest struct {
	Arena string `json:"arena"`
	Map   string `json:"map"`
	Limit int    `json:"limit"`
}

type duelRequest struct {
	Target string `json:"target"`
	Arena  string `json:"arena"`
}

type voiceRequest struct {
	Action string `json:"action"`
	Team   bool   `json:"team"`
}

func (p *Plugin) routes() map[string]rpcRoute {
	return map[string]rpcRoute{
		RpcArenaJoin:         {handler: p.rpcArenaJoin},
		RpcArenaSpectate:     {handler: p.rpcArenaSpectate},
		RpcArenaLeave:        {handler: p.rpcArenaLeave},
		RpcTournamentCreate:  {handler: p.rpcTournamentCreate, anonymous: true},
		RpcTournamentStart:   {handler: p.rpcTournamentStart, anonymous: true},
		RpcTournamentEnd:     {handler: p.rpcTournamentEnd, anonymous: true},
		RpcTournamentList:    {handler: p.rpcTournamentList, anonymous: true},
		RpcTournamentJoin:    {handler: p.rpcTournamentJoin},
		RpcTournamentLeave:   {handler: p.rpcTournamentLeave},
		RpcTournamentHistory: {handler: p.rpcTournamentHistory, anonymous: true},
		RpcDuelRequest:       {handler: p.rpcDuelRequest},
		RpcDuelAccept:        {handler: p.rpcDuelAccept},
		RpcDuelDeny:          {handler: p.rpcDuelDeny},
		RpcDuelCancel:        {handler: p.rpcDuelCancel},
		RpcArenaVoiceToken:   {handler: p.rpcVoiceToken},
	}
}

func (p *Plugin) registerRPCs(initializer runtime.Initializer) error {
	for id, route := range p.routes() {
		if err := initializer.RegisterRpc(id, p.rpc(id, route)); err != nil {
			return eris.Wrapf(err, "failed to register rpc %s", id)
		}
	}
	return nil
}

// rpc adapts a handler to Nakama's RPC signature.
func (p *Plugin) rpc(id string, route rpcRoute) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, _ *sql.DB, _ runtime.NakamaModule, payload string) (string, error) {
		userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
		if userID == "" && !route.anonymous {
			return "", runtime.NewError("user session required", codeUnauthenticated)
		}
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()

		res, data, err := route.handler(callCtx, userID, payload)
		if err != nil {
			var ue *app.UserError
			if errors.As(err, &ue) {
				return p.reply(rpcResponse{
					Message:   p.catalog.Render(ue.Msg),
					MessageID: ue.Msg.ID,
				})
			}
			return "", rpcError(logger.WithField("rpc", id), err)
		}
		out := rpcResponse{OK: true, MatchID: res.MatchID, Data: data}
		if res.Message.ID != "" {
			out.Message = p.catalog.Render(res.Message)
			out.MessageID = res.Message.ID
		}
		return p.reply(out)
	}
}

func (p *Plugin) reply(r rpcResponse) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", runtime.NewError("failed to encode response", codeInternal)
	}
	return string(b), nil
}

// rpcError logs err and maps it to a runtime error code.
func rpcError(logger runtime.Logger, err error) error {
	var pe *payloadError
	switch {
	case errors.As(err, &pe):
		return runtime.NewError(pe.Error(), codeInvalidArgument)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		logger.Warn("arena is busy: %v", err)
		return runtime.NewError("arena is busy, try again", codeUnavailable)
	}
	logger.Error(eris.ToString(err, true))
	if debugErrors {
		return runtime.NewError(eris.ToString(err, false), codeInternal)
	}
	return runtime.NewError("internal error", codeInternal)
}

func decodePayload(payload string, v any) error {
	if strings.TrimSpace(payload) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return &payloadError{err: err}
	}
	return nil
}

func requireField(name, value string) error {
	if value == "" {
		return &payloadError{err: eris.Errorf("%s is required", name)}
	}
	return nil
}

func (p *Plugin) arenaPayload(payload string) (arenaRequest, error) {
	var req arenaRequest
	if err := decodePayload(payload, &req); err != nil {
		return req, err
	}
	return req, requireField("arena", req.Arena)
}

func (p *Plugin) rpcArenaJoin(ctx context.Context, userID, payload string) (app.Result, any, error) {
	req, err := p.arenaPayload(payload)
	if err != nil {
		return app.Result{}, nil, err
	}
	res, err := p.service.Join(ctx, userID, req.Arena, req.Map)
	return res, nil, err
}

func (p *Plugin) rpcArenaSpectate(ctx context.Context, userID, payload string) (app.Result, any, error) {
	req, err := p.arenaPayload(payload)
	if err != nil {
		return app.Result{}, nil, err
	}
	res, err := p.service.Spectate(ctx, userID, req.Arena, req.Map)
	return res, nil, err
}

func (p *Plugin) rpcArenaLeave(ctx context.Context, userID, _ string) (app.Result, any, error) {
	res, err := p.service.Leave(ctx, userID)
	return res, nil, err
}

func (p *Plugin) rpcTournamentCreate(ctx context.Context, _, payload string) (app.Result, any, error) {
	req, err := p.arenaPayload(payload)
	if err != nil {
		return app.Result{}, nil, err
	}
	res, err := p.service.TournamentCreate(ctx, req.Arena)
	return res, nil, err
}

func (p *Plugin) rpcTournamentStart(ctx context.Context, _, payload string) (app.Result, any, error) {
	req, err := p.arenaPayload(payload)
	if err != nil {
		return app.Result{}, nil, err
	}
	res, err := p.service.TournamentStart(ctx, req.Arena)
	return res, nil, err
}

func (p *Plugin) rpcTournamentEnd(ctx context.Context, _, payload string) (app.Result, any, error) {
	req, err := p.arenaPayload(payload)
	if err != nil {
		return app.Result{}, nil, err
	}
	res, err := p.service.TournamentEnd(ctx, req.Arena)
	return res, nil, err
}

func (p *Plugin) rpcTournamentList(ctx context.Context, _, _ string) (app.Result, any, error) {
	list, err := p.service.TournamentList(ctx)
	return app.Result{}, list, err
}

func (p *Plugin) rpcTournamentJoin(ctx context.Context, userID, payload string) (app.Result, any, error) {
	req, err := p.arenaPayload(payload)
	if err != nil {
		return app.Result{}, nil, err
	}
	res, err := p.service.TournamentJoin(ctx, userID, req.Arena)
	return res, nil, err
}

func (p *Plugin) rpcTournamentLeave(ctx context.Context, userID, payload string) (app.Result, any, error) {
	req, err := p.arenaPayload(payload)
	if err != nil {
		return app.Result{}, nil, err
	}
	res, err := p.service.TournamentLeave(ctx, userID, req.Arena)
	return res, nil, err
}

func (p *Plugin) rpcTournamentHistory(ctx context.Context, _, payload string) (app.Result, any, error) {
	req, err := p.arenaPayload(payload)
	if err != nil {
		return app.Result{}, nil, err
	}
	records, err := p.service.TournamentHistory(ctx, req.Arena, req.Limit)
	return app.Result{}, records, err
}

func (p *Plugin) rpcDuelRequest(ctx context.Context, userID, payload string) (app.Result, any, error) {
	var req duelRequest
	if err := decodePayload(payload, &req); err != nil {
		return app.Result{}, nil, err
	}
	if err := requireField("target", req.Target); err != nil {
		return app.Result{}, nil, err
	}
	if err := requireField("arena", req.Arena); err != nil {
		return app.Result{}, nil, err
	}
	res, err := p.service.DuelRequest(ctx, userID, req.Target, req.Arena)
	return res, nil, err
}

func (p *Plugin) rpcDuelAccept(ctx context.Context, userID, _ string) (app.Result, any, error) {
	res, err := p.service.DuelAccept(ctx, userID)
	return res, nil, err
}

func (p *Plugin) rpcDuelDeny(ctx context.Context, userID, _ string) (app.Result, any, error) {
	res, err := p.service.DuelDeny(ctx, userID)
	return res, nil, err
}

func (p *Plugin) rpcDuelCancel(ctx context.Context, userID, _ string) (app.Result, any, error) {
	res, err := p.service.DuelCancel(ctx, userID)
	return res, nil, err
}

func (p *Plugin) rpcVoiceToken(ctx context.Context, userID, payload string) (app.Result, any, error) {
	req := voiceRequest{Action: app.VivoxTokenActionLogin}
	if err := decodePayload(payload, &req); err != nil {
		return app.Result{}, nil, err
	}
	switch req.Action {
	case app.VivoxTokenActionLogin, app.VivoxTokenActionJoin:
	default:
		return app.Result{}, nil, &payloadError{err: eris.Errorf("unknown action %q", req.Action)}
	}
	grant, err := p.service.VoiceToken(ctx, userID, req.Action, req.Team)
	if err != nil {
		return app.Result{}, nil, err
	}
	return app.Result{}, grant, nil
}
