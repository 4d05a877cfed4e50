package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battlearena/internal/domain"
)

type rpcReply struct {
	OK        bool            `json:"ok"`
	Message   string          `json:"message"`
	MessageID string          `json:"message_id"`
	MatchID   string          `json:"match_id"`
	Data      json.RawMessage `json:"data"`
}

func callRPC(t *testing.T, p *Plugin, ctx context.Context, id, payload string) (rpcReply, error) {
	t.Helper()
	route, ok := p.routes()[id]
	require.True(t, ok, "rpc %s is not routed", id)
	out, err := p.rpc(id, route)(ctx, noopLogger{}, nil, nil, payload)
	if err != nil {
		return rpcReply{}, err
	}
	var reply rpcReply
	require.NoError(t, json.Unmarshal([]byte(out), &reply))
	return reply, nil
}

func mustRPC(t *testing.T, p *Plugin, ctx context.Context, id, payload string) rpcReply {
	t.Helper()
	reply, err := callRPC(t, p, ctx, id, payload)
	require.NoError(t, err)
	return reply
}

func errorCode(t *testing.T, err error) int {
	t.Helper()
	var rerr *runtime.Error
	require.True(t, errors.As(err, &rerr), "expected runtime error, got %v", err)
	return rerr.Code
}

func TestRegisterInstallsEveryRPC(t *testing.T) {
	p, _ := newTestPlugin(t, nil)
	ri := &recordingInitializer{}

	require.NoError(t, p.Register(ri))

	assert.Equal(t, []string{MatchNameCompetition}, ri.matches)
	assert.True(t, ri.sessionEnd)
	assert.True(t, ri.shutdownSet)
	for _, id := range []string{
		RpcArenaJoin, RpcArenaSpectate, RpcArenaLeave,
		RpcTournamentCreate, RpcTournamentStart, RpcTournamentEnd, RpcTournamentList,
		RpcTournamentJoin, RpcTournamentLeave, RpcTournamentHistory,
		RpcDuelRequest, RpcDuelAccept, RpcDuelDeny, RpcDuelCancel,
		RpcArenaVoiceToken,
	} {
		assert.Contains(t, ri.rpcs, id)
	}
	assert.Len(t, ri.rpcs, 15)
}

func TestRpcArenaJoinAndLeave(t *testing.T) {
	p, nk := newTestPlugin(t, nil)

	reply := mustRPC(t, p, userCtx("alice"), RpcArenaJoin, `{"arena":"duel"}`)
	assert.True(t, reply.OK)
	assert.Equal(t, domain.MsgArenaJoined, reply.MessageID)
	assert.Equal(t, "match-1", reply.MatchID)
	assert.NotEmpty(t, reply.Message)

	created := nk.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "duel", created[0]["arena"])
	assert.Equal(t, true, created[0]["dynamic"])
	assert.NotEmpty(t, created[0]["competition_id"])

	reply = mustRPC(t, p, userCtx("alice"), RpcArenaLeave, "")
	assert.True(t, reply.OK)
	assert.Equal(t, domain.MsgArenaLeft, reply.MessageID)

	reply = mustRPC(t, p, userCtx("alice"), RpcArenaLeave, "")
	assert.False(t, reply.OK)
	assert.Equal(t, domain.MsgArenaNotInCompetition, reply.MessageID)
}

func TestRpcReportsUserErrorsAsReplies(t *testing.T) {
	p, _ := newTestPlugin(t, nil)

	reply := mustRPC(t, p, userCtx("alice"), RpcArenaJoin, `{"arena":"nowhere"}`)
	assert.False(t, reply.OK)
	assert.Equal(t, domain.MsgArenaNotFound, reply.MessageID)
	assert.Contains(t, reply.Message, "nowhere")
	assert.Empty(t, reply.MatchID)
}

func TestRpcRejectsBadCalls(t *testing.T) {
	p, _ := newTestPlugin(t, nil)

	tests := []struct {
		name    string
		ctx     context.Context
		id      string
		payload string
		code    int
	}{
		{"no session", context.Background(), RpcArenaJoin, `{"arena":"duel"}`, codeUnauthenticated},
		{"malformed json", userCtx("alice"), RpcArenaJoin, `{"arena":`, codeInvalidArgument},
		{"missing arena", userCtx("alice"), RpcArenaSpectate, `{}`, codeInvalidArgument},
		{"missing duel target", userCtx("alice"), RpcDuelRequest, `{"arena":"duel"}`, codeInvalidArgument},
		{"unknown voice action", userCtx("alice"), RpcArenaVoiceToken, `{"action":"mute"}`, codeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callRPC(t, p, tt.ctx, tt.id, tt.payload)
			require.Error(t, err)
			assert.Equal(t, tt.code, errorCode(t, err))
		})
	}
}

func TestRpcTournamentLifecycle(t *testing.T) {
	p, _ := newTestPlugin(t, nil)
	admin := context.Background()

	reply := mustRPC(t, p, admin, RpcTournamentCreate, `{"arena":"duel"}`)
	require.True(t, reply.OK, reply.Message)
	assert.Equal(t, domain.MsgTournamentCreated, reply.MessageID)

	reply = mustRPC(t, p, userCtx("alice"), RpcTournamentJoin, `{"arena":"duel"}`)
	assert.True(t, reply.OK)
	reply = mustRPC(t, p, userCtx("bob"), RpcTournamentJoin, `{"arena":"duel"}`)
	assert.True(t, reply.OK)

	reply = mustRPC(t, p, admin, RpcTournamentList, "")
	var list []map[string]any
	require.NoError(t, json.Unmarshal(reply.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "duel", list[0]["arena"])
	assert.EqualValues(t, 2, list[0]["queued"])

	reply = mustRPC(t, p, userCtx("bob"), RpcTournamentLeave, `{"arena":"duel"}`)
	assert.True(t, reply.OK)
	reply = mustRPC(t, p, userCtx("bob"), RpcTournamentLeave, `{"arena":"duel"}`)
	assert.False(t, reply.OK)
	assert.Equal(t, domain.MsgTournamentNotJoined, reply.MessageID)

	reply = mustRPC(t, p, admin, RpcTournamentStart, `{"arena":"duel"}`)
	assert.False(t, reply.OK)
	assert.Equal(t, domain.MsgTournamentNotEnoughPlayers, reply.MessageID)

	reply = mustRPC(t, p, admin, RpcTournamentEnd, `{"arena":"duel"}`)
	assert.True(t, reply.OK)
	assert.Equal(t, domain.MsgTournamentEnded, reply.MessageID)

	reply = mustRPC(t, p, admin, RpcTournamentList, "")
	assert.Empty(t, reply.Data)
}

func TestRpcTournamentHistoryEmpty(t *testing.T) {
	p, _ := newTestPlugin(t, nil)

	reply := mustRPC(t, p, context.Background(), RpcTournamentHistory, `{"arena":"duel","limit":5}`)
	assert.True(t, reply.OK)
	assert.Empty(t, reply.Data)
}

func TestRpcDuelFlow(t *testing.T) {
	p, nk := newTestPlugin(t, nil)

	reply := mustRPC(t, p, userCtx("alice"), RpcDuelRequest, `{"target":"bob","arena":"duel"}`)
	require.True(t, reply.OK, reply.Message)
	assert.Equal(t, domain.MsgDuelRequested, reply.MessageID)

	var received bool
	for _, n := range nk.Notifications() {
		if n.UserID == "bob" && n.Subject == domain.MsgDuelReceived {
			received = true
		}
	}
	assert.True(t, received, "bob should be notified of the request")

	reply = mustRPC(t, p, userCtx("bob"), RpcDuelAccept, "")
	require.True(t, reply.OK, reply.Message)
	assert.NotEmpty(t, reply.MatchID)

	reply = mustRPC(t, p, userCtx("bob"), RpcDuelDeny, "")
	assert.False(t, reply.OK)
	assert.Equal(t, domain.MsgDuelNoRequest, reply.MessageID)
}

func TestRpcVoiceToken(t *testing.T) {
	p, _ := newTestPlugin(t, nil)

	reply := mustRPC(t, p, userCtx("alice"), RpcArenaVoiceToken, "")
	require.True(t, reply.OK)
	var grant map[string]string
	require.NoError(t, json.Unmarshal(reply.Data, &grant))
	assert.NotEmpty(t, grant["token"])
	assert.Empty(t, grant["channel"])

	reply = mustRPC(t, p, userCtx("alice"), RpcArenaVoiceToken, `{"action":"join"}`)
	assert.False(t, reply.OK)
	assert.Equal(t, domain.MsgArenaNotInCompetition, reply.MessageID)

	mustRPC(t, p, userCtx("alice"), RpcArenaJoin, `{"arena":"duel"}`)
	reply = mustRPC(t, p, userCtx("alice"), RpcArenaVoiceToken, `{"action":"join","team":true}`)
	require.True(t, reply.OK)
	require.NoError(t, json.Unmarshal(reply.Data, &grant))
	assert.Contains(t, grant["channel"], "arena-")
}

func TestRpcVoiceTokenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Voice.Secret = ""
	p, _ := newTestPlugin(t, cfg)

	reply := mustRPC(t, p, userCtx("alice"), RpcArenaVoiceToken, "")
	assert.False(t, reply.OK)
	assert.Equal(t, domain.MsgVoiceUnavailable, reply.MessageID)
}

func TestRpcErrorHidesDetails(t *testing.T) {
	debugErrors = false
	err := rpcError(noopLogger{}, errors.New("disk on fire"))
	assert.Equal(t, codeInternal, errorCode(t, err))
	assert.NotContains(t, err.Error(), "disk")

	err = rpcError(noopLogger{}, context.DeadlineExceeded)
	assert.Equal(t, codeUnavailable, errorCode(t, err))
}
