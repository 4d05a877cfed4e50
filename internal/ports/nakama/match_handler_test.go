package nakama

import (
	"context"
	"testing"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battlearena/internal/app/competition"
	"battlearena/internal/domain"
)

// joinedMatch has alice join the duel arena and returns a match state bound to her competition.
func joinedMatch(t *testing.T, p *Plugin) (*matchHandler, *MatchState) {
	t.Helper()
	res, err := p.service.Join(context.Background(), "alice", "duel", "")
	require.NoError(t, err)
	require.NotEmpty(t, res.MatchID)

	var c *competition.Competition
	onLoop(t, p, func() { c, _ = p.manager.CompetitionOf("alice") })
	require.NotNil(t, c)

	mh := &matchHandler{plugin: p}
	state, tickRate, label := mh.MatchInit(context.Background(), noopLogger{}, nil, nil, map[string]interface{}{
		"competition_id": c.ID(),
		"arena":          "duel",
		"map":            c.Map().Name,
		"dynamic":        true,
	})
	assert.Equal(t, matchTickRate, tickRate)
	fields, err := decodeStruct([]byte(label))
	require.NoError(t, err)
	assert.Equal(t, c.ID(), fields["competition"])
	return mh, state.(*MatchState)
}

func TestMatchInitReadsParams(t *testing.T) {
	mh := &matchHandler{}
	state, _, _ := mh.MatchInit(context.Background(), noopLogger{}, nil, nil, map[string]interface{}{
		"competition_id": "c1",
		"arena":          "duel",
		"map":            "pit",
		"dynamic":        true,
	})
	ms := state.(*MatchState)
	assert.Equal(t, "c1", ms.CompetitionID)
	assert.Equal(t, "duel", ms.Arena)
	assert.Equal(t, "pit", ms.Map)
	assert.True(t, ms.Dynamic)
	assert.NotNil(t, ms.Presences)
}

func TestMatchJoinAttemptAdmitsMembersOnly(t *testing.T) {
	p, _ := newTestPlugin(t, nil)
	mh, ms := joinedMatch(t, p)

	_, ok, _ := mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, &mockDispatcher{}, 1, ms, mockPresence{userID: "alice"}, nil)
	assert.True(t, ok)

	_, ok, reason := mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, &mockDispatcher{}, 1, ms, mockPresence{userID: "mallory"}, nil)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestMatchLoopRelaysEventsAndLabel(t *testing.T) {
	p, _ := newTestPlugin(t, nil)
	mh, ms := joinedMatch(t, p)
	dispatcher := &mockDispatcher{}

	mh.MatchJoin(context.Background(), noopLogger{}, nil, nil, dispatcher, 1, ms, []runtime.Presence{mockPresence{userID: "alice"}})
	out := mh.MatchLoop(context.Background(), noopLogger{}, nil, nil, dispatcher, 2, ms, nil)
	require.NotNil(t, out)

	joined := dispatcher.find(t, OpPlayerJoined)
	payload, err := decodeStruct(joined.data)
	require.NoError(t, err)
	assert.Equal(t, []any{"alice"}, payload["players"])
	assert.Equal(t, "duel", payload["arena"])
	assert.Nil(t, joined.presences, "join events go to the whole match")

	require.NotEmpty(t, dispatcher.labels)
	label, err := decodeStruct([]byte(dispatcher.labels[len(dispatcher.labels)-1]))
	require.NoError(t, err)
	assert.EqualValues(t, 1, label["players"])
	assert.Equal(t, true, label["open"])

	// Nothing new happened, so the next tick sends nothing.
	sent, labels := len(dispatcher.broadcasts), len(dispatcher.labels)
	mh.MatchLoop(context.Background(), noopLogger{}, nil, nil, dispatcher, 3, ms, nil)
	assert.Len(t, dispatcher.broadcasts, sent)
	assert.Len(t, dispatcher.labels, labels)
}

func TestMatchLeaveRemovesPlayer(t *testing.T) {
	p, _ := newTestPlugin(t, nil)
	mh, ms := joinedMatch(t, p)
	alice := mockPresence{userID: "alice"}

	mh.MatchJoin(context.Background(), noopLogger{}, nil, nil, &mockDispatcher{}, 1, ms, []runtime.Presence{alice})
	mh.MatchLeave(context.Background(), noopLogger{}, nil, nil, &mockDispatcher{}, 2, ms, []runtime.Presence{alice})
	assert.Empty(t, ms.Presences)

	var inGame bool
	onLoop(t, p, func() { _, inGame = p.manager.CompetitionOf("alice") })
	assert.False(t, inGame)
}

func TestMatchLoopLeaveOpCode(t *testing.T) {
	p, _ := newTestPlugin(t, nil)
	mh, ms := joinedMatch(t, p)
	dispatcher := &mockDispatcher{}

	mh.MatchLoop(context.Background(), noopLogger{}, nil, nil, dispatcher, 1, ms, []runtime.MatchData{
		mockMatchData{mockPresence: mockPresence{userID: "alice"}, opCode: OpLeaveArena},
	})

	var inGame bool
	onLoop(t, p, func() { _, inGame = p.manager.CompetitionOf("alice") })
	assert.False(t, inGame)

	mh.MatchLoop(context.Background(), noopLogger{}, nil, nil, dispatcher, 2, ms, nil)
	left := dispatcher.find(t, OpPlayerLeft)
	payload, err := decodeStruct(left.data)
	require.NoError(t, err)
	assert.Equal(t, string(domain.CauseCommand), payload["cause"])
}

func TestMatchLoopEliminationEndsDuel(t *testing.T) {
	p, _ := newTestPlugin(t, nil)
	mh, ms := joinedMatch(t, p)
	_, err := p.service.Join(context.Background(), "bob", "duel", "")
	require.NoError(t, err)

	var phaseErr error
	onLoop(t, p, func() {
		c, _ := p.manager.Competition(ms.CompetitionID)
		phaseErr = c.Phases().SetPhase(c, domain.PhaseInGame)
	})
	require.NoError(t, phaseErr)

	data, err := encodeStruct(map[string]any{"player": "bob"})
	require.NoError(t, err)
	dispatcher := &mockDispatcher{}
	mh.MatchJoin(context.Background(), noopLogger{}, nil, nil, dispatcher, 1, ms, []runtime.Presence{
		mockPresence{userID: "alice"}, mockPresence{userID: "bob"},
	})
	mh.MatchLoop(context.Background(), noopLogger{}, nil, nil, dispatcher, 2, ms, []runtime.MatchData{
		mockMatchData{mockPresence: mockPresence{userID: "alice"}, opCode: OpEliminated, data: data},
	})

	var phase domain.PhaseType
	onLoop(t, p, func() {
		c, _ := p.manager.Competition(ms.CompetitionID)
		phase = c.Phases().CurrentType()
	})
	assert.Equal(t, domain.PhaseVictory, phase)

	mh.MatchLoop(context.Background(), noopLogger{}, nil, nil, dispatcher, 3, ms, nil)
	victory := dispatcher.find(t, OpVictory)
	require.Len(t, victory.presences, 1)
	assert.Equal(t, "alice", victory.presences[0].GetUserId())
	loss := dispatcher.find(t, OpLoss)
	require.Len(t, loss.presences, 1)
	assert.Equal(t, "bob", loss.presences[0].GetUserId())
}

func TestBroadcastSkipsAbsentRecipients(t *testing.T) {
	mh := &matchHandler{}
	ms := &MatchState{Presences: map[string]runtime.Presence{"alice": mockPresence{userID: "alice"}}}
	dispatcher := &mockDispatcher{}

	mh.broadcast(ms, dispatcher, noopLogger{}, OpVictory, map[string]any{"players": []any{"bob"}}, []string{"bob"})
	assert.Empty(t, dispatcher.broadcasts)

	mh.broadcast(ms, dispatcher, noopLogger{}, OpVictory, map[string]any{"players": []any{"alice"}}, []string{"alice", "bob"})
	require.Len(t, dispatcher.broadcasts, 1)
	assert.Len(t, dispatcher.broadcasts[0].presences, 1)
}

func TestMatchSignalTerminates(t *testing.T) {
	p, _ := newTestPlugin(t, nil)
	mh, ms := joinedMatch(t, p)
	dispatcher := &mockDispatcher{}

	_, reply := mh.MatchSignal(context.Background(), noopLogger{}, nil, nil, dispatcher, 1, ms, "ping")
	assert.Empty(t, reply)
	assert.False(t, ms.terminate)

	_, reply = mh.MatchSignal(context.Background(), noopLogger{}, nil, nil, dispatcher, 1, ms, SignalTerminate)
	assert.Equal(t, "terminating", reply)

	_, ok, _ := mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, dispatcher, 2, ms, mockPresence{userID: "alice"}, nil)
	assert.False(t, ok)

	out := mh.MatchLoop(context.Background(), noopLogger{}, nil, nil, dispatcher, 2, ms, nil)
	assert.Nil(t, out)
	// Events recorded before the signal are still delivered.
	dispatcher.find(t, OpPlayerJoined)
}
