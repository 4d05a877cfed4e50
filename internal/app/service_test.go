package app

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battlearena/internal/app/apptest"
	"battlearena/internal/app/competition"
	"battlearena/internal/app/duel"
	"battlearena/internal/app/event"
	"battlearena/internal/app/tournament"
	"battlearena/internal/config"
	"battlearena/internal/domain"
	"battlearena/internal/ports"
	"battlearena/internal/scheduler"
)

type serviceFixture struct {
	clock   *scheduler.Manual
	manager *competition.Manager
	prov    *apptest.Provisioner
	msgs    *apptest.Messenger
	archive *apptest.Archive
	svc     *Service
}

func newServiceFixture(t *testing.T, voice config.VoiceConfig) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		clock:   scheduler.NewManual(),
		prov:    &apptest.Provisioner{},
		msgs:    &apptest.Messenger{},
		archive: &apptest.Archive{},
	}
	logger := apptest.NewLogger()
	f.manager = competition.NewManager(competition.Options{
		Bus:         event.NewBus(),
		Scheduler:   f.clock,
		Logger:      logger,
		Provisioner: f.prov,
		Rand:        rand.New(rand.NewSource(5)),
	})
	f.manager.RegisterArena(apptest.DuelArena("duel"))
	dir := &apptest.Directory{}
	registry := tournament.NewRegistry(tournament.Config{}, tournament.Deps{
		Manager:   f.manager,
		Scheduler: f.clock,
		Messenger: f.msgs,
		Directory: dir,
		Commands:  &apptest.Commands{},
		Archive:   f.archive,
		Logger:    logger,
	})
	duels := duel.New(duel.Config{}, duel.Deps{
		Manager:   f.manager,
		Scheduler: f.clock,
		Messenger: f.msgs,
		Directory: dir,
		Logger:    logger,
	})
	f.svc = NewService(Deps{
		Loop:        apptest.Inline{},
		Manager:     f.manager,
		Tournaments: registry,
		Duels:       duels,
		Archive:     f.archive,
		Directory:   dir,
		Voice:       NewVivoxService(voice),
		Logger:      logger,
	})
	return f
}

func requireUserError(t *testing.T, err error, id string) {
	t.Helper()
	var ue *UserError
	require.True(t, errors.As(err, &ue), "expected user error, got %v", err)
	assert.Equal(t, id, ue.Msg.ID)
}

func TestServiceJoinAndLeave(t *testing.T) {
	f := newServiceFixture(t, config.VoiceConfig{})
	ctx := context.Background()

	res, err := f.svc.Join(ctx, "alice", "duel", "")
	require.NoError(t, err)
	assert.Equal(t, domain.MsgArenaJoined, res.Message.ID)
	assert.True(t, strings.HasPrefix(res.MatchID, "match-"))

	_, err = f.svc.Join(ctx, "alice", "duel", "")
	requireUserError(t, err, domain.MsgArenaAlreadyJoined)

	res, err = f.svc.Leave(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.MsgArenaLeft, res.Message.ID)
	assert.Equal(t, "duel", res.Message.Arg("arena"))

	_, err = f.svc.Leave(ctx, "alice")
	requireUserError(t, err, domain.MsgArenaNotInCompetition)
}

func TestServiceJoinUnknownArena(t *testing.T) {
	f := newServiceFixture(t, config.VoiceConfig{})
	_, err := f.svc.Join(context.Background(), "alice", "nowhere", "")
	requireUserError(t, err, domain.MsgArenaNotFound)
}

func TestServiceSpectateNeverProvisions(t *testing.T) {
	f := newServiceFixture(t, config.VoiceConfig{})
	_, err := f.svc.Spectate(context.Background(), "bob", "duel", "")
	require.Error(t, err)
	assert.Empty(t, f.prov.Provisioned)
}

func TestServiceTournamentFlow(t *testing.T) {
	f := newServiceFixture(t, config.VoiceConfig{})
	ctx := context.Background()

	_, err := f.svc.TournamentStart(ctx, "duel")
	requireUserError(t, err, domain.MsgTournamentNotFound)

	res, err := f.svc.TournamentCreate(ctx, "duel")
	require.NoError(t, err)
	assert.Equal(t, domain.MsgTournamentCreated, res.Message.ID)

	_, err = f.svc.TournamentCreate(ctx, "duel")
	requireUserError(t, err, domain.MsgTournamentAlreadyExists)

	_, err = f.svc.TournamentJoin(ctx, "alice", "duel")
	require.NoError(t, err)

	_, err = f.svc.TournamentStart(ctx, "duel")
	requireUserError(t, err, domain.MsgTournamentNotEnoughPlayers)

	_, err = f.svc.TournamentJoin(ctx, "bob", "duel")
	require.NoError(t, err)

	list, err := f.svc.TournamentList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "waiting", list[0].State)
	assert.Equal(t, 2, list[0].Queued)

	_, err = f.svc.TournamentStart(ctx, "duel")
	require.NoError(t, err)

	ca, ok := f.manager.CompetitionOf("alice")
	require.True(t, ok)
	cb, ok := f.manager.CompetitionOf("bob")
	require.True(t, ok)
	assert.Same(t, ca, cb)

	_, err = f.svc.TournamentLeave(ctx, "carol", "duel")
	requireUserError(t, err, domain.MsgTournamentNotJoined)

	res, err = f.svc.TournamentEnd(ctx, "duel")
	require.NoError(t, err)
	assert.Equal(t, domain.MsgTournamentEnded, res.Message.ID)

	list, err = f.svc.TournamentList(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestServiceTournamentHistory(t *testing.T) {
	f := newServiceFixture(t, config.VoiceConfig{})
	for i := 0; i < MaxHistoryRecords+5; i++ {
		f.archive.Records = append(f.archive.Records, ports.TournamentRecord{ID: "t", Arena: "duel"})
	}
	records, err := f.svc.TournamentHistory(context.Background(), "duel", 0)
	require.NoError(t, err)
	assert.Len(t, records, MaxHistoryRecords)

	records, err = f.svc.TournamentHistory(context.Background(), "duel", 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestServiceDuel(t *testing.T) {
	f := newServiceFixture(t, config.VoiceConfig{})
	ctx := context.Background()

	res, err := f.svc.DuelRequest(ctx, "alice", "bob", "duel")
	require.NoError(t, err)
	assert.Equal(t, domain.MsgDuelRequested, res.Message.ID)
	assert.Equal(t, "BOB", res.Message.Arg("player"))

	_, err = f.svc.DuelRequest(ctx, "carol", "bob", "duel")
	requireUserError(t, err, domain.MsgDuelAlreadyRequested)

	res, err = f.svc.DuelAccept(ctx, "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, res.MatchID)

	c, ok := f.manager.CompetitionOf("alice")
	require.True(t, ok)
	assert.Equal(t, c.Instance().MatchID, res.MatchID)

	_, err = f.svc.DuelAccept(ctx, "bob")
	requireUserError(t, err, domain.MsgDuelNoRequest)
}

func TestServiceDuelDenyAndCancel(t *testing.T) {
	f := newServiceFixture(t, config.VoiceConfig{})
	ctx := context.Background()

	_, err := f.svc.DuelRequest(ctx, "alice", "bob", "duel")
	require.NoError(t, err)
	res, err := f.svc.DuelDeny(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.MsgDuelClosed, res.Message.ID)
	assert.Contains(t, f.msgs.IDs("alice"), domain.MsgDuelDenied)

	_, err = f.svc.DuelRequest(ctx, "alice", "bob", "duel")
	require.NoError(t, err)
	_, err = f.svc.DuelCancel(ctx, "alice")
	require.NoError(t, err)
	assert.Contains(t, f.msgs.IDs("bob"), domain.MsgDuelCancelled)

	_, err = f.svc.DuelCancel(ctx, "alice")
	requireUserError(t, err, domain.MsgDuelNoRequest)
}

func TestServiceVoiceToken(t *testing.T) {
	ctx := context.Background()

	disabled := newServiceFixture(t, config.VoiceConfig{})
	_, err := disabled.svc.VoiceToken(ctx, "alice", VivoxTokenActionLogin, false)
	requireUserError(t, err, domain.MsgVoiceUnavailable)

	f := newServiceFixture(t, voiceConfig())
	grant, err := f.svc.VoiceToken(ctx, "alice", VivoxTokenActionLogin, false)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
	assert.Empty(t, grant.Channel)

	_, err = f.svc.VoiceToken(ctx, "alice", VivoxTokenActionJoin, true)
	requireUserError(t, err, domain.MsgArenaNotInCompetition)

	_, err = f.svc.Join(ctx, "alice", "duel", "")
	require.NoError(t, err)
	c, _ := f.manager.CompetitionOf("alice")

	grant, err = f.svc.VoiceToken(ctx, "alice", VivoxTokenActionJoin, true)
	require.NoError(t, err)
	assert.Equal(t, CompetitionChannel(c.ID(), c.Teams().TeamOf("alice")), grant.Channel)
	claims := parseVivoxClaims(t, grant.Token, "test-secret")
	assert.Equal(t, "sip:confctl-g-"+grant.Channel+"@example.com", claims["t"])

	grant, err = f.svc.VoiceToken(ctx, "alice", VivoxTokenActionJoin, false)
	require.NoError(t, err)
	assert.Equal(t, CompetitionChannel(c.ID(), ""), grant.Channel)
}

func TestServiceShutdownRemovesCompetitions(t *testing.T) {
	f := newServiceFixture(t, config.VoiceConfig{})
	ctx := context.Background()
	_, err := f.svc.Join(ctx, "alice", "duel", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Shutdown(ctx))
	assert.Empty(t, f.manager.Competitions("duel"))
	assert.Len(t, f.prov.Released, 1)
	assert.Zero(t, f.manager.DynamicInUse())
}

type stalledLoop struct{}

func (stalledLoop) Call(ctx context.Context, _ func()) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestServiceReportsStalledLoop(t *testing.T) {
	f := newServiceFixture(t, config.VoiceConfig{})
	f.svc.deps.Loop = stalledLoop{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.svc.Join(ctx, "alice", "duel", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestServiceDisconnect(t *testing.T) {
	f := newServiceFixture(t, config.VoiceConfig{})
	ctx := context.Background()

	_, err := f.svc.Join(ctx, "alice", "duel", "")
	require.NoError(t, err)
	_, err = f.svc.TournamentCreate(ctx, "duel")
	require.Error(t, err, "alice is still playing")

	require.NoError(t, f.svc.Disconnect(ctx, "alice"))
	_, ok := f.manager.CompetitionOf("alice")
	assert.False(t, ok)

	_, err = f.svc.TournamentCreate(ctx, "duel")
	require.NoError(t, err)
	_, err = f.svc.TournamentJoin(ctx, "bob", "duel")
	require.NoError(t, err)
	_, err = f.svc.DuelRequest(ctx, "bob", "carol", "duel")
	require.NoError(t, err)

	require.NoError(t, f.svc.Disconnect(ctx, "bob"))
	list, err := f.svc.TournamentList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Zero(t, list[0].Queued)
	assert.Contains(t, f.msgs.IDs("carol"), domain.MsgDuelCancelled)
}
