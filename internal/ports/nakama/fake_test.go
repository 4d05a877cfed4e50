package nakama

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/require"

	"battlearena/internal/app/apptest"
	"battlearena/internal/config"
	"battlearena/internal/domain"
)

// fakeNakama implements Runtime for tests. Release runs on its own goroutine, so every
// method locks.
type fakeNakama struct {
	mu            sync.Mutex
	created       []map[string]interface{}
	createErr     error
	signals       []string
	storage       map[string][]*api.StorageObject
	deleted       []string
	notifications []*runtime.NotificationSend
	users         map[string]*api.User
	usersErr      error
	wallets       map[string]map[string]int64
}

func newFakeNakama() *fakeNakama {
	return &fakeNakama{
		storage: make(map[string][]*api.StorageObject),
		users:   make(map[string]*api.User),
		wallets: make(map[string]map[string]int64),
	}
}

func (f *fakeNakama) MatchCreate(_ context.Context, module string, params map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, params)
	return fmt.Sprintf("match-%d", len(f.created)), nil
}

func (f *fakeNakama) MatchSignal(_ context.Context, id string, data string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, id+":"+data)
	return "", nil
}

func (f *fakeNakama) StorageList(_ context.Context, _, _, collection string, limit int, cursor string) ([]*api.StorageObject, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs := f.storage[collection]
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	if start >= len(objs) {
		return nil, "", nil
	}
	end := start + limit
	if end >= len(objs) {
		return append([]*api.StorageObject(nil), objs[start:]...), "", nil
	}
	return append([]*api.StorageObject(nil), objs[start:end]...), strconv.Itoa(end), nil
}

func (f *fakeNakama) StorageDelete(_ context.Context, deletes []*runtime.StorageDelete) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range deletes {
		f.deleted = append(f.deleted, d.Collection+"/"+d.Key)
	}
	return nil
}

func (f *fakeNakama) NotificationsSend(_ context.Context, notifications []*runtime.NotificationSend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, notifications...)
	return nil
}

func (f *fakeNakama) UsersGetId(_ context.Context, userIDs []string, _ []string) ([]*api.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	var out []*api.User
	for _, id := range userIDs {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeNakama) WalletUpdate(_ context.Context, userID string, changeset map[string]int64, _ map[string]interface{}, _ bool) (map[string]int64, map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wallets[userID] == nil {
		f.wallets[userID] = make(map[string]int64)
	}
	prev := make(map[string]int64)
	for k, v := range f.wallets[userID] {
		prev[k] = v
	}
	for k, v := range changeset {
		f.wallets[userID][k] += v
	}
	return prev, f.wallets[userID], nil
}

func (f *fakeNakama) Signals() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signals...)
}

func (f *fakeNakama) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeNakama) Created() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.created...)
}

func (f *fakeNakama) Notifications() []*runtime.NotificationSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*runtime.NotificationSend(nil), f.notifications...)
}

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

type broadcast struct {
	opCode    int64
	data      []byte
	presences []runtime.Presence
}

// mockDispatcher records match dispatcher calls for assertions.
type mockDispatcher struct {
	broadcasts []broadcast
	labels     []string
}

func (md *mockDispatcher) BroadcastMessage(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	md.broadcasts = append(md.broadcasts, broadcast{opCode: opCode, data: append([]byte(nil), data...), presences: presences})
	return nil
}

func (md *mockDispatcher) BroadcastMessageDeferred(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	return nil
}

func (md *mockDispatcher) MatchKick(presences []runtime.Presence) error {
	return nil
}

func (md *mockDispatcher) MatchLabelUpdate(label string) error {
	md.labels = append(md.labels, label)
	return nil
}

func (md *mockDispatcher) opCodes() []int64 {
	out := make([]int64, 0, len(md.broadcasts))
	for _, b := range md.broadcasts {
		out = append(out, b.opCode)
	}
	return out
}

func (md *mockDispatcher) find(t *testing.T, opCode int64) broadcast {
	t.Helper()
	for _, b := range md.broadcasts {
		if b.opCode == opCode {
			return b
		}
	}
	t.Fatalf("no broadcast with op %d in %v", opCode, md.opCodes())
	return broadcast{}
}

// mockPresence overrides the presence fields the handler reads. Other methods panic.
type mockPresence struct {
	runtime.Presence
	userID string
}

func (p mockPresence) GetUserId() string    { return p.userID }
func (p mockPresence) GetSessionId() string { return "session-" + p.userID }

type mockMatchData struct {
	mockPresence
	opCode int64
	data   []byte
}

func (m mockMatchData) GetOpCode() int64 { return m.opCode }
func (m mockMatchData) GetData() []byte  { return m.data }
func (m mockMatchData) GetReliable() bool {
	return true
}
func (m mockMatchData) GetReceiveTime() int64 {
	return 0
}

// recordingInitializer captures registrations. Methods the plugin does not call panic.
type recordingInitializer struct {
	runtime.Initializer
	rpcs        map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error)
	matches     []string
	sessionEnd  bool
	shutdownSet bool
}

func (r *recordingInitializer) RegisterRpc(id string, fn func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)) error {
	if r.rpcs == nil {
		r.rpcs = make(map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error))
	}
	r.rpcs[id] = fn
	return nil
}

func (r *recordingInitializer) RegisterMatch(name string, fn func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error)) error {
	r.matches = append(r.matches, name)
	return nil
}

func (r *recordingInitializer) RegisterEventSessionEnd(fn func(ctx context.Context, logger runtime.Logger, evt *api.Event)) error {
	r.sessionEnd = true
	return nil
}

func (r *recordingInitializer) RegisterShutdown(fn func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, seconds int)) error {
	r.shutdownSet = true
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Voice = config.VoiceConfig{Issuer: "test-issuer", Domain: "example.com", Secret: "test-secret", TokenTTL: 90 * time.Second}
	return &cfg
}

// newTestPlugin starts a plugin on a duel arena named "duel" backed by a fake runtime.
func newTestPlugin(t *testing.T, cfg *config.Config, arenas ...*domain.Arena) (*Plugin, *fakeNakama) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	if len(arenas) == 0 {
		arenas = []*domain.Arena{apptest.DuelArena("duel")}
	}
	nk := newFakeNakama()
	p := NewPlugin(apptest.NewLogger(), nk, cfg, arenas, &apptest.Archive{})
	p.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
		defer cancel()
		p.Stop(ctx)
	})
	return p, nk
}

// onLoop runs fn on the plugin's control loop and waits for it. Tasks queued earlier run first.
func onLoop(t *testing.T, p *Plugin, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.CallTimeout)
	defer cancel()
	require.NoError(t, p.loop.Call(ctx, fn))
}

func userCtx(userID string) context.Context {
	return context.WithValue(context.Background(), runtime.RUNTIME_CTX_USER_ID, userID)
}
