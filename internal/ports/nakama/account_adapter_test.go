package nakama

import (
	"context"
	"errors"
	"testing"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battlearena/internal/domain"
	"battlearena/internal/message"
)

func TestDisplayNames(t *testing.T) {
	nk := newFakeNakama()
	nk.users["alice"] = &api.User{Id: "alice", Username: "alice01", DisplayName: "Alice"}
	nk.users["bob"] = &api.User{Id: "bob", Username: "bobby"}
	directory := NewNakamaAccountAdapter(nk)

	names, err := directory.DisplayNames(context.Background(), []string{"alice", "bob", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "Alice", "bob": "bobby", "ghost": "ghost"}, names)
}

func TestDisplayNamesFallsBackOnError(t *testing.T) {
	nk := newFakeNakama()
	nk.usersErr = errors.New("db down")
	directory := NewNakamaAccountAdapter(nk)

	names, err := directory.DisplayNames(context.Background(), []string{"alice"})
	require.Error(t, err)
	assert.Equal(t, "alice", names["alice"])
}

func TestNotificationMessenger(t *testing.T) {
	nk := newFakeNakama()
	catalog := message.NewCatalog(map[string]string{domain.MsgDuelExpired: "{player} never answered."})
	messenger := NewNotificationMessenger(nk, catalog)

	require.NoError(t, messenger.Send(context.Background(), "alice", message.New(domain.MsgDuelExpired, "player", "Bob")))

	notes := nk.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "alice", notes[0].UserID)
	assert.Equal(t, domain.MsgDuelExpired, notes[0].Subject)
	assert.Equal(t, NotificationCodeArena, notes[0].Code)
	assert.Equal(t, "Bob never answered.", notes[0].Content["text"])
	assert.Equal(t, map[string]interface{}{"player": "Bob"}, notes[0].Content["args"])
}
