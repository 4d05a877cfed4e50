package nakama

import (
	"context"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/rotisserie/eris"

	"battlearena/internal/ports"
)

// UserLookup is the part of runtime.NakamaModule used to resolve display names.
type UserLookup interface {
	UsersGetId(ctx context.Context, userIDs []string, facebookIDs []string) ([]*api.User, error)
}

// NakamaAccountAdapter implements ports.PlayerDirectory using Nakama's user API.
type NakamaAccountAdapter struct {
	nk UserLookup
}

// NewNakamaAccountAdapter creates a new account adapter.
func NewNakamaAccountAdapter(nk UserLookup) *NakamaAccountAdapter {
	return &NakamaAccountAdapter{nk: nk}
}

// DisplayNames prefers the display name, then the username, then the id itself.
func (a *NakamaAccountAdapter) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		out[id] = id
	}
	if len(userIDs) == 0 {
		return out, nil
	}
	users, err := a.nk.UsersGetId(ctx, userIDs, nil)
	if err != nil {
		return out, eris.Wrap(err, "failed to look up users")
	}
	for _, u := range users {
		switch {
		case u.GetDisplayName() != "":
			out[u.GetId()] = u.GetDisplayName()
		case u.GetUsername() != "":
			out[u.GetId()] = u.GetUsername()
		}
	}
	return out, nil
}

var _ ports.PlayerDirectory = (*NakamaAccountAdapter)(nil)
