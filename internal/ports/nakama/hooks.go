package nakama

import (
	"context"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// onSessionEnd is triggered when a client session closes. The player leaves their competition
// with cause disconnect and is dropped from waiting tournament queues and pending duels.
func (p *Plugin) onSessionEnd(ctx context.Context, logger runtime.Logger, evt *api.Event) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		userID = evt.GetProperties()["user_id"]
	}
	if userID == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(context.Background(), p.cfg.CallTimeout)
	defer cancel()
	if err := p.service.Disconnect(callCtx, userID); err != nil {
		logger.WithField("user", userID).Warn("session end cleanup failed: %v", err)
	}
}
