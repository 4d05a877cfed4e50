package nakama

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/rotisserie/eris"

	"battlearena/internal/message"
	"battlearena/internal/ports"
)

// Notifier is the part of runtime.NakamaModule used to deliver messages.
type Notifier interface {
	NotificationsSend(ctx context.Context, notifications []*runtime.NotificationSend) error
}

// NotificationMessenger delivers arena messages as Nakama notifications. The subject is the
// message id so clients can localize; the content carries the rendered text and the arguments.
type NotificationMessenger struct {
	nk      Notifier
	catalog *message.Catalog
}

func NewNotificationMessenger(nk Notifier, catalog *message.Catalog) *NotificationMessenger {
	return &NotificationMessenger{nk: nk, catalog: catalog}
}

func (m *NotificationMessenger) Send(ctx context.Context, userID string, msg message.Message) error {
	args := make(map[string]interface{}, len(msg.Args))
	for k, v := range msg.Args {
		args[k] = v
	}
	err := m.nk.NotificationsSend(ctx, []*runtime.NotificationSend{{
		UserID:  userID,
		Subject: msg.ID,
		Content: map[string]interface{}{
			"text": m.catalog.Render(msg),
			"args": args,
		},
		Code:       NotificationCodeArena,
		Persistent: false,
	}})
	if err != nil {
		return eris.Wrapf(err, "failed to notify %s of %s", userID, msg.ID)
	}
	return nil
}

var _ ports.Messenger = (*NotificationMessenger)(nil)
