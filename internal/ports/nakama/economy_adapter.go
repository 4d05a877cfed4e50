package nakama

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"battlearena/internal/domain"
	"battlearena/internal/message"
	"battlearena/internal/ports"
)

// DefaultCurrency is credited when a wallet update names no currency.
const DefaultCurrency = "gold"

// WalletUpdater is the part of runtime.NakamaModule used for payouts.
type WalletUpdater interface {
	WalletUpdate(ctx context.Context, userID string, changeset map[string]int64, metadata map[string]interface{}, updateLedger bool) (map[string]int64, map[string]int64, error)
}

// NakamaEconomyAdapter implements ports.EconomyPort using Nakama's wallet system.
type NakamaEconomyAdapter struct {
	nk WalletUpdater
}

// NewNakamaEconomyAdapter creates a new economy adapter.
func NewNakamaEconomyAdapter(nk WalletUpdater) *NakamaEconomyAdapter {
	return &NakamaEconomyAdapter{
		nk: nk,
	}
}

// UpdateBalances applies multiple wallet changes.
func (a *NakamaEconomyAdapter) UpdateBalances(ctx context.Context, updates []ports.WalletUpdate) error {
	for _, update := range updates {
		if update.Amount == 0 {
			continue
		}
		currency := update.Currency
		if currency == "" {
			currency = DefaultCurrency
		}

		changes := map[string]int64{
			currency: update.Amount,
		}

		_, _, err := a.nk.WalletUpdate(ctx, update.UserID, changes, update.Metadata, true)
		if err != nil {
			return eris.Wrapf(err, "failed to update wallet for user %s", update.UserID)
		}
	}
	return nil
}

// WalletCommands runs tournament win commands:
//
//	wallet <currency> <amount> <user_id>
//	notify <user_id> <text...>
type WalletCommands struct {
	economy   ports.EconomyPort
	messenger ports.Messenger
}

func NewWalletCommands(economy ports.EconomyPort, messenger ports.Messenger) *WalletCommands {
	return &WalletCommands{economy: economy, messenger: messenger}
}

func (w *WalletCommands) Run(ctx context.Context, command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return eris.New("empty command")
	}
	switch fields[0] {
	case "wallet":
		if len(fields) != 4 {
			return eris.Errorf("usage: wallet <currency> <amount> <user_id>, got %q", command)
		}
		amount, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid amount in %q", command)
		}
		return w.economy.UpdateBalances(ctx, []ports.WalletUpdate{{
			UserID:   fields[3],
			Currency: fields[1],
			Amount:   amount,
			Metadata: map[string]interface{}{"reason": "tournament_reward"},
		}})
	case "notify":
		if len(fields) < 3 {
			return eris.Errorf("usage: notify <user_id> <text>, got %q", command)
		}
		text := strings.Join(fields[2:], " ")
		return w.messenger.Send(ctx, fields[1], message.New(domain.MsgNotice, "text", text))
	default:
		return eris.Errorf("unknown command %q", fields[0])
	}
}

var (
	_ ports.EconomyPort   = (*NakamaEconomyAdapter)(nil)
	_ ports.CommandRunner = (*WalletCommands)(nil)
)
