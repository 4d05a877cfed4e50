package ports

import (
	"context"

	"battlearena/internal/message"
)

// Messenger delivers user-facing messages.
type Messenger interface {
	Send(ctx context.Context, userID string, m message.Message) error
}

// CommandRunner executes a configured reward command such as a wallet payout.
type CommandRunner interface {
	Run(ctx context.Context, command string) error
}

// ResultArchive stores finished tournaments.
type ResultArchive interface {
	Save(ctx context.Context, record TournamentRecord) error
	Recent(ctx context.Context, arena string, limit int) ([]TournamentRecord, error)
}
