package ports

import "context"

// WalletUpdate represents a single currency change for a user.
type WalletUpdate struct {
	UserID   string
	Currency string
	Amount   int64
	Metadata map[string]interface{}
}

// EconomyPort defines the interface for paying out tournament rewards.
type EconomyPort interface {
	// UpdateBalances applies wallet changes in order and stops at the first failure.
	UpdateBalances(ctx context.Context, updates []WalletUpdate) error
}
