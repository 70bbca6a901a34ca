package storage

import (
	"context"
	"time"
)

// Handled is the ledger entry for a message the bot has answered. Only
// keys and the dispatch outcome are kept; message bodies and program
// output are never stored.
type Handled struct {
	Channel     string    `json:"channel"`
	TS          string    `json:"ts"`
	Instruction string    `json:"instruction,omitempty"`
	State       string    `json:"state,omitempty"`
	HandledAt   time.Time `json:"handled_at"`
}

// Store is the idempotency ledger for handled messages. It lets a
// reconnecting bot skip messages it has already answered.
type Store interface {
	// Claim records (channel, ts) as being handled. It returns false when
	// the message was claimed before.
	Claim(ctx context.Context, channel, ts string) (bool, error)

	// Complete stores the dispatch outcome of a claimed message.
	Complete(ctx context.Context, h Handled) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Handled, error)

	// Prune deletes entries handled before the cutoff and returns how many
	// were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Close releases resources.
	Close() error
}
