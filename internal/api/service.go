package api

import (
	"context"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/storage"
)

// Service is the ledger surface the API depends on. *ledger.Ledger
// implements it.
type Service interface {
	ProgramID() address.Pubkey
	Submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error)
	Intent(ctx context.Context, addr address.Pubkey) (*ledger.IntentView, error)
	IntentOf(ctx context.Context, agent address.Pubkey) (*ledger.IntentView, error)
	Match(ctx context.Context, addr address.Pubkey) (*ledger.MatchView, error)
	ListIntents(ctx context.Context, f ledger.IntentFilter) ([]ledger.IntentView, int, error)
	MatchesFor(ctx context.Context, intent address.Pubkey) ([]ledger.MatchView, error)
	Journal(ctx context.Context, limit, offset int) ([]storage.JournalEntry, error)
}

var _ Service = (*ledger.Ledger)(nil)
