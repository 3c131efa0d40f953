package ledger

import (
	"context"
	"fmt"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/models"
	"github.com/starford/intentmarket/internal/program"
	"github.com/starford/intentmarket/internal/storage"
)

// IntentView is an Intent with its address. Data is the account the
// Intent was decoded from.
type IntentView struct {
	Address address.Pubkey `json:"address"`
	Slot    uint64         `json:"slot"`
	Data    []byte         `json:"-"`
	*models.Intent
}

// MatchView is a Match with its address. Data is the account the Match
// was decoded from.
type MatchView struct {
	Address      address.Pubkey `json:"address"`
	Slot         uint64         `json:"slot"`
	ScorePercent float64        `json:"score_percent"`
	Data         []byte         `json:"-"`
	*models.Match
}

// IntentFilter narrows ListIntents. Zero values match everything.
type IntentFilter struct {
	Status   *models.IntentStatus
	Category string
	Limit    int
	Offset   int
}

// Account returns the raw account at addr.
func (l *Ledger) Account(ctx context.Context, addr address.Pubkey) (*storage.Account, error) {
	return l.store.Get(ctx, addr)
}

// getKind loads the account at addr, treating an account of another kind
// as missing.
func (l *Ledger) getKind(ctx context.Context, addr address.Pubkey, kind string) (*storage.Account, error) {
	acct, err := l.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if acct.Kind != kind {
		return nil, fmt.Errorf("ledger: %s %s: %w", kind, addr, apperr.ErrNotFound)
	}
	return acct, nil
}

// Intent returns the Intent stored at addr.
func (l *Ledger) Intent(ctx context.Context, addr address.Pubkey) (*IntentView, error) {
	acct, err := l.getKind(ctx, addr, models.KindIntent)
	if err != nil {
		return nil, err
	}
	intent, err := models.DecodeIntentAccount(acct.Data)
	if err != nil {
		return nil, fmt.Errorf("ledger: intent %s: %w", addr, err)
	}
	return &IntentView{Address: addr, Slot: acct.Slot, Data: acct.Data, Intent: intent}, nil
}

// IntentOf returns the Intent of agent, recomputing its address.
func (l *Ledger) IntentOf(ctx context.Context, agent address.Pubkey) (*IntentView, error) {
	addr, _, err := program.IntentAddress(agent, l.programID)
	if err != nil {
		return nil, err
	}
	return l.Intent(ctx, addr)
}

// Match returns the Match stored at addr.
func (l *Ledger) Match(ctx context.Context, addr address.Pubkey) (*MatchView, error) {
	acct, err := l.getKind(ctx, addr, models.KindMatch)
	if err != nil {
		return nil, err
	}
	match, err := models.DecodeMatchAccount(acct.Data)
	if err != nil {
		return nil, fmt.Errorf("ledger: match %s: %w", addr, err)
	}
	return &MatchView{Address: addr, Slot: acct.Slot, ScorePercent: match.ScorePercent(), Data: acct.Data, Match: match}, nil
}

// ListIntents returns intents matching f and the total that matched.
func (l *Ledger) ListIntents(ctx context.Context, f IntentFilter) ([]IntentView, int, error) {
	accounts, _, err := l.store.List(ctx, models.KindIntent, 0, 0)
	if err != nil {
		return nil, 0, err
	}
	var matched []IntentView
	for _, acct := range accounts {
		intent, err := models.DecodeIntentAccount(acct.Data)
		if err != nil {
			return nil, 0, fmt.Errorf("ledger: intent %s: %w", acct.Address, err)
		}
		if f.Status != nil && intent.Status != *f.Status {
			continue
		}
		if f.Category != "" && (intent.Category == nil || *intent.Category != f.Category) {
			continue
		}
		matched = append(matched, IntentView{Address: acct.Address, Slot: acct.Slot, Data: acct.Data, Intent: intent})
	}
	total := len(matched)
	start, end := storage.ClampPage(total, f.Limit, f.Offset)
	return matched[start:end], total, nil
}

// MatchesFor returns every Match linking the Intent at intent.
func (l *Ledger) MatchesFor(ctx context.Context, intent address.Pubkey) ([]MatchView, error) {
	accounts, _, err := l.store.List(ctx, models.KindMatch, 0, 0)
	if err != nil {
		return nil, err
	}
	var out []MatchView
	for _, acct := range accounts {
		m, err := models.DecodeMatchAccount(acct.Data)
		if err != nil {
			return nil, fmt.Errorf("ledger: match %s: %w", acct.Address, err)
		}
		if m.IntentA == intent || m.IntentB == intent {
			out = append(out, MatchView{Address: acct.Address, Slot: acct.Slot, ScorePercent: m.ScorePercent(), Data: acct.Data, Match: m})
		}
	}
	return out, nil
}

// Journal returns committed transactions, newest first.
func (l *Ledger) Journal(ctx context.Context, limit, offset int) ([]storage.JournalEntry, error) {
	return l.store.Journal(ctx, limit, offset)
}
