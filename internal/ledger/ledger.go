// Package ledger is the hosting runtime for the intent market program. It
// verifies transaction signatures, serialises execution, hands the program
// its accounts and commits the resulting writes atomically.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/checksum"
	"github.com/starford/intentmarket/internal/clock"
	"github.com/starford/intentmarket/internal/program"
	"github.com/starford/intentmarket/internal/storage"
)

// Receipt describes a committed transaction.
type Receipt struct {
	Slot        uint64        `json:"slot"`
	Signature   string        `json:"signature"`
	Instruction string        `json:"instruction"`
	Timestamp   int64         `json:"timestamp"`
	Event       program.Event `json:"event"`
}

// Notifier is called after every commit, outside the ledger lock.
type Notifier func(Receipt)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source stamped into records.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithProgramID sets the program id that owns every record.
func WithProgramID(id address.Pubkey) Option {
	return func(l *Ledger) { l.programID = id }
}

// WithMatchOwner sets the match ownership policy.
func WithMatchOwner(p program.OwnerPolicy) Option {
	return func(l *Ledger) { l.matchOwner = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithNotifier registers a commit callback.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifiers = append(l.notifiers, n) }
}

// Ledger executes transactions against a storage.Provider.
type Ledger struct {
	store      storage.Provider
	clock      clock.Clock
	programID  address.Pubkey
	matchOwner program.OwnerPolicy
	logger     *slog.Logger
	notifiers  []Notifier

	// mu is the exclusive transaction lock: one transaction reads and
	// commits at a time.
	mu sync.Mutex
}

// New creates a Ledger over store.
func New(store storage.Provider, opts ...Option) *Ledger {
	l := &Ledger{
		store:      store,
		clock:      clock.Real(),
		programID:  program.DefaultID,
		matchOwner: program.OwnerIntentA,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ProgramID returns the id of the program this ledger runs.
func (l *Ledger) ProgramID() address.Pubkey {
	return l.programID
}

// Submit verifies, executes and commits tx. On any error nothing is
// written; the caller may resubmit.
func (l *Ledger) Submit(ctx context.Context, tx *Transaction) (*Receipt, error) {
	if err := tx.Verify(); err != nil {
		l.reject(tx, err)
		return nil, err
	}

	receipt, err := l.execute(ctx, tx)
	if err != nil {
		l.reject(tx, err)
		return nil, err
	}

	l.logger.Info("ledger: committed",
		slog.Uint64("slot", receipt.Slot),
		slog.String("instruction", receipt.Instruction),
		slog.String("signer", tx.Message.Signer.String()),
		slog.String("address", receipt.Event.Address.String()))
	for _, n := range l.notifiers {
		n(*receipt)
	}
	return receipt, nil
}

func (l *Ledger) execute(ctx context.Context, tx *Transaction) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// A signature commits at most once.
	seen, err := l.store.Processed(ctx, tx.ID())
	if err != nil {
		return nil, fmt.Errorf("ledger: lookup signature: %w", err)
	}
	if seen {
		return nil, fmt.Errorf("ledger: %s: %w", tx.Message.Instruction, apperr.ErrAlreadyProcessed)
	}

	now := l.clock.Now()
	env := program.Env{
		ProgramID:  l.programID,
		Signer:     tx.Message.Signer,
		Now:        now,
		Loader:     l.store,
		MatchOwner: l.matchOwner,
	}
	res, err := program.Dispatch(ctx, env, tx.Message.Instruction, tx.Message.Accounts, tx.Message.Args)
	if err != nil {
		return nil, err
	}

	last, err := l.store.LastSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: read last slot: %w", err)
	}
	entry := storage.JournalEntry{
		Slot:        last + 1,
		Signature:   tx.ID(),
		Nonce:       tx.Message.Nonce,
		Instruction: tx.Message.Instruction,
		Signer:      tx.Message.Signer,
		Accounts:    tx.Message.Accounts,
		Timestamp:   now.Unix(),
	}
	for _, w := range res.Writes {
		entry.Checksums = append(entry.Checksums, checksum.Sum(w.Account.Data))
	}
	if err := l.store.Commit(ctx, res.Writes, entry); err != nil {
		return nil, fmt.Errorf("ledger: commit: %w", err)
	}

	return &Receipt{
		Slot:        entry.Slot,
		Signature:   entry.Signature,
		Instruction: entry.Instruction,
		Timestamp:   entry.Timestamp,
		Event:       res.Event,
	}, nil
}

func (l *Ledger) reject(tx *Transaction, err error) {
	attrs := []any{
		slog.String("instruction", tx.Message.Instruction),
		slog.String("signer", tx.Message.Signer.String()),
		slog.String("error", err.Error()),
	}
	if code, ok := apperr.Code(err); ok {
		attrs = append(attrs, slog.Uint64("code", uint64(code)))
	}
	l.logger.Warn("ledger: rejected", attrs...)
}
