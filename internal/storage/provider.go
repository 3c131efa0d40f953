// Package storage defines the ledger's address-keyed account store.
package storage

import (
	"context"
	"fmt"

	"github.com/starford/intentmarket/internal/address"
)

// Account is one stored record. Data holds the full account bytes,
// discriminator header included.
type Account struct {
	Address address.Pubkey `cbor:"address" json:"address"`
	Owner   address.Pubkey `cbor:"owner" json:"owner"`
	Payer   address.Pubkey `cbor:"payer" json:"payer"`
	Kind    string         `cbor:"kind" json:"kind"`
	Data    []byte         `cbor:"data" json:"-"`
	Slot    uint64         `cbor:"slot" json:"slot"`
}

// Write is one account mutation in a commit. Create writes fail with
// apperr.ErrAlreadyExists if the address is allocated; updates fail with
// apperr.ErrNotFound if it is not.
type Write struct {
	Account Account
	Create  bool
}

// JournalEntry records one committed transaction.
type JournalEntry struct {
	Slot        uint64           `cbor:"slot" json:"slot"`
	Signature   string           `cbor:"signature" json:"signature"`
	Nonce       string           `cbor:"nonce" json:"nonce"`
	Instruction string           `cbor:"instruction" json:"instruction"`
	Signer      address.Pubkey   `cbor:"signer" json:"signer"`
	Accounts    []address.Pubkey `cbor:"accounts" json:"accounts"`
	Checksums   []string         `cbor:"checksums" json:"checksums"`
	Timestamp   int64            `cbor:"timestamp" json:"timestamp"`
}

// Provider is the interface for account store backends.
type Provider interface {
	// Get returns the account at addr or apperr.ErrNotFound.
	Get(ctx context.Context, addr address.Pubkey) (*Account, error)
	// List returns accounts of the given kind ordered by address, and the
	// total count. limit <= 0 means no limit.
	List(ctx context.Context, kind string, limit, offset int) ([]Account, int, error)
	// Commit applies every write and appends entry, all or nothing. It
	// fails with apperr.ErrAlreadyProcessed if entry.Signature is already
	// journalled.
	Commit(ctx context.Context, writes []Write, entry JournalEntry) error
	// Processed reports whether a transaction with signature is journalled.
	Processed(ctx context.Context, signature string) (bool, error)
	// Journal returns entries newest first.
	Journal(ctx context.Context, limit, offset int) ([]JournalEntry, error)
	// LastSlot returns the slot of the newest journal entry, 0 if empty.
	LastSlot(ctx context.Context) (uint64, error)
	Close() error
}

// Drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverFS       = "fs"
	DriverPostgres = "postgres"
)

// ClampPage converts limit/offset into slice bounds over total items.
// limit <= 0 means no limit.
func ClampPage(total, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return offset, end
}

// Options selects and configures a backend for Open.
type Options struct {
	Driver      string
	SQLitePath  string
	FSPath      string
	PostgresDSN string
}

// Open constructs the Provider named by opts.Driver.
func Open(ctx context.Context, opts Options) (Provider, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "":
		return OpenSQLite(opts.SQLitePath)
	case DriverFS:
		return NewFS(opts.FSPath)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}
