// Package testutil provides shared test helpers for setting up keys, stores
// and ledgers.
package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/clock"
	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/storage"
)

// Epoch is the fake clock's starting time.
var Epoch = time.Unix(1_700_000_000, 0)

// TestKey returns a deterministic Ed25519 key and its agent id for name.
func TestKey(t *testing.T, name string) (ed25519.PrivateKey, address.Pubkey) {
	t.Helper()
	seed := sha256.Sum256([]byte(name))
	key := ed25519.NewKeyFromSeed(seed[:])
	agent, err := address.FromPublicKey(key.Public().(ed25519.PublicKey))
	if err != nil {
		t.Fatal(err)
	}
	return key, agent
}

// TestDB creates a temporary SQLite store that is automatically closed.
func TestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "intentmarket-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLedger creates a Ledger over an in-memory store with a fake clock
// frozen at Epoch.
func TestLedger(t *testing.T, opts ...ledger.Option) (*ledger.Ledger, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(Epoch)
	opts = append([]ledger.Option{ledger.WithClock(clk)}, opts...)
	return ledger.New(storage.NewMemory(), opts...), clk
}
