package storage

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
)

// Memory is an in-process Provider. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	accounts map[address.Pubkey]Account
	journal  []JournalEntry
	sigs     map[string]struct{}
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[address.Pubkey]Account),
		sigs:     make(map[string]struct{}),
	}
}

var _ Provider = (*Memory)(nil)

func cloneAccount(a Account) Account {
	a.Data = bytes.Clone(a.Data)
	return a
}

// Get implements Provider.
func (m *Memory) Get(_ context.Context, addr address.Pubkey) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("storage: account %s: %w", addr, apperr.ErrNotFound)
	}
	out := cloneAccount(a)
	return &out, nil
}

// List implements Provider.
func (m *Memory) List(_ context.Context, kind string, limit, offset int) ([]Account, int, error) {
	m.mu.RLock()
	var all []Account
	for _, a := range m.accounts {
		if kind == "" || a.Kind == kind {
			all = append(all, cloneAccount(a))
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(all, func(x, y Account) int { return bytes.Compare(x.Address[:], y.Address[:]) })
	start, end := ClampPage(len(all), limit, offset)
	return all[start:end], len(all), nil
}

// Commit implements Provider. Every write is checked before any is applied.
func (m *Memory) Commit(_ context.Context, writes []Write, entry JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.sigs[entry.Signature]; seen {
		return fmt.Errorf("storage: journal %s: %w", entry.Signature, apperr.ErrAlreadyProcessed)
	}
	for _, w := range writes {
		_, exists := m.accounts[w.Account.Address]
		if w.Create && exists {
			return fmt.Errorf("storage: create %s: %w", w.Account.Address, apperr.ErrAlreadyExists)
		}
		if !w.Create && !exists {
			return fmt.Errorf("storage: update %s: %w", w.Account.Address, apperr.ErrNotFound)
		}
	}
	for _, w := range writes {
		a := cloneAccount(w.Account)
		a.Slot = entry.Slot
		m.accounts[a.Address] = a
	}
	m.journal = append(m.journal, entry)
	m.sigs[entry.Signature] = struct{}{}
	return nil
}

// Processed implements Provider.
func (m *Memory) Processed(_ context.Context, signature string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sigs[signature]
	return ok, nil
}

// Journal implements Provider.
func (m *Memory) Journal(_ context.Context, limit, offset int) ([]JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]JournalEntry, len(m.journal))
	for i, e := range m.journal {
		out[len(out)-1-i] = e
	}
	start, end := ClampPage(len(out), limit, offset)
	return out[start:end], nil
}

// LastSlot implements Provider.
func (m *Memory) LastSlot(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.journal) == 0 {
		return 0, nil
	}
	return m.journal[len(m.journal)-1].Slot, nil
}

// Close implements Provider.
func (m *Memory) Close() error { return nil }
