package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/codec"
)

const (
	accountsDir = "accounts"
	journalDir  = "journal"
	accountExt  = ".acct"
	journalExt  = ".cbor"
)

// FS is a Provider that keeps one CBOR file per account under a root
// directory, plus one file per journal entry.
//
// Journalled signatures are indexed in memory when the store is opened.
//
// Writes are individually atomic (temp file, fsync, rename). A commit
// validates every write before touching disk; a crash between two renames
// of the same commit can leave the earlier one applied.
type FS struct {
	root string
	mu   sync.RWMutex
	sigs map[string]struct{}
}

var _ Provider = (*FS)(nil)

// NewFS creates the directory layout under root if needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	for _, dir := range []string{accountsDir, journalDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("storage: mkdir %s: %w", dir, err)
		}
	}
	f := &FS{root: abs, sigs: make(map[string]struct{})}
	if err := f.indexSignatures(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FS) indexSignatures() error {
	names, err := f.journalNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		e, err := f.readJournal(name)
		if err != nil {
			return err
		}
		f.sigs[e.Signature] = struct{}{}
	}
	return nil
}

func (f *FS) readJournal(name string) (*JournalEntry, error) {
	data, err := os.ReadFile(filepath.Join(f.root, journalDir, name))
	if err != nil {
		return nil, fmt.Errorf("storage: read journal: %w", err)
	}
	var e JournalEntry
	if err := codec.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("storage: decode journal %s: %w", name, err)
	}
	return &e, nil
}

func (f *FS) accountPath(addr address.Pubkey) string {
	return filepath.Join(f.root, accountsDir, addr.String()+accountExt)
}

func (f *FS) journalPath(slot uint64) string {
	return filepath.Join(f.root, journalDir, fmt.Sprintf("%020d%s", slot, journalExt))
}

func (f *FS) readAccount(path string) (*Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Account
	if err := codec.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", filepath.Base(path), err)
	}
	return &a, nil
}

// Get implements Provider.
func (f *FS) Get(_ context.Context, addr address.Pubkey) (*Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	a, err := f.readAccount(f.accountPath(addr))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("storage: account %s: %w", addr, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", addr, err)
	}
	return a, nil
}

// List implements Provider.
func (f *FS) List(_ context.Context, kind string, limit, offset int) ([]Account, int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entries, err := os.ReadDir(filepath.Join(f.root, accountsDir))
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list: %w", err)
	}
	var all []Account
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), accountExt) {
			continue
		}
		a, err := f.readAccount(filepath.Join(f.root, accountsDir, e.Name()))
		if err != nil {
			return nil, 0, err
		}
		if kind == "" || a.Kind == kind {
			all = append(all, *a)
		}
	}
	slices.SortFunc(all, func(x, y Account) int { return bytes.Compare(x.Address[:], y.Address[:]) })
	start, end := ClampPage(len(all), limit, offset)
	return all[start:end], len(all), nil
}

// Commit implements Provider.
func (f *FS) Commit(_ context.Context, writes []Write, entry JournalEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.sigs[entry.Signature]; seen {
		return fmt.Errorf("storage: journal %s: %w", entry.Signature, apperr.ErrAlreadyProcessed)
	}
	encoded := make([][]byte, len(writes))
	for i, w := range writes {
		_, err := os.Stat(f.accountPath(w.Account.Address))
		exists := err == nil
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("storage: stat %s: %w", w.Account.Address, err)
		}
		if w.Create && exists {
			return fmt.Errorf("storage: create %s: %w", w.Account.Address, apperr.ErrAlreadyExists)
		}
		if !w.Create && !exists {
			return fmt.Errorf("storage: update %s: %w", w.Account.Address, apperr.ErrNotFound)
		}
		a := w.Account
		a.Slot = entry.Slot
		if encoded[i], err = codec.Marshal(a); err != nil {
			return fmt.Errorf("storage: encode %s: %w", a.Address, err)
		}
	}
	blob, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("storage: encode journal entry: %w", err)
	}

	for i, w := range writes {
		if err := writeAtomic(f.accountPath(w.Account.Address), encoded[i]); err != nil {
			return err
		}
	}
	if err := writeAtomic(f.journalPath(entry.Slot), blob); err != nil {
		return err
	}
	f.sigs[entry.Signature] = struct{}{}
	return nil
}

// Processed implements Provider.
func (f *FS) Processed(_ context.Context, signature string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.sigs[signature]
	return ok, nil
}

// Journal implements Provider.
func (f *FS) Journal(_ context.Context, limit, offset int) ([]JournalEntry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names, err := f.journalNames()
	if err != nil {
		return nil, err
	}
	slices.Reverse(names)
	start, end := ClampPage(len(names), limit, offset)
	out := make([]JournalEntry, 0, end-start)
	for _, name := range names[start:end] {
		e, err := f.readJournal(name)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

// LastSlot implements Provider.
func (f *FS) LastSlot(ctx context.Context) (uint64, error) {
	latest, err := f.Journal(ctx, 1, 0)
	if err != nil || len(latest) == 0 {
		return 0, err
	}
	return latest[0].Slot, nil
}

// journalNames returns journal file names in slot order; the zero-padded
// names sort lexically.
func (f *FS) journalNames() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.root, journalDir))
	if err != nil {
		return nil, fmt.Errorf("storage: list journal: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), journalExt) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Close implements Provider.
func (f *FS) Close() error { return nil }

// writeAtomic writes content via tmp file → fsync → rename.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".intentmarket-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
