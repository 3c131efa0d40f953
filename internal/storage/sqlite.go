package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/codec"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
	address TEXT PRIMARY KEY,
	owner   TEXT NOT NULL,
	payer   TEXT NOT NULL,
	kind    TEXT NOT NULL DEFAULT '',
	data    BLOB NOT NULL,
	slot    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_accounts_kind ON accounts(kind, address);

CREATE TABLE IF NOT EXISTS journal (
	slot      INTEGER PRIMARY KEY,
	signature TEXT NOT NULL,
	entry     BLOB NOT NULL
);

DROP INDEX IF EXISTS idx_journal_signature;
CREATE UNIQUE INDEX IF NOT EXISTS uq_journal_signature ON journal(signature);
`

// SQLite is a Provider backed by a SQLite database file.
type SQLite struct {
	conn *sql.DB
}

var _ Provider = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	if _, err := conn.Exec(sqliteSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply sqlite schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close implements Provider.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a                  Account
		addr, owner, payer string
	)
	if err := row.Scan(&addr, &owner, &payer, &a.Kind, &a.Data, &a.Slot); err != nil {
		return nil, err
	}
	var err error
	if a.Address, err = address.Parse(addr); err != nil {
		return nil, err
	}
	if a.Owner, err = address.Parse(owner); err != nil {
		return nil, err
	}
	if a.Payer, err = address.Parse(payer); err != nil {
		return nil, err
	}
	return &a, nil
}

// Get implements Provider.
func (s *SQLite) Get(ctx context.Context, addr address.Pubkey) (*Account, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT address, owner, payer, kind, data, slot FROM accounts WHERE address = ?`, addr.String())
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage: account %s: %w", addr, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", addr, err)
	}
	return a, nil
}

// List implements Provider.
func (s *SQLite) List(ctx context.Context, kind string, limit, offset int) ([]Account, int, error) {
	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE (? = '' OR kind = ?)`, kind, kind).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count accounts: %w", err)
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT address, owner, payer, kind, data, slot FROM accounts
		WHERE (? = '' OR kind = ?)
		ORDER BY address
		LIMIT ? OFFSET ?`, kind, kind, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// Commit implements Provider inside a single SQL transaction.
func (s *SQLite) Commit(ctx context.Context, writes []Write, entry JournalEntry) error {
	blob, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("storage: encode journal entry: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, w := range writes {
		a := w.Account
		var res sql.Result
		if w.Create {
			res, err = tx.ExecContext(ctx, `
				INSERT INTO accounts (address, owner, payer, kind, data, slot)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(address) DO NOTHING`,
				a.Address.String(), a.Owner.String(), a.Payer.String(), a.Kind, a.Data, entry.Slot)
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE accounts SET data = ?, slot = ? WHERE address = ?`,
				a.Data, entry.Slot, a.Address.String())
		}
		if err != nil {
			return fmt.Errorf("storage: write %s: %w", a.Address, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("storage: write %s: %w", a.Address, err)
		}
		if n == 0 && w.Create {
			return fmt.Errorf("storage: create %s: %w", a.Address, apperr.ErrAlreadyExists)
		}
		if n == 0 {
			return fmt.Errorf("storage: update %s: %w", a.Address, apperr.ErrNotFound)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO journal (slot, signature, entry) VALUES (?, ?, ?)
		ON CONFLICT(signature) DO NOTHING`,
		entry.Slot, entry.Signature, blob)
	if err != nil {
		return fmt.Errorf("storage: append journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: append journal: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage: journal %s: %w", entry.Signature, apperr.ErrAlreadyProcessed)
	}
	return tx.Commit()
}

// Processed implements Provider.
func (s *SQLite) Processed(ctx context.Context, signature string) (bool, error) {
	var ok bool
	if err := s.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM journal WHERE signature = ?)`, signature).Scan(&ok); err != nil {
		return false, fmt.Errorf("storage: lookup signature: %w", err)
	}
	return ok, nil
}

// Journal implements Provider.
func (s *SQLite) Journal(ctx context.Context, limit, offset int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT entry FROM journal ORDER BY slot DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("storage: journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var e JournalEntry
		if err := codec.Unmarshal(blob, &e); err != nil {
			return nil, fmt.Errorf("storage: decode journal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastSlot implements Provider.
func (s *SQLite) LastSlot(ctx context.Context) (uint64, error) {
	var slot sql.NullInt64
	if err := s.conn.QueryRowContext(ctx, `SELECT MAX(slot) FROM journal`).Scan(&slot); err != nil {
		return 0, fmt.Errorf("storage: last slot: %w", err)
	}
	return uint64(slot.Int64), nil
}
