package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/apperr"
	"github.com/starford/intentmarket/internal/codec"
)

const postgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
	address TEXT PRIMARY KEY,
	owner   TEXT NOT NULL,
	payer   TEXT NOT NULL,
	kind    TEXT NOT NULL DEFAULT '',
	data    BYTEA NOT NULL,
	slot    BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_accounts_kind ON accounts(kind, address);

CREATE TABLE IF NOT EXISTS journal (
	slot      BIGINT PRIMARY KEY,
	signature TEXT NOT NULL,
	entry     BYTEA NOT NULL
);

DROP INDEX IF EXISTS idx_journal_signature;
CREATE UNIQUE INDEX IF NOT EXISTS uq_journal_signature ON journal(signature);
`

// Postgres is a Provider backed by a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Provider = (*Postgres)(nil)

// OpenPostgres connects using connString and applies the schema.
func OpenPostgres(ctx context.Context, connString string) (*Postgres, error) {
	if connString == "" {
		return nil, fmt.Errorf("storage: empty postgres connection string")
	}
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("storage: parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: apply postgres schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close implements Provider.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanPGAccount(row pgx.Row) (*Account, error) {
	var (
		a                  Account
		addr, owner, payer string
		slot               int64
	)
	if err := row.Scan(&addr, &owner, &payer, &a.Kind, &a.Data, &slot); err != nil {
		return nil, err
	}
	a.Slot = uint64(slot)
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
func (p *Postgres) Get(ctx context.Context, addr address.Pubkey) (*Account, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT address, owner, payer, kind, data, slot FROM accounts WHERE address = $1`, addr.String())
	a, err := scanPGAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("storage: account %s: %w", addr, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", addr, err)
	}
	return a, nil
}

// List implements Provider.
func (p *Postgres) List(ctx context.Context, kind string, limit, offset int) ([]Account, int, error) {
	var total int
	if err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE ($1 = '' OR kind = $1)`, kind).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count accounts: %w", err)
	}
	if offset < 0 {
		offset = 0
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := p.pool.Query(ctx, `
		SELECT address, owner, payer, kind, data, slot FROM accounts
		WHERE ($1 = '' OR kind = $1)
		ORDER BY address
		LIMIT $2 OFFSET $3`, kind, lim, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanPGAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// Commit implements Provider inside a single database transaction.
func (p *Postgres) Commit(ctx context.Context, writes []Write, entry JournalEntry) error {
	blob, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("storage: encode journal entry: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, w := range writes {
		a := w.Account
		if w.Create {
			tag, err := tx.Exec(ctx, `
				INSERT INTO accounts (address, owner, payer, kind, data, slot)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (address) DO NOTHING`,
				a.Address.String(), a.Owner.String(), a.Payer.String(), a.Kind, a.Data, int64(entry.Slot))
			if err != nil {
				return fmt.Errorf("storage: create %s: %w", a.Address, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("storage: create %s: %w", a.Address, apperr.ErrAlreadyExists)
			}
			continue
		}
		tag, err := tx.Exec(ctx, `UPDATE accounts SET data = $1, slot = $2 WHERE address = $3`,
			a.Data, int64(entry.Slot), a.Address.String())
		if err != nil {
			return fmt.Errorf("storage: update %s: %w", a.Address, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("storage: update %s: %w", a.Address, apperr.ErrNotFound)
		}
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO journal (slot, signature, entry) VALUES ($1, $2, $3)
		ON CONFLICT (signature) DO NOTHING`,
		int64(entry.Slot), entry.Signature, blob)
	if err != nil {
		return fmt.Errorf("storage: append journal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: journal %s: %w", entry.Signature, apperr.ErrAlreadyProcessed)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// Processed implements Provider.
func (p *Postgres) Processed(ctx context.Context, signature string) (bool, error) {
	var ok bool
	if err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM journal WHERE signature = $1)`, signature).Scan(&ok); err != nil {
		return false, fmt.Errorf("storage: lookup signature: %w", err)
	}
	return ok, nil
}

// Journal implements Provider.
func (p *Postgres) Journal(ctx context.Context, limit, offset int) ([]JournalEntry, error) {
	if offset < 0 {
		offset = 0
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := p.pool.Query(ctx,
		`SELECT entry FROM journal ORDER BY slot DESC LIMIT $1 OFFSET $2`, lim, offset)
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
func (p *Postgres) LastSlot(ctx context.Context) (uint64, error) {
	var slot *int64
	if err := p.pool.QueryRow(ctx, `SELECT MAX(slot) FROM journal`).Scan(&slot); err != nil {
		return 0, fmt.Errorf("storage: last slot: %w", err)
	}
	if slot == nil {
		return 0, nil
	}
	return uint64(*slot), nil
}
