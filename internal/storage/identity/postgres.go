package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/newthinker/nextsignal/internal/core"
)

var validTable = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresStore keeps identities in a table with columns id and user_id.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore connects to dsn and pings the server.
func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if table == "" {
		table = "users"
	}
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresStore{pool: pool, table: table}, nil
}

// Close releases the pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// Migrate creates the table when missing.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	user_id    TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, p.table))
	if err != nil {
		return fmt.Errorf("pg.Migrate: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, authUserID string) (id string, err error) {
	defer func() {
		if err != nil && !errors.Is(err, core.ErrIdentityNotFound) {
			err = fmt.Errorf("pg.Get: %w", err)
		}
	}()

	var displayID *string
	err = p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT user_id FROM %s WHERE id = $1`, p.table), authUserID,
	).Scan(&displayID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && (displayID == nil || *displayID == "")) {
		return "", core.ErrIdentityNotFound
	}
	if err != nil {
		return "", err
	}
	return *displayID, nil
}

func (p *PostgresStore) Set(ctx context.Context, authUserID, displayID string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Set: %w", err)
		}
	}()

	return p.runTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, user_id) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, updated_at = now()`, p.table),
			authUserID, displayID)
		return err
	})
}

// Claim sets the display id only when the row has none yet.
func (p *PostgresStore) Claim(ctx context.Context, authUserID, displayID string) (err error) {
	defer func() {
		if err != nil && !errors.Is(err, core.ErrIdentityTaken) {
			err = fmt.Errorf("pg.Claim: %w", err)
		}
	}()

	return p.runTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %[1]s (id, user_id) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, updated_at = now()
WHERE %[1]s.user_id IS NULL OR %[1]s.user_id = ''`, p.table),
			authUserID, displayID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return core.ErrIdentityTaken
		}
		return nil
	})
}

// Count returns the number of accounts with a display id.
func (p *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE user_id IS NOT NULL AND user_id <> ''`, p.table),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pg.Count: %w", err)
	}
	return n, nil
}

// runTx runs fn in a read-committed transaction.
func (p *PostgresStore) runTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	return fn(ctx, tx)
}
