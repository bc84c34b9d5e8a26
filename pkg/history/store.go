package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/insyncby/insync/pkg/history/migrations"

	_ "modernc.org/sqlite"
)

// Store is the local sqlite copy of the transaction history. Unlike the
// credential store it holds its handle open; a reconciliation run touches
// it continuously.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the history database and applies any
// pending migrations.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dsn, err)
	}

	s := &Store{db: db}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate %s: %w", dsn, err)
	}
	return s, nil
}

// applyMigrations applies the embedded schema migrations.
func (s *Store) applyMigrations() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", src, "", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Upsert stores one transaction, replacing any previous copy with the same
// id.
func (s *Store) Upsert(ctx context.Context, tx Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, title, tx_date, type_code, amount, currency, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title     = excluded.title,
			tx_date   = excluded.tx_date,
			type_code = excluded.type_code,
			amount    = excluded.amount,
			currency  = excluded.currency,
			raw       = excluded.raw`,
		tx.ID, tx.Title, tx.Date, tx.TypeCode, tx.Amount, tx.Currency, []byte(tx.Raw))
	if err != nil {
		return fmt.Errorf("history: upsert %s: %w", tx.ID, err)
	}
	return nil
}

// Clear drops all stored transactions. Reload calls it before a full pull.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// Count reports the number of stored transactions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

// Transactions returns all stored transactions ordered by date, newest
// first.
func (s *Store) Transactions(ctx context.Context) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, tx_date, type_code, amount, currency, raw
		FROM transactions
		ORDER BY tx_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var tx Transaction
		var raw []byte
		if err := rows.Scan(&tx.ID, &tx.Title, &tx.Date, &tx.TypeCode, &tx.Amount, &tx.Currency, &raw); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		tx.Raw = raw
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
