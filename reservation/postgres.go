package reservation

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRegistry implements Registry using a PostgreSQL table.
//
// The driver is chosen by the caller (lib/pq, pgx stdlib, ...).
//
// Table Schema:
//
//	CREATE TABLE kewtag_codes (
//	    code VARCHAR(64) PRIMARY KEY,
//	    reserved_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
//	);
//
// Example:
//
//	db, _ := sql.Open("postgres", connString)
//	reg := reservation.NewPostgresRegistry(db)
type PostgresRegistry struct {
	db    *sql.DB
	table string
}

// NewPostgresRegistry creates a registry on the kewtag_codes table.
func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db, table: "kewtag_codes"}
}

// WithTable sets a custom table name.
func (r *PostgresRegistry) WithTable(table string) *PostgresRegistry {
	r.table = table
	return r
}

// Reserve inserts code, reporting false when the row already exists.
func (r *PostgresRegistry) Reserve(ctx context.Context, code string) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (code) VALUES ($1) ON CONFLICT (code) DO NOTHING`, r.table)
	res, err := r.db.ExecContext(ctx, query, code)
	if err != nil {
		return false, fmt.Errorf("insert code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Release deletes the reservation row.
func (r *PostgresRegistry) Release(ctx context.Context, code string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE code = $1`, r.table)
	if _, err := r.db.ExecContext(ctx, query, code); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

// Exists reports whether a reservation row exists.
func (r *PostgresRegistry) Exists(ctx context.Context, code string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE code = $1)`, r.table)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("query code: %w", err)
	}
	return exists, nil
}

// Compile-time check
var _ Registry = (*PostgresRegistry)(nil)

// CreateTable creates the reservation table if it doesn't exist.
func (r *PostgresRegistry) CreateTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			code VARCHAR(64) PRIMARY KEY,
			reserved_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`, r.table)
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}
