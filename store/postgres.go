package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rbaliyan/kewtag"
)

// PostgresStore implements Store using PostgreSQL.
//
// The driver is chosen by the caller (lib/pq, pgx stdlib, ...). Ids come
// from a per-kind counter row, so they are dense and increasing.
//
// Table Schema:
//
//	CREATE TABLE kewtag_records (
//	    kind TEXT NOT NULL,
//	    id BIGINT NOT NULL,
//	    code TEXT NOT NULL,
//	    name TEXT NOT NULL,
//	    category TEXT NOT NULL DEFAULT '',
//	    status TEXT NOT NULL DEFAULT '',
//	    condition TEXT NOT NULL DEFAULT '',
//	    location TEXT NOT NULL DEFAULT '',
//	    unit TEXT NOT NULL DEFAULT '',
//	    quantity BIGINT NOT NULL DEFAULT 0,
//	    unit_price NUMERIC(14,2),
//	    attributes JSONB,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (kind, id),
//	    UNIQUE (kind, code)
//	);
//	CREATE TABLE kewtag_records_counters (
//	    kind TEXT PRIMARY KEY,
//	    seq BIGINT NOT NULL
//	);
//
// Example:
//
//	db, _ := sql.Open("postgres", connString)
//	st := store.NewPostgresStore(db)
//	if err := st.CreateTable(ctx); err != nil {
//	    return err
//	}
type PostgresStore struct {
	db    *sql.DB
	table string
	opts  *storeOptions
}

// NewPostgresStore creates a PostgreSQL store on the kewtag_records table.
// The database handle is owned by the caller.
func NewPostgresStore(db *sql.DB, opts ...Option) *PostgresStore {
	return &PostgresStore{
		db:    db,
		table: "kewtag_records",
		opts:  applyOptions(opts),
	}
}

// WithTableName sets a custom table name. The counter table is named
// {table}_counters.
func (s *PostgresStore) WithTableName(table string) *PostgresStore {
	s.table = table
	return s
}

const pgColumns = `kind, id, code, name, category, status, condition, location, unit,
		quantity, unit_price, attributes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new record.
func (s *PostgresStore) Create(ctx context.Context, r *Record) (*Record, error) {
	rec, err := s.opts.prepareCreate(r)
	if err != nil {
		return nil, err
	}
	attrs, err := marshalAttributes(rec.Attributes)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	counterQuery := fmt.Sprintf(`
		INSERT INTO %s_counters (kind, seq) VALUES ($1, 1)
		ON CONFLICT (kind) DO UPDATE SET seq = %s_counters.seq + 1
		RETURNING seq
	`, s.table, s.table)
	if err := tx.QueryRowContext(ctx, counterQuery, string(rec.Kind)).Scan(&rec.ID); err != nil {
		return nil, fmt.Errorf("next id: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (kind, code) DO NOTHING
	`, s.table, pgColumns)
	res, err := tx.ExecContext(ctx, insert,
		string(rec.Kind), rec.ID, rec.Code, rec.Name,
		rec.Category, rec.Status, rec.Condition, rec.Location, rec.Unit,
		rec.Quantity, nullString(rec.UnitPrice), attrs, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// Get retrieves a record by kind and id.
func (s *PostgresStore) Get(ctx context.Context, kind kewtag.Kind, id int64) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE kind = $1 AND id = $2`, pgColumns, s.table)
	return s.scanOne(s.db.QueryRowContext(ctx, query, string(kind), id))
}

// GetByCode retrieves a record by kind and code.
func (s *PostgresStore) GetByCode(ctx context.Context, kind kewtag.Kind, code string) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE kind = $1 AND code = $2`, pgColumns, s.table)
	return s.scanOne(s.db.QueryRowContext(ctx, query, string(kind), code))
}

// Update applies a patch to an existing record inside a transaction.
func (s *PostgresStore) Update(ctx context.Context, kind kewtag.Kind, id int64, p Patch) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE kind = $1 AND id = $2 FOR UPDATE`, pgColumns, s.table)
	cur, err := s.scanOne(tx.QueryRowContext(ctx, query, string(kind), id))
	if err != nil {
		return nil, err
	}
	next, err := p.Apply(cur, s.opts.now())
	if err != nil {
		return nil, err
	}

	if next.Code != cur.Code {
		var taken bool
		check := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE kind = $1 AND code = $2)`, s.table)
		if err := tx.QueryRowContext(ctx, check, string(kind), next.Code).Scan(&taken); err != nil {
			return nil, fmt.Errorf("check code: %w", err)
		}
		if taken {
			return nil, ErrConflict
		}
	}

	attrs, err := marshalAttributes(next.Attributes)
	if err != nil {
		return nil, err
	}
	update := fmt.Sprintf(`
		UPDATE %s SET code = $3, name = $4, category = $5, status = $6, condition = $7,
			location = $8, unit = $9, quantity = $10, unit_price = $11, attributes = $12,
			updated_at = $13
		WHERE kind = $1 AND id = $2
	`, s.table)
	_, err = tx.ExecContext(ctx, update,
		string(kind), id, next.Code, next.Name, next.Category, next.Status, next.Condition,
		next.Location, next.Unit, next.Quantity, nullString(next.UnitPrice), attrs, next.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// Delete removes a record.
func (s *PostgresStore) Delete(ctx context.Context, kind kewtag.Kind, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE kind = $1 AND id = $2`, s.table)
	res, err := s.db.ExecContext(ctx, query, string(kind), id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a page of records matching the filter.
func (s *PostgresStore) List(ctx context.Context, f Filter) (*Page, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	query, countQuery, args := buildPgListQuery(s.table, f)

	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &Page{
		Records: records,
		Total:   total,
		HasMore: int64(f.Offset+len(records)) < total,
	}, nil
}

// Close is a no-op; the database handle is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}

// CreateTable creates the record and counter tables if they don't exist.
//
// This is a convenience method for development and testing. In production,
// you should manage schema migrations separately.
func (s *PostgresStore) CreateTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			kind TEXT NOT NULL,
			id BIGINT NOT NULL,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			condition TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			quantity BIGINT NOT NULL DEFAULT 0,
			unit_price NUMERIC(14,2),
			attributes JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (kind, id),
			UNIQUE (kind, code)
		);
		CREATE TABLE IF NOT EXISTS %s_counters (
			kind TEXT PRIMARY KEY,
			seq BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_category ON %s(category);
		CREATE INDEX IF NOT EXISTS idx_%s_status ON %s(status);
		CREATE INDEX IF NOT EXISTS idx_%s_location ON %s(location);
	`, s.table, s.table,
		s.table, s.table,
		s.table, s.table,
		s.table, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func buildPgListQuery(table string, f Filter) (query, countQuery string, args []any) {
	var conditions []string
	argNum := 1

	add := func(column, value string) {
		if value == "" {
			return
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, argNum))
		args = append(args, value)
		argNum++
	}
	add("kind", string(f.Kind))
	add("category", f.Category)
	add("status", f.Status)
	add("condition", f.Condition)
	add("location", f.Location)

	if f.Query != "" {
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+escapeLike(f.Query)+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	dir := "ASC"
	if f.OrderDesc {
		dir = "DESC"
	}
	var orderBy []string
	switch f.SortBy {
	case SortByCode:
		orderBy = append(orderBy, "code "+dir)
	case SortByName:
		orderBy = append(orderBy, "name "+dir)
	case SortByCreatedAt:
		orderBy = append(orderBy, "created_at "+dir)
	}
	orderBy = append(orderBy, "kind "+dir, "id "+dir)

	query = fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY %s LIMIT %d OFFSET %d`,
		pgColumns, table, whereClause, strings.Join(orderBy, ", "), f.EffectiveLimit(), f.Offset)
	countQuery = fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, table, whereClause)
	return query, countQuery, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *PostgresStore) scanOne(row *sql.Row) (*Record, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return rec, nil
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var kind string
	var unitPrice sql.NullString
	var attrs []byte

	err := row.Scan(
		&kind, &rec.ID, &rec.Code, &rec.Name,
		&rec.Category, &rec.Status, &rec.Condition, &rec.Location, &rec.Unit,
		&rec.Quantity, &unitPrice, &attrs, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Kind = kewtag.Kind(kind)
	if unitPrice.Valid {
		rec.UnitPrice = unitPrice.String
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return &rec, nil
}

// marshalAttributes returns the JSONB text for attrs, or nil for SQL NULL.
func marshalAttributes(attrs map[string]string) (*string, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	return nullString(string(data)), nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time check
var _ Store = (*PostgresStore)(nil)
