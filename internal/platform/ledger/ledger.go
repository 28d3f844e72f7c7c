// Package ledger is the single-file SQLite store behind paystubctl. It keeps
// YTD snapshots and issued verification records side by side.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"paystub/internal/domain/integrity"
	"paystub/internal/domain/money"
	"paystub/internal/domain/ytd"
)

const schema = `
CREATE TABLE IF NOT EXISTS ytd_snapshots (
  employee_id TEXT NOT NULL,
  tax_year INTEGER NOT NULL,
  periods INTEGER NOT NULL,
  totals TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (employee_id, tax_year)
);
CREATE TABLE IF NOT EXISTS verification_records (
  verification_id TEXT PRIMARY KEY,
  fingerprint TEXT NOT NULL,
  seal TEXT NOT NULL,
  key_id TEXT NOT NULL,
  issued_at TEXT NOT NULL,
  issuer TEXT NOT NULL,
  employee_id TEXT NOT NULL,
  employee_name TEXT NOT NULL,
  company_name TEXT NOT NULL,
  pay_date TEXT NOT NULL,
  net_cents INTEGER NOT NULL
);
`

type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger file at path. ":memory:" gives a private
// in-memory ledger.
func Open(ctx context.Context, path string) (*Ledger, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection serialises writers and keeps :memory: alive
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) Latest(ctx context.Context, employeeID string, year int) (ytd.Snapshot, error) {
	var raw string
	err := l.db.QueryRowContext(ctx, `
		SELECT totals FROM ytd_snapshots WHERE employee_id=? AND tax_year=?`,
		employeeID, year).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ytd.Open(employeeID, year), nil
	}
	if err != nil {
		return ytd.Snapshot{}, err
	}
	var snap ytd.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return ytd.Snapshot{}, err
	}
	return snap, nil
}

func (l *Ledger) Save(ctx context.Context, next ytd.Snapshot) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO ytd_snapshots (employee_id, tax_year, periods, totals, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (employee_id, tax_year) DO UPDATE
		SET periods = excluded.periods, totals = excluded.totals, updated_at = excluded.updated_at
		WHERE ytd_snapshots.periods = excluded.periods - 1`,
		next.EmployeeID, next.Year, next.Periods, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ytd.ErrStaleSnapshot
	}
	return nil
}

func (l *Ledger) Register(ctx context.Context, e integrity.Entry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO verification_records (
			verification_id, fingerprint, seal, key_id, issued_at, issuer,
			employee_id, employee_name, company_name, pay_date, net_cents
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID.String(), e.Fingerprint, e.Seal, e.KeyID,
		e.IssuedAt.UTC().Format(time.RFC3339Nano), e.Issuer,
		e.EmployeeID, e.EmployeeName, e.CompanyName, e.PayDate, int64(e.Net),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return integrity.ErrDuplicateID
	}
	return err
}

func (l *Ledger) Lookup(ctx context.Context, id integrity.ID) (integrity.Entry, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT verification_id, fingerprint, seal, key_id, issued_at, issuer,
		       employee_id, employee_name, company_name, pay_date, net_cents
		FROM verification_records WHERE verification_id=?`, id.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return integrity.Entry{}, integrity.ErrNotFound
	}
	return e, err
}

// List returns entries in issue order.
func (l *Ledger) List(ctx context.Context, limit, offset int) ([]integrity.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT verification_id, fingerprint, seal, key_id, issued_at, issuer,
		       employee_id, employee_name, company_name, pay_date, net_cents
		FROM verification_records ORDER BY verification_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []integrity.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (integrity.Entry, error) {
	var e integrity.Entry
	var id, issued string
	var net int64
	if err := row.Scan(&id, &e.Fingerprint, &e.Seal, &e.KeyID, &issued, &e.Issuer,
		&e.EmployeeID, &e.EmployeeName, &e.CompanyName, &e.PayDate, &net); err != nil {
		return integrity.Entry{}, err
	}
	parsed, err := integrity.ParseID(id)
	if err != nil {
		return integrity.Entry{}, err
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, issued)
	if err != nil {
		return integrity.Entry{}, err
	}
	e.ID = parsed
	e.IssuedAt = issuedAt
	e.Net = money.Cents(net)
	return e, nil
}
