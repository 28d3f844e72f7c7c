package integrity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"paystub/internal/domain/money"
	"paystub/internal/platform/querier"
)

// Store is the Postgres ledger of issued verification records.
type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) Register(ctx context.Context, e Entry) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO verification_records
      (verification_id, fingerprint, seal, key_id, issued_at, issuer, employee_id, employee_name, company_name, pay_date, net_cents)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
  `, e.ID.String(), e.Fingerprint, e.Seal, e.KeyID, e.IssuedAt, e.Issuer,
		e.EmployeeID, e.EmployeeName, e.CompanyName, e.PayDate, int64(e.Net))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateID
	}
	return err
}

func (s *Store) Lookup(ctx context.Context, id ID) (Entry, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT verification_id, fingerprint, seal, key_id, issued_at, issuer,
           employee_id, employee_name, company_name, pay_date, net_cents
    FROM verification_records
    WHERE verification_id = $1
  `, id.String())
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.DB.Query(ctx, `
    SELECT verification_id, fingerprint, seal, key_id, issued_at, issuer,
           employee_id, employee_name, company_name, pay_date, net_cents
    FROM verification_records
    ORDER BY verification_id
    LIMIT $1 OFFSET $2
  `, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var id string
	var net int64
	if err := row.Scan(&id, &e.Fingerprint, &e.Seal, &e.KeyID, &e.IssuedAt, &e.Issuer,
		&e.EmployeeID, &e.EmployeeName, &e.CompanyName, &e.PayDate, &net); err != nil {
		return Entry{}, err
	}
	parsed, err := ParseID(id)
	if err != nil {
		return Entry{}, err
	}
	e.ID = parsed
	e.Net = money.Cents(net)
	return e, nil
}
