package ytd

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"paystub/internal/platform/querier"
)

// StoreAPI persists snapshots between pay records.
type StoreAPI interface {
	// Latest returns the newest snapshot, or an opened empty one when the
	// employee has no record for the year yet.
	Latest(ctx context.Context, employeeID string, year int) (Snapshot, error)
	// Save stores next only if it directly follows the stored snapshot.
	Save(ctx context.Context, next Snapshot) error
}

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) Latest(ctx context.Context, employeeID string, year int) (Snapshot, error) {
	var raw []byte
	err := s.DB.QueryRow(ctx, `
    SELECT totals
    FROM ytd_snapshots
    WHERE employee_id = $1 AND tax_year = $2
  `, employeeID, year).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Open(employeeID, year), nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) Save(ctx context.Context, next Snapshot) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO ytd_snapshots (employee_id, tax_year, periods, totals, updated_at)
    VALUES ($1,$2,$3,$4,now())
    ON CONFLICT (employee_id, tax_year) DO UPDATE
    SET periods = EXCLUDED.periods, totals = EXCLUDED.totals, updated_at = now()
    WHERE ytd_snapshots.periods = EXCLUDED.periods - 1
  `, next.EmployeeID, next.Year, next.Periods, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleSnapshot
	}
	return nil
}
