package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paystub/internal/domain/integrity"
	"paystub/internal/domain/money"
	"paystub/internal/domain/ytd"
)

func openMemory(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func entry(t *testing.T, gen *integrity.Generator, employee string) integrity.Entry {
	t.Helper()
	id, err := gen.New()
	require.NoError(t, err)
	return integrity.Entry{
		Record: integrity.Record{
			ID:          id,
			Fingerprint: "f0e1d2c3b4a5968778695a4b3c2d1e0ff0e1d2c3b4a5968778695a4b3c2d1e0f",
			Seal:        "0a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f9",
			KeyID:       "2025-01",
			IssuedAt:    id.Time(),
			Issuer:      "Acme Payroll Services",
		},
		EmployeeID:   employee,
		EmployeeName: "Renée Dubois",
		CompanyName:  "Café Nord",
		PayDate:      "2025-06-30",
		Net:          money.Cents(312345),
	}
}

func TestSnapshotsAdvanceOptimistically(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)

	first, err := l.Latest(ctx, "E-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, ytd.Open("E-1", 2025), first)

	next := first
	next.Periods = 1
	next.Gross = 500000
	next.Earnings = map[string]money.Cents{"salary": 500000}
	require.NoError(t, l.Save(ctx, next))

	got, err := l.Latest(ctx, "E-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	// a writer that read the same opening snapshot loses
	stale := first
	stale.Periods = 1
	stale.Gross = 1
	assert.ErrorIs(t, l.Save(ctx, stale), ytd.ErrStaleSnapshot)

	second := got
	second.Periods = 2
	second.Gross = 1000000
	require.NoError(t, l.Save(ctx, second))

	other, err := l.Latest(ctx, "E-1", 2026)
	require.NoError(t, err)
	assert.Zero(t, other.Periods)
}

func TestRegisterLookupAndList(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)
	gen := integrity.NewGenerator()

	a := entry(t, gen, "E-1")
	b := entry(t, gen, "E-2")
	require.NoError(t, l.Register(ctx, b))
	require.NoError(t, l.Register(ctx, a))

	got, err := l.Lookup(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	assert.ErrorIs(t, l.Register(ctx, a), integrity.ErrDuplicateID)

	missing, err := gen.New()
	require.NoError(t, err)
	_, err = l.Lookup(ctx, missing)
	assert.ErrorIs(t, err, integrity.ErrNotFound)

	all, err := l.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID, "entries list in issue order")

	page, err := l.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, b.ID, page[0].ID)
}

func TestLedgerFilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(ctx, path)
	require.NoError(t, err)
	e := entry(t, integrity.NewGenerator(), "E-9")
	require.NoError(t, l.Register(ctx, e))
	require.NoError(t, l.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Lookup(ctx, e.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, e.IssuedAt, got.IssuedAt, time.Millisecond)
	assert.Equal(t, e.Seal, got.Seal)
}
