package paystub

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paystub/internal/domain/integrity"
	"paystub/internal/domain/jurisdiction"
	"paystub/internal/domain/money"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/render"
	"paystub/internal/domain/tax"
	"paystub/internal/domain/theme"
	"paystub/internal/domain/ytd"
	"paystub/internal/platform/apperr"
)

type testKeys struct{}

func (testKeys) CurrentKeyID() string { return "2025-01" }

func (testKeys) WithKey(id string, fn func([]byte) error) error {
	if id != "2025-01" {
		return integrity.ErrUnknownKey
	}
	return fn(bytes.Repeat([]byte{9}, 32))
}

type zeroEntropy struct{}

func (zeroEntropy) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func newRenderer(t *testing.T) *render.Renderer {
	t.Helper()
	pool, err := render.NewPool(render.PDFFactory(render.DefaultLayout()), render.PoolConfig{Size: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return render.NewRenderer(pool, render.WithLookupHint("https://verify.example.com"))
}

func newPayroll(t *testing.T) *payroll.Service {
	t.Helper()
	catalogue, err := jurisdiction.Default()
	require.NoError(t, err)
	return payroll.NewService(tax.NewEngine(catalogue))
}

func newTestService(t *testing.T, ledger integrity.Ledger) *Service {
	t.Helper()
	sealer := integrity.NewSealer(testKeys{}, nil, "Acme Payroll Services")
	return NewService(newPayroll(t), sealer, newRenderer(t), ledger)
}

func salaryInput() payroll.PayPeriodInput {
	return payroll.PayPeriodInput{
		Company:      payroll.Company{Name: "Lone Star Freight", Address: "9 Depot Rd, Austin, TX"},
		Employee:     payroll.Employee{ID: "E-7", Name: "Sam Ortiz", State: "TX", SSNLast4: "4321"},
		Jurisdiction: "US-TX",
		Filing:       tax.FilingProfile{Status: tax.Single, Frequency: tax.Monthly},
		PeriodStart:  payroll.NewDate(2025, time.November, 1),
		PeriodEnd:    payroll.NewDate(2025, time.November, 30),
		PayDate:      payroll.NewDate(2025, time.November, 30),
		Salary:       500000,
		CheckNumber:  "1001",
	}
}

func findDeduction(r payroll.PayRecord, code string) payroll.DeductionLine {
	for _, l := range r.Deductions {
		if l.Code == code {
			return l
		}
	}
	return payroll.DeductionLine{}
}

func TestGeneratePayRecordTaxesOnlyRemainingWageBase(t *testing.T) {
	svc := newTestService(t, nil)
	prior := ytd.Open("E-7", 2025)
	prior.SSWages = 17610000 - 100000

	record, next, err := svc.GeneratePayRecord(salaryInput(), prior)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(6200), findDeduction(record, payroll.DeductionSocialSecurity).Current)
	assert.Equal(t, money.Cents(17610000), next.SSWages)
	assert.Equal(t, money.Cents(500000), record.Totals.Gross)
	assert.Equal(t, record.Totals.Gross-record.Totals.TotalDeductions, record.Totals.Net)
}

func TestGeneratePayRecordTwiceDoublesYTD(t *testing.T) {
	svc := newTestService(t, nil)
	in := salaryInput()

	_, first, err := svc.GeneratePayRecord(in, ytd.Snapshot{})
	require.NoError(t, err)
	record, second, err := svc.GeneratePayRecord(in, first)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2*first.Gross, second.Gross)
	assert.Equal(t, 2*first.Net, second.Net)
	assert.Equal(t, 2, second.Periods)
	assert.Equal(t, second.Gross, record.Totals.GrossYTD)
}

func TestGeneratePayRecordRejectsBadInput(t *testing.T) {
	svc := newTestService(t, nil)
	in := salaryInput()
	in.Bonus = -1
	_, _, err := svc.GeneratePayRecord(in, ytd.Snapshot{})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	in = salaryInput()
	in.Jurisdiction = "US-ZZ"
	_, _, err = svc.GeneratePayRecord(in, ytd.Snapshot{})
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestSealAndRender(t *testing.T) {
	ledger := integrity.NewMemoryLedger()
	svc := newTestService(t, ledger)
	record, _, err := svc.GeneratePayRecord(salaryInput(), ytd.Snapshot{})
	require.NoError(t, err)

	sealed, err := svc.SealAndRender(context.Background(), record, "High_Fashion")
	require.NoError(t, err)
	assert.Equal(t, "high_fashion", sealed.Theme)
	assert.Equal(t, integrity.Fingerprint(record), sealed.Verification.Fingerprint)
	assert.Equal(t, "2025-01", sealed.Verification.KeyID)

	stamp, err := render.Inspect(sealed.Document, "")
	require.NoError(t, err)
	assert.Equal(t, sealed.Verification.ID, stamp.ID)
	assert.Equal(t, sealed.Verification.Seal, stamp.Seal)

	verdict, err := svc.Verify(record, stamp.Record())
	require.NoError(t, err)
	assert.True(t, verdict.Valid)

	entry, err := svc.Lookup(context.Background(), sealed.Verification.ID.Display())
	require.NoError(t, err)
	assert.Equal(t, "Sam Ortiz", entry.EmployeeName)
	assert.Equal(t, record.Totals.Net, entry.Net)
}

func TestSealAndRenderRejectsUnknownThemeBeforeSealing(t *testing.T) {
	ledger := integrity.NewMemoryLedger()
	svc := newTestService(t, ledger)
	record, _, err := svc.GeneratePayRecord(salaryInput(), ytd.Snapshot{})
	require.NoError(t, err)

	_, err = svc.SealAndRender(context.Background(), record, "neon")
	assert.True(t, errors.Is(err, theme.ErrUnknownTheme))
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	entries, err := ledger.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSealAndRenderDuplicateIDIsIntegrityViolation(t *testing.T) {
	ledger := integrity.NewMemoryLedger()
	clock := func() time.Time { return time.UnixMilli(1_760_000_000_000) }
	newSvc := func() *Service {
		sealer := integrity.NewSealer(testKeys{}, integrity.NewGeneratorWith(clock, zeroEntropy{}), "")
		return NewService(newPayroll(t), sealer, newRenderer(t), ledger)
	}
	record, _, err := newSvc().GeneratePayRecord(salaryInput(), ytd.Snapshot{})
	require.NoError(t, err)

	_, err = newSvc().SealAndRender(context.Background(), record, "anxiety")
	require.NoError(t, err)
	_, err = newSvc().SealAndRender(context.Background(), record, "anxiety")
	require.Error(t, err)
	assert.True(t, errors.Is(err, integrity.ErrDuplicateID))
	assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
}

func TestSealAndRenderAll(t *testing.T) {
	ledger := integrity.NewMemoryLedger()
	svc := newTestService(t, ledger)
	record, _, err := svc.GeneratePayRecord(salaryInput(), ytd.Snapshot{})
	require.NoError(t, err)

	batch, err := svc.SealAndRenderAll(context.Background(), record, nil)
	require.NoError(t, err)
	require.Len(t, batch.Results, len(theme.Keys()))
	assert.Zero(t, batch.Failed())
	for _, res := range batch.Results {
		stamp, err := render.Inspect(res.Document, "")
		require.NoError(t, err, res.Theme)
		assert.Equal(t, batch.Verification.ID, stamp.ID, res.Theme)
	}

	entries, err := ledger.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	batch, err = svc.SealAndRenderAll(context.Background(), record, []string{"blooming", "nope"})
	require.NoError(t, err)
	assert.True(t, batch.Results[0].OK())
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(batch.Results[1].Err))
	assert.Equal(t, 1, batch.Failed())
}

func TestRerender(t *testing.T) {
	ledger := integrity.NewMemoryLedger()
	svc := newTestService(t, ledger)
	record, _, err := svc.GeneratePayRecord(salaryInput(), ytd.Snapshot{})
	require.NoError(t, err)
	sealed, err := svc.SealAndRender(context.Background(), record, "anxiety")
	require.NoError(t, err)

	doc, err := svc.Rerender(context.Background(), record, sealed.Verification, "cool_sunsets")
	require.NoError(t, err)
	stamp, err := render.Inspect(doc, "")
	require.NoError(t, err)
	assert.Equal(t, sealed.Verification.ID, stamp.ID)

	entries, err := ledger.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "re-render never mints")

	changed := record
	changed.Totals.Net++
	_, err = svc.Rerender(context.Background(), changed, sealed.Verification, "anxiety")
	assert.True(t, errors.Is(err, integrity.ErrFingerprintDrift))
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	forged := sealed.Verification
	flipped := byte('0')
	if forged.Seal[0] == '0' {
		flipped = '1'
	}
	forged.Seal = string(flipped) + forged.Seal[1:]
	_, err = svc.Rerender(context.Background(), record, forged, "anxiety")
	assert.True(t, errors.Is(err, ErrSealMismatch))
}

func TestCorrectionMintsNewVerificationRecord(t *testing.T) {
	svc := newTestService(t, integrity.NewMemoryLedger())
	in := salaryInput()
	original, _, err := svc.GeneratePayRecord(in, ytd.Snapshot{})
	require.NoError(t, err)
	first, err := svc.SealAndRender(context.Background(), original, "anxiety")
	require.NoError(t, err)

	in.Bonus = 10000
	corrected, _, err := svc.GeneratePayRecord(in, ytd.Snapshot{})
	require.NoError(t, err)
	second, err := svc.SealAndRender(context.Background(), corrected, "anxiety")
	require.NoError(t, err)
	assert.NotEqual(t, first.Verification.ID, second.Verification.ID)

	verdict, err := svc.Verify(original, first.Verification)
	require.NoError(t, err)
	assert.True(t, verdict.Valid, "the original stays valid for its own content")

	verdict, err = svc.Verify(corrected, first.Verification)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.False(t, verdict.FingerprintMatch)
	assert.True(t, verdict.SealMatch)
}

func TestLookup(t *testing.T) {
	svc := newTestService(t, integrity.NewMemoryLedger())
	_, err := svc.Lookup(context.Background(), "not-an-id")
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	id, err := integrity.NewGenerator().New()
	require.NoError(t, err)
	_, err = svc.Lookup(context.Background(), id.String())
	assert.True(t, errors.Is(err, integrity.ErrNotFound))

	_, err = newTestService(t, nil).Lookup(context.Background(), id.String())
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestVerifyDocument(t *testing.T) {
	svc := newTestService(t, integrity.NewMemoryLedger())
	record, _, err := svc.GeneratePayRecord(salaryInput(), ytd.Snapshot{})
	require.NoError(t, err)
	sealed, err := svc.SealAndRender(context.Background(), record, "cherry_soda")
	require.NoError(t, err)

	verdict, stamp, err := svc.VerifyDocument(record, sealed.Document, "")
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, sealed.Verification.ID, stamp.ID)

	altered := record
	altered.Employee.Name = "Sam Ortiz Jr"
	verdict, _, err = svc.VerifyDocument(altered, sealed.Document, "")
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.False(t, verdict.FingerprintMatch)
	assert.True(t, verdict.SealMatch)

	_, _, err = svc.VerifyDocument(record, []byte("%PDF-1.4 nothing here"), "")
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestVerifications(t *testing.T) {
	ledger := integrity.NewMemoryLedger()
	svc := newTestService(t, ledger)
	record, _, err := svc.GeneratePayRecord(salaryInput(), ytd.Snapshot{})
	require.NoError(t, err)
	for _, key := range []string{"cherry_soda", "tuesdays"} {
		_, err := svc.SealAndRender(context.Background(), record, key)
		require.NoError(t, err)
	}

	entries, err := svc.Verifications(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Less(t, entries[0].ID.String(), entries[1].ID.String())

	_, err = newTestService(t, nil).Verifications(context.Background(), 0, 0)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}
