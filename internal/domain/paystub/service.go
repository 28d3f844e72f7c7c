// Package paystub is the entry point for generating, sealing and rendering
// pay statements.
package paystub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paystub/internal/domain/integrity"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/render"
	"paystub/internal/domain/theme"
	"paystub/internal/domain/ytd"
	"paystub/internal/platform/apperr"
	"paystub/internal/requestctx"
)

type Service struct {
	payroll  *payroll.Service
	sealer   *integrity.Sealer
	renderer *render.Renderer
	ledger   integrity.Ledger
}

// NewService wires the pipeline. ledger may be nil when issued records are
// kept elsewhere.
func NewService(p *payroll.Service, sealer *integrity.Sealer, renderer *render.Renderer, ledger integrity.Ledger) *Service {
	return &Service{payroll: p, sealer: sealer, renderer: renderer, ledger: ledger}
}

// Sealed is a rendered document together with the verification record
// minted for it.
type Sealed struct {
	Theme        string           `json:"theme"`
	Document     []byte           `json:"-"`
	Verification integrity.Record `json:"verification"`
}

// Batch is the outcome of sealing once and rendering under many themes.
type Batch struct {
	Verification integrity.Record
	Results      []render.Result
}

func (b Batch) Failed() int {
	n := 0
	for _, r := range b.Results {
		if !r.OK() {
			n++
		}
	}
	return n
}

// GeneratePayRecord computes the record for one period and the advanced
// YTD snapshot. It performs no I/O; persisting the snapshot and guarding
// against applying the same input twice belong to the caller.
func (s *Service) GeneratePayRecord(in payroll.PayPeriodInput, prior ytd.Snapshot) (payroll.PayRecord, ytd.Snapshot, error) {
	record, next, err := s.payroll.Generate(in, prior)
	if err != nil {
		logFailure("paystub.generate", err, "employeeId", in.Employee.ID)
		return payroll.PayRecord{}, ytd.Snapshot{}, err
	}
	return record, next, nil
}

// SealAndRender mints a verification record for r and renders it under one
// theme. An unknown theme is rejected before anything is minted.
func (s *Service) SealAndRender(ctx context.Context, r payroll.PayRecord, themeKey string) (Sealed, error) {
	def, err := theme.Lookup(themeKey)
	if err != nil {
		return Sealed{}, err
	}
	rec, err := s.seal(ctx, r)
	if err != nil {
		return Sealed{}, err
	}
	doc, err := s.renderer.Render(ctx, r, rec, def.Key)
	if err != nil {
		return Sealed{Theme: def.Key, Verification: rec}, err
	}
	return Sealed{Theme: def.Key, Document: doc, Verification: rec}, nil
}

// SealAndRenderAll seals r once and renders it under every key in
// themeKeys, or under the whole catalogue when themeKeys is empty. Theme
// failures are reported per result; the error is only for sealing.
func (s *Service) SealAndRenderAll(ctx context.Context, r payroll.PayRecord, themeKeys []string) (Batch, error) {
	if len(themeKeys) == 0 {
		themeKeys = theme.Keys()
	}
	rec, err := s.seal(ctx, r)
	if err != nil {
		return Batch{}, err
	}
	results := s.renderer.RenderAll(ctx, r, rec, themeKeys)
	batch := Batch{Verification: rec, Results: results}
	if failed := batch.Failed(); failed > 0 {
		requestctx.Logger(ctx, nil).Warn("batch render incomplete", "verificationId", rec.ID.String(), "failed", failed, "themes", len(themeKeys))
	}
	return batch, nil
}

// Rerender paints an already sealed record again without minting. The
// record must still fingerprint to rec and rec's seal must check out.
func (s *Service) Rerender(ctx context.Context, r payroll.PayRecord, rec integrity.Record, themeKey string) ([]byte, error) {
	const op = "paystub.rerender"
	if err := integrity.Unchanged(r, rec); err != nil {
		return nil, err
	}
	verdict, err := s.sealer.Verify(r, rec)
	if err != nil {
		logFailure(op, err, "verificationId", rec.ID.String())
		return nil, err
	}
	if !verdict.Valid {
		return nil, apperr.New(apperr.KindInvalidInput, op, ErrSealMismatch)
	}
	return s.renderer.Render(ctx, r, rec, themeKey)
}

// Verify recomputes fingerprint and seal for a claimed record.
func (s *Service) Verify(r payroll.PayRecord, rec integrity.Record) (integrity.Verdict, error) {
	verdict, err := s.sealer.Verify(r, rec)
	if err != nil {
		logFailure("paystub.verify", err, "verificationId", rec.ID.String())
		return integrity.Verdict{}, err
	}
	return verdict, nil
}

// Lookup finds an issued record by its printed or scanned ID.
func (s *Service) Lookup(ctx context.Context, rawID string) (integrity.Entry, error) {
	const op = "paystub.lookup"
	id, err := integrity.ParseID(rawID)
	if err != nil {
		return integrity.Entry{}, apperr.New(apperr.KindInvalidInput, op, err)
	}
	if s.ledger == nil {
		return integrity.Entry{}, apperr.New(apperr.KindConfiguration, op, errors.New("no verification ledger configured"))
	}
	entry, err := s.ledger.Lookup(ctx, id)
	switch {
	case errors.Is(err, integrity.ErrNotFound):
		return integrity.Entry{}, apperr.New(apperr.KindInvalidInput, op, err)
	case err != nil:
		return integrity.Entry{}, apperr.New(apperr.KindConfiguration, op, err)
	}
	return entry, nil
}

// VerifyDocument reads the stamp embedded in doc and checks r against it.
// A document without a stamp is invalid input.
func (s *Service) VerifyDocument(r payroll.PayRecord, doc []byte, ownerPassword string) (integrity.Verdict, render.Stamp, error) {
	stamp, err := render.Inspect(doc, ownerPassword)
	if err != nil {
		return integrity.Verdict{}, render.Stamp{}, err
	}
	verdict, err := s.Verify(r, stamp.Record())
	if err != nil {
		return integrity.Verdict{}, stamp, err
	}
	return verdict, stamp, nil
}

// Verifications pages through the issued records in issue order.
func (s *Service) Verifications(ctx context.Context, limit, offset int) ([]integrity.Entry, error) {
	const op = "paystub.verifications"
	if s.ledger == nil {
		return nil, apperr.New(apperr.KindConfiguration, op, errors.New("no verification ledger configured"))
	}
	entries, err := s.ledger.List(ctx, limit, offset)
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, op, err)
	}
	return entries, nil
}

func (s *Service) Renderer() *render.Renderer {
	return s.renderer
}

func (s *Service) seal(ctx context.Context, r payroll.PayRecord) (integrity.Record, error) {
	const op = "paystub.seal"
	rec, err := s.sealer.Seal(r)
	if err != nil {
		logFailure(op, err, "employeeId", r.Employee.ID)
		return integrity.Record{}, err
	}
	if s.ledger != nil {
		err := s.ledger.Register(ctx, EntryFor(r, rec))
		switch {
		case errors.Is(err, integrity.ErrDuplicateID):
			err = apperr.New(apperr.KindIntegrity, op, fmt.Errorf("%w: %s", err, rec.ID))
			logFailure(op, err, "verificationId", rec.ID.String())
			return integrity.Record{}, err
		case err != nil:
			err = apperr.New(apperr.KindConfiguration, op, fmt.Errorf("register verification record: %w", err))
			logFailure(op, err, "verificationId", rec.ID.String())
			return integrity.Record{}, err
		}
	}
	requestctx.Logger(ctx, nil).Info("pay record sealed", "verificationId", rec.ID.String(), "keyId", rec.KeyID, "employeeId", r.Employee.ID)
	return rec, nil
}

// EntryFor is the ledger entry registered for a sealed record.
func EntryFor(r payroll.PayRecord, rec integrity.Record) integrity.Entry {
	return integrity.Entry{
		Record:       rec,
		EmployeeID:   r.Employee.ID,
		EmployeeName: r.Employee.Name,
		CompanyName:  r.Company.Name,
		PayDate:      r.PayDate.String(),
		Net:          r.Totals.Net,
	}
}

// logFailure logs service-level failures at error level; caller mistakes
// are left to the caller.
func logFailure(op string, err error, attrs ...any) {
	kind := apperr.KindOf(err)
	args := append([]any{"op", op, "kind", kind, "error", err}, attrs...)
	switch kind {
	case apperr.KindConfiguration, apperr.KindIntegrity:
		slog.Error("paystub operation failed", args...)
	case apperr.KindInvalidInput:
		slog.Debug("paystub input rejected", args...)
	default:
		slog.Warn("paystub operation failed", args...)
	}
}
