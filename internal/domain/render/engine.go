package render

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"unicode"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"

	"paystub/internal/domain/integrity"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/theme"
	"paystub/internal/platform/apperr"
)

// Job is one document to paint. Engines treat it as read-only.
type Job struct {
	Record       payroll.PayRecord
	Verification integrity.Record
	Theme        theme.Definition
	Payload      integrity.Payload
}

// Engine paints jobs into documents, one job at a time.
type Engine interface {
	Render(ctx context.Context, job Job) ([]byte, error)
	Close() error
}

type Factory func() (Engine, error)

// PDFEngine paints statements with gofpdf. The security pattern geometry is
// computed once per engine and reused for every document it paints.
type PDFEngine struct {
	id      uuid.UUID
	layout  Layout
	pattern [][]gofpdf.PointType
	renders int
}

func NewPDFEngine(layout Layout) (*PDFEngine, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &PDFEngine{id: uuid.New(), layout: layout, pattern: guilloche(9, 360)}, nil
}

func PDFFactory(layout Layout) Factory {
	return func() (Engine, error) {
		return NewPDFEngine(layout)
	}
}

func (e *PDFEngine) ID() uuid.UUID {
	return e.id
}

func (e *PDFEngine) Renders() int {
	return e.renders
}

func (e *PDFEngine) Close() error {
	e.pattern = nil
	return nil
}

func (e *PDFEngine) Render(ctx context.Context, job Job) ([]byte, error) {
	const op = "render.paint"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.pattern == nil {
		return nil, apperr.Transient(op, fmt.Errorf("engine %s is closed", e.id))
	}
	scan, err := qrPNG(job.Payload.String(), e.layout.QRPixels)
	if err != nil {
		return nil, apperr.Transient(op, fmt.Errorf("encode scan code: %w", err))
	}

	pdf := gofpdf.New(e.layout.Orientation, "mm", e.layout.PageSize, "")
	stamp := stampFor(job)
	pdf.SetTitle("Earnings Statement "+job.Record.PayDate.String(), false)
	pdf.SetAuthor(stamp.Issuer, !isASCII(stamp.Issuer))
	pdf.SetSubject(stamp.Payload, !isASCII(stamp.Payload))
	pdf.SetKeywords(stamp.keywords(), false)
	pdf.SetCreator("paystub renderer", false)
	pdf.SetCreationDate(job.Verification.IssuedAt)
	pdf.RegisterImageOptionsReader(scanImage, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(scan))

	newPainter(pdf, e.layout, job.Theme, e.pattern).document(job)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, apperr.Transient(op, err)
	}
	e.renders++
	return buf.Bytes(), nil
}

// guilloche returns interleaved sine bands in unit page coordinates.
func guilloche(bands, points int) [][]gofpdf.PointType {
	curves := make([][]gofpdf.PointType, 0, bands*2)
	for b := 0; b < bands; b++ {
		base := (float64(b) + 0.5) / float64(bands)
		for strand := 0; strand < 2; strand++ {
			phase := float64(b)*0.7 + float64(strand)*math.Pi
			curve := make([]gofpdf.PointType, points+1)
			for i := 0; i <= points; i++ {
				t := float64(i) / float64(points)
				y := base + 0.018*math.Sin(2*math.Pi*6*t+phase) + 0.006*math.Sin(2*math.Pi*17*t)
				curve[i] = gofpdf.PointType{X: t, Y: y}
			}
			curves = append(curves, curve)
		}
	}
	return curves
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
