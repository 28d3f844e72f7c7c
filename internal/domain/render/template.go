package render

import (
	"fmt"
	"strings"

	"paystub/internal/platform/apperr"
)

// Layout is the fixed page template every theme is painted onto. Units are
// millimetres.
type Layout struct {
	PageSize    string
	Orientation string
	Margin      float64
	FontFamily  string
	QRSize      float64
	QRPixels    int
	StubHeight  float64
	Watermark   string
}

func DefaultLayout() Layout {
	return Layout{
		PageSize:    "Letter",
		Orientation: "P",
		Margin:      12,
		FontFamily:  "Helvetica",
		QRSize:      30,
		QRPixels:    240,
		StubHeight:  78,
		Watermark:   "SECURE DOCUMENT • DO NOT DUPLICATE • VALID ONLY FOR PAYEE",
	}
}

var (
	pageSizes = map[string]bool{"letter": true, "legal": true, "a4": true}
	coreFonts = map[string]bool{"helvetica": true, "arial": true, "times": true, "courier": true}
)

// Validate rejects templates the engine cannot paint. A failure here is a
// deployment problem, never a caller problem.
func (l Layout) Validate() error {
	var problems []string
	if !pageSizes[strings.ToLower(l.PageSize)] {
		problems = append(problems, fmt.Sprintf("page size %q", l.PageSize))
	}
	if l.Orientation != "P" && l.Orientation != "L" {
		problems = append(problems, fmt.Sprintf("orientation %q", l.Orientation))
	}
	if l.Margin < 5 || l.Margin > 40 {
		problems = append(problems, fmt.Sprintf("margin %.1f", l.Margin))
	}
	if !coreFonts[strings.ToLower(l.FontFamily)] {
		problems = append(problems, fmt.Sprintf("font %q", l.FontFamily))
	}
	if l.QRSize < 20 || l.QRSize > 60 {
		problems = append(problems, fmt.Sprintf("qr size %.1f", l.QRSize))
	}
	if l.QRPixels < 128 {
		problems = append(problems, fmt.Sprintf("qr pixels %d", l.QRPixels))
	}
	if l.StubHeight < 60 || l.StubHeight > 120 {
		problems = append(problems, fmt.Sprintf("stub height %.1f", l.StubHeight))
	}
	if strings.TrimSpace(l.Watermark) == "" {
		problems = append(problems, "empty watermark")
	}
	if len(problems) > 0 {
		return apperr.New(apperr.KindConfiguration, "render.layout",
			fmt.Errorf("%w: %s", ErrMalformedTemplate, strings.Join(problems, ", ")))
	}
	return nil
}
