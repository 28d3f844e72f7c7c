package render

import (
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/barcode"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"paystub/internal/domain/money"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/theme"
)

const scanImage = "scan"

var (
	white = theme.Color{R: 255, G: 255, B: 255}
	black = theme.Color{R: 0, G: 0, B: 0}
	ink   = theme.Color{R: 33, G: 33, B: 33}
	muted = theme.Color{R: 110, G: 110, B: 110}
)

var categoryLabels = map[string]string{
	payroll.CategoryTax:     "Tax",
	payroll.CategoryPreTax:  "Pre-tax",
	payroll.CategoryPostTax: "Post-tax",
}

type painter struct {
	pdf      *gofpdf.Fpdf
	tr       func(string) string
	layout   Layout
	theme    theme.Definition
	pattern  [][]gofpdf.PointType
	heading  theme.Color
	pageW    float64
	pageH    float64
	contentW float64
}

func newPainter(pdf *gofpdf.Fpdf, layout Layout, def theme.Definition, pattern [][]gofpdf.PointType) *painter {
	w, h := pdf.GetPageSize()
	return &painter{
		pdf:      pdf,
		tr:       pdf.UnicodeTranslatorFromDescriptor(""),
		layout:   layout,
		theme:    def,
		pattern:  pattern,
		heading:  readable(def.Primary),
		pageW:    w,
		pageH:    h,
		contentW: w - 2*layout.Margin,
	}
}

// readable darkens light palette colors enough to carry text on white.
func readable(c theme.Color) theme.Color {
	if c.Luminance() > 0.55 {
		return c.Mix(black, 0.55)
	}
	return c
}

// inkOn picks the text color for a background.
func inkOn(bg theme.Color) theme.Color {
	if bg.Luminance() > 0.6 {
		return ink
	}
	return white
}

func (p *painter) fill(c theme.Color) { p.pdf.SetFillColor(c.R, c.G, c.B) }
func (p *painter) draw(c theme.Color) { p.pdf.SetDrawColor(c.R, c.G, c.B) }
func (p *painter) text(c theme.Color) { p.pdf.SetTextColor(c.R, c.G, c.B) }

func (p *painter) font(style string, size float64) {
	p.pdf.SetFont(p.layout.FontFamily, style, size)
}

func (p *painter) document(job Job) {
	m := p.layout.Margin
	p.pdf.SetMargins(m, m, m)
	p.pdf.SetAutoPageBreak(true, m)
	p.pdf.AliasNbPages("")
	p.pdf.SetHeaderFunc(p.security)
	p.pdf.SetFooterFunc(func() { p.footer(job) })
	p.pdf.AddPage()

	r := job.Record
	p.header(r)
	p.identity(r)
	p.earnings(r)
	p.deductions(r)
	p.summary(r)
	p.list("OTHER BENEFITS & INFORMATION", r.Benefits)
	p.list("IMPORTANT NOTES", r.Notes)
	p.verification(job)
	p.stub(r)
}

// security paints the anti-copy background on every page: guilloche bands,
// a diagonal watermark and a security thread, all in the theme palette.
func (p *painter) security() {
	pdf := p.pdf
	pdf.SetLineWidth(0.12)
	p.draw(p.theme.Primary.Mix(white, 0.8))
	for _, curve := range p.pattern {
		for i, pt := range curve {
			if i == 0 {
				pdf.MoveTo(pt.X*p.pageW, pt.Y*p.pageH)
				continue
			}
			pdf.LineTo(pt.X*p.pageW, pt.Y*p.pageH)
		}
		pdf.DrawPath("D")
	}

	mark := p.tr(p.layout.Watermark)
	pdf.SetAlpha(0.07, "Normal")
	p.font("B", 18)
	p.text(p.theme.Primary)
	width := pdf.GetStringWidth(mark)
	pdf.TransformBegin()
	pdf.TransformRotate(35, p.pageW/2, p.pageH/2)
	for _, dy := range []float64{-60, 0, 60} {
		pdf.Text(p.pageW/2-width/2, p.pageH/2+dy, mark)
	}
	pdf.TransformEnd()
	pdf.SetAlpha(1, "Normal")

	p.fill(p.theme.Accent)
	pdf.Rect(4, 0, 1.1, p.pageH, "F")
	p.text(ink)
	pdf.SetXY(p.layout.Margin, p.layout.Margin)
}

func (p *painter) footer(job Job) {
	pdf := p.pdf
	pdf.SetY(-p.layout.Margin + 3)
	p.font("", 6.5)
	p.text(muted)
	line := "Verification ID " + job.Verification.ID.Display() + "    Page " + strconv.Itoa(pdf.PageNo()) + " of {nb}"
	pdf.CellFormat(0, 4, line, "", 0, "C", false, 0, "")
}

// ensure starts a new page when fewer than h millimetres remain.
func (p *painter) ensure(h float64) {
	if p.pdf.GetY()+h > p.pageH-p.layout.Margin {
		p.pdf.AddPage()
	}
}

func (p *painter) label(x, y, w float64, title string) {
	pdf := p.pdf
	p.font("B", 7.5)
	p.text(p.heading)
	pdf.SetXY(x, y)
	pdf.CellFormat(w, 4, p.tr(title), "", 0, "L", false, 0, "")
	p.draw(p.theme.Secondary)
	pdf.SetLineWidth(0.4)
	pdf.Line(x, y+4.5, x+w, y+4.5)
	p.text(ink)
}

func (p *painter) header(r payroll.PayRecord) {
	pdf := p.pdf
	m := p.layout.Margin
	const bandH = 24.0
	gs, ge := p.theme.GradientStart, p.theme.GradientEnd
	pdf.LinearGradient(m, m, p.contentW, bandH, gs.R, gs.G, gs.B, ge.R, ge.G, ge.B, 0, 0, 1, 0)
	p.text(inkOn(gs.Mix(ge, 0.5)))

	left := p.contentW * 0.6
	pdf.SetXY(m+4, m+3)
	p.font("B", 15)
	pdf.CellFormat(left, 8, p.tr(r.Company.Name), "", 2, "L", false, 0, "")
	p.font("", 8.5)
	for _, line := range lines(r.Company.Address) {
		pdf.SetX(m + 4)
		pdf.CellFormat(left, 4, p.tr(line), "", 2, "L", false, 0, "")
	}

	right := p.contentW - left - 4
	pdf.SetXY(m+left, m+4)
	p.font("B", 13)
	pdf.CellFormat(right, 8, "EARNINGS STATEMENT", "", 2, "R", false, 0, "")
	p.font("", 8.5)
	pdf.CellFormat(right, 5, "Pay Date: "+r.PayDate.Display(), "", 2, "R", false, 0, "")
	pdf.CellFormat(right, 5, "Period: "+r.PeriodStart.Display()+" - "+r.PeriodEnd.Display(), "", 2, "R", false, 0, "")

	p.text(ink)
	pdf.SetXY(m, m+bandH+4)
}

func (p *painter) identity(r payroll.PayRecord) {
	pdf := p.pdf
	m := p.layout.Margin
	qr := p.layout.QRSize
	y := pdf.GetY()
	colW := (p.contentW - qr - 8) / 2

	p.label(m, y, colW, "EMPLOYEE")
	pdf.SetXY(m, y+6)
	p.font("B", 10)
	pdf.CellFormat(colW, 5.5, p.tr(r.Employee.Name), "", 2, "L", false, 0, "")
	p.font("", 8.5)
	details := lines(r.Employee.Address)
	details = append(details, "Employee ID: "+r.Employee.ID, "SSN: "+r.Employee.SSNMasked)
	if r.Employee.State != "" {
		details = append(details, "State: "+r.Employee.State)
	}
	for _, line := range details {
		pdf.CellFormat(colW, 4.5, p.tr(line), "", 2, "L", false, 0, "")
	}
	bottom := pdf.GetY()

	x := m + colW + 4
	p.label(x, y, colW, "PAY PERIOD")
	pdf.SetXY(x, y+6)
	rows := [][2]string{
		{"Period Start", r.PeriodStart.Display()},
		{"Period End", r.PeriodEnd.Display()},
		{"Pay Date", r.PayDate.Display()},
		{"Next Pay Date", r.NextPayDate.Display()},
		{"Check No.", r.CheckNumber},
		{"Filing Status", humanize(string(r.FilingStatus))},
		{"Pay Frequency", humanize(string(r.PayFrequency))},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetX(x)
		p.font("", 8.5)
		pdf.CellFormat(colW*0.45, 4.5, row[0], "", 0, "L", false, 0, "")
		p.font("B", 8.5)
		pdf.CellFormat(colW*0.55, 4.5, p.tr(row[1]), "", 2, "L", false, 0, "")
	}
	bottom = max(bottom, pdf.GetY())

	qx := m + p.contentW - qr
	pdf.ImageOptions(scanImage, qx, y, qr, qr, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	p.font("B", 6.5)
	p.text(p.heading)
	pdf.SetXY(qx, y+qr+0.5)
	pdf.CellFormat(qr, 3, "SCAN TO VERIFY", "", 0, "C", false, 0, "")
	p.text(ink)

	pdf.SetXY(m, max(bottom, y+qr+4)+5)
}

func (p *painter) tableHeader(widths []float64, titles, aligns []string) {
	pdf := p.pdf
	p.ensure(14)
	p.fill(p.heading)
	p.text(inkOn(p.heading))
	p.font("B", 8)
	pdf.SetX(p.layout.Margin)
	for i, title := range titles {
		ln := 0
		if i == len(titles)-1 {
			ln = 1
		}
		pdf.CellFormat(widths[i], 6.5, title, "", ln, aligns[i], true, 0, "")
	}
	p.text(ink)
}

// tableRow paints zebra rows; a negative index marks a total row.
func (p *painter) tableRow(index int, widths []float64, cells, aligns []string) {
	pdf := p.pdf
	switch {
	case index < 0:
		p.fill(p.theme.Accent.Mix(white, 0.7))
		p.font("B", 8.5)
	case index%2 == 0:
		p.fill(p.theme.Secondary.Mix(white, 0.88))
		p.font("", 8.5)
	default:
		p.fill(white)
		p.font("", 8.5)
	}
	p.draw(p.theme.Secondary.Mix(white, 0.6))
	pdf.SetLineWidth(0.1)
	pdf.SetX(p.layout.Margin)
	for i, cell := range cells {
		ln := 0
		if i == len(cells)-1 {
			ln = 1
		}
		pdf.CellFormat(widths[i], 6, p.tr(cell), "B", ln, aligns[i], true, 0, "")
	}
}

func (p *painter) columns(shares ...float64) []float64 {
	out := make([]float64, len(shares))
	for i, s := range shares {
		out[i] = p.contentW * s
	}
	return out
}

func (p *painter) earnings(r payroll.PayRecord) {
	widths := p.columns(0.34, 0.14, 0.12, 0.2, 0.2)
	aligns := []string{"L", "R", "R", "R", "R"}
	p.tableHeader(widths, []string{"EARNINGS", "RATE", "HOURS", "THIS PERIOD", "YEAR TO DATE"}, aligns)
	for i, l := range r.Earnings {
		var rate, hours string
		if l.HasHours() {
			rate = formatRate(l.Rate)
			hours = l.Hours.StringFixed(2)
		}
		p.tableRow(i, widths, []string{l.Description, rate, hours, l.Current.String(), l.YTD.String()}, aligns)
	}
	p.tableRow(-1, widths, []string{"Gross Pay", "", "", r.Totals.Gross.String(), r.Totals.GrossYTD.String()}, aligns)
	p.pdf.Ln(4)
}

func (p *painter) deductions(r payroll.PayRecord) {
	widths := p.columns(0.44, 0.16, 0.2, 0.2)
	aligns := []string{"L", "L", "R", "R"}
	p.tableHeader(widths, []string{"DEDUCTIONS", "TYPE", "THIS PERIOD", "YEAR TO DATE"}, aligns)
	for i, l := range r.Deductions {
		p.tableRow(i, widths, []string{l.Description, categoryLabels[l.Category], l.Current.String(), l.YTD.String()}, aligns)
	}
	t := r.Totals
	p.tableRow(-1, widths, []string{"Total Deductions", "", t.TotalDeductions.String(), t.TotalDeductionsYTD.String()}, aligns)
	p.tableRow(-1, widths, []string{"Net Pay", "", t.Net.String(), t.NetYTD.String()}, aligns)
	p.pdf.Ln(4)
}

func (p *painter) summary(r payroll.PayRecord) {
	pdf := p.pdf
	m := p.layout.Margin
	const boxH = 17.0
	p.ensure(boxH + 4)
	y := pdf.GetY()
	w := (p.contentW - 8) / 3
	boxes := []struct {
		title      string
		current    money.Cents
		yearToDate money.Cents
		bg         theme.Color
	}{
		{"GROSS PAY", r.Totals.Gross, r.Totals.GrossYTD, p.theme.Secondary.Mix(white, 0.82)},
		{"DEDUCTIONS", r.Totals.TotalDeductions, r.Totals.TotalDeductionsYTD, p.theme.Secondary.Mix(white, 0.82)},
		{"NET PAY", r.Totals.Net, r.Totals.NetYTD, p.theme.Accent.Mix(white, 0.6)},
	}
	for i, b := range boxes {
		x := m + float64(i)*(w+4)
		p.fill(b.bg)
		pdf.Rect(x, y, w, boxH, "F")
		p.text(inkOn(b.bg))
		p.font("B", 7)
		pdf.SetXY(x+2, y+1.5)
		pdf.CellFormat(w-4, 4, b.title, "", 2, "L", false, 0, "")
		p.font("B", 12)
		pdf.CellFormat(w-4, 6.5, "$"+b.current.String(), "", 2, "R", false, 0, "")
		p.font("", 7)
		pdf.CellFormat(w-4, 3.5, "YTD $"+b.yearToDate.String(), "", 0, "R", false, 0, "")
	}
	p.text(ink)
	pdf.SetXY(m, y+boxH+5)
}

func (p *painter) list(title string, items []string) {
	if len(items) == 0 {
		return
	}
	pdf := p.pdf
	m := p.layout.Margin
	p.ensure(12)
	p.label(m, pdf.GetY(), p.contentW, title)
	pdf.SetXY(m, pdf.GetY()+6)
	p.font("", 8)
	for _, item := range items {
		pdf.SetX(m)
		pdf.MultiCell(p.contentW, 4.2, p.tr("• "+item), "", "L", false)
	}
	pdf.Ln(3)
}

func (p *painter) verification(job Job) {
	pdf := p.pdf
	m := p.layout.Margin
	v := job.Verification
	p.ensure(24)
	y := pdf.GetY()
	p.label(m, y, p.contentW, "DOCUMENT VERIFICATION")

	textW := p.contentW - 74
	pdf.SetXY(m, y+6)
	p.font("B", 8.5)
	pdf.CellFormat(textW, 4.5, "Verification ID: "+v.ID.Display(), "", 2, "L", false, 0, "")
	p.font("", 7.5)
	issued := "Issued " + v.IssuedAt.UTC().Format("2006-01-02 15:04:05 MST") + "    Key " + v.KeyID
	if v.Issuer != "" {
		issued += "    by " + v.Issuer
	}
	pdf.CellFormat(textW, 4, p.tr(issued), "", 2, "L", false, 0, "")
	pdf.SetFont("Courier", "", 6.5)
	pdf.CellFormat(textW, 4, "Fingerprint "+v.Fingerprint, "", 2, "L", false, 0, "")
	bottom := pdf.GetY()

	code := barcode.RegisterCode128(pdf, v.ID.String())
	barcode.Barcode(pdf, code, m+p.contentW-70, y+6, 70, 10, false)
	p.font("", 6)
	pdf.SetXY(m+p.contentW-70, y+16.5)
	pdf.CellFormat(70, 3, v.ID.String(), "", 0, "C", false, 0, "")

	pdf.SetXY(m, max(bottom, y+20)+4)
}

// stub paints the detachable, non-negotiable pay stub at the foot of the
// last page.
func (p *painter) stub(r payroll.PayRecord) {
	pdf := p.pdf
	m := p.layout.Margin
	h := p.layout.StubHeight
	top := p.pageH - m - h
	if pdf.GetY()+6 > top {
		pdf.AddPage()
	}

	p.draw(muted)
	pdf.SetLineWidth(0.2)
	pdf.SetDashPattern([]float64{1.5, 1.2}, 0)
	pdf.Line(m, top-3, m+p.contentW, top-3)
	pdf.SetDashPattern([]float64{}, 0)
	p.font("", 5.5)
	p.text(muted)
	pdf.SetXY(m, top-6.5)
	pdf.CellFormat(p.contentW, 3, "DETACH HERE", "", 0, "C", false, 0, "")

	p.fill(p.theme.Primary.Mix(white, 0.93))
	pdf.Rect(m, top, p.contentW, h, "F")
	p.draw(p.heading)
	pdf.SetLineWidth(0.5)
	pdf.Rect(m, top, p.contentW, h, "D")

	p.font("", 3.5)
	p.text(p.theme.Primary.Mix(white, 0.35))
	micro := strings.Repeat("AUTHENTIC PAY DOCUMENT ", 60)
	pdf.SetXY(m+1, top+0.8)
	pdf.CellFormat(p.contentW-2, 2, fit(pdf, micro, p.contentW-2), "", 0, "L", false, 0, "")

	pdf.SetAlpha(0.06, "Normal")
	p.font("B", 26)
	p.text(p.theme.Primary)
	for i := 0; i < 3; i++ {
		pdf.Text(m+8+float64(i)*(p.contentW/3), top+h/2+6, "NON-NEGOTIABLE")
	}
	pdf.SetAlpha(1, "Normal")
	p.text(ink)

	right := 62.0
	pdf.SetXY(m+5, top+5)
	p.font("B", 10)
	pdf.CellFormat(p.contentW-right-10, 5, p.tr(r.Company.Name), "", 2, "L", false, 0, "")
	p.font("", 7.5)
	for _, line := range lines(r.Company.Address) {
		pdf.CellFormat(p.contentW-right-10, 3.6, p.tr(line), "", 2, "L", false, 0, "")
	}

	rx := m + p.contentW - right - 5
	pdf.SetXY(rx, top+5)
	p.font("", 8)
	pdf.CellFormat(right, 4.5, "CHECK NO. "+r.CheckNumber, "", 2, "R", false, 0, "")
	pdf.CellFormat(right, 4.5, "DATE "+r.PayDate.Display(), "", 2, "R", false, 0, "")
	pdf.CellFormat(right, 4.5, "SSN "+r.Employee.SSNMasked, "", 2, "R", false, 0, "")

	y := top + 26
	pdf.SetXY(m+5, y)
	p.font("", 7)
	pdf.CellFormat(30, 5, "PAY TO THE ORDER OF", "", 0, "L", false, 0, "")
	p.font("B", 11)
	pdf.CellFormat(p.contentW-right-45, 5, p.tr(r.Employee.Name), "B", 0, "L", false, 0, "")

	p.fill(white)
	p.draw(p.heading)
	pdf.SetLineWidth(0.3)
	pdf.SetXY(rx+12, y-1)
	p.font("B", 11)
	pdf.CellFormat(right-12, 7, protectedAmount(r.Totals.Net), "1", 0, "R", true, 0, "")

	pdf.SetXY(m+5, y+10)
	p.font("", 8)
	pdf.CellFormat(p.contentW-10, 5, p.tr(r.Totals.AmountInWords), "B", 2, "L", false, 0, "")
	p.font("", 7)
	pdf.CellFormat(p.contentW-10, 5, "MEMO  Net pay for "+r.PeriodStart.Display()+" - "+r.PeriodEnd.Display(), "", 2, "L", false, 0, "")

	sigY := top + h - 12
	sigW := (p.contentW - 30) / 2
	p.draw(ink)
	pdf.SetLineWidth(0.25)
	for i, caption := range []string{"AUTHORIZED SIGNATURE    VOID AFTER 90 DAYS", "MANAGER / SUPERVISOR SIGNATURE"} {
		x := m + 10 + float64(i)*(sigW+10)
		pdf.Line(x, sigY, x+sigW, sigY)
		p.font("", 6)
		pdf.SetXY(x, sigY+1)
		pdf.CellFormat(sigW, 3, caption, "", 0, "C", false, 0, "")
	}
}

func lines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

var titleCase = cases.Title(language.English)

func humanize(code string) string {
	return titleCase.String(strings.ReplaceAll(code, "_", " "))
}

// formatRate keeps sub-cent precision but never prints fewer than two
// decimals.
func formatRate(d decimal.Decimal) string {
	if d.Exponent() < -2 {
		return d.String()
	}
	return d.StringFixed(2)
}

func protectedAmount(c money.Cents) string {
	amount := c.String()
	const width = 14
	if pad := width - len(amount); pad > 0 {
		amount = strings.Repeat("*", pad) + amount
	}
	return "$" + amount
}

// fit trims s to the longest prefix that fits in w at the current font.
func fit(pdf *gofpdf.Fpdf, s string, w float64) string {
	for len(s) > 0 && pdf.GetStringWidth(s) > w {
		s = s[:len(s)*9/10]
	}
	return s
}
