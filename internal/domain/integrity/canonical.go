package integrity

import (
	"bytes"
	"encoding/hex"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"
	"golang.org/x/text/unicode/norm"

	"paystub/internal/domain/money"
	"paystub/internal/domain/payroll"
)

const canonicalVersion = "paystub-canonical/v1"

// canonicalWriter emits one "name:length:value\n" entry per field. Length
// prefixes keep values containing separators unambiguous.
type canonicalWriter struct {
	buf bytes.Buffer
}

func (w *canonicalWriter) field(name, value string) {
	value = norm.NFC.String(value)
	w.buf.WriteString(name)
	w.buf.WriteByte(':')
	w.buf.WriteString(strconv.Itoa(len(value)))
	w.buf.WriteByte(':')
	w.buf.WriteString(value)
	w.buf.WriteByte('\n')
}

func (w *canonicalWriter) amount(name string, c money.Cents) {
	w.field(name, c.Plain())
}

func (w *canonicalWriter) decimal(name string, d decimal.Decimal) {
	w.field(name, d.String())
}

func (w *canonicalWriter) count(name string, n int) {
	w.field(name+"#", strconv.Itoa(n))
}

func indexed(name string, i int, field string) string {
	return name + "[" + strconv.Itoa(i) + "]." + field
}

// Canonical encodes a pay record into its stable byte form. Field order is
// fixed; amounts use plain two-decimal notation and rates their shortest
// decimal form, so equal records encode identically regardless of how they
// were decoded.
func Canonical(r payroll.PayRecord) []byte {
	w := &canonicalWriter{}
	w.field("version", canonicalVersion)
	w.field("company.name", r.Company.Name)
	w.field("company.address", r.Company.Address)
	w.field("employee.id", r.Employee.ID)
	w.field("employee.name", r.Employee.Name)
	w.field("employee.address", r.Employee.Address)
	w.field("employee.state", r.Employee.State)
	w.field("employee.ssn", r.Employee.SSNMasked)
	w.field("jurisdiction", r.Jurisdiction)
	w.field("filingStatus", string(r.FilingStatus))
	w.field("payFrequency", string(r.PayFrequency))
	w.field("periodStart", r.PeriodStart.String())
	w.field("periodEnd", r.PeriodEnd.String())
	w.field("payDate", r.PayDate.String())
	w.field("nextPayDate", r.NextPayDate.String())
	w.field("checkNumber", r.CheckNumber)

	w.count("earnings", len(r.Earnings))
	for i, l := range r.Earnings {
		w.field(indexed("earnings", i, "code"), l.Code)
		w.field(indexed("earnings", i, "description"), l.Description)
		w.decimal(indexed("earnings", i, "rate"), l.Rate)
		w.decimal(indexed("earnings", i, "hours"), l.Hours)
		w.amount(indexed("earnings", i, "current"), l.Current)
		w.amount(indexed("earnings", i, "ytd"), l.YTD)
	}
	w.count("deductions", len(r.Deductions))
	for i, l := range r.Deductions {
		w.field(indexed("deductions", i, "code"), l.Code)
		w.field(indexed("deductions", i, "description"), l.Description)
		w.field(indexed("deductions", i, "category"), l.Category)
		w.amount(indexed("deductions", i, "current"), l.Current)
		w.amount(indexed("deductions", i, "ytd"), l.YTD)
	}

	w.amount("totals.gross", r.Totals.Gross)
	w.amount("totals.grossYtd", r.Totals.GrossYTD)
	w.amount("totals.deductions", r.Totals.TotalDeductions)
	w.amount("totals.deductionsYtd", r.Totals.TotalDeductionsYTD)
	w.amount("totals.net", r.Totals.Net)
	w.amount("totals.netYtd", r.Totals.NetYTD)
	w.field("totals.words", r.Totals.AmountInWords)

	w.count("benefits", len(r.Benefits))
	for i, b := range r.Benefits {
		w.field("benefits["+strconv.Itoa(i)+"]", b)
	}
	w.count("notes", len(r.Notes))
	for i, n := range r.Notes {
		w.field("notes["+strconv.Itoa(i)+"]", n)
	}
	return w.buf.Bytes()
}

// Fingerprint is the hex SHA3-256 digest of the canonical encoding.
func Fingerprint(r payroll.PayRecord) string {
	sum := sha3.Sum256(Canonical(r))
	return hex.EncodeToString(sum[:])
}
