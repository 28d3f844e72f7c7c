package payroll

import (
	"github.com/shopspring/decimal"

	"paystub/internal/domain/money"
	"paystub/internal/domain/tax"
)

type Company struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type Employee struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	State    string `json:"state,omitempty"`
	SSNLast4 string `json:"ssnLast4,omitempty"`
}

// DeductionElection is a voluntary deduction requested for the period.
type DeductionElection struct {
	Code        string      `json:"code"`
	Description string      `json:"description"`
	Amount      money.Cents `json:"amount"`
	Treatment   string      `json:"treatment"`
}

// PayPeriodInput is the caller-supplied raw data for one pay record. Money
// amounts are in cents; rates and hours are decimals.
type PayPeriodInput struct {
	Company            Company             `json:"company"`
	Employee           Employee            `json:"employee"`
	Jurisdiction       string              `json:"jurisdiction"`
	Filing             tax.FilingProfile   `json:"filing"`
	PeriodStart        Date                `json:"periodStart"`
	PeriodEnd          Date                `json:"periodEnd"`
	PayDate            Date                `json:"payDate"`
	HourlyRate         decimal.Decimal     `json:"hourlyRate"`
	RegularHours       decimal.Decimal     `json:"regularHours"`
	OvertimeHours      decimal.Decimal     `json:"overtimeHours"`
	OvertimeRate       decimal.Decimal     `json:"overtimeRate"`
	OvertimeMultiplier decimal.Decimal     `json:"overtimeMultiplier"`
	Salary             money.Cents         `json:"salary,omitempty"`
	Bonus              money.Cents         `json:"bonus,omitempty"`
	Commission         money.Cents         `json:"commission,omitempty"`
	Tips               money.Cents         `json:"tips,omitempty"`
	Deductions         []DeductionElection `json:"deductions,omitempty"`
	CheckNumber        string              `json:"checkNumber,omitempty"`
	Benefits           []string            `json:"benefits,omitempty"`
	Notes              []string            `json:"notes,omitempty"`
}

type EarningLine struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Rate        decimal.Decimal `json:"rate"`
	Hours       decimal.Decimal `json:"hours"`
	Current     money.Cents     `json:"current"`
	YTD         money.Cents     `json:"ytd"`
}

// HasHours reports whether the line was computed from hours and a rate.
func (l EarningLine) HasHours() bool {
	return !l.Hours.IsZero()
}

type DeductionLine struct {
	Code        string      `json:"code"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Current     money.Cents `json:"current"`
	YTD         money.Cents `json:"ytd"`
}

type Totals struct {
	Gross              money.Cents `json:"gross"`
	GrossYTD           money.Cents `json:"grossYtd"`
	TotalDeductions    money.Cents `json:"totalDeductions"`
	TotalDeductionsYTD money.Cents `json:"totalDeductionsYtd"`
	Net                money.Cents `json:"net"`
	NetYTD             money.Cents `json:"netYtd"`
	AmountInWords      string      `json:"amountInWords"`
}

// PayRecord is the assembled statement handed to sealing and rendering.
type PayRecord struct {
	Company      Company          `json:"company"`
	Employee     EmployeeOnRecord `json:"employee"`
	Jurisdiction string           `json:"jurisdiction"`
	FilingStatus tax.FilingStatus `json:"filingStatus"`
	PayFrequency tax.PayFrequency `json:"payFrequency"`
	PeriodStart  Date             `json:"periodStart"`
	PeriodEnd    Date             `json:"periodEnd"`
	PayDate      Date             `json:"payDate"`
	NextPayDate  Date             `json:"nextPayDate"`
	CheckNumber  string           `json:"checkNumber,omitempty"`
	Earnings     []EarningLine    `json:"earnings"`
	Deductions   []DeductionLine  `json:"deductions"`
	Totals       Totals           `json:"totals"`
	Benefits     []string         `json:"benefits,omitempty"`
	Notes        []string         `json:"notes,omitempty"`
}

// EmployeeOnRecord is the employee identity as printed; the SSN is masked.
type EmployeeOnRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	State     string `json:"state,omitempty"`
	SSNMasked string `json:"ssnMasked"`
}
