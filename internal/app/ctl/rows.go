package ctl

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"paystub/internal/domain/money"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/tax"
)

// PeriodRow is one line of the generate CSV. Amounts are dollars; hours and
// rates stay textual so blank cells mean zero.
type PeriodRow struct {
	CompanyName           string       `csv:"company_name"`
	CompanyAddress        string       `csv:"company_address"`
	EmployeeID            string       `csv:"employee_id"`
	EmployeeName          string       `csv:"employee_name"`
	EmployeeAddress       string       `csv:"employee_address"`
	State                 string       `csv:"state"`
	SSNLast4              string       `csv:"ssn_last4"`
	Jurisdiction          string       `csv:"jurisdiction"`
	FilingStatus          string       `csv:"filing_status"`
	PayFrequency          string       `csv:"pay_frequency"`
	Localities            string       `csv:"localities"`
	AdditionalWithholding money.Cents  `csv:"additional_withholding"`
	PeriodStart           payroll.Date `csv:"period_start"`
	PeriodEnd             payroll.Date `csv:"period_end"`
	PayDate               payroll.Date `csv:"pay_date"`
	HourlyRate            string       `csv:"hourly_rate"`
	RegularHours          string       `csv:"regular_hours"`
	OvertimeHours         string       `csv:"overtime_hours"`
	OvertimeMultiplier    string       `csv:"overtime_multiplier"`
	Salary                money.Cents  `csv:"salary"`
	Bonus                 money.Cents  `csv:"bonus"`
	Commission            money.Cents  `csv:"commission"`
	Tips                  money.Cents  `csv:"tips"`
	Retirement            money.Cents  `csv:"retirement_401k"`
	Health                money.Cents  `csv:"health_premium"`
	CheckNumber           string       `csv:"check_number"`
}

// Input maps the row onto a pay period. Status and frequency spellings are
// normalised by the payroll service.
func (r PeriodRow) Input() (payroll.PayPeriodInput, error) {
	in := payroll.PayPeriodInput{
		Company: payroll.Company{Name: r.CompanyName, Address: r.CompanyAddress},
		Employee: payroll.Employee{
			ID:       r.EmployeeID,
			Name:     r.EmployeeName,
			Address:  r.EmployeeAddress,
			State:    r.State,
			SSNLast4: r.SSNLast4,
		},
		Jurisdiction: r.Jurisdiction,
		Filing: tax.FilingProfile{
			Status:                tax.FilingStatus(r.FilingStatus),
			Frequency:             tax.PayFrequency(r.PayFrequency),
			Localities:            splitList(r.Localities),
			AdditionalWithholding: r.AdditionalWithholding,
		},
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
		PayDate:     r.PayDate,
		Salary:      r.Salary,
		Bonus:       r.Bonus,
		Commission:  r.Commission,
		Tips:        r.Tips,
		CheckNumber: strings.TrimSpace(r.CheckNumber),
	}

	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"hourly_rate", r.HourlyRate, &in.HourlyRate},
		{"regular_hours", r.RegularHours, &in.RegularHours},
		{"overtime_hours", r.OvertimeHours, &in.OvertimeHours},
		{"overtime_multiplier", r.OvertimeMultiplier, &in.OvertimeMultiplier},
	} {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return payroll.PayPeriodInput{}, fmt.Errorf("%s: invalid number %q", f.name, f.raw)
		}
		*f.dst = parsed
	}

	if r.Retirement > 0 {
		in.Deductions = append(in.Deductions, payroll.DeductionElection{
			Code: "401k", Description: "401(k)", Amount: r.Retirement, Treatment: payroll.TreatmentRetirement,
		})
	}
	if r.Health > 0 {
		in.Deductions = append(in.Deductions, payroll.DeductionElection{
			Code: "health", Description: "Health Insurance", Amount: r.Health, Treatment: payroll.TreatmentSection125,
		})
	}
	return in, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
