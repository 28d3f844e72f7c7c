package payroll

import (
	"strings"

	"github.com/shopspring/decimal"

	"paystub/internal/domain/money"
	"paystub/internal/domain/tax"
	"paystub/internal/platform/apperr"
)

var defaultOvertimeMultiplier = decimal.RequireFromString("1.5")

// earnings turns the period's raw pay into line items. YTD columns are
// filled in later from the advanced snapshot.
func earnings(in PayPeriodInput) ([]EarningLine, error) {
	var lines []EarningLine
	if in.Salary > 0 {
		lines = append(lines, EarningLine{Code: EarningSalary, Description: "Salary", Current: in.Salary})
	}
	if in.RegularHours.IsPositive() {
		current, err := money.FromDecimal(in.RegularHours.Mul(in.HourlyRate))
		if err != nil {
			return nil, err
		}
		lines = append(lines, EarningLine{
			Code:        EarningRegular,
			Description: "Regular Earnings",
			Rate:        in.HourlyRate,
			Hours:       in.RegularHours,
			Current:     current,
		})
	}
	if in.OvertimeHours.IsPositive() {
		rate := overtimeRate(in)
		current, err := money.FromDecimal(in.OvertimeHours.Mul(rate))
		if err != nil {
			return nil, err
		}
		lines = append(lines, EarningLine{
			Code:        EarningOvertime,
			Description: "Overtime",
			Rate:        rate,
			Hours:       in.OvertimeHours,
			Current:     current,
		})
	}
	flat := []struct {
		code, description string
		amount            money.Cents
	}{
		{EarningBonus, "Bonus", in.Bonus},
		{EarningCommission, "Commission", in.Commission},
		{EarningTips, "Tips", in.Tips},
	}
	for _, f := range flat {
		if f.amount > 0 {
			lines = append(lines, EarningLine{Code: f.code, Description: f.description, Current: f.amount})
		}
	}
	return lines, nil
}

func overtimeRate(in PayPeriodInput) decimal.Decimal {
	if in.OvertimeRate.IsPositive() {
		return in.OvertimeRate
	}
	multiplier := in.OvertimeMultiplier
	if !multiplier.IsPositive() {
		multiplier = defaultOvertimeMultiplier
	}
	return in.HourlyRate.Mul(multiplier).Round(4)
}

func sumEarnings(lines []EarningLine) money.Cents {
	var total money.Cents
	for _, l := range lines {
		total += l.Current
	}
	return total
}

func sumDeductions(lines []DeductionLine) money.Cents {
	var total money.Cents
	for _, l := range lines {
		total += l.Current
	}
	return total
}

// taxableWages removes pre-tax elections from gross. Retirement reduces
// income-tax wages only; section 125 plans reduce FICA wages as well.
func taxableWages(gross money.Cents, elections []DeductionElection) (tax.Wages, money.Cents, error) {
	w := tax.GrossWages(gross)
	var preTax money.Cents
	for _, e := range elections {
		switch e.Treatment {
		case TreatmentRetirement:
			w.IncomeTaxable -= e.Amount
			preTax += e.Amount
		case TreatmentSection125:
			w.IncomeTaxable -= e.Amount
			w.FICATaxable -= e.Amount
			preTax += e.Amount
		}
	}
	if preTax > gross {
		return tax.Wages{}, 0, ErrPreTaxExceedsGross
	}
	return w, preTax, nil
}

// taxLines itemizes the engine result. Federal income, Social Security and
// Medicare always print; other taxes print when they apply this period or
// earlier in the year.
func taxLines(res tax.Result, state string) []DeductionLine {
	lines := []DeductionLine{
		{Code: DeductionFederalIncome, Description: "Federal Income Tax", Category: CategoryTax, Current: res.FederalIncome},
		{Code: DeductionSocialSecurity, Description: "Social Security", Category: CategoryTax, Current: res.SocialSecurity},
		{Code: DeductionMedicare, Description: "Medicare", Category: CategoryTax, Current: res.Medicare - res.MedicareSurcharge},
		{Code: DeductionMedicareSurcharge, Description: "Additional Medicare", Category: CategoryTax, Current: res.MedicareSurcharge},
	}
	prefix := strings.TrimSpace(state)
	if prefix != "" {
		prefix += " "
	}
	lines = append(lines,
		DeductionLine{Code: DeductionStateIncome, Description: prefix + "State Income Tax", Category: CategoryTax, Current: res.StateIncome},
		DeductionLine{Code: DeductionStateDisability, Description: prefix + "Disability Insurance", Category: CategoryTax, Current: res.StateDisability},
	)
	for _, l := range res.LocalLines {
		lines = append(lines, DeductionLine{
			Code:        localDeductionPrefix + strings.ToLower(l.Code),
			Description: l.Name,
			Category:    CategoryTax,
			Current:     l.Amount,
		})
	}
	return lines
}

func alwaysPrinted(code string) bool {
	switch code {
	case DeductionFederalIncome, DeductionSocialSecurity, DeductionMedicare:
		return true
	}
	return false
}

func electionLines(elections []DeductionElection) []DeductionLine {
	var pre, post []DeductionLine
	for _, e := range elections {
		line := DeductionLine{Code: e.Code, Description: e.Description, Current: e.Amount}
		if e.Treatment == TreatmentPostTax {
			line.Category = CategoryPostTax
			post = append(post, line)
			continue
		}
		line.Category = CategoryPreTax
		pre = append(pre, line)
	}
	return append(pre, post...)
}

// Check recomputes the totals from the line items. A record that fails it
// was assembled or altered incorrectly and must not be sealed.
func (r PayRecord) Check() error {
	const op = "payroll.check"
	gross := sumEarnings(r.Earnings)
	if gross != r.Totals.Gross {
		return apperr.New(apperr.KindIntegrity, op, ErrGrossMismatch)
	}
	deductions := sumDeductions(r.Deductions)
	if deductions != r.Totals.TotalDeductions || r.Totals.Net != gross-deductions {
		return apperr.New(apperr.KindIntegrity, op, ErrNetMismatch)
	}
	if r.Totals.Net < 0 {
		return apperr.New(apperr.KindIntegrity, op, ErrNegativeNet)
	}
	if r.Totals.AmountInWords != money.Words(r.Totals.Net) {
		return apperr.New(apperr.KindIntegrity, op, ErrWordsMismatch)
	}
	return nil
}

// MaskSSN prints only the last four digits.
func MaskSSN(last4 string) string {
	last4 = strings.TrimSpace(last4)
	if len(last4) != 4 {
		return "XXX-XX-XXXX"
	}
	return "XXX-XX-" + last4
}
