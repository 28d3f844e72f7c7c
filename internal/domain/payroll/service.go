package payroll

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"paystub/internal/domain/money"
	"paystub/internal/domain/tax"
	"paystub/internal/domain/ytd"
	"paystub/internal/platform/apperr"
)

// Service assembles pay records. It performs no I/O beyond the jurisdiction
// lookup behind the tax engine.
type Service struct {
	engine *tax.Engine
}

func NewService(engine *tax.Engine) *Service {
	return &Service{engine: engine}
}

// Generate computes one pay record and the snapshot that follows prior.
// prior may be empty or from an earlier year, in which case the employee
// starts the pay date's year from zero.
func (s *Service) Generate(in PayPeriodInput, prior ytd.Snapshot) (PayRecord, ytd.Snapshot, error) {
	const op = "payroll.generate"
	in = normalize(in)
	if err := validate(in); err != nil {
		return PayRecord{}, ytd.Snapshot{}, err
	}
	opening, err := openingSnapshot(prior, in.Employee.ID, in.PayDate.Year())
	if err != nil {
		return PayRecord{}, ytd.Snapshot{}, err
	}

	profile, err := s.engine.Resolve(in.Jurisdiction, in.PayDate.Time)
	if err != nil {
		return PayRecord{}, ytd.Snapshot{}, err
	}

	earned, err := earnings(in)
	if err != nil {
		return PayRecord{}, ytd.Snapshot{}, apperr.New(apperr.KindInvalidInput, op, err)
	}
	gross := sumEarnings(earned)
	wages, preTax, err := taxableWages(gross, in.Deductions)
	if err != nil {
		return PayRecord{}, ytd.Snapshot{}, apperr.New(apperr.KindInvalidInput, op, err)
	}
	result, err := tax.ComputeWithProfile(wages, profile, in.Filing, opening.Prior())
	if err != nil {
		return PayRecord{}, ytd.Snapshot{}, err
	}

	deductions := append(taxLines(result, profile.State), electionLines(in.Deductions)...)
	totalDeductions := sumDeductions(deductions)
	net := gross - totalDeductions
	if net < 0 {
		return PayRecord{}, ytd.Snapshot{}, apperr.New(apperr.KindInvalidInput, op, ErrNegativeNet)
	}

	delta := ytd.Delta{
		EmployeeID:      in.Employee.ID,
		Year:            in.PayDate.Year(),
		Gross:           gross,
		Net:             net,
		FederalIncome:   result.FederalIncome,
		SocialSecurity:  result.SocialSecurity,
		Medicare:        result.Medicare,
		StateIncome:     result.StateIncome,
		StateDisability: result.StateDisability,
		Local:           result.Local,
		SSWages:         result.SSWages,
		MedicareWages:   result.MedicareWages,
		SDIWages:        result.SDIWages,
		PreTax:          preTax,
		PostTax:         totalDeductions - result.Total() - preTax,
		Earnings:        map[string]money.Cents{},
		Deductions:      map[string]money.Cents{},
	}
	for _, l := range earned {
		delta.Earnings[l.Code] += l.Current
	}
	for _, l := range deductions {
		if l.Current > 0 {
			delta.Deductions[l.Code] += l.Current
		}
	}
	next, err := ytd.Advance(opening, delta, ytd.LimitsFor(profile))
	if err != nil {
		return PayRecord{}, ytd.Snapshot{}, err
	}

	for i := range earned {
		earned[i].YTD = next.Earning(earned[i].Code)
	}
	printed := make([]DeductionLine, 0, len(deductions))
	for _, l := range deductions {
		l.YTD = next.Deduction(l.Code)
		if l.Current == 0 && l.YTD == 0 && !alwaysPrinted(l.Code) {
			continue
		}
		printed = append(printed, l)
	}

	record := PayRecord{
		Company: in.Company,
		Employee: EmployeeOnRecord{
			ID:        in.Employee.ID,
			Name:      in.Employee.Name,
			Address:   in.Employee.Address,
			State:     in.Employee.State,
			SSNMasked: MaskSSN(in.Employee.SSNLast4),
		},
		Jurisdiction: profile.Code,
		FilingStatus: in.Filing.Status,
		PayFrequency: in.Filing.Frequency,
		PeriodStart:  in.PeriodStart,
		PeriodEnd:    in.PeriodEnd,
		PayDate:      in.PayDate,
		NextPayDate:  NextPayDate(in.PayDate, in.Filing.Frequency),
		CheckNumber:  in.CheckNumber,
		Earnings:     earned,
		Deductions:   printed,
		Totals: Totals{
			Gross:              gross,
			GrossYTD:           next.Gross,
			TotalDeductions:    totalDeductions,
			TotalDeductionsYTD: next.Gross - next.Net,
			Net:                net,
			NetYTD:             next.Net,
			AmountInWords:      money.Words(net),
		},
		Benefits: in.Benefits,
		Notes:    in.Notes,
	}
	if err := record.Check(); err != nil {
		return PayRecord{}, ytd.Snapshot{}, err
	}
	return record, next, nil
}

func openingSnapshot(prior ytd.Snapshot, employeeID string, year int) (ytd.Snapshot, error) {
	const op = "payroll.generate"
	if prior.EmployeeID == "" && prior.Periods == 0 {
		return ytd.Open(employeeID, year), nil
	}
	if prior.EmployeeID != employeeID {
		return ytd.Snapshot{}, apperr.New(apperr.KindInvalidInput, op, ytd.ErrSnapshotMismatch)
	}
	switch {
	case prior.Year < year:
		return ytd.Open(employeeID, year), nil
	case prior.Year > year:
		return ytd.Snapshot{}, apperr.New(apperr.KindInvalidInput, op, ytd.ErrSnapshotMismatch)
	}
	return prior, nil
}

func normalize(in PayPeriodInput) PayPeriodInput {
	in.Employee.ID = strings.TrimSpace(in.Employee.ID)
	in.Employee.Name = strings.TrimSpace(in.Employee.Name)
	in.Company.Name = strings.TrimSpace(in.Company.Name)
	in.Jurisdiction = strings.ToUpper(strings.TrimSpace(in.Jurisdiction))
	if status, err := tax.ParseFilingStatus(string(in.Filing.Status)); err == nil {
		in.Filing.Status = status
	}
	if frequency, err := tax.ParsePayFrequency(string(in.Filing.Frequency)); err == nil {
		in.Filing.Frequency = frequency
	}
	elections := make([]DeductionElection, len(in.Deductions))
	for i, e := range in.Deductions {
		e.Code = strings.ToLower(strings.TrimSpace(e.Code))
		e.Treatment = strings.ToLower(strings.TrimSpace(e.Treatment))
		if e.Treatment == "" {
			e.Treatment = TreatmentPostTax
		}
		if strings.TrimSpace(e.Description) == "" {
			e.Description = e.Code
		}
		elections[i] = e
	}
	in.Deductions = elections
	return in
}

func validate(in PayPeriodInput) error {
	const op = "payroll.validate"
	switch {
	case in.Employee.ID == "":
		return apperr.Invalid(op, "employee id is required")
	case in.Employee.Name == "":
		return apperr.Invalid(op, "employee name is required")
	case in.Company.Name == "":
		return apperr.Invalid(op, "company name is required")
	case in.Jurisdiction == "":
		return apperr.Invalid(op, "jurisdiction is required")
	case in.PayDate.IsZero():
		return apperr.Invalid(op, "pay date is required")
	case in.PeriodStart.IsZero() || in.PeriodEnd.IsZero():
		return apperr.Invalid(op, "period start and end are required")
	case in.PeriodEnd.Before(in.PeriodStart.Time):
		return apperr.Invalid(op, "period end is before period start")
	case in.PayDate.Before(in.PeriodStart.Time):
		return apperr.Invalid(op, "pay date is before period start")
	}
	if last4 := strings.TrimSpace(in.Employee.SSNLast4); last4 != "" && !allDigits(last4, 4) {
		return apperr.Invalid(op, "ssn last four must be four digits")
	}
	if _, err := tax.ParseFilingStatus(string(in.Filing.Status)); err != nil {
		return apperr.New(apperr.KindInvalidInput, op, err)
	}
	if in.Filing.Frequency.PeriodsPerYear() == 0 {
		return apperr.New(apperr.KindInvalidInput, op, tax.ErrUnknownPayFrequency)
	}
	for _, d := range []struct {
		name  string
		value bool
	}{
		{"hourly rate", in.HourlyRate.IsNegative()},
		{"regular hours", in.RegularHours.IsNegative()},
		{"overtime hours", in.OvertimeHours.IsNegative()},
		{"overtime rate", in.OvertimeRate.IsNegative()},
		{"overtime multiplier", in.OvertimeMultiplier.IsNegative()},
		{"salary", in.Salary < 0},
		{"bonus", in.Bonus < 0},
		{"commission", in.Commission < 0},
		{"tips", in.Tips < 0},
		{"additional withholding", in.Filing.AdditionalWithholding < 0 || in.Filing.StateAdditionalWithholding < 0},
	} {
		if d.value {
			return apperr.Invalid(op, "%s must not be negative", d.name)
		}
	}
	if err := checkLimits(in); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, e := range in.Deductions {
		if e.Code == "" {
			return apperr.Invalid(op, "deduction code is required")
		}
		if reservedCode(e.Code) {
			return apperr.New(apperr.KindInvalidInput, op, ErrReservedCode)
		}
		if seen[e.Code] {
			return apperr.New(apperr.KindInvalidInput, op, ErrDuplicateCode)
		}
		seen[e.Code] = true
		if e.Amount < 0 {
			return apperr.Invalid(op, "deduction %s must not be negative", e.Code)
		}
		switch e.Treatment {
		case TreatmentRetirement, TreatmentSection125, TreatmentPostTax:
		default:
			return apperr.Invalid(op, "deduction %s has unknown treatment %q", e.Code, e.Treatment)
		}
	}
	return nil
}

// checkLimits caps every caller-supplied figure so the period's arithmetic
// stays inside int64 cents and printable amounts.
func checkLimits(in PayPeriodInput) error {
	const op = "payroll.validate"
	for _, a := range []struct {
		name  string
		value money.Cents
	}{
		{"salary", in.Salary},
		{"bonus", in.Bonus},
		{"commission", in.Commission},
		{"tips", in.Tips},
		{"additional withholding", in.Filing.AdditionalWithholding},
		{"state additional withholding", in.Filing.StateAdditionalWithholding},
	} {
		if a.value > money.MaxAmount {
			return apperr.New(apperr.KindInvalidInput, op, fmt.Errorf("%w: %s exceeds %s", ErrAmountTooLarge, a.name, money.MaxAmount))
		}
	}
	for _, e := range in.Deductions {
		if e.Amount > money.MaxAmount {
			return apperr.New(apperr.KindInvalidInput, op, fmt.Errorf("%w: deduction %s exceeds %s", ErrAmountTooLarge, e.Code, money.MaxAmount))
		}
	}
	for _, d := range []struct {
		name  string
		value decimal.Decimal
		limit decimal.Decimal
	}{
		{"regular hours", in.RegularHours, MaxPeriodHours},
		{"overtime hours", in.OvertimeHours, MaxPeriodHours},
		{"hourly rate", in.HourlyRate, MaxHourlyRate},
		{"overtime rate", in.OvertimeRate, MaxHourlyRate},
		{"overtime multiplier", in.OvertimeMultiplier, MaxOvertimeMultiplier},
	} {
		if d.value.GreaterThan(d.limit) {
			return apperr.New(apperr.KindInvalidInput, op, fmt.Errorf("%w: %s exceeds %s", ErrAmountTooLarge, d.name, d.limit))
		}
	}
	return nil
}

func reservedCode(code string) bool {
	switch code {
	case DeductionFederalIncome, DeductionSocialSecurity, DeductionMedicare, DeductionMedicareSurcharge,
		DeductionStateIncome, DeductionStateDisability:
		return true
	}
	return strings.HasPrefix(code, localDeductionPrefix)
}

func allDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
