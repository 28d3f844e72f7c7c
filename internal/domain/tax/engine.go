package tax

import (
	"strings"
	"time"

	"paystub/internal/domain/money"
	"paystub/internal/platform/apperr"
)

// Engine computes itemized withholding for one pay record. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	profiles ProfileSource
}

func NewEngine(profiles ProfileSource) *Engine {
	return &Engine{profiles: profiles}
}

// Compute resolves the jurisdiction profile effective on the pay date and
// applies it. Unknown or missing profiles are configuration errors.
func (e *Engine) Compute(w Wages, jurisdiction string, on time.Time, fp FilingProfile, prior PriorYTD) (Result, error) {
	const op = "tax.compute"
	if err := validateInputs(w, fp, prior); err != nil {
		return Result{}, err
	}
	profile, err := e.Resolve(jurisdiction, on)
	if err != nil {
		return Result{}, err
	}
	return ComputeWithProfile(w, profile, fp, prior)
}

// Resolve returns the profile in force for the jurisdiction on the given
// date.
func (e *Engine) Resolve(jurisdiction string, on time.Time) (Profile, error) {
	const op = "tax.resolve"
	if e.profiles == nil {
		return Profile{}, apperr.Configuration(op, "no jurisdiction profile source configured")
	}
	profile, err := e.profiles.Profile(jurisdiction, on)
	if err != nil {
		return Profile{}, apperr.New(apperr.KindConfiguration, op, err)
	}
	return profile, nil
}

// ComputeWithProfile is the pure computation against an already resolved
// profile.
func ComputeWithProfile(w Wages, p Profile, fp FilingProfile, prior PriorYTD) (Result, error) {
	const op = "tax.compute"
	if err := validateInputs(w, fp, prior); err != nil {
		return Result{}, err
	}
	if err := p.Validate(); err != nil {
		return Result{}, apperr.New(apperr.KindConfiguration, op, err)
	}

	res := Result{Jurisdiction: p.Code, EffectiveFrom: p.EffectiveFrom}
	periods := fp.Frequency.PeriodsPerYear()

	res.SSWages = CapToWageBase(w.FICATaxable, prior.SSWages, p.Federal.SocialSecurity.WageBase)
	res.SocialSecurity = res.SSWages.MulRate(p.Federal.SocialSecurity.Rate)

	res.MedicareWages = w.FICATaxable
	base := w.FICATaxable.MulRate(p.Federal.Medicare.Rate)
	if !p.Federal.Medicare.SurchargeRate.IsZero() {
		over := SurchargeWages(w.FICATaxable, prior.MedicareWages, p.threshold(fp.Status))
		res.MedicareSurcharge = over.MulRate(p.Federal.Medicare.SurchargeRate)
	}
	res.Medicare = base + res.MedicareSurcharge

	federal := p.Federal
	switch federal.Method {
	case MethodAnnualized:
		res.FederalIncome = Annualized(federal.Brackets[fp.Status], w.IncomeTaxable, federal.StandardDeduction[fp.Status], periods)
	case MethodFlat:
		res.FederalIncome = w.IncomeTaxable.MulRate(federal.FlatRate)
	}

	state := p.StateRules
	switch state.Method {
	case StateFlat:
		res.StateIncome = w.IncomeTaxable.MulRate(state.FlatRate)
	case StateBracket:
		res.StateIncome = Annualized(state.Brackets[fp.Status], w.IncomeTaxable, state.StandardDeduction[fp.Status], periods)
	}
	if !state.Disability.Rate.IsZero() {
		res.SDIWages = CapToWageBase(w.FICATaxable, prior.SDIWages, state.Disability.WageBase)
		res.StateDisability = res.SDIWages.MulRate(state.Disability.Rate)
	}

	lines, err := localTaxes(p, fp, w.IncomeTaxable)
	if err != nil {
		return Result{}, apperr.New(apperr.KindConfiguration, op, err)
	}
	for _, line := range lines {
		res.Local += line.Amount
	}
	res.LocalLines = lines

	applyAdditionalWithholding(&res, w.Gross, fp)
	if res.Total() > w.Gross {
		return Result{}, apperr.New(apperr.KindIntegrity, op, ErrTaxExceedsGross)
	}
	return res, nil
}

// applyAdditionalWithholding adds the elective extra amounts, trimmed so the
// itemized total never exceeds gross.
func applyAdditionalWithholding(res *Result, gross money.Cents, fp FilingProfile) {
	headroom := (gross - res.Total()).Max0()
	extra := money.Min(fp.AdditionalWithholding.Max0(), headroom)
	res.FederalIncome += extra
	headroom -= extra
	res.StateIncome += money.Min(fp.StateAdditionalWithholding.Max0(), headroom)
}

func localTaxes(p Profile, fp FilingProfile, taxable money.Cents) ([]LocalTax, error) {
	if len(p.Locals) == 0 || taxable <= 0 {
		return nil, nil
	}
	facts := Facts{
		FilingStatus: fp.Status,
		PayFrequency: fp.Frequency,
		Localities:   normalizeCodes(fp.Localities),
		Residence:    strings.ToUpper(strings.TrimSpace(fp.Residence)),
		State:        p.State,
	}
	var out []LocalTax
	for _, rule := range p.Locals {
		code := strings.ToUpper(rule.Code)
		if !containsCode(facts.Localities, code) && facts.Residence != code {
			continue
		}
		if rule.Condition != nil {
			ok, err := rule.Condition.Applies(facts)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, LocalTax{Code: code, Name: rule.Name, Amount: taxable.MulRate(rule.Rate)})
	}
	return out, nil
}

func validateInputs(w Wages, fp FilingProfile, prior PriorYTD) error {
	const op = "tax.compute"
	if w.Gross < 0 {
		return apperr.New(apperr.KindInvalidInput, op, ErrNegativeGross)
	}
	if w.IncomeTaxable < 0 || w.IncomeTaxable > w.Gross || w.FICATaxable < 0 || w.FICATaxable > w.Gross {
		return apperr.New(apperr.KindInvalidInput, op, ErrTaxableExceedsGross)
	}
	if prior.SSWages < 0 || prior.MedicareWages < 0 || prior.SDIWages < 0 {
		return apperr.Invalid(op, "prior year-to-date wages must not be negative")
	}
	if fp.AdditionalWithholding < 0 || fp.StateAdditionalWithholding < 0 {
		return apperr.Invalid(op, "additional withholding must not be negative")
	}
	if !isCanonicalStatus(fp.Status) {
		return apperr.New(apperr.KindInvalidInput, op, ErrUnknownFilingStatus)
	}
	if fp.Frequency.PeriodsPerYear() == 0 {
		return apperr.New(apperr.KindInvalidInput, op, ErrUnknownPayFrequency)
	}
	return nil
}

func isCanonicalStatus(status FilingStatus) bool {
	for _, s := range FilingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
