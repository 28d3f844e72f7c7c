// Package ytd advances per-employee year-to-date totals one pay record at a
// time. Advance is a pure merge; storage and deduplication live with the
// caller.
package ytd

import (
	"strings"

	"paystub/internal/domain/money"
	"paystub/internal/domain/tax"
	"paystub/internal/platform/apperr"
)

// Snapshot is the running total for one employee and calendar year.
type Snapshot struct {
	EmployeeID      string                 `json:"employeeId"`
	Year            int                    `json:"year"`
	Periods         int                    `json:"periods"`
	Gross           money.Cents            `json:"gross"`
	Net             money.Cents            `json:"net"`
	FederalIncome   money.Cents            `json:"federalIncome"`
	SocialSecurity  money.Cents            `json:"socialSecurity"`
	Medicare        money.Cents            `json:"medicare"`
	StateIncome     money.Cents            `json:"stateIncome"`
	StateDisability money.Cents            `json:"stateDisability"`
	Local           money.Cents            `json:"local"`
	SSWages         money.Cents            `json:"ssWages"`
	MedicareWages   money.Cents            `json:"medicareWages"`
	SDIWages        money.Cents            `json:"sdiWages"`
	PreTax          money.Cents            `json:"preTax"`
	PostTax         money.Cents            `json:"postTax"`
	Earnings        map[string]money.Cents `json:"earnings,omitempty"`
	Deductions      map[string]money.Cents `json:"deductions,omitempty"`
}

// Delta is one finalized pay record's contribution.
type Delta struct {
	EmployeeID      string
	Year            int
	Gross           money.Cents
	Net             money.Cents
	FederalIncome   money.Cents
	SocialSecurity  money.Cents
	Medicare        money.Cents
	StateIncome     money.Cents
	StateDisability money.Cents
	Local           money.Cents
	SSWages         money.Cents
	MedicareWages   money.Cents
	SDIWages        money.Cents
	PreTax          money.Cents
	PostTax         money.Cents
	Earnings        map[string]money.Cents
	Deductions      map[string]money.Cents
}

// Limits carries the annual wage bases in force for the record, so the
// tracker caps wage counters the same way the tax engine did.
type Limits struct {
	SSWageBase  money.Cents
	SDIWageBase money.Cents
}

// LimitsFor extracts the wage bases from a resolved jurisdiction profile.
func LimitsFor(p tax.Profile) Limits {
	return Limits{
		SSWageBase:  p.Federal.SocialSecurity.WageBase,
		SDIWageBase: p.StateRules.Disability.WageBase,
	}
}

// Open returns the empty snapshot an employee starts the year with.
func Open(employeeID string, year int) Snapshot {
	return Snapshot{EmployeeID: strings.TrimSpace(employeeID), Year: year}
}

// Prior is the part of the snapshot the tax engine reads.
func (s Snapshot) Prior() tax.PriorYTD {
	return tax.PriorYTD{SSWages: s.SSWages, MedicareWages: s.MedicareWages, SDIWages: s.SDIWages}
}

// Earning returns the year-to-date amount for an earnings code.
func (s Snapshot) Earning(code string) money.Cents {
	return s.Earnings[code]
}

func (s Snapshot) Deduction(code string) money.Cents {
	return s.Deductions[code]
}

// Advance returns prior plus delta. The prior snapshot is not modified.
// Calling it twice with the same delta counts the record twice.
func Advance(prior Snapshot, delta Delta, limits Limits) (Snapshot, error) {
	const op = "ytd.advance"
	if prior.EmployeeID == "" || prior.Year <= 0 {
		return Snapshot{}, apperr.New(apperr.KindInvalidInput, op, ErrSnapshotIdentity)
	}
	if strings.TrimSpace(delta.EmployeeID) != prior.EmployeeID || delta.Year != prior.Year {
		return Snapshot{}, apperr.New(apperr.KindInvalidInput, op, ErrSnapshotMismatch)
	}
	if err := delta.validate(); err != nil {
		return Snapshot{}, apperr.New(apperr.KindInvalidInput, op, err)
	}

	next := prior
	next.Periods++
	next.Gross += delta.Gross
	next.Net += delta.Net
	next.FederalIncome += delta.FederalIncome
	next.SocialSecurity += delta.SocialSecurity
	next.Medicare += delta.Medicare
	next.StateIncome += delta.StateIncome
	next.StateDisability += delta.StateDisability
	next.Local += delta.Local
	next.SSWages += tax.CapToWageBase(delta.SSWages, prior.SSWages, limits.SSWageBase)
	next.MedicareWages += delta.MedicareWages
	next.SDIWages += tax.CapToWageBase(delta.SDIWages, prior.SDIWages, limits.SDIWageBase)
	next.PreTax += delta.PreTax
	next.PostTax += delta.PostTax
	next.Earnings = mergeCodes(prior.Earnings, delta.Earnings)
	next.Deductions = mergeCodes(prior.Deductions, delta.Deductions)
	return next, nil
}

func (d Delta) validate() error {
	amounts := []money.Cents{
		d.Gross, d.Net, d.FederalIncome, d.SocialSecurity, d.Medicare, d.StateIncome,
		d.StateDisability, d.Local, d.SSWages, d.MedicareWages, d.SDIWages, d.PreTax, d.PostTax,
	}
	for _, amount := range amounts {
		if amount < 0 {
			return ErrNegativeDelta
		}
	}
	for _, amount := range d.Earnings {
		if amount < 0 {
			return ErrNegativeDelta
		}
	}
	for _, amount := range d.Deductions {
		if amount < 0 {
			return ErrNegativeDelta
		}
	}
	return nil
}

func mergeCodes(prior, delta map[string]money.Cents) map[string]money.Cents {
	if len(prior) == 0 && len(delta) == 0 {
		return nil
	}
	out := make(map[string]money.Cents, len(prior)+len(delta))
	for code, amount := range prior {
		out[code] = amount
	}
	for code, amount := range delta {
		out[code] += amount
	}
	return out
}
