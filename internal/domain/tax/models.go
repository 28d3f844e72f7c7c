package tax

import (
	"time"

	"github.com/shopspring/decimal"

	"paystub/internal/domain/money"
)

// Bracket applies Rate to the part of income above Over, up to the next
// bracket's Over.
type Bracket struct {
	Over money.Cents
	Rate decimal.Decimal
}

// Schedule is a progressive table sorted ascending by Over, starting at zero.
type Schedule []Bracket

// WageBaseTax is a flat rate on wages up to an annual wage base. A zero
// WageBase means the tax is uncapped.
type WageBaseTax struct {
	Rate     decimal.Decimal
	WageBase money.Cents
}

type MedicareRules struct {
	Rate               decimal.Decimal
	SurchargeRate      decimal.Decimal
	SurchargeThreshold map[FilingStatus]money.Cents
}

type Federal struct {
	Method            FederalMethod
	Brackets          map[FilingStatus]Schedule
	StandardDeduction map[FilingStatus]money.Cents
	FlatRate          decimal.Decimal
	SocialSecurity    WageBaseTax
	Medicare          MedicareRules
}

type State struct {
	Method            StateMethod
	FlatRate          decimal.Decimal
	Brackets          map[FilingStatus]Schedule
	StandardDeduction map[FilingStatus]money.Cents
	Disability        WageBaseTax
}

// Facts are the filing attributes a local rule condition may inspect.
type Facts struct {
	FilingStatus FilingStatus
	PayFrequency PayFrequency
	Localities   []string
	Residence    string
	State        string
}

// Condition decides whether a local rule applies to a filer.
type Condition interface {
	Applies(Facts) (bool, error)
}

type LocalRule struct {
	Code      string
	Name      string
	Rate      decimal.Decimal
	Condition Condition
}

// Profile is one effective-dated version of a jurisdiction's rules, combined
// with the federal rules in force on the same date.
type Profile struct {
	Code          string
	Name          string
	State         string
	EffectiveFrom time.Time
	Federal       Federal
	StateRules    State
	Locals        []LocalRule
}

// FilingProfile is the employee's withholding election.
type FilingProfile struct {
	Status                     FilingStatus `json:"status"`
	Frequency                  PayFrequency `json:"frequency"`
	Localities                 []string     `json:"localities,omitempty"`
	Residence                  string       `json:"residence,omitempty"`
	AdditionalWithholding      money.Cents  `json:"additionalWithholding,omitempty"`
	StateAdditionalWithholding money.Cents  `json:"stateAdditionalWithholding,omitempty"`
}

// Wages is the period's gross pay together with the bases left after pre-tax
// deductions. Income-tax wages exclude retirement and cafeteria-plan
// deductions; FICA wages exclude cafeteria-plan deductions only.
type Wages struct {
	Gross         money.Cents
	IncomeTaxable money.Cents
	FICATaxable   money.Cents
}

func GrossWages(gross money.Cents) Wages {
	return Wages{Gross: gross, IncomeTaxable: gross, FICATaxable: gross}
}

// PriorYTD is the slice of the year-to-date snapshot the engine needs,
// taken before the current record.
type PriorYTD struct {
	SSWages       money.Cents
	MedicareWages money.Cents
	SDIWages      money.Cents
}

type LocalTax struct {
	Code   string      `json:"code"`
	Name   string      `json:"name"`
	Amount money.Cents `json:"amount"`
}

// Result is the itemized withholding for one record. Medicare includes
// MedicareSurcharge. The *Wages fields are this period's taxable bases after
// wage-base capping, which the YTD tracker accumulates.
type Result struct {
	Jurisdiction      string      `json:"jurisdiction"`
	EffectiveFrom     time.Time   `json:"effectiveFrom"`
	FederalIncome     money.Cents `json:"federalIncome"`
	SocialSecurity    money.Cents `json:"socialSecurity"`
	Medicare          money.Cents `json:"medicare"`
	MedicareSurcharge money.Cents `json:"medicareSurcharge"`
	StateIncome       money.Cents `json:"stateIncome"`
	StateDisability   money.Cents `json:"stateDisability"`
	Local             money.Cents `json:"local"`
	LocalLines        []LocalTax  `json:"localLines,omitempty"`
	SSWages           money.Cents `json:"ssWages"`
	MedicareWages     money.Cents `json:"medicareWages"`
	SDIWages          money.Cents `json:"sdiWages"`
}

func (r Result) Total() money.Cents {
	return money.Sum(r.FederalIncome, r.SocialSecurity, r.Medicare, r.StateIncome, r.StateDisability, r.Local)
}
