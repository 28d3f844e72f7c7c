package tax

import (
	"fmt"

	"github.com/shopspring/decimal"

	"paystub/internal/domain/money"
)

// Validate checks the table shape: ascending thresholds starting at zero and
// rates in [0, 1).
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("bracket table is empty")
	}
	if s[0].Over != 0 {
		return fmt.Errorf("first bracket must start at 0, got %s", s[0].Over.Plain())
	}
	for i, b := range s {
		if err := validateRate(b.Rate); err != nil {
			return fmt.Errorf("bracket %d: %w", i, err)
		}
		if i > 0 && b.Over <= s[i-1].Over {
			return fmt.Errorf("bracket %d: threshold %s not above %s", i, b.Over.Plain(), s[i-1].Over.Plain())
		}
	}
	return nil
}

// Liability returns the unrounded tax on income, in cents.
func (s Schedule) Liability(income money.Cents) decimal.Decimal {
	total := decimal.Zero
	if income <= 0 {
		return total
	}
	for i, b := range s {
		if income <= b.Over {
			break
		}
		upper := income
		if i+1 < len(s) && s[i+1].Over < income {
			upper = s[i+1].Over
		}
		portion := decimal.NewFromInt(int64(upper - b.Over))
		total = total.Add(portion.Mul(b.Rate))
	}
	return total
}

// Annualized withholds per period: annualize taxable wages, subtract the
// standard deduction, run the schedule and spread the annual liability back
// over the periods, rounding once at the end.
func Annualized(s Schedule, taxable money.Cents, deduction money.Cents, periods int64) money.Cents {
	if periods <= 0 || taxable <= 0 {
		return 0
	}
	annual := (taxable*money.Cents(periods) - deduction).Max0()
	liability := s.Liability(annual)
	return money.Cents(liability.Div(decimal.NewFromInt(periods)).Round(0).IntPart())
}

// CapToWageBase returns the part of wages still under the annual base given
// the capped wages already accumulated this year. A zero base is uncapped.
// The YTD tracker caps with the same function.
func CapToWageBase(wages, priorCapped, wageBase money.Cents) money.Cents {
	if wages <= 0 {
		return 0
	}
	if wageBase <= 0 {
		return wages
	}
	remaining := (wageBase - priorCapped).Max0()
	return money.Min(wages, remaining)
}

// SurchargeWages is the part of this period's wages that lands above the
// threshold once added to the prior cumulative wages.
func SurchargeWages(wages, priorWages, threshold money.Cents) money.Cents {
	if wages <= 0 {
		return 0
	}
	after := priorWages + wages
	if after <= threshold {
		return 0
	}
	floor := threshold
	if priorWages > floor {
		floor = priorWages
	}
	return money.Min(wages, after-floor)
}

func validateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("rate %s outside [0, 1)", rate.String())
	}
	return nil
}
