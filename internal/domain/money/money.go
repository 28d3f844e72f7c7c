package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents is a currency amount in minor units. All payroll arithmetic stays in
// Cents; decimals only appear for rates and hours.
type Cents int64

// MaxAmount is the largest single amount a pay period may carry: one
// billion dollars. Sums of bounded amounts stay far inside int64.
const MaxAmount Cents = 100_000_000_000

var ErrOverflow = errors.New("amount out of range")

var (
	hundred  = decimal.NewFromInt(100)
	minCents = decimal.NewFromInt(math.MinInt64)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// FromDecimal converts a dollar amount, rounding half away from zero. It
// fails with ErrOverflow when the result does not fit in Cents.
func FromDecimal(dollars decimal.Decimal) (Cents, error) {
	cents := dollars.Mul(hundred).Round(0)
	if cents.LessThan(minCents) || cents.GreaterThan(maxCents) {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, dollars.String())
	}
	return Cents(cents.IntPart()), nil
}

// Parse accepts "1234.56", "$1,234.56" or "-12.5".
func Parse(raw string) (Cents, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")
	if cleaned == "" {
		return 0, nil
	}
	parsed, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if parsed.Exponent() < -2 && !parsed.Equal(parsed.Round(2)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", raw)
	}
	c, err := FromDecimal(parsed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return c, nil
}

func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// MulRate multiplies by a rate (or hours) and rounds half away from zero to
// the nearest cent.
func (c Cents) MulRate(rate decimal.Decimal) Cents {
	return Cents(decimal.NewFromInt(int64(c)).Mul(rate).Round(0).IntPart())
}

// DivRound divides by n, rounding half away from zero.
func (c Cents) DivRound(n int64) Cents {
	if n == 0 {
		return 0
	}
	return Cents(decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(n)).Round(0).IntPart())
}

func (c Cents) Max0() Cents {
	if c < 0 {
		return 0
	}
	return c
}

func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

func Sum(values ...Cents) Cents {
	var total Cents
	for _, v := range values {
		total += v
	}
	return total
}

// Plain renders without grouping, e.g. "-1234.05".
func (c Cents) Plain() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// String renders with thousands separators, e.g. "1,234.05".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := fmt.Sprintf("%d", v/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s%s.%02d", sign, b.String(), v%100)
}

// MarshalCSV writes dollars without grouping so spreadsheets read a number.
func (c Cents) MarshalCSV() (string, error) {
	return c.Plain(), nil
}

func (c *Cents) UnmarshalCSV(raw string) error {
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
