package jurisdiction

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paystub/internal/domain/money"
	"paystub/internal/domain/tax"
)

type catalogueFile struct {
	Version       int                `yaml:"version"`
	Federal       []federalFile      `yaml:"federal"`
	Jurisdictions []jurisdictionFile `yaml:"jurisdictions"`
}

type bracketFile struct {
	Over string `yaml:"over"`
	Rate string `yaml:"rate"`
}

type wageBaseFile struct {
	Rate     string `yaml:"rate"`
	WageBase string `yaml:"wage_base"`
}

type medicareFile struct {
	Rate               string            `yaml:"rate"`
	SurchargeRate      string            `yaml:"surcharge_rate"`
	SurchargeThreshold map[string]string `yaml:"surcharge_threshold"`
}

type federalFile struct {
	EffectiveFrom     string                   `yaml:"effective_from"`
	Method            string                   `yaml:"method"`
	FlatRate          string                   `yaml:"flat_rate"`
	SocialSecurity    wageBaseFile             `yaml:"social_security"`
	Medicare          medicareFile             `yaml:"medicare"`
	StandardDeduction map[string]string        `yaml:"standard_deduction"`
	Brackets          map[string][]bracketFile `yaml:"brackets"`
}

type stateFile struct {
	Method            string                   `yaml:"method"`
	FlatRate          string                   `yaml:"flat_rate"`
	StandardDeduction map[string]string        `yaml:"standard_deduction"`
	Brackets          map[string][]bracketFile `yaml:"brackets"`
}

type localFile struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	Rate string `yaml:"rate"`
	When string `yaml:"when"`
}

type versionFile struct {
	EffectiveFrom string       `yaml:"effective_from"`
	FederalMethod string       `yaml:"federal_method"`
	State         stateFile    `yaml:"state"`
	Disability    wageBaseFile `yaml:"disability"`
	Locals        []localFile  `yaml:"locals"`
}

type jurisdictionFile struct {
	Code     string        `yaml:"code"`
	Name     string        `yaml:"name"`
	State    string        `yaml:"state"`
	Versions []versionFile `yaml:"versions"`
}

func parseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("effective_from %q must be YYYY-MM-DD", raw)
	}
	return parsed, nil
}

func parseRate(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q", raw)
	}
	return rate, nil
}

func parseAmount(raw string) (money.Cents, error) {
	return money.Parse(raw)
}

func (w wageBaseFile) build() (tax.WageBaseTax, error) {
	rate, err := parseRate(w.Rate)
	if err != nil {
		return tax.WageBaseTax{}, err
	}
	base, err := parseAmount(w.WageBase)
	if err != nil {
		return tax.WageBaseTax{}, err
	}
	return tax.WageBaseTax{Rate: rate, WageBase: base}, nil
}

func statusKey(key string) (tax.FilingStatus, error) {
	status, err := tax.ParseFilingStatus(key)
	if err != nil {
		return "", fmt.Errorf("unknown filing status key %q", key)
	}
	return status, nil
}

// fillFromSingle copies the single entry into every status the table leaves
// out.
func fillFromSingle[T any](out map[tax.FilingStatus]T) {
	single, ok := out[tax.Single]
	if !ok {
		return
	}
	for _, status := range tax.FilingStatuses {
		if _, ok := out[status]; !ok {
			out[status] = single
		}
	}
}

func buildAmounts(raw map[string]string) (map[tax.FilingStatus]money.Cents, error) {
	out := map[tax.FilingStatus]money.Cents{}
	for key, value := range raw {
		status, err := statusKey(key)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(value)
		if err != nil {
			return nil, err
		}
		out[status] = amount
	}
	fillFromSingle(out)
	return out, nil
}

func buildSchedules(raw map[string][]bracketFile) (map[tax.FilingStatus]tax.Schedule, error) {
	out := map[tax.FilingStatus]tax.Schedule{}
	for key, rows := range raw {
		status, err := statusKey(key)
		if err != nil {
			return nil, err
		}
		schedule := make(tax.Schedule, 0, len(rows))
		for _, row := range rows {
			over, err := parseAmount(row.Over)
			if err != nil {
				return nil, err
			}
			rate, err := parseRate(row.Rate)
			if err != nil {
				return nil, err
			}
			schedule = append(schedule, tax.Bracket{Over: over, Rate: rate})
		}
		out[status] = schedule
	}
	fillFromSingle(out)
	return out, nil
}

func (f federalFile) build() (time.Time, tax.Federal, error) {
	from, err := parseDate(f.EffectiveFrom)
	if err != nil {
		return time.Time{}, tax.Federal{}, err
	}
	fed := tax.Federal{Method: tax.FederalMethod(strings.ToLower(strings.TrimSpace(f.Method)))}
	if fed.FlatRate, err = parseRate(f.FlatRate); err != nil {
		return from, fed, err
	}
	if fed.SocialSecurity, err = f.SocialSecurity.build(); err != nil {
		return from, fed, fmt.Errorf("social_security: %w", err)
	}
	if fed.Medicare.Rate, err = parseRate(f.Medicare.Rate); err != nil {
		return from, fed, err
	}
	if fed.Medicare.SurchargeRate, err = parseRate(f.Medicare.SurchargeRate); err != nil {
		return from, fed, err
	}
	if fed.Medicare.SurchargeThreshold, err = buildAmounts(f.Medicare.SurchargeThreshold); err != nil {
		return from, fed, fmt.Errorf("surcharge_threshold: %w", err)
	}
	if fed.StandardDeduction, err = buildAmounts(f.StandardDeduction); err != nil {
		return from, fed, fmt.Errorf("standard_deduction: %w", err)
	}
	if fed.Brackets, err = buildSchedules(f.Brackets); err != nil {
		return from, fed, fmt.Errorf("brackets: %w", err)
	}
	return from, fed, nil
}

func (s stateFile) build() (tax.State, error) {
	method := strings.ToLower(strings.TrimSpace(s.Method))
	if method == "" {
		method = string(tax.StateNone)
	}
	st := tax.State{Method: tax.StateMethod(method)}
	var err error
	if st.FlatRate, err = parseRate(s.FlatRate); err != nil {
		return st, err
	}
	if st.StandardDeduction, err = buildAmounts(s.StandardDeduction); err != nil {
		return st, fmt.Errorf("standard_deduction: %w", err)
	}
	if st.Brackets, err = buildSchedules(s.Brackets); err != nil {
		return st, fmt.Errorf("brackets: %w", err)
	}
	return st, nil
}
