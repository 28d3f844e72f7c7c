package tax

import (
	"fmt"
	"time"

	"paystub/internal/domain/money"
)

// ProfileSource is the jurisdiction-rule lookup the engine consumes.
type ProfileSource interface {
	Profile(code string, on time.Time) (Profile, error)
}

// Validate rejects profiles the engine cannot apply consistently.
func (p Profile) Validate() error {
	if p.Code == "" {
		return fmt.Errorf("profile code is required")
	}
	if err := p.Federal.validate(); err != nil {
		return fmt.Errorf("%s federal: %w", p.Code, err)
	}
	if err := p.StateRules.validate(); err != nil {
		return fmt.Errorf("%s state: %w", p.Code, err)
	}
	for _, local := range p.Locals {
		if local.Code == "" {
			return fmt.Errorf("%s local rule without code", p.Code)
		}
		if err := validateRate(local.Rate); err != nil {
			return fmt.Errorf("%s local %s: %w", p.Code, local.Code, err)
		}
	}
	return nil
}

func (f Federal) validate() error {
	switch f.Method {
	case MethodAnnualized:
		for _, status := range FilingStatuses {
			schedule, ok := f.Brackets[status]
			if !ok {
				return fmt.Errorf("missing brackets for %s", status)
			}
			if err := schedule.Validate(); err != nil {
				return fmt.Errorf("%s: %w", status, err)
			}
			if f.StandardDeduction[status] < 0 {
				return fmt.Errorf("negative standard deduction for %s", status)
			}
		}
	case MethodFlat:
		if err := validateRate(f.FlatRate); err != nil {
			return fmt.Errorf("flat rate: %w", err)
		}
	default:
		return fmt.Errorf("unknown federal method %q", f.Method)
	}
	if err := validateWageBaseTax(f.SocialSecurity); err != nil {
		return fmt.Errorf("social security: %w", err)
	}
	if f.SocialSecurity.WageBase <= 0 {
		return fmt.Errorf("social security wage base is required")
	}
	if err := validateRate(f.Medicare.Rate); err != nil {
		return fmt.Errorf("medicare: %w", err)
	}
	if err := validateRate(f.Medicare.SurchargeRate); err != nil {
		return fmt.Errorf("medicare surcharge: %w", err)
	}
	if !f.Medicare.SurchargeRate.IsZero() {
		for _, status := range FilingStatuses {
			if f.Medicare.SurchargeThreshold[status] <= 0 {
				return fmt.Errorf("missing medicare surcharge threshold for %s", status)
			}
		}
	}
	return nil
}

func (s State) validate() error {
	switch s.Method {
	case StateNone:
	case StateFlat:
		if err := validateRate(s.FlatRate); err != nil {
			return fmt.Errorf("flat rate: %w", err)
		}
	case StateBracket:
		for _, status := range FilingStatuses {
			schedule, ok := s.Brackets[status]
			if !ok {
				return fmt.Errorf("missing brackets for %s", status)
			}
			if err := schedule.Validate(); err != nil {
				return fmt.Errorf("%s: %w", status, err)
			}
		}
	default:
		return fmt.Errorf("unknown state method %q", s.Method)
	}
	return validateWageBaseTax(s.Disability)
}

func validateWageBaseTax(w WageBaseTax) error {
	if err := validateRate(w.Rate); err != nil {
		return err
	}
	if w.WageBase < 0 {
		return fmt.Errorf("wage base must not be negative")
	}
	return nil
}

func (p Profile) threshold(status FilingStatus) money.Cents {
	return p.Federal.Medicare.SurchargeThreshold[status]
}
