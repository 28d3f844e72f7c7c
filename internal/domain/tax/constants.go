package tax

import (
	"strings"
)

type FilingStatus string

const (
	Single          FilingStatus = "single"
	MarriedJoint    FilingStatus = "married_joint"
	MarriedSeparate FilingStatus = "married_separate"
	HeadOfHousehold FilingStatus = "head_of_household"
)

var FilingStatuses = []FilingStatus{Single, MarriedJoint, MarriedSeparate, HeadOfHousehold}

// ParseFilingStatus accepts the canonical keys plus the common short forms
// printed on W-4 style forms.
func ParseFilingStatus(raw string) (FilingStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	switch normalized {
	case "single", "s":
		return Single, nil
	case "married", "married_joint", "married_filing_jointly", "mfj":
		return MarriedJoint, nil
	case "married_separate", "married_filing_separately", "mfs":
		return MarriedSeparate, nil
	case "head_of_household", "hoh":
		return HeadOfHousehold, nil
	}
	return "", ErrUnknownFilingStatus
}

type PayFrequency string

const (
	Weekly      PayFrequency = "weekly"
	Biweekly    PayFrequency = "biweekly"
	Semimonthly PayFrequency = "semimonthly"
	Monthly     PayFrequency = "monthly"
)

func ParsePayFrequency(raw string) (PayFrequency, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "", "_", "", " ", "").Replace(normalized)
	switch PayFrequency(normalized) {
	case Weekly, Biweekly, Semimonthly, Monthly:
		return PayFrequency(normalized), nil
	}
	return "", ErrUnknownPayFrequency
}

// PeriodsPerYear is the annualization factor for the frequency, or 0 when the
// frequency is unknown.
func (f PayFrequency) PeriodsPerYear() int64 {
	switch f {
	case Weekly:
		return 52
	case Biweekly:
		return 26
	case Semimonthly:
		return 24
	case Monthly:
		return 12
	}
	return 0
}

type FederalMethod string

const (
	MethodAnnualized FederalMethod = "annualized"
	MethodFlat       FederalMethod = "flat"
)

type StateMethod string

const (
	StateNone    StateMethod = "none"
	StateFlat    StateMethod = "flat"
	StateBracket StateMethod = "bracket"
)
