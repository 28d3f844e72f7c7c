package tax

import "errors"

var (
	ErrUnknownJurisdiction = errors.New("unknown jurisdiction code")
	ErrNoEffectiveProfile  = errors.New("no jurisdiction profile effective on pay date")
	ErrUnknownFilingStatus = errors.New("unknown filing status")
	ErrUnknownPayFrequency = errors.New("unknown pay frequency")
	ErrNegativeGross       = errors.New("gross pay must not be negative")
	ErrTaxableExceedsGross = errors.New("taxable wages must be between zero and gross pay")
	ErrTaxExceedsGross     = errors.New("itemized taxes exceed gross pay")
)
