package payroll

import "errors"

var (
	ErrPreTaxExceedsGross = errors.New("pre-tax deductions exceed gross pay")
	ErrNegativeNet        = errors.New("deductions exceed gross pay")
	ErrNetMismatch        = errors.New("net pay does not equal gross minus deductions")
	ErrGrossMismatch      = errors.New("gross pay does not equal the sum of earnings")
	ErrWordsMismatch      = errors.New("amount in words does not match net pay")
	ErrDuplicateCode      = errors.New("deduction code used more than once")
	ErrReservedCode       = errors.New("deduction code is reserved for taxes")
	ErrAmountTooLarge     = errors.New("amount above the supported maximum")
)
