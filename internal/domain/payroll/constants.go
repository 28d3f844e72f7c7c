package payroll

import "github.com/shopspring/decimal"

const (
	EarningRegular    = "regular"
	EarningSalary     = "salary"
	EarningOvertime   = "overtime"
	EarningBonus      = "bonus"
	EarningCommission = "commission"
	EarningTips       = "tips"

	TreatmentRetirement = "retirement"
	TreatmentSection125 = "section125"
	TreatmentPostTax    = "post_tax"

	CategoryTax     = "tax"
	CategoryPreTax  = "pre_tax"
	CategoryPostTax = "post_tax"

	DeductionFederalIncome     = "federal_income"
	DeductionSocialSecurity    = "social_security"
	DeductionMedicare          = "medicare"
	DeductionMedicareSurcharge = "additional_medicare"
	DeductionStateIncome       = "state_income"
	DeductionStateDisability   = "state_disability"
	localDeductionPrefix       = "local_"
)

// Upper bounds on one period's inputs. 744 hours is a 31-day month.
var (
	MaxPeriodHours        = decimal.NewFromInt(744)
	MaxHourlyRate         = decimal.NewFromInt(1_000_000)
	MaxOvertimeMultiplier = decimal.NewFromInt(10)
)
