// Package fincalc implements the decimal arithmetic of the engine: interest
// formulas, the annuity payment, rate conversions and the CET solver.
//
// Every monetary and rate value is a shopspring decimal; binary floats appear
// only inside math.Pow for fractional exponents, the same compromise the
// rest of the codebase's schedule math makes. Rounding to 2 places happens
// at presentation time only; intermediate truncation is the most common
// source of amortization-table drift.
package fincalc

import (
	"math"

	"github.com/shopspring/decimal"
)

func init() {
	// Division feeds every interest/amortization step; the default 16
	// digits is not enough headroom for 600-installment tables.
	if decimal.DivisionPrecision < 28 {
		decimal.DivisionPrecision = 28
	}
}

var one = decimal.NewFromInt(1)

// MonthlyInterest returns balance × monthlyRate.
func MonthlyInterest(balance, monthlyRate decimal.Decimal) decimal.Decimal {
	return balance.Mul(monthlyRate)
}

// DailyEquivalentRate converts a monthly rate to the equivalent daily rate
// under compounding: (1+m)^(1/30) − 1.
func DailyEquivalentRate(monthlyRate decimal.Decimal) decimal.Decimal {
	f := math.Pow(1+monthlyRate.InexactFloat64(), 1.0/30.0) - 1
	return decimal.NewFromFloat(f)
}

// DailyInterest applies a monthly rate over the actual elapsed days between
// two due dates, compounded daily: balance × ((1+m)^(days/30) − 1).
//
// This path exists because banks sometimes embed daily compounding inside an
// advertised monthly rate, which yields a higher effective annual cost than
// monthly compounding would.
func DailyInterest(balance, monthlyRate decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	factor := math.Pow(1+monthlyRate.InexactFloat64(), float64(days)/30.0) - 1
	return balance.Mul(decimal.NewFromFloat(factor))
}

// PMT is the standard annuity payment: principal × r / (1 − (1+r)^−n).
// A zero rate degrades to an even principal split.
func PMT(principal, monthlyRate decimal.Decimal, periods int) decimal.Decimal {
	if periods <= 0 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(periods))
	if monthlyRate.IsZero() {
		return principal.Div(n)
	}
	// (1+r)^n with an integer exponent stays in decimal arithmetic.
	factor := one.Add(monthlyRate).Pow(n)
	return principal.Mul(monthlyRate).Mul(factor).Div(factor.Sub(one))
}

// MonthlyToAnnual converts a monthly rate to its effective annual
// equivalent: (1+m)^12 − 1.
func MonthlyToAnnual(monthlyRate decimal.Decimal) decimal.Decimal {
	return one.Add(monthlyRate).Pow(decimal.NewFromInt(12)).Sub(one)
}

// AnnualToMonthly converts an effective annual rate to its monthly
// equivalent: (1+a)^(1/12) − 1.
func AnnualToMonthly(annualRate decimal.Decimal) decimal.Decimal {
	f := math.Pow(1+annualRate.InexactFloat64(), 1.0/12.0) - 1
	return decimal.NewFromFloat(f)
}

// Round2 rounds half-up to 2 decimal places, for presentation.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithinCents reports whether a and b differ by at most tol currency units.
func WithinCents(a, b decimal.Decimal, tol float64) bool {
	return a.Sub(b).Abs().LessThanOrEqual(decimal.NewFromFloat(tol))
}
