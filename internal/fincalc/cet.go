package fincalc

import (
	"github.com/shopspring/decimal"

	"github.com/calculojuridico/revisional-go/internal/domain"
)

const cetMaxIterations = 100

// cetTolerance is the residual below which the solver accepts a root.
var cetTolerance = decimal.New(1, -8) // 1e-8

// CET solves for the monthly rate r that equates the net disbursed amount
// with the present value of the installment stream:
//
//	principalNet = Σ installment_k / (1+r)^k
//
// principalNet is the principal minus any upfront fees (the borrower
// effectively received less than the contract face value, which is exactly
// what raises the effective cost). Newton–Raphson runs from the seed rate
// with a bisection fallback when a step leaves the bracket; after 100
// iterations without convergence the solver fails explicitly rather than
// return a guess.
//
// A cashflow where the sum paid does not exceed the net principal has no
// positive cost and resolves to a zero rate.
func CET(principalNet decimal.Decimal, installments []decimal.Decimal, seed decimal.Decimal) (decimal.Decimal, int, error) {
	total := decimal.Zero
	for _, v := range installments {
		total = total.Add(v)
	}
	if total.LessThanOrEqual(principalNet) {
		return decimal.Zero, 0, nil
	}

	// Bracket the root: the residual is positive at r=0 and strictly
	// decreasing in r, so double hi until the residual turns negative.
	lo := decimal.Zero
	hi := decimal.NewFromInt(1)
	for i := 0; i < 20; i++ {
		if f, _ := cetResidual(hi, principalNet, installments); f.IsNegative() {
			break
		}
		hi = hi.Mul(decimal.NewFromInt(2))
	}

	r := seed
	if r.LessThanOrEqual(lo) || r.GreaterThanOrEqual(hi) {
		r = lo.Add(hi).Div(decimal.NewFromInt(2))
	}

	for iter := 1; iter <= cetMaxIterations; iter++ {
		f, fprime := cetResidual(r, principalNet, installments)
		if f.Abs().LessThanOrEqual(cetTolerance) {
			return r, iter, nil
		}

		// Tighten the bracket with the sign of the residual.
		if f.IsPositive() {
			lo = r
		} else {
			hi = r
		}

		next := r
		if !fprime.IsZero() {
			next = r.Sub(f.Div(fprime))
		}
		if fprime.IsZero() || next.LessThanOrEqual(lo) || next.GreaterThanOrEqual(hi) {
			// Newton left the bracket; bisect instead.
			next = lo.Add(hi).Div(decimal.NewFromInt(2))
		}
		r = next
	}

	f, _ := cetResidual(r, principalNet, installments)
	return decimal.Zero, cetMaxIterations, &domain.ErrNoConvergence{
		Iterations: cetMaxIterations,
		Residual:   f.String(),
	}
}

// cetResidual evaluates f(r) = Σ inst_k/(1+r)^k − principalNet and its
// derivative in a single O(N) pass.
func cetResidual(r, principalNet decimal.Decimal, installments []decimal.Decimal) (f, fprime decimal.Decimal) {
	factor := one.Add(r)
	pow := one
	f = principalNet.Neg()
	fprime = decimal.Zero

	for k, v := range installments {
		pow = pow.Mul(factor)
		term := v.Div(pow)
		f = f.Add(term)
		// d/dr [v·(1+r)^−k] = −k·term/(1+r)
		kDec := decimal.NewFromInt(int64(k + 1))
		fprime = fprime.Sub(term.Mul(kDec).Div(factor))
	}
	return f, fprime
}
