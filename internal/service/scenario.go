package service

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/calculojuridico/revisional-go/internal/domain"
	"github.com/calculojuridico/revisional-go/internal/fincalc"
)

// balanceTolerance is the residue allowed on the terminal closing balance
// of a fully amortizing table. Anything above it indicates a rate-precision
// or date-generation defect and is surfaced as a finding.
var balanceTolerance = decimal.NewFromFloat(0.01)

// lineOverride carries the manual per-installment adjustments of the
// detailed appendix generator. Nil pointers mean "no override".
type lineOverride struct {
	CorrectionRate *decimal.Decimal
	Charges        *decimal.Decimal
	Installment    *decimal.Decimal
}

// tableSpec parameterizes one table generation. The same generator builds
// the contracted table (AP01), the fair tables (AP02/AP05) and the
// post-refund projections, varying only rate, capitalization and charges.
type tableSpec struct {
	Code           domain.ScenarioCode
	Title          string
	Principal      decimal.Decimal
	Installments   int
	Rate           decimal.Decimal
	System         domain.AmortizationSystem
	Capitalization domain.Capitalization
	ContractDate   time.Time
	FirstDueDate   time.Time
	GraceMonths    int

	// Corrections holds the monthly correction rate per installment
	// (index 0 = installment 1). Empty means no monetary correction.
	Corrections []decimal.Decimal

	// Real-estate ancillary charges.
	MIPRate       decimal.Decimal
	DFIRate       decimal.Decimal
	AdminFee      decimal.Decimal
	PropertyValue decimal.Decimal

	Reconciliation map[int]domain.PaymentEntry
	Overrides      map[int]lineOverride
}

// scenarioGenerator is the shared table builder of all strategies.
type scenarioGenerator struct {
	logger *zap.Logger
}

// build generates a full amortization table. The running balance is
// threaded through the loop as local state; each line is appended as an
// immutable value, so a generated table is never mutated afterwards.
func (g *scenarioGenerator) build(spec tableSpec) *domain.ScenarioResult {
	n := spec.Installments
	result := &domain.ScenarioResult{
		Code:  spec.Code,
		Title: spec.Title,
		Lines: make([]domain.AmortizationLine, 0, n+1),
	}

	// Momento Zero: balance goes 0 → +principal at the contract date, so
	// the disbursement-to-first-due day count and the CET cashflow have a
	// defined origin.
	result.Lines = append(result.Lines, domain.AmortizationLine{
		Number:           0,
		DueDate:          spec.ContractDate,
		OpeningBalance:   decimal.Zero,
		CorrectedBalance: spec.Principal,
		ClosingBalance:   spec.Principal,
		Status:           domain.PaymentPaid,
	})

	balance := spec.Principal
	prevDue := spec.ContractDate
	amortizable := n - spec.GraceMonths

	// PRICE keeps a constant base installment over the amortizing term.
	var pricePayment decimal.Decimal
	if spec.System == domain.SystemPrice {
		pricePayment = fincalc.PMT(spec.Principal, spec.Rate, amortizable)
	}

	// SAC keeps a constant amortization slice; SACRE re-levels it at the
	// start of every 12-installment block.
	var sacSlice decimal.Decimal
	if spec.System == domain.SystemSAC && amortizable > 0 {
		sacSlice = spec.Principal.Div(decimal.NewFromInt(int64(amortizable)))
	}

	// GAUSS (simple interest): constant installment P(1+i·n)/n with the
	// total simple interest distributed by linearly decreasing weights, so
	// the balance amortizes to exactly zero without compounding.
	var gaussPayment, gaussInterestTotal, gaussWeightSum decimal.Decimal
	if spec.System == domain.SystemGauss && n > 0 {
		nDec := decimal.NewFromInt(int64(n))
		gaussInterestTotal = spec.Principal.Mul(spec.Rate).Mul(nDec)
		gaussPayment = spec.Principal.Add(gaussInterestTotal).Div(nDec)
		gaussWeightSum = nDec.Mul(nDec.Add(decimal.NewFromInt(1))).Div(decimal.NewFromInt(2))
	}

	totals := domain.ScenarioTotals{Principal: spec.Principal}

	for k := 1; k <= n; k++ {
		due := fincalc.AddMonths(spec.FirstDueDate, k-1)
		opening := balance

		// Monetary correction comes first: interest accrues on the
		// corrected balance, never the other way around.
		correction := decimal.Zero
		if len(spec.Corrections) >= k {
			rate := spec.Corrections[k-1]
			if ov, ok := spec.Overrides[k]; ok && ov.CorrectionRate != nil {
				rate = *ov.CorrectionRate
			}
			correction = opening.Mul(rate)
		} else if ov, ok := spec.Overrides[k]; ok && ov.CorrectionRate != nil {
			correction = opening.Mul(*ov.CorrectionRate)
		}
		corrected := opening.Add(correction)

		var interest decimal.Decimal
		switch {
		case spec.System == domain.SystemGauss:
			weight := decimal.NewFromInt(int64(n - k + 1))
			interest = gaussInterestTotal.Mul(weight).Div(gaussWeightSum)
		case spec.Capitalization == domain.CapitalizationDaily:
			days := fincalc.DaysBetween(prevDue, due)
			interest = fincalc.DailyInterest(corrected, spec.Rate, days)
		default:
			interest = fincalc.MonthlyInterest(corrected, spec.Rate)
		}

		var amortization decimal.Decimal
		switch {
		case k <= spec.GraceMonths:
			// Grace period: interest-only installments.
			amortization = decimal.Zero
		case spec.System == domain.SystemPrice:
			amortization = pricePayment.Sub(interest)
		case spec.System == domain.SystemSAC:
			amortization = sacSlice
		case spec.System == domain.SystemSACRE:
			// Re-level at each 12-installment block boundary: slice =
			// current balance over remaining amortizing term, which grows
			// the nominal slice as the schedule progresses.
			if (k-spec.GraceMonths-1)%12 == 0 {
				remaining := n - k + 1
				sacSlice = corrected.Div(decimal.NewFromInt(int64(remaining)))
			}
			amortization = sacSlice
		case spec.System == domain.SystemGauss:
			amortization = gaussPayment.Sub(interest)
		}

		// Final installment absorbs accumulated rounding drift so the
		// balance closes at zero.
		if k == n && k > spec.GraceMonths {
			amortization = corrected
		}

		baseInstallment := amortization.Add(interest)

		// Ancillary charges: MIP over the corrected balance, DFI over the
		// property value, plus the fixed admin fee.
		mip := corrected.Mul(spec.MIPRate)
		dfi := spec.PropertyValue.Mul(spec.DFIRate)
		charges := mip.Add(dfi).Add(spec.AdminFee)
		if ov, ok := spec.Overrides[k]; ok && ov.Charges != nil {
			charges = *ov.Charges
			mip = decimal.Zero
			dfi = decimal.Zero
		}

		total := baseInstallment.Add(charges)
		if ov, ok := spec.Overrides[k]; ok && ov.Installment != nil {
			total = *ov.Installment
		}

		status := domain.PaymentPending
		paid := decimal.Zero
		extra := decimal.Zero
		if entry, ok := spec.Reconciliation[k]; ok {
			status = entry.Status
			paid = entry.PaidAmount
			extra = entry.ExtraAmortization
		}

		closing := corrected.Sub(amortization).Sub(extra)
		balance = closing
		prevDue = due

		result.Lines = append(result.Lines, domain.AmortizationLine{
			Number:           k,
			DueDate:          due,
			OpeningBalance:   opening,
			Correction:       correction,
			CorrectedBalance: corrected,
			Interest:         interest,
			Amortization:     amortization,
			ClosingBalance:   closing,
			BaseInstallment:  baseInstallment,
			Charges:          charges,
			TotalInstallment: total,
			Status:           status,
			PaidAmount:       paid,
		})

		totals.TotalInterest = totals.TotalInterest.Add(interest)
		totals.TotalInsurance = totals.TotalInsurance.Add(mip).Add(dfi)
		totals.TotalFees = totals.TotalFees.Add(spec.AdminFee)
		totals.TotalPaid = totals.TotalPaid.Add(paid)
	}

	totals.TotalOwed = balance
	result.Totals = totals
	return result
}

// terminalResidue returns the absolute terminal balance when it exceeds the
// tolerance of a fully amortizing table, or zero when the table closed
// cleanly. Extra amortizations legitimately drive the balance negative
// before term, so only the last line is checked.
func terminalResidue(table *domain.ScenarioResult) decimal.Decimal {
	if len(table.Lines) < 2 {
		return decimal.Zero
	}
	last := table.Lines[len(table.Lines)-1].ClosingBalance.Abs()
	if last.GreaterThan(balanceTolerance) {
		return last
	}
	return decimal.Zero
}

// buildDifferences produces the AP03 table: per-line subtraction of the
// fair table from the contracted table. The refund total accumulates only
// over lines whose contracted status is PAID; unpaid and future
// installments have not been overpaid yet and are not part of an indébito
// claim.
func buildDifferences(contracted, fair *domain.ScenarioResult) *domain.ScenarioResult {
	result := &domain.ScenarioResult{
		Code:  domain.ScenarioDifferences,
		Title: "Diferenças apuradas (cobrado × devido)",
		Lines: make([]domain.AmortizationLine, 0, len(contracted.Lines)),
	}

	refund := decimal.Zero
	for i := range contracted.Lines {
		cl := contracted.Lines[i]
		if cl.Number == 0 {
			result.Lines = append(result.Lines, cl)
			continue
		}
		var fl domain.AmortizationLine
		if i < len(fair.Lines) {
			fl = fair.Lines[i]
		}

		diff := cl.TotalInstallment.Sub(fl.TotalInstallment)
		if cl.Status == domain.PaymentPaid {
			refund = refund.Add(diff)
		}

		result.Lines = append(result.Lines, domain.AmortizationLine{
			Number:           cl.Number,
			DueDate:          cl.DueDate,
			Interest:         cl.Interest,
			TotalInstallment: cl.TotalInstallment,
			Status:           cl.Status,
			PaidAmount:       cl.PaidAmount,
			OtherInterest:    fl.Interest,
			OtherInstallment: fl.TotalInstallment,
			Difference:       diff,
		})
	}

	result.Totals = domain.ScenarioTotals{
		Principal:     contracted.Totals.Principal,
		TotalInterest: contracted.Totals.TotalInterest.Sub(fair.Totals.TotalInterest),
		TotalPaid:     contracted.Totals.TotalPaid,
		TotalRefund:   refund,
	}
	return result
}

// buildProjection produces a post-refund consolidation table: the
// accumulated refund (doubled under the in-double policy) is netted against
// the outstanding balance at the last paid installment, and the remaining
// term is re-amortized at the market rate. With no installments remaining
// the table degenerates to only the refund total.
func (g *scenarioGenerator) buildProjection(
	code domain.ScenarioCode,
	title string,
	contracted *domain.ScenarioResult,
	refund decimal.Decimal,
	marketRate decimal.Decimal,
	double bool,
) *domain.ScenarioResult {
	if double {
		refund = refund.Mul(decimal.NewFromInt(2))
	}

	lastPaid := contracted.LastPaidLine()
	remaining := len(contracted.Lines) - 1 - lastPaid

	if remaining <= 0 {
		return &domain.ScenarioResult{
			Code:   code,
			Title:  title,
			Totals: domain.ScenarioTotals{TotalRefund: refund},
		}
	}

	outstanding := contracted.Lines[lastPaid].ClosingBalance
	newBalance := outstanding.Sub(refund)
	if newBalance.IsNegative() {
		// Refund exceeds the debt: nothing left to amortize, the surplus
		// stays reported in the refund total.
		return &domain.ScenarioResult{
			Code:   code,
			Title:  title,
			Totals: domain.ScenarioTotals{TotalRefund: refund, TotalOwed: newBalance},
		}
	}

	nextDue := contracted.Lines[lastPaid+1].DueDate
	table := g.build(tableSpec{
		Code:           code,
		Title:          title,
		Principal:      newBalance,
		Installments:   remaining,
		Rate:           marketRate,
		System:         domain.SystemPrice,
		Capitalization: domain.CapitalizationMonthly,
		ContractDate:   contracted.Lines[lastPaid].DueDate,
		FirstDueDate:   nextDue,
	})
	table.Totals.TotalRefund = refund
	return table
}
