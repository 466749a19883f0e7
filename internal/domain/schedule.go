package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScenarioCode names one generated table of a revisional report.
type ScenarioCode string

const (
	ScenarioContracted    ScenarioCode = "AP01" // as billed by the bank
	ScenarioFair          ScenarioCode = "AP02" // recomputed at the market rate
	ScenarioDifferences   ScenarioCode = "AP03" // line-by-line indébito
	ScenarioProjection    ScenarioCode = "AP04" // post-refund consolidation
	ScenarioFairAlt       ScenarioCode = "AP05" // fair table, detailed report
	ScenarioProjectionAlt ScenarioCode = "AP06" // consolidation, single refund
	ScenarioProjectionDbl ScenarioCode = "AP07" // consolidation, doubled refund
)

// AmortizationLine is one row of a generated table. Line 0 is the synthetic
// Momento Zero disbursement: balance goes from zero to +principal with no
// interest, amortization or payment, so day counts and cashflow-based
// calculations (CET/IRR) have a well-defined origin.
type AmortizationLine struct {
	Number           int             `json:"number"`
	DueDate          time.Time       `json:"due_date"`
	OpeningBalance   decimal.Decimal `json:"opening_balance"`
	Correction       decimal.Decimal `json:"correction"`
	CorrectedBalance decimal.Decimal `json:"corrected_balance"`
	Interest         decimal.Decimal `json:"interest"`
	Amortization     decimal.Decimal `json:"amortization"`
	ClosingBalance   decimal.Decimal `json:"closing_balance"`
	BaseInstallment  decimal.Decimal `json:"base_installment"`
	// Charges groups the ancillary additions (MIP + DFI insurance,
	// admin fee) composed into the total installment.
	Charges          decimal.Decimal `json:"charges"`
	TotalInstallment decimal.Decimal `json:"total_installment"`
	Status           PaymentStatus   `json:"status"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	// Comparison fields, populated only in the differences table:
	// the fair-scenario counterparts and the signed per-line difference.
	OtherInterest    decimal.Decimal `json:"other_interest,omitempty"`
	OtherInstallment decimal.Decimal `json:"other_installment,omitempty"`
	Difference       decimal.Decimal `json:"difference,omitempty"`
}

// ScenarioTotals aggregates one scenario table.
type ScenarioTotals struct {
	Principal      decimal.Decimal `json:"principal"`
	TotalInterest  decimal.Decimal `json:"total_interest"`
	TotalInsurance decimal.Decimal `json:"total_insurance"`
	TotalFees      decimal.Decimal `json:"total_fees"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	TotalRefund    decimal.Decimal `json:"total_refund"`
	TotalOwed      decimal.Decimal `json:"total_owed"`
}

// ScenarioResult is one named table plus its aggregate totals.
type ScenarioResult struct {
	Code   ScenarioCode       `json:"code"`
	Title  string             `json:"title"`
	Lines  []AmortizationLine `json:"lines"`
	Totals ScenarioTotals     `json:"totals"`
}

// LastPaidLine returns the highest line number whose status is PAID,
// or zero when nothing was paid.
func (s *ScenarioResult) LastPaidLine() int {
	last := 0
	for _, l := range s.Lines {
		if l.Number > 0 && l.Status == PaymentPaid {
			last = l.Number
		}
	}
	return last
}

// CETResult is the effective total cost of credit solved over the
// contracted cashflow.
type CETResult struct {
	MonthlyRate decimal.Decimal `json:"monthly_rate"`
	AnnualRate  decimal.Decimal `json:"annual_rate"`
	Iterations  int             `json:"iterations"`
}

// CalculationResult is the full output of one revisional calculation:
// the scenario tables, the audit CET, the statutory findings and, for
// credit cards, the settlement confrontation.
type CalculationResult struct {
	ID        string           `json:"id"`
	Kind      LoanKind         `json:"kind"`
	Scenarios []ScenarioResult `json:"scenarios"`
	CET       *CETResult       `json:"cet,omitempty"`
	Findings  []Finding        `json:"findings,omitempty"`
	// Settlement fields, populated by the credit-card strategy.
	SettlementInstallment  int             `json:"settlement_installment,omitempty"`
	AmountBeyondSettlement decimal.Decimal `json:"amount_beyond_settlement,omitempty"`
	GeneratedAt            time.Time       `json:"generated_at"`
}

// Scenario returns the table with the given code, or nil.
func (r *CalculationResult) Scenario(code ScenarioCode) *ScenarioResult {
	for i := range r.Scenarios {
		if r.Scenarios[i].Code == code {
			return &r.Scenarios[i]
		}
	}
	return nil
}
