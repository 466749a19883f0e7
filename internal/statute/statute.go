// Package statute implements the statutory and irregularity validators the
// strategies run during a full calculation. Validators return findings, not
// errors: an irregular contract still gets its tables computed.
package statute

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calculojuridico/revisional-go/internal/domain"
	"github.com/calculojuridico/revisional-go/internal/fincalc"
)

// originationFeeCutoff is the last contract date on which TAC/TEC
// origination fees were legal (Resolução CMN 3.518/2007). Fees charged on
// contracts dated strictly after it are irregular.
var originationFeeCutoff = time.Date(2008, time.April, 30, 0, 0, 0, 0, time.UTC)

// CheckOriginationFee reports whether a TAC/TEC fee is irregular for the
// given contract date. A zero fee is always legal regardless of date; a
// fee dated exactly on the cutoff is legal.
func CheckOriginationFee(fee decimal.Decimal, contractDate time.Time) bool {
	if fee.LessThanOrEqual(decimal.Zero) {
		return false
	}
	d := time.Date(contractDate.Year(), contractDate.Month(), contractDate.Day(), 0, 0, 0, 0, time.UTC)
	return d.After(originationFeeCutoff)
}

// CheckInsuranceConsent returns the names of insurance items charged
// without the borrower's consent ("venda casada"). Zero-valued items are
// ignored even when unconsented.
func CheckInsuranceConsent(items []domain.InsuranceItem) []string {
	var irregular []string
	for _, it := range items {
		if !it.Consented && it.Value.GreaterThan(decimal.Zero) {
			irregular = append(irregular, it.Name)
		}
	}
	return irregular
}

// CheckLateChargeCumulation reports whether a comissão de permanência
// coexists with moratorium interest or a contractual penalty in the same
// period. Stacking the three punitive charges is prohibited (Súmula 472
// STJ); permanência alone, or interest/penalty without permanência, is
// legal.
func CheckLateChargeCumulation(permanencia, moratorium, penalty decimal.Decimal) bool {
	if permanencia.LessThanOrEqual(decimal.Zero) {
		return false
	}
	return moratorium.GreaterThan(decimal.Zero) || penalty.GreaterThan(decimal.Zero)
}

// dailyCapTolerance is the relative slack allowed between the stated yearly
// rate and the annualized monthly rate before daily compounding is
// suspected. Contracts legitimately round their disclosed rates, so a
// small excess is not a signal.
var dailyCapTolerance = decimal.NewFromFloat(0.015)

// DetectDailyCapitalization reports whether the stated yearly rate exceeds
// the effective annual equivalent of the stated monthly rate by more than
// the tolerance. That excess is the signature of undisclosed daily
// compounding inside an advertised monthly rate.
func DetectDailyCapitalization(monthlyRate, statedYearlyRate decimal.Decimal) bool {
	if monthlyRate.LessThanOrEqual(decimal.Zero) || statedYearlyRate.LessThanOrEqual(decimal.Zero) {
		return false
	}
	equivalent := fincalc.MonthlyToAnnual(monthlyRate)
	if equivalent.IsZero() {
		return false
	}
	excess := statedYearlyRate.Sub(equivalent).Div(equivalent)
	return excess.GreaterThan(dailyCapTolerance)
}

// Findings wraps the individual checks into result findings for the
// consumer-loan strategy.
func Findings(data *domain.ConsumerLoanData, contractDate time.Time, monthlyRate, yearlyRate decimal.Decimal) []domain.Finding {
	var out []domain.Finding

	if CheckOriginationFee(data.TACFee, contractDate) {
		out = append(out, domain.Finding{
			Code:    domain.FindingIrregularOriginationFee,
			Message: "TAC charged on contract dated after 2008-04-30",
			Value:   data.TACFee,
		})
	}
	if CheckOriginationFee(data.TECFee, contractDate) {
		out = append(out, domain.Finding{
			Code:    domain.FindingIrregularOriginationFee,
			Message: "TEC charged on contract dated after 2008-04-30",
			Value:   data.TECFee,
		})
	}
	for _, name := range CheckInsuranceConsent(data.Insurance) {
		out = append(out, domain.Finding{
			Code:    domain.FindingInsuranceNoConsent,
			Message: fmt.Sprintf("insurance %q charged without explicit consent", name),
		})
	}
	if CheckLateChargeCumulation(data.PermanenciaRate, data.MoratoriumRate, data.PenaltyRate) {
		out = append(out, domain.Finding{
			Code:    domain.FindingLateChargeCumulation,
			Message: "comissão de permanência cumulated with moratorium interest or penalty",
		})
	}
	if DetectDailyCapitalization(monthlyRate, yearlyRate) {
		out = append(out, domain.Finding{
			Code:    domain.FindingDailyCapitalization,
			Message: "stated yearly rate exceeds the annualized monthly rate: undisclosed daily compounding suspected",
			Value:   yearlyRate,
		})
	}
	return out
}
