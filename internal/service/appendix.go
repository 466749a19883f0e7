package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/calculojuridico/revisional-go/internal/domain"
)

// AppendixOverride is one manual per-installment correction supplied with a
// detailed-report request. Expert reports frequently carry billed values
// taken straight from bank statements (exact insurance premiums, a specific
// month's correction factor) that no formula reproduces; the override wins
// over the computed value for that line only.
type AppendixOverride struct {
	Installment int `json:"installment"`
	// CorrectionFactor is the multiplicative index factor for the month
	// (e.g. 1.001195 for TR), applied over the opening balance.
	CorrectionFactor *decimal.Decimal `json:"correction_factor,omitempty"`
	// Charges replaces the computed ancillary total (insurance + fees).
	Charges *decimal.Decimal `json:"charges,omitempty"`
	// TotalInstallment pins the billed installment value.
	TotalInstallment *decimal.Decimal `json:"total_installment,omitempty"`
}

// calcOptions selects between the quick report (AP02/AP04) and the detailed
// appendix set (AP05/AP06/AP07) and carries the manual overrides.
type calcOptions struct {
	overrides map[int]lineOverride
	detailed  bool
}

func (o calcOptions) fairCode() domain.ScenarioCode {
	if o.detailed {
		return domain.ScenarioFairAlt
	}
	return domain.ScenarioFair
}

// projections builds the post-refund consolidation set for the report
// variant: the quick report emits AP04 (plus AP07 under the in-double
// policy); the detailed set always emits both AP06 and AP07 so the expert
// report shows the two restitution hypotheses side by side.
func (o calcOptions) projections(gen *scenarioGenerator, contracted *domain.ScenarioResult, refund decimal.Decimal, in *domain.CalculationInput) []domain.ScenarioResult {
	if o.detailed {
		single := gen.buildProjection(domain.ScenarioProjectionAlt,
			"Consolidação após repetição do indébito", contracted, refund, in.MarketRate, false)
		doubled := gen.buildProjection(domain.ScenarioProjectionDbl,
			"Consolidação com repetição em dobro", contracted, refund, in.MarketRate, true)
		return []domain.ScenarioResult{*single, *doubled}
	}

	single := gen.buildProjection(domain.ScenarioProjection,
		"Consolidação após repetição do indébito", contracted, refund, in.MarketRate, false)
	out := []domain.ScenarioResult{*single}
	if in.Policy.DoubleRefund {
		doubled := gen.buildProjection(domain.ScenarioProjectionDbl,
			"Consolidação com repetição em dobro", contracted, refund, in.MarketRate, true)
		out = append(out, *doubled)
	}
	return out
}

// detailedStrategy is implemented by the amortized-loan strategies. The
// credit-card confrontation has no appendix form, so it deliberately does
// not implement it.
type detailedStrategy interface {
	CalculateDetailed(ctx context.Context, in *domain.CalculationInput, overrides map[int]lineOverride) (*domain.CalculationResult, error)
}

func overrideMap(list []AppendixOverride) map[int]lineOverride {
	if len(list) == 0 {
		return nil
	}
	out := make(map[int]lineOverride, len(list))
	for _, ov := range list {
		entry := out[ov.Installment]
		if ov.CorrectionFactor != nil {
			rate := ov.CorrectionFactor.Sub(decimal.NewFromInt(1))
			entry.CorrectionRate = &rate
		}
		if ov.Charges != nil {
			entry.Charges = ov.Charges
		}
		if ov.TotalInstallment != nil {
			entry.Installment = ov.TotalInstallment
		}
		out[ov.Installment] = entry
	}
	return out
}

// CalculateDetailed is the long-form entry point: the full appendix set
// with manual per-installment overrides applied, for expert-report output.
func (s *CalculationService) CalculateDetailed(ctx context.Context, in *domain.CalculationInput, overrides []AppendixOverride) (*domain.CalculationResult, error) {
	ctx, span := tracer.Start(ctx, "calculation.appendices")
	defer span.End()

	start := time.Now()
	strat, err := s.strategyFor(in)
	if err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	for _, ov := range overrides {
		if ov.Installment < 1 || ov.Installment > in.Installments {
			return nil, &domain.ErrValidation{Field: "overrides", Message: "installment number out of range"}
		}
	}

	detailed, ok := strat.(detailedStrategy)
	if !ok {
		return nil, &domain.ErrValidation{Field: "loan_data", Message: "detailed appendices are not available for this loan type"}
	}
	span.SetAttributes(
		attribute.String("loan.kind", string(strat.Kind())),
		attribute.Int("overrides", len(overrides)),
	)

	if err := s.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrTimeout{Operation: "calculation slot"}
	}
	defer s.bulkhead.Release()

	result, err := detailed.CalculateDetailed(ctx, in, overrideMap(overrides))
	s.observe("appendices", strat.Kind(), start, err)
	return result, err
}
