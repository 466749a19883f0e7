package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/calculojuridico/revisional-go/internal/domain"
	"github.com/calculojuridico/revisional-go/internal/fincalc"
	"github.com/calculojuridico/revisional-go/internal/infra/observability"
	"github.com/calculojuridico/revisional-go/internal/port"
	"github.com/calculojuridico/revisional-go/internal/statute"
)

// prefetchConcurrency bounds parallel rate-history lookups during the
// correction-series prefetch. The provider caches per month, so a 420-month
// contract resolves in a few round trips.
const prefetchConcurrency = 8

// realEstateStrategy handles SFH/SFI financing: monetary correction applied
// before interest, MIP/DFI insurance, admin fee and an optional grace
// period, on SAC, SACRE or PRICE schedules.
type realEstateStrategy struct {
	gen     *scenarioGenerator
	rates   port.RateHistoryProvider
	metrics *observability.Metrics
	logger  *zap.Logger
}

func newRealEstateStrategy(gen *scenarioGenerator, rates port.RateHistoryProvider, metrics *observability.Metrics, logger *zap.Logger) *realEstateStrategy {
	return &realEstateStrategy{gen: gen, rates: rates, metrics: metrics, logger: logger}
}

func (s *realEstateStrategy) Kind() domain.LoanKind { return domain.LoanRealEstate }

func (s *realEstateStrategy) data(in *domain.CalculationInput) (*domain.RealEstateLoanData, error) {
	d, ok := in.LoanData.(*domain.RealEstateLoanData)
	if !ok {
		return nil, &domain.ErrValidation{Field: "loan_data", Message: "real-estate payload expected"}
	}
	return d, nil
}

func (s *realEstateStrategy) Preview(ctx context.Context, in *domain.CalculationInput) (*domain.PreviewResult, error) {
	if _, err := s.data(in); err != nil {
		return nil, err
	}
	flags := domain.PreviewFlags{
		DailyCapitalizationSuspected: statute.DetectDailyCapitalization(in.MonthlyRate, in.YearlyRate),
		AnatocismSuspected:           in.Capitalization == domain.CapitalizationDaily,
	}
	return buildPreview(in, flags), nil
}

// correctionSeries prefetches the monthly correction rates of the whole
// term in one bounded-concurrency batch. A month the provider cannot serve
// even after its own fallback contributes the caller-supplied gap rate
// (zero when omitted) rather than aborting the calculation; the gap is
// logged and reported by the caller.
func (s *realEstateStrategy) correctionSeries(ctx context.Context, index string, firstDue time.Time, n int, gapRate decimal.Decimal) ([]decimal.Decimal, []string, error) {
	rates := make([]decimal.Decimal, n)
	missing := make([]string, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)
	for k := 0; k < n; k++ {
		k := k
		g.Go(func() error {
			ref := fincalc.ReferenceMonth(fincalc.AddMonths(firstDue, k))
			rate, err := s.rates.Rate(ctx, index, ref)
			if err != nil {
				var unavailable *domain.ErrIndexUnavailable
				if errors.As(err, &unavailable) {
					s.logger.Warn("correction index gap, applying gap rate",
						zap.String("index", index),
						zap.String("month", ref),
						zap.String("gap_rate", gapRate.String()),
					)
					s.metrics.IncrExternalError("rate-history")
					rates[k] = gapRate
					missing[k] = ref
					return nil
				}
				return err
			}
			rates[k] = rate
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var gaps []string
	for _, m := range missing {
		if m != "" {
			gaps = append(gaps, m)
		}
	}
	return rates, gaps, nil
}

func (s *realEstateStrategy) Calculate(ctx context.Context, in *domain.CalculationInput) (*domain.CalculationResult, error) {
	return s.run(ctx, in, calcOptions{})
}

func (s *realEstateStrategy) CalculateDetailed(ctx context.Context, in *domain.CalculationInput, overrides map[int]lineOverride) (*domain.CalculationResult, error) {
	return s.run(ctx, in, calcOptions{overrides: overrides, detailed: true})
}

func (s *realEstateStrategy) run(ctx context.Context, in *domain.CalculationInput, opts calcOptions) (*domain.CalculationResult, error) {
	d, err := s.data(in)
	if err != nil {
		return nil, err
	}
	if d.GraceMonths < 0 || d.GraceMonths >= in.Installments {
		return nil, &domain.ErrValidation{Field: "grace_months", Message: "must leave at least one amortizing installment"}
	}

	var corrections []decimal.Decimal
	var gaps []string
	if d.CorrectionIndex != "" && s.rates != nil {
		corrections, gaps, err = s.correctionSeries(ctx, d.CorrectionIndex, in.FirstDueDate, in.Installments, d.GapCorrectionRate)
		if err != nil {
			return nil, err
		}
	}

	recon := domain.ReconciliationMap(in.Reconciliation)

	fairAdminFee := d.AdminFee
	if in.Policy.ExcludeIrregularCharges {
		fairAdminFee = decimal.Zero
	}

	var contracted, fair *domain.ScenarioResult
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		contracted = s.gen.build(tableSpec{
			Code:           domain.ScenarioContracted,
			Title:          "Evolução contratada",
			Principal:      in.Principal,
			Installments:   in.Installments,
			Rate:           in.MonthlyRate,
			System:         in.System,
			Capitalization: in.Capitalization,
			ContractDate:   in.ContractDate,
			FirstDueDate:   in.FirstDueDate,
			GraceMonths:    d.GraceMonths,
			Corrections:    corrections,
			MIPRate:        d.MIPRate,
			DFIRate:        d.DFIRate,
			AdminFee:       d.AdminFee,
			PropertyValue:  d.PropertyValue,
			Reconciliation: recon,
			Overrides:      opts.overrides,
		})
		return nil
	})
	g.Go(func() error {
		// Monetary correction is lawful and stays in the fair table; only
		// the rate, the capitalization mode and disputed fees change.
		fair = s.gen.build(tableSpec{
			Code:           opts.fairCode(),
			Title:          "Evolução revisada (taxa de mercado)",
			Principal:      in.Principal,
			Installments:   in.Installments,
			Rate:           in.MarketRate,
			System:         in.System,
			Capitalization: domain.CapitalizationMonthly,
			ContractDate:   in.ContractDate,
			FirstDueDate:   in.FirstDueDate,
			GraceMonths:    d.GraceMonths,
			Corrections:    corrections,
			MIPRate:        d.MIPRate,
			DFIRate:        d.DFIRate,
			AdminFee:       fairAdminFee,
			PropertyValue:  d.PropertyValue,
			Reconciliation: recon,
			Overrides:      opts.overrides,
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	differences := buildDifferences(contracted, fair)
	refund := differences.Totals.TotalRefund

	scenarios := append([]domain.ScenarioResult{*contracted, *fair, *differences},
		opts.projections(s.gen, contracted, refund, in)...)

	var findings []domain.Finding
	if statute.DetectDailyCapitalization(in.MonthlyRate, in.YearlyRate) {
		findings = append(findings, domain.Finding{
			Code:    domain.FindingDailyCapitalization,
			Message: "stated yearly rate exceeds the annualized monthly rate: undisclosed daily compounding suspected",
			Value:   in.YearlyRate,
		})
	}
	if classifyAbuse(in.MonthlyRate, in.MarketRate, abuseThreshold(in.Policy)) == domain.AbuseAbusive {
		findings = append(findings, domain.Finding{
			Code:    domain.FindingAbusiveRate,
			Message: "contracted rate exceeds the abuse threshold over the market average",
			Value:   in.MonthlyRate,
		})
	}
	for _, month := range gaps {
		findings = append(findings, domain.Finding{
			Code:    domain.FindingIndexGap,
			Message: "correction index unavailable for " + month + "; gap correction rate applied",
			Value:   d.GapCorrectionRate,
		})
	}
	findings = append(findings, residueFindings(recon, contracted, fair)...)

	cet, err := solveCET(contracted, in.Principal, in.MonthlyRate)
	if err != nil {
		return nil, err
	}

	return &domain.CalculationResult{
		ID:          newResultID(),
		Kind:        domain.LoanRealEstate,
		Scenarios:   scenarios,
		CET:         cet,
		Findings:    findings,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
