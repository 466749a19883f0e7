package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/calculojuridico/revisional-go/internal/domain"
	"github.com/calculojuridico/revisional-go/internal/statute"
)

// consumerStrategy handles unsecured personal loans and vehicle financing:
// no monetary correction, optional origination fees and insurance, late
// charges checked against the cumulation rule.
type consumerStrategy struct {
	gen    *scenarioGenerator
	logger *zap.Logger
}

func newConsumerStrategy(gen *scenarioGenerator, logger *zap.Logger) *consumerStrategy {
	return &consumerStrategy{gen: gen, logger: logger}
}

func (s *consumerStrategy) Kind() domain.LoanKind { return domain.LoanConsumer }

func (s *consumerStrategy) data(in *domain.CalculationInput) (*domain.ConsumerLoanData, error) {
	d, ok := in.LoanData.(*domain.ConsumerLoanData)
	if !ok {
		return nil, &domain.ErrValidation{Field: "loan_data", Message: "consumer payload expected"}
	}
	return d, nil
}

func (s *consumerStrategy) Preview(ctx context.Context, in *domain.CalculationInput) (*domain.PreviewResult, error) {
	d, err := s.data(in)
	if err != nil {
		return nil, err
	}
	flags := domain.PreviewFlags{
		DailyCapitalizationSuspected: statute.DetectDailyCapitalization(in.MonthlyRate, in.YearlyRate),
		AbusiveInsurance:             len(statute.CheckInsuranceConsent(d.Insurance)) > 0,
		IrregularOriginationFee: statute.CheckOriginationFee(d.TACFee, in.ContractDate) ||
			statute.CheckOriginationFee(d.TECFee, in.ContractDate),
		AnatocismSuspected: in.Capitalization == domain.CapitalizationDaily,
	}
	return buildPreview(in, flags), nil
}

// disputedCharges sums the tariffs a fair scenario excludes: date-irregular
// origination fees and insurance charged without consent. Consented
// insurance and pre-cutoff fees stay in.
func disputedCharges(d *domain.ConsumerLoanData, contractDate time.Time) decimal.Decimal {
	total := decimal.Zero
	if statute.CheckOriginationFee(d.TACFee, contractDate) {
		total = total.Add(d.TACFee)
	}
	if statute.CheckOriginationFee(d.TECFee, contractDate) {
		total = total.Add(d.TECFee)
	}
	for _, it := range d.Insurance {
		if !it.Consented && it.Value.GreaterThan(decimal.Zero) {
			total = total.Add(it.Value)
		}
	}
	return total
}

// upfrontFees sums every financed fee regardless of legality, for the CET
// cashflow: the borrower effectively received principal minus fees.
func upfrontFees(d *domain.ConsumerLoanData) decimal.Decimal {
	total := d.TACFee.Add(d.TECFee).Add(d.RegistrationFee)
	for _, it := range d.Insurance {
		total = total.Add(it.Value)
	}
	return total
}

func (s *consumerStrategy) Calculate(ctx context.Context, in *domain.CalculationInput) (*domain.CalculationResult, error) {
	return s.run(ctx, in, calcOptions{})
}

func (s *consumerStrategy) CalculateDetailed(ctx context.Context, in *domain.CalculationInput, overrides map[int]lineOverride) (*domain.CalculationResult, error) {
	return s.run(ctx, in, calcOptions{overrides: overrides, detailed: true})
}

func (s *consumerStrategy) run(ctx context.Context, in *domain.CalculationInput, opts calcOptions) (*domain.CalculationResult, error) {
	d, err := s.data(in)
	if err != nil {
		return nil, err
	}

	recon := domain.ReconciliationMap(in.Reconciliation)

	fairPrincipal := in.Principal
	if in.Policy.ExcludeIrregularCharges {
		fairPrincipal = fairPrincipal.Sub(disputedCharges(d, in.ContractDate))
	}

	// The two base tables are independent; generate them concurrently.
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
			Reconciliation: recon,
			Overrides:      opts.overrides,
		})
		return nil
	})
	g.Go(func() error {
		fair = s.gen.build(tableSpec{
			Code:           opts.fairCode(),
			Title:          "Evolução revisada (taxa de mercado)",
			Principal:      fairPrincipal,
			Installments:   in.Installments,
			Rate:           in.MarketRate,
			System:         in.System,
			Capitalization: domain.CapitalizationMonthly,
			ContractDate:   in.ContractDate,
			FirstDueDate:   in.FirstDueDate,
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

	findings := statute.Findings(d, in.ContractDate, in.MonthlyRate, in.YearlyRate)
	if classifyAbuse(in.MonthlyRate, in.MarketRate, abuseThreshold(in.Policy)) == domain.AbuseAbusive {
		findings = append(findings, domain.Finding{
			Code:    domain.FindingAbusiveRate,
			Message: "contracted rate exceeds the abuse threshold over the market average",
			Value:   in.MonthlyRate,
		})
	}
	findings = append(findings, residueFindings(recon, contracted, fair)...)

	cet, err := solveCET(contracted, in.Principal.Sub(upfrontFees(d)), in.MonthlyRate)
	if err != nil {
		return nil, err
	}

	return &domain.CalculationResult{
		ID:          newResultID(),
		Kind:        domain.LoanConsumer,
		Scenarios:   scenarios,
		CET:         cet,
		Findings:    findings,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// residueFindings surfaces tables that failed to amortize to zero. A payment
// history with extra amortizations legitimately closes the balance early
// (negative residue), so the check is skipped in that case.
func residueFindings(recon map[int]domain.PaymentEntry, tables ...*domain.ScenarioResult) []domain.Finding {
	for _, e := range recon {
		if e.ExtraAmortization.GreaterThan(decimal.Zero) {
			return nil
		}
	}
	var out []domain.Finding
	for _, t := range tables {
		if r := terminalResidue(t); !r.IsZero() {
			out = append(out, domain.Finding{
				Code:    domain.FindingBalanceResidue,
				Message: fmt.Sprintf("table %s closed with a non-zero balance", t.Code),
				Value:   r,
			})
		}
	}
	return out
}
