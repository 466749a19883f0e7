// Package service implements the calculation engine: the scenario table
// generator, the three loan-type strategies and the selector that routes
// each request to the strategy registered for its loan kind.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/calculojuridico/revisional-go/internal/domain"
	"github.com/calculojuridico/revisional-go/internal/fincalc"
	"github.com/calculojuridico/revisional-go/internal/infra/observability"
	"github.com/calculojuridico/revisional-go/internal/infra/resilience"
	"github.com/calculojuridico/revisional-go/internal/port"
)

var tracer = otel.Tracer("revisional-service")

// maxInstallments bounds the accepted term. 600 months covers every
// real-estate contract on the Brazilian market with slack.
const maxInstallments = 600

// maxConcurrentCalcs bounds full calculations in flight. Previews are not
// bulkheaded: they are a handful of arithmetic operations.
const maxConcurrentCalcs = 32

var defaultAbuseThreshold = decimal.NewFromFloat(1.5)

// Strategy is one loan-type calculation pipeline. Strategies are stateless
// with respect to requests: the same instance serves concurrent calls.
type Strategy interface {
	Kind() domain.LoanKind
	Preview(ctx context.Context, in *domain.CalculationInput) (*domain.PreviewResult, error)
	Calculate(ctx context.Context, in *domain.CalculationInput) (*domain.CalculationResult, error)
}

// CalculationService validates requests and dispatches them to the strategy
// registered for the input's loan kind. Unknown kinds are an explicit error,
// never a silent default.
type CalculationService struct {
	strategies map[domain.LoanKind]Strategy
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewCalculationService(rates port.RateHistoryProvider, metrics *observability.Metrics, logger *zap.Logger) *CalculationService {
	gen := &scenarioGenerator{logger: logger}
	all := []Strategy{
		newConsumerStrategy(gen, logger),
		newRealEstateStrategy(gen, rates, metrics, logger),
		newCreditCardStrategy(gen, logger),
	}
	strategies := make(map[domain.LoanKind]Strategy, len(all))
	for _, s := range all {
		strategies[s.Kind()] = s
	}
	return &CalculationService{
		strategies: strategies,
		bulkhead:   resilience.NewBulkhead(maxConcurrentCalcs),
		metrics:    metrics,
		logger:     logger,
	}
}

func (s *CalculationService) strategyFor(in *domain.CalculationInput) (Strategy, error) {
	if in.LoanData == nil {
		return nil, &domain.ErrValidation{Field: "loan_data", Message: "is required"}
	}
	kind := in.LoanData.Kind()
	strat, ok := s.strategies[kind]
	if !ok {
		return nil, &domain.ErrUnknownLoanType{Kind: kind}
	}
	return strat, nil
}

// Preview runs the lightweight viability check: a single payment comparison,
// no table generation, no external calls.
func (s *CalculationService) Preview(ctx context.Context, in *domain.CalculationInput) (*domain.PreviewResult, error) {
	ctx, span := tracer.Start(ctx, "calculation.preview")
	defer span.End()

	start := time.Now()
	strat, err := s.strategyFor(in)
	if err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("loan.kind", string(strat.Kind())))

	result, err := strat.Preview(ctx, in)
	s.observe("preview", strat.Kind(), start, err)
	return result, err
}

// Calculate runs the full pipeline: scenario tables, CET, findings.
func (s *CalculationService) Calculate(ctx context.Context, in *domain.CalculationInput) (*domain.CalculationResult, error) {
	ctx, span := tracer.Start(ctx, "calculation.full")
	defer span.End()

	start := time.Now()
	strat, err := s.strategyFor(in)
	if err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("loan.kind", string(strat.Kind())),
		attribute.Int("loan.installments", in.Installments),
	)

	if err := s.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrTimeout{Operation: "calculation slot"}
	}
	defer s.bulkhead.Release()

	result, err := strat.Calculate(ctx, in)
	s.observe("calculate", strat.Kind(), start, err)
	if err != nil {
		return nil, err
	}

	for _, f := range result.Findings {
		s.metrics.IncrFinding(string(f.Code))
	}
	if result.CET != nil {
		s.metrics.RecordCETIterations(result.CET.Iterations)
	}
	s.logger.Info("calculation completed",
		zap.String("id", result.ID),
		zap.String("kind", string(result.Kind)),
		zap.Int("scenarios", len(result.Scenarios)),
		zap.Int("findings", len(result.Findings)),
	)
	return result, nil
}

func (s *CalculationService) observe(op string, kind domain.LoanKind, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordCalcDuration(op, time.Since(start))
	s.metrics.IncrCalc(string(kind), status)
}

func validateInput(in *domain.CalculationInput) error {
	if in.Principal.LessThanOrEqual(decimal.Zero) {
		return &domain.ErrValidation{Field: "principal", Message: "must be positive"}
	}
	if in.Installments < 1 || in.Installments > maxInstallments {
		return &domain.ErrValidation{Field: "installments", Message: "must be between 1 and 600"}
	}
	if in.MonthlyRate.IsNegative() {
		return &domain.ErrValidation{Field: "monthly_rate", Message: "must not be negative"}
	}
	if in.MarketRate.IsNegative() {
		return &domain.ErrValidation{Field: "market_rate", Message: "must not be negative"}
	}
	switch in.System {
	case domain.SystemPrice, domain.SystemSAC, domain.SystemSACRE, domain.SystemGauss:
	case "":
		// Only the revolving credit-card replay has no amortization system;
		// the amortized kinds would otherwise get an interest-only schedule
		// with a full-principal balloon in the last installment.
		if in.LoanData.Kind() != domain.LoanCreditCard {
			return &domain.ErrValidation{Field: "system", Message: "amortization system is required"}
		}
	default:
		return &domain.ErrValidation{Field: "system", Message: "unknown amortization system"}
	}
	switch in.Capitalization {
	case domain.CapitalizationMonthly, domain.CapitalizationDaily, "":
	default:
		return &domain.ErrValidation{Field: "capitalization", Message: "unknown capitalization mode"}
	}
	if in.ContractDate.IsZero() {
		return &domain.ErrValidation{Field: "contract_date", Message: "is required"}
	}
	if in.FirstDueDate.IsZero() {
		return &domain.ErrValidation{Field: "first_due_date", Message: "is required"}
	}
	if in.FirstDueDate.Before(in.ContractDate) {
		return &domain.ErrValidation{Field: "first_due_date", Message: "must not precede the contract date"}
	}
	for _, e := range in.Reconciliation {
		if e.Installment < 1 || e.Installment > in.Installments {
			return &domain.ErrValidation{Field: "reconciliation", Message: "installment number out of range"}
		}
	}
	return nil
}

// abuseThreshold resolves the policy threshold, defaulting to 1.5× market.
func abuseThreshold(p domain.PolicyFlags) decimal.Decimal {
	if p.AbuseThreshold.GreaterThan(decimal.Zero) {
		return p.AbuseThreshold
	}
	return defaultAbuseThreshold
}

func classifyAbuse(contracted, market, threshold decimal.Decimal) domain.AbuseLevel {
	if market.LessThanOrEqual(decimal.Zero) || contracted.LessThanOrEqual(market) {
		return domain.AbuseNone
	}
	if contracted.GreaterThanOrEqual(market.Mul(threshold)) {
		return domain.AbuseAbusive
	}
	return domain.AbuseModerate
}

// buildPreview is the payment comparison shared by the strategies: the
// contracted annuity against the fair one, scaled by the number of paid
// installments (falling back to the full term when no payment history was
// provided).
func buildPreview(in *domain.CalculationInput, flags domain.PreviewFlags) *domain.PreviewResult {
	original := fincalc.PMT(in.Principal, in.MonthlyRate, in.Installments)
	revised := fincalc.PMT(in.Principal, in.MarketRate, in.Installments)
	savings := original.Sub(revised)

	paidCount := 0
	for _, e := range in.Reconciliation {
		if e.Status == domain.PaymentPaid {
			paidCount++
		}
	}
	horizon := paidCount
	if horizon == 0 {
		horizon = in.Installments
	}

	abuse := classifyAbuse(in.MonthlyRate, in.MarketRate, abuseThreshold(in.Policy))
	flags.IllegalRate = abuse == domain.AbuseAbusive

	excessPercent := decimal.Zero
	if in.MarketRate.GreaterThan(decimal.Zero) {
		excessPercent = in.MonthlyRate.Sub(in.MarketRate).Div(in.MarketRate)
	}

	refund := savings.Mul(decimal.NewFromInt(int64(horizon)))
	if refund.IsNegative() {
		refund = decimal.Zero
	}
	// Round before doubling so the doubled figure is exactly twice the
	// simple one even when the raw refund carries a sub-cent fraction.
	simpleRefund := fincalc.Round2(refund)

	return &domain.PreviewResult{
		Viable:             abuse != domain.AbuseNone && savings.GreaterThan(decimal.Zero),
		Abuse:              abuse,
		ContractedRate:     in.MonthlyRate,
		MarketRate:         in.MarketRate,
		ExcessPoints:       in.MonthlyRate.Sub(in.MarketRate),
		ExcessPercent:      excessPercent,
		OriginalPayment:    fincalc.Round2(original),
		RevisedPayment:     fincalc.Round2(revised),
		SavingsPerPayment:  fincalc.Round2(savings),
		EstimatedRefund:    simpleRefund,
		EstimatedRefundDbl: simpleRefund.Mul(decimal.NewFromInt(2)),
		Flags:              flags,
	}
}

// solveCET extracts the contracted cashflow from the AP01 table and solves
// the effective total cost. principalNet is the disbursement minus financed
// upfront fees, so the fees surface as additional effective cost.
func solveCET(table *domain.ScenarioResult, principalNet, seed decimal.Decimal) (*domain.CETResult, error) {
	flows := make([]decimal.Decimal, 0, len(table.Lines))
	for _, l := range table.Lines {
		if l.Number == 0 {
			continue
		}
		flows = append(flows, l.TotalInstallment)
	}
	rate, iters, err := fincalc.CET(principalNet, flows, seed)
	if err != nil {
		return nil, err
	}
	return &domain.CETResult{
		MonthlyRate: rate,
		AnnualRate:  fincalc.MonthlyToAnnual(rate),
		Iterations:  iters,
	}, nil
}

func newResultID() string { return uuid.NewString() }
