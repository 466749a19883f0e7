package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/calculojuridico/revisional-go/internal/domain"
	"github.com/calculojuridico/revisional-go/internal/fincalc"
	"github.com/calculojuridico/revisional-go/internal/statute"
)

// defaultCardHorizon is the reconstruction horizon when the request does
// not set one. Eight years outlasts any realistic revolving balance.
const defaultCardHorizon = 96

// creditCardStrategy handles revolving credit-card debt: the contracted
// scenario replays the revolving balance under the contracted rate and the
// recorded movements; the fair scenario restructures the same balance as a
// fixed PRICE loan at the market rate. The confrontation of actual payments
// against the fair schedule yields the settlement point.
type creditCardStrategy struct {
	gen    *scenarioGenerator
	logger *zap.Logger
}

func newCreditCardStrategy(gen *scenarioGenerator, logger *zap.Logger) *creditCardStrategy {
	return &creditCardStrategy{gen: gen, logger: logger}
}

func (s *creditCardStrategy) Kind() domain.LoanKind { return domain.LoanCreditCard }

func (s *creditCardStrategy) data(in *domain.CalculationInput) (*domain.CreditCardData, error) {
	d, ok := in.LoanData.(*domain.CreditCardData)
	if !ok {
		return nil, &domain.ErrValidation{Field: "loan_data", Message: "credit-card payload expected"}
	}
	return d, nil
}

func (s *creditCardStrategy) Preview(ctx context.Context, in *domain.CalculationInput) (*domain.PreviewResult, error) {
	if _, err := s.data(in); err != nil {
		return nil, err
	}
	flags := domain.PreviewFlags{
		DailyCapitalizationSuspected: statute.DetectDailyCapitalization(in.MonthlyRate, in.YearlyRate),
	}
	return buildPreview(in, flags), nil
}

func horizonMonths(d *domain.CreditCardData) int {
	if d.HorizonMonths > 0 {
		return d.HorizonMonths
	}
	return defaultCardHorizon
}

// monthlyMovements buckets the recorded movements by month offset from the
// first statement date. Movements dated before it land in month 1.
func monthlyMovements(movements []domain.CardMovement, firstDue time.Time, horizon int) (payments, withdrawals map[int]decimal.Decimal) {
	payments = make(map[int]decimal.Decimal)
	withdrawals = make(map[int]decimal.Decimal)
	for _, mv := range movements {
		month := fincalc.MonthsBetween(firstDue, mv.Date) + 1
		if month < 1 {
			month = 1
		}
		if month > horizon {
			month = horizon
		}
		if mv.Withdrawal {
			withdrawals[month] = withdrawals[month].Add(mv.Amount)
		} else {
			payments[month] = payments[month].Add(mv.Amount)
		}
	}
	return payments, withdrawals
}

// buildRevolving replays the revolving balance month by month: interest
// compounds on the open balance, withdrawals add to it, payments reduce it.
// The replay stops early once the balance reaches zero.
func (s *creditCardStrategy) buildRevolving(in *domain.CalculationInput, d *domain.CreditCardData, horizon int) *domain.ScenarioResult {
	principal := d.CurrentBalance
	if principal.LessThanOrEqual(decimal.Zero) {
		principal = in.Principal
	}

	payments, withdrawals := monthlyMovements(d.Movements, in.FirstDueDate, horizon)

	result := &domain.ScenarioResult{
		Code:  domain.ScenarioContracted,
		Title: "Evolução do rotativo contratado",
		Lines: []domain.AmortizationLine{{
			Number:           0,
			DueDate:          in.ContractDate,
			CorrectedBalance: principal,
			ClosingBalance:   principal,
			Status:           domain.PaymentPaid,
		}},
	}

	totals := domain.ScenarioTotals{Principal: principal}
	balance := principal
	for k := 1; k <= horizon; k++ {
		due := fincalc.AddMonths(in.FirstDueDate, k-1)
		opening := balance

		interest := fincalc.MonthlyInterest(opening, in.MonthlyRate)
		drawn := withdrawals[k]
		paid := payments[k]

		balance = opening.Add(interest).Add(drawn).Sub(paid)
		settled := balance.LessThanOrEqual(decimal.Zero)
		if settled {
			balance = decimal.Zero
		}

		status := domain.PaymentPending
		if paid.GreaterThan(decimal.Zero) {
			status = domain.PaymentPaid
		}

		result.Lines = append(result.Lines, domain.AmortizationLine{
			Number:           k,
			DueDate:          due,
			OpeningBalance:   opening,
			CorrectedBalance: opening.Add(drawn),
			Interest:         interest,
			Amortization:     paid.Sub(interest),
			ClosingBalance:   balance,
			BaseInstallment:  paid,
			TotalInstallment: paid,
			Status:           status,
			PaidAmount:       paid,
		})

		totals.TotalInterest = totals.TotalInterest.Add(interest)
		totals.TotalPaid = totals.TotalPaid.Add(paid)

		if settled && k >= lastMovementMonth(payments, withdrawals) {
			break
		}
	}
	totals.TotalOwed = balance
	result.Totals = totals
	return result
}

func lastMovementMonth(payments, withdrawals map[int]decimal.Decimal) int {
	last := 0
	for k := range payments {
		if k > last {
			last = k
		}
	}
	for k := range withdrawals {
		if k > last {
			last = k
		}
	}
	return last
}

// confront applies the payments actually made against the fair structured
// schedule and finds the settlement point: the month at which those
// payments fully extinguish the fair debt. Everything paid after it was
// paid beyond settlement and becomes the refund.
func confront(fairRate decimal.Decimal, principal decimal.Decimal, contracted *domain.ScenarioResult) (settlement int, beyond decimal.Decimal, table *domain.ScenarioResult) {
	table = &domain.ScenarioResult{
		Code:  domain.ScenarioDifferences,
		Title: "Confronto: pagamentos × saldo devido",
	}

	balance := principal
	refund := decimal.Zero
	for _, l := range contracted.Lines {
		if l.Number == 0 {
			table.Lines = append(table.Lines, l)
			continue
		}
		opening := balance

		var interest, applied decimal.Decimal
		if settlement == 0 {
			interest = fincalc.MonthlyInterest(opening, fairRate)
			balance = opening.Add(interest).Sub(l.PaidAmount)
			if balance.LessThanOrEqual(decimal.Zero) && l.PaidAmount.GreaterThan(decimal.Zero) {
				settlement = l.Number
				refund = refund.Add(balance.Neg())
				balance = decimal.Zero
			}
			applied = l.PaidAmount
		} else {
			// Debt already settled: the whole payment is an overcharge.
			refund = refund.Add(l.PaidAmount)
		}

		table.Lines = append(table.Lines, domain.AmortizationLine{
			Number:           l.Number,
			DueDate:          l.DueDate,
			OpeningBalance:   opening,
			Interest:         interest,
			Amortization:     applied.Sub(interest),
			ClosingBalance:   balance,
			TotalInstallment: l.PaidAmount,
			Status:           l.Status,
			PaidAmount:       l.PaidAmount,
			OtherInterest:    l.Interest,
			OtherInstallment: l.TotalInstallment,
			Difference:       l.Interest.Sub(interest),
		})
	}

	table.Totals = domain.ScenarioTotals{
		Principal:   principal,
		TotalPaid:   contracted.Totals.TotalPaid,
		TotalRefund: refund,
		TotalOwed:   balance,
	}
	return settlement, refund, table
}

func (s *creditCardStrategy) Calculate(ctx context.Context, in *domain.CalculationInput) (*domain.CalculationResult, error) {
	d, err := s.data(in)
	if err != nil {
		return nil, err
	}
	horizon := horizonMonths(d)

	principal := d.CurrentBalance
	if principal.LessThanOrEqual(decimal.Zero) {
		principal = in.Principal
	}

	contracted := s.buildRevolving(in, d, horizon)

	// The fair scenario restructures the balance as a fixed PRICE loan at
	// the market (consignado/personal) rate over the same horizon.
	fair := s.gen.build(tableSpec{
		Code:           domain.ScenarioFair,
		Title:          "Reestruturação em parcelas fixas (taxa de mercado)",
		Principal:      principal,
		Installments:   horizon,
		Rate:           in.MarketRate,
		System:         domain.SystemPrice,
		Capitalization: domain.CapitalizationMonthly,
		ContractDate:   in.ContractDate,
		FirstDueDate:   in.FirstDueDate,
	})

	settlement, beyond, confrontation := confront(in.MarketRate, principal, contracted)

	scenarios := []domain.ScenarioResult{*contracted, *fair, *confrontation}
	if in.Policy.DoubleRefund && beyond.GreaterThan(decimal.Zero) {
		doubled := *confrontation
		doubled.Code = domain.ScenarioProjectionDbl
		doubled.Title = "Confronto com repetição em dobro"
		doubled.Totals.TotalRefund = beyond.Mul(decimal.NewFromInt(2))
		scenarios = append(scenarios, doubled)
	}

	var findings []domain.Finding
	if classifyAbuse(in.MonthlyRate, in.MarketRate, abuseThreshold(in.Policy)) == domain.AbuseAbusive {
		findings = append(findings, domain.Finding{
			Code:    domain.FindingAbusiveRate,
			Message: "revolving rate exceeds the abuse threshold over the market average",
			Value:   in.MonthlyRate,
		})
	}

	cet, err := solveCET(contracted, principal, in.MonthlyRate)
	if err != nil {
		return nil, err
	}

	return &domain.CalculationResult{
		ID:                     newResultID(),
		Kind:                   domain.LoanCreditCard,
		Scenarios:              scenarios,
		CET:                    cet,
		Findings:               findings,
		SettlementInstallment:  settlement,
		AmountBeyondSettlement: beyond,
		GeneratedAt:            time.Now().UTC(),
	}, nil
}
