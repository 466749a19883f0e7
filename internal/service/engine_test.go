package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/calculojuridico/revisional-go/internal/domain"
	"github.com/calculojuridico/revisional-go/internal/fincalc"
	"github.com/calculojuridico/revisional-go/internal/infra/observability"
	"github.com/calculojuridico/revisional-go/internal/service"
)

// --- Mocks ---

type stubRates struct {
	rate decimal.Decimal
	err  error
}

func (s *stubRates) Rate(_ context.Context, _ string, _ string) (decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Decimal{}, s.err
	}
	return s.rate, nil
}

type unknownLoanData struct{}

func (unknownLoanData) Kind() domain.LoanKind { return domain.LoanKind("payroll") }

// --- Helpers ---

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newService(rates *stubRates) *service.CalculationService {
	if rates == nil {
		rates = &stubRates{}
	}
	return service.NewCalculationService(rates, observability.NewMetrics(), zap.NewNop())
}

func consumerInput() *domain.CalculationInput {
	return &domain.CalculationInput{
		Principal:      dec("10000"),
		Installments:   24,
		MonthlyRate:    dec("0.035"),
		YearlyRate:     dec("0.51"),
		MarketRate:     dec("0.018"),
		System:         domain.SystemPrice,
		Capitalization: domain.CapitalizationMonthly,
		ContractDate:   time.Date(2021, time.March, 10, 0, 0, 0, 0, time.UTC),
		FirstDueDate:   time.Date(2021, time.April, 10, 0, 0, 0, 0, time.UTC),
		LoanData: &domain.ConsumerLoanData{
			TACFee: dec("500"),
		},
	}
}

func paidEntries(n int, amount string) []domain.PaymentEntry {
	entries := make([]domain.PaymentEntry, n)
	for i := range entries {
		entries[i] = domain.PaymentEntry{
			Installment: i + 1,
			Status:      domain.PaymentPaid,
			PaidAmount:  dec(amount),
		}
	}
	return entries
}

// --- Selector and validation ---

func TestCalculateUnknownLoanType(t *testing.T) {
	in := consumerInput()
	in.LoanData = unknownLoanData{}

	_, err := newService(nil).Calculate(context.Background(), in)

	var unknown *domain.ErrUnknownLoanType
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownLoanType, got %v", err)
	}
	if unknown.Kind != "payroll" {
		t.Errorf("unexpected kind in error: %s", unknown.Kind)
	}
}

func TestCalculateMissingLoanData(t *testing.T) {
	in := consumerInput()
	in.LoanData = nil

	_, err := newService(nil).Calculate(context.Background(), in)

	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCalculateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CalculationInput)
		field  string
	}{
		{"zero principal", func(in *domain.CalculationInput) { in.Principal = decimal.Zero }, "principal"},
		{"negative rate", func(in *domain.CalculationInput) { in.MonthlyRate = dec("-0.01") }, "monthly_rate"},
		{"term too long", func(in *domain.CalculationInput) { in.Installments = 601 }, "installments"},
		{"due before contract", func(in *domain.CalculationInput) {
			in.FirstDueDate = in.ContractDate.AddDate(0, 0, -1)
		}, "first_due_date"},
		{"bad system", func(in *domain.CalculationInput) { in.System = "BALLOON" }, "system"},
		{"missing system", func(in *domain.CalculationInput) { in.System = "" }, "system"},
		{"reconciliation out of range", func(in *domain.CalculationInput) {
			in.Reconciliation = []domain.PaymentEntry{{Installment: 99, Status: domain.PaymentPaid}}
		}, "reconciliation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := consumerInput()
			tt.mutate(in)

			_, err := newService(nil).Calculate(context.Background(), in)

			var validation *domain.ErrValidation
			if !errors.As(err, &validation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if validation.Field != tt.field {
				t.Errorf("field %q, want %q", validation.Field, tt.field)
			}
		})
	}
}

// --- Preview ---

func TestPreviewAbusiveConsumer(t *testing.T) {
	in := consumerInput()
	in.MonthlyRate = dec("0.04")
	in.MarketRate = dec("0.02")

	preview, err := newService(nil).Preview(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if preview.Abuse != domain.AbuseAbusive {
		t.Errorf("abuse %s, want abusive (rate is 2x market)", preview.Abuse)
	}
	if !preview.Viable {
		t.Error("a 2x-market contract must be viable for revision")
	}
	if !preview.Flags.IllegalRate {
		t.Error("illegal-rate flag must be set")
	}
	if !preview.SavingsPerPayment.GreaterThan(decimal.Zero) {
		t.Errorf("savings %s, want positive", preview.SavingsPerPayment)
	}
	if !preview.EstimatedRefundDbl.Equal(preview.EstimatedRefund.Mul(decimal.NewFromInt(2))) {
		t.Error("doubled refund must be exactly twice the simple refund")
	}
	if !preview.Flags.IrregularOriginationFee {
		t.Error("TAC on a 2021 contract must flag the origination fee")
	}
}

func TestPreviewAtMarketRate(t *testing.T) {
	in := consumerInput()
	in.MonthlyRate = dec("0.018")
	in.MarketRate = dec("0.018")
	in.LoanData = &domain.ConsumerLoanData{}

	preview, err := newService(nil).Preview(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.Abuse != domain.AbuseNone {
		t.Errorf("abuse %s, want none", preview.Abuse)
	}
	if preview.Viable {
		t.Error("a contract at market rate is not viable for revision")
	}
}

func TestPreviewModerate(t *testing.T) {
	in := consumerInput()
	in.MonthlyRate = dec("0.022")
	in.MarketRate = dec("0.018")

	preview, err := newService(nil).Preview(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.Abuse != domain.AbuseModerate {
		t.Errorf("abuse %s, want moderate (above market, below 1.5x)", preview.Abuse)
	}
}

// --- Consumer strategy ---

func TestCalculateConsumer(t *testing.T) {
	in := consumerInput()
	pmt := fincalc.PMT(in.Principal, in.MonthlyRate, in.Installments)
	in.Reconciliation = paidEntries(10, pmt.Round(2).String())
	in.Policy.DoubleRefund = true

	result, err := newService(nil).Calculate(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantCodes := []domain.ScenarioCode{
		domain.ScenarioContracted,
		domain.ScenarioFair,
		domain.ScenarioDifferences,
		domain.ScenarioProjection,
		domain.ScenarioProjectionDbl,
	}
	if len(result.Scenarios) != len(wantCodes) {
		t.Fatalf("got %d scenarios, want %d", len(result.Scenarios), len(wantCodes))
	}
	for i, code := range wantCodes {
		if result.Scenarios[i].Code != code {
			t.Errorf("scenario %d is %s, want %s", i, result.Scenarios[i].Code, code)
		}
	}

	// Ten paid installments at the contracted rate against the fair
	// schedule: the refund is ten times the per-installment excess.
	fairPMT := fincalc.PMT(in.Principal, in.MarketRate, in.Installments)
	wantRefund := pmt.Sub(fairPMT).Mul(decimal.NewFromInt(10))
	gotRefund := result.Scenario(domain.ScenarioDifferences).Totals.TotalRefund
	if !fincalc.WithinCents(gotRefund, wantRefund, 0.05) {
		t.Errorf("refund %s, want ~%s", gotRefund, wantRefund)
	}

	// The financed TAC pushes the effective cost above the nominal rate.
	if result.CET == nil {
		t.Fatal("CET missing")
	}
	if !result.CET.MonthlyRate.GreaterThan(in.MonthlyRate) {
		t.Errorf("CET %s must exceed the nominal %s with a financed fee", result.CET.MonthlyRate, in.MonthlyRate)
	}

	hasTACFinding := false
	for _, f := range result.Findings {
		if f.Code == domain.FindingIrregularOriginationFee {
			hasTACFinding = true
		}
	}
	if !hasTACFinding {
		t.Error("TAC on a 2021 contract must produce a finding")
	}
	if result.ID == "" {
		t.Error("result must carry an id")
	}
}

func TestCalculateConsumerExcludesDisputedCharges(t *testing.T) {
	in := consumerInput()
	in.LoanData = &domain.ConsumerLoanData{
		TACFee: dec("500"),
		Insurance: []domain.InsuranceItem{
			{Name: "prestamista", Value: dec("300"), Consented: false},
		},
	}
	in.Policy.ExcludeIrregularCharges = true

	result, err := newService(nil).Calculate(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fair := result.Scenario(domain.ScenarioFair)
	want := dec("9200") // 10000 − 500 TAC − 300 insurance
	if !fair.Totals.Principal.Equal(want) {
		t.Errorf("fair principal %s, want %s", fair.Totals.Principal, want)
	}
	contracted := result.Scenario(domain.ScenarioContracted)
	if !contracted.Totals.Principal.Equal(dec("10000")) {
		t.Errorf("contracted principal %s must stay at face value", contracted.Totals.Principal)
	}
}

// --- Real-estate strategy ---

func realEstateInput() *domain.CalculationInput {
	return &domain.CalculationInput{
		Principal:      dec("200000"),
		Installments:   120,
		MonthlyRate:    dec("0.009"),
		YearlyRate:     dec("0.1135"),
		MarketRate:     dec("0.006"),
		System:         domain.SystemSAC,
		Capitalization: domain.CapitalizationMonthly,
		ContractDate:   time.Date(2022, time.January, 15, 0, 0, 0, 0, time.UTC),
		FirstDueDate:   time.Date(2022, time.February, 15, 0, 0, 0, 0, time.UTC),
		LoanData: &domain.RealEstateLoanData{
			PropertyValue:   dec("350000"),
			CorrectionIndex: "TR",
			MIPRate:         dec("0.0002"),
			DFIRate:         dec("0.00005"),
			AdminFee:        dec("25"),
		},
	}
}

func TestCalculateRealEstate(t *testing.T) {
	in := realEstateInput()
	in.Policy.ExcludeIrregularCharges = true

	result, err := newService(&stubRates{rate: dec("0.001")}).Calculate(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	contracted := result.Scenario(domain.ScenarioContracted)
	fair := result.Scenario(domain.ScenarioFair)

	// Correction applied before interest on every line.
	wantCorrection := dec("200000").Mul(dec("0.001"))
	if !contracted.Lines[1].Correction.Equal(wantCorrection) {
		t.Errorf("line 1 correction %s, want %s", contracted.Lines[1].Correction, wantCorrection)
	}

	// Correction is lawful: the fair table carries it too.
	if !fair.Lines[1].Correction.Equal(wantCorrection) {
		t.Errorf("fair line 1 correction %s, want %s", fair.Lines[1].Correction, wantCorrection)
	}

	// The disputed admin fee is the only charge the fair table drops; the
	// corrected balances match on line 1, so the gap is exactly the fee.
	gap := contracted.Lines[1].Charges.Sub(fair.Lines[1].Charges)
	if !gap.Equal(dec("25")) {
		t.Errorf("charge gap %s, want the 25.00 admin fee", gap)
	}

	if !contracted.Totals.TotalInsurance.GreaterThan(decimal.Zero) {
		t.Error("MIP/DFI insurance totals missing")
	}
	if result.CET == nil {
		t.Fatal("CET missing")
	}
}

func TestCalculateRealEstateIndexGap(t *testing.T) {
	in := realEstateInput()
	gap := &domain.ErrIndexUnavailable{Index: "TR", Month: "2022-02"}

	result, err := newService(&stubRates{err: gap}).Calculate(context.Background(), in)
	if err != nil {
		t.Fatalf("index gaps must not abort the calculation: %v", err)
	}

	contracted := result.Scenario(domain.ScenarioContracted)
	if !contracted.Lines[1].Correction.IsZero() {
		t.Errorf("missing index months must apply zero correction, got %s", contracted.Lines[1].Correction)
	}

	hasGapFinding := false
	for _, f := range result.Findings {
		if f.Code == domain.FindingIndexGap {
			hasGapFinding = true
		}
	}
	if !hasGapFinding {
		t.Error("index gaps must surface as findings")
	}
}

func TestCalculateRealEstateGapCorrectionRate(t *testing.T) {
	in := realEstateInput()
	in.LoanData.(*domain.RealEstateLoanData).GapCorrectionRate = dec("0.001")

	unavailable := &domain.ErrIndexUnavailable{Index: "TR", Month: "2022-02"}
	result, err := newService(&stubRates{err: unavailable}).Calculate(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every month is a gap, so the supplied 0.1% rate corrects the whole
	// series: 200000 × 0.001 = 200 on the first line.
	contracted := result.Scenario(domain.ScenarioContracted)
	if !contracted.Lines[1].Correction.Equal(dec("200")) {
		t.Errorf("correction %s, want 200.00 from the gap rate", contracted.Lines[1].Correction)
	}

	for _, f := range result.Findings {
		if f.Code == domain.FindingIndexGap {
			if !f.Value.Equal(dec("0.001")) {
				t.Errorf("gap finding value %s, want the applied rate 0.001", f.Value)
			}
			return
		}
	}
	t.Error("gap months must still surface as findings when a gap rate applies")
}

func TestCalculateRealEstateProviderFailure(t *testing.T) {
	in := realEstateInput()
	boom := &domain.ErrExternalService{Service: "rate-history", Err: errors.New("connection refused")}

	_, err := newService(&stubRates{err: boom}).Calculate(context.Background(), in)

	var external *domain.ErrExternalService
	if !errors.As(err, &external) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestCalculateRealEstateGraceBounds(t *testing.T) {
	in := realEstateInput()
	in.LoanData = &domain.RealEstateLoanData{GraceMonths: 120}

	_, err := newService(nil).Calculate(context.Background(), in)

	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// --- Credit-card strategy ---

func TestCalculateCreditCard(t *testing.T) {
	firstDue := time.Date(2023, time.February, 10, 0, 0, 0, 0, time.UTC)
	movements := make([]domain.CardMovement, 0, 10)
	for k := 0; k < 10; k++ {
		movements = append(movements, domain.CardMovement{
			Date:   firstDue.AddDate(0, k, 0),
			Amount: dec("800"),
		})
	}
	in := &domain.CalculationInput{
		Principal:      dec("5000"),
		Installments:   12,
		MonthlyRate:    dec("0.12"),
		YearlyRate:     dec("2.89"),
		MarketRate:     dec("0.03"),
		ContractDate:   time.Date(2023, time.January, 10, 0, 0, 0, 0, time.UTC),
		FirstDueDate:   firstDue,
		LoanData: &domain.CreditCardData{
			CurrentBalance: dec("5000"),
			Movements:      movements,
			HorizonMonths:  12,
		},
	}

	result, err := newService(nil).Calculate(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// At the fair 3% rate, 800/month extinguishes the 5000 debt in the
	// eighth month; everything paid afterwards was paid beyond settlement.
	if result.SettlementInstallment != 8 {
		t.Errorf("settlement at installment %d, want 8", result.SettlementInstallment)
	}
	if !result.AmountBeyondSettlement.GreaterThan(dec("2000")) {
		t.Errorf("amount beyond settlement %s, want the surplus of month 8 plus two full payments", result.AmountBeyondSettlement)
	}

	// Under the contracted 12% revolving rate the same payments never
	// settle the debt inside the horizon.
	contracted := result.Scenario(domain.ScenarioContracted)
	if !contracted.Totals.TotalOwed.GreaterThan(decimal.Zero) {
		t.Errorf("contracted revolving balance %s, want still owing", contracted.Totals.TotalOwed)
	}

	if fair := result.Scenario(domain.ScenarioFair); fair == nil {
		t.Fatal("fair restructuring table missing")
	}
	if result.CET == nil || !result.CET.MonthlyRate.GreaterThan(decimal.Zero) {
		t.Error("revolving cashflow with payments above principal must have a positive CET")
	}
}

func TestCalculateCreditCardAbusiveFinding(t *testing.T) {
	in := &domain.CalculationInput{
		Principal:      dec("3000"),
		Installments:   12,
		MonthlyRate:    dec("0.14"),
		MarketRate:     dec("0.035"),
		ContractDate:   time.Date(2023, time.January, 10, 0, 0, 0, 0, time.UTC),
		FirstDueDate:   time.Date(2023, time.February, 10, 0, 0, 0, 0, time.UTC),
		LoanData:       &domain.CreditCardData{CurrentBalance: dec("3000")},
	}

	result, err := newService(nil).Calculate(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hasAbusive := false
	for _, f := range result.Findings {
		if f.Code == domain.FindingAbusiveRate {
			hasAbusive = true
		}
	}
	if !hasAbusive {
		t.Error("a 4x-market revolving rate must produce an abusive-rate finding")
	}
}
