package statute

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/calculojuridico/revisional-go/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCheckOriginationFee(t *testing.T) {
	fee := dec("550")
	tests := []struct {
		name      string
		fee       decimal.Decimal
		date      time.Time
		irregular bool
	}{
		{"before cutoff", fee, day(2007, time.December, 1), false},
		{"on the cutoff day", fee, day(2008, time.April, 30), false},
		{"day after cutoff", fee, day(2008, time.May, 1), true},
		{"modern contract", fee, day(2022, time.March, 15), true},
		{"zero fee after cutoff", decimal.Zero, day(2022, time.March, 15), false},
		{"negative fee is not a charge", dec("-10"), day(2022, time.March, 15), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.irregular, CheckOriginationFee(tt.fee, tt.date))
		})
	}
}

func TestCheckOriginationFeeIgnoresTimeOfDay(t *testing.T) {
	// A timestamp late on the cutoff day is still the cutoff day.
	late := time.Date(2008, time.April, 30, 23, 30, 0, 0, time.UTC)
	assert.False(t, CheckOriginationFee(dec("100"), late))
}

func TestCheckInsuranceConsent(t *testing.T) {
	items := []domain.InsuranceItem{
		{Name: "prestamista", Value: dec("1200"), Consented: false},
		{Name: "MIP", Value: dec("800"), Consented: true},
		{Name: "zeroed", Value: decimal.Zero, Consented: false},
	}
	assert.Equal(t, []string{"prestamista"}, CheckInsuranceConsent(items))
	assert.Empty(t, CheckInsuranceConsent(nil))
}

func TestCheckLateChargeCumulation(t *testing.T) {
	perm := dec("0.05")
	tests := []struct {
		name                           string
		permanencia, moratorium, penal decimal.Decimal
		irregular                      bool
	}{
		{"permanencia alone", perm, decimal.Zero, decimal.Zero, false},
		{"permanencia with moratorium", perm, dec("0.01"), decimal.Zero, true},
		{"permanencia with penalty", perm, decimal.Zero, dec("0.02"), true},
		{"all three", perm, dec("0.01"), dec("0.02"), true},
		{"moratorium and penalty only", decimal.Zero, dec("0.01"), dec("0.02"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.irregular, CheckLateChargeCumulation(tt.permanencia, tt.moratorium, tt.penal))
		})
	}
}

func TestDetectDailyCapitalization(t *testing.T) {
	// 1% a.m. annualizes to 12.6825% a.a.; a stated 14% a.a. only happens
	// with sub-monthly compounding.
	assert.True(t, DetectDailyCapitalization(dec("0.01"), dec("0.14")))

	// Stated rate consistent with monthly compounding, allowing the usual
	// disclosure rounding.
	assert.False(t, DetectDailyCapitalization(dec("0.01"), dec("0.1268")))
	assert.False(t, DetectDailyCapitalization(dec("0.01"), dec("0.127")))

	// A stated rate below the equivalent is odd but not daily compounding.
	assert.False(t, DetectDailyCapitalization(dec("0.01"), dec("0.11")))

	assert.False(t, DetectDailyCapitalization(decimal.Zero, dec("0.14")))
	assert.False(t, DetectDailyCapitalization(dec("0.01"), decimal.Zero))
}

func TestFindings(t *testing.T) {
	data := &domain.ConsumerLoanData{
		TACFee: dec("890"),
		Insurance: []domain.InsuranceItem{
			{Name: "prestamista", Value: dec("2300"), Consented: false},
		},
		PermanenciaRate: dec("0.05"),
		MoratoriumRate:  dec("0.01"),
	}

	got := Findings(data, day(2021, time.August, 10), dec("0.01"), dec("0.14"))

	codes := make([]domain.FindingCode, 0, len(got))
	for _, f := range got {
		codes = append(codes, f.Code)
	}
	assert.Equal(t, []domain.FindingCode{
		domain.FindingIrregularOriginationFee,
		domain.FindingInsuranceNoConsent,
		domain.FindingLateChargeCumulation,
		domain.FindingDailyCapitalization,
	}, codes)
}

func TestFindingsCleanContract(t *testing.T) {
	data := &domain.ConsumerLoanData{
		Insurance: []domain.InsuranceItem{
			{Name: "MIP", Value: dec("500"), Consented: true},
		},
	}
	assert.Empty(t, Findings(data, day(2021, time.August, 10), dec("0.01"), dec("0.1268")))
}
