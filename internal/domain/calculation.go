// Package domain holds the data model of the revisional calculation engine:
// the normalized calculation request, the generated amortization scenarios,
// statutory findings and the typed error taxonomy.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanKind identifies which calculation strategy handles a contract.
type LoanKind string

const (
	// LoanConsumer covers unsecured personal loans and vehicle financing.
	LoanConsumer LoanKind = "consumer"
	// LoanRealEstate covers real-estate financing (SFH/SFI contracts).
	LoanRealEstate LoanKind = "real_estate"
	// LoanCreditCard covers revolving credit-card debt.
	LoanCreditCard LoanKind = "credit_card"
)

// AmortizationSystem selects how each installment splits into
// interest and amortization.
type AmortizationSystem string

const (
	SystemPrice AmortizationSystem = "PRICE" // French system, constant installment
	SystemSAC   AmortizationSystem = "SAC"   // constant amortization
	SystemSACRE AmortizationSystem = "SACRE" // SAC with periodically increasing amortization
	SystemGauss AmortizationSystem = "GAUSS" // simple interest (Método de Gauss)
)

// Capitalization is the interest capitalization mode stated in the contract.
type Capitalization string

const (
	CapitalizationMonthly Capitalization = "MONTHLY"
	CapitalizationDaily   Capitalization = "DAILY"
)

// PolicyFlags carry the caller's revisional policy choices.
type PolicyFlags struct {
	// ExcludeIrregularCharges reduces the fair-scenario opening balance by
	// the sum of disputed tariffs (TAC/TEC, non-consented insurance).
	ExcludeIrregularCharges bool `json:"exclude_irregular_charges"`
	// DoubleRefund applies the statutory in-double restitution
	// (CDC art. 42, parágrafo único) to the refund projections.
	DoubleRefund bool `json:"double_refund"`
	// AbuseThreshold is the multiple of the market rate above which the
	// contracted rate is classified abusive. Zero means the default 1.5.
	AbuseThreshold decimal.Decimal `json:"abuse_threshold"`
}

// CalculationInput is the immutable, normalized calculation request.
// The engine never mutates it; concurrent calculations over distinct
// inputs are independently safe.
type CalculationInput struct {
	Principal      decimal.Decimal    `json:"principal"`
	Installments   int                `json:"installments"`
	MonthlyRate    decimal.Decimal    `json:"monthly_rate"`
	YearlyRate     decimal.Decimal    `json:"yearly_rate"`
	MarketRate     decimal.Decimal    `json:"market_rate"`
	System         AmortizationSystem `json:"system"`
	Capitalization Capitalization     `json:"capitalization"`
	ContractDate   time.Time          `json:"contract_date"`
	FirstDueDate   time.Time          `json:"first_due_date"`
	LoanData       LoanData           `json:"-"`
	Reconciliation []PaymentEntry     `json:"reconciliation,omitempty"`
	Policy         PolicyFlags        `json:"policy"`
}

// LoanData is the loan-type-specific payload. It is a closed tagged union:
// exactly one variant exists per LoanKind and the selector dispatches on it.
type LoanData interface {
	Kind() LoanKind
}

// InsuranceItem is one insurance premium charged with the contract,
// with the borrower's explicit consent flag when known.
type InsuranceItem struct {
	Name      string          `json:"name"`
	Value     decimal.Decimal `json:"value"`
	Consented bool            `json:"consented"`
}

// ConsumerLoanData carries the fields specific to unsecured and
// vehicle loans: origination fees, insurance and late-charge structure.
type ConsumerLoanData struct {
	// TACFee / TECFee are the origination fees; legality depends on the
	// contract date (Resolução CMN 3.518/2007, effective 2008-04-30).
	TACFee decimal.Decimal `json:"tac_fee"`
	TECFee decimal.Decimal `json:"tec_fee"`
	// RegistrationFee is the gravame/registry charge on vehicle loans.
	RegistrationFee decimal.Decimal `json:"registration_fee"`
	Insurance       []InsuranceItem `json:"insurance,omitempty"`
	// Late-charge structure for the cumulation check.
	PermanenciaRate decimal.Decimal `json:"permanencia_rate"`
	MoratoriumRate  decimal.Decimal `json:"moratorium_rate"`
	PenaltyRate     decimal.Decimal `json:"penalty_rate"`
}

func (ConsumerLoanData) Kind() LoanKind { return LoanConsumer }

// RealEstateLoanData carries the fields specific to real-estate financing.
type RealEstateLoanData struct {
	PropertyValue decimal.Decimal `json:"property_value"`
	// CorrectionIndex names the monetary-correction series (TR, IPCA,
	// INPC, IGP-M) resolved through the rate-history provider.
	CorrectionIndex string `json:"correction_index"`
	// GapCorrectionRate is the monthly rate applied to months the
	// provider has no published value for, even after its own
	// latest-earlier fallback. Zero when omitted.
	GapCorrectionRate decimal.Decimal `json:"gap_correction_rate"`
	// MIPRate applies over the corrected balance; DFIRate over the
	// property value. Both are monthly rates.
	MIPRate  decimal.Decimal `json:"mip_rate"`
	DFIRate  decimal.Decimal `json:"dfi_rate"`
	AdminFee decimal.Decimal `json:"admin_fee"`
	// GraceMonths defers amortization: the first N installments are
	// interest-only.
	GraceMonths int `json:"grace_months"`
}

func (RealEstateLoanData) Kind() LoanKind { return LoanRealEstate }

// CardMovement is one recorded credit-card event confronted against the
// reconstructed fair schedule: payments count as discounts, withdrawals
// add to the debt.
type CardMovement struct {
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Withdrawal bool            `json:"withdrawal"`
}

// CreditCardData carries the fields specific to revolving credit-card debt.
type CreditCardData struct {
	// CurrentBalance is the disputed revolving balance; it becomes the
	// principal of the reconstructed structured loan.
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Movements      []CardMovement  `json:"movements,omitempty"`
	// HorizonMonths is the simulation horizon of the reconstruction.
	// Zero means the default of 96 months.
	HorizonMonths int `json:"horizon_months"`
}

func (CreditCardData) Kind() LoanKind { return LoanCreditCard }
