package domain

import "github.com/shopspring/decimal"

// FindingCode identifies a statutory or integrity finding attached to a
// calculation result. Findings are data, not errors: they must reach the
// report renderer even when the calculation succeeds.
type FindingCode string

const (
	FindingIrregularOriginationFee FindingCode = "irregular_origination_fee"
	FindingInsuranceNoConsent      FindingCode = "insurance_without_consent"
	FindingLateChargeCumulation    FindingCode = "late_charge_cumulation"
	FindingDailyCapitalization     FindingCode = "daily_capitalization"
	FindingAbusiveRate             FindingCode = "abusive_rate"
	FindingBalanceResidue          FindingCode = "terminal_balance_residue"
	FindingIndexGap                FindingCode = "correction_index_gap"
)

// Finding is one irregularity detected during a full calculation.
type Finding struct {
	Code    FindingCode     `json:"code"`
	Message string          `json:"message"`
	Value   decimal.Decimal `json:"value,omitempty"`
}
