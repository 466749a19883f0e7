package domain

import "github.com/shopspring/decimal"

// AbuseLevel classifies the contracted rate against the market rate.
type AbuseLevel string

const (
	AbuseNone     AbuseLevel = "none"     // at or below market
	AbuseModerate AbuseLevel = "moderate" // above market, below threshold
	AbuseAbusive  AbuseLevel = "abusive"  // above threshold multiple of market
)

// PreviewFlags is the irregularity flag bundle of a preview. These are
// suspicions cheap enough to compute without a full table; the full
// calculation turns them into Findings.
type PreviewFlags struct {
	DailyCapitalizationSuspected bool `json:"daily_capitalization_suspected"`
	AbusiveInsurance             bool `json:"abusive_insurance"`
	IllegalRate                  bool `json:"illegal_rate"`
	IrregularOriginationFee      bool `json:"irregular_origination_fee"`
	AnatocismSuspected           bool `json:"anatocism_suspected"`
}

// PreviewResult is the lightweight viability summary: a single PMT
// comparison with no full table, fast enough for interactive use.
type PreviewResult struct {
	Viable         bool            `json:"viable"`
	Abuse          AbuseLevel      `json:"abuse"`
	ContractedRate decimal.Decimal `json:"contracted_rate"`
	MarketRate     decimal.Decimal `json:"market_rate"`
	// ExcessPoints is the excess in percentage points; ExcessPercent is
	// the excess relative to the market rate.
	ExcessPoints       decimal.Decimal `json:"excess_points"`
	ExcessPercent      decimal.Decimal `json:"excess_percent"`
	OriginalPayment    decimal.Decimal `json:"original_payment"`
	RevisedPayment     decimal.Decimal `json:"revised_payment"`
	SavingsPerPayment  decimal.Decimal `json:"savings_per_payment"`
	EstimatedRefund    decimal.Decimal `json:"estimated_refund"`
	EstimatedRefundDbl decimal.Decimal `json:"estimated_refund_double"`
	Flags              PreviewFlags    `json:"flags"`
}
