package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the reconciliation state of one scheduled installment.
// The engine is a pure reader of this state: transitions happen in the
// external reconciliation collaborator, never here.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentLate    PaymentStatus = "LATE"
)

// PaymentEntry ties a scheduled installment number to what actually
// happened against it.
type PaymentEntry struct {
	Installment int             `json:"installment"`
	DueDate     time.Time       `json:"due_date"`
	Status      PaymentStatus   `json:"status"`
	PaidDate    *time.Time      `json:"paid_date,omitempty"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	// ExtraAmortization is an unscheduled principal payment recorded in
	// the same period; it reduces the carried balance immediately.
	ExtraAmortization decimal.Decimal `json:"extra_amortization"`
}

// ReconciliationMap indexes payment entries by installment number for the
// table generators.
func ReconciliationMap(entries []PaymentEntry) map[int]PaymentEntry {
	m := make(map[int]PaymentEntry, len(entries))
	for _, e := range entries {
		m[e.Installment] = e
	}
	return m
}
