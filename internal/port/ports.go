// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the calculation
// engine from concrete implementations.
package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// RateHistoryProvider supplies historical monetary-correction and benchmark
// rates (TR, IPCA, INPC, IGP-M, consignado series) per reference month.
//
// Implementations fall back to the most recent available period when the
// exact month is absent, and report "no data at all" as an explicit error;
// the engine never substitutes a silent zero.
type RateHistoryProvider interface {
	// Rate returns the applicable monthly rate for the index at the given
	// reference month (YYYY-MM).
	Rate(ctx context.Context, index string, refMonth string) (decimal.Decimal, error)
}

// Cache provides generic caching with TTL. The real-estate strategy uses it
// to batch index lookups across an entire table generation instead of one
// provider call per installment.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
