// Package client implements the HTTP adapters for the engine's external
// collaborators. The only one today is the rate-history provider that
// supplies monetary-correction and benchmark series.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/calculojuridico/revisional-go/internal/domain"
	"github.com/calculojuridico/revisional-go/internal/infra/observability"
	"github.com/calculojuridico/revisional-go/internal/infra/resilience"
	"github.com/calculojuridico/revisional-go/internal/port"
)

var tracer = otel.Tracer("client")

// RateHistoryClient fetches index rates from the rate-history API with
// retry, circuit breaker and a TTL cache keyed by (index, month).
// Historical series are immutable, so cached entries only expire to pick
// up late publications of the current month.
type RateHistoryClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	cache      port.Cache[decimal.Decimal]
	metrics    *observability.Metrics
}

// NewRateHistoryClient creates a new RateHistoryClient.
func NewRateHistoryClient(
	httpClient *http.Client,
	baseURL string,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	cache port.Cache[decimal.Decimal],
	metrics *observability.Metrics,
) *RateHistoryClient {
	return &RateHistoryClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		cache:      cache,
		metrics:    metrics,
	}
}

type rateResponse struct {
	Index string          `json:"index"`
	Month string          `json:"month"`
	Rate  decimal.Decimal `json:"rate"`
}

// Rate returns the monthly rate for an index at a reference month
// (YYYY-MM). When the exact month has no published value, the provider's
// latest earlier period applies. No data at all is an explicit
// ErrIndexUnavailable, never a silent zero, which would understate the
// correction and the resulting indébito.
func (c *RateHistoryClient) Rate(ctx context.Context, index, refMonth string) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "RateHistoryClient.Rate")
	defer span.End()
	span.SetAttributes(attribute.String("index.name", index), attribute.String("index.month", refMonth))

	cacheKey := index + ":" + refMonth
	if cached, ok := c.cache.Get(cacheKey); ok {
		c.metrics.IncrCacheHit("rates")
		return cached, nil
	}
	c.metrics.IncrCacheMiss("rates")

	var out rateResponse

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/v1/indices/%s/rates?month=%s&fallback=latest", c.baseURL, index, refMonth)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return &domain.ErrIndexUnavailable{Index: index, Month: refMonth}
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("rate-history API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&out)
		})
	})
	if err != nil {
		c.metrics.IncrExternalError("rate-history")
		var unavailable *domain.ErrIndexUnavailable
		if errors.As(err, &unavailable) {
			return decimal.Zero, unavailable
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return decimal.Zero, &domain.ErrCircuitOpen{Service: "rate-history"}
		}
		return decimal.Zero, &domain.ErrExternalService{Service: "rate-history", Err: err}
	}

	c.cache.Set(cacheKey, out.Rate)
	return out.Rate, nil
}
