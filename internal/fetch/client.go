// Package fetch provides clients for the upstream commodity and
// exchange-rate feeds. The feeds are treated as black boxes: each client
// knows one response shape and returns typed quotes or an error, never a
// substitute value.
package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/yourorg/silver-spot-api/internal/model"
)

// SpotSource is any feed that can produce a COMEX silver quote.
type SpotSource interface {
	FetchSpot(ctx context.Context) (model.SpotPrice, error)
}

// RateSource is any feed that can produce a USD exchange-rate quote.
type RateSource interface {
	FetchRate(ctx context.Context, pair model.CurrencyPair) (model.ExchangeRate, error)
}

// HistorySource is any feed that can produce the daily local-currency series.
type HistorySource interface {
	FetchHistory(ctx context.Context, market model.Market, days int) ([]model.HistoricalPricePoint, error)
}

// newRetryClient creates an HTTP client with bounded retries. Failures past
// the retry budget surface as errors; the caller decides what "unavailable"
// looks like.
func newRetryClient(timeout time.Duration) *http.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = nil
	return c.StandardClient()
}
