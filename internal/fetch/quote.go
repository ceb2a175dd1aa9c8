package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/yourorg/silver-spot-api/internal/model"
)

// QuoteFetcher combines the spot and exchange-rate feeds into a single
// quote. The two legs are fetched concurrently; either failing fails the
// whole quote, so the derivation never sees a partial input.
type QuoteFetcher struct {
	spot  SpotSource
	rates RateSource
}

// NewQuoteFetcher creates a QuoteFetcher over the given sources.
func NewQuoteFetcher(spot SpotSource, rates RateSource) *QuoteFetcher {
	return &QuoteFetcher{spot: spot, rates: rates}
}

// Quote fetches both legs for the given pair.
func (f *QuoteFetcher) Quote(ctx context.Context, pair model.CurrencyPair) (model.Quote, error) {
	var (
		wg      sync.WaitGroup
		spot    model.SpotPrice
		rate    model.ExchangeRate
		spotErr error
		rateErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		spot, spotErr = f.spot.FetchSpot(ctx)
	}()
	go func() {
		defer wg.Done()
		rate, rateErr = f.rates.FetchRate(ctx, pair)
	}()
	wg.Wait()

	if spotErr != nil {
		return model.Quote{}, fmt.Errorf("spot leg failed: %w", spotErr)
	}
	if rateErr != nil {
		return model.Quote{}, fmt.Errorf("rate leg failed: %w", rateErr)
	}

	return model.Quote{Spot: spot, Rate: rate}, nil
}
