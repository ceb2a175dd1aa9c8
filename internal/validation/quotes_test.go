package validation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yourorg/silver-spot-api/internal/model"
)

func TestCheckSpot(t *testing.T) {
	opts := DefaultOptions()
	now := time.Now()

	valid := model.SpotPrice{ValueUSD: 30.50, AsOf: now, Source: "comex"}
	assert.NoError(t, CheckSpot(valid, opts), "plausible fresh quote should pass")

	stale := model.SpotPrice{ValueUSD: 30.50, AsOf: now.Add(-time.Hour)}
	assert.Error(t, CheckSpot(stale, opts), "quote older than MaxAge should fail")

	zero := model.SpotPrice{ValueUSD: 0, AsOf: now}
	assert.Error(t, CheckSpot(zero, opts), "zero quote should fail")

	nan := model.SpotPrice{ValueUSD: math.NaN(), AsOf: now}
	assert.Error(t, CheckSpot(nan, opts), "NaN quote should fail")

	absurd := model.SpotPrice{ValueUSD: 12000, AsOf: now}
	assert.Error(t, CheckSpot(absurd, opts), "quote above MaxSpotUSD should fail")

	noStamp := model.SpotPrice{ValueUSD: 30.50}
	assert.Error(t, CheckSpot(noStamp, opts), "quote without timestamp should fail")
}

func TestCheckRate(t *testing.T) {
	opts := DefaultOptions()
	now := time.Now()

	inr := model.ExchangeRate{Pair: model.PairUSDINR, Rate: 84.50, AsOf: now}
	assert.NoError(t, CheckRate(inr, opts))

	cny := model.ExchangeRate{Pair: model.PairUSDCNY, Rate: 7.10, AsOf: now}
	assert.NoError(t, CheckRate(cny, opts))

	unknown := model.ExchangeRate{Pair: "USD/EUR", Rate: 0.92, AsOf: now}
	assert.Error(t, CheckRate(unknown, opts), "unsupported pair should fail")

	negative := model.ExchangeRate{Pair: model.PairUSDINR, Rate: -1, AsOf: now}
	assert.Error(t, CheckRate(negative, opts), "negative rate should fail")

	inf := model.ExchangeRate{Pair: model.PairUSDINR, Rate: math.Inf(1), AsOf: now}
	assert.Error(t, CheckRate(inf, opts), "infinite rate should fail")
}

func TestCheckQuoteFailsOnEitherLeg(t *testing.T) {
	opts := DefaultOptions()
	now := time.Now()

	goodSpot := model.SpotPrice{ValueUSD: 30.50, AsOf: now}
	goodRate := model.ExchangeRate{Pair: model.PairUSDINR, Rate: 84.50, AsOf: now}

	assert.NoError(t, CheckQuote(model.Quote{Spot: goodSpot, Rate: goodRate}, opts))

	badSpot := model.Quote{Spot: model.SpotPrice{ValueUSD: 0, AsOf: now}, Rate: goodRate}
	assert.Error(t, CheckQuote(badSpot, opts), "bad spot leg must fail the quote")

	badRate := model.Quote{Spot: goodSpot, Rate: model.ExchangeRate{Pair: model.PairUSDINR}}
	assert.Error(t, CheckQuote(badRate, opts), "bad rate leg must fail the quote")
}
