package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/silver-spot-api/internal/config"
	"github.com/yourorg/silver-spot-api/internal/model"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		SpotURL:        baseURL,
		FXURL:          baseURL,
		HistoryURL:     baseURL,
		APIKeys:        map[string]string{"spot": "k", "fx": "k", "history": "k"},
		RequestTimeout: 2 * time.Second,
	}
}

func TestComexClientFetchSpot(t *testing.T) {
	asOf := time.Now().Add(-time.Minute).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/spot", r.URL.Path)
		assert.Equal(t, "XAG", r.URL.Query().Get("symbol"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"symbol":"XAG","price_usd":30.5,"unit":"troy_ounce","updated_at":%d}`, asOf)
	}))
	defer srv.Close()

	c := NewComexClient(testConfig(srv.URL))
	spot, err := c.FetchSpot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30.5, spot.ValueUSD)
	assert.Equal(t, "comex", spot.Source)
	assert.Equal(t, asOf, spot.AsOf.Unix())
}

func TestComexClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewComexClient(testConfig(srv.URL))
	_, err := c.FetchSpot(context.Background())
	assert.Error(t, err, "non-200 must surface as an error, never a price")
}

func TestComexClientZeroPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"XAG","price_usd":0,"updated_at":0}`)
	}))
	defer srv.Close()

	c := NewComexClient(testConfig(srv.URL))
	_, err := c.FetchSpot(context.Background())
	assert.Error(t, err, "a zero quote is absence of data, not a price")
}

func TestFXClientFetchRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rate", r.URL.Path)
		assert.Equal(t, "USDINR", r.URL.Query().Get("pair"))
		fmt.Fprintf(w, `{"pair":"USDINR","rate":84.5,"updated_at":%d}`, time.Now().Unix())
	}))
	defer srv.Close()

	c := NewFXClient(testConfig(srv.URL))
	rate, err := c.FetchRate(context.Background(), model.PairUSDINR)
	require.NoError(t, err)
	assert.Equal(t, model.PairUSDINR, rate.Pair)
	assert.Equal(t, 84.5, rate.Rate)
}

func TestHistoryClientFetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/history", r.URL.Path)
		assert.Equal(t, "india", r.URL.Query().Get("market"))
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		fmt.Fprint(w, `{"points":[
			{"date":"2026-08-18","price":94.2,"high":95.0,"low":93.8},
			{"date":"2026-08-19","price":95.1,"high":96.2,"low":94.1},
			{"date":"not-a-date","price":1,"high":1,"low":1}
		]}`)
	}))
	defer srv.Close()

	c := NewHistoryClient(testConfig(srv.URL))
	points, err := c.FetchHistory(context.Background(), model.MarketIndia, 7)
	require.NoError(t, err)
	require.Len(t, points, 2, "malformed dates are skipped")
	assert.Equal(t, 94.2, points[0].Price)
	assert.Equal(t, 96.2, points[1].High)
}

type fakeSpot struct {
	spot model.SpotPrice
	err  error
}

func (f fakeSpot) FetchSpot(ctx context.Context) (model.SpotPrice, error) { return f.spot, f.err }

type fakeRates struct {
	rate model.ExchangeRate
	err  error
}

func (f fakeRates) FetchRate(ctx context.Context, pair model.CurrencyPair) (model.ExchangeRate, error) {
	return f.rate, f.err
}

func TestQuoteFetcher(t *testing.T) {
	now := time.Now()
	goodSpot := fakeSpot{spot: model.SpotPrice{ValueUSD: 30.5, AsOf: now, Source: "comex"}}
	goodRate := fakeRates{rate: model.ExchangeRate{Pair: model.PairUSDINR, Rate: 84.5, AsOf: now}}

	q, err := NewQuoteFetcher(goodSpot, goodRate).Quote(context.Background(), model.PairUSDINR)
	require.NoError(t, err)
	assert.Equal(t, 30.5, q.Spot.ValueUSD)
	assert.Equal(t, 84.5, q.Rate.Rate)

	_, err = NewQuoteFetcher(fakeSpot{err: errors.New("down")}, goodRate).
		Quote(context.Background(), model.PairUSDINR)
	assert.Error(t, err, "spot leg failure must fail the quote")

	_, err = NewQuoteFetcher(goodSpot, fakeRates{err: errors.New("down")}).
		Quote(context.Background(), model.PairUSDINR)
	assert.Error(t, err, "rate leg failure must fail the quote")
}
