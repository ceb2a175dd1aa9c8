package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/silver-spot-api/internal/config"
	"github.com/yourorg/silver-spot-api/internal/model"
)

// FXClient fetches USD exchange rates from the currency feed.
type FXClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// NewFXClient creates a new exchange-rate feed client from configuration.
func NewFXClient(cfg config.Config) *FXClient {
	return &FXClient{
		baseURL:    cfg.FXURL,
		httpClient: newRetryClient(cfg.RequestTimeout),
		apiKey:     cfg.APIKeys["fx"],
	}
}

// FetchRate retrieves the current quote for the given pair.
func (c *FXClient) FetchRate(ctx context.Context, pair model.CurrencyPair) (model.ExchangeRate, error) {
	symbol := strings.ReplaceAll(string(pair), "/", "")
	endpoint := c.baseURL + "/v1/rate?pair=" + url.QueryEscape(symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.ExchangeRate{}, fmt.Errorf("error creating rate request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Fetching %s rate from %s", pair, c.baseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.ExchangeRate{}, fmt.Errorf("error fetching %s rate: %w", pair, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.ExchangeRate{}, fmt.Errorf("fx feed error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Pair      string  `json:"pair"`
		Rate      float64 `json:"rate"`
		UpdatedAt int64   `json:"updated_at"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return model.ExchangeRate{}, fmt.Errorf("error decoding rate response: %w", err)
	}

	if response.Rate == 0 {
		return model.ExchangeRate{}, fmt.Errorf("fx feed returned no rate for %s", pair)
	}

	return model.ExchangeRate{
		Pair:   pair,
		Rate:   response.Rate,
		AsOf:   time.Unix(response.UpdatedAt, 0),
		Source: "fx-feed",
	}, nil
}
