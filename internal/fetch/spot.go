package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/silver-spot-api/internal/config"
	"github.com/yourorg/silver-spot-api/internal/model"
)

// ComexClient fetches the COMEX silver quote from the spot feed.
type ComexClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// NewComexClient creates a new spot feed client from configuration.
func NewComexClient(cfg config.Config) *ComexClient {
	return &ComexClient{
		baseURL:    cfg.SpotURL,
		httpClient: newRetryClient(cfg.RequestTimeout),
		apiKey:     cfg.APIKeys["spot"],
	}
}

// FetchSpot retrieves the current silver quote in USD per troy ounce.
func (c *ComexClient) FetchSpot(ctx context.Context) (model.SpotPrice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/spot?symbol=XAG", nil)
	if err != nil {
		return model.SpotPrice{}, fmt.Errorf("error creating spot request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Fetching silver spot from %s", c.baseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.SpotPrice{}, fmt.Errorf("error fetching spot quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.SpotPrice{}, fmt.Errorf("spot feed error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Symbol    string  `json:"symbol"`
		PriceUSD  float64 `json:"price_usd"`
		Unit      string  `json:"unit"`
		UpdatedAt int64   `json:"updated_at"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return model.SpotPrice{}, fmt.Errorf("error decoding spot response: %w", err)
	}

	if response.PriceUSD == 0 {
		return model.SpotPrice{}, fmt.Errorf("spot feed returned no price for %s", response.Symbol)
	}

	return model.SpotPrice{
		ValueUSD: response.PriceUSD,
		AsOf:     time.Unix(response.UpdatedAt, 0),
		Source:   "comex",
	}, nil
}
