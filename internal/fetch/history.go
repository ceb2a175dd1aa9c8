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

// HistoryClient fetches the daily local-currency price series.
type HistoryClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// NewHistoryClient creates a new historical feed client from configuration.
func NewHistoryClient(cfg config.Config) *HistoryClient {
	return &HistoryClient{
		baseURL:    cfg.HistoryURL,
		httpClient: newRetryClient(cfg.RequestTimeout),
		apiKey:     cfg.APIKeys["history"],
	}
}

// FetchHistory retrieves up to days daily points for the market, oldest first.
func (c *HistoryClient) FetchHistory(ctx context.Context, market model.Market, days int) ([]model.HistoricalPricePoint, error) {
	endpoint := fmt.Sprintf("%s/v1/history?symbol=XAG&market=%s&days=%d", c.baseURL, market, days)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating history request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("history feed error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Points []struct {
			Date  string  `json:"date"`
			Price float64 `json:"price"`
			High  float64 `json:"high"`
			Low   float64 `json:"low"`
		} `json:"points"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding history response: %w", err)
	}

	if len(response.Points) == 0 {
		return nil, fmt.Errorf("history feed returned no points for %s", market)
	}

	points := make([]model.HistoricalPricePoint, 0, len(response.Points))
	for _, p := range response.Points {
		date, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			logrus.Warnf("Skipping history point with bad date %q: %v", p.Date, err)
			continue
		}
		points = append(points, model.HistoricalPricePoint{
			Date:  date,
			Price: p.Price,
			High:  p.High,
			Low:   p.Low,
		})
	}

	logrus.Debugf("Received %d history points for %s", len(points), market)
	return points, nil
}
