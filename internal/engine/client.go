package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amadeling/kp-forecasting-bma/internal/models"
	"github.com/amadeling/kp-forecasting-bma/internal/util"
)

// Engine computes a future time series for a product from a training CSV.
// The implementation is an external collaborator; this package only knows
// its request/response contract.
type Engine interface {
	Run(ctx context.Context, filePath, productID string, futureStep int) ([]models.ForecastPoint, error)
}

type runRequest struct {
	FilePath   string `json:"file_path"`
	ProductID  string `json:"product_id"`
	FutureStep int    `json:"future_step"`
}

type runResponse struct {
	FutureForecast []models.ForecastPoint `json:"future_forecast"`
}

// Client calls the forecast engine over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an engine client. The timeout bounds a whole pipeline
// run, which can take minutes on large histories.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Run invokes the engine pipeline and returns its future forecast rows.
// An empty row set is returned as-is; the caller decides whether that is
// a failure.
func (c *Client) Run(ctx context.Context, filePath, productID string, futureStep int) ([]models.ForecastPoint, error) {
	start := time.Now()
	defer func() {
		util.EngineRunLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(runRequest{
		FilePath:   filePath,
		ProductID:  productID,
		FutureStep: futureStep,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, detail)
	}

	var result runResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode engine response: %w", err)
	}

	return result.FutureForecast, nil
}
