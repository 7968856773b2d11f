package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// VIX normalization bounds: values outside this range are clamped before
// being mapped to [0, 1].
const (
	vixNormMin = 10.0
	vixNormMax = 40.0
)

// VIXSource fetches the current VIX reading. Satisfied by *VIXClient; tests
// substitute a fixed-value fake.
type VIXSource interface {
	CurrentVIX(ctx context.Context) (float64, error)
}

// VIXClient fetches the current CBOE volatility index value from a quote
// source. On any failure it is the caller's responsibility to fall back to
// a configured neutral value — the client itself only reports the error.
type VIXClient struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewVIXClient creates a VIX quote client against a Yahoo Finance-compatible
// chart endpoint.
func NewVIXClient(baseURL string, log zerolog.Logger) *VIXClient {
	return &VIXClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With().Str("component", "vix_client").Logger(),
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
	} `json:"chart"`
}

// CurrentVIX fetches the latest VIX quote.
func (c *VIXClient) CurrentVIX(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v8/finance/chart/%5EVIX?interval=1d&range=1d", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build vix request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("vix request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("vix source returned status %d", resp.StatusCode)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode vix response: %w", err)
	}
	if len(parsed.Chart.Result) == 0 {
		return 0, fmt.Errorf("vix response contained no results")
	}

	return parsed.Chart.Result[0].Meta.RegularMarketPrice, nil
}

// NormalizeVIX clamps vix to [10, 40] and linearly maps it to [0, 1].
func NormalizeVIX(vix float64) float64 {
	clamped := vix
	if clamped < vixNormMin {
		clamped = vixNormMin
	}
	if clamped > vixNormMax {
		clamped = vixNormMax
	}
	return (clamped - vixNormMin) / (vixNormMax - vixNormMin)
}
