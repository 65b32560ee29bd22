package candles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPSupplier fetches candles from the external candle service over REST.
type HTTPSupplier struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSupplier creates a supplier for the candle service at baseURL.
// A zero timeout falls back to 10 seconds.
func NewHTTPSupplier(baseURL string, timeout time.Duration) *HTTPSupplier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSupplier{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetCandles fetches the most recent candles for a symbol and timeframe.
func (s *HTTPSupplier) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timeframe", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v1/candles?%s", s.baseURL, params.Encode())
	return s.fetch(ctx, endpoint)
}

// GetCandlesInRange fetches candles between start and end, inclusive.
func (s *HTTPSupplier) GetCandlesInRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timeframe", timeframe)
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/api/v1/candles/range?%s", s.baseURL, params.Encode())
	return s.fetch(ctx, endpoint)
}

func (s *HTTPSupplier) fetch(ctx context.Context, endpoint string) ([]Candle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching candles: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("candle service error: %s", string(body))
	}

	var series []Candle
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, fmt.Errorf("error parsing candles: %w", err)
	}

	return series, nil
}
