// Package broker provides market data clients for the brokerages the tracker
// can price positions against. It includes the Tradier API client.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	productionBaseURL = "https://api.tradier.com/v1"
	sandboxBaseURL    = "https://sandbox.tradier.com/v1"
	defaultTimeout    = 10 * time.Second
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// TradierAPI is a read-only client for Tradier's market data endpoints.
type TradierAPI struct {
	client  *http.Client
	apiKey  string
	baseURL string
	sandbox bool
	logger  *logrus.Logger
}

// NewTradierAPI creates a client. An empty baseURL picks the production or
// sandbox host; a nil client gets a 10s timeout.
func NewTradierAPI(apiKey string, sandbox bool, baseURL string, client *http.Client, logger *logrus.Logger) *TradierAPI {
	if baseURL == "" {
		if sandbox {
			baseURL = sandboxBaseURL
		} else {
			baseURL = productionBaseURL
		}
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TradierAPI{
		client:  client,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		sandbox: sandbox,
		logger:  logger,
	}
}

// WithTimeout sets the HTTP client timeout duration.
func (t *TradierAPI) WithTimeout(timeout time.Duration) *TradierAPI {
	if timeout > 0 {
		t.client.Timeout = timeout
	}
	return t
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// QuotesResponse represents the quotes response from the Tradier API.
type QuotesResponse struct {
	Quotes struct {
		Quote     singleOrArray[QuoteItem] `json:"quote"`
		Unmatched struct {
			Symbol singleOrArray[string] `json:"symbol"`
		} `json:"unmatched_symbols"`
	} `json:"quotes"`
}

// QuoteItem represents a single quote item from the Tradier API.
type QuoteItem struct {
	Symbol      string  `json:"symbol"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	TradeDate   int64   `json:"trade_date"`
	PrevClose   float64 `json:"prevclose"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Last        float64 `json:"last"`
	Volume      int64   `json:"volume"`
}

// ============ API Methods ============

// GetQuote retrieves the current market quote for a symbol.
func (t *TradierAPI) GetQuote(ctx context.Context, symbol string) (*QuoteItem, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response QuotesResponse
	if err := t.makeRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	for _, q := range response.Quotes.Quote {
		if strings.EqualFold(q.Symbol, symbol) {
			return &q, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
}

func (t *TradierAPI) makeRequest(ctx context.Context, method, endpoint string, response any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "wheel-tracker/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Debug("Failed to close response body")
		}
	}()

	if remaining := resp.Header.Get("X-Ratelimit-Available"); remaining != "" && t.sandbox {
		t.logger.WithField("remaining", remaining).Debug("Tradier rate limit")
	}

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, strings.TrimSpace(string(body)))}
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil && err != io.EOF {
		return fmt.Errorf("decoding %s: %w", endpoint, err)
	}
	return nil
}
