// Package price fetches token prices from the Jupiter price API.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultURL is the Jupiter price endpoint.
const DefaultURL = "https://api.jup.ag/price/v2"

// maxIDsPerRequest is the API's batch limit.
const maxIDsPerRequest = 100

// Feed returns current prices keyed by mint. Mints without a price are
// absent from the result.
type Feed interface {
	Prices(ctx context.Context, mints []string) (map[string]float64, error)
}

// Client implements Feed.
type Client struct {
	url     string
	apiKey  string
	vsToken string
	client  *http.Client
	limiter *rate.Limiter
}

var _ Feed = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithURL overrides the endpoint.
func WithURL(u string) Option {
	return func(c *Client) { c.url = u }
}

// WithAPIKey sets the x-api-key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithVsToken quotes prices in units of the given mint instead of USD.
func WithVsToken(mint string) Option {
	return func(c *Client) { c.vsToken = mint }
}

// WithRateLimit limits outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewClient creates a price client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		url:     DefaultURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prices fetches prices in the client's default denomination.
func (c *Client) Prices(ctx context.Context, mints []string) (map[string]float64, error) {
	return c.PricesIn(ctx, mints, c.vsToken)
}

// PricesIn fetches prices denominated in vsToken (empty for USD), batching
// requests by the API limit.
func (c *Client) PricesIn(ctx context.Context, mints []string, vsToken string) (map[string]float64, error) {
	out := make(map[string]float64, len(mints))
	for start := 0; start < len(mints); start += maxIDsPerRequest {
		end := start + maxIDsPerRequest
		if end > len(mints) {
			end = len(mints)
		}
		if err := c.fetch(ctx, mints[start:end], vsToken, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type priceResponse struct {
	Data map[string]*struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Price string `json:"price"`
	} `json:"data"`
}

func (c *Client) fetch(ctx context.Context, mints []string, vsToken string, out map[string]float64) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	q := url.Values{}
	q.Set("ids", strings.Join(mints, ","))
	if vsToken != "" {
		q.Set("vsToken", vsToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price api returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed priceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decode prices: %w", err)
	}
	for mint, entry := range parsed.Data {
		if entry == nil || entry.Price == "" {
			continue
		}
		p, err := strconv.ParseFloat(entry.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		out[mint] = p
	}
	return nil
}
