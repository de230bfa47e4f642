package swap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default Jupiter endpoints.
const (
	DefaultQuoteURL = "https://api.jup.ag/swap/v1/quote"
	DefaultSwapURL  = "https://api.jup.ag/swap/v1/swap"
)

// ErrNoRoute is returned when the aggregator finds no route for a pair.
var ErrNoRoute = errors.New("no route found")

// HTTPError is a non-200 response from the aggregator.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("aggregator returned status %d: %s", e.StatusCode, e.Body)
}

// QuoteRequest describes an exact-in swap.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // raw units of InputMint
	SlippageBps int
}

// Quote is a priced route. The aggregator's original payload is retained
// because the swap endpoint requires it verbatim.
type Quote struct {
	InputMint            string
	OutputMint           string
	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
	SlippageBps          int
	PriceImpactPct       float64
	RouteLabels          []string

	raw json.RawMessage
}

// ImpliedPrice returns whole input units paid per whole output unit.
func (q *Quote) ImpliedPrice(inDecimals, outDecimals int) float64 {
	if q.OutAmount == 0 {
		return 0
	}
	in := float64(q.InAmount) / pow10(inDecimals)
	out := float64(q.OutAmount) / pow10(outDecimals)
	return in / out
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// JupiterClient talks to the Jupiter quote and swap APIs.
type JupiterClient struct {
	quoteURL    string
	swapURL     string
	apiKey      string
	priorityFee interface{}
	client      *http.Client
	limiter     *rate.Limiter
}

// JupiterOption configures JupiterClient.
type JupiterOption func(*JupiterClient)

// WithEndpoints overrides the quote and swap URLs.
func WithEndpoints(quoteURL, swapURL string) JupiterOption {
	return func(c *JupiterClient) {
		c.quoteURL = quoteURL
		c.swapURL = swapURL
	}
}

// WithAPIKey sets the x-api-key header.
func WithAPIKey(key string) JupiterOption {
	return func(c *JupiterClient) {
		c.apiKey = key
	}
}

// WithRateLimit limits outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) JupiterOption {
	return func(c *JupiterClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithPriorityFee sets a fixed prioritization fee in lamports. Zero keeps "auto".
func WithPriorityFee(lamports uint64) JupiterOption {
	return func(c *JupiterClient) {
		if lamports > 0 {
			c.priorityFee = lamports
		}
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) JupiterOption {
	return func(c *JupiterClient) {
		c.client = client
	}
}

// NewJupiterClient creates an aggregator client.
func NewJupiterClient(opts ...JupiterOption) *JupiterClient {
	c := &JupiterClient{
		quoteURL:    DefaultQuoteURL,
		swapURL:     DefaultSwapURL,
		priorityFee: "auto",
		client:      &http.Client{Timeout: 15 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type quoteWire struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`
	RoutePlan            []struct {
		SwapInfo struct {
			Label string `json:"label"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
	Error string `json:"error"`
}

// Quote requests an exact-in quote.
func (c *JupiterClient) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	q.Set("swapMode", "ExactIn")

	body, err := c.do(ctx, http.MethodGet, c.quoteURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	var wire quoteWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if wire.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, wire.Error)
	}

	quote := &Quote{
		InputMint:   wire.InputMint,
		OutputMint:  wire.OutputMint,
		SlippageBps: wire.SlippageBps,
		raw:         json.RawMessage(body),
	}
	if quote.InAmount, err = parseAmount(wire.InAmount); err != nil {
		return nil, fmt.Errorf("inAmount: %w", err)
	}
	if quote.OutAmount, err = parseAmount(wire.OutAmount); err != nil {
		return nil, fmt.Errorf("outAmount: %w", err)
	}
	if wire.OtherAmountThreshold != "" {
		if quote.OtherAmountThreshold, err = parseAmount(wire.OtherAmountThreshold); err != nil {
			return nil, fmt.Errorf("otherAmountThreshold: %w", err)
		}
	}
	if wire.PriceImpactPct != "" {
		quote.PriceImpactPct, _ = strconv.ParseFloat(wire.PriceImpactPct, 64)
	}
	for _, hop := range wire.RoutePlan {
		quote.RouteLabels = append(quote.RouteLabels, hop.SwapInfo.Label)
	}
	if quote.OutAmount == 0 {
		return nil, ErrNoRoute
	}
	return quote, nil
}

// SwapTransaction asks the aggregator to build an unsigned transaction for quote.
func (c *JupiterClient) SwapTransaction(ctx context.Context, quote *Quote, userPublicKey string) ([]byte, error) {
	if len(quote.raw) == 0 {
		return nil, errors.New("quote has no aggregator payload")
	}

	reqBody := map[string]interface{}{
		"quoteResponse":             quote.raw,
		"userPublicKey":             userPublicKey,
		"wrapAndUnwrapSol":          true,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": c.priorityFee,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.swapURL, payload)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}

	var resp struct {
		SwapTransaction      string `json:"swapTransaction"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		Error                string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode swap: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("swap error: %s", resp.Error)
	}
	if resp.SwapTransaction == "" {
		return nil, errors.New("no swapTransaction in response")
	}

	tx, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swapTransaction: %w", err)
	}
	return tx, nil
}

func (c *JupiterClient) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("missing amount")
	}
	return strconv.ParseUint(s, 10, 64)
}
