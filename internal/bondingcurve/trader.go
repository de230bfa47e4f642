package bondingcurve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/swap"
)

// DefaultTradeURL is the trade-local endpoint that returns unsigned curve transactions.
const DefaultTradeURL = "https://pumpportal.fun/api/trade-local"

// TradeClient builds unsigned buy and sell transactions for curve tokens.
type TradeClient struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewTradeClient creates a trade-local client. An empty url uses DefaultTradeURL.
func NewTradeClient(url string, perSecond float64) *TradeClient {
	if url == "" {
		url = DefaultTradeURL
	}
	if perSecond <= 0 {
		perSecond = 5
	}
	return &TradeClient{
		url:     url,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// BuildRequest is a trade-local request.
type BuildRequest struct {
	PublicKey        string  `json:"publicKey"`
	Action           string  `json:"action"`
	Mint             string  `json:"mint"`
	Amount           float64 `json:"amount"`
	DenominatedInSol string  `json:"denominatedInSol"`
	Slippage         float64 `json:"slippage"`    // percent
	PriorityFee      float64 `json:"priorityFee"` // SOL
	Pool             string  `json:"pool"`
}

// Build returns the unsigned transaction bytes.
func (c *TradeClient) Build(ctx context.Context, req BuildRequest) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal trade request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &swap.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if len(body) == 0 {
		return nil, errors.New("empty transaction")
	}
	return body, nil
}

// TraderConfig configures a Trader.
type TraderConfig struct {
	FeeBps         int
	SlippageBps    int
	PriorityFeeSol float64
}

// Trader executes buys and sells directly against the curve.
type Trader struct {
	accountID string
	reader    *Reader
	builder   *TradeClient
	sender    *swap.Sender
	guard     domain.TradeGuard
	record    domain.TradeRecorder
	cfg       TraderConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewTrader creates a bonding-curve trader.
func NewTrader(accountID string, reader *Reader, builder *TradeClient, sender *swap.Sender,
	guard domain.TradeGuard, record domain.TradeRecorder, cfg TraderConfig, logger *slog.Logger) *Trader {
	if cfg.FeeBps == 0 {
		cfg.FeeBps = DefaultFeeBps
	}
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = 500
	}
	if guard == nil {
		guard = domain.AllowAll{}
	}
	if record == nil {
		record = func(context.Context, domain.TradeRecord) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trader{
		accountID: accountID,
		reader:    reader,
		builder:   builder,
		sender:    sender,
		guard:     guard,
		record:    record,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With("component", "bondingcurve"),
	}
}

// Trade is a landed curve trade.
type Trade struct {
	Signature string
	Quote     *TradeQuote
}

// QuoteBuy prices a buy of solIn lamports against the live curve.
func (t *Trader) QuoteBuy(ctx context.Context, mint string, solIn uint64) (*TradeQuote, error) {
	curve, err := t.reader.Fetch(ctx, mint)
	if err != nil {
		return nil, err
	}
	q, err := curve.BuyQuote(solIn, t.cfg.FeeBps)
	if err != nil {
		return nil, quoteError(err)
	}
	return q, nil
}

// QuoteSell prices a sell of tokenIn raw units against the live curve.
func (t *Trader) QuoteSell(ctx context.Context, mint string, tokenIn uint64) (*TradeQuote, error) {
	curve, err := t.reader.Fetch(ctx, mint)
	if err != nil {
		return nil, err
	}
	q, err := curve.SellQuote(tokenIn, t.cfg.FeeBps)
	if err != nil {
		return nil, quoteError(err)
	}
	return q, nil
}

// Buy spends solIn lamports on mint.
func (t *Trader) Buy(ctx context.Context, mint string, solIn uint64) (*Trade, error) {
	q, err := t.QuoteBuy(ctx, mint, solIn)
	if err != nil {
		return nil, err
	}
	solAmount := float64(solIn) / lamportsPerSOL
	if err := t.guard.CheckTrade(domain.ActionBuy, solAmount, mint); err != nil {
		return nil, err
	}

	rec := domain.TradeRecord{
		Action:     domain.ActionBuy,
		InputMint:  solana.WrappedSOLMint,
		OutputMint: mint,
		AmountIn:   solIn,
		AmountOut:  q.AmountOut,
		SolAmount:  solAmount,
	}
	req := BuildRequest{
		Action:           "buy",
		Mint:             mint,
		Amount:           solAmount,
		DenominatedInSol: "true",
	}
	return t.execute(ctx, req, q, rec)
}

// Sell sells tokenIn raw units of mint.
func (t *Trader) Sell(ctx context.Context, mint string, tokenIn uint64) (*Trade, error) {
	q, err := t.QuoteSell(ctx, mint, tokenIn)
	if err != nil {
		return nil, err
	}
	solAmount := float64(q.AmountOut) / lamportsPerSOL
	if err := t.guard.CheckTrade(domain.ActionSell, solAmount, mint); err != nil {
		return nil, err
	}

	rec := domain.TradeRecord{
		Action:     domain.ActionSell,
		InputMint:  mint,
		OutputMint: solana.WrappedSOLMint,
		AmountIn:   tokenIn,
		AmountOut:  q.AmountOut,
		SolAmount:  solAmount,
	}
	req := BuildRequest{
		Action:           "sell",
		Mint:             mint,
		Amount:           float64(tokenIn) / tokenUnit,
		DenominatedInSol: "false",
	}
	return t.execute(ctx, req, q, rec)
}

func (t *Trader) execute(ctx context.Context, req BuildRequest, q *TradeQuote, rec domain.TradeRecord) (*Trade, error) {
	start := time.Now()
	req.PublicKey = t.sender.PublicKey()
	req.Slippage = float64(t.cfg.SlippageBps) / 100
	req.PriorityFee = t.cfg.PriorityFeeSol
	req.Pool = "pump"

	rec.AccountID = t.accountID
	rec.Source = domain.SourceBondingCurve
	rec.RefID = req.Mint
	rec.Timestamp = t.now()

	unsigned, err := t.builder.Build(ctx, req)
	if err != nil {
		observability.RecordSwap("bonding_curve", "build", time.Since(start), err)
		return nil, t.fail(ctx, rec, err)
	}

	sig, err := t.sender.Send(ctx, unsigned)
	if err != nil {
		observability.RecordSwap("bonding_curve", "submit", time.Since(start), err)
		rec.Signature = sig
		return nil, t.fail(ctx, rec, err)
	}
	observability.RecordSwap("bonding_curve", "", time.Since(start), nil)

	rec.Signature = sig
	rec.Status = domain.TradeStatusSuccess
	t.record(ctx, rec)

	t.logger.Info("curve trade confirmed",
		"action", req.Action,
		"mint", req.Mint,
		"signature", sig,
		"amount_out", q.AmountOut,
		"price_impact_pct", q.PriceImpactPct,
	)
	return &Trade{Signature: sig, Quote: q}, nil
}

func (t *Trader) fail(ctx context.Context, rec domain.TradeRecord, err error) error {
	rec.Status = domain.TradeStatusFailed
	rec.AmountOut = 0
	rec.Error = err.Error()
	t.record(ctx, rec)
	t.logger.Warn("curve trade failed", "action", rec.Action, "mint", rec.RefID, "error", err)
	return domain.Upstream("bondingcurve.trade", err)
}

func quoteError(err error) error {
	kind := domain.KindInvalid
	if errors.Is(err, ErrCurveComplete) || errors.Is(err, ErrInsufficientLiquidity) {
		kind = domain.KindInvalidState
	}
	return &domain.Error{Kind: kind, Op: "bondingcurve.quote", Err: err}
}
