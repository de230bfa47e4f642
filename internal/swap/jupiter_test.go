package swap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

const quoteJSON = `{
	"inputMint": "So11111111111111111111111111111111111111112",
	"inAmount": "100000000",
	"outputMint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"outAmount": "15000000",
	"otherAmountThreshold": "14925000",
	"swapMode": "ExactIn",
	"slippageBps": 50,
	"priceImpactPct": "0.0012",
	"routePlan": [{"swapInfo": {"label": "Raydium"}}, {"swapInfo": {"label": "Orca"}}]
}`

func newJupiterServer(t *testing.T, swapTx []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, solMint, q.Get("inputMint"))
		assert.Equal(t, "100000000", q.Get("amount"))
		assert.Equal(t, "50", q.Get("slippageBps"))
		assert.Equal(t, "ExactIn", q.Get("swapMode"))
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Write([]byte(quoteJSON))
	})
	mux.HandleFunc("/swap", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		var quote map[string]interface{}
		require.NoError(t, json.Unmarshal(body["quoteResponse"], &quote))
		assert.Equal(t, "15000000", quote["outAmount"], "quote must be forwarded verbatim")
		assert.JSONEq(t, `"auto"`, string(body["prioritizationFeeLamports"]))
		assert.JSONEq(t, `true`, string(body["wrapAndUnwrapSol"]))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"swapTransaction":      base64.StdEncoding.EncodeToString(swapTx),
			"lastValidBlockHeight": 1000,
		})
	})
	return httptest.NewServer(mux)
}

func TestJupiterClient_Quote(t *testing.T) {
	server := newJupiterServer(t, nil)
	defer server.Close()

	client := NewJupiterClient(
		WithEndpoints(server.URL+"/quote", server.URL+"/swap"),
		WithAPIKey("test-key"),
	)

	quote, err := client.Quote(context.Background(), QuoteRequest{
		InputMint:   solMint,
		OutputMint:  usdcMint,
		Amount:      100_000_000,
		SlippageBps: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(100_000_000), quote.InAmount)
	assert.Equal(t, uint64(15_000_000), quote.OutAmount)
	assert.Equal(t, uint64(14_925_000), quote.OtherAmountThreshold)
	assert.InDelta(t, 0.0012, quote.PriceImpactPct, 1e-9)
	assert.Equal(t, []string{"Raydium", "Orca"}, quote.RouteLabels)

	// 0.1 SOL for 15 USDC
	assert.InDelta(t, 0.1/15, quote.ImpliedPrice(9, 6), 1e-12)
}

func TestJupiterClient_SwapTransaction(t *testing.T) {
	tx := []byte{1, 2, 3, 4, 5}
	server := newJupiterServer(t, tx)
	defer server.Close()

	client := NewJupiterClient(
		WithEndpoints(server.URL+"/quote", server.URL+"/swap"),
		WithAPIKey("test-key"),
	)

	quote, err := client.Quote(context.Background(), QuoteRequest{
		InputMint: solMint, OutputMint: usdcMint, Amount: 100_000_000, SlippageBps: 50,
	})
	require.NoError(t, err)

	got, err := client.SwapTransaction(context.Background(), quote, "payer")
	require.NoError(t, err)
	assert.Equal(t, tx, got)

	_, err = client.SwapTransaction(context.Background(), &Quote{}, "payer")
	assert.Error(t, err, "synthetic quote has no payload")
}

func TestJupiterClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("amount") {
		case "1":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"Could not find any route"}`))
		default:
			w.Write([]byte(`{"error":"No routes found"}`))
		}
	}))
	defer server.Close()

	client := NewJupiterClient(WithEndpoints(server.URL, server.URL))

	_, err := client.Quote(context.Background(), QuoteRequest{InputMint: solMint, OutputMint: usdcMint, Amount: 1})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)

	_, err = client.Quote(context.Background(), QuoteRequest{InputMint: solMint, OutputMint: usdcMint, Amount: 2})
	assert.ErrorIs(t, err, ErrNoRoute)
}
