package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	jupiterQuoteURL = "https://lite-api.jup.ag/swap/v1/quote"
	jupiterSwapURL  = "https://lite-api.jup.ag/swap/v1/swap"
	solMint         = "So11111111111111111111111111111111111111112"
)

// jupiterSource prices and executes native-to-token swaps through Jupiter's
// aggregator.
type jupiterSource struct {
	httpClient *http.Client
	rpcClient  *rpc.Client
	payer      solanago.PrivateKey
	dryRun     bool
}

func newJupiterSource(rpcClient *rpc.Client, payer solanago.PrivateKey, dryRun bool) *jupiterSource {
	return &jupiterSource{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		rpcClient:  rpcClient,
		payer:      payer,
		dryRun:     dryRun,
	}
}

func (j *jupiterSource) quote(ctx context.Context, mint string, lamportsIn uint64, slippageBps int) (SwapQuote, error) {
	url := fmt.Sprintf("%s?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d&swapMode=ExactIn",
		jupiterQuoteURL, solMint, mint, lamportsIn, slippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return SwapQuote{}, err
	}
	resp, err := j.httpClient.Do(req)
	if err != nil {
		return SwapQuote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SwapQuote{}, fmt.Errorf("jupiter quote failed with status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return SwapQuote{}, fmt.Errorf("decode jupiter quote: %w", err)
	}
	if errMsg, ok := raw["error"].(string); ok {
		return SwapQuote{}, fmt.Errorf("jupiter quote error: %s", errMsg)
	}

	inAmount, _ := strconv.ParseUint(asString(raw["inAmount"]), 10, 64)
	outAmount, _ := strconv.ParseUint(asString(raw["outAmount"]), 10, 64)
	impact, _ := strconv.ParseFloat(asString(raw["priceImpactPct"]), 64)

	return SwapQuote{
		InAmountLamports: inAmount,
		OutAmountRaw:     outAmount,
		PriceImpactPct:   impact,
		raw:              raw,
	}, nil
}

func (j *jupiterSource) executeSwap(ctx context.Context, quote SwapQuote, slippageBps int) (SwapResult, error) {
	if j.dryRun {
		return SwapResult{Signature: "dry-run", OutAmountRaw: quote.OutAmountRaw, DryRun: true}, nil
	}

	payerPub := j.payer.PublicKey()
	swapBody := map[string]any{
		"quoteResponse":             quote.raw,
		"userPublicKey":             payerPub.String(),
		"wrapAndUnwrapSol":          true,
		"dynamicComputeUnitLimit":   true,
		"slippageBps":               slippageBps,
	}
	body, err := json.Marshal(swapBody)
	if err != nil {
		return SwapResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, jupiterSwapURL, bytes.NewReader(body))
	if err != nil {
		return SwapResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return SwapResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SwapResult{}, fmt.Errorf("jupiter swap failed with status %d", resp.StatusCode)
	}

	var swap map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&swap); err != nil {
		return SwapResult{}, fmt.Errorf("decode jupiter swap: %w", err)
	}
	if errMsg, ok := swap["error"].(string); ok {
		return SwapResult{}, fmt.Errorf("jupiter swap error: %s", errMsg)
	}

	txBase64, ok := swap["swapTransaction"].(string)
	if !ok {
		return SwapResult{}, fmt.Errorf("jupiter swap response missing swapTransaction")
	}

	txBytes, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return SwapResult{}, fmt.Errorf("decode swap transaction: %w", err)
	}
	tx, err := solanago.TransactionFromBytes(txBytes)
	if err != nil {
		return SwapResult{}, fmt.Errorf("parse swap transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(payerPub) {
			return &j.payer
		}
		return nil
	}); err != nil {
		return SwapResult{}, fmt.Errorf("sign swap transaction: %w", err)
	}

	sig, err := j.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return SwapResult{}, fmt.Errorf("send swap transaction: %w", err)
	}

	return SwapResult{Signature: sig.String(), OutAmountRaw: quote.OutAmountRaw}, nil
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
