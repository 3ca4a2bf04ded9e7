package ledger

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
)

// SolanaAdapter is the production Adapter implementation, composing the
// Helius indexer, the Solana JSON-RPC client, and Jupiter's swap API.
type SolanaAdapter struct {
	helius  *heliusSource
	rpc     *rpcSource
	jupiter *jupiterSource
	payer   solanago.PrivateKey
	dryRun  bool
}

// NewSolanaAdapter wires the three chain clients together. payer may be the
// zero value in dry-run mode, since no transaction is ever signed.
func NewSolanaAdapter(rpcURL, heliusAPIKey string, payer solanago.PrivateKey, dryRun bool) *SolanaAdapter {
	rs := newRPCSource(rpcURL)
	return &SolanaAdapter{
		helius:  newHeliusSource(heliusAPIKey),
		rpc:     rs,
		jupiter: newJupiterSource(rs.client, payer, dryRun),
		payer:   payer,
		dryRun:  dryRun,
	}
}

func (a *SolanaAdapter) EnrichedTransactionsByAddress(ctx context.Context, address string, limit int, before string) ([]WalletTransaction, error) {
	return a.helius.enrichedByAddress(ctx, address, limit, before)
}

func (a *SolanaAdapter) EnrichedTransactionsBySignatures(ctx context.Context, signatures []string) ([]WalletTransaction, error) {
	return a.helius.enrichedBySignatures(ctx, signatures)
}

func (a *SolanaAdapter) SignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error) {
	return a.rpc.signaturesForAddress(ctx, address, limit, before)
}

func (a *SolanaAdapter) NativeBalance(ctx context.Context, address string) (uint64, error) {
	return a.rpc.nativeBalance(ctx, address)
}

func (a *SolanaAdapter) TokenBalance(ctx context.Context, address, mint string) (TokenBalance, error) {
	return a.rpc.tokenBalance(ctx, address, mint)
}

func (a *SolanaAdapter) TokenSupply(ctx context.Context, mint string) (TokenBalance, error) {
	return a.helius.tokenSupply(ctx, mint)
}

func (a *SolanaAdapter) Quote(ctx context.Context, mint string, lamportsIn uint64, slippageBps int) (SwapQuote, error) {
	return a.jupiter.quote(ctx, mint, lamportsIn, slippageBps)
}

func (a *SolanaAdapter) ExecuteSwap(ctx context.Context, quote SwapQuote, slippageBps int) (SwapResult, error) {
	return a.jupiter.executeSwap(ctx, quote, slippageBps)
}

func (a *SolanaAdapter) LatestBlockhash(ctx context.Context) (string, error) {
	return a.rpc.latestBlockhash(ctx)
}

func (a *SolanaAdapter) TransferTokens(ctx context.Context, mint string, sends map[string]uint64) []TransferResult {
	results := make([]TransferResult, 0, len(sends))
	for wallet, amount := range sends {
		if a.dryRun {
			results = append(results, TransferResult{Wallet: wallet, Signature: "dry-run", Success: true, DryRun: true})
			continue
		}
		sig, err := a.rpc.transferToken(ctx, a.payer, mint, wallet, amount)
		if err != nil {
			log.WithError(err).WithField("wallet", wallet).Warn("token transfer failed")
			results = append(results, TransferResult{Wallet: wallet, Success: false, Err: err})
			continue
		}
		results = append(results, TransferResult{Wallet: wallet, Signature: sig, Success: true})
	}
	return results
}
