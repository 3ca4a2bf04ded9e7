package ledger

import (
	"context"
	"fmt"
)

// FakeAdapter is an in-memory Adapter used by tests for the scanner, age
// cache, balance refresher, and jobs, so they don't need a live RPC/Helius
// endpoint to exercise their logic.
type FakeAdapter struct {
	TransactionsByAddress map[string][]WalletTransaction
	TransactionsBySig     map[string]WalletTransaction
	NativeBalances        map[string]uint64
	TokenBalances         map[string]TokenBalance // key: wallet
	TokenBalanceErr       map[string]error        // wallet -> forced error
	Supply                TokenBalance
	Blockhash             string
	QuoteFn               func(mint string, lamportsIn uint64, slippageBps int) (SwapQuote, error)
	ExecuteSwapFn         func(quote SwapQuote) (SwapResult, error)
	TransferErr           map[string]error // wallet -> forced error
}

func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		TransactionsByAddress: map[string][]WalletTransaction{},
		TransactionsBySig:     map[string]WalletTransaction{},
		NativeBalances:        map[string]uint64{},
		TokenBalances:         map[string]TokenBalance{},
		TransferErr:           map[string]error{},
	}
}

func (f *FakeAdapter) EnrichedTransactionsByAddress(ctx context.Context, address string, limit int, before string) ([]WalletTransaction, error) {
	txs := f.TransactionsByAddress[address]
	if before == "" {
		if len(txs) > limit {
			return txs[:limit], nil
		}
		return txs, nil
	}
	for i, tx := range txs {
		if tx.Signature == before {
			rest := txs[i+1:]
			if len(rest) > limit {
				return rest[:limit], nil
			}
			return rest, nil
		}
	}
	return nil, nil
}

func (f *FakeAdapter) EnrichedTransactionsBySignatures(ctx context.Context, signatures []string) ([]WalletTransaction, error) {
	out := make([]WalletTransaction, 0, len(signatures))
	for _, sig := range signatures {
		if tx, ok := f.TransactionsBySig[sig]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *FakeAdapter) SignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error) {
	txs, err := f.EnrichedTransactionsByAddress(ctx, address, limit, before)
	if err != nil {
		return nil, err
	}
	out := make([]SignatureInfo, len(txs))
	for i, tx := range txs {
		out[i] = SignatureInfo{Signature: tx.Signature, BlockTime: tx.Timestamp}
	}
	return out, nil
}

func (f *FakeAdapter) NativeBalance(ctx context.Context, address string) (uint64, error) {
	return f.NativeBalances[address], nil
}

func (f *FakeAdapter) TokenBalance(ctx context.Context, address, mint string) (TokenBalance, error) {
	if err, ok := f.TokenBalanceErr[address]; ok && err != nil {
		return TokenBalance{}, err
	}
	return f.TokenBalances[address], nil
}

func (f *FakeAdapter) TokenSupply(ctx context.Context, mint string) (TokenBalance, error) {
	return f.Supply, nil
}

func (f *FakeAdapter) Quote(ctx context.Context, mint string, lamportsIn uint64, slippageBps int) (SwapQuote, error) {
	if f.QuoteFn != nil {
		return f.QuoteFn(mint, lamportsIn, slippageBps)
	}
	return SwapQuote{InAmountLamports: lamportsIn, OutAmountRaw: lamportsIn * 1000}, nil
}

func (f *FakeAdapter) ExecuteSwap(ctx context.Context, quote SwapQuote, slippageBps int) (SwapResult, error) {
	if f.ExecuteSwapFn != nil {
		return f.ExecuteSwapFn(quote)
	}
	return SwapResult{Signature: "fake-sig", OutAmountRaw: quote.OutAmountRaw}, nil
}

func (f *FakeAdapter) TransferTokens(ctx context.Context, mint string, sends map[string]uint64) []TransferResult {
	results := make([]TransferResult, 0, len(sends))
	for wallet, amount := range sends {
		if err, ok := f.TransferErr[wallet]; ok && err != nil {
			results = append(results, TransferResult{Wallet: wallet, Success: false, Err: err})
			continue
		}
		results = append(results, TransferResult{
			Wallet: wallet, Success: true, Signature: fmt.Sprintf("fake-transfer-%s-%d", wallet, amount),
		})
	}
	return results
}

func (f *FakeAdapter) LatestBlockhash(ctx context.Context) (string, error) {
	if f.Blockhash == "" {
		return "fakeblockhash", nil
	}
	return f.Blockhash, nil
}
