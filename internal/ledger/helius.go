package ledger

import (
	"context"
	"strconv"

	"treasurybot/pkg/helius"
)

// heliusSource wraps the enriched-transaction indexer client.
type heliusSource struct {
	client *helius.Client
}

func newHeliusSource(apiKey string) *heliusSource {
	return &heliusSource{client: helius.NewClient(apiKey)}
}

func (h *heliusSource) enrichedByAddress(ctx context.Context, address string, limit int, before string) ([]WalletTransaction, error) {
	opts := &helius.TransactionOptions{Limit: helius.IntPtr(limit)}
	if before != "" {
		opts.Before = helius.StringPtr(before)
	}
	txs, err := h.client.GetEnhancedTransactionsByAddress(ctx, address, opts)
	if err != nil {
		return nil, err
	}
	return toWalletTransactions(txs), nil
}

func (h *heliusSource) enrichedBySignatures(ctx context.Context, signatures []string) ([]WalletTransaction, error) {
	txs, err := h.client.GetEnhancedTransactions(ctx, signatures)
	if err != nil {
		return nil, err
	}
	return toWalletTransactions(txs), nil
}

func (h *heliusSource) tokenSupply(ctx context.Context, mint string) (TokenBalance, error) {
	v, err := h.client.GetTokenSupply(ctx, mint)
	if err != nil {
		return TokenBalance{}, err
	}
	raw, err := strconv.ParseUint(v.Amount, 10, 64)
	if err != nil {
		return TokenBalance{}, err
	}
	return TokenBalance{RawAmount: raw, UiAmount: v.UiAmount, Decimals: uint8(v.Decimals)}, nil
}

func toWalletTransactions(txs []helius.EnhancedTransaction) []WalletTransaction {
	out := make([]WalletTransaction, 0, len(txs))
	for _, tx := range txs {
		wt := WalletTransaction{
			Signature: tx.Signature,
			Timestamp: tx.Timestamp,
			Failed:    tx.TransactionError != nil,
		}
		for _, nt := range tx.NativeTransfers {
			wt.NativeTransfers = append(wt.NativeTransfers, NativeTransfer{
				From: nt.FromUserAccount, To: nt.ToUserAccount, Amount: nt.Amount,
			})
		}
		for _, tt := range tx.TokenTransfers {
			wt.TokenTransfers = append(wt.TokenTransfers, TokenTransfer{
				From: tt.FromUserAccount, To: tt.ToUserAccount, Mint: tt.Mint, Amount: tt.TokenAmount,
			})
		}
		for _, ad := range tx.AccountData {
			delta := AccountDelta{Account: ad.Account, NativeBalanceChange: ad.NativeBalanceChange}
			for _, tbc := range ad.TokenBalanceChanges {
				raw, _ := strconv.ParseInt(tbc.RawTokenAmount.TokenAmount, 10, 64)
				delta.TokenBalanceChanges = append(delta.TokenBalanceChanges, TokenBalanceChange{
					Mint: tbc.Mint, RawDelta: raw, Decimals: uint8(tbc.RawTokenAmount.Decimals),
				})
			}
			wt.AccountDeltas = append(wt.AccountDeltas, delta)
		}
		wt.Swap = parseSwapEvent(tx.Events)
		out = append(out, wt)
	}
	return out
}

func parseSwapEvent(events map[string]interface{}) *SwapEvent {
	raw, ok := events["swap"]
	if !ok || raw == nil {
		return nil
	}
	swap, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	nativeInput, ok := swap["nativeInput"].(map[string]interface{})
	if !ok {
		return nil
	}
	amountStr, _ := nativeInput["amount"].(string)
	amount, err := strconv.ParseInt(amountStr, 10, 64)
	if err != nil {
		return nil
	}

	outputsRaw, ok := swap["tokenOutputs"].([]interface{})
	if !ok {
		return nil
	}
	ev := &SwapEvent{NativeInputLamports: amount}
	for _, o := range outputsRaw {
		m, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		user, _ := m["userAccount"].(string)
		mint, _ := m["mint"].(string)
		amt, _ := m["tokenAmount"].(float64)
		ev.TokenOutputs = append(ev.TokenOutputs, TokenOutput{UserAccount: user, Mint: mint, Amount: amt})
	}
	if len(ev.TokenOutputs) == 0 {
		return nil
	}
	return ev
}
