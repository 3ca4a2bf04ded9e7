package scanner

import "treasurybot/internal/ledger"

const mediumConfidenceMinSOL = 0.001

// buyEvent is one detected buy, confidence-tagged, ready to be folded into
// a holder's cumulative totals.
type buyEvent struct {
	Wallet         string
	NativeAmount   float64
	HighConfidence bool
}

// discoverWallets returns the set of wallets that appeared in tx touching
// mint: either side of a token transfer, or an account with a token
// balance change for the mint.
func discoverWallets(tx ledger.WalletTransaction, mint string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tt := range tx.TokenTransfers {
		if tt.Mint != mint {
			continue
		}
		if tt.From != "" {
			out[tt.From] = struct{}{}
		}
		if tt.To != "" {
			out[tt.To] = struct{}{}
		}
	}
	for _, ad := range tx.AccountDeltas {
		for _, tbc := range ad.TokenBalanceChanges {
			if tbc.Mint == mint {
				out[ad.Account] = struct{}{}
				break
			}
		}
	}
	return out
}

// detectBuys applies the three-tiered detector, returning at most the
// events from the first tier that produces any.
func detectBuys(tx ledger.WalletTransaction, mint string) []buyEvent {
	if events := detectHighConfidence(tx, mint); len(events) > 0 {
		return events
	}
	if events := detectMediumConfidence(tx, mint); len(events) > 0 {
		return events
	}
	return detectLowConfidence(tx, mint)
}

func detectHighConfidence(tx ledger.WalletTransaction, mint string) []buyEvent {
	if tx.Swap == nil || tx.Swap.NativeInputLamports == 0 {
		return nil
	}
	var out []buyEvent
	for _, out2 := range tx.Swap.TokenOutputs {
		if out2.Mint != mint {
			continue
		}
		out = append(out, buyEvent{
			Wallet:         out2.UserAccount,
			NativeAmount:   float64(tx.Swap.NativeInputLamports) / 1e9,
			HighConfidence: true,
		})
	}
	return out
}

func detectMediumConfidence(tx ledger.WalletTransaction, mint string) []buyEvent {
	for _, ad := range tx.AccountDeltas {
		if ad.NativeBalanceChange >= 0 {
			continue
		}
		solSpent := float64(-ad.NativeBalanceChange) / 1e9
		if solSpent < mediumConfidenceMinSOL {
			continue
		}
		for _, tbc := range ad.TokenBalanceChanges {
			if tbc.Mint == mint && tbc.RawDelta > 0 {
				return []buyEvent{{Wallet: ad.Account, NativeAmount: solSpent}}
			}
		}
	}
	return nil
}

func detectLowConfidence(tx ledger.WalletTransaction, mint string) []buyEvent {
	var out []buyEvent
	for _, tt := range tx.TokenTransfers {
		if tt.Mint != mint || tt.Amount <= 0 {
			continue
		}
		for _, nt := range tx.NativeTransfers {
			if nt.From == tt.To && nt.Amount > 0 {
				out = append(out, buyEvent{Wallet: tt.To, NativeAmount: float64(nt.Amount) / 1e9})
			}
		}
	}
	return out
}
