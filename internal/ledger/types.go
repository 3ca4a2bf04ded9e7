// Package ledger is the boundary between the bot and the outside Solana
// world: transaction history, balances, and swap execution. Everything
// downstream consumes the Adapter interface, never the raw clients, so
// jobs and the scanner can be tested against a fake.
package ledger

import "context"

// Confidence tiers the scanner assigns to a detected buy.
type Confidence int

const (
	// ConfidenceHigh: a parsed swap event named the wallet as the receiver
	// of token output for a SOL input.
	ConfidenceHigh Confidence = iota
	// ConfidenceMedium: one account in the transaction shows both a native
	// balance decrease of at least 0.001 SOL and a token balance increase
	// for the mint.
	ConfidenceMedium
	// ConfidenceLow: a token transfer of the mint to a wallet is matched by
	// a native transfer from that same wallet in the same transaction, with
	// no direct swap evidence.
	ConfidenceLow
)

// BuyEvent is one detected buy, tiered by Confidence.
type BuyEvent struct {
	Wallet       string
	Signature    string
	Timestamp    int64
	NativeAmount float64
	Confidence   Confidence
}

// WalletTransaction is a minimal, adapter-agnostic view of one transaction
// touching a wallet, used for holder discovery and buy detection.
type WalletTransaction struct {
	Signature       string
	Timestamp       int64
	NativeTransfers []NativeTransfer
	TokenTransfers  []TokenTransfer
	AccountDeltas   []AccountDelta
	Swap            *SwapEvent
	Failed          bool
}

// SwapEvent is the indexer's recognized-swap annotation for a transaction,
// used for high-confidence buy detection.
type SwapEvent struct {
	NativeInputLamports int64
	TokenOutputs        []TokenOutput
}

type TokenOutput struct {
	UserAccount string
	Mint        string
	Amount      float64
}

type NativeTransfer struct {
	From   string
	To     string
	Amount int64 // lamports
}

type TokenTransfer struct {
	From   string
	To     string
	Mint   string
	Amount float64 // UI amount
}

type AccountDelta struct {
	Account             string
	NativeBalanceChange int64
	TokenBalanceChanges []TokenBalanceChange
}

// TokenBalanceChange is one mint's raw balance delta for an account within
// a transaction, signed (positive = increase).
type TokenBalanceChange struct {
	Mint      string
	RawDelta  int64
	Decimals  uint8
}

// TokenBalance is a wallet's raw and UI-scaled balance of one mint.
type TokenBalance struct {
	RawAmount uint64
	UiAmount  float64
	Decimals  uint8
}

// SwapQuote is a quoted route for a native-to-token swap.
type SwapQuote struct {
	InAmountLamports  uint64
	OutAmountRaw      uint64
	PriceImpactPct    float64
	raw               map[string]any
}

// SwapResult is the outcome of executing a quoted swap.
type SwapResult struct {
	Signature    string
	OutAmountRaw uint64
	DryRun       bool
}

// TransferResult is the outcome of one SPL token transfer to a holder.
type TransferResult struct {
	Wallet    string
	Signature string
	Success   bool
	Err       error
	DryRun    bool
}

// SignatureInfo is one entry of get_signatures_for_address: the signature
// plus the blockTime already carried alongside it, so callers that only
// need a timestamp don't have to re-fetch and parse the full transaction.
type SignatureInfo struct {
	Signature string
	BlockTime int64
}

// Adapter is everything the scanner, age cache, balance refresher, buy job,
// and reward job need from the chain. A single implementation (Solana)
// composes the Helius, RPC, and Jupiter clients behind it.
type Adapter interface {
	// EnrichedTransactionsByAddress returns transactions touching address,
	// newest first, paginated by before (a signature) when non-empty.
	EnrichedTransactionsByAddress(ctx context.Context, address string, limit int, before string) ([]WalletTransaction, error)
	// EnrichedTransactionsBySignatures batch-fetches parsed transactions.
	EnrichedTransactionsBySignatures(ctx context.Context, signatures []string) ([]WalletTransaction, error)
	// SignaturesForAddress returns signature/blockTime pairs for address,
	// newest-first, paginated by before (a signature) when non-empty, for
	// wallet-age discovery that needs only block times, not full enrichment.
	SignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error)

	// NativeBalance returns address's lamport balance.
	NativeBalance(ctx context.Context, address string) (uint64, error)
	// TokenBalance returns address's balance of mint via its ATA.
	TokenBalance(ctx context.Context, address, mint string) (TokenBalance, error)
	// TokenSupply returns the mint's total supply and decimals.
	TokenSupply(ctx context.Context, mint string) (TokenBalance, error)

	// Quote prices a native-in, token-out swap.
	Quote(ctx context.Context, mint string, lamportsIn uint64, slippageBps int) (SwapQuote, error)
	// ExecuteSwap signs and submits the quoted swap from the treasury
	// wallet. In dry-run mode it returns a synthetic result and sends
	// nothing.
	ExecuteSwap(ctx context.Context, quote SwapQuote, slippageBps int) (SwapResult, error)

	// TransferTokens sends amountRaw of mint from the treasury to each
	// recipient, one transaction per recipient (spec's per-winner send),
	// creating the recipient's ATA first if absent.
	TransferTokens(ctx context.Context, mint string, sends map[string]uint64) []TransferResult

	// LatestBlockhash is used to derive the per-round lottery seed.
	LatestBlockhash(ctx context.Context) (string, error)
}
