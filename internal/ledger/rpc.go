package ledger

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// rpcSource wraps the Solana JSON-RPC surface: balances, blockhash,
// signature pagination, and transfer submission.
type rpcSource struct {
	client *rpc.Client
}

func newRPCSource(url string) *rpcSource {
	return &rpcSource{client: rpc.New(url)}
}

func (r *rpcSource) nativeBalance(ctx context.Context, address string) (uint64, error) {
	pub, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid address: %w", err)
	}
	res, err := r.client.GetBalance(ctx, pub, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

func (r *rpcSource) tokenBalance(ctx context.Context, owner, mint string) (TokenBalance, error) {
	ownerPub, err := solanago.PublicKeyFromBase58(owner)
	if err != nil {
		return TokenBalance{}, fmt.Errorf("invalid owner: %w", err)
	}
	mintPub, err := solanago.PublicKeyFromBase58(mint)
	if err != nil {
		return TokenBalance{}, fmt.Errorf("invalid mint: %w", err)
	}

	ata, _, err := solanago.FindAssociatedTokenAddress(ownerPub, mintPub)
	if err != nil {
		return TokenBalance{}, err
	}

	res, err := r.client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		// an owner with no ATA yet simply holds zero of the mint.
		return TokenBalance{}, nil
	}
	if res == nil || res.Value == nil {
		return TokenBalance{}, nil
	}

	raw, err := parseUint(res.Value.Amount)
	if err != nil {
		return TokenBalance{}, err
	}
	ui := 0.0
	if res.Value.UiAmount != nil {
		ui = *res.Value.UiAmount
	}
	return TokenBalance{RawAmount: raw, UiAmount: ui, Decimals: res.Value.Decimals}, nil
}

func (r *rpcSource) latestBlockhash(ctx context.Context) (string, error) {
	res, err := r.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", err
	}
	return res.Value.Blockhash.String(), nil
}

func (r *rpcSource) signaturesForAddress(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error) {
	pub, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit}
	if before != "" {
		sig, err := solanago.SignatureFromBase58(before)
		if err != nil {
			return nil, fmt.Errorf("invalid before signature: %w", err)
		}
		opts.Before = sig
	}
	res, err := r.client.GetSignaturesForAddressWithOpts(ctx, pub, opts)
	if err != nil {
		return nil, err
	}
	out := make([]SignatureInfo, 0, len(res))
	for _, s := range res {
		var blockTime int64
		if s.BlockTime != nil {
			blockTime = int64(*s.BlockTime)
		}
		out = append(out, SignatureInfo{Signature: s.Signature.String(), BlockTime: blockTime})
	}
	return out, nil
}

// transferToken sends amountRaw of mint from payer (with signer) to
// recipient, creating the recipient's ATA first if it doesn't exist yet.
func (r *rpcSource) transferToken(ctx context.Context, payer solanago.PrivateKey, mint, recipient string, amountRaw uint64) (string, error) {
	mintPub, err := solanago.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("invalid mint: %w", err)
	}
	recipientPub, err := solanago.PublicKeyFromBase58(recipient)
	if err != nil {
		return "", fmt.Errorf("invalid recipient: %w", err)
	}
	payerPub := payer.PublicKey()

	sourceATA, _, err := solanago.FindAssociatedTokenAddress(payerPub, mintPub)
	if err != nil {
		return "", err
	}
	destATA, _, err := solanago.FindAssociatedTokenAddress(recipientPub, mintPub)
	if err != nil {
		return "", err
	}

	instructions := []solanago.Instruction{}

	destInfo, _ := r.client.GetAccountInfo(ctx, destATA)
	if destInfo == nil || destInfo.Value == nil {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(payerPub, recipientPub, mintPub).Build())
	}

	instructions = append(instructions,
		token.NewTransferInstruction(amountRaw, sourceATA, destATA, payerPub, nil).Build())

	bh, err := r.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", err
	}

	tx, err := solanago.NewTransaction(instructions, bh.Value.Blockhash, solanago.TransactionPayer(payerPub))
	if err != nil {
		return "", err
	}
	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(payerPub) {
			return &payer
		}
		return nil
	}); err != nil {
		return "", err
	}

	sig, err := r.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

func parseUint(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
