package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"prooflaunch/internal/domain"
)

// ErrNothingToSweep is returned when the credential holds no token balance.
var ErrNothingToSweep = errors.New("credential holds no tokens")

// SweepResult reports a completed sweep.
type SweepResult struct {
	Mode   SweepMode
	Tokens uint64
	// ProceedsLamports is the funding amount forwarded to the destination.
	// Zero in transfer mode.
	ProceedsLamports uint64
	Signature        string
}

// SweepTransfer moves the credential's full token balance to the
// destination wallet as raw tokens, creating its receiving account first
// when missing. A sweep that cannot cover account-creation cost fails
// before submitting anything.
func (c *Custodian) SweepTransfer(ctx context.Context, encryptedSecret, mint, destination string) (SweepResult, error) {
	key, err := c.unsealKey(encryptedSecret)
	if err != nil {
		return SweepResult{}, err
	}

	mintPub, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return SweepResult{}, fmt.Errorf("invalid mint address: %w", err)
	}

	destPub, err := c.validateDestination(destination)
	if err != nil {
		return SweepResult{}, err
	}

	srcATA, _, err := solana.FindAssociatedTokenAddress(key.PublicKey(), mintPub)
	if err != nil {
		return SweepResult{}, fmt.Errorf("derive source token account: %w", err)
	}

	amount, err := c.tokenBalance(ctx, srcATA)
	if err != nil {
		return SweepResult{}, err
	}
	if amount == 0 {
		return SweepResult{}, ErrNothingToSweep
	}

	instructions, destATA, err := c.tokenReceiveInstructions(ctx, key, destPub, mintPub)
	if err != nil {
		return SweepResult{}, err
	}
	instructions = append(instructions,
		token.NewTransferInstruction(amount, srcATA, destATA, key.PublicKey(), nil).Build())

	sig, err := c.signAndSendAll(ctx, []solana.PrivateKey{key}, instructions)
	if err != nil {
		return SweepResult{}, err
	}

	if c.verbose {
		c.logger.Printf("[wallet] swept %d tokens to %s, tx %s", amount, destination, sig)
	}

	return SweepResult{
		Mode:      SweepTransfer,
		Tokens:    amount,
		Signature: sig,
	}, nil
}

// SweepSell sells the credential's tokens into the platform escrow and
// forwards proceeds lamports from the escrow to the destination wallet,
// in one transaction co-signed by the escrow key. The caller quotes the
// sale and settles the curve deltas against the persisted state; this
// method only moves the funds.
func (c *Custodian) SweepSell(ctx context.Context, encryptedSecret, mint, destination string, tokens, proceeds uint64) (SweepResult, error) {
	if c.escrowKey == nil {
		return SweepResult{}, ErrNoEscrowKey
	}
	if tokens == 0 {
		return SweepResult{}, ErrNothingToSweep
	}

	key, err := c.unsealKey(encryptedSecret)
	if err != nil {
		return SweepResult{}, err
	}

	mintPub, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return SweepResult{}, fmt.Errorf("invalid mint address: %w", err)
	}

	destPub, err := c.validateDestination(destination)
	if err != nil {
		return SweepResult{}, err
	}

	srcATA, _, err := solana.FindAssociatedTokenAddress(key.PublicKey(), mintPub)
	if err != nil {
		return SweepResult{}, fmt.Errorf("derive source token account: %w", err)
	}

	instructions, escrowATA, err := c.tokenReceiveInstructions(ctx, key, c.escrowKey.PublicKey(), mintPub)
	if err != nil {
		return SweepResult{}, err
	}
	instructions = append(instructions,
		token.NewTransferInstruction(tokens, srcATA, escrowATA, key.PublicKey(), nil).Build(),
		system.NewTransferInstruction(proceeds, c.escrowKey.PublicKey(), destPub).Build())

	sig, err := c.signAndSendAll(ctx, []solana.PrivateKey{key, c.escrowKey}, instructions)
	if err != nil {
		return SweepResult{}, err
	}

	if c.verbose {
		c.logger.Printf("[wallet] sold %d tokens for %d lamports to %s, tx %s", tokens, proceeds, destination, sig)
	}

	return SweepResult{
		Mode:             SweepSell,
		Tokens:           tokens,
		ProceedsLamports: proceeds,
		Signature:        sig,
	}, nil
}

// tokenReceiveInstructions derives the owner's associated token account
// and, when it is missing, prepends its creation paid from the credential's
// remaining funds. The sweep fails cleanly when they cannot cover it.
func (c *Custodian) tokenReceiveInstructions(ctx context.Context, key solana.PrivateKey, owner, mintPub solana.PublicKey) ([]solana.Instruction, solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mintPub)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("derive destination token account: %w", err)
	}

	info, err := c.ledger.GetAccountInfo(ctx, ata.String())
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("check destination token account: %w", err)
	}
	if info != nil {
		return nil, ata, nil
	}

	balance, err := c.ledger.GetBalance(ctx, key.PublicKey().String())
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("read credential balance: %w", err)
	}
	needed := uint64(domain.TokenAccountRentLamports + domain.SignatureFeeLamports)
	if balance < needed {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: balance %d cannot cover token account creation %d",
			ErrInsufficientBalance, balance, needed)
	}

	return []solana.Instruction{
		associatedtokenaccount.NewCreateInstruction(key.PublicKey(), owner, mintPub).Build(),
	}, ata, nil
}

// HoldingBalance returns the owner's balance of the mint. A missing token
// account reads as zero.
func (c *Custodian) HoldingBalance(ctx context.Context, owner, mint string) (uint64, error) {
	ownerPub, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("invalid owner address: %w", err)
	}
	mintPub, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint address: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerPub, mintPub)
	if err != nil {
		return 0, fmt.Errorf("derive token account: %w", err)
	}
	return c.tokenBalance(ctx, ata)
}

// tokenBalance reads and decodes an SPL token account balance. A missing
// account reads as zero.
func (c *Custodian) tokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	info, err := c.ledger.GetAccountInfo(ctx, account.String())
	if err != nil {
		return 0, fmt.Errorf("read token account: %w", err)
	}
	if info == nil {
		return 0, nil
	}

	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return 0, fmt.Errorf("decode token account data: %w", err)
	}

	var acc token.Account
	if err := acc.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return 0, fmt.Errorf("unmarshal token account: %w", err)
	}
	return acc.Amount, nil
}
