// Package wallet manages the custodial credential lifecycle: single-use
// keypair generation, encrypted-at-rest secrets, deposit verification, and
// the fund movements (purchase, sweep, refund, export) that settle a
// contribution. It is the only package that handles credential secrets.
package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/ledger"
)

// Wallet errors.
var (
	// ErrUnverifiedDeposit is returned when a deposit transaction never
	// becomes visible, fails, or does not move the expected amount.
	ErrUnverifiedDeposit = errors.New("deposit unverified")

	// ErrInsufficientBalance is returned when a credential cannot cover
	// the requested movement plus its reserved overhead.
	ErrInsufficientBalance = errors.New("insufficient credential balance")

	// ErrExportLocked is returned when a secret export is requested
	// before the owning campaign is live.
	ErrExportLocked = errors.New("secret export locked until campaign is live")

	// ErrInvalidDestination is returned for destinations that are not
	// valid ledger addresses.
	ErrInvalidDestination = errors.New("invalid destination address")

	// ErrNoEscrowKey is returned when a sell sweep is requested but the
	// custodian was not configured with the escrow signing key.
	ErrNoEscrowKey = errors.New("escrow signing key not configured")
)

// Deposit verification retry schedule. External transactions may not be
// immediately visible; attempts grow the wait between polls.
const (
	DepositVerifyAttempts  = 5
	DepositVerifyBaseDelay = 2 * time.Second

	// DepositToleranceBps absorbs network fee rounding on the expected
	// amount; an absolute floor applies for small deposits.
	DepositToleranceBps     = 100
	DepositToleranceMinimum = 5_000
)

// Credential is a freshly generated custody keypair. The secret is already
// sealed; callers persist both fields as-is.
type Credential struct {
	PublicKey       string
	EncryptedSecret string
}

// SweepMode selects how a credential's token balance leaves custody.
type SweepMode string

const (
	SweepSell     SweepMode = "sell"
	SweepTransfer SweepMode = "transfer"
)

// Custodian performs credential fund movements against the ledger.
type Custodian struct {
	ledger ledger.Client
	vault  *Vault

	// platformCustodian receives withdrawal fees.
	platformCustodian string

	// escrowKey co-signs sell sweeps, releasing sale proceeds from the
	// platform escrow. Nil when sell sweeps are disabled.
	escrowKey solana.PrivateKey

	depositRetryDelay time.Duration

	logger  *log.Logger
	verbose bool
}

// Options configures a Custodian.
type Options struct {
	Ledger ledger.Client
	Vault  *Vault

	// PlatformCustodian is the base58 address receiving withdrawal fees.
	PlatformCustodian string

	// EscrowKey is the base58 private key of the platform escrow. Optional;
	// without it SweepSell returns ErrNoEscrowKey.
	EscrowKey string

	// DepositRetryDelay overrides the base poll delay for deposit
	// verification. Zero uses DepositVerifyBaseDelay.
	DepositRetryDelay time.Duration

	Logger  *log.Logger
	Verbose bool
}

// New creates a Custodian.
func New(opts Options) (*Custodian, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger client is required")
	}
	if opts.Vault == nil {
		return nil, fmt.Errorf("vault is required")
	}
	if _, err := solana.PublicKeyFromBase58(opts.PlatformCustodian); err != nil {
		return nil, fmt.Errorf("invalid platform custodian address: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	retryDelay := opts.DepositRetryDelay
	if retryDelay <= 0 {
		retryDelay = DepositVerifyBaseDelay
	}

	var escrowKey solana.PrivateKey
	if opts.EscrowKey != "" {
		var err error
		escrowKey, err = solana.PrivateKeyFromBase58(opts.EscrowKey)
		if err != nil {
			return nil, fmt.Errorf("invalid escrow key: %w", err)
		}
	}

	return &Custodian{
		ledger:            opts.Ledger,
		vault:             opts.Vault,
		platformCustodian: opts.PlatformCustodian,
		escrowKey:         escrowKey,
		depositRetryDelay: retryDelay,
		logger:            logger,
		verbose:           opts.Verbose,
	}, nil
}

// GenerateCredential produces a fresh single-use keypair with the secret
// sealed under the vault key. Each call yields a statistically unique
// keypair; credentials are never reused across campaigns.
func (c *Custodian) GenerateCredential() (Credential, error) {
	w := solana.NewWallet()

	encrypted, err := c.vault.Encrypt(w.PrivateKey)
	if err != nil {
		return Credential{}, fmt.Errorf("seal credential secret: %w", err)
	}

	return Credential{
		PublicKey:       w.PublicKey().String(),
		EncryptedSecret: encrypted,
	}, nil
}

// VerifyDeposit confirms that txRef moved at least expectedAmount (within
// tolerance) to the credential account from expectedSender. Polls with
// growing delay; a transaction that never becomes visible within the retry
// budget is unverified, not fatal.
func (c *Custodian) VerifyDeposit(ctx context.Context, txRef, credentialPub string, expectedAmount uint64, expectedSender string) error {
	tolerance := expectedAmount * DepositToleranceBps / domain.BpsDenominator
	if tolerance < DepositToleranceMinimum {
		tolerance = DepositToleranceMinimum
	}

	var lastErr error
	for attempt := 1; attempt <= DepositVerifyAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.depositRetryDelay):
			}
		}

		tx, err := c.ledger.GetTransaction(ctx, txRef)
		if err != nil {
			lastErr = err
			continue
		}
		if tx == nil {
			lastErr = fmt.Errorf("transaction not yet visible")
			if c.verbose {
				c.logger.Printf("[wallet] deposit %s not visible, attempt %d/%d", txRef, attempt, DepositVerifyAttempts)
			}
			continue
		}

		if tx.Failed() {
			return fmt.Errorf("%w: transaction failed on ledger", ErrUnverifiedDeposit)
		}

		delta, ok := tx.BalanceDelta(credentialPub)
		if !ok || delta <= 0 {
			return fmt.Errorf("%w: no inflow to credential account", ErrUnverifiedDeposit)
		}
		if uint64(delta)+tolerance < expectedAmount {
			return fmt.Errorf("%w: received %d, expected %d", ErrUnverifiedDeposit, delta, expectedAmount)
		}

		senderDelta, ok := tx.BalanceDelta(expectedSender)
		if !ok || senderDelta >= 0 {
			return fmt.Errorf("%w: sender %s did not fund the transaction", ErrUnverifiedDeposit, expectedSender)
		}

		return nil
	}

	return fmt.Errorf("%w: %v", ErrUnverifiedDeposit, lastErr)
}

// ExportSecret decrypts a credential secret for contributor import. The
// campaign must be live; this is a timing gate, not an identity check, so
// funds cannot leave custody before launch settles.
func (c *Custodian) ExportSecret(encryptedSecret string, campaignStatus domain.CampaignStatus) (string, error) {
	if campaignStatus != domain.CampaignLive {
		return "", ErrExportLocked
	}

	secret, err := c.vault.Decrypt(encryptedSecret)
	if err != nil {
		return "", fmt.Errorf("unseal credential secret: %w", err)
	}

	// Base58 keeps the key importable by standard wallets.
	return base58.Encode(secret), nil
}

// Purchase transfers spendLamports from the credential to the campaign
// escrow as the launch buy. The credential must retain its reserved
// overhead after the transfer.
func (c *Custodian) Purchase(ctx context.Context, encryptedSecret, escrow string, spendLamports uint64) (string, error) {
	key, err := c.unsealKey(encryptedSecret)
	if err != nil {
		return "", err
	}

	balance, err := c.ledger.GetBalance(ctx, key.PublicKey().String())
	if err != nil {
		return "", fmt.Errorf("read credential balance: %w", err)
	}
	if balance < spendLamports+domain.PurchaseReserveLamports {
		return "", fmt.Errorf("%w: balance %d cannot cover %d plus reserve", ErrInsufficientBalance, balance, spendLamports)
	}

	dest, err := c.validateDestination(escrow)
	if err != nil {
		return "", err
	}

	ix := system.NewTransferInstruction(spendLamports, key.PublicKey(), dest).Build()
	return c.signAndSend(ctx, key, ix)
}

// BuyableBalance returns the portion of a credential balance available for
// a launch purchase after the reserved overhead, or zero when the reserve
// cannot be met.
func BuyableBalance(balance uint64) uint64 {
	if balance <= domain.PurchaseReserveLamports {
		return 0
	}
	return balance - domain.PurchaseReserveLamports
}

// Refund sends the credential balance back to destination, minus feeBps
// (sent to the platform custodian) and transaction overhead. Both transfers
// ride one transaction so a refund is all-or-nothing. Deadline refunds pass
// feeBps zero.
func (c *Custodian) Refund(ctx context.Context, encryptedSecret, destination string, feeBps uint64) (uint64, string, error) {
	key, err := c.unsealKey(encryptedSecret)
	if err != nil {
		return 0, "", err
	}

	dest, err := c.validateDestination(destination)
	if err != nil {
		return 0, "", err
	}

	balance, err := c.ledger.GetBalance(ctx, key.PublicKey().String())
	if err != nil {
		return 0, "", fmt.Errorf("read credential balance: %w", err)
	}

	fee := balance * feeBps / domain.BpsDenominator
	overhead := uint64(domain.SignatureFeeLamports)
	if balance <= fee+overhead {
		return 0, "", fmt.Errorf("%w: balance %d cannot cover fee %d and overhead", ErrInsufficientBalance, balance, fee)
	}
	sendable := balance - fee - overhead

	instructions := []solana.Instruction{
		system.NewTransferInstruction(sendable, key.PublicKey(), dest).Build(),
	}
	if fee > 0 {
		custodian := solana.MustPublicKeyFromBase58(c.platformCustodian)
		instructions = append(instructions,
			system.NewTransferInstruction(fee, key.PublicKey(), custodian).Build())
	}

	sig, err := c.signAndSendAll(ctx, []solana.PrivateKey{key}, instructions)
	if err != nil {
		return 0, "", err
	}

	if c.verbose {
		c.logger.Printf("[wallet] refunded %d lamports to %s (fee %d), tx %s", sendable, destination, fee, sig)
	}
	return sendable, sig, nil
}

// unsealKey decrypts and parses a credential private key.
func (c *Custodian) unsealKey(encryptedSecret string) (solana.PrivateKey, error) {
	secret, err := c.vault.Decrypt(encryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("unseal credential secret: %w", err)
	}
	if len(secret) != 64 {
		return nil, fmt.Errorf("credential secret has unexpected length %d", len(secret))
	}
	return solana.PrivateKey(secret), nil
}

// validateDestination parses a base58 address and checks its point is on
// the ed25519 curve. Program-derived addresses are off-curve and cannot
// receive a plain system transfer without their owning program.
func (c *Custodian) validateDestination(address string) (solana.PublicKey, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	if _, err := new(edwards25519.Point).SetBytes(pub.Bytes()); err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: address not on curve", ErrInvalidDestination)
	}
	return pub, nil
}

// signAndSend submits a single-instruction transaction signed by key.
func (c *Custodian) signAndSend(ctx context.Context, key solana.PrivateKey, ix solana.Instruction) (string, error) {
	return c.signAndSendAll(ctx, []solana.PrivateKey{key}, []solana.Instruction{ix})
}

// signAndSendAll assembles, signs, and submits a transaction. The first
// key pays the transaction fee.
func (c *Custodian) signAndSendAll(ctx context.Context, keys []solana.PrivateKey, instructions []solana.Instruction) (string, error) {
	blockhashStr, err := c.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get blockhash: %w", err)
	}
	blockhash, err := solana.HashFromBase58(blockhashStr)
	if err != nil {
		return "", fmt.Errorf("parse blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(keys[0].PublicKey()))
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if pk.Equals(keys[i].PublicKey()) {
				return &keys[i]
			}
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}

	sig, err := c.ledger.SendTransaction(ctx, base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		return "", fmt.Errorf("submit transaction: %w", err)
	}
	return sig, nil
}
