package launch

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/ledger"
)

// TokenCreator creates the tradeable asset for a launching campaign and
// returns its mint address and external trading URL.
type TokenCreator interface {
	CreateToken(ctx context.Context, c *domain.Campaign) (mint string, tradeURL string, err error)
}

// MintCreator creates an SPL mint with the full supply parked in the
// platform escrow's token account. The mint authority is a platform key;
// one transaction creates the mint account, initializes it, creates the
// escrow token account, and mints the supply.
type MintCreator struct {
	ledger       ledger.Client
	authority    solana.PrivateKey
	escrow       solana.PublicKey
	tradeURLBase string
}

// MintCreatorOptions for creating MintCreator.
type MintCreatorOptions struct {
	Ledger ledger.Client

	// AuthorityKey is the base58 private key of the platform mint authority,
	// which also pays for account creation.
	AuthorityKey string

	// Escrow receives the minted supply.
	Escrow string

	// TradeURLBase prefixes the mint address to form the trading URL.
	TradeURLBase string
}

// NewMintCreator creates a new MintCreator.
func NewMintCreator(opts MintCreatorOptions) (*MintCreator, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger client is required")
	}
	authority, err := solana.PrivateKeyFromBase58(opts.AuthorityKey)
	if err != nil {
		return nil, fmt.Errorf("parse authority key: %w", err)
	}
	escrow, err := solana.PublicKeyFromBase58(opts.Escrow)
	if err != nil {
		return nil, fmt.Errorf("parse escrow address: %w", err)
	}
	return &MintCreator{
		ledger:       opts.Ledger,
		authority:    authority,
		escrow:       escrow,
		tradeURLBase: strings.TrimSuffix(opts.TradeURLBase, "/"),
	}, nil
}

// Compile-time interface check.
var _ TokenCreator = (*MintCreator)(nil)

// CreateToken creates the campaign's mint on the ledger.
func (m *MintCreator) CreateToken(ctx context.Context, c *domain.Campaign) (string, string, error) {
	mint := solana.NewWallet()

	rent, err := m.ledger.GetMinimumBalanceForRentExemption(ctx, uint64(token.MINT_SIZE))
	if err != nil {
		return "", "", fmt.Errorf("rent exemption for mint account: %w", err)
	}

	createIx := system.NewCreateAccountInstruction(
		rent,
		token.MINT_SIZE,
		solana.TokenProgramID,
		m.authority.PublicKey(),
		mint.PublicKey(),
	).Build()

	initIx := token.NewInitializeMint2InstructionBuilder().
		SetDecimals(domain.TokenDecimals).
		SetMintAuthority(m.authority.PublicKey()).
		SetMintAccount(mint.PublicKey()).
		Build()

	escrowATA, _, err := solana.FindAssociatedTokenAddress(m.escrow, mint.PublicKey())
	if err != nil {
		return "", "", fmt.Errorf("derive escrow token account: %w", err)
	}
	ataIx := associatedtokenaccount.NewCreateInstruction(
		m.authority.PublicKey(), m.escrow, mint.PublicKey(),
	).Build()

	mintIx := token.NewMintToInstruction(
		domain.TotalSupplyUnits,
		mint.PublicKey(),
		escrowATA,
		m.authority.PublicKey(),
		nil,
	).Build()

	blockhashStr, err := m.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return "", "", fmt.Errorf("get blockhash: %w", err)
	}
	blockhash, err := solana.HashFromBase58(blockhashStr)
	if err != nil {
		return "", "", fmt.Errorf("parse blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{createIx, initIx, ataIx, mintIx},
		blockhash,
		solana.TransactionPayer(m.authority.PublicKey()),
	)
	if err != nil {
		return "", "", fmt.Errorf("build mint transaction: %w", err)
	}

	// Both the paying authority and the fresh mint account sign.
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		switch {
		case key.Equals(m.authority.PublicKey()):
			return &m.authority
		case key.Equals(mint.PublicKey()):
			return &mint.PrivateKey
		}
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("sign mint transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", "", fmt.Errorf("serialize mint transaction: %w", err)
	}

	if _, err := m.ledger.SendTransaction(ctx, base64.StdEncoding.EncodeToString(raw)); err != nil {
		return "", "", fmt.Errorf("submit mint transaction: %w", err)
	}

	mintStr := mint.PublicKey().String()
	return mintStr, fmt.Sprintf("%s/%s", m.tradeURLBase, mintStr), nil
}
