// Package stub provides an in-memory ledger.Client for testing.
package stub

import (
	"context"
	"fmt"
	"sync"

	"prooflaunch/internal/ledger"
)

// Client implements ledger.Client for testing. Balances and transactions
// are plain maps; SendTransaction records submissions and assigns
// sequential signatures.
type Client struct {
	mu sync.Mutex

	Balances     map[string]uint64
	Transactions map[string]*ledger.Transaction
	Signatures   map[string][]ledger.SignatureInfo
	Accounts     map[string]*ledger.AccountInfo

	// Submitted collects every base64 payload passed to SendTransaction.
	Submitted []string

	// SendErr, when set, fails the next SendTransaction call.
	SendErr error

	Blockhash string
	Slot      int64

	// RentExemption is returned for every rent-exemption query.
	RentExemption uint64

	sendSeq int
}

// New creates a new stub ledger client.
func New() *Client {
	return &Client{
		Balances:      make(map[string]uint64),
		Transactions:  make(map[string]*ledger.Transaction),
		Signatures:    make(map[string][]ledger.SignatureInfo),
		Accounts:      make(map[string]*ledger.AccountInfo),
		Blockhash:     "11111111111111111111111111111111",
		Slot:          1,
		RentExemption: 1_461_600,
	}
}

// Compile-time interface check.
var _ ledger.Client = (*Client)(nil)

// GetBalance retrieves a balance from the stub store.
func (c *Client) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[pubkey], nil
}

// GetTransaction retrieves a transaction from the stub store. Returns nil
// when absent, mirroring the real client.
func (c *Client) GetTransaction(_ context.Context, signature string) (*ledger.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Transactions[signature], nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *Client) GetLatestBlockhash(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Blockhash, nil
}

// SendTransaction records the submission and returns a synthetic signature.
func (c *Client) SendTransaction(_ context.Context, base64Tx string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		err := c.SendErr
		c.SendErr = nil
		return "", err
	}

	c.sendSeq++
	c.Submitted = append(c.Submitted, base64Tx)
	return fmt.Sprintf("StubSig%04d", c.sendSeq), nil
}

// GetSignaturesForAddress retrieves signatures from the stub store.
func (c *Client) GetSignaturesForAddress(_ context.Context, address string, opts *ledger.SignaturesOpts) ([]ledger.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sigs := c.Signatures[address]
	if opts != nil && opts.Until != "" {
		var trimmed []ledger.SignatureInfo
		for _, s := range sigs {
			if s.Signature == opts.Until {
				break
			}
			trimmed = append(trimmed, s)
		}
		sigs = trimmed
	}
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}
	return sigs, nil
}

// GetAccountInfo retrieves account info from the stub store.
func (c *Client) GetAccountInfo(_ context.Context, pubkey string) (*ledger.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// GetSlot returns the configured slot.
func (c *Client) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Slot, nil
}

// GetMinimumBalanceForRentExemption returns the configured rent exemption.
func (c *Client) GetMinimumBalanceForRentExemption(_ context.Context, _ uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.RentExemption, nil
}

// SetBalance sets an account balance.
func (c *Client) SetBalance(pubkey string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[pubkey] = lamports
}

// AddTransaction registers a transaction under its signature.
func (c *Client) AddTransaction(tx *ledger.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}
