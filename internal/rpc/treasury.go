package rpc

import (
	"context"
	"time"

	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/fixedpoint"
)

// TreasuryFeeRecipient forwards the pool's protocol fee to a treasury
// address through the chain wallet RPC. It implements
// capability.FeeRecipient.
type TreasuryFeeRecipient struct {
	wallet  *WalletClient
	address string
	timeout time.Duration
}

// NewTreasuryFeeRecipient builds a fee recipient over an existing wallet
// client.
func NewTreasuryFeeRecipient(wallet *WalletClient, address string, timeout time.Duration) *TreasuryFeeRecipient {
	return &TreasuryFeeRecipient{wallet: wallet, address: address, timeout: timeout}
}

// Valid reports whether the treasury address is configured and the
// wallet RPC currently responds.
func (t *TreasuryFeeRecipient) Valid() bool {
	if t.address == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	return t.wallet.Ping(ctx) == nil
}

// Receive sends amount to the treasury address.
func (t *TreasuryFeeRecipient) Receive(amount fixedpoint.Amount) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	_, err := t.wallet.Transfer(ctx, t.address, amount.Raw())
	return err
}

var _ capability.FeeRecipient = (*TreasuryFeeRecipient)(nil)
