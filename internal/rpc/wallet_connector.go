package rpc

import (
	"context"
	"time"

	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/fixedpoint"
)

// WalletYieldConnector treats the chain wallet's own balance as the
// pool's yield-bearing venue: deposits are forwarded to the pool's
// wallet address, and withdrawals pull back out of it. It implements
// capability.YieldConnector.
//
// This is a minimal stand-in for whatever real yield venue (a lending
// pool, a staking vault) a production deployment would route through;
// the pool core never depends on which one is behind the interface.
type WalletYieldConnector struct {
	wallet  *WalletClient
	address string
	asset   capability.AssetType
	timeout time.Duration
}

func NewWalletYieldConnector(wallet *WalletClient, address string, asset capability.AssetType, timeout time.Duration) *WalletYieldConnector {
	return &WalletYieldConnector{wallet: wallet, address: address, asset: asset, timeout: timeout}
}

func (c *WalletYieldConnector) AssetType() capability.AssetType { return c.asset }

// DepositCapacity forwards the vault's full balance to the pool's
// wallet address. The wallet itself has no deposit ceiling, so this
// only fails if the transfer RPC fails.
func (c *WalletYieldConnector) DepositCapacity(vault *capability.Vault) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	amount := vault.Take()
	if amount.IsZero() {
		return nil
	}
	_, err := c.wallet.Transfer(ctx, c.address, amount.Raw())
	return err
}

// MinimumCapacity reports no ceiling: a wallet never refuses a deposit
// for lack of room.
func (c *WalletYieldConnector) MinimumCapacity() (fixedpoint.Amount, error) {
	return fixedpoint.Max, nil
}

func (c *WalletYieldConnector) balance() (fixedpoint.Amount, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	raw, err := c.wallet.GetBalance(ctx)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.FromRaw(raw), nil
}

// MinimumAvailable reports the wallet's queried balance. A wallet RPC
// failure is reported as zero available rather than propagated, since
// the interface requires a truthful lower bound, never an overstatement.
func (c *WalletYieldConnector) MinimumAvailable() (fixedpoint.Amount, error) {
	bal, err := c.balance()
	if err != nil {
		return fixedpoint.Zero, nil
	}
	return bal, nil
}

func (c *WalletYieldConnector) Available() (fixedpoint.Amount, error) {
	return c.balance()
}

// WithdrawAvailable pulls up to max out of the wallet, capped at its
// reported balance; a query failure yields an empty vault rather than
// an error, matching the interface's non-fatal-shortfall contract.
func (c *WalletYieldConnector) WithdrawAvailable(max fixedpoint.Amount) (capability.Vault, error) {
	bal, err := c.balance()
	if err != nil {
		return capability.Vault{Asset: c.asset}, nil
	}
	amount := fixedpoint.Min(max, bal)
	return capability.Vault{Asset: c.asset, Amount: amount}, nil
}

var _ capability.YieldConnector = (*WalletYieldConnector)(nil)
