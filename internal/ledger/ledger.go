// Package ledger implements the ERC-4626-style share ledger: it converts
// between deposited assets and internal shares, accrues yield, and
// socializes losses. Virtual share/asset offsets defeat the classic
// first-depositor share-price inflation attack.
package ledger

import (
	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/poolerr"
)

// VirtualShares and VirtualAssets are constant offsets added to the real
// totals when computing share price, each worth 1e-4 of a whole token.
var (
	VirtualShares = fixedpoint.FromRaw(10_000)
	VirtualAssets = fixedpoint.FromRaw(10_000)
)

// ShareLedger holds the aggregate and per-receiver share/asset state. The
// zero value is not usable; construct with New.
type ShareLedger struct {
	totalShares fixedpoint.Amount
	totalAssets fixedpoint.Amount
	userShares  map[domain.ReceiverID]fixedpoint.Amount
}

// New returns an empty ShareLedger.
func New() *ShareLedger {
	return &ShareLedger{
		userShares: make(map[domain.ReceiverID]fixedpoint.Amount),
	}
}

// TotalShares is the sum of every receiver's shares.
func (l *ShareLedger) TotalShares() fixedpoint.Amount { return l.totalShares }

// TotalAssets is the real (non-virtual) asset balance backing the shares.
func (l *ShareLedger) TotalAssets() fixedpoint.Amount { return l.totalAssets }

// UserShares returns the receiver's share balance, zero if unregistered.
func (l *ShareLedger) UserShares(r domain.ReceiverID) fixedpoint.Amount {
	return l.userShares[r]
}

// SharePrice returns the value of one whole share in assets:
// (total_assets + VIRTUAL_ASSETS) / (total_shares + VIRTUAL_SHARES).
func (l *ShareLedger) SharePrice() (fixedpoint.Amount, error) {
	one, _ := fixedpoint.FromWhole(1)
	assets := l.totalAssets.SatAdd(VirtualAssets)
	shares := l.totalShares.SatAdd(VirtualShares)
	return fixedpoint.MulDiv(one, assets, shares)
}

// ConvertToShares converts an asset amount to the shares it is currently
// worth, using the virtual-offset share price.
func (l *ShareLedger) ConvertToShares(assets fixedpoint.Amount) (fixedpoint.Amount, error) {
	num := l.totalShares.SatAdd(VirtualShares)
	den := l.totalAssets.SatAdd(VirtualAssets)
	v, err := fixedpoint.MulDiv(assets, num, den)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.ConvertToShares", err)
	}
	return v, nil
}

// ConvertToAssets converts a share amount to the assets it currently
// represents, using the virtual-offset share price.
func (l *ShareLedger) ConvertToAssets(shares fixedpoint.Amount) (fixedpoint.Amount, error) {
	num := l.totalAssets.SatAdd(VirtualAssets)
	den := l.totalShares.SatAdd(VirtualShares)
	v, err := fixedpoint.MulDiv(shares, num, den)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.ConvertToAssets", err)
	}
	return v, nil
}

// UserAssetValue returns what the receiver's current shares are worth.
func (l *ShareLedger) UserAssetValue(r domain.ReceiverID) (fixedpoint.Amount, error) {
	return l.ConvertToAssets(l.userShares[r])
}

// Deposit mints shares for receiver against amount of deposited assets.
// Depositing zero is a no-op that mints zero shares.
func (l *ShareLedger) Deposit(r domain.ReceiverID, amount fixedpoint.Amount) (fixedpoint.Amount, error) {
	if amount.IsZero() {
		return fixedpoint.Zero, nil
	}

	minted, err := l.ConvertToShares(amount)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.Deposit", err)
	}

	newUserShares, err := l.userShares[r].Add(minted)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.Deposit", err)
	}
	newTotalShares, err := l.totalShares.Add(minted)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.Deposit", err)
	}
	newTotalAssets, err := l.totalAssets.Add(amount)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.Deposit", err)
	}

	l.userShares[r] = newUserShares
	l.totalShares = newTotalShares
	l.totalAssets = newTotalAssets
	return minted, nil
}

// Withdraw burns shares for receiver worth up to amount of assets.
// Dust prevention: when the residual value left after the withdrawal
// would fall under dustThreshold (but isn't already zero), every
// remaining share is burned instead of leaving an unspendably small
// position; the tiny residual is socialized into the share price for
// everyone else, exactly as a loss would be.
func (l *ShareLedger) Withdraw(r domain.ReceiverID, amount, dustThreshold fixedpoint.Amount) (fixedpoint.Amount, error) {
	userShares := l.userShares[r]
	if userShares.IsZero() {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Resource, "ShareLedger.Withdraw", poolerr.ErrSharesExhausted)
	}

	userAssetValue, err := l.ConvertToAssets(userShares)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.Withdraw", err)
	}
	if amount.GT(userAssetValue) {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Resource, "ShareLedger.Withdraw", poolerr.ErrInsufficientBalance)
	}

	sharesToBurn, err := l.ConvertToShares(amount)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.Withdraw", err)
	}

	residual := userAssetValue.SatSub(amount)
	burnAll := amount.GTE(userAssetValue) ||
		sharesToBurn.GT(userShares) ||
		(residual.LT(dustThreshold) && !residual.IsZero())

	if burnAll {
		sharesToBurn = userShares
	}

	newTotalAssets, err := l.totalAssets.Sub(amount)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.Withdraw", err)
	}
	newTotalShares, err := l.totalShares.Sub(sharesToBurn)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.Withdraw", err)
	}
	newUserShares, err := userShares.Sub(sharesToBurn)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.Withdraw", err)
	}

	l.totalAssets = newTotalAssets
	l.totalShares = newTotalShares
	if newUserShares.IsZero() {
		delete(l.userShares, r)
	} else {
		l.userShares[r] = newUserShares
	}

	return amount, nil
}

// AccrueYield adds amount to total_assets, skimming a virtual-share dust
// fee so the virtual offset's implicit claim on yield is realized instead
// of silently diluting real depositors. Returns the actual amount folded
// into total_assets and the dust skimmed off, which the caller routes to
// the protocol fee bucket. A no-op (returns zero, zero) when there are no
// shares outstanding or amount is zero.
func (l *ShareLedger) AccrueYield(amount fixedpoint.Amount) (actual, dust fixedpoint.Amount, err error) {
	if l.totalShares.IsZero() || amount.IsZero() {
		return fixedpoint.Zero, fixedpoint.Zero, nil
	}

	denom := l.totalShares.SatAdd(VirtualShares)
	dust, err = fixedpoint.MulDiv(amount, VirtualShares, denom)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.AccrueYield", err)
	}
	actual, err = amount.Sub(dust)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.AccrueYield", err)
	}

	newTotalAssets, err := l.totalAssets.Add(actual)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "ShareLedger.AccrueYield", err)
	}
	l.totalAssets = newTotalAssets
	return actual, dust, nil
}

// DecreaseTotalAssets reduces total_assets by amount, capped at the
// current balance, and applies no virtual-share dust. Used by loss
// socialization: the full loss must propagate through share price, not
// be partially absorbed by the virtual offset.
func (l *ShareLedger) DecreaseTotalAssets(amount fixedpoint.Amount) fixedpoint.Amount {
	actual := fixedpoint.Min(amount, l.totalAssets)
	l.totalAssets = l.totalAssets.SatSub(actual)
	return actual
}
