// Package capability declares the narrow interfaces through which the
// pool core talks to its external collaborators: the yield-bearing venue,
// the randomness beacon, and the winner leaderboard. None of the
// implementations live in the core; this package is the contract.
package capability

import "github.com/tos-network/prizepool/internal/fixedpoint"

// AssetType identifies the fungible token a Vault carries, so a deposit
// of the wrong asset fails fast with a typed error instead of silently
// mixing accounting units.
type AssetType string

// Vault is a value-typed transfer of a single asset between the pool and
// a YieldConnector. It has no identity beyond its balance: moving it
// (taking its Amount and resetting it to zero) is how the core models the
// single-owner transfer semantics described in spec §9.
type Vault struct {
	Asset  AssetType
	Amount fixedpoint.Amount
}

// Take zeroes the vault and returns its prior amount, modeling a move.
func (v *Vault) Take() fixedpoint.Amount {
	amt := v.Amount
	v.Amount = fixedpoint.Zero
	return amt
}

// IsEmpty reports whether the vault carries no value.
func (v Vault) IsEmpty() bool { return v.Amount.IsZero() }

// YieldConnector is the external yield-bearing venue the pool routes
// deposits to and draws yield from. Implementations are pluggable; the
// core only ever calls this interface, never a concrete type.
type YieldConnector interface {
	// AssetType reports which asset this connector accepts.
	AssetType() AssetType

	// DepositCapacity must consume the entire balance of vault; the
	// caller asserts vault.IsEmpty() after the call returns with no
	// error.
	DepositCapacity(vault *Vault) error

	// MinimumCapacity reports an accepted-more bound: how much more the
	// connector is currently willing to take.
	MinimumCapacity() (fixedpoint.Amount, error)

	// MinimumAvailable reports a truthful withdrawable lower bound; it
	// may understate what is actually held, but must never overstate it.
	MinimumAvailable() (fixedpoint.Amount, error)

	// Available reports the connector's currently reported balance, used
	// by reconciliation to compare against the internal allocation book.
	Available() (fixedpoint.Amount, error)

	// WithdrawAvailable may return less than max, including a zero-value
	// vault; it must never error simply because liquidity was short.
	WithdrawAvailable(max fixedpoint.Amount) (Vault, error)
}

// RequestHandle identifies a pending randomness request and the block at
// which it was committed; it must not be fulfillable until a strictly
// later block.
type RequestHandle struct {
	RequestID  string
	CommitBlock uint64
}

// RandomnessOracle is the external randomness beacon used to seed winner
// selection.
type RandomnessOracle interface {
	// Request begins a new randomness request, committed at the
	// oracle's current block.
	Request() (RequestHandle, error)

	// Fulfill resolves a request to a seed. It must be called at a
	// strictly later block than handle.CommitBlock; implementations
	// return an error (wrapped as poolerr.ErrRandomnessNotReady by the
	// caller) otherwise.
	Fulfill(handle RequestHandle) (uint64, error)
}

// FeeRecipient is the external party that receives the pool's drawn
// protocol fee directly, when it is reachable; otherwise fees accumulate
// in the pool's unclaimed_protocol_fee bucket for later collection.
type FeeRecipient interface {
	// Valid reports whether the recipient is currently reachable. A
	// capability that has been revoked or never configured reports
	// false so the core can fall back to the unclaimed bucket instead
	// of erroring the whole draw.
	Valid() bool

	// Receive forwards amount to the recipient.
	Receive(amount fixedpoint.Amount) error
}

// WinnerTracker is an optional leaderboard/statistics collaborator. It is
// a pure sink: the core never reads winnings back through it. Bounded in
// size (ring-buffered) so the core's draw throughput is not coupled to
// the tracker's retention policy.
type WinnerTracker interface {
	RecordWinner(poolID string, roundID uint64, receiver uint64, amount fixedpoint.Amount, nftIDs []string) error
}
