// Package pool composes the ledger, round, allocation book, reconciler,
// and draw engine into the single transactional orchestrator: receiver
// registration, deposit/withdraw contracts, emergency health tracking,
// and the draw lifecycle (start_draw / process_batch / complete_draw /
// start_next_round). Every exported method is the transaction boundary
// described for the core: it either commits fully or returns an error
// having mutated nothing material.
package pool

import (
	"math"
	"time"

	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/fixedpoint"
)

// EmergencyState is the pool-wide mode gating deposits, withdrawals, and
// draws.
type EmergencyState int

const (
	Normal EmergencyState = iota
	Paused
	Emergency
	Partial
)

func (s EmergencyState) String() string {
	switch s {
	case Normal:
		return "normal"
	case Paused:
		return "paused"
	case Emergency:
		return "emergency"
	case Partial:
		return "partial"
	default:
		return "unknown"
	}
}

// SafeMaxTVL caps total deposited assets at 80% of the representable
// range, leaving headroom for yield accrual without overflowing Amount.
var SafeMaxTVL = fixedpoint.Frac(fixedpoint.Max, 8, 10)

// EmergencyConfig holds the health/failure thresholds that drive
// auto-trigger and auto-recovery. Defaults match spec §6 literally.
type EmergencyConfig struct {
	MaxEmergencyDuration    time.Duration
	HasMaxEmergencyDuration bool
	AutoRecoveryEnabled     bool
	MinYieldSourceHealth    float64
	MaxWithdrawFailures     uint
	PartialModeDepositLimit    fixedpoint.Amount
	HasPartialModeDepositLimit bool
	MinBalanceThreshold     float64
	MinRecoveryHealth       float64
}

// DefaultEmergencyConfig returns spec §6's literal defaults: 86400s,
// true, 0.5, 3, unset limit, 0.95, 0.5.
func DefaultEmergencyConfig() EmergencyConfig {
	return EmergencyConfig{
		MaxEmergencyDuration:    86400 * time.Second,
		HasMaxEmergencyDuration: true,
		AutoRecoveryEnabled:     true,
		MinYieldSourceHealth:    0.5,
		MaxWithdrawFailures:     3,
		MinBalanceThreshold:     0.95,
		MinRecoveryHealth:       0.5,
	}
}

// PoolConfig holds the pool's identity: which asset it holds, where
// yield goes, and how draws are run.
type PoolConfig struct {
	AssetType            capability.AssetType
	MinimumDeposit       fixedpoint.Amount
	DrawIntervalSeconds  int64
	WinnerTracker        capability.WinnerTracker // optional
}

// ratioOf returns floor(amount * ratio), where ratio is a plain float in
// [0,1] scaled to basis points of precision before the fixed-point
// division runs, so health-threshold comparisons stay exact integer
// arithmetic past the float boundary.
func ratioOf(amount fixedpoint.Amount, ratio float64) fixedpoint.Amount {
	if ratio <= 0 {
		return fixedpoint.Zero
	}
	numerator := int64(math.Round(ratio * 10_000))
	v, err := fixedpoint.MulDivInt(amount, numerator, 10_000)
	if err != nil {
		return fixedpoint.Zero
	}
	return v
}
