package pool

import (
	"github.com/tos-network/prizepool/internal/allocation"
	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/draw"
	"github.com/tos-network/prizepool/internal/events"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/ledger"
	"github.com/tos-network/prizepool/internal/poolerr"
	"github.com/tos-network/prizepool/internal/reconcile"
	"github.com/tos-network/prizepool/internal/round"
)

// Pool is the single owner of every sub-component's state: the ledger,
// the active round, the allocation book, and the in-flight draw (if
// any). It is a plain value; construct with New and take its address for
// every call, since every entry point mutates it.
type Pool struct {
	ID     string
	Config PoolConfig
	Emergency EmergencyConfig

	State                       EmergencyState
	ConsecutiveWithdrawFailures uint
	emergencyEnteredAt          domain.Timestamp
	hasEmergencyEnteredAt       bool

	Ledger     *ledger.ShareLedger
	Book       *allocation.Book
	Reconciler *reconcile.Reconciler
	Engine     *draw.Engine

	ActiveRound           *round.Round
	LastCompletedRoundID  uint64
	PendingDraw           *draw.DrawReceipt
	PendingSelection      *draw.BatchSelectionData
	PendingReceivers      []domain.ReceiverID
	PrizePool             fixedpoint.Amount
	UnclaimedProtocolFee  fixedpoint.Amount

	ReceiverBonusWeight    map[domain.ReceiverID]fixedpoint.Amount
	RegisteredReceiverList []domain.ReceiverID
	receiverIndex          map[domain.ReceiverID]int
	SponsorReceivers       map[domain.ReceiverID]bool
}

// New builds a Pool with empty ledger/book/round state, ready to accept
// deposits once a round is started with StartNextRound.
func New(id string, cfg PoolConfig, emergencyCfg EmergencyConfig, strategy reconcile.DistributionStrategy, engine *draw.Engine) *Pool {
	l := ledger.New()
	b := allocation.New()
	return &Pool{
		ID:                     id,
		Config:                 cfg,
		Emergency:              emergencyCfg,
		State:                  Normal,
		Ledger:                 l,
		Book:                   b,
		Reconciler:             reconcile.New(l, b, engine.Connector, strategy),
		Engine:                 engine,
		ReceiverBonusWeight:    make(map[domain.ReceiverID]fixedpoint.Amount),
		receiverIndex:          make(map[domain.ReceiverID]int),
		SponsorReceivers:       make(map[domain.ReceiverID]bool),
	}
}

// HealthScore computes the [0,1] health used by the auto-trigger and
// auto-recovery checks: 0.5 if the venue balance covers
// min_balance_threshold of allocated rewards, plus a term that decays
// with consecutive withdrawal failures.
func (p *Pool) HealthScore() float64 {
	var balanceScore float64
	if venueBalance, err := p.Reconciler.Connector.Available(); err == nil {
		threshold := ratioOf(p.Book.Rewards(), p.Emergency.MinBalanceThreshold)
		if venueBalance.GTE(threshold) {
			balanceScore = 0.5
		}
	}
	failureScore := 0.5 * (1.0 / (1.0 + float64(p.ConsecutiveWithdrawFailures)))
	return balanceScore + failureScore
}

// checkAutoTrigger evaluates the emergency auto-trigger. Per spec §9's
// preserved open question, re-entry is only evaluated from Normal — a
// pool already in Paused/Partial/Emergency never auto-transitions.
func (p *Pool) checkAutoTrigger(now domain.Timestamp) {
	if p.State != Normal {
		return
	}
	health := p.HealthScore()
	if health < p.Emergency.MinYieldSourceHealth || p.ConsecutiveWithdrawFailures >= p.Emergency.MaxWithdrawFailures {
		p.State = Emergency
		p.emergencyEnteredAt = now
		p.hasEmergencyEnteredAt = true
	}
}

// checkAutoRecovery evaluates auto-recovery from Emergency straight back
// to Normal (the open question on whether this should pass through
// Partial is preserved unresolved — see DESIGN.md).
func (p *Pool) checkAutoRecovery(now domain.Timestamp) {
	if p.State != Emergency || !p.Emergency.AutoRecoveryEnabled {
		return
	}
	health := p.HealthScore()
	if health >= 0.9 {
		p.recoverToNormal()
		return
	}
	if p.Emergency.HasMaxEmergencyDuration && p.hasEmergencyEnteredAt {
		elapsed := int64(now) - int64(p.emergencyEnteredAt)
		if elapsed >= int64(p.Emergency.MaxEmergencyDuration.Seconds()) && health >= p.Emergency.MinRecoveryHealth {
			p.recoverToNormal()
		}
	}
}

func (p *Pool) recoverToNormal() {
	p.State = Normal
	p.ConsecutiveWithdrawFailures = 0
	p.hasEmergencyEnteredAt = false
}

// SetState is the administrative override. Setting Normal always resets
// the failure counter, matching the teacher's "clearing bad state on
// manual recovery" idiom.
func (p *Pool) SetState(state EmergencyState) {
	p.State = state
	if state == Normal {
		p.ConsecutiveWithdrawFailures = 0
		p.hasEmergencyEnteredAt = false
	}
}

func (p *Pool) registerReceiver(r domain.ReceiverID) {
	if _, ok := p.receiverIndex[r]; ok {
		return
	}
	p.receiverIndex[r] = len(p.RegisteredReceiverList)
	p.RegisteredReceiverList = append(p.RegisteredReceiverList, r)
}

// eligibleReceivers returns the registered receivers that are not marked
// sponsors, in registration order. A sponsor earns yield like any other
// deposit but holds no prize weight at all, so it must never enter a
// draw's snapshot in the first place.
func (p *Pool) eligibleReceivers() []domain.ReceiverID {
	eligible := make([]domain.ReceiverID, 0, len(p.RegisteredReceiverList))
	for _, r := range p.RegisteredReceiverList {
		if !p.SponsorReceivers[r] {
			eligible = append(eligible, r)
		}
	}
	return eligible
}

// unregisterReceiver performs the swap-and-pop removal. Callers must
// only invoke this when no draw is pending: removing a receiver while a
// snapshot is in flight would shift indices process_batch still relies
// on.
func (p *Pool) unregisterReceiver(r domain.ReceiverID) {
	idx, ok := p.receiverIndex[r]
	if !ok {
		return
	}
	last := len(p.RegisteredReceiverList) - 1
	movedReceiver := p.RegisteredReceiverList[last]
	p.RegisteredReceiverList[idx] = movedReceiver
	p.RegisteredReceiverList = p.RegisteredReceiverList[:last]
	p.receiverIndex[movedReceiver] = idx
	delete(p.receiverIndex, r)
	delete(p.ReceiverBonusWeight, r)
	delete(p.SponsorReceivers, r)
}

// Deposit applies the deposit contract: validation, reconciliation,
// external funding, then registration, minting shares and recording
// TWAB. The external deposit is attempted before the receiver is
// registered or any shares are minted, so a refused deposit (External,
// fatal) registers nothing and mints nothing; the reconciliation that
// ran before it is kept.
func (p *Pool) Deposit(receiver domain.ReceiverID, amount fixedpoint.Amount, now domain.Timestamp) ([]events.Event, error) {
	p.checkAutoRecovery(now)
	p.checkAutoTrigger(now)

	switch p.State {
	case Paused, Emergency:
		return nil, poolerr.Wrap(poolerr.State, "Pool.Deposit", poolerr.ErrDepositsDisabled)
	case Partial:
		if p.Emergency.HasPartialModeDepositLimit && amount.GT(p.Emergency.PartialModeDepositLimit) {
			return nil, poolerr.Wrap(poolerr.Validation, "Pool.Deposit", poolerr.ErrPartialModeLimitExceeded)
		}
	}

	if amount.IsZero() {
		return nil, poolerr.Wrap(poolerr.Validation, "Pool.Deposit", poolerr.ErrZeroAmount)
	}
	newTotal, err := p.Ledger.TotalAssets().Add(amount)
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Invariant, "Pool.Deposit", err)
	}
	if newTotal.GT(SafeMaxTVL) {
		return nil, poolerr.Wrap(poolerr.Validation, "Pool.Deposit", poolerr.ErrTVLCap)
	}
	if p.State == Normal && amount.LT(p.Config.MinimumDeposit) {
		return nil, poolerr.Wrap(poolerr.Validation, "Pool.Deposit", poolerr.ErrBelowMinimum)
	}

	evs, err := p.Reconciler.Reconcile()
	if err != nil {
		return nil, err
	}

	vault := capability.Vault{Asset: p.Config.AssetType, Amount: amount}
	if err := p.Reconciler.Connector.DepositCapacity(&vault); err != nil {
		return nil, poolerr.Wrap(poolerr.External, "Pool.Deposit", err)
	}
	if !vault.IsEmpty() {
		return nil, poolerr.Wrap(poolerr.External, "Pool.Deposit", poolerr.ErrYieldSinkRefused)
	}

	p.registerReceiver(receiver)
	oldShares := p.Ledger.UserShares(receiver)
	if _, err := p.Ledger.Deposit(receiver, amount); err != nil {
		return nil, poolerr.Wrap(poolerr.Invariant, "Pool.Deposit", err)
	}
	if p.ActiveRound != nil && !p.SponsorReceivers[receiver] {
		if err := p.ActiveRound.RecordShareChange(receiver, oldShares, p.Ledger.UserShares(receiver), now); err != nil {
			return nil, err
		}
	}

	evs = append(evs, events.New(events.KindDeposit).WithReceiver(receiver).WithAmount(amount))
	return evs, nil
}

// Withdraw applies the withdrawal contract. If the connector cannot
// currently deliver the full requested amount, the whole call aborts
// with an empty vault and a reported (non-fatal) WithdrawalFailure
// event — no shares are burned. Otherwise shares burn first (with
// full-withdraw dust detection), then the connector is drawn down.
func (p *Pool) Withdraw(receiver domain.ReceiverID, amount fixedpoint.Amount, now domain.Timestamp) (capability.Vault, []events.Event, error) {
	p.checkAutoRecovery(now)
	p.checkAutoTrigger(now)

	if p.State == Paused {
		return capability.Vault{}, nil, poolerr.Wrap(poolerr.State, "Pool.Withdraw", poolerr.ErrWithdrawalsDisabled)
	}

	evs, err := p.Reconciler.Reconcile()
	if err != nil {
		return capability.Vault{}, nil, err
	}

	available, err := p.Reconciler.Connector.Available()
	if err != nil {
		return capability.Vault{}, nil, poolerr.Wrap(poolerr.External, "Pool.Withdraw", err)
	}
	if available.LT(amount) {
		p.ConsecutiveWithdrawFailures++
		evs = append(evs, events.New(events.KindWithdrawalFailure).WithReceiver(receiver).WithAmount(amount))
		return capability.Vault{}, evs, nil
	}

	dustThreshold, err := fixedpoint.MulDivInt(p.Config.MinimumDeposit, 1, 10)
	if err != nil {
		return capability.Vault{}, nil, poolerr.Wrap(poolerr.Invariant, "Pool.Withdraw", err)
	}
	oldShares := p.Ledger.UserShares(receiver)
	withdrawn, err := p.Ledger.Withdraw(receiver, amount, dustThreshold)
	if err != nil {
		return capability.Vault{}, nil, err
	}

	if p.ActiveRound != nil && !p.SponsorReceivers[receiver] {
		if err := p.ActiveRound.RecordShareChange(receiver, oldShares, p.Ledger.UserShares(receiver), now); err != nil {
			return capability.Vault{}, nil, err
		}
	}

	if p.Ledger.UserShares(receiver).IsZero() && p.PendingDraw == nil {
		p.unregisterReceiver(receiver)
	}

	vault, err := p.Reconciler.Connector.WithdrawAvailable(withdrawn)
	if err != nil {
		return capability.Vault{}, nil, poolerr.Wrap(poolerr.External, "Pool.Withdraw", err)
	}

	if vault.Amount.LT(withdrawn) {
		p.ConsecutiveWithdrawFailures++
		evs = append(evs, events.New(events.KindWithdrawalFailure).WithReceiver(receiver).WithAmount(withdrawn.SatSub(vault.Amount)))
	} else {
		p.ConsecutiveWithdrawFailures = 0
	}

	evs = append(evs, events.New(events.KindWithdrawal).WithReceiver(receiver).WithAmount(vault.Amount))
	return vault, evs, nil
}
