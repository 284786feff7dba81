package pool

import (
	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/events"
	"github.com/tos-network/prizepool/internal/fixedpoint"
)

// Reconcile runs the allocation book against the connector's reported
// balance directly, for callers (tests, a scheduled job) that want to
// force reconciliation outside of a deposit/withdraw call.
func (p *Pool) Reconcile() ([]events.Event, error) {
	return p.Reconciler.Reconcile()
}

// DirectFund admin-sponsors the rewards bucket outside the normal
// reconcile path (spec §9 open question: dust routing here mirrors the
// reconciler's yield-accrual path, preserved rather than resolved).
func (p *Pool) DirectFund(amount fixedpoint.Amount) error {
	return p.Book.DirectFund(amount, p.Ledger)
}

// SetBonusWeight sets a receiver's flat additive prize weight, applied
// on top of its finalized TWAB in every future process_batch call.
func (p *Pool) SetBonusWeight(receiver domain.ReceiverID, weight fixedpoint.Amount) {
	if weight.IsZero() {
		delete(p.ReceiverBonusWeight, receiver)
		return
	}
	p.ReceiverBonusWeight[receiver] = weight
}

// MarkSponsor flags a receiver as a sponsor deposit: its shares still
// earn yield through the ledger, but it accumulates no TWAB and is
// excluded from every draw's eligible-receiver snapshot, so it can never
// be scored or selected as a winner.
func (p *Pool) MarkSponsor(receiver domain.ReceiverID) {
	p.SponsorReceivers[receiver] = true
}

// IsSponsor reports whether receiver was marked a sponsor.
func (p *Pool) IsSponsor(receiver domain.ReceiverID) bool {
	return p.SponsorReceivers[receiver]
}
