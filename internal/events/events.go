// Package events defines the structured events every pool state
// transition emits, carrying enough identifiers to reconstruct history
// off-core (spec §7). The core returns these alongside results from its
// mutating entry points; it does not publish them to a bus itself — that
// is an external collaborator's job, matching the no-network-surface
// non-goal.
package events

import (
	"github.com/google/uuid"

	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/fixedpoint"
)

// Kind identifies the event's type for off-core routing/storage.
type Kind string

const (
	KindDeposit            Kind = "deposit"
	KindWithdrawal         Kind = "withdrawal"
	KindWithdrawalFailure  Kind = "withdrawal_failure"
	KindReconciled         Kind = "reconciled"
	KindInsolvencyDetected Kind = "insolvency_detected"
	KindDrawStarted        Kind = "draw_started"
	KindBatchProcessed     Kind = "batch_processed"
	KindDrawCompleted      Kind = "draw_completed"
	KindRoundStarted       Kind = "round_started"
	KindEmergencyEntered   Kind = "emergency_entered"
	KindEmergencyRecovered Kind = "emergency_recovered"
)

// Event is a single structured record of a core state transition. ID is
// minted fresh per event so off-core consumers can deduplicate and order
// a stream even if delivered out of order.
type Event struct {
	ID            uuid.UUID
	Kind          Kind
	RoundID       uint64
	Receiver      domain.ReceiverID
	HasReceiver   bool
	Amount        fixedpoint.Amount
	Detail        string
}

// New mints a correlation-ID-bearing event of the given kind.
func New(kind Kind) Event {
	return Event{ID: uuid.New(), Kind: kind}
}

// WithRound sets the round this event pertains to.
func (e Event) WithRound(roundID uint64) Event {
	e.RoundID = roundID
	return e
}

// WithReceiver sets the receiver this event pertains to.
func (e Event) WithReceiver(r domain.ReceiverID) Event {
	e.Receiver = r
	e.HasReceiver = true
	return e
}

// WithAmount attaches an amount to the event.
func (e Event) WithAmount(amount fixedpoint.Amount) Event {
	e.Amount = amount
	return e
}

// WithDetail attaches a free-form detail string (e.g. an error summary).
func (e Event) WithDetail(detail string) Event {
	e.Detail = detail
	return e
}
