package model

import (
	"github.com/shopspring/decimal"
)

// EventKind is the type of a transaction event.
type EventKind string

const (
	KindDeposit    EventKind = "deposit"
	KindWithdrawal EventKind = "withdrawal"
	KindDispute    EventKind = "dispute"
	KindResolve    EventKind = "resolve"
	KindChargeback EventKind = "chargeback"
)

// MintsID reports whether the kind introduces a new transaction id
// (deposit/withdrawal) rather than referencing an existing one.
func (k EventKind) MintsID() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// Event is one validated row of the transaction stream. Amount is nil
// for dispute, resolve and chargeback; for deposit and withdrawal it is
// positive with at most 4 decimal places (enforced by the producer).
type Event struct {
	Kind   EventKind
	Client ClientID
	Tx     TxID
	Amount *decimal.Decimal
}
