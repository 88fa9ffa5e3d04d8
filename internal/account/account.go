package account

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/settled-dev/settled/internal/model"
)

// ErrInvalidAmount is returned when a non-positive amount reaches the
// account layer. The producer is expected to filter these already.
var ErrInvalidAmount = errors.New("invalid amount")

// ErrDuplicateTransaction is returned when a transaction id is reused
// for a second deposit or withdrawal.
var ErrDuplicateTransaction = errors.New("duplicate transaction")

// recordKind classifies the audit-trail entries kept for disputes.
type recordKind string

const (
	recordDeposit    recordKind = "deposit"
	recordWithdrawal recordKind = "withdrawal"
)

// record is what an account remembers about a past deposit or
// withdrawal so a later dispute can reference it. Never deleted.
type record struct {
	kind     recordKind
	amount   decimal.Decimal
	disputed bool
}

// Account holds the balances and dispute state for one client.
// Once locked (by a chargeback) it is terminal: every further
// operation is accepted but changes nothing.
type Account struct {
	available decimal.Decimal
	held      decimal.Decimal
	locked    bool
	records   map[model.TxID]*record
}

// New returns an empty, unlocked account.
func New() *Account {
	return &Account{records: make(map[model.TxID]*record)}
}

// Deposit credits amount to the available balance. A deposit against a
// locked account still validates its inputs but is silently discarded.
func (a *Account) Deposit(tx model.TxID, amount decimal.Decimal) error {
	if err := a.checkNew(tx, amount); err != nil {
		return err
	}
	if a.locked {
		return nil
	}
	a.records[tx] = &record{kind: recordDeposit, amount: amount}
	a.available = a.available.Add(amount)
	return nil
}

// Withdraw debits amount from the available balance. Insufficient funds
// is not an error: the withdrawal is skipped and no record is kept.
func (a *Account) Withdraw(tx model.TxID, amount decimal.Decimal) error {
	if err := a.checkNew(tx, amount); err != nil {
		return err
	}
	if a.locked || a.available.LessThan(amount) {
		return nil
	}
	a.records[tx] = &record{kind: recordWithdrawal, amount: amount}
	a.available = a.available.Sub(amount)
	return nil
}

func (a *Account) checkNew(tx model.TxID, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if _, ok := a.records[tx]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateTransaction, tx)
	}
	return nil
}

// Dispute freezes the referenced transaction. References to unknown or
// already-disputed transactions are partner errors and are ignored.
func (a *Account) Dispute(tx model.TxID) {
	if a.locked {
		return
	}
	rec, ok := a.records[tx]
	if !ok || rec.disputed {
		return
	}
	switch rec.kind {
	case recordDeposit:
		a.available = a.available.Sub(rec.amount)
		a.held = a.held.Add(rec.amount)
	case recordWithdrawal:
		// The funds already left available; held goes negative until
		// the dispute settles.
		a.held = a.held.Sub(rec.amount)
	}
	rec.disputed = true
}

// Resolve reverses a dispute, restoring the pre-dispute balances.
// Ignored unless the transaction is currently disputed.
func (a *Account) Resolve(tx model.TxID) {
	if a.locked {
		return
	}
	rec, ok := a.records[tx]
	if !ok || !rec.disputed {
		return
	}
	switch rec.kind {
	case recordDeposit:
		a.available = a.available.Add(rec.amount)
		a.held = a.held.Sub(rec.amount)
	case recordWithdrawal:
		a.held = a.held.Add(rec.amount)
	}
	rec.disputed = false
}

// Chargeback settles a dispute against the account holder and locks the
// account. Ignored unless the transaction is currently disputed.
func (a *Account) Chargeback(tx model.TxID) {
	if a.locked {
		return
	}
	rec, ok := a.records[tx]
	if !ok || !rec.disputed {
		return
	}
	switch rec.kind {
	case recordDeposit:
		a.held = a.held.Sub(rec.amount)
	case recordWithdrawal:
		a.available = a.available.Add(rec.amount)
		a.held = a.held.Add(rec.amount)
	}
	rec.disputed = false
	a.locked = true
}

// Available returns the spendable balance.
func (a *Account) Available() decimal.Decimal { return a.available }

// Held returns the balance frozen by open disputes.
func (a *Account) Held() decimal.Decimal { return a.held }

// Total returns available + held.
func (a *Account) Total() decimal.Decimal { return a.available.Add(a.held) }

// Locked reports whether a chargeback has frozen the account.
func (a *Account) Locked() bool { return a.locked }
