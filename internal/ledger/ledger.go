package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/settled-dev/settled/internal/account"
	"github.com/settled-dev/settled/internal/model"
)

// ErrMalformedEvent is returned when an event's amount presence
// contradicts its kind. The producer contract makes this fatal.
var ErrMalformedEvent = errors.New("malformed event")

// ErrPartitionViolation is returned when two merged ledgers contain the
// same client. That is a routing defect, not a data problem.
var ErrPartitionViolation = errors.New("partition invariant violation")

// Ledger owns the accounts for a disjoint set of clients and applies
// validated events to them one at a time.
type Ledger struct {
	accounts map[model.ClientID]*account.Account
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[model.ClientID]*account.Account)}
}

// Apply dispatches one event to the right account. Accounts are created
// lazily by deposits and withdrawals; dispute-class events referencing
// an unknown client are partner errors and are ignored.
func (l *Ledger) Apply(ev model.Event) error {
	switch ev.Kind {
	case model.KindDeposit, model.KindWithdrawal:
		if ev.Amount == nil {
			return fmt.Errorf("%w: missing amount for %s tx %d", ErrMalformedEvent, ev.Kind, ev.Tx)
		}
		acct, ok := l.accounts[ev.Client]
		if !ok {
			acct = account.New()
			l.accounts[ev.Client] = acct
		}
		if ev.Kind == model.KindDeposit {
			return acct.Deposit(ev.Tx, *ev.Amount)
		}
		return acct.Withdraw(ev.Tx, *ev.Amount)

	case model.KindDispute, model.KindResolve, model.KindChargeback:
		if ev.Amount != nil {
			return fmt.Errorf("%w: unexpected amount for %s tx %d", ErrMalformedEvent, ev.Kind, ev.Tx)
		}
		acct, ok := l.accounts[ev.Client]
		if !ok {
			return nil
		}
		switch ev.Kind {
		case model.KindDispute:
			acct.Dispute(ev.Tx)
		case model.KindResolve:
			acct.Resolve(ev.Tx)
		case model.KindChargeback:
			acct.Chargeback(ev.Tx)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, ev.Kind)
	}
}

// Merge moves every account from other into l. The client sets must be
// disjoint; an overlap means the partitioner misrouted an event.
func (l *Ledger) Merge(other *Ledger) error {
	for client, acct := range other.accounts {
		if _, ok := l.accounts[client]; ok {
			return fmt.Errorf("%w: client %d present in both ledgers", ErrPartitionViolation, client)
		}
		l.accounts[client] = acct
	}
	return nil
}

// Len returns the number of accounts in the ledger.
func (l *Ledger) Len() int {
	return len(l.accounts)
}

// Balance is the reportable state of one account.
type Balance struct {
	Client    model.ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

// Balances returns one Balance per account, ascending by client id so
// output is stable across runs.
func (l *Ledger) Balances() []Balance {
	out := make([]Balance, 0, len(l.accounts))
	for client, acct := range l.accounts {
		out = append(out, Balance{
			Client:    client,
			Available: acct.Available(),
			Held:      acct.Held(),
			Total:     acct.Total(),
			Locked:    acct.Locked(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}
