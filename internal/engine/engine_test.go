package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settled-dev/settled/internal/account"
	"github.com/settled-dev/settled/internal/ledger"
	"github.com/settled-dev/settled/internal/model"
)

// sliceSource feeds a fixed event slice, optionally ending with an
// error instead of EOF.
type sliceSource struct {
	events []model.Event
	err    error
	pos    int
}

func (s *sliceSource) Next() (model.Event, error) {
	if s.pos >= len(s.events) {
		if s.err != nil {
			return model.Event{}, s.err
		}
		return model.Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func deposit(client model.ClientID, tx model.TxID, amount string) model.Event {
	d := dec(amount)
	return model.Event{Kind: model.KindDeposit, Client: client, Tx: tx, Amount: &d}
}

func withdrawal(client model.ClientID, tx model.TxID, amount string) model.Event {
	d := dec(amount)
	return model.Event{Kind: model.KindWithdrawal, Client: client, Tx: tx, Amount: &d}
}

func ref(kind model.EventKind, client model.ClientID, tx model.TxID) model.Event {
	return model.Event{Kind: kind, Client: client, Tx: tx}
}

func run(t *testing.T, lanes int, events []model.Event) (*ledger.Ledger, error) {
	t.Helper()
	eng := New(Config{Lanes: lanes, QueueCapacity: 4}, nil)
	return eng.Run(context.Background(), &sliceSource{events: events})
}

func TestRunEmptyStream(t *testing.T) {
	led, err := run(t, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, led.Len())
}

func TestRunMergesAllLanes(t *testing.T) {
	var events []model.Event
	// More clients than lanes so every lane sees traffic.
	for c := model.ClientID(1); c <= 20; c++ {
		events = append(events, deposit(c, model.TxID(c), "10.0"))
		events = append(events, withdrawal(c, model.TxID(1000+uint32(c)), "4.0"))
	}

	led, err := run(t, 3, events)
	require.NoError(t, err)

	balances := led.Balances()
	require.Len(t, balances, 20)
	for i, b := range balances {
		assert.Equal(t, model.ClientID(i+1), b.Client)
		assert.True(t, b.Available.Equal(dec("6.0")), "client %d available = %s", b.Client, b.Available)
		assert.False(t, b.Locked)
	}
}

func TestRunDisputeAcrossLanes(t *testing.T) {
	events := []model.Event{
		deposit(1, 1, "10.0"),
		withdrawal(1, 2, "7.0"),
		ref(model.KindDispute, 1, 2),
		ref(model.KindChargeback, 1, 2),
		deposit(2, 3, "5.0"),
		ref(model.KindDispute, 2, 3),
		ref(model.KindResolve, 2, 3),
	}

	led, err := run(t, 2, events)
	require.NoError(t, err)

	balances := led.Balances()
	require.Len(t, balances, 2)
	assert.True(t, balances[0].Available.Equal(dec("10.0")))
	assert.True(t, balances[0].Locked)
	assert.True(t, balances[1].Available.Equal(dec("5.0")))
	assert.False(t, balances[1].Locked)
}

func TestRunGlobalDuplicateTxFatal(t *testing.T) {
	// Same tx id minted by two different clients: rejected before any
	// ledger sees the second event.
	events := []model.Event{
		deposit(1, 7, "1.0"),
		deposit(2, 7, "1.0"),
	}
	_, err := run(t, 4, events)
	require.ErrorIs(t, err, account.ErrDuplicateTransaction)
}

func TestRunDuplicateCheckSkipsDisputeClass(t *testing.T) {
	// Dispute-class events reference existing ids; they must not trip
	// the duplicate detector.
	events := []model.Event{
		deposit(1, 1, "5.0"),
		ref(model.KindDispute, 1, 1),
		ref(model.KindResolve, 1, 1),
		ref(model.KindDispute, 1, 1),
	}
	led, err := run(t, 2, events)
	require.NoError(t, err)

	balances := led.Balances()
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Held.Equal(dec("5.0")))
}

func TestRunLaneErrorAbortsRun(t *testing.T) {
	// A malformed event reaches a lane's ledger and must abort the
	// whole run, even with healthy traffic on other lanes.
	var events []model.Event
	for c := model.ClientID(1); c <= 10; c++ {
		events = append(events, deposit(c, model.TxID(c), "1.0"))
	}
	events = append(events, model.Event{Kind: model.KindDeposit, Client: 3, Tx: 50000})
	for c := model.ClientID(11); c <= 200; c++ {
		events = append(events, deposit(c, model.TxID(c), "1.0"))
	}

	_, err := run(t, 4, events)
	require.ErrorIs(t, err, ledger.ErrMalformedEvent)
}

func TestRunSourceErrorAbortsRun(t *testing.T) {
	src := &sliceSource{
		events: []model.Event{deposit(1, 1, "1.0")},
		err:    errors.New("torn input"),
	}
	eng := New(Config{Lanes: 2, QueueCapacity: 4}, nil)
	_, err := eng.Run(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "torn input")
}

func TestRunPerClientOrderIsAllThatMatters(t *testing.T) {
	// Two interleavings of the same per-client subsequences must give
	// identical final state.
	a := []model.Event{
		deposit(1, 1, "10.0"),
		deposit(2, 2, "20.0"),
		withdrawal(1, 3, "4.0"),
		ref(model.KindDispute, 1, 1),
		withdrawal(2, 4, "5.0"),
	}
	b := []model.Event{
		deposit(2, 2, "20.0"),
		withdrawal(2, 4, "5.0"),
		deposit(1, 1, "10.0"),
		withdrawal(1, 3, "4.0"),
		ref(model.KindDispute, 1, 1),
	}

	for _, lanes := range []int{1, 2, 7} {
		ledA, err := run(t, lanes, a)
		require.NoError(t, err)
		ledB, err := run(t, lanes, b)
		require.NoError(t, err)
		assert.Equal(t, ledA.Balances(), ledB.Balances(), "lanes=%d", lanes)
	}
}

func TestLaneForIsDeterministic(t *testing.T) {
	for _, lanes := range []int{1, 2, 16} {
		for client := model.ClientID(0); client < 100; client++ {
			lane := laneFor(client, lanes)
			assert.Equal(t, lane, laneFor(client, lanes))
			assert.GreaterOrEqual(t, lane, 0)
			assert.Less(t, lane, lanes)
		}
	}
}

func TestNewClampsConfig(t *testing.T) {
	eng := New(Config{Lanes: 1 << 20, QueueCapacity: -1}, nil)
	assert.Equal(t, maxLanes, eng.lanes)
	assert.Equal(t, defaultQueueCapacity, eng.queueCap)

	eng = New(Config{}, nil)
	assert.Greater(t, eng.lanes, 0)
}
