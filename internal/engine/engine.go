package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/settled-dev/settled/internal/account"
	"github.com/settled-dev/settled/internal/ledger"
	"github.com/settled-dev/settled/internal/model"
)

// maxLanes caps the lane count at the ClientID value range; more lanes
// than possible clients would leave some permanently idle.
const maxLanes = 1 << 16

// defaultQueueCapacity bounds each lane's queue so a fast reader cannot
// run unbounded ahead of slow lanes.
const defaultQueueCapacity = 1 << 16

// Source yields validated events in stream order. Next returns io.EOF
// after the final event.
type Source interface {
	Next() (model.Event, error)
}

// Config holds the deployment-time pipeline settings.
type Config struct {
	// Lanes is the number of parallel workers. 0 means runtime.NumCPU().
	Lanes int
	// QueueCapacity is the per-lane queue bound. 0 means the default.
	QueueCapacity int
}

// Engine replays a transaction stream across parallel lanes, one ledger
// per lane, and merges the results. All events for a client land in the
// same lane in arrival order, so per-client causality is preserved
// without any locking.
type Engine struct {
	lanes    int
	queueCap int
	log      *zap.Logger
}

// New creates an Engine. A nil logger disables logging.
func New(cfg Config, log *zap.Logger) *Engine {
	lanes := cfg.Lanes
	if lanes <= 0 {
		lanes = runtime.NumCPU()
	}
	if lanes > maxLanes {
		lanes = maxLanes
	}
	queueCap := cfg.QueueCapacity
	if queueCap <= 0 {
		queueCap = defaultQueueCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{lanes: lanes, queueCap: queueCap, log: log}
}

// laneFor routes a client to its lane. Deterministic and stateless, so
// the dispatcher needs no coordination with the lanes.
func laneFor(client model.ClientID, lanes int) int {
	return int(client) % lanes
}

// Run drains src through the pipeline and returns the merged ledger.
// The first error from any stage aborts the whole run; no partial
// result is returned.
func (e *Engine) Run(ctx context.Context, src Source) (*ledger.Ledger, error) {
	e.log.Debug("starting replay", zap.Int("lanes", e.lanes), zap.Int("queue_capacity", e.queueCap))

	queues := make([]chan model.Event, e.lanes)
	for i := range queues {
		queues[i] = make(chan model.Event, e.queueCap)
	}
	results := make([]*ledger.Ledger, e.lanes)

	g, ctx := errgroup.WithContext(ctx)

	for i := range queues {
		i := i // per-iteration copy; module targets Go 1.21 where loop vars are shared
		g.Go(func() error {
			led := ledger.New()
			for ev := range queues[i] {
				if err := led.Apply(ev); err != nil {
					return fmt.Errorf("lane %d: %w", i, err)
				}
			}
			results[i] = led
			return nil
		})
	}

	var routed int64
	g.Go(func() error {
		// Closing the queues is the shutdown signal for the lanes,
		// on failure as well as on clean EOF.
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()

		// Owned by this goroutine alone; lanes never see it.
		seen := make(map[model.TxID]struct{})
		for {
			ev, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading event stream: %w", err)
			}
			if ev.Kind.MintsID() {
				if _, dup := seen[ev.Tx]; dup {
					return fmt.Errorf("%w: tx %d reused in stream", account.ErrDuplicateTransaction, ev.Tx)
				}
				seen[ev.Tx] = struct{}{}
			}
			select {
			case queues[laneFor(ev.Client, e.lanes)] <- ev:
				routed++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := ledger.New()
	for i, led := range results {
		if err := merged.Merge(led); err != nil {
			return nil, fmt.Errorf("merging lane %d: %w", i, err)
		}
	}

	e.log.Info("replay complete", zap.Int64("events", routed), zap.Int("accounts", merged.Len()))
	return merged, nil
}
