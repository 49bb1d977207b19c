package tailgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/tailgate/internal/broadcast"
)

// Sink receives every published record, in order, on its own goroutine.
// A slow or failing sink delays only itself.
//
// A sink is subscribed when [Frontend.Start] begins and first receives the
// buffered records published since [New]. Deliver errors are logged and the
// record is dropped. Close is called once when [Frontend.Start] returns.
type Sink interface {
	Deliver(ctx context.Context, rec LogRecord) error
	Close() error
}

// ErrSinkDrainTimeout is returned by [Frontend.Start] when a sink could not
// take all remaining records within the shutdown timeout.
var ErrSinkDrainTimeout = errors.New("sink drain timed out")

type sinkRunner struct {
	sink  Sink
	queue *broadcast.Queue
}

// run delivers queued entries until ctx ends, then drains what is left
// within drainTimeout. The error reports records left undelivered.
func (sr sinkRunner) run(ctx context.Context, drainTimeout time.Duration, b *broadcast.Broadcaster, logger *slog.Logger) error {
	failures := 0
	deliver := func(ctx context.Context, e broadcast.Entry) {
		err := deliverSafe(ctx, sr.sink, e.Record)
		switch {
		case err != nil && failures == 0:
			// only the first failure of a run is logged; the log may itself
			// feed this sink
			logger.Warn("sink delivery failed", "seq", e.Seq, "error", err)
			failures++
		case err != nil:
			failures++
		case failures > 0:
			logger.Info("sink delivery recovered", "dropped", failures)
			failures = 0
		}
	}

	for {
		e, err := sr.queue.Pop(ctx)
		if err != nil {
			break
		}
		deliver(ctx, e)
	}

	b.Unsubscribe(sr.queue)
	defer sr.queue.Close()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for drainCtx.Err() == nil {
		e, ok := sr.queue.TryPop()
		if !ok {
			break
		}
		deliver(drainCtx, e)
	}
	if n := sr.queue.Len(); n > 0 {
		return fmt.Errorf("%w: %d records undelivered", ErrSinkDrainTimeout, n)
	}
	return nil
}

// deliverSafe calls Deliver with panic recovery.
func deliverSafe(ctx context.Context, s Sink, rec LogRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Deliver(ctx, rec)
}
