// Package dispatch fans a threshold breach out to every configured
// warehouse channel at once and records each channel's outcome in the
// event log.
package dispatch

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/hospital-e/supply-service/internal/models"
	"github.com/hospital-e/supply-service/internal/store"
	"github.com/hospital-e/supply-service/internal/warehouse"
)

// Dispatcher invokes its notifiers concurrently. The paths are compensating,
// not coordinated: a failure on one never blocks, retries, or cancels the
// other, and completion order is unspecified.
type Dispatcher struct {
	store     store.Store
	notifiers []warehouse.Notifier
	logger    *log.Logger
}

func New(st store.Store, notifiers []warehouse.Notifier, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(os.Stdout, "[dispatch] ", log.LstdFlags)
	}
	return &Dispatcher{store: st, notifiers: notifiers, logger: logger}
}

// Dispatch runs every path for the given breach and blocks until all have
// completed and been logged. It never returns an error: path failures are
// recorded in the event log and surfaced through the returned outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, b warehouse.Breach) []warehouse.Outcome {
	outcomes := make([]warehouse.Outcome, len(d.notifiers))

	var wg sync.WaitGroup
	for i, n := range d.notifiers {
		wg.Add(1)
		go func(i int, n warehouse.Notifier) {
			defer wg.Done()
			out := n.Notify(ctx, b)
			d.record(ctx, out)
			outcomes[i] = out
		}(i, n)
	}
	wg.Wait()
	return outcomes
}

// record writes one event-log entry per attempt: RETRY for every non-final
// failed attempt, then the final SUCCESS/FAILURE/TIMEOUT entry.
func (d *Dispatcher) record(ctx context.Context, out warehouse.Outcome) {
	for _, attempt := range out.Retries {
		latency := attempt.LatencyMS
		entry := store.EventInput{
			EventType:    out.EventType,
			Direction:    models.DirectionOutgoing,
			Architecture: out.Architecture,
			Status:       models.EventRetry,
			LatencyMS:    &latency,
			Payload:      out.Payload,
		}
		if attempt.Err != nil {
			entry.ErrorMessage = attempt.Err.Error()
		}
		if _, err := d.store.AppendEvent(ctx, entry); err != nil {
			d.logger.Printf("append retry event (%s): %v", out.Architecture, err)
		}
	}

	latency := out.LatencyMS
	entry := store.EventInput{
		EventType:    out.EventType,
		Direction:    models.DirectionOutgoing,
		Architecture: out.Architecture,
		Status:       out.Status,
		LatencyMS:    &latency,
		Payload:      out.Payload,
	}
	if out.Err != nil {
		entry.ErrorMessage = out.Err.Error()
	}
	if _, err := d.store.AppendEvent(ctx, entry); err != nil {
		d.logger.Printf("append event (%s): %v", out.Architecture, err)
	}

	if out.Err != nil {
		d.logger.Printf("%s path %s: %v (latency=%dms)", out.Architecture, out.Status, out.Err, out.LatencyMS)
	} else {
		d.logger.Printf("%s path %s (latency=%dms)", out.Architecture, out.Status, out.LatencyMS)
	}
}
