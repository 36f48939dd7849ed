// Package batch runs document operations across many independent files:
// a bounded worker pool, per-item failure isolation, progress reporting
// and atomic output placement so a cancelled or failed item never leaves
// a partial file behind.
package batch

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/pdfdesk/pdfengine/observability"
)

// Progress reports completed work units. It is invoked from the batch's
// collector goroutine only, never concurrently with itself.
type Progress func(completed, total int, stage string)

// Item names one source file and where its result goes.
type Item struct {
	Source string
	Dest   string
}

// Outcome is the per-item result. Err is nil on success. Ran reports
// whether a worker picked the item up; cancelled batches leave it
// false for items that never started.
type Outcome struct {
	Item
	Ran         bool
	Err         error
	BytesBefore int64
	BytesAfter  int64
}

// Summary aggregates a finished batch.
type Summary struct {
	Outcomes    []Outcome
	Failed      int
	BytesBefore int64
	BytesAfter  int64
}

// Operation transforms one document's bytes. Implementations must be
// safe for concurrent use across items.
type Operation func(ctx context.Context, source []byte) ([]byte, error)

// Config carries the pool tunables.
type Config struct {
	// Workers bounds concurrent items. Zero means GOMAXPROCS.
	Workers  int
	Progress Progress
	Logger   observability.Logger
	Tracer   observability.Tracer
}

// Runner executes batches.
type Runner struct {
	cfg    Config
	log    observability.Logger
	tracer observability.Tracer
}

// New returns a batch runner.
func New(cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	return &Runner{cfg: cfg, log: log, tracer: tracer}
}

// Run applies op to every item. One failing item never aborts the
// others; its outcome carries the error. Cancellation stops new items
// and in-flight ones before any output appears, and Run returns the
// context error alongside the partial summary.
func (r *Runner) Run(ctx context.Context, items []Item, op Operation) (Summary, error) {
	ctx, span := r.tracer.StartSpan(ctx, "batch.Run")
	defer span.Finish()

	outcomes := make([]Outcome, len(items))
	work := make(chan int)
	done := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				outcomes[i] = r.runItem(ctx, items[i], op)
				select {
				case done <- i:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for i := range items {
			select {
			case work <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
		close(finished)
	}()

	completed := 0
	for range done {
		completed++
		if r.cfg.Progress != nil {
			r.cfg.Progress(completed, len(items), "processed")
		}
	}
	<-finished

	var summary Summary
	summary.Outcomes = outcomes
	for i := range outcomes {
		if !outcomes[i].Ran {
			// Item never ran; record the cancellation.
			outcomes[i] = Outcome{Item: items[i], Err: ctx.Err()}
		}
		if outcomes[i].Err != nil {
			summary.Failed++
			continue
		}
		summary.BytesBefore += outcomes[i].BytesBefore
		summary.BytesAfter += outcomes[i].BytesAfter
	}
	r.log.Info("batch complete",
		observability.Int("items", len(items)),
		observability.Int("failed", summary.Failed))
	if err := ctx.Err(); err != nil {
		span.SetError(err)
		return summary, err
	}
	return summary, nil
}

func (r *Runner) runItem(ctx context.Context, item Item, op Operation) Outcome {
	out := Outcome{Item: item, Ran: true}
	data, err := os.ReadFile(item.Source)
	if err != nil {
		out.Err = fmt.Errorf("read %s: %w", item.Source, err)
		return out
	}
	out.BytesBefore = int64(len(data))

	result, err := op(ctx, data)
	if err != nil {
		out.Err = fmt.Errorf("%s: %w", item.Source, err)
		return out
	}
	// A cancelled operation must not produce a destination file.
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	if err := AtomicWrite(item.Dest, result); err != nil {
		out.Err = err
		return out
	}
	out.BytesAfter = int64(len(result))
	return out
}
