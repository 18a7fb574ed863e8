package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilgg/oss-transparency/internal/checkpoint"
	"github.com/nikhilgg/oss-transparency/internal/domain"
	"github.com/nikhilgg/oss-transparency/internal/tokens"
)

// progressEvery controls how often a progress line and quota snapshot are
// emitted. Advisory only.
const progressEvery = 20

// Dispatcher fans one task per work unit out across a fixed pool of workers,
// appends each unit's checkpoint record, and reports progress. Units already
// present in the checkpoint log are skipped up front, which makes a rerun of
// an interrupted collection pick up exactly where it left off.
type Dispatcher struct {
	handler UnitHandler
	log     *checkpoint.Log
	pool    *tokens.Pool // optional, quota snapshots only
	workers int
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher over the given handler and checkpoint log
func NewDispatcher(handler UnitHandler, log *checkpoint.Log, pool *tokens.Pool, workers int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handler: handler,
		log:     log,
		pool:    pool,
		workers: workers,
		logger:  logger,
	}
}

// Run processes all units not yet present in the checkpoint log. At most
// `workers` units are in flight at once. Per-unit failures are recorded and
// counted, never raised; only resource-level failures (an unwritable log)
// abort the run. A context cancellation stops submitting new units and lets
// in-flight units finish naturally.
func (d *Dispatcher) Run(ctx context.Context, units []string) (*domain.RunSummary, error) {
	units = Dedupe(units)

	done, err := d.log.LoadDoneIDs()
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var remaining []string
	for _, u := range units {
		if _, ok := done[u]; !ok {
			remaining = append(remaining, u)
		}
	}

	summary := &domain.RunSummary{
		RunID:     uuid.New().String(),
		Stage:     d.handler.Stage(),
		Total:     len(units),
		Remaining: len(remaining),
		StartedAt: time.Now().UTC(),
	}

	d.logger.Info("starting run",
		"stage", summary.Stage,
		"run_id", summary.RunID,
		"total", len(units),
		"already_done", len(done),
		"remaining", len(remaining),
		"workers", d.workers,
	)

	unitCh := make(chan string)
	resultCh := make(chan domain.Status)

	var fatalOnce sync.Once
	var fatalErr error
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fail := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	// Feeder: stops submitting on cancellation; in-flight units finish.
	go func() {
		defer close(unitCh)
		for _, u := range remaining {
			select {
			case unitCh <- u:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range unitCh {
				rec := d.handler.Handle(ctx, unit)
				if err := d.log.Append(rec); err != nil {
					fail(fmt.Errorf("append checkpoint: %w", err))
					return
				}
				resultCh <- rec.Status
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	processed := 0
	for status := range resultCh {
		switch status {
		case domain.StatusDone:
			summary.Done++
		case domain.StatusSkipped:
			summary.Skipped++
		case domain.StatusErrored:
			summary.Errored++
		}
		processed++

		if processed%progressEvery == 0 {
			attrs := []any{
				"stage", summary.Stage,
				"processed", processed,
				"remaining", len(remaining) - processed,
			}
			if d.pool != nil {
				attrs = append(attrs, "quota", d.pool.Status())
			}
			d.logger.Info("progress", attrs...)
		}
	}

	summary.Remaining = len(remaining) - processed
	summary.Duration = time.Since(summary.StartedAt)

	if fatalErr != nil {
		return summary, fatalErr
	}

	d.logger.Info("run finished",
		"stage", summary.Stage,
		"done", summary.Done,
		"skipped", summary.Skipped,
		"errored", summary.Errored,
		"remaining", summary.Remaining,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return summary, nil
}
