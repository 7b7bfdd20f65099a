// Package dispatcher manages worker fan-out over the task queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	"github.com/JakeFAU/wikidot-crawler/internal/worker"
)

// Queue is a task queue that can be closed once the crawl has drained.
type Queue interface {
	crawler.Queue[worker.Task]
	Close()
}

// Dispatcher fans out queue work to a pool of workers and tracks outstanding
// tasks so the run ends once every scheduled task has been processed.
type Dispatcher struct {
	queue   Queue
	workers []*worker.Worker
	pending sync.WaitGroup
	logger  *zap.Logger
}

var _ worker.Scheduler = (*Dispatcher)(nil)

// New creates a Dispatcher. Workers are attached afterwards with AddWorkers,
// since they schedule their follow-up tasks through the dispatcher.
func New(queue Queue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  queue,
		logger: logger,
	}
}

// AddWorkers registers workers to run.
func (d *Dispatcher) AddWorkers(workers ...*worker.Worker) {
	d.workers = append(d.workers, workers...)
}

// Schedule enqueues a task and counts it as outstanding.
func (d *Dispatcher) Schedule(ctx context.Context, task worker.Task) error {
	d.pending.Add(1)
	if err := d.queue.Enqueue(ctx, task); err != nil {
		d.pending.Done()
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Done marks a dequeued task as processed.
func (d *Dispatcher) Done(worker.Task) {
	d.pending.Done()
}

// Run schedules the seed tasks, starts all workers and blocks until every
// task has been processed or the context ends.
func (d *Dispatcher) Run(ctx context.Context, seeds []worker.Task) error {
	for _, task := range seeds {
		if err := d.Schedule(ctx, task); err != nil {
			d.queue.Close()
			return fmt.Errorf("schedule seed %s: %w", task.URL, err)
		}
	}
	d.logger.Info("dispatching crawl", zap.Int("seeds", len(seeds)), zap.Int("workers", len(d.workers)))

	drained := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(drained)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-drained:
			d.logger.Info("all tasks processed; closing queue")
		case <-gctx.Done():
		}
		d.queue.Close()
		return nil
	})
	for _, w := range d.workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	return nil
}
