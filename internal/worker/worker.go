// Package worker implements the crawl task execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	"github.com/JakeFAU/wikidot-crawler/internal/extract"
	"github.com/JakeFAU/wikidot-crawler/internal/history"
	"github.com/JakeFAU/wikidot-crawler/internal/metrics"
	"github.com/JakeFAU/wikidot-crawler/internal/telemetry"
)

// Scheduler accepts follow-up tasks and is told when a dequeued task is done.
type Scheduler interface {
	Schedule(ctx context.Context, task Task) error
	Done(task Task)
}

// RecordProcessor receives records once they are ready for the pipeline.
type RecordProcessor interface {
	Process(ctx context.Context, record crawler.Record) error
}

// Config controls Worker behavior.
type Config struct {
	Domain          string
	BaseURL         string
	Token           string
	MaxHistoryPages int
}

// Worker consumes queued tasks and executes them.
type Worker struct {
	queue     crawler.Queue[Task]
	scheduler Scheduler
	fetcher   crawler.Fetcher
	processor RecordProcessor
	extractor extract.Extractor
	requests  history.RequestBuilder
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue crawler.Queue[Task],
	scheduler Scheduler,
	fetcher crawler.Fetcher,
	processor RecordProcessor,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.Domain == "" {
		cfg.Domain = extract.DefaultDomain
	}
	if cfg.MaxHistoryPages <= 0 {
		cfg.MaxHistoryPages = history.DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		scheduler: scheduler,
		fetcher:   fetcher,
		processor: processor,
		extractor: extract.New(cfg.Domain),
		requests:  history.RequestBuilder{Domain: cfg.Domain, Token: cfg.Token, BaseURL: cfg.BaseURL},
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming tasks until the queue is closed or the context ends.
func (w *Worker) Run(ctx context.Context) error {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return fmt.Errorf("worker stopped: %w", ctx.Err())
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("type", string(task.Type)), zap.String("url", task.URL))
		w.Process(ctx, task)
		w.scheduler.Done(task)
	}
}

// Process executes a single task. Failures are logged; they never stop the worker.
func (w *Worker) Process(ctx context.Context, task Task) {
	ctx, span := telemetry.Tracer().Start(ctx, "task."+string(task.Type))
	span.SetAttributes(
		attribute.String("crawler.url", task.URL),
		attribute.String("crawler.kind", string(task.Kind)),
	)
	defer span.End()

	switch task.Type {
	case TaskPage:
		w.handlePage(ctx, task)
	case TaskHistory:
		w.handleHistory(ctx, task)
	case TaskFragment:
		w.handleFragment(ctx, task)
	default:
		w.logger.Error("unknown task type", zap.String("type", string(task.Type)), zap.String("url", task.URL))
	}
}

func (w *Worker) handlePage(ctx context.Context, task Task) {
	resp, err := w.fetch(ctx, task, crawler.FetchRequest{URL: task.URL, Method: http.MethodGet})
	if err != nil {
		w.logger.Warn("page fetch failed", zap.String("url", task.URL), zap.Error(err))
		return
	}
	if task.Kind == crawler.KindSeriesIndex {
		w.handleIndex(ctx, task, resp.Body)
		return
	}

	record, err := w.extractor.Page(task.Kind, task.URL, resp.Body)
	var redirect *extract.RedirectError
	switch {
	case errors.As(err, &redirect):
		w.followSplash(ctx, task, redirect.Path)
		return
	case errors.Is(err, extract.ErrNoContent),
		errors.Is(err, extract.ErrKindMismatch),
		errors.Is(err, extract.ErrExcluded):
		w.logger.Debug("skipping page", zap.String("url", task.URL), zap.String("kind", string(task.Kind)), zap.Error(err))
		return
	case err != nil:
		w.logger.Error("page extraction failed", zap.String("url", task.URL), zap.Error(err))
		return
	}
	if pr, ok := record.(crawler.PageRecord); ok && task.OriginalLink != "" {
		pr.PageData().Link = task.OriginalLink
	}
	w.logger.Info("processing page",
		zap.String("kind", string(task.Kind)),
		zap.String("url", task.URL),
		zap.String("link", record.Key()),
	)

	bearer, ok := record.(crawler.HistoryBearer)
	if !ok {
		w.deliver(ctx, record)
		return
	}
	state := history.NewState(bearer.HistoryPageID(), task.URL, w.cfg.MaxHistoryPages, w.logger.Named("history"))
	next := Task{Type: TaskHistory, URL: task.URL, Kind: task.Kind, Record: bearer, History: state}

	if hub, ok := record.(*crawler.Hub); ok {
		if paths := extract.PaginationLinks(hub.RawContent); len(paths) > 0 {
			w.scheduleFragments(ctx, hub, paths, NewGate(len(paths), next))
			return
		}
	}
	w.scheduleHistory(ctx, next)
}

func (w *Worker) followSplash(ctx context.Context, task Task, path string) {
	if task.OriginalLink != "" {
		w.logger.Warn("splash page redirects again; skipping",
			zap.String("url", task.URL),
			zap.String("link", task.OriginalLink),
		)
		return
	}
	next := Task{
		Type:         TaskPage,
		URL:          w.baseURL() + "/" + strings.TrimLeft(path, "/"),
		Kind:         task.Kind,
		OriginalLink: w.extractor.SimpleLink(task.URL),
	}
	if err := w.scheduler.Schedule(ctx, next); err != nil {
		w.logger.Error("schedule splash redirect failed", zap.String("url", next.URL), zap.Error(err))
		return
	}
	w.logger.Debug("following splash redirect", zap.String("from", task.URL), zap.String("to", next.URL))
}

func (w *Worker) handleIndex(ctx context.Context, task Task, body []byte) {
	index, err := w.extractor.Titles(body)
	if err != nil {
		w.logger.Error("index extraction failed", zap.String("url", task.URL), zap.Error(err))
		return
	}
	for _, raw := range index.Skipped {
		w.logger.Error("could not process index entry", zap.String("url", task.URL), zap.String("entry", raw))
	}
	w.logger.Info("processing series index", zap.String("url", task.URL), zap.Int("titles", len(index.Titles)))
	for i := range index.Titles {
		w.deliver(ctx, &index.Titles[i])
	}
}

// scheduleFragments queues one task per sub-page. The hub's history task is
// released by whichever fragment task finishes last, so every fragment reaches
// the pipeline before the hub does.
func (w *Worker) scheduleFragments(ctx context.Context, hub *crawler.Hub, paths []string, gate *Gate) {
	for _, path := range paths {
		next := Task{Type: TaskFragment, URL: w.baseURL() + path, Kind: crawler.KindFragment, Gate: gate}
		if err := w.scheduler.Schedule(ctx, next); err != nil {
			w.logger.Error("schedule fragment failed", zap.String("url", next.URL), zap.Error(err))
			w.release(ctx, gate)
			continue
		}
		w.logger.Debug("scheduled hub fragment", zap.String("hub", hub.Link), zap.String("url", next.URL))
	}
}

func (w *Worker) release(ctx context.Context, gate *Gate) {
	if gate == nil {
		return
	}
	if next, ok := gate.Release(); ok {
		w.scheduleHistory(ctx, next)
	}
}

// scheduleHistory queues a history task. When that fails the record is
// delivered with whatever history it has.
func (w *Worker) scheduleHistory(ctx context.Context, task Task) {
	err := w.scheduler.Schedule(ctx, task)
	if err == nil {
		return
	}
	w.logger.Error("schedule history failed",
		zap.String("url", task.URL),
		zap.Int("page", task.History.NextPage()),
		zap.Error(err),
	)
	task.History.Abort(err, task.History.NextPage())
	w.finishHistory(ctx, task)
}

func (w *Worker) handleHistory(ctx context.Context, task Task) {
	state := task.History
	if state == nil || task.Record == nil {
		w.logger.Error("history task missing state", zap.String("url", task.URL))
		return
	}
	page := state.NextPage()
	req := w.requests.Build(state.PageID(), page)

	var status history.Status
	resp, err := w.fetch(ctx, task, req)
	if err != nil {
		metrics.ObserveHistoryFetch("error")
		status = state.Fail(err, page)
	} else {
		metrics.ObserveHistoryFetch("ok")
		status = state.Submit(resp, page)
	}

	if !status.Terminal() {
		w.scheduleHistory(ctx, task)
		return
	}
	w.finishHistory(ctx, task)
}

func (w *Worker) finishHistory(ctx context.Context, task Task) {
	state := task.History
	status := state.Status()
	state.Apply(task.Record)
	metrics.ObserveHistory(status.String(), state.Attempts())
	w.logger.Info("history finished",
		zap.String("url", task.URL),
		zap.String("status", status.String()),
		zap.Int("pages", state.Attempts()),
		zap.Int("revisions", len(state.Revisions())),
	)
	w.deliver(ctx, task.Record)
}

func (w *Worker) handleFragment(ctx context.Context, task Task) {
	defer w.release(ctx, task.Gate)

	owner, page, ok := extract.ParseFragmentURL(task.URL)
	if !ok {
		w.logger.Warn("not a hub fragment url", zap.String("url", task.URL))
		return
	}
	resp, err := w.fetch(ctx, task, crawler.FetchRequest{URL: task.URL, Method: http.MethodGet})
	if err != nil {
		w.logger.Warn("fragment fetch failed", zap.String("url", task.URL), zap.Error(err))
		return
	}
	links, err := extract.FragmentLinks(resp.Body)
	if err != nil {
		w.logger.Error("fragment extraction failed", zap.String("url", task.URL), zap.Error(err))
		return
	}
	if len(links) == 0 {
		w.logger.Debug("fragment has no links", zap.String("url", task.URL))
		return
	}
	w.deliver(ctx, &crawler.Fragment{
		OwnerKey:   owner,
		PageNumber: page,
		URL:        task.URL,
		Links:      links,
	})
}

func (w *Worker) fetch(ctx context.Context, task Task, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	start := time.Now()
	resp, err := w.fetcher.Fetch(ctx, req)
	metrics.ObserveFetch(string(task.Type), time.Since(start))
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	return resp, nil
}

func (w *Worker) deliver(ctx context.Context, record crawler.Record) {
	if err := w.processor.Process(ctx, record); err != nil {
		w.logger.Error("record processing failed",
			zap.String("kind", string(record.RecordKind())),
			zap.String("key", record.Key()),
			zap.Error(err),
		)
	}
}

func (w *Worker) baseURL() string {
	if w.cfg.BaseURL != "" {
		return strings.TrimSuffix(w.cfg.BaseURL, "/")
	}
	return "https://" + w.cfg.Domain
}
