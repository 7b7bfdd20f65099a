// Package pipeline is the item pipeline: it routes records through the hub
// merge coordinator, stamps emitted records with run metadata, writes them to
// the configured sinks and publishes a notification per record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikidot-crawler/internal/clock/system"
	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	"github.com/JakeFAU/wikidot-crawler/internal/hash/sha256"
	"github.com/JakeFAU/wikidot-crawler/internal/hubmerge"
	"github.com/JakeFAU/wikidot-crawler/internal/id/uuid"
	"github.com/JakeFAU/wikidot-crawler/internal/metrics"
)

var (
	// ErrRunActive is returned by Open while a run is in progress.
	ErrRunActive = errors.New("crawl run already open")
	// ErrNoRun is returned when records arrive outside of a run.
	ErrNoRun = errors.New("no crawl run open")
)

// Sink is a named record sink; the name labels errors and metrics.
type Sink struct {
	Name string
	Sink crawler.RecordSink
}

// RunRecorder persists the lifecycle of crawl runs.
type RunRecorder interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	FinishRun(ctx context.Context, summary crawler.RunSummary) error
}

// Options configures a Pipeline. Zero values fall back to the real clock,
// SHA-256 hashing and UUID v7 run ids; a nil Publisher or Runs disables
// notifications or run bookkeeping.
type Options struct {
	Sinks     []Sink
	Publisher crawler.Publisher
	Topic     string
	Hasher    crawler.Hasher
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Runs      RunRecorder
	Logger    *zap.Logger
}

// Pipeline processes the records of one crawl run at a time.
type Pipeline struct {
	coordinator *hubmerge.Coordinator
	sinks       []Sink
	publisher   crawler.Publisher
	topic       string
	hasher      crawler.Hasher
	clock       crawler.Clock
	ids         crawler.IDGenerator
	runs        RunRecorder
	logger      *zap.Logger

	mu      sync.RWMutex
	open    bool
	summary crawler.RunSummary

	emitted    atomic.Int64
	sinkErrors atomic.Int64
}

// New builds a Pipeline around the coordinator.
func New(coordinator *hubmerge.Coordinator, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if coordinator == nil {
		coordinator = hubmerge.NewCoordinator(nil, logger.Named("hubmerge"))
	}
	p := &Pipeline{
		coordinator: coordinator,
		sinks:       opts.Sinks,
		publisher:   opts.Publisher,
		topic:       opts.Topic,
		hasher:      opts.Hasher,
		clock:       opts.Clock,
		ids:         opts.IDs,
		runs:        opts.Runs,
		logger:      logger,
	}
	if p.hasher == nil {
		p.hasher = sha256.New()
	}
	if p.clock == nil {
		p.clock = system.New()
	}
	if p.ids == nil {
		p.ids = uuid.New()
	}
	return p
}

// Open starts a new run: it assigns a run id, clears the fragment store and
// records the run as running.
func (p *Pipeline) Open(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return "", ErrRunActive
	}
	runID, err := p.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("open run: %w", err)
	}
	started := p.clock.Now()
	if p.runs != nil {
		if err := p.runs.StartRun(ctx, runID, started); err != nil {
			return "", fmt.Errorf("open run: %w", err)
		}
	}

	p.coordinator.Reset()
	p.emitted.Store(0)
	p.sinkErrors.Store(0)
	p.summary = crawler.RunSummary{RunID: runID, Status: crawler.RunRunning, StartedAt: started}
	p.open = true

	p.logger.Info("crawl run opened", zap.String("run_id", runID))
	return runID, nil
}

// Process routes one record. Fragments are absorbed by the coordinator;
// everything it forwards is stamped, written to each sink and announced.
// Sink and publish failures are logged and counted, never returned.
func (p *Pipeline) Process(ctx context.Context, record crawler.Record) error {
	p.mu.RLock()
	open, runID := p.open, p.summary.RunID
	p.mu.RUnlock()
	if !open {
		return ErrNoRun
	}

	out, ok := p.coordinator.Observe(record)
	if !ok {
		return nil
	}
	if pr, ok := out.(crawler.PageRecord); ok {
		p.stamp(pr.PageData(), runID)
	}

	for _, s := range p.sinks {
		err := s.Sink.Write(ctx, out)
		if errors.Is(err, crawler.ErrUnsupportedRecord) {
			p.logger.Debug("sink skips record kind",
				zap.String("sink", s.Name),
				zap.String("kind", string(out.RecordKind())),
			)
			continue
		}
		if err != nil {
			p.sinkErrors.Add(1)
			metrics.ObserveSinkError(s.Name)
			p.logger.Error("sink write failed",
				zap.String("sink", s.Name),
				zap.String("kind", string(out.RecordKind())),
				zap.String("link", out.Key()),
				zap.Error(err),
			)
		}
	}
	p.emitted.Add(1)
	metrics.ObserveRecord(string(out.RecordKind()))
	p.publish(ctx, runID, out)
	return nil
}

func (p *Pipeline) stamp(page *crawler.Page, runID string) {
	page.RunID = runID
	page.FetchedAt = p.clock.Now()
	digest, err := p.hasher.Hash([]byte(page.RawContent))
	if err != nil {
		p.logger.Warn("content hash failed", zap.String("link", page.Link), zap.Error(err))
		return
	}
	page.ContentHash = digest
}

func (p *Pipeline) publish(ctx context.Context, runID string, record crawler.Record) {
	if p.publisher == nil {
		return
	}
	msg := crawler.Notification{RunID: runID, Kind: record.RecordKind(), Link: record.Key()}
	if pr, ok := record.(crawler.PageRecord); ok {
		page := pr.PageData()
		msg.URL = page.URL
		msg.PageID = page.PageID
		msg.Title = page.Title
		msg.ContentHash = page.ContentHash
		msg.HistoryComplete = page.HistoryComplete
		msg.Revisions = len(page.History)
		msg.FetchedAt = page.FetchedAt
	}
	if hub, ok := record.(*crawler.Hub); ok {
		msg.Fragments = len(hub.PaginatedContent)
	}
	if _, err := p.publisher.Publish(ctx, p.topic, msg); err != nil {
		p.sinkErrors.Add(1)
		metrics.ObserveSinkError("publisher")
		p.logger.Warn("publish notification failed", zap.String("link", record.Key()), zap.Error(err))
	}
}

// Close ends the run. Fragments whose hub never arrived are discarded and
// counted. runErr marks the run as failed. The summary is returned even when
// recording it fails.
func (p *Pipeline) Close(ctx context.Context, runErr error) (crawler.RunSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return crawler.RunSummary{}, ErrNoRun
	}
	p.open = false

	unclaimed := p.coordinator.Store().Unclaimed()
	owners := make([]string, 0, len(unclaimed))
	for owner := range unclaimed {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	orphaned := 0
	for _, owner := range owners {
		n := unclaimed[owner]
		orphaned += n
		p.logger.Warn("discarding fragments whose hub never arrived",
			zap.String("hub", owner),
			zap.Int("fragments", n),
		)
	}
	metrics.ObserveFragments("orphaned", orphaned)

	summary := p.liveSummary()
	summary.FinishedAt = p.clock.Now()
	summary.FragmentsOrphaned = int64(orphaned)
	summary.Status = crawler.RunFinished
	if runErr != nil {
		summary.Status = crawler.RunFailed
		summary.Error = runErr.Error()
	}
	p.summary = summary

	p.logger.Info("crawl run closed",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Int64("records_emitted", summary.Emitted),
		zap.Int64("fragments_merged", summary.FragmentsMerged),
		zap.Int64("fragments_late", summary.FragmentsLate),
		zap.Int64("fragments_orphaned", summary.FragmentsOrphaned),
		zap.Int64("sink_errors", summary.SinkErrors),
	)

	if p.runs != nil {
		if err := p.runs.FinishRun(ctx, summary); err != nil {
			return summary, fmt.Errorf("close run: %w", err)
		}
	}
	return summary, nil
}

// Summary reports the current or most recent run.
func (p *Pipeline) Summary() crawler.RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return p.summary
	}
	return p.liveSummary()
}

// liveSummary must be called with mu held.
func (p *Pipeline) liveSummary() crawler.RunSummary {
	stats := p.coordinator.Stats()
	summary := p.summary
	summary.Emitted = p.emitted.Load()
	summary.FragmentsBuffered = stats.Buffered
	summary.FragmentsMerged = stats.Merged
	summary.FragmentsLate = stats.Late
	summary.SinkErrors = p.sinkErrors.Load()
	return summary
}
