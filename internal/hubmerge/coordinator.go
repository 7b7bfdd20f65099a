package hubmerge

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	"github.com/JakeFAU/wikidot-crawler/internal/metrics"
)

// Stats summarizes coordinator activity since the last Reset.
type Stats struct {
	Buffered int64 `json:"fragments_buffered"`
	Merged   int64 `json:"fragments_merged"`
	Late     int64 `json:"fragments_late"`
	Hubs     int64 `json:"hubs_forwarded"`
}

// Coordinator merges buffered fragments into hubs when the hub is observed.
// Merging happens once, at first sight of the hub; a fragment that arrives
// after its hub was forwarded is kept in the store but never attached.
type Coordinator struct {
	store  *Store
	logger *zap.Logger

	buffered atomic.Int64
	merged   atomic.Int64
	late     atomic.Int64
	hubs     atomic.Int64
}

// NewCoordinator builds a Coordinator over the run-scoped store.
func NewCoordinator(store *Store, logger *zap.Logger) *Coordinator {
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, logger: logger}
}

// Store exposes the underlying fragment store.
func (c *Coordinator) Store() *Store { return c.store }

// Reset clears the store and counters at the start of a crawl run.
func (c *Coordinator) Reset() {
	c.store.Reset()
	c.buffered.Store(0)
	c.merged.Store(0)
	c.late.Store(0)
	c.hubs.Store(0)
}

// Observe consumes one pipeline record. It returns the record to forward and
// true, or false when the record must be suppressed. Fragments are never
// forwarded.
func (c *Coordinator) Observe(record crawler.Record) (crawler.Record, bool) {
	switch rec := record.(type) {
	case *crawler.Fragment:
		c.observeFragment(rec)
		return nil, false
	case crawler.Paginated:
		c.observeHub(rec)
		return rec, true
	default:
		return record, true
	}
}

func (c *Coordinator) observeFragment(f *crawler.Fragment) {
	late := c.store.Add(*f)
	c.buffered.Add(1)
	metrics.ObserveFragments("buffered", 1)
	if late {
		c.late.Add(1)
		metrics.ObserveFragments("late", 1)
		c.logger.Warn("fragment arrived after its hub was emitted; dropping",
			zap.String("hub", f.OwnerKey),
			zap.Int("page", f.PageNumber),
			zap.String("url", f.URL),
		)
		return
	}
	c.logger.Info("stored paginated content",
		zap.String("hub", f.OwnerKey),
		zap.Int("page", f.PageNumber),
		zap.Int("links", len(f.Links)),
	)
}

func (c *Coordinator) observeHub(hub crawler.Paginated) {
	c.hubs.Add(1)
	owner := hub.OwnerKey()
	if owner == "" {
		c.logger.Warn("hub has no link; forwarding without pagination")
		return
	}
	frags := c.store.Take(owner)
	if len(frags) == 0 {
		c.logger.Debug("hub has no paginated content", zap.String("hub", owner))
		return
	}
	hub.ApplyFragments(frags)
	c.merged.Add(int64(len(frags)))
	metrics.ObserveFragments("merged", len(frags))
	c.logger.Info("merged paginated pages into hub",
		zap.String("hub", owner),
		zap.Int("pages", len(frags)),
	)
}

// Stats returns the current counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Buffered: c.buffered.Load(),
		Merged:   c.merged.Load(),
		Late:     c.late.Load(),
		Hubs:     c.hubs.Load(),
	}
}
