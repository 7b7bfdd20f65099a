package history

import (
	"slices"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

// OriginRevisionID marks the page creation revision; it is always the oldest.
const OriginRevisionID = "0"

// Status is the lifecycle state of a history retrieval.
type Status int

// History retrieval states. Complete and Degraded are terminal.
const (
	StatusFetching Status = iota
	StatusComplete
	StatusDegraded
)

func (s Status) String() string {
	switch s {
	case StatusFetching:
		return "fetching"
	case StatusComplete:
		return "complete"
	case StatusDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further listing pages will be requested.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusDegraded
}

// State accumulates revisions for a single page across listing pages. A State
// is owned by one task at a time and is not safe for concurrent use.
type State struct {
	pageID    string
	url       string
	maxPages  int
	revisions map[string]crawler.Revision
	nextPage  int
	attempts  int
	status    Status
	logger    *zap.Logger
}

// NewState returns a State positioned at listing page 1.
func NewState(pageID, url string, maxPages int, logger *zap.Logger) *State {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{
		pageID:    pageID,
		url:       url,
		maxPages:  maxPages,
		revisions: make(map[string]crawler.Revision),
		nextPage:  1,
		status:    StatusFetching,
		logger:    logger.With(zap.String("page_id", pageID), zap.String("url", url)),
	}
}

// PageID returns the page identifier.
func (s *State) PageID() string { return s.pageID }

// NextPage returns the listing page that should be requested next.
func (s *State) NextPage() int { return s.nextPage }

// Status returns the current lifecycle state.
func (s *State) Status() Status { return s.status }

// Attempts returns how many listing responses (or failures) have been consumed.
func (s *State) Attempts() int { return s.attempts }

// Submit feeds the response for listing page `page` into the state machine.
func (s *State) Submit(resp crawler.FetchResponse, page int) Status {
	if s.status.Terminal() {
		s.logger.Debug("ignoring history response for finished page", zap.Int("page", page))
		return s.status
	}
	s.attempts++

	listing, err := ParseListing(resp.Body)
	if err != nil {
		s.logger.Error("unable to parse history lookup",
			zap.Int("status", resp.StatusCode),
			zap.Int("page", page),
			zap.Error(err),
		)
		s.status = StatusDegraded
		return s.status
	}
	for _, rowErr := range listing.RowErrors {
		s.logger.Error("could not process revision row",
			zap.Int("page", page),
			zap.String("reason", rowErr.Reason),
			zap.String("row", rowErr.Row),
		)
	}
	for _, rev := range listing.Revisions {
		s.revisions[rev.ID] = rev
	}
	return s.advance(page)
}

// Fail records a fetch failure for listing page `page`. Failed fetches are
// treated like malformed responses.
func (s *State) Fail(err error, page int) Status {
	if s.status.Terminal() {
		return s.status
	}
	s.attempts++
	s.logger.Error("history fetch failed", zap.Int("page", page), zap.Error(err))
	s.status = StatusDegraded
	return s.status
}

// Abort ends a retrieval that can no longer continue, such as when the
// request for listing page `page` could not be queued. No attempt is counted.
func (s *State) Abort(err error, page int) Status {
	if s.status.Terminal() {
		return s.status
	}
	s.logger.Error("history retrieval aborted", zap.Int("page", page), zap.Error(err))
	s.status = StatusDegraded
	return s.status
}

func (s *State) advance(page int) Status {
	if _, ok := s.revisions[OriginRevisionID]; ok {
		s.status = StatusComplete
		return s.status
	}
	next := page + 1
	if next > s.maxPages {
		s.logger.Warn("failed to retrieve complete history",
			zap.Int("pages", page),
			zap.Int("revisions", len(s.revisions)),
		)
		s.status = StatusDegraded
		return s.status
	}
	s.nextPage = next
	return s.status
}

// Revisions returns the accumulated revisions in ascending id order.
func (s *State) Revisions() []crawler.Revision {
	out := make([]crawler.Revision, 0, len(s.revisions))
	for _, rev := range s.revisions {
		out = append(out, rev)
	}
	slices.SortFunc(out, func(a, b crawler.Revision) int {
		return crawler.CompareRevisionIDs(a.ID, b.ID)
	})
	return out
}

// Apply attaches the accumulated history to the record.
func (s *State) Apply(record crawler.HistoryBearer) {
	record.SetHistory(s.Revisions(), s.status == StatusComplete)
}
