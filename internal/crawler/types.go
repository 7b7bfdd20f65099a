package crawler

import (
	"net/http"
	"time"
)

// Kind identifies the variety of record flowing through the item pipeline.
type Kind string

// Record kinds produced by the crawl.
const (
	KindItem       Kind = "item"
	KindTale       Kind = "tale"
	KindHub        Kind = "hub"
	KindGOI        Kind = "goi"
	KindSupplement Kind = "supplement"
	KindFragment   Kind = "fragment"
	KindTitle      Kind = "title"

	// KindSeriesIndex is a target kind only: the page lists SCP titles and
	// yields one KindTitle record per entry.
	KindSeriesIndex Kind = "series-index"
)

// ParseKind maps a configured target kind to a Kind.
func ParseKind(raw string) (Kind, bool) {
	switch k := Kind(raw); k {
	case KindItem, KindTale, KindHub, KindGOI, KindSupplement, KindSeriesIndex:
		return k, true
	default:
		return "", false
	}
}

// Revision is one edit event of a page.
type Revision struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	AuthorLink string    `json:"author_href,omitempty"`
	Date       string    `json:"date"`
	Comment    string    `json:"comment"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
}

// Page is a content page being built by the crawl.
type Page struct {
	Kind            Kind       `json:"kind"`
	PageID          string     `json:"page_id"`
	Link            string     `json:"link"`
	URL             string     `json:"url"`
	Domain          string     `json:"domain"`
	Title           string     `json:"title"`
	Tags            []string   `json:"tags"`
	Rating          int        `json:"rating"`
	RawContent      string     `json:"raw_content"`
	References      []string   `json:"references,omitempty"`
	History         []Revision `json:"history"`
	HistoryComplete bool       `json:"history_complete"`
	CreatedAt       string     `json:"created_at,omitempty"`
	Creator         string     `json:"creator,omitempty"`

	// Item-only fields.
	SCP       string `json:"scp,omitempty"`
	SCPNumber int    `json:"scp_number,omitempty"`
	Series    string `json:"series,omitempty"`

	ContentHash string    `json:"content_hash,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
	FetchedAt   time.Time `json:"fetched_at,omitzero"`
}

// FragmentPage is the payload of one merged hub fragment.
type FragmentPage struct {
	Page  int      `json:"page"`
	URL   string   `json:"url"`
	Links []string `json:"content"`
}

// Hub is a Page whose link listing may be split across paginated sub-pages.
type Hub struct {
	Page
	PaginatedContent []FragmentPage `json:"paginated_content,omitempty"`
}

// Fragment is one paginated sub-page listing belonging to a hub.
type Fragment struct {
	OwnerKey   string   `json:"base_link"`
	PageNumber int      `json:"page_number"`
	URL        string   `json:"url"`
	Links      []string `json:"links"`
}

// Title is one entry of an SCP series index.
type Title struct {
	SCP    string `json:"scp"`
	Title  string `json:"title"`
	Link   string `json:"link"`
	Domain string `json:"domain"`
}

// Notification is the message published for each emitted record.
type Notification struct {
	RunID           string    `json:"run_id"`
	Kind            Kind      `json:"kind"`
	Link            string    `json:"link"`
	URL             string    `json:"url,omitempty"`
	PageID          string    `json:"page_id,omitempty"`
	Title           string    `json:"title,omitempty"`
	ContentHash     string    `json:"content_hash,omitempty"`
	HistoryComplete bool      `json:"history_complete"`
	Revisions       int       `json:"revisions"`
	Fragments       int       `json:"fragments,omitempty"`
	FetchedAt       time.Time `json:"fetched_at,omitzero"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Method  string
	Form    map[string]string
	Cookies []*http.Cookie
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Target is a configured page to crawl.
type Target struct {
	URL  string `json:"url" mapstructure:"url"`
	Kind Kind   `json:"kind" mapstructure:"kind"`
}

// RunStatus is the lifecycle state of a crawl run.
type RunStatus string

// Run statuses.
const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// RunSummary reports what one crawl run produced.
type RunSummary struct {
	RunID             string    `json:"run_id"`
	Status            RunStatus `json:"status"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at,omitzero"`
	Emitted           int64     `json:"records_emitted"`
	FragmentsBuffered int64     `json:"fragments_buffered"`
	FragmentsMerged   int64     `json:"fragments_merged"`
	FragmentsLate     int64     `json:"fragments_late"`
	FragmentsOrphaned int64     `json:"fragments_orphaned"`
	SinkErrors        int64     `json:"sink_errors"`
	Error             string    `json:"error,omitempty"`
}
