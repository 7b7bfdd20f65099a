package crawler

// Record is anything that flows through the item pipeline.
type Record interface {
	RecordKind() Kind
	Key() string
}

// HistoryBearer is implemented by records that carry a revision history.
type HistoryBearer interface {
	Record
	HistoryPageID() string
	SetHistory(revisions []Revision, complete bool)
}

// Paginated is implemented by records that absorb hub fragments.
type Paginated interface {
	Record
	OwnerKey() string
	ApplyFragments(fragments []Fragment)
}

// PageRecord is implemented by records built on a Page.
type PageRecord interface {
	Record
	PageData() *Page
}

var (
	_ PageRecord    = (*Page)(nil)
	_ PageRecord    = (*Hub)(nil)
	_ HistoryBearer = (*Page)(nil)
	_ HistoryBearer = (*Hub)(nil)
	_ Paginated     = (*Hub)(nil)
	_ Record        = (*Fragment)(nil)
	_ Record        = (*Title)(nil)
)

// RecordKind reports the page kind.
func (p *Page) RecordKind() Kind { return p.Kind }

// Key returns the canonical relative link.
func (p *Page) Key() string { return p.Link }

// PageData returns the page itself; embedded in Hub it yields the hub's page.
func (p *Page) PageData() *Page { return p }

// HistoryPageID returns the identifier used for history lookups.
func (p *Page) HistoryPageID() string { return p.PageID }

// SetHistory sorts the revisions by date and attaches them, deriving the
// creation metadata from the earliest revision.
func (p *Page) SetHistory(revisions []Revision, complete bool) {
	sorted := SortRevisions(revisions)
	p.History = sorted
	p.HistoryComplete = complete
	if len(sorted) == 0 {
		p.CreatedAt = "unknown"
		p.Creator = "unknown"
		return
	}
	p.CreatedAt = sorted[0].Date
	p.Creator = sorted[0].Author
}

// OwnerKey is the hub's canonical link, which fragments reference.
func (h *Hub) OwnerKey() string { return h.Link }

// ApplyFragments attaches fragments in the order given.
func (h *Hub) ApplyFragments(fragments []Fragment) {
	pages := make([]FragmentPage, 0, len(fragments))
	for _, f := range fragments {
		pages = append(pages, FragmentPage{
			Page:  f.PageNumber,
			URL:   f.URL,
			Links: append([]string(nil), f.Links...),
		})
	}
	h.PaginatedContent = pages
}

// RecordKind always reports KindFragment.
func (f *Fragment) RecordKind() Kind { return KindFragment }

// Key returns the owning hub link.
func (f *Fragment) Key() string { return f.OwnerKey }

// RecordKind always reports KindTitle.
func (t *Title) RecordKind() Kind { return KindTitle }

// Key returns the index entry's link.
func (t *Title) Key() string { return t.Link }
