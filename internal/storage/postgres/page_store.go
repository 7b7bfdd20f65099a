package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	"github.com/JakeFAU/wikidot-crawler/internal/storage"
)

// PageStore upserts emitted page records into Postgres, one row per
// (domain, link). The full record is kept in a jsonb document column.
type PageStore struct {
	pool  Pool
	table string
}

var _ crawler.RecordSink = (*PageStore)(nil)

// NewPageStore constructs a store over an existing pool.
func NewPageStore(pool Pool, table string) (*PageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "pages")
	if err != nil {
		return nil, err
	}
	return &PageStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Write upserts the record.
func (s *PageStore) Write(ctx context.Context, record crawler.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	pr, ok := record.(crawler.PageRecord)
	if !ok {
		return fmt.Errorf("page store: %w: %s", crawler.ErrUnsupportedRecord, record.RecordKind())
	}
	page := pr.PageData()
	if page.Link == "" {
		return fmt.Errorf("page store: %w", storage.ErrMissingKey)
	}
	document, err := storage.Encode(record)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	domain,
	link,
	kind,
	page_id,
	title,
	tags,
	rating,
	history_complete,
	revisions,
	created_at,
	creator,
	content_hash,
	run_id,
	fetched_at,
	document
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (domain, link) DO UPDATE SET
	kind = EXCLUDED.kind,
	page_id = EXCLUDED.page_id,
	title = EXCLUDED.title,
	tags = EXCLUDED.tags,
	rating = EXCLUDED.rating,
	history_complete = EXCLUDED.history_complete,
	revisions = EXCLUDED.revisions,
	created_at = EXCLUDED.created_at,
	creator = EXCLUDED.creator,
	content_hash = EXCLUDED.content_hash,
	run_id = EXCLUDED.run_id,
	fetched_at = EXCLUDED.fetched_at,
	document = EXCLUDED.document`, s.table)

	args := []any{
		page.Domain,
		page.Link,
		string(page.Kind),
		page.PageID,
		page.Title,
		page.Tags,
		page.Rating,
		page.HistoryComplete,
		len(page.History),
		page.CreatedAt,
		page.Creator,
		page.ContentHash,
		page.RunID,
		page.FetchedAt,
		document,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert page %s: %w", page.Link, err)
	}
	return nil
}
