package postgres

import (
	"context"
	"fmt"
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
	domain           text        NOT NULL,
	link             text        NOT NULL,
	kind             text        NOT NULL,
	page_id          text        NOT NULL,
	title            text        NOT NULL DEFAULT '',
	tags             text[]      NOT NULL DEFAULT '{}',
	rating           integer     NOT NULL DEFAULT 0,
	history_complete boolean     NOT NULL DEFAULT false,
	revisions        integer     NOT NULL DEFAULT 0,
	created_at       text        NOT NULL DEFAULT '',
	creator          text        NOT NULL DEFAULT '',
	content_hash     text        NOT NULL DEFAULT '',
	run_id           text        NOT NULL,
	fetched_at       timestamptz NOT NULL,
	document         jsonb       NOT NULL,
	PRIMARY KEY (domain, link)
);

CREATE TABLE IF NOT EXISTS %[2]s (
	run_id             text        PRIMARY KEY,
	started_at         timestamptz NOT NULL,
	finished_at        timestamptz,
	status             text        NOT NULL,
	records_emitted    bigint      NOT NULL DEFAULT 0,
	fragments_buffered bigint      NOT NULL DEFAULT 0,
	fragments_merged   bigint      NOT NULL DEFAULT 0,
	fragments_late     bigint      NOT NULL DEFAULT 0,
	fragments_orphaned bigint      NOT NULL DEFAULT 0,
	sink_errors        bigint      NOT NULL DEFAULT 0,
	error_message      text
);
`

// Schema renders the DDL for the page and run tables. Empty names fall back
// to pages and crawl_runs.
func Schema(pagesTable, runsTable string) (string, error) {
	pages, err := checkTable(pagesTable, "pages")
	if err != nil {
		return "", err
	}
	runs, err := checkTable(runsTable, "crawl_runs")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(schemaTemplate, pages, runs), nil
}

// EnsureSchema creates the page and run tables when they are missing.
func EnsureSchema(ctx context.Context, pool Pool, pagesTable, runsTable string) error {
	ddl, err := Schema(pagesTable, runsTable)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
