package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	"github.com/JakeFAU/wikidot-crawler/internal/storage"
)

func TestPageStoreUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPageStore(mock, "")
	require.NoError(t, err)

	fetched := time.Unix(1700000000, 0).UTC()
	hub := &crawler.Hub{
		Page: crawler.Page{
			Kind:            crawler.KindHub,
			PageID:          "11",
			Link:            "alpha-hub",
			Domain:          "scp-wiki.wikidot.com",
			Title:           "Alpha Hub",
			Tags:            []string{"hub"},
			Rating:          12,
			History:         []crawler.Revision{{ID: "0"}},
			HistoryComplete: true,
			CreatedAt:       "01 Jan 2020 10:00",
			Creator:         "ed",
			ContentHash:     "abc",
			RunID:           "run-1",
			FetchedAt:       fetched,
		},
		PaginatedContent: []crawler.FragmentPage{{Page: 2, Links: []string{"x"}}},
	}
	document, err := storage.Encode(hub)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO pages").
		WithArgs(
			"scp-wiki.wikidot.com",
			"alpha-hub",
			"hub",
			"11",
			"Alpha Hub",
			[]string{"hub"},
			12,
			true,
			1,
			"01 Jan 2020 10:00",
			"ed",
			"abc",
			"run-1",
			fetched,
			document,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Write(context.Background(), hub))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPageStoreRejectsUnsupportedRecords(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewPageStore(mock, "pages")
	require.NoError(t, err)

	require.ErrorIs(t, store.Write(context.Background(), &crawler.Fragment{OwnerKey: "a-hub"}), crawler.ErrUnsupportedRecord)
	require.ErrorIs(t, store.Write(context.Background(), &crawler.Title{SCP: "SCP-002", Link: "scp-002"}), crawler.ErrUnsupportedRecord)
	require.ErrorIs(t, store.Write(context.Background(), &crawler.Page{Kind: crawler.KindTale}), storage.ErrMissingKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPageStoreWrapsExecErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewPageStore(mock, "pages")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO pages").WillReturnError(errors.New("conn reset"))
	err = store.Write(context.Background(), &crawler.Page{Kind: crawler.KindTale, Link: "t"})
	require.EqualError(t, err, "upsert page t: conn reset")
}

func TestStoresValidateConstruction(t *testing.T) {
	t.Parallel()

	_, err := NewPageStore(nil, "")
	require.Error(t, err)
	_, err = NewRunStore(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewPageStore(mock, "pages; DROP TABLE x")
	require.Error(t, err)
	_, err = NewRunStore(mock, "1runs")
	require.Error(t, err)
}

func TestConnectRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), Config{})
	require.EqualError(t, err, "db.dsn is required")
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewRunStore(mock, "")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)

	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs("run-1", started, "running").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE crawl_runs").
		WithArgs(finished, "finished", int64(4), int64(3), int64(2), int64(1), int64(1), int64(0), (*string)(nil), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.StartRun(context.Background(), "run-1", started))
	require.NoError(t, store.FinishRun(context.Background(), crawler.RunSummary{
		RunID:             "run-1",
		Status:            crawler.RunFinished,
		FinishedAt:        finished,
		Emitted:           4,
		FragmentsBuffered: 3,
		FragmentsMerged:   2,
		FragmentsLate:     1,
		FragmentsOrphaned: 1,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreFinishUnknownRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewRunStore(mock, "crawl_runs")
	require.NoError(t, err)

	mock.ExpectExec("UPDATE crawl_runs").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = store.FinishRun(context.Background(), crawler.RunSummary{RunID: "missing", Error: "boom"})
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunStoreGetRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewRunStore(mock, "")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	msg := "sink down"
	columns := []string{
		"run_id", "status", "started_at", "finished_at", "records_emitted", "fragments_buffered",
		"fragments_merged", "fragments_late", "fragments_orphaned", "sink_errors", "error_message",
	}
	mock.ExpectQuery("SELECT run_id").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("run-1", "failed", started, &finished, int64(5), int64(2), int64(2), int64(0), int64(0), int64(3), &msg))

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, crawler.RunSummary{
		RunID:             "run-1",
		Status:            crawler.RunFailed,
		StartedAt:         started,
		FinishedAt:        finished,
		Emitted:           5,
		FragmentsBuffered: 2,
		FragmentsMerged:   2,
		SinkErrors:        3,
		Error:             "sink down",
	}, run)

	mock.ExpectQuery("SELECT run_id").WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	_, err = store.GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, ErrRunNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS pages .*CREATE TABLE IF NOT EXISTS crawl_runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, EnsureSchema(context.Background(), mock, "", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaUsesConfiguredTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS wiki_pages .*CREATE TABLE IF NOT EXISTS wiki_runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, EnsureSchema(context.Background(), mock, "wiki_pages", "wiki_runs"))
	require.NoError(t, mock.ExpectationsWereMet())

	ddl, err := Schema("wiki_pages", "wiki_runs")
	require.NoError(t, err)
	require.NotContains(t, ddl, "EXISTS pages ")
	require.NotContains(t, ddl, "EXISTS crawl_runs ")

	require.ErrorContains(t, EnsureSchema(context.Background(), mock, "pages; DROP", ""), "invalid table name")
}
