package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/JakeFAU/wikidot-crawler/internal/app"
	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

func TestParseTargets(t *testing.T) {
	t.Parallel()

	got, err := parseTargets([]string{"item=https://scp-wiki.wikidot.com/scp-173", " hub = https://scp-wiki.wikidot.com/tales-hub "})
	require.NoError(t, err)
	require.Equal(t, []crawler.Target{
		{URL: "https://scp-wiki.wikidot.com/scp-173", Kind: crawler.KindItem},
		{URL: "https://scp-wiki.wikidot.com/tales-hub", Kind: crawler.KindHub},
	}, got)

	_, err = parseTargets([]string{"https://scp-wiki.wikidot.com/scp-173"})
	require.ErrorContains(t, err, "want kind=url")
	_, err = parseTargets([]string{"fragment=https://x"})
	require.ErrorContains(t, err, "unknown kind")
}

func TestCrawlCommandPrintsSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"body":"<table><tr id=\"revision-row-1\"><td>0.</td><td></td><td></td><td></td>` +
				`<td><a href=\"/user:info/ed\">ed</a></td><td>01 Jan 2020 10:00</td><td>new</td></tr></table>"}`))
			return
		}
		_, _ = w.Write([]byte(`<html><script>WIKIREQUEST.info.pageId = 7;</script>` +
			`<div id="page-content">a tale</div><div class="page-tags"><a>tale</a></div></html>`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
server:
  enabled: false
crawler:
  concurrency: 2
wiki:
  domain: `+strings.TrimPrefix(srv.URL, "http://")+`
  base_url: `+srv.URL+`
storage:
  backend: local
  base_dir: `+filepath.Join(dir, "records")+`
logging:
  development: false
  level: error
`), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "crawl", "--target", "tale=" + srv.URL + "/a-tale"})
	_, err := execute(root)
	require.NoError(t, err)

	var summary crawler.RunSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.Equal(t, crawler.RunFinished, summary.Status)
	require.EqualValues(t, 1, summary.Emitted)

	_, err = os.Stat(filepath.Join(dir, "records", "tale", "a-tale.json"))
	require.NoError(t, err)
}

func TestCrawlCommandRequiresTargets(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  enabled: false\nstorage:\n  backend: memory\n"), 0o600))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "crawl"})
	cmd, err := execute(root)
	require.EqualError(t, err, "no targets configured")

	// The failed command still shut its tracer provider down.
	tp, ok := cmd.Context().Value(tracerKey).(*sdktrace.TracerProvider)
	require.True(t, ok)
	_, span := tp.Tracer("test").Start(context.Background(), "after-shutdown")
	require.False(t, span.IsRecording())
	span.End()
	appInstance, ok := cmd.Context().Value(appKey).(*app.App)
	require.True(t, ok)
	require.True(t, appInstance.Closed())
}
