package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

func wikiPage(title string, pageID int, rating string, tags []string, content string) []byte {
	var tagLinks strings.Builder
	for _, tag := range tags {
		fmt.Fprintf(&tagLinks, `<a href="/system:page-tags/tag/%s">%s</a>`, tag, tag)
	}
	return []byte(fmt.Sprintf(`<html><head><title>%s</title>
<script>WIKIREQUEST.info.pageId = %d;</script></head>
<body>
<div class="rate-points">rating: <span class="number">%s</span></div>
<div id="page-content">%s</div>
<div class="page-tags"><span>%s</span></div>
</body></html>`, title, pageID, rating, content, tagLinks.String()))
}

func TestPageItem(t *testing.T) {
	t.Parallel()

	body := wikiPage("SCP-173 - SCP Foundation", 1956234, "+9876", []string{"scp", "euclid", "sculpture"},
		`<p>Item #: SCP-173</p>
<a href="/scp-172">prev</a>
<a href="https://scp-wiki.wikidot.com/scp-174#toc">next</a>
<a href="/scp-172">prev again</a>
<a href="/licensing-guide">license</a>
<a href="/scp-173">self</a>
<a href="https://example.com/elsewhere">external</a>`)

	rec, err := New("").Page(crawler.KindItem, "https://scp-wiki.wikidot.com/scp-173", body)
	require.NoError(t, err)
	page, ok := rec.(*crawler.Page)
	require.True(t, ok)

	require.Equal(t, crawler.KindItem, page.Kind)
	require.Equal(t, "1956234", page.PageID)
	require.Equal(t, "scp-173", page.Link)
	require.Equal(t, "SCP-173", page.Title)
	require.Equal(t, 9876, page.Rating)
	require.Equal(t, []string{"scp", "euclid", "sculpture"}, page.Tags)
	require.Equal(t, []string{"scp-172", "scp-174"}, page.References)
	require.Equal(t, "SCP-173", page.SCP)
	require.Equal(t, 173, page.SCPNumber)
	require.Equal(t, "series-1", page.Series)
	require.Contains(t, page.RawContent, `id="page-content"`)
	require.Equal(t, DefaultDomain, page.Domain)
}

func TestPageHubReturnsHub(t *testing.T) {
	t.Parallel()

	body := wikiPage("Alpha Hub - SCP Foundation", 77, "12", []string{"hub", "tale"},
		`<a href="/alpha-hub/p/2">2</a><a href="/alpha-hub/p/3">3</a>`)
	rec, err := New(DefaultDomain).Page(crawler.KindHub, "https://scp-wiki.wikidot.com/alpha-hub", body)
	require.NoError(t, err)

	hub, ok := rec.(*crawler.Hub)
	require.True(t, ok)
	require.Equal(t, "alpha-hub", hub.OwnerKey())
	require.Equal(t, []string{"/alpha-hub/p/2", "/alpha-hub/p/3"}, PaginationLinks(hub.RawContent))
}

func TestPageRejections(t *testing.T) {
	t.Parallel()

	e := New("")
	tests := []struct {
		name string
		kind crawler.Kind
		url  string
		body []byte
		want error
	}{
		{
			name: "no tags",
			kind: crawler.KindTale,
			url:  "https://scp-wiki.wikidot.com/a-tale",
			body: wikiPage("A Tale", 1, "1", nil, "text"),
			want: ErrNoContent,
		},
		{
			name: "no content",
			kind: crawler.KindTale,
			url:  "https://scp-wiki.wikidot.com/a-tale",
			body: []byte(`<html><div class="page-tags"><a>tale</a></div></html>`),
			want: ErrNoContent,
		},
		{
			name: "tale tagged as item",
			kind: crawler.KindItem,
			url:  "https://scp-wiki.wikidot.com/scp-999",
			body: wikiPage("SCP-999", 1, "1", []string{"scp", "tale"}, "text"),
			want: ErrKindMismatch,
		},
		{
			name: "excluded hub",
			kind: crawler.KindHub,
			url:  "https://scp-wiki.wikidot.com/canon-hub",
			body: wikiPage("Canon Hub", 1, "1", []string{"hub"}, "text"),
			want: ErrExcluded,
		},
		{
			name: "missing page id",
			kind: crawler.KindSupplement,
			url:  "https://scp-wiki.wikidot.com/supp",
			body: []byte(`<html><div id="page-content">x</div><div class="page-tags"><a>supplement</a></div></html>`),
			want: ErrMissingPageID,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := e.Page(tc.kind, tc.url, tc.body)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()

	require.True(t, Matches(crawler.KindGOI, []string{"goi-format"}))
	require.False(t, Matches(crawler.KindGOI, []string{"goi"}))
	require.True(t, Matches(crawler.KindSupplement, []string{"supplement"}))
	require.False(t, Matches(crawler.KindFragment, []string{"hub"}))
}

func TestRatingDefaultsToZero(t *testing.T) {
	t.Parallel()

	body := wikiPage("Tale", 5, "n/a", []string{"tale"}, "x")
	rec, err := New("").Page(crawler.KindTale, "https://scp-wiki.wikidot.com/tale", body)
	require.NoError(t, err)
	require.Zero(t, rec.(*crawler.Page).Rating)
}

func TestItemSeries(t *testing.T) {
	t.Parallel()

	primary := New("")
	require.Equal(t, "joke", primary.series("SCP-173-J", nil))
	require.Equal(t, "scp-001", primary.series("SCP-001", nil))
	require.Equal(t, "decommissioned", primary.series("SCP-1234-D", nil))
	require.Equal(t, "explained", primary.series("SCP-5678-EX", nil))
	require.Equal(t, "archived", primary.series("SCP-4321-ARC", nil))
	require.Equal(t, "international", primary.series("SCP-1000", []string{"international"}))
	require.Equal(t, "series-4", primary.series("SCP-3999", nil))
	require.Equal(t, "other", primary.series("SCP-99999", nil))

	intl := New("scp-int.wikidot.com")
	require.Equal(t, "FR", intl.series("SCP-123-FR", nil))
	require.Equal(t, "other", intl.series("SCP-123", nil))
}

func TestSCPIdentifierFallbacks(t *testing.T) {
	t.Parallel()

	require.Equal(t, "scp-3000", scpID("https://scp-wiki.wikidot.com/scp-3000", nil))
	require.Equal(t, "scp-001", scpID("https://scp-wiki.wikidot.com/jonathan-ball-s-proposal", nil))
	require.Equal(t, "scp-4000", scpID("https://scp-wiki.wikidot.com/taboo", []string{"4000"}))
	require.Equal(t, "unknown", scpID("https://scp-wiki.wikidot.com/odd", nil))
	require.Zero(t, scpNumber("UNKNOWN"))
}

func TestParseFragmentURL(t *testing.T) {
	t.Parallel()

	owner, page, ok := ParseFragmentURL("https://scp-wiki.wikidot.com/alpha-hub/p/12")
	require.True(t, ok)
	require.Equal(t, "alpha-hub", owner)
	require.Equal(t, 12, page)

	_, _, ok = ParseFragmentURL("https://scp-wiki.wikidot.com/alpha-hub")
	require.False(t, ok)
}

func TestFragmentLinks(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
<a href="/outside">not in content</a>
<div id="page-content">
<a href="/scp-173">a</a>
<a href="tale-one">b</a>
<a href="https://example.com">external</a>
<a href="#top">anchor</a>
<a href="javascript:;">js</a>
<a href="/alpha-hub/p/3">next</a>
<a>no href</a>
</div></body></html>`)

	links, err := FragmentLinks(body)
	require.NoError(t, err)
	require.Equal(t, []string{"scp-173", "tale-one"}, links)
}

func TestPaginationLinksDeduplicates(t *testing.T) {
	t.Parallel()

	raw := `<a href="/beta-hub/p/2">2</a><a href="/beta-hub/p/2">2</a><a href="/other/p/2">x</a>`
	require.Equal(t, []string{"/beta-hub/p/2"}, PaginationLinks(raw))
}

func TestLockedItemRatingIsPinned(t *testing.T) {
	t.Parallel()

	body := wikiPage("SCP-2721 - SCP Foundation", 77, "-300", []string{"scp", "keter"}, "content")
	rec, err := New("").Page(crawler.KindItem, "https://scp-wiki.wikidot.com/scp-2721", body)
	require.NoError(t, err)
	require.Equal(t, 200, rec.(*crawler.Page).Rating)

	rec, err = New("").Page(crawler.KindItem, "https://scp-wiki.wikidot.com/scp-2722", body)
	require.NoError(t, err)
	require.Equal(t, -300, rec.(*crawler.Page).Rating)
}

func TestSplashPageReturnsRedirect(t *testing.T) {
	t.Parallel()

	body := wikiPage("SCP-597 - SCP Foundation", 597, "10", []string{"scp", "splash", "adult"},
		`<div id="u-adult-warning"><a href="/scp-597/offset/1">continue</a></div>`)
	_, err := New("").Page(crawler.KindItem, "https://scp-wiki.wikidot.com/scp-597", body)
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	require.Equal(t, "/scp-597/offset/1", redirect.Path)

	// Without the adult tag, or without the warning link, the page is parsed as is.
	plain := wikiPage("SCP-597 - SCP Foundation", 597, "10", []string{"scp", "splash"},
		`<div id="u-adult-warning"><a href="/scp-597/offset/1">continue</a></div>`)
	_, err = New("").Page(crawler.KindItem, "https://scp-wiki.wikidot.com/scp-597", plain)
	require.NoError(t, err)

	noLink := wikiPage("SCP-597 - SCP Foundation", 597, "10", []string{"scp", "splash", "adult"}, "real content")
	_, err = New("").Page(crawler.KindItem, "https://scp-wiki.wikidot.com/scp-597/offset/1", noLink)
	require.NoError(t, err)
}

func TestTitles(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body><div class="content-panel"><ul>
<li><a href="/scp-001">SCP-001</a> - Proposals</li>
<li><a href="/scp-5309">SCP-5309</a> - [REDACTED]</li>
<li><a href="/taboo">taboo</a></li>
<li><a href="/wanderers-library">Wanderer's Library</a></li>
<li><a href="/scp-003">SCP-003</a></li>
<li>SCP-004 - no link</li>
</ul></div>
<ul><li><a href="/elsewhere">not an index entry</a></li></ul>
</body></html>`)

	index, err := New("scp-int.wikidot.com").Titles(body)
	require.NoError(t, err)
	require.Equal(t, []crawler.Title{
		{SCP: "SCP-001", Title: "Proposals", Link: "scp-001", Domain: "scp-int.wikidot.com"},
		{SCP: "SCP-5309", Title: "SCP-5309 is not to exist.", Link: "scp-5309", Domain: "scp-int.wikidot.com"},
		{SCP: "SCP-4000", Title: "Taboo", Link: "taboo", Domain: "scp-int.wikidot.com"},
		{SCP: "WANDERERS-LIBRARY", Title: "Wanderer's Library", Link: "wanderers-library", Domain: "scp-int.wikidot.com"},
		{SCP: "SCP-003", Title: "SCP-003", Link: "scp-003", Domain: "scp-int.wikidot.com"},
	}, index.Titles)
	require.Len(t, index.Skipped, 1)
	require.Contains(t, index.Skipped[0], "SCP-004")
}
