package history

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestParseListingRows(t *testing.T) {
	t.Parallel()

	listing, err := ParseListing(listingJSON(t,
		revisionRow("2", "Alice", "03 Mar 2020 12:00", "fix typo"),
		revisionRow("1", "Bob", "02 Mar 2020 11:00", ""),
		deletedRow("0", "01 Mar 2020 10:00"),
	))
	require.NoError(t, err)
	require.Empty(t, listing.RowErrors)
	require.Len(t, listing.Revisions, 3)

	first := listing.Revisions[0]
	require.Equal(t, "2", first.ID)
	require.Equal(t, "Alice", first.Author)
	require.Equal(t, "http://www.wikidot.com/user:info/Alice", first.AuthorLink)
	require.Equal(t, "03 Mar 2020 12:00", first.Date)
	require.Equal(t, "fix typo", first.Comment)

	deleted := listing.Revisions[2]
	require.Equal(t, "0", deleted.ID)
	require.Equal(t, "deleted", deleted.Author)
	require.Empty(t, deleted.AuthorLink)
}

func TestParseListingSkipsBadRowsOnly(t *testing.T) {
	t.Parallel()

	listing, err := ParseListing(listingJSON(t,
		revisionRow("3", "Alice", "03 Mar 2020 12:00", "ok"),
		`<tr id="revision-row-x"><td>2.</td><td>short</td></tr>`,
		`<tr id="revision-row-y"><td>1.</td><td></td><td></td><td></td><td>anon</td><td>today</td><td></td></tr>`,
		revisionRow("0", "Bob", "01 Mar 2020 10:00", "created"),
	))
	require.NoError(t, err)
	require.Len(t, listing.Revisions, 2)
	require.Len(t, listing.RowErrors, 2)
	require.Contains(t, listing.RowErrors[0].Row, "short")
	require.Equal(t, "author link missing", listing.RowErrors[1].Reason)
}

func TestParseListingStructuralFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "empty", body: "  \n", want: ErrEmptyResponse},
		{name: "missing body", body: `{"status":"ok"}`, want: ErrMissingBody},
		{name: "empty body", body: `{"body":""}`, want: ErrEmptyBody},
		{name: "no table", body: `{"body":"<div>nothing here</div>"}`, want: ErrMissingTable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseListing([]byte(tc.body))
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := ParseListing([]byte(`<html>not json</html>`))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrMissingBody))
	require.Contains(t, err.Error(), "decode history envelope")
}

func TestParseRowStripsOrdinalDots(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		"<table>" + revisionRow("12", "Carol", " 05 May 2021 09:15 ", "  spaced  ") + "</table>",
	))
	require.NoError(t, err)

	rev, err := ParseRow(doc.Find("tr").First())
	require.NoError(t, err)
	require.Equal(t, "12", rev.ID)
	require.Equal(t, "05 May 2021 09:15", rev.Date)
	require.Equal(t, "  spaced  ", rev.Comment)
}

func TestRequestBuilder(t *testing.T) {
	t.Parallel()

	req := RequestBuilder{Domain: "scp-wiki.wikidot.com"}.Build("42", 3)
	require.Equal(t, "https://scp-wiki.wikidot.com/ajax-module-connector.php", req.URL)
	require.Equal(t, "POST", req.Method)
	require.Equal(t, map[string]string{
		"wikidot_token7": "123456",
		"page_id":        "42",
		"moduleName":     "history/PageRevisionListModule",
		"page":           "3",
		"perpage":        "99999",
	}, req.Form)
	require.Len(t, req.Cookies, 1)
	require.Equal(t, "wikidot_token7", req.Cookies[0].Name)
	require.Equal(t, "123456", req.Cookies[0].Value)
}

func TestRequestBuilderBaseURLOverride(t *testing.T) {
	t.Parallel()

	req := RequestBuilder{Domain: "scp-wiki.wikidot.com", Token: "abc", BaseURL: "http://127.0.0.1:8080/"}.Build("7", 1)
	require.Equal(t, "http://127.0.0.1:8080/ajax-module-connector.php", req.URL)
	require.Equal(t, "abc", req.Form["wikidot_token7"])
	require.Equal(t, "abc", req.Cookies[0].Value)
}
