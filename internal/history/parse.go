package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

// Structural failures of a history listing response.
var (
	ErrEmptyResponse = errors.New("empty history response")
	ErrMissingBody   = errors.New("missing body in history response")
	ErrEmptyBody     = errors.New("empty body in history response")
	ErrMissingTable  = errors.New("missing table in history html")
)

const (
	colOrdinal = 0
	colAuthor  = 4
	colDate    = 5
	colComment = 6
	minColumns = colComment + 1

	deletedAuthor = "deleted"
)

type envelope struct {
	Body *string `json:"body"`
}

// RowError reports a table row that could not be turned into a revision.
type RowError struct {
	Row    string
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("revision row: %s", e.Reason)
}

// Listing is the decoded content of one history-listing response.
type Listing struct {
	Revisions []crawler.Revision
	RowErrors []*RowError
}

// ParseListing decodes the JSON envelope and parses every identified table row.
// Structural problems are returned as errors; bad rows are collected in RowErrors.
func ParseListing(body []byte) (Listing, error) {
	if strings.TrimSpace(string(body)) == "" {
		return Listing{}, ErrEmptyResponse
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Listing{}, fmt.Errorf("decode history envelope: %w", err)
	}
	if env.Body == nil {
		return Listing{}, ErrMissingBody
	}
	if strings.TrimSpace(*env.Body) == "" {
		return Listing{}, ErrEmptyBody
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(*env.Body))
	if err != nil {
		return Listing{}, fmt.Errorf("parse history html: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return Listing{}, ErrMissingTable
	}

	var listing Listing
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if _, ok := row.Attr("id"); !ok {
			return
		}
		rev, err := ParseRow(row)
		if err != nil {
			var rowErr *RowError
			if errors.As(err, &rowErr) {
				listing.RowErrors = append(listing.RowErrors, rowErr)
			}
			return
		}
		listing.Revisions = append(listing.Revisions, rev)
	})
	return listing, nil
}

// ParseRow extracts one revision from a history table row.
func ParseRow(row *goquery.Selection) (crawler.Revision, error) {
	cells := row.Find("td")
	if cells.Length() < minColumns {
		return crawler.Revision{}, newRowError(row, fmt.Sprintf("expected %d cells, got %d", minColumns, cells.Length()))
	}
	id := strings.TrimSpace(strings.ReplaceAll(cells.Eq(colOrdinal).Text(), ".", ""))
	if id == "" {
		return crawler.Revision{}, newRowError(row, "empty revision id")
	}

	rev := crawler.Revision{
		ID:      id,
		Date:    strings.TrimSpace(cells.Eq(colDate).Text()),
		Comment: cells.Eq(colComment).Text(),
	}
	if strings.Contains(row.Text(), deletedAuthor) {
		rev.Author = deletedAuthor
		return rev, nil
	}

	authorCell := cells.Eq(colAuthor)
	rev.Author = strings.TrimSpace(authorCell.Text())
	href, ok := authorCell.Find("a[href]").First().Attr("href")
	if !ok {
		return crawler.Revision{}, newRowError(row, "author link missing")
	}
	rev.AuthorLink = strings.TrimSpace(href)
	return rev, nil
}

func newRowError(row *goquery.Selection, reason string) *RowError {
	raw, err := goquery.OuterHtml(row)
	if err != nil {
		raw = row.Text()
	}
	return &RowError{Row: raw, Reason: reason}
}
