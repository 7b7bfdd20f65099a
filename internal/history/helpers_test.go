package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

const headerRow = `<tr><td>rev.</td><td></td><td>flags</td><td>actions</td><td>by</td><td>date</td><td>comments</td></tr>`

func revisionRow(id, author, date, comment string) string {
	return fmt.Sprintf(
		`<tr id="revision-row-%[1]s"><td>%[1]s.</td><td><input type="radio"/></td><td>S</td><td>V S R</td>`+
			`<td><span class="printuser"><a href="http://www.wikidot.com/user:info/%[2]s">%[2]s</a></span></td>`+
			`<td><span class="odate">%[3]s</span></td><td>%[4]s</td></tr>`,
		id, author, date, comment,
	)
}

func deletedRow(id, date string) string {
	return fmt.Sprintf(
		`<tr id="revision-row-%[1]s"><td>%[1]s.</td><td></td><td>N</td><td>V</td>`+
			`<td><span class="printuser deleted">(account deleted)</span></td>`+
			`<td><span class="odate">%[2]s</span></td><td></td></tr>`,
		id, date,
	)
}

func listingJSON(t *testing.T, rows ...string) []byte {
	t.Helper()
	html := `<table class="page-history">` + headerRow + strings.Join(rows, "") + `</table>`
	body, err := json.Marshal(map[string]string{"status": "ok", "body": html})
	if err != nil {
		t.Fatalf("marshal listing: %v", err)
	}
	return body
}

func listingResponse(t *testing.T, rows ...string) crawler.FetchResponse {
	t.Helper()
	return crawler.FetchResponse{StatusCode: 200, Body: listingJSON(t, rows...)}
}

// idRange renders rows for ids hi down to lo, matching the listing's newest-first order.
func idRange(hi, lo int) []string {
	rows := make([]string, 0, hi-lo+1)
	for id := hi; id >= lo; id-- {
		rows = append(rows, revisionRow(fmt.Sprint(id), "editor", "01 Jan 2015 10:00", "edit"))
	}
	return rows
}
