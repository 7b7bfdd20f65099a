// Package history retrieves and accumulates paginated page revision histories.
package history

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

const (
	// DefaultMaxPages bounds the number of history listing pages fetched per page.
	DefaultMaxPages = 5
	// DefaultToken is the shared module-connector token sent as form field and cookie.
	DefaultToken = "123456"

	tokenName   = "wikidot_token7"
	moduleName  = "history/PageRevisionListModule"
	perPage     = 99999
	connectPath = "/ajax-module-connector.php"
)

// RequestBuilder produces history-listing fetch requests for one wiki domain.
type RequestBuilder struct {
	Domain string
	Token  string
	// BaseURL overrides https://<Domain> when set.
	BaseURL string
}

// Build returns the form-encoded POST for the given page id and listing page.
func (b RequestBuilder) Build(pageID string, page int) crawler.FetchRequest {
	token := b.Token
	if token == "" {
		token = DefaultToken
	}
	base := strings.TrimSuffix(b.BaseURL, "/")
	if base == "" {
		base = "https://" + b.Domain
	}
	return crawler.FetchRequest{
		URL:    base + connectPath,
		Method: http.MethodPost,
		Form: map[string]string{
			tokenName:    token,
			"page_id":    pageID,
			"moduleName": moduleName,
			"page":       strconv.Itoa(page),
			"perpage":    strconv.Itoa(perPage),
		},
		Cookies: []*http.Cookie{{Name: tokenName, Value: token}},
	}
}
