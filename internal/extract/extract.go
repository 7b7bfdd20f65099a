// Package extract turns fetched wiki HTML into crawl records.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

// DefaultDomain is the main wiki host.
const DefaultDomain = "scp-wiki.wikidot.com"

const titleSuffix = " - SCP Foundation"

// SCP-2721 was locked after vote brigading; its rating is pinned.
const (
	lockedRatingSCP = 2721
	lockedRating    = 200
)

var (
	// ErrNoContent means the page lacks a content block or tags.
	ErrNoContent = errors.New("page has no content or tags")
	// ErrKindMismatch means the page tags do not match the requested kind.
	ErrKindMismatch = errors.New("page tags do not match kind")
	// ErrMissingPageID means the WIKIREQUEST page id could not be found.
	ErrMissingPageID = errors.New("page id not found")
	// ErrExcluded means the page is a listing the crawl deliberately skips.
	ErrExcluded = errors.New("page excluded")
)

// RedirectError is returned for adult-content splash pages. Path leads to the
// page carrying the real content.
type RedirectError struct {
	Path string
}

func (e *RedirectError) Error() string {
	return "splash page redirects to " + e.Path
}

var (
	pageIDPattern      = regexp.MustCompile(`WIKIREQUEST\.info\.pageId\s+=\s+(\d+);`)
	scpIdentifier      = regexp.MustCompile(`scp(?:-[\w|\d]*)?-\d{3,4}(?:-[\w|\d]*)?`)
	firstNumber        = regexp.MustCompile(`[0-9]+`)
	indexTitlePattern  = regexp.MustCompile(`(?m)^.* - (.*)$`)
	paginationLinkRe   = regexp.MustCompile(`href="(/[^"]*-hub/p/\d+)"`)
	fragmentURLPattern = regexp.MustCompile(`/([^/]+-hub)/p/(\d+)`)
)

var skippedReferences = []string{"", "licensing-guide", "licensing-master-list"}

var excludedHubs = []string{
	"new-pages-feed",
	"shortest-pages-this-month",
	"top-rated-pages-this-month",
	"user-curated-lists",
	"curated-tale-series",
	"foundation-tales",
	"groups-of-interest",
	"canon-hub",
	"young-and-under-30",
	"tales-by-title",
	"tales-by-author",
}

// Extractor builds page records for one wiki domain.
type Extractor struct {
	Domain string
}

// New returns an Extractor for domain, defaulting to the main wiki.
func New(domain string) Extractor {
	if domain == "" {
		domain = DefaultDomain
	}
	return Extractor{Domain: domain}
}

// Page parses body as a page of the given kind. Hubs come back as
// *crawler.Hub, everything else as *crawler.Page.
func (e Extractor) Page(kind crawler.Kind, pageURL string, body []byte) (crawler.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}

	content := doc.Find("#page-content").First()
	tags := Tags(doc)
	if content.Length() == 0 || len(tags) == 0 {
		return nil, ErrNoContent
	}
	if path, ok := SplashRedirect(doc, tags); ok {
		return nil, &RedirectError{Path: path}
	}
	if !Matches(kind, tags) {
		return nil, fmt.Errorf("%w: %s", ErrKindMismatch, kind)
	}

	link := e.SimpleLink(pageURL)
	if kind == crawler.KindHub && (slices.Contains(excludedHubs, link) || strings.HasPrefix(link, "scp-series")) {
		return nil, fmt.Errorf("%w: %s", ErrExcluded, link)
	}

	pageID, ok := PageID(body)
	if !ok {
		return nil, ErrMissingPageID
	}
	raw, err := goquery.OuterHtml(content)
	if err != nil {
		return nil, fmt.Errorf("render page content: %w", err)
	}

	page := crawler.Page{
		Kind:       kind,
		PageID:     pageID,
		Link:       link,
		URL:        pageURL,
		Domain:     e.Domain,
		Title:      Title(doc),
		Tags:       tags,
		Rating:     Rating(doc),
		RawContent: raw,
		References: e.References(content, pageURL),
	}

	switch kind {
	case crawler.KindHub:
		return &crawler.Hub{Page: page}, nil
	case crawler.KindItem:
		page.SCP = strings.ToUpper(scpID(pageURL, tags))
		page.SCPNumber = scpNumber(page.SCP)
		page.Series = e.series(page.SCP, tags)
		if page.SCPNumber == lockedRatingSCP {
			page.Rating = lockedRating
		}
	}
	return &page, nil
}

// SplashRedirect returns the path behind the adult-content warning of a
// splash page.
func SplashRedirect(doc *goquery.Document, tags []string) (string, bool) {
	if !slices.Contains(tags, "splash") || !slices.Contains(tags, "adult") {
		return "", false
	}
	href, ok := doc.Find("#u-adult-warning a[href]").First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", false
	}
	return href, true
}

// TitleIndex is the content of one SCP series index page.
type TitleIndex struct {
	Titles []crawler.Title
	// Skipped holds the markup of listing entries without a link.
	Skipped []string
}

// Titles reads the numbered entries of a series index page.
func (e Extractor) Titles(body []byte) (TitleIndex, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return TitleIndex{}, fmt.Errorf("parse index html: %w", err)
	}
	var index TitleIndex
	doc.Find(".content-panel > ul > li").Each(func(_ int, li *goquery.Selection) {
		anchor := li.ChildrenFiltered("a[href]").First()
		href, _ := anchor.Attr("href")
		scp := strings.TrimSpace(anchor.Text())
		if scp == "" || strings.TrimSpace(href) == "" {
			raw, _ := goquery.OuterHtml(li)
			index.Skipped = append(index.Skipped, raw)
			return
		}
		link := strings.Trim(strings.TrimSpace(href), "/")

		var title string
		upper := strings.ToUpper(scp)
		switch {
		case scp == "taboo":
			scp, title = "SCP-4000", "Taboo"
		case strings.HasPrefix(upper, "SCP-5309"):
			scp, title = "SCP-5309", "SCP-5309 is not to exist."
		case !strings.HasPrefix(upper, "SCP-"):
			scp, title = strings.ToUpper(link), scp
		default:
			title = scp
			if m := indexTitlePattern.FindStringSubmatch(li.Text()); m != nil {
				title = strings.TrimSpace(m[1])
			}
		}
		index.Titles = append(index.Titles, crawler.Title{
			SCP:    scp,
			Title:  title,
			Link:   link,
			Domain: e.Domain,
		})
	})
	return index, nil
}

// Matches reports whether tags qualify a page as kind.
func Matches(kind crawler.Kind, tags []string) bool {
	switch kind {
	case crawler.KindItem:
		return slices.Contains(tags, "scp") && !slices.Contains(tags, "tale")
	case crawler.KindTale:
		return slices.Contains(tags, "tale")
	case crawler.KindHub:
		return slices.Contains(tags, "hub")
	case crawler.KindGOI:
		return slices.Contains(tags, "goi-format")
	case crawler.KindSupplement:
		return slices.Contains(tags, "supplement")
	default:
		return false
	}
}

// PageID finds the wiki's numeric page id in the raw page source.
func PageID(body []byte) (string, bool) {
	m := pageIDPattern.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// Tags returns the page tag names.
func Tags(doc *goquery.Document) []string {
	var tags []string
	doc.Find(".page-tags a").Each(func(_ int, s *goquery.Selection) {
		if tag := strings.TrimSpace(s.Text()); tag != "" {
			tags = append(tags, tag)
		}
	})
	return tags
}

// Title returns the document title without the site suffix.
func Title(doc *goquery.Document) string {
	title := doc.Find("title").First().Text()
	return strings.TrimSuffix(title, titleSuffix)
}

// Rating parses the page rating, or 0 when absent.
func Rating(doc *goquery.Document) int {
	text := strings.TrimSpace(doc.Find(".rate-points .number").First().Text())
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0
	}
	return n
}

// SimpleLink strips the scheme and wiki host from a URL.
func (e Extractor) SimpleLink(raw string) string {
	raw = strings.TrimPrefix(raw, "http://"+e.Domain+"/")
	return strings.TrimPrefix(raw, "https://"+e.Domain+"/")
}

// References lists distinct same-domain links found in content, excluding
// licensing pages and the page itself.
func (e Extractor) References(content *goquery.Selection, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	self := e.SimpleLink(pageURL)
	seen := make(map[string]bool)
	var refs []string
	content.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		target, err := base.Parse(strings.TrimSpace(href))
		if err != nil || target.Host != e.Domain {
			return
		}
		if target.Scheme != "http" && target.Scheme != "https" {
			return
		}
		target.Fragment = ""
		link := e.SimpleLink(target.String())
		if slices.Contains(skippedReferences, link) || link == self || seen[link] {
			return
		}
		seen[link] = true
		refs = append(refs, link)
	})
	return refs
}

// PaginationLinks finds hub sub-page paths such as /foo-hub/p/2 in raw HTML.
func PaginationLinks(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range paginationLinkRe.FindAllStringSubmatch(raw, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

// ParseFragmentURL extracts the owning hub link and page number from a
// paginated hub URL.
func ParseFragmentURL(raw string) (owner string, page int, ok bool) {
	m := fragmentURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], n, true
}

// FragmentLinks lists the relative links in a paginated hub page's content.
func FragmentLinks(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse fragment html: %w", err)
	}
	var links []string
	doc.Find("#page-content").First().Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "http") || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		link := strings.TrimLeft(href, "/")
		if strings.Contains(link, "/p/") {
			return
		}
		links = append(links, link)
	})
	return links, nil
}

func scpID(pageURL string, tags []string) string {
	if m := scpIdentifier.FindString(pageURL); m != "" {
		return m
	}
	if strings.Contains(pageURL, "proposal") || slices.Contains(tags, "001-proposal") {
		return "scp-001"
	}
	if strings.HasSuffix(pageURL, "taboo") && slices.Contains(tags, "4000") {
		return "scp-4000"
	}
	return "unknown"
}

func scpNumber(scp string) int {
	m := firstNumber.FindString(scp)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

func (e Extractor) series(scp string, tags []string) string {
	lower := strings.ToLower(scp)
	if strings.HasSuffix(lower, "-j") || slices.Contains(tags, "joke") {
		return "joke"
	}
	if e.Domain != DefaultDomain {
		// Branch wikis name series by their language or branch code.
		for _, chunk := range strings.Split(scp, "-") {
			if strings.ToLower(chunk) == "scp" {
				continue
			}
			if _, err := strconv.Atoi(chunk); err != nil {
				return chunk
			}
		}
		return "other"
	}

	switch {
	case strings.Contains(lower, "proposal") || lower == "scp-001":
		return "scp-001"
	case strings.HasSuffix(lower, "-d") || slices.Contains(tags, "decommissioned"):
		return "decommissioned"
	case strings.HasSuffix(lower, "-ex") || slices.Contains(tags, "explained"):
		return "explained"
	case strings.HasSuffix(lower, "-arc") || slices.Contains(tags, "archived"):
		return "archived"
	case slices.Contains(tags, "international"):
		return "international"
	}
	number := scpNumber(scp)
	for x := 1; x < 20; x++ {
		if number < x*1000 {
			return "series-" + strconv.Itoa(x)
		}
	}
	return "other"
}
