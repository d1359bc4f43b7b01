package ingest

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// maxPageRunes caps extracted page text. Documentation index pages can be
// enormous; a bounded slice per page keeps embedding cost predictable.
const maxPageRunes = 5000

// contentTags are the elements worth keeping from a documentation page when
// readability extraction comes up empty.
var contentTags = "h1, h2, h3, p, li, code, pre"

// Page is one fetched and extracted documentation page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// ExtractPage pulls title and readable text out of raw HTML.
//
// go-readability handles most documentation layouts. When it fails or finds
// nothing, a selector walk over main/article content tags is the fallback.
// The result text is capped at maxPageRunes.
func ExtractPage(html []byte, pageURL *url.URL) Page {
	p := Page{URL: pageURL.String()}

	if article, err := readability.FromReader(bytes.NewReader(html), pageURL); err == nil {
		p.Title = strings.TrimSpace(article.Title)
		p.Text = capRunes(normalizeWhitespace(article.TextContent), maxPageRunes)
	}

	if p.Text != "" && p.Title != "" {
		return p
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return p
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if p.Title == "" {
		p.Title = p.URL
	}
	if p.Text == "" {
		p.Text = capRunes(selectorText(doc), maxPageRunes)
	}
	return p
}

// selectorText walks the main content region and joins the text of the
// content tags, one line per element.
func selectorText(doc *goquery.Document) string {
	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("article").First()
	}

	var sel *goquery.Selection
	if root.Length() > 0 {
		sel = root.Find(contentTags)
	} else {
		sel = doc.Find(contentTags)
	}

	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if txt := normalizeWhitespace(s.Text()); txt != "" {
			parts = append(parts, txt)
		}
	})
	return strings.Join(parts, "\n")
}

// HarvestLinks returns same-domain links whose URL contains one of the
// keywords, resolved against base, deduplicated, base first. The slice is
// capped at limit entries.
func HarvestLinks(html []byte, base *url.URL, keywords []string, limit int) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return []string{base.String()}
	}

	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}

	links := []string{base.String()}
	seen := map[string]bool{base.String(): true}

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return true
		}
		resolved.Fragment = ""
		if resolved.Host != base.Host || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return true
		}

		cand := resolved.String()
		if seen[cand] || !matchesAny(strings.ToLower(cand), kws) {
			return true
		}
		seen[cand] = true
		links = append(links, cand)
		return len(links) < limit
	})

	if len(links) > limit {
		links = links[:limit]
	}
	return links
}

func matchesAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func capRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
