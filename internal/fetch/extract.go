package fetch

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// blockMarkers are phrases that identify anti-bot interstitials.
// Vendors with unusual walls can extend the list per profile.
var blockMarkers = []string{
	"checking your browser",
	"just a moment",
	"ddos protection by cloudflare",
	"attention required! | cloudflare",
	"cf-browser-verification",
	"enable javascript and cookies to continue",
	"access denied",
	"captcha",
	"please wait...",
}

// DetectBlock scans markup for anti-bot markers. extra holds
// vendor-specific markers checked after the built-in set.
func DetectBlock(html string, extra []string) (string, bool) {
	lower := strings.ToLower(html)
	for _, m := range blockMarkers {
		if strings.Contains(lower, m) {
			return m, true
		}
	}
	for _, m := range extra {
		if m == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(m)) {
			return m, true
		}
	}
	return "", false
}

// FromHTML parses markup and extracts the title and readable body text.
func FromHTML(uri, html, engine string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	// Strip non-content elements before reading body text.
	doc.Find("script, style, noscript, nav, footer, header, iframe").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	words := strings.Fields(doc.Find("body").Text())
	payload := strings.Join(words, " ")

	return &Result{
		URI:       uri,
		Title:     title,
		Payload:   payload,
		HTML:      html,
		WordCount: len(words),
		Engine:    engine,
		FetchedAt: time.Now().UTC(),
	}, nil
}
