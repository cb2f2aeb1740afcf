package discovery

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// defaultLinkPatterns apply when a vendor configures none.
var defaultLinkPatterns = []string{"/customers/", "/case-study/", "/customer-story/"}

// landingSegments are terminal path segments naming a listing page
// rather than an item.
var landingSegments = map[string]struct{}{
	"customers":             {},
	"customer-stories":      {},
	"customer-case-studies": {},
	"case-study":            {},
	"case-studies":          {},
	"success-stories":       {},
}

// jsonPathPattern finds pathname fields inside escaped JSON payloads
// that client-rendered listing pages embed in script tags.
var jsonPathPattern = regexp.MustCompile(`\\"pathname\\":\\"(/[^\\"\s]+)\\"`)

// ExtractLinks pulls candidate item URIs out of listing markup.
// Include and exclude patterns are case-insensitive substring matches
// against the raw reference; matches are resolved against baseURL and
// canonicalized.
func ExtractLinks(markup, baseURL string, include, exclude []string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	set := make(map[string]struct{})

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup)); err == nil {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			addCandidate(set, base, href, include, exclude)
		})
	}
	for _, m := range jsonPathPattern.FindAllStringSubmatch(markup, -1) {
		addCandidate(set, base, m[1], include, exclude)
	}

	return sorted(set)
}

// FilterManifest applies the same pattern and shape rules to absolute
// manifest entries.
func FilterManifest(entries []string, baseURL string, include, exclude []string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, entry := range entries {
		addCandidate(set, base, entry, include, exclude)
	}
	return sorted(set)
}

func addCandidate(set map[string]struct{}, base *url.URL, href string, include, exclude []string) {
	href = strings.TrimSpace(href)
	if href == "" {
		return
	}
	lower := strings.ToLower(href)
	vendorPatterns := len(include) > 0
	if !vendorPatterns {
		include = defaultLinkPatterns
	}
	if !matchesAny(lower, include) || matchesAny(lower, exclude) {
		return
	}

	ref, err := url.Parse(href)
	if err != nil {
		return
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return
	}
	// The defaults match generic paths like /customers/ on any site, so
	// they only apply on the vendor's own host. Explicitly configured
	// patterns may point off-site.
	if !vendorPatterns && !sameHost(u.Hostname(), base.Hostname()) {
		return
	}
	u.Fragment = ""

	// Item pages live below the listing: require depth and skip
	// references that end at the listing segment itself.
	segs := pathSegments(u.Path)
	if len(segs) <= 1 {
		return
	}
	if _, landing := landingSegments[strings.ToLower(segs[len(segs)-1])]; landing {
		return
	}

	set[u.String()] = struct{}{}
}

func matchesAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// sameHost reports whether host belongs to the vendor's site, where
// subdomains in either direction count as the same site.
func sameHost(host, vendor string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	vendor = strings.TrimPrefix(strings.ToLower(vendor), "www.")
	if host == vendor {
		return true
	}
	return strings.HasSuffix(host, "."+vendor) || strings.HasSuffix(vendor, "."+host)
}

func pathSegments(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
