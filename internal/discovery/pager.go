package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/refstream/refstream/internal/vendors"
)

// Pager builds the listing-page address for a zero-based page index.
type Pager interface {
	PageURL(page int) string
	// MaxPages is the vendor-configured page cap; zero means none.
	MaxPages() int
}

const (
	defaultPageSize    = 12
	defaultPageParam   = "page"
	defaultSizeParam   = "pageSize"
	defaultOffsetParam = "offset"
)

// NewPager selects the address builder for the profile's pagination
// style.
func NewPager(p *vendors.Profile) (Pager, error) {
	pg := p.Pagination
	if pg == nil {
		return nil, &vendors.ConfigError{Vendor: p.Name, Field: "pagination", Msg: "required for pagination discovery"}
	}
	switch pg.Style {
	case vendors.StyleOffset:
		return &offsetPager{
			base:        pg.BaseURL,
			pageParam:   paramOr(pg.PageParam, defaultPageParam),
			sizeParam:   paramOr(pg.SizeParam, defaultSizeParam),
			offsetParam: paramOr(pg.OffsetParam, defaultOffsetParam),
			size:        sizeOr(pg.PageSize),
			max:         pg.MaxPages,
		}, nil
	case vendors.StylePageNumber:
		return &pageNumberPager{
			base:      pg.BaseURL,
			pageParam: paramOr(pg.PageParam, defaultPageParam),
			start:     pg.StartIndex,
			max:       pg.MaxPages,
		}, nil
	case vendors.StylePathTemplate:
		return &pathPager{
			template: expandTemplate(p.Website, pg.Template),
			start:    pg.StartIndex,
			max:      pg.MaxPages,
		}, nil
	default:
		return nil, &vendors.ConfigError{Vendor: p.Name, Field: "pagination.style", Msg: fmt.Sprintf("unknown style %q", pg.Style)}
	}
}

// offsetPager addresses pages through page, size, and derived offset
// query parameters, e.g. ?page=2&pageSize=12&offset=24.
type offsetPager struct {
	base        string
	pageParam   string
	sizeParam   string
	offsetParam string
	size        int
	max         int
}

func (o *offsetPager) PageURL(page int) string {
	return fmt.Sprintf("%s%s%s=%d&%s=%d&%s=%d",
		o.base, querySep(o.base),
		o.pageParam, page,
		o.sizeParam, o.size,
		o.offsetParam, page*o.size)
}

func (o *offsetPager) MaxPages() int { return o.max }

// pageNumberPager addresses pages through a single incrementing query
// parameter. StartIndex shifts the first page to 0 or 1 as the vendor
// counts.
type pageNumberPager struct {
	base      string
	pageParam string
	start     int
	max       int
}

func (p *pageNumberPager) PageURL(page int) string {
	return fmt.Sprintf("%s%s%s=%d", p.base, querySep(p.base), p.pageParam, page+p.start)
}

func (p *pageNumberPager) MaxPages() int { return p.max }

// pathPager substitutes the page number into a path segment, e.g.
// /customers/page/3.
type pathPager struct {
	template string
	start    int
	max      int
}

func (p *pathPager) PageURL(page int) string {
	return strings.ReplaceAll(p.template, "{page}", strconv.Itoa(page+p.start))
}

func (p *pathPager) MaxPages() int { return p.max }

// expandTemplate anchors a relative template under the vendor website.
func expandTemplate(website, template string) string {
	if strings.Contains(template, "://") {
		return template
	}
	if !strings.HasPrefix(template, "/") {
		template = "/" + template
	}
	return strings.TrimRight(website, "/") + template
}

func querySep(base string) string {
	if strings.Contains(base, "?") {
		return "&"
	}
	return "?"
}

func paramOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func sizeOr(v int) int {
	if v <= 0 {
		return defaultPageSize
	}
	return v
}
