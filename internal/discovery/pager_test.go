package discovery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refstream/refstream/internal/discovery"
	"github.com/refstream/refstream/internal/vendors"
)

func pagerFor(t *testing.T, pg *vendors.Pagination) discovery.Pager {
	t.Helper()

	pager, err := discovery.NewPager(&vendors.Profile{
		Name:            "vendorx",
		Website:         "https://vendor.example",
		DiscoveryMethod: vendors.MethodPagination,
		Pagination:      pg,
	})
	require.NoError(t, err)
	return pager
}

func TestOffsetPager(t *testing.T) {
	t.Parallel()

	pager := pagerFor(t, &vendors.Pagination{
		Style:   vendors.StyleOffset,
		BaseURL: "https://vendor.example/en/customers/all-customers/",
	})

	assert.Equal(t,
		"https://vendor.example/en/customers/all-customers/?page=0&pageSize=12&offset=0",
		pager.PageURL(0))
	assert.Equal(t,
		"https://vendor.example/en/customers/all-customers/?page=3&pageSize=12&offset=36",
		pager.PageURL(3))
}

func TestOffsetPager_CustomParams(t *testing.T) {
	t.Parallel()

	pager := pagerFor(t, &vendors.Pagination{
		Style:       vendors.StyleOffset,
		BaseURL:     "https://vendor.example/stories",
		PageParam:   "p",
		SizeParam:   "limit",
		OffsetParam: "skip",
		PageSize:    20,
	})

	assert.Equal(t, "https://vendor.example/stories?p=2&limit=20&skip=40", pager.PageURL(2))
}

func TestPageNumberPager_StartIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		start int
		page  int
		want  string
	}{
		{"zero based", 0, 0, "https://vendor.example/stories?page=0"},
		{"one based first page", 1, 0, "https://vendor.example/stories?page=1"},
		{"one based later page", 1, 3, "https://vendor.example/stories?page=4"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pager := pagerFor(t, &vendors.Pagination{
				Style:      vendors.StylePageNumber,
				BaseURL:    "https://vendor.example/stories",
				StartIndex: tc.start,
			})
			assert.Equal(t, tc.want, pager.PageURL(tc.page))
		})
	}
}

func TestPageNumberPager_BaseWithQuery(t *testing.T) {
	t.Parallel()

	pager := pagerFor(t, &vendors.Pagination{
		Style:   vendors.StylePageNumber,
		BaseURL: "https://vendor.example/stories?tab=all",
	})

	assert.Equal(t, "https://vendor.example/stories?tab=all&page=2", pager.PageURL(2))
}

func TestPathPager(t *testing.T) {
	t.Parallel()

	t.Run("relative template anchors to website", func(t *testing.T) {
		t.Parallel()

		pager := pagerFor(t, &vendors.Pagination{
			Style:      vendors.StylePathTemplate,
			Template:   "/customers/page/{page}",
			StartIndex: 1,
		})
		assert.Equal(t, "https://vendor.example/customers/page/1", pager.PageURL(0))
		assert.Equal(t, "https://vendor.example/customers/page/4", pager.PageURL(3))
	})

	t.Run("absolute template used as is", func(t *testing.T) {
		t.Parallel()

		pager := pagerFor(t, &vendors.Pagination{
			Style:    vendors.StylePathTemplate,
			Template: "https://stories.vendor.example/archive/{page}",
		})
		assert.Equal(t, "https://stories.vendor.example/archive/0", pager.PageURL(0))
	})
}

func TestNewPager_Errors(t *testing.T) {
	t.Parallel()

	var cfgErr *vendors.ConfigError

	_, err := discovery.NewPager(&vendors.Profile{Name: "vendorx"})
	require.ErrorAs(t, err, &cfgErr)

	_, err = discovery.NewPager(&vendors.Profile{
		Name:       "vendorx",
		Pagination: &vendors.Pagination{Style: "scroll"},
	})
	require.ErrorAs(t, err, &cfgErr)
}

func TestPager_MaxPages(t *testing.T) {
	t.Parallel()

	pager := pagerFor(t, &vendors.Pagination{
		Style:    vendors.StylePageNumber,
		BaseURL:  "https://vendor.example/stories",
		MaxPages: 7,
	})
	assert.Equal(t, 7, pager.MaxPages())
}
