package fetch_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refstream/refstream/internal/fetch"
)

const caseStudyHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Acme Cuts Churn by 40%</title>
  <style>.hero { color: red; }</style>
</head>
<body>
  <nav>Home Products Customers</nav>
  <header>Acme main navigation</header>
  <article>
    <h1>Acme Cuts Churn by 40%</h1>
    <p>Acme adopted the platform in 2023 and reduced churn by forty percent within two quarters.</p>
    <script>trackPageView();</script>
  </article>
  <footer>Copyright Acme</footer>
</body>
</html>`

func TestFromHTML(t *testing.T) {
	t.Parallel()

	res, err := fetch.FromHTML("https://acme.example/customers/acme", caseStudyHTML, fetch.EnginePrimary)
	require.NoError(t, err)

	assert.Equal(t, "Acme Cuts Churn by 40%", res.Title)
	assert.Equal(t, fetch.EnginePrimary, res.Engine)
	assert.Contains(t, res.Payload, "reduced churn by forty percent")
	assert.NotContains(t, res.Payload, "trackPageView")
	assert.NotContains(t, res.Payload, "Home Products Customers")
	assert.NotContains(t, res.Payload, "Copyright Acme")
	assert.Equal(t, len(strings.Fields(res.Payload)), res.WordCount)
	assert.False(t, res.FetchedAt.IsZero())
}

func TestFromHTML_EmptyBody(t *testing.T) {
	t.Parallel()

	res, err := fetch.FromHTML("https://acme.example/blank", "<html><head></head><body></body></html>", fetch.EngineSecondary)
	require.NoError(t, err)
	assert.Zero(t, res.WordCount)
	assert.Empty(t, res.Payload)
}

func TestDetectBlock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		html    string
		extra   []string
		blocked bool
	}{
		{
			name:    "cloudflare interstitial",
			html:    "<html><body><h1>Just a moment...</h1></body></html>",
			blocked: true,
		},
		{
			name:    "browser check",
			html:    "<html><body>Checking your browser before accessing the site.</body></html>",
			blocked: true,
		},
		{
			name:    "vendor specific marker",
			html:    "<html><body>Request flagged by PerimeterShield</body></html>",
			extra:   []string{"perimetershield"},
			blocked: true,
		},
		{
			name:    "ordinary article",
			html:    caseStudyHTML,
			blocked: false,
		},
		{
			name:    "empty extra markers are ignored",
			html:    caseStudyHTML,
			extra:   []string{""},
			blocked: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			marker, blocked := fetch.DetectBlock(tc.html, tc.extra)
			assert.Equal(t, tc.blocked, blocked)
			if tc.blocked {
				assert.NotEmpty(t, marker)
			}
		})
	}
}
