package enrich_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refstream/refstream/internal/enrich"
)

const referenceText = `Harborline Freight Moves to Real-Time Shipment Tracking.
Harborline Freight, a Fortune 500 logistics company in the United States,
rebuilt its tracking stack on AWS and Snowflake, with dbt models feeding
the dashboards. The new pipeline delivers updates 10x faster than the
nightly batch it replaced and drove a 40% reduction in support tickets.
"We finally see every container the moment it moves, and our customers
see it too," said Dana Whitfield, VP of Data Engineering at Harborline.`

func TestStatic_Classify(t *testing.T) {
	t.Parallel()

	rec, err := enrich.Static{}.Classify(t.Context(),
		"https://vendor.example/customers/harborline-freight", referenceText)
	require.NoError(t, err)

	assert.Equal(t, "Harborline Freight", rec.CustomerName)
	assert.Equal(t, "Enterprise (>5000 employees)", rec.CompanySize)
	assert.Equal(t, "North America", rec.Region)
	assert.Equal(t, "United States", rec.Country)
	assert.Contains(t, rec.TechStack, "AWS")
	assert.Contains(t, rec.TechStack, "Snowflake")
	assert.Contains(t, rec.TechStack, "dbt")
	assert.Contains(t, rec.QuotedText, "every container")
	assert.NotEmpty(t, rec.Summary)

	metrics := make([]string, 0, len(rec.Outcomes))
	for _, o := range rec.Outcomes {
		metrics = append(metrics, o.Metric)
	}
	assert.Contains(t, metrics, "10x faster")
	assert.Contains(t, metrics, "40% reduction")

	require.NotEmpty(t, rec.Personas)
	assert.Equal(t, "Dana Whitfield", rec.Personas[0].Name)
	assert.Equal(t, "VP of Data Engineering", rec.Personas[0].Title)
	assert.Equal(t, "VP", rec.Personas[0].Seniority)
}

func TestStatic_Seniority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want string
	}{
		{`"Great," said Ana Ruiz, Chief Technology Officer at Initech.`, "C-Level"},
		{`"Great," said Bo Lindqvist, CTO of Initech.`, "C-Level"},
		{`"Great," said Kim Osei, Director of Operations at Initech.`, "Director"},
		{`"Great," said Lee Park, Engineering Manager at Initech.`, "Manager"},
		{`"Great," said Max Webb, Staff Engineer at Initech.`, "Individual Contributor"},
	}
	for _, tc := range cases {
		rec, err := enrich.Static{}.Classify(t.Context(), itemURI, tc.text)
		require.NoError(t, err)
		require.NotEmpty(t, rec.Personas, "text: %s", tc.text)
		assert.Equal(t, tc.want, rec.Personas[0].Seniority, "text: %s", tc.text)
	}
}

func TestStatic_Defaults(t *testing.T) {
	t.Parallel()

	rec, err := enrich.Static{}.Classify(t.Context(),
		"https://vendor.example/case-studies/quiet-story/", "Nothing notable happened.")
	require.NoError(t, err)

	assert.Equal(t, "Quiet Story", rec.CustomerName, "trailing slash does not break the slug")
	assert.Equal(t, "Unknown", rec.Region)
	assert.Equal(t, "Unknown", rec.CompanySize)
	assert.Empty(t, rec.Country)
	assert.Empty(t, rec.TechStack)
	assert.Empty(t, rec.Personas)
}

func TestStatic_NeverFails(t *testing.T) {
	t.Parallel()

	rec, err := enrich.Static{}.Classify(t.Context(), "://not a uri", "")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", rec.CustomerName)
}
