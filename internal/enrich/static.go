package enrich

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// staticScanLimit bounds how much text the rule patterns scan.
const staticScanLimit = 8000

const maxStaticOutcomes = 3

type labelRule struct {
	pattern *regexp.Regexp
	label   string
}

// Size labels follow the company-size taxonomy.
var sizePatterns = []labelRule{
	{regexp.MustCompile(`(?i)\b(fortune\s+500|enterprise|thousands\s+of\s+employees)\b`), "Enterprise (>5000 employees)"},
	{regexp.MustCompile(`(?i)\b(mid-?size|mid-?market|hundreds\s+of\s+employees)\b`), "Mid-Market (500-5000 employees)"},
	{regexp.MustCompile(`(?i)\b(startup|small\s+business|smb)\b`), "SMB (<500 employees)"},
}

var industryPatterns = []labelRule{
	{regexp.MustCompile(`(?i)\b(bank|banking|fintech|insurance|financial)\b`), "Financial Services"},
	{regexp.MustCompile(`(?i)\b(hospital|healthcare|clinical|pharma)\b`), "Healthcare"},
	{regexp.MustCompile(`(?i)\b(retail|e-?commerce|merchant)\b`), "Retail"},
	{regexp.MustCompile(`(?i)\b(manufactur\w+|factory|industrial)\b`), "Manufacturing"},
	{regexp.MustCompile(`(?i)\b(software|saas|developer|platform)\b`), "Technology"},
}

var regionMarkers = []struct {
	pattern *regexp.Regexp
	region  string
	country string
}{
	{regexp.MustCompile(`(?i)\b(united\s+states|usa|u\.s\.)\b`), "North America", "United States"},
	{regexp.MustCompile(`(?i)\bcanada\b`), "North America", "Canada"},
	{regexp.MustCompile(`(?i)\b(united\s+kingdom|uk\b|britain)`), "EMEA", "United Kingdom"},
	{regexp.MustCompile(`(?i)\bgermany\b`), "EMEA", "Germany"},
	{regexp.MustCompile(`(?i)\bfrance\b`), "EMEA", "France"},
	{regexp.MustCompile(`(?i)\bnetherlands\b`), "EMEA", "Netherlands"},
	{regexp.MustCompile(`(?i)\baustralia\b`), "APAC", "Australia"},
	{regexp.MustCompile(`(?i)\bjapan\b`), "APAC", "Japan"},
	{regexp.MustCompile(`(?i)\bindia\b`), "APAC", "India"},
	{regexp.MustCompile(`(?i)\bsingapore\b`), "APAC", "Singapore"},
	{regexp.MustCompile(`(?i)\bbrazil\b`), "LATAM", "Brazil"},
	{regexp.MustCompile(`(?i)\bmexico\b`), "LATAM", "Mexico"},
}

// Canonical spellings for the tech-stack scan.
var knownTech = []string{
	"AWS", "Azure", "Google Cloud", "Kubernetes", "Snowflake", "dbt",
	"Fivetran", "Databricks", "Kafka", "PostgreSQL", "Redis",
	"Salesforce", "Tableau", "Spark", "Terraform",
}

var techPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(knownTech))
	for i, t := range knownTech {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(t) + `\b`)
	}
	return out
}()

var (
	quotePattern      = regexp.MustCompile(`[“"]([^"”]{40,400})[”"]`)
	multiplierPattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?x\s+(?:faster|quicker|higher|more)\b`)
	percentPattern    = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?%\s+(?:reduction|decrease|fewer|less|savings|increase|improvement|growth|more)\b`)
	personaPattern    = regexp.MustCompile(`(?:said|says)\s+([A-Z][A-Za-z.'-]+(?:\s+[A-Z][A-Za-z.'-]+){0,2})\s*,\s*([A-Z][A-Za-z /&-]{2,60})`)
	cLevelPattern     = regexp.MustCompile(`(?i)\bc[a-z]o\b`)
)

// Static is a rule-based classifier for offline runs. It never fails;
// fields the rules cannot infer are left at taxonomy defaults.
type Static struct{}

func (Static) Classify(_ context.Context, uri, text string) (*Record, error) {
	scan := text
	if len(scan) > staticScanLimit {
		scan = scan[:staticScanLimit]
	}

	rec := &Record{
		CustomerName: nameFromURI(uri),
		Industry:     firstLabel(industryPatterns, scan, "Unknown"),
		CompanySize:  firstLabel(sizePatterns, scan, "Unknown"),
		Region:       "Unknown",
		Summary:      firstSentence(scan),
	}
	if rec.CustomerName == "" {
		rec.CustomerName = "Unknown"
	}

	for _, m := range regionMarkers {
		if m.pattern.MatchString(scan) {
			rec.Region = m.region
			rec.Country = m.country
			break
		}
	}

	for i, p := range techPatterns {
		if p.MatchString(scan) {
			rec.TechStack = append(rec.TechStack, knownTech[i])
		}
	}

	if m := quotePattern.FindStringSubmatch(scan); m != nil {
		rec.QuotedText = strings.TrimSpace(m[1])
	}

	for _, m := range multiplierPattern.FindAllString(scan, maxStaticOutcomes) {
		rec.Outcomes = append(rec.Outcomes, Outcome{Type: "performance", Metric: strings.TrimSpace(m)})
	}
	for _, m := range percentPattern.FindAllString(scan, maxStaticOutcomes) {
		if len(rec.Outcomes) >= maxStaticOutcomes {
			break
		}
		rec.Outcomes = append(rec.Outcomes, Outcome{Type: "efficiency", Metric: strings.TrimSpace(m)})
	}

	for _, m := range personaPattern.FindAllStringSubmatch(scan, 3) {
		title := strings.TrimSpace(m[2])
		if i := strings.Index(title, " at "); i > 0 {
			title = title[:i]
		}
		rec.Personas = append(rec.Personas, Persona{
			Name:      strings.TrimSpace(m[1]),
			Title:     title,
			Seniority: seniorityFor(title),
		})
	}

	return rec, nil
}

// nameFromURI guesses the customer from the last path segment, so
// /customers/acme-corp becomes "Acme Corp".
func nameFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	slug := segs[len(segs)-1]
	if i := strings.LastIndex(slug, "."); i > 0 {
		slug = slug[:i]
	}
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func firstLabel(rules []labelRule, text, fallback string) string {
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return r.label
		}
	}
	return fallback
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, ". "); i > 0 && i < 240 {
		return text[:i+1]
	}
	if len(text) > 240 {
		return text[:240]
	}
	return text
}

func seniorityFor(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "chief") || cLevelPattern.MatchString(t):
		return "C-Level"
	case strings.Contains(t, "vp") || strings.Contains(t, "vice president"):
		return "VP"
	case strings.Contains(t, "director"):
		return "Director"
	case strings.Contains(t, "manager") || strings.Contains(t, "head of"):
		return "Manager"
	default:
		return "Individual Contributor"
	}
}
