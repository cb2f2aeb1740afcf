package enrich

import "strings"

// Merge combines an existing record with a newer one. Scalars from next
// win when non-empty, list fields are unioned in first-seen order.
// Neither argument is mutated.
func Merge(old, next *Record) *Record {
	if old == nil && next == nil {
		return nil
	}
	if old == nil {
		c := *next
		return &c
	}
	if next == nil {
		c := *old
		return &c
	}

	out := *old
	out.CustomerName = scalar(old.CustomerName, next.CustomerName)
	out.Industry = scalar(old.Industry, next.Industry)
	out.CompanySize = scalar(old.CompanySize, next.CompanySize)
	out.Region = scalar(old.Region, next.Region)
	out.Country = scalar(old.Country, next.Country)
	out.QuotedText = scalar(old.QuotedText, next.QuotedText)
	out.Summary = scalar(old.Summary, next.Summary)
	out.UseCases = unionStrings(old.UseCases, next.UseCases)
	out.TechStack = unionStrings(old.TechStack, next.TechStack)
	out.Outcomes = unionOutcomes(old.Outcomes, next.Outcomes)
	out.Personas = unionPersonas(old.Personas, next.Personas)
	return &out
}

func scalar(old, next string) string {
	if strings.TrimSpace(next) != "" {
		return next
	}
	return old
}

func unionStrings(old, next []string) []string {
	seen := make(map[string]bool, len(old)+len(next))
	var out []string
	for _, s := range append(append([]string{}, old...), next...) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func unionOutcomes(old, next []Outcome) []Outcome {
	seen := make(map[Outcome]bool, len(old)+len(next))
	var out []Outcome
	for _, o := range append(append([]Outcome{}, old...), next...) {
		if o == (Outcome{}) || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}

// unionPersonas keys on title plus name; a later sighting of the same
// person may carry a seniority the first one lacked.
func unionPersonas(old, next []Persona) []Persona {
	type key struct{ title, name string }
	index := make(map[key]int, len(old)+len(next))
	var out []Persona
	for _, p := range append(append([]Persona{}, old...), next...) {
		if p == (Persona{}) {
			continue
		}
		k := key{strings.ToLower(p.Title), strings.ToLower(p.Name)}
		if i, ok := index[k]; ok {
			if out[i].Seniority == "" {
				out[i].Seniority = p.Seniority
			}
			continue
		}
		index[k] = len(out)
		out = append(out, p)
	}
	return out
}
