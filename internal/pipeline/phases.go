package pipeline

import "strings"

// Phase is one stage of a pipeline run.
type Phase string

const (
	PhaseDiscovery Phase = "discovery"
	PhaseFetch     Phase = "fetch"
	PhasePersist   Phase = "persist"
	PhaseEnrich    Phase = "enrich"
)

// phaseOrder is the fixed execution order. Runs may select a subset,
// but only a contiguous one: fetch,enrich would silently do nothing
// useful between the gap, so it is rejected up front.
var phaseOrder = []Phase{PhaseDiscovery, PhaseFetch, PhasePersist, PhaseEnrich}

// AllPhases returns the full sequence in execution order.
func AllPhases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// ParsePhases resolves the requested phase names into the canonical
// execution order. Empty input selects every phase. Unknown names and
// non-contiguous selections are UsageErrors.
func ParsePhases(names []string) ([]Phase, error) {
	if len(names) == 0 {
		return AllPhases(), nil
	}

	want := make(map[Phase]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		p := Phase(n)
		found := false
		for _, known := range phaseOrder {
			if p == known {
				found = true
				break
			}
		}
		if !found {
			return nil, usagef("unknown phase %q", n)
		}
		want[p] = true
	}
	if len(want) == 0 {
		return AllPhases(), nil
	}

	first, last := -1, -1
	for i, p := range phaseOrder {
		if want[p] {
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	for i := first; i <= last; i++ {
		if !want[phaseOrder[i]] {
			return nil, usagef("phases must be contiguous: missing %q between %q and %q",
				phaseOrder[i], phaseOrder[first], phaseOrder[last])
		}
	}
	return AllPhases()[first : last+1], nil
}
