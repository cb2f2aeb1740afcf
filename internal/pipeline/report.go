package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Issue kinds recorded per item.
const (
	IssueSkipped = "skipped"
	IssueFailed  = "failed"
)

// ItemIssue is one skipped or failed item. Every item that did not
// complete its phase lands here; nothing is silently dropped.
type ItemIssue struct {
	URI    string `json:"uri"`
	Phase  Phase  `json:"phase"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// PhaseCount accumulates per-phase item tallies.
type PhaseCount struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// VendorReport accumulates one vendor's run outcome. Its methods are
// safe to call from concurrent phase workers.
type VendorReport struct {
	Vendor       string                `json:"vendor"`
	Termination  string                `json:"termination,omitempty"`
	Pages        int                   `json:"pages,omitempty"`
	Counts       map[Phase]*PhaseCount `json:"counts"`
	Issues       []ItemIssue           `json:"issues,omitempty"`
	Fatal        string                `json:"fatal,omitempty"`
	FatalIgnored bool                  `json:"fatal_ignored,omitempty"`

	mu sync.Mutex
}

func (vr *VendorReport) count(phase Phase) *PhaseCount {
	c := vr.Counts[phase]
	if c == nil {
		c = &PhaseCount{}
		vr.Counts[phase] = c
	}
	return c
}

// AddProcessed counts n successfully handled items.
func (vr *VendorReport) AddProcessed(phase Phase, n int) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.count(phase).Processed += n
}

// AddSkipped counts n skipped items without per-item issues. Used for
// bulk skips like already-known discovery candidates.
func (vr *VendorReport) AddSkipped(phase Phase, n int) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.count(phase).Skipped += n
}

// Snapshot returns a copy of the phase's tallies.
func (vr *VendorReport) Snapshot(phase Phase) PhaseCount {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	c := vr.Counts[phase]
	if c == nil {
		return PhaseCount{}
	}
	return *c
}

// Skip counts one skipped item with its reason.
func (vr *VendorReport) Skip(phase Phase, uri, reason string) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.count(phase).Skipped++
	vr.Issues = append(vr.Issues, ItemIssue{URI: uri, Phase: phase, Kind: IssueSkipped, Reason: reason})
}

// Fail counts one failed item with its reason.
func (vr *VendorReport) Fail(phase Phase, uri, reason string) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.count(phase).Failed++
	vr.Issues = append(vr.Issues, ItemIssue{URI: uri, Phase: phase, Kind: IssueFailed, Reason: reason})
}

// SetFatal records a vendor-level abort. The first cause wins; later
// calls are dropped so worker races cannot rewrite it.
func (vr *VendorReport) SetFatal(err error, ignored bool) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	if vr.Fatal != "" {
		return
	}
	vr.Fatal = err.Error()
	vr.FatalIgnored = ignored
}

// Failed reports whether the vendor aborted in a way that should fail
// the run.
func (vr *VendorReport) Failed() bool {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	return vr.Fatal != "" && !vr.FatalIgnored
}

// RunReport is the aggregated outcome of one pipeline run.
type RunReport struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	DryRun     bool            `json:"dry_run,omitempty"`
	Phases     []Phase         `json:"phases"`
	Vendors    []*VendorReport `json:"vendors"`
}

// Vendor returns the report bucket for a vendor, creating it on first
// use. Vendors run sequentially, so this needs no locking.
func (r *RunReport) Vendor(name string) *VendorReport {
	for _, vr := range r.Vendors {
		if vr.Vendor == name {
			return vr
		}
	}
	vr := &VendorReport{Vendor: name, Counts: make(map[Phase]*PhaseCount)}
	r.Vendors = append(r.Vendors, vr)
	return vr
}

// ExitCode maps the report to the process exit status: 0 when every
// vendor completed, 1 when at least one vendor failed wholly.
func (r *RunReport) ExitCode() int {
	for _, vr := range r.Vendors {
		if vr.Failed() {
			return 1
		}
	}
	return 0
}

// Render writes the per-vendor counts table, followed by a table of
// failed items when there are any.
func (r *RunReport) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Vendor", "Phase", "Processed", "Skipped", "Failed", "Notes"})

	for _, vr := range r.Vendors {
		for _, phase := range r.Phases {
			c := vr.Counts[phase]
			if c == nil {
				continue
			}
			note := ""
			if phase == PhaseDiscovery && vr.Termination != "" {
				note = fmt.Sprintf("stopped: %s after %d pages", vr.Termination, vr.Pages)
			}
			t.AppendRow(table.Row{vr.Vendor, string(phase), c.Processed, c.Skipped, c.Failed, note})
		}
		if vr.Fatal != "" {
			t.AppendRow(table.Row{vr.Vendor, "-", "-", "-", "-", "aborted: " + vr.Fatal})
		}
	}
	t.Render()

	var failures []ItemIssue
	for _, vr := range r.Vendors {
		for _, is := range vr.Issues {
			if is.Kind == IssueFailed {
				failures = append(failures, is)
			}
		}
	}
	if len(failures) > 0 {
		ft := table.NewWriter()
		ft.SetOutputMirror(w)
		ft.SetStyle(table.StyleLight)
		ft.AppendHeader(table.Row{"Phase", "URI", "Reason"})
		for _, is := range failures {
			ft.AppendRow(table.Row{string(is.Phase), is.URI, is.Reason})
		}
		ft.Render()
	}

	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "run %s finished in %s%s\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), mode)
}

// WriteArtifact persists the full report, issues included, as JSON
// under dir and returns the file path.
func (r *RunReport) WriteArtifact(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "run-"+r.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
