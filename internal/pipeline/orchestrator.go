// Package pipeline sequences discovery, fetch, persist and enrich per
// vendor, gating every item-level side effect through the phase
// ledger so reruns and concurrent workers never repeat completed work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/refstream/refstream/internal/discovery"
	"github.com/refstream/refstream/internal/enrich"
	"github.com/refstream/refstream/internal/fetch"
	"github.com/refstream/refstream/internal/ledger"
	"github.com/refstream/refstream/internal/monitoring"
	"github.com/refstream/refstream/internal/storage"
	"github.com/refstream/refstream/internal/vendors"
)

const (
	defaultWorkers     = 4
	defaultEnrichBatch = 500
)

// Discoverer walks a vendor's listings or manifest into candidates.
type Discoverer interface {
	Run(ctx context.Context, p *vendors.Profile) (*discovery.Result, error)
}

// RuntimeFactory builds the per-vendor fetch and discovery
// collaborators. Profiles carry their own politeness limits and
// thresholds, so vendors never share a collector.
type RuntimeFactory interface {
	Discoverer(p *vendors.Profile) (Discoverer, error)
	Fetcher(p *vendors.Profile) (fetch.Fetcher, error)
}

// Options tune one run.
type Options struct {
	Workers     int
	EnrichBatch int
	DryRun      bool
	Force       bool
}

// Pipeline executes runs. All collaborators are shared across vendors
// except the fetchers and discoverers, which the factory builds per
// profile.
type Pipeline struct {
	store      storage.Store
	ledger     ledger.Ledger
	classifier enrich.Classifier
	factory    RuntimeFactory
	metrics    *monitoring.Metrics
	log        *zap.Logger
	opts       Options
}

func New(store storage.Store, led ledger.Ledger, cls enrich.Classifier, factory RuntimeFactory, m *monitoring.Metrics, log *zap.Logger, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.EnrichBatch <= 0 {
		opts.EnrichBatch = defaultEnrichBatch
	}
	return &Pipeline{
		store:      store,
		ledger:     led,
		classifier: cls,
		factory:    factory,
		metrics:    m,
		log:        log,
		opts:       opts,
	}
}

// vendorRun carries one vendor's state across phases.
type vendorRun struct {
	profile  *vendors.Profile
	vr       *VendorReport
	vendorID int64

	// Candidates discovered this run. Dry runs never write them to
	// storage, so later phases merge them back in from here.
	discovered []storage.Candidate

	cancel context.CancelFunc
}

// Run executes the selected phases for each profile in turn. Vendors
// are isolated: one aborting never stops the others. The returned
// report covers everything attempted, even when ctx is cancelled
// mid-run.
func (p *Pipeline) Run(ctx context.Context, profiles []*vendors.Profile, phases []Phase) (*RunReport, error) {
	if len(phases) == 0 {
		phases = AllPhases()
	}
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		DryRun:    p.opts.DryRun,
		Phases:    phases,
	}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	p.log.Info("run starting",
		zap.String("run_id", report.RunID),
		zap.Int("vendors", len(profiles)),
		zap.Bool("dry_run", p.opts.DryRun),
		zap.Bool("force", p.opts.Force))

	for _, prof := range profiles {
		if ctx.Err() != nil {
			break
		}
		vr := report.Vendor(prof.Name)
		if err := prof.Validate(); err != nil {
			p.log.Error("vendor profile invalid", zap.String("vendor", prof.Name), zap.Error(err))
			vr.SetFatal(err, prof.ErrorHandling.SkipOnError)
			continue
		}
		p.runVendor(ctx, prof, phases, vr)
	}
	return report, ctx.Err()
}

func (p *Pipeline) runVendor(ctx context.Context, prof *vendors.Profile, phases []Phase, vr *VendorReport) {
	vctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := &vendorRun{profile: prof, vr: vr, cancel: cancel}

	if p.opts.DryRun {
		if v, err := p.store.GetVendor(vctx, prof.Name); err == nil && v != nil {
			run.vendorID = v.ID
		}
	} else {
		id, err := p.store.UpsertVendor(vctx, prof.Name, prof.Website)
		if err != nil {
			p.fatal(run, fmt.Errorf("register vendor: %w", err))
			return
		}
		run.vendorID = id
	}

	for _, phase := range phases {
		if vctx.Err() != nil {
			return
		}
		start := time.Now()
		p.log.Info("phase starting", zap.String("vendor", prof.Name), zap.String("phase", string(phase)))

		switch phase {
		case PhaseDiscovery:
			p.runDiscovery(vctx, run)
		case PhaseFetch:
			p.runFetch(vctx, run)
		case PhasePersist:
			p.runPersist(vctx, run)
		case PhaseEnrich:
			p.runEnrich(vctx, run)
		}

		p.metrics.ObservePhaseDuration(string(phase), time.Since(start).Seconds())
		c := vr.Snapshot(phase)
		p.log.Info("phase finished",
			zap.String("vendor", prof.Name),
			zap.String("phase", string(phase)),
			zap.Int("processed", c.Processed),
			zap.Int("skipped", c.Skipped),
			zap.Int("failed", c.Failed),
			zap.Duration("took", time.Since(start)))
	}
}

// fatal aborts the vendor. The first infrastructure error wins and
// cancels the vendor context so workers stop picking up items.
// Cancellation itself is not a vendor fault and is ignored here.
func (p *Pipeline) fatal(run *vendorRun, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	p.log.Error("vendor aborted", zap.String("vendor", run.profile.Name), zap.Error(err))
	run.vr.SetFatal(err, run.profile.ErrorHandling.SkipOnError)
	run.cancel()
}

func (p *Pipeline) runDiscovery(ctx context.Context, run *vendorRun) {
	prof, vr := run.profile, run.vr

	disco, err := p.factory.Discoverer(prof)
	if err != nil {
		p.fatal(run, err)
		return
	}
	res, err := disco.Run(ctx, prof)
	if err != nil {
		p.fatal(run, err)
		return
	}

	vr.Termination = res.Reason
	vr.Pages = res.Pages
	p.metrics.AddPagesDiscovered(prof.Name, res.Pages)
	p.log.Info("discovery finished",
		zap.String("vendor", prof.Name),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("pages", res.Pages),
		zap.String("reason", res.Reason))

	cands := make([]storage.Candidate, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		cands = append(cands, storage.Candidate{URI: c.URI, Page: c.DiscoveredAtPage})
	}
	run.discovered = cands

	if p.opts.DryRun {
		vr.AddProcessed(PhaseDiscovery, len(cands))
		return
	}

	fresh, err := p.store.SaveCandidates(ctx, run.vendorID, cands)
	if err != nil {
		p.fatal(run, fmt.Errorf("save candidates: %w", err))
		return
	}
	vr.AddProcessed(PhaseDiscovery, int(fresh))
	vr.AddSkipped(PhaseDiscovery, len(cands)-int(fresh))
}

func (p *Pipeline) runFetch(ctx context.Context, run *vendorRun) {
	prof := run.profile

	cands, err := p.candidates(ctx, run)
	if err != nil {
		p.fatal(run, fmt.Errorf("list candidates: %w", err))
		return
	}
	if len(cands) == 0 {
		p.log.Info("nothing to fetch", zap.String("vendor", prof.Name))
		return
	}

	if p.opts.Force && !p.opts.DryRun {
		uris := make([]string, len(cands))
		for i, c := range cands {
			uris[i] = c.URI
		}
		n, err := p.ledger.Reset(ctx, string(PhaseFetch), uris)
		if err != nil {
			p.fatal(run, fmt.Errorf("reset fetch ledger: %w", err))
			return
		}
		p.log.Info("forced refetch", zap.String("vendor", prof.Name), zap.Int64("reset", n))
	}

	engine, err := p.factory.Fetcher(prof)
	if err != nil {
		p.fatal(run, err)
		return
	}

	p.forEach(ctx, len(cands), func(i int) {
		p.fetchOne(ctx, run, engine, cands[i])
	})
}

func (p *Pipeline) fetchOne(ctx context.Context, run *vendorRun, engine fetch.Fetcher, cand storage.Candidate) {
	if ctx.Err() != nil {
		return
	}
	prof, vr := run.profile, run.vr
	uri := cand.URI

	done, err := p.ledger.IsComplete(ctx, uri, string(PhaseFetch))
	if err != nil {
		p.fatal(run, fmt.Errorf("ledger: %w", err))
		return
	}
	if done {
		vr.Skip(PhaseFetch, uri, "already completed")
		return
	}
	if p.opts.DryRun {
		vr.AddProcessed(PhaseFetch, 1)
		return
	}

	claimed, err := p.ledger.TryBegin(ctx, uri, string(PhaseFetch))
	if err != nil {
		p.fatal(run, fmt.Errorf("ledger: %w", err))
		return
	}
	if !claimed {
		vr.Skip(PhaseFetch, uri, "claimed by another worker")
		return
	}

	// A claimed item runs to completion even if the run is cancelled,
	// so the ledger never holds a claim for work nobody finished.
	fctx := context.WithoutCancel(ctx)

	res, err := engine.Fetch(fctx, uri)
	switch {
	case err == nil:
		id, _, perr := p.store.UpsertRawItem(fctx, run.vendorID, res)
		if perr != nil {
			p.markFailed(fctx, run, uri, PhaseFetch, "persist: "+perr.Error())
			p.fatal(run, fmt.Errorf("persist raw item: %w", perr))
			return
		}
		if lerr := p.ledger.MarkComplete(fctx, uri, string(PhaseFetch), strconv.FormatInt(id, 10)); lerr != nil {
			p.fatal(run, fmt.Errorf("ledger: %w", lerr))
			return
		}
		p.metrics.IncItemsFetched(prof.Name, res.Engine)
		if res.Engine == fetch.EngineSecondary && !prof.Fetch.ForceSecondary {
			p.metrics.IncEscalations(prof.Name)
		}
		vr.AddProcessed(PhaseFetch, 1)

	case fetch.IsQuality(err):
		// Low quality is a skip, not a failure: the record stays
		// failed in the ledger so the next run retries it.
		p.markFailed(fctx, run, uri, PhaseFetch, "skipped-low-quality")
		p.metrics.IncFetchErrors(prof.Name, "quality")
		vr.Skip(PhaseFetch, uri, err.Error())

	case fetch.IsPermanent(err):
		p.markFailed(fctx, run, uri, PhaseFetch, err.Error())
		p.metrics.IncFetchErrors(prof.Name, "permanent")
		vr.Fail(PhaseFetch, uri, err.Error())

	case fetch.IsBlocked(err):
		p.markFailed(fctx, run, uri, PhaseFetch, err.Error())
		p.metrics.IncFetchErrors(prof.Name, "blocked")
		vr.Fail(PhaseFetch, uri, err.Error())

	case fetch.IsTransient(err):
		p.markFailed(fctx, run, uri, PhaseFetch, err.Error())
		p.metrics.IncFetchErrors(prof.Name, "transient")
		vr.Fail(PhaseFetch, uri, err.Error())

	default:
		p.markFailed(fctx, run, uri, PhaseFetch, err.Error())
		p.metrics.IncFetchErrors(prof.Name, "other")
		vr.Fail(PhaseFetch, uri, err.Error())
	}
}

func (p *Pipeline) runPersist(ctx context.Context, run *vendorRun) {
	prof := run.profile

	if !p.opts.DryRun {
		if _, err := p.store.UpsertVendor(ctx, prof.Name, prof.Website); err != nil {
			p.fatal(run, fmt.Errorf("register vendor: %w", err))
			return
		}
	}

	cands, err := p.candidates(ctx, run)
	if err != nil {
		p.fatal(run, fmt.Errorf("list candidates: %w", err))
		return
	}

	p.forEach(ctx, len(cands), func(i int) {
		p.persistOne(ctx, run, cands[i])
	})
}

// persistOne reconciles the persist record for one item. The raw
// payload is written during fetch, so the work here is confirming a
// completed fetch and stamping its result ref into the persist phase.
func (p *Pipeline) persistOne(ctx context.Context, run *vendorRun, cand storage.Candidate) {
	if ctx.Err() != nil {
		return
	}
	vr := run.vr
	uri := cand.URI

	done, err := p.ledger.IsComplete(ctx, uri, string(PhasePersist))
	if err != nil {
		p.fatal(run, fmt.Errorf("ledger: %w", err))
		return
	}
	if done {
		vr.Skip(PhasePersist, uri, "already completed")
		return
	}

	fetched, err := p.ledger.Get(ctx, uri, string(PhaseFetch))
	if err != nil {
		p.fatal(run, fmt.Errorf("ledger: %w", err))
		return
	}
	if fetched == nil || fetched.Status != ledger.StatusCompleted || fetched.ResultRef == "" {
		vr.Skip(PhasePersist, uri, "awaiting fetch")
		return
	}
	if p.opts.DryRun {
		vr.AddProcessed(PhasePersist, 1)
		return
	}

	claimed, err := p.ledger.TryBegin(ctx, uri, string(PhasePersist))
	if err != nil {
		p.fatal(run, fmt.Errorf("ledger: %w", err))
		return
	}
	if !claimed {
		vr.Skip(PhasePersist, uri, "claimed by another worker")
		return
	}

	fctx := context.WithoutCancel(ctx)
	if err := p.ledger.MarkComplete(fctx, uri, string(PhasePersist), fetched.ResultRef); err != nil {
		p.fatal(run, fmt.Errorf("ledger: %w", err))
		return
	}
	vr.AddProcessed(PhasePersist, 1)
}

func (p *Pipeline) runEnrich(ctx context.Context, run *vendorRun) {
	prof := run.profile

	var (
		items []storage.ItemRef
		err   error
	)
	if p.opts.Force && !p.opts.DryRun {
		// A forced run revisits enriched items too; the unenriched
		// view would hide them.
		items, err = p.store.ListItems(ctx, run.vendorID, p.opts.EnrichBatch)
	} else {
		items, err = p.store.ListUnenriched(ctx, run.vendorID, p.opts.EnrichBatch)
	}
	if err != nil {
		p.fatal(run, fmt.Errorf("list items: %w", err))
		return
	}
	if len(items) == 0 {
		p.log.Info("nothing to enrich", zap.String("vendor", prof.Name))
		return
	}

	if p.opts.Force && !p.opts.DryRun {
		uris := make([]string, len(items))
		for i, it := range items {
			uris[i] = it.URI
		}
		n, err := p.ledger.Reset(ctx, string(PhaseEnrich), uris)
		if err != nil {
			p.fatal(run, fmt.Errorf("reset enrich ledger: %w", err))
			return
		}
		p.log.Info("forced re-enrichment", zap.String("vendor", prof.Name), zap.Int64("reset", n))
	}

	p.forEach(ctx, len(items), func(i int) {
		p.enrichOne(ctx, run, items[i])
	})
}

func (p *Pipeline) enrichOne(ctx context.Context, run *vendorRun, item storage.ItemRef) {
	if ctx.Err() != nil {
		return
	}
	prof, vr := run.profile, run.vr
	uri := item.URI

	done, err := p.ledger.IsComplete(ctx, uri, string(PhaseEnrich))
	if err != nil {
		p.fatal(run, fmt.Errorf("ledger: %w", err))
		return
	}
	if done {
		vr.Skip(PhaseEnrich, uri, "already completed")
		return
	}
	if p.opts.DryRun {
		vr.AddProcessed(PhaseEnrich, 1)
		return
	}

	claimed, err := p.ledger.TryBegin(ctx, uri, string(PhaseEnrich))
	if err != nil {
		p.fatal(run, fmt.Errorf("ledger: %w", err))
		return
	}
	if !claimed {
		vr.Skip(PhaseEnrich, uri, "claimed by another worker")
		return
	}

	fctx := context.WithoutCancel(ctx)

	rec, err := p.classifier.Classify(fctx, uri, item.Payload)
	if err != nil {
		// The item keeps its raw payload and stays failed in the
		// ledger; a later run retries classification.
		p.markFailed(fctx, run, uri, PhaseEnrich, err.Error())
		vr.Fail(PhaseEnrich, uri, err.Error())
		return
	}

	if err := p.store.ApplyEnrichment(fctx, item.ID, rec); err != nil {
		p.markFailed(fctx, run, uri, PhaseEnrich, "apply: "+err.Error())
		p.fatal(run, fmt.Errorf("apply enrichment: %w", err))
		return
	}
	if err := p.ledger.MarkComplete(fctx, uri, string(PhaseEnrich), strconv.FormatInt(item.ID, 10)); err != nil {
		p.fatal(run, fmt.Errorf("ledger: %w", err))
		return
	}
	p.metrics.IncItemsEnriched(prof.Name)
	vr.AddProcessed(PhaseEnrich, 1)
}

// candidates returns the vendor's fetchable candidate set: stored
// rows merged with anything discovered this run.
func (p *Pipeline) candidates(ctx context.Context, run *vendorRun) ([]storage.Candidate, error) {
	stored, err := p.store.ListCandidates(ctx, run.vendorID)
	if err != nil {
		return nil, err
	}
	if len(run.discovered) == 0 {
		return stored, nil
	}
	seen := make(map[string]bool, len(stored))
	for _, c := range stored {
		seen[c.URI] = true
	}
	out := stored
	for _, c := range run.discovered {
		if !seen[c.URI] {
			out = append(out, c)
		}
	}
	return out, nil
}

// markFailed records a phase failure; a ledger outage while doing so
// aborts the vendor.
func (p *Pipeline) markFailed(ctx context.Context, run *vendorRun, uri string, phase Phase, reason string) {
	if err := p.ledger.MarkFailed(ctx, uri, string(phase), reason); err != nil {
		p.fatal(run, fmt.Errorf("ledger: %w", err))
	}
}

// forEach fans n indexed tasks over the worker pool. Scheduling stops
// as soon as ctx is cancelled; tasks already picked up finish.
func (p *Pipeline) forEach(ctx context.Context, n int, task func(i int)) {
	workers := p.opts.Workers
	if workers > n {
		workers = n
	}

	tasks := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				task(i)
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case tasks <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(tasks)
	wg.Wait()
}
