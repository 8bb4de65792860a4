// Package orchestrator executes one run's pass sequence against a model
// backend, honoring pass dependencies and short-circuiting repeated work
// through the content-addressed pass cache.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/precon-cli/internal/batch"
	"github.com/sells-group/precon-cli/internal/cost"
	"github.com/sells-group/precon-cli/internal/model"
	"github.com/sells-group/precon-cli/internal/passcache"
	"github.com/sells-group/precon-cli/pkg/backend"
)

// Options configures an Orchestrator.
type Options struct {
	// SchemaVersion versions the prompt schema. Bumping it invalidates the
	// entire pass cache.
	SchemaVersion string

	// Plan bounds the extraction batch plan.
	Plan batch.PlanConfig

	// BatchConcurrency limits how many extraction batches run in parallel.
	// Defaults to 4.
	BatchConcurrency int
}

// Orchestrator runs pass sequences. All collaborators are injected, so
// parallel runs share no hidden state beyond the cache, which is safe for
// concurrent use.
type Orchestrator struct {
	client backend.Client
	cache  passcache.Cache
	calc   *cost.Calculator
	opts   Options
}

// New creates an Orchestrator.
func New(client backend.Client, cache passcache.Cache, calc *cost.Calculator, opts Options) *Orchestrator {
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 4
	}
	return &Orchestrator{client: client, cache: cache, calc: calc, opts: opts}
}

// Run executes the pass plan in ascending pass-number order, folding each
// pass's output into the running merged result before the next pass's cache
// key is computed. Any backend failure aborts the run immediately; passes
// already completed stay cached and are reused on retry.
func (o *Orchestrator) Run(ctx context.Context, runID string, doc *model.ClassifiedDocument, passes []model.PassConfig) (*model.PermutationResult, error) {
	if doc == nil || doc.PageCount() == 0 {
		return nil, ErrNoDocuments
	}
	if len(passes) == 0 {
		return nil, eris.New("orchestrator: empty pass plan")
	}

	ordered := make([]model.PassConfig, len(passes))
	copy(ordered, passes)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Pass < ordered[j].Pass })

	// Reject unimplemented purposes before any backend call.
	for _, pc := range ordered {
		if !pc.Purpose.Valid() {
			return nil, &UnknownPurposeError{Pass: pc.Pass, Purpose: pc.Purpose}
		}
	}

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("orchestrator: starting run",
		zap.Int("passes", len(ordered)),
		zap.Int("pages", doc.PageCount()),
	)

	result := &model.PermutationResult{
		RunID:  runID,
		Passes: ordered,
	}
	docFingerprint := doc.Fingerprint()
	fingerprints := make(map[int]string) // pass number -> result fingerprint
	started := time.Now()

	var merged []model.WorkPackage
	var observations []model.AIObservation

	for _, pc := range ordered {
		// Every declared dependency must already have a result.
		var missing []int
		for _, dep := range pc.DependsOn {
			if _, ok := fingerprints[dep]; !ok {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			return nil, &DependencyError{Pass: pc.Pass, Missing: missing}
		}

		key := o.cacheKey(pc, docFingerprint, fingerprints)

		entry, err := o.cache.Load(ctx, key)
		if err != nil {
			return nil, eris.Wrapf(err, "orchestrator: cache load for pass %d", pc.Pass)
		}

		var pr model.PassResult
		var resp *backend.Response

		if entry != nil {
			pr = entry.Result
			pr.CacheHit = true
			resp = &backend.Response{}
			if err := json.Unmarshal(pr.ResponseJSON, resp); err != nil {
				return nil, eris.Wrapf(err, "orchestrator: decode cached pass %d", pc.Pass)
			}
			result.Metrics.CacheHits++
			log.Info("orchestrator: pass served from cache",
				zap.Int("pass", pc.Pass),
				zap.String("purpose", string(pc.Purpose)),
			)
		} else {
			var executed []model.Batch
			pr, resp, executed, err = o.executePass(ctx, runID, doc, pc, merged, observations)
			if err != nil {
				return nil, err
			}
			pr.CacheKey = key
			result.Batches = append(result.Batches, executed...)

			if storeErr := o.cache.Store(ctx, passcache.Entry{
				Key: key,
				Inputs: passcache.KeyInputs{
					Pass:           pc.Pass,
					Backend:        pc.Backend,
					Purpose:        pc.Purpose,
					DocFingerprint: docFingerprint,
					AncestorHashes: ancestorHashes(pc.DependsOn, fingerprints),
					SchemaVersion:  o.opts.SchemaVersion,
				},
				Result:   pr,
				StoredAt: time.Now().UTC(),
			}); storeErr != nil {
				log.Warn("orchestrator: cache store failed",
					zap.Int("pass", pc.Pass),
					zap.Error(storeErr),
				)
			}

			result.Metrics.LiveCalls++
			result.Metrics.Cost += pr.Cost
		}

		// Fold this pass's output into the running state before the next
		// pass's cache key is computed.
		merged = Merge(merged, resp, pc.Backend, pc.Pass)
		observations = append(observations, ObservationsFrom(resp, pc.Backend, pc.Pass)...)

		result.Metrics.Usage.Add(pr.Usage)
		result.PassResults = append(result.PassResults, pr)
		fingerprints[pc.Pass] = passcache.ResultFingerprint(pr)
	}

	result.Packages = merged
	result.Observations = observations
	result.Metrics.DurationMS = time.Since(started).Milliseconds()

	log.Info("orchestrator: run complete",
		zap.Int("packages", len(merged)),
		zap.Int("observations", len(observations)),
		zap.Int("cache_hits", result.Metrics.CacheHits),
		zap.Int("live_calls", result.Metrics.LiveCalls),
		zap.Float64("cost", result.Metrics.Cost),
	)
	return result, nil
}

func (o *Orchestrator) cacheKey(pc model.PassConfig, docFingerprint string, fingerprints map[int]string) string {
	return passcache.KeyInputs{
		Pass:           pc.Pass,
		Backend:        pc.Backend,
		Purpose:        pc.Purpose,
		DocFingerprint: docFingerprint,
		AncestorHashes: ancestorHashes(pc.DependsOn, fingerprints),
		SchemaVersion:  o.opts.SchemaVersion,
	}.Key()
}

// ancestorHashes returns the dependency result fingerprints ordered by
// ascending pass number, so the cache key is independent of config order.
func ancestorHashes(deps []int, fingerprints map[int]string) []string {
	sorted := make([]int, len(deps))
	copy(sorted, deps)
	sort.Ints(sorted)

	hashes := make([]string, 0, len(sorted))
	for _, dep := range sorted {
		hashes = append(hashes, fingerprints[dep])
	}
	return hashes
}

// executePass dispatches one live pass. Initial extraction fans out over
// the batch plan and returns the executed batch records; every other
// purpose is a single whole-document call that also carries the merged
// state so far.
func (o *Orchestrator) executePass(ctx context.Context, runID string, doc *model.ClassifiedDocument, pc model.PassConfig, merged []model.WorkPackage, observations []model.AIObservation) (model.PassResult, *backend.Response, []model.Batch, error) {
	started := time.Now()

	var resp *backend.Response
	var batches []model.Batch
	var err error
	if pc.Purpose == model.PurposeInitialExtraction {
		resp, batches, err = o.runExtractionBatches(ctx, runID, doc, pc)
	} else {
		req := backend.Request{
			Purpose:   pc.Purpose,
			Backend:   pc.Backend,
			Documents: doc.Pages(),
			Merged:    merged,
		}
		if pc.Purpose == model.PurposeFinalValidation {
			req.ObservationsText = renderObservations(observations)
		}
		if pc.Purpose == model.PurposeTradeDeepDive && len(o.opts.Plan.FocusTrades) > 0 {
			req.Trade = o.opts.Plan.FocusTrades[0]
		}
		resp, err = o.client.Call(ctx, req)
	}
	if err != nil {
		return model.PassResult{}, nil, nil, &PassError{Pass: pc.Pass, Backend: pc.Backend, Err: err}
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return model.PassResult{}, nil, nil, eris.Wrapf(err, "orchestrator: marshal pass %d response", pc.Pass)
	}

	pr := model.PassResult{
		Pass:         pc.Pass,
		Backend:      pc.Backend,
		Purpose:      pc.Purpose,
		StartedAt:    started.UTC(),
		DurationMS:   time.Since(started).Milliseconds(),
		Usage:        resp.Usage,
		Cost:         o.calc.Pass(pc.Backend, resp.Usage),
		ResponseJSON: raw,
	}
	return pr, resp, batches, nil
}

// runExtractionBatches plans trade batches and executes them concurrently,
// combining their payloads into one extraction response. Results are
// combined in batch sequence order so the outcome is independent of
// completion order. The executed batch records come back alongside the
// response so callers can persist their outcomes.
func (o *Orchestrator) runExtractionBatches(ctx context.Context, runID string, doc *model.ClassifiedDocument, pc model.PassConfig) (*backend.Response, []model.Batch, error) {
	batches, err := batch.Plan(doc, runID, o.opts.Plan)
	if err != nil {
		return nil, nil, err
	}

	pageByNumber := make(map[int]model.Page, doc.PageCount())
	for _, p := range doc.Pages() {
		pageByNumber[p.PageNumber] = p
	}

	responses := make([]*backend.Response, len(batches))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.BatchConcurrency)

	for i := range batches {
		g.Go(func() error {
			b := &batches[i]
			now := time.Now().UTC()
			b.Status = model.BatchStatusProcessing
			b.StartedAt = &now

			pages := make([]model.Page, 0, len(b.PageNumbers))
			for _, num := range b.PageNumbers {
				pages = append(pages, pageByNumber[num])
			}

			resp, callErr := o.client.Call(gCtx, backend.Request{
				Purpose:   model.PurposeInitialExtraction,
				Backend:   pc.Backend,
				Documents: pages,
				Trade:     b.Trade,
			})
			done := time.Now().UTC()
			b.CompletedAt = &done
			if callErr != nil {
				b.Status = model.BatchStatusFailed
				b.Error = callErr.Error()
				return eris.Wrapf(callErr, "batch %d (%s)", b.Sequence, b.Trade)
			}

			b.Status = model.BatchStatusCompleted
			if resp.Extraction != nil {
				b.Result = &model.BatchResult{
					Packages:     resp.Extraction.Packages,
					Observations: resp.Extraction.Observations,
					Usage:        resp.Usage,
					Cost:         o.calc.Pass(pc.Backend, resp.Usage),
					DurationMS:   done.Sub(now).Milliseconds(),
				}
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// General pages repeat across batches, so the same package, item, and
	// observation can come back from more than one batch. First encounter
	// wins.
	combined := &backend.Response{
		Purpose:    model.PurposeInitialExtraction,
		Extraction: &backend.ExtractionPayload{},
	}
	seenObs := make(map[string]struct{})
	for _, resp := range responses {
		if resp == nil || resp.Extraction == nil {
			continue
		}
		combined.Usage.Add(resp.Usage)
		for _, obs := range resp.Extraction.Observations {
			obsKey := string(obs.Severity) + "|" + string(obs.Category) + "|" + obs.Description
			if _, dup := seenObs[obsKey]; dup {
				continue
			}
			seenObs[obsKey] = struct{}{}
			combined.Extraction.Observations = append(combined.Extraction.Observations, obs)
		}
		for _, pkg := range resp.Extraction.Packages {
			combined.Extraction.Packages = mergePackage(combined.Extraction.Packages, pkg)
		}
	}

	zap.L().Info("orchestrator: extraction batches complete",
		zap.String("run_id", runID),
		zap.Int("batches", len(batches)),
		zap.Int("packages", len(combined.Extraction.Packages)),
	)
	return combined, batches, nil
}

// mergePackage appends pkg, folding items into an existing package when the
// id already exists and dropping items whose key is already present.
func mergePackage(packages []model.WorkPackage, pkg model.WorkPackage) []model.WorkPackage {
	for i := range packages {
		if packages[i].ID != pkg.ID {
			continue
		}
		seen := make(map[string]struct{}, len(packages[i].Items))
		for _, item := range packages[i].Items {
			seen[model.ItemKey(pkg.ID, item.Description)] = struct{}{}
		}
		for _, item := range pkg.Items {
			key := model.ItemKey(pkg.ID, item.Description)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			packages[i].Items = append(packages[i].Items, item)
		}
		return packages
	}
	return append(packages, pkg)
}

// renderObservations flattens observations into the text form the final
// validation purpose consumes.
func renderObservations(observations []model.AIObservation) string {
	var b strings.Builder
	for _, obs := range observations {
		fmt.Fprintf(&b, "[%s/%s] %s", obs.Severity, obs.Category, obs.Description)
		if obs.SuggestedAction != "" {
			fmt.Fprintf(&b, " (suggested: %s)", obs.SuggestedAction)
		}
		b.WriteString("\n")
	}
	return b.String()
}
