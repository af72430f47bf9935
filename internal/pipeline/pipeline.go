// Package pipeline wires the stages of a research run together: intent
// classification, query planning, provider dispatch, normalization, dedup,
// enrichment, triangulation, domain balancing, gate evaluation, backfill,
// and report dispatch. The engine owns stage ordering and the artifacts each
// stage persists; the stages themselves stay independently testable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"dossier/internal/artifacts"
	"dossier/internal/backfill"
	"dossier/internal/balance"
	"dossier/internal/canonical"
	"dossier/internal/config"
	"dossier/internal/core"
	"dossier/internal/cost"
	"dossier/internal/dispatch"
	"dossier/internal/enrich"
	"dossier/internal/gates"
	"dossier/internal/intent"
	"dossier/internal/llm"
	"dossier/internal/logger"
	"dossier/internal/normalize"
	"dossier/internal/planner"
	"dossier/internal/report"
	"dossier/internal/search"
	"dossier/internal/triangulate"
)

// ErrDeadline reports that the wall-clock budget expired before collection
// finished. The partial run's artifacts are already on disk when it is
// returned; callers map it to the timeout exit code.
var ErrDeadline = errors.New("run deadline exceeded")

const defaultPerCallTimeout = 20 * time.Second

// Result is what a finished run hands back to the caller.
type Result struct {
	Run  core.RunContext
	Cost cost.Summary
}

// Engine executes research runs. Configuration, the optional Gemini client,
// and circuit-breaker health are process-level and shared across runs;
// everything else is built fresh per run.
type Engine struct {
	cfg          *config.Config
	llm          *llm.Client // nil runs keyless: rule-based intent, lexical oracle
	health       *search.Health
	registryHook func(*search.Registry)
	pageTimeout  time.Duration
}

// New builds an engine. client may be nil; every LLM-backed stage has a
// deterministic fallback.
func New(cfg *config.Config, client *llm.Client, health *search.Health) *Engine {
	return &Engine{cfg: cfg, llm: client, health: health}
}

// WithRegistryHook runs hook on every per-run registry before dispatch.
// Tests use it to swap provider implementations for fakes.
func (e *Engine) WithRegistryHook(hook func(*search.Registry)) *Engine {
	e.registryHook = hook
	return e
}

// WithPageTimeout overrides the per-page enrichment fetch timeout. Tests set
// it low enough that fetch attempts never leave the process.
func (e *Engine) WithPageTimeout(d time.Duration) *Engine {
	e.pageTimeout = d
	return e
}

// Execute runs one research request end to end and dispatches its report.
// Gate failure is a normal outcome, not an error. When the wall deadline
// expires mid-run the evidence collected so far still flows through the
// filters and the report dispatcher, and the returned error wraps
// ErrDeadline.
func (e *Engine) Execute(ctx context.Context, req core.ResearchRequest) (Result, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return Result{}, errors.New("topic must not be empty")
	}

	profile := config.Profile(req.Depth)
	wall := req.WallTimeout
	if wall <= 0 {
		wall = profile.WallTimeout
	}
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = e.cfg.Run.OutputDir
	}

	start := time.Now()
	runCtx, cancel := context.WithDeadline(ctx, start.Add(wall))
	defer cancel()

	ledger := cost.NewLedger(req.MaxCost)

	classification := e.classify(runCtx, ledger, req.Topic)
	it := classification.Intent
	logger.Info("Intent classified",
		"topic", req.Topic,
		"intent", string(it),
		"stage", classification.Stage,
		"confidence", classification.Confidence)

	evaluator := gates.NewEvaluator(e.cfg.Gates.Profile, it)

	if req.Resume {
		if runDir, ok := artifacts.FindLatestRunDir(outputDir, req.Topic); ok {
			return e.resume(ctx, runCtx, req, runDir, it, classification.Disambiguations, evaluator, ledger, wall)
		}
		logger.Warn("No previous run directory to resume, starting fresh", "topic", req.Topic)
	}

	runDir, err := artifacts.NewRunDir(outputDir, req.Topic, start)
	if err != nil {
		return Result{}, fmt.Errorf("create run directory: %w", err)
	}
	logger.Info("Run directory created", "run_dir", runDir, "wall_budget", wall.String())

	plan := planner.New(profile.Expansions).Plan(req.Topic, it)

	registry := search.NewRegistry(search.RegistryOptions{
		Enabled:          e.cfg.EnabledProviders(),
		EnableFreeAPIs:   e.cfg.Search.EnableFreeAPIs,
		SerpAPIKey:       e.cfg.Search.SerpAPI.APIKey,
		SerpAPIBudget:    e.cfg.Search.SerpAPI.MaxCallsPerRun,
		SerpAPITripOn429: e.cfg.Search.SerpAPI.TripOn429,
	}, e.health)
	if e.registryHook != nil {
		e.registryHook(registry)
	}

	r := e.newRun(req, runDir, it, registry, ledger, evaluator, profile)
	defer r.close()

	if err := artifacts.WritePlanning(runDir, e.planInfo(req, it, plan, registry, classification.Disambiguations)); err != nil {
		return Result{}, fmt.Errorf("write planning artifacts: %w", err)
	}

	r.collect(runCtx, plan.Queries, 0)

	controller := backfill.NewController(backfill.Config{
		MaxAttempts:     e.cfg.Backfill.MaxAttempts + profile.ExtraBackfill,
		MinTimeFraction: e.cfg.Backfill.MinTimeFraction,
		MinCards:        e.cfg.Run.MinCards,
		Strict:          req.Strict,
		RetryBudget:     e.cfg.Gates.BackfillOnFail,
	}, it)

	var (
		written    []core.Evidence
		paraphrase []core.Cluster
		structured []core.Cluster
		metrics    core.RunMetrics
		decision   gates.Decision
	)
	backfills := 0
	for {
		evs, para, str, err := r.refine(runCtx)
		if err != nil {
			return Result{}, err
		}
		written, metrics, decision, err = r.judge(evs, para, str)
		if err != nil {
			return Result{}, err
		}
		paraphrase, structured = para, str

		if decision.Allow {
			break
		}
		exp, ok := controller.Plan(req.Topic, metrics, backfills, remainingFraction(start, wall))
		if !ok {
			break
		}
		backfills = exp.Attempt
		r.collect(runCtx, exp.Queries, exp.Hits)
	}

	rc := core.RunContext{
		RunDir:                   runDir,
		Query:                    req.Topic,
		Intent:                   string(it),
		Depth:                    req.Depth,
		Strict:                   req.Strict,
		Metrics:                  metrics,
		AllowFinalReport:         decision.Allow,
		ReasonFinalReportBlocked: decision.Reason,
		Confidence:               decision.Confidence,
		ProvidersUsed:            r.providersUsed(),
		Disambiguations:          classification.Disambiguations,
		BackfillAttempts:         backfills,
	}

	return e.finish(ctx, runCtx, rc, ledger, written, paraphrase, structured, wall)
}

// resume reloads the newest run directory for the topic, recomputes
// triangulation, metrics and the gate decision over the stored evidence, and
// re-dispatches the report. No collection happens; the evidence file is
// rewritten so its flags stay consistent with triangulation.json.
func (e *Engine) resume(parent, ctx context.Context, req core.ResearchRequest, runDir string, it intent.Intent, disambiguations []string, evaluator *gates.Evaluator, ledger *cost.Ledger, wall time.Duration) (Result, error) {
	evs, err := artifacts.ReadEvidence(runDir)
	if err != nil {
		return Result{}, fmt.Errorf("reload evidence: %w", err)
	}
	logger.Info("Resuming previous run", "run_dir", runDir, "cards", len(evs))

	triRes, err := e.newTriangulator(ledger).Run(ctx, evs)
	if err != nil {
		return Result{}, fmt.Errorf("triangulate: %w", err)
	}
	paraphrase, structured, projected := triangulate.Project(
		triRes.ParaphraseClusters, triRes.StructuredTriangles, triRes.Evidence)

	written, rejected, err := artifacts.WriteEvidence(runDir, projected)
	if err != nil {
		return Result{}, fmt.Errorf("write evidence: %w", err)
	}
	if rejected > 0 {
		logger.Warn("Records failed schema validation on resume", "rejected", rejected)
	}

	// Error rate and the applied domain cap are collection-time facts that
	// cannot be recomputed from the evidence file; carry them forward.
	errorRate := 0.0
	domainCap := balance.DefaultConfig().Cap
	if prior, err := artifacts.LoadMetrics(runDir); err == nil {
		errorRate = prior.ProviderErrorRate
		if v, ok := prior.EffectiveThresholds["domain_cap"]; ok {
			domainCap = v
		}
	} else {
		logger.Warn("No prior metrics to carry forward", "error", err.Error())
	}

	clusters := make([]core.Cluster, 0, len(paraphrase)+len(structured))
	clusters = append(clusters, paraphrase...)
	clusters = append(clusters, structured...)
	m := evaluator.Metrics(written, clusters, errorRate, domainCap)
	if err := artifacts.WriteMetrics(runDir, m); err != nil {
		return Result{}, fmt.Errorf("write metrics: %w", err)
	}
	if err := artifacts.WriteTriangulation(runDir, paraphrase, structured, written); err != nil {
		return Result{}, fmt.Errorf("write triangulation: %w", err)
	}
	reloaded, err := artifacts.LoadMetrics(runDir)
	if err != nil {
		return Result{}, fmt.Errorf("reload metrics: %w", err)
	}
	decision := evaluator.Evaluate(reloaded)

	rc := core.RunContext{
		RunDir:                   runDir,
		Query:                    req.Topic,
		Intent:                   string(it),
		Depth:                    req.Depth,
		Strict:                   req.Strict,
		Metrics:                  reloaded,
		AllowFinalReport:         decision.Allow,
		ReasonFinalReportBlocked: decision.Reason,
		Confidence:               decision.Confidence,
		ProvidersUsed:            evidenceProviders(written),
		Disambiguations:          disambiguations,
	}

	return e.finish(parent, ctx, rc, ledger, written, paraphrase, structured, wall)
}

// finish dispatches the report, records the cost summary, and maps context
// expiry onto the run error contract. runCtx carries the wall deadline;
// parent distinguishes a user abort from the deadline.
func (e *Engine) finish(parent, runCtx context.Context, rc core.RunContext, ledger *cost.Ledger, written []core.Evidence, paraphrase, structured []core.Cluster, wall time.Duration) (Result, error) {
	reporter := report.NewDispatcher(e.cfg.Gates.WriteReportOnFail, e.cfg.Gates.WriteDraftOnFail)
	dispatchErr := reporter.Dispatch(rc, written, paraphrase, structured)

	summary := ledger.Summary()
	if err := artifacts.WriteCostSummary(rc.RunDir, summary); err != nil {
		logger.Warn("Cost summary write failed", "error", err.Error())
	}

	res := Result{Run: rc, Cost: summary}
	if dispatchErr != nil {
		return res, fmt.Errorf("dispatch report: %w", dispatchErr)
	}

	logger.Info("Run complete",
		"run_dir", rc.RunDir,
		"cards", rc.Metrics.Cards,
		"allow_final", rc.AllowFinalReport,
		"backfill_attempts", rc.BackfillAttempts,
		"cost", summary.String())

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return res, fmt.Errorf("wall budget %s exhausted: %w", wall, ErrDeadline)
	}
	if err := parent.Err(); err != nil {
		return res, fmt.Errorf("run aborted: %w", err)
	}
	return res, nil
}

// classify runs intent classification, attaching the metered LLM stages when
// a client is configured.
func (e *Engine) classify(ctx context.Context, ledger *cost.Ledger, topic string) intent.Result {
	var embedder intent.Embedder
	var scorer intent.LabelScorer
	hybrid := false
	if e.llm != nil {
		m := &meteredLLM{client: e.llm, ledger: ledger}
		embedder, scorer, hybrid = m, m, true
	}
	return intent.NewClassifier(embedder, scorer, hybrid).Classify(ctx, topic)
}

func (e *Engine) newTriangulator(ledger *cost.Ledger) *triangulate.Triangulator {
	var oracle triangulate.SimilarityOracle = triangulate.LexicalOracle{}
	if e.llm != nil {
		oracle = &meteredOracle{inner: triangulate.NewGeminiOracle(e.llm), ledger: ledger}
	}
	return triangulate.New(oracle, e.cfg.Triangulation.ParaThreshold)
}

// newRun assembles the per-run stage instances around one run directory.
func (e *Engine) newRun(req core.ResearchRequest, runDir string, it intent.Intent, registry *search.Registry, ledger *cost.Ledger, evaluator *gates.Evaluator, profile config.DepthProfile) *run {
	hits := profile.HitsPerProvider
	if hits <= 0 {
		hits = e.cfg.Search.MaxResults
	}

	enricher := enrich.New(profile.EnrichWorkers, e.pageTimeout)
	cache, err := enrich.NewCache(runDir)
	if err != nil {
		logger.Warn("Page cache unavailable, fetching without it", "error", err.Error())
		cache = nil
	} else {
		enricher = enricher.WithCache(cache)
	}

	return &run{
		req:       req,
		runDir:    runDir,
		it:        it,
		registry:  registry,
		health:    e.health,
		guard:     search.NewRunGuard(registry.Budgets(), ledger),
		perCall:   parseTimeout(e.cfg.Search.Timeout, defaultPerCallTimeout),
		searchCfg: search.Config{MaxResults: hits, Language: "en"},
		norm:      normalize.New(req.Topic, it),
		canon:     canonical.NewCanonicalizer(canonical.NewResolver(0)),
		enricher:  enricher,
		cache:     cache,
		tri:       e.newTriangulator(ledger),
		balancer:  balance.New(balance.Config{Trusted: e.cfg.TrustedDomains()}),
		evaluator: evaluator,
	}
}

func (e *Engine) planInfo(req core.ResearchRequest, it intent.Intent, plan planner.Plan, registry *search.Registry, disambiguations []string) artifacts.PlanInfo {
	providers := make([]string, 0)
	for _, spec := range registry.Specs() {
		providers = append(providers, spec.Tag)
	}
	thresholds := intent.ThresholdsFor(it)
	return artifacts.PlanInfo{
		Topic:            req.Topic,
		Intent:           string(it),
		Depth:            req.Depth,
		GatesProfile:     e.cfg.Gates.Profile,
		Strict:           req.Strict,
		Queries:          plan.Queries,
		Providers:        providers,
		Disambiguations:  disambiguations,
		PrimaryPool:      normalize.PrimaryPool(it),
		MinTriangulation: thresholds.MinTriangulation,
		MinPrimaryShare:  0.40,
		MinCards:         thresholds.MinSources,
		DomainCap:        balance.DefaultConfig().Cap,
		CredibilityFloor: 0.70,
	}
}

// run bundles the per-run state the collection and refinement passes share.
// collected accumulates every normalized record across passes; the filter
// chain always re-runs over the whole pool so backfill records dedup against
// the originals.
type run struct {
	req       core.ResearchRequest
	runDir    string
	it        intent.Intent
	registry  *search.Registry
	health    *search.Health
	guard     *search.RunGuard
	perCall   time.Duration
	searchCfg search.Config
	norm      *normalize.Normalizer
	canon     *canonical.Canonicalizer
	enricher  *enrich.Enricher
	cache     *enrich.Cache
	tri       *triangulate.Triangulator
	balancer  *balance.Balancer
	evaluator *gates.Evaluator

	collected []core.Evidence
	attempts  int
	failures  int
	domainCap float64
}

// collect dispatches queries and folds the hits into the normalized pool.
// hitsOverride trims the per-provider result count on backfill passes; zero
// keeps the depth profile's count.
func (r *run) collect(ctx context.Context, queries []string, hitsOverride int) {
	cfg := r.searchCfg
	if hitsOverride > 0 {
		cfg.MaxResults = hitsOverride
	}
	dispatcher := dispatch.New(r.registry, r.health, r.guard, r.perCall, cfg)
	batches := dispatcher.Run(ctx, r.it, r.req.Topic, queries)

	attempts, failures := dispatch.Tally(batches)
	r.attempts += attempts
	r.failures += failures

	fresh := 0
	for _, batch := range batches {
		hits := dispatch.Flatten([]dispatch.Batch{batch})
		records := r.norm.NormalizeAll(hits, batch.Query)
		r.collected = append(r.collected, records...)
		fresh += len(records)
	}
	logger.Info("Collection pass complete",
		"queries", len(queries),
		"records", fresh,
		"attempts", attempts,
		"failures", failures)
}

// refine runs the filter chain over the full pool: canonicalize, dedup,
// enrich, triangulate, balance, then the cluster projection that reconciles
// flags with the survivors.
func (r *run) refine(ctx context.Context) ([]core.Evidence, []core.Cluster, []core.Cluster, error) {
	evs := r.canon.Apply(ctx, r.collected)
	evs, _ = canonical.Dedup(evs)
	evs = r.enricher.Enrich(ctx, evs)

	triRes, err := r.tri.Run(ctx, evs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("triangulate: %w", err)
	}

	balRes := r.balancer.Run(triRes.Evidence)
	r.domainCap = balRes.EffectiveCap

	paraphrase, structured, evs := triangulate.Project(
		triRes.ParaphraseClusters, triRes.StructuredTriangles, balRes.Evidence)
	return evs, paraphrase, structured, nil
}

// judge persists the pass and evaluates the gates against what actually
// landed in the evidence file: metrics are computed from the written slice,
// written to disk, and reloaded before the decision.
func (r *run) judge(evs []core.Evidence, paraphrase, structured []core.Cluster) ([]core.Evidence, core.RunMetrics, gates.Decision, error) {
	written, rejected, err := artifacts.WriteEvidence(r.runDir, evs)
	if err != nil {
		return nil, core.RunMetrics{}, gates.Decision{}, fmt.Errorf("write evidence: %w", err)
	}
	if rejected > 0 {
		logger.Warn("Records failed schema validation", "rejected", rejected)
	}

	clusters := make([]core.Cluster, 0, len(paraphrase)+len(structured))
	clusters = append(clusters, paraphrase...)
	clusters = append(clusters, structured...)

	m := r.evaluator.Metrics(written, clusters, r.errorRate(), r.domainCap)
	if err := artifacts.WriteMetrics(r.runDir, m); err != nil {
		return nil, core.RunMetrics{}, gates.Decision{}, fmt.Errorf("write metrics: %w", err)
	}
	if err := artifacts.WriteTriangulation(r.runDir, paraphrase, structured, written); err != nil {
		return nil, core.RunMetrics{}, gates.Decision{}, fmt.Errorf("write triangulation: %w", err)
	}

	reloaded, err := artifacts.LoadMetrics(r.runDir)
	if err != nil {
		return nil, core.RunMetrics{}, gates.Decision{}, fmt.Errorf("reload metrics: %w", err)
	}
	return written, reloaded, r.evaluator.Evaluate(reloaded), nil
}

func (r *run) errorRate() float64 {
	if r.attempts == 0 {
		return 0
	}
	return float64(r.failures) / float64(r.attempts)
}

func (r *run) close() {
	if r.cache != nil {
		_ = r.cache.Close()
	}
}

// providersUsed lists the tags that made at least one admitted call.
func (r *run) providersUsed() []string {
	var out []string
	for _, spec := range r.registry.Specs() {
		if r.guard.Used(spec.Tag) > 0 {
			out = append(out, spec.Tag)
		}
	}
	return out
}

// evidenceProviders derives the provider list from stored records on resume,
// where no run guard exists.
func evidenceProviders(evs []core.Evidence) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ev := range evs {
		if ev.Provider == "" || seen[ev.Provider] {
			continue
		}
		seen[ev.Provider] = true
		out = append(out, ev.Provider)
	}
	sort.Strings(out)
	return out
}

func remainingFraction(start time.Time, wall time.Duration) float64 {
	if wall <= 0 {
		return 0
	}
	left := wall - time.Since(start)
	if left <= 0 {
		return 0
	}
	return left.Seconds() / wall.Seconds()
}

func parseTimeout(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
