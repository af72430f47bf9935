// Package dispatch fans planned queries out across the selected providers.
// All provider calls for one query run in parallel; query batches run
// sequentially so later stages can observe partial supply and stop early.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dossier/internal/intent"
	"dossier/internal/logger"
	"dossier/internal/search"
)

// Batch is the outcome of dispatching one query. Every selected provider
// appears in Results; failed or skipped providers map to an empty slice so
// provider identity is never lost.
type Batch struct {
	Query   string
	Results map[string][]search.Result
	Errors  map[string]error
	Skipped map[string]string // provider tag → reason it was not called
}

// Dispatcher coordinates registry selection, health checks, run-guard
// admission and the parallel calls themselves.
type Dispatcher struct {
	registry  *search.Registry
	health    *search.Health
	guard     *search.RunGuard
	perCall   time.Duration
	searchCfg search.Config
}

// New creates a dispatcher. perCall bounds each provider call; the overall
// run deadline arrives through the context given to Run.
func New(registry *search.Registry, health *search.Health, guard *search.RunGuard, perCall time.Duration, searchCfg search.Config) *Dispatcher {
	if perCall <= 0 {
		perCall = 30 * time.Second
	}
	return &Dispatcher{
		registry:  registry,
		health:    health,
		guard:     guard,
		perCall:   perCall,
		searchCfg: searchCfg,
	}
}

// Run dispatches the queries in order and returns one batch per query
// attempted. When the context deadline expires mid-run, in-flight calls are
// cancelled and the batches collected so far are returned.
func (d *Dispatcher) Run(ctx context.Context, topicIntent intent.Intent, topic string, queries []string) []Batch {
	var batches []Batch
	for _, query := range queries {
		if ctx.Err() != nil {
			logger.Warn("Dispatch stopped early, run deadline reached",
				"completed_batches", len(batches), "planned_queries", len(queries))
			break
		}
		batches = append(batches, d.dispatchOne(ctx, topicIntent, topic, query))
	}
	return batches
}

func (d *Dispatcher) dispatchOne(ctx context.Context, topicIntent intent.Intent, topic, query string) Batch {
	batch := Batch{
		Query:   query,
		Results: make(map[string][]search.Result),
		Errors:  make(map[string]error),
		Skipped: make(map[string]string),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, spec := range d.registry.Select(topicIntent, topic, query) {
		tag := spec.Tag

		if ok, reason := d.health.IsAvailable(tag); !ok {
			d.health.MarkSkipped(tag, reason)
			batch.Results[tag] = []search.Result{}
			batch.Skipped[tag] = reason
			continue
		}
		if ok, reason := d.guard.Acquire(tag, query); !ok {
			d.health.MarkSkipped(tag, reason)
			batch.Results[tag] = []search.Result{}
			batch.Skipped[tag] = reason
			continue
		}

		provider, ok := d.registry.Provider(tag)
		if !ok {
			continue
		}

		g.Go(func() error {
			// Each call gets min(per-provider timeout, remaining run budget).
			callCtx, cancel := context.WithTimeout(gctx, d.perCall)
			defer cancel()

			hits, err := provider.Search(callCtx, query, d.searchCfg)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.health.RecordFailure(tag, search.StatusOf(err))
				batch.Results[tag] = []search.Result{}
				batch.Errors[tag] = err
				logger.Warn("Provider call failed", "provider", tag, "query", query, "error", err.Error())
				return nil // one provider's failure must not cancel the others
			}
			d.health.RecordSuccess(tag)
			batch.Results[tag] = hits
			return nil
		})
	}

	g.Wait()
	return batch
}

// Tally sums attempted and failed provider calls across batches. Skipped
// providers are not attempts.
func Tally(batches []Batch) (attempts, failures int) {
	for _, b := range batches {
		for tag := range b.Results {
			if _, skipped := b.Skipped[tag]; skipped {
				continue
			}
			attempts++
			if b.Errors[tag] != nil {
				failures++
			}
		}
	}
	return attempts, failures
}

// Flatten returns every hit in deterministic order: batch order, then
// provider tag order, then the provider's own ranking.
func Flatten(batches []Batch) []search.Result {
	var out []search.Result
	for _, b := range batches {
		tags := make([]string, 0, len(b.Results))
		for tag := range b.Results {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			out = append(out, b.Results[tag]...)
		}
	}
	return out
}
