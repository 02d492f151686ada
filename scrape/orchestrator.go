// Package scrape runs a pool of browser sessions over a list of game titles
// and persists the matches as they are found.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/dealscout/browser"
	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/models"
	"github.com/use-agent/dealscout/search"
	"golang.org/x/sync/errgroup"
)

// Site prepares fresh sessions and repairs them after a failed search.
type Site interface {
	Prepare(ctx context.Context, s browser.Session) error
	Recover(ctx context.Context, s browser.Session)
}

// Options controls worker scheduling and persistence.
type Options struct {
	// StaggerDelay separates successive worker launches.
	StaggerDelay time.Duration

	// PacingDelay is slept by a worker after each task.
	PacingDelay time.Duration

	// PersistEvery writes the result list every N finished tasks. The final
	// list is always written.
	PersistEvery int

	// Label tags log lines, typically with the job tab.
	Label string
}

// OptionsFromConfig builds Options from the worker settings.
func OptionsFromConfig(wc config.WorkerConfig) Options {
	return Options{
		StaggerDelay: wc.StaggerDelay,
		PacingDelay:  wc.PacingDelay,
		PersistEvery: wc.PersistEvery,
	}
}

// Orchestrator runs scrape jobs. One Orchestrator may serve many sequential
// or concurrent Run calls; each call owns its own state.
type Orchestrator struct {
	launcher browser.Launcher
	finder   search.Finder
	site     Site
	sink     Sink
	opts     Options
	log      *slog.Logger
}

// New creates an Orchestrator. sink may be nil.
func New(launcher browser.Launcher, finder search.Finder, site Site, sink Sink, opts Options) *Orchestrator {
	log := slog.Default()
	if opts.Label != "" {
		log = log.With("tab", opts.Label)
	}
	return &Orchestrator{
		launcher: launcher,
		finder:   finder,
		site:     site,
		sink:     sink,
		opts:     opts,
		log:      log,
	}
}

// Run searches for every distinct query using up to workers sessions and
// returns one result per processed query, in input order.
//
// Cancelling ctx stops workers between tasks: the results finished so far
// are returned, persisted and reported with status "stopped". A worker
// panic fails the run with status "error".
func (o *Orchestrator) Run(ctx context.Context, queries []string, workers int) (results []models.Result, err error) {
	games := Dedupe(queries)
	state := newRunState(len(games), o.sink, o.opts.PersistEvery, o.log)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scrape: run panicked: %v", r)
			o.log.Error("run failed", "error", err)
			results = state.finish(models.StatusError, err.Error())
		}
	}()

	state.start()
	if len(games) == 0 {
		return state.finish(models.StatusCompleted, ""), nil
	}

	workers = clampWorkers(workers, len(games))
	o.log.Info("starting scrape", "workers", workers, "games", len(games))

	queue := newQueue(games)
	g, gctx := errgroup.WithContext(ctx)

launch:
	for id := 1; id <= workers; id++ {
		if id > 1 {
			if len(queue) == 0 {
				break
			}
			select {
			case <-time.After(o.opts.StaggerDelay):
			case <-gctx.Done():
				break launch
			}
		}

		w := &worker{
			id:       id,
			launcher: o.launcher,
			finder:   o.finder,
			site:     o.site,
			queue:    queue,
			state:    state,
			pacing:   o.opts.PacingDelay,
			log:      o.log.With("worker", id),
		}
		g.Go(func() error { return w.run(gctx) })
	}

	if runErr := g.Wait(); runErr != nil {
		o.log.Error("scrape failed", "error", runErr)
		return state.finish(models.StatusError, runErr.Error()), runErr
	}

	status := models.StatusCompleted
	if ctx.Err() != nil {
		status = models.StatusStopped
	}
	results = state.finish(status, "")
	o.log.Info("scrape finished", "status", status, "done", len(results), "total", len(games))
	return results, nil
}
