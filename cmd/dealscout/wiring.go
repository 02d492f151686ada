package main

import (
	"fmt"
	"log/slog"

	"github.com/use-agent/dealscout/browser"
	"github.com/use-agent/dealscout/cache"
	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/jobs"
	"github.com/use-agent/dealscout/scrape"
	"github.com/use-agent/dealscout/search"
)

// pipeline holds the pieces shared by every scrape run of the process.
type pipeline struct {
	launcher browser.Launcher
	strategy *search.Strategy
	finder   search.Finder
	opts     scrape.Options
	matches  *cache.Cache[search.Match]
}

func newPipeline(c *config.Config) (*pipeline, error) {
	launcher, err := browser.NewLauncher(c.Browser)
	if err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}

	strategy := search.New(search.OptionsFromConfig(c.Search, c.Worker))
	p := &pipeline{
		launcher: launcher,
		strategy: strategy,
		finder:   strategy,
		opts:     scrape.OptionsFromConfig(c.Worker),
	}
	if c.Cache.TTL > 0 {
		p.matches = cache.New[search.Match](c.Cache.MaxEntries, c.Cache.TTL)
		p.finder = search.NewCachedFinder(strategy, p.matches)
		slog.Info("match cache enabled", "ttl", c.Cache.TTL, "max_entries", c.Cache.MaxEntries)
	}
	return p, nil
}

// orchestrator builds a scrape run labelled with tab and writing to sink.
func (p *pipeline) orchestrator(tab string, sink scrape.Sink) *scrape.Orchestrator {
	opts := p.opts
	opts.Label = tab
	return scrape.New(p.launcher, p.finder, p.strategy, sink, opts)
}

// runnerFactory adapts orchestrator to the job manager.
func (p *pipeline) runnerFactory() jobs.RunnerFactory {
	return func(tab string, sink scrape.Sink) jobs.Runner {
		return p.orchestrator(tab, sink)
	}
}

func (p *pipeline) Close() {
	if p.matches != nil {
		p.matches.Close()
	}
}
