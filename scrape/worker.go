package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/use-agent/dealscout/browser"
	"github.com/use-agent/dealscout/models"
	"github.com/use-agent/dealscout/price"
	"github.com/use-agent/dealscout/search"
)

// worker owns one session and drains the shared queue.
type worker struct {
	id       int
	launcher browser.Launcher
	finder   search.Finder
	site     Site
	queue    <-chan Task
	state    *runState
	pacing   time.Duration
	log      *slog.Logger
}

// run processes tasks until the queue is empty or ctx is done. A session
// that cannot be created or prepared ends only this worker. A panic outside
// task processing is returned as an error and fails the run.
func (w *worker) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("worker %d panicked: %v", w.id, r)
		}
	}()

	w.log.Info("launching session")
	sess, err := w.launcher.Launch(ctx)
	if err != nil {
		w.log.Warn("session launch failed, worker exiting", "error", err)
		return nil
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			w.log.Debug("session close failed", "error", cerr)
		}
		w.log.Info("worker shut down")
	}()

	if err := w.site.Prepare(ctx, sess); err != nil {
		w.log.Warn("session init failed, worker exiting", "error", err)
		return nil
	}
	w.log.Info("worker ready")

	for {
		if ctx.Err() != nil {
			return nil
		}

		var task Task
		select {
		case t, ok := <-w.queue:
			if !ok {
				return nil
			}
			task = t
		default:
			return nil
		}

		result := w.process(ctx, sess, task)
		done := w.state.publish(task, result)
		w.log.Info("task done",
			"done", done,
			"total", w.state.total,
			"game", task.Query,
			"price", priceLabel(result),
		)

		if err := sleep(ctx, w.pacing); err != nil {
			return nil
		}
	}
}

// process searches for one task. Any search failure, panics included,
// produces a no-match result and sends the session back to the home page.
func (w *worker) process(ctx context.Context, sess browser.Session, t Task) models.Result {
	// Stop requests are honored between tasks only.
	taskCtx := context.WithoutCancel(ctx)

	m, err := w.search(taskCtx, sess, t.Query)
	if err != nil {
		w.log.Warn("search failed", "game", t.Query, "error", err)
		w.site.Recover(taskCtx, sess)
		m = search.Match{}
	}
	return newResult(t.Query, m)
}

func (w *worker) search(ctx context.Context, sess browser.Session, query string) (m search.Match, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search panicked: %v", r)
		}
	}()
	return w.finder.FindBestMatch(ctx, sess, query)
}

// newResult converts a match into the persisted record for query.
func newResult(query string, m search.Match) models.Result {
	r := models.Result{SearchName: query, MatchedName: query}
	if !m.Found() {
		return r
	}

	r.MatchedName = m.Name
	r.MatchConfidence = m.Confidence
	if m.Price != "" {
		label := m.Price
		r.Price = &label
		r.PriceValue = price.Value(&label)
	}
	if m.URL != "" {
		u := m.URL
		r.URL = &u
	}
	return r
}

func priceLabel(r models.Result) string {
	if r.HasPrice() {
		return *r.Price
	}
	return "N/A"
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
