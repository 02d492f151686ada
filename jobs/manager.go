// Package jobs runs at most one scrape per tab in the background and serves
// the persisted progress and results of each tab.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/dealscout/archive"
	"github.com/use-agent/dealscout/models"
	"github.com/use-agent/dealscout/scrape"
	"github.com/use-agent/dealscout/webhook"
)

// Runner executes one scrape job.
type Runner interface {
	Run(ctx context.Context, queries []string, workers int) ([]models.Result, error)
}

// RunnerFactory builds the runner for a job on tab writing to sink.
type RunnerFactory func(tab string, sink scrape.Sink) Runner

// Options configures a Manager.
type Options struct {
	DataDir        string
	Tabs           []string
	DefaultWorkers int

	// Archive records finished runs when non-nil.
	Archive archive.Store

	// Notifier is told about finished runs when non-nil.
	Notifier *webhook.Notifier
}

// Job describes an accepted Start call.
type Job struct {
	ID      string
	Tab     string
	Total   int
	Workers int
}

type slot struct {
	tab    string
	sink   *scrape.FileSink
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *slot) running() bool { return s.cancel != nil }

// Manager owns the job slots.
type Manager struct {
	mu        sync.Mutex
	slots     map[string]*slot
	tabs      []string
	newRunner RunnerFactory
	opts      Options
}

// NewManager creates one slot per tab with its files under opts.DataDir.
func NewManager(newRunner RunnerFactory, opts Options) (*Manager, error) {
	if len(opts.Tabs) == 0 {
		return nil, errors.New("jobs: no tabs configured")
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("jobs: create data dir: %w", err)
	}
	if opts.DefaultWorkers < 1 {
		opts.DefaultWorkers = 3
	}

	m := &Manager{
		slots:     make(map[string]*slot, len(opts.Tabs)),
		newRunner: newRunner,
		opts:      opts,
	}
	for _, tab := range opts.Tabs {
		if _, dup := m.slots[tab]; dup {
			continue
		}
		m.tabs = append(m.tabs, tab)
		m.slots[tab] = &slot{
			tab: tab,
			sink: scrape.NewFileSink(
				filepath.Join(opts.DataDir, tab+"_results.json"),
				filepath.Join(opts.DataDir, tab+"_progress.json"),
			),
		}
	}
	return m, nil
}

// Tabs returns the configured tab names.
func (m *Manager) Tabs() []string {
	return slices.Clone(m.tabs)
}

// SplitGames turns newline-separated text into trimmed, non-empty titles.
func SplitGames(text string) []string {
	var games []string
	for _, line := range strings.Split(text, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			games = append(games, name)
		}
	}
	return games
}

func (m *Manager) slot(tab string) (*slot, error) {
	s, ok := m.slots[tab]
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("invalid tab %q", tab), nil)
	}
	return s, nil
}

// Start launches a scrape of gamesText on tab in the background.
func (m *Manager) Start(tab, gamesText string, workers int) (*Job, error) {
	s, err := m.slot(tab)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.running() {
		return nil, models.NewScrapeError(models.ErrCodeJobRunning, "scraper is already running for this tab", nil)
	}

	games := scrape.Dedupe(SplitGames(gamesText))
	if len(games) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no games provided", nil)
	}
	if workers == 0 {
		workers = m.opts.DefaultWorkers
	}
	workers = max(workers, 1)

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{ID: uuid.New().String(), Tab: tab, Total: len(games), Workers: workers}
	s.jobID = job.ID
	s.cancel = cancel
	s.done = make(chan struct{})

	// Replace the previous run's terminal snapshot before anyone can poll.
	if err := s.sink.SaveProgress(models.NewProgress(0, job.Total, "", models.StatusStarting)); err != nil {
		slog.Warn("write starting progress", "tab", tab, "error", err)
	}

	go m.run(ctx, s, job, games)

	slog.Info("job started", "tab", tab, "job_id", job.ID, "games", len(games), "workers", workers)
	return job, nil
}

func (m *Manager) run(ctx context.Context, s *slot, job *Job, games []string) {
	started := time.Now()
	rec := &recorder{Sink: s.sink}

	results, err := m.execute(ctx, rec, job, games)
	if err != nil {
		slog.Error("job failed", "tab", job.Tab, "job_id", job.ID, "error", err)
		if last := rec.last(); !last.Status.Terminal() {
			p := models.NewProgress(0, 0, err.Error(), models.StatusError)
			if saveErr := rec.SaveProgress(p); saveErr != nil {
				slog.Warn("write error progress", "tab", job.Tab, "error", saveErr)
			}
		}
	}

	final := rec.last()
	m.archive(job, final, results, started)
	m.opts.Notifier.Notify(webhook.NewEvent(job.ID, job.Tab, final))

	m.mu.Lock()
	s.cancel()
	s.cancel = nil
	close(s.done)
	m.mu.Unlock()

	slog.Info("job finished", "tab", job.Tab, "job_id", job.ID, "status", final.Status,
		"done", len(results), "elapsed", time.Since(started).Round(time.Millisecond))
}

func (m *Manager) execute(ctx context.Context, sink scrape.Sink, job *Job, games []string) (results []models.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jobs: runner panicked: %v", r)
		}
	}()
	return m.newRunner(job.Tab, sink).Run(ctx, games, job.Workers)
}

func (m *Manager) archive(job *Job, final models.Progress, results []models.Result, started time.Time) {
	if m.opts.Archive == nil {
		return
	}
	run := &models.RunRecord{
		ID:         job.ID,
		Tab:        job.Tab,
		Status:     final.Status,
		Total:      final.Total,
		Completed:  len(results),
		StartedAt:  started,
		FinishedAt: time.Now(),
		Results:    results,
	}
	if final.Status == models.StatusError {
		run.Message = final.Game
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.opts.Archive.SaveRun(ctx, run); err != nil {
		slog.Warn("archive run", "tab", job.Tab, "job_id", job.ID, "error", err)
	}
}

// Stop requests cancellation of the running job on tab. Workers finish the
// title they are on before exiting.
func (m *Manager) Stop(tab string) error {
	s, err := m.slot(tab)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.running() {
		return models.NewScrapeError(models.ErrCodeJobIdle, "scraper is not running", nil)
	}
	s.cancel()
	slog.Info("stop requested", "tab", tab, "job_id", s.jobID)
	return nil
}

// Status reports whether a job is running on tab.
func (m *Manager) Status(tab string) (bool, error) {
	s, err := m.slot(tab)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return s.running(), nil
}

// Running returns the tabs with a job in flight.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	running := []string{}
	for _, tab := range m.tabs {
		if m.slots[tab].running() {
			running = append(running, tab)
		}
	}
	return running
}

// Wait blocks until the job on tab, if any, has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context, tab string) error {
	s, err := m.slot(tab)
	if err != nil {
		return err
	}
	m.mu.Lock()
	done := s.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Progress returns the last persisted progress of tab, or an idle snapshot
// when the tab never ran.
func (m *Manager) Progress(tab string) (models.Progress, error) {
	s, err := m.slot(tab)
	if err != nil {
		return models.Progress{}, err
	}
	p, err := s.sink.LoadProgress()
	if errors.Is(err, os.ErrNotExist) {
		return models.IdleProgress(), nil
	}
	if err != nil {
		return models.Progress{}, fmt.Errorf("jobs: read progress: %w", err)
	}
	return p, nil
}

// Results returns the persisted results of tab, or an empty list.
func (m *Manager) Results(tab string) ([]models.Result, error) {
	s, err := m.slot(tab)
	if err != nil {
		return nil, err
	}
	results, err := s.sink.LoadResults()
	if errors.Is(err, os.ErrNotExist) {
		return []models.Result{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: read results: %w", err)
	}
	return results, nil
}

// Clear removes the results and progress files of tab.
func (m *Manager) Clear(tab string) error {
	s, err := m.slot(tab)
	if err != nil {
		return err
	}
	if err := s.sink.Remove(); err != nil {
		return fmt.Errorf("jobs: clear %s: %w", tab, err)
	}
	return nil
}

// DeleteResult drops every result of tab whose search name equals
// searchName and returns how many remain.
func (m *Manager) DeleteResult(tab, searchName string) (int, error) {
	s, err := m.slot(tab)
	if err != nil {
		return 0, err
	}
	if searchName == "" {
		return 0, models.NewScrapeError(models.ErrCodeInvalidInput, "missing search_name", nil)
	}

	remaining := 0
	err = s.sink.UpdateResults(func(results []models.Result) []models.Result {
		kept := slices.DeleteFunc(results, func(r models.Result) bool {
			return r.SearchName == searchName
		})
		remaining = len(kept)
		return kept
	})
	if errors.Is(err, os.ErrNotExist) {
		return 0, models.NewScrapeError(models.ErrCodeNotFound, "no results file", err)
	}
	if err != nil {
		return 0, fmt.Errorf("jobs: delete result: %w", err)
	}
	return remaining, nil
}

// History returns the archived runs of tab, newest first.
func (m *Manager) History(ctx context.Context, tab string, limit int) ([]models.RunRecord, error) {
	if _, err := m.slot(tab); err != nil {
		return nil, err
	}
	if m.opts.Archive == nil {
		return []models.RunRecord{}, nil
	}
	return m.opts.Archive.ListRuns(ctx, tab, limit)
}

// Shutdown stops every running job and waits for them until ctx is done.
// When removeFiles is set the runtime files of every tab are deleted
// afterwards.
func (m *Manager) Shutdown(ctx context.Context, removeFiles bool) error {
	for _, tab := range m.Running() {
		_ = m.Stop(tab)
	}
	for _, tab := range m.tabs {
		if err := m.Wait(ctx, tab); err != nil {
			return err
		}
	}
	if !removeFiles {
		return nil
	}

	var errs []error
	for _, tab := range m.tabs {
		if err := m.Clear(tab); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// recorder remembers the last progress written through it.
type recorder struct {
	scrape.Sink

	mu       sync.Mutex
	progress models.Progress
}

func (r *recorder) SaveProgress(p models.Progress) error {
	r.mu.Lock()
	r.progress = p
	r.mu.Unlock()
	return r.Sink.SaveProgress(p)
}

func (r *recorder) last() models.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}
