package scrape

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/use-agent/dealscout/models"
)

// runState is the shared state of one Run. A single mutex covers the result
// store, the completed count, progress publication and sink writes, so the
// persisted progress never runs ahead of the persisted results and never
// goes backwards.
type runState struct {
	mu           sync.Mutex
	total        int
	completed    int
	results      map[int]models.Result
	progress     models.Progress
	terminal     bool
	sink         Sink
	persistEvery int
	sinceSave    int
	log          *slog.Logger
}

func newRunState(total int, sink Sink, persistEvery int, log *slog.Logger) *runState {
	return &runState{
		total:        total,
		results:      make(map[int]models.Result, total),
		sink:         sink,
		persistEvery: max(1, persistEvery),
		log:          log,
	}
}

// start publishes the initial progress.
func (s *runState) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(models.NewProgress(0, s.total, "", models.StatusStarting))
}

// publish stores the result of t, advances the completed count and
// persists according to the batching policy.
func (s *runState) publish(t Task, r models.Result) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return s.completed
	}
	if _, dup := s.results[t.Index]; dup {
		s.log.Warn("task published twice", "index", t.Index, "game", t.Query)
		return s.completed
	}

	s.results[t.Index] = r
	s.completed++
	s.emit(models.NewProgress(s.completed, s.total, t.Query, models.StatusRunning))

	s.sinceSave++
	if s.sinceSave >= s.persistEvery {
		s.saveResults()
	}
	return s.completed
}

// finish publishes the terminal progress and the final result list. Later
// calls are ignored.
func (s *runState) finish(status models.Status, game string) []models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return s.ordered()
	}
	s.emit(models.NewProgress(s.completed, s.total, game, status))
	s.terminal = true
	s.saveResults()
	return s.ordered()
}

// snapshot returns the last published progress.
func (s *runState) snapshot() models.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// ordered returns the published results by ascending task index.
// Callers hold s.mu.
func (s *runState) ordered() []models.Result {
	idx := make([]int, 0, len(s.results))
	for i := range s.results {
		idx = append(idx, i)
	}
	slices.Sort(idx)

	out := make([]models.Result, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.results[i])
	}
	return out
}

func (s *runState) emit(p models.Progress) {
	if s.terminal {
		return
	}
	s.progress = p
	if s.sink == nil {
		return
	}
	if err := s.sink.SaveProgress(p); err != nil {
		s.log.Warn("failed to persist progress", "error", err)
	}
}

func (s *runState) saveResults() {
	s.sinceSave = 0
	if s.sink == nil {
		return
	}
	if err := s.sink.SaveResults(s.ordered()); err != nil {
		s.log.Warn("failed to persist results", "error", err)
	}
}
