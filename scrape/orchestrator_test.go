package scrape

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/dealscout/browser"
	"github.com/use-agent/dealscout/models"
	"github.com/use-agent/dealscout/search"
)

// recordingSink keeps every snapshot it receives.
type recordingSink struct {
	mu       sync.Mutex
	progress []models.Progress
	saves    [][]models.Result
}

func (r *recordingSink) SaveResults(results []models.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, append([]models.Result(nil), results...))
	return nil
}

func (r *recordingSink) SaveProgress(p models.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
	return nil
}

func (r *recordingSink) last() models.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress[len(r.progress)-1]
}

type finderFunc func(ctx context.Context, s browser.Session, query string) (search.Match, error)

func (f finderFunc) FindBestMatch(ctx context.Context, s browser.Session, query string) (search.Match, error) {
	return f(ctx, s, query)
}

// stubSite counts preparations and recoveries.
type stubSite struct {
	prepareErr error
	prepares   atomic.Int32
	recovers   atomic.Int32
}

func (s *stubSite) Prepare(context.Context, browser.Session) error {
	s.prepares.Add(1)
	return s.prepareErr
}

func (s *stubSite) Recover(context.Context, browser.Session) {
	s.recovers.Add(1)
}

type nopSession struct {
	closed atomic.Bool
}

func (s *nopSession) Open(context.Context, string) error { return nil }
func (s *nopSession) WaitFor(context.Context, string, time.Duration) error {
	return browser.ErrWaitTimeout
}
func (s *nopSession) Find(string) []browser.Element { return nil }
func (s *nopSession) Close() error {
	s.closed.Store(true)
	return nil
}

// countingLauncher hands out nopSessions and remembers them.
type countingLauncher struct {
	mu       sync.Mutex
	sessions []*nopSession
	failures int // the first N launches fail
}

func (l *countingLauncher) Launch(context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		return nil, errors.New("chrome not found")
	}
	s := &nopSession{}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *countingLauncher) launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func exactFinder() search.Finder {
	return finderFunc(func(_ context.Context, _ browser.Session, q string) (search.Match, error) {
		return search.Match{Name: q, Price: "$1.00", URL: "https://gg.deals/game/x/", Confidence: 1}, nil
	})
}

func fastOptions() Options {
	return Options{PersistEvery: 1}
}

func assertProgressWellFormed(t *testing.T, ps []models.Progress) {
	t.Helper()
	require.NotEmpty(t, ps)
	assert.Equal(t, models.StatusStarting, ps[0].Status)
	assert.Equal(t, 0, ps[0].Current)

	for i := 1; i < len(ps); i++ {
		assert.GreaterOrEqual(t, ps[i].Current, ps[i-1].Current, "progress went backwards at %d", i)
		assert.GreaterOrEqual(t, ps[i].Percent, ps[i-1].Percent)
	}
	for i, p := range ps[:len(ps)-1] {
		assert.False(t, p.Status.Terminal(), "terminal status before the end at %d", i)
	}
	assert.True(t, ps[len(ps)-1].Status.Terminal())
}

func TestRun_EndToEnd(t *testing.T) {
	pages := map[string]string{
		"https://gg.deals/": `<html><body></body></html>`,
		"https://gg.deals/games/?title=Portal+2": `<html><body><div class="list-items">
<div class="hoverable-box"><a class="full-link" aria-label="Go to: Portal 2" href="/game/portal-2/"></a><span class="price-inner">$9.99</span></div>
<div class="hoverable-box"><a class="full-link" aria-label="Go to: Portal Knights" href="/game/portal-knights/"></a><span class="price-inner">$4.99</span></div>
</div></body></html>`,
		"https://gg.deals/games/?title=Nonexistent+Game+Zzqx": `<html><body><div class="list-items">
<div class="hoverable-box"><a class="full-link" aria-label="Go to: Portal 2" href="/game/portal-2/"></a><span class="price-inner">$9.99</span></div>
</div></body></html>`,
	}
	fetch := func(_ context.Context, url string) ([]byte, error) {
		body, ok := pages[url]
		if !ok {
			return nil, errors.New("HTTP 404")
		}
		return []byte(body), nil
	}
	launcher := browser.LauncherFunc(func(context.Context) (browser.Session, error) {
		return browser.NewDocumentSession(fetch), nil
	})

	opts := search.DefaultOptions()
	opts.SettleDelay, opts.InitDelay, opts.RecoveryDelay = 0, 0, 0
	strategy := search.New(opts)

	sink := &recordingSink{}
	o := New(launcher, strategy, strategy, sink, fastOptions())

	results, err := o.Run(context.Background(), []string{"Portal 2", "Nonexistent Game Zzqx"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	portal := results[0]
	assert.Equal(t, "Portal 2", portal.SearchName)
	assert.Equal(t, "Portal 2", portal.MatchedName)
	require.NotNil(t, portal.Price)
	assert.Equal(t, "$9.99", *portal.Price)
	require.NotNil(t, portal.PriceValue)
	assert.InDelta(t, 9.99, *portal.PriceValue, 1e-9)
	require.NotNil(t, portal.URL)
	assert.Equal(t, "https://gg.deals/game/portal-2/", *portal.URL)
	assert.Equal(t, 1.0, portal.MatchConfidence)

	missing := results[1]
	assert.Equal(t, "Nonexistent Game Zzqx", missing.SearchName)
	assert.Equal(t, "Nonexistent Game Zzqx", missing.MatchedName)
	assert.Nil(t, missing.Price)
	assert.Nil(t, missing.PriceValue)
	assert.Nil(t, missing.URL)
	assert.Zero(t, missing.MatchConfidence)

	assertProgressWellFormed(t, sink.progress)
	assert.Equal(t, models.Progress{Current: 2, Total: 2, Status: models.StatusCompleted, Percent: 100}, sink.last())

	// Results were persisted after each task and once more at the end.
	require.Len(t, sink.saves, 3)
	assert.Equal(t, results, sink.saves[2])
}

func TestRun_OrderAndDedupe(t *testing.T) {
	queries := []string{"Portal 2", "Hades", "portal 2", " ", "Celeste", "HADES", "Inside", "Limbo", "Tunic"}
	sink := &recordingSink{}
	o := New(&countingLauncher{}, exactFinder(), &stubSite{}, sink, fastOptions())

	results, err := o.Run(context.Background(), queries, 3)
	require.NoError(t, err)

	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.SearchName)
	}
	assert.Equal(t, []string{"Portal 2", "Hades", "Celeste", "Inside", "Limbo", "Tunic"}, names)

	last := sink.last()
	assert.Equal(t, 6, last.Total)
	assert.Equal(t, 6, last.Current)
	assertProgressWellFormed(t, sink.progress)
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	finder := finderFunc(func(context.Context, browser.Session, string) (search.Match, error) {
		if calls.Add(1) == 1 {
			cancel()
		}
		return search.Match{}, nil
	})

	launcher := &countingLauncher{}
	sink := &recordingSink{}
	o := New(launcher, finder, &stubSite{}, sink, fastOptions())

	results, err := o.Run(ctx, []string{"a", "b", "c", "d", "e"}, 1)
	require.NoError(t, err)

	// The task in flight when stop arrived still finishes.
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].SearchName)

	last := sink.last()
	assert.Equal(t, models.StatusStopped, last.Status)
	assert.Equal(t, 1, last.Current)
	assert.Equal(t, 5, last.Total)
	assert.Equal(t, 20.0, last.Percent)
	assertProgressWellFormed(t, sink.progress)

	require.Equal(t, 1, launcher.launched())
	assert.True(t, launcher.sessions[0].closed.Load(), "session was not released")
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	o := New(&countingLauncher{}, exactFinder(), &stubSite{}, sink, fastOptions())

	results, err := o.Run(ctx, []string{"a", "b"}, 2)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, models.StatusStopped, sink.last().Status)
}

func TestRun_SearchFailureYieldsNoMatch(t *testing.T) {
	finder := finderFunc(func(_ context.Context, _ browser.Session, q string) (search.Match, error) {
		switch q {
		case "Boom":
			panic("selector engine exploded")
		case "Broken":
			return search.Match{}, errors.New("navigation failed")
		}
		return search.Match{Name: q, Confidence: 1}, nil
	})
	site := &stubSite{}
	sink := &recordingSink{}
	o := New(&countingLauncher{}, finder, site, sink, fastOptions())

	results, err := o.Run(context.Background(), []string{"Boom", "Portal 2", "Broken"}, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, i := range []int{0, 2} {
		assert.Equal(t, results[i].SearchName, results[i].MatchedName)
		assert.Nil(t, results[i].Price)
		assert.Zero(t, results[i].MatchConfidence)
	}
	assert.Equal(t, 1.0, results[1].MatchConfidence)
	assert.Equal(t, int32(2), site.recovers.Load())
	assert.Equal(t, models.StatusCompleted, sink.last().Status)
}

func TestRun_SessionInitFailureEndsOnlyThatWorker(t *testing.T) {
	launcher := &countingLauncher{failures: 1}
	sink := &recordingSink{}
	o := New(launcher, exactFinder(), &stubSite{}, sink, fastOptions())

	results, err := o.Run(context.Background(), []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 1, launcher.launched())
	assert.Equal(t, models.StatusCompleted, sink.last().Status)
}

func TestRun_AllSessionsFail(t *testing.T) {
	sink := &recordingSink{}
	site := &stubSite{prepareErr: errors.New("home page unreachable")}
	launcher := &countingLauncher{}
	o := New(launcher, exactFinder(), site, sink, fastOptions())

	results, err := o.Run(context.Background(), []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	assert.Empty(t, results)

	last := sink.last()
	assert.Equal(t, models.StatusCompleted, last.Status)
	assert.Equal(t, 0, last.Current)
	assert.Equal(t, 3, last.Total)
	for _, s := range launcher.sessions {
		assert.True(t, s.closed.Load())
	}
}

type panickySite struct{ stubSite }

func (p *panickySite) Prepare(context.Context, browser.Session) error {
	panic("driver state corrupted")
}

func TestRun_WorkerPanicFailsRun(t *testing.T) {
	sink := &recordingSink{}
	o := New(&countingLauncher{}, exactFinder(), &panickySite{}, sink, fastOptions())

	_, err := o.Run(context.Background(), []string{"a"}, 1)
	require.Error(t, err)

	last := sink.last()
	assert.Equal(t, models.StatusError, last.Status)
	assert.True(t, strings.Contains(last.Game, "driver state corrupted"), last.Game)
	assertProgressWellFormed(t, sink.progress)
}

func TestRun_Empty(t *testing.T) {
	launcher := &countingLauncher{}
	sink := &recordingSink{}
	o := New(launcher, exactFinder(), &stubSite{}, sink, fastOptions())

	results, err := o.Run(context.Background(), []string{"", "  "}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, launcher.launched())
	assert.Equal(t, []models.Progress{
		{Status: models.StatusStarting},
		{Status: models.StatusCompleted},
	}, sink.progress)
}

func TestRun_WorkersClampedToTasks(t *testing.T) {
	launcher := &countingLauncher{}
	o := New(launcher, exactFinder(), &stubSite{}, nil, fastOptions())

	results, err := o.Run(context.Background(), []string{"a", "b"}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.LessOrEqual(t, launcher.launched(), 2)
	assert.GreaterOrEqual(t, launcher.launched(), 1)
}

func TestRun_PersistEvery(t *testing.T) {
	sink := &recordingSink{}
	opts := fastOptions()
	opts.PersistEvery = 2
	o := New(&countingLauncher{}, exactFinder(), &stubSite{}, sink, opts)

	_, err := o.Run(context.Background(), []string{"a", "b", "c", "d", "e"}, 1)
	require.NoError(t, err)

	require.Len(t, sink.saves, 3)
	assert.Len(t, sink.saves[0], 2)
	assert.Len(t, sink.saves[1], 4)
	assert.Len(t, sink.saves[2], 5)
}
