package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/dealscout/browser"
	"github.com/use-agent/dealscout/cache"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.SettleDelay = 0
	opts.InitDelay = 0
	opts.RecoveryDelay = 0
	return opts
}

// site serves canned pages and records every URL requested.
type site struct {
	mu     sync.Mutex
	pages  map[string]string
	opened []string
}

func newSite(pages map[string]string) *site {
	return &site{pages: pages}
}

func (s *site) fetch(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, url)
	body, ok := s.pages[url]
	if !ok {
		return nil, errors.New("HTTP 404")
	}
	return []byte(body), nil
}

func (s *site) session() browser.Session {
	return browser.NewDocumentSession(s.fetch)
}

func box(name, price, href string) string {
	return fmt.Sprintf(`<div class="hoverable-box">
  <a class="full-link" aria-label="Go to: %s" href="%s"></a>
  <div class="game-info-title">%s</div>
  <span class="price-inner">%s</span>
</div>`, name, href, name, price)
}

func page(items ...string) string {
	return `<html><body><div class="list-items">` + strings.Join(items, "\n") + `</div></body></html>`
}

func searchURL(q string) string {
	return New(testOptions()).SearchURL(q)
}

func TestNew_FillsDefaults(t *testing.T) {
	def := DefaultOptions()
	st := New(Options{})
	assert.Equal(t, def.BaseURL, st.opts.BaseURL)
	assert.Equal(t, def.MaxCandidates, st.opts.MaxCandidates)
	assert.Equal(t, def.EarlyExit, st.opts.EarlyExit)
	assert.Equal(t, def.RetryBelow, st.opts.RetryBelow)
	assert.Equal(t, def.RejectBelow, st.opts.RejectBelow)
	assert.Equal(t, def.WaitTimeout, st.opts.WaitTimeout)
	assert.Zero(t, st.opts.SettleDelay)
	assert.Zero(t, st.opts.InitDelay)
}

func TestSearchURL(t *testing.T) {
	st := New(testOptions())
	assert.Equal(t, "https://gg.deals/games/?title=Portal+2", st.SearchURL("Portal 2"))
	assert.Equal(t, "https://gg.deals/games/?title=Baldur%27s+Gate+3", st.SearchURL("Baldur's Gate 3"))
	assert.Equal(t, "https://gg.deals/", st.HomeURL())
}

func TestFindBestMatch_Exact(t *testing.T) {
	ws := newSite(map[string]string{
		searchURL("Portal 2"): page(
			box("Portal Knights", "$4.99", "/game/portal-knights/"),
			box("Portal 2", "$9.99", "/game/portal-2/"),
			box("Portal 2 - Soundtrack", "$1.99", "/game/portal-2-ost/"),
		),
	})

	m, err := New(testOptions()).FindBestMatch(context.Background(), ws.session(), "Portal 2")
	require.NoError(t, err)

	assert.True(t, m.Found())
	assert.Equal(t, "Portal 2", m.Name)
	assert.Equal(t, "$9.99", m.Price)
	assert.Equal(t, "https://gg.deals/game/portal-2/", m.URL)
	assert.Equal(t, 1.0, m.Confidence)
	assert.Len(t, ws.opened, 1)
}

func TestFindBestMatch_NameFromTitleWhenNoLink(t *testing.T) {
	ws := newSite(map[string]string{
		searchURL("Hades"): `<html><body>
<div class="hoverable-box"><div class="game-info-title">Hades</div><span class="price-inner">Free</span></div>
</body></html>`,
	})

	m, err := New(testOptions()).FindBestMatch(context.Background(), ws.session(), "Hades")
	require.NoError(t, err)
	assert.Equal(t, "Hades", m.Name)
	assert.Equal(t, "Free", m.Price)
	assert.Empty(t, m.URL)
}

func TestFindBestMatch_FallbackContainers(t *testing.T) {
	ws := newSite(map[string]string{
		searchURL("Celeste"): `<html><body><div class="game-list-wrapper">
<div><a class="full-link" aria-label="Go to: Celeste" href="/game/celeste/"></a><span class="price-inner">$19.99</span></div>
</div></body></html>`,
	})

	m, err := New(testOptions()).FindBestMatch(context.Background(), ws.session(), "Celeste")
	require.NoError(t, err)
	assert.Equal(t, "Celeste", m.Name)
	assert.Equal(t, "$19.99", m.Price)
	assert.Equal(t, "https://gg.deals/game/celeste/", m.URL)
}

func TestFindBestMatch_RawLinkFallback(t *testing.T) {
	ws := newSite(map[string]string{
		searchURL("Inside"): `<html><body>
<section><a class="full-link" aria-label="Go to: Limbo" href="/game/limbo/"></a></section>
<section><a class="full-link" aria-label="Go to: Inside" href="/game/inside/"></a></section>
<p><span class="price-inner">$3.49</span><span class="price-inner">$7.99</span></p>
</body></html>`,
	})

	m, err := New(testOptions()).FindBestMatch(context.Background(), ws.session(), "Inside")
	require.NoError(t, err)
	assert.Equal(t, "Inside", m.Name)
	assert.Equal(t, "https://gg.deals/game/inside/", m.URL)
	// The link fallback takes the first price label on the page.
	assert.Equal(t, "$3.49", m.Price)
}

func TestFindBestMatch_ContainmentAcceptedBelowEarlyExit(t *testing.T) {
	ws := newSite(map[string]string{
		searchURL("Hollow Knight"): page(
			box("Hollow Knight: Voidheart Edition", "$14.99", "/game/hollow-knight/"),
		),
	})

	m, err := New(testOptions()).FindBestMatch(context.Background(), ws.session(), "Hollow Knight")
	require.NoError(t, err)
	assert.Equal(t, "Hollow Knight: Voidheart Edition", m.Name)
	assert.Equal(t, 0.85, m.Confidence)
}

func TestFindBestMatch_RetryWithSimplifiedQuery(t *testing.T) {
	query := "Star Wars: Jedi - Fallen Order"
	ws := newSite(map[string]string{
		searchURL(query): page(),
		searchURL("Star Wars Jedi Fallen Order"): page(
			box("STAR WARS Jedi: Fallen Order", "$39.99", "/game/star-wars-jedi-fallen-order/"),
		),
	})

	m, err := New(testOptions()).FindBestMatch(context.Background(), ws.session(), query)
	require.NoError(t, err)

	assert.Equal(t, []string{searchURL(query), searchURL("Star Wars Jedi Fallen Order")}, ws.opened)
	assert.Equal(t, "STAR WARS Jedi: Fallen Order", m.Name)
	assert.Equal(t, 1.0, m.Confidence)
}

func TestFindBestMatch_RetryNavigationFailureKeepsFirstPass(t *testing.T) {
	query := "Doom: Eternal"
	ws := newSite(map[string]string{
		searchURL(query): page(box("Qwrty", "$1.00", "/game/qwrty/")),
	})

	m, err := New(testOptions()).FindBestMatch(context.Background(), ws.session(), query)
	require.NoError(t, err)
	assert.False(t, m.Found())
	assert.Len(t, ws.opened, 2)
}

func TestFindBestMatch_RejectsPoorMatch(t *testing.T) {
	ws := newSite(map[string]string{
		searchURL("Nonexistent Game Zzqx"): page(box("Portal 2", "$9.99", "/game/portal-2/")),
	})

	m, err := New(testOptions()).FindBestMatch(context.Background(), ws.session(), "Nonexistent Game Zzqx")
	require.NoError(t, err)

	assert.False(t, m.Found())
	assert.Equal(t, Match{}, m)
	// Simplify leaves the query unchanged, so no retry happens.
	assert.Len(t, ws.opened, 1)
}

func TestFindBestMatch_OnlyFirstCandidatesScored(t *testing.T) {
	items := make([]string, 0, 9)
	for i := 1; i <= 8; i++ {
		items = append(items, box(fmt.Sprintf("Qwrty %d", i), "$1", "/x/"))
	}
	items = append(items, box("Hades", "$24.99", "/game/hades/"))

	ws := newSite(map[string]string{searchURL("Hades"): page(items...)})

	m, err := New(testOptions()).FindBestMatch(context.Background(), ws.session(), "Hades")
	require.NoError(t, err)
	assert.False(t, m.Found())
}

func TestFindBestMatch_OpenFailure(t *testing.T) {
	ws := newSite(map[string]string{})

	_, err := New(testOptions()).FindBestMatch(context.Background(), ws.session(), "Portal 2")
	assert.Error(t, err)
}

func TestPrepare_ConsentClick(t *testing.T) {
	accept := &fakeElement{}
	s := &fakeSession{elements: map[string][]browser.Element{
		"#onetrust-accept-btn-handler": {&fakeElement{clickErr: errors.New("not visible")}},
		"button[class*='cookie']":      {accept},
	}}

	require.NoError(t, New(testOptions()).Prepare(context.Background(), s))
	assert.Equal(t, []string{"https://gg.deals/"}, s.opened)
	assert.Equal(t, 1, accept.clicks)
}

func TestPrepare_OpenFailure(t *testing.T) {
	s := &fakeSession{openErr: errors.New("connection refused")}
	assert.Error(t, New(testOptions()).Prepare(context.Background(), s))
}

func TestPrepare_StaticDocumentWithoutBanner(t *testing.T) {
	ws := newSite(map[string]string{"https://gg.deals/": `<html><body><button class="cookie-ok">OK</button></body></html>`})
	assert.NoError(t, New(testOptions()).Prepare(context.Background(), ws.session()))
}

// countingFinder counts lookups and returns a fixed match.
type countingFinder struct {
	calls int
	match Match
	err   error
}

func (f *countingFinder) FindBestMatch(context.Context, browser.Session, string) (Match, error) {
	f.calls++
	return f.match, f.err
}

func TestCachedFinder(t *testing.T) {
	c := cache.New[Match](10, time.Minute)
	defer c.Close()

	next := &countingFinder{match: Match{Name: "Portal 2", Confidence: 1}}
	f := NewCachedFinder(next, c)

	m, err := f.FindBestMatch(context.Background(), nil, "Portal 2")
	require.NoError(t, err)
	assert.Equal(t, "Portal 2", m.Name)

	m, err = f.FindBestMatch(context.Background(), nil, "  portal 2 ")
	require.NoError(t, err)
	assert.Equal(t, "Portal 2", m.Name)
	assert.Equal(t, 1, next.calls)

	// A platform suffix changes the search URL, so it gets its own entry.
	_, err = f.FindBestMatch(context.Background(), nil, "Portal 2 PS5")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, 2, c.Len())
}

func TestCachedFinder_ErrorsNotCached(t *testing.T) {
	c := cache.New[Match](10, time.Minute)
	defer c.Close()

	next := &countingFinder{err: errors.New("boom")}
	f := NewCachedFinder(next, c)

	_, err := f.FindBestMatch(context.Background(), nil, "Portal 2")
	assert.Error(t, err)
	_, err = f.FindBestMatch(context.Background(), nil, "Portal 2")
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Zero(t, c.Len())
}

type fakeSession struct {
	openErr  error
	opened   []string
	elements map[string][]browser.Element
}

func (s *fakeSession) Open(_ context.Context, url string) error {
	s.opened = append(s.opened, url)
	return s.openErr
}

func (s *fakeSession) WaitFor(context.Context, string, time.Duration) error {
	return browser.ErrWaitTimeout
}

func (s *fakeSession) Find(selector string) []browser.Element {
	return s.elements[selector]
}

func (s *fakeSession) Close() error { return nil }

type fakeElement struct {
	clicks   int
	clickErr error
}

func (e *fakeElement) Text() (string, error)            { return "", nil }
func (e *fakeElement) Attribute(string) (string, error) { return "", nil }
func (e *fakeElement) Find(string) []browser.Element    { return nil }
func (e *fakeElement) Click(context.Context) error {
	e.clicks++
	return e.clickErr
}
