package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/models"
)

const listingHTML = `<html><body>
<div class="list-items">
  <div class="hoverable-box">
    <a class="full-link" aria-label="Go to: Portal 2" href="/game/portal-2/"></a>
    <div class="game-info-title">Portal 2</div>
    <span class="price-inner">  $9.99 </span>
  </div>
  <div class="hoverable-box">
    <div class="game-info-title">Portal
      Knights</div>
  </div>
</div>
</body></html>`

func staticFetch(pages map[string]string) FetchFunc {
	return func(_ context.Context, url string) ([]byte, error) {
		body, ok := pages[url]
		if !ok {
			return nil, errors.New("HTTP 404")
		}
		return []byte(body), nil
	}
}

func TestDocumentSession_FindAndAttributes(t *testing.T) {
	s := NewDocumentSession(staticFetch(map[string]string{
		"https://gg.deals/games/?title=portal": listingHTML,
	}))
	defer s.Close()

	require.NoError(t, s.Open(context.Background(), "https://gg.deals/games/?title=portal"))

	items := s.Find(".hoverable-box")
	require.Len(t, items, 2)

	links := items[0].Find("a.full-link")
	require.Len(t, links, 1)

	label, err := links[0].Attribute("aria-label")
	require.NoError(t, err)
	assert.Equal(t, "Go to: Portal 2", label)

	href, err := links[0].Attribute("href")
	require.NoError(t, err)
	assert.Equal(t, "https://gg.deals/game/portal-2/", href)

	missing, err := links[0].Attribute("title")
	require.NoError(t, err)
	assert.Empty(t, missing)

	price := items[0].Find(".price-inner")
	require.Len(t, price, 1)
	text, err := price[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "$9.99", text)

	title := items[1].Find(".game-info-title")
	require.Len(t, title, 1)
	text, _ = title[0].Text()
	assert.Equal(t, "Portal Knights", text)
}

func TestDocumentSession_SelectorGroups(t *testing.T) {
	s := NewDocumentSession(staticFetch(map[string]string{"https://x.test/": listingHTML}))
	require.NoError(t, s.Open(context.Background(), "https://x.test/"))

	assert.Len(t, s.Find(".list-items > div"), 2)
	assert.Len(t, s.Find(".hoverable-box, a.full-link, .game-info-title"), 5)
	assert.Nil(t, s.Find("div[[["))
}

func TestDocumentSession_WaitFor(t *testing.T) {
	s := NewDocumentSession(staticFetch(map[string]string{"https://x.test/": listingHTML}))

	// Nothing loaded yet.
	assert.ErrorIs(t, s.WaitFor(context.Background(), ".hoverable-box", time.Second), ErrWaitTimeout)

	require.NoError(t, s.Open(context.Background(), "https://x.test/"))
	assert.NoError(t, s.WaitFor(context.Background(), ".hoverable-box", time.Second))
	assert.ErrorIs(t, s.WaitFor(context.Background(), ".no-such-thing", time.Second), ErrWaitTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.WaitFor(ctx, ".hoverable-box", time.Second), context.Canceled)
}

func TestDocumentSession_OpenFailure(t *testing.T) {
	s := NewDocumentSession(staticFetch(map[string]string{"https://x.test/": listingHTML}))
	require.NoError(t, s.Open(context.Background(), "https://x.test/"))

	err := s.Open(context.Background(), "https://x.test/missing")
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.ErrCodeNavigation))

	// The previous document survives a failed navigation.
	assert.Len(t, s.Find(".hoverable-box"), 2)
}

func TestDocumentSession_Close(t *testing.T) {
	closed := 0
	s := NewDocumentSession(staticFetch(map[string]string{"https://x.test/": listingHTML}))
	s.onClose = func() { closed++ }

	require.NoError(t, s.Open(context.Background(), "https://x.test/"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, closed)
	assert.Nil(t, s.Find(".hoverable-box"))
	assert.Error(t, s.Open(context.Background(), "https://x.test/"))
}

func TestDocumentElement_ClickUnsupported(t *testing.T) {
	s := NewDocumentSession(staticFetch(map[string]string{"https://x.test/": listingHTML}))
	require.NoError(t, s.Open(context.Background(), "https://x.test/"))

	items := s.Find(".hoverable-box")
	require.NotEmpty(t, items)
	assert.ErrorIs(t, items[0].Click(context.Background()), ErrNotInteractive)
}

func TestIsTrackerHost(t *testing.T) {
	assert.True(t, isTrackerHost("doubleclick.net"))
	assert.True(t, isTrackerHost("stats.g.doubleclick.net"))
	assert.True(t, isTrackerHost("WWW.Google-Analytics.com"))
	assert.False(t, isTrackerHost("gg.deals"))
	assert.False(t, isTrackerHost("cdn.cookielaw.org"))
}

func TestNewLauncher(t *testing.T) {
	l, err := NewLauncher(configFor("http"))
	require.NoError(t, err)
	assert.IsType(t, &HTTPLauncher{}, l)

	l, err = NewLauncher(configFor(""))
	require.NoError(t, err)
	assert.IsType(t, &RodLauncher{}, l)

	_, err = NewLauncher(configFor("selenium"))
	assert.Error(t, err)
}

func configFor(driver string) config.BrowserConfig {
	return config.BrowserConfig{Driver: driver}
}
