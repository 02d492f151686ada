// Package search finds the listing on the price-comparison site that best
// matches a game title.
package search

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/dealscout/browser"
	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/matcher"
)

const (
	// readySelector marks a rendered result page.
	readySelector = ".hoverable-box, a.full-link, .game-info-title"

	// retryReadySelector marks a rendered result page on the retry pass.
	retryReadySelector = ".hoverable-box, a.full-link"

	itemSelector         = ".hoverable-box"
	fallbackItemSelector = "[class*='game-list'] > div, .list-items > div"
	linkSelector         = "a.full-link"
	priceSelector        = ".price-inner"

	// clickTimeout bounds a cookie-consent click.
	clickTimeout = 5 * time.Second
)

// consentSelectors are tried in order until one button accepts a click.
var consentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"button[class*='cookie']",
	".css-47sehv",
}

// Options tunes the search and matching policy.
type Options struct {
	BaseURL       string
	MaxCandidates int
	EarlyExit     float64
	RetryBelow    float64
	RejectBelow   float64
	WaitTimeout   time.Duration
	SettleDelay   time.Duration

	// InitDelay is slept after a new session opens the home page.
	InitDelay time.Duration

	// RecoveryDelay is slept after Recover navigates home.
	RecoveryDelay time.Duration
}

// DefaultOptions returns the gg.deals defaults.
func DefaultOptions() Options {
	return Options{
		BaseURL:       "https://gg.deals",
		MaxCandidates: 8,
		EarlyExit:     0.95,
		RetryBelow:    0.4,
		RejectBelow:   0.3,
		WaitTimeout:   10 * time.Second,
		SettleDelay:   3 * time.Second,
		InitDelay:     8 * time.Second,
		RecoveryDelay: 3 * time.Second,
	}
}

// OptionsFromConfig builds Options from the search and worker settings.
func OptionsFromConfig(sc config.SearchConfig, wc config.WorkerConfig) Options {
	return Options{
		BaseURL:       strings.TrimRight(sc.BaseURL, "/"),
		MaxCandidates: sc.MaxCandidates,
		EarlyExit:     sc.EarlyExit,
		RetryBelow:    sc.RetryBelow,
		RejectBelow:   sc.RejectBelow,
		WaitTimeout:   sc.WaitTimeout,
		SettleDelay:   sc.SettleDelay,
		InitDelay:     wc.InitDelay,
		RecoveryDelay: wc.RecoveryDelay,
	}
}

// Match is the accepted listing for a query. The zero Match means nothing
// acceptable was found.
type Match struct {
	Name       string  `json:"name"`
	Price      string  `json:"price"`
	URL        string  `json:"url"`
	Confidence float64 `json:"confidence"`
}

// Found reports whether a listing was accepted.
func (m Match) Found() bool {
	return m.Name != ""
}

// Finder looks up the best listing for a query on a session.
type Finder interface {
	FindBestMatch(ctx context.Context, s browser.Session, query string) (Match, error)
}

// Strategy implements Finder for gg.deals style result pages. A Strategy is
// stateless and may be shared by all workers.
type Strategy struct {
	opts Options
}

// New creates a Strategy. Non-positive thresholds, candidate limits and wait
// timeouts fall back to the defaults. Delays may be zero.
func New(opts Options) *Strategy {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = def.MaxCandidates
	}
	if opts.EarlyExit <= 0 {
		opts.EarlyExit = def.EarlyExit
	}
	if opts.RetryBelow <= 0 {
		opts.RetryBelow = def.RetryBelow
	}
	if opts.RejectBelow <= 0 {
		opts.RejectBelow = def.RejectBelow
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = def.WaitTimeout
	}
	return &Strategy{opts: opts}
}

// HomeURL is the site root.
func (st *Strategy) HomeURL() string {
	return st.opts.BaseURL + "/"
}

// SearchURL is the result page for query.
func (st *Strategy) SearchURL(query string) string {
	return st.opts.BaseURL + "/games/?title=" + url.QueryEscape(query)
}

// Prepare readies a fresh session: it opens the home page, lets it settle
// and dismisses the cookie banner if one is shown.
func (st *Strategy) Prepare(ctx context.Context, s browser.Session) error {
	if err := s.Open(ctx, st.HomeURL()); err != nil {
		return err
	}
	if err := sleep(ctx, st.opts.InitDelay); err != nil {
		return err
	}

	for _, sel := range consentSelectors {
		btns := s.Find(sel)
		if len(btns) == 0 {
			continue
		}
		clickCtx, cancel := context.WithTimeout(ctx, clickTimeout)
		err := btns[0].Click(clickCtx)
		cancel()
		if err != nil {
			slog.Debug("consent button not clickable", "selector", sel, "error", err)
			continue
		}
		_ = sleep(ctx, time.Second)
		break
	}
	return nil
}

// Recover puts a session back on the home page after a failed search.
// Failures are logged, not returned.
func (st *Strategy) Recover(ctx context.Context, s browser.Session) {
	if err := s.Open(ctx, st.HomeURL()); err != nil {
		slog.Debug("recovery navigation failed", "error", err)
		return
	}
	_ = sleep(ctx, st.opts.RecoveryDelay)
}

// FindBestMatch searches for query and returns the best scoring listing.
//
// A first pass scores up to MaxCandidates result entries, falling back to
// raw listing links when no entry yields a name. When the best score stays
// below RetryBelow a second pass searches for the simplified query, still
// scoring against the original one. A best score below RejectBelow yields the
// zero Match. Only a failure to open the first result page is returned as an
// error.
func (st *Strategy) FindBestMatch(ctx context.Context, s browser.Session, query string) (Match, error) {
	if err := st.load(ctx, s, query, readySelector); err != nil {
		return Match{}, err
	}

	var b best
	st.scanItems(s, query, &b)
	if !b.found() {
		st.scanLinks(s, query, &b)
	}

	if b.score < st.opts.RetryBelow {
		simplified := matcher.Simplify(query)
		if !strings.EqualFold(simplified, query) {
			if err := st.load(ctx, s, simplified, retryReadySelector); err != nil {
				slog.Debug("retry search failed, keeping first pass", "query", query, "error", err)
			} else {
				st.scanItems(s, query, &b)
			}
		}
	}

	if !b.found() || b.score < st.opts.RejectBelow {
		return Match{}, nil
	}

	m := b.match
	m.Confidence = round3(b.score)
	return m, nil
}

// load opens the result page for q and waits for it to render.
func (st *Strategy) load(ctx context.Context, s browser.Session, q, ready string) error {
	if err := s.Open(ctx, st.SearchURL(q)); err != nil {
		return err
	}

	err := s.WaitFor(ctx, ready, st.opts.WaitTimeout)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, browser.ErrWaitTimeout):
		return sleep(ctx, st.opts.SettleDelay)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		slog.Debug("wait for results failed", "query", q, "error", err)
		return sleep(ctx, st.opts.SettleDelay)
	}
}

// best tracks the highest scoring candidate seen so far.
type best struct {
	match Match
	score float64
}

func (b *best) found() bool {
	return b.match.Name != ""
}

// offer records c when it scores strictly better and reports whether the
// scan may stop early.
func (b *best) offer(c Match, score, earlyExit float64) bool {
	if score > b.score {
		b.score = score
		b.match = c
	}
	return score >= earlyExit
}

// scanItems scores result entries, falling back to the generic list
// containers when no result box is present.
func (st *Strategy) scanItems(s browser.Session, query string, b *best) {
	items := s.Find(itemSelector)
	if len(items) == 0 {
		items = s.Find(fallbackItemSelector)
	}
	for _, item := range limit(items, st.opts.MaxCandidates) {
		c := extractItem(item)
		if c.Name == "" {
			continue
		}
		if b.offer(c, matcher.Similarity(query, c.Name), st.opts.EarlyExit) {
			return
		}
	}
}

// scanLinks scores bare listing links and, if one was accepted, takes the
// first price label on the page.
func (st *Strategy) scanLinks(s browser.Session, query string, b *best) {
	for _, link := range limit(s.Find(linkSelector), st.opts.MaxCandidates) {
		name := extractFirst(link, linkNameExtractors)
		if name == "" {
			continue
		}
		c := Match{Name: name, URL: extractFirst(link, linkURLExtractors)}
		if b.offer(c, matcher.Similarity(query, name), st.opts.EarlyExit) {
			break
		}
	}

	if !b.found() {
		return
	}
	if prices := s.Find(priceSelector); len(prices) > 0 {
		if text, err := prices[0].Text(); err == nil {
			b.match.Price = strings.TrimSpace(text)
		}
	}
}

func limit[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
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
