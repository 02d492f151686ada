package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/models"
	"github.com/ysmood/gson"
)

// RodLauncher starts one Chromium process per session.
type RodLauncher struct {
	cfg config.BrowserConfig
}

// NewRodLauncher creates a launcher for the rod driver.
func NewRodLauncher(cfg config.BrowserConfig) *RodLauncher {
	return &RodLauncher{cfg: cfg}
}

// Launch starts a browser, opens a page on it and applies the stealth
// script, the extra headers and the request blocker.
func (r *RodLauncher) Launch(ctx context.Context) (Session, error) {
	l := r.newLauncher(ctx)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeSessionLaunch,
			"failed to launch browser",
			err,
		)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(
			models.ErrCodeSessionLaunch,
			"failed to connect to browser",
			err,
		)
	}

	page, err := r.newPage(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, models.NewScrapeError(
			models.ErrCodeSessionLaunch,
			"failed to open page",
			err,
		)
	}

	s := &rodSession{
		launcher:   l,
		browser:    b,
		page:       page,
		navTimeout: r.cfg.NavigationTimeout,
	}
	s.router = setupHijack(page, r.cfg.BlockedResourceTypes, r.cfg.BlockAds)
	return s, nil
}

func (r *RodLauncher) newLauncher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(r.cfg.Headless).
		NoSandbox(r.cfg.NoSandbox)

	if r.cfg.BrowserBin != "" {
		l = l.Bin(r.cfg.BrowserBin)
	}
	if r.cfg.Proxy != "" {
		l = l.Proxy(r.cfg.Proxy)
	}
	if r.cfg.WindowWidth > 0 && r.cfg.WindowHeight > 0 {
		l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", r.cfg.WindowWidth, r.cfg.WindowHeight))
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("no-first-run"))
	return l
}

func (r *RodLauncher) newPage(b *rod.Browser) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if r.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, err
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      chromeUA,
		AcceptLanguage: r.cfg.AcceptLanguage,
	}); err != nil {
		slog.Warn("failed to override user agent", "error", err)
	}

	if r.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": r.cfg.AcceptLanguage}),
		}.Call(page)
	}
	return page, nil
}

// rodSession is a Session backed by a dedicated Chromium process.
type rodSession struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	router     *rod.HijackRouter
	navTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) Open(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if s.navTimeout > 0 {
		p = p.Timeout(s.navTimeout)
		defer p.CancelTimeout()
	}

	if err := p.Navigate(url); err != nil {
		return categorizeError(err, "navigation failed: "+url)
	}
	if err := p.WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return categorizeError(ctx.Err(), "navigation canceled")
		}
		slog.Debug("page load did not finish, proceeding with current DOM",
			"url", url, "error", err)
	}
	return nil
}

func (s *rodSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	if _, err := p.Element(selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrWaitTimeout
		}
		return err
	}
	return nil
}

func (s *rodSession) Find(selector string) []Element {
	els, err := s.page.Elements(selector)
	if err != nil {
		slog.Debug("element lookup failed", "selector", selector, "error", err)
		return nil
	}
	return wrapRodElements(els)
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		if err := s.browser.Close(); err != nil {
			s.closeErr = err
			s.launcher.Kill()
		}
		s.launcher.Cleanup()
	})
	return s.closeErr
}

// rodElement adapts *rod.Element.
type rodElement struct {
	el *rod.Element
}

func wrapRodElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, rodElement{el: el})
	}
	return out
}

func (e rodElement) Text() (string, error) {
	t, err := e.el.Text()
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(t), " "), nil
}

func (e rodElement) Attribute(name string) (string, error) {
	// The href property is already resolved against the document URL.
	if name == "href" || name == "src" {
		v, err := e.el.Property(name)
		if err != nil {
			return "", err
		}
		if v.Nil() {
			return "", nil
		}
		return v.Str(), nil
	}

	v, err := e.el.Attribute(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e rodElement) Find(selector string) []Element {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil
	}
	return wrapRodElements(els)
}

func (e rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw navigation errors into typed ScrapeErrors.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "navigation canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
