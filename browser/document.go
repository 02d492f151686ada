package browser

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// FetchFunc downloads the document at url.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// DocumentSession is a Session over static markup. Scripts are not run, so
// WaitFor only inspects the document as it was downloaded.
type DocumentSession struct {
	fetch      FetchFunc
	navTimeout time.Duration
	onClose    func()

	doc    *goquery.Document
	base   *url.URL
	closed bool
}

// NewDocumentSession returns a session that loads pages with fetch.
func NewDocumentSession(fetch FetchFunc) *DocumentSession {
	return &DocumentSession{fetch: fetch}
}

// Open downloads and parses url. On failure the previous document is kept.
func (s *DocumentSession) Open(ctx context.Context, rawURL string) error {
	if s.closed {
		return categorizeError(errors.New("session closed"), "navigation failed: "+rawURL)
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return categorizeError(err, "invalid url: "+rawURL)
	}

	if s.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.navTimeout)
		defer cancel()
	}

	body, err := s.fetch(ctx, rawURL)
	if err != nil {
		return categorizeError(err, "navigation failed: "+rawURL)
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return categorizeError(err, "parse failed: "+rawURL)
	}

	s.doc = goquery.NewDocumentFromNode(root)
	s.base = base
	return nil
}

// WaitFor returns immediately: nil when selector matches, ErrWaitTimeout
// otherwise.
func (s *DocumentSession) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.Find(selector)) > 0 {
		return nil
	}
	return ErrWaitTimeout
}

func (s *DocumentSession) Find(selector string) []Element {
	if s.doc == nil {
		return nil
	}
	m, ok := compile(selector)
	if !ok {
		return nil
	}
	return s.wrap(s.doc.FindMatcher(m))
}

func (s *DocumentSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.doc = nil
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

func (s *DocumentSession) wrap(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, item *goquery.Selection) {
		out = append(out, docElement{sel: item, base: s.base, session: s})
	})
	return out
}

// compile parses a CSS selector group. Invalid selectors are logged and
// reported as not ok.
func compile(selector string) (cascadia.Selector, bool) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		slog.Debug("invalid selector", "selector", selector, "error", err)
		return nil, false
	}
	return m, true
}

// docElement is one node of a DocumentSession document.
type docElement struct {
	sel     *goquery.Selection
	base    *url.URL
	session *DocumentSession
}

func (e docElement) Text() (string, error) {
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

func (e docElement) Attribute(name string) (string, error) {
	v, ok := e.sel.Attr(name)
	if !ok {
		return "", nil
	}
	if (name == "href" || name == "src") && e.base != nil {
		if ref, err := url.Parse(strings.TrimSpace(v)); err == nil {
			return e.base.ResolveReference(ref).String(), nil
		}
	}
	return v, nil
}

func (e docElement) Find(selector string) []Element {
	m, ok := compile(selector)
	if !ok {
		return nil
	}
	return e.session.wrap(e.sel.FindMatcher(m))
}

func (e docElement) Click(context.Context) error {
	return ErrNotInteractive
}
