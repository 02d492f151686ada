// Package browser provides the page sessions that scrape workers drive.
//
// A Session is owned by exactly one worker for its whole life and is not
// safe for concurrent use. Two drivers exist: "rod" controls a dedicated
// Chromium process per session, "http" downloads pages with a Chrome TLS
// fingerprint and queries the static markup.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/dealscout/config"
)

// ErrWaitTimeout is returned by Session.WaitFor when nothing matched the
// selector before the timeout.
var ErrWaitTimeout = errors.New("browser: wait timed out")

// ErrNotInteractive is returned by Element.Click on static documents.
var ErrNotInteractive = errors.New("browser: element is not interactive")

// Session is one page-rendering context.
type Session interface {
	// Open navigates to url and waits for the document to load.
	Open(ctx context.Context, url string) error

	// WaitFor blocks until at least one element matches selector, the
	// timeout elapses (ErrWaitTimeout) or ctx is done.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// Find returns the elements currently matching selector in document
	// order. An invalid selector or an unloaded page yields no elements.
	Find(selector string) []Element

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Element is a node of the current document.
type Element interface {
	// Text returns the element's visible text, whitespace collapsed.
	Text() (string, error)

	// Attribute returns the named attribute or "" when it is absent.
	// Link attributes are resolved to absolute URLs.
	Attribute(name string) (string, error)

	// Find returns descendants matching selector.
	Find(selector string) []Element

	// Click activates the element.
	Click(ctx context.Context) error
}

// Launcher creates sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (Session, error)

// Launch calls f(ctx).
func (f LauncherFunc) Launch(ctx context.Context) (Session, error) {
	return f(ctx)
}

// NewLauncher returns the launcher for cfg.Driver.
func NewLauncher(cfg config.BrowserConfig) (Launcher, error) {
	switch cfg.Driver {
	case "", "rod":
		return NewRodLauncher(cfg), nil
	case "http":
		return NewHTTPLauncher(cfg), nil
	default:
		return nil, fmt.Errorf("browser: unknown driver %q", cfg.Driver)
	}
}
