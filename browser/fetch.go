package browser

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	tls2 "github.com/refraction-networking/utls"
	"github.com/use-agent/dealscout/config"
	"golang.org/x/net/publicsuffix"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBodySize caps downloaded documents.
const maxBodySize = 10 * 1024 * 1024

// httpFetcher performs GET requests with a Chrome TLS fingerprint (utls).
// Each session owns one fetcher so cookies and connections are not shared
// between workers.
type httpFetcher struct {
	client         *http.Client
	acceptLanguage string
}

func newHTTPFetcher(proxy, acceptLanguage string) *httpFetcher {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr)
		},
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &httpFetcher{
		client:         &http.Client{Transport: transport, Jar: newCookieJar()},
		acceptLanguage: acceptLanguage,
	}
}

func (f *httpFetcher) fetch(ctx context.Context, targetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	if f.acceptLanguage != "" {
		req.Header.Set("Accept-Language", f.acceptLanguage)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("httpfetch: HTTP %d for %s", resp.StatusCode, targetURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("httpfetch: read body: %w", err)
	}
	return body, nil
}

// newCookieJar keeps consent and session cookies between page loads.
func newCookieJar() http.CookieJar {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil
	}
	return jar
}

func (f *httpFetcher) close() {
	f.client.CloseIdleConnections()
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// HTTPLauncher creates DocumentSessions that download pages over HTTP.
type HTTPLauncher struct {
	cfg config.BrowserConfig
}

// NewHTTPLauncher creates a launcher for the http driver.
func NewHTTPLauncher(cfg config.BrowserConfig) *HTTPLauncher {
	return &HTTPLauncher{cfg: cfg}
}

// Launch never blocks; it only prepares a client.
func (h *HTTPLauncher) Launch(_ context.Context) (Session, error) {
	f := newHTTPFetcher(h.cfg.Proxy, h.cfg.AcceptLanguage)
	s := NewDocumentSession(f.fetch)
	s.onClose = f.close
	s.navTimeout = h.cfg.NavigationTimeout
	return s, nil
}
