package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/use-agent/dealscout/browser"
	"github.com/use-agent/dealscout/cache"
)

// CachedFinder reuses matches for repeated queries, keyed by the trimmed
// lowercase query text. Failed searches are not cached.
type CachedFinder struct {
	next  Finder
	cache *cache.Cache[Match]
}

// NewCachedFinder wraps next with c.
func NewCachedFinder(next Finder, c *cache.Cache[Match]) *CachedFinder {
	return &CachedFinder{next: next, cache: c}
}

func (f *CachedFinder) FindBestMatch(ctx context.Context, s browser.Session, query string) (Match, error) {
	key := cache.Key(strings.ToLower(strings.TrimSpace(query)))
	if m, ok := f.cache.Get(key); ok {
		slog.Debug("match cache hit", "query", query)
		return m, nil
	}

	m, err := f.next.FindBestMatch(ctx, s, query)
	if err != nil {
		return m, err
	}
	f.cache.Set(key, m)
	return m, nil
}
