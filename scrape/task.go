package scrape

import "strings"

// Task is one query to search for. Index is the query's position in the
// deduplicated input and fixes its place in the final result list.
type Task struct {
	Index int
	Query string
}

// Dedupe trims queries, drops blank ones and removes case-insensitive
// duplicates, keeping the first spelling seen.
func Dedupe(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// newQueue returns a closed channel holding one task per query.
func newQueue(queries []string) <-chan Task {
	ch := make(chan Task, len(queries))
	for i, q := range queries {
		ch <- Task{Index: i, Query: q}
	}
	close(ch)
	return ch
}

// clampWorkers bounds n to [1, total].
func clampWorkers(n, total int) int {
	return max(1, min(n, total))
}
