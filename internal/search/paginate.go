package search

import "kidshelf/discovery/internal/domain"

// paginate cuts the requested offset window out of the ranked pool and
// reports whether another page could be served. hasMore stays true past
// the end of the collected pool whenever the upstream walk stopped early,
// so a client paging forward never sees a false end-of-results.
func paginate(items []domain.Item, page, pageSize int, exhausted bool) ([]domain.Item, bool) {
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []domain.Item{}, !exhausted
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	hasMore := len(items) > page*pageSize || !exhausted
	return items[start:end], hasMore
}
