package view

// DefaultPageSize is the number of rows per page when none is configured.
const DefaultPageSize = 10

// PageCount returns how many pages of size hold n items. There is always at
// least one page so an empty list still renders.
func PageCount(n, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	if n <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

// Page returns the 1-based page of items. Pages outside the range are
// empty.
func Page[T any](items []T, page, size int) []T {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		return nil
	}
	start := (page - 1) * size
	if start >= len(items) {
		return nil
	}
	end := min(start+size, len(items))
	return items[start:end]
}

// ClampPage keeps page inside 1..PageCount(n, size), e.g. after the list
// shrank under the cursor.
func ClampPage(page, n, size int) int {
	last := PageCount(n, size)
	switch {
	case page < 1:
		return 1
	case page > last:
		return last
	default:
		return page
	}
}
