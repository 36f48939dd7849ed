package editor

import (
	"fmt"
	"strconv"
	"strings"
)

// PageRange is an inclusive run of zero-based page indices.
type PageRange struct {
	Start int
	End   int
}

// Pages expands the range to its page indices.
func (r PageRange) Pages() []int {
	out := make([]int, 0, r.End-r.Start+1)
	for i := r.Start; i <= r.End; i++ {
		out = append(out, i)
	}
	return out
}

// ParsePageRanges parses a selection like "1,3-5,8". Input numbers are
// one-based as users write them; the result is zero-based. Ranges must
// be ascending within themselves and fall inside [1, pageCount].
func ParsePageRanges(s string, pageCount int) ([]PageRange, error) {
	var out []PageRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var startText, endText string
		if lo, hi, found := strings.Cut(part, "-"); found {
			startText, endText = strings.TrimSpace(lo), strings.TrimSpace(hi)
		} else {
			startText, endText = part, part
		}
		start, err := strconv.Atoi(startText)
		if err != nil {
			return nil, fmt.Errorf("page range %q: %w", part, err)
		}
		end, err := strconv.Atoi(endText)
		if err != nil {
			return nil, fmt.Errorf("page range %q: %w", part, err)
		}
		if start > end {
			return nil, fmt.Errorf("page range %q: start after end", part)
		}
		if start < 1 || end > pageCount {
			return nil, &RangeError{Index: end - 1, PageCount: pageCount}
		}
		out = append(out, PageRange{Start: start - 1, End: end - 1})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty page selection %q", s)
	}
	return out, nil
}

// EveryPage returns one single-page range per page.
func EveryPage(pageCount int) []PageRange {
	out := make([]PageRange, pageCount)
	for i := range out {
		out[i] = PageRange{Start: i, End: i}
	}
	return out
}

// Chunks splits the page count into consecutive runs of at most size
// pages.
func Chunks(pageCount, size int) []PageRange {
	if size < 1 {
		size = 1
	}
	var out []PageRange
	for start := 0; start < pageCount; start += size {
		end := start + size - 1
		if end >= pageCount {
			end = pageCount - 1
		}
		out = append(out, PageRange{Start: start, End: end})
	}
	return out
}
