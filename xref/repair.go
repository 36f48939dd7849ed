package xref

import (
	"regexp"
)

var (
	objMarker     = regexp.MustCompile(`(?m)^[^0-9]*?(\d+)[ \t]+(\d+)[ \t]+obj\b`)
	trailerMarker = []byte("trailer")
)

// RecoverScan rebuilds a cross-reference table by linearly scanning the
// whole byte stream for "N G obj" markers. The last occurrence of each
// object number wins, matching incremental-update shadowing. It also
// returns the byte offsets of every "trailer" keyword, oldest first, so
// the caller can reconstruct the trailer dictionary.
func RecoverScan(data []byte) (*Table, []int64) {
	table := NewTable()
	type hit struct {
		offset int64
		gen    int
	}
	latest := make(map[int]hit)

	for _, m := range objMarker.FindAllSubmatchIndex(data, -1) {
		numStart, numEnd := m[2], m[3]
		genStart, genEnd := m[4], m[5]
		num := parseInt(data[numStart:numEnd])
		gen := parseInt(data[genStart:genEnd])
		if num <= 0 {
			continue
		}
		// Offset of the object number token, not the line start.
		latest[num] = hit{offset: int64(numStart), gen: gen}
	}
	for num, h := range latest {
		table.Add(num, Entry{Type: EntryInFile, Offset: h.offset, Gen: h.gen})
	}

	var trailers []int64
	for i := 0; i+len(trailerMarker) <= len(data); i++ {
		if string(data[i:i+len(trailerMarker)]) == string(trailerMarker) {
			trailers = append(trailers, int64(i))
			i += len(trailerMarker) - 1
		}
	}
	return table, trailers
}

func parseInt(b []byte) int {
	v := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return -1
		}
		v = v*10 + int(c-'0')
	}
	return v
}
