// Package xref models the cross-reference index mapping object numbers to
// byte offsets (classic tables) or object-stream slots (compressed
// tables), plus the recovery scan used when the index is damaged.
package xref

import (
	"errors"
	"fmt"
	"sort"
)

// EntryType discriminates where an object lives.
type EntryType int

const (
	// EntryFree marks a freed object number.
	EntryFree EntryType = iota
	// EntryInFile places the object at a byte offset in the file.
	EntryInFile
	// EntryInStream places the object inside an object stream.
	EntryInStream
)

// Entry is one cross-reference record. Exactly one entry wins per object
// number per revision; later revisions shadow earlier ones.
type Entry struct {
	Type        EntryType
	Offset      int64 // EntryInFile
	Gen         int   // EntryInFile and EntryFree
	StreamNum   int   // EntryInStream: container object number
	StreamIndex int   // EntryInStream: position within the container
}

// Table is the merged cross-reference view over a revision chain.
type Table struct {
	entries map[int]Entry
	// Size mirrors the trailer Size entry of the newest revision.
	Size int
}

// NewTable returns an empty table.
func NewTable() *Table { return &Table{entries: make(map[int]Entry)} }

// Add records an entry only if the object number is not yet present.
// Revisions are fed newest first, so the first entry seen for a number is
// the authoritative one and older revisions never overwrite it.
func (t *Table) Add(num int, e Entry) {
	if _, exists := t.entries[num]; exists {
		return
	}
	t.entries[num] = e
}

// Lookup returns the entry for an object number.
func (t *Table) Lookup(num int) (Entry, bool) {
	e, ok := t.entries[num]
	return e, ok
}

// Objects returns the known object numbers in ascending order, excluding
// free entries.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for num, e := range t.entries {
		if e.Type == EntryFree {
			continue
		}
		out = append(out, num)
	}
	sort.Ints(out)
	return out
}

// Len returns the total entry count including free entries.
func (t *Table) Len() int { return len(t.entries) }

// IndexedEntry pairs an entry with its object number when decoding a
// cross-reference stream.
type IndexedEntry struct {
	Num int
	Entry
}

// ParseStreamEntries decodes the packed entry data of a cross-reference
// stream. w is the /W field widths, index the /Index (start,count) pairs;
// an empty index means a single run starting at object 0 covering size
// entries.
func ParseStreamEntries(w []int64, index [][2]int64, size int64, data []byte) ([]IndexedEntry, error) {
	if len(w) < 3 {
		return nil, errors.New("xref stream W must have three elements")
	}
	entryLen := int(w[0] + w[1] + w[2])
	if entryLen <= 0 {
		return nil, errors.New("xref stream W widths are all zero")
	}
	if len(index) == 0 {
		index = [][2]int64{{0, size}}
	}
	read := func(buf []byte) int64 {
		var v int64
		for _, b := range buf {
			v = v<<8 | int64(b)
		}
		return v
	}
	var out []IndexedEntry
	pos := 0
	for _, run := range index {
		start, count := run[0], run[1]
		for i := int64(0); i < count; i++ {
			if pos+entryLen > len(data) {
				return nil, fmt.Errorf("xref stream truncated at entry %d", len(out))
			}
			f1 := int64(1) // default type when W[0] == 0
			if w[0] > 0 {
				f1 = read(data[pos : pos+int(w[0])])
			}
			f2 := read(data[pos+int(w[0]) : pos+int(w[0]+w[1])])
			f3 := read(data[pos+int(w[0]+w[1]) : pos+entryLen])
			pos += entryLen

			num := int(start + i)
			switch f1 {
			case 0:
				out = append(out, IndexedEntry{Num: num, Entry: Entry{Type: EntryFree, Gen: int(f3)}})
			case 1:
				out = append(out, IndexedEntry{Num: num, Entry: Entry{Type: EntryInFile, Offset: f2, Gen: int(f3)}})
			case 2:
				out = append(out, IndexedEntry{Num: num, Entry: Entry{Type: EntryInStream, StreamNum: int(f2), StreamIndex: int(f3)}})
			default:
				// Unknown entry types are reserved; readers treat them as null.
			}
		}
	}
	return out, nil
}
