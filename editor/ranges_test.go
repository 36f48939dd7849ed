package editor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePageRanges(t *testing.T) {
	cases := []struct {
		in        string
		pageCount int
		want      []PageRange
		wantErr   bool
	}{
		{"1", 10, []PageRange{{0, 0}}, false},
		{"1,3-5,8", 10, []PageRange{{0, 0}, {2, 4}, {7, 7}}, false},
		{"2-2", 5, []PageRange{{1, 1}}, false},
		{" 1 - 3 , 5 ", 5, []PageRange{{0, 2}, {4, 4}}, false},
		{"", 5, nil, true},
		{"0", 5, nil, true},   // pages are 1-based on input
		{"3-1", 5, nil, true}, // reversed
		{"4-9", 5, nil, true}, // past the end
		{"a-b", 5, nil, true}, // not numbers
		{"1,,3", 5, []PageRange{{0, 0}, {2, 2}}, false}, // empty elements skipped
	}
	for _, tc := range cases {
		got, err := ParsePageRanges(tc.in, tc.pageCount)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("%q: mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestPageRangePages(t *testing.T) {
	got := PageRange{Start: 2, End: 5}.Pages()
	if diff := cmp.Diff([]int{2, 3, 4, 5}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEveryPage(t *testing.T) {
	got := EveryPage(3)
	want := []PageRange{{0, 0}, {1, 1}, {2, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestChunks(t *testing.T) {
	got := Chunks(7, 3)
	want := []PageRange{{0, 2}, {3, 5}, {6, 6}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if Chunks(0, 3) != nil {
		t.Fatalf("no pages yields no chunks")
	}
}
