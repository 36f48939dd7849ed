package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func writeSources(t *testing.T, n int) ([]Item, string) {
	t.Helper()
	dir := t.TempDir()
	items := make([]Item, n)
	for i := range items {
		src := filepath.Join(dir, fmt.Sprintf("in-%d.bin", i))
		if err := os.WriteFile(src, []byte(fmt.Sprintf("source %d padding", i)), 0o644); err != nil {
			t.Fatalf("write source: %v", err)
		}
		items[i] = Item{Source: src, Dest: filepath.Join(dir, fmt.Sprintf("out-%d.bin", i))}
	}
	return items, dir
}

func upper(_ context.Context, data []byte) ([]byte, error) {
	return []byte(strings.ToUpper(string(data))), nil
}

func TestRunProcessesAllItems(t *testing.T) {
	items, _ := writeSources(t, 8)
	r := New(Config{Workers: 3})

	summary, err := r.Run(context.Background(), items, upper)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("failures: %+v", summary.Outcomes)
	}
	if len(summary.Outcomes) != 8 {
		t.Fatalf("outcome count %d", len(summary.Outcomes))
	}
	for i, item := range items {
		data, err := os.ReadFile(item.Dest)
		if err != nil {
			t.Fatalf("item %d output: %v", i, err)
		}
		if string(data) != strings.ToUpper(fmt.Sprintf("source %d padding", i)) {
			t.Fatalf("item %d content %q", i, data)
		}
	}
	if summary.BytesBefore == 0 || summary.BytesAfter != summary.BytesBefore {
		t.Fatalf("byte accounting wrong: %+v", summary)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	items, _ := writeSources(t, 4)
	// Item 2 reads a file that does not exist.
	items[2].Source = items[2].Source + ".missing"

	r := New(Config{Workers: 2})
	summary, err := r.Run(context.Background(), items, upper)
	if err != nil {
		t.Fatalf("one bad item must not fail the batch: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("failed count %d", summary.Failed)
	}
	if summary.Outcomes[2].Err == nil {
		t.Fatalf("failing item has no error")
	}
	for _, i := range []int{0, 1, 3} {
		if summary.Outcomes[i].Err != nil {
			t.Fatalf("item %d should succeed: %v", i, summary.Outcomes[i].Err)
		}
		if _, err := os.Stat(items[i].Dest); err != nil {
			t.Fatalf("item %d output missing", i)
		}
	}
	if _, err := os.Stat(items[2].Dest); !os.IsNotExist(err) {
		t.Fatalf("failed item must not produce output")
	}
}

func TestRunOperationErrorsAreReported(t *testing.T) {
	items, _ := writeSources(t, 2)
	boom := errors.New("boom")
	op := func(_ context.Context, data []byte) ([]byte, error) {
		if strings.Contains(string(data), "source 1") {
			return nil, boom
		}
		return data, nil
	}
	r := New(Config{Workers: 1})
	summary, err := r.Run(context.Background(), items, op)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Failed != 1 || !errors.Is(summary.Outcomes[1].Err, boom) {
		t.Fatalf("operation error lost: %+v", summary.Outcomes[1])
	}
}

func TestRunCancellation(t *testing.T) {
	items, _ := writeSources(t, 16)
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	op := func(opCtx context.Context, data []byte) ([]byte, error) {
		once.Do(cancel)
		<-opCtx.Done()
		return nil, opCtx.Err()
	}

	r := New(Config{Workers: 2})
	summary, err := r.Run(ctx, items, op)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// No destination file may exist for any item.
	for _, item := range items {
		if _, statErr := os.Stat(item.Dest); !os.IsNotExist(statErr) {
			t.Fatalf("cancelled batch left output at %s", item.Dest)
		}
	}
	if len(summary.Outcomes) != len(items) {
		t.Fatalf("partial summary incomplete")
	}
	for i, o := range summary.Outcomes {
		if o.Err == nil && !o.Ran {
			t.Fatalf("item %d has neither outcome nor error", i)
		}
	}
}

func TestRunEmptySourceIsAFailure(t *testing.T) {
	dir := t.TempDir()
	items := []Item{{Source: "", Dest: filepath.Join(dir, "out.bin")}}

	r := New(Config{Workers: 1})
	summary, err := r.Run(context.Background(), items, upper)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("empty source must fail the item: %+v", summary.Outcomes[0])
	}
	if !summary.Outcomes[0].Ran || summary.Outcomes[0].Err == nil {
		t.Fatalf("empty source mistaken for a never-ran item: %+v", summary.Outcomes[0])
	}
}

func TestProgressIsSequential(t *testing.T) {
	items, _ := writeSources(t, 6)
	var mu sync.Mutex
	var seen []int
	r := New(Config{
		Workers: 4,
		Progress: func(completed, total int, stage string) {
			mu.Lock()
			seen = append(seen, completed)
			mu.Unlock()
			if total != 6 {
				t.Errorf("total %d", total)
			}
		},
	})
	if _, err := r.Run(context.Background(), items, upper); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(seen) != 6 {
		t.Fatalf("progress calls %d", len(seen))
	}
	for i, c := range seen {
		if c != i+1 {
			t.Fatalf("progress out of order: %v", seen)
		}
	}
}

func TestAtomicWriteReplacesWholly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")
	if err := AtomicWrite(path, []byte("first")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := AtomicWrite(path, []byte("second version")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "second version" {
		t.Fatalf("content %q, %v", data, err)
	}
	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("leftover files: %v", entries)
	}
}

func TestAtomicWriteFailsIntoMissingDir(t *testing.T) {
	if err := AtomicWrite(filepath.Join(t.TempDir(), "no", "such", "dir", "x"), []byte("x")); err == nil {
		t.Fatalf("write into missing directory must fail")
	}
}
