package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coffersTech/loglens/internal/filter"
	"github.com/coffersTech/loglens/internal/index"
	"github.com/coffersTech/loglens/internal/logfile"
)

func buildFixture(t *testing.T, content string) (*index.LineIndex, *logfile.LogFile) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.log")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	lf, err := logfile.Open(path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	t.Cleanup(func() { lf.Close() })
	ix, _, err := index.Build(context.Background(), lf, index.Options{}, nil)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return ix, lf
}

// Round-trip: rows served over the raw view must match direct slices of
// the source file at each line's recorded offset/length.
func TestRows_RoundTrip(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&sb, "2025-01-02 10:%02d:%02d INFO payload %d\n", i/60, i%60, i*i)
	}
	ix, lf := buildFixture(t, sb.String())

	rc := New(0)
	rc.Bind(lf, ix, ix)

	if rc.Len() != ix.Len() {
		t.Fatalf("Len() = %d, want %d", rc.Len(), ix.Len())
	}

	rows := rc.Rows(0, ix.Len())
	if len(rows) != ix.Len() {
		t.Fatalf("got %d rows", len(rows))
	}
	for i, r := range rows {
		raw := string(lf.ReadRange(ix.OffCol[i], int(ix.LenCol[i])))
		if !strings.HasPrefix(raw, r.Timestamp) {
			t.Fatalf("row %d timestamp %q not a prefix of %q", i, r.Timestamp, raw)
		}
		if !strings.HasSuffix(raw, r.Message) {
			t.Fatalf("row %d message %q not a suffix of %q", i, r.Message, raw)
		}
	}

	// Random access deep into the view, cold cache.
	rc.Invalidate()
	got := rc.Rows(997, 2)
	if len(got) != 2 || !strings.Contains(got[0].Message, "payload 994009") {
		t.Errorf("Rows(997,2) = %+v", got)
	}
}

func TestRows_Clamping(t *testing.T) {
	ix, lf := buildFixture(t, "a\nb\nc\n")
	rc := New(0)
	rc.Bind(lf, ix, ix)

	if got := rc.Rows(-1, 2); got != nil {
		t.Errorf("negative start returned %d rows", len(got))
	}
	if got := rc.Rows(5, 2); got != nil {
		t.Errorf("past-end start returned %d rows", len(got))
	}
	if got := rc.Rows(2, 10); len(got) != 1 {
		t.Errorf("tail read returned %d rows, want 1", len(got))
	}
	if rc.Rows(0, 0) != nil {
		t.Error("zero count must return nil")
	}
}

// After a view change no row may reflect content cached under the prior
// view.
func TestBind_InvalidatesWholesale(t *testing.T) {
	content := "2025-01-02 10:00:00 INFO zero\n" +
		"2025-01-02 10:00:01 ERROR one\n" +
		"2025-01-02 10:00:02 INFO two\n"
	ix, lf := buildFixture(t, content)

	rc := New(0)
	rc.Bind(lf, ix, ix)
	if got := rc.Rows(0, 1)[0].Message; got != "INFO zero" {
		t.Fatalf("row 0 under full view = %q", got)
	}

	// Filtered view: only the ERROR line.
	v := filter.NewView([]int{1})
	rc.Bind(lf, ix, v)
	if rc.Len() != 1 {
		t.Fatalf("Len() after rebind = %d", rc.Len())
	}
	if got := rc.Rows(0, 1)[0].Message; got != "ERROR one" {
		t.Errorf("row 0 under filtered view = %q (stale cache?)", got)
	}
}

func TestRows_LRUBound(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < WindowSize*10; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	ix, lf := buildFixture(t, sb.String())

	rc := New(2)
	rc.Bind(lf, ix, ix)

	// Touch every window; retention must never exceed the budget.
	for w := 0; w < 10; w++ {
		rc.Rows(w*WindowSize, 1)
		if got := rc.windows.Len(); got > 2 {
			t.Fatalf("cache holds %d windows, budget 2", got)
		}
	}

	// Strict LRU: re-touch window 8, then fill one more; 8 survives.
	rc.Rows(8*WindowSize, 1)
	rc.Rows(0, 1)
	if _, ok := rc.windows.Peek(8); !ok {
		t.Error("most recently used window was evicted")
	}
	if _, ok := rc.windows.Peek(9); ok {
		t.Error("least recently used window survived eviction")
	}
}

func TestUnboundCacheServesNothing(t *testing.T) {
	rc := New(0)
	if rc.Len() != 0 {
		t.Errorf("Len() = %d, want 0", rc.Len())
	}
	if rc.Rows(0, 10) != nil {
		t.Error("unbound cache returned rows")
	}
}
