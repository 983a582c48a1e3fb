package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coffersTech/loglens/internal/logfile"
)

func openFixture(t *testing.T, content string) *logfile.LogFile {
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
	return lf
}

func TestBuild_PlainLines(t *testing.T) {
	content := "2025-01-02 10:00:00 INFO Service started\n" +
		"2025-01-02 10:00:30 ERROR Something broke\n" +
		"no timestamp here at all\n" +
		"2025-01-02 10:01:05 WARN Slow response\n"
	lf := openFixture(t, content)

	ix, hist, err := Build(context.Background(), lf, Options{}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if ix.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", ix.Len())
	}
	wantLevels := []uint8{LevelInfo, LevelError, LevelUnknown, LevelWarn}
	for i, want := range wantLevels {
		if ix.LvlCol[i] != want {
			t.Errorf("line %d level = %d, want %d", i, ix.LvlCol[i], want)
		}
	}
	if ix.MinCol[2] != 0 {
		t.Errorf("unparsable line minute = %d, want 0", ix.MinCol[2])
	}
	if ix.MinCol[0] != 202501021000 || ix.MinCol[3] != 202501021001 {
		t.Errorf("minute keys = %d, %d", ix.MinCol[0], ix.MinCol[3])
	}

	// Histogram conservation: buckets sum to parsed-line count.
	if got := hist.Sum(); got != 3 {
		t.Errorf("histogram sum = %d, want 3", got)
	}
	if hist.Buckets[202501021000] != 2 {
		t.Errorf("bucket 10:00 = %d, want 2", hist.Buckets[202501021000])
	}
}

func TestBuild_OffsetInvariants(t *testing.T) {
	content := "alpha\nbeta\r\nthird line\nlast without newline"
	lf := openFixture(t, content)

	ix, _, err := Build(context.Background(), lf, Options{}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var covered int64
	for i := 0; i < ix.Len(); i++ {
		if i > 0 && ix.OffCol[i] <= ix.OffCol[i-1] {
			t.Fatalf("offsets not strictly increasing at %d", i)
		}
		covered += int64(ix.LenCol[i])
		if ix.OffCol[i]+int64(ix.LenCol[i]) < lf.Size() {
			covered++ // line terminator
		}
	}
	if covered != lf.Size() {
		t.Errorf("span sum = %d, want file size %d", covered, lf.Size())
	}
}

func TestBuild_TrailingNewlineProducesNoEmptyLine(t *testing.T) {
	lf := openFixture(t, "one\ntwo\n")
	ix, _, err := Build(context.Background(), lf, Options{}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ix.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ix.Len())
	}
}

func TestBuild_Cancelled(t *testing.T) {
	lf := openFixture(t, "2025-01-02 10:00:00 INFO hi\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix, hist, err := Build(ctx, lf, Options{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Build error = %v, want context.Canceled", err)
	}
	if ix != nil || hist != nil {
		t.Error("cancelled build must not publish partial structures")
	}
}

// Scenario: a large file where exactly one line has no parsable timestamp.
// The malformed line stays addressable and contributes to no bucket.
func TestBuild_OneMalformedLine(t *testing.T) {
	const n = 10000
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i == 4321 {
			sb.WriteString("!!corrupt entry with no timestamp\n")
			continue
		}
		fmt.Fprintf(&sb, "2025-01-02 %02d:%02d:%02d INFO line %d\n", 10+i/3600, (i/60)%60, i%60, i)
	}
	lf := openFixture(t, sb.String())

	ix, hist, err := Build(context.Background(), lf, Options{}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ix.Len() != n {
		t.Errorf("Len() = %d, want %d", ix.Len(), n)
	}
	if ix.LvlCol[4321] != LevelUnknown {
		t.Errorf("malformed line level = %d, want LevelUnknown", ix.LvlCol[4321])
	}
	if got := hist.Sum(); got != n-1 {
		t.Errorf("histogram sum = %d, want %d", got, n-1)
	}
}

func TestBuild_JSONFormat(t *testing.T) {
	content := `{"ts":"2025-01-02T10:00:00Z","level":"error","msg":"boom"}` + "\n" +
		`{"timestamp":"2025-01-02 10:01:00","severity":"INFO","message":"fine"}` + "\n" +
		"not json at all\n"
	lf := openFixture(t, content)

	ix, hist, err := Build(context.Background(), lf, Options{Format: FormatJSON}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ix.LvlCol[0] != LevelError || ix.LvlCol[1] != LevelInfo || ix.LvlCol[2] != LevelUnknown {
		t.Errorf("levels = %v", ix.LvlCol)
	}
	if ix.MinCol[0] != 202501021000 || ix.MinCol[1] != 202501021001 {
		t.Errorf("minutes = %d, %d", ix.MinCol[0], ix.MinCol[1])
	}
	if hist.Sum() != 2 {
		t.Errorf("histogram sum = %d, want 2", hist.Sum())
	}
}

func TestBuild_Progress(t *testing.T) {
	lf := openFixture(t, "one\ntwo\nthree\n")
	var last [2]int64
	_, _, err := Build(context.Background(), lf, Options{}, func(done, total int64) {
		last = [2]int64{done, total}
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if last[0] != lf.Size() || last[1] != lf.Size() {
		t.Errorf("final progress = %v, want %d/%d", last, lf.Size(), lf.Size())
	}
}
