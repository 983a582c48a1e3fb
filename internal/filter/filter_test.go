package filter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"

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

func TestApply_InvalidPatternFailsFast(t *testing.T) {
	ix, lf := buildFixture(t, "2025-01-02 10:00:00 INFO hi\n")
	_, err := Apply(context.Background(), ix, lf, Criteria{Pattern: "(unclosed"}, nil)
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("Apply error = %v, want ErrInvalidPattern", err)
	}
	if err := (Criteria{Pattern: "(unclosed"}).Validate(); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("Validate error = %v, want ErrInvalidPattern", err)
	}
}

func TestApply_LevelAndPattern(t *testing.T) {
	content := "2025-01-02 10:00:00 INFO user alice logged in\n" +
		"2025-01-02 10:00:01 ERROR user bob failed login\n" +
		"2025-01-02 10:00:02 ERROR disk full\n" +
		"2025-01-02 10:00:03 WARN user carol logged in\n"
	ix, lf := buildFixture(t, content)

	v, err := Apply(context.Background(), ix, lf, Criteria{
		Pattern: "user",
		Levels:  []uint8{index.LevelError},
	}, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v.Len() != 1 || v.LineID(0) != 1 {
		t.Errorf("matched %d rows, first id %d; want 1 row, id 1", v.Len(), v.LineID(0))
	}
}

func TestApply_EmptyCriteriaAcceptsAll(t *testing.T) {
	ix, lf := buildFixture(t, "a\nb\nc\n")
	v, err := Apply(context.Background(), ix, lf, Criteria{}, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v.Len() != ix.Len() {
		t.Errorf("Len() = %d, want %d", v.Len(), ix.Len())
	}
}

func TestApply_UnparsedLinesExcludedFromTimeRange(t *testing.T) {
	content := "2025-01-02 10:00:00 INFO in range\n" +
		"no timestamp\n" +
		"2025-01-02 11:00:00 INFO out of range\n"
	ix, lf := buildFixture(t, content)

	v, err := Apply(context.Background(), ix, lf, Criteria{
		MinMinute: 202501021000,
		MaxMinute: 202501021030,
	}, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v.Len() != 1 || v.LineID(0) != 0 {
		t.Errorf("got %d rows, want only line 0", v.Len())
	}
}

func TestApply_Idempotent(t *testing.T) {
	content := "2025-01-02 10:00:00 ERROR one\n" +
		"2025-01-02 10:00:01 INFO two\n" +
		"2025-01-02 10:00:02 ERROR three\n"
	ix, lf := buildFixture(t, content)
	crit := Criteria{Levels: []uint8{index.LevelError}}

	v1, err := Apply(context.Background(), ix, lf, crit, nil)
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	v2, err := Apply(context.Background(), ix, lf, crit, nil)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	ids1 := make([]int, v1.Len())
	ids2 := make([]int, v2.Len())
	for i := range ids1 {
		ids1[i] = v1.LineID(i)
	}
	for i := range ids2 {
		ids2[i] = v2.LineID(i)
	}
	if !reflect.DeepEqual(ids1, ids2) {
		t.Errorf("views differ: %v vs %v", ids1, ids2)
	}
}

func TestApply_Cancelled(t *testing.T) {
	ix, lf := buildFixture(t, "a\nb\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err := Apply(ctx, ix, lf, Criteria{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Apply error = %v, want context.Canceled", err)
	}
	if v != nil {
		t.Error("cancelled run must not return a view")
	}
}

// Scenario: level = ERROR AND time in [T0, T1] over a 1000-line fixture
// with exactly 37 matching lines, verified by an independent brute-force
// scan.
func TestApply_LevelAndTimeRangeScenario(t *testing.T) {
	// Window: minutes 10:05 .. 10:09 inclusive.
	const minMinute, maxMinute = 202501021005, 202501021009

	var sb strings.Builder
	errorSeconds := make(map[int]bool)
	for j := 0; j < 37; j++ {
		errorSeconds[300+j*5] = true // seconds 300..480, all inside the window
	}
	for i := 0; i < 1000; i++ {
		level := "INFO"
		if errorSeconds[i] {
			level = "ERROR"
		} else if i%10 == 0 && (i < 300 || i > 599) {
			level = "ERROR" // ERROR lines outside the window must not match
		}
		fmt.Fprintf(&sb, "2025-01-02 10:%02d:%02d %s event %d\n", i/60, i%60, level, i)
	}
	ix, lf := buildFixture(t, sb.String())

	v, err := Apply(context.Background(), ix, lf, Criteria{
		Levels:    []uint8{index.LevelError},
		MinMinute: minMinute,
		MaxMinute: maxMinute,
	}, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if v.Len() != 37 {
		t.Errorf("matched %d rows, want 37", v.Len())
	}

	// Strictly increasing, and every match satisfies both predicates
	// against a direct scan of the raw file.
	re := regexp.MustCompile(` ERROR `)
	prev := -1
	for i := 0; i < v.Len(); i++ {
		id := v.LineID(i)
		if id <= prev {
			t.Fatalf("ids not strictly increasing at %d", i)
		}
		prev = id

		raw := string(lf.LineAt(ix.OffCol[id], 4096))
		if !re.MatchString(raw) {
			t.Errorf("line %d is not an ERROR line: %q", id, raw)
		}
		if mk := ix.MinCol[id]; mk < minMinute || mk > maxMinute {
			t.Errorf("line %d minute %d outside window", id, mk)
		}
	}

	// Brute force count.
	brute := 0
	for id := 0; id < ix.Len(); id++ {
		raw := string(lf.LineAt(ix.OffCol[id], 4096))
		mk := ix.MinCol[id]
		if re.MatchString(raw) && mk >= minMinute && mk <= maxMinute {
			brute++
		}
	}
	if brute != v.Len() {
		t.Errorf("brute force found %d, engine found %d", brute, v.Len())
	}
}
