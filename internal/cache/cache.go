// Package cache serves row content for arbitrary row ranges on demand,
// keeping a bounded number of materialized windows under strict LRU.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coffersTech/loglens/internal/index"
	"github.com/coffersTech/loglens/internal/logfile"
)

// Row is the materialized view of one line.
type Row struct {
	Timestamp string // "" when the line carries no parsed timestamp
	Level     uint8  // index.LevelUnknown when undetected
	Message   string
}

const (
	// WindowSize is the row width of one cache window.
	WindowSize = 256

	// DefaultWindows bounds retained windows; 64 windows of 256 rows.
	DefaultWindows = 64
)

type window struct {
	gen  uint64
	rows []Row
}

// RowCache materializes text lazily from the mapping. Windows are keyed by
// window number and evicted least-recently-used first. A view change
// invalidates everything at once; the generation counter keeps a stale
// fill from racing an invalidation.
type RowCache struct {
	mu  sync.Mutex
	lf  *logfile.LogFile
	ix  *index.LineIndex
	src index.Source
	gen uint64

	windows *lru.Cache[int, *window]
}

// New creates a cache retaining at most maxWindows windows; maxWindows <= 0
// uses DefaultWindows.
func New(maxWindows int) *RowCache {
	if maxWindows <= 0 {
		maxWindows = DefaultWindows
	}
	// Error only fires for non-positive size.
	c, _ := lru.New[int, *window](maxWindows)
	return &RowCache{windows: c}
}

// Bind points the cache at a new active view and drops every cached
// window. Stale text is never served against a new view.
func (rc *RowCache) Bind(lf *logfile.LogFile, ix *index.LineIndex, src index.Source) {
	rc.mu.Lock()
	rc.lf = lf
	rc.ix = ix
	rc.src = src
	rc.gen++
	rc.mu.Unlock()
	rc.windows.Purge()
}

// Invalidate drops all windows without changing the bound view.
func (rc *RowCache) Invalidate() {
	rc.mu.Lock()
	rc.gen++
	rc.mu.Unlock()
	rc.windows.Purge()
}

// Len returns the row count of the bound view.
func (rc *RowCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.src == nil {
		return 0
	}
	return rc.src.Len()
}

// Rows returns up to count rows starting at start, clamped to the bound
// view. Covered windows are promoted to most-recently-used; uncovered
// sub-ranges cost one read of the requested spans only.
func (rc *RowCache) Rows(start, count int) []Row {
	rc.mu.Lock()
	lf, ix, src, gen := rc.lf, rc.ix, rc.src, rc.gen
	rc.mu.Unlock()

	if src == nil || start < 0 || count <= 0 {
		return nil
	}
	total := src.Len()
	if start >= total {
		return nil
	}
	end := start + count
	if end > total {
		end = total
	}

	out := make([]Row, 0, end-start)
	for wi := start / WindowSize; wi*WindowSize < end; wi++ {
		w := rc.lookup(wi, gen)
		if w == nil {
			w = rc.fill(wi, gen, lf, ix, src, total)
		}
		wStart := wi * WindowSize
		lo := 0
		if start > wStart {
			lo = start - wStart
		}
		hi := end - wStart
		if hi > len(w.rows) {
			hi = len(w.rows)
		}
		if lo < hi {
			out = append(out, w.rows[lo:hi]...)
		}
	}
	return out
}

func (rc *RowCache) lookup(wi int, gen uint64) *window {
	if w, ok := rc.windows.Get(wi); ok && w.gen == gen {
		return w
	}
	return nil
}

// fill materializes one window outside the bookkeeping lock and inserts it
// only if the view generation is still current.
func (rc *RowCache) fill(wi int, gen uint64, lf *logfile.LogFile, ix *index.LineIndex, src index.Source, total int) *window {
	wStart := wi * WindowSize
	wEnd := wStart + WindowSize
	if wEnd > total {
		wEnd = total
	}

	rows := make([]Row, 0, wEnd-wStart)
	for r := wStart; r < wEnd; r++ {
		id := src.LineID(r)
		ts, msg := index.RowText(lf, ix, id)
		rows = append(rows, Row{
			Timestamp: ts,
			Level:     ix.LvlCol[id],
			Message:   msg,
		})
	}

	w := &window{gen: gen, rows: rows}
	rc.mu.Lock()
	current := rc.gen == gen
	rc.mu.Unlock()
	if current {
		rc.windows.Add(wi, w)
	}
	return w
}
