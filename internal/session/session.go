// Package session owns the per-file state: the mapped log, the published
// index, the active filtered view, the cluster result and the row cache.
// Engine passes run as background jobs; results are swapped in atomically
// on completion and prior snapshots survive any failed or cancelled run.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/coffersTech/loglens/internal/cache"
	"github.com/coffersTech/loglens/internal/cluster"
	"github.com/coffersTech/loglens/internal/export"
	"github.com/coffersTech/loglens/internal/filter"
	"github.com/coffersTech/loglens/internal/index"
	"github.com/coffersTech/loglens/internal/logfile"
	"github.com/coffersTech/loglens/internal/task"
)

// ErrNoIndex is returned when a filter, cluster or export is submitted
// before an index has been published.
var ErrNoIndex = errors.New("no line index published yet")

// Options configures a session.
type Options struct {
	Format       index.Format
	Workers      int // scheduler pool size, <=0 = default
	CacheWindows int // LRU window budget, <=0 = default
}

// Session binds one log file to one scheduler and one cache. Never shared
// across files; opening another file means another session.
type Session struct {
	lf    *logfile.LogFile
	sched *task.Scheduler
	rows  *cache.RowCache
	opts  Options

	// mu protects the published snapshot pointers. Snapshots themselves
	// are immutable; readers take the pointer and go.
	mu       sync.RWMutex
	ix       *index.LineIndex
	hist     *index.ActivityHistogram
	view     *filter.View
	clusters []cluster.Entry
	closed   bool
}

// Open validates and maps path, then submits the index build. All
// FileAccessor validation errors surface here, before any index work.
func Open(path string, opts Options) (*Session, error) {
	lf, err := logfile.Open(path)
	if err != nil {
		return nil, err
	}
	s := &Session{
		lf:    lf,
		sched: task.New(opts.Workers),
		rows:  cache.New(opts.CacheWindows),
		opts:  opts,
	}
	s.SubmitIndex()
	return s, nil
}

// Events is the single delivery channel for job notifications. Consumed
// by the rendering collaborator only.
func (s *Session) Events() <-chan task.Event {
	return s.sched.Events()
}

// SubmitIndex schedules a full index rebuild. The index is rebuilt
// wholesale, never patched in place.
func (s *Session) SubmitIndex() *task.Handle {
	lf := s.lf
	opts := index.Options{Format: s.opts.Format}
	return s.sched.Submit(task.KindIndex, "index "+lf.Path, func(ctx context.Context, p func(int64, int64)) (func(), error) {
		ix, hist, err := index.Build(ctx, lf, opts, p)
		if err != nil {
			return nil, err
		}
		return func() { s.publishIndex(ix, hist) }, nil
	})
}

// SubmitFilter validates crit eagerly and schedules the scan. An invalid
// pattern fails here, before any work, and leaves the prior view intact.
// Submitting supersedes any in-flight filter run (last request wins).
func (s *Session) SubmitFilter(crit filter.Criteria) (*task.Handle, error) {
	if err := crit.Validate(); err != nil {
		return nil, err
	}
	ix := s.IndexSnapshot()
	if ix == nil {
		return nil, ErrNoIndex
	}
	lf := s.lf
	h := s.sched.Submit(task.KindFilter, "filter", func(ctx context.Context, p func(int64, int64)) (func(), error) {
		v, err := filter.Apply(ctx, ix, lf, crit, p)
		if err != nil {
			return nil, err
		}
		return func() { s.publishView(v) }, nil
	})
	return h, nil
}

// ResetFilter drops the filtered view, returning to the all-lines view.
func (s *Session) ResetFilter() {
	s.mu.Lock()
	s.view = nil
	ix := s.ix
	s.mu.Unlock()
	if ix != nil {
		s.rows.Bind(s.lf, ix, ix)
	}
}

// SubmitCluster schedules clustering over the active view.
func (s *Session) SubmitCluster() (*task.Handle, error) {
	ix := s.IndexSnapshot()
	if ix == nil {
		return nil, ErrNoIndex
	}
	src := s.activeSource()
	lf := s.lf
	h := s.sched.Submit(task.KindCluster, "cluster", func(ctx context.Context, p func(int64, int64)) (func(), error) {
		entries, err := cluster.Run(ctx, ix, lf, src, p)
		if err != nil {
			return nil, err
		}
		return func() { s.publishClusters(entries) }, nil
	})
	return h, nil
}

// SubmitExport streams the active view to opts.Path. The exported view is
// frozen at submission; a filter published mid-export does not bleed into
// the output.
func (s *Session) SubmitExport(opts export.Options) (*task.Handle, error) {
	ix := s.IndexSnapshot()
	if ix == nil {
		return nil, ErrNoIndex
	}
	src := &frozenSource{lf: s.lf, ix: ix, src: s.activeSource()}
	h := s.sched.Submit(task.KindExport, "export "+opts.Path, func(ctx context.Context, p func(int64, int64)) (func(), error) {
		if err := export.Run(ctx, src, opts, p); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return h, nil
}

// Cancel requests cooperative cancellation of h.
func (s *Session) Cancel(h *task.Handle) {
	s.sched.Cancel(h)
}

// publishIndex swaps in a freshly built index. Dependent snapshots (view,
// clusters) are dropped: they indexed a previous build.
func (s *Session) publishIndex(ix *index.LineIndex, hist *index.ActivityHistogram) {
	s.mu.Lock()
	s.ix = ix
	s.hist = hist
	s.view = nil
	s.clusters = nil
	s.mu.Unlock()
	s.rows.Bind(s.lf, ix, ix)
}

// publishView swaps in a new filtered view and invalidates the cache;
// stale text is never served against the new view. The cluster result is
// unrelated state and survives.
func (s *Session) publishView(v *filter.View) {
	s.mu.Lock()
	s.view = v
	ix := s.ix
	s.mu.Unlock()
	s.rows.Bind(s.lf, ix, v)
}

func (s *Session) publishClusters(entries []cluster.Entry) {
	s.mu.Lock()
	s.clusters = entries
	s.mu.Unlock()
}

// IndexSnapshot returns the published index, nil before the first build
// completes.
func (s *Session) IndexSnapshot() *index.LineIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix
}

// activeSource is the view rows are served from: the filtered view when
// one is published, the whole index otherwise.
func (s *Session) activeSource() index.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view != nil {
		return s.view
	}
	return s.ix
}

// RowCount returns the row count of the active view.
func (s *Session) RowCount() int {
	return s.rows.Len()
}

// Rows serves [start, start+count) of the active view through the LRU
// cache.
func (s *Session) Rows(start, count int) []cache.Row {
	return s.rows.Rows(start, count)
}

// Histogram returns the per-minute activity snapshot, sorted ascending.
func (s *Session) Histogram() []index.HistogramPoint {
	s.mu.RLock()
	hist := s.hist
	s.mu.RUnlock()
	if hist == nil {
		return nil
	}
	return hist.Points()
}

// Clusters returns the published cluster result, descending by count.
func (s *Session) Clusters() []cluster.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clusters
}

// LevelCount is one entry of the level distribution summary.
type LevelCount struct {
	Level string
	Count int
}

// LevelCounts summarizes the active view's level distribution, descending
// by count. Used by reports and the driver's summary output.
func (s *Session) LevelCounts() []LevelCount {
	s.mu.RLock()
	ix := s.ix
	var src index.Source = s.view
	if s.view == nil {
		src = ix
	}
	s.mu.RUnlock()
	if ix == nil {
		return nil
	}

	counts := make(map[uint8]int)
	for row := 0; row < src.Len(); row++ {
		counts[ix.LvlCol[src.LineID(row)]]++
	}
	out := make([]LevelCount, 0, len(counts))
	for lvl, c := range counts {
		out = append(out, LevelCount{Level: index.DecodeLevel(lvl), Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Level < out[j].Level
	})
	return out
}

// Close cancels all jobs, drains the scheduler and releases the mapping
// and cache. Safe to call on every exit path.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.sched.Close()
	s.rows.Invalidate()
	return s.lf.Close()
}

// frozenSource serves rows for an export from snapshots captured at
// submission time, bypassing the shared cache so a concurrent view change
// cannot alter the output.
type frozenSource struct {
	lf  *logfile.LogFile
	ix  *index.LineIndex
	src index.Source
}

func (f *frozenSource) Len() int {
	return f.src.Len()
}

func (f *frozenSource) Rows(start, count int) []cache.Row {
	if start < 0 || count <= 0 || start >= f.src.Len() {
		return nil
	}
	end := start + count
	if end > f.src.Len() {
		end = f.src.Len()
	}
	rows := make([]cache.Row, 0, end-start)
	for r := start; r < end; r++ {
		id := f.src.LineID(r)
		ts, msg := index.RowText(f.lf, f.ix, id)
		rows = append(rows, cache.Row{Timestamp: ts, Level: f.ix.LvlCol[id], Message: msg})
	}
	return rows
}
