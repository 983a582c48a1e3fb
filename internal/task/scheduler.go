// Package task runs engine passes as cancellable background jobs, at most
// one active job per kind, delivering notifications through a single
// channel drained by the rendering collaborator.
package task

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Kind identifies a job family. Submitting a new job of a kind cancels the
// previous job of that kind first.
type Kind int

const (
	KindIndex Kind = iota
	KindFilter
	KindCluster
	KindExport
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindFilter:
		return "filter"
	case KindCluster:
		return "cluster"
	case KindExport:
		return "export"
	default:
		return "unknown"
	}
}

// EventType classifies a delivered notification.
type EventType int

const (
	Progress EventType = iota
	Completed
	Cancelled
	Failed
)

// Event is one notification. Progress events carry counters only, never
// structural data; results are published by the job's commit step before
// the Completed event is delivered.
type Event struct {
	Kind Kind
	Seq  uint64
	Type EventType
	Name string
	Done int64
	Tot  int64
	Err  error
}

// Job performs the work under ctx, reporting counters through p. It
// returns a commit closure that publishes the result snapshot; commit runs
// only if the job was neither cancelled nor superseded, so a stale result
// never overwrites a newer one.
type Job func(ctx context.Context, p func(done, total int64)) (commit func(), err error)

// Handle identifies a submitted job.
type Handle struct {
	kind   Kind
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Seq returns the per-kind submission sequence number.
func (h *Handle) Seq() uint64 { return h.seq }

const defaultWorkers = 3

// eventBuffer sizes the delivery channel; progress events are dropped
// rather than blocking a slow consumer, terminal events always land.
const eventBuffer = 256

// Scheduler owns the worker pool and the delivery channel.
type Scheduler struct {
	events chan Event
	sem    *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[Kind]*Handle
	seq    map[Kind]uint64
	closed bool
	wg     sync.WaitGroup
}

// New creates a scheduler with a bounded worker pool; workers <= 0 uses
// the default of 3.
func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		events: make(chan Event, eventBuffer),
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
		active: make(map[Kind]*Handle),
		seq:    make(map[Kind]uint64),
	}
}

// Events is the single delivery channel. Closed by Close after all
// in-flight jobs have drained.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Submit schedules job, cancelling any active job of the same kind first.
// The superseded job's completion is suppressed; the new job starts only
// after its predecessor has observed cancellation.
func (s *Scheduler) Submit(kind Kind, name string, job Job) *Handle {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	prev := s.active[kind]
	if prev != nil {
		prev.cancel()
	}
	s.seq[kind]++
	ctx, cancel := context.WithCancel(s.ctx)
	h := &Handle{
		kind:   kind,
		seq:    s.seq[kind],
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.active[kind] = h
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(h, prev, name, job)
	return h
}

// Cancel requests cooperative cancellation of h. The job observes the
// token at its bounded check interval; it is never killed preemptively.
func (s *Scheduler) Cancel(h *Handle) {
	if h != nil {
		h.cancel()
	}
}

func (s *Scheduler) run(h *Handle, prev *Handle, name string, job Job) {
	defer s.wg.Done()
	defer close(h.done)

	// Serialize against the superseded predecessor so per-kind
	// notifications arrive in submission order.
	if prev != nil {
		<-prev.done
	}

	ctx := h.ctx
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.finish(h, name, err)
		return
	}
	defer s.sem.Release(1)

	progress := func(done, total int64) {
		select {
		case s.events <- Event{Kind: h.kind, Seq: h.seq, Type: Progress, Name: name, Done: done, Tot: total}:
		default:
		}
	}

	commit, err := job(ctx, progress)
	if err != nil {
		s.finish(h, name, err)
		return
	}

	// Publish atomically, but only while still the active job of this
	// kind; a superseded result is delivered as Cancelled instead.
	s.mu.Lock()
	current := s.active[h.kind] == h && ctx.Err() == nil
	if current && commit != nil {
		commit()
	}
	if current {
		delete(s.active, h.kind)
	}
	s.mu.Unlock()

	if !current {
		s.deliver(Event{Kind: h.kind, Seq: h.seq, Type: Cancelled, Name: name})
		return
	}
	s.deliver(Event{Kind: h.kind, Seq: h.seq, Type: Completed, Name: name})
}

func (s *Scheduler) finish(h *Handle, name string, err error) {
	s.mu.Lock()
	if s.active[h.kind] == h {
		delete(s.active, h.kind)
	}
	s.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		// A normal termination outcome, not a failure.
		s.deliver(Event{Kind: h.kind, Seq: h.seq, Type: Cancelled, Name: name})
		return
	}
	s.deliver(Event{Kind: h.kind, Seq: h.seq, Type: Failed, Name: name, Err: err})
}

func (s *Scheduler) deliver(ev Event) {
	// Terminal events block until the consumer takes them; teardown
	// (Close cancelling the root context) releases any stragglers.
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// Close cancels every job, waits for workers to drain and closes the
// delivery channel.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
}
