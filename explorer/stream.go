package explorer

import (
	"context"
	"sync"
)

// The children of an Entry as they arrive from a browse. Every child is
// kept, so a Cursor opened at any time sees all of them from the start. A
// Stream terminates once, either completing (nil Err) or failing.
type Stream struct {
	owner *Entry

	mu       sync.Mutex
	items    []*Entry
	finished bool
	err      error
	// Closed and replaced whenever items or finished change.
	changed chan struct{}
	done    chan struct{}
}

func newStream(owner *Entry) *Stream {
	return &Stream{
		owner:   owner,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (me *Stream) broadcast() {
	close(me.changed)
	me.changed = make(chan struct{})
}

// Returns false if the stream has already terminated, in which case e is
// dropped.
func (me *Stream) push(e *Entry) bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.finished {
		return false
	}
	me.items = append(me.items, e)
	me.broadcast()
	return true
}

// The first call wins.
func (me *Stream) finish(err error) bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.finished {
		return false
	}
	me.finished = true
	me.err = err
	me.broadcast()
	close(me.done)
	return true
}

// Closed when the stream terminates.
func (me *Stream) Done() <-chan struct{} {
	return me.done
}

// The terminal error, nil if the stream completed or hasn't terminated.
func (me *Stream) Err() error {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.err
}

// The children received so far, and whether there will be any more.
func (me *Stream) Snapshot() (items []*Entry, finished bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	return append([]*Entry(nil), me.items...), me.finished
}

func (me *Stream) Cursor() *Cursor {
	return &Cursor{stream: me}
}

// Waits for the stream to terminate, returning every child and the terminal
// error.
func (me *Stream) Collect(ctx context.Context) ([]*Entry, error) {
	return collect(ctx, me.Cursor())
}

func collect(ctx context.Context, c *Cursor) (ret []*Entry, err error) {
	for c.Next(ctx) {
		ret = append(ret, c.Value())
	}
	err = c.Err()
	return
}

// Releases the stream. If it's still the owning entry's current stream, the
// entry's fetch is cancelled, and the stream completes.
func (me *Stream) Dispose() {
	me.owner.disposeStream(me)
}

// Iterates over a Stream from its first child. Each Cursor belongs to a
// single goroutine, but any number may read the same Stream.
type Cursor struct {
	stream *Stream
	filter func(*Entry) bool
	next   int
	cur    *Entry
	err    error
}

// Advances to the next child, blocking until one arrives, the stream
// terminates, or ctx is done. Returns false at the end; Err then tells why.
func (me *Cursor) Next(ctx context.Context) bool {
	s := me.stream
	for {
		s.mu.Lock()
		if me.next < len(s.items) {
			e := s.items[me.next]
			me.next++
			s.mu.Unlock()
			if me.filter != nil && !me.filter(e) {
				continue
			}
			me.cur = e
			return true
		}
		if s.finished {
			me.err = s.err
			me.cur = nil
			s.mu.Unlock()
			return false
		}
		changed := s.changed
		s.mu.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			me.err = ctx.Err()
			me.cur = nil
			return false
		}
	}
}

// The child Next advanced to.
func (me *Cursor) Value() *Entry {
	return me.cur
}

// Why Next returned false: the stream's error, the context's, or nil if the
// stream completed.
func (me *Cursor) Err() error {
	return me.err
}
