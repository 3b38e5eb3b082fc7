package explorer

import (
	"context"
	"errors"
	"sync"

	"github.com/anacrolix/cdsbrowse/futures"
	"github.com/anacrolix/cdsbrowse/metrics"
	"github.com/anacrolix/cdsbrowse/upnpav"
)

var ErrNotDeletable = errors.New("entry is not deletable")

// A node in the local mirror of a server's content tree. Its children are
// fetched on demand and cached until a read bypasses the cache.
type Entry struct {
	server *Server
	// nil for the root.
	parent *Entry
	object upnpav.Object

	mu     sync.Mutex
	stream *Stream
	cancel context.CancelFunc
}

func newEntry(server *Server, parent *Entry, object upnpav.Object) *Entry {
	return &Entry{
		server: server,
		parent: parent,
		object: object,
	}
}

func (me *Entry) Server() *Server          { return me.server }
func (me *Entry) Parent() *Entry           { return me.parent }
func (me *Entry) IsRoot() bool             { return me.parent == nil }
func (me *Entry) Object() upnpav.Object    { return me.object }
func (me *Entry) Name() string             { return me.object.Title() }
func (me *Entry) Type() upnpav.ContentType { return me.object.Type() }
func (me *Entry) IsContent() bool          { return me.object.IsItem() }
func (me *Entry) IsContainer() bool        { return me.object.IsContainer() }

func (me *Entry) String() string {
	return me.object.Title()
}

// Returns the entry's children. Without bypassCache, an existing stream is
// returned as is, whether it's still filling, complete, or failed. Otherwise
// any current fetch is disposed and a new one started.
func (me *Entry) ReadEntries(bypassCache bool) *Stream {
	me.mu.Lock()
	defer me.mu.Unlock()
	if !bypassCache && me.stream != nil {
		metrics.CacheHits.Inc()
		return me.stream
	}
	me.disposeLocked()
	ctx, cancel := context.WithCancel(me.server.ctx)
	s := newStream(me)
	me.stream = s
	me.cancel = cancel
	me.server.browse(ctx, me, s)
	return s
}

// Cancels any fetch in progress. Observers of the current stream see it
// complete with whatever children had arrived. The stream stays cached.
func (me *Entry) Dispose() {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.disposeLocked()
}

func (me *Entry) disposeLocked() {
	if me.cancel == nil {
		return
	}
	// Terminate first, so a fetch failing due to the cancel can't replace
	// the completion with its error.
	me.stream.finish(nil)
	me.cancel()
	me.cancel = nil
}

func (me *Entry) disposeStream(s *Stream) {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.stream != s {
		s.finish(nil)
		return
	}
	me.disposeLocked()
}

// A view of the children of the given type.
func (me *Entry) CreatePlayList(t upnpav.ContentType) *PlayList {
	return &PlayList{
		stream:      me.ReadEntries(false),
		contentType: t,
	}
}

// Whether Delete can succeed: the server supports DestroyObject, and the
// object isn't the root or restricted.
func (me *Entry) IsDeletable() bool {
	return !me.IsRoot() && me.server.HasDeleteFunction() && !upnpav.IsRestricted(me.object)
}

// Destroys the object on the server. The future resolves to nil on success.
func (me *Entry) Delete(ctx context.Context) *futures.Future[error] {
	if !me.IsDeletable() {
		return futures.Resolved(ErrNotDeletable)
	}
	return me.server.delete(ctx, me.object.ObjectID())
}

// The current stream, without starting a browse.
func (me *Entry) cached() *Stream {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.stream
}
