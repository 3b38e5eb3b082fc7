package explorer

import (
	"context"
	"time"

	"github.com/anacrolix/log"

	"github.com/anacrolix/cdsbrowse/futures"
	"github.com/anacrolix/cdsbrowse/metrics"
	"github.com/anacrolix/cdsbrowse/upnpav"
)

// What the browsing layer needs from a remote media server.
type MediaServer interface {
	UDN() string
	FriendlyName() string
	// Calls fn with each child of the container, in the order the server
	// returns them, then returns once they've all been delivered.
	Browse(ctx context.Context, objectID string, fn func(upnpav.Object)) error
	HasDestroyObject() bool
	DestroyObject(ctx context.Context, objectID string) error
}

// A remote media server and the root of its content tree.
type Server struct {
	ms     MediaServer
	exec   *futures.Executor
	root   *Entry
	logger log.Logger
	// Parent of every browse context.
	ctx   context.Context
	close context.CancelFunc
}

// Browse and destroy calls run on exec, which may be shared between servers.
func NewServer(ms MediaServer, exec *futures.Executor) *Server {
	ret := &Server{
		ms:     ms,
		exec:   exec,
		logger: log.Default.WithNames("explorer", ms.UDN()),
	}
	ret.ctx, ret.close = context.WithCancel(context.Background())
	ret.root = newEntry(ret, nil, upnpav.NewRootObject(ms.UDN()))
	return ret
}

func (me *Server) UDN() string              { return me.ms.UDN() }
func (me *Server) Name() string             { return me.ms.FriendlyName() }
func (me *Server) Root() *Entry             { return me.root }
func (me *Server) MediaServer() MediaServer { return me.ms }
func (me *Server) HasDeleteFunction() bool  { return me.ms.HasDestroyObject() }

func (me *Server) String() string {
	return me.Name()
}

// Cancels every browse in progress or queued, at any depth. Later reads fail
// with context.Canceled.
func (me *Server) Close() {
	me.close()
}

// Fills s with the children of e.
func (me *Server) browse(ctx context.Context, e *Entry, s *Stream) {
	id := e.object.ObjectID()
	futures.Submit(me.exec, func() error {
		if ctx.Err() != nil {
			s.finish(ctx.Err())
			return ctx.Err()
		}
		metrics.BrowseInFlight.Inc()
		defer metrics.BrowseInFlight.Dec()
		started := time.Now()
		var count int
		err := me.ms.Browse(ctx, id, func(o upnpav.Object) {
			if s.push(newEntry(me, e, o)) {
				count++
			}
		})
		metrics.BrowseDuration.Observe(time.Since(started).Seconds())
		switch {
		case ctx.Err() != nil:
			metrics.BrowseTotal.WithLabelValues("canceled").Inc()
			me.logger.Levelf(log.Debug, "browse %q canceled after %d children", id, count)
		case err != nil:
			metrics.BrowseTotal.WithLabelValues("error").Inc()
			me.logger.Levelf(log.Warning, "browse %q: %v", id, err)
		default:
			metrics.BrowseTotal.WithLabelValues("ok").Inc()
			me.logger.Levelf(log.Debug, "browse %q: %d children", id, count)
		}
		s.finish(err)
		return err
	})
}

func (me *Server) delete(ctx context.Context, objectID string) *futures.Future[error] {
	return futures.Submit(me.exec, func() error {
		err := me.ms.DestroyObject(ctx, objectID)
		if err != nil {
			me.logger.Levelf(log.Warning, "destroying %q: %v", objectID, err)
		}
		return err
	})
}

// Looks for the entry with the given object ID among the children already
// read, without browsing.
func (me *Server) Find(objectID string) (*Entry, bool) {
	if objectID == "" || objectID == upnpav.RootObjectID {
		return me.root, true
	}
	seen := make(map[*Entry]struct{})
	queue := []*Entry{me.root}
	for len(queue) != 0 {
		e := queue[0]
		queue = queue[1:]
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		s := e.cached()
		if s == nil {
			continue
		}
		children, _ := s.Snapshot()
		for _, c := range children {
			if c.object.ObjectID() == objectID {
				return c, true
			}
			queue = append(queue, c)
		}
	}
	return nil, false
}
