package explorer

import (
	"slices"
	"sort"
	"sync"

	"github.com/anacrolix/log"

	"github.com/anacrolix/cdsbrowse/futures"
	"github.com/anacrolix/cdsbrowse/metrics"
)

type EventType int

const (
	ServerAdded EventType = iota
	ServerRemoved
)

func (t EventType) String() string {
	switch t {
	case ServerAdded:
		return "added"
	case ServerRemoved:
		return "removed"
	}
	return "unknown"
}

type Event struct {
	Type   EventType
	Server *Server
}

// The known media servers, keyed by UDN.
type Registry struct {
	exec   *futures.Executor
	logger log.Logger

	mu        sync.RWMutex
	servers   map[string]*Server
	listeners []func(Event)
}

func NewRegistry(exec *futures.Executor) *Registry {
	return &Registry{
		exec:    exec,
		logger:  log.Default.WithNames("explorer", "registry"),
		servers: make(map[string]*Server),
	}
}

// Registers fn to be called after each change. Calls are made without the
// registry locked.
func (me *Registry) OnChange(fn func(Event)) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.listeners = append(me.listeners, fn)
}

func (me *Registry) notify(ev Event) {
	me.mu.RLock()
	listeners := slices.Clone(me.listeners)
	me.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Adds a server for ms, unless one with the same UDN is already known. The
// known server is returned either way.
func (me *Registry) Add(ms MediaServer) (s *Server, added bool) {
	me.mu.Lock()
	s, ok := me.servers[ms.UDN()]
	if !ok {
		s = NewServer(ms, me.exec)
		me.servers[ms.UDN()] = s
		metrics.ServersKnown.Set(float64(len(me.servers)))
	}
	me.mu.Unlock()
	if ok {
		return s, false
	}
	me.logger.Printf("added %q (%s)", s.Name(), s.UDN())
	me.notify(Event{ServerAdded, s})
	return s, true
}

// Forgets the server, cancelling its fetches.
func (me *Registry) Remove(udn string) bool {
	me.mu.Lock()
	s, ok := me.servers[udn]
	delete(me.servers, udn)
	metrics.ServersKnown.Set(float64(len(me.servers)))
	me.mu.Unlock()
	if !ok {
		return false
	}
	s.Root().Dispose()
	s.Close()
	me.logger.Printf("removed %q (%s)", s.Name(), udn)
	me.notify(Event{ServerRemoved, s})
	return true
}

func (me *Registry) Get(udn string) (*Server, bool) {
	me.mu.RLock()
	defer me.mu.RUnlock()
	s, ok := me.servers[udn]
	return s, ok
}

// Servers ordered by name, then UDN.
func (me *Registry) Servers() []*Server {
	me.mu.RLock()
	ret := make([]*Server, 0, len(me.servers))
	for _, s := range me.servers {
		ret = append(ret, s)
	}
	me.mu.RUnlock()
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Name() != ret[j].Name() {
			return ret[i].Name() < ret[j].Name()
		}
		return ret[i].UDN() < ret[j].UDN()
	})
	return ret
}

// Closes every known server, so no browse outlives the registry. Call before
// shutting down the executor.
func (me *Registry) Close() {
	for _, s := range me.Servers() {
		s.Close()
	}
}
