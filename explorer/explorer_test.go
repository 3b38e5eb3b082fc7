package explorer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/cdsbrowse/futures"
	"github.com/anacrolix/cdsbrowse/upnpav"
)

const testUDN = "uuid:0d3b7c52-6a5e-4f4e-9d52-2e1c8a0f4b11"

type fakeServer struct {
	udn      string
	children map[string][]upnpav.Object
	err      error
	// When set, Browse waits on it after delivering children.
	gate chan struct{}

	mu        sync.Mutex
	calls     []string
	started   chan string
	canceled  chan string
	destroyed []string
	destroy   bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		udn:      testUDN,
		children: make(map[string][]upnpav.Object),
		started:  make(chan string, 16),
		canceled: make(chan string, 16),
	}
}

func (me *fakeServer) UDN() string          { return me.udn }
func (me *fakeServer) FriendlyName() string { return "Fake" }
func (me *fakeServer) HasDestroyObject() bool {
	return me.destroy
}

func (me *fakeServer) Browse(ctx context.Context, id string, fn func(upnpav.Object)) error {
	me.mu.Lock()
	me.calls = append(me.calls, id)
	me.mu.Unlock()
	me.started <- id
	for _, o := range me.children[id] {
		fn(o)
	}
	if me.gate != nil {
		select {
		case <-me.gate:
		case <-ctx.Done():
			me.canceled <- id
			return ctx.Err()
		}
	}
	return me.err
}

func (me *fakeServer) DestroyObject(ctx context.Context, id string) error {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.destroyed = append(me.destroyed, id)
	if id == "fail" {
		return errors.New("action failed")
	}
	return nil
}

func (me *fakeServer) browseCalls() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return len(me.calls)
}

func objects(t *testing.T, objs ...interface{}) []upnpav.Object {
	didl, err := upnpav.MarshalDIDLLite(objs...)
	require.NoError(t, err)
	ret, err := upnpav.ParseObjects(testUDN, didl, func(err error) { t.Error(err) })
	require.NoError(t, err)
	return ret
}

func item(id, class string) upnpav.Item {
	return upnpav.Item{ObjectProps: upnpav.ObjectProps{ID: id, ParentID: "0", Class: class, Title: "item " + id}}
}

func container(id string) upnpav.ContainerObject {
	return upnpav.ContainerObject{ObjectProps: upnpav.ObjectProps{ID: id, ParentID: "0", Class: "object.container", Title: "container " + id}}
}

func newTestServer(t *testing.T, ms MediaServer) *Server {
	exec := futures.NewExecutor(4)
	t.Cleanup(exec.Shutdown)
	return NewServer(ms, exec)
}

func ids(entries []*Entry) (ret []string) {
	for _, e := range entries {
		ret = append(ret, e.Object().ObjectID())
	}
	return
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestReadEntriesCached(t *testing.T) {
	fs := newFakeServer()
	fs.children["0"] = objects(t, container("1"), item("2", upnpav.VideoItem), item("3", upnpav.AudioItem))
	s := newTestServer(t, fs)
	ctx := testContext(t)

	a := s.Root().ReadEntries(false)
	b := s.Root().ReadEntries(false)
	assert.Same(t, a, b)
	ae, err := a.Collect(ctx)
	require.NoError(t, err)
	be, err := b.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(ae))
	assert.Equal(t, ae, be)
	assert.Same(t, a, s.Root().ReadEntries(false))
	assert.Equal(t, 1, fs.browseCalls())

	for _, e := range ae {
		assert.Same(t, s.Root(), e.Parent())
		assert.Same(t, s, e.Server())
		assert.False(t, e.IsRoot())
	}
	assert.True(t, s.Root().IsRoot())
	assert.True(t, ae[0].IsContainer())
	assert.True(t, ae[1].IsContent())
	assert.Equal(t, "item 2", ae[1].Name())
}

func TestReadEntriesOrder(t *testing.T) {
	fs := newFakeServer()
	var objs []interface{}
	for i := range 200 {
		objs = append(objs, item(fmt.Sprint(i), upnpav.ImageItem))
	}
	fs.children["0"] = objects(t, objs...)
	s := newTestServer(t, fs)
	entries, err := s.Root().ReadEntries(false).Collect(testContext(t))
	require.NoError(t, err)
	require.Len(t, entries, 200)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprint(i), e.Object().ObjectID())
	}
}

func TestReadEntriesBypassCancelsInFlight(t *testing.T) {
	fs := newFakeServer()
	fs.children["0"] = objects(t, item("1", upnpav.VideoItem))
	fs.gate = make(chan struct{})
	s := newTestServer(t, fs)
	ctx := testContext(t)

	first := s.Root().ReadEntries(false)
	c := first.Cursor()
	require.True(t, c.Next(ctx))
	<-fs.started

	second := s.Root().ReadEntries(true)
	assert.NotSame(t, first, second)
	select {
	case <-first.Done():
	case <-ctx.Done():
		t.Fatal("old stream not terminated")
	}
	assert.NoError(t, first.Err())
	assert.False(t, c.Next(ctx))
	assert.NoError(t, c.Err())
	assert.Equal(t, "0", <-fs.canceled)

	<-fs.started
	assert.Equal(t, 2, fs.browseCalls())
	close(fs.gate)
	entries, err := second.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(entries))
	assert.Same(t, second, s.Root().ReadEntries(false))
}

func TestDisposeReleasesObservers(t *testing.T) {
	fs := newFakeServer()
	fs.children["0"] = objects(t, item("1", upnpav.AudioItem))
	fs.gate = make(chan struct{})
	defer close(fs.gate)
	s := newTestServer(t, fs)
	ctx := testContext(t)

	stream := s.Root().ReadEntries(false)
	<-fs.started
	type result struct {
		entries []*Entry
		err     error
	}
	results := make(chan result, 3)
	for range 3 {
		go func() {
			entries, err := stream.Collect(ctx)
			results <- result{entries, err}
		}()
	}
	s.Root().Dispose()
	for range 3 {
		r := <-results
		assert.NoError(t, r.err)
		assert.LessOrEqual(t, len(r.entries), 1)
	}
	assert.Equal(t, "0", <-fs.canceled)

	// Late observers see the terminal state too.
	_, err := stream.Collect(ctx)
	assert.NoError(t, err)
	_, finished := stream.Snapshot()
	assert.True(t, finished)
	// The disposed stream remains cached.
	assert.Same(t, stream, s.Root().ReadEntries(false))
	assert.Equal(t, 1, fs.browseCalls())
}

func TestStickyFailure(t *testing.T) {
	fs := newFakeServer()
	fs.children["0"] = objects(t, item("1", upnpav.VideoItem))
	fs.err = errors.New("connection refused")
	s := newTestServer(t, fs)
	ctx := testContext(t)

	stream := s.Root().ReadEntries(false)
	entries, err := stream.Collect(ctx)
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, []string{"1"}, ids(entries))

	again := s.Root().ReadEntries(false)
	assert.Same(t, stream, again)
	_, err = again.Collect(ctx)
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, 1, fs.browseCalls())

	fs.err = nil
	entries, err = s.Root().ReadEntries(true).Collect(ctx)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 2, fs.browseCalls())
}

func TestChildEntriesBrowseIndependently(t *testing.T) {
	fs := newFakeServer()
	fs.children["0"] = objects(t, container("a"))
	fs.children["a"] = objects(t, item("a/1", upnpav.VideoItem))
	s := newTestServer(t, fs)
	ctx := testContext(t)

	top, err := s.Root().ReadEntries(false).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, top, 1)
	child := top[0]
	entries, err := child.ReadEntries(false).Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1"}, ids(entries))
	assert.Same(t, child, entries[0].Parent())

	// Refetching the parent leaves the child's cache alone.
	childStream := child.ReadEntries(false)
	_, err = s.Root().ReadEntries(true).Collect(ctx)
	require.NoError(t, err)
	assert.Same(t, childStream, child.ReadEntries(false))
	assert.Equal(t, 3, fs.browseCalls())
}

func TestStreamDispose(t *testing.T) {
	fs := newFakeServer()
	fs.gate = make(chan struct{})
	defer close(fs.gate)
	s := newTestServer(t, fs)
	ctx := testContext(t)

	old := s.Root().ReadEntries(false)
	<-fs.started
	current := s.Root().ReadEntries(true)
	<-fs.started
	<-fs.canceled
	// Disposing a superseded stream doesn't touch the current one.
	old.Dispose()
	select {
	case <-current.Done():
		t.Fatal("current stream terminated")
	default:
	}
	current.Dispose()
	_, err := current.Collect(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "0", <-fs.canceled)
}

func TestStreamTerminatesOnce(t *testing.T) {
	s := newStream(nil)
	e := newEntry(nil, nil, upnpav.NewRootObject(testUDN))
	assert.True(t, s.push(e))
	assert.True(t, s.finish(errors.New("first")))
	assert.False(t, s.finish(nil))
	assert.False(t, s.push(e))
	items, finished := s.Snapshot()
	assert.Len(t, items, 1)
	assert.True(t, finished)
	assert.EqualError(t, s.Err(), "first")
}

func TestCursorContext(t *testing.T) {
	s := newStream(nil)
	ctx, cancel := context.WithCancel(context.Background())
	c := s.Cursor()
	go cancel()
	assert.False(t, c.Next(ctx))
	assert.ErrorIs(t, c.Err(), context.Canceled)
	assert.Nil(t, c.Value())
}

func TestPlayList(t *testing.T) {
	fs := newFakeServer()
	fs.children["0"] = objects(t,
		item("v1", upnpav.VideoItem),
		item("a1", upnpav.AudioItem+".musicTrack"),
		container("c"),
		item("v2", upnpav.VideoItem+".movie"),
		item("i1", upnpav.ImageItem),
		item("v3", upnpav.VideoItem),
	)
	s := newTestServer(t, fs)
	ctx := testContext(t)

	pl := s.Root().CreatePlayList(upnpav.Video)
	assert.Equal(t, upnpav.Video, pl.Type())
	entries, err := pl.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2", "v3"}, ids(entries))

	music, err := s.Root().CreatePlayList(upnpav.Audio).Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(music))
	containers, err := s.Root().CreatePlayList(upnpav.Container).Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(containers))
	none, err := s.Root().CreatePlayList(upnpav.Unknown).Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, 1, fs.browseCalls())
}

func TestDelete(t *testing.T) {
	fs := newFakeServer()
	restricted := item("r", upnpav.VideoItem)
	restricted.Restricted = 1
	fs.children["0"] = objects(t, item("ok", upnpav.VideoItem), restricted, item("fail", upnpav.VideoItem))
	s := newTestServer(t, fs)
	ctx := testContext(t)

	entries, err := s.Root().ReadEntries(false).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.False(t, entries[0].IsDeletable())
	assert.ErrorIs(t, entries[0].Delete(ctx).Result(), ErrNotDeletable)

	fs.destroy = true
	assert.False(t, s.Root().IsDeletable())
	assert.True(t, entries[0].IsDeletable())
	assert.False(t, entries[1].IsDeletable())
	assert.NoError(t, entries[0].Delete(ctx).Result())
	assert.Error(t, entries[2].Delete(ctx).Result())
	assert.ErrorIs(t, entries[1].Delete(ctx).Result(), ErrNotDeletable)
	assert.Equal(t, []string{"ok", "fail"}, fs.destroyed)
}

func TestRegistry(t *testing.T) {
	exec := futures.NewExecutor(2)
	defer exec.Shutdown()
	r := NewRegistry(exec)
	var events []string
	r.OnChange(func(ev Event) {
		events = append(events, fmt.Sprintf("%v %s", ev.Type, ev.Server.UDN()))
	})

	a := newFakeServer()
	a.udn = "uuid:b"
	b := newFakeServer()
	b.udn = "uuid:a"
	sa, added := r.Add(a)
	assert.True(t, added)
	again, added := r.Add(a)
	assert.False(t, added)
	assert.Same(t, sa, again)
	r.Add(b)

	got, ok := r.Get("uuid:b")
	assert.True(t, ok)
	assert.Same(t, sa, got)
	var udns []string
	for _, s := range r.Servers() {
		udns = append(udns, s.UDN())
	}
	// Same names, so UDN breaks the tie.
	assert.Equal(t, []string{"uuid:a", "uuid:b"}, udns)

	assert.True(t, r.Remove("uuid:b"))
	assert.False(t, r.Remove("uuid:b"))
	_, ok = r.Get("uuid:b")
	assert.False(t, ok)
	assert.Equal(t, []string{"added uuid:b", "added uuid:a", "removed uuid:b"}, events)
}

func TestServerFind(t *testing.T) {
	fs := newFakeServer()
	fs.children["0"] = objects(t, container("c"), item("a", "object.item.audioItem"))
	fs.children["c"] = objects(t, item("deep", "object.item.videoItem"))
	s := newTestServer(t, fs)
	ctx := testContext(t)

	root, ok := s.Find("0")
	require.True(t, ok)
	assert.Same(t, s.Root(), root)
	_, ok = s.Find("c")
	assert.False(t, ok, "nothing read yet")

	entries, err := s.Root().ReadEntries(false).Collect(ctx)
	require.NoError(t, err)
	c, ok := s.Find("c")
	require.True(t, ok)
	assert.Same(t, entries[0], c)
	_, ok = s.Find("deep")
	assert.False(t, ok)

	_, err = c.ReadEntries(false).Collect(ctx)
	require.NoError(t, err)
	deep, ok := s.Find("deep")
	require.True(t, ok)
	assert.Same(t, c, deep.Parent())
	assert.Equal(t, 2, fs.browseCalls())
}

type mockServer struct {
	mock.Mock
}

func (me *mockServer) UDN() string          { return testUDN }
func (me *mockServer) FriendlyName() string { return "Mock" }

func (me *mockServer) HasDestroyObject() bool {
	return me.Called().Bool(0)
}

func (me *mockServer) Browse(ctx context.Context, id string, fn func(upnpav.Object)) error {
	args := me.Called(ctx, id, fn)
	for _, o := range args.Get(0).([]upnpav.Object) {
		fn(o)
	}
	return args.Error(1)
}

func (me *mockServer) DestroyObject(ctx context.Context, id string) error {
	return me.Called(ctx, id).Error(0)
}

func TestDeleteRestricted(t *testing.T) {
	ms := new(mockServer)
	restricted := item("r", "object.item.audioItem")
	restricted.Restricted = 1
	ms.On("Browse", mock.Anything, "0", mock.Anything).Return(objects(t, restricted, item("a", "object.item.audioItem")), nil).Once()
	ms.On("HasDestroyObject").Return(true)
	ms.On("DestroyObject", mock.Anything, "a").Return(nil).Once()
	s := newTestServer(t, ms)
	ctx := testContext(t)

	entries, err := s.Root().ReadEntries(false).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.ErrorIs(t, entries[0].Delete(ctx).Result(), ErrNotDeletable)
	assert.NoError(t, entries[1].Delete(ctx).Result())
	ms.AssertExpectations(t)
	ms.AssertNotCalled(t, "DestroyObject", mock.Anything, "r")
}

func TestConcurrentReadEntries(t *testing.T) {
	fs := newFakeServer()
	fs.children["0"] = objects(t, item("1", upnpav.VideoItem), item("2", upnpav.AudioItem))
	s := newTestServer(t, fs)
	const n = 32
	streams := make([]*Stream, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			streams[i] = s.Root().ReadEntries(false)
		}()
	}
	wg.Wait()
	for _, st := range streams {
		assert.Same(t, streams[0], st)
	}
	entries, err := streams[0].Collect(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(entries))
	assert.Equal(t, 1, fs.browseCalls())
}

func TestConcurrentRefreshAndDispose(t *testing.T) {
	fs := newFakeServer()
	fs.started = make(chan string, 1024)
	fs.children["0"] = objects(t, item("1", upnpav.VideoItem))
	s := newTestServer(t, fs)
	ctx := testContext(t)
	const n, rounds = 8, 4
	streams := make(chan *Stream, n*rounds)
	var wg sync.WaitGroup
	for range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range rounds {
				streams <- s.Root().ReadEntries(true)
			}
		}()
		go func() {
			defer wg.Done()
			for range rounds {
				s.Root().Dispose()
			}
		}()
	}
	wg.Wait()
	close(streams)
	// Every stream terminates, replaced and disposed ones without error.
	for st := range streams {
		entries, err := st.Collect(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(entries), 1)
	}
	entries, err := s.Root().ReadEntries(true).Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(entries))
}

func TestRegistryCloseCancelsBrowses(t *testing.T) {
	fs := newFakeServer()
	fs.children["0"] = objects(t, container("c"))
	fs.children["c"] = objects(t, item("1", upnpav.AudioItem))
	fs.gate = make(chan struct{})
	defer close(fs.gate)
	exec := futures.NewExecutor(4)
	defer exec.Shutdown()
	r := NewRegistry(exec)
	s, _ := r.Add(fs)
	ctx := testContext(t)

	root := s.Root().ReadEntries(false)
	cur := root.Cursor()
	require.True(t, cur.Next(ctx))
	c := cur.Value()
	child := c.ReadEntries(false)
	require.True(t, child.Cursor().Next(ctx))

	r.Close()
	assert.ElementsMatch(t, []string{"0", "c"}, []string{<-fs.canceled, <-fs.canceled})
	for _, st := range []*Stream{root, child} {
		entries, err := st.Collect(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, entries, 1)
	}
	// Nothing is browsed once closed.
	_, err := c.ReadEntries(true).Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, fs.browseCalls())
}
