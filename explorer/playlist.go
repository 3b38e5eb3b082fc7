package explorer

import (
	"context"

	"github.com/anacrolix/cdsbrowse/upnpav"
)

// The children of one entry that have a particular content type, in the
// order the server returned them. It shares the entry's cached Stream.
type PlayList struct {
	stream      *Stream
	contentType upnpav.ContentType
}

func (me *PlayList) Type() upnpav.ContentType {
	return me.contentType
}

func (me *PlayList) match(e *Entry) bool {
	return e.Type() == me.contentType
}

func (me *PlayList) Cursor() *Cursor {
	return &Cursor{
		stream: me.stream,
		filter: me.match,
	}
}

func (me *PlayList) Collect(ctx context.Context) ([]*Entry, error) {
	return collect(ctx, me.Cursor())
}

func (me *PlayList) Done() <-chan struct{} {
	return me.stream.Done()
}

func (me *PlayList) Dispose() {
	me.stream.Dispose()
}
