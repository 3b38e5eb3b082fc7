package upnpav

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anacrolix/cdsbrowse/dlna"
)

// DIDL-Lite names, as addressed through TagMap xpaths.
const (
	ItemTag      = "item"
	ContainerTag = "container"

	ID         = "@id"
	ParentID   = "@parentID"
	Restricted = "@restricted"
	ChildCount = "@childCount"
	Searchable = "@searchable"
	RefID      = "@refID"

	DCTitle       = "dc:title"
	DCCreator     = "dc:creator"
	DCDate        = "dc:date"
	DCDescription = "dc:description"

	UPnPClass               = "upnp:class"
	UPnPGenre               = "upnp:genre"
	UPnPArtist              = "upnp:artist"
	UPnPActor               = "upnp:actor"
	UPnPAlbum               = "upnp:album"
	UPnPAlbumArtURI         = "upnp:albumArtURI"
	UPnPOriginalTrackNumber = "upnp:originalTrackNumber"
	UPnPChannelName         = "upnp:channelName"
	UPnPChannelNr           = "upnp:channelNr"
	UPnPScheduledStartTime  = "upnp:scheduledStartTime"
	UPnPScheduledEndTime    = "upnp:scheduledEndTime"
	UPnPLongDescription     = "upnp:longDescription"

	Res             = "res"
	ProtocolInfo    = "protocolInfo"
	ResProtocolInfo = "res@protocolInfo"
	ResDuration     = "res@duration"
	ResResolution   = "res@resolution"
	ResSize         = "res@size"
	ResBitrate      = "res@bitrate"

	ImageItem = "object.item.imageItem"
	AudioItem = "object.item.audioItem"
	VideoItem = "object.item.videoItem"

	// MIME type of DTCP protected content.
	DTCPMimeType = "application/x-dtcp1"
)

var ErrMalformed = errors.New("malformed object")

type ContentType int

const (
	Unknown ContentType = iota
	Video
	Audio
	Image
	Container
)

var contentTypeNames = [...]string{
	Unknown:   "unknown",
	Video:     "video",
	Audio:     "audio",
	Image:     "image",
	Container: "container",
}

func (t ContentType) String() string {
	if t < 0 || int(t) >= len(contentTypeNames) {
		return fmt.Sprintf("ContentType(%d)", int(t))
	}
	return contentTypeNames[t]
}

func ParseContentType(s string) (ContentType, error) {
	for i, name := range contentTypeNames {
		if strings.EqualFold(s, name) {
			return ContentType(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown content type %q", s)
}

// Classifies by upnp:class prefix, so subclasses get their base class's
// type. Containers are always Container.
func Classify(isItem bool, upnpClass string) ContentType {
	switch {
	case !isItem:
		return Container
	case strings.HasPrefix(upnpClass, ImageItem):
		return Image
	case strings.HasPrefix(upnpClass, AudioItem):
		return Audio
	case strings.HasPrefix(upnpClass, VideoItem):
		return Video
	}
	return Unknown
}

// Identifies an object across re-fetches: metadata may change, the key
// doesn't.
type ObjectKey struct {
	UDN      string
	ObjectID string
}

// A ContentDirectory object. Implementations are immutable.
type Object interface {
	UDN() string
	ObjectID() string
	ParentID() string
	Key() ObjectKey
	IsItem() bool
	IsContainer() bool
	Type() ContentType
	Title() string
	UpnpClass() string

	Value(xpath string) (string, bool)
	ValueAt(xpath string, index int) (string, bool)
	Attr(tagName, attrName string) (string, bool)
	AttrAt(tagName, attrName string, index int) (string, bool)
	Tag(tagName string) (Tag, bool)
	TagAt(tagName string, index int) (Tag, bool)
	Tags(tagName string) []Tag
	// The enclosing DIDL-Lite element's attributes.
	RootTag() Tag
	TagMap() *TagMap

	IntValue(xpath string, defaultValue int) int
	IntValueAt(xpath string, index, defaultValue int) int
	DateValue(xpath string) (time.Time, bool)
	DateValueAt(xpath string, index int) (time.Time, bool)

	ResourceCount() int
	HasResource() bool
	HasProtectedResource() bool

	String() string
	// Every tag, for debugging.
	Dump() string
}

// Objects are equal when they have the same key.
func Equal(a, b Object) bool {
	return a.Key() == b.Key()
}

// Metadata access shared by both Object implementations.
type metadata struct {
	tags    *TagMap
	rootTag Tag
}

func (me metadata) Value(xpath string) (string, bool) { return me.tags.Value(xpath) }

func (me metadata) ValueAt(xpath string, index int) (string, bool) {
	return me.tags.ValueAt(xpath, index)
}

func (me metadata) Attr(tagName, attrName string) (string, bool) {
	return me.tags.Attr(tagName, attrName)
}

func (me metadata) AttrAt(tagName, attrName string, index int) (string, bool) {
	return me.tags.AttrAt(tagName, attrName, index)
}

func (me metadata) Tag(tagName string) (Tag, bool) { return me.tags.Tag(tagName) }

func (me metadata) TagAt(tagName string, index int) (Tag, bool) {
	return me.tags.TagAt(tagName, index)
}

func (me metadata) Tags(tagName string) []Tag { return me.tags.Tags(tagName) }
func (me metadata) RootTag() Tag              { return me.rootTag }
func (me metadata) TagMap() *TagMap           { return me.tags }

func (me metadata) IntValue(xpath string, defaultValue int) int {
	return me.IntValueAt(xpath, 0, defaultValue)
}

func (me metadata) IntValueAt(xpath string, index, defaultValue int) int {
	v, _ := me.tags.ValueAt(xpath, index)
	return ParseIntSafely(v, defaultValue)
}

func (me metadata) DateValue(xpath string) (time.Time, bool) {
	return me.DateValueAt(xpath, 0)
}

func (me metadata) DateValueAt(xpath string, index int) (time.Time, bool) {
	v, _ := me.tags.ValueAt(xpath, index)
	return ParseDate(v)
}

func (me metadata) ResourceCount() int {
	return len(me.tags.tags[Res])
}

func (me metadata) HasResource() bool {
	return me.ResourceCount() > 0
}

func (me metadata) HasProtectedResource() bool {
	for _, tag := range me.tags.tags[Res] {
		pi, _ := tag.Attribute(ProtocolInfo)
		if mt, ok := ExtractMimeTypeFromProtocolInfo(pi); ok && mt == DTCPMimeType {
			return true
		}
	}
	return false
}

func (me metadata) Dump() string {
	return me.tags.String()
}

// An item or container parsed from DIDL-Lite.
type cdsObject struct {
	metadata
	udn       string
	item      bool
	objectID  string
	parentID  string
	title     string
	upnpClass string
	typ       ContentType
}

func isItemTag(tagName string) (bool, error) {
	switch tagName {
	case ItemTag:
		return true, nil
	case ContainerTag:
		return false, nil
	}
	return false, fmt.Errorf("%w: unexpected element %q", ErrMalformed, tagName)
}

// Builds an Object from an item or container element. rootTag describes the
// enclosing DIDL-Lite element. Missing mandatory properties are an error
// wrapping ErrMalformed.
func NewObject(udn string, el *Element, rootTag Tag) (Object, error) {
	item, err := isItemTag(el.Name)
	if err != nil {
		return nil, err
	}
	return newObject(udn, item, newTagMap(el), rootTag)
}

func newObject(udn string, item bool, tags *TagMap, rootTag Tag) (Object, error) {
	ret := &cdsObject{
		metadata: metadata{tags: tags, rootTag: rootTag},
		udn:      udn,
		item:     item,
	}
	for _, f := range []struct {
		xpath string
		dst   *string
	}{
		{ID, &ret.objectID},
		{ParentID, &ret.parentID},
		{DCTitle, &ret.title},
		{UPnPClass, &ret.upnpClass},
	} {
		v, ok := tags.Value(f.xpath)
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, f.xpath)
		}
		*f.dst = v
	}
	ret.typ = Classify(item, ret.upnpClass)
	return ret, nil
}

func (me *cdsObject) UDN() string       { return me.udn }
func (me *cdsObject) ObjectID() string  { return me.objectID }
func (me *cdsObject) ParentID() string  { return me.parentID }
func (me *cdsObject) Key() ObjectKey    { return ObjectKey{me.udn, me.objectID} }
func (me *cdsObject) IsItem() bool      { return me.item }
func (me *cdsObject) IsContainer() bool { return !me.item }
func (me *cdsObject) Type() ContentType { return me.typ }
func (me *cdsObject) Title() string     { return me.title }
func (me *cdsObject) UpnpClass() string { return me.upnpClass }
func (me *cdsObject) String() string    { return me.title }

const (
	RootObjectID = "0"
	RootParentID = "-1"
	rootClass    = "object.container"
)

// The top of a server's content tree, for servers that don't describe their
// root themselves. It has no metadata.
type rootObject struct {
	metadata
	udn string
}

func NewRootObject(udn string) Object {
	return &rootObject{
		metadata: metadata{tags: EmptyTagMap, rootTag: EmptyTag},
		udn:      udn,
	}
}

func (me *rootObject) UDN() string       { return me.udn }
func (me *rootObject) ObjectID() string  { return RootObjectID }
func (me *rootObject) ParentID() string  { return RootParentID }
func (me *rootObject) Key() ObjectKey    { return ObjectKey{me.udn, RootObjectID} }
func (me *rootObject) IsItem() bool      { return false }
func (me *rootObject) IsContainer() bool { return true }
func (me *rootObject) Type() ContentType { return Container }
func (me *rootObject) Title() string     { return "" }
func (me *rootObject) UpnpClass() string { return rootClass }
func (me *rootObject) String() string    { return "" }

// Duration of the index'th resource, from its NPT duration attribute.
func ResourceDuration(o Object, index int) (time.Duration, bool) {
	v, ok := o.ValueAt(ResDuration, index)
	if !ok {
		return 0, false
	}
	d, err := dlna.ParseNPTTime(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// The parsed protocolInfo of the index'th resource.
func ResourceProtocolInfo(o Object, index int) (dlna.ProtocolInfo, bool) {
	v, ok := o.ValueAt(ResProtocolInfo, index)
	if !ok {
		return dlna.ProtocolInfo{}, false
	}
	pi, err := dlna.ParseProtocolInfo(v)
	if err != nil {
		return dlna.ProtocolInfo{}, false
	}
	return pi, true
}

// Whether the object's @restricted attribute forbids modification.
func IsRestricted(o Object) bool {
	v, _ := o.Value(Restricted)
	return v == "1" || strings.EqualFold(v, "true")
}

// The DLNA content features of the index'th resource.
func ContentFeatures(o Object, index int) (dlna.ContentFeatures, bool) {
	pi, ok := ResourceProtocolInfo(o, index)
	if !ok {
		return dlna.ContentFeatures{}, false
	}
	return pi.ContentFeatures(), true
}
