package upnpav

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Version of the encoded object layout. Decoding rejects other versions.
const CodecVersion = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("creating object CBOR encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("creating object CBOR decoder mode: %v", err))
	}
}

type wireAttr struct {
	Name  string `cbor:"1,keyasint"`
	Value string `cbor:"2,keyasint"`
}

type wireTag struct {
	Key   string     `cbor:"1,keyasint,omitempty"`
	Name  string     `cbor:"2,keyasint,omitempty"`
	Value string     `cbor:"3,keyasint,omitempty"`
	Attrs []wireAttr `cbor:"4,keyasint,omitempty"`
}

type wireObject struct {
	Version int       `cbor:"1,keyasint"`
	UDN     string    `cbor:"2,keyasint"`
	Root    bool      `cbor:"3,keyasint,omitempty"`
	Item    bool      `cbor:"4,keyasint,omitempty"`
	Tags    []wireTag `cbor:"5,keyasint,omitempty"`
	RootTag wireTag   `cbor:"6,keyasint"`
}

func toWireTag(key string, t Tag) wireTag {
	ret := wireTag{Key: key, Name: t.name, Value: t.value}
	for _, a := range t.attrs {
		ret.Attrs = append(ret.Attrs, wireAttr{a.Name, a.Value})
	}
	return ret
}

func (me wireTag) tag() Tag {
	ret := Tag{name: me.Name, value: me.Value}
	for _, a := range me.Attrs {
		ret.attrs = append(ret.attrs, Attr{a.Name, a.Value})
	}
	return ret
}

// Encodes an object for storage or transfer between processes.
func MarshalObject(o Object) ([]byte, error) {
	w := wireObject{
		Version: CodecVersion,
		UDN:     o.UDN(),
		Item:    o.IsItem(),
		RootTag: toWireTag("", o.RootTag()),
	}
	switch o.(type) {
	case *rootObject:
		w.Root = true
	case *cdsObject:
	default:
		return nil, fmt.Errorf("can't encode object of type %T", o)
	}
	tags := o.TagMap()
	for _, name := range tags.names {
		for _, t := range tags.tags[name] {
			w.Tags = append(w.Tags, toWireTag(name, t))
		}
	}
	return encMode.Marshal(w)
}

// Decodes an object encoded by MarshalObject. The object is validated the
// same way as one parsed from DIDL-Lite.
func UnmarshalObject(b []byte) (Object, error) {
	var w wireObject
	if err := decMode.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decoding object: %w", err)
	}
	if w.Version != CodecVersion {
		return nil, fmt.Errorf("unsupported object encoding version %d", w.Version)
	}
	if w.Root {
		return NewRootObject(w.UDN), nil
	}
	tags := &TagMap{}
	for _, t := range w.Tags {
		tags.put(t.Key, t.tag())
	}
	return newObject(w.UDN, w.Item, tags, w.RootTag.tag())
}
