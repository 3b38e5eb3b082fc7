package upnpav

import (
	"encoding/xml"
	"fmt"
)

type Resource struct {
	XMLName      xml.Name `xml:"res"`
	ProtocolInfo string   `xml:"protocolInfo,attr"`
	URL          string   `xml:",chardata"`
	Size         uint64   `xml:"size,attr,omitempty"`
	Bitrate      uint     `xml:"bitrate,attr,omitempty"`
	Duration     string   `xml:"duration,attr,omitempty"`
	Resolution   string   `xml:"resolution,attr,omitempty"`
}

type ContainerObject struct {
	ObjectProps
	XMLName    xml.Name `xml:"container"`
	ChildCount int      `xml:"childCount,attr"`
}

type Item struct {
	ObjectProps
	XMLName xml.Name `xml:"item"`
	Res     []Resource
}

// Properties common to items and containers, for producing DIDL-Lite.
type ObjectProps struct {
	ID          string `xml:"id,attr"`
	ParentID    string `xml:"parentID,attr"`
	Restricted  int    `xml:"restricted,attr"` // indicates whether the object is modifiable
	Class       string `xml:"upnp:class"`
	Icon        string `xml:"upnp:icon,omitempty"`
	Title       string `xml:"dc:title"`
	Date        string `xml:"dc:date,omitempty"`
	Artist      string `xml:"upnp:artist,omitempty"`
	Album       string `xml:"upnp:album,omitempty"`
	AlbumArtURI string `xml:"upnp:albumArtURI,omitempty"`
}

// Wraps marshalled objects in a DIDL-Lite element declaring the usual
// prefixes.
func DIDLLite(chardata string) string {
	return `<DIDL-Lite` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/"` +
		` xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"` +
		` xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"` +
		` xmlns:dlna="urn:schemas-dlna-org:metadata-1-0/">` +
		chardata +
		`</DIDL-Lite>`
}

// Marshals Items and Containers into a DIDL-Lite document.
func MarshalDIDLLite(objs ...interface{}) (string, error) {
	buf, err := xml.MarshalIndent(objs, "", "  ")
	if err != nil {
		return "", err
	}
	return DIDLLite(string(buf)), nil
}

// Parses the objects of a DIDL-Lite document in document order. Children
// that aren't valid objects are passed to skip, if it's not nil, and
// otherwise left out. Only a document that can't be parsed at all is an
// error.
func ParseObjects(udn, didl string, skip func(error)) ([]Object, error) {
	root, err := ParseDIDLLite(didl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	rootTag := newTag(root, true)
	ret := make([]Object, 0, len(root.Children))
	for _, el := range root.Children {
		obj, err := NewObject(udn, el, rootTag)
		if err != nil {
			if skip != nil {
				skip(err)
			}
			continue
		}
		ret = append(ret, obj)
	}
	return ret, nil
}
