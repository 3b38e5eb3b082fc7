package upnpav

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

type Attr struct {
	Name  string
	Value string
}

// A parsed XML element. Names keep the prefix used in the document
// ("dc:title"), since DIDL-Lite properties are addressed that way.
type Element struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Element
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func newDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	d.Entity = xml.HTMLEntity
	return d
}

// Parses the first element of the document, and everything beneath it.
func ParseElement(r io.Reader) (*Element, error) {
	d := newDecoder(r)
	var (
		stack []*Element
		text  []*strings.Builder
	)
	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			if len(stack) == 0 {
				return nil, errors.New("no root element")
			}
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{
				Name: qualifiedName(t.Name),
			}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{qualifiedName(a.Name), a.Value})
			}
			if len(stack) != 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
			text = append(text, &strings.Builder{})
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unexpected end element %q", qualifiedName(t.Name))
			}
			top := stack[len(stack)-1]
			if name := qualifiedName(t.Name); name != top.Name {
				return nil, fmt.Errorf("element %q closed by %q", top.Name, name)
			}
			top.Text = text[len(text)-1].String()
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
			if len(stack) == 0 {
				return top, nil
			}
		case xml.CharData:
			if len(text) != 0 {
				text[len(text)-1].Write(t)
			}
		}
	}
}

// Parses a DIDL-Lite document, as found in the Result argument of a Browse
// response.
func ParseDIDLLite(didl string) (*Element, error) {
	root, err := ParseElement(strings.NewReader(didl))
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(root.Name, "DIDL-Lite") {
		return nil, fmt.Errorf("root element is %q, not DIDL-Lite", root.Name)
	}
	return root, nil
}
