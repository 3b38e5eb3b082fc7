package upnpav

import (
	"strings"
)

// The flattened form of one XML element: its name, text, and attributes.
// Tags are immutable.
type Tag struct {
	name  string
	value string
	attrs []Attr
}

// Represents the absence of a tag.
var EmptyTag = Tag{}

func newTag(el *Element, self bool) Tag {
	ret := Tag{
		name: el.Name,
	}
	// The object element's own text is insignificant whitespace.
	if !self {
		ret.value = el.Text
	}
	if len(el.Attrs) != 0 {
		ret.attrs = append([]Attr(nil), el.Attrs...)
	}
	return ret
}

func NewTag(name, value string, attrs ...Attr) Tag {
	return Tag{
		name:  name,
		value: value,
		attrs: append([]Attr(nil), attrs...),
	}
}

func (t Tag) Name() string  { return t.name }
func (t Tag) Value() string { return t.value }

func (t Tag) Attribute(name string) (string, bool) {
	for _, a := range t.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Attributes in document order. The slice is a copy.
func (t Tag) Attributes() []Attr {
	if len(t.attrs) == 0 {
		return nil
	}
	return append([]Attr(nil), t.attrs...)
}

func (t Tag) Equal(other Tag) bool {
	if t.name != other.name || t.value != other.value || len(t.attrs) != len(other.attrs) {
		return false
	}
	for i := range t.attrs {
		if t.attrs[i] != other.attrs[i] {
			return false
		}
	}
	return true
}

func (t Tag) String() string {
	var sb strings.Builder
	sb.WriteString(t.value)
	for _, a := range t.attrs {
		sb.WriteString("\n@")
		sb.WriteString(a.Name)
		sb.WriteString(" => ")
		sb.WriteString(a.Value)
	}
	return sb.String()
}

// Tags of one object element keyed by tag name, with repeated names kept in
// document order. The key "" holds the object element's own attributes.
type TagMap struct {
	names []string
	tags  map[string][]Tag
}

var EmptyTagMap = &TagMap{}

func (m *TagMap) put(key string, tag Tag) {
	if m.tags == nil {
		m.tags = make(map[string][]Tag)
	}
	if _, ok := m.tags[key]; !ok {
		m.names = append(m.names, key)
	}
	m.tags[key] = append(m.tags[key], tag)
}

// The self tag is stored first, then one tag per direct child element.
// Deeper nesting is not represented.
func newTagMap(el *Element) *TagMap {
	m := &TagMap{}
	m.put("", newTag(el, true))
	for _, child := range el.Children {
		m.put(child.Name, newTag(child, false))
	}
	return m
}

// Tag names in order of first appearance, "" included.
func (m *TagMap) Names() []string {
	return append([]string(nil), m.names...)
}

// All tags with the given name, nil if there are none.
func (m *TagMap) Tags(tagName string) []Tag {
	return append([]Tag(nil), m.tags[tagName]...)
}

func (m *TagMap) Tag(tagName string) (Tag, bool) {
	return m.TagAt(tagName, 0)
}

func (m *TagMap) TagAt(tagName string, index int) (Tag, bool) {
	list := m.tags[tagName]
	if index < 0 || index >= len(list) {
		return EmptyTag, false
	}
	return list[index], true
}

// Looks up "tag", "tag@attr", or "@attr" for attributes of the object
// element itself.
func (m *TagMap) Value(xpath string) (string, bool) {
	return m.ValueAt(xpath, 0)
}

func (m *TagMap) ValueAt(xpath string, index int) (string, bool) {
	tagName, attrName, _ := strings.Cut(xpath, "@")
	return m.AttrAt(tagName, attrName, index)
}

// The attribute of the first tagName tag. An empty attrName selects the tag
// value instead.
func (m *TagMap) Attr(tagName, attrName string) (string, bool) {
	return m.AttrAt(tagName, attrName, 0)
}

func (m *TagMap) AttrAt(tagName, attrName string, index int) (string, bool) {
	tag, ok := m.TagAt(tagName, index)
	if !ok {
		return "", false
	}
	if attrName == "" {
		return tag.Value(), true
	}
	return tag.Attribute(attrName)
}

func (m *TagMap) String() string {
	var sb strings.Builder
	for _, name := range m.names {
		for _, tag := range m.tags[name] {
			sb.WriteString(name)
			sb.WriteString(" => ")
			sb.WriteString(tag.String())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
