package upnpav

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	rootTag := NewTag("DIDL-Lite", "", Attr{"xmlns:dc", "http://purl.org/dc/elements/1.1/"})
	o, err := NewObject(testUDN, parseElement(t, itemXML), rootTag)
	require.NoError(t, err)
	b, err := MarshalObject(o)
	require.NoError(t, err)
	d, err := UnmarshalObject(b)
	require.NoError(t, err)
	assert.True(t, Equal(o, d))
	assert.Equal(t, o.Title(), d.Title())
	assert.Equal(t, o.Type(), d.Type())
	assert.Equal(t, o.Dump(), d.Dump())
	assert.Equal(t, o.TagMap().Names(), d.TagMap().Names())
	assert.True(t, o.RootTag().Equal(d.RootTag()))
	assert.True(t, d.HasProtectedResource())

	b, err = MarshalObject(NewRootObject(testUDN))
	require.NoError(t, err)
	d, err = UnmarshalObject(b)
	require.NoError(t, err)
	assert.Equal(t, RootObjectID, d.ObjectID())
	assert.True(t, d.IsContainer())
}

func TestCodecRejects(t *testing.T) {
	_, err := UnmarshalObject([]byte{0xff})
	assert.Error(t, err)

	b, err := cbor.Marshal(wireObject{Version: CodecVersion + 1, UDN: testUDN})
	require.NoError(t, err)
	_, err = UnmarshalObject(b)
	assert.Error(t, err)

	// Mandatory properties are checked again on the way in.
	b, err = cbor.Marshal(wireObject{
		Version: CodecVersion,
		UDN:     testUDN,
		Item:    true,
		Tags: []wireTag{
			{Name: "item", Attrs: []wireAttr{{"id", "1"}, {"parentID", "0"}}},
			{Key: DCTitle, Name: DCTitle, Value: "t"},
		},
	})
	require.NoError(t, err)
	_, err = UnmarshalObject(b)
	assert.ErrorIs(t, err, ErrMalformed)
}
