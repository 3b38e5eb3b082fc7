package upnp

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServiceType(t *testing.T) {
	urn, err := ParseServiceType("urn:schemas-upnp-org:service:ContentDirectory:1")
	require.NoError(t, err)
	assert.Equal(t, ServiceURN{"schemas-upnp-org", "ContentDirectory", 1}, urn)
	assert.Equal(t, "urn:schemas-upnp-org:service:ContentDirectory:1", urn.String())

	urn, err = ParseServiceType("urn:microsoft.com:service:X_MS_MediaReceiverRegistrar:1")
	require.NoError(t, err)
	assert.Equal(t, "X_MS_MediaReceiverRegistrar", urn.Type)

	_, err = ParseServiceType("urn:schemas-upnp-org:device:MediaServer:1")
	assert.Error(t, err)
}

func TestSoapActionHeaderRoundTrip(t *testing.T) {
	sa := SoapAction{
		ServiceURN: ServiceURN{Type: "ContentDirectory", Version: 1},
		Action:     "Browse",
	}
	h := sa.String()
	assert.Equal(t, `"urn:schemas-upnp-org:service:ContentDirectory:1#Browse"`, h)
	parsed, ok := ParseActionHTTPHeader(h)
	require.True(t, ok)
	assert.Equal(t, "Browse", parsed.Action)
	assert.Equal(t, "ContentDirectory", parsed.Type)

	for _, bad := range []string{"", `"`, `"nohash"`, "unquoted#Browse"} {
		_, ok := ParseActionHTTPHeader(bad)
		assert.False(t, ok, bad)
	}
}

const rootDesc = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:Basic:1</deviceType>
    <friendlyName>NAS</friendlyName>
    <UDN>uuid:aaaa</UDN>
    <deviceList>
      <device>
        <deviceType>urn:schemas-upnp-org:device:MediaServer:1</deviceType>
        <friendlyName>NAS Media</friendlyName>
        <UDN>uuid:bbbb</UDN>
        <serviceList>
          <service>
            <serviceType>urn:schemas-upnp-org:service:ConnectionManager:1</serviceType>
            <controlURL>/cm</controlURL>
          </service>
          <service>
            <serviceType>urn:schemas-upnp-org:service:ContentDirectory:2</serviceType>
            <serviceId>urn:upnp-org:serviceId:ContentDirectory</serviceId>
            <SCPDURL>/cds.xml</SCPDURL>
            <controlURL>/cds/control</controlURL>
          </service>
        </serviceList>
      </device>
    </deviceList>
  </device>
</root>`

func TestDeviceDescEmbeddedDevice(t *testing.T) {
	var desc DeviceDesc
	require.NoError(t, xml.Unmarshal([]byte(rootDesc), &desc))
	d := desc.Device.FindDevice("urn:schemas-upnp-org:device:MediaServer:")
	require.NotNil(t, d)
	assert.Equal(t, "NAS Media", d.FriendlyName)
	assert.Equal(t, "uuid:bbbb", d.UDN)
	s := d.FindService("ContentDirectory")
	require.NotNil(t, s)
	assert.Equal(t, "/cds/control", s.ControlURL)
	assert.Equal(t, "/cds.xml", s.SCPDURL)
	assert.Nil(t, d.FindService("AVTransport"))
}

func TestSCPDHasAction(t *testing.T) {
	var scpd SCPD
	require.NoError(t, xml.Unmarshal([]byte(`<scpd xmlns="urn:schemas-upnp-org:service-1-0">
<actionList><action><name>Browse</name></action><action><name>DestroyObject</name></action></actionList>
</scpd>`), &scpd))
	assert.True(t, scpd.HasAction("DestroyObject"))
	assert.False(t, scpd.HasAction("CreateObject"))
}

func TestParseUDN(t *testing.T) {
	assert.Equal(t,
		"uuid:4d696e69-444c-164e-9d41-b827eb96c6c2",
		ParseUDN("uuid:4D696E69-444C-164E-9D41-B827EB96C6C2::urn:schemas-upnp-org:device:MediaServer:1"))
	assert.Equal(t, "uuid:not-a-uuid", ParseUDN("uuid:not-a-uuid::upnp:rootdevice"))
	assert.Equal(t, "", ParseUDN(""))
}

func TestErrorString(t *testing.T) {
	var err error = &Error{Code: NoSuchObjectErrorCode, Desc: "No such object"}
	assert.EqualError(t, err, "upnp error 701: No such object")
}
