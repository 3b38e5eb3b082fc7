package upnp

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var serviceURNRegexp *regexp.Regexp = regexp.MustCompile(`^urn:([\w.-]+):service:(\w+):(\d+)$`)

type ServiceURN struct {
	// Defaults to schemas-upnp-org when empty.
	Domain  string
	Type    string
	Version uint64
}

func (me ServiceURN) String() string {
	domain := me.Domain
	if domain == "" {
		domain = "schemas-upnp-org"
	}
	return fmt.Sprintf("urn:%s:service:%s:%d", domain, me.Type, me.Version)
}

func ParseServiceType(s string) (ret ServiceURN, err error) {
	matches := serviceURNRegexp.FindStringSubmatch(s)
	if matches == nil {
		err = errors.New(s)
		return
	}
	if len(matches) != 4 {
		err = errors.New(s)
		return
	}
	ret.Domain = matches[1]
	ret.Type = matches[2]
	ret.Version, err = strconv.ParseUint(matches[3], 0, 0)
	return
}

type SoapAction struct {
	ServiceURN
	Action string
}

// The quoted SOAPACTION header value.
func (me SoapAction) String() string {
	return fmt.Sprintf(`"%s#%s"`, me.ServiceURN, me.Action)
}

func ParseActionHTTPHeader(s string) (ret SoapAction, ok bool) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return
	}
	s = s[1 : len(s)-1]
	hashIndex := strings.LastIndex(s, "#")
	if hashIndex == -1 {
		return
	}
	ret.Action = s[hashIndex+1:]
	var err error
	ret.ServiceURN, err = ParseServiceType(s[:hashIndex])
	if err == nil {
		ok = true
	}
	return
}

type SpecVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type Icon struct {
	Mimetype string `xml:"mimetype"`
	Width    int    `xml:"width"`
	Height   int    `xml:"height"`
	Depth    int    `xml:"depth"`
	URL      string `xml:"url"`
}

type Service struct {
	XMLName     xml.Name `xml:"service"`
	ServiceType string   `xml:"serviceType"`
	ServiceId   string   `xml:"serviceId"`
	SCPDURL     string   `xml:"SCPDURL"`
	ControlURL  string   `xml:"controlURL"`
	EventSubURL string   `xml:"eventSubURL"`
}

type Device struct {
	DeviceType   string    `xml:"deviceType"`
	FriendlyName string    `xml:"friendlyName"`
	Manufacturer string    `xml:"manufacturer"`
	ModelName    string    `xml:"modelName"`
	UDN          string    `xml:"UDN"`
	IconList     []Icon    `xml:"iconList>icon,omitempty"`
	ServiceList  []Service `xml:"serviceList>service"`
	DeviceList   []Device  `xml:"deviceList>device,omitempty"`
}

// Searches this device and then its embedded devices, depth first, for a
// device of the given type.
func (me *Device) FindDevice(typePrefix string) *Device {
	if strings.HasPrefix(me.DeviceType, typePrefix) {
		return me
	}
	for i := range me.DeviceList {
		if d := me.DeviceList[i].FindDevice(typePrefix); d != nil {
			return d
		}
	}
	return nil
}

// Returns the first service whose type has the given URN type, any version.
func (me *Device) FindService(serviceType string) *Service {
	for i, s := range me.ServiceList {
		urn, err := ParseServiceType(s.ServiceType)
		if err != nil {
			continue
		}
		if urn.Type == serviceType {
			return &me.ServiceList[i]
		}
	}
	return nil
}

type DeviceDesc struct {
	XMLName     xml.Name    `xml:"urn:schemas-upnp-org:device-1-0 root"`
	SpecVersion SpecVersion `xml:"specVersion"`
	URLBase     string      `xml:"URLBase,omitempty"`
	Device      Device      `xml:"device"`
}

type Error struct {
	XMLName xml.Name `xml:"urn:schemas-upnp-org:control-1-0 UPnPError"`
	Code    uint     `xml:"errorCode"`
	Desc    string   `xml:"errorDescription"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("upnp error %d: %s", e.Code, e.Desc)
}

const (
	InvalidActionErrorCode        = 401
	ArgumentValueInvalidErrorCode = 600
	ActionFailedErrorCode         = 501
	NoSuchObjectErrorCode         = 701
	RestrictedObjectErrorCode     = 711
)

var (
	InvalidActionError Error = Error{
		Code: 401,
		Desc: "Invalid Action",
	}
	ArgumentValueInvalidError = Error{
		Code: 600,
		Desc: "The argument value is invalid",
	}
)

type Action struct {
	Name      string     `xml:"name"`
	Arguments []Argument `xml:"argumentList>argument"`
}

type Argument struct {
	Name            string `xml:"name"`
	Direction       string `xml:"direction"`
	RelatedStateVar string `xml:"relatedStateVariable"`
}

type SCPD struct {
	XMLName           xml.Name        `xml:"urn:schemas-upnp-org:service-1-0 scpd"`
	SpecVersion       SpecVersion     `xml:"specVersion"`
	ActionList        []Action        `xml:"actionList>action"`
	ServiceStateTable []StateVariable `xml:"serviceStateTable>stateVariable"`
}

func (me *SCPD) HasAction(name string) bool {
	for _, a := range me.ActionList {
		if a.Name == name {
			return true
		}
	}
	return false
}

type StateVariable struct {
	SendEvents    string    `xml:"sendEvents,attr"`
	Name          string    `xml:"name"`
	DataType      string    `xml:"dataType"`
	AllowedValues *[]string `xml:"allowedValueList>allowedValue,omitempty"`
}

func FormatUUID(buf []byte) string {
	return fmt.Sprintf("uuid:%x-%x-%x-%x-%x", buf[:4], buf[4:6], buf[6:8], buf[8:10], buf[10:16])
}

// Extracts the UDN from a USN ("uuid:...::urn:...") and canonicalizes it
// when it holds a well-formed UUID. Devices with non-UUID UDNs are returned
// as given.
func ParseUDN(usn string) string {
	udn, _, _ := strings.Cut(usn, "::")
	udn = strings.TrimSpace(udn)
	raw, ok := strings.CutPrefix(udn, "uuid:")
	if !ok {
		return udn
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return udn
	}
	return "uuid:" + u.String()
}
