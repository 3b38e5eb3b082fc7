package soap

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

const (
	EncodingStyle = "http://schemas.xmlsoap.org/soap/encoding/"
	EnvelopeNS    = "http://schemas.xmlsoap.org/soap/envelope/"
)

type Arg struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

func NewArg(name, value string) Arg {
	return Arg{
		XMLName: xml.Name{Local: name},
		Value:   value,
	}
}

type Action struct {
	XMLName xml.Name
	Args    []Arg `xml:",any"`
}

type Body struct {
	Fault  *Fault `xml:"http://schemas.xmlsoap.org/soap/envelope/ Fault"`
	Action Action `xml:",any"`
}

type Envelope struct {
	XMLName       xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	EncodingStyle string   `xml:"encodingStyle,attr"`
	Body          Body     `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type Fault struct {
	XMLName     xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Fault"`
	FaultCode   string   `xml:"faultcode"`
	FaultString string   `xml:"faultstring"`
	Detail      struct {
		Data []byte `xml:",innerxml"`
	} `xml:"detail"`
}

func NewFault(faultString string, detail []byte) *Fault {
	ret := &Fault{
		FaultCode:   "s:Client",
		FaultString: faultString,
	}
	ret.Detail.Data = detail
	return ret
}

func (me *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", me.FaultCode, me.FaultString)
}

// A decoded action call or response.
type Message struct {
	ServiceType string
	Action      string
	Args        map[string]string
}

// Returns the Fault as the error if the body carries one.
func (me *Envelope) Parse() (*Message, error) {
	if me.Body.Fault != nil {
		return nil, me.Body.Fault
	}
	args := make(map[string]string, len(me.Body.Action.Args))
	for _, arg := range me.Body.Action.Args {
		k := arg.XMLName.Local
		if _, ok := args[k]; ok {
			return nil, fmt.Errorf("duplicate argument name: %s", k)
		}
		args[k] = arg.Value
	}
	return &Message{
		ServiceType: me.Body.Action.XMLName.Space,
		Action:      me.Body.Action.XMLName.Local,
		Args:        args,
	}, nil
}

// Wraps an action element, already serialized, in a SOAP envelope.
func WrapBody(body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	fmt.Fprintf(&buf, `<s:Envelope xmlns:s="%s" s:encodingStyle="%s"><s:Body>`, EnvelopeNS, EncodingStyle)
	buf.Write(body)
	buf.WriteString(`</s:Body></s:Envelope>`)
	return buf.Bytes()
}

// Serializes an action element with arguments in the given order. UPnP
// requires in-arguments in the order the SCPD lists them.
func MarshalAction(serviceType, action string, args []Arg) ([]byte, error) {
	argsXML, err := xml.Marshal(args)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(`<u:%[1]s xmlns:u="%[2]s">%[3]s</u:%[1]s>`, action, serviceType, argsXML)), nil
}

// A complete request envelope for action.
func MarshalRequest(serviceType, action string, args []Arg) ([]byte, error) {
	body, err := MarshalAction(serviceType, action, args)
	if err != nil {
		return nil, err
	}
	return WrapBody(body), nil
}
