package ssdp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const (
	AddrString = "239.255.255.250:1900"
	All        = "ssdp:all"
	RootDevice = "upnp:rootdevice"

	AliveNTS  = "ssdp:alive"
	ByebyeNTS = "ssdp:byebye"
	UpdateNTS = "ssdp:update"

	// Used when CACHE-CONTROL is missing or unparseable.
	DefaultMaxAge = 1800 * time.Second
)

var (
	NetAddr *net.UDPAddr
)

func init() {
	var err error
	NetAddr, err = net.ResolveUDPAddr("udp4", AddrString)
	if err != nil {
		panic(err)
	}
}

type badStringError struct {
	what string
	str  string
}

func (e *badStringError) Error() string { return fmt.Sprintf("%s %q", e.what, e.str) }

type Request struct {
	Method     string
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
}

func ReadRequest(b *bufio.Reader) (req *Request, err error) {
	tp := textproto.NewReader(b)
	var s string
	if s, err = tp.ReadLine(); err != nil {
		return nil, err
	}
	defer func() {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
	}()

	var f []string
	if f = strings.Split(s, " "); len(f) != 3 {
		return nil, &badStringError{"malformed request line", s}
	}
	if f[1] != "*" {
		return nil, &badStringError{"bad URL request", f[1]}
	}
	req = &Request{
		Method: f[0],
	}
	var ok bool
	if req.ProtoMajor, req.ProtoMinor, ok = http.ParseHTTPVersion(f[2]); !ok {
		return nil, &badStringError{"malformed HTTP version", f[2]}
	}

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, err
	}
	req.Header = http.Header(mimeHeader)
	return
}

// What a device announces about one of its targets, in a search response
// or a NOTIFY.
type Advertisement struct {
	// NTS of a NOTIFY. Empty for search responses.
	NTS      string
	Target   string
	USN      string
	Location string
	Server   string
	MaxAge   time.Duration
	// BOOTID.UPNP.ORG, which changes when the device's description may
	// have. Empty for UPnP 1.0 devices.
	BootID string
	From   net.Addr
}

func (me Advertisement) Alive() bool {
	return me.NTS != ByebyeNTS
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "max-age") {
			continue
		}
		secs, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			break
		}
		return time.Duration(secs) * time.Second
	}
	return DefaultMaxAge
}

func advertisement(h http.Header, target string) Advertisement {
	return Advertisement{
		Target:   target,
		USN:      h.Get("USN"),
		Location: h.Get("LOCATION"),
		Server:   h.Get("SERVER"),
		MaxAge:   maxAge(h.Get("CACHE-CONTROL")),
		BootID:   h.Get("BOOTID.UPNP.ORG"),
	}
}

// Parses a unicast reply to an M-SEARCH.
func ParseResponse(buf []byte) (ret Advertisement, err error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(buf)), nil)
	if err != nil {
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = &badStringError{"unexpected status", resp.Status}
		return
	}
	ret = advertisement(resp.Header, resp.Header.Get("ST"))
	if ret.USN == "" {
		err = &badStringError{"missing header", "USN"}
	}
	return
}

// Parses a multicast NOTIFY.
func ParseNotify(buf []byte) (ret Advertisement, err error) {
	req, err := ReadRequest(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		return
	}
	if req.Method != "NOTIFY" {
		err = &badStringError{"unexpected method", req.Method}
		return
	}
	ret = advertisement(req.Header, req.Header.Get("NT"))
	ret.NTS = req.Header.Get("NTS")
	switch {
	case ret.USN == "":
		err = &badStringError{"missing header", "USN"}
	case ret.NTS != AliveNTS && ret.NTS != ByebyeNTS && ret.NTS != UpdateNTS:
		err = &badStringError{"bad NTS", ret.NTS}
	}
	return
}

// The M-SEARCH request for target. Devices spread their replies over mx
// seconds.
func MakeSearchRequest(target string, mx int) []byte {
	lines := [...][2]string{
		{"HOST", AddrString},
		{"MAN", `"ssdp:discover"`},
		{"MX", strconv.Itoa(mx)},
		{"ST", target},
	}
	buf := &bytes.Buffer{}
	fmt.Fprint(buf, "M-SEARCH * HTTP/1.1\r\n")
	for _, pair := range lines {
		fmt.Fprintf(buf, "%s: %s\r\n", pair[0], pair[1])
	}
	fmt.Fprint(buf, "\r\n")
	return buf.Bytes()
}
