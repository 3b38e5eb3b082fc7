package dlna

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// The DLNA parameters carried in the fourth protocolInfo field.
type ContentFeatures struct {
	ProfileName     string
	SupportTimeSeek bool
	SupportRange    bool
	//play speeds, DLNA.ORG_PS
	Transcoded bool
	// Raw DLNA.ORG_FLAGS, 32 hex digits when present.
	Flags string
}

// flags are in hex. trailing 24 zeroes, 26 are after the space
// "DLNA.ORG_OP=" time-seek-range-supp bytes-range-header-supp

func (cf ContentFeatures) String() (ret string) {
	//DLNA.ORG_PN=[a-zA-Z0-9_]*
	ret = fmt.Sprintf("DLNA.ORG_OP=%02b;DLNA.ORG_CI=%b", func() (ret uint) {
		if cf.SupportTimeSeek {
			ret |= 2
		}
		if cf.SupportRange {
			ret |= 1
		}
		return
	}(), func() uint {
		if cf.Transcoded {
			return 1
		}
		return 0
	}())
	if cf.ProfileName != "" {
		ret = "DLNA.ORG_PN=" + cf.ProfileName + ";" + ret
	}
	if cf.Flags != "" {
		ret += ";DLNA.ORG_FLAGS=" + cf.Flags
	}
	return
}

// Parses the fourth protocolInfo field. Unknown parameters are ignored, and
// "*" yields the zero ContentFeatures.
func ParseContentFeatures(s string) (ret ContentFeatures) {
	for _, param := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		switch k {
		case "DLNA.ORG_PN":
			ret.ProfileName = v
		case "DLNA.ORG_OP":
			if len(v) == 2 {
				ret.SupportTimeSeek = v[0] == '1'
				ret.SupportRange = v[1] == '1'
			}
		case "DLNA.ORG_CI":
			ret.Transcoded = v == "1"
		case "DLNA.ORG_FLAGS":
			ret.Flags = v
		}
	}
	return
}

// The four colon-separated fields of a single protocolInfo descriptor.
type ProtocolInfo struct {
	Protocol       string
	Network        string
	ContentFormat  MimeType
	AdditionalInfo string
}

// Parses the first descriptor of a (possibly ';'-separated) protocolInfo
// value. Fewer than three fields is an error. The fourth field may contain
// colons of its own.
func ParseProtocolInfo(s string) (ret ProtocolInfo, err error) {
	first, _, _ := strings.Cut(s, ";")
	fields := strings.SplitN(first, ":", 4)
	if len(fields) < 3 {
		err = fmt.Errorf("invalid protocolInfo: %q", s)
		return
	}
	ret.Protocol = fields[0]
	ret.Network = fields[1]
	ret.ContentFormat = MimeType(fields[2])
	if len(fields) == 4 {
		ret.AdditionalInfo = fields[3]
	}
	return
}

func (me ProtocolInfo) ContentFeatures() ContentFeatures {
	return ParseContentFeatures(me.AdditionalInfo)
}

func (me ProtocolInfo) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", me.Protocol, me.Network, me.ContentFormat, me.AdditionalInfo)
}

// Parses an NPT time, either "H+:MM:SS[.fff]" or "S+[.fff]".
func ParseNPTTime(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	var h, m uint64
	var err error
	switch len(parts) {
	case 1:
	case 3:
		h, err = strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return -1, fmt.Errorf("invalid npt time: %s", s)
		}
		m, err = strconv.ParseUint(parts[1], 10, 8)
		if err != nil || m > 59 {
			return -1, fmt.Errorf("invalid npt time: %s", s)
		}
	default:
		return -1, fmt.Errorf("invalid npt time: %s", s)
	}
	sec, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || sec < 0 {
		return -1, fmt.Errorf("invalid npt time: %s", s)
	}
	ret := time.Duration(h) * time.Hour
	ret += time.Duration(m) * time.Minute
	ret += time.Duration(math.Round(sec * float64(time.Second)))
	return ret, nil
}

func FormatNPTTime(npt time.Duration) string {
	npt /= time.Millisecond
	ms := npt % 1000
	npt /= 1000
	s := npt % 60
	npt /= 60
	m := npt % 60
	npt /= 60
	h := npt
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
