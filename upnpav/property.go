package upnpav

import (
	"strconv"
	"strings"
	"time"
)

// Parses value as a base 10 int, returning defaultValue if it's empty or
// malformed.
func ParseIntSafely(value string, defaultValue int) int {
	return ParseIntRadixSafely(value, 10, defaultValue)
}

// Radix must be in 2..36, prefixes like 0x are not accepted.
func ParseIntRadixSafely(value string, radix, defaultValue int) int {
	if value == "" || radix < 2 || radix > 36 {
		return defaultValue
	}
	i, err := strconv.ParseInt(value, radix, 32)
	if err != nil {
		return defaultValue
	}
	return int(i)
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05"
	zonedLayout    = "2006-01-02T15:04:05-0700"
)

// Parses the date forms found in CDS properties: a calendar date, a local
// date-time, or a date-time with a numeric offset with or without a colon.
// Dates without an offset are in the local time zone.
func ParseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	var (
		t   time.Time
		err error
	)
	switch {
	case len(value) <= 10:
		t, err = time.ParseInLocation(dateLayout, value, time.Local)
	case len(value) <= 19:
		t, err = time.ParseInLocation(dateTimeLayout, value, time.Local)
	case strings.LastIndexByte(value, ':') == 22:
		t, err = time.Parse(zonedLayout, value[:22]+value[23:])
	default:
		t, err = time.Parse(zonedLayout, value)
	}
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// The first ":"-separated fields of the first ";"-separated descriptor.
func protocolInfoFields(protocolInfo string) []string {
	if protocolInfo == "" {
		return nil
	}
	first, _, _ := strings.Cut(protocolInfo, ";")
	fields := strings.Split(first, ":")
	// Trailing empty fields don't count.
	for len(fields) != 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields) < 3 {
		return nil
	}
	return fields
}

// Extracts the MIME type, the third field, from a protocolInfo value.
func ExtractMimeTypeFromProtocolInfo(protocolInfo string) (string, bool) {
	fields := protocolInfoFields(protocolInfo)
	if fields == nil {
		return "", false
	}
	return fields[2], true
}

// Extracts the protocol, the first field, from a protocolInfo value.
func ExtractProtocolFromProtocolInfo(protocolInfo string) (string, bool) {
	fields := protocolInfoFields(protocolInfo)
	if fields == nil {
		return "", false
	}
	return fields[0], true
}
