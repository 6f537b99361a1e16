package http

import "strconv"

// ProtocolVersion is an HTTP-version, ordered by major then minor.
type ProtocolVersion struct {
	Major int
	Minor int
}

// Supported protocol versions.
var (
	HTTP10 = ProtocolVersion{1, 0}
	HTTP11 = ProtocolVersion{1, 1}
)

// String returns the wire form, for example "HTTP/1.1".
func (v ProtocolVersion) String() string {
	return string(v.appendTo(make([]byte, 0, 8)))
}

func (v ProtocolVersion) appendTo(buf []byte) []byte {
	buf = append(buf, "HTTP/"...)
	buf = strconv.AppendInt(buf, int64(v.Major), 10)
	buf = append(buf, '.')
	return strconv.AppendInt(buf, int64(v.Minor), 10)
}

// Compare returns -1, 0 or +1 depending on whether v is lower than, equal to
// or higher than o.
func (v ProtocolVersion) Compare(o ProtocolVersion) int {
	switch {
	case v.Major != o.Major:
		if v.Major < o.Major {
			return -1
		}
		return 1
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	}
	return 0
}

// AtLeast reports whether v >= o.
func (v ProtocolVersion) AtLeast(o ProtocolVersion) bool { return v.Compare(o) >= 0 }

// parseProtocolVersion parses "HTTP/<digit>.<digit>" and accepts only 1.0 and 1.1.
func parseProtocolVersion(s string) (ProtocolVersion, error) {
	if len(s) != 8 || s[:5] != "HTTP/" || s[6] != '.' || !isDigit(s[5]) || !isDigit(s[7]) {
		return ProtocolVersion{}, errorf(KindVersionNotSupported, "invalid protocol version %q", s)
	}
	v := ProtocolVersion{int(s[5] - '0'), int(s[7] - '0')}
	if v != HTTP10 && v != HTTP11 {
		return ProtocolVersion{}, errorf(KindVersionNotSupported, "unsupported protocol version %s", v)
	}
	return v, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
