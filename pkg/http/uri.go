package http

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// RFC 3986 building blocks for https URIs.
const (
	reUnreservedSub = `[\w\-.~!$&'()*+,;=]`
	rePct           = `%[0-9a-fA-F]{2}`
	rePchar         = `(?:` + rePct + `|` + reUnreservedSub + `|[:@])`
	reRegName       = `(?:` + rePct + `|` + reUnreservedSub + `)*`
	reIPLiteral     = `\[(?:` + reUnreservedSub + `|:)*\]`
	reHost          = `(?P<host>` + reIPLiteral + `|` + reRegName + `)`
	rePort          = `(?::(?P<port>\d*))?`
	rePath          = `(?P<path>(?:/` + rePchar + `*)*)`
	reQuery         = `(?:\?(?P<query>(?:` + rePchar + `|[/?])*))?`
)

var (
	absoluteURIPattern = regexp.MustCompile(`^(?i:https)://` + reHost + rePort + rePath + reQuery + `$`)
	originFormPattern  = regexp.MustCompile(`^(?P<path>(?:/` + rePchar + `*)+)` + reQuery + `$`)
	authorityPattern   = regexp.MustCompile(`^` + reHost + rePort + `$`)
	absolutePrefix     = regexp.MustCompile(`^(?i:https)://`)
)

// URI is a normalized https URI. Construct it with NewURI or ParseURI.
type URI struct {
	host     string
	port     string
	path     string
	query    string
	hasQuery bool
}

// NewURI normalizes its components into a URI:
//
//   - the host is case-folded
//   - percent-encoded triplets get upper-case hex digits
//   - triplets encoding unreserved characters are decoded
//   - dot segments are removed from the path; an empty path becomes "/"
//   - an empty or "443" port is dropped
//
// The host must not be empty.
func NewURI(host, port, path string, query *string) (URI, error) {
	u := URI{
		host: normalizeHost(host),
		port: normalizePct(port),
		path: removeDotSegments(normalizePct(path)),
	}
	if u.host == "" {
		return URI{}, badRequest("empty host")
	}
	if u.port == "443" {
		u.port = ""
	}
	if u.path == "" {
		u.path = "/"
	}
	if query != nil {
		u.query = normalizePct(*query)
		u.hasQuery = true
	}
	return u, nil
}

// ParseURI parses and normalizes an absolute https URI.
func ParseURI(s string) (URI, error) {
	m := absoluteURIPattern.FindStringSubmatch(s)
	if m == nil {
		return URI{}, badRequest("invalid https URI %q", s)
	}
	return NewURI(
		m[absoluteURIPattern.SubexpIndex("host")],
		m[absoluteURIPattern.SubexpIndex("port")],
		m[absoluteURIPattern.SubexpIndex("path")],
		optionalQuery(s, m[absoluteURIPattern.SubexpIndex("query")]),
	)
}

// Host returns the normalized host.
func (u URI) Host() string { return u.host }

// Port returns the explicit port, if any. Port 443 is never explicit.
func (u URI) Port() (string, bool) { return u.port, u.port != "" }

// PortOr443 returns the numeric port, defaulting to 443. It returns -1 if
// the port does not fit an int.
func (u URI) PortOr443() int {
	if u.port == "" {
		return 443
	}
	n, err := strconv.Atoi(u.port)
	if err != nil {
		return -1
	}
	return n
}

// Path returns the normalized path, never empty.
func (u URI) Path() string { return u.path }

// Query returns the query and whether one is present.
func (u URI) Query() (string, bool) { return u.query, u.hasQuery }

// Normalize re-applies normalization. The result always equals u.
func (u URI) Normalize() URI {
	var q *string
	if u.hasQuery {
		q = &u.query
	}
	n, err := NewURI(u.host, u.port, u.path, q)
	if err != nil {
		return u
	}
	return n
}

// String recombines the components into "https://host[:port]path[?query]".
func (u URI) String() string {
	var b strings.Builder
	b.Grow(8 + len(u.host) + len(u.port) + len(u.path) + len(u.query) + 2)
	b.WriteString("https://")
	b.WriteString(u.host)
	if u.port != "" {
		b.WriteByte(':')
		b.WriteString(u.port)
	}
	b.WriteString(u.path)
	if u.hasQuery {
		b.WriteByte('?')
		b.WriteString(u.query)
	}
	return b.String()
}

// ReconstructTargetURI builds the target URI of a request from its
// request-target and Host field value. An absolute https target is used as is
// and the Host field is ignored. Otherwise the target must be origin-form or
// "*" and the authority comes from Host.
func ReconstructTargetURI(target, host string, hasHost bool) (URI, error) {
	if absolutePrefix.MatchString(target) {
		return ParseURI(target)
	}

	if !hasHost || host == "" {
		return URI{}, badRequest("empty authority component")
	}
	am := authorityPattern.FindStringSubmatch(host)
	if am == nil || !httpguts.ValidHostHeader(host) {
		return URI{}, badRequest("invalid authority component %q", host)
	}
	authHost := am[authorityPattern.SubexpIndex("host")]
	authPort := am[authorityPattern.SubexpIndex("port")]

	if target == "*" {
		return NewURI(authHost, authPort, "", nil)
	}
	om := originFormPattern.FindStringSubmatch(target)
	if om == nil {
		return URI{}, badRequest("invalid request target")
	}
	return NewURI(
		authHost,
		authPort,
		om[originFormPattern.SubexpIndex("path")],
		optionalQuery(target, om[originFormPattern.SubexpIndex("query")]),
	)
}

// optionalQuery distinguishes an empty query ("/p?") from no query ("/p").
func optionalQuery(s, query string) *string {
	if query == "" && !strings.Contains(s, "?") {
		return nil
	}
	return &query
}

func normalizeHost(host string) string {
	host = normalizePct(host)
	var b []byte
	for i := 0; i < len(host); i++ {
		c := host[i]
		if c == '%' && i+2 < len(host) {
			if b != nil {
				b = append(b, host[i:i+3]...)
			}
			i += 2
			continue
		}
		if c >= 'A' && c <= 'Z' {
			if b == nil {
				b = append(make([]byte, 0, len(host)), host[:i]...)
			}
			c += 'a' - 'A'
		}
		if b != nil {
			b = append(b, c)
		}
	}
	if b == nil {
		return host
	}
	return string(b)
}

// normalizePct upper-cases the hex digits of every percent-encoded triplet and
// decodes triplets that encode unreserved characters.
func normalizePct(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' || i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
			b = append(b, c)
			continue
		}
		d := unhex(s[i+1])<<4 | unhex(s[i+2])
		if isUnreserved(d) {
			b = append(b, d)
		} else {
			b = append(b, '%', upperHex(s[i+1]), upperHex(s[i+2]))
		}
		i += 2
	}
	return string(b)
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case isDigit(c):
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func upperHex(c byte) byte {
	if c >= 'a' && c <= 'f' {
		return c - 'a' + 'A'
	}
	return c
}

// removeDotSegments implements RFC 3986 section 5.2.4.
func removeDotSegments(in string) string {
	if !strings.Contains(in, ".") {
		return in
	}
	out := make([]string, 0, strings.Count(in, "/"))
	for len(in) > 0 {
		switch {
		case strings.HasPrefix(in, "../"):
			in = in[3:]
		case strings.HasPrefix(in, "./"):
			in = in[2:]
		case strings.HasPrefix(in, "/./"):
			in = in[2:]
		case in == "/.":
			in = "/"
		case strings.HasPrefix(in, "/../"):
			in = in[3:]
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case in == "/..":
			in = "/"
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case in == "." || in == "..":
			in = ""
		default:
			start := 0
			if in[0] == '/' {
				start = 1
			}
			end := strings.IndexByte(in[start:], '/')
			if end < 0 {
				end = len(in)
			} else {
				end += start
			}
			out = append(out, in[:end])
			in = in[end:]
		}
	}
	return strings.Join(out, "")
}
