package http

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shapestone/shape-https/internal/tokenizer"
)

// MIMEType is a media type with its parameters. Type, subtype and parameter
// names are lower-case.
type MIMEType struct {
	Type    string
	Subtype string
	Params  map[string]string
}

// Well-known media types.
var (
	TextPlain      = MIMEType{Type: "text", Subtype: "plain"}
	MultipartMixed = MIMEType{Type: "multipart", Subtype: "mixed"}
	MultipartForm  = MIMEType{Type: "multipart", Subtype: "form-data"}
)

// ParseMIMEType parses a Content-Type style value such as
// "text/html; charset=utf-8".
func ParseMIMEType(s string) (MIMEType, error) {
	head, params, err := tokenizer.ParseParams(s)
	if err != nil {
		return MIMEType{}, fmt.Errorf("http: invalid media type %q: %w", s, err)
	}
	typ, sub, ok := strings.Cut(head, "/")
	if !ok || typ == "" || sub == "" {
		return MIMEType{}, fmt.Errorf("http: invalid media type %q", s)
	}
	m := MIMEType{Type: strings.ToLower(typ), Subtype: strings.ToLower(sub)}
	if len(params) > 0 {
		m.Params = make(map[string]string, len(params))
		for _, p := range params {
			m.Params[p.Name] = p.Value
		}
	}
	return m, nil
}

// Param returns the named parameter.
func (m MIMEType) Param(name string) (string, bool) {
	v, ok := m.Params[strings.ToLower(name)]
	return v, ok
}

// Equal reports whether m and o have the same type, subtype and parameters.
func (m MIMEType) Equal(o MIMEType) bool {
	return m.IsSameAs(o) && maps.Equal(m.Params, o.Params)
}

// IsSameAs reports whether m and o have the same type and subtype, ignoring parameters.
func (m MIMEType) IsSameAs(o MIMEType) bool {
	return m.Type == o.Type && m.Subtype == o.Subtype
}

// String returns the value in field form with parameters in sorted order.
func (m MIMEType) String() string {
	var b strings.Builder
	b.WriteString(m.Type)
	b.WriteByte('/')
	b.WriteString(m.Subtype)
	for _, k := range slices.Sorted(maps.Keys(m.Params)) {
		b.WriteString("; ")
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m.Params[k])
	}
	return b.String()
}
