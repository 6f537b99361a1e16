package http

import (
	"io"
	"strconv"
	"strings"
)

// bodyFraming describes where the content of a request comes from.
type bodyFraming struct {
	content io.Reader
	length  int64
	trailer *Fields
}

// determineBody applies the message body length rules of RFC 9112 section 6.3
// to a request header section.
func (p *Parser) determineBody(header *Fields) (bodyFraming, error) {
	te, hasTE := header.Get("transfer-encoding")
	cl, hasCL := header.Get("content-length")

	switch {
	case hasTE && hasCL:
		return bodyFraming{}, badRequest("both transfer-encoding and content-length present")
	case hasTE:
		return p.decodeTransferCodings(te)
	case hasCL:
		n, err := parseContentLength(cl)
		if err != nil {
			return bodyFraming{}, err
		}
		if n > p.cfg.MaxContentLength {
			return bodyFraming{}, errorf(KindContentTooLarge, "content length %d exceeds limit %d", n, p.cfg.MaxContentLength)
		}
		if n == 0 {
			return bodyFraming{}, nil
		}
		return bodyFraming{content: io.LimitReader(p.r, n), length: n}, nil
	default:
		return bodyFraming{}, nil
	}
}

func (p *Parser) decodeTransferCodings(te string) (bodyFraming, error) {
	codings := FieldValueMembers(te)
	for i := range codings {
		// Drop transfer-parameters; none of the supported codings take any.
		name, _, _ := strings.Cut(codings[i], ";")
		codings[i] = strings.ToLower(strings.TrimRight(name, " \t"))
	}
	chain, err := p.decoders.Chain(codings)
	if err != nil {
		return bodyFraming{}, err
	}
	out, err := chain.Decode(p.r)
	if err != nil {
		return bodyFraming{}, err
	}
	if out.Length > p.cfg.MaxContentLength {
		out.Body.Close()
		return bodyFraming{}, errorf(KindContentTooLarge, "content length %d exceeds limit %d", out.Length, p.cfg.MaxContentLength)
	}
	return bodyFraming{content: out.Body, length: out.Length, trailer: out.Trailer}, nil
}

// parseContentLength accepts a single non-negative decimal integer, or a list
// of identical ones.
func parseContentLength(v string) (int64, error) {
	if n, ok := parseDecimal(v); ok {
		return n, nil
	}
	members := FieldValueMembers(v)
	if len(members) == 0 {
		return 0, badRequest("invalid content-length %q", v)
	}
	first, ok := parseDecimal(members[0])
	if !ok {
		return 0, badRequest("invalid content-length %q", v)
	}
	for _, m := range members[1:] {
		n, ok := parseDecimal(m)
		if !ok || n != first {
			return 0, badRequest("invalid content-length %q", v)
		}
	}
	return first, nil
}

// parseDecimal parses 1*DIGIT into a non-negative int64.
func parseDecimal(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
