package tokenizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shapestone/shape-core/pkg/tokenizer"
)

// ErrUnterminated is returned when the input holds characters no matcher accepts,
// which only happens for an unterminated quoted-string.
var ErrUnterminated = errors.New("unterminated quoted-string")

// Param is one name=value pair. Names are lower-cased; quoted values are unquoted.
type Param struct {
	Name  string
	Value string
}

// NewTokenizer creates a tokenizer for parameterized field values.
// Whitespace is significant (it may sit inside unquoted values), so the
// tokenizer emits OWS tokens instead of skipping them.
func NewTokenizer() tokenizer.Tokenizer {
	return tokenizer.NewTokenizerWithoutWhitespace(
		tokenizer.StringMatcherFunc(TokenSemicolon, ";"),
		tokenizer.StringMatcherFunc(TokenEquals, "="),
		OWSMatcher(),
		QuotedMatcher(),
		TextMatcher(),
	)
}

// OWSMatcher matches a run of SP and HTAB.
func OWSMatcher() tokenizer.Matcher {
	return func(stream tokenizer.Stream) *tokenizer.Token {
		var value []rune
		for {
			r, ok := stream.PeekChar()
			if !ok || (r != ' ' && r != '\t') {
				break
			}
			stream.NextChar()
			value = append(value, r)
		}
		if len(value) == 0 {
			return nil
		}
		return tokenizer.NewToken(TokenOWS, value)
	}
}

// QuotedMatcher matches a quoted-string with backslash escapes.
// It does not match an unterminated string.
func QuotedMatcher() tokenizer.Matcher {
	return func(stream tokenizer.Stream) *tokenizer.Token {
		r, ok := stream.PeekChar()
		if !ok || r != '"' {
			return nil
		}
		stream.NextChar()
		value := []rune{'"'}
		escaped := false
		for {
			r, ok := stream.PeekChar()
			if !ok {
				return nil
			}
			stream.NextChar()
			value = append(value, r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				return tokenizer.NewToken(TokenQuoted, value)
			}
		}
	}
}

// TextMatcher matches any run of characters up to a delimiter, whitespace or quote.
func TextMatcher() tokenizer.Matcher {
	return func(stream tokenizer.Stream) *tokenizer.Token {
		var value []rune
		for {
			r, ok := stream.PeekChar()
			if !ok {
				break
			}
			if r == ';' || r == '=' || r == '"' || r == ' ' || r == '\t' {
				break
			}
			stream.NextChar()
			value = append(value, r)
		}
		if len(value) == 0 {
			return nil
		}
		return tokenizer.NewToken(TokenText, value)
	}
}

// ParseParams splits s into its leading value and its parameters.
//
// The leading value is everything before the first ';' with surrounding
// whitespace removed. Each following segment must be name=value; empty
// segments (a trailing ';') are skipped.
func ParseParams(s string) (string, []Param, error) {
	tok := NewTokenizer()
	tok.Initialize(s)
	tokens, eos := tok.Tokenize()
	if !eos {
		return "", nil, ErrUnterminated
	}

	segments := [][]tokenizer.Token{nil}
	for _, t := range tokens {
		if t.Kind() == TokenSemicolon {
			segments = append(segments, nil)
			continue
		}
		last := len(segments) - 1
		segments[last] = append(segments[last], t)
	}

	var head strings.Builder
	for _, t := range segments[0] {
		if t.Kind() == TokenQuoted {
			return "", nil, fmt.Errorf("unexpected quoted-string %s", t.ValueString())
		}
		head.WriteString(t.ValueString())
	}

	var params []Param
	for _, seg := range segments[1:] {
		seg = trimOWS(seg)
		if len(seg) == 0 {
			continue
		}
		p, err := parseParam(seg)
		if err != nil {
			return "", nil, err
		}
		params = append(params, p)
	}
	return strings.TrimSpace(head.String()), params, nil
}

func parseParam(seg []tokenizer.Token) (Param, error) {
	eq := -1
	for i, t := range seg {
		if t.Kind() == TokenEquals {
			if eq >= 0 {
				return Param{}, fmt.Errorf("parameter %q has more than one '='", joinTokens(seg))
			}
			eq = i
		}
	}
	if eq < 0 {
		return Param{}, fmt.Errorf("parameter %q has no value", joinTokens(seg))
	}
	name := strings.TrimSpace(joinTokens(seg[:eq]))
	if name == "" {
		return Param{}, fmt.Errorf("parameter %q has no name", joinTokens(seg))
	}
	valueTokens := trimOWS(seg[eq+1:])
	var value string
	if len(valueTokens) == 1 && valueTokens[0].Kind() == TokenQuoted {
		value = unquote(valueTokens[0].ValueString())
	} else {
		for _, t := range valueTokens {
			if t.Kind() == TokenQuoted {
				return Param{}, fmt.Errorf("parameter %q mixes quoted and unquoted text", name)
			}
		}
		value = joinTokens(valueTokens)
	}
	return Param{Name: strings.ToLower(name), Value: value}, nil
}

func trimOWS(seg []tokenizer.Token) []tokenizer.Token {
	for len(seg) > 0 && seg[0].Kind() == TokenOWS {
		seg = seg[1:]
	}
	for len(seg) > 0 && seg[len(seg)-1].Kind() == TokenOWS {
		seg = seg[:len(seg)-1]
	}
	return seg
}

func joinTokens(seg []tokenizer.Token) string {
	var b strings.Builder
	for _, t := range seg {
		b.WriteString(t.ValueString())
	}
	return b.String()
}

// unquote strips the surrounding quotes and resolves quoted-pairs.
func unquote(q string) string {
	q = q[1 : len(q)-1]
	if !strings.Contains(q, `\`) {
		return q
	}
	var b strings.Builder
	escaped := false
	for _, r := range q {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}
