package http

import "strings"

// Config holds the limits and identity of an origin server. A Config must
// not be modified once a Parser or Processor uses it.
type Config struct {
	// MaxRequestLine bounds the request line, excluding CRLF.
	MaxRequestLine int
	// MaxFieldLine bounds each header field line, excluding CRLF.
	MaxFieldLine int
	// MaxHeaderSection bounds the header section including line endings.
	MaxHeaderSection int
	// MaxContentLength bounds the (decoded) content length.
	MaxContentLength int64

	// ServerName and Aliases are the host names this server answers for on Port.
	ServerName string
	Aliases    []string
	Port       int

	Chunked ChunkedConfig

	// Decoders maps transfer-coding names to decoders. Nil uses DefaultDecoders.
	Decoders *DecoderRegistry

	// ErrorBodyGenerator writes the content of error responses. Nil uses
	// IdentityBodyGenerator.
	ErrorBodyGenerator BodyGenerator

	// RecordHead keeps the raw request line and header section on each Request.
	RecordHead bool
}

// DefaultConfig returns a Config with conservative limits for localhost:443.
func DefaultConfig() *Config {
	return &Config{
		MaxRequestLine:   8 << 10,
		MaxFieldLine:     8 << 10,
		MaxHeaderSection: 64 << 10,
		MaxContentLength: 16 << 20,
		ServerName:       "localhost",
		Port:             443,
		Chunked:          DefaultChunkedConfig(),
	}
}

// servesHost reports whether host names this server.
func (c *Config) servesHost(host string) bool {
	if strings.EqualFold(host, c.ServerName) {
		return true
	}
	for _, a := range c.Aliases {
		if strings.EqualFold(host, a) {
			return true
		}
	}
	return false
}

func (c *Config) decoders() *DecoderRegistry {
	if c.Decoders != nil {
		return c.Decoders
	}
	return DefaultDecoders(c.Chunked, c.MaxContentLength)
}

func (c *Config) errorBodyGenerator() BodyGenerator {
	if c.ErrorBodyGenerator != nil {
		return c.ErrorBodyGenerator
	}
	return IdentityBodyGenerator{}
}
