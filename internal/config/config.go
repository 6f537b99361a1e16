// Package config loads the server configuration.
//
// Configuration is read from a YAML file on top of built-in defaults, then
// SHAPE_HTTPS_* environment variables override the network identity:
//
//	SHAPE_HTTPS_ADDR         listen address
//	SHAPE_HTTPS_CERT_FILE    certificate chain (PEM)
//	SHAPE_HTTPS_KEY_FILE     private key (PEM)
//	SHAPE_HTTPS_SERVER_NAME  host name the server answers for
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shapestone/shape-https/pkg/http"
	"github.com/shapestone/shape-https/pkg/http/multipart"
)

// Config is the complete server configuration.
type Config struct {
	Network   Network   `yaml:"network"`
	HTTP1     HTTP1     `yaml:"http1"`
	Chunked   Chunked   `yaml:"chunked"`
	Multipart Multipart `yaml:"multipart"`
	Site      Site      `yaml:"site"`
}

// Network configures the TLS listener.
type Network struct {
	Addr       string   `yaml:"addr"`
	Port       int      `yaml:"port"`
	ServerName string   `yaml:"server_name"`
	Aliases    []string `yaml:"aliases"`
	CertFile   string   `yaml:"cert_file"`
	KeyFile    string   `yaml:"key_file"`
	// ReadTimeout bounds the wait for each request.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds writing each response.
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxConnections int           `yaml:"max_connections"`
}

// HTTP1 bounds request messages.
type HTTP1 struct {
	MaxRequestLine   int   `yaml:"max_request_line"`
	MaxFieldLine     int   `yaml:"max_field_line"`
	MaxHeaderSection int   `yaml:"max_header_section"`
	MaxContentLength int64 `yaml:"max_content_length"`
	// TransferCodings lists optional codings to accept on top of the
	// defaults. Only "br" is known.
	TransferCodings []string `yaml:"transfer_codings"`
	// RecordHead keeps the raw request head for debug logs.
	RecordHead bool `yaml:"record_head"`
}

// Chunked bounds chunked and compressed request content.
type Chunked struct {
	MemoryThreshold   int64  `yaml:"memory_threshold"`
	MaxSize           int64  `yaml:"max_size"`
	MaxChunkLine      int    `yaml:"max_chunk_line"`
	MaxChunkSize      int64  `yaml:"max_chunk_size"`
	MaxTrailerLine    int    `yaml:"max_trailer_line"`
	MaxTrailerSection int    `yaml:"max_trailer_section"`
	TempDir           string `yaml:"temp_dir"`
}

// Multipart bounds multipart/form-data uploads.
type Multipart struct {
	MaxFieldLine     int    `yaml:"max_field_line"`
	MaxHeaderSection int    `yaml:"max_header_section"`
	MemoryThreshold  int64  `yaml:"memory_threshold"`
	MaxTempFileSize  int64  `yaml:"max_temp_file_size"`
	TempDir          string `yaml:"temp_dir"`
}

// Site configures the sample resources.
type Site struct {
	// Root is the directory served for GET requests.
	Root string `yaml:"root"`
	// Gone lists paths answered with 410.
	Gone []string `yaml:"gone"`
	// UploadPath accepts multipart/form-data POSTs.
	UploadPath string `yaml:"upload_path"`
}

// optionalCodings are the codings that may be enabled by name.
var optionalCodings = []string{"br"}

// Default returns the built-in configuration.
func Default() *Config {
	hc := http.DefaultConfig()
	mc := multipart.DefaultConfig()
	return &Config{
		Network: Network{
			Addr:           ":8443",
			Port:           443,
			ServerName:     hc.ServerName,
			CertFile:       "cert.pem",
			KeyFile:        "key.pem",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxConnections: 1024,
		},
		HTTP1: HTTP1{
			MaxRequestLine:   hc.MaxRequestLine,
			MaxFieldLine:     hc.MaxFieldLine,
			MaxHeaderSection: hc.MaxHeaderSection,
			MaxContentLength: hc.MaxContentLength,
		},
		Chunked: Chunked{
			MemoryThreshold:   hc.Chunked.MemoryThreshold,
			MaxSize:           hc.Chunked.MaxSize,
			MaxChunkLine:      hc.Chunked.MaxChunkLine,
			MaxChunkSize:      hc.Chunked.MaxChunkSize,
			MaxTrailerLine:    hc.Chunked.MaxTrailerFieldLine,
			MaxTrailerSection: hc.Chunked.MaxTrailerSection,
		},
		Multipart: Multipart{
			MaxFieldLine:     mc.MaxFieldLine,
			MaxHeaderSection: mc.MaxHeaderSection,
			MemoryThreshold:  mc.MemoryThreshold,
			MaxTempFileSize:  mc.MaxTempFileSize,
		},
		Site: Site{
			Root:       "public",
			UploadPath: "/upload",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cfg.Parse(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg. Keys absent from data keep their values.
func (c *Config) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("SHAPE_HTTPS_ADDR"); ok {
		c.Network.Addr = v
	}
	if v, ok := lookup("SHAPE_HTTPS_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: SHAPE_HTTPS_PORT: %w", err)
		}
		c.Network.Port = port
	}
	if v, ok := lookup("SHAPE_HTTPS_CERT_FILE"); ok {
		c.Network.CertFile = v
	}
	if v, ok := lookup("SHAPE_HTTPS_KEY_FILE"); ok {
		c.Network.KeyFile = v
	}
	if v, ok := lookup("SHAPE_HTTPS_SERVER_NAME"); ok {
		c.Network.ServerName = v
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if c.Network.Addr == "" {
		errs = append(errs, errors.New("network.addr is required"))
	}
	if c.Network.ServerName == "" {
		errs = append(errs, errors.New("network.server_name is required"))
	}
	if c.Network.Port <= 0 || c.Network.Port > 65535 {
		errs = append(errs, fmt.Errorf("network.port out of range: %d", c.Network.Port))
	}
	positive("network.read_timeout", int64(c.Network.ReadTimeout))
	positive("network.write_timeout", int64(c.Network.WriteTimeout))
	positive("network.max_connections", int64(c.Network.MaxConnections))

	positive("http1.max_request_line", int64(c.HTTP1.MaxRequestLine))
	positive("http1.max_field_line", int64(c.HTTP1.MaxFieldLine))
	positive("http1.max_header_section", int64(c.HTTP1.MaxHeaderSection))
	positive("http1.max_content_length", c.HTTP1.MaxContentLength)
	for _, coding := range c.HTTP1.TransferCodings {
		if !slices.Contains(optionalCodings, coding) {
			errs = append(errs, fmt.Errorf("http1.transfer_codings: unsupported coding %q", coding))
		}
	}

	positive("chunked.memory_threshold", c.Chunked.MemoryThreshold)
	positive("chunked.max_size", c.Chunked.MaxSize)
	positive("chunked.max_chunk_line", int64(c.Chunked.MaxChunkLine))
	positive("chunked.max_chunk_size", c.Chunked.MaxChunkSize)
	positive("chunked.max_trailer_line", int64(c.Chunked.MaxTrailerLine))
	positive("chunked.max_trailer_section", int64(c.Chunked.MaxTrailerSection))

	positive("multipart.max_field_line", int64(c.Multipart.MaxFieldLine))
	positive("multipart.max_header_section", int64(c.Multipart.MaxHeaderSection))
	positive("multipart.memory_threshold", c.Multipart.MemoryThreshold)
	positive("multipart.max_temp_file_size", c.Multipart.MaxTempFileSize)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// HTTP returns the protocol configuration, including a decoder registry with
// any optional codings enabled.
func (c *Config) HTTP() *http.Config {
	hc := http.DefaultConfig()
	hc.MaxRequestLine = c.HTTP1.MaxRequestLine
	hc.MaxFieldLine = c.HTTP1.MaxFieldLine
	hc.MaxHeaderSection = c.HTTP1.MaxHeaderSection
	hc.MaxContentLength = c.HTTP1.MaxContentLength
	hc.ServerName = c.Network.ServerName
	hc.Aliases = slices.Clone(c.Network.Aliases)
	hc.Port = c.Network.Port
	hc.RecordHead = c.HTTP1.RecordHead
	hc.Chunked = http.ChunkedConfig{
		MemoryThreshold:     c.Chunked.MemoryThreshold,
		MaxSize:             c.Chunked.MaxSize,
		MaxChunkLine:        c.Chunked.MaxChunkLine,
		MaxChunkSize:        c.Chunked.MaxChunkSize,
		MaxTrailerFieldLine: c.Chunked.MaxTrailerLine,
		MaxTrailerSection:   c.Chunked.MaxTrailerSection,
		TempDir:             c.Chunked.TempDir,
	}

	reg := http.DefaultDecoders(hc.Chunked, hc.MaxContentLength)
	for _, coding := range c.HTTP1.TransferCodings {
		switch coding {
		case "br":
			reg.Register(http.NewCompressDecoder("br", http.Brotli, hc.Chunked, hc.MaxContentLength))
		}
	}
	hc.Decoders = reg
	return hc
}

// MultipartConfig returns the limits for upload parsing.
func (c *Config) MultipartConfig() multipart.Config {
	return multipart.Config{
		MaxFieldLine:     c.Multipart.MaxFieldLine,
		MaxHeaderSection: c.Multipart.MaxHeaderSection,
		MemoryThreshold:  c.Multipart.MemoryThreshold,
		MaxTempFileSize:  c.Multipart.MaxTempFileSize,
		TempDir:          c.Multipart.TempDir,
	}
}
