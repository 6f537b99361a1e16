package http

import (
	"strconv"
	"sync"
)

var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 1024)
		return &b
	},
}

// appendCRLF appends \r\n to buf.
func appendCRLF(buf []byte) []byte {
	return append(buf, '\r', '\n')
}

// appendStatusLine appends "VERSION SP STATUS\r\n" to buf. No reason phrase is sent.
func appendStatusLine(buf []byte, version ProtocolVersion, statusCode int) []byte {
	buf = version.appendTo(buf)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(statusCode), 10)
	return appendCRLF(buf)
}

// appendField appends "name: value\r\n" to buf.
func appendField(buf []byte, name, value string) []byte {
	buf = append(buf, name...)
	buf = append(buf, ':', ' ')
	buf = append(buf, value...)
	return appendCRLF(buf)
}

// appendFields appends every field of f in section order.
func appendFields(buf []byte, f *Fields) []byte {
	for _, fl := range f.list {
		buf = appendField(buf, fl.Name, fl.Value)
	}
	return buf
}

// appendChunkHeader appends "HEX\r\n" to buf.
func appendChunkHeader(buf []byte, size int) []byte {
	buf = strconv.AppendInt(buf, int64(size), 16)
	return appendCRLF(buf)
}
