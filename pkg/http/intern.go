package http

import "strings"

// commonKeys maps the usual spellings of frequent field names to their
// lower-case key. A map lookup with a string key does not allocate, so
// fieldKey costs nothing for these names.
var commonKeys = func() map[string]string {
	names := []string{
		"Accept", "Accept-Charset", "Accept-Encoding", "Accept-Language",
		"Authorization", "Cache-Control", "Connection", "Content-Disposition",
		"Content-Encoding", "Content-Language", "Content-Length",
		"Content-Transfer-Encoding", "Content-Type", "Cookie", "Date", "Expect",
		"Host", "If-Modified-Since", "If-None-Match", "Origin", "Pragma",
		"Range", "Referer", "TE", "Trailer", "Transfer-Encoding", "Upgrade",
		"User-Agent", "Via", "X-Forwarded-For", "X-Forwarded-Host",
		"X-Forwarded-Proto", "X-Request-ID", "X-Real-IP",
	}
	m := make(map[string]string, 2*len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		m[n] = key
		m[strings.ToUpper(n)] = key
	}
	return m
}()

// fieldKey returns the lower-case key for a field name.
func fieldKey(name string) string {
	if key, ok := commonKeys[name]; ok {
		return key
	}
	return strings.ToLower(name)
}
