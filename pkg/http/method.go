package http

// Method is a request method token.
type Method string

// Known methods.
const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodOptions Method = "OPTIONS"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodConnect Method = "CONNECT"
	MethodTrace   Method = "TRACE"
)

// Implemented reports whether the server processes requests with m.
func (m Method) Implemented() bool {
	switch m {
	case MethodGet, MethodHead, MethodPost, MethodOptions:
		return true
	}
	return false
}

// lookupMethod maps a request-line token to a known Method. Tokens are case-sensitive.
func lookupMethod(token string) (Method, bool) {
	switch m := Method(token); m {
	case MethodGet, MethodHead, MethodPost, MethodOptions,
		MethodPut, MethodDelete, MethodConnect, MethodTrace:
		return m, true
	}
	return "", false
}
