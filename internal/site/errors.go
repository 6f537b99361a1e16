package site

import (
	"fmt"
	"strconv"

	"github.com/shapestone/shape-https/pkg/http"
)

// ErrorHandlers returns handlers for every error kind that answer with a
// short text/plain body. Client errors include their message.
func ErrorHandlers() *http.ErrorHandlers {
	h := http.NewErrorHandlers()
	for _, k := range http.Kinds {
		h.Register(k, TextError)
	}
	return h
}

// TextError fills resp with a text/plain description of err.
func TextError(err *http.Error, resp *http.Response) {
	body := fmt.Sprintf("%d %s", err.Kind.Status(), err.Kind)
	if err.Kind.IsClientError() && err.Message != "" {
		body += ": " + err.Message
	}
	body += "\n"

	resp.Header.Set("content-type", "text/plain; charset=utf-8")
	resp.Header.Set("content-length", strconv.Itoa(len(body)))
	if err.CloseConnection {
		resp.Header.Set("connection", "close")
	}
	resp.SetBody([]byte(body))
}
