package schema

import (
	"encoding/json"
	"io"
	"net/http"
)

// Writer helps writing unified API responses
type Writer struct {
	InternalErrorHook func(err error)
}

// WriteJSONCode writes the JSON representation of value to the given response writer using the given HTTP status code
func (writer *Writer) WriteJSONCode(rw http.ResponseWriter, code int, value interface{}) {
	val, _ := json.Marshal(value)
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(code)
	rw.Write(val)
}

// WriteJSON writes the JSON representation of value to the given response writer.
// This method sends 200 OK as the HTTP status code; use WriteJSONCode to use a different one.
func (writer *Writer) WriteJSON(rw http.ResponseWriter, value interface{}) {
	writer.WriteJSONCode(rw, http.StatusOK, value)
}

// WriteError sends an error response
func (writer *Writer) WriteError(rw http.ResponseWriter, code int, apiErr *Error) {
	writer.WriteJSONCode(rw, code, apiErr)
}

// WriteInternalError processes an internal server error and writes it to the response
func (writer *Writer) WriteInternalError(rw http.ResponseWriter, err error) {
	writer.InternalErrorHook(err)
	writer.WriteError(rw, http.StatusInternalServerError, ErrInternal)
}

// WriteText writes a raw text payload as HTML to the given response writer
func (writer *Writer) WriteText(rw http.ResponseWriter, code int, body string) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.WriteHeader(code)
	io.WriteString(rw, body)
}

// WriteBytes writes a binary payload with the given content type to the given response writer.
// Binary payloads are always volatile (CAPTCHA images), so caching is disabled.
func (writer *Writer) WriteBytes(rw http.ResponseWriter, code int, contentType string, payload []byte) {
	rw.Header().Set("Content-Type", contentType)
	rw.Header().Set("Cache-Control", "no-store")
	rw.WriteHeader(code)
	rw.Write(payload)
}
