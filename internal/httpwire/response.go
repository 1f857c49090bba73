package httpwire

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Response is a serializable HTTP/1.1 response. Header keys preserve the
// case they were set with, since Serialize emits them verbatim.
type Response struct {
	StatusCode int
	Reason     string
	Headers    map[string]string
	Body       []byte
}

// NewResponse builds a response with the given status code and reason
// phrase and an empty header map.
func NewResponse(code int, reason string) *Response {
	return &Response{StatusCode: code, Reason: reason, Headers: make(map[string]string)}
}

func (r *Response) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
}

func (r *Response) header(key string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Serialize renders the wire form: status line, headers, blank line, body.
// Content-Length defaults to the body length and Connection defaults to
// "close" when not already set, per spec.
func (r *Response) Serialize() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.StatusCode, r.Reason)

	headers := make(map[string]string, len(r.Headers)+2)
	for k, v := range r.Headers {
		headers[k] = v
	}
	if _, ok := r.header("Content-Length"); !ok {
		headers["Content-Length"] = strconv.Itoa(len(r.Body))
	}
	if _, ok := r.header("Connection"); !ok {
		headers["Connection"] = "close"
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headers[k])
	}
	b.WriteString("\r\n")

	out := make([]byte, 0, b.Len()+len(r.Body))
	out = append(out, b.String()...)
	out = append(out, r.Body...)
	return out
}
