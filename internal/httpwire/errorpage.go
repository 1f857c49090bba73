package httpwire

import (
	"fmt"

	"github.com/nabbar/staticd/internal/httpkind"
)

// ErrorResponse builds the minimal HTML error response for the given error
// kind, matching the bodies the original handler emits (status, optional
// explanation). Connection is forced to "close" per spec: any error that
// aborts parsing or admission ends the connection.
func ErrorResponse(kind httpkind.Kind, detail string) *Response {
	code := kind.StatusCode()
	reason := kind.Reason()

	body := fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", code, reason)
	if detail != "" {
		body = fmt.Sprintf("<html><body><h1>%d %s</h1><p>%s</p></body></html>", code, reason, detail)
	}

	resp := NewResponse(code, reason)
	resp.SetHeader("Content-Type", "text/html")
	resp.SetHeader("Connection", "close")
	resp.Body = []byte(body)
	return resp
}
