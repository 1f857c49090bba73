package httpwire

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/nabbar/staticd/internal/httpkind"
)

const (
	maxHeaderSize = 8 * 1024
	maxBodySize   = 10 * 1024 * 1024
	maxURILength  = 2048
)

// Parse attempts to extract one complete HTTP/1.1 request from the front of
// buf. It returns:
//
//   - ok=true, the request, and the number of bytes consumed from the front
//     of buf for a complete request. The caller must advance its read
//     buffer by exactly that many bytes.
//   - ok=false, nil error: not enough data yet (NeedMoreData). Call again
//     after appending more bytes.
//   - ok=false, non-nil *httpkind.Error: the request is malformed or
//     exceeds a size ceiling. The connection must be aborted.
//
// Parse never mutates buf and never retains it; the returned Request owns
// copies of everything it needs.
func Parse(buf []byte) (ok bool, req *Request, consumed int, err error) {
	if len(buf) == 0 {
		return false, nil, 0, nil
	}

	headerEnd := bytes.Index(buf, []byte("\r\n\r\n"))
	if headerEnd == -1 {
		if len(buf) > maxHeaderSize {
			return false, nil, 0, httpkind.New(httpkind.HeaderTooLarge, "header section too large")
		}
		return false, nil, 0, nil
	}
	if headerEnd+4 > maxHeaderSize {
		return false, nil, 0, httpkind.New(httpkind.HeaderTooLarge, "header section too large")
	}

	req = newRequest()
	cursor := 0

	lineEnd := bytes.Index(buf[cursor:], []byte("\r\n"))
	if lineEnd == -1 {
		return false, nil, 0, nil
	}
	lineEnd += cursor

	if err := parseRequestLine(buf[cursor:lineEnd], req); err != nil {
		return false, nil, 0, err
	}
	cursor = lineEnd + 2

	var currentHeader string
	for cursor < headerEnd {
		next := bytes.Index(buf[cursor:], []byte("\r\n"))
		if next == -1 || cursor+next > headerEnd {
			return false, nil, 0, nil
		}
		next += cursor

		line := buf[cursor:next]
		cursor = next + 2

		if len(line) == 0 {
			break
		}

		if line[0] == ' ' || line[0] == '\t' {
			if currentHeader != "" {
				req.Headers[currentHeader] += " " + strings.TrimSpace(string(line))
			}
			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			return false, nil, 0, httpkind.New(httpkind.MalformedHeaderLine, "malformed header line")
		}

		key := strings.ToLower(strings.TrimSpace(string(line[:colon])))
		value := strings.TrimSpace(string(line[colon+1:]))
		req.Headers[key] = value
		currentHeader = key
	}

	bodyOffset := headerEnd + 4
	contentLength := parseContentLength(req.Header("content-length"))
	if contentLength > maxBodySize {
		return false, nil, 0, httpkind.New(httpkind.BodyTooLarge, "request body too large")
	}

	if len(buf) < bodyOffset+contentLength {
		return false, nil, 0, nil
	}

	req.Body = append([]byte(nil), buf[bodyOffset:bodyOffset+contentLength]...)
	return true, req, bodyOffset + contentLength, nil
}

func parseRequestLine(line []byte, req *Request) error {
	firstSpace := bytes.IndexByte(line, ' ')
	if firstSpace == -1 {
		return httpkind.New(httpkind.MalformedRequestLine, "malformed request line")
	}
	rest := line[firstSpace+1:]
	secondSpaceRel := bytes.IndexByte(rest, ' ')
	if secondSpaceRel == -1 {
		return httpkind.New(httpkind.MalformedRequestLine, "malformed request line")
	}

	req.Method = string(line[:firstSpace])
	req.URI = string(rest[:secondSpaceRel])
	req.Version = string(rest[secondSpaceRel+1:])

	if len(req.URI) > maxURILength {
		return httpkind.New(httpkind.UriTooLong, "uri too long")
	}
	if req.Version != "HTTP/1.1" {
		return httpkind.New(httpkind.UnsupportedVersion, "unsupported http version")
	}
	return nil
}

// parseContentLength treats a missing, empty, or unparseable Content-Length
// as 0, per spec.
func parseContentLength(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
