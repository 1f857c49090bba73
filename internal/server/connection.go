package server

import (
	"time"

	"github.com/nabbar/staticd/internal/httpkind"
	"github.com/nabbar/staticd/internal/httpwire"
	"github.com/nabbar/staticd/internal/sock"
)

const (
	recvTimeout     = time.Second
	idleConnTimeout = 60 * time.Second
	maxRequestBytes = 10 * 1024 * 1024
	readChunkSize   = 8192
)

// handleConnection runs the blocking read/parse/respond loop for one
// pool-mode connection: admission-gated, re-armed on a short receive
// deadline so idle connections can be aged out without blocking a worker
// forever.
func (s *Server) handleConnection(conn *sock.Conn) {
	defer conn.Close()

	ip := conn.RemoteIP()
	if !s.admit.TryAcquire(ip) {
		resp := httpwire.ErrorResponse(httpkind.TooManyRequests, "")
		conn.Write(resp.Serialize())
		return
	}
	defer s.admit.Release(ip)

	var requestBuf []byte
	lastActive := time.Now()

	for s.running.Load() {
		for len(requestBuf) > 0 {
			ok, req, consumed, err := httpwire.Parse(requestBuf)
			if err != nil {
				kind := httpkind.InternalError
				if kerr, isKind := err.(*httpkind.Error); isKind {
					kind = kerr.Kind
				}
				resp := httpwire.ErrorResponse(kind, err.Error())
				resp.SetHeader("Connection", "close")
				conn.Write(resp.Serialize())
				return
			}
			if !ok {
				break
			}

			resp := s.handler.Handle(req)
			if req.IsKeepAlive() {
				resp.SetHeader("Connection", "keep-alive")
			} else {
				resp.SetHeader("Connection", "close")
			}

			if _, err := conn.Write(resp.Serialize()); err != nil {
				return
			}
			s.logf("%s %s %d", req.Method, req.URI, resp.StatusCode)
			lastActive = time.Now()

			if consumed > len(requestBuf) {
				return
			}
			requestBuf = requestBuf[consumed:]

			if !req.IsKeepAlive() {
				return
			}
		}

		if len(requestBuf) > maxRequestBytes {
			resp := httpwire.ErrorResponse(httpkind.BodyTooLarge, "Request too large")
			resp.SetHeader("Connection", "close")
			conn.Write(resp.Serialize())
			return
		}

		conn.SetDeadline(time.Now().Add(recvTimeout))
		chunk := make([]byte, readChunkSize)
		n, err := conn.Read(chunk)
		if n == 0 && err != nil {
			if isTimeout(err) {
				if time.Since(lastActive) >= idleConnTimeout {
					return
				}
				continue
			}
			return
		}
		if n == 0 {
			return
		}
		requestBuf = append(requestBuf, chunk[:n]...)
		lastActive = time.Now()
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}
