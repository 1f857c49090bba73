package reactor

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/staticd/internal/admission"
	"github.com/nabbar/staticd/internal/fileserve"
	"github.com/nabbar/staticd/internal/httpkind"
	"github.com/nabbar/staticd/internal/httpwire"
)

const (
	readBufferSize  = 8192
	maxRequestBytes = 10 * 1024 * 1024
	idleTimeout     = 60 * time.Second
	pollTimeoutMs   = 1000
)

// Logger is the subset of logging this package needs; satisfied by
// internal/logging.Logger.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type connState struct {
	fd              int
	clientIP        string
	readBuf         []byte
	writeBuf        []byte
	closeAfterDrain bool
	lastActive      time.Time
	writeArmed      bool
}

// Reactor runs a single-threaded, non-blocking accept/read/write loop over
// one listening socket, dispatching complete requests to a fileserve.Handler
// and admitting connections through an admission.Table.
type Reactor struct {
	poller   Poller
	listenFd int
	handler  *fileserve.Handler
	admit    *admission.Table
	log      Logger
	conns    map[int]*connState
}

// New wires a Reactor around an already-listening *net.TCPListener. The
// listener's file descriptor is duplicated, set non-blocking, and owned by
// the Reactor from this point; callers should not continue using ln after
// New succeeds.
func New(ln *net.TCPListener, handler *fileserve.Handler, admit *admission.Table, log Logger) (*Reactor, error) {
	f, err := ln.File()
	if err != nil {
		return nil, err
	}
	listenFd, err := unix.Dup(int(f.Fd()))
	f.Close()
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(listenFd, true); err != nil {
		return nil, err
	}

	poller, err := newPlatformPoller()
	if err != nil {
		return nil, err
	}
	if err := poller.Register(listenFd, EventRead); err != nil {
		poller.Close()
		return nil, err
	}

	return &Reactor{
		poller:   poller,
		listenFd: listenFd,
		handler:  handler,
		admit:    admit,
		log:      log,
		conns:    make(map[int]*connState),
	}, nil
}

// Run polls for readiness until stop is closed, dispatching accept/read/
// write events and sweeping idle connections once per iteration.
func (r *Reactor) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			r.closeAll()
			return r.poller.Close()
		default:
		}

		events, err := r.poller.Wait(pollTimeoutMs)
		if err != nil {
			return err
		}

		for _, ev := range events {
			if ev.Fd == r.listenFd {
				if ev.Events&EventRead != 0 {
					r.acceptLoop()
				}
				continue
			}

			conn, ok := r.conns[ev.Fd]
			if !ok {
				continue
			}
			if ev.Events&EventError != 0 {
				r.closeConn(ev.Fd)
				continue
			}
			if ev.Events&EventRead != 0 {
				r.handleReadable(conn)
			}
			if _, stillOpen := r.conns[ev.Fd]; stillOpen && ev.Events&EventWrite != 0 {
				r.handleWritable(conn)
			}
		}

		r.sweepIdle()
	}
}

// acceptLoop drains the listen backlog until accept would block.
func (r *Reactor) acceptLoop() {
	for {
		fd, sa, err := unix.Accept(r.listenFd)
		if err != nil {
			return
		}

		ip := peerIP(sa)
		if !r.admit.TryAcquire(ip) {
			resp := httpTooManyRequests()
			unix.Write(fd, resp)
			unix.Close(fd)
			continue
		}

		if err := unix.SetNonblock(fd, true); err != nil {
			r.admit.Release(ip)
			unix.Close(fd)
			continue
		}
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

		cs := &connState{fd: fd, clientIP: ip, lastActive: time.Now()}
		r.conns[fd] = cs
		if err := r.poller.Register(fd, EventRead); err != nil {
			r.admit.Release(ip)
			delete(r.conns, fd)
			unix.Close(fd)
		}
	}
}

// handleReadable drains the socket, feeds complete requests through the
// handler, and appends serialized responses to the connection's write
// buffer.
func (r *Reactor) handleReadable(conn *connState) {
	buf := make([]byte, readBufferSize)
	shouldClose := false

	for {
		n, err := unix.Read(conn.fd, buf)
		if n > 0 {
			conn.readBuf = append(conn.readBuf, buf[:n]...)
			conn.lastActive = time.Now()
			if len(conn.readBuf) > maxRequestBytes {
				resp := httpwire.ErrorResponse(httpkind.BodyTooLarge, "Request too large")
				resp.SetHeader("Connection", "close")
				conn.writeBuf = append(conn.writeBuf, resp.Serialize()...)
				conn.closeAfterDrain = true
				break
			}
			continue
		}
		if n == 0 {
			shouldClose = true
			break
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		if err == unix.EINTR {
			continue
		}
		shouldClose = true
		break
	}

	for len(conn.readBuf) > 0 && !conn.closeAfterDrain {
		ok, req, consumed, err := httpwire.Parse(conn.readBuf)
		if err != nil {
			kind := httpkind.InternalError
			if kerr, isKind := err.(*httpkind.Error); isKind {
				kind = kerr.Kind
			}
			resp := httpwire.ErrorResponse(kind, err.Error())
			resp.SetHeader("Connection", "close")
			conn.writeBuf = append(conn.writeBuf, resp.Serialize()...)
			conn.closeAfterDrain = true
			conn.readBuf = nil
			break
		}
		if !ok {
			break
		}

		resp := r.handler.Handle(req)
		if req.IsKeepAlive() {
			resp.SetHeader("Connection", "keep-alive")
		} else {
			resp.SetHeader("Connection", "close")
		}
		conn.writeBuf = append(conn.writeBuf, resp.Serialize()...)
		if r.log != nil {
			r.log.Infof("%s %s %d", req.Method, req.URI, resp.StatusCode)
		}
		conn.lastActive = time.Now()

		conn.readBuf = conn.readBuf[consumed:]
		if !req.IsKeepAlive() {
			conn.closeAfterDrain = true
		}
	}

	if len(conn.writeBuf) > 0 && !conn.writeArmed {
		if err := r.poller.Modify(conn.fd, EventRead|EventWrite); err == nil {
			conn.writeArmed = true
		}
	}
	if shouldClose && len(conn.writeBuf) == 0 {
		r.closeConn(conn.fd)
	}
}

// handleWritable drains the connection's write buffer, disarming write
// readiness once empty and closing the connection if it was marked
// close-after-drain.
func (r *Reactor) handleWritable(conn *connState) {
	for len(conn.writeBuf) > 0 {
		n, err := unix.Write(conn.fd, conn.writeBuf)
		if n > 0 {
			conn.writeBuf = conn.writeBuf[n:]
			conn.lastActive = time.Now()
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		r.closeConn(conn.fd)
		return
	}

	conn.writeArmed = false
	r.poller.Modify(conn.fd, EventRead)
	if conn.closeAfterDrain {
		r.closeConn(conn.fd)
	}
}

func (r *Reactor) sweepIdle() {
	now := time.Now()
	var stale []int
	for fd, conn := range r.conns {
		if now.Sub(conn.lastActive) >= idleTimeout {
			stale = append(stale, fd)
		}
	}
	for _, fd := range stale {
		r.closeConn(fd)
	}
}

func (r *Reactor) closeConn(fd int) {
	conn, ok := r.conns[fd]
	if !ok {
		return
	}
	r.admit.Release(conn.clientIP)
	r.poller.Unregister(fd)
	unix.Close(fd)
	delete(r.conns, fd)
}

func (r *Reactor) closeAll() {
	for fd := range r.conns {
		r.closeConn(fd)
	}
	unix.Close(r.listenFd)
}

func peerIP(sa unix.Sockaddr) string {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(addr.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(addr.Addr[:]).String()
	default:
		return ""
	}
}

func httpTooManyRequests() []byte {
	resp := httpwire.NewResponse(429, "Too Many Requests")
	resp.SetHeader("Connection", "close")
	resp.SetHeader("Content-Type", "text/html")
	resp.Body = []byte("<html><body><h1>429 Too Many Requests</h1></body></html>")
	return resp.Serialize()
}
