// Package sock wraps net.Listener/net.Conn with the socket options the
// server needs: SO_REUSEADDR on the listener and SO_KEEPALIVE on each
// accepted connection, a deadline setter callers use for receive timeouts,
// plus raw file-descriptor access for the reactor's poller.
package sock

import (
	"context"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Listener is a TCP listener bound with SO_REUSEADDR set, matching the
// blocking-accept semantics used by pool mode.
type Listener struct {
	ln *net.TCPListener
}

// Listen binds port on all interfaces with SO_REUSEADDR set and backlog
// handled by the runtime network poller.
func Listen(port int) (*Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	raw, err := lc.Listen(context.Background(), "tcp", addrFor(port))
	if err != nil {
		return nil, err
	}
	return &Listener{ln: raw.(*net.TCPListener)}, nil
}

func addrFor(port int) string {
	return ":" + strconv.Itoa(port)
}

// Accept blocks until a new connection arrives and wraps it with keep-alive
// enabled. No deadline is set; callers arm one with SetDeadline.
func (l *Listener) Accept() (*Conn, error) {
	tc, err := l.ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	return newConn(tc)
}

// Close stops the listener. Pending Accept calls return an error.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// TCPListener exposes the underlying *net.TCPListener for reactor mode,
// which needs it to duplicate and own the raw file descriptor directly.
func (l *Listener) TCPListener() *net.TCPListener {
	return l.ln
}

// Conn wraps a single accepted connection with the options the server
// applies uniformly: keep-alive on, a bounded receive timeout re-armed by
// callers on every read/write cycle.
type Conn struct {
	tc *net.TCPConn
}

func newConn(tc *net.TCPConn) (*Conn, error) {
	if err := tc.SetKeepAlive(true); err != nil {
		return nil, err
	}
	return &Conn{tc: tc}, nil
}

// SetDeadline arms the read/write deadline used by pool mode's blocking
// recv/send cycle.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.tc.SetDeadline(t)
}

// Read/Write satisfy io.ReadWriter so Conn can be used directly by the
// parser and response writer.
func (c *Conn) Read(p []byte) (int, error)  { return c.tc.Read(p) }
func (c *Conn) Write(p []byte) (int, error) { return c.tc.Write(p) }

// Close shuts down and releases the connection.
func (c *Conn) Close() error {
	return c.tc.Close()
}

// RemoteIP returns the peer's address without its port, used as the key for
// per-IP admission control.
func (c *Conn) RemoteIP() string {
	addr, ok := c.tc.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}

// RawFD returns the connection's underlying file descriptor for
// registration with the reactor's poller. SetNonBlock should be set on the
// returned fd by the caller before registering it for readiness events, as
// Go's runtime poller and an external epoll/kqueue loop must not both own
// the same fd's blocking mode expectations.
func (c *Conn) RawFD() (int, error) {
	f, err := c.tc.File()
	if err != nil {
		return -1, err
	}
	return int(f.Fd()), nil
}
