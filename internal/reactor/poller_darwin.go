//go:build darwin

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	fd int
}

// newPlatformPoller opens the kqueue instance backing this process's reactor.
func newPlatformPoller() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{fd: fd}, nil
}

// Register always arms EVFILT_READ (every connection is read-interested on
// entry) and arms EVFILT_WRITE too when the caller already has bytes queued.
func (p *kqueuePoller) Register(fd int, events IOEvent) error {
	changes := []unix.Kevent_t{{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE}}
	if events&EventWrite != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	}
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	return err
}

// Modify arms or disarms EVFILT_WRITE depending on whether events carries
// EventWrite; EVFILT_READ stays armed for the connection's lifetime.
func (p *kqueuePoller) Modify(fd int, events IOEvent) error {
	flags := uint16(unix.EV_DELETE)
	if events&EventWrite != 0 {
		flags = unix.EV_ADD | unix.EV_ENABLE
	}
	change := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags}
	if _, err := unix.Kevent(p.fd, []unix.Kevent_t{change}, nil, nil); err != nil && flags != unix.EV_DELETE {
		return err
	}
	return nil
}

func (p *kqueuePoller) Unregister(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	// Best effort: closing fd also drops kqueue's interest in it, so errors
	// here (typically ENOENT for a filter never armed) are not fatal.
	_, _ = unix.Kevent(p.fd, changes, nil, nil)
	return nil
}

func (p *kqueuePoller) Wait(timeoutMs int) ([]Event, error) {
	var buf [256]unix.Kevent_t
	ts := unix.NsecToTimespec(int64(timeoutMs) * int64(time.Millisecond))

	n, err := unix.Kevent(p.fd, nil, buf[:], &ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := buf[i]
		var ioev IOEvent
		switch ev.Filter {
		case unix.EVFILT_READ:
			ioev |= EventRead
		case unix.EVFILT_WRITE:
			ioev |= EventWrite
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			ioev |= EventError
		}
		if ev.Flags&unix.EV_EOF != 0 {
			ioev |= EventHangup
		}
		out = append(out, Event{Fd: int(ev.Ident), Events: ioev})
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.fd)
}
