package client

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

var errPollUnsupported = errors.New("connection has no file descriptor to poll")

// fdPoller answers whether a read on a socket would return without blocking.
type fdPoller struct {
	raw syscall.RawConn
}

func newFDPoller(conn net.Conn) (*fdPoller, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, errPollUnsupported
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}

	return &fdPoller{raw: raw}, nil
}

// Readable polls the descriptor with a zero timeout. A hung up or failed
// socket counts as readable, the read that follows reports the error.
func (p *fdPoller) Readable() (bool, error) {
	var (
		ready   bool
		pollErr error
	)

	err := p.raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

		for {
			n, err := unix.Poll(fds, 0)
			if err == unix.EINTR {
				continue
			}

			pollErr = err
			ready = n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
			return
		}
	})
	if err != nil {
		return false, err
	}

	return ready, pollErr
}
