package main

import (
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// errWouldBlock means a non-blocking socket has nothing more for us right
// now.
var errWouldBlock = fmt.Errorf("operation would block")

// Conn is a non-blocking connection to a client.
//
// Read and Write return errWouldBlock rather than waiting. Read returns io.EOF
// when the peer closed the connection.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	Fd() int
}

// fdConn is a Conn on a raw socket descriptor.
type fdConn struct {
	fd int
}

func (c *fdConn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, p)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return 0, errWouldBlock
			}
			return 0, errors.Wrap(err, "error reading")
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write sends without raising SIGPIPE if the peer is gone.
func (c *fdConn) Write(p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(c.fd, p, nil, nil, unix.MSG_NOSIGNAL)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return 0, errWouldBlock
			}
			return n, errors.Wrap(err, "error writing")
		}
		return n, nil
	}
}

func (c *fdConn) Close() error {
	return unix.Close(c.fd)
}

func (c *fdConn) Fd() int {
	return c.fd
}

// listen opens a non-blocking IPv4 listening socket.
func listen(host string, port, backlog int) (int, error) {
	ip := net.ParseIP(host)
	if host == "" {
		ip = net.IPv4zero
	}
	if ip == nil || ip.To4() == nil {
		return -1, fmt.Errorf("invalid listen host: %s", host)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, errors.Wrap(err, "error creating socket")
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR,
		1); err != nil {
		_ = unix.Close(fd)
		return -1, errors.Wrap(err, "error setting SO_REUSEADDR")
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip.To4())

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, errors.Wrap(err, "error binding")
	}

	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, errors.Wrap(err, "error listening")
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, errors.Wrap(err, "error setting non-blocking")
	}

	return fd, nil
}

func setNonblock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return errors.Wrap(err, "error setting non-blocking")
	}
	return nil
}

func closeFD(fd int) error {
	return unix.Close(fd)
}

// listenerPort reports the port a listening socket is bound to.
func listenerPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, errors.Wrap(err, "error getting socket name")
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, fmt.Errorf("unexpected socket address type %T", sa)
	}
	return sa4.Port, nil
}

// accept takes one pending connection off the listener. The new socket is
// already non-blocking.
func accept(listenFD int) (*fdConn, string, error) {
	for {
		fd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK ||
				err == unix.ECONNABORTED {
				return nil, "", errWouldBlock
			}
			return nil, "", errors.Wrap(err, "error accepting")
		}

		host := "unknown"
		switch addr := sa.(type) {
		case *unix.SockaddrInet4:
			host = net.IP(addr.Addr[:]).String()
		case *unix.SockaddrInet6:
			host = net.IP(addr.Addr[:]).String()
		}

		return &fdConn{fd: fd}, host, nil
	}
}

// errorToQuitMessage converts an error to a message suitable for a QUIT
// message.
func errorToQuitMessage(err error) string {
	if err == nil {
		return "I/O error"
	}

	if err == io.EOF || errors.Cause(err) == io.EOF {
		return "Remote host closed the connection"
	}

	if errors.Cause(err) == errLineTooLong {
		return errLineTooLong.Error()
	}

	s := err.Error()

	if strings.HasSuffix(s, "connection reset by peer") {
		return "Connection reset by peer"
	}

	if strings.HasSuffix(s, "broken pipe") {
		return "Broken pipe"
	}

	if len(s) == 0 {
		return "I/O error"
	}

	return s
}
