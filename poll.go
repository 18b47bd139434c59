package main

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// interest is the set of readiness conditions a descriptor is watched for.
type interest uint8

const (
	interestRead interest = 1 << iota
	interestWrite
)

// readyEvent reports one descriptor's readiness. Token is whatever the
// descriptor was registered with.
type readyEvent struct {
	Token    int32
	Readable bool
	Writable bool

	// Hangup or error on the descriptor. Reading will tell us what happened.
	Hangup bool
}

// poller waits for readiness over a set of descriptors.
type poller interface {
	Add(fd int, token int32, in interest) error
	Modify(fd int, token int32, in interest) error
	Remove(fd int) error
	// Wait blocks until at least one descriptor is ready.
	Wait() ([]readyEvent, error)
	Close() error
}

// epoller is a level triggered epoll instance.
type epoller struct {
	fd     int
	events []unix.EpollEvent
}

func newEpoller() (*epoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "error creating epoll instance")
	}
	return &epoller{
		fd:     fd,
		events: make([]unix.EpollEvent, 128),
	}, nil
}

func epollFlags(in interest) uint32 {
	var flags uint32
	if in&interestRead != 0 {
		flags |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if in&interestWrite != 0 {
		flags |= unix.EPOLLOUT
	}
	return flags
}

func (p *epoller) Add(fd int, token int32, in interest) error {
	ev := unix.EpollEvent{Events: epollFlags(in), Fd: token}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errors.Wrap(err, "error adding descriptor to epoll")
	}
	return nil
}

func (p *epoller) Modify(fd int, token int32, in interest) error {
	ev := unix.EpollEvent{Events: epollFlags(in), Fd: token}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return errors.Wrap(err, "error modifying epoll interest")
	}
	return nil
}

func (p *epoller) Remove(fd int) error {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return errors.Wrap(err, "error removing descriptor from epoll")
	}
	return nil
}

func (p *epoller) Wait() ([]readyEvent, error) {
	for {
		n, err := unix.EpollWait(p.fd, p.events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, errors.Wrap(err, "error waiting for events")
		}

		ready := make([]readyEvent, 0, n)
		for _, ev := range p.events[:n] {
			ready = append(ready, readyEvent{
				Token:    ev.Fd,
				Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
				Writable: ev.Events&unix.EPOLLOUT != 0,
				Hangup:   ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
			})
		}

		// Grow if we filled the buffer so a busy server sees more per wait.
		if n == len(p.events) {
			p.events = make([]unix.EpollEvent, 2*len(p.events))
		}

		return ready, nil
	}
}

func (p *epoller) Close() error {
	return unix.Close(p.fd)
}

// waker lets another goroutine interrupt a blocked Wait. It is an eventfd
// registered with the poller.
type waker struct {
	fd int
}

func newWaker() (*waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "error creating eventfd")
	}
	return &waker{fd: fd}, nil
}

// wake is safe to call from any goroutine.
func (w *waker) wake() error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1)
	if _, err := unix.Write(w.fd, buf); err != nil && err != unix.EAGAIN {
		return errors.Wrap(err, "error writing eventfd")
	}
	return nil
}

// drain resets the counter so the descriptor stops reporting readable.
func (w *waker) drain() {
	buf := make([]byte, 8)
	_, _ = unix.Read(w.fd, buf)
}

func (w *waker) close() error {
	return unix.Close(w.fd)
}
