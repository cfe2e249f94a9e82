// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package fs

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrEventClosed is returned by Wait after Close has been called.
var ErrEventClosed = errors.New("fs: event closed")

// Event is an epoll-based readiness notification for one file descriptor.
//
// A GPIO value file signals an edge transition as exceptional readiness
// (EPOLLPRI), so the descriptor is registered for EPOLLPRI|EPOLLERR. An
// eventfd is added alongside it so a blocked Wait can be interrupted by
// Wake, which is needed to tear a watch down cleanly.
type Event struct {
	mu      sync.Mutex
	epollFd int
	wakeFd  int
	made    bool
	closed  bool
}

// MakeEvent registers fd for edge readiness. It can be called only once.
func (e *Event) MakeEvent(fd uintptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.made {
		return errors.New("fs: event already initialized")
	}
	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return errors.Wrap(err, "fs: epoll_create1")
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epollFd)
		return errors.Wrap(err, "fs: eventfd")
	}
	ev := unix.EpollEvent{Events: unix.EPOLLPRI | unix.EPOLLERR, Fd: int32(fd)}
	if err = unix.EpollCtl(epollFd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		_ = unix.Close(epollFd)
		_ = unix.Close(wakeFd)
		return errors.Wrap(err, "fs: epoll_ctl")
	}
	wk := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err = unix.EpollCtl(epollFd, unix.EPOLL_CTL_ADD, wakeFd, &wk); err != nil {
		_ = unix.Close(epollFd)
		_ = unix.Close(wakeFd)
		return errors.Wrap(err, "fs: epoll_ctl")
	}
	e.epollFd = epollFd
	e.wakeFd = wakeFd
	e.made = true
	return nil
}

// Wait blocks until the registered descriptor is ready or msec expires.
//
// It returns the number of readiness events (0 on timeout or wake-up).
// A wake-up triggered by Close returns ErrEventClosed.
func (e *Event) Wait(msec int) (int, error) {
	e.mu.Lock()
	if !e.made || e.closed {
		e.mu.Unlock()
		return 0, ErrEventClosed
	}
	epollFd := e.epollFd
	wakeFd := e.wakeFd
	e.mu.Unlock()

	var events [2]unix.EpollEvent
	for {
		n, err := unix.EpollWait(epollFd, events[:], msec)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if e.isClosed() {
				return 0, ErrEventClosed
			}
			return 0, errors.Wrap(err, "fs: epoll_wait")
		}
		ready := 0
		woken := false
		for i := 0; i < n; i++ {
			if int(events[i].Fd) == wakeFd {
				var buf [8]byte
				_, _ = unix.Read(wakeFd, buf[:])
				woken = true
				continue
			}
			ready++
		}
		if woken && ready == 0 {
			if e.isClosed() {
				return 0, ErrEventClosed
			}
			return 0, nil
		}
		return ready, nil
	}
}

// Wake interrupts a blocked Wait without closing the event.
func (e *Event) Wake() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.made || e.closed {
		return ErrEventClosed
	}
	var one = [8]byte{1}
	_, err := unix.Write(e.wakeFd, one[:])
	return errors.Wrap(err, "fs: wake")
}

// Close wakes any blocked Wait and releases the epoll and eventfd
// descriptors. The watched descriptor itself is not closed.
func (e *Event) Close() error {
	e.mu.Lock()
	if !e.made || e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	var one = [8]byte{1}
	_, _ = unix.Write(e.wakeFd, one[:])
	e.mu.Unlock()

	// The waiter observes the wake-up and checks closed before these
	// descriptors are reused; closing after the flag is set keeps a blocked
	// epoll_wait from racing a recycled fd number.
	err1 := unix.Close(e.epollFd)
	err2 := unix.Close(e.wakeFd)
	if err1 != nil {
		return errors.Wrap(err1, "fs: close epoll")
	}
	return errors.Wrap(err2, "fs: close eventfd")
}

func (e *Event) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
