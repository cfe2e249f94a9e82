// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package fs

import "github.com/pkg/errors"

// ErrEventClosed is returned by Wait after Close has been called.
var ErrEventClosed = errors.New("fs: event closed")

// Event is a stub on non-Linux platforms; GPIO sysfs readiness notification
// requires epoll.
type Event struct{}

// MakeEvent is not supported on this platform.
func (e *Event) MakeEvent(fd uintptr) error {
	return errors.New("fs: readiness events require linux")
}

// Wait is not supported on this platform.
func (e *Event) Wait(msec int) (int, error) {
	return 0, errors.New("fs: readiness events require linux")
}

// Wake is not supported on this platform.
func (e *Event) Wake() error {
	return errors.New("fs: readiness events require linux")
}

// Close is a no-op on this platform.
func (e *Event) Close() error {
	return nil
}
