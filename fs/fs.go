// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fs provides the raw file access used to drive GPIO sysfs
// pseudo-files: seek-to-start reads and writes on a persistent handle, and an
// edge-triggered readiness event to detect value changes without polling.
package fs

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// File is an open handle to a sysfs pseudo-file.
//
// Sysfs attribute files do not behave like regular streams: the whole value
// is re-generated on every read and the read offset must be rewound to the
// start of the file before each access, otherwise a stale or empty result is
// returned. SeekRead and SeekWrite encode that rule.
type File struct {
	f *os.File
}

// Open opens the pseudo-file at path.
func Open(path string, flag int) (*File, error) {
	f, err := os.OpenFile(path, flag, 0o600)
	if err != nil {
		return nil, err
	}
	return &File{f: f}, nil
}

// SeekRead rewinds to the start of the file and reads into b.
func (f *File) SeekRead(b []byte) (int, error) {
	if _, err := f.f.Seek(0, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "seek")
	}
	return f.f.Read(b)
}

// SeekWrite rewinds to the start of the file and writes b.
func (f *File) SeekWrite(b []byte) error {
	if _, err := f.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek")
	}
	_, err := f.f.Write(b)
	return err
}

// Rewind resets the read offset to the start of the file without reading.
// Consuming a readiness notification requires the offset to be back at the
// start before the next event can be observed.
func (f *File) Rewind() error {
	_, err := f.f.Seek(0, io.SeekStart)
	return errors.Wrap(err, "seek")
}

// Fd returns the underlying file descriptor.
func (f *File) Fd() uintptr {
	return f.f.Fd()
}

// Close closes the handle.
func (f *File) Close() error {
	return f.f.Close()
}
