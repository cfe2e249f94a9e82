// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onoff

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onoff-io/onoff/fs"
)

// newFakeTree builds a control tree in a temp dir with the given pins
// already materialized, as the kernel would after a successful export.
func newFakeTree(t *testing.T, pins ...int) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "export"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "unexport"), nil, 0o600))
	for _, p := range pins {
		dir := filepath.Join(root, fmt.Sprintf("gpio%d", p))
		require.NoError(t, os.Mkdir(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "value"), []byte("0\n"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "direction"), []byte("in\n"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "edge"), []byte("none\n"), 0o600))
	}
	return root
}

func setFakeValue(t *testing.T, root string, pin int, content string) {
	t.Helper()
	path := filepath.Join(root, fmt.Sprintf("gpio%d", pin), "value")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func readFakeFile(t *testing.T, root string, elem ...string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(append([]string{root}, elem...)...))
	require.NoError(t, err)
	return string(b)
}

// fakeNotifier stands in for the epoll event so tests can simulate edge
// notifications deterministically.
type fakeNotifier struct {
	mu     sync.Mutex
	fd     uintptr
	made   bool
	closed bool
	ready  chan int
	wake   chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		ready: make(chan int, 16),
		wake:  make(chan struct{}, 16),
	}
}

// trigger simulates one edge readiness event.
func (f *fakeNotifier) trigger() {
	f.ready <- 1
}

func (f *fakeNotifier) MakeEvent(fd uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fd = fd
	f.made = true
	return nil
}

func (f *fakeNotifier) Wait(msec int) (int, error) {
	if f.isClosed() {
		return 0, fs.ErrEventClosed
	}
	select {
	case n := <-f.ready:
		return n, nil
	case <-f.wake:
		if f.isClosed() {
			return 0, fs.ErrEventClosed
		}
		return 0, nil
	}
}

func (f *fakeNotifier) Wake() error {
	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeNotifier) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeNotifier) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// notifierFactory returns a WithNotifier option and a way to get at the
// notifier the watcher created.
func notifierFactory() (Option, func() *fakeNotifier) {
	var mu sync.Mutex
	var last *fakeNotifier
	opt := WithNotifier(func() Notifier {
		mu.Lock()
		defer mu.Unlock()
		last = newFakeNotifier()
		return last
	})
	get := func() *fakeNotifier {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
	return opt, get
}
