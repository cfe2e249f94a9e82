// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onoff

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"

	"github.com/onoff-io/onoff/fs"
)

// WatchCallback receives the pin's value after each qualifying edge, or the
// read error when consuming the notification failed. A read failure does not
// tear the watch down; subsequent edges keep being delivered.
type WatchCallback func(value byte, err error)

// Watch is the registration handle returned by Gpio.Watch.
type Watch struct {
	w     *watcher
	entry *watchEntry
}

// Cancel removes exactly this registration. It is a no-op if the
// registration was already removed.
func (h *Watch) Cancel() {
	h.w.removeEntry(h.entry)
}

// Done is closed once the registration has been removed, whether through
// Cancel, Unwatch, UnwatchAll or Unexport.
func (h *Watch) Done() <-chan struct{} {
	return h.entry.removed
}

type watchEntry struct {
	id      uintptr // callback code pointer, for Unwatch matching
	cb      WatchCallback
	removed chan struct{} // closed on removal; guarded by watcher.mu
	gone    bool
}

// arm is one Armed period of the watcher: an open notifier registration and
// the goroutine consuming it. A fresh arm is created each time the watcher
// goes from no registrations to at least one.
type arm struct {
	ev   Notifier
	stop chan struct{}
	done chan struct{}
}

// watcher multiplexes any number of watch registrations over a single
// notifier registration on the pin's value descriptor.
//
// States: idle (no callbacks, no notifier) and armed (open notifier, one
// dispatch goroutine, at least one callback). The same callback may be
// registered more than once; every registration is dispatched.
type watcher struct {
	g *Gpio

	mu  sync.Mutex
	cbs []*watchEntry
	cur *arm
}

func newWatcher(g *Gpio) *watcher {
	return &watcher{g: g}
}

// Watch registers cb for edge notifications and returns its registration
// handle. The pin must be an input constructed (or reconfigured) with an
// edge other than NoEdge.
func (g *Gpio) Watch(cb WatchCallback) (*Watch, error) {
	if cb == nil {
		return nil, g.wrap(errors.New("nil watch callback"))
	}
	g.mu.Lock()
	if !g.exported {
		g.mu.Unlock()
		return nil, g.wrap(ErrNotExported)
	}
	if g.direction != In || g.edge == gpio.NoEdge {
		g.mu.Unlock()
		return nil, g.wrap(ErrNoEdge)
	}
	if err := g.ensureValueLocked(); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	fd := g.fValue.Fd()
	g.mu.Unlock()
	return g.watch.add(cb, fd)
}

// Unwatch removes one registration of cb, matching the original's
// remove-first-occurrence semantics. Removing the last registration closes
// the notifier.
func (g *Gpio) Unwatch(cb WatchCallback) {
	if cb == nil {
		return
	}
	g.watch.removeByFunc(cb)
}

// UnwatchAll removes every registration and closes the notifier.
func (g *Gpio) UnwatchAll() {
	g.watch.removeAll()
}

//

func (w *watcher) add(cb WatchCallback, fd uintptr) (*Watch, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		ev := w.g.newNotifier()
		if err := ev.MakeEvent(fd); err != nil {
			return nil, w.g.wrap(err)
		}
		// The value file reports exceptional readiness immediately after the
		// notifier registration; consume it so only transitions that happen
		// from now on are dispatched.
		if _, err := w.g.readEvent(); err != nil {
			_ = ev.Close()
			return nil, err
		}
		a := &arm{ev: ev, stop: make(chan struct{}), done: make(chan struct{})}
		w.cur = a
		go w.run(a)
	}
	e := &watchEntry{id: reflect.ValueOf(cb).Pointer(), cb: cb, removed: make(chan struct{})}
	w.cbs = append(w.cbs, e)
	return &Watch{w: w, entry: e}, nil
}

func (w *watcher) run(a *arm) {
	defer func() {
		_ = a.ev.Close()
		close(a.done)
	}()
	for {
		n, err := a.ev.Wait(-1)
		select {
		case <-a.stop:
			return
		default:
		}
		if err != nil {
			if errors.Is(err, fs.ErrEventClosed) {
				return
			}
			w.dispatch(0, w.g.wrap(err))
			continue
		}
		if n == 0 {
			// Spurious wake-up or signal.
			continue
		}
		v, rerr := w.g.readEvent()
		w.dispatch(v, rerr)
	}
}

// dispatch invokes all currently registered callbacks in registration
// order. The snapshot is taken without holding the lock during the calls so
// a callback may watch or unwatch; an unwatch during dispatch does not
// cancel the in-flight delivery.
func (w *watcher) dispatch(v byte, err error) {
	w.mu.Lock()
	cbs := make([]*watchEntry, len(w.cbs))
	copy(cbs, w.cbs)
	w.mu.Unlock()
	for _, e := range cbs {
		e.cb(v, err)
	}
}

func (w *watcher) removeByFunc(cb WatchCallback) {
	id := reflect.ValueOf(cb).Pointer()
	w.mu.Lock()
	for i, e := range w.cbs {
		if e.id == id {
			w.cbs = append(w.cbs[:i], w.cbs[i+1:]...)
			markRemovedLocked(e)
			break
		}
	}
	w.disarmIfEmptyLocked()
	w.mu.Unlock()
}

func (w *watcher) removeEntry(entry *watchEntry) {
	w.mu.Lock()
	for i, e := range w.cbs {
		if e == entry {
			w.cbs = append(w.cbs[:i], w.cbs[i+1:]...)
			markRemovedLocked(e)
			break
		}
	}
	w.disarmIfEmptyLocked()
	w.mu.Unlock()
}

func (w *watcher) removeAll() {
	w.mu.Lock()
	for _, e := range w.cbs {
		markRemovedLocked(e)
	}
	w.cbs = nil
	w.disarmIfEmptyLocked()
	w.mu.Unlock()
}

func markRemovedLocked(e *watchEntry) {
	if !e.gone {
		e.gone = true
		close(e.removed)
	}
}

// disarmIfEmptyLocked signals the dispatch goroutine to exit once the last
// registration is gone. It does not wait for the goroutine: a callback may
// itself be the caller (unwatching from inside a dispatch), and blocking
// here would deadlock. The goroutine owns closing the notifier.
func (w *watcher) disarmIfEmptyLocked() {
	if len(w.cbs) != 0 || w.cur == nil {
		return
	}
	a := w.cur
	w.cur = nil
	close(a.stop)
	_ = a.ev.Wake()
}
