// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onoff

import "sync"

// executor runs submitted tasks one at a time, in submission order, on a
// single goroutine. It stands in for the original event loop: asynchronous
// reads and writes on one Gpio are FIFO relative to each other, with no
// ordering guarantee relative to other pins.
type executor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
}

func newExecutor() *executor {
	e := &executor{}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

func (e *executor) run() {
	e.mu.Lock()
	for {
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		fn()
		e.mu.Lock()
	}
}

// submit enqueues fn, reporting false once the executor is closed.
func (e *executor) submit(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.queue = append(e.queue, fn)
	e.cond.Signal()
	return true
}

// close lets already queued tasks drain and stops the goroutine.
func (e *executor) close() {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
}

// ReadAsync reads the pin's value off the caller's goroutine and delivers
// the result through cb, which is invoked exactly once. Errors, including
// use after Unexport, reach the callback and are never returned to the
// caller directly.
func (g *Gpio) ReadAsync(cb func(value byte, err error)) {
	if cb == nil {
		return
	}
	ok := g.exec.submit(func() {
		v, err := g.ReadSync()
		cb(v, err)
	})
	if !ok {
		go cb(0, g.wrap(ErrNotExported))
	}
}

// WriteAsync writes the pin's value off the caller's goroutine. cb may be
// nil; otherwise it is invoked exactly once with the write's outcome.
func (g *Gpio) WriteAsync(value byte, cb func(err error)) {
	ok := g.exec.submit(func() {
		err := g.WriteSync(value)
		if cb != nil {
			cb(err)
		}
	})
	if !ok && cb != nil {
		go cb(g.wrap(ErrNotExported))
	}
}
