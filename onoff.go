// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onoff controls GPIO lines on Linux single-board computers through
// the kernel's sysfs GPIO interface.
//
// A Gpio owns one exported kernel line for its whole life: New reserves and
// configures the line, Unexport releases it. Reads and writes have
// synchronous and asynchronous variants, and input pins configured with an
// edge deliver interrupt-style change notifications to watch callbacks
// without polling.
//
// Sysfs GPIO is often the only portable way to get edge triggered
// interrupts in userspace. It is not suitable for bit-banging; expect
// millisecond-scale latency, not real-time guarantees.
package onoff

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"

	"github.com/onoff-io/onoff/fs"
	"github.com/onoff-io/onoff/sysfs"
)

// Direction configures a pin as an input or an output.
type Direction int

const (
	// In reads the line's state.
	In Direction = iota + 1
	// Out drives the line.
	Out
)

// String returns the value written to the sysfs direction file.
func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Edge values accepted by New and SetEdge, re-exported from periph.io's
// gpio package so a Gpio interoperates with periph-based code.
const (
	NoEdge      = gpio.NoEdge
	RisingEdge  = gpio.RisingEdge
	FallingEdge = gpio.FallingEdge
	BothEdges   = gpio.BothEdges
)

// Logical pin values.
const (
	Low  byte = 0
	High byte = 1
)

// Notifier is the edge-triggered readiness facility a watch registers the
// value descriptor with. The default is the epoll-backed fs.Event; tests
// substitute a fake through WithNotifier.
type Notifier interface {
	// MakeEvent registers fd for exceptional readiness.
	MakeEvent(fd uintptr) error
	// Wait blocks until readiness, wake-up or timeout, returning the number
	// of readiness events.
	Wait(msec int) (int, error)
	// Wake interrupts a blocked Wait.
	Wake() error
	// Close releases the notifier without closing fd.
	Close() error
}

type config struct {
	edge          gpio.Edge
	activeLow     bool
	root          string
	exportTimeout time.Duration
	newNotifier   func() Notifier
}

// Option configures New.
type Option func(*config)

// WithEdge selects which value transitions generate watch notifications.
// Only valid together with direction In.
func WithEdge(e gpio.Edge) Option {
	return func(c *config) { c.edge = e }
}

// WithActiveLow inverts the logical value on both the read and the write
// path: logical 1 is driven and reported as the physically low state.
func WithActiveLow() Option {
	return func(c *config) { c.activeLow = true }
}

// WithRoot overrides the GPIO control tree root, /sys/class/gpio by default.
func WithRoot(root string) Option {
	return func(c *config) { c.root = root }
}

// WithExportTimeout bounds the wait for the exported pin's files to settle.
func WithExportTimeout(d time.Duration) Option {
	return func(c *config) { c.exportTimeout = d }
}

// WithNotifier overrides the readiness notification factory.
func WithNotifier(f func() Notifier) Option {
	return func(c *config) { c.newNotifier = f }
}

// Accessible reports whether this host exposes the sysfs GPIO tree.
func Accessible() bool {
	return sysfs.New("").Accessible()
}

// Gpio is one exported kernel GPIO line.
//
// A Gpio is single-use: it is live from New until Unexport and cannot be
// revived afterward. All methods are safe for concurrent use.
type Gpio struct {
	pin         int
	tree        *sysfs.Tree
	activeLow   bool
	newNotifier func() Notifier

	mu        sync.Mutex
	exported  bool
	direction Direction
	edge      gpio.Edge
	fValue    *fs.File // persistent handle to gpio<N>/value, lazily opened
	buf       [4]byte  // scratch buffer for value reads and writes

	exec  *executor
	watch *watcher
}

// New exports pin, configures its direction (and edge, for watched inputs)
// and returns the live Gpio.
//
// A pin that is already exported is not an error; the kernel's EBUSY answer
// is treated as a successful reservation. Any failure after the export write
// un-exports the pin again so a half-constructed Gpio never leaks a kernel
// reservation.
func New(pin int, direction Direction, opts ...Option) (*Gpio, error) {
	cfg := config{edge: gpio.NoEdge, exportTimeout: sysfs.DefaultExportTimeout}
	for _, o := range opts {
		o(&cfg)
	}
	if pin < 0 {
		return nil, errors.Wrapf(ErrInvalidPin, "pin %d", pin)
	}
	if direction != In && direction != Out {
		return nil, ErrInvalidDirection
	}
	switch cfg.edge {
	case gpio.NoEdge, gpio.RisingEdge, gpio.FallingEdge, gpio.BothEdges:
	default:
		return nil, ErrInvalidEdge
	}
	if direction == Out && cfg.edge != gpio.NoEdge {
		return nil, ErrEdgeOnOutput
	}

	tree := sysfs.New(cfg.root)
	if chips, err := tree.Chips(); err == nil && len(chips) != 0 {
		known := false
		for _, c := range chips {
			if c.HasPin(pin) {
				known = true
				break
			}
		}
		if !known {
			return nil, errors.Wrapf(ErrInvalidPin, "pin %d matches no gpiochip", pin)
		}
	}

	if err := tree.Export(pin); err != nil {
		return nil, err
	}
	if err := tree.AwaitExported(pin, cfg.exportTimeout); err != nil {
		_ = tree.Unexport(pin)
		return nil, err
	}
	if err := tree.SetDirection(pin, direction.String()); err != nil {
		_ = tree.Unexport(pin)
		return nil, err
	}
	if direction == In && cfg.edge != gpio.NoEdge {
		if err := tree.SetEdge(pin, edgeAttr(cfg.edge)); err != nil {
			_ = tree.Unexport(pin)
			return nil, err
		}
	}

	g := &Gpio{
		pin:         pin,
		tree:        tree,
		activeLow:   cfg.activeLow,
		newNotifier: cfg.newNotifier,
		exported:    true,
		direction:   direction,
		edge:        cfg.edge,
	}
	if g.newNotifier == nil {
		g.newNotifier = func() Notifier { return &fs.Event{} }
	}
	g.exec = newExecutor()
	g.watch = newWatcher(g)
	return g, nil
}

// Pin returns the kernel GPIO number.
func (g *Gpio) Pin() int {
	return g.pin
}

// Direction returns the last configured direction without touching the
// filesystem.
func (g *Gpio) Direction() Direction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.direction
}

// Edge returns the last configured edge without touching the filesystem.
func (g *Gpio) Edge() gpio.Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edge
}

// ActiveLow reports whether logical values are inverted.
func (g *Gpio) ActiveLow() bool {
	return g.activeLow
}

// ReadSync reads the pin's current logical value.
func (g *Gpio) ReadSync() (byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readLocked()
}

// WriteSync drives the pin to the given logical value. The value must be
// exactly 0 or 1 and the pin must be configured as an output.
func (g *Gpio) WriteSync(value byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writeLocked(value)
}

// SetDirection reconfigures the pin's direction. Switching to Out clears
// any configured edge and removes all watch registrations first.
func (g *Gpio) SetDirection(direction Direction) error {
	if direction != In && direction != Out {
		return ErrInvalidDirection
	}
	g.mu.Lock()
	if !g.exported {
		g.mu.Unlock()
		return g.wrap(ErrNotExported)
	}
	hadEdge := g.edge != gpio.NoEdge
	g.mu.Unlock()

	if direction == Out && hadEdge {
		g.UnwatchAll()
		if err := g.tree.SetEdge(g.pin, edgeAttr(gpio.NoEdge)); err != nil {
			return err
		}
	}
	if err := g.tree.SetDirection(g.pin, direction.String()); err != nil {
		return err
	}
	g.mu.Lock()
	g.direction = direction
	if direction == Out {
		g.edge = gpio.NoEdge
	}
	g.mu.Unlock()
	return nil
}

// SetEdge reconfigures which transitions generate watch notifications. The
// pin must be configured as an input.
func (g *Gpio) SetEdge(edge gpio.Edge) error {
	switch edge {
	case gpio.NoEdge, gpio.RisingEdge, gpio.FallingEdge, gpio.BothEdges:
	default:
		return ErrInvalidEdge
	}
	g.mu.Lock()
	if !g.exported {
		g.mu.Unlock()
		return g.wrap(ErrNotExported)
	}
	if g.direction != In {
		g.mu.Unlock()
		return g.wrap(ErrEdgeOnOutput)
	}
	g.mu.Unlock()

	if err := g.tree.SetEdge(g.pin, edgeAttr(edge)); err != nil {
		return err
	}
	g.mu.Lock()
	g.edge = edge
	g.mu.Unlock()
	return nil
}

// Unexport stops all watchers, closes the value descriptor and releases the
// kernel reservation. It is idempotent; the second call is a no-op.
//
// Teardown is best effort: the descriptor is closed and the Gpio becomes
// unusable even when the kernel write fails, since leaking the process-side
// resources would be worse than a stale reservation.
func (g *Gpio) Unexport() error {
	g.mu.Lock()
	if !g.exported {
		g.mu.Unlock()
		return nil
	}
	g.exported = false
	g.mu.Unlock()

	g.watch.removeAll()
	g.exec.close()

	g.mu.Lock()
	var cerr error
	if g.fValue != nil {
		cerr = g.fValue.Close()
		g.fValue = nil
	}
	g.mu.Unlock()

	if err := g.tree.Unexport(g.pin); err != nil {
		return err
	}
	if cerr != nil {
		return g.wrap(cerr)
	}
	return nil
}

//

// readLocked reads and parses the value file. mu must be held.
func (g *Gpio) readLocked() (byte, error) {
	if !g.exported {
		return 0, g.wrap(ErrNotExported)
	}
	if err := g.ensureValueLocked(); err != nil {
		return 0, err
	}
	n, err := g.fValue.SeekRead(g.buf[:])
	if err != nil {
		return 0, g.wrap(err)
	}
	if n == 0 {
		return 0, g.wrap(errors.New("empty value file"))
	}
	var v byte
	switch g.buf[0] {
	case '0':
		v = Low
	case '1':
		v = High
	default:
		return 0, g.wrap(errors.Errorf("unexpected value %q", g.buf[0]))
	}
	if g.activeLow {
		v ^= 1
	}
	return v, nil
}

// writeLocked validates and writes the value file. mu must be held.
func (g *Gpio) writeLocked(value byte) error {
	if value != Low && value != High {
		return g.wrap(errors.Wrapf(ErrInvalidValue, "got %d", value))
	}
	if !g.exported {
		return g.wrap(ErrNotExported)
	}
	if g.direction != Out {
		return g.wrap(ErrWriteToInput)
	}
	if err := g.ensureValueLocked(); err != nil {
		return err
	}
	if g.activeLow {
		value ^= 1
	}
	g.buf[0] = '0' + value
	if err := g.fValue.SeekWrite(g.buf[:1]); err != nil {
		return g.wrap(err)
	}
	return nil
}

// readEvent reads the value after a readiness notification. The offset is
// rewound before the read and again after it; sysfs delivers the next
// exceptional-readiness event only once the file has been consumed from the
// start, and leaving the offset at EOF can make the same event repeat.
func (g *Gpio) readEvent() (byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, err := g.readLocked()
	if g.fValue != nil {
		_ = g.fValue.Rewind()
	}
	return v, err
}

// ensureValueLocked lazily opens the persistent value handle. mu must be
// held.
func (g *Gpio) ensureValueLocked() error {
	if g.fValue != nil {
		return nil
	}
	f, err := fs.Open(g.tree.ValuePath(g.pin), os.O_RDWR)
	if err != nil {
		return g.wrap(err)
	}
	g.fValue = f
	return nil
}

func (g *Gpio) wrap(err error) error {
	return errors.Wrapf(err, "onoff-gpio (GPIO%d)", g.pin)
}

// edgeAttr maps an edge to the value written to the sysfs edge file.
func edgeAttr(e gpio.Edge) string {
	switch e {
	case gpio.RisingEdge:
		return "rising"
	case gpio.FallingEdge:
		return "falling"
	case gpio.BothEdges:
		return "both"
	default:
		return "none"
	}
}
