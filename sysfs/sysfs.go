// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sysfs accesses the kernel GPIO control tree described at
// https://www.kernel.org/doc/Documentation/gpio/sysfs.txt
//
// The tree root is configurable so the package can be pointed at a fake
// hierarchy in tests; production code uses the default /sys/class/gpio.
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// DefaultRoot is the kernel's GPIO control tree.
const DefaultRoot = "/sys/class/gpio"

// DefaultExportTimeout bounds the wait for an exported pin's files to become
// accessible. Writing to /export materializes the files synchronously but
// udev rules adjusting their ownership run asynchronously, so on stock
// Raspbian the first open after export can fail with EACCES for a while.
const DefaultExportTimeout = 5 * time.Second

// ErrExportTimeout is returned when an exported pin's value file does not
// become accessible within the retry budget.
var ErrExportTimeout = errors.New("sysfs: timed out waiting for exported gpio files")

// Tree resolves and manipulates the per-pin control files under one GPIO
// control tree root.
type Tree struct {
	root string
}

// New returns a Tree rooted at root, or at DefaultRoot if root is empty.
func New(root string) *Tree {
	if root == "" {
		root = DefaultRoot
	}
	return &Tree{root: root}
}

// Root returns the control tree root.
func (t *Tree) Root() string {
	return t.root
}

// ExportPath returns the top-level export control file.
func (t *Tree) ExportPath() string {
	return filepath.Join(t.root, "export")
}

// UnexportPath returns the top-level unexport control file.
func (t *Tree) UnexportPath() string {
	return filepath.Join(t.root, "unexport")
}

// PinDir returns the directory holding pin's control files.
func (t *Tree) PinDir(pin int) string {
	return filepath.Join(t.root, fmt.Sprintf("gpio%d", pin))
}

// ValuePath returns pin's value file.
func (t *Tree) ValuePath(pin int) string {
	return filepath.Join(t.PinDir(pin), "value")
}

// DirectionPath returns pin's direction file.
func (t *Tree) DirectionPath(pin int) string {
	return filepath.Join(t.PinDir(pin), "direction")
}

// EdgePath returns pin's edge file.
func (t *Tree) EdgePath(pin int) string {
	return filepath.Join(t.PinDir(pin), "edge")
}

// Accessible reports whether the control tree exists on this host.
func (t *Tree) Accessible() bool {
	fi, err := os.Stat(t.root)
	return err == nil && fi.IsDir()
}

// Export asks the kernel to reserve pin and materialize its control files.
//
// A pin that is already exported makes the write fail with EBUSY; that is
// treated as success so two reservations of the same pin by the same process
// compose, and so a pin left exported by a crashed process can be re-used.
func (t *Tree) Export(pin int) error {
	if err := writeControl(t.ExportPath(), pin); err != nil && !isErrBusy(err) {
		if os.IsPermission(err) {
			return errors.Wrapf(err, "sysfs: export gpio%d: need more access, try as root or setup udev rules", pin)
		}
		return errors.Wrapf(err, "sysfs: export gpio%d", pin)
	}
	return nil
}

// Unexport releases pin's reservation and removes its control files.
//
// A pin that is not currently exported makes the write fail with EINVAL;
// that is treated as success so unexport is idempotent.
func (t *Tree) Unexport(pin int) error {
	err := writeControl(t.UnexportPath(), pin)
	if err == nil || isErrInval(err) || os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "sysfs: unexport gpio%d", pin)
}

// AwaitExported polls until pin's value file can be opened, or the timeout
// expires with ErrExportTimeout. Failures other than ENOENT (file not
// materialized yet) and EACCES (udev still settling permissions) abort the
// wait immediately.
func (t *Tree) AwaitExported(pin int, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultExportTimeout
	}
	path := t.ValuePath(pin)
	for start := time.Now(); time.Since(start) < timeout; {
		f, err := os.OpenFile(path, os.O_RDWR, 0o600)
		if err == nil {
			return f.Close()
		}
		if !os.IsNotExist(err) && !os.IsPermission(err) {
			return errors.Wrapf(err, "sysfs: gpio%d", pin)
		}
		time.Sleep(time.Millisecond)
	}
	return errors.Wrapf(ErrExportTimeout, "sysfs: gpio%d", pin)
}

// SetDirection writes "in" or "out" to pin's direction file.
func (t *Tree) SetDirection(pin int, direction string) error {
	if err := writeAttr(t.DirectionPath(pin), direction); err != nil {
		return errors.Wrapf(err, "sysfs: gpio%d: set direction %q", pin, direction)
	}
	return nil
}

// SetEdge writes "none", "rising", "falling" or "both" to pin's edge file.
//
// Pins whose controller cannot generate interrupts have no edge file; the
// resulting error must surface to the caller since watch semantics depend on
// the write taking effect.
func (t *Tree) SetEdge(pin int, edge string) error {
	if err := writeAttr(t.EdgePath(pin), edge); err != nil {
		return errors.Wrapf(err, "sysfs: gpio%d: set edge %q", pin, edge)
	}
	return nil
}

// Chip describes one GPIO controller found under the control tree.
type Chip struct {
	Base  int
	Count int
	Label string
}

// HasPin reports whether pin belongs to this chip.
func (c Chip) HasPin(pin int) bool {
	return pin >= c.Base && pin < c.Base+c.Count
}

// Chips enumerates the gpiochip entries of the control tree.
//
// Hosts use non-continuous pin numbering, so the valid pin space is the
// union of each chip's [base, base+ngpio) range.
func (t *Tree) Chips() ([]Chip, error) {
	items, err := filepath.Glob(filepath.Join(t.root, "gpiochip*"))
	if err != nil {
		return nil, errors.Wrap(err, "sysfs: gpiochip glob")
	}
	var chips []Chip
	for _, item := range items {
		base, err := readInt(filepath.Join(item, "base"))
		if err != nil {
			return nil, errors.Wrapf(err, "sysfs: %s", item)
		}
		count, err := readInt(filepath.Join(item, "ngpio"))
		if err != nil {
			return nil, errors.Wrapf(err, "sysfs: %s", item)
		}
		label, _ := readString(filepath.Join(item, "label"))
		chips = append(chips, Chip{Base: base, Count: count, Label: label})
	}
	return chips, nil
}

//

// writeControl writes a decimal pin number to a top-level control file.
// O_TRUNC is a no-op on sysfs but keeps fake trees backed by regular files
// from accumulating stale bytes.
func writeControl(path string, pin int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	_, werr := f.Write(strconv.AppendInt(nil, int64(pin), 10))
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// writeAttr writes a textual value to a per-pin attribute file.
func writeAttr(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	_, werr := f.Write([]byte(value))
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// readInt reads a pseudo-file that is known to contain a decimal integer.
func readInt(path string) (int, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

func readString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for len(b) != 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\x00') {
		b = b[:len(b)-1]
	}
	return string(b), nil
}

func isErrBusy(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EBUSY
	}
	return false
}

func isErrInval(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL
	}
	return false
}
