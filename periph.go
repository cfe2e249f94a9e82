// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onoff

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// This file implements periph.io's pin interfaces so an exported Gpio can
// be handed to any periph-based program.

// String implements conn.Resource.
func (g *Gpio) String() string {
	return fmt.Sprintf("GPIO%d", g.pin)
}

// Halt implements conn.Resource.
//
// It stops edge detection by removing all watch registrations.
func (g *Gpio) Halt() error {
	g.UnwatchAll()
	return nil
}

// Name implements pin.Pin.
func (g *Gpio) Name() string {
	return g.String()
}

// Number implements pin.Pin.
func (g *Gpio) Number() int {
	return g.pin
}

// Function implements pin.Pin.
func (g *Gpio) Function() string {
	return g.Direction().String()
}

// In implements gpio.PinIn.
//
// Sysfs has no support for input pull resistors, so only PullNoChange and
// Float are accepted.
func (g *Gpio) In(pull gpio.Pull, edge gpio.Edge) error {
	if pull != gpio.PullNoChange && pull != gpio.Float {
		return g.wrap(errors.New("doesn't support pull-up/pull-down"))
	}
	if err := g.SetDirection(In); err != nil {
		return err
	}
	return g.SetEdge(edge)
}

// Read implements gpio.PinIn. It returns gpio.Low on read failure, as the
// interface leaves no way to surface the error.
func (g *Gpio) Read() gpio.Level {
	v, err := g.ReadSync()
	if err != nil {
		return gpio.Low
	}
	return v == High
}

// WaitForEdge implements gpio.PinIn. A negative timeout waits until the
// next edge or Unexport.
func (g *Gpio) WaitForEdge(timeout time.Duration) bool {
	ch := make(chan struct{}, 1)
	h, err := g.Watch(func(byte, error) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return false
	}
	defer h.Cancel()
	if timeout < 0 {
		select {
		case <-ch:
			return true
		case <-h.Done():
			// Unwatched or unexported while waiting.
			return false
		}
	}
	select {
	case <-ch:
		return true
	case <-h.Done():
		return false
	case <-time.After(timeout):
		return false
	}
}

// Pull implements gpio.PinIn.
func (g *Gpio) Pull() gpio.Pull {
	return gpio.PullNoChange
}

// DefaultPull implements gpio.PinIn.
func (g *Gpio) DefaultPull() gpio.Pull {
	return gpio.PullNoChange
}

// Out implements gpio.PinOut.
func (g *Gpio) Out(l gpio.Level) error {
	if g.Direction() != Out {
		if err := g.SetDirection(Out); err != nil {
			return err
		}
	}
	v := Low
	if l == gpio.High {
		v = High
	}
	return g.WriteSync(v)
}

// PWM implements gpio.PinOut.
//
// This is not supported on sysfs.
func (g *Gpio) PWM(gpio.Duty, physic.Frequency) error {
	return g.wrap(errors.New("pwm is not supported via sysfs"))
}

var _ conn.Resource = &Gpio{}
var _ gpio.PinIn = &Gpio{}
var _ gpio.PinOut = &Gpio{}
var _ gpio.PinIO = &Gpio{}
