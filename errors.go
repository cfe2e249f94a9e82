// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onoff

import "github.com/pkg/errors"

// Sentinel errors, discriminated with errors.Is. Construction rejects the
// whole object; the remainder surface from individual operations, through
// the callback for the asynchronous variants.
var (
	// ErrInvalidPin rejects a negative pin number, or one outside every
	// gpiochip range when chip enumeration is available.
	ErrInvalidPin = errors.New("onoff: invalid pin number")

	// ErrInvalidDirection rejects a direction other than In or Out.
	ErrInvalidDirection = errors.New("onoff: invalid direction")

	// ErrInvalidEdge rejects an unknown edge value.
	ErrInvalidEdge = errors.New("onoff: invalid edge")

	// ErrEdgeOnOutput rejects edge detection on an output pin.
	ErrEdgeOnOutput = errors.New("onoff: edge detection requires an input pin")

	// ErrNotExported is the lifecycle error: the operation was invoked after
	// Unexport.
	ErrNotExported = errors.New("onoff: gpio is not exported")

	// ErrInvalidValue rejects a write of anything but 0 or 1.
	ErrInvalidValue = errors.New("onoff: value must be 0 or 1")

	// ErrWriteToInput rejects a write to a pin configured as an input.
	ErrWriteToInput = errors.New("onoff: write to input pin")

	// ErrNoEdge rejects Watch on a pin whose edge is NoEdge.
	ErrNoEdge = errors.New("onoff: watch requires a configured edge")
)
