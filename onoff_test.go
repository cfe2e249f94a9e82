// Copyright 2026 The Onoff Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onoff

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/onoff-io/onoff/sysfs"
)

func TestNewValidation(t *testing.T) {
	root := newFakeTree(t, 17)

	t.Run("NegativePin", func(t *testing.T) {
		_, err := New(-1, Out, WithRoot(root))
		assert.ErrorIs(t, err, ErrInvalidPin)
	})

	t.Run("BadDirection", func(t *testing.T) {
		_, err := New(17, Direction(0), WithRoot(root))
		assert.ErrorIs(t, err, ErrInvalidDirection)
	})

	t.Run("BadEdge", func(t *testing.T) {
		_, err := New(17, In, WithRoot(root), WithEdge(gpio.Edge(42)))
		assert.ErrorIs(t, err, ErrInvalidEdge)
	})

	t.Run("EdgeOnOutput", func(t *testing.T) {
		_, err := New(17, Out, WithRoot(root), WithEdge(BothEdges))
		assert.ErrorIs(t, err, ErrEdgeOnOutput)
		// Validation failures must not touch the control tree.
		assert.Empty(t, readFakeFile(t, root, "export"))
	})
}

func TestNewConfiguresPin(t *testing.T) {
	root := newFakeTree(t, 18)
	g, err := New(18, In, WithRoot(root), WithEdge(BothEdges))
	require.NoError(t, err)
	defer func() { _ = g.Unexport() }()

	assert.Equal(t, "18", readFakeFile(t, root, "export"))
	assert.Equal(t, "in", strings.TrimSpace(readFakeFile(t, root, "gpio18", "direction")))
	assert.Equal(t, "both", strings.TrimSpace(readFakeFile(t, root, "gpio18", "edge")))
	assert.Equal(t, 18, g.Pin())
	assert.Equal(t, In, g.Direction())
	assert.Equal(t, gpio.BothEdges, g.Edge())
	assert.False(t, g.ActiveLow())
}

func TestNewExportTimeout(t *testing.T) {
	root := newFakeTree(t) // no gpio4 directory, and nothing will create it
	_, err := New(4, Out, WithRoot(root), WithExportTimeout(20*time.Millisecond))
	require.ErrorIs(t, err, sysfs.ErrExportTimeout)
	// The half-done export must have been rolled back.
	assert.Equal(t, "4", readFakeFile(t, root, "unexport"))
}

func TestNewConfigureFailureRollsBack(t *testing.T) {
	root := newFakeTree(t, 5)
	// A pin without a direction file rejects configuration.
	require.NoError(t, os.Remove(filepath.Join(root, "gpio5", "direction")))
	_, err := New(5, Out, WithRoot(root))
	require.Error(t, err)
	assert.Equal(t, "5", readFakeFile(t, root, "unexport"))
}

func TestNewRejectsPinOutsideChips(t *testing.T) {
	root := newFakeTree(t, 17)
	chip := filepath.Join(root, "gpiochip0")
	require.NoError(t, os.Mkdir(chip, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(chip, "base"), []byte("0\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(chip, "ngpio"), []byte("32\n"), 0o600))

	_, err := New(100, Out, WithRoot(root))
	assert.ErrorIs(t, err, ErrInvalidPin)

	g, err := New(17, Out, WithRoot(root))
	require.NoError(t, err)
	_ = g.Unexport()
}

func TestWriteReadRoundtrip(t *testing.T) {
	root := newFakeTree(t, 17)
	g, err := New(17, Out, WithRoot(root))
	require.NoError(t, err)
	defer func() { _ = g.Unexport() }()

	require.NoError(t, g.WriteSync(High))
	v, err := g.ReadSync()
	require.NoError(t, err)
	assert.Equal(t, High, v)
	assert.Equal(t, byte('1'), readFakeFile(t, root, "gpio17", "value")[0])

	require.NoError(t, g.WriteSync(Low))
	v, err = g.ReadSync()
	require.NoError(t, err)
	assert.Equal(t, Low, v)
	assert.Equal(t, byte('0'), readFakeFile(t, root, "gpio17", "value")[0])
}

func TestActiveLowInvertsBothPaths(t *testing.T) {
	root := newFakeTree(t, 17)
	g, err := New(17, Out, WithRoot(root), WithActiveLow())
	require.NoError(t, err)
	defer func() { _ = g.Unexport() }()
	assert.True(t, g.ActiveLow())

	// Logical 1 lands as physical 0 and reads back as logical 1.
	require.NoError(t, g.WriteSync(High))
	assert.Equal(t, byte('0'), readFakeFile(t, root, "gpio17", "value")[0])
	v, err := g.ReadSync()
	require.NoError(t, err)
	assert.Equal(t, High, v)

	require.NoError(t, g.WriteSync(Low))
	assert.Equal(t, byte('1'), readFakeFile(t, root, "gpio17", "value")[0])
	v, err = g.ReadSync()
	require.NoError(t, err)
	assert.Equal(t, Low, v)
}

func TestWriteValidation(t *testing.T) {
	root := newFakeTree(t, 17, 18)

	t.Run("BadValue", func(t *testing.T) {
		g, err := New(17, Out, WithRoot(root))
		require.NoError(t, err)
		defer func() { _ = g.Unexport() }()
		assert.ErrorIs(t, g.WriteSync(2), ErrInvalidValue)
	})

	t.Run("InputPin", func(t *testing.T) {
		g, err := New(18, In, WithRoot(root))
		require.NoError(t, err)
		defer func() { _ = g.Unexport() }()
		assert.ErrorIs(t, g.WriteSync(High), ErrWriteToInput)
	})
}

func TestUnexportLifecycle(t *testing.T) {
	root := newFakeTree(t, 17)
	g, err := New(17, Out, WithRoot(root))
	require.NoError(t, err)

	require.NoError(t, g.WriteSync(High))
	require.NoError(t, g.Unexport())
	assert.Equal(t, "17", readFakeFile(t, root, "unexport"))

	// Every I/O after Unexport fails with the lifecycle error,
	// deterministically.
	for i := 0; i < 3; i++ {
		_, err = g.ReadSync()
		assert.ErrorIs(t, err, ErrNotExported)
		assert.ErrorIs(t, g.WriteSync(Low), ErrNotExported)
		assert.ErrorIs(t, g.SetDirection(In), ErrNotExported)
		assert.ErrorIs(t, g.SetEdge(BothEdges), ErrNotExported)
		_, err = g.Watch(func(byte, error) {})
		assert.ErrorIs(t, err, ErrNotExported)
	}

	// Idempotent: the second call is a no-op, not an error.
	require.NoError(t, g.Unexport())
}

func TestAsyncReadWrite(t *testing.T) {
	root := newFakeTree(t, 17)
	g, err := New(17, Out, WithRoot(root))
	require.NoError(t, err)
	defer func() { _ = g.Unexport() }()

	werr := make(chan error, 1)
	g.WriteAsync(High, func(err error) { werr <- err })
	select {
	case err := <-werr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("write callback not invoked")
	}

	type result struct {
		v   byte
		err error
	}
	rres := make(chan result, 1)
	g.ReadAsync(func(v byte, err error) { rres <- result{v, err} })
	select {
	case r := <-rres:
		require.NoError(t, r.err)
		assert.Equal(t, High, r.v)
	case <-time.After(2 * time.Second):
		t.Fatal("read callback not invoked")
	}
}

func TestAsyncErrorsReachCallbackOnly(t *testing.T) {
	root := newFakeTree(t, 17)
	g, err := New(17, Out, WithRoot(root))
	require.NoError(t, err)

	// Invalid value: delivered through the callback, exactly once.
	werr := make(chan error, 1)
	g.WriteAsync(7, func(err error) { werr <- err })
	select {
	case err := <-werr:
		assert.ErrorIs(t, err, ErrInvalidValue)
	case <-time.After(2 * time.Second):
		t.Fatal("write callback not invoked")
	}

	require.NoError(t, g.Unexport())

	// After Unexport the executor is gone; the lifecycle error still arrives
	// through the callback.
	rerr := make(chan error, 1)
	g.ReadAsync(func(_ byte, err error) { rerr <- err })
	select {
	case err := <-rerr:
		assert.ErrorIs(t, err, ErrNotExported)
	case <-time.After(2 * time.Second):
		t.Fatal("read callback not invoked")
	}
}

func TestAsyncFIFOOrder(t *testing.T) {
	root := newFakeTree(t, 17)
	g, err := New(17, Out, WithRoot(root))
	require.NoError(t, err)
	defer func() { _ = g.Unexport() }()

	values := make(chan byte, 4)
	g.WriteAsync(High, nil)
	g.ReadAsync(func(v byte, err error) { values <- v })
	g.WriteAsync(Low, nil)
	g.ReadAsync(func(v byte, err error) { values <- v })

	for _, want := range []byte{High, Low} {
		select {
		case v := <-values:
			assert.Equal(t, want, v)
		case <-time.After(2 * time.Second):
			t.Fatal("read callback not invoked")
		}
	}
}

func TestSetDirectionAndEdge(t *testing.T) {
	root := newFakeTree(t, 17)
	g, err := New(17, Out, WithRoot(root))
	require.NoError(t, err)
	defer func() { _ = g.Unexport() }()

	assert.ErrorIs(t, g.SetEdge(RisingEdge), ErrEdgeOnOutput)

	require.NoError(t, g.SetDirection(In))
	assert.Equal(t, In, g.Direction())
	assert.Equal(t, "in", strings.TrimSpace(readFakeFile(t, root, "gpio17", "direction")))

	require.NoError(t, g.SetEdge(RisingEdge))
	assert.Equal(t, gpio.RisingEdge, g.Edge())
	assert.Equal(t, "rising", strings.TrimSpace(readFakeFile(t, root, "gpio17", "edge")))

	// Back to output: edge resets to none.
	require.NoError(t, g.SetDirection(Out))
	assert.Equal(t, Out, g.Direction())
	assert.Equal(t, gpio.NoEdge, g.Edge())
	assert.Equal(t, "none", strings.TrimSpace(readFakeFile(t, root, "gpio17", "edge")))
}

func TestScenarioOutputPin(t *testing.T) {
	// Construct(17, Out); write 1; read 1; write 0; read 0; unexport;
	// read fails with the lifecycle error.
	root := newFakeTree(t, 17)
	g, err := New(17, Out, WithRoot(root))
	require.NoError(t, err)

	require.NoError(t, g.WriteSync(1))
	v, err := g.ReadSync()
	require.NoError(t, err)
	require.Equal(t, byte(1), v)

	require.NoError(t, g.WriteSync(0))
	v, err = g.ReadSync()
	require.NoError(t, err)
	require.Equal(t, byte(0), v)

	require.NoError(t, g.Unexport())
	_, err = g.ReadSync()
	require.ErrorIs(t, err, ErrNotExported)
}
