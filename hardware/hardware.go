// Package hardware defines the contract through which platform-specific
// I/O drivers couple to the process image. It ships no driver
// implementations of its own (those are external collaborators per the
// spec); callers supply a Layer, typically the serial driver in package
// serial or a test double.
package hardware

import (
	"context"

	"github.com/oplcgo/runtime/image"
)

// Layer is the hardware-layer contract. Initialize is called once before
// the scheduler starts and may launch driver goroutines; it must return
// within bounded time. UpdateBuffers is called once per scan with the
// image lock already held by the caller, and must be a memcpy-class
// operation — it must not block on network or serial I/O. Drivers that
// need slow I/O interpose a lock-free (or driver-locked) staging buffer
// and perform the slow work on their own goroutine.
type Layer interface {
	Initialize(ctx context.Context) error
	UpdateBuffers(img *image.Image)
}

// ShutdownLayer is an optional extension of Layer for drivers that need
// to release resources (open sockets, serial descriptors) on graceful
// termination. A Layer that does not implement this is simply not asked
// to shut down — the Go idiom for an optional interface method, used
// here instead of a nil-checked method on Layer itself so drivers without
// shutdown needs aren't forced to carry a no-op.
type ShutdownLayer interface {
	Layer
	Shutdown(ctx context.Context) error
}

// Null is a Layer that does nothing. It is useful for tests and for a
// runtime with no attached peripheral hardware at all.
type Null struct{}

func (Null) Initialize(context.Context) error { return nil }
func (Null) UpdateBuffers(*image.Image)       {}
func (Null) Shutdown(context.Context) error   { return nil }

var _ ShutdownLayer = Null{}
