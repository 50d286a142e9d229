// Package device describes the circulator's command set and the exclusive
// link used to reach it. The link implementation is swappable; the server
// ships a simulator and tests use their own fakes.
package device

import (
	"context"
	"errors"
)

var (
	// ErrLinkUnavailable is returned when the link cannot be opened.
	ErrLinkUnavailable = errors.New("device: link unavailable")

	// ErrCommandFailed is returned when the device rejects a command or the
	// link fails while the command is in flight.
	ErrCommandFailed = errors.New("device: command failed")

	// ErrLinkDropped marks a send failure caused by the link going away.
	// Callers must treat the link as closed afterwards.
	ErrLinkDropped = errors.New("device: link dropped")
)

// Link is the single exclusive connection to the physical device.
//
// Open and Close are slow and must never run concurrently with each other or
// with Send; serializing them is the caller's job.
type Link interface {
	// Open establishes the connection. Fails with ErrLinkUnavailable.
	Open(ctx context.Context) error

	// Close tears the connection down.
	Close() error

	// Send delivers one command and returns the raw reply.
	// Fails with ErrCommandFailed, or ErrLinkDropped when the link went away.
	Send(ctx context.Context, cmd Command) (string, error)
}
