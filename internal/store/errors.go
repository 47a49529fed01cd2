package store

import (
	"context"
	"errors"
	"io"
	"net"
)

var (
	// ErrNotFound means the referenced record does not exist (or is not shared)
	ErrNotFound = errors.New("record not found")

	// ErrTransient marks failures worth retrying: rate limits, conflicts,
	// server errors, dropped connections
	ErrTransient = errors.New("transient remote error")

	// ErrValidation means the store rejected the request itself
	ErrValidation = errors.New("request rejected by store")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
