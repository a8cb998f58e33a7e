// SPDX-License-Identifier: MIT

// Package transport carries visualization data out of the process.
package transport

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}
