// SPDX-License-Identifier: MIT
package registry

import "sync"

// Lock is a non-reentrant mutual exclusion primitive with enter/leave
// naming. Sections guarded by it only do slice and index bookkeeping,
// never calls into module code.
type Lock struct {
	mu sync.Mutex
}

// Enter blocks until the lock is held.
func (l *Lock) Enter() {
	l.mu.Lock()
}

// Leave releases the lock.
func (l *Lock) Leave() {
	l.mu.Unlock()
}
