// SPDX-License-Identifier: MIT
/*
Package registry implements the active-module registry shared by the DSP
and visualization chains.

A registry is an ordered, lock-guarded collection of module handles. Every
member records its own position in a Slot, so "is this module active" and
"where is it" are O(1) lookups that never touch the lock.

Mutation is copy-on-write: Insert and Remove build a new backing slice,
re-number the shifted members and swap it in under the lock. A slice
returned by Snapshot is therefore never modified afterwards and can be
iterated without holding the lock, which keeps module callbacks out of
the critical section.
*/
package registry

import "sync/atomic"

// Slot records a member's position inside a registry. The zero value is
// the inactive state (index -1). Embed it in module types.
type Slot struct {
	pos atomic.Int32 // index+1, zero when inactive
}

// Index returns the member's position, or -1 when it is not registered.
func (s *Slot) Index() int {
	return int(s.pos.Load()) - 1
}

// Active reports whether the member is currently registered.
func (s *Slot) Active() bool {
	return s.pos.Load() != 0
}

func (s *Slot) setIndex(i int) {
	s.pos.Store(int32(i + 1))
}

// Member is implemented by any type embedding *Slot or Slot.
type Member interface {
	comparable
	Index() int
	setIndex(i int)
}

// Registry is the ordered set of active members of one kind.
type Registry[T Member] struct {
	lock    Lock
	members []T
}

// Append registers m after the last member. It fails if m is already active.
func (r *Registry[T]) Append(m T) bool {
	return r.insert(m, -1)
}

// Insert registers m at position pos, clamped to [0, Len()]. Members at or
// after pos shift up by one. It fails if m is already active.
func (r *Registry[T]) Insert(m T, pos int) bool {
	if pos < 0 {
		pos = 0
	}
	return r.insert(m, pos)
}

func (r *Registry[T]) insert(m T, pos int) bool {
	r.lock.Enter()
	defer r.lock.Leave()

	if m.Index() != -1 {
		return false
	}

	n := len(r.members)
	if pos < 0 || pos > n {
		pos = n
	}

	next := make([]T, n+1)
	copy(next, r.members[:pos])
	next[pos] = m
	copy(next[pos+1:], r.members[pos:])

	for i := pos; i < len(next); i++ {
		next[i].setIndex(i)
	}
	r.members = next
	return true
}

// Remove unregisters m, shifting later members down by one. It fails if m
// is not active in this registry.
func (r *Registry[T]) Remove(m T) bool {
	r.lock.Enter()
	defer r.lock.Leave()

	pos := m.Index()
	if pos < 0 || pos >= len(r.members) || r.members[pos] != m {
		return false
	}

	n := len(r.members)
	next := make([]T, n-1)
	copy(next, r.members[:pos])
	copy(next[pos:], r.members[pos+1:])

	for i := pos; i < len(next); i++ {
		next[i].setIndex(i)
	}
	m.setIndex(-1)
	r.members = next
	return true
}

// Snapshot returns the members in call order. The slice is shared and must
// not be modified; later mutations never touch it.
func (r *Registry[T]) Snapshot() []T {
	r.lock.Enter()
	defer r.lock.Leave()
	return r.members
}

// SnapshotFunc returns the same slice as Snapshot and calls hold for each
// member while the lock is still held. Callers use it to pin members (take
// a reference) atomically with the snapshot. hold must not block.
func (r *Registry[T]) SnapshotFunc(hold func(T)) []T {
	r.lock.Enter()
	defer r.lock.Leave()
	for _, m := range r.members {
		hold(m)
	}
	return r.members
}

// Len returns the number of active members.
func (r *Registry[T]) Len() int {
	r.lock.Enter()
	defer r.lock.Leave()
	return len(r.members)
}

// At returns the member at position i.
func (r *Registry[T]) At(i int) (T, bool) {
	r.lock.Enter()
	defer r.lock.Leave()
	var zero T
	if i < 0 || i >= len(r.members) {
		return zero, false
	}
	return r.members[i], true
}
