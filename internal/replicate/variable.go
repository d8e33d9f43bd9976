// Package replicate implements named, versioned value containers with a
// single distinguished writer and ordered change notification.
package replicate

import "errors"

// ErrNotAuthorized is returned when a writer that does not currently hold
// authority attempts to mutate a variable.
var ErrNotAuthorized = errors.New("writer is not the session authority")

// AuthorityFunc reports whether the given actor currently holds write
// authority. The session supplies this so authority can move between actors
// (host migration) without re-wiring variables.
type AuthorityFunc func(actorID string) bool

// Var is a named, versioned value observed by all session participants and
// mutated only by the current authority.
//
// Var is not safe for concurrent use; it is confined to the session's event
// loop goroutine, which is the only writer by construction.
type Var[T comparable] struct {
	name        string
	value       T
	version     uint64
	isAuthority AuthorityFunc
	subs        []func(old, new T)
}

// NewVar creates a variable with the given initial value at version 0.
func NewVar[T comparable](name string, initial T, isAuthority AuthorityFunc) *Var[T] {
	return &Var[T]{
		name:        name,
		value:       initial,
		isAuthority: isAuthority,
	}
}

// Name returns the variable's name.
func (v *Var[T]) Name() string { return v.name }

// Read returns the last accepted value. Always available, never blocks.
func (v *Var[T]) Read() T { return v.value }

// Version returns the number of accepted writes.
func (v *Var[T]) Version() uint64 { return v.version }

// Write replaces the value on behalf of writerID. Non-authority writers are
// rejected with ErrNotAuthorized. Writing a value equal to the current one is
// an accepted no-op: no version bump, no notification.
func (v *Var[T]) Write(writerID string, next T) error {
	if !v.isAuthority(writerID) {
		return ErrNotAuthorized
	}
	if next == v.value {
		return nil
	}
	old := v.value
	v.value = next
	v.version++
	for _, fn := range v.subs {
		fn(old, next)
	}
	return nil
}

// Subscribe registers fn to be called with (old, new) once per accepted
// write, in the order writes were accepted. Subscribers registered earlier
// are notified earlier within a single write.
func (v *Var[T]) Subscribe(fn func(old, new T)) {
	v.subs = append(v.subs, fn)
}
