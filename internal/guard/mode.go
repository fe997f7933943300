// Package guard implements the per-submission resource guard: the lock
// protocol that classifies how a submission uses each resource and the
// deferred releases that keep every touched object alive until the stream
// has drained past the submitted work.
package guard

// LockMode classifies how a submission uses a resource.
type LockMode int

const (
	// LockNone marks a resource that is touched but neither read nor
	// written, e.g. a reentrant operator's own state. Lifetime is still
	// extended.
	LockNone LockMode = iota
	// LockRead marks a resource that must not be mutated until the
	// in-flight work completes; concurrent reads are fine.
	LockRead
	// LockWrite marks exclusive use: no concurrent read or write until
	// this submission's device work completes.
	LockWrite
)

// String returns a human-readable mode name.
func (m LockMode) String() string {
	switch m {
	case LockNone:
		return "none"
	case LockRead:
		return "read"
	case LockWrite:
		return "write"
	default:
		return "unknown"
	}
}

// conflicts reports whether two modes requested for the same resource
// within one submission are incompatible.
func conflicts(a, b LockMode) bool {
	if a == LockNone || b == LockNone {
		return false
	}
	return a != b
}
