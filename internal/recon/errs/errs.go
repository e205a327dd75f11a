// Package errs defines the sentinel error kinds shared across the
// reconstruction pipeline. Callers distinguish kinds with errors.Is, and
// wrap with fmt.Errorf("...: %w", err) at each layer.
package errs

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("context: %w", ErrX) to attach detail.
var (
	// ErrInvalidInput marks a malformed shape, a zero-weight sample, or an
	// out-of-range option value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDomainTooLarge marks a domain-growth request that would exceed
	// implementation limits.
	ErrDomainTooLarge = errors.New("domain too large")

	// ErrInconsistentTopology marks a contract violation detected by a
	// Verify pass: neighbor asymmetry, a non-touching recorded pair, or a
	// self-referential cycle. Never silently repaired.
	ErrInconsistentTopology = errors.New("inconsistent topology")

	// ErrMissingReference marks a dangling handle: a face referencing a
	// removed node, or a region referencing a seed that no longer exists.
	ErrMissingReference = errors.New("missing reference")

	// ErrCancelled marks cooperative cancellation via a context deadline
	// or explicit cancel.
	ErrCancelled = errors.New("cancelled")

	// ErrIO marks a persistence read/write failure. The pipeline's pure
	// phases never return this; only Serialize/Parse do.
	ErrIO = errors.New("io error")
)

// Is reports whether err (or anything it wraps) matches kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
