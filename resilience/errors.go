package resilience

import "errors"

// Sentinel errors for guarded calls.
var (
	// ErrOriginUnavailable is returned while the breaker is open.
	ErrOriginUnavailable = errors.New("resilience: origin marked unavailable")

	// ErrSaturated is returned when the bulkhead has no free slot.
	ErrSaturated = errors.New("resilience: too many concurrent upstream calls")
)

// IsShortCircuit reports whether err was produced by the guard itself rather
// than by the guarded call.
func IsShortCircuit(err error) bool {
	return errors.Is(err, ErrOriginUnavailable) || errors.Is(err, ErrSaturated)
}
