package retention

import "errors"

// Sentinel kinds for eviction errors.
var (
	// ErrEvictionExhausted is returned when the threshold sweep runs out
	// of evictable candidates before reaching the target, i.e. the store
	// holds more protected-or-irreducible events than fit the capacity.
	// Retrying the identical sweep cannot succeed; callers should treat
	// this as a capacity misconfiguration alert.
	ErrEvictionExhausted = errors.New("no effective eviction possible but target not reached")
)
