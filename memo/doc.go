// Package memo provides a generic memoizing cache for expensive, possibly
// slow, computations.
//
// ## Single-flight
//
// A Cache is keyed by the arguments of the computation. The first caller to
// ask for a key installs an in-flight entry and starts the producer. Every
// caller that asks for the same key while the entry is in flight waits on
// that one computation, so at most one producer runs per key at any time.
//
// ## Expiry
//
// A resolved entry lives for the cache's time-to-live, counted from the
// moment the producer returned. A zero time-to-live keeps entries until they
// are removed or the cache is cleared. Expired entries are dropped lazily
// when next looked up; a sweep interval can be configured to also drop them
// in the background, which bounds memory for keys that are never asked for
// again.
//
// A cache created with WithDedupOnly keeps nothing once a computation
// completes. It only joins concurrent callers onto a single computation.
//
// ## Errors
//
// Only successful results are cached. If a producer returns an error, or
// panics, every waiter receives the error and the entry is removed so that
// the next caller runs the producer again.
//
// ## Cancellation
//
// A caller whose context is canceled stops waiting and gets the context's
// error. The computation is not canceled: it continues with a context that
// keeps the original values but not its cancellation, and its result is
// delivered to the remaining waiters and cached.
package memo
