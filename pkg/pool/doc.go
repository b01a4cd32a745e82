// Package pool maintains the per-slot reusable blank states. Each slot
// owns a dataset named blank-<slot> which is created once on first use
// and reset in place (its disk image discarded) on every later use, so
// a borrow with no prior session and the tail of every return both land
// on a clean image without dataset churn.
package pool
