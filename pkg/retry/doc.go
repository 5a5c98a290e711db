// Package retry runs an operation a bounded number of times with a linearly growing delay.
//
// Invariants:
// - At most Policy.MaxAttempts calls are made.
// - The delay before attempt n+1 is n * Policy.BaseDelay.
// - Waiting honours context cancellation; Permanent errors stop immediately.
//
// Usage:
//
//	err := retry.Do(ctx, retry.DefaultPolicy(), "connect", func(ctx context.Context, attempt int) error {
//		return dial(ctx)
//	})
package retry
