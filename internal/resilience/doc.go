// Package resilience groups the fault tolerance building blocks of the voice backend.
//
// The subpackages are:
//   - health: per-capability outcome tracking, health derivation and recovery budgets
//   - retry: exponential backoff with jitter for transient upstream failures
//   - circuitbreaker: gobreaker wrappers for the chat and recognition providers
//
// Usage Example:
//
//	monitor := health.NewMonitor(health.DefaultMonitorConfig())
//	cb := circuitbreaker.New(circuitbreaker.ChatConfig("openai"))
//	err := retry.WithBackoff(ctx, retry.ChatConfig(), func() error {
//	    return cb.Run(func() error { return callProvider(ctx) })
//	})
//	monitor.RecordOutcome(entity.CapabilityChat, health.Success(elapsed))
package resilience
