// Package carrier implements the outbound send side of spec.md §4.1's
// Sending state: one HTTP-based sender per channel, dispatched through
// internal/usecase/engagement.Carrier.
package carrier

import (
	"net/http"
	"time"

	"alfred-ai/internal/adapter/llm"
)

// newPooledClient builds an *http.Client sized for carrier traffic: a
// handful of hosts (the email/SMS provider's API), high concurrency across
// leads, and bounded per-request latency. Reuses the teacher's
// adapter/llm/circuitbreaker.go pool-sizing conventions rather than
// hand-rolling a second transport constructor.
func newPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: llm.NewPooledTransport(10*time.Second, timeout, llm.PooledTransportConfig{
			MaxIdleConnsPerHost: 10,
		}),
		Timeout: timeout,
	}
}
