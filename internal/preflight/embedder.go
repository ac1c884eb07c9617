package preflight

import (
	"context"
	"time"
)

// availabilityProbe is the slice of embedding.Provider this package depends
// on, kept narrow so preflight doesn't import internal/embedding directly
// (avoids a dependency cycle risk and keeps this package testable with a
// trivial stub).
type availabilityProbe interface {
	Available(ctx context.Context) bool
}

// CheckEmbedder probes whether the configured embedding provider is
// reachable. A nil provider (no provider configured, or --no-embeddings)
// is reported as a pass, not a warning: there is nothing to reach. The
// static provider is non-nil and goes through the Available probe.
func (c *Checker) CheckEmbedder(ctx context.Context, provider availabilityProbe) CheckResult {
	result := CheckResult{Name: "embedder", Required: false}

	if provider == nil {
		result.Status = StatusPass
		result.Message = "no embedding provider configured, semantic search disabled"
		return result
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if provider.Available(probeCtx) {
		result.Status = StatusPass
		result.Message = "embedding provider reachable"
		return result
	}

	result.Status = StatusWarn
	result.Message = "embedding provider unreachable, semantic search will fail until it recovers"
	return result
}
