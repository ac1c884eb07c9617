package preflight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubProbe struct{ available bool }

func (s stubProbe) Available(ctx context.Context) bool { return s.available }

func TestChecker_CheckEmbedder_NilProviderPasses(t *testing.T) {
	checker := New()
	result := checker.CheckEmbedder(context.Background(), nil)

	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "embedder", result.Name)
	assert.False(t, result.Required)
}

func TestChecker_CheckEmbedder_ReachableProviderPasses(t *testing.T) {
	checker := New()
	result := checker.CheckEmbedder(context.Background(), stubProbe{available: true})

	assert.Equal(t, StatusPass, result.Status)
}

func TestChecker_CheckEmbedder_UnreachableProviderWarns(t *testing.T) {
	checker := New()
	result := checker.CheckEmbedder(context.Background(), stubProbe{available: false})

	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.Required, "embedder reachability should never be a critical failure")
}
