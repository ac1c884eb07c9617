package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCache_EmbedQuery_CachesRepeatedText(t *testing.T) {
	p := newFakeProvider(Capabilities{Name: "fake", Model: "m1", MaxBatch: 10})
	o := NewOrchestrator(p, Config{})
	q := NewQueryCache(o, 0)

	v1, err := q.EmbedQuery(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := q.EmbedQuery(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, p.callCount) // second call served from cache
}

func TestQueryCache_EmbedQuery_DistinctTextsMissCache(t *testing.T) {
	p := newFakeProvider(Capabilities{Name: "fake", Model: "m1", MaxBatch: 10})
	o := NewOrchestrator(p, Config{})
	q := NewQueryCache(o, 0)

	_, err := q.EmbedQuery(context.Background(), "alpha")
	require.NoError(t, err)
	_, err = q.EmbedQuery(context.Background(), "beta")
	require.NoError(t, err)

	assert.Equal(t, 2, p.callCount)
}

func TestQueryCache_Key_VariesByProviderAndModel(t *testing.T) {
	p1 := newFakeProvider(Capabilities{Name: "one", Model: "m"})
	p2 := newFakeProvider(Capabilities{Name: "two", Model: "m"})
	q1 := NewQueryCache(NewOrchestrator(p1, Config{}), 0)
	q2 := NewQueryCache(NewOrchestrator(p2, Config{}), 0)

	assert.NotEqual(t, q1.key("same text"), q2.key("same text"))
}

func TestQueryCache_Capabilities_PassesThrough(t *testing.T) {
	caps := Capabilities{Name: "fake", Dims: 5}
	p := newFakeProvider(caps)
	q := NewQueryCache(NewOrchestrator(p, Config{}), 0)
	assert.Equal(t, caps, q.Capabilities())
}

func TestNewQueryCache_DefaultsSizeWhenZero(t *testing.T) {
	p := newFakeProvider(Capabilities{})
	q := NewQueryCache(NewOrchestrator(p, Config{}), 0)
	assert.NotNil(t, q.cache)
}
