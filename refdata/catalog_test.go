package refdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCatalog struct {
	loads int
	defs  map[string]AttributeDef
}

func (c *countingCatalog) AttributeByID(_ context.Context, id string) (AttributeDef, error) {
	c.loads++
	if def, ok := c.defs[id]; ok {
		return def, nil
	}
	return AttributeDef{}, ErrAttributeUnknown
}

func TestMemoryCatalog_GetOrLoad(t *testing.T) {
	source := &countingCatalog{defs: map[string]AttributeDef{
		"A1": {ID: "A1", Code: "COLOR", MultiValued: true, MaxValues: 10},
	}}
	cache := NewMemoryCatalog(source)

	def, err := cache.AttributeByID(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "COLOR", def.Code)

	_, err = cache.AttributeByID(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, 1, source.loads, "second lookup should be served from the cache")
}

func TestMemoryCatalog_UnknownPassedThrough(t *testing.T) {
	source := &countingCatalog{defs: map[string]AttributeDef{}}
	cache := NewMemoryCatalog(source)

	_, err := cache.AttributeByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAttributeUnknown)

	// Misses are not cached.
	_, _ = cache.AttributeByID(context.Background(), "missing")
	assert.Equal(t, 2, source.loads)
}

func TestMemoryCatalog_FixtureWithoutSource(t *testing.T) {
	cache := NewMemoryCatalog(nil, AttributeDef{ID: "A2", Code: "FABRIC"})

	def, err := cache.AttributeByID(context.Background(), "A2")
	require.NoError(t, err)
	assert.Equal(t, "FABRIC", def.Code)

	_, err = cache.AttributeByID(context.Background(), "other")
	assert.ErrorIs(t, err, ErrAttributeUnknown)
}
