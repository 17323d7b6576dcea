package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LoadProvider(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.LoadProvider(context.Background(), "null", nil))
	p, err := r.Get("null")
	require.NoError(t, err)
	require.NotNil(t, p)

	// Loading again is a no-op and keeps the same instance.
	require.NoError(t, r.LoadProvider(context.Background(), "null", map[string]string{"ignored": "x"}))
	p2, err := r.Get("null")
	require.NoError(t, err)
	assert.Same(t, p, p2)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry()

	err := r.LoadProvider(context.Background(), "azure", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")

	_, err = r.Get("azure")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not loaded")
}
