//go:build unit
// +build unit

package localstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryKV(t *testing.T) {
	store := NewInMemory()

	value, err := store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, store.Set("key", "value"))
	value, err = store.Get("key")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "value", *value)

	require.NoError(t, store.Set("key", "updated"))
	value, err = store.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "updated", *value)

	require.NoError(t, store.Delete("key"))
	value, err = store.Get("key")
	require.NoError(t, err)
	assert.Nil(t, value)

	// deleting an absent key is a no-op
	require.NoError(t, store.Delete("key"))
}
