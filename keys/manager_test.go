//go:build unit
// +build unit

package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbc/rent/localstore"
)

func newTestManager() *Manager {
	return NewManager(NewRegistry(), localstore.NewInMemory())
}

func TestGenerateAndResolve(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.Generate()
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Len(t, pair.Address, 42)

	resolved, err := manager.Resolve(pair.Address)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, pair.Private, resolved.Private)
	assert.Equal(t, pair.X, resolved.X)
	assert.Equal(t, pair.Y, resolved.Y)

	unknown, err := manager.Resolve("0x0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestGenerateIndexesAddresses(t *testing.T) {
	manager := newTestManager()

	first, err := manager.Generate()
	require.NoError(t, err)
	second, err := manager.Generate()
	require.NoError(t, err)

	addresses, err := manager.Addresses()
	require.NoError(t, err)
	assert.Equal(t, []string{first.Address, second.Address}, addresses)
}

func TestGetOrCreateAssociatesKeyPair(t *testing.T) {
	manager := newTestManager()
	account := manager.Registry().Register("0xaaa", RoleUnknown)

	pair, err := manager.GetOrCreate(account)
	require.NoError(t, err)
	require.NotNil(t, pair)

	// a second call returns the same association, never a silent regeneration
	again, err := manager.GetOrCreate(account)
	require.NoError(t, err)
	assert.Equal(t, pair.Address, again.Address)

	resolved, err := manager.ForAccount("0xaaa")
	require.NoError(t, err)
	assert.Equal(t, pair.Address, resolved.Address)
}

func TestGetOrCreateRejectsCommittedRoleWithoutKey(t *testing.T) {
	manager := newTestManager()
	account := manager.Registry().Register("0xaaa", RoleOwner)

	_, err := manager.GetOrCreate(account)
	assert.Equal(t, ErrRoleConflict, err)
}

func TestPublicKeyFromXYPadsCoordinates(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.Generate()
	require.NoError(t, err)

	buf, err := PublicKeyFromXY(pair.X, pair.Y)
	require.NoError(t, err)
	require.Len(t, buf, 65)
	assert.Equal(t, byte(0x04), buf[0])
}
