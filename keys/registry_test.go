//go:build unit
// +build unit

package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	registry := NewRegistry()

	account := registry.Register("0xaaa", RoleUnknown)
	require.NotNil(t, account)
	assert.Equal(t, RoleUnknown, account.Role)

	again := registry.Register("0xaaa", RoleOwner)
	assert.Same(t, account, again)
	assert.Equal(t, RoleUnknown, again.Role)
}

func TestRoleStickiness(t *testing.T) {
	registry := NewRegistry()
	registry.Register("0xaaa", RoleUnknown)

	require.NoError(t, registry.MarkUsedAs("0xaaa", RoleOwner))
	assert.Equal(t, RoleOwner, registry.Get("0xaaa").Role)

	// marking the committed role again is a no-op
	require.NoError(t, registry.MarkUsedAs("0xaaa", RoleOwner))

	// an owner can never become a tenant
	assert.Equal(t, ErrRoleConflict, registry.MarkUsedAs("0xaaa", RoleTenant))
	assert.Equal(t, RoleOwner, registry.Get("0xaaa").Role)
}

func TestMarkUsedAsRegistersUnknownAddress(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.MarkUsedAs("0xbbb", RoleInteraction))
	account := registry.Get("0xbbb")
	require.NotNil(t, account)
	assert.Equal(t, RoleInteraction, account.Role)
}
