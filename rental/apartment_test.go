//go:build unit
// +build unit

package rental

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbc/rent/keys"
)

func TestAddApartmentCommitsOwnerRole(t *testing.T) {
	f := newFixture(t)
	f.listApartment(t)

	assert.Equal(t, keys.RoleOwner, f.owner.account.Role)

	// the owner account can no longer act as a tenant
	listed, err := f.tenant.ctx.CityApartments("Germany", "Berlin")
	require.NoError(t, err)
	_, err = f.owner.ctx.AddRequest(f.owner.account, listed[0], 18300, 18303, &Contact{Name: "Bert"})
	assert.Equal(t, keys.ErrRoleConflict, err)
}

func TestUserApartments(t *testing.T) {
	f := newFixture(t)
	f.listApartment(t)

	apartments, err := f.owner.ctx.UserApartments(f.owner.account.Address)
	require.NoError(t, err)
	require.Len(t, apartments, 1)
	assert.Equal(t, "Altbau flat near the canal", apartments[0].Details.Title)
	assert.Equal(t, uint64(100), apartments[0].PricePerNight)
}

func TestDisableApartmentHidesCityListing(t *testing.T) {
	f := newFixture(t)
	apartment := f.listApartment(t)

	require.NoError(t, f.owner.ctx.DisableApartment(f.owner.account, apartment.ID))

	listed, err := f.tenant.ctx.CityApartments("Germany", "Berlin")
	require.NoError(t, err)
	assert.Empty(t, listed)

	// the listing stays resolvable by id for rentals already in flight
	resolved, err := f.owner.ctx.FindApartmentByID(apartment.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Disabled)
}
