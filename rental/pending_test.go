//go:build unit
// +build unit

package rental

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbc/rent/localstore"
)

func newPendingTestContext() *Context {
	return &Context{Local: localstore.NewInMemory()}
}

func TestPendingRequestLifecycle(t *testing.T) {
	ctx := newPendingTestContext()

	require.NoError(t, ctx.savePendingRequest(&Rental{
		LocalID: "req-1",
		Tenant:  "0xtenant",
		Fee:     300,
		Deposit: 500,
		Details: &Details{ApartmentID: 1, FromDay: 18300, TillDay: 18303, Nonce: "0xabc"},
	}))
	require.NoError(t, ctx.savePendingRequest(&Rental{
		LocalID: "req-2",
		Tenant:  "0xtenant",
		Fee:     100,
		Deposit: 200,
		Details: &Details{ApartmentID: 2, FromDay: 18310, TillDay: 18311, Nonce: "0xdef"},
	}))

	pending, err := ctx.loadPendingRequests()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "req-1", pending[0].LocalID)
	assert.Equal(t, uint64(300), pending[0].Fee)
	assert.Equal(t, "0xabc", pending[0].Details.Nonce)

	require.NoError(t, ctx.removePendingRequest("req-1"))
	pending, err = ctx.loadPendingRequests()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "req-2", pending[0].LocalID)

	// removing an unknown local id leaves the rest untouched
	require.NoError(t, ctx.removePendingRequest("req-unknown"))
	pending, err = ctx.loadPendingRequests()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestLocalRentalData(t *testing.T) {
	ctx := newPendingTestContext()

	details := &Details{ApartmentID: 1, FromDay: 18300, TillDay: 18303, Nonce: "0xabc"}
	require.NoError(t, ctx.saveLocalRentalData("0xinteraction", details))

	restored, err := ctx.loadLocalRentalData("0xinteraction")
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, details, restored.Details)

	missing, err := ctx.loadLocalRentalData("0xother")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSavedContactAutofill(t *testing.T) {
	ctx := newPendingTestContext()

	assert.Equal(t, &Contact{}, ctx.SavedContact())

	ctx.saveContact(&Contact{
		Name:  "Ada",
		Phone: "+4930123456",
		Email: "ada@example.com",
	})

	contact := ctx.SavedContact()
	assert.Equal(t, "Ada", contact.Name)
	assert.Equal(t, "+4930123456", contact.Phone)
	assert.Equal(t, "ada@example.com", contact.Email)
}
