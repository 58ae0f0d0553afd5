package rental

import (
	"encoding/json"
	"fmt"

	"github.com/couchbc/rent/common"
)

const pendingRequestsKey = "pendingRentalRequests"
const rentalsDataKey = "rentalsData"

const userNameKey = "userName"
const userPhoneKey = "userPhone"
const userEmailKey = "userEmail"

// pendingRequest is the durable form of a local-only rental request; kept
// until the ledger submission succeeds or fails
type pendingRequest struct {
	LocalID string   `json:"localId"`
	Tenant  string   `json:"tenant"`
	Fee     uint64   `json:"fee"`
	Deposit uint64   `json:"deposit"`
	Details *Details `json:"details"`
}

// localRentalData is the tenant-side off-ledger record keyed by interaction
// address; it restores the decrypted details (and the commitment nonce they
// carry) after a reload
type localRentalData struct {
	Details *Details `json:"details"`
}

func (ctx *Context) savePendingRequest(rental *Rental) error {
	pending, err := ctx.loadPendingRequests()
	if err != nil {
		return err
	}

	pending = append(pending, &pendingRequest{
		LocalID: rental.LocalID,
		Tenant:  rental.Tenant,
		Fee:     rental.Fee,
		Deposit: rental.Deposit,
		Details: rental.Details,
	})

	buf, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	return ctx.Local.Set(pendingRequestsKey, string(buf))
}

func (ctx *Context) removePendingRequest(localID string) error {
	pending, err := ctx.loadPendingRequests()
	if err != nil {
		return err
	}

	filtered := make([]*pendingRequest, 0, len(pending))
	for _, request := range pending {
		if request.LocalID != localID {
			filtered = append(filtered, request)
		}
	}

	buf, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	return ctx.Local.Set(pendingRequestsKey, string(buf))
}

func (ctx *Context) loadPendingRequests() ([]*pendingRequest, error) {
	value, err := ctx.Local.Get(pendingRequestsKey)
	if err != nil {
		return nil, err
	}

	pending := make([]*pendingRequest, 0)
	if value != nil {
		if err := json.Unmarshal([]byte(*value), &pending); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending rental requests; %s", err.Error())
		}
	}
	return pending, nil
}

func (ctx *Context) saveLocalRentalData(interactionAddress string, details *Details) error {
	all, err := ctx.loadAllLocalRentalData()
	if err != nil {
		return err
	}

	all[interactionAddress] = &localRentalData{Details: details}

	buf, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return ctx.Local.Set(rentalsDataKey, string(buf))
}

func (ctx *Context) loadLocalRentalData(interactionAddress string) (*localRentalData, error) {
	all, err := ctx.loadAllLocalRentalData()
	if err != nil {
		return nil, err
	}
	return all[interactionAddress], nil
}

func (ctx *Context) loadAllLocalRentalData() (map[string]*localRentalData, error) {
	value, err := ctx.Local.Get(rentalsDataKey)
	if err != nil {
		return nil, err
	}

	all := map[string]*localRentalData{}
	if value != nil {
		if err := json.Unmarshal([]byte(*value), &all); err != nil {
			return nil, fmt.Errorf("failed to unmarshal local rental data; %s", err.Error())
		}
	}
	return all, nil
}

// saveContact persists the contact data for autofill of later requests
func (ctx *Context) saveContact(contact *Contact) {
	if contact == nil {
		return
	}
	for key, value := range map[string]string{
		userNameKey:  contact.Name,
		userPhoneKey: contact.Phone,
		userEmailKey: contact.Email,
	} {
		if err := ctx.Local.Set(key, value); err != nil {
			common.Log.Warningf("failed to persist contact field %s; %s", key, err.Error())
		}
	}
}

// SavedContact returns the contact data persisted by previous requests
func (ctx *Context) SavedContact() *Contact {
	contact := &Contact{}
	if name, _ := ctx.Local.Get(userNameKey); name != nil {
		contact.Name = *name
	}
	if phone, _ := ctx.Local.Get(userPhoneKey); phone != nil {
		contact.Phone = *phone
	}
	if email, _ := ctx.Local.Get(userEmailKey); email != nil {
		contact.Email = *email
	}
	return contact
}
