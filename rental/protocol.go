package rental

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchbc/rent/common"
	"github.com/couchbc/rent/keys"
	"github.com/couchbc/rent/ledger"
)

// Topics brokering the per-rental interaction key exchange
const (
	TopicRequestInteractionKey = "request-interaction-key"
	TopicIssueInteractionKey   = "issue-interaction-key"
)

// ErrInvalidDayRange is returned when a request names an empty or inverted
// day range
var ErrInvalidDayRange = errors.New("invalid rental day range")

// interactionKeyRequest asks an owner to broker a one-time key pair for a
// rental identified only by the tenant's local id
type interactionKeyRequest struct {
	ID string `json:"id"`
	X  string `json:"x"`
	Y  string `json:"y"`
}

// interactionKeyIssuance answers a request with a freshly generated key pair
type interactionKeyIssuance struct {
	ID      string `json:"id"`
	X       string `json:"x"`
	Y       string `json:"y"`
	Address string `json:"address"`
}

// RegisterProcessors installs the topic handlers driving both sides of the
// interaction key exchange; call once at boot, before polling resumes
func (ctx *Context) RegisterProcessors() {
	ctx.Channel.RegisterTopicProcessor(TopicRequestInteractionKey, ctx.processInteractionKeyRequest)
	ctx.Channel.RegisterTopicProcessor(TopicIssueInteractionKey, ctx.processInteractionKeyIssuance)
}

// AddRequest starts a rental request: ensures the tenant has an encryption
// key pair, subscribes to issuance responses, publishes the encrypted
// interaction key request to the apartment owner and persists the request
// locally as pending. The ledger submission happens later, when the owner's
// issuance arrives.
func (ctx *Context) AddRequest(account *keys.Account, apartment *Apartment, fromDay, tillDay uint64, contact *Contact) (*Rental, error) {
	if account.Role == keys.RoleOwner || account.Role == keys.RoleInteraction {
		return nil, keys.ErrRoleConflict
	}

	fee := apartment.CalculateFee(fromDay, tillDay)
	if fee == 0 {
		return nil, ErrInvalidDayRange
	}

	nonce, err := common.RandomNonce()
	if err != nil {
		return nil, err
	}

	rental := &Rental{
		LocalID: common.RandomString(32),
		Tenant:  account.Address,
		Role:    keys.RoleTenant,
		Status:  StatusPending,
		Fee:     fee,
		Deposit: apartment.Deposit,
		Details: &Details{
			ApartmentID: apartment.ID,
			FromDay:     fromDay,
			TillDay:     tillDay,
			Contact:     contact,
			Nonce:       nonce,
		},
		Apartment: apartment,
	}

	pair, err := ctx.Keys.GetOrCreate(account)
	if err != nil {
		return nil, err
	}

	if _, err := ctx.Channel.Subscribe(TopicIssueInteractionKey, pair.Address); err != nil {
		return nil, err
	}

	ownerPublicKey, err := keys.PublicKeyFromXY(apartment.OwnerPublicKeyX, apartment.OwnerPublicKeyY)
	if err != nil {
		return nil, err
	}

	request, err := json.Marshal(&interactionKeyRequest{
		ID: rental.LocalID,
		X:  pair.X,
		Y:  pair.Y,
	})
	if err != nil {
		return nil, err
	}

	if err := ctx.Channel.Publish(string(request), TopicRequestInteractionKey, ownerPublicKey); err != nil {
		return nil, err
	}

	if err := ctx.savePendingRequest(rental); err != nil {
		return nil, err
	}
	ctx.saveContact(contact)

	common.Log.Debugf("added pending rental request %s for apartment %d", rental.LocalID, apartment.ID)
	return rental, nil
}

// processInteractionKeyRequest runs on the owner side: broker a fresh
// one-time key pair for the requesting tenant. The owner learns nothing about
// the rental terms here.
func (ctx *Context) processInteractionKeyRequest(message, topic string) {
	request := &interactionKeyRequest{}
	if err := json.Unmarshal([]byte(message), request); err != nil || request.ID == "" {
		common.Log.Warningf("dropped malformed message on topic %s", topic)
		return
	}

	tenantPublicKey, err := keys.PublicKeyFromXY(request.X, request.Y)
	if err != nil {
		common.Log.Warningf("dropped interaction key request %s with invalid public key; %s", request.ID, err.Error())
		return
	}

	pair, err := ctx.Keys.Generate()
	if err != nil {
		common.Log.Warningf("failed to generate interaction key for request %s; %s", request.ID, err.Error())
		return
	}

	issuance, err := json.Marshal(&interactionKeyIssuance{
		ID:      request.ID,
		X:       pair.X,
		Y:       pair.Y,
		Address: pair.Address,
	})
	if err != nil {
		common.Log.Warningf("failed to serialize interaction key issuance for request %s; %s", request.ID, err.Error())
		return
	}

	if err := ctx.Channel.Publish(string(issuance), TopicIssueInteractionKey, tenantPublicKey); err != nil {
		common.Log.Warningf("failed to publish interaction key issuance for request %s; %s", request.ID, err.Error())
		return
	}

	common.Log.Debugf("issued interaction key %s for request %s", pair.Address, request.ID)
}

// processInteractionKeyIssuance runs on the tenant side: an issuance matching
// a locally pending request triggers the ledger submission. Issuances for
// unknown local ids are expected traffic and dropped quietly.
func (ctx *Context) processInteractionKeyIssuance(message, topic string) {
	issuance := &interactionKeyIssuance{}
	if err := json.Unmarshal([]byte(message), issuance); err != nil || issuance.ID == "" {
		common.Log.Warningf("dropped malformed message on topic %s", topic)
		return
	}

	pending, err := ctx.loadPendingRequests()
	if err != nil {
		common.Log.Warningf("failed to load pending requests; %s", err.Error())
		return
	}

	for _, request := range pending {
		if request.LocalID != issuance.ID {
			continue
		}

		rental := &Rental{
			LocalID:               request.LocalID,
			Tenant:                request.Tenant,
			Role:                  keys.RoleTenant,
			Status:                StatusPending,
			Fee:                   request.Fee,
			Deposit:               request.Deposit,
			Details:               request.Details,
			InteractionPublicKeyX: issuance.X,
			InteractionPublicKeyY: issuance.Y,
			InteractionAddress:    issuance.Address,
		}

		if err := ctx.SendRequest(rental); err != nil {
			common.Log.Warningf("failed to submit rental request %s; %s", rental.LocalID, err.Error())
		}
		return
	}

	common.Log.Tracef("no pending request matches interaction key issuance %s", issuance.ID)
}

// SendRequest submits a pending request to the ledger: uploads the details
// encrypted for the interaction key, derives the details and commitment
// hashes and transfers fee+deposit. Whatever the outcome, the pending entry
// is removed; on failure the user must explicitly create a fresh request.
func (ctx *Context) SendRequest(rental *Rental) error {
	pair, err := ctx.Keys.ForAccount(rental.Tenant)
	if err != nil {
		return err
	}
	if pair == nil {
		return fmt.Errorf("no key pair associated with tenant account %s", rental.Tenant)
	}

	interactionPublicKey, err := keys.PublicKeyFromXY(rental.InteractionPublicKeyX, rental.InteractionPublicKeyY)
	if err != nil {
		return err
	}

	rental.DetailsContentHash, err = ctx.Store.Upload(rental.Details, interactionPublicKey)
	if err != nil {
		ctx.removePendingRequest(rental.LocalID)
		return err
	}

	rental.DetailsHash = rental.Details.Hash()
	rental.CommitmentHash = CommitmentHash(rental.Details.ApartmentID, rental.Details.Nonce)

	tx := &ledger.Transaction{
		From:   rental.Tenant,
		Method: "requestRental",
		Params: []interface{}{
			rental.Fee,
			rental.Deposit,
			rental.InteractionPublicKeyX,
			rental.InteractionPublicKeyY,
			rental.InteractionAddress,
			rental.CommitmentHash,
			rental.DetailsContentHash,
			rental.DetailsHash,
			pair.X,
			pair.Y,
		},
		ValueWei: ledger.FinneyToWei(rental.Fee + rental.Deposit),
	}

	if _, err := ctx.Ledger.EstimateGas(tx); err != nil {
		ctx.removePendingRequest(rental.LocalID)
		return err
	}
	if _, err := ctx.Ledger.Submit(tx); err != nil {
		ctx.removePendingRequest(rental.LocalID)
		return err
	}

	rental.Status = ledger.StatusRequested
	if err := ctx.removePendingRequest(rental.LocalID); err != nil {
		common.Log.Warningf("failed to remove pending request %s; %s", rental.LocalID, err.Error())
	}
	if err := ctx.saveLocalRentalData(rental.InteractionAddress, rental.Details); err != nil {
		common.Log.Warningf("failed to persist local rental data for %s; %s", rental.InteractionAddress, err.Error())
	}

	if err := ctx.Keys.Registry().MarkUsedAs(rental.Tenant, keys.RoleTenant); err != nil {
		return err
	}

	common.Log.Debugf("submitted rental request %s via interaction address %s", rental.LocalID, rental.InteractionAddress)
	return nil
}

// FetchAll assembles the rental list visible to the given accounts: locally
// pending requests, tenant rentals from the ledger, and owner-side rentals
// resolved through locally held interaction addresses
func (ctx *Context) FetchAll(accounts []*keys.Account) ([]*Rental, error) {
	rentals := make([]*Rental, 0)

	addresses := map[string]bool{}
	for _, account := range accounts {
		addresses[account.Address] = true
	}

	pending, err := ctx.loadPendingRequests()
	if err != nil {
		return nil, err
	}
	for _, request := range pending {
		if !addresses[request.Tenant] {
			continue
		}

		rental := &Rental{
			LocalID: request.LocalID,
			Tenant:  request.Tenant,
			Role:    keys.RoleTenant,
			Status:  StatusPending,
			Fee:     request.Fee,
			Deposit: request.Deposit,
			Details: request.Details,
		}
		if apartment, err := ctx.FindApartmentByID(request.Details.ApartmentID); err == nil {
			rental.Apartment = apartment
		}
		rentals = append(rentals, rental)
	}

	for _, account := range accounts {
		if account.Role != keys.RoleTenant {
			continue
		}
		tenantRentals, err := ctx.findByTenant(account.Address)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, tenantRentals...)
	}

	interactionAddresses, err := ctx.Keys.Addresses()
	if err != nil {
		return nil, err
	}
	for _, address := range interactionAddresses {
		rental, err := ctx.FindByInteractionAddress(address)
		if err != nil {
			return nil, err
		}
		if rental != nil {
			rentals = append(rentals, rental)
		}
	}

	return rentals, nil
}

func (ctx *Context) findByTenant(address string) ([]*Rental, error) {
	var count uint64
	if err := ctx.Ledger.Call(&count, "getNumTenantRentals", address); err != nil {
		return nil, err
	}

	rentals := make([]*Rental, 0, count)
	for i := uint64(0); i < count; i++ {
		record := &ledger.RentalRecord{}
		if err := ctx.Ledger.Call(record, "getTenantRental", address, i); err != nil {
			return nil, err
		}

		rental := rentalFromRecord(record, keys.RoleTenant)

		local, err := ctx.loadLocalRentalData(rental.InteractionAddress)
		if err != nil {
			return nil, err
		}
		if local != nil {
			rental.Details = local.Details
			if apartment, err := ctx.FindApartmentByID(local.Details.ApartmentID); err == nil {
				rental.Apartment = apartment
			}
		}

		rentals = append(rentals, rental)
	}
	return rentals, nil
}

// FindByInteractionAddress resolves the owner-side view of the rental bound
// to a locally held interaction key. Requests that fail decryption or any
// integrity check are excluded (nil, nil): they may originate from an
// unrelated or malicious party, which is expected traffic on a public ledger.
func (ctx *Context) FindByInteractionAddress(address string) (*Rental, error) {
	var hasRental bool
	if err := ctx.Ledger.Call(&hasRental, "hasInteractionAddressRental", address); err != nil {
		return nil, err
	}
	if !hasRental {
		return nil, nil
	}

	record := &ledger.RentalRecord{}
	if err := ctx.Ledger.Call(record, "getInteractionAddressRental", address); err != nil {
		return nil, err
	}

	rental := rentalFromRecord(record, keys.RoleOwner)

	pair, err := ctx.Keys.Resolve(address)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		common.Log.Warningf("excluded rental %d: no local key material for interaction address %s", record.ID, address)
		return nil, nil
	}

	priv, err := pair.PrivateKeyBytes()
	if err != nil {
		return nil, err
	}

	details := &Details{}
	if err := ctx.Store.Download(record.DetailsContentHash, priv, details); err != nil {
		common.Log.Warningf("excluded rental %d: details could not be resolved; %s", record.ID, err.Error())
		return nil, nil
	}
	rental.Details = details

	apartment, err := ctx.FindApartmentByID(details.ApartmentID)
	if err != nil {
		common.Log.Warningf("excluded rental %d: referenced apartment could not be resolved; %s", record.ID, err.Error())
		return nil, nil
	}
	rental.Apartment = apartment

	if rental.Status == ledger.StatusRequested && !ctx.verifyRequest(rental) {
		return nil, nil
	}

	return rental, nil
}

// verifyRequest recomputes every hash and term from the decrypted details
// and the referenced apartment; any mismatch marks the request as spoofed or
// tampered and excludes it from the actionable list
func (ctx *Context) verifyRequest(rental *Rental) bool {
	detailsHash := rental.Details.Hash()
	if detailsHash != rental.DetailsHash {
		common.Log.Warningf("excluded rental %d: details hash mismatch: %s (supplied) vs %s (recomputed)", rental.ID, rental.DetailsHash, detailsHash)
		return false
	}

	fee := rental.Apartment.CalculateFee(rental.Details.FromDay, rental.Details.TillDay)
	if fee != rental.Fee {
		common.Log.Warningf("excluded rental %d: fee mismatch: %d (supplied) vs %d (recomputed)", rental.ID, rental.Fee, fee)
		return false
	}
	if rental.Deposit != rental.Apartment.Deposit {
		common.Log.Warningf("excluded rental %d: deposit mismatch: %d (supplied) vs %d (apartment)", rental.ID, rental.Deposit, rental.Apartment.Deposit)
		return false
	}

	commitmentHash := CommitmentHash(rental.Details.ApartmentID, rental.Details.Nonce)
	if commitmentHash != rental.CommitmentHash {
		common.Log.Warningf("excluded rental %d: commitment hash mismatch: %s (supplied) vs %s (recomputed)", rental.ID, rental.CommitmentHash, commitmentHash)
		return false
	}

	return true
}
