package rental

import (
	"errors"
	"fmt"

	"github.com/couchbc/rent/common"
	"github.com/couchbc/rent/crypto"
	"github.com/couchbc/rent/keys"
	"github.com/couchbc/rent/ledger"
)

// ErrApartmentUnavailable is returned when accepting a request whose day
// range overlaps an already accepted rental of the same apartment
var ErrApartmentUnavailable = errors.New("apartment is already rented for the requested days")

// Accept confirms a verified rental request. The owner's contact data is
// uploaded encrypted for the tenant, and the acceptance is signed with the
// interaction private key: this proves control of the one-time key without
// revealing the owner's main identity before acceptance. The interaction
// address is consumed on success.
func (ctx *Context) Accept(account *keys.Account, rental *Rental, ownerContact *Contact) error {
	pair, priv, err := ctx.interactionKey(rental)
	if err != nil {
		return err
	}

	if rental.Details != nil {
		ranges, err := ctx.RentedTimeRanges(rental.Details.ApartmentID)
		if err != nil {
			return err
		}
		for _, rented := range ranges {
			if rented.overlaps(rental.Details.FromDay, rental.Details.TillDay) {
				return ErrApartmentUnavailable
			}
		}
	}

	tenantPublicKey, err := keys.PublicKeyFromXY(rental.TenantPublicKeyX, rental.TenantPublicKeyY)
	if err != nil {
		return err
	}

	ownerDataHash, err := ctx.Store.Upload(ownerContact, tenantPublicKey)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("accept:%d-%s-%s", rental.ID, ownerDataHash, account.Address)
	signature, err := crypto.SignMessage(message, priv)
	if err != nil {
		return err
	}

	tx := &ledger.Transaction{
		From:   account.Address,
		Method: "acceptRental",
		Params: []interface{}{rental.ID, ownerDataHash, signature},
	}

	if _, err := ctx.Ledger.EstimateGas(tx); err != nil {
		return err
	}
	if _, err := ctx.Ledger.Submit(tx); err != nil {
		return err
	}

	rental.Status = ledger.StatusAccepted
	rental.OwnerDataHash = ownerDataHash

	if err := ctx.Keys.Registry().MarkUsedAs(pair.Address, keys.RoleInteraction); err != nil {
		return err
	}

	common.Log.Debugf("accepted rental %d via interaction address %s", rental.ID, pair.Address)
	return nil
}

// Refuse declines a rental request with a signature from the interaction
// key; fee and deposit return to the tenant on the ledger
func (ctx *Context) Refuse(account *keys.Account, rental *Rental) error {
	pair, priv, err := ctx.interactionKey(rental)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("refuse:%d", rental.ID)
	signature, err := crypto.SignMessage(message, priv)
	if err != nil {
		return err
	}

	tx := &ledger.Transaction{
		From:   account.Address,
		Method: "refuseRental",
		Params: []interface{}{rental.ID, signature},
	}

	if _, err := ctx.Ledger.EstimateGas(tx); err != nil {
		return err
	}
	if _, err := ctx.Ledger.Submit(tx); err != nil {
		return err
	}

	rental.Status = ledger.StatusRefused

	if err := ctx.Keys.Registry().MarkUsedAs(pair.Address, keys.RoleInteraction); err != nil {
		return err
	}

	common.Log.Debugf("refused rental %d via interaction address %s", rental.ID, pair.Address)
	return nil
}

// Withdraw cancels a requested rental before acceptance; signed by the
// tenant's main account, not the interaction key
func (ctx *Context) Withdraw(account *keys.Account, rental *Rental) error {
	tx := &ledger.Transaction{
		From:   account.Address,
		Method: "withdrawRentalRequest",
		Params: []interface{}{rental.ID},
	}

	if _, err := ctx.Ledger.EstimateGas(tx); err != nil {
		return err
	}
	if _, err := ctx.Ledger.Submit(tx); err != nil {
		return err
	}

	rental.Status = ledger.StatusWithdrawn

	common.Log.Debugf("withdrew rental request %d", rental.ID)
	return nil
}

// Settle finalizes an accepted rental: the owner publishes a tenant review
// and, when claiming a deposit deduction, a claim blob readable by both the
// tenant and a neutral mediator. The ledger pays out fee and deduction to the
// interaction address and returns the rest of the deposit to the tenant.
func (ctx *Context) Settle(account *keys.Account, rental *Rental, review *TenantReview, claim *DeductionClaim, mediatorPublicKey []byte) error {
	_, priv, err := ctx.interactionKey(rental)
	if err != nil {
		return err
	}

	review.RentalID = rental.ID
	reviewContentHash, err := ctx.Store.Upload(review)
	if err != nil {
		return err
	}

	deduction := uint64(0)
	deductionContentHash := ""
	if claim != nil && claim.Amount > 0 {
		tenantPublicKey, err := keys.PublicKeyFromXY(rental.TenantPublicKeyX, rental.TenantPublicKeyY)
		if err != nil {
			return err
		}

		claim.RentalID = rental.ID
		deductionContentHash, err = ctx.Store.Upload(claim, tenantPublicKey, mediatorPublicKey)
		if err != nil {
			return err
		}
		deduction = claim.Amount
	}

	message := fmt.Sprintf("end:%d-%s-%d", rental.ID, reviewContentHash, deduction)
	signature, err := crypto.SignMessage(message, priv)
	if err != nil {
		return err
	}

	tx := &ledger.Transaction{
		From:   account.Address,
		Method: "endRental",
		Params: []interface{}{rental.ID, reviewContentHash, deduction, deductionContentHash, signature},
	}

	if _, err := ctx.Ledger.EstimateGas(tx); err != nil {
		return err
	}
	if _, err := ctx.Ledger.Submit(tx); err != nil {
		return err
	}

	rental.Status = ledger.StatusSettled
	rental.ReviewContentHash = reviewContentHash
	rental.DepositDeduction = deduction
	rental.DeductionContentHash = deductionContentHash

	common.Log.Debugf("settled rental %d with deduction %d", rental.ID, deduction)
	return nil
}

// interactionKey resolves the private key material for the rental's
// interaction address
func (ctx *Context) interactionKey(rental *Rental) (*keys.KeyPair, []byte, error) {
	pair, err := ctx.Keys.Resolve(rental.InteractionAddress)
	if err != nil {
		return nil, nil, err
	}
	if pair == nil {
		return nil, nil, fmt.Errorf("no local key material for interaction address %s", rental.InteractionAddress)
	}

	priv, err := pair.PrivateKeyBytes()
	if err != nil {
		return nil, nil, err
	}
	return pair, priv, nil
}
