package rental

import (
	"fmt"

	"github.com/couchbc/rent/common"
)

// TenantReview is the owner's public review of a tenant, stored off-ledger
// and referenced by the settlement transaction
type TenantReview struct {
	RentalID uint64 `json:"rentalId"`
	Score    uint   `json:"score"`
	Text     string `json:"text"`
}

// DeductionClaim justifies a deposit deduction; stored encrypted so only the
// tenant and a neutral mediator can read the reason
type DeductionClaim struct {
	RentalID uint64 `json:"rentalId"`
	Amount   uint64 `json:"amount"`
	Reason   string `json:"reason"`
}

// LoadTenantReview resolves the review published with a settled rental and
// checks it references the rental it settles
func (ctx *Context) LoadTenantReview(rental *Rental) (*TenantReview, error) {
	if rental.ReviewContentHash == "" {
		return nil, nil
	}

	review := &TenantReview{}
	if err := ctx.Store.Download(rental.ReviewContentHash, nil, review); err != nil {
		return nil, err
	}

	if review.RentalID != rental.ID {
		common.Log.Warningf("review for rental %d references rental %d", rental.ID, review.RentalID)
		return nil, fmt.Errorf("review does not reference rental %d", rental.ID)
	}
	return review, nil
}

// LoadDeductionClaim resolves and decrypts the deduction claim of a settled
// rental with the given private key (tenant's key pair or the mediator's)
func (ctx *Context) LoadDeductionClaim(rental *Rental, privateKey []byte) (*DeductionClaim, error) {
	if rental.DeductionContentHash == "" {
		return nil, nil
	}

	claim := &DeductionClaim{}
	if err := ctx.Store.Download(rental.DeductionContentHash, privateKey, claim); err != nil {
		return nil, err
	}

	if claim.RentalID != rental.ID || claim.Amount != rental.DepositDeduction {
		common.Log.Warningf("deduction claim for rental %d does not match the ledger record", rental.ID)
		return nil, fmt.Errorf("deduction claim does not match rental %d", rental.ID)
	}
	return claim, nil
}
