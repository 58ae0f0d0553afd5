package rental

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchbc/rent/common"
	"github.com/couchbc/rent/keys"
	"github.com/couchbc/rent/ledger"
)

// StatusPending marks a request that exists only locally; every other status
// is assigned by the ledger
const StatusPending = "pending"

// Contact is the personal contact data disclosed inside encrypted blobs; it
// never appears on the ledger in clear
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Details are the rental terms uploaded encrypted for the interaction key.
// The commitment nonce travels inside the details so the owner can recompute
// the commitment hash after decryption. Serialization order is fixed; two
// equal details values always hash identically.
type Details struct {
	ApartmentID uint64   `json:"apartmentId"`
	FromDay     uint64   `json:"fromDay"`
	TillDay     uint64   `json:"tillDay"`
	Contact     *Contact `json:"contact"`
	Nonce       string   `json:"nonce"`
}

// Hash derives the keccak256 details hash recorded on the ledger
func (d *Details) Hash() string {
	buf, _ := json.Marshal(d)
	return common.Keccak256Hex(buf)
}

// CommitmentHash binds the apartment id to a secret nonce; verifiable once
// the nonce is revealed, not guessable from the ledger beforehand
func CommitmentHash(apartmentID uint64, nonce string) string {
	return common.Keccak256Hex([]byte(fmt.Sprintf("%d-%s", apartmentID, nonce)))
}

// UnixDay converts a timestamp to the whole-day number used in rental date
// ranges
func UnixDay(t time.Time) uint64 {
	return uint64(t.Unix() / 86400)
}

// Rental is a rental request as seen by one party; Role reflects which side
// of the request the local accounts are on
type Rental struct {
	ID      uint64    `json:"id,omitempty"`
	LocalID string    `json:"localId,omitempty"`
	Tenant  string    `json:"tenant,omitempty"`
	Role    keys.Role `json:"role"`
	Status  string    `json:"status"`

	Apartment *Apartment `json:"apartment,omitempty"`
	Details   *Details   `json:"details,omitempty"`

	Fee     uint64 `json:"fee"`
	Deposit uint64 `json:"deposit"`

	TenantPublicKeyX      string `json:"tenantPublicKeyX,omitempty"`
	TenantPublicKeyY      string `json:"tenantPublicKeyY,omitempty"`
	InteractionPublicKeyX string `json:"interactionPublicKeyX,omitempty"`
	InteractionPublicKeyY string `json:"interactionPublicKeyY,omitempty"`
	InteractionAddress    string `json:"interactionAddress,omitempty"`

	CommitmentHash     string `json:"commitmentHash,omitempty"`
	DetailsContentHash string `json:"detailsContentHash,omitempty"`
	DetailsHash        string `json:"detailsHash,omitempty"`

	OwnerDataHash        string `json:"ownerDataHash,omitempty"`
	ReviewContentHash    string `json:"reviewContentHash,omitempty"`
	DepositDeduction     uint64 `json:"depositDeduction,omitempty"`
	DeductionContentHash string `json:"deductionContentHash,omitempty"`
}

func rentalFromRecord(record *ledger.RentalRecord, role keys.Role) *Rental {
	return &Rental{
		ID:                    record.ID,
		Tenant:                record.Tenant,
		Role:                  role,
		Status:                record.Status,
		Fee:                   record.Fee,
		Deposit:               record.Deposit,
		TenantPublicKeyX:      record.TenantPublicKeyX,
		TenantPublicKeyY:      record.TenantPublicKeyY,
		InteractionPublicKeyX: record.InteractionPublicKeyX,
		InteractionPublicKeyY: record.InteractionPublicKeyY,
		InteractionAddress:    record.InteractionAddress,
		CommitmentHash:        record.CommitmentHash,
		DetailsContentHash:    record.DetailsContentHash,
		DetailsHash:           record.DetailsHash,
		OwnerDataHash:         record.OwnerDataHash,
		ReviewContentHash:     record.ReviewContentHash,
		DepositDeduction:      record.DepositDeduction,
		DeductionContentHash:  record.DeductionContentHash,
	}
}
