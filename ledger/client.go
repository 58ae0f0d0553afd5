package ledger

import (
	"errors"
	"math/big"
)

// ErrSubmissionFailed is returned when gas estimation or transaction
// submission is rejected; callers roll back any optimistic local state
var ErrSubmissionFailed = errors.New("ledger submission failed")

// Transaction is a state-changing ledger invocation
type Transaction struct {
	From     string        `json:"from"`
	Method   string        `json:"method"`
	Params   []interface{} `json:"params"`
	ValueWei *big.Int      `json:"value"`
}

// Receipt confirms an executed transaction
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	Success         bool   `json:"success"`
}

// Event is an emitted ledger event
type Event struct {
	Name   string                 `json:"name"`
	Values map[string]interface{} `json:"values"`
}

// Handler consumes an emitted event
type Handler func(event *Event)

// Client is the append-only ledger consumed by the protocol; reads resolve
// committed state, writes are gas-metered and atomic
type Client interface {
	EstimateGas(tx *Transaction) (uint64, error)
	Submit(tx *Transaction) (*Receipt, error)
	Call(result interface{}, method string, params ...interface{}) error
	On(event string, handler Handler)
	Once(event string, handler Handler)
}

// ApartmentRecord is the on-ledger representation of a listed apartment
type ApartmentRecord struct {
	ID              uint64 `json:"id"`
	Owner           string `json:"owner"`
	OwnerPublicKeyX string `json:"ownerPublicKeyX"`
	OwnerPublicKeyY string `json:"ownerPublicKeyY"`
	ContentHash     string `json:"contentHash"`
	CityHash        string `json:"cityHash"`
	PricePerNight   uint64 `json:"pricePerNight"`
	Deposit         uint64 `json:"deposit"`
	Disabled        bool   `json:"disabled"`
}

// RentalRecord is the on-ledger representation of a rental request; details
// stay off-ledger behind DetailsContentHash
type RentalRecord struct {
	ID                    uint64 `json:"id"`
	Tenant                string `json:"tenant"`
	TenantPublicKeyX      string `json:"tenantPublicKeyX"`
	TenantPublicKeyY      string `json:"tenantPublicKeyY"`
	InteractionPublicKeyX string `json:"interactionPublicKeyX"`
	InteractionPublicKeyY string `json:"interactionPublicKeyY"`
	InteractionAddress    string `json:"interactionAddress"`
	CommitmentHash        string `json:"commitmentHash"`
	DetailsContentHash    string `json:"detailsContentHash"`
	DetailsHash           string `json:"detailsHash"`
	Fee                   uint64 `json:"fee"`
	Deposit               uint64 `json:"deposit"`
	Status                string `json:"status"`
	OwnerDataHash         string `json:"ownerDataHash"`
	ReviewContentHash     string `json:"reviewContentHash"`
	DepositDeduction      uint64 `json:"depositDeduction"`
	DeductionContentHash  string `json:"deductionContentHash"`
}
