package rental

import (
	"encoding/json"
	"fmt"

	"github.com/couchbc/rent/common"
	"github.com/couchbc/rent/keys"
	"github.com/couchbc/rent/ledger"
)

// Apartment is a listed apartment; terms and the city bucket live on the
// ledger, display details live in the content store behind ContentHash
type Apartment struct {
	ID              uint64 `json:"id"`
	Owner           string `json:"owner,omitempty"`
	OwnerPublicKeyX string `json:"ownerPublicKeyX"`
	OwnerPublicKeyY string `json:"ownerPublicKeyY"`
	ContentHash     string `json:"contentHash"`
	CityHash        string `json:"cityHash"`
	PricePerNight   uint64 `json:"pricePerNight"`
	Deposit         uint64 `json:"deposit"`
	Disabled        bool   `json:"disabled"`

	Details *ApartmentDetails `json:"details,omitempty"`
	Reviews []*TenantReview   `json:"reviews,omitempty"`

	// RentedTimeRanges is local knowledge, not ledger state: rental dates
	// only exist inside encrypted detail blobs, so the booking calendar is
	// reconstructed from rentals resolvable with locally held keys
	RentedTimeRanges []*TimeRange `json:"rentedTimeRanges,omitempty"`
}

// TimeRange is a rented day interval; TillDay is exclusive
type TimeRange struct {
	FromDay uint64 `json:"fromDay"`
	TillDay uint64 `json:"tillDay"`
}

func (r *TimeRange) overlaps(fromDay, tillDay uint64) bool {
	return fromDay < r.TillDay && r.FromDay < tillDay
}

// ApartmentDetails is the public display blob stored off-ledger
type ApartmentDetails struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Street      string `json:"street"`
	Number      string `json:"number"`
	Zip         string `json:"zip"`
	City        string `json:"city"`
	Country     string `json:"country"`
}

// CalculateFee derives the rental fee for the given day range from the
// apartment's nightly price; invalid or empty ranges yield zero
func (a *Apartment) CalculateFee(fromDay, tillDay uint64) uint64 {
	if tillDay <= fromDay {
		return 0
	}
	return a.PricePerNight * (tillDay - fromDay)
}

// CountryCityHash derives the ledger-indexed city bucket key; the
// serialization is fixed (country before city) so independently computed
// hashes match
func CountryCityHash(country, city string) string {
	buf, _ := json.Marshal(struct {
		Country string `json:"country"`
		City    string `json:"city"`
	}{
		Country: country,
		City:    city,
	})
	return common.Keccak256Hex(buf)
}

// AddApartment lists an apartment: ensures the owner has an encryption key
// pair, uploads the display details, subscribes to interaction key requests
// and submits the listing transaction. The owning account commits to the
// owner role on success.
func (ctx *Context) AddApartment(account *keys.Account, details *ApartmentDetails, pricePerNight, deposit uint64) (*Apartment, error) {
	if account.Role == keys.RoleTenant || account.Role == keys.RoleInteraction {
		return nil, keys.ErrRoleConflict
	}

	pair, err := ctx.Keys.GetOrCreate(account)
	if err != nil {
		return nil, err
	}

	contentHash, err := ctx.Store.Upload(details)
	if err != nil {
		return nil, err
	}

	cityHash := CountryCityHash(details.Country, details.City)

	// subscribing before the listing lands means no interaction key
	// request can arrive on an unwatched topic
	if _, err := ctx.Channel.Subscribe(TopicRequestInteractionKey, pair.Address); err != nil {
		return nil, err
	}

	tx := &ledger.Transaction{
		From:   account.Address,
		Method: "addApartment",
		Params: []interface{}{pair.X, pair.Y, cityHash, contentHash, pricePerNight, deposit},
	}

	if _, err := ctx.Ledger.EstimateGas(tx); err != nil {
		return nil, err
	}
	if _, err := ctx.Ledger.Submit(tx); err != nil {
		return nil, err
	}

	if err := ctx.Keys.Registry().MarkUsedAs(account.Address, keys.RoleOwner); err != nil {
		return nil, err
	}

	common.Log.Debugf("listed apartment in city bucket %s for account %s", cityHash, account.Address)

	return &Apartment{
		Owner:           account.Address,
		OwnerPublicKeyX: pair.X,
		OwnerPublicKeyY: pair.Y,
		ContentHash:     contentHash,
		CityHash:        cityHash,
		PricePerNight:   pricePerNight,
		Deposit:         deposit,
		Details:         details,
	}, nil
}

// FindApartmentByID resolves a listed apartment and its display details
func (ctx *Context) FindApartmentByID(id uint64) (*Apartment, error) {
	record := &ledger.ApartmentRecord{}
	if err := ctx.Ledger.Call(record, "getApartment", id); err != nil {
		return nil, err
	}
	return ctx.apartmentFromRecord(record)
}

// CityApartments resolves all enabled apartments listed in the given city
func (ctx *Context) CityApartments(country, city string) ([]*Apartment, error) {
	cityHash := CountryCityHash(country, city)

	var count uint64
	if err := ctx.Ledger.Call(&count, "getNumCityApartments", cityHash); err != nil {
		return nil, err
	}

	apartments := make([]*Apartment, 0, count)
	for i := uint64(0); i < count; i++ {
		record := &ledger.ApartmentRecord{}
		if err := ctx.Ledger.Call(record, "getCityApartment", cityHash, i); err != nil {
			return nil, err
		}

		apartment, err := ctx.apartmentFromRecord(record)
		if err != nil {
			common.Log.Warningf("failed to resolve details for apartment %d; %s", record.ID, err.Error())
			continue
		}
		apartments = append(apartments, apartment)
	}

	return apartments, nil
}

// RentedTimeRanges reconstructs the booking calendar of an apartment from
// the accepted rentals resolvable through locally held interaction keys; an
// owner sees every booking they accepted, anyone else sees nothing
func (ctx *Context) RentedTimeRanges(apartmentID uint64) ([]*TimeRange, error) {
	addresses, err := ctx.Keys.Addresses()
	if err != nil {
		return nil, err
	}

	ranges := make([]*TimeRange, 0)
	for _, address := range addresses {
		rental, err := ctx.FindByInteractionAddress(address)
		if err != nil {
			return nil, err
		}
		if rental == nil || rental.Details == nil {
			continue
		}
		if rental.Details.ApartmentID != apartmentID || rental.Status != ledger.StatusAccepted {
			continue
		}

		ranges = append(ranges, &TimeRange{
			FromDay: rental.Details.FromDay,
			TillDay: rental.Details.TillDay,
		})
	}
	return ranges, nil
}

// UserApartments resolves all apartments listed by the given account
func (ctx *Context) UserApartments(address string) ([]*Apartment, error) {
	var count uint64
	if err := ctx.Ledger.Call(&count, "getUserApartmentsNum", address); err != nil {
		return nil, err
	}

	apartments := make([]*Apartment, 0, count)
	for i := uint64(0); i < count; i++ {
		record := &ledger.ApartmentRecord{}
		if err := ctx.Ledger.Call(record, "getUserApartment", address, i); err != nil {
			return nil, err
		}

		apartment, err := ctx.apartmentFromRecord(record)
		if err != nil {
			common.Log.Warningf("failed to resolve details for apartment %d; %s", record.ID, err.Error())
			continue
		}

		if apartment.RentedTimeRanges, err = ctx.RentedTimeRanges(apartment.ID); err != nil {
			return nil, err
		}
		apartments = append(apartments, apartment)
	}

	return apartments, nil
}

// DisableApartment delists an apartment; only its owner may do so
func (ctx *Context) DisableApartment(account *keys.Account, id uint64) error {
	tx := &ledger.Transaction{
		From:   account.Address,
		Method: "disableApartment",
		Params: []interface{}{id},
	}

	if _, err := ctx.Ledger.EstimateGas(tx); err != nil {
		return err
	}
	if _, err := ctx.Ledger.Submit(tx); err != nil {
		return err
	}
	return nil
}

func (ctx *Context) apartmentFromRecord(record *ledger.ApartmentRecord) (*Apartment, error) {
	apartment := &Apartment{
		ID:              record.ID,
		Owner:           record.Owner,
		OwnerPublicKeyX: record.OwnerPublicKeyX,
		OwnerPublicKeyY: record.OwnerPublicKeyY,
		ContentHash:     record.ContentHash,
		CityHash:        record.CityHash,
		PricePerNight:   record.PricePerNight,
		Deposit:         record.Deposit,
		Disabled:        record.Disabled,
	}

	details := &ApartmentDetails{}
	if err := ctx.Store.Download(record.ContentHash, nil, details); err != nil {
		return nil, fmt.Errorf("failed to resolve apartment %d details; %s", record.ID, err.Error())
	}
	apartment.Details = details

	return apartment, nil
}
