package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/couchbc/rent/common"
	"github.com/couchbc/rent/crypto"
)

// Rental statuses recorded on the ledger
const (
	StatusRequested = "requested"
	StatusAccepted  = "accepted"
	StatusRefused   = "refused"
	StatusWithdrawn = "withdrawn"
	StatusSettled   = "settled"
)

const memoryGasAmount = uint64(90000)

// InMemoryLedger is a process-local ledger enforcing the same transaction
// semantics as the real backend: value checks, signature recovery against
// interaction addresses, and status transitions. Used by tests and local
// development.
type InMemoryLedger struct {
	mutex      sync.Mutex
	apartments []*ApartmentRecord
	rentals    []*RentalRecord
	balances   map[string]*big.Int
	handlers   map[string][]*registeredHandler
}

// NewInMemoryLedger initializes an empty in-memory ledger
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		balances: map[string]*big.Int{},
		handlers: map[string][]*registeredHandler{},
	}
}

// EstimateGas dry-runs the transaction and returns a fixed gas amount when it
// would succeed
func (l *InMemoryLedger) EstimateGas(tx *Transaction) (uint64, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if err := l.execute(tx, true); err != nil {
		common.Log.Warningf("gas estimation failed for %s; %s", tx.Method, err.Error())
		return 0, ErrSubmissionFailed
	}
	return memoryGasAmount, nil
}

// Submit executes the transaction atomically
func (l *InMemoryLedger) Submit(tx *Transaction) (*Receipt, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if err := l.execute(tx, false); err != nil {
		common.Log.Warningf("transaction %s reverted; %s", tx.Method, err.Error())
		return nil, ErrSubmissionFailed
	}

	return &Receipt{
		TransactionHash: "0x" + common.SHA256(fmt.Sprintf("%s:%s:%d", tx.From, tx.Method, len(l.rentals)+len(l.apartments))),
		Success:         true,
	}, nil
}

// Call resolves committed state into result
func (l *InMemoryLedger) Call(result interface{}, method string, params ...interface{}) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	switch method {
	case "getApartmentsNum":
		return assign(result, uint64(len(l.apartments)))
	case "getApartment":
		apartment := l.apartment(asUint64(params[0]))
		if apartment == nil {
			return fmt.Errorf("unknown apartment: %v", params[0])
		}
		return assign(result, apartment)
	case "getNumCityApartments":
		return assign(result, uint64(len(l.cityApartments(asString(params[0])))))
	case "getCityApartment":
		apartments := l.cityApartments(asString(params[0]))
		i := asUint64(params[1])
		if i >= uint64(len(apartments)) {
			return fmt.Errorf("city apartment index out of range: %d", i)
		}
		return assign(result, apartments[i])
	case "getUserApartmentsNum":
		return assign(result, uint64(len(l.userApartments(asString(params[0])))))
	case "getUserApartment":
		apartments := l.userApartments(asString(params[0]))
		i := asUint64(params[1])
		if i >= uint64(len(apartments)) {
			return fmt.Errorf("user apartment index out of range: %d", i)
		}
		return assign(result, apartments[i])
	case "getNumTenantRentals":
		return assign(result, uint64(len(l.tenantRentals(asString(params[0])))))
	case "getTenantRental":
		rentals := l.tenantRentals(asString(params[0]))
		i := asUint64(params[1])
		if i >= uint64(len(rentals)) {
			return fmt.Errorf("tenant rental index out of range: %d", i)
		}
		return assign(result, rentals[i])
	case "hasInteractionAddressRental":
		return assign(result, l.interactionRental(asString(params[0])) != nil)
	case "getInteractionAddressRental":
		rental := l.interactionRental(asString(params[0]))
		if rental == nil {
			return fmt.Errorf("no rental for interaction address: %v", params[0])
		}
		return assign(result, rental)
	case "getBalance":
		return assign(result, l.balance(asString(params[0])).String())
	}

	return fmt.Errorf("unknown ledger method: %s", method)
}

// On registers a persistent event handler
func (l *InMemoryLedger) On(event string, handler Handler) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.handlers[event] = append(l.handlers[event], &registeredHandler{handler: handler})
}

// Once registers a one-shot event handler
func (l *InMemoryLedger) Once(event string, handler Handler) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.handlers[event] = append(l.handlers[event], &registeredHandler{handler: handler, once: true})
}

func (l *InMemoryLedger) execute(tx *Transaction, dryRun bool) error {
	switch tx.Method {
	case "addApartment":
		return l.addApartment(tx, dryRun)
	case "disableApartment":
		return l.disableApartment(tx, dryRun)
	case "requestRental":
		return l.requestRental(tx, dryRun)
	case "acceptRental":
		return l.acceptRental(tx, dryRun)
	case "refuseRental":
		return l.refuseRental(tx, dryRun)
	case "withdrawRentalRequest":
		return l.withdrawRentalRequest(tx, dryRun)
	case "endRental":
		return l.endRental(tx, dryRun)
	}
	return fmt.Errorf("unknown ledger method: %s", tx.Method)
}

func (l *InMemoryLedger) addApartment(tx *Transaction, dryRun bool) error {
	if len(tx.Params) != 6 {
		return fmt.Errorf("addApartment expects 6 params, got %d", len(tx.Params))
	}
	if dryRun {
		return nil
	}

	apartment := &ApartmentRecord{
		ID:              uint64(len(l.apartments) + 1),
		Owner:           tx.From,
		OwnerPublicKeyX: asString(tx.Params[0]),
		OwnerPublicKeyY: asString(tx.Params[1]),
		CityHash:        asString(tx.Params[2]),
		ContentHash:     asString(tx.Params[3]),
		PricePerNight:   asUint64(tx.Params[4]),
		Deposit:         asUint64(tx.Params[5]),
	}
	l.apartments = append(l.apartments, apartment)

	l.emit("ApartmentAdded", map[string]interface{}{
		"id":       apartment.ID,
		"cityHash": apartment.CityHash,
	})
	return nil
}

func (l *InMemoryLedger) disableApartment(tx *Transaction, dryRun bool) error {
	apartment := l.apartment(asUint64(tx.Params[0]))
	if apartment == nil {
		return fmt.Errorf("unknown apartment: %v", tx.Params[0])
	}
	if apartment.Owner != tx.From {
		return fmt.Errorf("apartment %d is not owned by %s", apartment.ID, tx.From)
	}
	if dryRun {
		return nil
	}

	apartment.Disabled = true
	return nil
}

func (l *InMemoryLedger) requestRental(tx *Transaction, dryRun bool) error {
	if len(tx.Params) != 10 {
		return fmt.Errorf("requestRental expects 10 params, got %d", len(tx.Params))
	}

	fee := asUint64(tx.Params[0])
	deposit := asUint64(tx.Params[1])
	interactionAddress := asString(tx.Params[4])

	required := FinneyToWei(fee + deposit)
	if tx.ValueWei == nil || tx.ValueWei.Cmp(required) != 0 {
		return fmt.Errorf("value transfer must equal fee+deposit (%s wei)", required.String())
	}
	if l.interactionRental(interactionAddress) != nil {
		return fmt.Errorf("interaction address already bound to a rental: %s", interactionAddress)
	}
	if dryRun {
		return nil
	}

	rental := &RentalRecord{
		ID:                    uint64(len(l.rentals) + 1),
		Tenant:                tx.From,
		Fee:                   fee,
		Deposit:               deposit,
		InteractionPublicKeyX: asString(tx.Params[2]),
		InteractionPublicKeyY: asString(tx.Params[3]),
		InteractionAddress:    interactionAddress,
		CommitmentHash:        asString(tx.Params[5]),
		DetailsContentHash:    asString(tx.Params[6]),
		DetailsHash:           asString(tx.Params[7]),
		TenantPublicKeyX:      asString(tx.Params[8]),
		TenantPublicKeyY:      asString(tx.Params[9]),
		Status:                StatusRequested,
	}
	l.rentals = append(l.rentals, rental)

	l.emit("RentalRequested", map[string]interface{}{
		"id":                 rental.ID,
		"interactionAddress": rental.InteractionAddress,
	})
	return nil
}

func (l *InMemoryLedger) acceptRental(tx *Transaction, dryRun bool) error {
	rental := l.rental(asUint64(tx.Params[0]))
	if rental == nil {
		return fmt.Errorf("unknown rental: %v", tx.Params[0])
	}
	if rental.Status != StatusRequested {
		return fmt.Errorf("rental %d is not in requested status", rental.ID)
	}

	ownerDataHash := asString(tx.Params[1])
	signature := asString(tx.Params[2])
	message := fmt.Sprintf("accept:%d-%s-%s", rental.ID, ownerDataHash, tx.From)
	if !crypto.VerifySignature(message, signature, rental.InteractionAddress) {
		return fmt.Errorf("acceptance signature does not recover interaction address %s", rental.InteractionAddress)
	}
	if dryRun {
		return nil
	}

	rental.Status = StatusAccepted
	rental.OwnerDataHash = ownerDataHash

	l.emit("RentalAccepted", map[string]interface{}{"id": rental.ID})
	return nil
}

func (l *InMemoryLedger) refuseRental(tx *Transaction, dryRun bool) error {
	rental := l.rental(asUint64(tx.Params[0]))
	if rental == nil {
		return fmt.Errorf("unknown rental: %v", tx.Params[0])
	}
	if rental.Status != StatusRequested {
		return fmt.Errorf("rental %d is not in requested status", rental.ID)
	}

	signature := asString(tx.Params[1])
	message := fmt.Sprintf("refuse:%d", rental.ID)
	if !crypto.VerifySignature(message, signature, rental.InteractionAddress) {
		return fmt.Errorf("refusal signature does not recover interaction address %s", rental.InteractionAddress)
	}
	if dryRun {
		return nil
	}

	rental.Status = StatusRefused
	l.credit(rental.Tenant, FinneyToWei(rental.Fee+rental.Deposit))

	l.emit("RentalRefused", map[string]interface{}{"id": rental.ID})
	return nil
}

func (l *InMemoryLedger) withdrawRentalRequest(tx *Transaction, dryRun bool) error {
	rental := l.rental(asUint64(tx.Params[0]))
	if rental == nil {
		return fmt.Errorf("unknown rental: %v", tx.Params[0])
	}
	if rental.Status != StatusRequested {
		return fmt.Errorf("rental %d is not in requested status", rental.ID)
	}
	if rental.Tenant != tx.From {
		return fmt.Errorf("rental %d was not requested by %s", rental.ID, tx.From)
	}
	if dryRun {
		return nil
	}

	rental.Status = StatusWithdrawn
	l.credit(rental.Tenant, FinneyToWei(rental.Fee+rental.Deposit))

	l.emit("RentalWithdrawn", map[string]interface{}{"id": rental.ID})
	return nil
}

func (l *InMemoryLedger) endRental(tx *Transaction, dryRun bool) error {
	rental := l.rental(asUint64(tx.Params[0]))
	if rental == nil {
		return fmt.Errorf("unknown rental: %v", tx.Params[0])
	}
	if rental.Status != StatusAccepted {
		return fmt.Errorf("rental %d is not in accepted status", rental.ID)
	}

	reviewContentHash := asString(tx.Params[1])
	deduction := asUint64(tx.Params[2])
	deductionContentHash := asString(tx.Params[3])
	signature := asString(tx.Params[4])

	if deduction > rental.Deposit {
		return fmt.Errorf("deposit deduction %d exceeds deposit %d", deduction, rental.Deposit)
	}

	message := fmt.Sprintf("end:%d-%s-%d", rental.ID, reviewContentHash, deduction)
	if !crypto.VerifySignature(message, signature, rental.InteractionAddress) {
		return fmt.Errorf("settlement signature does not recover interaction address %s", rental.InteractionAddress)
	}
	if dryRun {
		return nil
	}

	rental.Status = StatusSettled
	rental.ReviewContentHash = reviewContentHash
	rental.DepositDeduction = deduction
	rental.DeductionContentHash = deductionContentHash

	l.credit(rental.Tenant, FinneyToWei(rental.Deposit-deduction))
	l.credit(rental.InteractionAddress, FinneyToWei(rental.Fee+deduction))

	l.emit("RentalEnded", map[string]interface{}{"id": rental.ID})
	return nil
}

func (l *InMemoryLedger) apartment(id uint64) *ApartmentRecord {
	if id == 0 || id > uint64(len(l.apartments)) {
		return nil
	}
	return l.apartments[id-1]
}

func (l *InMemoryLedger) rental(id uint64) *RentalRecord {
	if id == 0 || id > uint64(len(l.rentals)) {
		return nil
	}
	return l.rentals[id-1]
}

func (l *InMemoryLedger) cityApartments(cityHash string) []*ApartmentRecord {
	apartments := make([]*ApartmentRecord, 0)
	for _, apartment := range l.apartments {
		if apartment.CityHash == cityHash && !apartment.Disabled {
			apartments = append(apartments, apartment)
		}
	}
	return apartments
}

func (l *InMemoryLedger) userApartments(owner string) []*ApartmentRecord {
	apartments := make([]*ApartmentRecord, 0)
	for _, apartment := range l.apartments {
		if apartment.Owner == owner {
			apartments = append(apartments, apartment)
		}
	}
	return apartments
}

func (l *InMemoryLedger) tenantRentals(tenant string) []*RentalRecord {
	rentals := make([]*RentalRecord, 0)
	for _, rental := range l.rentals {
		if rental.Tenant == tenant {
			rentals = append(rentals, rental)
		}
	}
	return rentals
}

func (l *InMemoryLedger) interactionRental(address string) *RentalRecord {
	for _, rental := range l.rentals {
		if rental.InteractionAddress == address {
			return rental
		}
	}
	return nil
}

func (l *InMemoryLedger) balance(address string) *big.Int {
	if balance, ok := l.balances[address]; ok {
		return balance
	}
	return big.NewInt(0)
}

func (l *InMemoryLedger) credit(address string, amount *big.Int) {
	l.balances[address] = new(big.Int).Add(l.balance(address), amount)
}

func (l *InMemoryLedger) emit(name string, values map[string]interface{}) {
	event := &Event{Name: name, Values: values}

	remaining := make([]*registeredHandler, 0)
	for _, registered := range l.handlers[name] {
		registered.handler(event)
		if !registered.once {
			remaining = append(remaining, registered)
		}
	}
	l.handlers[name] = remaining
}

// assign copies value into the result pointer through JSON; keeps in-process
// call results shaped identically to gateway responses
func assign(result, value interface{}) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, result)
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asUint64(v interface{}) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case int:
		return uint64(n)
	case int64:
		return uint64(n)
	case float64:
		return uint64(n)
	case json.Number:
		i, _ := n.Int64()
		return uint64(i)
	}
	return 0
}
