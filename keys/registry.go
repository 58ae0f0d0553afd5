package keys

import (
	"errors"
	"sync"

	"github.com/couchbc/rent/common"
)

// Role reflects how a ledger account has been used by the protocol; roles are
// assigned lazily on first use and are sticky thereafter
type Role string

const (
	// RoleUnknown is the role of an account not yet used by the protocol
	RoleUnknown Role = "unknown"

	// RoleOwner is the role of an account that has listed an apartment
	RoleOwner Role = "owner"

	// RoleTenant is the role of an account that has requested a rental
	RoleTenant Role = "tenant"

	// RoleInteraction marks a consumed one-time interaction key address
	RoleInteraction Role = "interaction"
)

// ErrRoleConflict is returned when an account is used in a role that
// conflicts with its committed role, or when local key state is inconsistent
// with a committed role
var ErrRoleConflict = errors.New("account role conflict")

// Account is a ledger identity and its committed protocol role
type Account struct {
	Address string `json:"address"`
	Role    Role   `json:"role"`
}

// Registry owns all account role transitions; role stickiness is enforced
// here and nowhere else
type Registry struct {
	mutex    sync.RWMutex
	accounts map[string]*Account
}

// NewRegistry initializes an empty account registry
func NewRegistry() *Registry {
	return &Registry{
		accounts: map[string]*Account{},
	}
}

// Register adds an account discovered on the ledger; re-registering an
// address returns the existing account without modifying its role
func (r *Registry) Register(address string, role Role) *Account {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if account, ok := r.accounts[address]; ok {
		return account
	}

	if role == "" {
		role = RoleUnknown
	}

	account := &Account{
		Address: address,
		Role:    role,
	}
	r.accounts[address] = account
	return account
}

// Get returns the registered account for the given address, or nil
func (r *Registry) Get(address string) *Account {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.accounts[address]
}

// All returns all registered accounts
func (r *Registry) All() []*Account {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	accounts := make([]*Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, account)
	}
	return accounts
}

// MarkUsedAs commits the account at the given address to the given role;
// returns ErrRoleConflict if the account has already committed to a
// different role. Marking an unregistered address registers it.
func (r *Registry) MarkUsedAs(address string, role Role) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	account, ok := r.accounts[address]
	if !ok {
		account = &Account{
			Address: address,
			Role:    RoleUnknown,
		}
		r.accounts[address] = account
	}

	if account.Role == role {
		return nil
	}

	if account.Role != RoleUnknown {
		common.Log.Warningf("rejected role transition %s -> %s for account %s", account.Role, role, address)
		return ErrRoleConflict
	}

	account.Role = role
	common.Log.Debugf("marked account %s as %s", address, role)
	return nil
}
