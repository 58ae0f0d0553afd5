package keys

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/couchbc/rent/common"
	"github.com/couchbc/rent/crypto"
	"github.com/couchbc/rent/localstore"
)

const accountMappingKeyPrefix = "ecAccounts."
const keyPairKeyPrefix = "ecKeys."
const keyIndexKey = "ecKeyAddresses"

// KeyPair is a secp256k1 interaction key pair; the private component never
// leaves the local store
type KeyPair struct {
	Private string `json:"private"`
	X       string `json:"x"`
	Y       string `json:"y"`
	Address string `json:"address"`
}

// PrivateKeyBytes returns the raw 32-byte private key
func (k *KeyPair) PrivateKeyBytes() ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(k.Private, "0x"))
}

// PublicKeyBytes returns the 65-byte uncompressed public key
func (k *KeyPair) PublicKeyBytes() ([]byte, error) {
	return PublicKeyFromXY(k.X, k.Y)
}

// PublicKeyFromXY assembles a 65-byte uncompressed secp256k1 public key from
// 0x-prefixed x and y coordinates
func PublicKeyFromXY(x, y string) ([]byte, error) {
	xBytes, err := common.HexToBytes(common.PadHex32(x))
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key x coordinate; %s", err.Error())
	}
	yBytes, err := common.HexToBytes(common.PadHex32(y))
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key y coordinate; %s", err.Error())
	}
	if len(xBytes) != 32 || len(yBytes) != 32 {
		return nil, fmt.Errorf("failed to assemble public key; coordinates must be 32 bytes")
	}

	buf := make([]byte, 65)
	buf[0] = 0x04
	copy(buf[1:33], xBytes)
	copy(buf[33:65], yBytes)
	return buf, nil
}

// Manager generates, persists and resolves interaction key pairs; the
// account-to-key mapping and the key material itself are both kept in the
// local store
type Manager struct {
	registry *Registry
	store    localstore.KV
}

// NewManager initializes a key manager over the given registry and store
func NewManager(registry *Registry, store localstore.KV) *Manager {
	return &Manager{
		registry: registry,
		store:    store,
	}
}

// Registry returns the account registry owning role transitions
func (m *Manager) Registry() *Registry {
	return m.registry
}

// GetOrCreate returns the key pair associated with the given account,
// generating and associating a fresh one if the account has not committed to
// a role yet. A committed role without a stored key indicates corrupted local
// state; regenerating would desynchronize from the public key already on the
// ledger, so that case fails with ErrRoleConflict.
func (m *Manager) GetOrCreate(account *Account) (*KeyPair, error) {
	pair, err := m.ForAccount(account.Address)
	if err != nil {
		return nil, err
	}
	if pair != nil {
		return pair, nil
	}

	if account.Role == RoleOwner || account.Role == RoleTenant {
		common.Log.Warningf("no local key pair for committed %s account %s", account.Role, account.Address)
		return nil, ErrRoleConflict
	}

	pair, err = m.Generate()
	if err != nil {
		return nil, err
	}

	if err := m.store.Set(accountMappingKeyPrefix+account.Address, pair.Address); err != nil {
		return nil, err
	}

	common.Log.Debugf("associated key pair %s with account %s", pair.Address, account.Address)
	return pair, nil
}

// ForAccount resolves the key pair associated with the given account address,
// or nil if none has been associated
func (m *Manager) ForAccount(address string) (*KeyPair, error) {
	keyAddress, err := m.store.Get(accountMappingKeyPrefix + address)
	if err != nil {
		return nil, err
	}
	if keyAddress == nil {
		return nil, nil
	}

	pair, err := m.Resolve(*keyAddress)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		common.Log.Warningf("account %s maps to key pair %s but no key material is stored", address, *keyAddress)
		return nil, ErrRoleConflict
	}
	return pair, nil
}

// Generate produces and persists a fresh, uniformly random key pair; the
// pair is retrievable by its own derived address via Resolve
func (m *Manager) Generate() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair; %s", err.Error())
	}

	uncompressed := priv.PubKey().SerializeUncompressed()
	address, err := crypto.PublicKeyToAddress(uncompressed)
	if err != nil {
		return nil, err
	}

	pair := &KeyPair{
		Private: "0x" + hex.EncodeToString(priv.Serialize()),
		X:       "0x" + hex.EncodeToString(uncompressed[1:33]),
		Y:       "0x" + hex.EncodeToString(uncompressed[33:65]),
		Address: address,
	}

	buf, err := json.Marshal(pair)
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(keyPairKeyPrefix+pair.Address, string(buf)); err != nil {
		return nil, err
	}

	// key material first, index last; a crash in between leaves an
	// unindexed but resolvable key, never a dangling index entry
	if err := m.index(pair.Address); err != nil {
		return nil, err
	}

	common.Log.Debugf("generated key pair: %s", pair.Address)
	return pair, nil
}

// Addresses returns the derived addresses of every locally generated key
// pair, oldest first
func (m *Manager) Addresses() ([]string, error) {
	value, err := m.store.Get(keyIndexKey)
	if err != nil {
		return nil, err
	}

	addresses := make([]string, 0)
	if value != nil {
		if err := json.Unmarshal([]byte(*value), &addresses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal key pair index; %s", err.Error())
		}
	}
	return addresses, nil
}

func (m *Manager) index(address string) error {
	addresses, err := m.Addresses()
	if err != nil {
		return err
	}

	buf, err := json.Marshal(append(addresses, address))
	if err != nil {
		return err
	}
	return m.store.Set(keyIndexKey, string(buf))
}

// Resolve looks up a previously generated key pair by its own derived
// address (not the owning account's address); returns nil when unknown
func (m *Manager) Resolve(keyAddress string) (*KeyPair, error) {
	value, err := m.store.Get(keyPairKeyPrefix + keyAddress)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	pair := &KeyPair{}
	if err := json.Unmarshal([]byte(*value), pair); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key pair %s; %s", keyAddress, err.Error())
	}
	return pair, nil
}
