package localstore

import (
	"fmt"
	"sync"

	"github.com/jinzhu/gorm"
	dbconf "github.com/kthomas/go-db-config"

	"github.com/couchbc/rent/common"
)

// KV is the persistent local storage contract: a simple string key-value
// store with no cross-key transactions; multi-key updates must tolerate a
// crash between writes
type KV interface {
	Get(key string) (*string, error)
	Set(key string, value string) error
	Delete(key string) error
}

// Store is the gorm-backed KV implementation; a single local_store table
// holds all locally cached protocol state (key mappings, pending requests,
// subscription registrations, dedup lists, contact autofill)
type Store struct {
	db *gorm.DB
}

// New initializes a Store against the configured database connection
func New() *Store {
	return &Store{
		db: dbconf.DatabaseConnection(),
	}
}

// NewWithDB initializes a Store against the given database connection
func NewWithDB(db *gorm.DB) *Store {
	return &Store{
		db: db,
	}
}

// Get returns the value stored at key, or nil if no value exists
func (s *Store) Get(key string) (*string, error) {
	rows, err := s.db.Raw("SELECT value FROM local_store WHERE key = ?", key).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to read local store key %s; %s", key, err.Error())
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	var value string
	if err := rows.Scan(&value); err != nil {
		return nil, fmt.Errorf("failed to scan local store key %s; %s", key, err.Error())
	}

	return &value, nil
}

// Set upserts the value stored at key
func (s *Store) Set(key string, value string) error {
	result := s.db.Exec(
		"INSERT INTO local_store (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if errs := result.GetErrors(); len(errs) > 0 {
		return fmt.Errorf("failed to write local store key %s; %s", key, errs[0].Error())
	}

	common.Log.Tracef("wrote %d-byte value to local store key: %s", len(value), key)
	return nil
}

// Delete removes the value stored at key; removing an absent key is a no-op
func (s *Store) Delete(key string) error {
	result := s.db.Exec("DELETE FROM local_store WHERE key = ?", key)
	if errs := result.GetErrors(); len(errs) > 0 {
		return fmt.Errorf("failed to delete local store key %s; %s", key, errs[0].Error())
	}
	return nil
}

// InMemory is a map-backed KV used by tests and ephemeral tooling
type InMemory struct {
	mutex  sync.RWMutex
	values map[string]string
}

// NewInMemory initializes an empty in-memory KV
func NewInMemory() *InMemory {
	return &InMemory{
		values: map[string]string{},
	}
}

// Get returns the value stored at key, or nil if no value exists
func (s *InMemory) Get(key string) (*string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if value, ok := s.values[key]; ok {
		return &value, nil
	}
	return nil, nil
}

// Set stores the value at key
func (s *InMemory) Set(key string, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.values[key] = value
	return nil
}

// Delete removes the value stored at key
func (s *InMemory) Delete(key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.values, key)
	return nil
}
