package pubsub

import (
	"sync"
	"time"

	redisutil "github.com/kthomas/go-redisutil"
)

const dedupKeyPrefix = "pubsub.msg."

var dedupTTL = time.Hour * 24 * 7

// DedupStore tracks which message IDs have already been dispatched so
// redeliveries from the at-least-once transport are dropped
type DedupStore interface {
	SeenAndMark(messageID string) (bool, error)
}

// RedisDedupStore keeps the seen-ID set in redis with a bounded TTL
type RedisDedupStore struct{}

// NewRedisDedupStore requires the shared redis connection and returns a
// dedup store backed by it
func NewRedisDedupStore() *RedisDedupStore {
	redisutil.RequireRedis()
	return &RedisDedupStore{}
}

// SeenAndMark reports whether the message ID was seen before and marks it
func (s *RedisDedupStore) SeenAndMark(messageID string) (bool, error) {
	key := dedupKeyPrefix + messageID

	value, _ := redisutil.Get(key)
	if value != nil {
		return true, nil
	}

	if err := redisutil.Set(key, "1", &dedupTTL); err != nil {
		return false, err
	}
	return false, nil
}

// InMemoryDedupStore keeps the seen-ID set in a process-local map
type InMemoryDedupStore struct {
	mutex sync.Mutex
	seen  map[string]struct{}
}

// NewInMemoryDedupStore initializes an empty in-memory dedup store
func NewInMemoryDedupStore() *InMemoryDedupStore {
	return &InMemoryDedupStore{
		seen: map[string]struct{}{},
	}
}

// SeenAndMark reports whether the message ID was seen before and marks it
func (s *InMemoryDedupStore) SeenAndMark(messageID string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.seen[messageID]; ok {
		return true, nil
	}
	s.seen[messageID] = struct{}{}
	return false, nil
}
