//go:build unit
// +build unit

package pubsub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbc/rent/keys"
	"github.com/couchbc/rent/localstore"
)

type recorder struct {
	mutex    sync.Mutex
	messages []string
}

func (r *recorder) process(message, topic string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recorder) received() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.messages...)
}

func newTestChannel() (*Channel, *InMemoryTransport, *keys.Manager) {
	transport := NewInMemoryTransport()
	store := localstore.NewInMemory()
	manager := keys.NewManager(keys.NewRegistry(), store)
	channel := NewChannel(transport, manager, store, NewInMemoryDedupStore(), time.Hour)
	return channel, transport, manager
}

func TestSubscribeIsIdempotent(t *testing.T) {
	channel, _, _ := newTestChannel()
	defer channel.StopAll()

	first, err := channel.Subscribe("some-topic", "")
	require.NoError(t, err)

	second, err := channel.Subscribe("some-topic", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestPublishDispatchesToProcessor(t *testing.T) {
	channel, _, _ := newTestChannel()
	defer channel.StopAll()

	rec := &recorder{}
	channel.RegisterTopicProcessor("some-topic", rec.process)

	_, err := channel.Subscribe("some-topic", "")
	require.NoError(t, err)

	require.NoError(t, channel.Publish("hello", "some-topic"))
	require.NoError(t, channel.PollNow())

	assert.Equal(t, []string{"hello"}, rec.received())
}

func TestMessageDedup(t *testing.T) {
	channel, transport, _ := newTestChannel()
	defer channel.StopAll()

	rec := &recorder{}
	channel.RegisterTopicProcessor("some-topic", rec.process)

	_, err := channel.Subscribe("some-topic", "")
	require.NoError(t, err)

	// the same message id delivered twice across two polls dispatches once
	require.NoError(t, transport.Publish("some-topic", "msg-1", []byte("hello")))
	require.NoError(t, channel.PollNow())
	require.NoError(t, transport.Publish("some-topic", "msg-1", []byte("hello")))
	require.NoError(t, channel.PollNow())

	assert.Equal(t, []string{"hello"}, rec.received())
}

func TestEncryptedDelivery(t *testing.T) {
	channel, _, manager := newTestChannel()
	defer channel.StopAll()

	pair, err := manager.Generate()
	require.NoError(t, err)
	publicKey, err := pair.PublicKeyBytes()
	require.NoError(t, err)

	rec := &recorder{}
	channel.RegisterTopicProcessor("secret-topic", rec.process)

	_, err = channel.Subscribe("secret-topic", pair.Address)
	require.NoError(t, err)

	require.NoError(t, channel.Publish("for your eyes", "secret-topic", publicKey))
	require.NoError(t, channel.PollNow())

	assert.Equal(t, []string{"for your eyes"}, rec.received())
}

func TestEncryptedDeliveryNotForMe(t *testing.T) {
	channel, _, manager := newTestChannel()
	defer channel.StopAll()

	pair, err := manager.Generate()
	require.NoError(t, err)
	stranger, err := manager.Generate()
	require.NoError(t, err)
	strangerPublicKey, err := stranger.PublicKeyBytes()
	require.NoError(t, err)

	rec := &recorder{}
	channel.RegisterTopicProcessor("secret-topic", rec.process)

	_, err = channel.Subscribe("secret-topic", pair.Address)
	require.NoError(t, err)

	// addressed to a different key; dropped without dispatch
	require.NoError(t, channel.Publish("for someone else", "secret-topic", strangerPublicKey))
	require.NoError(t, channel.PollNow())

	assert.Empty(t, rec.received())
}

func TestRestoreSubscriptions(t *testing.T) {
	transport := NewInMemoryTransport()
	store := localstore.NewInMemory()
	manager := keys.NewManager(keys.NewRegistry(), store)

	channel := NewChannel(transport, manager, store, NewInMemoryDedupStore(), time.Hour)
	subscription, err := channel.Subscribe("some-topic", "")
	require.NoError(t, err)
	channel.StopAll()

	// a fresh channel over the same store resumes the stored subscription
	restored := NewChannel(transport, manager, store, NewInMemoryDedupStore(), time.Hour)
	defer restored.StopAll()

	rec := &recorder{}
	restored.RegisterTopicProcessor("some-topic", rec.process)
	require.NoError(t, restored.RestoreSubscriptions())

	resumed, err := restored.Subscribe("some-topic", "")
	require.NoError(t, err)
	assert.Equal(t, subscription.ID, resumed.ID)

	require.NoError(t, restored.Publish("after restart", "some-topic"))
	require.NoError(t, restored.PollNow())
	assert.Equal(t, []string{"after restart"}, rec.received())
}

func TestUnregisteredTopicDropsMessage(t *testing.T) {
	channel, _, _ := newTestChannel()
	defer channel.StopAll()

	_, err := channel.Subscribe("orphan-topic", "")
	require.NoError(t, err)

	require.NoError(t, channel.Publish("nobody listens", "orphan-topic"))
	require.NoError(t, channel.PollNow())
}
