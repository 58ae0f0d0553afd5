package pubsub

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	uuid "github.com/kthomas/go.uuid"

	"github.com/couchbc/rent/common"
	"github.com/couchbc/rent/crypto"
	"github.com/couchbc/rent/keys"
	"github.com/couchbc/rent/localstore"
)

const subscriptionListKey = "topicSubscriptions"
const pullBatchSize = 10

// Processor handles a plaintext message dispatched from a topic
type Processor func(message, topic string)

// Subscription is a durable topic subscription; KeyAddress, when set, names
// the interaction key pair whose private key decrypts inbound messages
type Subscription struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	KeyAddress string `json:"keyAddress,omitempty"`
}

func subscriptionKey(topic string) string {
	return fmt.Sprintf("topic.%s.subscription", topic)
}

// Channel is the coordination fabric between protocol participants: publish
// optionally-encrypted messages to topics and poll durable subscriptions,
// dispatching each unique message to its registered topic processor once
type Channel struct {
	transport Transport
	keys      *keys.Manager
	store     localstore.KV
	dedup     DedupStore
	interval  time.Duration

	mutex          sync.Mutex
	processors     map[string]Processor
	listeners      map[string]chan struct{}
	listenerTopics map[string]string
}

// NewChannel initializes a channel over the given transport, key manager,
// local store and dedup store, polling at the given interval
func NewChannel(transport Transport, keyManager *keys.Manager, store localstore.KV, dedup DedupStore, interval time.Duration) *Channel {
	return &Channel{
		transport:      transport,
		keys:           keyManager,
		store:          store,
		dedup:          dedup,
		interval:       interval,
		processors:     map[string]Processor{},
		listeners:      map[string]chan struct{}{},
		listenerTopics: map[string]string{},
	}
}

// RegisterTopicProcessor installs the processor dispatched for messages
// arriving on the given topic; the last registration wins
func (ch *Channel) RegisterTopicProcessor(topic string, processor Processor) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	ch.processors[topic] = processor
}

// Publish sends the message to the topic, encrypting it for the given public
// keys when any are provided
func (ch *Channel) Publish(message, topic string, encryptFor ...[]byte) error {
	payload := message
	if len(encryptFor) > 0 {
		var err error
		payload, err = crypto.EncryptString(message, encryptFor...)
		if err != nil {
			return err
		}
	}

	messageID, err := uuid.NewV4()
	if err != nil {
		return err
	}
	if err := ch.transport.Publish(topic, messageID.String(), []byte(payload)); err != nil {
		return err
	}

	common.Log.Debugf("published message %s to topic %s", messageID, topic)
	return nil
}

// Subscribe ensures a durable subscription on the topic exists and is being
// polled; repeated calls for the same topic reuse the persisted subscription
// rather than creating a second one. keyAddress, when non-empty, names the
// interaction key pair used to decrypt inbound messages.
func (ch *Channel) Subscribe(topic, keyAddress string) (*Subscription, error) {
	existing, err := ch.storedSubscription(topic)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := ch.transport.EnsureSubscription(existing.Topic, existing.ID); err != nil {
			return nil, err
		}
		ch.listen(existing)
		return existing, nil
	}

	entropy, err := common.RandomBytes(32)
	if err != nil {
		return nil, err
	}

	subscription := &Subscription{
		ID:         fmt.Sprintf("sub-%s", hex.EncodeToString(entropy)),
		Topic:      topic,
		KeyAddress: keyAddress,
	}

	if err := ch.transport.EnsureSubscription(topic, subscription.ID); err != nil {
		return nil, err
	}

	// the per-topic record is written before the topic list so a crash
	// between the writes leaves a resolvable record, never a dangling
	// list entry pointing at nothing
	buf, err := json.Marshal(subscription)
	if err != nil {
		return nil, err
	}
	if err := ch.store.Set(subscriptionKey(topic), string(buf)); err != nil {
		return nil, err
	}
	if err := ch.addToSubscriptionList(topic); err != nil {
		return nil, err
	}

	common.Log.Debugf("subscribed to topic %s: %s", topic, subscription.ID)
	ch.listen(subscription)
	return subscription, nil
}

// RestoreSubscriptions re-establishes and resumes polling every subscription
// recorded in the local store; called at boot
func (ch *Channel) RestoreSubscriptions() error {
	topics, err := ch.subscriptionList()
	if err != nil {
		return err
	}

	for topic := range topics {
		subscription, err := ch.storedSubscription(topic)
		if err != nil {
			return err
		}
		if subscription == nil {
			common.Log.Warningf("subscription list names topic %s but no subscription record exists", topic)
			continue
		}

		if err := ch.transport.EnsureSubscription(subscription.Topic, subscription.ID); err != nil {
			return err
		}
		ch.listen(subscription)
	}

	return nil
}

// Poll runs a single pull-dispatch-ack cycle for the subscription
func (ch *Channel) Poll(subscription *Subscription) {
	messages, err := ch.transport.Pull(subscription.Topic, subscription.ID, pullBatchSize)
	if err != nil {
		common.Log.Warningf("failed to poll subscription %s; %s", subscription.ID, err.Error())
		return
	}

	for _, message := range messages {
		seen, err := ch.dedup.SeenAndMark(message.ID)
		if err != nil {
			common.Log.Warningf("failed to check dedup state for message %s; %s", message.ID, err.Error())
			continue
		}
		if seen {
			message.Ack()
			continue
		}

		payload := string(message.Data)
		if subscription.KeyAddress != "" {
			plaintext, ok := ch.decrypt(subscription, payload)
			if !ok {
				message.Ack()
				continue
			}
			payload = plaintext
		}

		ch.dispatch(subscription.Topic, payload)
		message.Ack()
	}
}

// PollNow runs a single poll cycle for every stored subscription instead of
// waiting for the next tick
func (ch *Channel) PollNow() error {
	topics, err := ch.subscriptionList()
	if err != nil {
		return err
	}

	for topic := range topics {
		subscription, err := ch.storedSubscription(topic)
		if err != nil {
			return err
		}
		if subscription != nil {
			ch.Poll(subscription)
		}
	}
	return nil
}

// Stop halts polling for the given topic; the durable subscription itself
// remains and is resumed by the next Subscribe or RestoreSubscriptions
func (ch *Channel) Stop(topic string) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	for id, stop := range ch.listeners {
		if ch.listenerTopics[id] == topic {
			close(stop)
			delete(ch.listeners, id)
			delete(ch.listenerTopics, id)
		}
	}
}

// StopAll halts polling for every subscription
func (ch *Channel) StopAll() {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	for id, stop := range ch.listeners {
		close(stop)
		delete(ch.listeners, id)
		delete(ch.listenerTopics, id)
	}
}

func (ch *Channel) decrypt(subscription *Subscription, payload string) (string, bool) {
	pair, err := ch.keys.Resolve(subscription.KeyAddress)
	if err != nil || pair == nil {
		common.Log.Warningf("failed to resolve decryption key %s for topic %s", subscription.KeyAddress, subscription.Topic)
		return "", false
	}

	priv, err := pair.PrivateKeyBytes()
	if err != nil {
		common.Log.Warningf("failed to decode private key %s; %s", subscription.KeyAddress, err.Error())
		return "", false
	}

	plaintext, ok := crypto.DecryptString(payload, priv)
	if !ok {
		common.Log.Tracef("dropped message on topic %s not addressed to %s", subscription.Topic, subscription.KeyAddress)
		return "", false
	}
	return plaintext, true
}

func (ch *Channel) dispatch(topic, message string) {
	ch.mutex.Lock()
	processor := ch.processors[topic]
	ch.mutex.Unlock()

	if processor == nil {
		common.Log.Warningf("no processor registered for topic %s; dropping message", topic)
		return
	}
	processor(message, topic)
}

func (ch *Channel) listen(subscription *Subscription) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if _, ok := ch.listeners[subscription.ID]; ok {
		return
	}

	stop := make(chan struct{})
	ch.listeners[subscription.ID] = stop
	ch.listenerTopics[subscription.ID] = subscription.Topic

	go func() {
		ticker := time.NewTicker(ch.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ch.Poll(subscription)
			case <-stop:
				return
			}
		}
	}()
}

func (ch *Channel) storedSubscription(topic string) (*Subscription, error) {
	value, err := ch.store.Get(subscriptionKey(topic))
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	subscription := &Subscription{}
	if err := json.Unmarshal([]byte(*value), subscription); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription for topic %s; %s", topic, err.Error())
	}
	return subscription, nil
}

func (ch *Channel) subscriptionList() (map[string]bool, error) {
	value, err := ch.store.Get(subscriptionListKey)
	if err != nil {
		return nil, err
	}

	topics := map[string]bool{}
	if value != nil {
		if err := json.Unmarshal([]byte(*value), &topics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subscription list; %s", err.Error())
		}
	}
	return topics, nil
}

func (ch *Channel) addToSubscriptionList(topic string) error {
	topics, err := ch.subscriptionList()
	if err != nil {
		return err
	}

	topics[topic] = true
	buf, err := json.Marshal(topics)
	if err != nil {
		return err
	}
	return ch.store.Set(subscriptionListKey, string(buf))
}
