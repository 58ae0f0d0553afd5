package pubsub

import (
	"fmt"
	"os"
	"sync"
	"time"

	natsutil "github.com/kthomas/go-natsutil"
	"github.com/nats-io/nats.go"

	"github.com/couchbc/rent/common"
)

const natsPullMaxWait = time.Millisecond * 500

// Message is a single delivery pulled from a subscription; at-least-once
// semantics mean the same ID may be delivered more than once
type Message struct {
	ID   string
	Data []byte

	ack func() error
}

// Ack acknowledges receipt of the message with the transport
func (m *Message) Ack() {
	if m.ack == nil {
		return
	}
	if err := m.ack(); err != nil {
		common.Log.Warningf("failed to ack message %s; %s", m.ID, err.Error())
	}
}

// Transport is the at-least-once topic delivery service underneath the
// channel; implementations must support durable, resumable subscriptions
type Transport interface {
	Publish(topic, messageID string, data []byte) error
	EnsureSubscription(topic, subscriptionID string) error
	Pull(topic, subscriptionID string, maxMessages int) ([]*Message, error)
}

// natsTransport delivers topic messages over a JetStream stream; each topic
// maps to a subject within the configured stream and each subscription to a
// durable pull consumer
type natsTransport struct {
	stream string
	js     nats.JetStreamContext

	mutex         sync.Mutex
	subscriptions map[string]*nats.Subscription
}

// NewNatsTransport establishes the shared NATS connection, ensures the
// protocol stream exists and returns a transport bound to it
func NewNatsTransport() (Transport, error) {
	natsutil.EstablishSharedNatsConnection(nil)
	natsutil.NatsCreateStream(common.DefaultNatsStream, []string{
		fmt.Sprintf("%s.>", common.DefaultNatsStream),
	})

	conn, err := nats.Connect(os.Getenv("NATS_URL"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS; %s", err.Error())
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JetStream context; %s", err.Error())
	}

	return &natsTransport{
		stream:        common.DefaultNatsStream,
		js:            js,
		subscriptions: map[string]*nats.Subscription{},
	}, nil
}

func (t *natsTransport) subject(topic string) string {
	return fmt.Sprintf("%s.%s", t.stream, topic)
}

func (t *natsTransport) Publish(topic, messageID string, data []byte) error {
	msg := &nats.Msg{
		Subject: t.subject(topic),
		Data:    data,
		Header: nats.Header{
			nats.MsgIdHdr: []string{messageID},
		},
	}

	if _, err := t.js.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish %d-byte message to topic %s; %s", len(data), topic, err.Error())
	}
	return nil
}

func (t *natsTransport) EnsureSubscription(topic, subscriptionID string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.subscriptions[subscriptionID]; ok {
		return nil
	}

	sub, err := t.js.PullSubscribe(t.subject(topic), subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to create durable subscription %s on topic %s; %s", subscriptionID, topic, err.Error())
	}

	t.subscriptions[subscriptionID] = sub
	return nil
}

func (t *natsTransport) Pull(topic, subscriptionID string, maxMessages int) ([]*Message, error) {
	t.mutex.Lock()
	sub, ok := t.subscriptions[subscriptionID]
	t.mutex.Unlock()

	if !ok {
		if err := t.EnsureSubscription(topic, subscriptionID); err != nil {
			return nil, err
		}
		t.mutex.Lock()
		sub = t.subscriptions[subscriptionID]
		t.mutex.Unlock()
	}

	natsMsgs, err := sub.Fetch(maxMessages, nats.MaxWait(natsPullMaxWait))
	if err != nil {
		if err == nats.ErrTimeout {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pull from subscription %s; %s", subscriptionID, err.Error())
	}

	messages := make([]*Message, 0, len(natsMsgs))
	for _, natsMsg := range natsMsgs {
		msg := natsMsg

		id := msg.Header.Get(nats.MsgIdHdr)
		if id == "" {
			if meta, err := msg.Metadata(); err == nil {
				id = fmt.Sprintf("%s-%d", subscriptionID, meta.Sequence.Stream)
			}
		}

		messages = append(messages, &Message{
			ID:   id,
			Data: msg.Data,
			ack:  func() error { return msg.Ack() },
		})
	}

	return messages, nil
}

// InMemoryTransport is a map-backed transport used by tests; unacknowledged
// messages are redelivered on subsequent pulls
type InMemoryTransport struct {
	mutex         sync.Mutex
	subscriptions map[string]*memSubscription
}

type memSubscription struct {
	topic   string
	pending []*Message
}

// NewInMemoryTransport initializes an empty in-memory transport
func NewInMemoryTransport() *InMemoryTransport {
	return &InMemoryTransport{
		subscriptions: map[string]*memSubscription{},
	}
}

// Publish delivers the message to every subscription on the topic
func (t *InMemoryTransport) Publish(topic, messageID string, data []byte) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, sub := range t.subscriptions {
		if sub.topic != topic {
			continue
		}

		subscription := sub
		msg := &Message{
			ID:   messageID,
			Data: append([]byte(nil), data...),
		}
		msg.ack = func() error {
			t.mutex.Lock()
			defer t.mutex.Unlock()
			for i, pending := range subscription.pending {
				if pending == msg {
					subscription.pending = append(subscription.pending[:i], subscription.pending[i+1:]...)
					break
				}
			}
			return nil
		}
		subscription.pending = append(subscription.pending, msg)
	}

	return nil
}

// EnsureSubscription registers the subscription; repeated calls are no-ops
func (t *InMemoryTransport) EnsureSubscription(topic, subscriptionID string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.subscriptions[subscriptionID]; ok {
		return nil
	}

	t.subscriptions[subscriptionID] = &memSubscription{
		topic: topic,
	}
	return nil
}

// Pull returns up to maxMessages pending deliveries without removing them;
// deliveries are removed on Ack
func (t *InMemoryTransport) Pull(topic, subscriptionID string, maxMessages int) ([]*Message, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	sub, ok := t.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("unknown subscription: %s", subscriptionID)
	}

	count := len(sub.pending)
	if count > maxMessages {
		count = maxMessages
	}

	messages := make([]*Message, count)
	copy(messages, sub.pending[:count])
	return messages, nil
}
