package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/shimmeringbee/wotbind/td"
)

var _ Client = (*MQTT)(nil)

// MQTT adapts a paho client to the transport contract. Form hrefs name
// topics, either bare or as mqtt:// URLs whose path is the topic. Reads await
// the retained message on the topic, writes and invokes publish to it, and
// Subscribe is a native push subscription.
type MQTT struct {
	client   pahomqtt.Client
	qos      byte
	retained bool

	readTimeout time.Duration
}

const DefaultMQTTReadTimeout = 5 * time.Second

func NewMQTT(client pahomqtt.Client, qos byte, retained bool) *MQTT {
	return &MQTT{
		client:      client,
		qos:         qos,
		retained:    retained,
		readTimeout: DefaultMQTTReadTimeout,
	}
}

// WithReadTimeout overrides how long reads wait for a retained message.
func (m *MQTT) WithReadTimeout(d time.Duration) *MQTT {
	m.readTimeout = d
	return m
}

func (m *MQTT) Request(ctx context.Context, e Endpoint, payload []byte) ([]byte, error) {
	topic, err := topicFromHref(e.URL)
	if err != nil {
		return nil, Failure{Code: 0, Message: err.Error()}
	}

	switch e.Op {
	case td.OpReadProperty:
		return m.readRetained(ctx, topic)
	default:
		token := m.client.Publish(topic, m.qos, m.retained, payload)
		if err := awaitToken(ctx, token); err != nil {
			return nil, Failure{Code: 0, Message: fmt.Sprintf("failed to publish to '%s': %s", topic, err.Error())}
		}

		return nil, nil
	}
}

func (m *MQTT) readRetained(ctx context.Context, topic string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.readTimeout)
	defer cancel()

	msgCh := make(chan []byte, 1)

	token := m.client.Subscribe(topic, m.qos, func(_ pahomqtt.Client, message pahomqtt.Message) {
		select {
		case msgCh <- message.Payload():
		default:
		}
	})

	if err := awaitToken(ctx, token); err != nil {
		return nil, Failure{Code: 0, Message: fmt.Sprintf("failed to subscribe to '%s': %s", topic, err.Error())}
	}

	defer m.client.Unsubscribe(topic)

	select {
	case data := <-msgCh:
		return data, nil
	case <-ctx.Done():
		return nil, Failure{Code: 0, Message: fmt.Sprintf("timed out awaiting value on '%s'", topic)}
	}
}

func (m *MQTT) Subscribe(e Endpoint, onValue func([]byte), onError func(error)) (func(), error) {
	topic, err := topicFromHref(e.URL)
	if err != nil {
		return nil, Failure{Code: 0, Message: err.Error()}
	}

	var lock sync.Mutex
	closed := false

	token := m.client.Subscribe(topic, m.qos, func(_ pahomqtt.Client, message pahomqtt.Message) {
		lock.Lock()
		done := closed
		lock.Unlock()

		if done {
			return
		}

		onValue(message.Payload())
	})

	ctx, cancel := context.WithTimeout(context.Background(), m.readTimeout)
	defer cancel()

	if err := awaitToken(ctx, token); err != nil {
		return nil, Failure{Code: 0, Message: fmt.Sprintf("failed to subscribe to '%s': %s", topic, err.Error())}
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			lock.Lock()
			closed = true
			lock.Unlock()

			m.client.Unsubscribe(topic)
		})
	}, nil
}

func topicFromHref(href string) (string, error) {
	if !strings.Contains(href, "://") {
		return href, nil
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("failed to parse topic href '%s': %w", href, err)
	}

	topic := strings.TrimPrefix(u.Path, "/")
	if topic == "" {
		return "", fmt.Errorf("topic href '%s' has no topic path", href)
	}

	return topic, nil
}

func awaitToken(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
