package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shimmeringbee/wotbind/td"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketURL(t *testing.T) {
	t.Run("swaps http schemes for websocket schemes", func(t *testing.T) {
		u, err := websocketURL("http://example.org/enabled")
		assert.NoError(t, err)
		assert.Equal(t, "ws://example.org/enabled", u)

		u, err = websocketURL("https://example.org/enabled")
		assert.NoError(t, err)
		assert.Equal(t, "wss://example.org/enabled", u)
	})

	t.Run("passes websocket schemes through", func(t *testing.T) {
		u, err := websocketURL("wss://example.org/enabled")
		assert.NoError(t, err)
		assert.Equal(t, "wss://example.org/enabled", u)
	})

	t.Run("rejects schemes with no websocket equivalent", func(t *testing.T) {
		_, err := websocketURL("ftp://example.org/enabled")
		assert.Error(t, err)
	})
}

func TestNativeSubscribe(t *testing.T) {
	t.Run("delivers pushed messages until unsubscribed", func(t *testing.T) {
		upgrader := websocket.Upgrader{}
		sendCh := make(chan []byte, 4)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)
			defer c.Close()

			for data := range sendCh {
				if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}))
		defer srv.Close()
		defer close(sendCh)

		n := NewNative(nil, nil)

		valueCh := make(chan []byte, 4)
		unsubscribe, err := n.Subscribe(Endpoint{URL: srv.URL, Op: td.OpObserveProperty}, func(data []byte) {
			valueCh <- data
		}, func(error) {})
		require.NoError(t, err)

		sendCh <- []byte(`1`)

		select {
		case data := <-valueCh:
			assert.Equal(t, []byte(`1`), data)
		case <-time.After(time.Second):
			assert.Fail(t, "no value received")
		}

		unsubscribe()

		sendCh <- []byte(`2`)

		select {
		case <-valueCh:
			assert.Fail(t, "value received after unsubscribe")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("errors when the endpoint cannot be dialled", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		n := NewNative(nil, nil)

		_, err := n.Subscribe(Endpoint{URL: srv.URL}, func([]byte) {}, func(error) {})

		var failure Failure
		assert.ErrorAs(t, err, &failure)
	})
}

func TestTopicFromHref(t *testing.T) {
	t.Run("a bare topic passes through", func(t *testing.T) {
		topic, err := topicFromHref("home/lamp/brightness")
		assert.NoError(t, err)
		assert.Equal(t, "home/lamp/brightness", topic)
	})

	t.Run("an mqtt url yields its path as the topic", func(t *testing.T) {
		topic, err := topicFromHref("mqtt://broker.example/home/lamp/brightness")
		assert.NoError(t, err)
		assert.Equal(t, "home/lamp/brightness", topic)
	})

	t.Run("an mqtt url without a topic path errors", func(t *testing.T) {
		_, err := topicFromHref("mqtt://broker.example")
		assert.Error(t, err)
	})
}
