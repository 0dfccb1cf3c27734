package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/wotbind/state"
	"github.com/shimmeringbee/wotbind/thing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocket(t *testing.T) {
	t.Run("a fresh connection receives the registered things and then live results", func(t *testing.T) {
		router, bus, _ := newTestRouter(t, &stubTransport{})

		srv := httptest.NewServer(router)
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"

		c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))

		_, frame, err := c.ReadMessage()
		require.NoError(t, err)

		var update ThingUpdateMessage
		require.NoError(t, json.Unmarshal(frame, &update))
		assert.Equal(t, ThingUpdateMessageName, update.Type)
		assert.Equal(t, "urn:thing:lamp", update.Identifier)

		bus.Publish(thing.PropertyObserved{Result: thing.SuccessResult(true, "urn:thing:lamp/enabled", "observeproperty")})

		_, frame, err = c.ReadMessage()
		require.NoError(t, err)

		var result ResultMessage
		require.NoError(t, json.Unmarshal(frame, &result))
		assert.Equal(t, PropertyObservedMessageName, result.Type)
		assert.Equal(t, true, result.Payload)
		assert.Equal(t, "urn:thing:lamp/enabled", result.Source)
	})

	t.Run("a connection torn down before servicing still releases the handler", func(t *testing.T) {
		bus := state.NewEventBus()
		z := &websocketController{
			eventbus:    bus,
			eventMapper: websocketEventMapper{thingMapper: state.NewThingMux()},
			logger:      logwrap.New(discard.Discard()),
		}

		serverConnCh := make(chan *websocket.Conn, 1)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := wsUpgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}

			serverConnCh <- c
		}))
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

		client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)

		server := <-serverConnCh
		require.NoError(t, client.Close())
		require.NoError(t, server.Close())

		done := make(chan struct{})

		go func() {
			z.handleConnection(server)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handler did not return after the connection was torn down")
		}
	})

	t.Run("unmapped events are dropped without closing the connection", func(t *testing.T) {
		router, bus, _ := newTestRouter(t, &stubTransport{})

		srv := httptest.NewServer(router)
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"

		c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))

		_, _, err = c.ReadMessage()
		require.NoError(t, err)

		bus.Publish(struct{ Unrelated string }{Unrelated: "event"})
		bus.Publish(thing.PropertyRead{Result: thing.SuccessResult(false, "urn:thing:lamp/enabled", "readproperty")})

		_, frame, err := c.ReadMessage()
		require.NoError(t, err)

		var result ResultMessage
		require.NoError(t, json.Unmarshal(frame, &result))
		assert.Equal(t, PropertyReadMessageName, result.Type)
	})
}
