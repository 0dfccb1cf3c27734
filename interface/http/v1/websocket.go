package v1

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/wotbind/state"
)

var wsUpgrader = websocket.Upgrader{}

type websocketController struct {
	eventbus    state.EventSubscriber
	eventMapper eventMapper
	logger      logwrap.Logger
}

const WebsocketConnectionEventBufferSize = 16

func (z *websocketController) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	c, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer c.Close()

	err = z.handleConnection(c)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (z *websocketController) handleConnection(c *websocket.Conn) error {
	eventsCh := make(chan any, WebsocketConnectionEventBufferSize)
	shutdownCh := make(chan struct{})
	defer close(eventsCh)
	// Closing rather than sending: serviceOutgoing may already have returned
	// on a write error, and a send would block this handler forever.
	defer close(shutdownCh)

	z.eventbus.Subscribe(eventsCh)
	defer z.eventbus.Unsubscribe(eventsCh)

	initialEvents, err := z.eventMapper.InitialEvents()
	if err != nil {
		return err
	}

	go z.serviceOutgoing(c, initialEvents, eventsCh, shutdownCh)
	return z.serviceIncoming(c)
}

func (z *websocketController) serviceOutgoing(c *websocket.Conn, initial [][]byte, ch chan any, shutCh chan struct{}) {
	for _, d := range initial {
		if err := c.WriteMessage(websocket.TextMessage, d); err != nil {
			z.logger.LogError(context.Background(), "Failed to send initial message to websocket.", logwrap.Err(err))
			return
		}
	}

	for {
		select {
		case event := <-ch:
			frames, err := z.eventMapper.MapEvent(event)
			if err != nil {
				z.logger.LogError(context.Background(), "Failed to map event to websocket message.", logwrap.Err(err), logwrap.Datum("event", event))
				continue
			}

			for _, d := range frames {
				if err := c.WriteMessage(websocket.TextMessage, d); err != nil {
					z.logger.LogError(context.Background(), "Failed to send messages to websocket.", logwrap.Err(err))
					return
				}
			}
		case <-shutCh:
			return
		}
	}
}

func (z *websocketController) serviceIncoming(c *websocket.Conn) error {
	for {
		_, _, err := c.ReadMessage()
		if err != nil {
			if _, ok := err.(*websocket.CloseError); ok {
				z.logger.LogDebug(context.Background(), "Websocket closed.", logwrap.Err(err))
				return nil
			}

			z.logger.LogError(context.Background(), "Failed to read message from websocket.", logwrap.Err(err))
			return err
		}
	}
}
