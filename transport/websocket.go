package transport

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

var _ Client = (*Native)(nil)

// Native is the full protocol transport: request/response over HTTP plus
// native push observation over a websocket dialled against the same endpoint,
// with the scheme swapped to ws/wss.
type Native struct {
	*HTTP

	dialer *websocket.Dialer
}

func NewNative(h *HTTP, dialer *websocket.Dialer) *Native {
	if h == nil {
		h = NewHTTP(nil)
	}

	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &Native{HTTP: h, dialer: dialer}
}

func (n *Native) Subscribe(e Endpoint, onValue func([]byte), onError func(error)) (func(), error) {
	wsURL, err := websocketURL(e.URL)
	if err != nil {
		return nil, Failure{Code: 0, Message: err.Error()}
	}

	conn, _, err := n.dialer.Dial(wsURL, nil)
	if err != nil {
		return nil, Failure{Code: 0, Message: fmt.Sprintf("failed to dial '%s': %s", wsURL, err.Error())}
	}

	var lock sync.Mutex
	closed := false

	go func() {
		for {
			_, data, err := conn.ReadMessage()

			lock.Lock()
			done := closed
			lock.Unlock()

			if done {
				return
			}

			if err != nil {
				onError(Failure{Code: 0, Message: err.Error()})
				return
			}

			onValue(data)
		}
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			lock.Lock()
			closed = true
			lock.Unlock()

			_ = conn.Close()
		})
	}, nil
}

func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint url '%s': %w", raw, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("no websocket equivalent for scheme '%s'", u.Scheme)
	}

	return u.String(), nil
}
