package v1

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/wotbind/binder"
	"github.com/shimmeringbee/wotbind/interface/http/auth/null"
	"github.com/shimmeringbee/wotbind/state"
	"github.com/shimmeringbee/wotbind/td"
	"github.com/shimmeringbee/wotbind/thing"
	"github.com/shimmeringbee/wotbind/transport"
	"github.com/stretchr/testify/require"
)

// stubTransport answers every read with a canned payload and records writes.
type stubTransport struct {
	lock sync.Mutex

	response []byte
	err      error

	endpoints []transport.Endpoint
	payloads  [][]byte
}

func (s *stubTransport) Request(_ context.Context, e transport.Endpoint, payload []byte) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.endpoints = append(s.endpoints, e)
	s.payloads = append(s.payloads, payload)

	return s.response, s.err
}

func (s *stubTransport) Subscribe(transport.Endpoint, func([]byte), func(error)) (func(), error) {
	return nil, transport.ErrSubscriptionUnsupported
}

func (s *stubTransport) requestCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.endpoints)
}

func (s *stubTransport) lastPayload() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()

	if len(s.payloads) == 0 {
		return nil
	}

	return s.payloads[len(s.payloads)-1]
}

func routerTestDocument(t *testing.T) *td.Document {
	doc, err := td.Parse([]byte(`{
		"title": "Lamp",
		"id": "urn:thing:lamp",
		"properties": {
			"enabled": {
				"observable": true,
				"forms": [{"href": "http://lamp.example/enabled", "op": ["readproperty", "writeproperty", "observeproperty"]}]
			},
			"firmware": {
				"readOnly": true,
				"forms": [{"href": "http://lamp.example/firmware", "op": "readproperty"}]
			}
		},
		"actions": {
			"toggle": {
				"forms": [{"href": "http://lamp.example/toggle", "op": "invokeaction"}]
			}
		}
	}`), "")
	require.NoError(t, err)

	return doc
}

func newTestRouter(t *testing.T, tr transport.Client) (http.Handler, *state.EventBus, *binder.Binder) {
	l := logwrap.New(discard.Discard())
	bus := state.NewEventBus()

	things := state.NewThingMux()
	things.Add(thing.NewClient(routerTestDocument(t), tr, thing.Config{
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
		PollInterval:   time.Minute,
	}, bus, l))

	b := binder.NewBinder(things, bus, l)
	t.Cleanup(b.UnbindAll)

	return ConstructRouter(things, b, l, null.Authenticator{}, bus), bus, b
}
