package state

import (
	"sync"

	"github.com/shimmeringbee/wotbind/thing"
)

// ThingMapper resolves thing identifiers to their clients.
type ThingMapper interface {
	Things() map[string]*thing.Client
	Thing(string) (*thing.Client, bool)
}

var _ ThingMapper = (*ThingMux)(nil)

// ThingMux multiplexes every consumed thing behind one lookup, keyed by the
// identifier from its description. Clients are registered at startup and when
// a description is consumed at runtime; lookups are read-locked and cheap.
type ThingMux struct {
	lock sync.RWMutex

	clientByID map[string]*thing.Client
}

func NewThingMux() *ThingMux {
	return &ThingMux{
		clientByID: map[string]*thing.Client{},
	}
}

func (m *ThingMux) Add(c *thing.Client) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.clientByID[c.ID()] = c
}

func (m *ThingMux) Remove(id string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, found := m.clientByID[id]; !found {
		return false
	}

	delete(m.clientByID, id)
	return true
}

func (m *ThingMux) Things() map[string]*thing.Client {
	m.lock.RLock()
	defer m.lock.RUnlock()

	result := make(map[string]*thing.Client, len(m.clientByID))
	for k, v := range m.clientByID {
		result[k] = v
	}
	return result
}

func (m *ThingMux) Thing(id string) (*thing.Client, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	c, found := m.clientByID[id]
	return c, found
}
