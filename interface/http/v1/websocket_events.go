package v1

import (
	"encoding/json"

	"github.com/shimmeringbee/wotbind/control"
	"github.com/shimmeringbee/wotbind/state"
	"github.com/shimmeringbee/wotbind/thing"
)

type eventMapper interface {
	MapEvent(e any) ([][]byte, error)
	InitialEvents() ([][]byte, error)
}

var _ eventMapper = (*websocketEventMapper)(nil)

type websocketEventMapper struct {
	thingMapper state.ThingMapper
}

const (
	ThingUpdateMessageName = "ThingUpdate"

	ValueMessageName = "Value"

	PropertyReadMessageName     = "PropertyRead"
	PropertyWrittenMessageName  = "PropertyWritten"
	PropertyObservedMessageName = "PropertyObserved"
	ActionInvokedMessageName    = "ActionInvoked"

	PropertyReadErrorMessageName     = "PropertyReadError"
	PropertyWrittenErrorMessageName  = "PropertyWrittenError"
	PropertyObservedErrorMessageName = "PropertyObservedError"
	ActionInvokedErrorMessageName    = "ActionInvokedError"
)

type Message struct {
	Type string `json:"type"`
}

type ResultMessage struct {
	Message
	thing.Result
}

type ThingUpdateMessage struct {
	Message
	ExportedThing
}

func (w websocketEventMapper) MapEvent(v any) ([][]byte, error) {
	switch e := v.(type) {
	case control.ValueMessage:
		return w.generateResultMessage(ValueMessageName, e.Result)

	case thing.PropertyRead:
		return w.generateResultMessage(PropertyReadMessageName, e.Result)
	case thing.PropertyReadError:
		return w.generateResultMessage(PropertyReadErrorMessageName, e.Result)
	case thing.PropertyWritten:
		return w.generateResultMessage(PropertyWrittenMessageName, e.Result)
	case thing.PropertyWrittenError:
		return w.generateResultMessage(PropertyWrittenErrorMessageName, e.Result)
	case thing.PropertyObserved:
		return w.generateResultMessage(PropertyObservedMessageName, e.Result)
	case thing.PropertyObservedError:
		return w.generateResultMessage(PropertyObservedErrorMessageName, e.Result)
	case thing.ActionInvoked:
		return w.generateResultMessage(ActionInvokedMessageName, e.Result)
	case thing.ActionInvokedError:
		return w.generateResultMessage(ActionInvokedErrorMessageName, e.Result)
	}

	return nil, nil
}

func (w websocketEventMapper) generateResultMessage(name string, r thing.Result) ([][]byte, error) {
	data, err := json.Marshal(ResultMessage{
		Message: Message{
			Type: name,
		},
		Result: r,
	})

	return [][]byte{data}, err
}

// InitialEvents describes every registered thing, so a fresh connection can
// build its view before live results arrive.
func (w websocketEventMapper) InitialEvents() ([][]byte, error) {
	var events [][]byte

	for _, c := range w.thingMapper.Things() {
		data, err := json.Marshal(ThingUpdateMessage{
			Message: Message{
				Type: ThingUpdateMessageName,
			},
			ExportedThing: exportThing(c),
		})

		if err != nil {
			return nil, err
		}

		events = append(events, data)
	}

	return events, nil
}
