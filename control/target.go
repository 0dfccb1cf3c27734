package control

import (
	"sync"
)

// Target is the display side of a control: the value a user currently sees.
type Target interface {
	DisplayValue() any
	SetDisplayValue(any)
}

// ChangeNotifier is implemented by targets that produce user driven value
// changes, enabling two-way bindings.
type ChangeNotifier interface {
	Changes() <-chan any
}

var _ Target = (*Value)(nil)
var _ ChangeNotifier = (*Value)(nil)

// Value is a plain in-memory target, used for bindings created without a
// concrete control behind them and throughout the tests.
type Value struct {
	lock     sync.RWMutex
	value    any
	changeCh chan any
}

const valueChangeBufferSize = 16

func NewValue() *Value {
	return &Value{
		changeCh: make(chan any, valueChangeBufferSize),
	}
}

func (v *Value) DisplayValue() any {
	v.lock.RLock()
	defer v.lock.RUnlock()

	return v.value
}

func (v *Value) SetDisplayValue(value any) {
	v.lock.Lock()
	defer v.lock.Unlock()

	v.value = value
}

// Change simulates a user driven change: the new value is offered to the
// change channel without touching the display, which is updated by whoever
// consumes the change.
func (v *Value) Change(value any) {
	select {
	case v.changeCh <- value:
	default:
	}
}

func (v *Value) Changes() <-chan any {
	return v.changeCh
}
