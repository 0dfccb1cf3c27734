package binder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/wotbind/control"
	"github.com/shimmeringbee/wotbind/state"
	"github.com/shimmeringbee/wotbind/thing"
)

type BindError string

func (e BindError) Error() string {
	return string(e)
}

const (
	ErrNilTarget        = BindError("binding target is nil")
	ErrUnknownThing     = BindError("thing is not registered")
	ErrTargetNotTwoWay  = BindError("target does not produce changes, two way binding impossible")
	ErrValidationFailed = BindError("validation failed")
)

// TransformFunc reshapes a value crossing the binding in either direction.
type TransformFunc func(any) (any, error)

// Binding describes one property to target attachment.
type Binding struct {
	Thing    string
	Property string
	Target   control.Target

	TwoWay       bool
	PollInterval time.Duration
	Optimistic   *bool

	TransformIn  TransformFunc
	TransformOut TransformFunc
	Validate     func(any) error

	// OnError receives failed results for this binding; when nil they are
	// logged instead.
	OnError func(thing.Result)
}

// Record is the read only view of an active binding, carrying enough to
// rebuild it after a restart.
type Record struct {
	ID         string `json:"id"`
	Thing      string `json:"thingId"`
	Property   string `json:"property"`
	TwoWay     bool   `json:"twoWay"`
	IntervalMs int    `json:"intervalMs,omitempty"`
	Optimistic *bool  `json:"optimistic,omitempty"`
	Status     string `json:"status"`
}

const DefaultOperationTimeout = 10 * time.Second

// Binder owns the registry of active bindings. Each binding couples one thing
// property to one target: an observation keeps the target fed, and for two
// way bindings target changes are written back through a per binding
// coordinator.
type Binder struct {
	things    state.ThingMapper
	publisher thing.EventPublisher
	logger    logwrap.Logger

	lock     sync.RWMutex
	bindings map[string]*binding
}

type binding struct {
	id          string
	spec        Binding
	client      *thing.Client
	coordinator *control.Coordinator

	lock      sync.Mutex
	unobserve func()
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// setUnobserve installs the subscription cancel function, or runs it
// immediately if the binding was torn down while the subscription was being
// established.
func (rec *binding) setUnobserve(fn func()) {
	rec.lock.Lock()

	select {
	case <-rec.stopCh:
		rec.lock.Unlock()

		if fn != nil {
			fn()
		}
	default:
		rec.unobserve = fn
		rec.lock.Unlock()
	}
}

func NewBinder(things state.ThingMapper, publisher thing.EventPublisher, l logwrap.Logger) *Binder {
	return &Binder{
		things:    things,
		publisher: publisher,
		logger:    l,
		bindings:  map[string]*binding{},
	}
}

// Bind activates a binding and returns its identifier. A previous binding for
// the same target, thing and property is torn down first. Construction
// failures are reported before any observation starts.
func (b *Binder) Bind(spec Binding) (string, error) {
	if spec.Target == nil {
		return "", ErrNilTarget
	}

	client, found := b.things.Thing(spec.Thing)
	if !found {
		return "", fmt.Errorf("%w: %s", ErrUnknownThing, spec.Thing)
	}

	if _, found := client.Document().Property(spec.Property); !found {
		return "", fmt.Errorf("%w: %s on %s", thing.ErrPropertyNotFound, spec.Property, spec.Thing)
	}

	if spec.TwoWay {
		if _, ok := spec.Target.(control.ChangeNotifier); !ok {
			return "", ErrTargetNotTwoWay
		}
	}

	id := uuid.New().String()

	rec := &binding{
		id:     id,
		spec:   spec,
		client: client,
		coordinator: control.NewCoordinator(spec.Target, b.publisher, control.Config{
			Source: spec.Thing + "/" + spec.Property,
		}),
		stopCh: make(chan struct{}),
	}

	b.lock.Lock()

	var stale []*binding
	for _, existing := range b.bindings {
		if existing.spec.Target == spec.Target && existing.spec.Thing == spec.Thing && existing.spec.Property == spec.Property {
			stale = append(stale, existing)
			delete(b.bindings, existing.id)
		}
	}

	b.bindings[id] = rec
	b.lock.Unlock()

	for _, s := range stale {
		s.teardown()
	}

	go b.seed(id, rec)

	unobserve, err := client.ObservePropertyEvery(spec.Property, spec.PollInterval, func(r thing.Result) {
		b.handlePropertyUpdate(id, r)
	})

	if err != nil {
		if !errors.Is(err, thing.ErrNotObservable) {
			b.Unbind(id)
			return "", fmt.Errorf("failed to observe '%s' on '%s': %w", spec.Property, spec.Thing, err)
		}

		b.logger.LogDebug(context.Background(), "Property is not observable, binding will only seed and write.",
			logwrap.Datum("thing", spec.Thing), logwrap.Datum("property", spec.Property))
	}

	// The binding may have been removed while the observation was starting,
	// in which case setUnobserve cancels the subscription straight away.
	rec.setUnobserve(unobserve)

	if spec.TwoWay {
		go b.listenForChanges(rec)
	}

	b.logger.LogInfo(context.Background(), "Binding activated.", logwrap.Datum("binding", id),
		logwrap.Datum("thing", spec.Thing), logwrap.Datum("property", spec.Property), logwrap.Datum("twoWay", spec.TwoWay))

	return id, nil
}

// Unbind deactivates a binding, returning whether it was present. Results
// already in flight for the binding are discarded on arrival.
func (b *Binder) Unbind(id string) bool {
	b.lock.Lock()
	rec, found := b.bindings[id]
	if found {
		delete(b.bindings, id)
	}
	b.lock.Unlock()

	if !found {
		return false
	}

	rec.teardown()

	b.logger.LogInfo(context.Background(), "Binding deactivated.", logwrap.Datum("binding", id))
	return true
}

func (b *Binder) UnbindAll() {
	b.lock.RLock()
	ids := make([]string, 0, len(b.bindings))
	for id := range b.bindings {
		ids = append(ids, id)
	}
	b.lock.RUnlock()

	for _, id := range ids {
		b.Unbind(id)
	}
}

func (b *Binder) Bindings() []Record {
	b.lock.RLock()
	defer b.lock.RUnlock()

	records := make([]Record, 0, len(b.bindings))
	for _, rec := range b.bindings {
		records = append(records, Record{
			ID:         rec.id,
			Thing:      rec.spec.Thing,
			Property:   rec.spec.Property,
			TwoWay:     rec.spec.TwoWay,
			IntervalMs: int(rec.spec.PollInterval / time.Millisecond),
			Optimistic: rec.spec.Optimistic,
			Status:     string(rec.coordinator.State().Status),
		})
	}

	return records
}

func (b *Binder) seed(id string, rec *binding) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultOperationTimeout)
	defer cancel()

	b.handlePropertyUpdate(id, rec.client.ReadProperty(ctx, rec.spec.Property))
}

// handlePropertyUpdate routes an inbound result to its binding. Results for a
// binding that no longer exists are stale and dropped silently.
func (b *Binder) handlePropertyUpdate(id string, r thing.Result) {
	b.lock.RLock()
	rec, found := b.bindings[id]
	b.lock.RUnlock()

	if !found {
		return
	}

	if !r.OK {
		b.reportError(rec, r)
		return
	}

	value := r.Payload

	if rec.spec.TransformIn != nil {
		transformed, err := runTransform(rec.spec.TransformIn, value)
		if err != nil {
			b.reportError(rec, thing.FailedResult(fmt.Errorf("inbound transform: %w", err), r.Source, "transform"))
			return
		}

		value = transformed
	}

	rec.coordinator.SetValueSilent(value)
}

func (b *Binder) listenForChanges(rec *binding) {
	changes := rec.spec.Target.(control.ChangeNotifier).Changes()

	for {
		select {
		case <-rec.stopCh:
			return
		case value, ok := <-changes:
			if !ok {
				return
			}

			b.handleChange(rec, value)
		}
	}
}

// handleChange pushes a user driven target change back to the remote
// property. Validation failures never reach the coordinator; transform and
// write failures surface through its rollback path.
func (b *Binder) handleChange(rec *binding, value any) {
	if rec.spec.Validate != nil {
		if err := rec.spec.Validate(value); err != nil {
			b.reportError(rec, thing.FailedResult(fmt.Errorf("%w: %s", ErrValidationFailed, err.Error()),
				rec.spec.Thing+"/"+rec.spec.Property, "valuechange"))
			return
		}
	}

	rec.coordinator.SetValue(value, control.SetOptions{
		Optimistic: rec.spec.Optimistic,
		Write:      rec.write,
	})
}

func (rec *binding) write(value any) thing.Result {
	if rec.spec.TransformOut != nil {
		transformed, err := runTransform(rec.spec.TransformOut, value)
		if err != nil {
			return thing.FailedResult(fmt.Errorf("outbound transform: %w", err),
				rec.spec.Thing+"/"+rec.spec.Property, "writeproperty")
		}

		value = transformed
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultOperationTimeout)
	defer cancel()

	return rec.client.WriteProperty(ctx, rec.spec.Property, value)
}

func (b *Binder) reportError(rec *binding, r thing.Result) {
	if rec.spec.OnError != nil {
		rec.spec.OnError(r)
		return
	}

	message := "operation failed"
	if r.Error != nil {
		message = r.Error.Message
	}

	b.logger.LogWarn(context.Background(), "Binding operation failed.", logwrap.Datum("binding", rec.id),
		logwrap.Datum("source", r.Source), logwrap.Datum("error", message))
}

func (rec *binding) teardown() {
	rec.stopOnce.Do(func() {
		close(rec.stopCh)
	})

	rec.lock.Lock()
	unobserve := rec.unobserve
	rec.unobserve = nil
	rec.lock.Unlock()

	if unobserve != nil {
		unobserve()
	}
}

func runTransform(fn TransformFunc, value any) (out any, err error) {
	defer func() {
		if cause := recover(); cause != nil {
			err = fmt.Errorf("transform panic: %v", cause)
		}
	}()

	return fn(value)
}
