package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/shimmeringbee/wotbind/thing"
)

// ValueMessage is published on every confirmed value change of a control,
// whether it came from user interaction or a deferred remote apply.
type ValueMessage struct{ thing.Result }

// Operation performs the remote side of a value change, typically a property
// write, and reports the outcome as a Result.
type Operation func(value any) thing.Result

type RetryOptions struct {
	Attempts int
	Delay    time.Duration
}

// SetOptions modifies a single SetValue call. Write takes precedence over
// Read when both are supplied; with neither, the call is a pure local set.
type SetOptions struct {
	// Optimistic defaults to true; only an explicit false defers the
	// display update until the operation resolves.
	Optimistic   *bool
	CustomStatus Status
	Write        Operation
	Read         Operation
	AutoRetry    *RetryOptions

	// revert marks an internally scheduled rollback; it never clears an
	// error and never re-applies optimistically.
	revert bool
}

type Config struct {
	SuccessClearDelay time.Duration
	ErrorClearDelay   time.Duration

	// Source names this control in emitted results, conventionally
	// thingID/propertyName.
	Source string
}

const (
	DefaultSuccessClearDelay = 1200 * time.Millisecond
	DefaultErrorClearDelay   = 3 * time.Second
)

func (c Config) withDefaults() Config {
	if c.SuccessClearDelay <= 0 {
		c.SuccessClearDelay = DefaultSuccessClearDelay
	}

	if c.ErrorClearDelay <= 0 {
		c.ErrorClearDelay = DefaultErrorClearDelay
	}

	return c
}

// Coordinator is the optimistic update state machine shared by every bound
// control: it applies values to the target, reconciles them against remote
// operations, reverts on failure and drives the status display lifecycle.
type Coordinator struct {
	lock      sync.Mutex
	target    Target
	publisher thing.EventPublisher
	cfg       Config

	state State

	// statusGen tags each status transition; a deferred idle transition
	// only fires if the generation it was scheduled under is still
	// current, so a stale timer never clobbers a newer status.
	statusGen uint64

	// displaySeq tags each display update; a revert only lands if no
	// strictly later call has updated the display since.
	displaySeq uint64
}

func NewCoordinator(target Target, publisher thing.EventPublisher, cfg Config) *Coordinator {
	return &Coordinator{
		target:    target,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
	}
}

func (c *Coordinator) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.state
}

func (c *Coordinator) Target() Target {
	return c.target
}

// SetValue applies a value to the control, optionally reconciling it against
// a remote operation. It returns whether the call ultimately succeeded and
// never panics; operation failures are captured into the state.
func (c *Coordinator) SetValue(value any, opts SetOptions) bool {
	if opts.CustomStatus != "" {
		return c.setWithCustomStatus(value, opts.CustomStatus)
	}

	optimistic := opts.Optimistic == nil || *opts.Optimistic

	c.lock.Lock()

	if c.state.Status == Error && !opts.revert {
		c.state.Status = Idle
		c.state.LastError = ""
		c.statusGen++
	}

	var prev any
	var mySeq uint64
	applied := false

	if optimistic && !opts.revert {
		prev = c.target.DisplayValue()
		c.target.SetDisplayValue(value)
		c.displaySeq++
		mySeq = c.displaySeq
		c.state.LastUpdate = time.Now()
		applied = true
	}

	c.lock.Unlock()

	if applied {
		c.emitValue(value, prev)
	}

	op := opts.Write
	if op == nil {
		op = opts.Read
	}

	if op == nil {
		if !optimistic && !opts.revert {
			c.applyDeferred(value)
		}

		return true
	}

	c.setStatus(Loading)

	r := runOperation(op, value, c.cfg.Source)

	if r.OK {
		c.scheduleClear(Success, c.cfg.SuccessClearDelay)

		if !optimistic {
			c.applyDeferred(value)
		}

		return true
	}

	c.lock.Lock()
	c.state.LastError = resultErrorMessage(r)
	c.lock.Unlock()

	c.scheduleClear(Error, c.cfg.ErrorClearDelay)

	if applied {
		// Roll the display back to the pre-operation value, unless a
		// strictly later call has updated it since. No value event is
		// emitted for the rollback, to avoid an echo loop.
		c.lock.Lock()
		if c.displaySeq == mySeq {
			c.target.SetDisplayValue(prev)
			c.displaySeq++
		}
		c.lock.Unlock()
	}

	if opts.AutoRetry != nil && opts.AutoRetry.Attempts > 0 {
		retry := *opts.AutoRetry
		retry.Attempts--

		retryOpts := opts
		retryOpts.AutoRetry = &retry
		retryOpts.revert = false

		time.AfterFunc(opts.AutoRetry.Delay, func() {
			c.SetValue(value, retryOpts)
		})
	}

	return false
}

// SetValueSilent applies an externally sourced value, such as an observation
// callback, without emitting any event or touching the operation status.
// Updates applied this way still count as the latest display value, so a
// pending revert from an older operation cannot clobber them.
func (c *Coordinator) SetValueSilent(value any) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.target.SetDisplayValue(value)
	c.displaySeq++
	c.state.LastUpdate = time.Now()
}

func (c *Coordinator) setWithCustomStatus(value any, status Status) bool {
	c.lock.Lock()

	prev := c.target.DisplayValue()
	c.target.SetDisplayValue(value)
	c.displaySeq++
	c.state.LastUpdate = time.Now()

	c.lock.Unlock()

	switch status {
	case Success, Error:
		c.scheduleClear(status, c.clearDelayFor(status))
	default:
		c.setStatus(status)
	}

	if status == Success {
		c.emitValue(value, prev)
	}

	return status != Error
}

func (c *Coordinator) clearDelayFor(status Status) time.Duration {
	if status == Error {
		return c.cfg.ErrorClearDelay
	}

	return c.cfg.SuccessClearDelay
}

func (c *Coordinator) setStatus(status Status) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.state.Status = status
	c.statusGen++
}

// scheduleClear enters an auto-clearing status and schedules the deferred
// transition back to idle, tagged with the generation it was scheduled under.
func (c *Coordinator) scheduleClear(status Status, delay time.Duration) {
	c.lock.Lock()
	c.state.Status = status
	c.statusGen++
	gen := c.statusGen
	c.lock.Unlock()

	time.AfterFunc(delay, func() {
		c.lock.Lock()
		defer c.lock.Unlock()

		if c.statusGen == gen && c.state.Status == status {
			c.state.Status = Idle
			c.statusGen++
		}
	})
}

func (c *Coordinator) emitValue(value any, prev any) {
	if c.publisher == nil {
		return
	}

	c.publisher.Publish(ValueMessage{thing.Result{
		Payload:   value,
		Prev:      prev,
		Timestamp: time.Now(),
		Source:    c.cfg.Source,
		OK:        true,
		Meta:      map[string]any{"operation": "valuechange"},
	}})
}

func (c *Coordinator) applyDeferred(value any) {
	c.lock.Lock()

	prev := c.target.DisplayValue()
	c.target.SetDisplayValue(value)
	c.displaySeq++
	c.state.LastUpdate = time.Now()

	c.lock.Unlock()

	c.emitValue(value, prev)
}

func runOperation(op Operation, value any, source string) (r thing.Result) {
	defer func() {
		if cause := recover(); cause != nil {
			r = thing.FailedResult(fmt.Errorf("operation panic: %v", cause), source, "setvalue")
		}
	}()

	return op(value)
}

func resultErrorMessage(r thing.Result) string {
	if r.Error != nil {
		return r.Error.Message
	}

	return "operation failed"
}
