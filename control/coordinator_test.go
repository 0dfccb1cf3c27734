package control

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shimmeringbee/wotbind/thing"
	"github.com/shimmeringbee/wotbind/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	lock   sync.Mutex
	events []any
}

func (p *capturePublisher) Publish(e any) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.events = append(p.events, e)
}

func (p *capturePublisher) valueMessages() []ValueMessage {
	p.lock.Lock()
	defer p.lock.Unlock()

	var msgs []ValueMessage
	for _, e := range p.events {
		if m, ok := e.(ValueMessage); ok {
			msgs = append(msgs, m)
		}
	}

	return msgs
}

func testCoordinator() (*Coordinator, *Value, *capturePublisher) {
	target := NewValue()
	publisher := &capturePublisher{}

	c := NewCoordinator(target, publisher, Config{
		SuccessClearDelay: 30 * time.Millisecond,
		ErrorClearDelay:   30 * time.Millisecond,
		Source:            "t1/enabled",
	})

	return c, target, publisher
}

func succeedingWrite() Operation {
	return func(value any) thing.Result {
		return thing.SuccessResult(value, "t1/enabled", "writeproperty")
	}
}

func failingWrite() Operation {
	return func(any) thing.Result {
		return thing.FailedResult(transport.Failure{Code: 500, Message: "write refused"}, "t1/enabled", "writeproperty")
	}
}

func TestCoordinatorSetValue(t *testing.T) {
	t.Run("a pure local set applies the value and emits one value message", func(t *testing.T) {
		c, target, publisher := testCoordinator()
		target.SetDisplayValue(false)

		ok := c.SetValue(true, SetOptions{})
		assert.True(t, ok)
		assert.Equal(t, true, target.DisplayValue())
		assert.Equal(t, Idle, c.State().Status)

		msgs := publisher.valueMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, true, msgs[0].Payload)
		assert.Equal(t, false, msgs[0].Prev)
	})

	t.Run("an optimistic apply happens before the write resolves", func(t *testing.T) {
		c, target, _ := testCoordinator()
		target.SetDisplayValue(false)

		var seenDuringWrite any
		write := func(value any) thing.Result {
			seenDuringWrite = target.DisplayValue()
			return thing.SuccessResult(value, "t1/enabled", "writeproperty")
		}

		ok := c.SetValue(true, SetOptions{Write: write})
		assert.True(t, ok)
		assert.Equal(t, true, seenDuringWrite)
		assert.Equal(t, Success, c.State().Status)
	})

	t.Run("a failed write reverts to the pre-operation value with exactly one value message", func(t *testing.T) {
		c, target, publisher := testCoordinator()
		target.SetDisplayValue("v0")

		ok := c.SetValue("v1", SetOptions{Write: failingWrite()})
		assert.False(t, ok)
		assert.Equal(t, "v0", target.DisplayValue())

		state := c.State()
		assert.Equal(t, Error, state.Status)
		assert.Contains(t, state.LastError, "write refused")

		assert.Len(t, publisher.valueMessages(), 1)
	})

	t.Run("a non-optimistic set defers the display update until the write resolves", func(t *testing.T) {
		c, target, publisher := testCoordinator()
		target.SetDisplayValue(false)

		optimistic := false

		var seenDuringWrite any
		write := func(value any) thing.Result {
			seenDuringWrite = target.DisplayValue()
			return thing.SuccessResult(value, "t1/enabled", "writeproperty")
		}

		ok := c.SetValue(true, SetOptions{Optimistic: &optimistic, Write: write})
		assert.True(t, ok)
		assert.Equal(t, false, seenDuringWrite)
		assert.Equal(t, true, target.DisplayValue())
		assert.Len(t, publisher.valueMessages(), 1)
	})

	t.Run("a non-optimistic failed write never touches the display", func(t *testing.T) {
		c, target, publisher := testCoordinator()
		target.SetDisplayValue(false)

		optimistic := false

		ok := c.SetValue(true, SetOptions{Optimistic: &optimistic, Write: failingWrite()})
		assert.False(t, ok)
		assert.Equal(t, false, target.DisplayValue())
		assert.Empty(t, publisher.valueMessages())
	})

	t.Run("success auto-clears back to idle", func(t *testing.T) {
		c, _, _ := testCoordinator()

		c.SetValue(true, SetOptions{Write: succeedingWrite()})
		assert.Equal(t, Success, c.State().Status)

		assert.Eventually(t, func() bool {
			return c.State().Status == Idle
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("a stale clear timer does not clobber a newer status", func(t *testing.T) {
		c, _, _ := testCoordinator()

		c.SetValue(true, SetOptions{Write: succeedingWrite()})
		assert.Equal(t, Success, c.State().Status)

		blockCh := make(chan struct{})
		doneCh := make(chan struct{})

		go func() {
			c.SetValue(false, SetOptions{Write: func(value any) thing.Result {
				<-blockCh
				return thing.SuccessResult(value, "t1/enabled", "writeproperty")
			}})
			close(doneCh)
		}()

		// Wait out the first call's clear delay while the second call is
		// still loading; the stale timer must leave loading alone.
		assert.Eventually(t, func() bool {
			return c.State().Status == Loading
		}, time.Second, time.Millisecond)

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, Loading, c.State().Status)

		close(blockCh)
		<-doneCh
	})

	t.Run("a fresh call acknowledges and clears a standing error", func(t *testing.T) {
		c, _, _ := testCoordinator()

		c.SetValue(true, SetOptions{Write: failingWrite()})
		assert.Equal(t, Error, c.State().Status)

		c.SetValue(false, SetOptions{})
		state := c.State()
		assert.Equal(t, Idle, state.Status)
		assert.Empty(t, state.LastError)
	})

	t.Run("a custom status bypasses the machine and emits on success", func(t *testing.T) {
		c, target, publisher := testCoordinator()

		ok := c.SetValue("saved", SetOptions{CustomStatus: Success})
		assert.True(t, ok)
		assert.Equal(t, "saved", target.DisplayValue())
		assert.Equal(t, Success, c.State().Status)
		assert.Len(t, publisher.valueMessages(), 1)

		ok = c.SetValue("broken", SetOptions{CustomStatus: Error})
		assert.False(t, ok)
		assert.Len(t, publisher.valueMessages(), 1)
	})

	t.Run("auto retry reissues the write with a decremented budget", func(t *testing.T) {
		c, target, _ := testCoordinator()
		target.SetDisplayValue(false)

		var lock sync.Mutex
		calls := 0

		write := func(value any) thing.Result {
			lock.Lock()
			calls++
			n := calls
			lock.Unlock()

			if n <= 2 {
				return thing.FailedResult(transport.Failure{Code: 503, Message: "unavailable"}, "t1/enabled", "writeproperty")
			}
			return thing.SuccessResult(value, "t1/enabled", "writeproperty")
		}

		ok := c.SetValue(true, SetOptions{
			Write:     write,
			AutoRetry: &RetryOptions{Attempts: 2, Delay: 10 * time.Millisecond},
		})
		assert.False(t, ok)

		assert.Eventually(t, func() bool {
			lock.Lock()
			defer lock.Unlock()
			return calls == 3
		}, time.Second, 5*time.Millisecond)

		assert.Eventually(t, func() bool {
			return c.State().Status == Success || c.State().Status == Idle
		}, time.Second, 5*time.Millisecond)

		assert.Equal(t, true, target.DisplayValue())
	})

	t.Run("an exhausted retry budget stops retrying", func(t *testing.T) {
		c, _, _ := testCoordinator()

		var calls int64
		c.SetValue(true, SetOptions{
			Write: func(any) thing.Result {
				atomic.AddInt64(&calls, 1)
				return thing.FailedResult(transport.Failure{Code: 500, Message: "broken"}, "t1/enabled", "writeproperty")
			},
			AutoRetry: &RetryOptions{Attempts: 1, Delay: 5 * time.Millisecond},
		})

		assert.Eventually(t, func() bool { return atomic.LoadInt64(&calls) == 2 }, time.Second, 5*time.Millisecond)

		time.Sleep(30 * time.Millisecond)
		assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
	})

	t.Run("a panicking operation is captured as a failure", func(t *testing.T) {
		c, target, _ := testCoordinator()
		target.SetDisplayValue("v0")

		ok := c.SetValue("v1", SetOptions{Write: func(any) thing.Result {
			panic("operation exploded")
		}})
		assert.False(t, ok)
		assert.Equal(t, "v0", target.DisplayValue())
		assert.Contains(t, c.State().LastError, "operation exploded")
	})

	t.Run("a panicking operation's result names the control as its source", func(t *testing.T) {
		r := runOperation(func(any) thing.Result {
			panic("operation exploded")
		}, nil, "t1/enabled")

		assert.False(t, r.OK)
		assert.Equal(t, "t1/enabled", r.Source)
	})

	t.Run("a later call's display value survives an earlier call's revert", func(t *testing.T) {
		c, target, _ := testCoordinator()
		target.SetDisplayValue("v0")

		blockCh := make(chan struct{})
		doneCh := make(chan struct{})

		go func() {
			c.SetValue("v1", SetOptions{Write: func(any) thing.Result {
				<-blockCh
				return thing.FailedResult(transport.Failure{Code: 500, Message: "late failure"}, "t1/enabled", "writeproperty")
			}})
			close(doneCh)
		}()

		assert.Eventually(t, func() bool {
			return target.DisplayValue() == "v1"
		}, time.Second, time.Millisecond)

		c.SetValue("v2", SetOptions{})
		assert.Equal(t, "v2", target.DisplayValue())

		close(blockCh)
		<-doneCh

		assert.Equal(t, "v2", target.DisplayValue())
	})
}

func TestCoordinatorSetValueSilent(t *testing.T) {
	t.Run("applies the value without events or status changes", func(t *testing.T) {
		c, target, publisher := testCoordinator()

		c.SetValueSilent(42)
		assert.Equal(t, 42, target.DisplayValue())
		assert.Equal(t, Idle, c.State().Status)
		assert.False(t, c.State().LastUpdate.IsZero())
		assert.Empty(t, publisher.valueMessages())
	})

	t.Run("a silent apply supersedes a pending revert", func(t *testing.T) {
		c, target, _ := testCoordinator()
		target.SetDisplayValue("v0")

		blockCh := make(chan struct{})
		doneCh := make(chan struct{})

		go func() {
			c.SetValue("v1", SetOptions{Write: func(any) thing.Result {
				<-blockCh
				return thing.FailedResult(transport.Failure{Code: 500, Message: "late failure"}, "t1/enabled", "writeproperty")
			}})
			close(doneCh)
		}()

		assert.Eventually(t, func() bool {
			return target.DisplayValue() == "v1"
		}, time.Second, time.Millisecond)

		c.SetValueSilent("observed")

		close(blockCh)
		<-doneCh

		assert.Equal(t, "observed", target.DisplayValue())
	})
}
