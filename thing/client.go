package thing

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/wotbind/metric"
	"github.com/shimmeringbee/wotbind/td"
	"github.com/shimmeringbee/wotbind/transport"
)

// Config tunes the retry budget for read/write interactions and the polling
// interval used when a transport has no push path.
type Config struct {
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	PollInterval   time.Duration
}

const (
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 250 * time.Millisecond
	DefaultRetryMaxDelay  = 2 * time.Second
	DefaultPollInterval   = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}

	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}

	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}

	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	return c
}

// Client wraps a thing description and a transport into interactions keyed by
// property/action name. The description is read-only once loaded; a refresh
// swaps the whole document reference under the lock, never individual fields.
type Client struct {
	lock     sync.RWMutex
	document *td.Document

	transport transport.Client
	publisher EventPublisher
	logger    logwrap.Logger
	cfg       Config

	// Metrics is optional; nil records nothing.
	Metrics *metric.Operations
}

func NewClient(doc *td.Document, t transport.Client, cfg Config, publisher EventPublisher, l logwrap.Logger) *Client {
	return &Client{
		document:  doc,
		transport: t,
		publisher: publisher,
		logger:    l,
		cfg:       cfg.withDefaults(),
	}
}

func (c *Client) Document() *td.Document {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.document
}

// ReplaceDocument swaps in a refreshed thing description.
func (c *Client) ReplaceDocument(doc *td.Document) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.document = doc
}

func (c *Client) ID() string {
	return c.Document().ID
}

func (c *Client) publish(e any) {
	if c.publisher != nil {
		c.publisher.Publish(e)
	}
}

func (c *Client) source(name string) string {
	return fmt.Sprintf("%s/%s", c.Document().ID, name)
}

// ReadProperty resolves a read form, requests it and wraps the outcome. It
// never mutates any cached value.
func (c *Client) ReadProperty(ctx context.Context, name string) Result {
	started := time.Now()
	r := c.readProperty(ctx, name)
	c.Metrics.Observe(td.OpReadProperty, r.OK, time.Since(started))

	if r.OK {
		c.publish(PropertyRead{r})
	} else {
		c.publish(PropertyReadError{r})
	}

	return r
}

func (c *Client) readProperty(ctx context.Context, name string) Result {
	source := c.source(name)

	endpoint, failErr := c.propertyEndpoint(name, td.OpReadProperty)
	if failErr != nil {
		return FailedResult(failErr, source, td.OpReadProperty)
	}

	data, err := c.requestWithRetry(ctx, endpoint, nil)
	if err != nil {
		return FailedResult(err, source, td.OpReadProperty)
	}

	value, err := decodeValue(data)
	if err != nil {
		return FailedResult(err, source, td.OpReadProperty)
	}

	return SuccessResult(value, source, td.OpReadProperty)
}

// WriteProperty fails fast on a read-only property, before any transport
// call is attempted.
func (c *Client) WriteProperty(ctx context.Context, name string, value any) Result {
	started := time.Now()
	r := c.writeProperty(ctx, name, value)
	c.Metrics.Observe(td.OpWriteProperty, r.OK, time.Since(started))

	if r.OK {
		c.publish(PropertyWritten{r})
	} else {
		c.publish(PropertyWrittenError{r})
	}

	return r
}

func (c *Client) writeProperty(ctx context.Context, name string, value any) Result {
	source := c.source(name)

	p, found := c.Document().Property(name)
	if !found {
		return FailedResult(ErrPropertyNotFound, source, td.OpWriteProperty)
	}

	if !td.DeriveCapability(p).CanWrite {
		return FailedResult(ErrReadOnlyProperty, source, td.OpWriteProperty)
	}

	endpoint, failErr := c.propertyEndpoint(name, td.OpWriteProperty)
	if failErr != nil {
		return FailedResult(failErr, source, td.OpWriteProperty)
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return FailedResult(fmt.Errorf("%w: %s", ErrDecodeFailure, err.Error()), source, td.OpWriteProperty)
	}

	if _, err := c.requestWithRetry(ctx, endpoint, payload); err != nil {
		return FailedResult(err, source, td.OpWriteProperty)
	}

	return SuccessResult(value, source, td.OpWriteProperty)
}

// InvokeAction resolves an invoke form and performs one request/response
// cycle, decoding any returned body as the action result.
func (c *Client) InvokeAction(ctx context.Context, name string, params any) Result {
	started := time.Now()
	r := c.invokeAction(ctx, name, params)
	c.Metrics.Observe(td.OpInvokeAction, r.OK, time.Since(started))

	if r.OK {
		c.publish(ActionInvoked{r})
	} else {
		c.publish(ActionInvokedError{r})
	}

	return r
}

func (c *Client) invokeAction(ctx context.Context, name string, params any) Result {
	source := c.source(name)

	a, found := c.Document().Action(name)
	if !found {
		return FailedResult(ErrActionNotFound, source, td.OpInvokeAction)
	}

	endpoint, failErr := c.endpointFor(a.Forms, td.OpInvokeAction)
	if failErr != nil {
		return FailedResult(failErr, source, td.OpInvokeAction)
	}

	var payload []byte
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return FailedResult(fmt.Errorf("%w: %s", ErrDecodeFailure, err.Error()), source, td.OpInvokeAction)
		}
		payload = data
	}

	// Actions are not idempotent, so a failed invoke is never retried.
	data, err := c.transport.Request(ctx, endpoint, payload)
	if err != nil {
		return FailedResult(err, source, td.OpInvokeAction)
	}

	value, err := decodeValue(data)
	if err != nil {
		return FailedResult(err, source, td.OpInvokeAction)
	}

	return SuccessResult(value, source, td.OpInvokeAction)
}

// ObserveProperty delivers property values to cb over time, preferring the
// transport's native push path and falling back to polling ReadProperty on
// the configured interval. The callback fires on every poll tick, not only on
// change; callers needing change-only semantics filter on Prev. The returned
// function cancels the observation; no callback is invoked after it returns,
// even for a tick already in flight.
func (c *Client) ObserveProperty(name string, cb func(Result)) (func(), error) {
	return c.ObservePropertyEvery(name, c.cfg.PollInterval, cb)
}

// ObservePropertyEvery is ObserveProperty with an explicit polling interval,
// for callers that override the thing wide default. The interval only matters
// on the polling fallback path.
func (c *Client) ObservePropertyEvery(name string, interval time.Duration, cb func(Result)) (func(), error) {
	if interval <= 0 {
		interval = c.cfg.PollInterval
	}

	p, found := c.Document().Property(name)
	if !found {
		return nil, ErrPropertyNotFound
	}

	if !td.DeriveCapability(p).CanObserve {
		return nil, ErrNotObservable
	}

	obs := &observation{client: c, name: name, cb: cb}

	endpoint, failErr := c.propertyEndpoint(name, td.OpObserveProperty)
	if failErr == nil {
		unsubscribe, err := c.transport.Subscribe(endpoint, obs.onRaw, obs.onTransportError)
		if err == nil {
			obs.cancel = unsubscribe
			return obs.stop, nil
		}

		c.logger.LogDebug(context.Background(), "Native observation unavailable, falling back to polling.",
			logwrap.Datum("property", name), logwrap.Err(err))
	}

	obs.poll(interval)
	return obs.stop, nil
}

// observation guards callback dispatch for one subscription: once stopped, no
// further callbacks are delivered, regardless of which path produced them.
type observation struct {
	client *Client
	name   string
	cb     func(Result)

	lock    sync.Mutex
	stopped bool
	cancel  func()

	seen bool
	last any
}

func (o *observation) stop() {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.stopped {
		return
	}

	o.stopped = true

	if o.cancel != nil {
		o.cancel()
	}
}

func (o *observation) deliver(r Result) {
	o.lock.Lock()

	if o.stopped {
		o.lock.Unlock()
		return
	}

	if r.OK {
		if o.seen && !reflect.DeepEqual(o.last, r.Payload) {
			r.Prev = o.last
		}

		o.seen = true
		o.last = r.Payload
	}

	o.lock.Unlock()

	if r.OK {
		o.client.publish(PropertyObserved{r})
	} else {
		o.client.publish(PropertyObservedError{r})
	}

	o.cb(r)
}

func (o *observation) onRaw(data []byte) {
	source := o.client.source(o.name)

	value, err := decodeValue(data)
	if err != nil {
		o.deliver(FailedResult(err, source, td.OpObserveProperty))
		return
	}

	r := SuccessResult(value, source, td.OpObserveProperty)
	o.deliver(r)
}

func (o *observation) onTransportError(err error) {
	o.deliver(FailedResult(err, o.client.source(o.name), td.OpObserveProperty))
}

func (o *observation) poll(interval time.Duration) {
	stopCh := make(chan struct{})
	o.cancel = func() { close(stopCh) }

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				r := o.client.pollOnce(o.name)
				o.deliver(r)
			case <-stopCh:
				return
			}
		}
	}()
}

// pollOnce is a single observation read: no internal retry, failures are
// reported to the observer rather than retried.
func (c *Client) pollOnce(name string) Result {
	source := c.source(name)

	endpoint, failErr := c.propertyEndpoint(name, td.OpReadProperty)
	if failErr != nil {
		return FailedResult(failErr, source, td.OpObserveProperty)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PollInterval)
	defer cancel()

	data, err := c.transport.Request(ctx, endpoint, nil)
	if err != nil {
		return FailedResult(err, source, td.OpObserveProperty)
	}

	value, err := decodeValue(data)
	if err != nil {
		return FailedResult(err, source, td.OpObserveProperty)
	}

	r := SuccessResult(value, source, td.OpObserveProperty)
	return r
}

func (c *Client) propertyEndpoint(name string, op string) (transport.Endpoint, error) {
	p, found := c.Document().Property(name)
	if !found {
		return transport.Endpoint{}, ErrPropertyNotFound
	}

	if op == td.OpReadProperty && !td.DeriveCapability(p).CanRead {
		return transport.Endpoint{}, ErrWriteOnlyProperty
	}

	return c.endpointFor(p.Forms, op)
}

func (c *Client) endpointFor(forms []td.Form, op string) (transport.Endpoint, error) {
	doc := c.Document()

	form, err := td.SelectForm(forms, op)
	if err != nil {
		return transport.Endpoint{}, err
	}

	href, err := td.ResolveHref(doc.Base, doc.URL, form.Href)
	if err != nil {
		return transport.Endpoint{}, fmt.Errorf("%w: %s", td.ErrFormNotFound, err.Error())
	}

	return transport.Endpoint{
		URL:         href,
		Method:      form.Method,
		ContentType: form.ContentType,
		Op:          op,
	}, nil
}

// requestWithRetry retries transient transport failures with exponential
// backoff up to the configured attempt budget. Typed capability errors never
// reach here; they fail before transport is attempted.
func (c *Client) requestWithRetry(ctx context.Context, e transport.Endpoint, payload []byte) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay
	bo.MaxInterval = c.cfg.RetryMaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	var data []byte

	err := backoff.Retry(func() error {
		var err error
		data, err = c.transport.Request(ctx, e, payload)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.RetryAttempts-1)), ctx))

	return data, err
}

func decodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecodeFailure, err.Error())
	}

	return value, nil
}
