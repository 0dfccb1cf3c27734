package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shimmeringbee/wotbind/td"
)

// Endpoint is a resolved form: an absolute location plus the method, content
// type and operation it is being used for. Method and ContentType may be
// empty, in which case operation defaults apply.
type Endpoint struct {
	URL         string
	Method      string
	ContentType string
	Op          string
}

// Client performs a single request/response or subscribe/unsubscribe cycle
// against a resolved endpoint. Every failure crossing this boundary is a
// Failure or one of the typed errors below, never an untyped panic.
type Client interface {
	Request(ctx context.Context, e Endpoint, payload []byte) ([]byte, error)
	Subscribe(e Endpoint, onValue func([]byte), onError func(error)) (func(), error)
}

type Error string

func (e Error) Error() string {
	return string(e)
}

// ErrSubscriptionUnsupported is returned by Subscribe on transports without a
// push path, signalling the caller to fall back to polling.
const ErrSubscriptionUnsupported = Error("transport does not support subscription")

// Failure carries an HTTP-status-like code for any transport level problem:
// a non-2xx response keeps its status, a network error is reported as code 0.
type Failure struct {
	Code    int
	Message string
}

func (f Failure) Error() string {
	return fmt.Sprintf("transport failure (%d): %s", f.Code, f.Message)
}

const DefaultContentType = "application/json"

// DefaultMethod maps an operation to its conventional HTTP method, used when
// a form does not specify one.
func DefaultMethod(op string) string {
	switch op {
	case td.OpWriteProperty:
		return http.MethodPut
	case td.OpInvokeAction:
		return http.MethodPost
	default:
		return http.MethodGet
	}
}

func (e Endpoint) method() string {
	if e.Method != "" {
		return e.Method
	}

	return DefaultMethod(e.Op)
}

func (e Endpoint) contentType() string {
	if e.ContentType != "" {
		return e.ContentType
	}

	return DefaultContentType
}
