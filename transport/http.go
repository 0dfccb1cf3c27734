package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

var _ Client = (*HTTP)(nil)

// HTTP is the request/response transport. It has no push path; Subscribe
// always returns ErrSubscriptionUnsupported so that observation falls back to
// polling in the layer above.
type HTTP struct {
	client *http.Client
}

const DefaultRequestTimeout = 30 * time.Second

func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}

	return &HTTP{client: client}
}

func (h *HTTP) Request(ctx context.Context, e Endpoint, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, e.method(), e.URL, body)
	if err != nil {
		return nil, Failure{Code: 0, Message: err.Error()}
	}

	if payload != nil {
		req.Header.Set("Content-Type", e.contentType())
	}
	req.Header.Set("Accept", e.contentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, Failure{Code: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Failure{Code: 0, Message: err.Error()}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		message := http.StatusText(resp.StatusCode)
		if len(data) > 0 {
			message = string(data)
		}

		return nil, Failure{Code: resp.StatusCode, Message: message}
	}

	return data, nil
}

func (h *HTTP) Subscribe(_ Endpoint, _ func([]byte), _ func(error)) (func(), error) {
	return nil, ErrSubscriptionUnsupported
}
