package transport

import (
	"context"

	"github.com/stretchr/testify/mock"
)

var _ Client = (*MockClient)(nil)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Request(ctx context.Context, e Endpoint, payload []byte) ([]byte, error) {
	args := m.Called(ctx, e, payload)

	if d := args.Get(0); d != nil {
		return d.([]byte), args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockClient) Subscribe(e Endpoint, onValue func([]byte), onError func(error)) (func(), error) {
	args := m.Called(e, onValue, onError)

	if u := args.Get(0); u != nil {
		return u.(func()), args.Error(1)
	}

	return nil, args.Error(1)
}
