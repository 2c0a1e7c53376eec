package wsadapters

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stretchr/testify/mock"
)

// Mock for WebsocketConnectionAdapterInterface
type WebsocketConnectionAdapterInterfaceMock struct {
	mock.Mock
}

// Factory
func NewWebsocketConnectionAdapterInterfaceMock() *WebsocketConnectionAdapterInterfaceMock {
	return &WebsocketConnectionAdapterInterfaceMock{
		Mock: mock.Mock{},
	}
}

// Mocked Dial. The first return value can be nil or a *http.Response.
func (mock *WebsocketConnectionAdapterInterfaceMock) Dial(ctx context.Context, target url.URL) (*http.Response, error) {
	args := mock.Called(ctx, target)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

// Mocked Close.
func (mock *WebsocketConnectionAdapterInterfaceMock) Close(ctx context.Context, code StatusCode, reason string) error {
	args := mock.Called(ctx, code, reason)
	return args.Error(0)
}

// Mocked Ping.
func (mock *WebsocketConnectionAdapterInterfaceMock) Ping(ctx context.Context) error {
	args := mock.Called(ctx)
	return args.Error(0)
}

// Mocked Read. The first return value can be either an int or a MessageType and the second one
// can be nil or a []byte.
func (mock *WebsocketConnectionAdapterInterfaceMock) Read(ctx context.Context) (MessageType, []byte, error) {
	args := mock.Called(ctx)
	var msgType MessageType
	switch v := args.Get(0).(type) {
	case MessageType:
		msgType = v
	case int:
		msgType = MessageType(v)
	}
	msg, _ := args.Get(1).([]byte)
	return msgType, msg, args.Error(2)
}

// Mocked Write.
func (mock *WebsocketConnectionAdapterInterfaceMock) Write(ctx context.Context, msgType MessageType, msg []byte) error {
	args := mock.Called(ctx, msgType, msg)
	return args.Error(0)
}

// Mocked GetUnderlyingWebsocketConnection.
func (mock *WebsocketConnectionAdapterInterfaceMock) GetUnderlyingWebsocketConnection() any {
	args := mock.Called()
	return args.Get(0)
}
