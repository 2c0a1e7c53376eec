// Package which contains a WebsocketConnectionAdapterInterface implementation for
// nhooyr/websocket library (https://github.com/nhooyr/websocket).
package wsadapternhooyr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gbdevw/gowsrelay/wsadapters"
	"nhooyr.io/websocket"
)

// Adapter for nhooyr/websocket library
type NhooyrWebsocketConnectionAdapter struct {
	// Underlying websocket connection
	conn *websocket.Conn
	// Dial options to use when opening a connection
	opts *websocket.DialOptions
	// Maximum size (bytes) of a read message. 0 keeps the library default (32768).
	readLimit int64
	// Internal mutex
	mu sync.Mutex
}

// # Description
//
// Factory which creates a new NhooyrWebsocketConnectionAdapter.
//
// # Inputs
//
//   - opts: Optional dial options to use when calling Dial method. Can be nil.
//
// # Returns
//
// New NhooyrWebsocketConnectionAdapter
func NewNhooyrWebsocketConnectionAdapter(opts *websocket.DialOptions) *NhooyrWebsocketConnectionAdapter {
	return &NhooyrWebsocketConnectionAdapter{
		conn: nil,
		opts: opts,
		mu:   sync.Mutex{},
	}
}

// # Description
//
// Set the maximum size (bytes) of the messages read from connections opened afterwards. A
// message over the limit fails the read and closes the connection with 1009. 0 keeps the library
// default of 32768 bytes.
func (adapter *NhooyrWebsocketConnectionAdapter) SetReadLimit(limit int64) {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	adapter.readLimit = limit
}

// # Description
//
// Dial opens a connection to the websocket server and performs a WebSocket handshake. Credentials
// embedded in the target URL are sent as basic authentication by the underlying http client.
//
// # Returns
//
// The server response to websocket handshake or an error if any.
func (adapter *NhooyrWebsocketConnectionAdapter) Dial(ctx context.Context, target url.URL) (*http.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		if adapter.conn != nil {
			return nil, fmt.Errorf("a connection has already been established")
		}
		conn, res, err := websocket.Dial(ctx, target.String(), adapter.opts)
		if err != nil {
			return res, err
		}
		if adapter.readLimit > 0 {
			conn.SetReadLimit(adapter.readLimit)
		}
		adapter.conn = conn
		return res, nil
	}
}

// # Description
//
// Send a close message with the provided status code and an optional close reason and drop
// the websocket connection.
//
// # Returns
//
//   - nil in case of success
//   - error: no connection, server unreachable, connection already closed (wraps net.ErrClosed)
func (adapter *NhooyrWebsocketConnectionAdapter) Close(ctx context.Context, code wsadapters.StatusCode, reason string) error {
	adapter.mu.Lock()
	conn := adapter.conn
	// Void connection in any case
	adapter.conn = nil
	adapter.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("close failed because no connection is up: %w", net.ErrClosed)
	}
	// Close outside of the lock: the close handshake needs the concurrent reader to progress
	err := conn.Close(convertToNhooyrStatusCodes(code), reason)
	if err != nil && err.Error() == "failed to close WebSocket: already wrote close" {
		err = fmt.Errorf("failed to close WebSocket: %w", net.ErrClosed)
	}
	return err
}

// # Description
//
// Send a Ping message to the websocket server and block until a Pong response is received, a
// timeout occurs or until connection is closed.
//
// A concurrent goroutine must call Read method so that control frames, pong included, are
// processed and ping does not hang.
func (adapter *NhooyrWebsocketConnectionAdapter) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("ping failed because no connection is up")
		}
		return conn.Ping(ctx)
	}
}

// # Description
//
// Read a single message from the websocket server. Read blocks until a message is received
// from the server or until connection closes.
//
// # Returns
//
//   - MessageType: received message type (Binary | Text)
//   - []bytes: Message content
//   - error: WebsocketCloseError in case of connection closure, other errors otherwise.
func (adapter *NhooyrWebsocketConnectionAdapter) Read(ctx context.Context) (wsadapters.MessageType, []byte, error) {
	select {
	case <-ctx.Done():
		return -1, nil, ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return -1, nil, fmt.Errorf("read failed because no connection is up")
		}
		nhooyrMsgType, msg, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				// Error is not because connection was closed
				return -1, nil, err
			}
			// Drop the connection so a new one can be established
			adapter.drop(conn)
			if status != -1 {
				return -1, nil, wsadapters.WebsocketCloseError{
					Code:   convertFromNhooyrStatusCodes(status),
					Reason: err.Error(),
					Err:    err,
				}
			}
			return -1, nil, wsadapters.WebsocketCloseError{
				Code:   wsadapters.AbnormalClosure,
				Reason: "websocket connection abnormal closure",
				Err:    err,
			}
		}
		return convertFromNhooyrMsgTypes(nhooyrMsgType), msg, nil
	}
}

// # Description
//
// Write a single message to the websocket server. Write blocks until message is sent to the
// server or until an error occurs: context timeout, cancellation, connection closed, ...
func (adapter *NhooyrWebsocketConnectionAdapter) Write(ctx context.Context, msgType wsadapters.MessageType, msg []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("write failed because no connection is up")
		}
		return conn.Write(ctx, convertToNhooyrMsgTypes(msgType), msg)
	}
}

// Return the underlying *websocket.Conn if any.
func (adapter *NhooyrWebsocketConnectionAdapter) GetUnderlyingWebsocketConnection() any {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == nil {
		return nil
	}
	return adapter.conn
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Get the current connection. The reference is copied so other goroutines can operate on the
// connection while the caller uses it.
func (adapter *NhooyrWebsocketConnectionAdapter) current() *websocket.Conn {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	return adapter.conn
}

// Void the current connection if it still is the provided one.
func (adapter *NhooyrWebsocketConnectionAdapter) drop(conn *websocket.Conn) {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == conn {
		adapter.conn = nil
	}
}

// Convert a status code to nhooyr enum. Both enums mirror RFC6455 values.
func convertToNhooyrStatusCodes(code wsadapters.StatusCode) websocket.StatusCode {
	return websocket.StatusCode(code)
}

// Convert a status code from nhooyr enum.
func convertFromNhooyrStatusCodes(code websocket.StatusCode) wsadapters.StatusCode {
	return wsadapters.StatusCode(code)
}

// Convert message types to nhooyr types. Default to binary.
func convertToNhooyrMsgTypes(msgType wsadapters.MessageType) websocket.MessageType {
	if msgType == wsadapters.Text {
		return websocket.MessageText
	}
	return websocket.MessageBinary
}

// Convert message types from nhooyr types. Default to binary.
func convertFromNhooyrMsgTypes(msgType websocket.MessageType) wsadapters.MessageType {
	if msgType == websocket.MessageText {
		return wsadapters.Text
	}
	return wsadapters.Binary
}
