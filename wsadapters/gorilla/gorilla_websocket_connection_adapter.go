// Package which contains a WebsocketConnectionAdapterInterface implementation for
// gorilla/websocket library (https://github.com/gorilla/websocket).
package wsadaptergorilla

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gbdevw/gowsrelay/wsadapters"
	"github.com/gorilla/websocket"
)

// Delay allowed to write control frames (close, ping).
const controlWriteTimeout = 10 * time.Second

// Adapter for gorilla/websocket library
type GorillaWebsocketConnectionAdapter struct {
	// Underlying websocket connection
	conn *websocket.Conn
	// Dialer to use when opening a connection
	dialer *websocket.Dialer
	// Headers to use when opening a connection
	requestHeader http.Header
	// Maximum size (bytes) of a read message. 0 means no limit.
	readLimit int64
	// Internal mutex
	mu sync.Mutex
	// Serializes writes: gorilla supports one concurrent writer only
	writeMu sync.Mutex
	// Pending Ping calls. Each channel receives the pong notification or an error.
	pingRequests chan chan error
}

// # Description
//
// Factory which creates a new GorillaWebsocketConnectionAdapter.
//
// # Inputs
//
//   - dialer: Optional dialer to use when using Dial method. If nil, the default dialer
//     defined by gorilla library will be used.
//
//   - requestHeader: Headers which will be used during Dial to specify the origin (Origin),
//     subprotocols (Sec-WebSocket-Protocol), cookies (Cookie), ...
//
// # Returns
//
// New GorillaWebsocketConnectionAdapter
func NewGorillaWebsocketConnectionAdapter(dialer *websocket.Dialer, requestHeader http.Header) *GorillaWebsocketConnectionAdapter {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &GorillaWebsocketConnectionAdapter{
		conn:          nil,
		dialer:        dialer,
		requestHeader: requestHeader,
		// Use a chan with capacity so ping requests can be recorded before sending ping message.
		pingRequests: make(chan chan error, 10),
	}
}

// Set the maximum size (bytes) of the messages read from connections opened afterwards. A
// message over the limit fails the read with websocket.ErrReadLimit. 0 means no limit.
func (adapter *GorillaWebsocketConnectionAdapter) SetReadLimit(limit int64) {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	adapter.readLimit = limit
}

// # Description
//
// Dial opens a connection to the websocket server and performs a WebSocket handshake.
//
// Gorilla refuses URLs with user information: credentials embedded in the target URL are moved
// to a basic Authorization header.
func (adapter *GorillaWebsocketConnectionAdapter) Dial(ctx context.Context, target url.URL) (*http.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		if adapter.conn != nil {
			return nil, fmt.Errorf("a connection has already been established")
		}
		header := adapter.requestHeader.Clone()
		if target.User != nil {
			if header == nil {
				header = http.Header{}
			}
			req := &http.Request{Header: header}
			password, _ := target.User.Password()
			req.SetBasicAuth(target.User.Username(), password)
			target.User = nil
		}
		conn, res, err := adapter.dialer.DialContext(ctx, target.String(), header)
		if err != nil {
			return res, err
		}
		if adapter.readLimit > 0 {
			conn.SetReadLimit(adapter.readLimit)
		}
		// Each pong unlocks the oldest pending Ping call
		conn.SetPongHandler(func(string) error {
			propagateToFirstActiveListener(adapter.pingRequests, nil)
			return nil
		})
		adapter.conn = conn
		return res, nil
	}
}

// # Description
//
// Send a close message with the provided status code and an optional close reason and close
// the websocket connection. A pending Read returns a WebsocketCloseError.
func (adapter *GorillaWebsocketConnectionAdapter) Close(ctx context.Context, code wsadapters.StatusCode, reason string) error {
	adapter.mu.Lock()
	conn := adapter.conn
	adapter.conn = nil
	adapter.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("close failed because no connection is up: %w", net.ErrClosed)
	}
	adapter.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(int(code), reason), time.Now().Add(controlWriteTimeout))
	adapter.writeMu.Unlock()
	// Propagate a close error so all pending Ping calls will return the error
	propagateToAllActiveListener(adapter.pingRequests, wsadapters.WebsocketCloseError{
		Code:   code,
		Reason: reason,
		Err:    fmt.Errorf("client closed the connection"),
	})
	// Drop the network connection so a pending Read returns
	errClose := conn.Close()
	if err != nil {
		return err
	}
	return errClose
}

// # Description
//
// Send a Ping message to the websocket server and block until a Pong response is received.
//
// A separate goroutine must continuously call Read method so pong replies are processed.
func (adapter *GorillaWebsocketConnectionAdapter) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("ping failed because no connection is up")
		}
		// pong channel has capacity so a late notification never blocks the reader
		pong := make(chan error, 1)
		adapter.pingRequests <- pong
		adapter.writeMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteTimeout))
		adapter.writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-pong:
			return err
		}
	}
}

// # Description
//
// Read a single message from the websocket server. Read blocks until a message is received
// or until connection closes. Close frames and dropped connections are returned as
// wsadapters.WebsocketCloseError.
func (adapter *GorillaWebsocketConnectionAdapter) Read(ctx context.Context) (wsadapters.MessageType, []byte, error) {
	select {
	case <-ctx.Done():
		return -1, nil, ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return -1, nil, fmt.Errorf("read failed because no connection is up")
		}
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			var closeErr wsadapters.WebsocketCloseError
			ce := new(websocket.CloseError)
			switch {
			case errors.As(err, &ce):
				closeErr = wsadapters.WebsocketCloseError{
					Code:   wsadapters.StatusCode(ce.Code),
					Reason: ce.Text,
					Err:    err,
				}
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
				closeErr = wsadapters.WebsocketCloseError{
					Code:   wsadapters.AbnormalClosure,
					Reason: "websocket connection abnormal closure",
					Err:    err,
				}
			default:
				return -1, nil, err
			}
			adapter.drop(conn)
			// Propagate to all Pong listeners (so all pending Ping calls return the error)
			propagateToAllActiveListener(adapter.pingRequests, closeErr)
			return -1, nil, closeErr
		}
		return wsadapters.MessageType(msgType), msg, nil
	}
}

// # Description
//
// Write a single message to the websocket server. Write blocks until message is sent to the
// server or until an error occurs.
func (adapter *GorillaWebsocketConnectionAdapter) Write(ctx context.Context, msgType wsadapters.MessageType, msg []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("write failed because no connection is up")
		}
		adapter.writeMu.Lock()
		defer adapter.writeMu.Unlock()
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetWriteDeadline(deadline)
			defer conn.SetWriteDeadline(time.Time{})
		}
		return conn.WriteMessage(int(msgType), msg)
	}
}

// Return the underlying *websocket.Conn if any.
func (adapter *GorillaWebsocketConnectionAdapter) GetUnderlyingWebsocketConnection() any {
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

func (adapter *GorillaWebsocketConnectionAdapter) current() *websocket.Conn {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	return adapter.conn
}

func (adapter *GorillaWebsocketConnectionAdapter) drop(conn *websocket.Conn) {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == conn {
		adapter.conn = nil
	}
}

// Propagate a notification to the first writeable (non-blocking write) channel received.
//
// The function returns false if the notification could not be propagated: either because no
// channel was received or because all received channels were not writeable.
func propagateToFirstActiveListener(listeners chan chan error, notification error) bool {
	for {
		select {
		case listener := <-listeners:
			select {
			case listener <- notification:
				return true
			default:
				continue
			}
		default:
			return false
		}
	}
}

// Propagate a notification to all writeable (non-blocking write) channels received through
// the provided channel.
func propagateToAllActiveListener(listeners chan chan error, notification error) {
	for {
		select {
		case listener := <-listeners:
			select {
			case listener <- notification:
			default:
			}
		default:
			return
		}
	}
}
