package wsadapters

import (
	"context"
	"net/http"
	"net/url"
)

// Interface which describes the methods and behaviour the socket connection bridge expects from
// the underlying websocket connection library.
//
// Adapters are assumed to be thread-safe. Thread safety must be ensured either by the adapter
// implementation or by the underlying websocket connection library.
type WebsocketConnectionAdapterInterface interface {
	// # Description
	//
	// Dial opens a connection to the websocket server and performs a WebSocket handshake.
	//
	// # Expected behaviour
	//
	//	- Dial MUST block until websocket handshake is complete. TLS and credentials embedded
	//	  in the target URL must be handled by the adapter or by the underlying library.
	//
	//	- Dial MUST NOT return the underlying websocket connection. The connection is kept by
	//	  the adapter and used later by the other methods.
	//
	//	- Dial MUST return an error in case a connection has already been established and Close
	//	  has not been called yet.
	//
	// # Inputs
	//
	//	- ctx: Context used for tracing/timeout purpose
	//	- target: Target server URL
	//
	// # Returns
	//
	// The server response to websocket handshake or an error if any.
	Dial(ctx context.Context, target url.URL) (*http.Response, error)
	// # Description
	//
	// Send a close message with the provided status code and an optional close reason and drop
	// the websocket connection.
	//
	// # Expected behaviour
	//
	//	- Close MUST block until close message has been sent to the server.
	//	- Close MUST cause a pending Read to return.
	//	- Close MUST return an error in case there is no connection.
	//
	// # Inputs
	//
	//	- ctx: Context used for tracing purpose
	//	- code: Status code to use in close message
	//	- reason: Optional reason joined in close message. Can be empty.
	Close(ctx context.Context, code StatusCode, reason string) error
	// # Description
	//
	// Send a Ping message to the websocket server and block until a Pong response is received, a
	// timeout occurs, or connection is closed.
	//
	// A concurrent goroutine continuously calling Read may be required by the adapter so that
	// control frames, pong included, are processed.
	Ping(ctx context.Context) error
	// # Description
	//
	// Read a single message from the websocket server. Read blocks until a message is received
	// or until connection closes.
	//
	// # Expected behaviour
	//
	//	- Read MUST handle defragmentation, decompression and TLS decryption seamlessly.
	//
	//	- Read MUST NOT return close, ping, pong and continuation frames.
	//
	//	- Read MUST return a WebsocketCloseError either if a close message is read or if
	//	  connection is closed without a close message. In the later case, the 1006 status code
	//	  MUST be used. Read MUST drop the existing connection so a new one can be established.
	//
	// # Returns
	//
	//	- MessageType: received message type (Binary | Text)
	//	- []bytes: Message content
	//	- error: in case of connection closure or failure.
	Read(ctx context.Context) (MessageType, []byte, error)
	// # Description
	//
	// Write a single message to the websocket server. Write blocks until message is sent or
	// until an error occurs: context timeout, cancellation, connection closed, ...
	//
	// Write MUST NOT be used to send control frames.
	Write(ctx context.Context, msgType MessageType, msg []byte) error
	// # Description
	//
	// Return the underlying websocket connection if any. Returned value has to be type asserted.
	GetUnderlyingWebsocketConnection() any
}
