// Package wsstream turns a push-based connection, which publishes open, message, close and error
// events, into a pull-based stream of messages consumed with Next.
//
// A Stream is only produced by Connect, once the underlying connection is open. Messages which
// arrive while nobody waits are buffered; Next calls which find no buffered message wait in a
// FIFO queue until a message, a close or an error arrives. At most one of those two queues is
// non-empty at any instant.
package wsstream

import (
	"context"

	"github.com/gbdevw/gowsrelay/wsadapters"
)

/*************************************************************************************************/
/* CONNECTION CAPABILITY                                                                         */
/*************************************************************************************************/

// State of a connection, mirroring the websocket readyState values.
type ConnectionState int32

const (
	// The connection is being established.
	Connecting ConnectionState = iota
	// The connection is established and messages can be received.
	Open
	// The connection is being closed.
	Closing
	// The connection is closed or could not be opened.
	Closed
)

func (state ConnectionState) String() string {
	switch state {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Kind of event published by a connection.
type EventKind int

const (
	// The connection is open.
	EventOpen EventKind = iota + 1
	// A message has been received.
	EventMessage
	// The connection has been closed.
	EventClose
	// The connection has failed.
	EventError
)

func (kind EventKind) String() string {
	switch kind {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event published by a connection on its event feed.
type Event[T any] struct {
	// Event kind
	Kind EventKind
	// Received message. Set for EventMessage only.
	Message T
	// Connection failure. Set for EventError only.
	Err error
	// Close status code. Set for EventClose only.
	Code wsadapters.StatusCode
	// Optional close reason. Set for EventClose only.
	Reason string
}

// Connection capability consumed by Stream.
//
// Implementations publish their events in order on a single feed. The feed must be closed after
// the final event (close or failure) so the consumer can exit. Implementations must be safe for
// concurrent use: State is read from any goroutine.
type Connection[T any] interface {
	// Current connection state.
	State() ConnectionState
	// Close the connection. The connection publishes an EventClose once closed.
	Close(ctx context.Context) error
	// Event feed.
	Events() <-chan Event[T]
}
