package wsstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gbdevw/gowsrelay/wsadapters"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gopkg.in/tomb.v2"
)

// Capacity of the event feed of a SocketConnection.
const socketEventsCapacity = 16

// Message received by a SocketConnection.
type Message struct {
	// Frame type (text or binary)
	Type wsadapters.MessageType
	// Message content
	Data []byte
}

// Connection which publishes the events of a websocket connection opened through a websocket
// connection adapter.
//
// Open dials the target and then reads messages in a background goroutine until the connection
// closes. Each received message is published as an EventMessage.
type SocketConnection struct {
	// Socket session ID
	id string
	// Websocket connection adapter
	adapter wsadapters.WebsocketConnectionAdapterInterface
	// Target URL
	target url.URL
	// Connection state (ConnectionState)
	state atomic.Int32
	// Set once Open has started the background goroutine
	opened bool
	// Coordinates Open and Close
	startMu sync.Mutex
	// Event feed
	events chan Event[Message]
	// Manages the lifetime of the background goroutine
	tmb tomb.Tomb
	// Logger
	logger *zap.Logger
	// Tracer
	tracer trace.Tracer
}

// # Description
//
// Factory which creates a new SocketConnection in Connecting state. Call Open to start dialing.
//
// # Inputs
//
//   - adapter: Websocket connection adapter to use. It is decorated with the adapter
//     instrumentation decorator.
//   - target: Websocket server URL. Credentials can be embedded.
//   - logger: Logger to use. If nil, a no-op logger is used.
//   - tracerProvider: Tracer provider to use. If nil, the global tracer provider is used.
func NewSocketConnection(
	adapter wsadapters.WebsocketConnectionAdapterInterface,
	target url.URL,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
) *SocketConnection {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	id := uuid.NewString()
	conn := &SocketConnection{
		id:      id,
		adapter: wsadapters.NewWebsocketConnectionAdapterInstrumentationDecorator(adapter, tracerProvider),
		target:  target,
		events:  make(chan Event[Message], socketEventsCapacity),
		logger:  logger.With(zap.String("socket_id", id), zap.String("url", target.Redacted())),
		tracer:  tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
	}
	conn.state.Store(int32(Connecting))
	return conn
}

// # Description
//
// Start dialing the target in a background goroutine. The dial is cancelled when ctx is done,
// when Close is called, or when the underlying adapter times out.
//
// # Returns
//
// An error if Open has already been called or if the connection has been closed.
func (conn *SocketConnection) Open(ctx context.Context) error {
	ctx, span := conn.tracer.Start(ctx, spanSocketOpen,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrSessionId, conn.id),
			attribute.String(attrUrl, conn.target.Redacted()),
		))
	defer span.End()
	conn.startMu.Lock()
	defer conn.startMu.Unlock()
	if conn.opened {
		return handleError(fmt.Errorf("socket connection has already been opened"), span, codes.Error, "open failed")
	}
	if state := conn.State(); state != Connecting {
		return handleError(fmt.Errorf("socket connection is %s", state), span, codes.Error, "open failed")
	}
	conn.opened = true
	dialCtx := conn.tmb.Context(ctx)
	conn.tmb.Go(func() error {
		return conn.run(dialCtx)
	})
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// Return the connection state.
func (conn *SocketConnection) State() ConnectionState {
	return ConnectionState(conn.state.Load())
}

// Return the event feed. The feed is closed once the connection is closed.
func (conn *SocketConnection) Events() <-chan Event[Message] {
	return conn.events
}

// # Description
//
// Close the connection with a normal closure. If the connection is still being dialed, the dial
// is cancelled. An EventClose is published once the connection is closed.
//
// # Returns
//
// An error wrapping net.ErrClosed if the connection is already closing or closed, or the error
// returned by the adapter while sending the close message.
func (conn *SocketConnection) Close(ctx context.Context) error {
	ctx, span := conn.tracer.Start(ctx, spanSocketClose,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(attrSessionId, conn.id)))
	defer span.End()
	conn.startMu.Lock()
	if conn.state.CompareAndSwap(int32(Connecting), int32(Closing)) {
		defer conn.startMu.Unlock()
		conn.logger.Info("cancelling connection")
		if conn.opened {
			// Cancel the dial: the background goroutine publishes the final event
			conn.tmb.Kill(nil)
		} else {
			conn.finish(Event[Message]{Kind: EventClose, Code: wsadapters.NormalClosure})
		}
		span.SetStatus(codes.Ok, codes.Ok.String())
		return nil
	}
	conn.startMu.Unlock()
	if !conn.state.CompareAndSwap(int32(Open), int32(Closing)) {
		err := fmt.Errorf("socket connection is %s: %w", conn.State(), net.ErrClosed)
		return handleError(err, span, codes.Error, "close failed")
	}
	conn.logger.Info("closing connection")
	return handlePotentialError(conn.adapter.Close(ctx, wsadapters.NormalClosure, ""), span)
}

// # Description
//
// Write a message through the underlying websocket connection.
func (conn *SocketConnection) Write(ctx context.Context, msgType wsadapters.MessageType, data []byte) error {
	ctx, span := conn.tracer.Start(ctx, spanSocketWrite,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String(attrSessionId, conn.id)))
	defer span.End()
	if state := conn.State(); state != Open {
		return handleError(fmt.Errorf("cannot write: socket connection is %s", state), span, codes.Error, "write failed")
	}
	return handlePotentialError(conn.adapter.Write(ctx, msgType, data), span)
}

// Block until the background goroutine exits. Return the read failure, if any.
func (conn *SocketConnection) Wait() error {
	conn.startMu.Lock()
	opened := conn.opened
	conn.startMu.Unlock()
	if !opened {
		return nil
	}
	return conn.tmb.Wait()
}

// Return the underlying websocket connection adapter.
func (conn *SocketConnection) Adapter() wsadapters.WebsocketConnectionAdapterInterface {
	return conn.adapter
}

/*************************************************************************************************/
/* BACKGROUND GOROUTINE                                                                          */
/*************************************************************************************************/

// Dial the target, then read messages until the connection closes.
func (conn *SocketConnection) run(dialCtx context.Context) error {
	_, err := conn.adapter.Dial(dialCtx, conn.target)
	if err != nil {
		if conn.State() == Closing {
			// Dial has been cancelled by Close
			conn.finish(Event[Message]{Kind: EventClose, Code: wsadapters.NormalClosure})
			return nil
		}
		conn.logger.Warn("failed to open connection", zap.Error(err))
		conn.state.Store(int32(Closed))
		conn.events <- Event[Message]{Kind: EventError, Err: err}
		close(conn.events)
		return err
	}
	if !conn.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		// Close has been called while the handshake completed
		conn.adapter.Close(context.Background(), wsadapters.NormalClosure, "")
		conn.finish(Event[Message]{Kind: EventClose, Code: wsadapters.NormalClosure})
		return nil
	}
	conn.logger.Info("connection open")
	conn.events <- Event[Message]{Kind: EventOpen}
	for {
		msgType, data, err := conn.adapter.Read(context.Background())
		if err != nil {
			return conn.readFailure(err)
		}
		conn.events <- Event[Message]{Kind: EventMessage, Message: Message{Type: msgType, Data: data}}
	}
}

// Publish the events which follow a read failure and close the feed.
func (conn *SocketConnection) readFailure(err error) error {
	closing := conn.State() == Closing
	closeErr := new(wsadapters.WebsocketCloseError)
	isCloseErr := errors.As(err, closeErr)
	if isCloseErr || closing {
		event := Event[Message]{Kind: EventClose, Code: wsadapters.NormalClosure}
		// Adapters which drop the network connection on Close report 1006 to the local reader
		if isCloseErr && !(closing && closeErr.Code == wsadapters.AbnormalClosure) {
			event.Code = closeErr.Code
			event.Reason = closeErr.Reason
		}
		conn.logger.Info("connection closed",
			zap.Stringer("code", event.Code),
			zap.String("reason", event.Reason),
			zap.Bool("local", closing))
		conn.finish(event)
		return nil
	}
	conn.logger.Error("failed to read from connection", zap.Error(err))
	// Report the failure as closing so consumers do not try to close the connection again
	conn.state.Store(int32(Closing))
	conn.events <- Event[Message]{Kind: EventError, Err: err}
	conn.adapter.Close(context.Background(), wsadapters.InternalError, "read failure")
	conn.finish(Event[Message]{Kind: EventClose, Code: wsadapters.AbnormalClosure, Reason: err.Error()})
	return err
}

// Set the Closed state, publish the final event and close the feed.
func (conn *SocketConnection) finish(event Event[Message]) {
	conn.state.Store(int32(Closed))
	conn.events <- event
	close(conn.events)
}
