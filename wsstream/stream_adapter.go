package wsstream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/gbdevw/gowsrelay/wsadapters"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Result of a Next call.
type Result[T any] struct {
	// Received message. Zero value when Final is true.
	Message T
	// Terminal signal: the connection has been closed while the call was pending.
	Final bool
}

// What a waiter is resolved with: a result or an error.
type outcome[T any] struct {
	result Result[T]
	err    error
}

// One-shot completion handle of a pending Next call. Capacity 1 so the single send made under
// the stream mutex never blocks.
type waiter[T any] chan outcome[T]

// Pull-based stream of the messages received by a connection.
//
// Only Connect produces usable streams: the methods of a zero-value stream return a
// ConstructionError. A Stream is safe for concurrent use. Concurrent Next calls are served in the
// order they were made.
type Stream[T any] struct {
	// Stream session ID
	id string
	// Owned connection
	conn Connection[T]
	// Stream options
	opts *StreamConfigurationOptions
	// Protects the buffer, the waiter queue and the terminal state
	mu sync.Mutex
	// Received messages nobody has asked for yet
	messages queue[T]
	// Pending Next calls
	waiters queue[waiter[T]]
	// Set once a close or an error has been processed
	terminal bool
	// Terminal error. Nil after a graceful close.
	err error
	// Close hook registered by OnClose
	hook func(error)
	// Closed when the stream becomes terminal
	done chan struct{}
	// Logger
	logger *zap.Logger
	// Tracer used to instrument the stream
	tracer trace.Tracer
	// Metric instruments
	instruments *streamInstruments
}

// Internal structure used to retain references to instruments that record stream metrics.
type streamInstruments struct {
	// Counter of received messages, by route
	messages metric.Int64Counter
	// Counter of waiters resolved by a close or an error
	drainedWaiters metric.Int64Counter
	// Counter of Next calls abandoned through their context
	cancelledWaiters metric.Int64Counter
}

// # Description
//
// Factory which waits for the provided connection to open and returns a ready Stream.
//
// Messages received before the connection opens are buffered. If the connection fails, closes,
// or does not open before the context is done or the connect timeout expires, the connection is
// closed when needed and a ConnectionError is returned. The remainder of the event feed is then
// drained in the background so the connection never blocks on it.
//
// # Inputs
//
//   - ctx: Context used for tracing and cancellation purpose.
//   - conn: Connection to consume. The stream becomes its exclusive owner.
//   - opts: Stream options. If nil, default options are used.
//   - logger: Logger to use. If nil, a no-op logger is used.
//   - tracerProvider: Tracer provider to use. If nil, the global tracer provider is used.
//   - meterProvider: Meter provider to use. If nil, the global meter provider is used.
//
// # Returns
//
// A ready Stream, or an error if options are invalid or the connection could not be opened.
func Connect[T any](
	ctx context.Context,
	conn Connection[T],
	opts *StreamConfigurationOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
) (*Stream[T], error) {
	if conn == nil {
		return nil, fmt.Errorf("connection cannot be nil")
	}
	if opts == nil {
		opts = NewStreamConfigurationOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, fmt.Errorf("invalid stream options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	instruments, err := newStreamInstruments(meterProvider.Meter(pkgName, metric.WithInstrumentationVersion(pkgVersion)))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream instruments: %w", err)
	}
	id := uuid.NewString()
	stream := &Stream[T]{
		id:          id,
		conn:        conn,
		opts:        opts,
		done:        make(chan struct{}),
		logger:      logger.With(zap.String("session_id", id)),
		tracer:      tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		instruments: instruments,
	}
	ctx, span := stream.tracer.Start(ctx, spanConnect,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrSessionId, id),
			attribute.String(attrState, conn.State().String()),
		))
	defer span.End()
	waitCtx := ctx
	if opts.ConnectTimeoutMs > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.ConnectTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	events := conn.Events()
	for {
		select {
		case <-waitCtx.Done():
			err := stream.abort(ctx, ConnectionError{Err: waitCtx.Err()}, events)
			return nil, handleError(err, span, codes.Error, "connection did not open in time")
		case event, ok := <-events:
			if !ok {
				err := stream.abort(ctx, ConnectionError{Err: errors.New("event feed closed before the connection opened")}, events)
				return nil, handleError(err, span, codes.Error, "connection failed")
			}
			switch event.Kind {
			case EventOpen:
				span.AddEvent(eventConnectionOpen)
				go stream.run(events)
				stream.logger.Info("stream connected")
				span.SetStatus(codes.Ok, codes.Ok.String())
				return stream, nil
			case EventMessage:
				// Message listener is active before the connection reports open
				span.AddEvent(eventEarlyMessage)
				stream.handleMessage(ctx, event.Message)
			case EventError:
				err := stream.abort(ctx, ConnectionError{Err: event.Err}, events)
				return nil, handleError(err, span, codes.Error, "connection failed")
			case EventClose:
				cause := fmt.Errorf("connection closed before it opened: %w", wsadapters.WebsocketCloseError{
					Code:   event.Code,
					Reason: event.Reason,
				})
				err := stream.abort(ctx, ConnectionError{Err: cause}, events)
				return nil, handleError(err, span, codes.Error, "connection failed")
			}
		}
	}
}

/*************************************************************************************************/
/* PUBLIC METHODS                                                                                */
/*************************************************************************************************/

// # Description
//
// Return the next message, or wait for it.
//
// # Behaviour
//
//   - If the connection is closing or closed, a ClosedError is returned right away, even though
//     buffered messages may remain.
//   - If a message is buffered, the oldest one is returned.
//   - Otherwise the call waits, behind the calls already waiting, until a message arrives
//     ({message, Final: false}), the connection closes ({Final: true}) or fails (ConnectionError).
//   - If ctx is done first, the call gives up its place and returns ctx.Err(). If a message was
//     handed to the call at the same time, the message is returned instead so it is not lost.
func (stream *Stream[T]) Next(ctx context.Context) (Result[T], error) {
	if stream == nil || stream.conn == nil {
		return Result[T]{}, ConstructionError{}
	}
	ctx, span := stream.tracer.Start(ctx, spanNext,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String(attrSessionId, stream.id)))
	defer span.End()
	stream.mu.Lock()
	state := stream.conn.State()
	if stream.terminal && state < Closing {
		// The connection is being closed after a failure
		state = Closing
	}
	if state == Closing || state == Closed {
		stream.mu.Unlock()
		span.SetAttributes(attribute.String(attrState, state.String()))
		return Result[T]{}, handleError(ClosedError{State: state}, span, codes.Error, "stream is closed")
	}
	if msg, ok := stream.messages.pop(); ok {
		stream.mu.Unlock()
		span.SetAttributes(attribute.Bool(attrBuffered, true), attribute.Bool(attrFinal, false))
		span.SetStatus(codes.Ok, codes.Ok.String())
		return Result[T]{Message: msg}, nil
	}
	w := make(waiter[T], 1)
	stream.waiters.push(w)
	stream.mu.Unlock()
	span.SetAttributes(attribute.Bool(attrBuffered, false))
	select {
	case out := <-w:
		span.SetAttributes(attribute.Bool(attrFinal, out.result.Final))
		return out.result, handlePotentialError(out.err, span)
	case <-ctx.Done():
		stream.mu.Lock()
		removed := stream.waiters.removeFunc(func(candidate waiter[T]) bool { return candidate == w })
		stream.mu.Unlock()
		if removed {
			stream.instruments.cancelledWaiters.Add(context.WithoutCancel(ctx), 1)
			return Result[T]{}, handleError(ctx.Err(), span, codes.Error, "next has been cancelled")
		}
		// Resolved concurrently: the outcome is already in the channel
		out := <-w
		span.SetAttributes(attribute.Bool(attrFinal, out.result.Final))
		return out.result, handlePotentialError(out.err, span)
	}
}

// # Description
//
// Return an iterator over the stream messages. Each iteration calls Next. Iteration stops
// without error on the terminal signal, and stops after yielding the error when Next fails.
//
// A stream closed while no Next call was pending yields a ClosedError.
func (stream *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			res, err := stream.Next(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if res.Final {
				return
			}
			if !yield(res.Message, nil) {
				return
			}
		}
	}
}

// # Description
//
// Register the hook called once the stream becomes terminal: with nil after a graceful close,
// or with the ConnectionError after a failure. The hook is called at most once, from the
// goroutine which processes connection events. Registering a new hook replaces the previous
// one and a nil hook unregisters it. If the stream is already terminal, the hook is called right
// away.
func (stream *Stream[T]) OnClose(hook func(err error)) error {
	if stream == nil || stream.conn == nil {
		return ConstructionError{}
	}
	stream.mu.Lock()
	if stream.terminal && hook != nil {
		err := stream.err
		stream.mu.Unlock()
		hook(err)
		return nil
	}
	stream.hook = hook
	stream.mu.Unlock()
	return nil
}

// Return a channel closed when the stream becomes terminal. The channel of a zero-value stream
// is closed.
func (stream *Stream[T]) Done() <-chan struct{} {
	if stream == nil || stream.conn == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return stream.done
}

// Return the error which made the stream terminal. Nil while the stream is active or after a
// graceful close.
func (stream *Stream[T]) Err() error {
	if stream == nil || stream.conn == nil {
		return ConstructionError{}
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.err
}

// Return the connection state. Zero-value streams report Closed.
func (stream *Stream[T]) State() ConnectionState {
	if stream == nil || stream.conn == nil {
		return Closed
	}
	return stream.conn.State()
}

// Return the stream session ID.
func (stream *Stream[T]) Id() string {
	if stream == nil {
		return ""
	}
	return stream.id
}

// # Description
//
// Close the underlying connection. Pending Next calls receive the terminal signal once the
// connection reports it is closed.
func (stream *Stream[T]) Close(ctx context.Context) error {
	if stream == nil || stream.conn == nil {
		return ConstructionError{}
	}
	ctx, span := stream.tracer.Start(ctx, spanClose,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(attrSessionId, stream.id)))
	defer span.End()
	return handlePotentialError(stream.conn.Close(ctx), span)
}

/*************************************************************************************************/
/* EVENT HANDLERS                                                                                */
/*************************************************************************************************/

// Consume the event feed once the connection is open.
func (stream *Stream[T]) run(events <-chan Event[T]) {
	ctx := context.Background()
	for event := range events {
		switch event.Kind {
		case EventMessage:
			stream.handleMessage(ctx, event.Message)
		case EventClose:
			stream.handleClose(ctx, event)
		case EventError:
			stream.handleError(ctx, event.Err)
		default:
			stream.logger.Debug("ignoring event", zap.Stringer("kind", event.Kind))
		}
	}
	stream.mu.Lock()
	terminal := stream.terminal
	stream.mu.Unlock()
	if !terminal {
		// Feed closed without a final event
		stream.handleError(ctx, errors.New("event feed closed unexpectedly"))
	}
}

// Hand the message to the oldest waiter, or buffer it. Messages are dropped once terminal.
func (stream *Stream[T]) handleMessage(ctx context.Context, msg T) {
	route := routeBuffer
	stream.mu.Lock()
	if stream.terminal {
		route = routeDropped
	} else if w, ok := stream.waiters.pop(); ok {
		w <- outcome[T]{result: Result[T]{Message: msg}}
		route = routeWaiter
	} else {
		stream.messages.push(msg)
	}
	stream.mu.Unlock()
	stream.instruments.messages.Add(ctx, 1, metric.WithAttributes(attribute.String(attrRoute, route)))
}

// Resolve all waiters with the terminal signal.
func (stream *Stream[T]) handleClose(ctx context.Context, event Event[T]) {
	ctx, span := stream.tracer.Start(ctx, spanOnClose,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrSessionId, stream.id),
			attribute.Int(attrCloseCode, int(event.Code)),
			attribute.String(attrCloseReason, event.Reason),
		))
	defer span.End()
	stream.mu.Lock()
	if stream.terminal {
		stream.mu.Unlock()
		return
	}
	drained := stream.terminate(nil)
	hook := stream.takeHook()
	stream.mu.Unlock()
	span.SetAttributes(attribute.Int(attrDrained, drained))
	stream.instruments.drainedWaiters.Add(ctx, int64(drained), metric.WithAttributes(attribute.String(attrOutcome, outcomeFinal)))
	stream.logger.Info("connection closed",
		zap.Int("code", int(event.Code)),
		zap.String("reason", event.Reason),
		zap.Int("drained", drained))
	if hook != nil {
		hook(nil)
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
}

// Reject all waiters with a ConnectionError and close the connection if needed.
func (stream *Stream[T]) handleError(ctx context.Context, cause error) {
	ctx, span := stream.tracer.Start(ctx, spanOnError,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(attrSessionId, stream.id)))
	defer span.End()
	err := ConnectionError{Err: cause}
	stream.mu.Lock()
	if stream.terminal {
		stream.mu.Unlock()
		stream.logger.Debug("ignoring failure of a terminated stream", zap.Error(cause))
		return
	}
	drained := stream.terminate(err)
	hook := stream.takeHook()
	stream.mu.Unlock()
	stream.closeConnection(ctx)
	span.SetAttributes(attribute.Int(attrDrained, drained))
	stream.instruments.drainedWaiters.Add(ctx, int64(drained), metric.WithAttributes(attribute.String(attrOutcome, outcomeError)))
	stream.logger.Error("connection failed", zap.Error(cause), zap.Int("drained", drained))
	if hook != nil {
		hook(err)
	}
	handleError(err, span, codes.Error, "connection failed")
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Mark the stream terminal and resolve every waiter in FIFO order, with the terminal signal
// when err is nil or with err otherwise. Must be called with the mutex held. Return the number of
// resolved waiters.
func (stream *Stream[T]) terminate(err error) int {
	stream.terminal = true
	stream.err = err
	out := outcome[T]{result: Result[T]{Final: true}}
	if err != nil {
		out = outcome[T]{err: err}
	}
	count := 0
	for {
		w, ok := stream.waiters.pop()
		if !ok {
			break
		}
		w <- out
		count++
	}
	close(stream.done)
	return count
}

// Take the registered hook, if any. Must be called with the mutex held.
func (stream *Stream[T]) takeHook() func(error) {
	hook := stream.hook
	stream.hook = nil
	return hook
}

// Fail the connection attempt: close the connection when needed, resolve the stream and release
// the event feed.
func (stream *Stream[T]) abort(ctx context.Context, err error, events <-chan Event[T]) error {
	stream.closeConnection(ctx)
	stream.mu.Lock()
	if !stream.terminal {
		stream.terminate(err)
	}
	stream.mu.Unlock()
	stream.logger.Warn("connection could not be opened", zap.Error(err))
	go func() {
		for range events {
		}
	}()
	return err
}

// Close the connection if it is connecting or open. Failures are logged.
func (stream *Stream[T]) closeConnection(ctx context.Context) {
	state := stream.conn.State()
	if state != Connecting && state != Open {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if stream.opts.CloseTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(stream.opts.CloseTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	if err := stream.conn.Close(ctx); err != nil {
		stream.logger.Warn("failed to close the connection", zap.Error(err), zap.Stringer("state", state))
	}
}

// Create the instruments used to record stream metrics.
func newStreamInstruments(meter metric.Meter) (*streamInstruments, error) {
	messages, err := meter.Int64Counter(metricMessages,
		metric.WithDescription("Messages received by streams, by route"),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, err
	}
	drainedWaiters, err := meter.Int64Counter(metricDrainedWaiters,
		metric.WithDescription("Pending Next calls resolved by a close or a failure"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	cancelledWaiters, err := meter.Int64Counter(metricCancelledWaiters,
		metric.WithDescription("Pending Next calls abandoned through their context"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	return &streamInstruments{
		messages:         messages,
		drainedWaiters:   drainedWaiters,
		cancelledWaiters: cancelledWaiters,
	}, nil
}
