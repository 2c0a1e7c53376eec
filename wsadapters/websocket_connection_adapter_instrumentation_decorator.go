package wsadapters

import (
	"context"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// A decorator which automatically instruments implementations of
// WebsocketConnectionAdapterInterface.
type WebsocketConnectionAdapterInstrumentationDecorator struct {
	// Decorated WebsocketConnectionAdapterInterface implementation
	decorated WebsocketConnectionAdapterInterface
	// Tracer used for instrumentation
	tracer trace.Tracer
}

// # Description
//
// Create a new decorator which will automatically instrument the provided implementation of
// WebsocketConnectionAdapterInterface. If the provided adapter is already decorated, it is
// returned as-is.
//
// # Inputs
//
//   - decorated: adapter to instrument.
//   - tracerProvider: tracer provider to use. If nil, the global tracer provider is used.
func NewWebsocketConnectionAdapterInstrumentationDecorator(
	decorated WebsocketConnectionAdapterInterface,
	tracerProvider trace.TracerProvider,
) *WebsocketConnectionAdapterInstrumentationDecorator {
	if already, ok := decorated.(*WebsocketConnectionAdapterInstrumentationDecorator); ok {
		return already
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	return &WebsocketConnectionAdapterInstrumentationDecorator{
		decorated: decorated,
		tracer:    tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
	}
}

// Decorate and instrument the Dial method. Credentials are redacted from the traced URL.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Dial(ctx context.Context, target url.URL) (*http.Response, error) {
	ctx, span := decorator.tracer.Start(ctx, spanDial,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrUrl, target.Redacted()),
		))
	defer span.End()
	resp, err := decorator.decorated.Dial(ctx, target)
	return resp, traceError(span, err)
}

// Decorate and instrument the Close method.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Close(ctx context.Context, code StatusCode, reason string) error {
	ctx, span := decorator.tracer.Start(ctx, spanClose,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int(attrCloseCode, int(code)),
			attribute.String(attrCloseReason, reason),
		))
	defer span.End()
	return traceError(span, decorator.decorated.Close(ctx, code, reason))
}

// Decorate and instrument the Ping method.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Ping(ctx context.Context) error {
	ctx, span := decorator.tracer.Start(ctx, spanPing, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	return traceError(span, decorator.decorated.Ping(ctx))
}

// Decorate and instrument the Read method.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Read(ctx context.Context) (MessageType, []byte, error) {
	ctx, span := decorator.tracer.Start(ctx, spanRead, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	msgType, msg, err := decorator.decorated.Read(ctx)
	if err != nil {
		return msgType, msg, traceError(span, err)
	}
	span.AddEvent(eventReceived, trace.WithAttributes(
		attribute.Int(attrMessageByteSize, len(msg)),
		attribute.Int(attrMessageType, int(msgType)),
	))
	return msgType, msg, nil
}

// Decorate and instrument the Write method.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Write(ctx context.Context, msgType MessageType, msg []byte) error {
	ctx, span := decorator.tracer.Start(ctx, spanWrite,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int(attrMessageByteSize, len(msg)),
			attribute.Int(attrMessageType, int(msgType)),
		))
	defer span.End()
	return traceError(span, decorator.decorated.Write(ctx, msgType, msg))
}

// Simple proxy for non-instrumented getter
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) GetUnderlyingWebsocketConnection() any {
	return decorator.decorated.GetUnderlyingWebsocketConnection()
}
