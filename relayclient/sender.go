package relayclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Content type of the messages sent to the relay server.
const contentType = "application/octet-stream"

// Outbound path: sends messages to relay server peers with HTTP POST requests.
//
// A Sender does not depend on any websocket connection and is safe for concurrent use.
type Sender struct {
	// Relay server base URL (scheme, credentials, host and port)
	base url.URL
	// HTTP client
	client *http.Client
	// Logger
	logger *zap.Logger
	// Tracer
	tracer trace.Tracer
}

// # Description
//
// Factory which creates a new Sender.
//
// # Inputs
//
//   - base: Relay server base URL. Credentials embedded in the URL are sent as basic
//     authentication. Path, query and fragment are ignored.
//   - client: HTTP client to use. If nil, http.DefaultClient is used.
//   - logger: Logger to use. If nil, a no-op logger is used.
//   - tracerProvider: Tracer provider to use. If nil, the global tracer provider is used.
func NewSender(base url.URL, client *http.Client, logger *zap.Logger, tracerProvider trace.TracerProvider) *Sender {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	base.Path, base.RawPath, base.RawQuery, base.Fragment = "", "", "", ""
	return &Sender{
		base:   base,
		client: client,
		logger: logger,
		tracer: tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
	}
}

// # Description
//
// Send the payload to the peer connected to the relay server with the recipient ID.
//
// # Returns
//
// Nil if the relay server accepted the message, a SendFailure if it answered with a non-2xx
// status, or the transport error.
func (sender *Sender) Send(ctx context.Context, recipient uint64, payload []byte) error {
	target := sender.base
	target.Path = "/" + strconv.FormatUint(recipient, 10)
	ctx, span := sender.tracer.Start(ctx, spanSend,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrUrl, target.Redacted()),
			attribute.Int64(attrRecipient, int64(recipient)),
			attribute.Int(attrPayloadSize, len(payload)),
		))
	defer span.End()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return handleError(fmt.Errorf("failed to build send request: %w", err), span, codes.Error, "send failed")
	}
	req.Header.Set("Content-Type", contentType)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	resp, err := sender.client.Do(req)
	if err != nil {
		return handleError(err, span, codes.Error, "send failed")
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused
	io.Copy(io.Discard, resp.Body)
	span.SetAttributes(attribute.Int(attrStatusCode, resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := SendFailure{StatusCode: resp.StatusCode, Status: resp.Status}
		sender.logger.Debug("message rejected",
			zap.Uint64("recipient", recipient),
			zap.Int("status_code", resp.StatusCode))
		return handleError(err, span, codes.Error, "send failed")
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
