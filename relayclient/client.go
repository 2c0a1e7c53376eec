// Package relayclient connects peers to a relay server.
//
// A peer opens a websocket connection identified by its peer ID and consumes the messages other
// peers send to it as a pull-based stream. Messages are sent to other peers either with an HTTP
// POST (Send) or with a relay frame written to the websocket connection (Relay).
package relayclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gbdevw/gowsrelay/relayframe"
	"github.com/gbdevw/gowsrelay/wsadapters"
	wsadaptergorilla "github.com/gbdevw/gowsrelay/wsadapters/gorilla"
	wsadapternhooyr "github.com/gbdevw/gowsrelay/wsadapters/nhooyr"
	"github.com/gbdevw/gowsrelay/wsstream"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	nhooyr "nhooyr.io/websocket"
)

// Peer connected to a relay server.
//
// The embedded stream yields the messages received by the peer.
type Client struct {
	*wsstream.Stream[wsstream.Message]
	// Websocket connection the stream consumes
	socket *wsstream.SocketConnection
	// Outbound path
	sender *Sender
	// Websocket URL
	target url.URL
	// Tracer
	tracer trace.Tracer
}

// # Description
//
// Connect a peer to the relay server endpoint and wait for the connection to open.
//
// # Inputs
//
//   - ctx: Context used for tracing and cancellation purpose.
//   - endpoint: Relay server endpoint and peer ID.
//   - opts: Client options. If nil, default options are used.
//   - logger: Logger to use. If nil, a no-op logger is used.
//   - tracerProvider: Tracer provider to use. If nil, the global tracer provider is used.
//   - meterProvider: Meter provider to use. If nil, the global meter provider is used.
//
// # Returns
//
// A connected client, or an error: invalid inputs or a wsstream.ConnectionError.
func Connect(
	ctx context.Context,
	endpoint Endpoint,
	opts *ClientConfigurationOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
) (*Client, error) {
	if err := endpoint.Validate(); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	return ConnectURL(ctx, endpoint.WebsocketURL(), opts, logger, tracerProvider, meterProvider)
}

// # Description
//
// Connect a peer to the relay server with a raw URL. The ws, wss, http and https schemes are
// accepted; messages are sent using the matching http or https scheme.
func ConnectURL(
	ctx context.Context,
	target url.URL,
	opts *ClientConfigurationOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
) (*Client, error) {
	if opts == nil {
		opts = NewClientConfigurationOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, fmt.Errorf("invalid client options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	wsTarget, sendBase, err := splitSchemes(target)
	if err != nil {
		return nil, err
	}
	tracer := tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion))
	ctx, span := tracer.Start(ctx, spanConnect,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrUrl, wsTarget.Redacted()),
			attribute.String(attrAdapter, opts.Adapter),
		))
	defer span.End()
	socket := wsstream.NewSocketConnection(newAdapter(opts), wsTarget, logger, tracerProvider)
	if err := socket.Open(ctx); err != nil {
		return nil, handleError(err, span, codes.Error, "connect failed")
	}
	stream, err := wsstream.Connect[wsstream.Message](ctx, socket, opts.StreamOptions, logger, tracerProvider, meterProvider)
	if err != nil {
		return nil, handleError(err, span, codes.Error, "connect failed")
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return &Client{
		Stream: stream,
		socket: socket,
		sender: NewSender(sendBase, opts.HTTPClient, logger, tracerProvider),
		target: wsTarget,
		tracer: tracer,
	}, nil
}

// # Description
//
// Send the payload to the peer with the recipient ID through an HTTP POST request. The
// stream state does not matter.
func (client *Client) Send(ctx context.Context, recipient uint64, payload []byte) error {
	return client.sender.Send(ctx, recipient, payload)
}

// # Description
//
// Send the payload to the peer with the recipient ID through the websocket connection, as a
// relay frame.
func (client *Client) Relay(ctx context.Context, recipient uint64, payload []byte) error {
	ctx, span := client.tracer.Start(ctx, spanRelay,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.Int64(attrRecipient, int64(recipient)),
			attribute.Int(attrPayloadSize, len(payload)),
		))
	defer span.End()
	err := client.socket.Write(ctx, wsadapters.Binary, relayframe.EncodeRelay(recipient, payload))
	if err != nil {
		return handleError(err, span, codes.Error, "relay failed")
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// Return the websocket URL the client is connected to.
func (client *Client) URL() url.URL {
	return client.target
}

// Return the outbound path of the client.
func (client *Client) Sender() *Sender {
	return client.sender
}

// Block until the websocket connection read loop exits. Return the read failure if any.
func (client *Client) Wait() error {
	return client.socket.Wait()
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Return the websocket URL and the send base URL matching the target.
func splitSchemes(target url.URL) (url.URL, url.URL, error) {
	wsTarget, sendBase := target, target
	switch target.Scheme {
	case "wss", "https":
		wsTarget.Scheme, sendBase.Scheme = "wss", "https"
	case "ws", "http":
		wsTarget.Scheme, sendBase.Scheme = "ws", "http"
	default:
		return url.URL{}, url.URL{}, fmt.Errorf("unsupported scheme %q", target.Scheme)
	}
	if target.Host == "" {
		return url.URL{}, url.URL{}, fmt.Errorf("url %q has no host", target.Redacted())
	}
	return wsTarget, sendBase, nil
}

// Create the websocket connection adapter selected by the options.
func newAdapter(opts *ClientConfigurationOptions) wsadapters.WebsocketConnectionAdapterInterface {
	switch opts.Adapter {
	case AdapterGorilla:
		adapter := wsadaptergorilla.NewGorillaWebsocketConnectionAdapter(websocket.DefaultDialer, http.Header{})
		adapter.SetReadLimit(opts.ReadLimit)
		return adapter
	default:
		dialOpts := &nhooyr.DialOptions{}
		if opts.HTTPClient != nil && opts.HTTPClient.Timeout == 0 {
			// nhooyr refuses clients with a timeout: the dial context bounds the handshake
			dialOpts.HTTPClient = opts.HTTPClient
		}
		adapter := wsadapternhooyr.NewNhooyrWebsocketConnectionAdapter(dialOpts)
		adapter.SetReadLimit(opts.ReadLimit)
		return adapter
	}
}
