// Package relayserver implements the relay server peers connect to.
//
// Each peer opens a websocket connection on /<id>, where id is an unsigned 64 bits integer. The
// server then delivers to this connection, as binary messages:
//   - the bodies of the POST /<id> requests,
//   - the payloads of the relay frames other peers address to id through their own connection.
//
// GET / returns the server statics and GET /metrics exposes prometheus metrics.
package relayserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gbdevw/gowsrelay/wsadapters"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Errors used by the peer registry.
var (
	// A peer with the same ID is already connected
	ErrPeerExists = errors.New("peer id already connected")
	// The maximum number of connected peers has been reached
	ErrTooManyPeers = errors.New("too many peers")
	// No peer is connected with the ID
	ErrPeerNotFound = errors.New("peer not connected")
)

// Statics returned by GET /.
type Statics struct {
	// Server launch time as a unix timestamp (seconds)
	LaunchTime string
	// Current time as a unix timestamp (seconds)
	NowTime string
	// Number of connected peers
	Connections int32
}

// Relay server.
type RelayServer struct {
	// Server options
	opts *RelayServerConfigurationOptions
	// Optional authentication hook
	authenticator Authenticator
	// Underlying HTTP server
	httpServer *http.Server
	// Router
	router *gin.Engine
	// Websocket upgrader
	upgrader websocket.Upgrader
	// Listener, set once started
	listener net.Listener
	// Connected peers
	peers map[uint64]*peer
	// Protects peers
	peersMu sync.RWMutex
	// Server launch time
	launchedAt time.Time
	// Number of accepted peer connections
	acceptedCount atomic.Int64
	// Indicates that the server has started
	started bool
	// Indicates that the server has been stopped. A stopped server cannot be started again.
	stopped bool
	// Internal mutex used to coordinate start/stop
	startMu sync.Mutex
	// Logger
	logger *zap.Logger
	// Tracer
	tracer trace.Tracer
	// Prometheus collectors
	collectors *relayServerCollectors
	// Reference to otel instruments
	instruments *relayServerInstruments
}

// # Description
//
// Factory which creates a new, non-started RelayServer.
//
// # Inputs
//
//   - opts: Server options. If nil, default options are used.
//   - authenticator: Optional authentication hook. If nil, all requests are accepted.
//   - logger: Logger to use. If nil, a no-op logger is used.
//   - tracerProvider: Tracer provider to use. If nil, the global tracer provider is used.
//   - meterProvider: Meter provider to use. If nil, the global meter provider is used.
//
// # Returns
//
// A new, non-started RelayServer or an error if options are invalid.
func NewRelayServer(
	opts *RelayServerConfigurationOptions,
	authenticator Authenticator,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
) (*RelayServer, error) {
	if opts == nil {
		opts = NewRelayServerConfigurationOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, fmt.Errorf("invalid relay server options: %w", err)
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
	srv := &RelayServer{
		opts:          opts,
		authenticator: authenticator,
		peers:         map[uint64]*peer{},
		launchedAt:    time.Now(),
		logger:        logger,
		tracer:        tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		collectors:    newRelayServerCollectors(),
	}
	srv.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if srv.opts.Origin == "" {
				return true
			}
			return srv.opts.Origin == r.Header.Get("Origin")
		},
	}
	instruments, err := newRelayServerInstruments(meterProvider.Meter(pkgName, metric.WithInstrumentationVersion(pkgVersion)), srv)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay server instruments: %w", err)
	}
	srv.instruments = instruments
	srv.router = srv.newRouter()
	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger),
	}
	return srv, nil
}

// Build the router.
func (srv *RelayServer) newRouter() *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), srv.logRequests(), srv.collectors.middleware(), srv.cors())
	router.GET("/", srv.handleStatics)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(srv.collectors.registry, promhttp.HandlerOpts{})))
	router.GET("/:id", srv.handleUpgrade)
	router.POST("/:id", srv.handleSend)
	router.OPTIONS("/*path", srv.handlePreflight)
	return router
}

/*************************************************************************************************/
/* LIFECYCLE                                                                                     */
/*************************************************************************************************/

// # Description
//
// Start listening and serving requests in a background goroutine. TLS is used when a certificate
// and a key are configured.
//
// # Returns
//
// An error if the server has already been started or stopped, or if it cannot listen.
func (srv *RelayServer) Start() error {
	_, span := srv.tracer.Start(context.Background(), spanStart,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String(attrAddr, srv.opts.Addr)))
	defer span.End()
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.started || srv.stopped {
		return handleError(fmt.Errorf("server already started"), span, codes.Error, "start failed")
	}
	listener, err := net.Listen("tcp", srv.opts.Addr)
	if err != nil {
		return handleError(fmt.Errorf("failed to listen on %s: %w", srv.opts.Addr, err), span, codes.Error, "start failed")
	}
	srv.listener = listener
	srv.started = true
	go func() {
		var err error
		if srv.opts.tlsEnabled() {
			err = srv.httpServer.ServeTLS(listener, srv.opts.CertFile, srv.opts.KeyFile)
		} else {
			err = srv.httpServer.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.logger.Error("relay server failed", zap.Error(err))
		}
	}()
	srv.logger.Info("relay server started",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", srv.opts.tlsEnabled()))
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// # Description
//
// Stop the server: stop accepting requests, close peer connections with a going away close
// message and wait for in-flight requests to complete.
//
// # Returns
//
// An error if the server is not started or if the graceful shutdown did not complete in time.
func (srv *RelayServer) Stop(ctx context.Context) error {
	ctx, span := srv.tracer.Start(ctx, spanStop, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if !srv.started {
		return handleError(fmt.Errorf("server not started"), span, codes.Error, "stop failed")
	}
	srv.started = false
	srv.stopped = true
	stopCtx, cancel := context.WithTimeout(ctx, time.Duration(srv.opts.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()
	// Hijacked connections are not tracked by Shutdown: peers are closed explicitly
	srv.closePeers(context.WithoutCancel(ctx))
	if err := srv.httpServer.Shutdown(stopCtx); err != nil {
		return handleError(fmt.Errorf("failed to shutdown relay server: %w", err), span, codes.Error, "stop failed")
	}
	srv.logger.Info("relay server stopped")
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// Return the address the server listens on, or nil if the server is not started.
func (srv *RelayServer) Addr() net.Addr {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// Return the HTTP handler of the server. Useful to serve the relay through another server.
func (srv *RelayServer) Handler() http.Handler {
	return srv.router
}

// Return the server statics.
func (srv *RelayServer) Statics() Statics {
	return Statics{
		LaunchTime:  strconv.FormatInt(srv.launchedAt.UTC().Unix(), 10),
		NowTime:     strconv.FormatInt(time.Now().UTC().Unix(), 10),
		Connections: int32(srv.peerCount()),
	}
}

/*************************************************************************************************/
/* PEER REGISTRY                                                                                 */
/*************************************************************************************************/

// Register a peer. Fail if the ID is already used or if there are too many peers.
func (srv *RelayServer) addPeer(p *peer) error {
	srv.peersMu.Lock()
	defer srv.peersMu.Unlock()
	if _, exists := srv.peers[p.id]; exists {
		return ErrPeerExists
	}
	if len(srv.peers) >= srv.opts.MaxConnections {
		return ErrTooManyPeers
	}
	srv.peers[p.id] = p
	srv.acceptedCount.Add(1)
	return nil
}

// Unregister a peer if it is still the registered one.
func (srv *RelayServer) removePeer(p *peer) {
	srv.peersMu.Lock()
	defer srv.peersMu.Unlock()
	if srv.peers[p.id] == p {
		delete(srv.peers, p.id)
	}
}

// Return the peer with the ID, or nil.
func (srv *RelayServer) getPeer(id uint64) *peer {
	srv.peersMu.RLock()
	defer srv.peersMu.RUnlock()
	return srv.peers[id]
}

// Return the number of connected peers.
func (srv *RelayServer) peerCount() int {
	srv.peersMu.RLock()
	defer srv.peersMu.RUnlock()
	return len(srv.peers)
}

// Close all peer connections with a going away close message.
func (srv *RelayServer) closePeers(ctx context.Context) {
	srv.peersMu.RLock()
	peers := make([]*peer, 0, len(srv.peers))
	for _, p := range srv.peers {
		peers = append(peers, p)
	}
	srv.peersMu.RUnlock()
	for _, p := range peers {
		srv.closePeer(ctx, p, wsadapters.GoingAway, "server is shutting down")
		p.conn.Close()
	}
}
