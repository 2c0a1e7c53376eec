package relayserver

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/metric"
)

// Prometheus collectors exposed on /metrics. Each server has its own registry.
type relayServerCollectors struct {
	// Registry exposed on /metrics
	registry *prometheus.Registry
	// HTTP requests by route, method and status code
	requestsTotal *prometheus.CounterVec
	// Relayed messages by path (post, frame)
	relayedTotal *prometheus.CounterVec
	// Peer sessions closed by the server, by close code
	closedSessionsTotal *prometheus.CounterVec
}

// Create and register the prometheus collectors.
func newRelayServerCollectors() *relayServerCollectors {
	c := &relayServerCollectors{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		relayedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "relayed_messages_total",
			Help:      "Total number of messages delivered to peers by path (post, frame)",
		}, []string{"path"}),
		closedSessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "closed_sessions_total",
			Help:      "Total number of peer sessions closed by the server by close code",
		}, []string{"code"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requestsTotal,
		c.relayedTotal,
		c.closedSessionsTotal,
	)
	return c
}

// Gin middleware which counts requests.
func (c *relayServerCollectors) middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.requestsTotal.WithLabelValues(route, ctx.Request.Method, strconv.Itoa(ctx.Writer.Status())).Inc()
	}
}

// Internal structure used to retain references to instruments that record relay server metrics.
type relayServerInstruments struct {
	// Gauge that monitors the number of connected peers
	peersGauge metric.Int64ObservableGauge
	// Gauge that retains the server start time as a unix timestamp (seconds)
	startUnixGauge metric.Int64ObservableGauge
	// Counter that monitors the total number of accepted peer connections
	connectionsCounter metric.Int64ObservableCounter
}

// Create the observable instruments of the server.
func newRelayServerInstruments(meter metric.Meter, srv *RelayServer) (*relayServerInstruments, error) {
	peersGauge, err := meter.Int64ObservableGauge(metricPeersGauge,
		metric.WithDescription("Number of connected peers"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			o.Observe(int64(srv.peerCount()))
			return nil
		}))
	if err != nil {
		return nil, err
	}
	startUnixGauge, err := meter.Int64ObservableGauge(metricStartUnixGauge,
		metric.WithUnit("s"),
		metric.WithDescription("Server launch time as a unix timestamp"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			o.Observe(srv.launchedAt.Unix())
			return nil
		}))
	if err != nil {
		return nil, err
	}
	connectionsCounter, err := meter.Int64ObservableCounter(metricConnectionsCounter,
		metric.WithDescription("Total number of accepted peer connections"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			o.Observe(srv.acceptedCount.Load())
			return nil
		}))
	if err != nil {
		return nil, err
	}
	return &relayServerInstruments{
		peersGauge:         peersGauge,
		startUnixGauge:     startUnixGauge,
		connectionsCounter: connectionsCounter,
	}, nil
}
