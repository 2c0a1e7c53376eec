package relayserver

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*************************************************************************************************/
/* TRACING RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

// Constants used for tracing purpose.
const (
	// Package name used by library tracer and meter
	pkgName = "gowsrelay.relayserver"
	// Package version
	pkgVersion = "0.1.0"

	// Namespace used by spans, events and attributes
	namespace = "relayserver"

	// Name of span used to trace Start
	spanStart = namespace + ".start"
	// Name of span used to trace Stop
	spanStop = namespace + ".stop"
	// Name of span used to trace a peer session
	spanPeerSession = namespace + ".peer.session"
	// Name of span used to trace a message sent with POST
	spanSend = namespace + ".send"

	// Event used in span when a relay frame has been forwarded
	eventFrameRelayed = namespace + ".frame_relayed"
	// Event used in span when a relay frame has been dropped
	eventFrameDropped = namespace + ".frame_dropped"

	// Attribute used to store a peer ID
	attrPeerId = namespace + ".peer.id"
	// Attribute used to store a peer session ID
	attrSessionId = namespace + ".peer.session_id"
	// Attribute used to store a recipient peer ID
	attrRecipient = namespace + ".recipient"
	// Attribute used to store a payload size
	attrPayloadSize = namespace + ".payload.size"
	// Attribute used to store the close code sent to a peer
	attrCloseCode = namespace + ".close_code"
	// Attribute used to store the server address
	attrAddr = "server.address"
)

/*************************************************************************************************/
/* METRICS RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

const (
	// Gauge of connected peers
	metricPeersGauge = namespace + ".peers"
	// Gauge of the server start time as a unix timestamp (seconds)
	metricStartUnixGauge = namespace + ".start_unix"
	// Counter of peer connections accepted since the server has been created
	metricConnectionsCounter = namespace + ".connections"

	// Prometheus namespace
	promNamespace = "gowsrelay"
	// Prometheus subsystem
	promSubsystem = "relay"
)

// # Description
//
// The function records the input error in the provided span using span.RecordError(err) and set
// the span status with the provided code and description. The function returns the provided error.
func handleError(err error, span trace.Span, code codes.Code, description string) error {
	span.RecordError(err)
	span.SetStatus(code, description)
	return err
}
