package wsstream

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
	pkgName = "gowsrelay.wsstream"
	// Package version
	pkgVersion = "0.1.0"

	// Namespace used by spans, events and attributes
	namespace = "wsstream"
	// Sub-namespace used by spans related to the socket connection
	socketNamespace = namespace + ".socket"

	// Name of span used to trace Connect
	spanConnect = namespace + ".connect"
	// Name of span used to trace Next
	spanNext = namespace + ".next"
	// Name of span used to trace Close
	spanClose = namespace + ".close"
	// Name of span used to trace the processing of a close event
	spanOnClose = namespace + ".on_close"
	// Name of span used to trace the processing of an error event
	spanOnError = namespace + ".on_error"
	// Name of span used to trace SocketConnection.Open
	spanSocketOpen = socketNamespace + ".open"
	// Name of span used to trace SocketConnection.Close
	spanSocketClose = socketNamespace + ".close"
	// Name of span used to trace SocketConnection.Write
	spanSocketWrite = socketNamespace + ".write"

	// Event used in span to signal the connection is open
	eventConnectionOpen = namespace + ".connection_open"
	// Event used in span to signal a message has been received before the connection opened
	eventEarlyMessage = namespace + ".early_message"

	// Attribute used to store the stream or socket session ID
	attrSessionId = namespace + ".session_id"
	// Attribute used to store the connection state
	attrState = namespace + ".state"
	// Attribute used to indicate whether Next was served from the buffer
	attrBuffered = namespace + ".buffered"
	// Attribute used to indicate whether Next returned the terminal signal
	attrFinal = namespace + ".final"
	// Attribute used to count the waiters drained by a close or an error
	attrDrained = namespace + ".drained"
	// Attribute used to store the target URL
	attrUrl = "url.full"
	// Attribute used to indicate close reason code
	attrCloseCode = namespace + ".close_code"
	// Attribute used to indicate close reason
	attrCloseReason = namespace + ".close_reason"
)

/*************************************************************************************************/
/* METRICS RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

const (
	// Counter of received messages, by route (waiter, buffer, dropped)
	metricMessages = namespace + ".messages"
	// Counter of waiters resolved by a close or an error, by outcome (final, error)
	metricDrainedWaiters = namespace + ".waiters.drained"
	// Counter of Next calls abandoned through their context
	metricCancelledWaiters = namespace + ".waiters.cancelled"

	// Attribute used to indicate how a received message has been routed
	attrRoute = "route"
	// Attribute used to indicate how waiters have been resolved
	attrOutcome = "outcome"

	routeWaiter  = "waiter"
	routeBuffer  = "buffer"
	routeDropped = "dropped"

	outcomeFinal = "final"
	outcomeError = "error"
)

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// # Description
//
// The function records the input error in the provided span using span.RecordError(err) and set
// the span status with the provided code and description. The function returns the provided error.
func handleError(err error, span trace.Span, code codes.Code, description string) error {
	span.RecordError(err)
	span.SetStatus(code, description)
	return err
}

// # Description
//
// If the error is not nil, the function records the input error in the provided span and set the
// span status with an error code and description. In the other case, the span status is set with
// a Ok code. The function returns the provided error in all cases.
func handlePotentialError(err error, span trace.Span) error {
	if err != nil {
		return handleError(err, span, codes.Error, codes.Error.String())
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
