package relayclient

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*************************************************************************************************/
/* TRACING RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

// Constants used for tracing purpose.
const (
	// Package name used by library tracer
	pkgName = "gowsrelay.relayclient"
	// Package version
	pkgVersion = "0.1.0"

	// Namespace used by spans, events and attributes
	namespace = "relayclient"

	// Name of span used to trace Connect
	spanConnect = namespace + ".connect"
	// Name of span used to trace Send
	spanSend = namespace + ".send"
	// Name of span used to trace Relay
	spanRelay = namespace + ".relay"

	// Attribute used to store the recipient peer ID
	attrRecipient = namespace + ".recipient"
	// Attribute used to store the payload size
	attrPayloadSize = namespace + ".payload.size"
	// Attribute used to store the adapter used to open the websocket connection
	attrAdapter = namespace + ".adapter"
	// Attribute used to store the target URL
	attrUrl = "url.full"
	// Attribute used to store the response status code
	attrStatusCode = "http.response.status_code"
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
