// Package wsadapters defines the interface used to plug 3rd party websocket libraries into the
// stream adapter and the relay client.
package wsadapters

import "strconv"

/*************************************************************************************************/
/* WEBSOCKET RELATED CONSTANTS                                                                   */
/*************************************************************************************************/

// Close status codes defined by RFC6455.
//
// RFC: https://www.rfc-editor.org/rfc/rfc6455.html#section-7.4.1
//
// Names follow the IANA registry: https://www.iana.org/assignments/websocket/websocket.xhtml
type StatusCode int

const (
	// 1000 - the purpose for which the connection was established has been fulfilled.
	NormalClosure StatusCode = 1000
	// 1001 - an endpoint is going away (server shutdown, peer navigated away, ...).
	GoingAway StatusCode = 1001
	// 1002 - an endpoint terminates the connection because of a protocol error.
	ProtocolError StatusCode = 1002
	// 1003 - an endpoint received a type of data it cannot accept.
	UnsupportedData StatusCode = 1003
	// 1005 - reserved. No status code was present in the close frame.
	NoStatusReceived StatusCode = 1005
	// 1006 - reserved. The connection was closed without a close frame.
	AbnormalClosure StatusCode = 1006
	// 1007 - data within a message was not consistent with the message type.
	InvalidFramePayloadData StatusCode = 1007
	// 1008 - a message violates the endpoint policy.
	PolicyViolation StatusCode = 1008
	// 1009 - a message is too big to be processed.
	MessageTooBig StatusCode = 1009
	// 1010 - the client expected the server to negotiate an extension.
	MandatoryExtension StatusCode = 1010
	// 1011 - the server encountered an unexpected condition.
	InternalError StatusCode = 1011
	// 1015 - reserved. The TLS handshake failed.
	TLSHandshake StatusCode = 1015
)

// Return the IANA name of the status code or its numeric value when the code is not registered.
func (code StatusCode) String() string {
	switch code {
	case NormalClosure:
		return "NormalClosure"
	case GoingAway:
		return "GoingAway"
	case ProtocolError:
		return "ProtocolError"
	case UnsupportedData:
		return "UnsupportedData"
	case NoStatusReceived:
		return "NoStatusReceived"
	case AbnormalClosure:
		return "AbnormalClosure"
	case InvalidFramePayloadData:
		return "InvalidFramePayloadData"
	case PolicyViolation:
		return "PolicyViolation"
	case MessageTooBig:
		return "MessageTooBig"
	case MandatoryExtension:
		return "MandatoryExtension"
	case InternalError:
		return "InternalError"
	case TLSHandshake:
		return "TLSHandshake"
	default:
		return strconv.Itoa(int(code))
	}
}

// Websocket message types which can be read or written.
//
// Values mimic RFC6455 data frame opcodes. Control frames are excluded: adapters and the
// underlying websocket libraries handle fragmentation, close, ping and pong seamlessly.
//
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
type MessageType int

const (
	// Denotes a text message
	Text MessageType = iota + 1
	// Denotes a binary message
	Binary
)

func (msgType MessageType) String() string {
	switch msgType {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return "unknown(" + strconv.Itoa(int(msgType)) + ")"
	}
}
