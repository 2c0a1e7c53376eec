package wsadapters

import "fmt"

/*************************************************************************************************/
/* WEBSOCKET CLOSE ERROR                                                                         */
/*************************************************************************************************/

// Error returned by adapters to signal the websocket connection has been closed.
type WebsocketCloseError struct {
	// Status code used or received when connection has been closed. If the connection has been
	// dropped without a close message, 1006 must be used.
	//
	// https://www.rfc-editor.org/rfc/rfc6455.html#section-7.1.5
	Code StatusCode
	// Optional close reason used or received when connection has been closed.
	//
	// https://www.rfc-editor.org/rfc/rfc6455.html#section-7.1.6
	Reason string
	// Error returned by the underlying websocket library, if any.
	Err error
}

func (err WebsocketCloseError) Error() string {
	return fmt.Sprintf("connection has been closed: %d - %s", err.Code, err.Reason)
}

func (err WebsocketCloseError) Unwrap() error {
	return err.Err
}
