package wsstream

import (
	"errors"
	"fmt"
)

/*************************************************************************************************/
/* CONSTRUCTION ERROR                                                                            */
/*************************************************************************************************/

// Error returned when a Stream which has not been produced by Connect is used.
type ConstructionError struct{}

func (err ConstructionError) Error() string {
	return "stream has not been created by wsstream.Connect"
}

/*************************************************************************************************/
/* CLOSED ERROR                                                                                  */
/*************************************************************************************************/

// Sentinel matched by ClosedError through errors.Is.
var ErrClosed = errors.New("stream is closed")

// Error returned by Next when the connection is closing or closed.
type ClosedError struct {
	// Connection state observed by Next
	State ConnectionState
}

func (err ClosedError) Error() string {
	return fmt.Sprintf("stream is closed: connection is %s", err.State)
}

func (err ClosedError) Is(target error) bool {
	return target == ErrClosed
}

/*************************************************************************************************/
/* CONNECTION ERROR                                                                              */
/*************************************************************************************************/

// Error used when the underlying connection fails, either before it opens (returned by Connect)
// or after (returned to every pending Next call).
type ConnectionError struct {
	// Embedded error
	Err error
}

func (err ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", err.Err)
}

func (err ConnectionError) Unwrap() error {
	return err.Err
}
