package relayclient

import (
	"fmt"
	"strconv"
)

/*************************************************************************************************/
/* SEND FAILURE                                                                                  */
/*************************************************************************************************/

// Error returned by Send when the relay server does not accept the message.
type SendFailure struct {
	// HTTP status code
	StatusCode int
	// HTTP status line, e.g. "404 Not Found". Can be empty.
	Status string
}

func (err SendFailure) Error() string {
	status := err.Status
	if status == "" {
		status = strconv.Itoa(err.StatusCode)
	}
	return fmt.Sprintf("send failed: %s", status)
}
