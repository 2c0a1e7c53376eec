package relayserver

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

// Error returned by BasicAuthenticator when credentials are missing or wrong.
var ErrUnauthorized = errors.New("unauthorized")

// Hook called before a peer connects and before a message is sent. The id is the ID from the
// request path: the connecting peer for websocket upgrades, the recipient for sends. A non-nil
// error refuses the request with a 401 status and the error message.
type Authenticator func(srv *RelayServer, req *http.Request, id uint64) error

// # Description
//
// Return an Authenticator which accepts requests with basic authentication credentials found in
// the provided user/password map.
func BasicAuthenticator(credentials map[string]string) Authenticator {
	return func(_ *RelayServer, req *http.Request, _ uint64) error {
		user, password, ok := req.BasicAuth()
		if !ok {
			return ErrUnauthorized
		}
		expected, found := credentials[user]
		if !found || subtle.ConstantTimeCompare([]byte(expected), []byte(password)) != 1 {
			return ErrUnauthorized
		}
		return nil
	}
}
