package relayclient

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Relay server endpoint a peer connects to.
type Endpoint struct {
	// Relay server host name or IP address
	Host string `validate:"required,hostname_rfc1123|ip"`
	// Relay server port
	Port uint16 `validate:"required"`
	// Peer ID the connection is registered with
	ID uint64
	// Optional credentials, formatted as "user" or "user:password"
	Auth string
	// Use plain ws/http instead of wss/https
	Insecure bool
}

// # Description
//
// Return the websocket URL of the endpoint: wss://[auth@]host:port/id (ws when Insecure).
func (endpoint Endpoint) WebsocketURL() url.URL {
	target := endpoint.baseURL()
	target.Scheme = "wss"
	if endpoint.Insecure {
		target.Scheme = "ws"
	}
	target.Path = "/" + strconv.FormatUint(endpoint.ID, 10)
	return target
}

// # Description
//
// Return the URL used to send messages: https://[auth@]host:port (http when Insecure).
func (endpoint Endpoint) SendURL() url.URL {
	target := endpoint.baseURL()
	target.Scheme = "https"
	if endpoint.Insecure {
		target.Scheme = "http"
	}
	return target
}

func (endpoint Endpoint) baseURL() url.URL {
	target := url.URL{Host: net.JoinHostPort(endpoint.Host, strconv.FormatUint(uint64(endpoint.Port), 10))}
	if endpoint.Auth != "" {
		if user, password, ok := strings.Cut(endpoint.Auth, ":"); ok {
			target.User = url.UserPassword(user, password)
		} else {
			target.User = url.User(endpoint.Auth)
		}
	}
	return target
}

// Validate the endpoint.
func (endpoint Endpoint) Validate() error {
	return validator.New().Struct(endpoint)
}
