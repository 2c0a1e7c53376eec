package relayserver

import (
	"math"

	"github.com/go-playground/validator/v10"
)

// Defines configuration options for the relay server.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type RelayServerConfigurationOptions struct {
	// Address the server listens on.
	//
	// Defaults to localhost:4433.
	Addr string `validate:"required"`
	// Path to the TLS certificate. TLS is enabled when both CertFile and KeyFile are set.
	CertFile string `validate:"required_with=KeyFile"`
	// Path to the TLS private key.
	KeyFile string `validate:"required_with=CertFile"`
	// Allowed Origin header for websocket upgrades and CORS. Empty allows any origin.
	Origin string
	// Maximum number of connected peers.
	//
	// Defaults to math.MaxInt32. Must be at least 1.
	MaxConnections int `validate:"gte=1"`
	// Maximum size (bytes) of a message sent with POST, and of a relay frame payload.
	//
	// Defaults to 1 MiB. Must be at least 1.
	MaxMessageBytes int64 `validate:"gte=1"`
	// Delay (milliseconds) to write a message to a peer.
	//
	// Defaults to 10000 (10 seconds) - 0 disables the timeout.
	WriteTimeoutMs int64 `validate:"gte=0"`
	// Delay (milliseconds) to gracefully stop the server.
	//
	// Defaults to 5000 (5 seconds). Must be at least 1.
	ShutdownTimeoutMs int64 `validate:"gte=1"`
}

// # Description
//
// Set opts.Addr and return the modified object. The method does not validate inputs.
func (opts *RelayServerConfigurationOptions) WithAddr(value string) *RelayServerConfigurationOptions {
	opts.Addr = value
	return opts
}

// # Description
//
// Set opts.CertFile and opts.KeyFile and return the modified object. The method does not
// validate inputs.
//
// # TLS
//
// The server serves HTTPS and WSS when both files are set.
func (opts *RelayServerConfigurationOptions) WithTLS(certFile string, keyFile string) *RelayServerConfigurationOptions {
	opts.CertFile = certFile
	opts.KeyFile = keyFile
	return opts
}

// # Description
//
// Set opts.Origin and return the modified object. The method does not validate inputs.
//
// # Origin
//
// When set, websocket upgrades whose Origin header differs are refused and CORS responses allow
// this origin only. When empty, any origin is allowed.
func (opts *RelayServerConfigurationOptions) WithOrigin(value string) *RelayServerConfigurationOptions {
	opts.Origin = value
	return opts
}

// # Description
//
// Set opts.MaxConnections and return the modified object. The method does not validate inputs.
func (opts *RelayServerConfigurationOptions) WithMaxConnections(value int) *RelayServerConfigurationOptions {
	opts.MaxConnections = value
	return opts
}

// # Description
//
// Set opts.MaxMessageBytes and return the modified object. The method does not validate inputs.
func (opts *RelayServerConfigurationOptions) WithMaxMessageBytes(value int64) *RelayServerConfigurationOptions {
	opts.MaxMessageBytes = value
	return opts
}

// # Description
//
// Set opts.WriteTimeoutMs and return the modified object. The method does not validate inputs.
func (opts *RelayServerConfigurationOptions) WithWriteTimeoutMs(value int64) *RelayServerConfigurationOptions {
	opts.WriteTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.ShutdownTimeoutMs and return the modified object. The method does not validate inputs.
func (opts *RelayServerConfigurationOptions) WithShutdownTimeoutMs(value int64) *RelayServerConfigurationOptions {
	opts.ShutdownTimeoutMs = value
	return opts
}

// # Description
//
// Factory which creates a new RelayServerConfigurationOptions object with nice defaults.
//
// # Default settings
//
//   - Addr = localhost:4433
//   - No TLS, no origin restriction
//   - MaxConnections = math.MaxInt32
//   - MaxMessageBytes = 1 MiB
//   - WriteTimeoutMs = 10000 (10 seconds)
//   - ShutdownTimeoutMs = 5000 (5 seconds)
func NewRelayServerConfigurationOptions() *RelayServerConfigurationOptions {
	return &RelayServerConfigurationOptions{
		Addr:              "localhost:4433",
		MaxConnections:    math.MaxInt32,
		MaxMessageBytes:   1 << 20,
		WriteTimeoutMs:    10000,
		ShutdownTimeoutMs: 5000,
	}
}

// # Description
//
// Helper function which validates RelayServerConfigurationOptions.
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
func Validate(opts *RelayServerConfigurationOptions) error {
	return validator.New().Struct(opts)
}

// Return true when TLS is enabled.
func (opts *RelayServerConfigurationOptions) tlsEnabled() bool {
	return opts.CertFile != "" && opts.KeyFile != ""
}
