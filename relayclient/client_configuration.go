package relayclient

import (
	"net/http"

	"github.com/gbdevw/gowsrelay/relayframe"
	"github.com/gbdevw/gowsrelay/wsstream"
	"github.com/go-playground/validator/v10"
)

// Names of the supported websocket libraries.
const (
	// nhooyr.io/websocket
	AdapterNhooyr = "nhooyr"
	// github.com/gorilla/websocket
	AdapterGorilla = "gorilla"
)

// Default read limit: the default relay server message size plus the relay frame header.
const DefaultReadLimit int64 = 1<<20 + relayframe.HeaderSize

// Defines configuration options for relay clients.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type ClientConfigurationOptions struct {
	// Websocket library used to open the connection: nhooyr or gorilla.
	//
	// Defaults to nhooyr.
	Adapter string `validate:"oneof=nhooyr gorilla"`
	// Maximum size (bytes) of a message received through the websocket connection. Larger
	// messages fail the connection.
	//
	// Defaults to 1 MiB plus the relay frame header, the default relay server limit. Must be at
	// least 1.
	ReadLimit int64 `validate:"gte=1"`
	// Options of the stream which consumes the connection.
	//
	// Defaults to wsstream defaults.
	StreamOptions *wsstream.StreamConfigurationOptions `validate:"required"`
	// HTTP client used to send messages and to open the websocket connection with nhooyr.
	//
	// Defaults to nil (default http client).
	HTTPClient *http.Client
}

// # Description
//
// Set opts.Adapter and return the modified object. The method does not validate inputs.
//
// # Adapter
//
// This option defines the websocket library used to open the connection (nhooyr or gorilla).
//
// # Return
//
// The modified options.
func (opts *ClientConfigurationOptions) WithAdapter(value string) *ClientConfigurationOptions {
	opts.Adapter = value
	return opts
}

// # Description
//
// Set opts.ReadLimit and return the modified object. The method does not validate inputs.
//
// # Read limit
//
// Use a value at least as large as the MaxMessageBytes setting of the relay server, otherwise
// messages the server accepts fail the connection of the recipient.
//
// # Return
//
// The modified options.
func (opts *ClientConfigurationOptions) WithReadLimit(value int64) *ClientConfigurationOptions {
	opts.ReadLimit = value
	return opts
}

// # Description
//
// Set opts.StreamOptions and return the modified object. The method does not validate inputs.
//
// # Return
//
// The modified options.
func (opts *ClientConfigurationOptions) WithStreamOptions(value *wsstream.StreamConfigurationOptions) *ClientConfigurationOptions {
	opts.StreamOptions = value
	return opts
}

// # Description
//
// Set opts.HTTPClient and return the modified object.
//
// # Return
//
// The modified options.
func (opts *ClientConfigurationOptions) WithHTTPClient(value *http.Client) *ClientConfigurationOptions {
	opts.HTTPClient = value
	return opts
}

// # Description
//
// Factory which creates a new ClientConfigurationOptions object with nice defaults.
//
// # Default settings
//
//   - Adapter = nhooyr
//   - ReadLimit = 1 MiB + relay frame header size
//   - StreamOptions = wsstream.NewStreamConfigurationOptions()
//   - HTTPClient = nil (http.DefaultClient)
func NewClientConfigurationOptions() *ClientConfigurationOptions {
	return &ClientConfigurationOptions{
		Adapter:       AdapterNhooyr,
		ReadLimit:     DefaultReadLimit,
		StreamOptions: wsstream.NewStreamConfigurationOptions(),
	}
}

// # Description
//
// Helper function which validates ClientConfigurationOptions, stream options included.
func Validate(opts *ClientConfigurationOptions) error {
	if err := validator.New().Struct(opts); err != nil {
		return err
	}
	return wsstream.Validate(opts.StreamOptions)
}
