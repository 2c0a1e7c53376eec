package wsstream

import (
	"github.com/go-playground/validator/v10"
)

// Defines configuration options for streams.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type StreamConfigurationOptions struct {
	// Delay (milliseconds) for the connection to open once Connect has been called.
	//
	// Default to 30000 (30 seconds) - 0 disables the timeout.
	ConnectTimeoutMs int64 `validate:"gte=0"`
	// Delay (milliseconds) granted to close the connection when the stream closes it itself,
	// either after a failure or because the connection did not open in time.
	//
	// Default to 5000 (5 seconds) - 0 disables the timeout.
	CloseTimeoutMs int64 `validate:"gte=0"`
}

// # Description
//
// Set opts.ConnectTimeoutMs and return the modified object. The method does not validate inputs.
//
// # ConnectTimeoutMs
//
// This option defines the maximum delay (milliseconds) for the connection to open. A value of 0
// disables the timeout: Connect then only returns when the connection opens, fails or when the
// provided context is done.
//
// Must be greater or equal to 0. Defaults to 30 seconds (= 30000).
//
// # Return
//
// The modified options.
func (opts *StreamConfigurationOptions) WithConnectTimeoutMs(value int64) *StreamConfigurationOptions {
	opts.ConnectTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.CloseTimeoutMs and return the modified object. The method does not validate inputs.
//
// # CloseTimeoutMs
//
// This option defines the maximum delay (milliseconds) granted to close the connection when the
// stream decides to close it. A value of 0 disables the timeout.
//
// Must be greater or equal to 0. Defaults to 5 seconds (= 5000).
//
// # Return
//
// The modified options.
func (opts *StreamConfigurationOptions) WithCloseTimeoutMs(value int64) *StreamConfigurationOptions {
	opts.CloseTimeoutMs = value
	return opts
}

// # Description
//
// Factory which creates a new StreamConfigurationOptions object with nice defaults. Settings can
// then be modified by the user by using With*** methods.
//
// # Default settings
//
//   - ConnectTimeoutMs = 30000 (30 seconds).
//   - CloseTimeoutMs = 5000 (5 seconds).
func NewStreamConfigurationOptions() *StreamConfigurationOptions {
	return &StreamConfigurationOptions{
		ConnectTimeoutMs: 30000,
		CloseTimeoutMs:   5000,
	}
}

// # Description
//
// Helper function which validates StreamConfigurationOptions. Options are valid if:
//   - opts is not nil
//   - opts.ConnectTimeoutMs is greater or equal to 0
//   - opts.CloseTimeoutMs is greater or equal to 0
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
func Validate(opts *StreamConfigurationOptions) error {
	return validator.New().Struct(opts)
}
