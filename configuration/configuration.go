// Package configuration loads the relay server application configuration.
//
// Settings are read from an optional YAML file, then overridden by GOWSRELAY_* environment
// variables. The command line flags of the CLI override both.
package configuration

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gbdevw/gowsrelay/relayserver"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Prefix of the environment variables.
const EnvPrefix = "GOWSRELAY_"

// Environment variable which holds the path to the YAML configuration file.
const EnvConfigFile = EnvPrefix + "CONFIG"

// Default configuration file, used when it exists and no path is provided.
const DefaultConfigFile = "config.yaml"

// Application configuration.
type Configuration struct {
	// Address the relay server listens on
	Addr string `yaml:"addr" validate:"required"`
	// Path to the TLS certificate
	Cert string `yaml:"cert" validate:"required_with=Key"`
	// Path to the TLS private key
	Key string `yaml:"key" validate:"required_with=Cert"`
	// Allowed origin. Empty allows any origin.
	Origin string `yaml:"origin"`
	// Maximum number of connected peers
	MaxConnections int `yaml:"max_connections" validate:"gte=1"`
	// Maximum message size (bytes)
	MaxMessageBytes int64 `yaml:"max_message_bytes" validate:"gte=1"`
	// Basic authentication credentials (user -> password). Empty disables authentication.
	Credentials map[string]string `yaml:"credentials"`
	// Log level
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	// Use a development logger (console encoder, stack traces on warnings)
	LogDevelopment bool `yaml:"log_development"`
	// Export traces with OTLP over HTTP
	TracingEnabled bool `yaml:"tracing_enabled"`
	// OTLP HTTP endpoint (host:port)
	TracingEndpoint string `yaml:"tracing_endpoint" validate:"required_if=TracingEnabled true"`
}

// Return the default configuration.
func Default() Configuration {
	defaults := relayserver.NewRelayServerConfigurationOptions()
	return Configuration{
		Addr:            defaults.Addr,
		MaxConnections:  defaults.MaxConnections,
		MaxMessageBytes: defaults.MaxMessageBytes,
		LogLevel:        "info",
		TracingEndpoint: "localhost:4318",
	}
}

// # Description
//
// Load the configuration: defaults, then the YAML file, then the GOWSRELAY_* environment
// variables. The file is the one named by GOWSRELAY_CONFIG, or config.yaml when it exists.
//
// # Returns
//
// The validated configuration or an error.
func LoadConfiguration() (Configuration, error) {
	path, explicit := os.LookupEnv(EnvConfigFile)
	if !explicit {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	return Load(path, os.LookupEnv)
}

// # Description
//
// Load the configuration from the YAML file at path and from the provided environment lookup
// function. An empty path skips the file.
func Load(path string, lookup func(string) (string, bool)) (Configuration, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Configuration{}, fmt.Errorf("failed to read configuration file: %w", err)
		}
		if err := Decode(bytes.NewReader(raw), &cfg); err != nil {
			return Configuration{}, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Configuration{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Decode YAML into cfg. Unknown keys are refused. An empty document leaves cfg as-is.
func Decode(r io.Reader, cfg *Configuration) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate the configuration.
func (cfg Configuration) Validate() error {
	return validator.New().Struct(cfg)
}

// Return the relay server options matching the configuration.
func (cfg Configuration) ServerOptions() *relayserver.RelayServerConfigurationOptions {
	return relayserver.NewRelayServerConfigurationOptions().
		WithAddr(cfg.Addr).
		WithTLS(cfg.Cert, cfg.Key).
		WithOrigin(cfg.Origin).
		WithMaxConnections(cfg.MaxConnections).
		WithMaxMessageBytes(cfg.MaxMessageBytes)
}

// Return the authenticator matching the configuration, or nil when no credentials are set.
func (cfg Configuration) Authenticator() relayserver.Authenticator {
	if len(cfg.Credentials) == 0 {
		return nil
	}
	return relayserver.BasicAuthenticator(cfg.Credentials)
}

/*************************************************************************************************/
/* ENVIRONMENT                                                                                   */
/*************************************************************************************************/

// Override settings with environment variables.
func (cfg *Configuration) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":             &cfg.Addr,
		"CERT":             &cfg.Cert,
		"KEY":              &cfg.Key,
		"ORIGIN":           &cfg.Origin,
		"LOG_LEVEL":        &cfg.LogLevel,
		"TRACING_ENDPOINT": &cfg.TracingEndpoint,
	}
	for name, target := range strs {
		if value, ok := lookup(EnvPrefix + name); ok {
			*target = value
		}
	}
	bools := map[string]*bool{
		"LOG_DEVELOPMENT": &cfg.LogDevelopment,
		"TRACING_ENABLED": &cfg.TracingEnabled,
	}
	for name, target := range bools {
		if value, ok := lookup(EnvPrefix + name); ok {
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
			}
			*target = parsed
		}
	}
	if value, ok := lookup(EnvPrefix + "MAX_CONNECTIONS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_CONNECTIONS: %w", EnvPrefix, err)
		}
		cfg.MaxConnections = parsed
	}
	if value, ok := lookup(EnvPrefix + "MAX_MESSAGE_BYTES"); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_MESSAGE_BYTES: %w", EnvPrefix, err)
		}
		cfg.MaxMessageBytes = parsed
	}
	if value, ok := lookup(EnvPrefix + "CREDENTIALS"); ok {
		credentials, err := ParseCredentials(value)
		if err != nil {
			return err
		}
		cfg.Credentials = credentials
	}
	return nil
}

// # Description
//
// Parse a comma separated list of user:password pairs. An empty string yields no credentials.
func ParseCredentials(value string) (map[string]string, error) {
	credentials := map[string]string{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, password, ok := strings.Cut(pair, ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("invalid credentials %q: expected user:password", pair)
		}
		credentials[user] = password
	}
	return credentials, nil
}
