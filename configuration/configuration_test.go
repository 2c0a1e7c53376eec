package configuration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for Configuration unit tests
type ConfigurationUnitTestSuite struct {
	suite.Suite
}

// Run ConfigurationUnitTestSuite test suite
func TestConfigurationUnitTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigurationUnitTestSuite))
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Environment lookup backed by a map.
func env(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		value, ok := values[name]
		return value, ok
	}
}

// Write a configuration file in a temp dir and return its path.
func (suite *ConfigurationUnitTestSuite) writeFile(content string) string {
	path := filepath.Join(suite.T().TempDir(), "config.yaml")
	require.NoError(suite.T(), os.WriteFile(path, []byte(content), 0o600))
	return path
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test defaults are used when there is no file nor environment variable.
func (suite *ConfigurationUnitTestSuite) TestDefaults() {
	cfg, err := Load("", env(nil))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), Default(), cfg)
	require.Equal(suite.T(), "localhost:4433", cfg.Addr)
	require.Nil(suite.T(), cfg.Authenticator())
	opts := cfg.ServerOptions()
	require.Equal(suite.T(), cfg.Addr, opts.Addr)
	require.Equal(suite.T(), cfg.MaxMessageBytes, opts.MaxMessageBytes)
}

// Test the YAML file is loaded and environment variables override it.
func (suite *ConfigurationUnitTestSuite) TestFileAndEnv() {
	path := suite.writeFile(`
addr: 0.0.0.0:8443
cert: cert.pem
key: key.pem
origin: https://example.com
max_connections: 10
credentials:
  alice: secret
log_level: debug
`)
	cfg, err := Load(path, env(map[string]string{
		"GOWSRELAY_ADDR":              "127.0.0.1:9000",
		"GOWSRELAY_MAX_MESSAGE_BYTES": "512",
		"GOWSRELAY_TRACING_ENABLED":   "true",
		"GOWSRELAY_CREDENTIALS":       "bob:pw, carol:pw2",
	}))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "127.0.0.1:9000", cfg.Addr)
	require.Equal(suite.T(), "cert.pem", cfg.Cert)
	require.Equal(suite.T(), "key.pem", cfg.Key)
	require.Equal(suite.T(), "https://example.com", cfg.Origin)
	require.Equal(suite.T(), 10, cfg.MaxConnections)
	require.Equal(suite.T(), int64(512), cfg.MaxMessageBytes)
	require.Equal(suite.T(), "debug", cfg.LogLevel)
	require.True(suite.T(), cfg.TracingEnabled)
	require.Equal(suite.T(), map[string]string{"bob": "pw", "carol": "pw2"}, cfg.Credentials)
	require.NotNil(suite.T(), cfg.Authenticator())
	opts := cfg.ServerOptions()
	require.Equal(suite.T(), "cert.pem", opts.CertFile)
	require.Equal(suite.T(), 10, opts.MaxConnections)
}

// Test loading failures.
func (suite *ConfigurationUnitTestSuite) TestLoadFailures() {
	_, err := Load(filepath.Join(suite.T().TempDir(), "missing.yaml"), env(nil))
	require.Error(suite.T(), err)
	_, err = Load(suite.writeFile("unknown_key: 1\n"), env(nil))
	require.Error(suite.T(), err)
	_, err = Load(suite.writeFile("cert: cert.pem\n"), env(nil))
	require.Error(suite.T(), err)
	_, err = Load("", env(map[string]string{"GOWSRELAY_MAX_CONNECTIONS": "many"}))
	require.Error(suite.T(), err)
	_, err = Load("", env(map[string]string{"GOWSRELAY_TRACING_ENABLED": "maybe"}))
	require.Error(suite.T(), err)
	_, err = Load("", env(map[string]string{"GOWSRELAY_LOG_LEVEL": "verbose"}))
	require.Error(suite.T(), err)
	_, err = Load("", env(map[string]string{"GOWSRELAY_CREDENTIALS": "alice"}))
	require.Error(suite.T(), err)
	_, err = Load("", env(map[string]string{"GOWSRELAY_TRACING_ENABLED": "1", "GOWSRELAY_TRACING_ENDPOINT": ""}))
	require.Error(suite.T(), err)
}

// Test an empty file keeps the defaults.
func (suite *ConfigurationUnitTestSuite) TestDecodeEmpty() {
	cfg := Default()
	require.NoError(suite.T(), Decode(strings.NewReader(""), &cfg))
	require.Equal(suite.T(), Default(), cfg)
}

// Test credentials parsing.
func (suite *ConfigurationUnitTestSuite) TestParseCredentials() {
	credentials, err := ParseCredentials("")
	require.NoError(suite.T(), err)
	require.Empty(suite.T(), credentials)
	credentials, err = ParseCredentials("alice:a:b,bob:")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), map[string]string{"alice": "a:b", "bob": ""}, credentials)
	_, err = ParseCredentials(":pw")
	require.Error(suite.T(), err)
}
