package relayserver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for RelayServerConfigurationOptions unit tests
type RelayServerConfigurationOptionsUnitTestSuite struct {
	suite.Suite
}

// Run RelayServerConfigurationOptionsUnitTestSuite test suite
func TestRelayServerConfigurationOptionsUnitTestSuite(t *testing.T) {
	suite.Run(t, new(RelayServerConfigurationOptionsUnitTestSuite))
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test the defaults.
func (suite *RelayServerConfigurationOptionsUnitTestSuite) TestDefaults() {
	opts := NewRelayServerConfigurationOptions()
	require.Equal(suite.T(), "localhost:4433", opts.Addr)
	require.Equal(suite.T(), math.MaxInt32, opts.MaxConnections)
	require.Equal(suite.T(), int64(1<<20), opts.MaxMessageBytes)
	require.False(suite.T(), opts.tlsEnabled())
	require.NoError(suite.T(), Validate(opts))
}

// Test methods used to set options.
func (suite *RelayServerConfigurationOptionsUnitTestSuite) TestSetters() {
	opts := NewRelayServerConfigurationOptions().
		WithAddr("0.0.0.0:8080").
		WithTLS("cert.pem", "key.pem").
		WithOrigin("https://example.com").
		WithMaxConnections(2).
		WithMaxMessageBytes(64).
		WithWriteTimeoutMs(0).
		WithShutdownTimeoutMs(1)
	require.Equal(suite.T(), "0.0.0.0:8080", opts.Addr)
	require.Equal(suite.T(), "cert.pem", opts.CertFile)
	require.Equal(suite.T(), "key.pem", opts.KeyFile)
	require.Equal(suite.T(), "https://example.com", opts.Origin)
	require.Equal(suite.T(), 2, opts.MaxConnections)
	require.Equal(suite.T(), int64(64), opts.MaxMessageBytes)
	require.Equal(suite.T(), int64(0), opts.WriteTimeoutMs)
	require.Equal(suite.T(), int64(1), opts.ShutdownTimeoutMs)
	require.True(suite.T(), opts.tlsEnabled())
	require.NoError(suite.T(), Validate(opts))
}

// Test option validation
func (suite *RelayServerConfigurationOptionsUnitTestSuite) TestValidate() {
	require.Error(suite.T(), Validate(NewRelayServerConfigurationOptions().WithAddr("")))
	require.Error(suite.T(), Validate(NewRelayServerConfigurationOptions().WithTLS("cert.pem", "")))
	require.Error(suite.T(), Validate(NewRelayServerConfigurationOptions().WithTLS("", "key.pem")))
	require.Error(suite.T(), Validate(NewRelayServerConfigurationOptions().WithMaxConnections(0)))
	require.Error(suite.T(), Validate(NewRelayServerConfigurationOptions().WithMaxMessageBytes(0)))
	require.Error(suite.T(), Validate(NewRelayServerConfigurationOptions().WithWriteTimeoutMs(-1)))
	require.Error(suite.T(), Validate(NewRelayServerConfigurationOptions().WithShutdownTimeoutMs(0)))
	require.Error(suite.T(), Validate(nil))
}
