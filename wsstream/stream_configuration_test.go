package wsstream

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for StreamConfigurationOptions unit tests
type StreamConfigurationOptionsUnitTestSuite struct {
	suite.Suite
}

// Run StreamConfigurationOptionsUnitTestSuite test suite
func TestStreamConfigurationOptionsUnitTestSuite(t *testing.T) {
	suite.Run(t, new(StreamConfigurationOptionsUnitTestSuite))
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test methods used to set options.
func (suite *StreamConfigurationOptionsUnitTestSuite) TestSetters() {
	opts := NewStreamConfigurationOptions().
		WithConnectTimeoutMs(42).
		WithCloseTimeoutMs(0)
	require.Equal(suite.T(), int64(42), opts.ConnectTimeoutMs)
	require.Equal(suite.T(), int64(0), opts.CloseTimeoutMs)
}

// Test option validation
func (suite *StreamConfigurationOptionsUnitTestSuite) TestValidate() {
	require.NoError(suite.T(), Validate(NewStreamConfigurationOptions()))
	require.Error(suite.T(), Validate(NewStreamConfigurationOptions().WithConnectTimeoutMs(-1)))
	require.Error(suite.T(), Validate(NewStreamConfigurationOptions().WithCloseTimeoutMs(-1)))
	require.Error(suite.T(), Validate(nil))
}
