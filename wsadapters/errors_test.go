package wsadapters

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for WebsocketCloseError unit tests
type WebsocketCloseErrorUnitTestSuite struct {
	suite.Suite
}

// Run WebsocketCloseErrorUnitTestSuite test suite
func TestWebsocketCloseErrorUnitTestSuite(t *testing.T) {
	suite.Run(t, new(WebsocketCloseErrorUnitTestSuite))
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test Error
func (suite *WebsocketCloseErrorUnitTestSuite) TestError() {
	err := WebsocketCloseError{Code: GoingAway, Reason: "bye"}
	require.Equal(suite.T(), fmt.Sprintf("connection has been closed: %d - %s", 1001, "bye"), err.Error())
}

// Test Unwrap & errors.As/errors.Is support
func (suite *WebsocketCloseErrorUnitTestSuite) TestUnwrap() {
	inner := fmt.Errorf("read failed: %w", net.ErrClosed)
	var err error = WebsocketCloseError{Code: AbnormalClosure, Reason: "dropped", Err: inner}
	require.True(suite.T(), errors.Is(err, net.ErrClosed))
	closeErr := new(WebsocketCloseError)
	require.True(suite.T(), errors.As(fmt.Errorf("wrapped: %w", err), closeErr))
	require.Equal(suite.T(), AbnormalClosure, closeErr.Code)
}

// Test status codes and message types string representations
func (suite *WebsocketCloseErrorUnitTestSuite) TestStringers() {
	require.Equal(suite.T(), "NormalClosure", NormalClosure.String())
	require.Equal(suite.T(), "TLSHandshake", TLSHandshake.String())
	require.Equal(suite.T(), "4000", StatusCode(4000).String())
	require.Equal(suite.T(), 1006, int(AbnormalClosure))
	require.Equal(suite.T(), 1015, int(TLSHandshake))
	require.Equal(suite.T(), "text", Text.String())
	require.Equal(suite.T(), "binary", Binary.String())
	require.Equal(suite.T(), "unknown(9)", MessageType(9).String())
}
