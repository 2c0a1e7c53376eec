package relayframe

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for relay frame codec unit tests
type RelayFrameUnitTestSuite struct {
	suite.Suite
}

// Run RelayFrameUnitTestSuite test suite
func TestRelayFrameUnitTestSuite(t *testing.T) {
	suite.Run(t, new(RelayFrameUnitTestSuite))
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test the layout of a relay frame.
func (suite *RelayFrameUnitTestSuite) TestEncodeRelayLayout() {
	buf := EncodeRelay(0x0102030405060708, []byte("hi"))
	require.Equal(suite.T(), []byte{
		0x01, 0x01,
		0, 0, 0, 0,
		0, 0,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		'h', 'i',
	}, buf)
	frame, err := Decode(buf)
	require.NoError(suite.T(), err)
	require.True(suite.T(), frame.IsRelay())
	require.Equal(suite.T(), uint64(0x0102030405060708), frame.ID)
	require.Equal(suite.T(), []byte("hi"), frame.Payload)
}

// Test frames addressed to an IPv4 destination.
func (suite *RelayFrameUnitTestSuite) TestIPv4Destination() {
	buf, err := Encode(Frame{Addr: netip.MustParseAddr("10.0.0.1"), Port: 4433, ID: 7})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), []byte{10, 0, 0, 1, 0x11, 0x51}, buf[2:8])
	frame, err := Decode(buf)
	require.NoError(suite.T(), err)
	require.False(suite.T(), frame.IsRelay())
	require.Equal(suite.T(), netip.MustParseAddr("10.0.0.1"), frame.Addr)
	require.Equal(suite.T(), uint16(4433), frame.Port)
	require.Empty(suite.T(), frame.Payload)
	// A zero address with a port is not relayed
	buf, err = Encode(Frame{Port: 80, ID: 7})
	require.NoError(suite.T(), err)
	frame, err = Decode(buf)
	require.NoError(suite.T(), err)
	require.False(suite.T(), frame.IsRelay())
	// IPv6 destinations are not supported
	_, err = Encode(Frame{Addr: netip.MustParseAddr("::1"), ID: 7})
	require.ErrorIs(suite.T(), err, ErrInvalidFrame)
}

// Test malformed frames are rejected.
func (suite *RelayFrameUnitTestSuite) TestDecodeInvalidFrames() {
	valid := EncodeRelay(1, []byte("x"))
	cases := map[string][]byte{
		"empty":     {},
		"short":     valid[:HeaderSize-1],
		"bad magic": append([]byte{0x02}, valid[1:]...),
		"bad flag":  append([]byte{Magic, 0x09}, valid[2:]...),
	}
	for name, data := range cases {
		_, err := Decode(data)
		require.ErrorIs(suite.T(), err, ErrInvalidFrame, name)
	}
	// Header only is valid
	frame, err := Decode(valid[:HeaderSize])
	require.NoError(suite.T(), err)
	require.Empty(suite.T(), frame.Payload)
}
