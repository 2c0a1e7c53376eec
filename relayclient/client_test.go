package relayclient

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gbdevw/gowsrelay/relayserver"
	"github.com/gbdevw/gowsrelay/wsadapters"
	"github.com/gbdevw/gowsrelay/wsstream"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for Client integration tests against a live relay server
type ClientIntegrationTestSuite struct {
	suite.Suite
	// Websocket adapter used by the clients
	adapter string
	// Relay server
	srv *relayserver.RelayServer
	// Test HTTP server serving srv
	httpSrv *httptest.Server
}

// Run ClientIntegrationTestSuite test suite with each websocket adapter
func TestClientIntegrationTestSuite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, adapter := range []string{AdapterNhooyr, AdapterGorilla} {
		t.Run(adapter, func(t *testing.T) {
			suite.Run(t, &ClientIntegrationTestSuite{adapter: adapter})
		})
	}
}

func (suite *ClientIntegrationTestSuite) SetupTest() {
	srv, err := relayserver.NewRelayServer(
		nil,
		relayserver.BasicAuthenticator(map[string]string{"alice": "secret"}),
		nil, nil, nil)
	require.NoError(suite.T(), err)
	suite.srv = srv
	suite.httpSrv = httptest.NewServer(srv.Handler())
}

func (suite *ClientIntegrationTestSuite) TearDownTest() {
	suite.httpSrv.CloseClientConnections()
	suite.httpSrv.Close()
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Return the endpoint of the test relay server for the peer id.
func (suite *ClientIntegrationTestSuite) endpoint(id uint64, auth string) Endpoint {
	target, err := url.Parse(suite.httpSrv.URL)
	require.NoError(suite.T(), err)
	port, err := strconv.ParseUint(target.Port(), 10, 16)
	require.NoError(suite.T(), err)
	return Endpoint{Host: target.Hostname(), Port: uint16(port), ID: id, Auth: auth, Insecure: true}
}

// Connect a peer with valid credentials.
func (suite *ClientIntegrationTestSuite) connect(id uint64) *Client {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Connect(ctx, suite.endpoint(id, "alice:secret"), NewClientConfigurationOptions().WithAdapter(suite.adapter), nil, nil, nil)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), wsstream.Open, client.State())
	suite.T().Cleanup(func() { client.Close(context.Background()) })
	// Wait for the server to register the peer
	require.Eventually(suite.T(), func() bool {
		return suite.registered(id)
	}, 5*time.Second, 10*time.Millisecond)
	return client
}

// Return true when the server accepts messages for the peer.
func (suite *ClientIntegrationTestSuite) registered(id uint64) bool {
	return NewSender(suite.endpoint(0, "alice:secret").SendURL(), nil, nil, nil).Send(context.Background(), id, nil) == nil
}

// Pull the next result from the client stream.
func (suite *ClientIntegrationTestSuite) next(client *Client) wsstream.Result[wsstream.Message] {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := client.Next(ctx)
	require.NoError(suite.T(), err)
	return result
}

// Pull results until a non-empty message is received. Empty messages are the registration
// probes sent by registered.
func (suite *ClientIntegrationTestSuite) nextData(client *Client) []byte {
	for {
		result := suite.next(client)
		require.False(suite.T(), result.Final)
		if len(result.Message.Data) > 0 {
			require.Equal(suite.T(), wsadapters.Binary, result.Message.Type)
			return result.Message.Data
		}
	}
}

/*************************************************************************************************/
/* INTEGRATION TESTS                                                                             */
/*************************************************************************************************/

// Test messages sent with POST are received in order.
func (suite *ClientIntegrationTestSuite) TestSend() {
	alice := suite.connect(1)
	bob := suite.connect(2)
	ctx := context.Background()
	require.NoError(suite.T(), alice.Send(ctx, 2, []byte("one")))
	require.NoError(suite.T(), alice.Send(ctx, 2, []byte("two")))
	require.Equal(suite.T(), "one", string(suite.nextData(bob)))
	require.Equal(suite.T(), "two", string(suite.nextData(bob)))
}

// Test messages larger than the websocket library defaults are received, through POST and
// through relay frames.
func (suite *ClientIntegrationTestSuite) TestLargeMessages() {
	alice := suite.connect(1)
	bob := suite.connect(2)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4<<10)
	require.Len(suite.T(), payload, 64<<10)
	require.NoError(suite.T(), alice.Send(context.Background(), 2, payload))
	require.Equal(suite.T(), payload, suite.nextData(bob))
	require.NoError(suite.T(), bob.Relay(context.Background(), 1, payload))
	require.Equal(suite.T(), payload, suite.nextData(alice))
	require.Equal(suite.T(), wsstream.Open, bob.State())
	require.NoError(suite.T(), bob.Err())
}

// Test messages sent with relay frames are received.
func (suite *ClientIntegrationTestSuite) TestRelay() {
	alice := suite.connect(1)
	bob := suite.connect(2)
	require.NoError(suite.T(), bob.Relay(context.Background(), 1, []byte("hi alice")))
	require.Equal(suite.T(), "hi alice", string(suite.nextData(alice)))
}

// Test sending to a peer which is not connected fails with a 404.
func (suite *ClientIntegrationTestSuite) TestSendToUnknownPeer() {
	alice := suite.connect(1)
	err := alice.Send(context.Background(), 99, []byte("anyone?"))
	failure := SendFailure{}
	require.True(suite.T(), errors.As(err, &failure))
	require.Equal(suite.T(), 404, failure.StatusCode)
}

// Test a closed client refuses Next with a ClosedError.
func (suite *ClientIntegrationTestSuite) TestClose() {
	alice := suite.connect(1)
	require.NoError(suite.T(), alice.Close(context.Background()))
	select {
	case <-alice.Done():
	case <-time.After(5 * time.Second):
		suite.FailNow("stream has not been closed in time")
	}
	_, err := alice.Next(context.Background())
	require.ErrorIs(suite.T(), err, wsstream.ErrClosed)
	require.NoError(suite.T(), alice.Err())
	// Sender is independent of the stream state
	bob := suite.connect(2)
	require.NoError(suite.T(), alice.Send(context.Background(), 2, []byte("still here")))
	require.Equal(suite.T(), "still here", string(suite.nextData(bob)))
}

// Test a pending Next resolves with the final result when the server closes the connection.
func (suite *ClientIntegrationTestSuite) TestServerCloseResolvesPendingNext() {
	alice := suite.connect(1)
	results := make(chan wsstream.Result[wsstream.Message], 1)
	errs := make(chan error, 1)
	go func() {
		for {
			result, err := alice.Next(context.Background())
			if err != nil || result.Final {
				results <- result
				errs <- err
				return
			}
		}
	}()
	// Let the goroutine wait on Next
	time.Sleep(200 * time.Millisecond)
	// A text message closes the session with unsupported data
	require.NoError(suite.T(), alice.socket.Write(context.Background(), wsadapters.Text, []byte("text")))
	select {
	case result := <-results:
		require.NoError(suite.T(), <-errs)
		require.True(suite.T(), result.Final)
	case <-time.After(5 * time.Second):
		suite.FailNow("pending Next has not been resolved")
	}
}

// Test a refused upgrade is reported as a ConnectionError.
func (suite *ClientIntegrationTestSuite) TestConnectUnauthorized() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Connect(ctx, suite.endpoint(1, "alice:wrong"), NewClientConfigurationOptions().WithAdapter(suite.adapter), nil, nil, nil)
	require.Error(suite.T(), err)
	connErr := wsstream.ConnectionError{}
	require.True(suite.T(), errors.As(err, &connErr), "unexpected error: %v", err)
}

// Test invalid inputs are refused.
func (suite *ClientIntegrationTestSuite) TestConnectInvalidInputs() {
	ctx := context.Background()
	_, err := Connect(ctx, Endpoint{}, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	_, err = ConnectURL(ctx, url.URL{Scheme: "ftp", Host: "localhost:21"}, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	_, err = ConnectURL(ctx, url.URL{Scheme: "ws"}, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	_, err = ConnectURL(ctx, url.URL{Scheme: "ws", Host: "localhost:1"}, NewClientConfigurationOptions().WithAdapter("other"), nil, nil, nil)
	require.Error(suite.T(), err)
}

// Test ConnectURL maps http schemes.
func (suite *ClientIntegrationTestSuite) TestConnectURL() {
	target, err := url.Parse(suite.httpSrv.URL + "/3")
	require.NoError(suite.T(), err)
	target.User = url.UserPassword("alice", "secret")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := ConnectURL(ctx, *target, NewClientConfigurationOptions().WithAdapter(suite.adapter), nil, nil, nil)
	require.NoError(suite.T(), err)
	defer client.Close(context.Background())
	wsURL := client.URL()
	require.Equal(suite.T(), "ws", wsURL.Scheme)
	require.Equal(suite.T(), "/3", wsURL.Path)
}
