package wsstream

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/gbdevw/gowsrelay/wsadapters"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for SocketConnection unit tests
type SocketConnectionUnitTestSuite struct {
	suite.Suite
	// Target used by all tests
	target url.URL
}

// Run SocketConnectionUnitTestSuite test suite
func TestSocketConnectionUnitTestSuite(t *testing.T) {
	suite.Run(t, &SocketConnectionUnitTestSuite{
		target: url.URL{Scheme: "ws", Host: "localhost:8080", Path: "/42", User: url.UserPassword("user", "secret")},
	})
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Read the next event from the feed.
func (suite *SocketConnectionUnitTestSuite) nextEvent(events <-chan Event[Message]) Event[Message] {
	select {
	case event, ok := <-events:
		require.True(suite.T(), ok, "event feed has been closed")
		return event
	case <-time.After(5 * time.Second):
		suite.FailNow("no event received in time")
		return Event[Message]{}
	}
}

// Check the event feed is closed.
func (suite *SocketConnectionUnitTestSuite) requireFeedClosed(events <-chan Event[Message]) {
	select {
	case event, ok := <-events:
		require.False(suite.T(), ok, "unexpected event %s", event.Kind)
	case <-time.After(5 * time.Second):
		suite.FailNow("event feed has not been closed in time")
	}
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// A dial failure publishes an error and closes the feed.
func (suite *SocketConnectionUnitTestSuite) TestDialFailure() {
	dialErr := errors.New("connection refused")
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, suite.target).Return(nil, dialErr)
	conn := NewSocketConnection(adapter, suite.target, nil, nil)
	require.Equal(suite.T(), Connecting, conn.State())
	require.NoError(suite.T(), conn.Open(context.Background()))
	event := suite.nextEvent(conn.Events())
	require.Equal(suite.T(), EventError, event.Kind)
	require.ErrorIs(suite.T(), event.Err, dialErr)
	suite.requireFeedClosed(conn.Events())
	require.ErrorIs(suite.T(), conn.Wait(), dialErr)
	require.Equal(suite.T(), Closed, conn.State())
	// Cannot be opened twice
	require.Error(suite.T(), conn.Open(context.Background()))
	adapter.AssertExpectations(suite.T())
}

// Messages are published until the server closes the connection.
func (suite *SocketConnectionUnitTestSuite) TestMessagesThenRemoteClose() {
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, suite.target).Return(nil, nil)
	adapter.On("Read", mock.Anything).Return(wsadapters.Binary, []byte("a"), nil).Once()
	adapter.On("Read", mock.Anything).Return(wsadapters.Text, []byte("b"), nil).Once()
	adapter.On("Read", mock.Anything).Return(-1, nil, wsadapters.WebsocketCloseError{Code: wsadapters.GoingAway, Reason: "shutdown"}).Once()
	conn := NewSocketConnection(adapter, suite.target, nil, nil)
	require.NoError(suite.T(), conn.Open(context.Background()))
	require.Equal(suite.T(), EventOpen, suite.nextEvent(conn.Events()).Kind)
	event := suite.nextEvent(conn.Events())
	require.Equal(suite.T(), EventMessage, event.Kind)
	require.Equal(suite.T(), Message{Type: wsadapters.Binary, Data: []byte("a")}, event.Message)
	event = suite.nextEvent(conn.Events())
	require.Equal(suite.T(), Message{Type: wsadapters.Text, Data: []byte("b")}, event.Message)
	event = suite.nextEvent(conn.Events())
	require.Equal(suite.T(), EventClose, event.Kind)
	require.Equal(suite.T(), wsadapters.GoingAway, event.Code)
	require.Equal(suite.T(), "shutdown", event.Reason)
	suite.requireFeedClosed(conn.Events())
	require.NoError(suite.T(), conn.Wait())
	require.Equal(suite.T(), Closed, conn.State())
	// Closing a closed connection fails
	require.ErrorIs(suite.T(), conn.Close(context.Background()), net.ErrClosed)
	adapter.AssertExpectations(suite.T())
}

// A local close publishes a normal closure even if the adapter reports an abnormal closure.
func (suite *SocketConnectionUnitTestSuite) TestLocalClose() {
	unblock := make(chan struct{})
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, suite.target).Return(nil, nil)
	adapter.On("Read", mock.Anything).
		Run(func(mock.Arguments) { <-unblock }).
		Return(-1, nil, wsadapters.WebsocketCloseError{Code: wsadapters.AbnormalClosure, Err: net.ErrClosed})
	adapter.On("Close", mock.Anything, wsadapters.NormalClosure, "").
		Run(func(mock.Arguments) { close(unblock) }).
		Return(nil)
	conn := NewSocketConnection(adapter, suite.target, nil, nil)
	require.NoError(suite.T(), conn.Open(context.Background()))
	require.Equal(suite.T(), EventOpen, suite.nextEvent(conn.Events()).Kind)
	require.Equal(suite.T(), Open, conn.State())
	require.NoError(suite.T(), conn.Close(context.Background()))
	event := suite.nextEvent(conn.Events())
	require.Equal(suite.T(), EventClose, event.Kind)
	require.Equal(suite.T(), wsadapters.NormalClosure, event.Code)
	suite.requireFeedClosed(conn.Events())
	require.NoError(suite.T(), conn.Wait())
	require.ErrorIs(suite.T(), conn.Close(context.Background()), net.ErrClosed)
	adapter.AssertNumberOfCalls(suite.T(), "Close", 1)
}

// A read failure publishes the error, closes the adapter and publishes an abnormal closure.
func (suite *SocketConnectionUnitTestSuite) TestReadFailure() {
	readErr := errors.New("boom")
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, suite.target).Return(nil, nil)
	adapter.On("Read", mock.Anything).Return(-1, nil, readErr)
	adapter.On("Close", mock.Anything, wsadapters.InternalError, "read failure").Return(nil)
	conn := NewSocketConnection(adapter, suite.target, nil, nil)
	require.NoError(suite.T(), conn.Open(context.Background()))
	require.Equal(suite.T(), EventOpen, suite.nextEvent(conn.Events()).Kind)
	event := suite.nextEvent(conn.Events())
	require.Equal(suite.T(), EventError, event.Kind)
	require.ErrorIs(suite.T(), event.Err, readErr)
	event = suite.nextEvent(conn.Events())
	require.Equal(suite.T(), EventClose, event.Kind)
	require.Equal(suite.T(), wsadapters.AbnormalClosure, event.Code)
	suite.requireFeedClosed(conn.Events())
	require.ErrorIs(suite.T(), conn.Wait(), readErr)
	adapter.AssertExpectations(suite.T())
}

// Closing a connection which has not been opened publishes the close event.
func (suite *SocketConnectionUnitTestSuite) TestCloseBeforeOpen() {
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	conn := NewSocketConnection(adapter, suite.target, nil, nil)
	require.NoError(suite.T(), conn.Close(context.Background()))
	event := suite.nextEvent(conn.Events())
	require.Equal(suite.T(), EventClose, event.Kind)
	suite.requireFeedClosed(conn.Events())
	require.Equal(suite.T(), Closed, conn.State())
	require.Error(suite.T(), conn.Open(context.Background()))
	require.NoError(suite.T(), conn.Wait())
	adapter.AssertNotCalled(suite.T(), "Dial", mock.Anything, mock.Anything)
}

// Closing a connection while it is dialing cancels the dial.
func (suite *SocketConnectionUnitTestSuite) TestCloseWhileDialing() {
	dialing := make(chan struct{})
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, suite.target).
		Run(func(args mock.Arguments) {
			close(dialing)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled)
	conn := NewSocketConnection(adapter, suite.target, nil, nil)
	require.NoError(suite.T(), conn.Open(context.Background()))
	<-dialing
	require.NoError(suite.T(), conn.Close(context.Background()))
	event := suite.nextEvent(conn.Events())
	require.Equal(suite.T(), EventClose, event.Kind)
	require.Equal(suite.T(), wsadapters.NormalClosure, event.Code)
	suite.requireFeedClosed(conn.Events())
	require.NoError(suite.T(), conn.Wait())
}

// Write is only allowed while the connection is open.
func (suite *SocketConnectionUnitTestSuite) TestWrite() {
	unblock := make(chan struct{})
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, suite.target).Return(nil, nil)
	adapter.On("Read", mock.Anything).
		Run(func(mock.Arguments) { <-unblock }).
		Return(-1, nil, wsadapters.WebsocketCloseError{Code: wsadapters.NormalClosure})
	adapter.On("Write", mock.Anything, wsadapters.Binary, []byte("hello")).Return(nil)
	adapter.On("Close", mock.Anything, wsadapters.NormalClosure, "").
		Run(func(mock.Arguments) { close(unblock) }).
		Return(nil)
	conn := NewSocketConnection(adapter, suite.target, nil, nil)
	require.Error(suite.T(), conn.Write(context.Background(), wsadapters.Binary, []byte("hello")))
	require.NoError(suite.T(), conn.Open(context.Background()))
	require.Equal(suite.T(), EventOpen, suite.nextEvent(conn.Events()).Kind)
	require.NoError(suite.T(), conn.Write(context.Background(), wsadapters.Binary, []byte("hello")))
	require.NoError(suite.T(), conn.Close(context.Background()))
	require.NoError(suite.T(), conn.Wait())
	adapter.AssertNumberOfCalls(suite.T(), "Write", 1)
}

// A stream consumes a socket connection end to end.
func (suite *SocketConnectionUnitTestSuite) TestStreamOverSocketConnection() {
	unblock := make(chan struct{})
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, suite.target).Return(nil, nil)
	adapter.On("Read", mock.Anything).Return(wsadapters.Binary, []byte("a"), nil).Once()
	adapter.On("Read", mock.Anything).Return(wsadapters.Binary, []byte("b"), nil).Once()
	adapter.On("Read", mock.Anything).
		Run(func(mock.Arguments) { <-unblock }).
		Return(-1, nil, wsadapters.WebsocketCloseError{Code: wsadapters.NormalClosure})
	adapter.On("Close", mock.Anything, wsadapters.NormalClosure, "").
		Run(func(mock.Arguments) { close(unblock) }).
		Return(nil)
	conn := NewSocketConnection(adapter, suite.target, nil, nil)
	require.NoError(suite.T(), conn.Open(context.Background()))
	stream, err := Connect[Message](context.Background(), conn, nil, nil, nil, nil)
	require.NoError(suite.T(), err)
	for _, expected := range []string{"a", "b"} {
		res, err := stream.Next(context.Background())
		require.NoError(suite.T(), err)
		require.Equal(suite.T(), expected, string(res.Message.Data))
	}
	pending := make(chan Result[Message], 1)
	go func() {
		res, _ := stream.Next(context.Background())
		pending <- res
	}()
	require.Eventually(suite.T(), func() bool {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		return stream.waiters.len() == 1
	}, 5*time.Second, time.Millisecond)
	require.NoError(suite.T(), stream.Close(context.Background()))
	select {
	case res := <-pending:
		require.True(suite.T(), res.Final)
	case <-time.After(5 * time.Second):
		suite.FailNow("pending next did not return")
	}
	<-stream.Done()
	require.NoError(suite.T(), stream.Err())
	require.NoError(suite.T(), conn.Wait())
}
