package relayserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/gbdevw/gowsrelay/wsadapters"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Delay allowed to write a close message to a peer.
const closeWriteTimeout = 5 * time.Second

// Peer connected to the relay server.
type peer struct {
	// Peer ID, taken from the upgrade request path
	id uint64
	// Session ID, unique for each connection
	sessionId string
	// Websocket connection
	conn *websocket.Conn
	// When the peer connected
	connectedAt time.Time
	// Serializes data writes: gorilla supports one concurrent writer only
	writeMu sync.Mutex
	// Delay to write a message. 0 disables the timeout.
	writeTimeout time.Duration
}

func newPeer(id uint64, conn *websocket.Conn, writeTimeout time.Duration) *peer {
	return &peer{
		id:           id,
		sessionId:    uuid.NewString(),
		conn:         conn,
		connectedAt:  time.Now(),
		writeTimeout: writeTimeout,
	}
}

// Write a binary message to the peer.
func (p *peer) write(payload []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.writeTimeout > 0 {
		p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
		defer p.conn.SetWriteDeadline(time.Time{})
	}
	if err := p.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("failed to write to peer %d: %w", p.id, err)
	}
	return nil
}

// Send a close message to the peer. The caller drops the connection afterwards.
func (p *peer) close(code wsadapters.StatusCode, reason string) error {
	return p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(int(code), reason),
		time.Now().Add(closeWriteTimeout))
}
