package relayserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gbdevw/gowsrelay/relayframe"
	"github.com/gbdevw/gowsrelay/wsadapters"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Labels used by the relayed messages counter.
const (
	relayPathPost  = "post"
	relayPathFrame = "frame"
)

/*************************************************************************************************/
/* MIDDLEWARES                                                                                   */
/*************************************************************************************************/

// Gin middleware which logs each request once it has been handled.
func (srv *RelayServer) logRequests() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		srv.logger.Debug("request handled",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote", ctx.ClientIP()))
	}
}

// Gin middleware which adds CORS headers. The configured origin is used, any origin otherwise.
func (srv *RelayServer) cors() gin.HandlerFunc {
	origin := srv.opts.Origin
	if origin == "" {
		origin = "*"
	}
	return func(ctx *gin.Context) {
		header := ctx.Writer.Header()
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		ctx.Next()
	}
}

/*************************************************************************************************/
/* HANDLERS                                                                                      */
/*************************************************************************************************/

// GET /
func (srv *RelayServer) handleStatics(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, srv.Statics())
}

// OPTIONS /*path
func (srv *RelayServer) handlePreflight(ctx *gin.Context) {
	ctx.Status(http.StatusNoContent)
}

// # Description
//
// GET /:id upgrades the request to a websocket connection and runs the peer session until the
// connection closes. Requests are refused with:
//   - 400 when the id is not an unsigned 64 bits integer,
//   - 401 when the authenticator refuses the request,
//   - 403 when the origin does not match the configured origin,
//   - 429 when the maximum number of peers is reached,
//   - 409 when a peer with the same id is already connected.
func (srv *RelayServer) handleUpgrade(ctx *gin.Context) {
	id, ok := srv.parseId(ctx)
	if !ok || !srv.authenticate(ctx, id) {
		return
	}
	switch {
	case srv.peerCount() >= srv.opts.MaxConnections:
		ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": ErrTooManyPeers.Error()})
		return
	case srv.getPeer(id) != nil:
		ctx.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": ErrPeerExists.Error()})
		return
	}
	// Upgrade writes the error response itself
	conn, err := srv.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		srv.logger.Debug("websocket upgrade failed", zap.Uint64("peer_id", id), zap.Error(err))
		return
	}
	p := newPeer(id, conn, time.Duration(srv.opts.WriteTimeoutMs)*time.Millisecond)
	srv.runSession(ctx.Request.Context(), p)
}

// # Description
//
// POST /:id delivers the request body to the peer as a binary message. Replies with:
//   - 204 when the message has been written to the peer,
//   - 400 when the id is invalid or the body cannot be read,
//   - 401 when the authenticator refuses the request,
//   - 404 when the peer is not connected,
//   - 413 when the body is larger than the configured maximum message size,
//   - 502 when the message cannot be written to the peer.
func (srv *RelayServer) handleSend(ctx *gin.Context) {
	id, ok := srv.parseId(ctx)
	if !ok || !srv.authenticate(ctx, id) {
		return
	}
	_, span := srv.tracer.Start(ctx.Request.Context(), spanSend,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int64(attrRecipient, int64(id))))
	defer span.End()
	recipient := srv.getPeer(id)
	if recipient == nil {
		handleError(ErrPeerNotFound, span, codes.Error, "send failed")
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": ErrPeerNotFound.Error()})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, srv.opts.MaxMessageBytes))
	if err != nil {
		handleError(err, span, codes.Error, "send failed")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.Int(attrPayloadSize, len(body)))
	if err := recipient.write(body); err != nil {
		handleError(err, span, codes.Error, "send failed")
		srv.logger.Warn("failed to deliver message", zap.Uint64("recipient", id), zap.Error(err))
		ctx.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	srv.collectors.relayedTotal.WithLabelValues(relayPathPost).Inc()
	span.SetStatus(codes.Ok, codes.Ok.String())
	ctx.Status(http.StatusNoContent)
}

/*************************************************************************************************/
/* PEER SESSION                                                                                  */
/*************************************************************************************************/

// # Description
//
// Register the peer and read its messages until the connection closes. Binary messages must be
// relay frames: the payload is forwarded to the addressed peer. The session is closed with:
//   - 1003 (unsupported data) for text messages and frames which are not relay frames,
//   - 1002 (protocol error) for malformed frames,
//   - 1008 (policy violation) when the peer cannot be registered or when a frame is addressed
//     to a peer which is not connected.
func (srv *RelayServer) runSession(ctx context.Context, p *peer) {
	ctx, span := srv.tracer.Start(ctx, spanPeerSession,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int64(attrPeerId, int64(p.id)),
			attribute.String(attrSessionId, p.sessionId),
		))
	defer span.End()
	defer p.conn.Close()
	logger := srv.logger.With(zap.Uint64("peer_id", p.id), zap.String("session_id", p.sessionId))
	// Registration can still fail when concurrent upgrades used the same id or the last slot
	if err := srv.addPeer(p); err != nil {
		handleError(err, span, codes.Error, "registration failed")
		srv.closePeer(ctx, p, wsadapters.PolicyViolation, err.Error())
		return
	}
	defer srv.removePeer(p)
	logger.Info("peer connected")
	p.conn.SetReadLimit(srv.opts.MaxMessageBytes + relayframe.HeaderSize)
	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				span.SetAttributes(attribute.Int(attrCloseCode, closeErr.Code))
			}
			logger.Info("peer disconnected", zap.Error(err))
			return
		}
		if msgType != websocket.BinaryMessage {
			srv.closePeer(ctx, p, wsadapters.UnsupportedData, "text messages are not supported")
			return
		}
		frame, err := relayframe.Decode(data)
		if err != nil {
			srv.closePeer(ctx, p, wsadapters.ProtocolError, err.Error())
			return
		}
		if !frame.IsRelay() {
			srv.closePeer(ctx, p, wsadapters.UnsupportedData, "only relay frames are supported")
			return
		}
		if !srv.relay(ctx, p, frame) {
			srv.closePeer(ctx, p, wsadapters.PolicyViolation, ErrPeerNotFound.Error())
			return
		}
	}
}

// Forward a relay frame payload to its recipient. Return false when the recipient is not
// connected. A failed write to the recipient drops the frame.
func (srv *RelayServer) relay(ctx context.Context, from *peer, frame relayframe.Frame) bool {
	span := trace.SpanFromContext(ctx)
	attrs := trace.WithAttributes(
		attribute.Int64(attrRecipient, int64(frame.ID)),
		attribute.Int(attrPayloadSize, len(frame.Payload)),
	)
	recipient := srv.getPeer(frame.ID)
	if recipient == nil {
		span.AddEvent(eventFrameDropped, attrs)
		srv.logger.Debug("relay frame dropped: recipient is not connected",
			zap.Uint64("peer_id", from.id),
			zap.Uint64("recipient", frame.ID))
		return false
	}
	if err := recipient.write(frame.Payload); err != nil {
		span.AddEvent(eventFrameDropped, attrs)
		srv.logger.Warn("failed to relay frame",
			zap.Uint64("peer_id", from.id),
			zap.Uint64("recipient", frame.ID),
			zap.Error(err))
		return true
	}
	span.AddEvent(eventFrameRelayed, attrs)
	srv.collectors.relayedTotal.WithLabelValues(relayPathFrame).Inc()
	return true
}

// Send a close message to the peer. The connection is dropped by the session.
func (srv *RelayServer) closePeer(ctx context.Context, p *peer, code wsadapters.StatusCode, reason string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(attrCloseCode, int(code)))
	srv.collectors.closedSessionsTotal.WithLabelValues(strconv.Itoa(int(code))).Inc()
	if err := p.close(code, reason); err != nil {
		srv.logger.Debug("failed to send close message",
			zap.Uint64("peer_id", p.id),
			zap.Stringer("code", code),
			zap.Error(err))
	}
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Parse the id path parameter. Abort with 400 when it is not an unsigned 64 bits integer.
func (srv *RelayServer) parseId(ctx *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid peer id: " + ctx.Param("id")})
		return 0, false
	}
	return id, true
}

// Run the authenticator, if any. Abort with 401 when it refuses the request.
func (srv *RelayServer) authenticate(ctx *gin.Context, id uint64) bool {
	if srv.authenticator == nil {
		return true
	}
	if err := srv.authenticator(srv, ctx.Request, id); err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return false
	}
	return true
}
