package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const streamWriteTimeout = 5 * time.Second

// Frame is one message on /ws. Task events carry the stored record as Data.
type Frame struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	patterns := append([]string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*", "[::1]", "[::1]:*"}, s.cfg.OriginPatterns...)
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: patterns})
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}

	subID, updates := s.events.Subscribe()
	defer s.events.Unsubscribe(subID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	user := PrincipalFromContext(r.Context())
	s.log.Info("stream client connected", zap.String("subscriber", subID), zap.String("user", user))

	go s.readLoop(ctx, cancel, conn)

	if err := s.writeFrame(ctx, conn, Frame{Type: "connected", Data: s.meta, Timestamp: time.Now().UTC()}); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			s.log.Info("stream client disconnected", zap.String("subscriber", subID))
			return
		case evt, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			frame := Frame{Type: string(evt.Type), TaskID: evt.TaskID, Data: evt.Record, Timestamp: time.Now().UTC()}
			if err := s.writeFrame(ctx, conn, frame); err != nil {
				s.log.Debug("stream write failed", zap.String("subscriber", subID), zap.Error(err))
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// readLoop acknowledges every client message and cancels the stream once the
// client goes away.
func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		s.log.Debug("stream message received", zap.ByteString("message", msg))
		ack := Frame{Type: "response", Data: "Message received", Timestamp: time.Now().UTC()}
		if err := s.writeFrame(ctx, conn, ack); err != nil {
			return
		}
	}
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, frame Frame) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, frame)
}
