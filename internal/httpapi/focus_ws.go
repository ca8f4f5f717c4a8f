package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ownmi/focussync/internal/protocol"
	"github.com/ownmi/focussync/internal/records"
	"github.com/ownmi/focussync/internal/session"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsOutboundSize = 64
)

// wsConn is the outbound half of one focus websocket. Only its writer
// goroutine touches the socket for writes.
type wsConn struct {
	userID   string
	outbound chan protocol.ServerEvent
}

// hub tracks open focus connections per user so server-side session changes
// can be pushed to all of them.
type hub struct {
	mu    sync.RWMutex
	conns map[string]map[*wsConn]struct{}
}

func newHub() *hub {
	return &hub{conns: make(map[string]map[*wsConn]struct{})}
}

func (h *hub) add(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*wsConn]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *hub) remove(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
	}
}

func (h *hub) forUser(userID string) []*wsConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*wsConn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		out = append(out, c)
	}
	return out
}

// enqueue never blocks; a saturated connection loses the event and will
// resynchronize on its next poll or heartbeat.
func (s *Server) enqueue(c *wsConn, ev protocol.ServerEvent) {
	select {
	case c.outbound <- ev:
	default:
		s.metrics.WSMessages.WithLabelValues("outbound_dropped", string(ev.Type)).Inc()
	}
}

func (s *Server) handleFocusWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.verifier.FromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credential")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := s.log.WithField("user_id", userID)
	s.metrics.Event("ws_connected")
	log.Debug("focus websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{userID: userID, outbound: make(chan protocol.ServerEvent, wsOutboundSize)}
	s.hub.add(c)
	defer s.hub.remove(c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-c.outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					s.metrics.WSWriteErrors.Inc()
					log.WithError(err).Debug("focus websocket write failed")
					cancel()
					// Unblocks the read loop.
					_ = conn.Close()
					return
				}
				s.metrics.WSMessages.WithLabelValues("outbound", string(ev.Type)).Inc()
			}
		}
	}()

	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", "invalid").Inc()
			log.WithError(err).Warn("dropping focus client frame")
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", string(msg.Type)).Inc()
		if reply, ok := s.dispatch(ctx, userID, msg, log); ok {
			s.enqueue(c, reply)
		}
	}

	cancel()
	<-writerDone
	s.metrics.Event("ws_disconnected")
	log.Debug("focus websocket disconnected")
}

// dispatch applies one client message to the user's session and returns the
// reply for the sender, if any.
func (s *Server) dispatch(ctx context.Context, userID string, msg protocol.ClientMessage, log logrus.FieldLogger) (protocol.ServerEvent, bool) {
	switch msg.Type {
	case protocol.TypeSessionCheck:
		sess, err := s.sessions.ForUser(userID)
		if err != nil {
			return protocol.ServerEvent{Type: protocol.TypeNoSessionExists}, true
		}
		return protocol.ServerEvent{Type: protocol.TypeSessionExists, SessionID: sess.ID}, true

	case protocol.TypeCreateSession:
		sess, created := s.sessions.Create(userID)
		if created {
			s.metrics.Event("created")
			s.syncActive()
			log.WithField("session_id", sess.ID).Info("focus session created")
		}
		return protocol.ServerEvent{Type: protocol.TypeSessionCreated, SessionID: sess.ID}, true

	case protocol.TypeStartSession:
		sess, started := s.sessions.Start(userID)
		if started {
			s.metrics.Event("started")
			s.syncActive()
			log.WithField("session_id", sess.ID).Info("focus session started")
		}
		return protocol.ServerEvent{Type: protocol.TypeSessionStarted, SessionID: sess.ID}, true

	case protocol.TypeEndSession:
		sess, err := s.sessions.End(userID)
		if errors.Is(err, session.ErrNotFound) {
			return protocol.ServerEvent{Type: protocol.TypeNoSessionExists}, true
		}
		s.metrics.Event("ended")
		s.syncActive()
		s.complete(ctx, sess, log)
		return protocol.ServerEvent{Type: protocol.TypeSessionEnded, SessionID: sess.ID}, true

	case protocol.TypeHeartbeat:
		if err := s.sessions.Touch(userID); err != nil {
			return protocol.ServerEvent{Type: protocol.TypeNoSessionExists}, true
		}
		return protocol.ServerEvent{}, false
	}
	return protocol.ServerEvent{}, false
}

// complete persists a record for a session that actually ran.
func (s *Server) complete(ctx context.Context, sess *session.Session, log logrus.FieldLogger) {
	if !sess.Started() {
		return
	}
	rec, err := s.records.Complete(context.WithoutCancel(ctx), sess.UserID, sess.StartedAt, sess.EndedAt)
	switch {
	case errors.Is(err, records.ErrInvalidDuration):
		log.WithField("session_id", sess.ID).Debug("focus session too short to record")
		return
	case err != nil:
		log.WithError(err).WithField("session_id", sess.ID).Error("failed to record focus session")
		return
	}
	s.metrics.ObserveSessionDuration(sess.Duration())
	log.WithFields(logrus.Fields{
		"session_id":       sess.ID,
		"record_id":        rec.ID,
		"duration_seconds": rec.DurationSeconds,
	}).Info("focus session recorded")
}

func (s *Server) onSessionExpired(sess *session.Session) {
	log := s.log.WithFields(logrus.Fields{"user_id": sess.UserID, "session_id": sess.ID})
	s.metrics.Event("expired")
	s.syncActive()
	s.complete(context.Background(), sess, log)
	log.Info("focus session expired")

	ev := protocol.ServerEvent{Type: protocol.TypeSessionEnded, SessionID: sess.ID}
	for _, c := range s.hub.forUser(sess.UserID) {
		s.enqueue(c, ev)
	}
}

func (s *Server) syncActive() {
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
}
