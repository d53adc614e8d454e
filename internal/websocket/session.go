package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"edu-notify/internal/models"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	DefaultSendBuffer = 256
)

// Client frame types.
const (
	FrameJoin   = "join"
	FrameLeave  = "leave"
	FramePing   = "ping"
	FramePong   = "pong"
	FrameJoined = "joined"
	FrameLeft   = "left"
	FrameError  = "error"
)

// Frame is the control message exchanged with clients.
type Frame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Session is one authenticated websocket connection. It only receives
// notifications while joined to the user's channel.
type Session struct {
	id       string
	userID   string
	conn     *ws.Conn
	registry *Registry
	log      logrus.FieldLogger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	joined    atomic.Bool
}

func NewSession(conn *ws.Conn, userID string, registry *Registry, sendBuffer int, log logrus.FieldLogger) *Session {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		userID:   userID,
		conn:     conn,
		registry: registry,
		log:      log.WithFields(logrus.Fields{"session_id": id, "user_id": userID}),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Start runs the read and write pumps in their own goroutines.
func (s *Session) Start() {
	go s.writePump()
	go s.readPump()
}

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Push(event models.LiveEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.enqueue(payload)
}

// enqueue never blocks. A full queue means the client is not keeping up; the
// session is dropped so the client reconnects and backfills from the store.
func (s *Session) enqueue(payload []byte) error {
	select {
	case <-s.done:
		return models.ErrTransientDelivery
	default:
	}

	select {
	case s.send <- payload:
		return nil
	default:
		s.log.Warn("send queue full, closing session")
		s.Close()
		return models.ErrTransientDelivery
	}
}

func (s *Session) sendFrame(f Frame) {
	payload, _ := json.Marshal(f)
	_ = s.enqueue(payload)
}

// Close unregisters the session and stops both pumps. Safe to call more
// than once and from any goroutine.
//
// done is closed before Unregister: a join that registers after Unregister
// then always sees done closed and removes itself.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.joined.Store(false)
		close(s.done)
		s.registry.Unregister(s.id)
	})
}

func (s *Session) join() {
	s.registry.Register(s.userID, s.id, s)
	// Close may have run concurrently with the registration.
	select {
	case <-s.done:
		s.registry.Unregister(s.id)
		return
	default:
	}
	if !s.joined.Swap(true) {
		s.log.Debug("joined notification channel")
	}
	s.sendFrame(Frame{Type: FrameJoined})
}

func (s *Session) leave() {
	s.registry.Unregister(s.id)
	if s.joined.Swap(false) {
		s.log.Debug("left notification channel")
	}
	s.sendFrame(Frame{Type: FrameLeft})
}

func (s *Session) readPump() {
	defer func() {
		s.Close()
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure, ws.CloseAbnormalClosure) {
				s.log.WithError(err).Warn("websocket read error")
			}
			return
		}

		switch frame.Type {
		case FrameJoin:
			s.join()
		case FrameLeave:
			s.leave()
		case FramePing:
			s.sendFrame(Frame{Type: FramePong})
		default:
			s.sendFrame(Frame{Type: FrameError, Message: "unknown frame type"})
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(ws.TextMessage, message); err != nil {
				s.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				s.Close()
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseGoingAway, "session closed"))
			return
		}
	}
}
