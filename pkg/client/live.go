package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	liveWriteWait  = 10 * time.Second
	liveReadWait   = 70 * time.Second
	minBackoff     = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
	frameJoin      = "join"
	frameLeave     = "leave"
	frameJoined    = "joined"
	frameLeft      = "left"
	framePong      = "pong"
	frameError     = "error"
	handshakeLimit = 10 * time.Second
)

type frame struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Subscription is returned by LiveSession.OnEvent and OnReconnect. The
// handler stays registered until Dispose is called.
type Subscription struct {
	once    sync.Once
	dispose func()
}

// Dispose unregisters the handler. Calling it more than once is a no-op.
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.once.Do(s.dispose)
}

// LiveSession is one user's connection to the live channel. It is owned by
// whoever holds the user's credentials; there is no shared global instance.
//
// Run keeps the connection up, reconnecting with exponential backoff. The
// join state survives reconnects: a joined session rejoins on its own, and
// OnReconnect handlers fire once the server has acknowledged the rejoin.
type LiveSession struct {
	endpoint string
	dialer   *ws.Dialer
	log      logrus.FieldLogger

	writeMu sync.Mutex

	mu            sync.Mutex
	conn          *ws.Conn
	wantJoined    bool
	joined        bool
	resyncPending bool
	nextSubID     uint64
	eventSubs     map[uint64]func(LiveEvent)
	reconnectSubs map[uint64]func()
}

// NewLiveSession builds a session for the websocket endpoint, e.g.
// "ws://localhost:8080/ws". The token is sent as the ?token= query parameter.
func NewLiveSession(endpoint, token string, log logrus.FieldLogger) (*LiveSession, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse live endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return &LiveSession{
		endpoint: u.String(),
		dialer: &ws.Dialer{
			HandshakeTimeout: handshakeLimit,
		},
		log:           log.WithField("component", "live_session"),
		eventSubs:     make(map[uint64]func(LiveEvent)),
		reconnectSubs: make(map[uint64]func()),
	}, nil
}

// OnEvent registers fn for every notification event received while joined.
func (s *LiveSession) OnEvent(fn func(LiveEvent)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.eventSubs[id] = fn
	return &Subscription{dispose: func() {
		s.mu.Lock()
		delete(s.eventSubs, id)
		s.mu.Unlock()
	}}
}

// OnReconnect registers fn to run after the connection was lost and is back.
// Events pushed while disconnected are gone; fn is where callers backfill.
func (s *LiveSession) OnReconnect(fn func()) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.reconnectSubs[id] = fn
	return &Subscription{dispose: func() {
		s.mu.Lock()
		delete(s.reconnectSubs, id)
		s.mu.Unlock()
	}}
}

// Join asks the server to start delivering this user's notifications. When
// disconnected the request is remembered and sent on the next connect.
func (s *LiveSession) Join() error {
	s.mu.Lock()
	s.wantJoined = true
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.writeFrame(conn, frameJoin)
}

// Leave stops delivery without closing the connection.
func (s *LiveSession) Leave() error {
	s.mu.Lock()
	s.wantJoined = false
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.writeFrame(conn, frameLeave)
}

// Joined reports whether the server has acknowledged the join.
func (s *LiveSession) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// Run connects and serves the session until ctx is done. A rejected
// handshake (bad token) is returned immediately rather than retried.
func (s *LiveSession) Run(ctx context.Context) error {
	backoff := minBackoff
	connectedBefore := false

	for {
		conn, resp, err := s.dialer.DialContext(ctx, s.endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return fmt.Errorf("live connect: %w", ErrUnauthorized)
			}
			s.log.WithError(err).WithField("retry_in", backoff).Warn("live connect failed")
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = minBackoff
		s.serve(ctx, conn, connectedBefore)
		connectedBefore = true

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.WithField("retry_in", backoff).Info("live connection lost")
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *LiveSession) serve(ctx context.Context, conn *ws.Conn, reconnect bool) {
	s.mu.Lock()
	s.conn = conn
	s.joined = false
	s.resyncPending = reconnect
	wantJoined := s.wantJoined
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer func() {
		stop()
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.joined = false
		s.mu.Unlock()
	}()

	conn.SetReadDeadline(time.Now().Add(liveReadWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(liveReadWait))
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return conn.WriteControl(ws.PongMessage, []byte(appData), time.Now().Add(liveWriteWait))
	})

	if wantJoined {
		if err := s.writeFrame(conn, frameJoin); err != nil {
			s.log.WithError(err).Warn("rejoin failed")
			return
		}
	} else if reconnect {
		s.fireReconnect()
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				s.log.WithError(err).Warn("live read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(liveReadWait))
		s.handleFrame(payload)
	}
}

func (s *LiveSession) handleFrame(payload []byte) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		s.log.WithError(err).Warn("malformed live frame")
		return
	}

	switch f.Type {
	case frameJoined:
		s.mu.Lock()
		s.joined = true
		resync := s.resyncPending
		s.resyncPending = false
		s.mu.Unlock()
		if resync {
			s.fireReconnect()
		}
	case frameLeft:
		s.mu.Lock()
		s.joined = false
		s.mu.Unlock()
	case framePong:
	case frameError:
		s.log.WithField("message", f.Message).Warn("live channel error")
	case EventNewNotification, EventNewCourseAvailable:
		var n Notification
		if err := json.Unmarshal(f.Data, &n); err != nil {
			s.log.WithError(err).Warn("malformed notification event")
			return
		}
		s.fireEvent(LiveEvent{Type: f.Type, Data: n})
	default:
		s.log.WithField("type", f.Type).Debug("ignoring live frame")
	}
}

func (s *LiveSession) fireEvent(ev LiveEvent) {
	s.mu.Lock()
	handlers := make([]func(LiveEvent), 0, len(s.eventSubs))
	for _, fn := range s.eventSubs {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

func (s *LiveSession) fireReconnect() {
	s.mu.Lock()
	handlers := make([]func(), 0, len(s.reconnectSubs))
	for _, fn := range s.reconnectSubs {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

func (s *LiveSession) writeFrame(conn *ws.Conn, frameType string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteJSON(frame{Type: frameType}); err != nil {
		return fmt.Errorf("write %s frame: %w", frameType, err)
	}
	return nil
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
