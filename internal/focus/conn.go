package focus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ownmi/focussync/internal/policy"
	"github.com/ownmi/focussync/internal/protocol"
)

// Readiness mirrors the lifecycle of the underlying websocket.
type Readiness string

const (
	ReadinessClosed     Readiness = "closed"
	ReadinessConnecting Readiness = "connecting"
	ReadinessOpen       Readiness = "open"
	ReadinessErroring   Readiness = "erroring"
)

const (
	connWriteTimeout = 5 * time.Second
	connReadLimit    = 64 << 10
	eventBuffer      = 64
)

var ErrMissingCredential = errors.New("focus: missing credential")

// Conn owns one websocket to the session-tracking service. Sends are only
// performed while open and are never queued; inbound frames are delivered on
// Events in arrival order.
type Conn struct {
	endpoint   string
	credential string
	dialer     *websocket.Dialer
	log        logrus.FieldLogger

	mu        sync.Mutex
	ws        *websocket.Conn
	readiness Readiness
	closing   bool

	events     chan protocol.ServerEvent
	done       chan struct{}
	quit       chan struct{}
	finishOnce sync.Once
	quitOnce   sync.Once
}

func NewConn(endpoint, credential string, dialer *websocket.Dialer, log logrus.FieldLogger) *Conn {
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 5 * time.Second,
		}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Conn{
		endpoint:   strings.TrimSpace(endpoint),
		credential: strings.TrimSpace(credential),
		dialer:     dialer,
		log:        log.WithField("endpoint", endpoint),
		readiness:  ReadinessClosed,
		events:     make(chan protocol.ServerEvent, eventBuffer),
		done:       make(chan struct{}),
		quit:       make(chan struct{}),
	}
}

// Connect dials the service once. Failures are logged and reflected in
// Readiness; the returned error is informational. Without a credential no
// connection is attempted.
func (c *Conn) Connect(ctx context.Context) error {
	if c.credential == "" {
		c.log.Warn("no credential, not connecting")
		c.finish(ReadinessClosed)
		return ErrMissingCredential
	}

	c.mu.Lock()
	if c.readiness != ReadinessClosed || c.ws != nil || c.closing {
		c.mu.Unlock()
		return errors.New("focus: connection already used")
	}
	c.readiness = ReadinessConnecting
	c.mu.Unlock()

	target, err := withCredential(c.endpoint, c.credential)
	if err != nil {
		c.log.WithError(err).Error("invalid focus endpoint")
		c.finish(ReadinessErroring)
		return err
	}

	ws, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		msg, _ := policy.RedactSecrets(err.Error())
		c.log.WithField("error", msg).Warn("focus connect failed")
		c.finish(ReadinessErroring)
		return fmt.Errorf("dial focus websocket: %w", err)
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = ws.Close()
		c.finish(ReadinessClosed)
		return errors.New("focus: closed while connecting")
	}
	c.ws = ws
	c.readiness = ReadinessOpen
	c.mu.Unlock()

	ws.SetReadLimit(connReadLimit)
	go c.readLoop(ws)
	c.log.Info("focus connection open")
	return nil
}

func withCredential(endpoint, credential string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse focus endpoint: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported focus endpoint scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	final := ReadinessClosed
	defer func() { c.finish(final) }()

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()
			switch {
			case closing:
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.log.Info("focus connection closed by service")
			default:
				c.log.WithError(err).Warn("focus connection lost")
				final = ReadinessErroring
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ev, err := protocol.ParseServerEvent(data)
		if errors.Is(err, protocol.ErrUnsupportedType) {
			c.log.WithField("type", ev.Type).Debug("unsupported focus event ignored")
			continue
		}
		if err != nil {
			c.log.WithError(err).Warn("malformed focus frame dropped")
			continue
		}
		select {
		case c.events <- ev:
		case <-c.quit:
			return
		}
	}
}

// finish settles readiness and releases Events/Done exactly once.
func (c *Conn) finish(r Readiness) {
	c.mu.Lock()
	c.readiness = r
	c.ws = nil
	c.mu.Unlock()

	c.finishOnce.Do(func() {
		close(c.done)
		close(c.events)
	})
}

func (c *Conn) Readiness() Readiness {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readiness
}

func (c *Conn) Open() bool { return c.Readiness() == ReadinessOpen }

// Events yields parsed service events. It is closed when the transport is gone.
func (c *Conn) Events() <-chan protocol.ServerEvent { return c.events }

// Done is closed once the connection has settled in closed or erroring.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send writes msg iff the connection is open. It never queues.
func (c *Conn) Send(msg protocol.ClientMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readiness != ReadinessOpen || c.ws == nil {
		return false
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(connWriteTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.log.WithError(err).WithField("type", msg.Type).Warn("focus send failed")
		c.readiness = ReadinessErroring
		_ = c.ws.Close()
		return false
	}
	return true
}

// Close releases the transport. Callers that hold session state should run
// their teardown before calling Close.
func (c *Conn) Close() error {
	c.quitOnce.Do(func() { close(c.quit) })

	c.mu.Lock()
	c.closing = true
	ws := c.ws
	if ws != nil {
		_ = ws.SetWriteDeadline(time.Now().Add(connWriteTimeout))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.readiness = ReadinessClosed
	}
	c.mu.Unlock()

	if ws == nil {
		c.finish(c.Readiness())
		return nil
	}
	return ws.Close()
}
