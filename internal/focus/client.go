package focus

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultTickInterval      = time.Second
)

// Config wires a Client to its endpoint and collaborators.
type Config struct {
	Endpoint   string
	Credential string

	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	TickInterval      time.Duration

	Clock  clockwork.Clock
	Dialer *websocket.Dialer
	Logger logrus.FieldLogger

	// OnChange is called on the event loop after every change to the
	// snapshot. It must not call back into the Client.
	OnChange func(Snapshot)
}

// Snapshot is what a UI renders.
type Snapshot struct {
	Readiness       Readiness  `json:"readiness"`
	State           State      `json:"state"`
	ConfirmedActive bool       `json:"confirmed_active"`
	Timer           TimerState `json:"timer"`
}

// SocketUp reports whether controls that need the connection are usable.
func (s Snapshot) SocketUp() bool { return s.Readiness == ReadinessOpen }

func (s Snapshot) equal(o Snapshot) bool {
	if s.Readiness != o.Readiness || s.State != o.State || s.ConfirmedActive != o.ConfirmedActive {
		return false
	}
	if s.Timer.Elapsed != o.Timer.Elapsed || s.Timer.Running != o.Timer.Running {
		return false
	}
	if (s.Timer.Final == nil) != (o.Timer.Final == nil) {
		return false
	}
	return s.Timer.Final == nil || *s.Timer.Final == *o.Timer.Final
}

// Client is one live focus view: a connection, the tracker and the three
// periodic timers, all owned by a single event loop goroutine. Open acquires
// it and Close releases it.
type Client struct {
	cfg     Config
	log     logrus.FieldLogger
	clock   clockwork.Clock
	conn    *Conn
	tracker *Tracker
	sched   schedule

	intents   chan intent
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.RWMutex
	snap Snapshot
}

type intent struct {
	apply func(*Tracker) bool
	reply chan bool
}

// schedule holds the heartbeat, existence-poll and local tick tickers. A nil
// ticker is stopped; its channel blocks forever in select. The tick ticker
// only exists while the timer runs and is armed at the confirmed start.
type schedule struct {
	heartbeat clockwork.Ticker
	poll      clockwork.Ticker
	tick      clockwork.Ticker
}

func (s *schedule) start(clock clockwork.Clock, cfg Config) {
	s.heartbeat = clock.NewTicker(cfg.HeartbeatInterval)
	s.poll = clock.NewTicker(cfg.PollInterval)
}

func (s *schedule) armTick(clock clockwork.Clock, interval time.Duration) {
	s.stopTick()
	s.tick = clock.NewTicker(interval)
}

func (s *schedule) stopTick() {
	if s.tick != nil {
		s.tick.Stop()
		s.tick = nil
	}
}

func (s *schedule) stopAll() {
	for _, t := range []*clockwork.Ticker{&s.heartbeat, &s.poll, &s.tick} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

func tickerChan(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

// Open connects to the service and starts the event loop. Connect failures
// do not fail Open; they surface as Readiness on the snapshot.
func Open(ctx context.Context, cfg Config) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	log := cfg.Logger.WithField("component", "focus_client")
	conn := NewConn(cfg.Endpoint, cfg.Credential, cfg.Dialer, log)
	c := &Client{
		cfg:     cfg,
		log:     log,
		clock:   cfg.Clock,
		conn:    conn,
		tracker: NewTracker(conn, log),
		intents: make(chan intent),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if err := conn.Connect(ctx); err == nil {
		c.tracker.Opened()
		c.sched.start(c.clock, cfg)
	}
	c.snap = c.snapshot()

	go c.run()
	return c
}

func (c *Client) run() {
	defer close(c.done)
	defer c.sched.stopAll()

	events := c.conn.Events()
	for {
		wasRunning := c.tracker.Timer().Running
		select {
		case <-c.stop:
			c.teardown()
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				c.sched.stopAll()
				c.tracker.Closed()
				c.log.WithField("readiness", c.conn.Readiness()).Info("focus connection gone")
				break
			}
			c.tracker.Handle(ev)
		case <-tickerChan(c.sched.heartbeat):
			c.tracker.Heartbeat()
		case <-tickerChan(c.sched.poll):
			c.tracker.Poll()
		case <-tickerChan(c.sched.tick):
			c.tracker.Tick()
		case in := <-c.intents:
			ok := in.apply(c.tracker)
			c.syncTick(wasRunning)
			c.publish()
			in.reply <- ok
			continue
		}
		c.syncTick(wasRunning)
		c.publish()
	}
}

// syncTick follows the timer's running edges: a fresh ticker on start so the
// first second is a whole interval, none while stopped.
func (c *Client) syncTick(wasRunning bool) {
	running := c.tracker.Timer().Running
	switch {
	case running && !wasRunning && c.conn.Open():
		c.sched.armTick(c.clock, c.cfg.TickInterval)
	case !running:
		c.sched.stopTick()
	}
}

// teardown stops the timers, tells the service a confirmed session is over
// and only then closes the transport.
func (c *Client) teardown() {
	c.sched.stopAll()
	if c.tracker.Teardown() {
		c.log.Info("sent end-session on teardown")
	}
	if err := c.conn.Close(); err != nil {
		c.log.WithError(err).Debug("focus close")
	}
	c.tracker.Closed()
	c.publish()
}

func (c *Client) snapshot() Snapshot {
	return Snapshot{
		Readiness:       c.conn.Readiness(),
		State:           c.tracker.State(),
		ConfirmedActive: c.tracker.ConfirmedActive(),
		Timer:           c.tracker.Timer(),
	}
}

func (c *Client) publish() {
	next := c.snapshot()
	c.mu.Lock()
	changed := !next.equal(c.snap)
	c.snap = next
	c.mu.Unlock()
	if changed && c.cfg.OnChange != nil {
		c.cfg.OnChange(next)
	}
}

// Snapshot returns the state as of the last loop iteration.
func (c *Client) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Client) do(apply func(*Tracker) bool) bool {
	in := intent{apply: apply, reply: make(chan bool, 1)}
	select {
	case c.intents <- in:
	case <-c.done:
		return false
	}
	select {
	case ok := <-in.reply:
		return ok
	case <-c.done:
		return false
	}
}

// Start requests a session start. It reports whether the request was sent.
func (c *Client) Start() bool { return c.do((*Tracker).Start) }

// End stops the local timer and requests the session end.
func (c *Client) End() bool { return c.do((*Tracker).End) }

// Clear resets the local timer when it is not running.
func (c *Client) Clear() bool { return c.do((*Tracker).Clear) }

// Disconnected is closed once the transport has gone away.
func (c *Client) Disconnected() <-chan struct{} { return c.conn.Done() }

// Close tears the client down exactly once and waits for the loop to exit.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
	<-c.done
}
