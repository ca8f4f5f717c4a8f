package focus

import (
	"github.com/sirupsen/logrus"

	"github.com/ownmi/focussync/internal/protocol"
)

// State is the client's view of the remote focus session. It only changes in
// response to service events; requests sent by the client are not state.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateNoSession     State = "connected_no_session"
	StateSessionExists State = "connected_session_exists"
	StateRunning       State = "connected_running"
)

// Outbox is the sending half of a connection. Callers check Open themselves
// before sending; Send on a connection that is not open is a no-op.
type Outbox interface {
	Open() bool
	Send(msg protocol.ClientMessage) bool
}

// Tracker reconciles local state with service events and turns user intents
// into protocol requests. It is not safe for concurrent use; the Client
// serializes every call onto its event loop.
type Tracker struct {
	out   Outbox
	log   logrus.FieldLogger
	state State
	timer Timer

	// createPending is set once create-session has been sent and cleared by
	// the first reply confirming a session (or by a disconnect).
	createPending bool
}

func NewTracker(out Outbox, log logrus.FieldLogger) *Tracker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracker{out: out, log: log, state: StateDisconnected}
}

func (t *Tracker) State() State { return t.state }

func (t *Tracker) Timer() TimerState { return t.timer.State() }

// ConfirmedActive reports whether the service has confirmed a session exists.
func (t *Tracker) ConfirmedActive() bool {
	return t.state == StateSessionExists || t.state == StateRunning
}

// Opened moves a disconnected tracker to the unconfirmed no-session state.
func (t *Tracker) Opened() {
	if t.state != StateDisconnected {
		return
	}
	t.state = StateNoSession
	t.createPending = false
}

// Closed records transport loss. The local timer is left untouched.
func (t *Tracker) Closed() {
	t.state = StateDisconnected
	t.createPending = false
}

// Handle applies one inbound service event.
func (t *Tracker) Handle(ev protocol.ServerEvent) {
	if t.state == StateDisconnected {
		t.log.WithField("type", ev.Type).Debug("event while disconnected ignored")
		return
	}

	prev := t.state
	switch ev.Type {
	case protocol.TypeSessionExists:
		t.createPending = false
		if t.state == StateRunning {
			t.timer.stop()
		}
		t.state = StateSessionExists
	case protocol.TypeNoSessionExists:
		// Read the confirmed flag now, not when the poll was sent: a stale
		// reply racing a fresh sessionCreated must not trigger a second create.
		wasActive := t.ConfirmedActive()
		if t.state == StateRunning {
			t.timer.stop()
		}
		t.state = StateNoSession
		if !wasActive {
			t.requestCreate()
		}
	case protocol.TypeSessionCreated:
		t.createPending = false
		if t.state == StateNoSession {
			t.state = StateSessionExists
		}
	case protocol.TypeSessionStarted:
		t.createPending = false
		if t.state != StateRunning {
			t.timer.Clear()
			t.timer.start()
			t.state = StateRunning
		}
	case protocol.TypeSessionEnded:
		t.timer.stop()
		t.state = StateNoSession
		t.requestCreate()
	default:
		t.log.WithField("type", ev.Type).Debug("unknown event ignored")
		return
	}

	if prev != t.state {
		t.log.WithFields(logrus.Fields{"from": prev, "to": t.state, "event": ev.Type}).Debug("focus state changed")
	}
}

func (t *Tracker) requestCreate() {
	if t.createPending || !t.out.Open() {
		return
	}
	if t.out.Send(protocol.CreateSession()) {
		t.createPending = true
	}
}

// Heartbeat runs on the heartbeat interval and tells the service the client
// is alive while a session is confirmed.
func (t *Tracker) Heartbeat() bool {
	if !t.out.Open() || t.state == StateDisconnected || !t.ConfirmedActive() {
		return false
	}
	return t.out.Send(protocol.Heartbeat())
}

// Poll runs on the existence-poll interval while no session is confirmed.
func (t *Tracker) Poll() bool {
	if !t.out.Open() || t.state == StateDisconnected || t.ConfirmedActive() {
		return false
	}
	return t.out.Send(protocol.SessionCheck())
}

// Tick advances the local timer by one second.
func (t *Tracker) Tick() { t.timer.Tick() }

// Start asks the service to start timing. The local timer only starts once
// sessionStarted arrives.
func (t *Tracker) Start() bool {
	if t.timer.Running() || !t.out.Open() {
		return false
	}
	if t.timer.dirty() {
		t.timer.Clear()
	}
	return t.out.Send(protocol.StartSession())
}

// End stops the local timer immediately and asks the service to end the
// session. Ending never waits for confirmation.
func (t *Tracker) End() bool {
	if !t.timer.Running() || !t.out.Open() {
		return false
	}
	t.timer.stop()
	return t.out.Send(protocol.EndSession())
}

// Clear resets the local timer. No message is sent.
func (t *Tracker) Clear() bool {
	return t.timer.Clear()
}

// Teardown tells the service the session is over before the transport goes
// away. It must run before the connection is closed.
func (t *Tracker) Teardown() bool {
	if !t.ConfirmedActive() || !t.out.Open() {
		return false
	}
	return t.out.Send(protocol.EndSession())
}
