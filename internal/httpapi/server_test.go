package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/ownmi/focussync/internal/auth"
	"github.com/ownmi/focussync/internal/config"
	"github.com/ownmi/focussync/internal/focus"
	"github.com/ownmi/focussync/internal/logging"
	"github.com/ownmi/focussync/internal/observability"
	"github.com/ownmi/focussync/internal/protocol"
	"github.com/ownmi/focussync/internal/records"
	"github.com/ownmi/focussync/internal/session"
)

type testEnv struct {
	srv      *Server
	ts       *httptest.Server
	clock    clockwork.FakeClock
	sessions *session.Manager
	records  *records.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{SessionInactivityTimeout: 30 * time.Second}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC))
	sessions := session.NewManager(cfg.SessionInactivityTimeout, clock)
	recs := records.NewService(records.NewInMemoryStore(), 0)
	srv := New(cfg, sessions, recs, auth.NewVerifier("", true), observability.NewMetrics("test_httpapi"), logging.Discard())
	srv.clock = clock

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, clock: clock, sessions: sessions, records: recs}
}

func (e *testEnv) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/v1/focus/ws?token=" + token
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(token), nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ protocol.MessageType) {
	t.Helper()
	if err := conn.WriteJSON(protocol.ClientMessage{Type: typ}); err != nil {
		t.Fatalf("write %s error = %v", typ, err)
	}
}

func expect(t *testing.T, conn *websocket.Conn, want protocol.MessageType) protocol.ServerEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read (want %s) error = %v", want, err)
	}
	ev, err := protocol.ParseServerEvent(data)
	if err != nil {
		t.Fatalf("parse %q error = %v", data, err)
	}
	if ev.Type != want {
		t.Fatalf("event = %s, want %s", ev.Type, want)
	}
	return ev
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestFocusWSProtocolLifecycle(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "alice")

	send(t, conn, protocol.TypeSessionCheck)
	expect(t, conn, protocol.TypeNoSessionExists)

	send(t, conn, protocol.TypeCreateSession)
	created := expect(t, conn, protocol.TypeSessionCreated)
	if created.SessionID == "" {
		t.Fatalf("sessionCreated without session id")
	}
	send(t, conn, protocol.TypeCreateSession)
	if again := expect(t, conn, protocol.TypeSessionCreated); again.SessionID != created.SessionID {
		t.Fatalf("second create id = %q, want %q", again.SessionID, created.SessionID)
	}

	send(t, conn, protocol.TypeStartSession)
	expect(t, conn, protocol.TypeSessionStarted)
	send(t, conn, protocol.TypeStartSession)
	expect(t, conn, protocol.TypeSessionStarted)

	// Heartbeats on a live session are silent; the next reply is the check.
	send(t, conn, protocol.TypeHeartbeat)
	send(t, conn, protocol.TypeSessionCheck)
	expect(t, conn, protocol.TypeSessionExists)

	env.clock.Advance(25 * time.Minute)
	send(t, conn, protocol.TypeEndSession)
	expect(t, conn, protocol.TypeSessionEnded)

	send(t, conn, protocol.TypeEndSession)
	expect(t, conn, protocol.TypeNoSessionExists)
	send(t, conn, protocol.TypeHeartbeat)
	expect(t, conn, protocol.TypeNoSessionExists)

	recs, err := env.records.List(context.Background(), "alice", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 1 || recs[0].DurationSeconds != 1500 || recs[0].ManuallyAdded {
		t.Fatalf("records = %+v, want one tracked 1500s session", recs)
	}
}

func TestFocusWSStartCreatesWhenMissing(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "bob")
	send(t, conn, protocol.TypeStartSession)
	expect(t, conn, protocol.TypeSessionStarted)
	if _, err := env.sessions.ForUser("bob"); err != nil {
		t.Fatalf("ForUser() error = %v", err)
	}
}

func TestFocusWSEndWithoutStartRecordsNothing(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "carol")
	send(t, conn, protocol.TypeCreateSession)
	expect(t, conn, protocol.TypeSessionCreated)
	env.clock.Advance(time.Minute)
	send(t, conn, protocol.TypeEndSession)
	expect(t, conn, protocol.TypeSessionEnded)

	recs, _ := env.records.List(context.Background(), "carol", time.Time{}, time.Time{})
	if len(recs) != 0 {
		t.Fatalf("records = %+v, want none", recs)
	}
}

func TestFocusWSDropsInvalidFrames(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "dave")
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write error = %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"make-coffee"}`)); err != nil {
		t.Fatalf("write error = %v", err)
	}
	send(t, conn, protocol.TypeSessionCheck)
	expect(t, conn, protocol.TypeNoSessionExists)
}

func TestFocusWSRejectsMissingCredential(t *testing.T) {
	env := newTestEnv(t)
	_, res, err := websocket.DefaultDialer.Dial(env.wsURL(""), nil)
	if err == nil {
		t.Fatalf("dial without token succeeded")
	}
	if res == nil || res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial response = %+v, want 401", res)
	}
}

func TestFocusWSExpiryPushesEndedToEveryConnection(t *testing.T) {
	env := newTestEnv(t)
	first := env.dial(t, "erin")
	second := env.dial(t, "erin")
	other := env.dial(t, "frank")

	send(t, first, protocol.TypeStartSession)
	expect(t, first, protocol.TypeSessionStarted)
	// Confirm the second connection is registered before expiring.
	send(t, second, protocol.TypeSessionCheck)
	expect(t, second, protocol.TypeSessionExists)

	env.clock.Advance(31 * time.Second)
	if expired := env.sessions.ExpireInactive(); len(expired) != 1 {
		t.Fatalf("expired = %d sessions, want 1", len(expired))
	}
	expect(t, first, protocol.TypeSessionEnded)
	expect(t, second, protocol.TypeSessionEnded)

	send(t, other, protocol.TypeSessionCheck)
	expect(t, other, protocol.TypeNoSessionExists)

	recs, _ := env.records.List(context.Background(), "erin", time.Time{}, time.Time{})
	if len(recs) != 1 || recs[0].DurationSeconds != 31 {
		t.Fatalf("records = %+v, want one 31s session", recs)
	}
}

func TestFocusClientAgainstService(t *testing.T) {
	env := newTestEnv(t)
	clientClock := clockwork.NewFakeClock()
	c := focus.Open(context.Background(), focus.Config{
		Endpoint:   env.ts.URL + "/v1/focus/ws",
		Credential: "grace",
		Clock:      clientClock,
		Logger:     logging.Discard(),
	})
	defer c.Close()

	waitState := func(want focus.State) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			if c.Snapshot().State == want {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("state = %q, want %q", c.Snapshot().State, want)
	}

	clientClock.Advance(focus.DefaultPollInterval)
	waitState(focus.StateSessionExists)

	if !c.Start() {
		t.Fatalf("Start() = false")
	}
	waitState(focus.StateRunning)

	env.clock.Advance(10 * time.Minute)
	if !c.End() {
		t.Fatalf("End() = false")
	}
	waitState(focus.StateSessionExists)

	recs, err := env.records.List(context.Background(), "grace", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 1 || recs[0].DurationSeconds != 600 {
		t.Fatalf("records = %+v, want one 600s session", recs)
	}
}

func TestRecordsREST(t *testing.T) {
	env := newTestEnv(t)
	start := time.Date(2025, 6, 15, 7, 0, 0, 0, time.UTC)

	if res := env.do(t, http.MethodGet, "/v1/focus/sessions", "", nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", res.StatusCode)
	}

	res := env.do(t, http.MethodPost, "/v1/focus/sessions", "heidi", recordRequest{StartTime: start, EndTime: start.Add(45 * time.Minute)})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d, want 201", res.StatusCode)
	}
	added := decode[records.Record](t, res)
	if !added.ManuallyAdded || added.DurationSeconds != 2700 {
		t.Fatalf("added = %+v", added)
	}

	res = env.do(t, http.MethodPost, "/v1/focus/sessions", "heidi", recordRequest{StartTime: start, EndTime: start.Add(11 * time.Hour)})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("over-limit add status = %d, want 422", res.StatusCode)
	}

	res = env.do(t, http.MethodPut, "/v1/focus/sessions/"+added.ID, "heidi", recordRequest{StartTime: start, EndTime: start.Add(time.Hour)})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("edit status = %d, want 200", res.StatusCode)
	}
	if edited := decode[records.Record](t, res); edited.DurationSeconds != 3600 {
		t.Fatalf("edited duration = %d, want 3600", edited.DurationSeconds)
	}

	tracked, err := env.records.Complete(context.Background(), "heidi", start.Add(2*time.Hour), start.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	res = env.do(t, http.MethodPut, "/v1/focus/sessions/"+tracked.ID, "heidi", recordRequest{StartTime: start, EndTime: start.Add(time.Hour)})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("edit tracked status = %d, want 403", res.StatusCode)
	}

	res = env.do(t, http.MethodGet, "/v1/focus/sessions?manual=manual", "heidi", nil)
	if list := decode[listResponse](t, res); len(list.Sessions) != 1 || list.Sessions[0].ID != added.ID {
		t.Fatalf("manual list = %+v", list.Sessions)
	}
	res = env.do(t, http.MethodGet, "/v1/focus/sessions", "heidi", nil)
	if list := decode[listResponse](t, res); len(list.Sessions) != 2 || list.Sessions[0].ID != tracked.ID {
		t.Fatalf("list = %+v, want newest first", list.Sessions)
	}
	if res := env.do(t, http.MethodGet, "/v1/focus/sessions?from=yesterday", "heidi", nil); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad from status = %d, want 400", res.StatusCode)
	}

	if res := env.do(t, http.MethodDelete, "/v1/focus/sessions/"+added.ID, "mallory", nil); res.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign delete status = %d, want 404", res.StatusCode)
	}
	if res := env.do(t, http.MethodDelete, "/v1/focus/sessions/"+added.ID, "heidi", nil); res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", res.StatusCode)
	}
	if res := env.do(t, http.MethodDelete, "/v1/focus/sessions/"+added.ID, "heidi", nil); res.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", res.StatusCode)
	}
}

func TestRecordsRESTRejectsBadHourFilters(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"min_hours=NaN", "max_hours=Inf", "max_hours=-Inf", "min_hours=-1", "min_hours=two"} {
		t.Run(q, func(t *testing.T) {
			res := env.do(t, http.MethodGet, "/v1/focus/sessions?"+q, "heidi", nil)
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", res.StatusCode)
			}
		})
	}
	if res := env.do(t, http.MethodGet, "/v1/focus/sessions?min_hours=0.5&max_hours=2", "heidi", nil); res.StatusCode != http.StatusOK {
		t.Fatalf("valid filter status = %d, want 200", res.StatusCode)
	}
}

func TestStatsREST(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	today := time.Date(2025, 6, 15, 7, 0, 0, 0, time.UTC)
	if _, err := env.records.AddManual(ctx, "ivan", today, today.Add(30*time.Minute)); err != nil {
		t.Fatalf("AddManual() error = %v", err)
	}
	if _, err := env.records.Complete(ctx, "ivan", today.AddDate(0, 0, -2), today.AddDate(0, 0, -2).Add(time.Hour)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	res := env.do(t, http.MethodGet, "/v1/focus/stats", "ivan", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", res.StatusCode)
	}
	got := decode[statsResponse](t, res)
	if got.Summary.TotalSessions != 2 || got.Summary.TotalSeconds != 5400 || got.Summary.ManualSessions != 1 {
		t.Fatalf("summary = %+v", got.Summary)
	}
	if len(got.Buckets.Today) != 1 || got.Buckets.Today[0].Duration != 1800 {
		t.Fatalf("today = %+v", got.Buckets.Today)
	}
	if len(got.Buckets.LastWeek) != 1 || got.Buckets.LastWeek[0].Date != "2025-06-13" {
		t.Fatalf("last week = %+v", got.Buckets.LastWeek)
	}

	if res := env.do(t, http.MethodGet, "/v1/focus/stats?tz=Mars/Olympus", "ivan", nil); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad tz status = %d, want 400", res.StatusCode)
	}
}

func TestHealthReadyAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		if res := env.do(t, http.MethodGet, path, "", nil); res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, res.StatusCode)
		}
	}

	conn := env.dial(t, "judy")
	send(t, conn, protocol.TypeCreateSession)
	expect(t, conn, protocol.TypeSessionCreated)

	res := env.do(t, http.MethodGet, "/metrics", "", nil)
	body, _ := io.ReadAll(res.Body)
	for _, want := range []string{
		`test_httpapi_session_events_total{event="created"} 1`,
		`test_httpapi_active_sessions 1`,
		`test_httpapi_ws_messages_total{direction="inbound",type="create-session"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}
