package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil, nil)

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", defaultInterval},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws?interval=2m", defaultInterval},
		{"interval_ms_too_large", "/ws?interval_ms=90000", defaultInterval},
		{"interval_invalid_string", "/ws?interval=bogus", defaultInterval},
		{"interval_ms_invalid", "/ws?interval_ms=NaN", defaultInterval},
		{"both_present_interval_wins", "/ws?interval=2s&interval_ms=150", 2 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, tc.u, nil)
			if got := h.parseInterval(c); got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

func TestEnvelopeFor(t *testing.T) {
	cases := []struct {
		msg  any
		want string
	}{
		{models.RelayStateMessage{Topic: "plug1"}, wsTypeRelayState},
		{models.IdleStatusMessage{Type: "timeout"}, wsTypeIdle},
		{models.NoTransportMessage{NoTransport: true}, wsTypeNoTransport},
		{"hello", wsTypeMessage},
	}
	for _, tc := range cases {
		if got := envelopeFor(tc.msg).Type; got != tc.want {
			t.Fatalf("%T: got %q, want %q", tc.msg, got, tc.want)
		}
	}
}

type envelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func dialWS(t *testing.T, h *Handler, query string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", h.wsConnect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestWebSocket_StatusThenPushedMessages(t *testing.T) {
	mon := &mockMonitoring{status: models.Status{
		Transport: true,
		Relays:    []models.Relay{{Topic: "plug1", CurrentState: models.StateOn}},
		Idle:      models.IdleSnapshot{State: "ARMED"},
	}}
	host := &mockHost{}
	hub := &mockHub{ch: make(chan any, 4)}
	h := NewHandler(&service.Service{Monitoring: mon, Host: host}, hub, nil)

	conn := dialWS(t, h, "")

	env := readEnvelope(t, conn)
	if env.Type != wsTypeStatus {
		t.Fatalf("first envelope: %+v", env)
	}
	var st models.Status
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if !st.Transport || len(st.Relays) != 1 || st.Idle.State != "ARMED" {
		t.Fatalf("unexpected status: %+v", st)
	}

	hub.ch <- models.RelayStateMessage{Topic: "plug1", CurrentState: models.StateOff}
	env = readEnvelope(t, conn)
	if env.Type != wsTypeRelayState {
		t.Fatalf("expected relay_state, got %+v", env)
	}
	var msg models.RelayStateMessage
	_ = json.Unmarshal(env.Data, &msg)
	if msg.Topic != "plug1" || msg.CurrentState != models.StateOff {
		t.Fatalf("unexpected push: %+v", msg)
	}

	seen := host.seen()
	if len(seen) != 1 || seen[0] != service.EventClientOpened {
		t.Fatalf("ClientOpened not delivered: %v", seen)
	}
}

func TestWebSocket_PeriodicStatus(t *testing.T) {
	mon := &mockMonitoring{status: models.Status{Idle: models.IdleSnapshot{State: "DISABLED"}}}
	h := NewHandler(&service.Service{Monitoring: mon}, nil, nil)

	conn := dialWS(t, h, "interval_ms=20")
	for i := 0; i < 2; i++ {
		if env := readEnvelope(t, conn); env.Type != wsTypeStatus {
			t.Fatalf("tick %d: %+v", i, env)
		}
	}
}

func TestWebSocket_InitialGetStatusError_Closes(t *testing.T) {
	mon := &mockMonitoring{err: errors.New("boom")}
	h := NewHandler(&service.Service{Monitoring: mon}, nil, nil)

	conn := dialWS(t, h, "")

	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err == nil {
		t.Fatalf("expected read error (closed), got message: %s", string(raw))
	}
}

func TestOriginAllowed(t *testing.T) {
	cases := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"http://octopi.local"}, "", true},
		{"listed origin", []string{"http://octopi.local"}, "http://OctoPi.local", true},
		{"unlisted origin", []string{"http://octopi.local"}, "http://evil.example", false},
		{"wildcard", []string{"*"}, "http://evil.example", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&service.Service{}, nil, nil).AllowOrigins(tc.origins...)
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if got := h.originAllowed(req); got != tc.want {
				t.Fatalf("originAllowed(%q)=%v, want %v", tc.origin, got, tc.want)
			}
		})
	}
}

func TestUpgraderDefaultsToSameOrigin(t *testing.T) {
	if NewHandler(&service.Service{}, nil, nil).upgrader().CheckOrigin != nil {
		t.Fatalf("expected gorilla's same-origin check without configured origins")
	}
	if NewHandler(&service.Service{}, nil, nil).AllowOrigins("*").upgrader().CheckOrigin == nil {
		t.Fatalf("expected a custom origin check once origins are configured")
	}
}
