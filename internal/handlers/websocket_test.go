package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"sous_vide/internal/models"
	"sous_vide/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestStreamQuery_Interval(t *testing.T) {
	cases := []struct {
		name string
		q    streamQuery
		want time.Duration
	}{
		{"default when missing", streamQuery{}, time.Second},
		{"duration", streamQuery{Interval: "200ms"}, 200 * time.Millisecond},
		{"milliseconds", streamQuery{IntervalMs: "150"}, 150 * time.Millisecond},
		{"duration too large", streamQuery{Interval: "20s"}, time.Second},
		{"milliseconds too large", streamQuery{IntervalMs: "20000"}, time.Second},
		{"faster than the floor", streamQuery{Interval: "5ms"}, time.Second},
		{"bad duration", streamQuery{Interval: "bogus"}, time.Second},
		{"bad milliseconds", streamQuery{IntervalMs: "NaN"}, time.Second},
		{"duration wins", streamQuery{Interval: "2s", IntervalMs: "150"}, 2 * time.Second},
		{"bad duration falls back to ms", streamQuery{Interval: "bogus", IntervalMs: "250"}, 250 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.q.interval(); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSameReading_IgnoresPollTime(t *testing.T) {
	a := models.DeviceStatus{CurrentTemp: "55.1", SetTemp: "57", Unit: "c", State: "running", LinkOpen: true, UpdatedAt: time.Now()}
	b := a
	b.UpdatedAt = a.UpdatedAt.Add(time.Second)
	if !sameReading(a, b) {
		t.Fatalf("statuses differing only in UpdatedAt should match")
	}
	b.CurrentTemp = "55.2"
	if sameReading(a, b) {
		t.Fatalf("temperature change not detected")
	}
}

// --- websocket integration tests ---

func TestWebSocket_StatusStream_InitialAndPeriodic(t *testing.T) {
	mon := &mockMonitoring{cached: models.DeviceStatus{
		CurrentTemp: "134.9",
		SetTemp:     "135.5",
		Unit:        "f",
		State:       "running",
		LinkOpen:    true,
	}}
	s := &service.Service{Monitoring: mon}

	r := gin.New()
	h := NewHandler(s, nil, Options{})
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	q := u.Query()
	q.Set("interval_ms", "60")
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	type envelope struct {
		Type string          `json:"type"`
		Seq  uint64          `json:"seq"`
		Data json.RawMessage `json:"data"`
	}

	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if env.Type != wsTypeStatus || env.Seq != 1 || len(env.Data) == 0 {
		t.Fatalf("bad envelope: %+v", env)
	}
	var st models.DeviceStatus
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if st.CurrentTemp != "134.9" || st.State != "running" || !st.LinkOpen {
		t.Fatalf("unexpected status: %+v", st)
	}

	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	env = envelope{}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if env.Type != wsTypeStatus || env.Seq != 2 {
		t.Fatalf("expected status #2, got %+v", env)
	}
	if mon.refreshes != 0 {
		t.Fatalf("stream queried the device %d times", mon.refreshes)
	}
}

func dialStream(t *testing.T, srvURL, rawQuery string) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(srvURL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = rawQuery
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	return conn
}

func TestWebSocket_OnlyChangesSkipsRepeats(t *testing.T) {
	mon := &mockMonitoring{cached: models.DeviceStatus{CurrentTemp: "57.0", SetTemp: "57", Unit: "c", State: "running", LinkOpen: true}}
	r := gin.New()
	r.GET("/ws", NewHandler(&service.Service{Monitoring: mon}, nil, Options{}).wsConnect)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialStream(t, srv.URL, "interval_ms=50&only_changes=true")
	defer conn.Close()

	var env wsEnvelope
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if env.Seq != 1 || env.Data.CurrentTemp != "57.0" {
		t.Fatalf("bad initial push: %+v", env)
	}

	// several ticks pass with the same reading, nothing more is pushed
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if err := conn.ReadJSON(&env); err == nil {
		t.Fatalf("unchanged status pushed again: %+v", env)
	}
}

func TestWebSocket_BadFlagIsRejected(t *testing.T) {
	r := gin.New()
	r.GET("/ws", NewHandler(&service.Service{Monitoring: &mockMonitoring{}}, nil, Options{}).wsConnect)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?only_changes=maybe", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad only_changes flag, got %d", w.Code)
	}
}

func TestWebSocket_PlainRequestIsRejected(t *testing.T) {
	r := gin.New()
	h := NewHandler(&service.Service{Monitoring: &mockMonitoring{}}, nil, Options{})
	r.GET("/ws", h.wsConnect)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without upgrade headers, got %d", w.Code)
	}
}
